package cli_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/donna/pkg/adapter"
	"github.com/m-mizutani/donna/pkg/cli"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/donna/pkg/repository"
	"github.com/m-mizutani/gt"
)

func seedNote(t *testing.T, dataDir string, user model.UserID, text string) *model.Note {
	t.Helper()
	store, err := repository.NewSQLiteNotes(filepath.Join(dataDir, "notes.db"))
	gt.NoError(t, err)
	defer store.Close()

	note, err := store.Insert(context.Background(), &model.Note{
		Text:      text,
		Metadata:  model.NoteMetadata{UserID: user},
		Embedding: adapter.FakeEmbedding(text, 8),
	})
	gt.NoError(t, err)
	return note
}

func run(args ...string) *cli.Error {
	return cli.Run(context.Background(), append([]string{"donna"}, args...))
}

func TestNotesCommands(t *testing.T) {
	dataDir := t.TempDir()
	note := seedNote(t, dataDir, "alice", "buy milk")

	t.Run("list", func(t *testing.T) {
		gt.True(t, run("notes", "list", "--data-dir", dataDir, "--user-id", "alice") == nil)
	})

	t.Run("delete of another user's note is denied", func(t *testing.T) {
		err := run("notes", "delete", "--data-dir", dataDir, "--user-id", "bob", string(note.ID))
		gt.True(t, err != nil)
		gt.S(t, err.Message).Contains("permission")
	})

	t.Run("delete by owner", func(t *testing.T) {
		gt.True(t, run("notes", "delete", "--data-dir", dataDir, "--user-id", "alice", string(note.ID)) == nil)

		store, err := repository.NewSQLiteNotes(filepath.Join(dataDir, "notes.db"))
		gt.NoError(t, err)
		defer store.Close()
		notes, err := store.List(context.Background(), model.NoteFilter{UserID: "alice"})
		gt.NoError(t, err)
		gt.A(t, notes).Length(0)
	})

	t.Run("delete requires note id", func(t *testing.T) {
		gt.True(t, run("notes", "delete", "--data-dir", dataDir) != nil)
	})
}

func TestHistoryCommand(t *testing.T) {
	dataDir := t.TempDir()

	t.Run("empty thread", func(t *testing.T) {
		gt.True(t, run("history", "--data-dir", dataDir) == nil)
	})

	t.Run("unknown agent", func(t *testing.T) {
		gt.True(t, run("history", "--data-dir", dataDir, "--agent", "billing") != nil)
	})

	t.Run("invalid identity", func(t *testing.T) {
		gt.True(t, run("history", "--data-dir", dataDir, "--user-id", "no spaces allowed") != nil)
	})
}

func TestUnsupportedBackend(t *testing.T) {
	gt.True(t, run("notes", "list", "--backend", "s3") != nil)
}
