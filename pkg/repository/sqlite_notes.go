package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/donna/pkg/interfaces"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// SQLiteNotes is a file backed NoteStore for local use. Similarity search
// scans the user's notes and ranks them by cosine similarity.
type SQLiteNotes struct {
	db *sql.DB
}

var _ interfaces.NoteStore = (*SQLiteNotes)(nil)

func NewSQLiteNotes(path string) (*SQLiteNotes, error) {
	db, err := openSQLite(path, `
		CREATE TABLE IF NOT EXISTS notes (
			id         TEXT PRIMARY KEY,
			text       TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			embedding  TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS notes_user_id ON notes (user_id, created_at);
	`)
	if err != nil {
		return nil, err
	}
	return &SQLiteNotes{db: db}, nil
}

func (s *SQLiteNotes) Close() error {
	return s.db.Close()
}

const noteColumns = "id, text, user_id, embedding, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*model.Note, error) {
	var (
		note                 model.Note
		id, userID, emb      string
		createdAt, updatedAt string
	)
	if err := row.Scan(&id, &note.Text, &userID, &emb, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	note.ID = model.NoteID(id)
	note.Metadata.UserID = model.UserID(userID)
	if err := json.Unmarshal([]byte(emb), &note.Embedding); err != nil {
		return nil, goerr.Wrap(err, "failed to decode embedding", goerr.V("note_id", id))
	}

	var err error
	if note.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, goerr.Wrap(err, "failed to parse created_at", goerr.V("note_id", id))
	}
	if note.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, goerr.Wrap(err, "failed to parse updated_at", goerr.V("note_id", id))
	}
	return &note, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertNote(ctx context.Context, db execer, note *model.Note) error {
	emb, err := json.Marshal(note.Embedding)
	if err != nil {
		return goerr.Wrap(err, "failed to encode embedding", goerr.V("note_id", note.ID))
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO notes (`+noteColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text       = excluded.text,
			user_id    = excluded.user_id,
			embedding  = excluded.embedding,
			updated_at = excluded.updated_at
	`,
		string(note.ID), note.Text, string(note.Metadata.UserID), string(emb),
		note.CreatedAt.UTC().Format(time.RFC3339Nano), note.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to write note", goerr.V("note_id", note.ID))
	}
	return nil
}

func (s *SQLiteNotes) Insert(ctx context.Context, note *model.Note) (*model.Note, error) {
	stored := copyNote(note)
	if stored.ID == "" {
		stored.ID = model.NewNoteID()
	}
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	emb, err := json.Marshal(stored.Embedding)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode embedding", goerr.V("note_id", stored.ID))
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO notes ("+noteColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		string(stored.ID), stored.Text, string(stored.Metadata.UserID), string(emb),
		stored.CreatedAt.UTC().Format(time.RFC3339Nano), stored.UpdatedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, goerr.Wrap(err, "note already exists", goerr.V("note_id", stored.ID), goerr.T(model.ErrTagConflict))
		}
		return nil, goerr.Wrap(err, "failed to insert note", goerr.V("note_id", stored.ID))
	}
	return stored, nil
}

func (s *SQLiteNotes) Get(ctx context.Context, id model.NoteID) (*model.Note, error) {
	note, err := scanNote(s.db.QueryRowContext(ctx, "SELECT "+noteColumns+" FROM notes WHERE id = ?", string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.New("note not found", goerr.V("note_id", id), goerr.T(model.ErrTagNotFound))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get note", goerr.V("note_id", id))
	}
	return note, nil
}

func (s *SQLiteNotes) query(ctx context.Context, filter model.NoteFilter) ([]*model.Note, error) {
	q := "SELECT " + noteColumns + " FROM notes"
	var args []any
	if filter.UserID != "" {
		q += " WHERE user_id = ?"
		args = append(args, string(filter.UserID))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query notes", goerr.V("user_id", filter.UserID))
	}
	defer rows.Close()

	var notes []*model.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan note")
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate notes")
	}
	return notes, nil
}

func (s *SQLiteNotes) List(ctx context.Context, filter model.NoteFilter) ([]*model.Note, error) {
	notes, err := s.query(ctx, filter)
	if err != nil {
		return nil, err
	}
	sortByCreation(notes)
	return notes, nil
}

func (s *SQLiteNotes) Search(ctx context.Context, embedding []float32, k int, filter model.NoteFilter) ([]*model.Note, error) {
	if k <= 0 {
		return nil, nil
	}
	notes, err := s.query(ctx, filter)
	if err != nil {
		return nil, err
	}
	for _, note := range notes {
		note.Score = cosineSimilarity(embedding, note.Embedding)
	}
	return rankByScore(notes, k), nil
}

func (s *SQLiteNotes) Update(ctx context.Context, id model.NoteID, fn func(current *model.Note) (*model.Note, error)) (*model.Note, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to begin note transaction")
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanNote(tx.QueryRowContext(ctx, "SELECT "+noteColumns+" FROM notes WHERE id = ?", string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		current = nil
	} else if err != nil {
		return nil, goerr.Wrap(err, "failed to read note", goerr.V("note_id", id))
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	stored := copyNote(next)
	stored.ID = id
	now := time.Now()
	if current != nil {
		stored.CreatedAt = current.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	if err := upsertNote(ctx, tx, stored); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, goerr.Wrap(err, "failed to commit note", goerr.V("note_id", id))
	}
	return stored, nil
}

func (s *SQLiteNotes) Delete(ctx context.Context, id model.NoteID, check func(current *model.Note) error) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, goerr.Wrap(err, "failed to begin note transaction")
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanNote(tx.QueryRowContext(ctx, "SELECT "+noteColumns+" FROM notes WHERE id = ?", string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, goerr.Wrap(err, "failed to read note", goerr.V("note_id", id))
	}

	if check != nil {
		if err := check(current); err != nil {
			return false, err
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", string(id)); err != nil {
		return false, goerr.Wrap(err, "failed to delete note", goerr.V("note_id", id))
	}
	if err := tx.Commit(); err != nil {
		return false, goerr.Wrap(err, "failed to commit note deletion", goerr.V("note_id", id))
	}
	return true, nil
}
