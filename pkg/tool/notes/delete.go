package notes

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/donna/pkg/policy"
	"github.com/m-mizutani/donna/pkg/tool"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

type DeleteNote struct {
	notes *Notes
}

type deleteNoteInput struct {
	NoteID string `json:"note_id"`
}

func (t *DeleteNote) Spec() *tool.Spec {
	return &tool.Spec{
		Name:        "delete_note",
		Description: "Deletes a note of the current user.",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"note_id": {Type: "string", Description: "ID of the note"},
			},
			Required: []string{"note_id"},
		},
	}
}

func (t *DeleteNote) Execute(ctx context.Context, env tool.Env, fc genai.FunctionCall) (string, error) {
	user, err := userOf(env)
	if err != nil {
		return "", err
	}

	var input deleteNoteInput
	if err := tool.DecodeArgs(fc.Args, &input); err != nil {
		return "", err
	}
	if input.NoteID == "" {
		return "", goerr.New("note_id is required")
	}
	id := model.NoteID(input.NoteID)

	var deleted bool
	err = t.notes.withTimeout(ctx, "delete", func(ctx context.Context) error {
		deleted, err = t.notes.store.Delete(ctx, id, func(current *model.Note) error {
			return t.notes.policy.Authorize(ctx, policy.Input{
				Action: policy.ActionDelete,
				UserID: user,
				NoteID: id,
				Owner:  current.Metadata.UserID,
			})
		})
		return err
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to delete note", goerr.V("note_id", id), goerr.V("user_id", user))
	}

	if !deleted {
		return fmt.Sprintf("Note %s not found, nothing deleted", id), nil
	}
	return fmt.Sprintf("Note %s deleted", id), nil
}
