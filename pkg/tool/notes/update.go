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

type UpdateNote struct {
	notes *Notes
}

type updateNoteInput struct {
	NoteID  string `json:"note_id"`
	NewText string `json:"new_text"`
}

func (t *UpdateNote) Spec() *tool.Spec {
	return &tool.Spec{
		Name:        "update_note",
		Description: "Replaces the text of an existing note. A note with an unknown id is created.",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"note_id":  {Type: "string", Description: "ID of the note"},
				"new_text": {Type: "string", Description: "New text of the note"},
			},
			Required: []string{"note_id", "new_text"},
		},
	}
}

func (t *UpdateNote) Execute(ctx context.Context, env tool.Env, fc genai.FunctionCall) (string, error) {
	user, err := userOf(env)
	if err != nil {
		return "", err
	}

	var input updateNoteInput
	if err := tool.DecodeArgs(fc.Args, &input); err != nil {
		return "", err
	}
	if input.NoteID == "" || input.NewText == "" {
		return "", goerr.New("note_id and new_text are required")
	}
	id := model.NoteID(input.NoteID)

	var created bool
	err = t.notes.withTimeout(ctx, "update", func(ctx context.Context) error {
		// embed outside of the store transaction, which may be retried
		vec, err := t.notes.embed(ctx, input.NewText)
		if err != nil {
			return err
		}

		_, err = t.notes.store.Update(ctx, id, func(current *model.Note) (*model.Note, error) {
			in := policy.Input{Action: policy.ActionUpdate, UserID: user, NoteID: id}
			if current != nil {
				in.Owner = current.Metadata.UserID
			}
			if err := t.notes.policy.Authorize(ctx, in); err != nil {
				return nil, err
			}

			created = current == nil
			return &model.Note{
				ID:        id,
				Text:      input.NewText,
				Metadata:  model.NoteMetadata{UserID: user},
				Embedding: vec,
			}, nil
		})
		return err
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to update note", goerr.V("note_id", id), goerr.V("user_id", user))
	}

	if created {
		return fmt.Sprintf("Note %s created. New note: %s", id, input.NewText), nil
	}
	return fmt.Sprintf("Note %s updated. New note: %s", id, input.NewText), nil
}
