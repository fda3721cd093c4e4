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

type CreateNote struct {
	notes *Notes
}

type createNoteInput struct {
	Note string `json:"note"`
}

func (t *CreateNote) Spec() *tool.Spec {
	return &tool.Spec{
		Name:        "create_note",
		Description: "Creates a new note in memory for the current user.",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"note": {Type: "string", Description: "Text of the note"},
			},
			Required: []string{"note"},
		},
	}
}

func (t *CreateNote) Execute(ctx context.Context, env tool.Env, fc genai.FunctionCall) (string, error) {
	user, err := userOf(env)
	if err != nil {
		return "", err
	}

	var input createNoteInput
	if err := tool.DecodeArgs(fc.Args, &input); err != nil {
		return "", err
	}
	if input.Note == "" {
		return "", goerr.New("note must not be empty")
	}

	if err := t.notes.policy.Authorize(ctx, policy.Input{Action: policy.ActionCreate, UserID: user}); err != nil {
		return "", err
	}

	var created *model.Note
	err = t.notes.withTimeout(ctx, "create", func(ctx context.Context) error {
		vec, err := t.notes.embed(ctx, input.Note)
		if err != nil {
			return err
		}
		created, err = t.notes.store.Insert(ctx, &model.Note{
			Text:      input.Note,
			Metadata:  model.NoteMetadata{UserID: user},
			Embedding: vec,
		})
		return err
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to create note", goerr.V("user_id", user))
	}

	return fmt.Sprintf("Note added (id=%s): %s", created.ID, created.Text), nil
}
