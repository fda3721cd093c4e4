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

type GetAllNotes struct {
	notes *Notes
}

func (t *GetAllNotes) Spec() *tool.Spec {
	return &tool.Spec{
		Name:        "get_all_notes",
		Description: "Retrieves all notes of the current user, oldest first.",
		Parameters: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
	}
}

func (t *GetAllNotes) Execute(ctx context.Context, env tool.Env, fc genai.FunctionCall) (string, error) {
	user, err := userOf(env)
	if err != nil {
		return "", err
	}

	if err := t.notes.policy.Authorize(ctx, policy.Input{Action: policy.ActionList, UserID: user}); err != nil {
		return "", err
	}

	var all []*model.Note
	err = t.notes.withTimeout(ctx, "list", func(ctx context.Context) error {
		all, err = t.notes.store.List(ctx, model.NoteFilter{UserID: user})
		return err
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to list notes", goerr.V("user_id", user))
	}

	if len(all) == 0 {
		return "No notes found.", nil
	}
	return fmt.Sprintf("%d note(s):\n%s", len(all), formatNotes(all, false)), nil
}
