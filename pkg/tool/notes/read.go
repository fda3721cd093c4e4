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

type ReadNote struct {
	notes *Notes
}

type readNoteInput struct {
	Query string `json:"query"`
	K     *int   `json:"k,omitempty"`
}

func (t *ReadNote) Spec() *tool.Spec {
	return &tool.Spec{
		Name:        "read_note",
		Description: "Finds the top k notes of the current user most similar to a query.",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {Type: "string", Description: "What to look for"},
				"k":     {Type: "integer", Description: fmt.Sprintf("Number of notes to return (default: %d, max: %d)", defaultReadK, maxReadK)},
			},
			Required: []string{"query"},
		},
	}
}

func clampK(k *int) int {
	switch {
	case k == nil:
		return defaultReadK
	case *k < 1:
		return 1
	case *k > maxReadK:
		return maxReadK
	default:
		return *k
	}
}

func (t *ReadNote) Execute(ctx context.Context, env tool.Env, fc genai.FunctionCall) (string, error) {
	user, err := userOf(env)
	if err != nil {
		return "", err
	}

	var input readNoteInput
	if err := tool.DecodeArgs(fc.Args, &input); err != nil {
		return "", err
	}
	k := clampK(input.K)

	if err := t.notes.policy.Authorize(ctx, policy.Input{Action: policy.ActionRead, UserID: user}); err != nil {
		return "", err
	}

	var found []*model.Note
	err = t.notes.withTimeout(ctx, "read", func(ctx context.Context) error {
		vec, err := t.notes.embed(ctx, input.Query)
		if err != nil {
			return err
		}
		found, err = t.notes.store.Search(ctx, vec, k, model.NoteFilter{UserID: user})
		return err
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to search notes", goerr.V("user_id", user), goerr.V("k", k))
	}

	if len(found) == 0 {
		return "No notes found.", nil
	}
	return fmt.Sprintf("Found %d note(s):\n%s", len(found), formatNotes(found, true)), nil
}
