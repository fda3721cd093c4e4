package supervisor

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/donna/pkg/agent"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/donna/pkg/tool"
	"github.com/m-mizutani/donna/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// NotesInvoker runs a turn of the notes agent
type NotesInvoker interface {
	Invoke(ctx context.Context, session model.SessionIdentity, inputs []*model.Message) (*agent.Result, error)
}

// Delegate is the delegate_to_notes tool. It hands a task together with a
// copy of the supervisor's conversation to the notes agent.
type Delegate struct {
	notes NotesInvoker
}

func NewDelegate(notes NotesInvoker) *Delegate {
	return &Delegate{notes: notes}
}

type delegateInput struct {
	Task string `json:"task"`
}

func (d *Delegate) Spec() *tool.Spec {
	return &tool.Spec{
		Name:        "delegate_to_notes",
		Description: "Delegates note-related tasks (create, search, update, delete, list) to the Notes Agent.",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"task": {Type: "string", Description: "The task to delegate to the Notes Agent"},
			},
			Required: []string{"task"},
		},
	}
}

// Execute builds the notes agent input: the supervisor's user and assistant
// text messages (keeping their IDs, so the notes thread stores each of them
// once) followed by the attributed task.
func (d *Delegate) Execute(ctx context.Context, env tool.Env, fc genai.FunctionCall) (string, error) {
	var input delegateInput
	if err := tool.DecodeArgs(fc.Args, &input); err != nil {
		return "", err
	}
	if input.Task == "" {
		return "", goerr.New("task is required")
	}

	inputs := append(model.Conversation(env.Transcript), model.NewUserMessage("Donna: "+input.Task))

	logging.From(ctx).Info("delegating to notes agent", "task", input.Task, "context_messages", len(inputs)-1)

	result, err := d.notes.Invoke(ctx, env.Session, inputs)
	if err != nil {
		return "", goerr.Wrap(err, "notes agent failed", goerr.V("task", input.Task))
	}

	return fmt.Sprintf("Notes agent result: %s", result.Final.Text), nil
}
