package supervisor

import (
	"context"
	_ "embed"

	"github.com/m-mizutani/donna/pkg/adapter"
	"github.com/m-mizutani/donna/pkg/agent"
	"github.com/m-mizutani/donna/pkg/interfaces"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/donna/pkg/tool"
	"github.com/m-mizutani/goerr/v2"
)

//go:embed prompt/system.md
var systemPrompt string

const Name = "supervisor"

// Agent is Donna, the user facing agent. Its only tool is delegate_to_notes.
type Agent struct {
	loop *agent.Agent
}

func New(gemini adapter.Gemini, notes NotesInvoker, store interfaces.CheckpointStore, opts ...agent.Option) (*Agent, error) {
	registry, err := tool.New(NewDelegate(notes))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build supervisor tool registry")
	}
	return &Agent{
		loop: agent.New(Name, systemPrompt, gemini, registry, store, opts...),
	}, nil
}

// Invoke runs one supervisor turn on the session's supervisor thread
func (a *Agent) Invoke(ctx context.Context, session model.SessionIdentity, inputs []*model.Message) (*agent.Result, error) {
	return a.loop.Invoke(ctx, model.SupervisorThread(session), session, inputs)
}

// SystemPrompt returns the built-in system prompt
func SystemPrompt() string {
	return systemPrompt
}
