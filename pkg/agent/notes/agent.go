package notes

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

const Name = "notes"

// Agent owns the notes knowledge store. It is only driven by the supervisor
// and keeps its own checkpointed thread per session.
type Agent struct {
	loop *agent.Agent
}

// New creates the notes agent over the given note tools
func New(gemini adapter.Gemini, tools []tool.Tool, store interfaces.CheckpointStore, opts ...agent.Option) (*Agent, error) {
	registry, err := tool.New(tools...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build notes tool registry")
	}
	return &Agent{
		loop: agent.New(Name, systemPrompt, gemini, registry, store, opts...),
	}, nil
}

// Invoke runs one notes turn on the session's notes thread
func (a *Agent) Invoke(ctx context.Context, session model.SessionIdentity, inputs []*model.Message) (*agent.Result, error) {
	return a.loop.Invoke(ctx, model.NotesThread(session), session, inputs)
}

// SystemPrompt returns the built-in system prompt
func SystemPrompt() string {
	return systemPrompt
}
