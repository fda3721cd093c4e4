package chat

import (
	"context"
	"time"

	"github.com/m-mizutani/donna/pkg/adapter"
	"github.com/m-mizutani/donna/pkg/agent"
	"github.com/m-mizutani/donna/pkg/agent/notes"
	"github.com/m-mizutani/donna/pkg/agent/supervisor"
	"github.com/m-mizutani/donna/pkg/interfaces"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/donna/pkg/policy"
	notetool "github.com/m-mizutani/donna/pkg/tool/notes"
	"github.com/m-mizutani/goerr/v2"
)

// AgentConfig tunes one of the two agents. Zero values keep the defaults.
type AgentConfig struct {
	SystemPrompt  string        `yaml:"system_prompt"`
	MaxIterations int           `yaml:"max_iterations"`
	ModelTimeout  time.Duration `yaml:"model_timeout"`
}

func (c AgentConfig) options() []agent.Option {
	return []agent.Option{
		agent.WithSystemPrompt(c.SystemPrompt),
		agent.WithMaxIterations(c.MaxIterations),
		agent.WithModelTimeout(c.ModelTimeout),
	}
}

// NewInput contains the dependencies of the chat service
type NewInput struct {
	Gemini adapter.Gemini
	// NotesGemini serves the notes agent; Gemini is used when nil
	NotesGemini adapter.Gemini
	Embedder    interfaces.Embedder
	NoteStore   interfaces.NoteStore
	Policy      *policy.Engine

	SupervisorCheckpoints interfaces.CheckpointStore
	NotesCheckpoints      interfaces.CheckpointStore

	Supervisor   AgentConfig
	Notes        AgentConfig
	StoreTimeout time.Duration
	Dimension    int
}

// Service is the external entrypoint: one Invoke per user turn
type Service struct {
	supervisor            *supervisor.Agent
	supervisorCheckpoints interfaces.CheckpointStore
	notesCheckpoints      interfaces.CheckpointStore
}

// Reply is the outcome of a supervisor turn
type Reply struct {
	Final      *model.Message
	Transcript []*model.Message
}

func New(ctx context.Context, input NewInput) (*Service, error) {
	if input.Gemini == nil || input.NoteStore == nil || input.SupervisorCheckpoints == nil || input.NotesCheckpoints == nil {
		return nil, goerr.New("gemini, note store and checkpoint stores are required")
	}

	engine := input.Policy
	if engine == nil {
		var err error
		if engine, err = policy.New(ctx); err != nil {
			return nil, goerr.Wrap(err, "failed to load default notes policy")
		}
	}

	embedder := input.Embedder
	if embedder == nil {
		embedder = input.Gemini
		if input.NotesGemini != nil {
			embedder = input.NotesGemini
		}
	}

	var toolOpts []notetool.Option
	if input.StoreTimeout > 0 {
		toolOpts = append(toolOpts, notetool.WithStoreTimeout(input.StoreTimeout))
	}
	if input.Dimension > 0 {
		toolOpts = append(toolOpts, notetool.WithDimension(input.Dimension))
	}
	tools := notetool.New(input.NoteStore, embedder, engine, toolOpts...).Tools()

	notesGemini := input.NotesGemini
	if notesGemini == nil {
		notesGemini = input.Gemini
	}

	notesAgent, err := notes.New(notesGemini, tools, input.NotesCheckpoints, input.Notes.options()...)
	if err != nil {
		return nil, err
	}

	supervisorAgent, err := supervisor.New(input.Gemini, notesAgent, input.SupervisorCheckpoints, input.Supervisor.options()...)
	if err != nil {
		return nil, err
	}

	return &Service{
		supervisor:            supervisorAgent,
		supervisorCheckpoints: input.SupervisorCheckpoints,
		notesCheckpoints:      input.NotesCheckpoints,
	}, nil
}

// Invoke runs one supervisor turn for the session. The identity is validated
// before any state is read.
func (s *Service) Invoke(ctx context.Context, session model.SessionIdentity, messages []*model.Message) (*Reply, error) {
	if err := session.Validate(); err != nil {
		return nil, err
	}

	result, err := s.supervisor.Invoke(ctx, session, messages)
	if err != nil {
		return nil, goerr.Wrap(err, "supervisor turn failed",
			goerr.V("user_id", session.UserID),
			goerr.V("thread_id", session.ThreadID))
	}

	return &Reply{
		Final:      result.Final,
		Transcript: result.Messages,
	}, nil
}

// Send is Invoke with a single user text message
func (s *Service) Send(ctx context.Context, session model.SessionIdentity, text string) (*Reply, error) {
	return s.Invoke(ctx, session, []*model.Message{model.NewUserMessage(text)})
}

// History returns the checkpointed transcript of the named agent ("supervisor"
// or "notes") for the session, or nil when the thread has no checkpoint.
func (s *Service) History(ctx context.Context, agentName string, session model.SessionIdentity) (*model.Checkpoint, error) {
	if err := session.Validate(); err != nil {
		return nil, err
	}

	var (
		store interfaces.CheckpointStore
		key   model.ThreadKey
	)
	switch agentName {
	case supervisor.Name, "":
		store, key = s.supervisorCheckpoints, model.SupervisorThread(session)
	case notes.Name:
		store, key = s.notesCheckpoints, model.NotesThread(session)
	default:
		return nil, goerr.New("unknown agent", goerr.V("agent", agentName))
	}

	cp, err := store.Load(ctx, key)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load history", goerr.V("key", key))
	}
	return cp, nil
}
