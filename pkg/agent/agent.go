package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m-mizutani/donna/pkg/adapter"
	"github.com/m-mizutani/donna/pkg/interfaces"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/donna/pkg/tool"
	"github.com/m-mizutani/donna/pkg/utils/logging"
	"github.com/m-mizutani/donna/pkg/utils/tracing"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

const (
	DefaultMaxIterations = 16
	DefaultModelTimeout  = 60 * time.Second
)

// Agent is the tool calling loop shared by the supervisor and the notes
// agent. It alternates between asking the model and executing the tools the
// model requested until the model answers with a plain message.
type Agent struct {
	name          string
	systemPrompt  string
	maxIterations int
	modelTimeout  time.Duration

	gemini   adapter.Gemini
	registry *tool.Registry
	store    interfaces.CheckpointStore
	locks    *keyedMutex
}

// Option is a functional option for Agent
type Option func(*Agent)

// WithMaxIterations bounds the model calls of one turn
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithModelTimeout bounds each model call
func WithModelTimeout(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.modelTimeout = d
		}
	}
}

// WithSystemPrompt replaces the system prompt
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		if prompt != "" {
			a.systemPrompt = prompt
		}
	}
}

// New creates an agent. The registry may hold no tools.
func New(name, systemPrompt string, gemini adapter.Gemini, registry *tool.Registry, store interfaces.CheckpointStore, opts ...Option) *Agent {
	a := &Agent{
		name:          name,
		systemPrompt:  systemPrompt,
		maxIterations: DefaultMaxIterations,
		modelTimeout:  DefaultModelTimeout,
		gemini:        gemini,
		registry:      registry,
		store:         store,
		locks:         newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) Name() string {
	return a.name
}

// Result is the outcome of one completed turn
type Result struct {
	Final *model.Message
	// Messages is the whole conversation after the turn
	Messages []*model.Message
	Version  int64
}

// Invoke runs one turn on the thread key. Inputs already present in the
// thread (by message ID) are skipped. The checkpoint is written only when the
// turn completes; any failure leaves the previous checkpoint in place.
func (a *Agent) Invoke(ctx context.Context, key model.ThreadKey, session model.SessionIdentity, inputs []*model.Message) (result *Result, err error) {
	if err := session.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "agent.invoke",
		tracing.String("agent", a.name),
		tracing.String("namespace", key.Namespace),
		tracing.String("thread_id", key.ThreadID),
	)
	defer func() { tracing.End(span, err) }()

	ctx = logging.WithAttrs(ctx, slog.String("agent", a.name), slog.String("thread", key.String()))
	logger := logging.From(ctx)

	unlock := a.locks.Lock(key)
	defer unlock()

	cp, err := a.store.Load(ctx, key)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load checkpoint", goerr.V("key", key))
	}
	state := model.NewAgentState(key, cp)

	var appended int
	for _, msg := range inputs {
		if state.Contains(msg.ID) {
			continue
		}
		state.Append(msg)
		appended++
	}
	logger.Debug("turn started", "version", state.Version, "messages", len(state.Messages), "appended", appended)

	final, err := a.Run(ctx, state, tool.Env{Session: session})
	if err != nil {
		logger.Warn("turn aborted", "error", err, "kind", model.KindOf(err))
		return nil, err
	}

	state.Turns++
	next := state.Checkpoint()
	if err := a.store.Save(ctx, next); err != nil {
		return nil, goerr.Wrap(err, "failed to save checkpoint", goerr.V("key", key), goerr.V("version", next.Version))
	}
	state.Version = next.Version
	logger.Debug("turn completed", "version", state.Version, "messages", len(state.Messages))

	return &Result{
		Final:    final,
		Messages: state.Snapshot(),
		Version:  state.Version,
	}, nil
}

// Run drives the loop on state until the model answers without tool calls.
// Tool failures are reported back to the model as error results; model
// failures and exhausting the iteration budget abort the turn.
func (a *Agent) Run(ctx context.Context, state *model.AgentState, env tool.Env) (*model.Message, error) {
	logger := logging.From(ctx)

	for i := 0; i < a.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			tag := model.ErrTagTimeout
			if errors.Is(err, context.Canceled) {
				tag = model.ErrTagCanceled
			}
			return nil, goerr.Wrap(err, "turn interrupted", goerr.T(tag))
		}

		reply, err := a.reason(ctx, state)
		if err != nil {
			return nil, err
		}
		state.Append(reply)

		if !reply.HasToolCalls() {
			return reply, nil
		}

		for _, call := range reply.ToolCalls {
			env.Transcript = state.Snapshot()
			logger.Debug("tool call", "tool", call.Name, "call_id", call.ID, "args", call.Args)
			state.Append(a.execute(ctx, env, call))
		}
	}

	return nil, goerr.New("iteration limit exceeded",
		goerr.V("agent", a.name),
		goerr.V("max_iterations", a.maxIterations),
		goerr.T(model.ErrTagIterationLimit))
}

func (a *Agent) reason(ctx context.Context, state *model.AgentState) (msg *model.Message, err error) {
	ctx, span := tracing.StartSpan(ctx, "agent.reason",
		tracing.String("agent", a.name),
		tracing.Int("messages", len(state.Messages)),
	)
	defer func() { tracing.End(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, a.modelTimeout)
	defer cancel()

	thinkingBudget := int32(0)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(a.systemPrompt, ""),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
		Tools: a.registry.Specs(),
	}

	resp, err := a.gemini.GenerateContent(ctx, toContents(state.Messages), config)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
			return nil, goerr.Wrap(err, "model call canceled", goerr.T(model.ErrTagCanceled))
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, goerr.Wrap(err, "model call timed out", goerr.V("timeout", a.modelTimeout), goerr.T(model.ErrTagTimeout))
		default:
			return nil, goerr.Wrap(err, "failed to generate content", goerr.T(model.ErrTagModelUnavailable))
		}
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, goerr.New("empty response from Gemini", goerr.T(model.ErrTagModelUnavailable))
	}

	return fromContent(resp.Candidates[0].Content), nil
}

// execute runs one tool call. It never fails: an error becomes an error result
// whose text starts with the error kind.
func (a *Agent) execute(ctx context.Context, env tool.Env, call *model.ToolCall) *model.Message {
	ctx, span := tracing.StartSpan(ctx, "agent.tool",
		tracing.String("agent", a.name),
		tracing.String("tool", call.Name),
		tracing.String("call_id", call.ID),
	)

	out, err := a.registry.Execute(ctx, env, genai.FunctionCall{
		ID:   call.ID,
		Name: call.Name,
		Args: call.Args,
	})
	tracing.End(span, err)

	if err != nil {
		logging.From(ctx).Warn("tool failed", "tool", call.Name, "error", err)
		return model.NewToolResultMessage(call, fmt.Sprintf("%s: %s", model.KindOf(err), err.Error()), true)
	}
	return model.NewToolResultMessage(call, out, false)
}
