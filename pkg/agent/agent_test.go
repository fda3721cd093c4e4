package agent_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/donna/pkg/adapter"
	"github.com/m-mizutani/donna/pkg/agent"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/donna/pkg/repository"
	"github.com/m-mizutani/donna/pkg/tool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

type weatherTool struct {
	calls []tool.Env
	err   error
}

func (w *weatherTool) Spec() *tool.Spec {
	return &tool.Spec{
		Name:        "get_weather",
		Description: "returns the weather of a city",
		Parameters: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"city": {Type: "string"}},
			Required:   []string{"city"},
		},
	}
}

func (w *weatherTool) Execute(ctx context.Context, env tool.Env, fc genai.FunctionCall) (string, error) {
	w.calls = append(w.calls, env)
	if w.err != nil {
		return "", w.err
	}
	return "sunny in " + fc.Args["city"].(string), nil
}

var session = model.SessionIdentity{UserID: "005", ThreadID: "terminal"}

func newAgent(t *testing.T, gemini adapter.Gemini, store *repository.Memory, tools []tool.Tool, opts ...agent.Option) *agent.Agent {
	t.Helper()
	registry, err := tool.New(tools...)
	gt.NoError(t, err)
	return agent.New("test", "You are a test agent.", gemini, registry, store, opts...)
}

// scripted returns the given responses in order and fails when exhausted
func scripted(t *testing.T, responses ...*genai.GenerateContentResponse) *adapter.GeminiMock {
	var n atomic.Int32
	return &adapter.GeminiMock{
		GenerateContentFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			i := int(n.Add(1)) - 1
			if i >= len(responses) {
				t.Errorf("unexpected model call #%d", i+1)
				return nil, goerr.New("no more responses")
			}
			return responses[i], nil
		},
	}
}

func TestInvokePlainAnswer(t *testing.T) {
	store := repository.NewMemory()
	gemini := scripted(t, adapter.TextResponse("Hello!"))
	a := newAgent(t, gemini, store, nil)
	key := model.SupervisorThread(session)

	result, err := a.Invoke(context.Background(), key, session, []*model.Message{model.NewUserMessage("hi")})
	gt.NoError(t, err)
	gt.Equal(t, result.Final.Text, "Hello!")
	gt.Equal(t, result.Version, int64(1))
	gt.A(t, result.Messages).Length(2)

	calls := gemini.Calls()
	gt.A(t, calls).Length(1)
	gt.Equal(t, calls[0].Config.SystemInstruction.Parts[0].Text, "You are a test agent.")

	cp, err := store.Load(context.Background(), key)
	gt.NoError(t, err)
	gt.Equal(t, cp.Version, int64(1))
	gt.Equal(t, cp.Turns, 1)
	gt.A(t, cp.Messages).Length(2)
}

func TestInvokeToolRoundTrip(t *testing.T) {
	store := repository.NewMemory()
	weather := &weatherTool{}
	gemini := scripted(t,
		adapter.FunctionCallResponse(
			&genai.FunctionCall{Name: "get_weather", Args: map[string]any{"city": "Tokyo"}},
			&genai.FunctionCall{Name: "get_weather", Args: map[string]any{"city": "Paris"}},
		),
		adapter.TextResponse("Tokyo and Paris are sunny."),
	)
	a := newAgent(t, gemini, store, []tool.Tool{weather})

	result, err := a.Invoke(context.Background(), model.SupervisorThread(session), session,
		[]*model.Message{model.NewUserMessage("weather?")})
	gt.NoError(t, err)
	gt.Equal(t, result.Final.Text, "Tokyo and Paris are sunny.")

	// user, assistant(calls), result, result, assistant
	msgs := result.Messages
	gt.A(t, msgs).Length(5)
	gt.A(t, msgs[1].ToolCalls).Length(2)
	gt.Equal(t, msgs[2].ToolResult.CallID, msgs[1].ToolCalls[0].ID)
	gt.Equal(t, msgs[2].ToolResult.Text, "sunny in Tokyo")
	gt.Equal(t, msgs[3].ToolResult.CallID, msgs[1].ToolCalls[1].ID)
	gt.S(t, msgs[1].ToolCalls[0].ID).Contains("call_")

	// identity reaches the tool explicitly
	gt.A(t, weather.calls).Length(2)
	gt.Equal(t, weather.calls[0].Session, session)
	gt.A(t, weather.calls[1].Transcript).Length(3)

	// second model call sees both responses merged into one content
	second := gemini.Calls()[1].Contents
	gt.A(t, second).Length(3)
	gt.Equal(t, second[1].Role, string(genai.RoleModel))
	gt.A(t, second[2].Parts).Length(2)
	gt.Equal(t, second[2].Parts[0].FunctionResponse.Name, "get_weather")
	gt.Equal(t, second[2].Parts[0].FunctionResponse.Response["output"], any("sunny in Tokyo"))
}

func TestToolErrorBecomesResult(t *testing.T) {
	weather := &weatherTool{err: goerr.New("backend down")}
	gemini := scripted(t,
		adapter.FunctionCallResponse(&genai.FunctionCall{Name: "get_weather", Args: map[string]any{"city": "Tokyo"}}),
		adapter.FunctionCallResponse(&genai.FunctionCall{Name: "no_such_tool"}),
		adapter.TextResponse("Sorry, I could not check."),
	)
	a := newAgent(t, gemini, repository.NewMemory(), []tool.Tool{weather})

	result, err := a.Invoke(context.Background(), model.SupervisorThread(session), session,
		[]*model.Message{model.NewUserMessage("weather?")})
	gt.NoError(t, err)
	gt.Equal(t, result.Final.Text, "Sorry, I could not check.")

	failed := result.Messages[2].ToolResult
	gt.True(t, failed.IsError)
	gt.S(t, failed.Text).Contains("tool_execution_failed: ")
	gt.S(t, failed.Text).Contains("backend down")

	unknown := result.Messages[4].ToolResult
	gt.True(t, unknown.IsError)
	gt.S(t, unknown.Text).Contains("tool not found")

	third := gemini.Calls()[2].Contents
	resp := third[2].Parts[0].FunctionResponse
	gt.Map(t, resp.Response).HasKey("error")
}

func TestIterationLimit(t *testing.T) {
	store := repository.NewMemory()
	gemini := &adapter.GeminiMock{
		GenerateContentFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return adapter.FunctionCallResponse(&genai.FunctionCall{Name: "get_weather", Args: map[string]any{"city": "Tokyo"}}), nil
		},
	}
	a := newAgent(t, gemini, store, []tool.Tool{&weatherTool{}}, agent.WithMaxIterations(3))
	key := model.SupervisorThread(session)

	_, err := a.Invoke(context.Background(), key, session, []*model.Message{model.NewUserMessage("loop")})
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, model.ErrTagIterationLimit))
	gt.A(t, gemini.Calls()).Length(3)

	cp, err := store.Load(context.Background(), key)
	gt.NoError(t, err)
	gt.Nil(t, cp)
}

func TestModelFailureKeepsCheckpoint(t *testing.T) {
	store := repository.NewMemory()
	key := model.SupervisorThread(session)

	ok := newAgent(t, scripted(t, adapter.TextResponse("first")), store, nil)
	_, err := ok.Invoke(context.Background(), key, session, []*model.Message{model.NewUserMessage("one")})
	gt.NoError(t, err)

	broken := newAgent(t, &adapter.GeminiMock{
		GenerateContentFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return nil, goerr.New("503 service unavailable")
		},
	}, store, nil)
	_, err = broken.Invoke(context.Background(), key, session, []*model.Message{model.NewUserMessage("two")})
	gt.Error(t, err)
	gt.Equal(t, model.KindOf(err), "model_unavailable")

	empty := newAgent(t, scripted(t, &genai.GenerateContentResponse{}), store, nil)
	_, err = empty.Invoke(context.Background(), key, session, []*model.Message{model.NewUserMessage("three")})
	gt.Equal(t, model.KindOf(err), "model_unavailable")

	cp, err := store.Load(context.Background(), key)
	gt.NoError(t, err)
	gt.Equal(t, cp.Version, int64(1))
	gt.A(t, cp.Messages).Length(2)
}

func TestModelTimeout(t *testing.T) {
	gemini := &adapter.GeminiMock{
		GenerateContentFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	a := newAgent(t, gemini, repository.NewMemory(), nil, agent.WithModelTimeout(10*time.Millisecond))

	_, err := a.Invoke(context.Background(), model.SupervisorThread(session), session,
		[]*model.Message{model.NewUserMessage("hi")})
	gt.Error(t, err)
	gt.Equal(t, model.KindOf(err), "timeout")
}

func TestCallerCancellation(t *testing.T) {
	key := model.SupervisorThread(session)

	t.Run("during model call", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		gemini := &adapter.GeminiMock{
			GenerateContentFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				cancel()
				<-ctx.Done()
				return nil, ctx.Err()
			},
		}
		store := repository.NewMemory()
		a := newAgent(t, gemini, store, nil)

		_, err := a.Invoke(ctx, key, session, []*model.Message{model.NewUserMessage("hi")})
		gt.Error(t, err)
		gt.Equal(t, model.KindOf(err), "canceled")
		gt.False(t, goerr.HasTag(err, model.ErrTagModelUnavailable))

		cp, err := store.Load(context.Background(), key)
		gt.NoError(t, err)
		gt.Nil(t, cp)
	})

	t.Run("before the turn starts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		a := newAgent(t, scripted(t), repository.NewMemory(), nil)

		_, err := a.Invoke(ctx, key, session, []*model.Message{model.NewUserMessage("hi")})
		gt.Error(t, err)
		gt.Equal(t, model.KindOf(err), "canceled")
		gt.False(t, goerr.HasTag(err, model.ErrTagTimeout))
	})
}

func TestInvalidSession(t *testing.T) {
	a := newAgent(t, scripted(t), repository.NewMemory(), nil)
	_, err := a.Invoke(context.Background(), model.ThreadKey{}, model.SessionIdentity{UserID: "005"}, nil)
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, model.ErrTagInvalidSessionIdentity))
}

func TestResumeAndSkipKnownInputs(t *testing.T) {
	store := repository.NewMemory()
	key := model.SupervisorThread(session)
	gemini := scripted(t, adapter.TextResponse("noted"), adapter.TextResponse("you said hello"))
	a := newAgent(t, gemini, store, nil)

	first := model.NewUserMessage("hello")
	r1, err := a.Invoke(context.Background(), key, session, []*model.Message{first})
	gt.NoError(t, err)

	// re-sending the first message must not duplicate it
	second := model.NewUserMessage("what did I say?")
	r2, err := a.Invoke(context.Background(), key, session, []*model.Message{first, second})
	gt.NoError(t, err)
	gt.Equal(t, r2.Version, int64(2))
	gt.A(t, r2.Messages).Length(4)
	gt.Equal(t, r2.Messages[0].ID, r1.Messages[0].ID)
	gt.Equal(t, r2.Messages[1].ID, r1.Messages[1].ID)

	contents := gemini.Calls()[1].Contents
	gt.A(t, contents).Length(3)
	gt.Equal(t, contents[0].Parts[0].Text, "hello")
}

func TestSameThreadIsSerialized(t *testing.T) {
	store := repository.NewMemory()
	var inFlight, maxInFlight atomic.Int32
	gemini := &adapter.GeminiMock{
		GenerateContentFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				cur := maxInFlight.Load()
				if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			return adapter.TextResponse("ok"), nil
		},
	}
	a := newAgent(t, gemini, store, nil)
	key := model.SupervisorThread(session)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Invoke(context.Background(), key, session, []*model.Message{model.NewUserMessage("hi")})
			gt.NoError(t, err)
		}()
	}
	wg.Wait()

	gt.Equal(t, maxInFlight.Load(), int32(1))
	cp, err := store.Load(context.Background(), key)
	gt.NoError(t, err)
	gt.Equal(t, cp.Version, int64(4))
	gt.A(t, cp.Messages).Length(8)
}
