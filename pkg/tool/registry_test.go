package tool_test

import (
	"context"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/donna/pkg/tool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

type echoTool struct {
	name string
	err  error
}

func (e *echoTool) Spec() *tool.Spec {
	return &tool.Spec{
		Name:        e.name,
		Description: "echo the message",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"message": {Type: "string", Description: "text to echo"},
				"times":   {Type: "integer"},
				"tags":    {Type: "array", Items: &jsonschema.Schema{Type: "string", Enum: []any{"a", "b"}}},
			},
			Required: []string{"message"},
		},
	}
}

func (e *echoTool) Execute(ctx context.Context, env tool.Env, fc genai.FunctionCall) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	var input struct {
		Message string `json:"message"`
	}
	if err := tool.DecodeArgs(fc.Args, &input); err != nil {
		return "", err
	}
	return string(env.Session.UserID) + ":" + input.Message, nil
}

func TestRegistrySpecs(t *testing.T) {
	r, err := tool.New(&echoTool{name: "echo"}, &echoTool{name: "echo2"})
	gt.NoError(t, err)

	specs := r.Specs()
	gt.A(t, specs).Length(1)
	decls := specs[0].FunctionDeclarations
	gt.A(t, decls).Length(2)
	gt.Equal(t, decls[0].Name, "echo")

	params := decls[0].Parameters
	gt.Equal(t, params.Type, genai.TypeObject)
	gt.Equal(t, params.Properties["message"].Type, genai.TypeString)
	gt.Equal(t, params.Properties["times"].Type, genai.TypeInteger)
	gt.Equal(t, params.Properties["tags"].Items.Enum, []string{"a", "b"})
	gt.Equal(t, params.Required, []string{"message"})

	gt.A(t, r.Tools()).Length(2)
}

func TestRegistryDuplicateName(t *testing.T) {
	_, err := tool.New(&echoTool{name: "echo"}, &echoTool{name: "echo"})
	gt.Error(t, err)
}

func TestRegistryExecute(t *testing.T) {
	r, err := tool.New(&echoTool{name: "echo"}, &echoTool{name: "broken", err: goerr.New("boom")})
	gt.NoError(t, err)

	ctx := context.Background()
	env := tool.Env{Session: model.SessionIdentity{UserID: "005", ThreadID: "terminal"}}

	out, err := r.Execute(ctx, env, genai.FunctionCall{Name: "echo", Args: map[string]any{"message": "hi"}})
	gt.NoError(t, err)
	gt.Equal(t, out, "005:hi")

	_, err = r.Execute(ctx, env, genai.FunctionCall{Name: "missing"})
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, model.ErrTagToolExecutionFailed))

	_, err = r.Execute(ctx, env, genai.FunctionCall{Name: "broken"})
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, model.ErrTagToolExecutionFailed))

	_, err = r.Execute(ctx, env, genai.FunctionCall{Name: "echo", Args: map[string]any{"message": 3}})
	gt.Error(t, err)
}

func TestRegistryEmpty(t *testing.T) {
	r, err := tool.New()
	gt.NoError(t, err)
	gt.A(t, r.Specs()).Length(0)
}
