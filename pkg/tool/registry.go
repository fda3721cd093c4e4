package tool

import (
	"context"

	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// Registry manages the static set of tools of one agent
type Registry struct {
	tools map[string]Tool
	order []Tool
	spec  *genai.Tool
}

// New creates a registry. Tool names must be unique and their schemas
// convertible.
func New(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools: make(map[string]Tool, len(tools)),
	}

	var decls []*genai.FunctionDeclaration
	for _, t := range tools {
		spec := t.Spec()
		if _, exists := r.tools[spec.Name]; exists {
			return nil, goerr.New("duplicate tool name", goerr.V("name", spec.Name))
		}

		decl, err := spec.Declaration()
		if err != nil {
			return nil, goerr.Wrap(err, "failed to build function declaration", goerr.V("name", spec.Name))
		}

		r.tools[spec.Name] = t
		r.order = append(r.order, t)
		decls = append(decls, decl)
	}

	if len(decls) > 0 {
		r.spec = &genai.Tool{FunctionDeclarations: decls}
	}
	return r, nil
}

// Specs returns the tool declarations for Gemini function calling
func (r *Registry) Specs() []*genai.Tool {
	if r.spec == nil {
		return nil
	}
	return []*genai.Tool{r.spec}
}

// Tools returns registered tools in registration order
func (r *Registry) Tools() []Tool {
	return r.order
}

// Execute runs the tool named by the function call. Every failure carries
// ErrTagToolExecutionFailed.
func (r *Registry) Execute(ctx context.Context, env Env, fc genai.FunctionCall) (string, error) {
	t, ok := r.tools[fc.Name]
	if !ok {
		return "", goerr.New("tool not found", goerr.V("name", fc.Name), goerr.T(model.ErrTagToolExecutionFailed))
	}

	out, err := t.Execute(ctx, env, fc)
	if err != nil {
		return "", goerr.Wrap(err, "tool execution failed", goerr.V("name", fc.Name), goerr.T(model.ErrTagToolExecutionFailed))
	}
	return out, nil
}
