package tool

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/donna/pkg/model"
	"google.golang.org/genai"
)

// Env carries the caller's identity and conversation into a tool call. There
// is no process wide "current user"; a tool only ever sees the Env it is given.
type Env struct {
	Session model.SessionIdentity
	// Transcript is the calling agent's conversation so far, read-only
	Transcript []*model.Message
}

// Spec declares a tool once. It is converted to a Gemini function declaration
// and served as-is as an MCP input schema.
type Spec struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// Tool represents a function that can be called by the LLM
type Tool interface {
	// Spec returns the tool specification
	Spec() *Spec

	// Execute runs the tool and returns the text handed back to the model
	Execute(ctx context.Context, env Env, fc genai.FunctionCall) (string, error)
}

// Declaration converts the tool description into a Gemini function declaration
func (s *Spec) Declaration() (*genai.FunctionDeclaration, error) {
	params, err := convertJSONSchemaToGenai(s.Parameters)
	if err != nil {
		return nil, err
	}
	return &genai.FunctionDeclaration{
		Name:        s.Name,
		Description: s.Description,
		Parameters:  params,
	}, nil
}
