package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/donna/pkg/tool"
	"github.com/m-mizutani/donna/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/genai"
)

// DefaultThreadID is the thread recorded for calls arriving over MCP
const DefaultThreadID = "mcp"

// Server exposes note tools to MCP clients on behalf of one fixed user
type Server struct {
	server   *mcp.Server
	registry *tool.Registry
	session  model.SessionIdentity
}

type ServerOption func(*serverConfig)

type serverConfig struct {
	name    string
	version string
}

// WithImplementation sets the name and version announced to clients
func WithImplementation(name, version string) ServerOption {
	return func(c *serverConfig) {
		c.name = name
		c.version = version
	}
}

// NewServer registers every tool with the MCP server. Calls run as session;
// an invalid identity is rejected here rather than on the first call.
func NewServer(tools []tool.Tool, session model.SessionIdentity, opts ...ServerOption) (*Server, error) {
	if err := session.Validate(); err != nil {
		return nil, err
	}

	cfg := &serverConfig{name: "donna", version: "0.1.0"}
	for _, opt := range opts {
		opt(cfg)
	}

	registry, err := tool.New(tools...)
	if err != nil {
		return nil, err
	}

	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.name,
			Version: cfg.version,
		}, nil),
		registry: registry,
		session:  session,
	}

	for _, t := range registry.Tools() {
		spec := t.Spec()
		s.server.AddTool(&mcp.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.Parameters,
		}, s.handler(spec.Name))
	}

	return s, nil
}

func (s *Server) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := map[string]any{}
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return errorResult(goerr.Wrap(err, "invalid tool arguments", goerr.V("tool", name))), nil
			}
		}

		logger := logging.From(ctx)
		logger.Debug("mcp tool call", "tool", name, "user_id", s.session.UserID)

		output, err := s.registry.Execute(ctx, tool.Env{Session: s.session}, genai.FunctionCall{
			Name: name,
			Args: args,
		})
		if err != nil {
			logger.Warn("mcp tool call failed", "tool", name, "error", err)
			return errorResult(err), nil
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: output}},
		}, nil
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%s: %s", model.KindOf(err), err.Error())},
		},
	}
}

// Run serves over stdin/stdout until ctx is cancelled or the client disconnects
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "mcp server stopped")
	}
	return nil
}

// Connect serves a single session over t
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	session, err := s.server.Connect(ctx, t, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect mcp transport")
	}
	return session, nil
}
