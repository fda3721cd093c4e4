// Package agenttest provides deterministic stand-ins for the language model
// so the supervisor and notes agents can be driven end to end in tests.
package agenttest

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/donna/pkg/adapter"
	"google.golang.org/genai"
)

// SupervisorModel plays Donna with a few fixed intents:
//
//	"remember <x>"          -> delegate "create <x>"
//	"what do I need to <x>" -> delegate "search <x>"
//	"list my notes"         -> delegate "list"
//	"forget <id>"           -> delegate "delete <id>"
//
// Anything else is answered directly. After a tool result it relays the
// result text.
func SupervisorModel() *adapter.GeminiMock {
	return &adapter.GeminiMock{
		GenerateContentFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			if out, ok := lastFunctionResponse(contents); ok {
				return adapter.TextResponse(out), nil
			}

			text := lastText(contents)
			lower := strings.ToLower(text)
			switch {
			case strings.HasPrefix(lower, "remember "):
				return delegate("create " + text[len("remember "):]), nil
			case strings.HasPrefix(lower, "what do i need to "):
				return delegate("search " + strings.TrimSuffix(text[len("what do i need to "):], "?")), nil
			case lower == "list my notes":
				return delegate("list"), nil
			case strings.HasPrefix(lower, "forget "):
				return delegate("delete " + text[len("forget "):]), nil
			default:
				return adapter.TextResponse("Hello! How can I help you?"), nil
			}
		},
	}
}

func delegate(task string) *genai.GenerateContentResponse {
	return adapter.FunctionCallResponse(&genai.FunctionCall{
		Name: "delegate_to_notes",
		Args: map[string]any{"task": task},
	})
}

// NotesModel plays the notes agent. It reads the "Donna: <task>" message and
// issues the matching note tool call, then returns the tool output verbatim.
func NotesModel() *adapter.GeminiMock {
	return &adapter.GeminiMock{
		GenerateContentFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			if out, ok := lastFunctionResponse(contents); ok {
				return adapter.TextResponse(out), nil
			}

			task := strings.TrimPrefix(lastText(contents), "Donna: ")
			verb, arg, _ := strings.Cut(task, " ")
			switch verb {
			case "create":
				return call("create_note", map[string]any{"note": arg}), nil
			case "search":
				return call("read_note", map[string]any{"query": arg}), nil
			case "list":
				return call("get_all_notes", map[string]any{}), nil
			case "delete":
				return call("delete_note", map[string]any{"note_id": arg}), nil
			default:
				return adapter.TextResponse(fmt.Sprintf("unsupported task: %s", task)), nil
			}
		},
	}
}

func call(name string, args map[string]any) *genai.GenerateContentResponse {
	return adapter.FunctionCallResponse(&genai.FunctionCall{Name: name, Args: args})
}

func lastText(contents []*genai.Content) string {
	if len(contents) == 0 {
		return ""
	}
	var texts []string
	for _, part := range contents[len(contents)-1].Parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func lastFunctionResponse(contents []*genai.Content) (string, bool) {
	if len(contents) == 0 {
		return "", false
	}
	var outs []string
	for _, part := range contents[len(contents)-1].Parts {
		if fr := part.FunctionResponse; fr != nil {
			for _, key := range []string{"output", "error"} {
				if v, ok := fr.Response[key]; ok {
					outs = append(outs, fmt.Sprint(v))
				}
			}
		}
	}
	return strings.Join(outs, "\n"), len(outs) > 0
}
