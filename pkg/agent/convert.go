package agent

import (
	"strings"

	"github.com/m-mizutani/donna/pkg/model"
	"google.golang.org/genai"
)

// toContents converts a conversation to Gemini contents. Consecutive tool
// results are merged into a single user content as Gemini expects all
// responses to one model turn together. Call IDs stay on our side: the model
// correlates responses by order and name.
func toContents(messages []*model.Message) []*genai.Content {
	var contents []*genai.Content
	var pending []*genai.Part

	flush := func() {
		if len(pending) > 0 {
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: pending})
			pending = nil
		}
	}

	for _, msg := range messages {
		if msg.Role == model.RoleTool && msg.ToolResult != nil {
			pending = append(pending, &genai.Part{FunctionResponse: toFunctionResponse(msg.ToolResult)})
			continue
		}
		flush()

		switch msg.Role {
		case model.RoleAssistant:
			var parts []*genai.Part
			if msg.Text != "" {
				parts = append(parts, &genai.Part{Text: msg.Text})
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					Name: call.Name,
					Args: call.Args,
				}})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}

		default:
			if msg.Text != "" {
				contents = append(contents, genai.NewContentFromText(msg.Text, genai.RoleUser))
			}
		}
	}
	flush()

	return contents
}

func toFunctionResponse(result *model.ToolResult) *genai.FunctionResponse {
	key := "output"
	if result.IsError {
		key = "error"
	}
	return &genai.FunctionResponse{
		Name:     result.Name,
		Response: map[string]any{key: result.Text},
	}
}

// fromContent converts a model reply to an assistant message. Calls arriving
// without an ID get one assigned.
func fromContent(content *genai.Content) *model.Message {
	var texts []string
	var calls []*model.ToolCall

	for _, part := range content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
		if fc := part.FunctionCall; fc != nil {
			id := fc.ID
			if id == "" {
				id = model.NewCallID()
			}
			calls = append(calls, &model.ToolCall{
				ID:   id,
				Name: fc.Name,
				Args: fc.Args,
			})
		}
	}

	return model.NewAssistantMessage(strings.Join(texts, "\n"), calls...)
}
