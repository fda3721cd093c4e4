package model

import (
	"time"

	"github.com/google/uuid"
)

type MessageID string

// NewMessageID generates a new unique MessageID
func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

// NewCallID generates an identifier for a tool call that arrived without one
func NewCallID() string {
	return "call_" + uuid.New().String()
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Message is one immutable entry of a conversation
type Message struct {
	ID         MessageID   `json:"id"`
	Role       Role        `json:"role"`
	Text       string      `json:"text,omitempty"`
	ToolCalls  []*ToolCall `json:"tool_calls,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ToolCall is a tool invocation requested by the model
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult carries the text returned by a tool, correlated with a ToolCall by CallID
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Text    string `json:"text"`
	IsError bool   `json:"is_error,omitempty"`
}

// NewUserMessage creates a user message with a fresh ID
func NewUserMessage(text string) *Message {
	return newMessage(RoleUser, text)
}

// NewAssistantMessage creates an assistant message with optional tool calls
func NewAssistantMessage(text string, calls ...*ToolCall) *Message {
	msg := newMessage(RoleAssistant, text)
	msg.ToolCalls = calls
	return msg
}

// NewSystemMessage creates a system message
func NewSystemMessage(text string) *Message {
	return newMessage(RoleSystem, text)
}

// NewToolResultMessage creates a message answering the given call
func NewToolResultMessage(call *ToolCall, text string, isError bool) *Message {
	msg := newMessage(RoleTool, "")
	msg.ToolResult = &ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Text:    text,
		IsError: isError,
	}
	return msg
}

func newMessage(role Role, text string) *Message {
	return &Message{
		ID:        NewMessageID(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// HasToolCalls reports whether the message requests any tool execution
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Conversation returns the user and assistant text messages up to and
// including the last user message. Tool calls and tool results are left out.
func Conversation(messages []*Message) []*Message {
	last := -1
	for i, msg := range messages {
		if msg.Role == RoleUser {
			last = i
		}
	}

	var out []*Message
	for _, msg := range messages[:last+1] {
		switch msg.Role {
		case RoleUser:
			out = append(out, msg)
		case RoleAssistant:
			if msg.Text != "" && !msg.HasToolCalls() {
				out = append(out, msg)
			}
		}
	}
	return out
}
