package model_test

import (
	"testing"

	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

func TestConversation(t *testing.T) {
	call := &model.ToolCall{ID: model.NewCallID(), Name: "delegate_to_notes"}
	u1 := model.NewUserMessage("hello")
	a1 := model.NewAssistantMessage("hi, how can I help?")
	u2 := model.NewUserMessage("remember to buy milk")
	a2 := model.NewAssistantMessage("", call)
	r2 := model.NewToolResultMessage(call, "Notes agent result: done", false)

	msgs := model.Conversation([]*model.Message{u1, a1, u2, a2, r2})
	gt.A(t, msgs).Length(3)
	gt.Equal(t, msgs[0].ID, u1.ID)
	gt.Equal(t, msgs[1].ID, a1.ID)
	gt.Equal(t, msgs[2].ID, u2.ID)

	t.Run("no user message", func(t *testing.T) {
		gt.A(t, model.Conversation([]*model.Message{a1})).Length(0)
	})
}

func TestAgentStateCheckpoint(t *testing.T) {
	key := model.ThreadKey{Namespace: "005", ThreadID: "terminal"}
	state := model.NewAgentState(key, nil)
	gt.Equal(t, state.Version, int64(0))

	msg := model.NewUserMessage("hello")
	state.Append(msg)
	gt.True(t, state.Contains(msg.ID))
	gt.False(t, state.Contains(model.NewMessageID()))

	cp := state.Checkpoint()
	gt.Equal(t, cp.Version, int64(1))
	gt.Equal(t, cp.Key(), key)
	gt.A(t, cp.Messages).Length(1)

	// snapshot must not alias the live state
	state.Append(model.NewAssistantMessage("hi"))
	gt.A(t, cp.Messages).Length(1)

	resumed := model.NewAgentState(key, cp)
	gt.Equal(t, resumed.Version, int64(1))
	gt.A(t, resumed.Messages).Length(1)
}

func TestKindOf(t *testing.T) {
	gt.Equal(t, model.KindOf(nil), "")
	gt.Equal(t, model.KindOf(goerr.New("x")), "internal")

	inner := goerr.New("deadline", goerr.T(model.ErrTagTimeout))
	wrapped := goerr.Wrap(inner, "tool failed", goerr.T(model.ErrTagToolExecutionFailed))
	gt.Equal(t, model.KindOf(wrapped), "timeout")
	gt.Equal(t, model.KindOf(goerr.New("x", goerr.T(model.ErrTagToolExecutionFailed))), "tool_execution_failed")
	gt.Equal(t, model.KindOf(goerr.New("aborted", goerr.T(model.ErrTagCanceled))), "canceled")
}
