package notes_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/donna/pkg/agent"
	"github.com/m-mizutani/donna/pkg/agent/agenttest"
	"github.com/m-mizutani/donna/pkg/agent/notes"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/donna/pkg/policy"
	"github.com/m-mizutani/donna/pkg/repository"
	notetool "github.com/m-mizutani/donna/pkg/tool/notes"
	"github.com/m-mizutani/gt"
)

func TestNotesAgentInvoke(t *testing.T) {
	ctx := context.Background()
	engine, err := policy.New(ctx)
	gt.NoError(t, err)

	gemini := agenttest.NotesModel()
	noteStore := repository.NewMemory()
	checkpoints := repository.NewMemory()
	tools := notetool.New(noteStore, gemini, engine, notetool.WithDimension(64)).Tools()

	a, err := notes.New(gemini, tools, checkpoints, agent.WithMaxIterations(4))
	gt.NoError(t, err)

	session := model.SessionIdentity{UserID: "005", ThreadID: "terminal"}
	result, err := a.Invoke(ctx, session, []*model.Message{model.NewUserMessage("Donna: create buy milk")})
	gt.NoError(t, err)
	gt.S(t, result.Final.Text).Contains("Note added")

	calls := gemini.Calls()
	gt.A(t, calls).Length(2)
	gt.S(t, calls[0].Config.SystemInstruction.Parts[0].Text).Contains("You are the Notes Agent")
	gt.A(t, calls[0].Config.Tools[0].FunctionDeclarations).Length(5)

	cp, err := checkpoints.Load(ctx, model.NotesThread(session))
	gt.NoError(t, err)
	gt.Equal(t, cp.Version, int64(1))

	list, err := noteStore.List(ctx, model.NoteFilter{UserID: "005"})
	gt.NoError(t, err)
	gt.A(t, list).Length(1)
	gt.Equal(t, list[0].Text, "buy milk")
}
