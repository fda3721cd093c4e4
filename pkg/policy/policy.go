package policy

import (
	"context"
	_ "embed"

	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/donna/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

//go:embed notes.rego
var defaultNotesPolicy string

const notesQuery = "data.donna.notes.allow"

// Note operations checked by the policy
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionList   Action = "list"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Input is the document evaluated by the notes policy
type Input struct {
	Action Action
	UserID model.UserID
	NoteID model.NoteID
	// Owner is the user id stored on the note, empty for a fresh note
	Owner model.UserID
}

func (x Input) document() map[string]any {
	return map[string]any{
		"action":  string(x.Action),
		"user_id": string(x.UserID),
		"note": map[string]any{
			"id":    string(x.NoteID),
			"owner": string(x.Owner),
		},
	}
}

// regoPrintHook forwards Rego print() statements to the context logger
type regoPrintHook struct {
	ctx context.Context
}

func (h *regoPrintHook) Print(_ print.Context, message string) error {
	logging.From(h.ctx).Debug("rego print", "message", message)
	return nil
}

// Engine evaluates the notes authorization policy
type Engine struct {
	query *rego.PreparedEvalQuery
}

// New prepares the built-in notes policy
func New(ctx context.Context) (*Engine, error) {
	return newEngine(ctx, []func(*rego.Rego){rego.Module("notes.rego", defaultNotesPolicy)})
}

// NewFromDir prepares the policy from the .rego files in dir, replacing the
// built-in one. The files must define data.donna.notes.allow.
func NewFromDir(ctx context.Context, dir string) (*Engine, error) {
	modules, err := loadModules(dir)
	if err != nil {
		return nil, err
	}
	if len(modules) == 0 {
		return nil, goerr.New("no policy file found", goerr.V("dir", dir))
	}
	return newEngine(ctx, modules)
}

func newEngine(ctx context.Context, modules []func(*rego.Rego)) (*Engine, error) {
	query, err := prepareQuery(ctx, modules, notesQuery)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare notes policy")
	}
	return &Engine{query: query}, nil
}

// Allowed evaluates the policy for input
func (e *Engine) Allowed(ctx context.Context, input Input) (bool, error) {
	rs, err := e.query.Eval(ctx,
		rego.EvalInput(input.document()),
		rego.EvalPrintHook(&regoPrintHook{ctx: ctx}),
	)
	if err != nil {
		return false, goerr.Wrap(err, "failed to evaluate notes policy", goerr.V("action", input.Action))
	}
	return rs.Allowed(), nil
}

// Authorize fails with ErrTagPermissionDenied unless the policy allows input
func (e *Engine) Authorize(ctx context.Context, input Input) error {
	ok, err := e.Allowed(ctx, input)
	if err != nil {
		return err
	}
	if !ok {
		return goerr.New("permission denied",
			goerr.V("action", input.Action),
			goerr.V("user_id", input.UserID),
			goerr.V("note_id", input.NoteID),
			goerr.T(model.ErrTagPermissionDenied))
	}
	return nil
}
