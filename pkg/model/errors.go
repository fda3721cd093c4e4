package model

import (
	"github.com/m-mizutani/goerr/v2"
)

// Error kinds are attached as goerr tags so callers can branch on the kind no
// matter how deeply the error was wrapped.
var (
	ErrTagModelUnavailable       = goerr.NewTag("model_unavailable")
	ErrTagToolExecutionFailed    = goerr.NewTag("tool_execution_failed")
	ErrTagPermissionDenied       = goerr.NewTag("permission_denied")
	ErrTagTimeout                = goerr.NewTag("timeout")
	ErrTagCanceled               = goerr.NewTag("canceled")
	ErrTagInvalidSessionIdentity = goerr.NewTag("invalid_session_identity")
	ErrTagNotFound               = goerr.NewTag("not_found")
	ErrTagConflict               = goerr.NewTag("conflict")
	ErrTagIterationLimit         = goerr.NewTag("iteration_limit")
)

// KindOf returns the most specific error kind attached to err, or "internal"
// when none is attached. A timeout wrapped into a tool failure reports as
// "timeout".
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case goerr.HasTag(err, ErrTagInvalidSessionIdentity):
		return "invalid_session_identity"
	case goerr.HasTag(err, ErrTagPermissionDenied):
		return "permission_denied"
	case goerr.HasTag(err, ErrTagCanceled):
		return "canceled"
	case goerr.HasTag(err, ErrTagTimeout):
		return "timeout"
	case goerr.HasTag(err, ErrTagNotFound):
		return "not_found"
	case goerr.HasTag(err, ErrTagConflict):
		return "conflict"
	case goerr.HasTag(err, ErrTagIterationLimit):
		return "iteration_limit"
	case goerr.HasTag(err, ErrTagModelUnavailable):
		return "model_unavailable"
	case goerr.HasTag(err, ErrTagToolExecutionFailed):
		return "tool_execution_failed"
	default:
		return "internal"
	}
}
