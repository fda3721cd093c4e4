package model

import (
	"regexp"

	"github.com/m-mizutani/goerr/v2"
)

// notesThreadPrefix contains ':' which external thread IDs may not use, so a
// derived notes thread can never collide with an externally issued one.
const notesThreadPrefix = "notes:"

var identityPattern = regexp.MustCompile(`^[A-Za-z0-9._@-]{1,128}$`)

type UserID string
type ThreadID string

// SessionIdentity is the externally supplied identity of one conversation
type SessionIdentity struct {
	UserID   UserID   `json:"user_id"`
	ThreadID ThreadID `json:"thread_id"`
}

// Validate checks both IDs are present and use the allowed alphabet
func (s SessionIdentity) Validate() error {
	if s.UserID == "" {
		return goerr.New("user_id is required", goerr.T(ErrTagInvalidSessionIdentity))
	}
	if s.ThreadID == "" {
		return goerr.New("thread_id is required", goerr.T(ErrTagInvalidSessionIdentity))
	}
	if !identityPattern.MatchString(string(s.UserID)) {
		return goerr.New("invalid user_id", goerr.V("user_id", s.UserID), goerr.T(ErrTagInvalidSessionIdentity))
	}
	if !identityPattern.MatchString(string(s.ThreadID)) {
		return goerr.New("invalid thread_id", goerr.V("thread_id", s.ThreadID), goerr.T(ErrTagInvalidSessionIdentity))
	}
	return nil
}

// ThreadKey addresses one agent's checkpointed state
type ThreadKey struct {
	Namespace string `json:"namespace"`
	ThreadID  string `json:"thread_id"`
}

func (k ThreadKey) String() string {
	return k.Namespace + "/" + k.ThreadID
}

// SupervisorThread returns the supervisor's checkpoint key for the session
func SupervisorThread(s SessionIdentity) ThreadKey {
	return ThreadKey{
		Namespace: string(s.UserID),
		ThreadID:  string(s.ThreadID),
	}
}

// NotesThread returns the notes agent's checkpoint key for the session. The
// namespace stays the user so two users never share notes agent state.
func NotesThread(s SessionIdentity) ThreadKey {
	return ThreadKey{
		Namespace: string(s.UserID),
		ThreadID:  notesThreadPrefix + string(s.ThreadID),
	}
}
