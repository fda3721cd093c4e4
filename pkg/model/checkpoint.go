package model

import (
	"time"
)

// AgentState is the checkpointable state of one agent thread. It only grows
// through Append.
type AgentState struct {
	Key      ThreadKey
	Messages []*Message
	Version  int64
	Turns    int
}

// NewAgentState builds the state for key from a stored checkpoint, or an empty
// state when cp is nil.
func NewAgentState(key ThreadKey, cp *Checkpoint) *AgentState {
	state := &AgentState{Key: key}
	if cp != nil {
		state.Messages = append(state.Messages, cp.Messages...)
		state.Version = cp.Version
		state.Turns = cp.Turns
	}
	return state
}

// Append adds messages to the end of the conversation
func (s *AgentState) Append(msgs ...*Message) {
	s.Messages = append(s.Messages, msgs...)
}

// Contains reports whether a message with the given ID is already present
func (s *AgentState) Contains(id MessageID) bool {
	for _, msg := range s.Messages {
		if msg.ID == id {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the message sequence
func (s *AgentState) Snapshot() []*Message {
	out := make([]*Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// Checkpoint returns the next checkpoint to be written for this state
func (s *AgentState) Checkpoint() *Checkpoint {
	return &Checkpoint{
		Namespace: s.Key.Namespace,
		ThreadID:  s.Key.ThreadID,
		Version:   s.Version + 1,
		Messages:  s.Snapshot(),
		Turns:     s.Turns,
		UpdatedAt: time.Now(),
	}
}

// Checkpoint is a versioned snapshot of an AgentState. Version starts at 1 and
// increases by one per write.
type Checkpoint struct {
	Namespace string     `json:"namespace"`
	ThreadID  string     `json:"thread_id"`
	Version   int64      `json:"version"`
	Messages  []*Message `json:"messages"`
	Turns     int        `json:"turns"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Key returns the thread key of the checkpoint
func (c *Checkpoint) Key() ThreadKey {
	return ThreadKey{Namespace: c.Namespace, ThreadID: c.ThreadID}
}
