package model

import (
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
)

type NoteID string

// NewNoteID generates a new unique NoteID
func NewNoteID() NoteID {
	return NoteID(uuid.New().String())
}

// NoteMetadata is stored alongside a note and used for filtering
type NoteMetadata struct {
	UserID UserID `firestore:"user_id" json:"user_id"`
}

// Note is one entry of the notes knowledge store
type Note struct {
	ID        NoteID             `firestore:"id" json:"id"`
	Text      string             `firestore:"text" json:"text"`
	Metadata  NoteMetadata       `firestore:"metadata" json:"metadata"`
	Embedding firestore.Vector32 `firestore:"embedding" json:"-"`
	CreatedAt time.Time          `firestore:"created_at" json:"created_at"`
	UpdatedAt time.Time          `firestore:"updated_at" json:"updated_at"`

	// Score is the similarity to the query, set only by searches
	Score float64 `firestore:"-" json:"score,omitempty"`
}

// NoteFilter restricts store queries to notes whose metadata matches
type NoteFilter struct {
	UserID UserID
}

// Match reports whether the note satisfies the filter
func (f NoteFilter) Match(note *Note) bool {
	return f.UserID == "" || note.Metadata.UserID == f.UserID
}
