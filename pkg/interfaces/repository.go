package interfaces

import (
	"context"

	"github.com/m-mizutani/donna/pkg/model"
)

// NoteStore persists notes and answers similarity queries. Implementations
// serialize writes to the same note id.
type NoteStore interface {
	// Insert stores a new note; the store assigns ID and timestamps when empty
	Insert(ctx context.Context, note *model.Note) (*model.Note, error)

	// Get retrieves a note by id. A missing note fails with ErrTagNotFound.
	Get(ctx context.Context, id model.NoteID) (*model.Note, error)

	// List enumerates notes matching filter ordered by creation time
	List(ctx context.Context, filter model.NoteFilter) ([]*model.Note, error)

	// Search returns up to k notes matching filter, most similar first
	Search(ctx context.Context, embedding []float32, k int, filter model.NoteFilter) ([]*model.Note, error)

	// Update atomically reads the note (nil when absent), lets fn decide the
	// new content and stores it. fn returning an error aborts the write.
	Update(ctx context.Context, id model.NoteID, fn func(current *model.Note) (*model.Note, error)) (*model.Note, error)

	// Delete atomically reads the note and removes it when check accepts it.
	// It reports false without error when the note does not exist.
	Delete(ctx context.Context, id model.NoteID, check func(current *model.Note) error) (bool, error)
}

// CheckpointStore keeps versioned snapshots of agent threads
type CheckpointStore interface {
	// Load returns the latest checkpoint of key, or nil when none exists
	Load(ctx context.Context, key model.ThreadKey) (*model.Checkpoint, error)

	// Save stores cp when cp.Version is exactly the stored version plus one,
	// otherwise fails with ErrTagConflict and keeps the stored checkpoint.
	Save(ctx context.Context, cp *model.Checkpoint) error
}

// Embedder turns text into a vector for similarity search
type Embedder interface {
	Embedding(ctx context.Context, text string, dimensionality int) ([]float32, error)
}
