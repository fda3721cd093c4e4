package repository

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/donna/pkg/interfaces"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	notesCollection   = "notes"
	noteUserField     = "metadata.user_id"
	noteVectorField   = "embedding"
	noteDistanceField = "vector_distance"
)

// Firestore stores notes in a Firestore collection and answers similarity
// queries with Firestore vector search. The embedding field needs a vector
// index with the dimension used by the embedder.
type Firestore struct {
	client     *firestore.Client
	collection string
}

var _ interfaces.NoteStore = (*Firestore)(nil)

type FirestoreOption func(*Firestore)

// WithNotesCollection overrides the collection name, mainly for tests
func WithNotesCollection(name string) FirestoreOption {
	return func(f *Firestore) {
		f.collection = name
	}
}

// NewFirestore creates a Firestore note store
func NewFirestore(ctx context.Context, projectID, databaseID string, opts ...FirestoreOption) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID))
	}

	f := &Firestore{client: client, collection: notesCollection}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Client returns the underlying Firestore client
func (f *Firestore) Client() *firestore.Client {
	return f.client
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) doc(id model.NoteID) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(string(id))
}

func (f *Firestore) Insert(ctx context.Context, note *model.Note) (*model.Note, error) {
	stored := *note
	if stored.ID == "" {
		stored.ID = model.NewNoteID()
	}
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	if _, err := f.doc(stored.ID).Create(ctx, &stored); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, goerr.Wrap(err, "note already exists", goerr.V("note_id", stored.ID), goerr.T(model.ErrTagConflict))
		}
		return nil, goerr.Wrap(err, "failed to insert note", goerr.V("note_id", stored.ID))
	}
	return &stored, nil
}

func (f *Firestore) Get(ctx context.Context, id model.NoteID) (*model.Note, error) {
	snap, err := f.doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(err, "note not found", goerr.V("note_id", id), goerr.T(model.ErrTagNotFound))
		}
		return nil, goerr.Wrap(err, "failed to get note", goerr.V("note_id", id))
	}
	return decodeNote(snap)
}

func decodeNote(snap *firestore.DocumentSnapshot) (*model.Note, error) {
	var note model.Note
	if err := snap.DataTo(&note); err != nil {
		return nil, goerr.Wrap(err, "failed to decode note", goerr.V("doc_id", snap.Ref.ID))
	}
	note.ID = model.NoteID(snap.Ref.ID)
	return &note, nil
}

func (f *Firestore) query(filter model.NoteFilter) firestore.Query {
	q := f.client.Collection(f.collection).Query
	if filter.UserID != "" {
		q = q.Where(noteUserField, "==", string(filter.UserID))
	}
	return q
}

// List avoids an OrderBy so the user filter works without a composite index;
// ordering happens after the fetch.
func (f *Firestore) List(ctx context.Context, filter model.NoteFilter) ([]*model.Note, error) {
	iter := f.query(filter).Documents(ctx)
	defer iter.Stop()

	var notes []*model.Note
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list notes", goerr.V("user_id", filter.UserID))
		}
		note, err := decodeNote(snap)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}

	sortByCreation(notes)
	return notes, nil
}

func (f *Firestore) Search(ctx context.Context, embedding []float32, k int, filter model.NoteFilter) ([]*model.Note, error) {
	if k <= 0 {
		return nil, nil
	}

	vq := f.query(filter).FindNearest(noteVectorField, firestore.Vector32(embedding), k,
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: noteDistanceField},
	)
	iter := vq.Documents(ctx)
	defer iter.Stop()

	var notes []*model.Note
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to search notes", goerr.V("user_id", filter.UserID), goerr.V("k", k))
		}
		note, err := decodeNote(snap)
		if err != nil {
			return nil, err
		}
		if d, ok := snap.Data()[noteDistanceField].(float64); ok {
			note.Score = 1 - d
		}
		notes = append(notes, note)
	}
	return notes, nil
}

func (f *Firestore) Update(ctx context.Context, id model.NoteID, fn func(current *model.Note) (*model.Note, error)) (*model.Note, error) {
	ref := f.doc(id)
	var result *model.Note

	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var current *model.Note
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return goerr.Wrap(err, "failed to read note", goerr.V("note_id", id))
		default:
			if current, err = decodeNote(snap); err != nil {
				return err
			}
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		stored := *next
		stored.ID = id
		now := time.Now()
		if current != nil {
			stored.CreatedAt = current.CreatedAt
		} else if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		stored.UpdatedAt = now

		if err := tx.Set(ref, &stored); err != nil {
			return goerr.Wrap(err, "failed to write note", goerr.V("note_id", id))
		}
		result = &stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *Firestore) Delete(ctx context.Context, id model.NoteID, check func(current *model.Note) error) (bool, error) {
	ref := f.doc(id)
	var deleted bool

	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		deleted = false
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read note", goerr.V("note_id", id))
		}

		if check != nil {
			current, err := decodeNote(snap)
			if err != nil {
				return err
			}
			if err := check(current); err != nil {
				return err
			}
		}

		if err := tx.Delete(ref); err != nil {
			return goerr.Wrap(err, "failed to delete note", goerr.V("note_id", id))
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}
