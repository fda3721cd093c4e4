package repository

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/donna/pkg/interfaces"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Memory is an in-process NoteStore and CheckpointStore. A single mutex
// serializes every write.
type Memory struct {
	mu          sync.Mutex
	notes       map[model.NoteID]*model.Note
	checkpoints map[model.ThreadKey][]byte
}

var (
	_ interfaces.NoteStore       = (*Memory)(nil)
	_ interfaces.CheckpointStore = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		notes:       make(map[model.NoteID]*model.Note),
		checkpoints: make(map[model.ThreadKey][]byte),
	}
}

func copyNote(note *model.Note) *model.Note {
	c := *note
	c.Embedding = append([]float32(nil), note.Embedding...)
	return &c
}

func (m *Memory) Insert(ctx context.Context, note *model.Note) (*model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := copyNote(note)
	if stored.ID == "" {
		stored.ID = model.NewNoteID()
	}
	if _, exists := m.notes[stored.ID]; exists {
		return nil, goerr.New("note already exists", goerr.V("note_id", stored.ID), goerr.T(model.ErrTagConflict))
	}
	now := time.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	m.notes[stored.ID] = stored
	return copyNote(stored), nil
}

func (m *Memory) Get(ctx context.Context, id model.NoteID) (*model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	note, ok := m.notes[id]
	if !ok {
		return nil, goerr.New("note not found", goerr.V("note_id", id), goerr.T(model.ErrTagNotFound))
	}
	return copyNote(note), nil
}

func (m *Memory) List(ctx context.Context, filter model.NoteFilter) ([]*model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Note
	for _, note := range m.notes {
		if filter.Match(note) {
			out = append(out, copyNote(note))
		}
	}
	sortByCreation(out)
	return out, nil
}

func sortByCreation(notes []*model.Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return notes[i].ID < notes[j].ID
		}
		return notes[i].CreatedAt.Before(notes[j].CreatedAt)
	})
}

func (m *Memory) Search(ctx context.Context, embedding []float32, k int, filter model.NoteFilter) ([]*model.Note, error) {
	if k <= 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Note
	for _, note := range m.notes {
		if !filter.Match(note) {
			continue
		}
		c := copyNote(note)
		c.Score = cosineSimilarity(embedding, note.Embedding)
		out = append(out, c)
	}

	return rankByScore(out, k), nil
}

// rankByScore orders scored notes most similar first and keeps the top k
func rankByScore(notes []*model.Note, k int) []*model.Note {
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].Score == notes[j].Score {
			return notes[i].CreatedAt.Before(notes[j].CreatedAt)
		}
		return notes[i].Score > notes[j].Score
	})
	if len(notes) > k {
		notes = notes[:k]
	}
	return notes
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (m *Memory) Update(ctx context.Context, id model.NoteID, fn func(current *model.Note) (*model.Note, error)) (*model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current *model.Note
	if note, ok := m.notes[id]; ok {
		current = copyNote(note)
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	stored := copyNote(next)
	stored.ID = id
	now := time.Now()
	if current != nil {
		stored.CreatedAt = current.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	m.notes[id] = stored
	return copyNote(stored), nil
}

func (m *Memory) Delete(ctx context.Context, id model.NoteID, check func(current *model.Note) error) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	note, ok := m.notes[id]
	if !ok {
		return false, nil
	}
	if check != nil {
		if err := check(copyNote(note)); err != nil {
			return false, err
		}
	}
	delete(m.notes, id)
	return true, nil
}

// Checkpoints are kept serialized so a loaded checkpoint never shares memory
// with the state that produced it.
func (m *Memory) Load(ctx context.Context, key model.ThreadKey) (*model.Checkpoint, error) {
	m.mu.Lock()
	raw, ok := m.checkpoints[key]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal checkpoint", goerr.V("key", key))
	}
	return &cp, nil
}

func (m *Memory) Save(ctx context.Context, cp *model.Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal checkpoint", goerr.V("key", cp.Key()))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var stored int64
	if prev, ok := m.checkpoints[cp.Key()]; ok {
		var head struct {
			Version int64 `json:"version"`
		}
		if err := json.Unmarshal(prev, &head); err != nil {
			return goerr.Wrap(err, "failed to read stored checkpoint", goerr.V("key", cp.Key()))
		}
		stored = head.Version
	}
	if err := checkVersion(cp, stored); err != nil {
		return err
	}

	m.checkpoints[cp.Key()] = raw
	return nil
}

func checkVersion(cp *model.Checkpoint, stored int64) error {
	if cp.Version != stored+1 {
		return goerr.New("checkpoint version conflict",
			goerr.V("key", cp.Key()),
			goerr.V("stored", stored),
			goerr.V("version", cp.Version),
			goerr.T(model.ErrTagConflict))
	}
	return nil
}
