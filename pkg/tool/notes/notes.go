package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/donna/pkg/interfaces"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/donna/pkg/policy"
	"github.com/m-mizutani/donna/pkg/tool"
	"github.com/m-mizutani/goerr/v2"
)

const (
	DefaultStoreTimeout = 10 * time.Second
	DefaultDimension    = 768

	defaultReadK = 3
	maxReadK     = 20
)

// Notes holds what the note tools share: the store, the embedder and the
// ownership policy.
type Notes struct {
	store     interfaces.NoteStore
	embedder  interfaces.Embedder
	policy    *policy.Engine
	timeout   time.Duration
	dimension int
}

type Option func(*Notes)

// WithStoreTimeout bounds every store and embedding call
func WithStoreTimeout(d time.Duration) Option {
	return func(n *Notes) {
		n.timeout = d
	}
}

// WithDimension sets the embedding dimensionality. It must match the vector
// index of the store.
func WithDimension(dim int) Option {
	return func(n *Notes) {
		n.dimension = dim
	}
}

func New(store interfaces.NoteStore, embedder interfaces.Embedder, engine *policy.Engine, opts ...Option) *Notes {
	n := &Notes{
		store:     store,
		embedder:  embedder,
		policy:    engine,
		timeout:   DefaultStoreTimeout,
		dimension: DefaultDimension,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Tools returns the five note tools
func (n *Notes) Tools() []tool.Tool {
	return []tool.Tool{
		&CreateNote{notes: n},
		&ReadNote{notes: n},
		&UpdateNote{notes: n},
		&DeleteNote{notes: n},
		&GetAllNotes{notes: n},
	}
}

// userOf returns the caller of a tool. There is no unfiltered mode, so a
// missing user id is rejected.
func userOf(env tool.Env) (model.UserID, error) {
	if env.Session.UserID == "" {
		return "", goerr.New("user_id is required for note operations", goerr.T(model.ErrTagInvalidSessionIdentity))
	}
	return env.Session.UserID, nil
}

// withTimeout runs fn under the store deadline and tags a deadline hit as
// ErrTagTimeout.
func (n *Notes) withTimeout(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err := fn(ctx)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return goerr.Wrap(err, "note store timed out", goerr.V("op", op), goerr.V("timeout", n.timeout), goerr.T(model.ErrTagTimeout))
	}
	return err
}

func (n *Notes) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := n.embedder.Embedding(ctx, text, n.dimension)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed text")
	}
	return vec, nil
}

func formatNotes(notes []*model.Note, withScore bool) string {
	var b strings.Builder
	for _, note := range notes {
		if withScore {
			fmt.Fprintf(&b, "- [%s] %s (score=%.3f)\n", note.ID, note.Text, note.Score)
		} else {
			fmt.Fprintf(&b, "- [%s] %s\n", note.ID, note.Text)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
