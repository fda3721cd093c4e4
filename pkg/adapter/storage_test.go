package adapter_test

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/m-mizutani/donna/pkg/adapter"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

func testStorage(t *testing.T, s adapter.Storage) {
	ctx := context.Background()
	key := "test/" + uuid.NewString() + ".json"

	_, err := s.Get(ctx, key)
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, model.ErrTagNotFound))

	w, err := s.Put(ctx, key)
	gt.NoError(t, err)
	_, err = w.Write([]byte(`{"version":1}`))
	gt.NoError(t, err)
	gt.NoError(t, w.Close())

	r, err := s.Get(ctx, key)
	gt.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	gt.NoError(t, err)
	gt.Equal(t, string(data), `{"version":1}`)
}

func TestMemoryStorage(t *testing.T) {
	s := adapter.NewMemoryStorage()
	testStorage(t, s)
	gt.A(t, s.Keys()).Length(1)
	gt.NoError(t, s.Close())
}

func TestCloudStorage(t *testing.T) {
	bucket := os.Getenv("TEST_STORAGE_BUCKET")
	if bucket == "" {
		t.Skip("TEST_STORAGE_BUCKET is not set")
	}

	s, err := adapter.NewStorage(context.Background(), bucket)
	gt.NoError(t, err)
	testStorage(t, s)
	gt.NoError(t, s.Close())
}
