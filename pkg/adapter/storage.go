package adapter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Storage is the blob store holding checkpoint snapshots
type Storage interface {
	// Put returns a writer saving an object under key; the object becomes
	// visible when the writer is closed
	Put(ctx context.Context, key string) (io.WriteCloser, error)
	// Get opens the object under key. A missing object fails with
	// ErrTagNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Close releases the underlying client
	Close() error
}

// storageClient implements Storage interface using Cloud Storage
type storageClient struct {
	bucketName string
	client     *storage.Client
}

// NewStorage creates a new Cloud Storage client
func NewStorage(ctx context.Context, bucketName string) (Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &storageClient{
		bucketName: bucketName,
		client:     client,
	}, nil
}

func (s *storageClient) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	obj := s.client.Bucket(s.bucketName).Object(key)
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/json"
	return writer, nil
}

func (s *storageClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj := s.client.Bucket(s.bucketName).Object(key)
	reader, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, goerr.Wrap(err, "object not found", goerr.V("key", key), goerr.T(model.ErrTagNotFound))
		}
		return nil, goerr.Wrap(err, "failed to read from storage", goerr.V("bucket", s.bucketName), goerr.V("key", key))
	}

	return reader, nil
}

func (s *storageClient) Close() error {
	if err := s.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close storage client", goerr.V("bucket", s.bucketName))
	}
	return nil
}

// MemoryStorage is an in-process Storage used by tests and local runs
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

func (m *MemoryStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	return &memoryWriter{storage: m, key: key}, nil
}

func (m *MemoryStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, goerr.New("object not found", goerr.V("key", key), goerr.T(model.ErrTagNotFound))
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

// Keys returns the stored object keys
func (m *MemoryStorage) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}

type memoryWriter struct {
	bytes.Buffer
	storage *MemoryStorage
	key     string
	closed  bool
}

func (w *memoryWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.storage.mu.Lock()
	defer w.storage.mu.Unlock()
	w.storage.data[w.key] = append([]byte(nil), w.Buffer.Bytes()...)
	return nil
}
