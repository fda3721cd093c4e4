package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/m-mizutani/donna/pkg/adapter"
	"github.com/m-mizutani/donna/pkg/interfaces"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const checkpointsCollection = "checkpoints"

// CloudCheckpoint keeps checkpoint snapshots as Cloud Storage objects and a
// small head document per thread in Firestore. The head document is the
// commit point: a snapshot object is only visible once the head names it.
type CloudCheckpoint struct {
	client     *firestore.Client
	storage    adapter.Storage
	collection string
}

var _ interfaces.CheckpointStore = (*CloudCheckpoint)(nil)

// checkpointHead is saved to Firestore. Messages are not stored there due to
// the document size limitation.
type checkpointHead struct {
	Namespace string    `firestore:"namespace"`
	ThreadID  string    `firestore:"thread_id"`
	Version   int64     `firestore:"version"`
	Object    string    `firestore:"object"`
	Turns     int       `firestore:"turns"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func NewCloudCheckpoint(client *firestore.Client, storage adapter.Storage) *CloudCheckpoint {
	return &CloudCheckpoint{
		client:     client,
		storage:    storage,
		collection: checkpointsCollection,
	}
}

func (c *CloudCheckpoint) head(key model.ThreadKey) *firestore.DocumentRef {
	return c.client.Collection(c.collection).Doc(key.Namespace).Collection("threads").Doc(key.ThreadID)
}

// checkpointObject names a fresh object per write attempt, so a writer that
// loses the version check can never replace the snapshot a head points to.
func checkpointObject(cp *model.Checkpoint) string {
	return fmt.Sprintf("%s/%s/%s/%d-%s.json", checkpointsCollection, cp.Namespace, cp.ThreadID, cp.Version, uuid.NewString())
}

func (c *CloudCheckpoint) Load(ctx context.Context, key model.ThreadKey) (*model.Checkpoint, error) {
	snap, err := c.head(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get checkpoint head", goerr.V("key", key))
	}

	var head checkpointHead
	if err := snap.DataTo(&head); err != nil {
		return nil, goerr.Wrap(err, "failed to decode checkpoint head", goerr.V("key", key))
	}

	reader, err := c.storage.Get(ctx, head.Object)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get checkpoint from storage", goerr.V("key", key), goerr.V("object", head.Object))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read checkpoint data", goerr.V("object", head.Object))
	}

	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal checkpoint", goerr.V("object", head.Object))
	}
	return &cp, nil
}

func (c *CloudCheckpoint) Save(ctx context.Context, cp *model.Checkpoint) error {
	object := checkpointObject(cp)

	data, err := json.Marshal(cp)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal checkpoint", goerr.V("key", cp.Key()))
	}

	// Objects of losing writers stay unreferenced
	writer, err := c.storage.Put(ctx, object)
	if err != nil {
		return goerr.Wrap(err, "failed to create storage writer", goerr.V("object", object))
	}
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return goerr.Wrap(err, "failed to write checkpoint to storage", goerr.V("object", object))
	}
	if err := writer.Close(); err != nil {
		return goerr.Wrap(err, "failed to close storage writer", goerr.V("object", object))
	}

	ref := c.head(cp.Key())
	return c.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var stored int64
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return goerr.Wrap(err, "failed to read checkpoint head", goerr.V("key", cp.Key()))
		default:
			var head checkpointHead
			if err := snap.DataTo(&head); err != nil {
				return goerr.Wrap(err, "failed to decode checkpoint head", goerr.V("key", cp.Key()))
			}
			stored = head.Version
		}

		if err := checkVersion(cp, stored); err != nil {
			return err
		}

		return tx.Set(ref, &checkpointHead{
			Namespace: cp.Namespace,
			ThreadID:  cp.ThreadID,
			Version:   cp.Version,
			Object:    object,
			Turns:     cp.Turns,
			UpdatedAt: cp.UpdatedAt,
		})
	})
}
