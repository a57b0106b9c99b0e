package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crmbridge/migrator/datalake/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const checkpointCollection = "_sync_metadata"

// MongoCheckpointStore keeps one watermark document per source.
type MongoCheckpointStore struct {
	provider CollectionProvider
	now      func() time.Time
}

// NewMongoCheckpointStore creates a checkpoint store over the _sync_metadata collection.
func NewMongoCheckpointStore(provider CollectionProvider) *MongoCheckpointStore {
	return &MongoCheckpointStore{provider: provider, now: time.Now}
}

// GetLastSync returns the stored watermark, or false if the source was never synced.
func (s *MongoCheckpointStore) GetLastSync(ctx context.Context, source string) (time.Time, bool, error) {
	var checkpoint model.SyncCheckpoint
	err := s.provider.Collection(checkpointCollection).
		FindOne(ctx, bson.M{"source": source}).
		Decode(&checkpoint)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read checkpoint for %s: %w", source, err)
	}
	if checkpoint.LastSyncTime == nil {
		return time.Time{}, false, nil
	}

	return checkpoint.LastSyncTime.UTC(), true, nil
}

// UpdateCheckpoint overwrites the source's watermark and stamps last_run.
// There is no ordering check: the last writer wins.
func (s *MongoCheckpointStore) UpdateCheckpoint(ctx context.Context, source string, newest time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"last_sync_time": newest.UTC(),
			"last_run":       s.now().UTC(),
		},
	}
	_, err := s.provider.Collection(checkpointCollection).
		UpdateOne(ctx, bson.M{"source": source}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to update checkpoint for %s: %w", source, err)
	}

	return nil
}
