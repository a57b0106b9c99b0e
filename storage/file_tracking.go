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

const fileTrackingCollection = "file_tracking"

// MongoFileTracker stores one tracking document per attachment, keyed by its source id.
type MongoFileTracker struct {
	provider CollectionProvider
	now      func() time.Time
}

// NewMongoFileTracker creates the tracker over the file_tracking collection.
func NewMongoFileTracker(provider CollectionProvider) *MongoFileTracker {
	return &MongoFileTracker{provider: provider, now: time.Now}
}

// EnsureIndexes creates the unique index on source_file_id.
func (t *MongoFileTracker) EnsureIndexes(ctx context.Context) error {
	_, err := t.provider.Collection(fileTrackingCollection).CreateIndex(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "source_file_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to ensure file tracking index: %w", err)
	}

	return nil
}

// Get returns the tracking record for the attachment, or nil if there is none.
func (t *MongoFileTracker) Get(ctx context.Context, sourceFileID string) (*model.FileTrackingRecord, error) {
	var rec model.FileTrackingRecord
	err := t.provider.Collection(fileTrackingCollection).
		FindOne(ctx, bson.M{"source_file_id": sourceFileID}).
		Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tracking record %s: %w", sourceFileID, err)
	}

	return &rec, nil
}

// Save upserts the tracking record in place. created_at is only set on insert.
func (t *MongoFileTracker) Save(ctx context.Context, rec model.FileTrackingRecord) error {
	now := t.now().UTC()
	rec.UpdatedAt = now

	set, err := toSetDocument(rec)
	if err != nil {
		return err
	}
	delete(set, "created_at")

	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": now},
	}
	_, err = t.provider.Collection(fileTrackingCollection).UpdateOne(ctx,
		bson.M{"source_file_id": rec.SourceFileID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save tracking record %s: %w", rec.SourceFileID, err)
	}

	return nil
}

// toSetDocument renders a struct through its bson tags so it can be used in $set.
func toSetDocument(v interface{}) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}

	return doc, nil
}
