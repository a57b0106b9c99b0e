package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crmbridge/migrator/appcontext"
	"crmbridge/migrator/datalake/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	syncTableName = "dataSync"
)

// MongoRepository implements repository.BucketWriter for MongoDB.
type MongoRepository struct {
	provider CollectionProvider
	now      func() time.Time
}

// NewMongoRepository creates a new MongoRepository.
func NewMongoRepository(provider CollectionProvider) *MongoRepository {
	return &MongoRepository{
		provider: provider,
		now:      time.Now,
	}
}

// UpsertBucket upserts every record of the bucket into its collection keyed by Id.
//
// The write is a single unordered bulk operation, so one rejected record does not
// stop the others. Rejections the server reports per record come back in
// UpsertResult.Failed; any other failure is returned as an error and nothing in
// the bucket should be assumed durable.
func (r *MongoRepository) UpsertBucket(ctx context.Context, bucket model.Bucket) (*model.UpsertResult, error) {
	if len(bucket.Records) == 0 {
		return &model.UpsertResult{}, nil // Nothing to upsert
	}

	collectionName := bucket.Name()
	collection := r.provider.Collection(collectionName)

	_, err := collection.CreateIndex(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: model.IDField, Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure unique Id index on %s: %w", collectionName, err)
	}

	models := make([]mongo.WriteModel, 0, len(bucket.Records))
	for _, doc := range bucket.Records {
		filter := bson.M{model.IDField: doc.ID()}
		update := bson.M{"$set": bson.M(doc)}
		models = append(models, mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true))
	}

	bwResult, err := collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	result := &model.UpsertResult{}
	if bwResult != nil {
		result.Upserted = bwResult.UpsertedCount
		result.Modified = bwResult.ModifiedCount
		result.Matched = bwResult.MatchedCount
	}
	if err != nil {
		var bwe mongo.BulkWriteException
		if !errors.As(err, &bwe) || len(bwe.WriteErrors) == 0 || bwe.WriteConcernError != nil {
			return nil, fmt.Errorf("failed to perform bulk write for collection %s: %w", collectionName, err)
		}
		result.Failed = writeFailures(bucket, bwe)
	}

	r.appendSyncLog(ctx, collectionName, int64(len(bucket.Records)-len(result.Failed)))

	return result, nil
}

// writeFailures maps the server's per-operation errors back to the bucket's records.
func writeFailures(bucket model.Bucket, bwe mongo.BulkWriteException) []model.Failure {
	failures := make([]model.Failure, 0, len(bwe.WriteErrors))
	for _, we := range bwe.WriteErrors {
		if we.Index < 0 || we.Index >= len(bucket.Records) {
			continue
		}
		rec := bucket.Records[we.Index]
		failures = append(failures, model.Failure{
			Stage:    model.StageUpsert,
			RecordID: rec.ID(),
			Err:      fmt.Errorf("write error %d on %s: %s", we.Code, bucket.Name(), we.Message),
			Payload:  rec,
		})
	}

	return failures
}

// appendSyncLog records the bucket write in the dataSync collection. The bucket
// is already durable at this point, so a failure here is only reported.
func (r *MongoRepository) appendSyncLog(ctx context.Context, collectionName string, uploaded int64) {
	syncCollection := r.provider.Collection(syncTableName)
	syncLog := model.SyncLog{
		RunID:           appcontext.RunIDFromContext(ctx),
		CollectionName:  collectionName,
		SyncTimestamp:   r.now().UTC(),
		RecordsUploaded: uploaded,
	}
	if _, err := syncCollection.InsertOne(ctx, syncLog); err != nil {
		appcontext.LoggerFromContext(ctx).WarnContext(ctx,
			"failed to insert into dataSync collection",
			"collection", collectionName,
			"error", err,
		)
	}
}
