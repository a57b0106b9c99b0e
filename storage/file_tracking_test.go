package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"crmbridge/migrator/datalake/model"
	"crmbridge/migrator/storage"
)

func TestFileTracker_GetMissing(t *testing.T) {
	tracker := storage.NewMongoFileTracker(&mockCollectionProvider{})

	rec, err := tracker.Get(context.Background(), "068000000000001")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFileTracker_GetExisting(t *testing.T) {
	ds := &mockDataStore{
		findOneFunc: func(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
			assert.Equal(t, bson.M{"source_file_id": "068000000000001"}, filter)
			return mongo.NewSingleResultFromDocument(model.FileTrackingRecord{
				SourceFileID:      "068000000000001",
				DestinationFileID: "DMS-42",
				Status:            model.TransferSuccess,
			}, nil, nil)
		},
	}
	tracker := storage.NewMongoFileTracker(&mockCollectionProvider{
		collectionFunc: func(name string) storage.DataStore {
			assert.Equal(t, "file_tracking", name)
			return ds
		},
	})

	rec, err := tracker.Get(context.Background(), "068000000000001")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.TransferSuccess, rec.Status)
	assert.Equal(t, "DMS-42", rec.DestinationFileID)
}

func TestFileTracker_SaveUpsertsInPlace(t *testing.T) {
	var gotFilter interface{}
	var gotUpdate bson.M
	ds := &mockDataStore{
		updateOneFunc: func(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
			gotFilter = filter
			gotUpdate = update.(bson.M)
			require.Len(t, opts, 1)
			assert.True(t, *opts[0].Upsert)
			return &mongo.UpdateResult{}, nil
		},
	}
	tracker := storage.NewMongoFileTracker(&mockCollectionProvider{
		collectionFunc: func(name string) storage.DataStore { return ds },
	})

	err := tracker.Save(context.Background(), model.FileTrackingRecord{
		SourceFileID: "068000000000001",
		Status:       model.TransferFailed,
		Response:     "payload too large",
		CreatedAt:    time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, bson.M{"source_file_id": "068000000000001"}, gotFilter)
	set := gotUpdate["$set"].(bson.M)
	assert.Equal(t, "FAILED", set["status"])
	assert.Equal(t, "payload too large", set["dms_response"])
	assert.NotContains(t, set, "created_at", "created_at is only written on insert")
	assert.Contains(t, gotUpdate["$setOnInsert"].(bson.M), "created_at")
}

func TestFileTracker_EnsureIndexes(t *testing.T) {
	var keys interface{}
	ds := &mockDataStore{
		createIndexFunc: func(ctx context.Context, idx mongo.IndexModel) (string, error) {
			keys = idx.Keys
			return "source_file_id_1", nil
		},
	}
	tracker := storage.NewMongoFileTracker(&mockCollectionProvider{
		collectionFunc: func(name string) storage.DataStore { return ds },
	})

	require.NoError(t, tracker.EnsureIndexes(context.Background()))
	assert.Equal(t, bson.D{{Key: "source_file_id", Value: 1}}, keys)
}
