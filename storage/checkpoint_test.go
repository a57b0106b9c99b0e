package storage_test

import (
	"context"
	"errors"
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

func TestCheckpointStore_GetLastSync_NeverSynced(t *testing.T) {
	store := storage.NewMongoCheckpointStore(&mockCollectionProvider{})

	_, ok, err := store.GetLastSync(context.Background(), "OReceipt__c")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckpointStore_GetLastSync_Stored(t *testing.T) {
	watermark := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	ds := &mockDataStore{
		findOneFunc: func(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
			assert.Equal(t, bson.M{"source": "OReceipt__c"}, filter)
			return mongo.NewSingleResultFromDocument(model.SyncCheckpoint{
				Source:       "OReceipt__c",
				LastSyncTime: &watermark,
				LastRun:      watermark.Add(time.Minute),
			}, nil, nil)
		},
	}
	store := storage.NewMongoCheckpointStore(&mockCollectionProvider{
		collectionFunc: func(name string) storage.DataStore {
			assert.Equal(t, "_sync_metadata", name)
			return ds
		},
	})

	got, ok, err := store.GetLastSync(context.Background(), "OReceipt__c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, watermark.Equal(got))
}

func TestCheckpointStore_GetLastSync_Error(t *testing.T) {
	ds := &mockDataStore{
		findOneFunc: func(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult {
			return mongo.NewSingleResultFromDocument(bson.D{}, errors.New("connection reset"), nil)
		},
	}
	store := storage.NewMongoCheckpointStore(&mockCollectionProvider{
		collectionFunc: func(name string) storage.DataStore { return ds },
	})

	_, _, err := store.GetLastSync(context.Background(), "OReceipt__c")
	assert.ErrorContains(t, err, "connection reset")
}

func TestCheckpointStore_UpdateCheckpoint(t *testing.T) {
	newest := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	var gotFilter, gotUpdate interface{}
	var upsert bool
	ds := &mockDataStore{
		updateOneFunc: func(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
			gotFilter, gotUpdate = filter, update
			upsert = len(opts) == 1 && opts[0].Upsert != nil && *opts[0].Upsert
			return &mongo.UpdateResult{UpsertedCount: 1}, nil
		},
	}
	store := storage.NewMongoCheckpointStore(&mockCollectionProvider{
		collectionFunc: func(name string) storage.DataStore { return ds },
	})

	require.NoError(t, store.UpdateCheckpoint(context.Background(), "OReceipt__c", newest))

	assert.Equal(t, bson.M{"source": "OReceipt__c"}, gotFilter)
	assert.True(t, upsert)
	set := gotUpdate.(bson.M)["$set"].(bson.M)
	assert.Equal(t, newest, set["last_sync_time"])
	assert.IsType(t, time.Time{}, set["last_run"])
}

func TestCheckpointStore_UpdateCheckpoint_Error(t *testing.T) {
	ds := &mockDataStore{
		updateOneFunc: func(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
			return nil, errors.New("not primary")
		},
	}
	store := storage.NewMongoCheckpointStore(&mockCollectionProvider{
		collectionFunc: func(name string) storage.DataStore { return ds },
	})

	err := store.UpdateCheckpoint(context.Background(), "OReceipt__c", time.Now())
	assert.ErrorContains(t, err, "not primary")
}
