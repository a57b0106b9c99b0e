package model

import "time"

// SyncLog represents a record in the dataSync collection.
type SyncLog struct {
	RunID           string    `bson:"run_id,omitempty"`
	CollectionName  string    `bson:"collection_name"`
	SyncTimestamp   time.Time `bson:"sync_timestamp"`
	RecordsUploaded int64     `bson:"records_uploaded"`
}
