package model

import "time"

// SyncCheckpoint is the per-source watermark document of the _sync_metadata collection.
type SyncCheckpoint struct {
	Source       string     `bson:"source"`
	LastSyncTime *time.Time `bson:"last_sync_time"`
	LastRun      time.Time  `bson:"last_run"`
}
