package repository

import (
	"context"
	"time"

	"crmbridge/migrator/datalake/model"
)

// BucketWriter idempotently writes a bucket of records to its destination collection.
type BucketWriter interface {
	UpsertBucket(ctx context.Context, bucket model.Bucket) (*model.UpsertResult, error)
}

// CheckpointStore persists the per-source watermark.
type CheckpointStore interface {
	GetLastSync(ctx context.Context, source string) (time.Time, bool, error)
	UpdateCheckpoint(ctx context.Context, source string, newest time.Time) error
}

// ErrorLog is the append-only failure sink. Log must never fail the caller.
type ErrorLog interface {
	Log(ctx context.Context, rec model.ErrorRecord)
}

// FileTracker keeps one tracking record per transferred attachment.
type FileTracker interface {
	// Get returns nil and no error when the attachment has never been tracked.
	Get(ctx context.Context, sourceFileID string) (*model.FileTrackingRecord, error)
	Save(ctx context.Context, rec model.FileTrackingRecord) error
}
