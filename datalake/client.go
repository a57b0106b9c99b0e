package datalake

import (
	"context"
	"time"

	"crmbridge/migrator/datalake/model"
	"crmbridge/migrator/datalake/reconcile"
	"crmbridge/migrator/datalake/repository"
	"crmbridge/migrator/datalake/soql"
)

// Source runs a query against the CRM and returns every matching record.
type Source interface {
	QueryAll(ctx context.Context, query string) ([]model.Record, error)
}

// Marker flags records as migrated in the CRM.
type Marker interface {
	Mark(ctx context.Context, sobject string, ids []string) reconcile.Result
}

// Entity is one logical CRM object synced into the document store.
type Entity struct {
	Name                string
	Query               string
	ClassificationField string
	Reconcile           bool
}

// Client runs incremental syncs.
type Client interface {
	SyncAll(ctx context.Context, entities []Entity) *Stats
	SyncEntity(ctx context.Context, entity Entity) *EntityStats
}

// Options holds the routing settings shared by all entities.
type Options struct {
	AllowList    []string
	DefaultLabel string
	Builder      soql.Builder
}

type client struct {
	source      Source
	checkpoints repository.CheckpointStore
	writer      repository.BucketWriter
	errorLog    repository.ErrorLog
	marker      Marker
	opts        Options
	now         func() time.Time
}

// NewClient wires a sync client. marker may be nil, which disables reconciliation.
func NewClient(
	source Source,
	checkpoints repository.CheckpointStore,
	writer repository.BucketWriter,
	errorLog repository.ErrorLog,
	marker Marker,
	opts Options,
) Client {
	return &client{
		source:      source,
		checkpoints: checkpoints,
		writer:      writer,
		errorLog:    errorLog,
		marker:      marker,
		opts:        opts,
		now:         time.Now,
	}
}
