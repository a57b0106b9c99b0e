package datalake

import (
	"context"
	"fmt"
	"time"

	bcontext "crmbridge/migrator/appcontext"
	"crmbridge/migrator/datalake/model"
	"crmbridge/migrator/datalake/routing"
	"crmbridge/migrator/datalake/soql"
)

// SyncAll syncs each entity in order. A failing entity never stops the loop.
func (c *client) SyncAll(ctx context.Context, entities []Entity) *Stats {
	logger := bcontext.LoggerFromContext(ctx)
	stats := NewStats()

	for _, entity := range entities {
		logger.InfoContext(ctx, "Syncing entity", "entity", entity.Name)
		stats.Add(c.SyncEntity(ctx, entity))
	}

	return stats
}

// SyncEntity runs checkpoint → query → group → upsert → reconcile → checkpoint
// for one entity and forwards every failure to the error log.
func (c *client) SyncEntity(ctx context.Context, entity Entity) *EntityStats {
	logger := bcontext.LoggerFromContext(ctx).With("entity", entity.Name)
	stats := &EntityStats{Entity: entity.Name}

	var failures []model.Failure
	defer func() {
		c.logFailures(ctx, entity.Name, failures)
		stats.Failed = len(failures)
	}()

	watermark, hasWatermark, err := c.checkpoints.GetLastSync(ctx, entity.Name)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read checkpoint", "error", err)
		failures = append(failures, model.Failure{Stage: model.StageCheckpoint, Err: err})
		stats.Aborted = true
		return stats
	}

	var since *time.Time
	if hasWatermark {
		since = &watermark
	}
	query := c.opts.Builder.Incremental(entity.Query, since)
	logger.DebugContext(ctx, "Querying source", "query", query)

	records, err := c.source.QueryAll(ctx, query)
	if err != nil {
		logger.ErrorContext(ctx, "Query failed", "error", err)
		failures = append(failures, model.Failure{Stage: model.StageQuery, Err: err, Payload: query})
		stats.Aborted = true
		return stats
	}
	stats.Fetched = len(records)

	if hasWatermark {
		records = c.dropCommitted(records, watermark)
		stats.Skipped = stats.Fetched - len(records)
	}
	if len(records) == 0 {
		logger.InfoContext(ctx, "No new records")
		return stats
	}

	router := routing.Router{
		ClassificationField: entity.ClassificationField,
		AllowList:           c.opts.AllowList,
		DefaultLabel:        c.opts.DefaultLabel,
	}
	buckets, groupFailures := router.Group(entity.Name, records)
	failures = append(failures, groupFailures...)
	stats.Buckets = len(buckets)

	var stored []model.Record
	for _, bucket := range buckets {
		ok, bucketFailures, count := c.writeBucket(ctx, bucket)
		failures = append(failures, bucketFailures...)
		stored = append(stored, ok...)
		stats.Upserted += count
	}

	if entity.Reconcile && c.marker != nil && len(stored) > 0 {
		res := c.marker.Mark(ctx, entity.Name, recordIDs(stored))
		stats.Reconciled = res.Marked
		failures = append(failures, res.Failed...)
	}

	if f := c.advanceCheckpoint(ctx, entity.Name, watermark, hasWatermark, stored, failures); f != nil {
		failures = append(failures, *f)
	}

	logger.InfoContext(ctx, "Entity synced",
		"fetched", stats.Fetched, "buckets", stats.Buckets, "upserted", stats.Upserted,
		"reconciled", stats.Reconciled, "failures", len(failures))

	return stats
}

// writeBucket returns the records that are durably stored.
func (c *client) writeBucket(ctx context.Context, bucket model.Bucket) ([]model.Record, []model.Failure, int64) {
	logger := bcontext.LoggerFromContext(ctx)

	res, err := c.writer.UpsertBucket(ctx, bucket)
	if err != nil {
		logger.ErrorContext(ctx, "Bucket write failed", "collection", bucket.Name(), "error", err)
		failures := make([]model.Failure, 0, len(bucket.Records))
		for _, rec := range bucket.Records {
			failures = append(failures, model.Failure{
				Stage:    model.StageUpsert,
				RecordID: rec.ID(),
				Err:      fmt.Errorf("bucket %s: %w", bucket.Name(), err),
				Payload:  rec,
			})
		}
		return nil, failures, 0
	}

	rejected := make(map[string]struct{}, len(res.Failed))
	for _, f := range res.Failed {
		rejected[f.RecordID] = struct{}{}
	}

	stored := make([]model.Record, 0, len(bucket.Records))
	for _, rec := range bucket.Records {
		if _, ok := rejected[rec.ID()]; !ok {
			stored = append(stored, rec)
		}
	}

	return stored, res.Failed, res.Count()
}

// dropCommitted removes records at or below the watermark. The query literal is
// truncated to seconds, so the source can return rows the last run already stored.
func (c *client) dropCommitted(records []model.Record, watermark time.Time) []model.Record {
	kept := records[:0:0]
	for _, rec := range records {
		if t, ok := c.recordTime(rec); ok && !t.After(watermark) {
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

// advanceCheckpoint stores the newest stored modification time that is older
// than every failed record of the run. It never moves the watermark backwards.
func (c *client) advanceCheckpoint(
	ctx context.Context,
	source string,
	current time.Time,
	hasCurrent bool,
	stored []model.Record,
	failures []model.Failure,
) *model.Failure {
	next, ok := c.nextWatermark(stored, failures)
	if !ok || (hasCurrent && !next.After(current)) {
		return nil
	}

	if err := c.checkpoints.UpdateCheckpoint(ctx, source, next); err != nil {
		bcontext.LoggerFromContext(ctx).ErrorContext(ctx, "Failed to update checkpoint",
			"entity", source, "watermark", next, "error", err)
		return &model.Failure{Stage: model.StageCheckpoint, Err: err, Payload: soql.Literal(next)}
	}

	return nil
}

func (c *client) nextWatermark(stored []model.Record, failures []model.Failure) (time.Time, bool) {
	var oldestFailed time.Time
	hasFailed := false
	for _, f := range failures {
		if f.Stage != model.StageGrouping && f.Stage != model.StageUpsert {
			continue
		}
		rec, isRecord := f.Payload.(model.Record)
		if !isRecord {
			continue
		}
		if t, ok := c.recordTime(rec); ok && (!hasFailed || t.Before(oldestFailed)) {
			oldestFailed, hasFailed = t, true
		}
	}

	var newest time.Time
	found := false
	for _, rec := range stored {
		t, ok := c.recordTime(rec)
		if !ok || (hasFailed && !t.Before(oldestFailed)) {
			continue
		}
		if !found || t.After(newest) {
			newest, found = t, true
		}
	}

	return newest, found
}

func (c *client) recordTime(rec model.Record) (time.Time, bool) {
	t, ok, err := rec.Time(c.opts.Builder.WatermarkField())
	if err != nil || !ok {
		return time.Time{}, false
	}
	return t, true
}

func (c *client) logFailures(ctx context.Context, entity string, failures []model.Failure) {
	runID := bcontext.RunIDFromContext(ctx)
	now := c.now()
	for _, f := range failures {
		c.errorLog.Log(ctx, model.NewErrorRecord(runID, entity, f, now))
	}
}

func recordIDs(records []model.Record) []string {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID())
	}
	return ids
}
