// Package reconcile flags migrated records back in the CRM.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"crmbridge/migrator/appcontext"
	"crmbridge/migrator/datalake/model"
)

const (
	// DefaultField is the CRM checkbox marking a record as migrated.
	DefaultField = "Migrated_to_Mongo__c"
	// MaxChunkSize is the CRM's limit for one sObject collection update.
	MaxChunkSize = 200
)

var (
	errRecordNotUpdated = errors.New("record was not updated")
	errMissingResult    = errors.New("no save result returned for record")
)

// RecordNotUpdatedError wraps the CRM's per-record rejection.
func RecordNotUpdatedError(id string, errs []model.SaveError) error {
	if len(errs) == 0 {
		return fmt.Errorf("%w, id=%s", errRecordNotUpdated, id)
	}
	return fmt.Errorf("%w, id=%s: %s %s", errRecordNotUpdated, id, errs[0].StatusCode, errs[0].Message)
}

// Updater applies one field update to a batch of CRM records.
type Updater interface {
	UpdateRecords(ctx context.Context, sobject string, ids []string, fields map[string]any) ([]model.SaveResult, error)
}

// Reconciler marks records as migrated in chunks.
type Reconciler struct {
	updater   Updater
	field     string
	chunkSize int
}

// NewReconciler returns a Reconciler for the given flag field.
// Chunk sizes outside (0, MaxChunkSize] fall back to MaxChunkSize.
func NewReconciler(updater Updater, field string, chunkSize int) *Reconciler {
	if field == "" {
		field = DefaultField
	}
	if chunkSize <= 0 || chunkSize > MaxChunkSize {
		chunkSize = MaxChunkSize
	}
	return &Reconciler{updater: updater, field: field, chunkSize: chunkSize}
}

// Result summarises one reconciliation pass.
type Result struct {
	Requests int
	Marked   int
	Failed   []model.Failure
}

// Mark sets the migrated flag on every id. Duplicates within ids are sent once.
// Callers must only pass ids whose documents are durably stored.
func (r *Reconciler) Mark(ctx context.Context, sobject string, ids []string) Result {
	logger := appcontext.LoggerFromContext(ctx)
	var res Result

	unique := dedupe(ids)
	fields := map[string]any{r.field: true}

	for start := 0; start < len(unique); start += r.chunkSize {
		end := min(start+r.chunkSize, len(unique))
		chunk := unique[start:end]

		res.Requests++
		results, err := r.updater.UpdateRecords(ctx, sobject, chunk, fields)
		if err != nil {
			logger.ErrorContext(ctx, "Flag update request failed",
				"sobject", sobject, "chunk_size", len(chunk), "error", err)
			for _, id := range chunk {
				res.Failed = append(res.Failed, model.Failure{
					Stage:    model.StageReconcile,
					RecordID: id,
					Err:      err,
				})
			}
			continue
		}

		marked, failed := collect(chunk, results)
		res.Marked += marked
		res.Failed = append(res.Failed, failed...)
		logger.DebugContext(ctx, "Flag update chunk applied",
			"sobject", sobject, "marked", marked, "failed", len(failed))
	}

	return res
}

// collect pairs save results with the chunk's ids. Results normally come back in
// request order; an id that is missing from the response counts as failed.
func collect(chunk []string, results []model.SaveResult) (int, []model.Failure) {
	byID := make(map[string]model.SaveResult, len(results))
	for i, sr := range results {
		id := sr.ID
		if id == "" && i < len(chunk) {
			id = chunk[i]
		}
		byID[id] = sr
	}

	marked := 0
	var failed []model.Failure
	for _, id := range chunk {
		sr, ok := byID[id]
		switch {
		case !ok:
			failed = append(failed, model.Failure{
				Stage:    model.StageReconcile,
				RecordID: id,
				Err:      fmt.Errorf("%w, id=%s", errMissingResult, id),
			})
		case sr.Success:
			marked++
		default:
			failed = append(failed, model.Failure{
				Stage:    model.StageReconcile,
				RecordID: id,
				Err:      RecordNotUpdatedError(id, sr.Errors),
				Payload:  sr.Errors,
			})
		}
	}
	return marked, failed
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
