package model

import "time"

// ErrorRecord is an append-only entry of the _sync_errors collection.
type ErrorRecord struct {
	RunID        string    `bson:"run_id,omitempty"`
	SourceEntity string    `bson:"sobject_name"`
	RecordID     *string   `bson:"record_id"`
	Stage        Stage     `bson:"error_stage"`
	ErrorMessage string    `bson:"error_message"`
	Payload      any       `bson:"record_data,omitempty"`
	Timestamp    time.Time `bson:"timestamp"`
}

// NewErrorRecord converts a stage failure into its persisted form.
func NewErrorRecord(runID, entity string, f Failure, now time.Time) ErrorRecord {
	rec := ErrorRecord{
		RunID:        runID,
		SourceEntity: entity,
		Stage:        f.Stage,
		ErrorMessage: f.Message(),
		Payload:      f.Payload,
		Timestamp:    now.UTC(),
	}
	if f.RecordID != "" {
		id := f.RecordID
		rec.RecordID = &id
	}

	return rec
}
