package model

// Stage names the step of a sync run at which a failure occurred.
type Stage string

const (
	StageQuery      Stage = "QUERY"
	StageGrouping   Stage = "GROUPING"
	StageUpsert     Stage = "UPSERT"
	StageReconcile  Stage = "RECONCILE"
	StageCheckpoint Stage = "CHECKPOINT"
)

// Failure is the per-stage failure result handed from a component to the error collector.
type Failure struct {
	Stage Stage
	// RecordID is empty when the failure is not tied to one record.
	RecordID string
	Err      error
	Payload  any
}

// Message returns the failure's error text.
func (f Failure) Message() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}
