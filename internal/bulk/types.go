package bulk

import (
	"time"
)

// Operation is the kind of bulk operation performed against the target object.
type Operation string

const (
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
	OperationUpsert Operation = "upsert"
	OperationDelete Operation = "delete"
)

// JobState is the lifecycle state of a remote bulk job.
type JobState string

const (
	JobOpen   JobState = "Open"
	JobClosed JobState = "Closed"
)

// Job represents one remote bulk operation against one target object type.
// A Job is owned by a single run and never reused.
type Job struct {
	ID        string
	Object    string
	Operation Operation
	State     JobState
	CreatedAt time.Time
}

// BatchState is the lifecycle state of a submitted batch.
type BatchState string

const (
	BatchQueued     BatchState = "Queued"
	BatchInProgress BatchState = "InProgress"
	BatchCompleted  BatchState = "Completed"
	BatchFailed     BatchState = "Failed"
)

// Terminal reports whether the state admits no further transitions.
// Failed is a normal terminal outcome, not a controller error: a Failed
// batch still carries per-record results that must be reconciled.
func (s BatchState) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// Batch is one submitted chunk, tracked as an independent unit of work.
type Batch struct {
	ID    string
	JobID string
	Seq   int // submission order, 0-based
	State BatchState
	Rows  int   // data rows in the submitted chunk
	Bytes int64 // serialized chunk size including header
}

// BatchStatus is one entry of a bulk status query.
type BatchStatus struct {
	BatchID string
	State   BatchState
}

// RecordOutcome is the per-row result of a terminal batch.
type RecordOutcome struct {
	Success bool
	Created bool
	ID      string // assigned identifier, empty unless created
	Error   string // non-empty when Success is false
}

// BatchReport is the reconciled view of one submitted batch. Exactly one of
// Outcomes or Failure is meaningful: a batch that never reached a terminal
// state, or whose result stream could not be read, carries a Failure reason
// and no outcomes.
type BatchReport struct {
	Batch    Batch
	Outcomes []RecordOutcome
	Failure  string // non-empty when the batch is degraded/unresolved
}

// Report aggregates all record outcomes across all batches of a job.
// It is immutable once returned by the orchestrator; every submitted batch
// appears exactly once.
type Report struct {
	Job      Job
	Batches  map[string]*BatchReport // keyed by batch ID
	Order    []string                // batch IDs in submission order
	Created  int
	Updated  int
	Failed   int
	Duration time.Duration
}

// Unresolved returns the IDs of batches that carry a failure reason instead
// of outcomes, in submission order.
func (r *Report) Unresolved() []string {
	var ids []string
	for _, id := range r.Order {
		if br := r.Batches[id]; br != nil && br.Failure != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// TotalRecords returns the number of reconciled record outcomes.
func (r *Report) TotalRecords() int {
	n := 0
	for _, br := range r.Batches {
		n += len(br.Outcomes)
	}
	return n
}

// tally folds one outcome into the aggregate counters.
func (r *Report) tally(o RecordOutcome) {
	switch {
	case o.Success && o.Created:
		r.Created++
	case o.Success:
		r.Updated++
	default:
		r.Failed++
	}
}
