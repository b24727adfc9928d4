package bulk

import (
	"sync"
	"time"
)

// RunPhase indicates the current stage of a load run.
type RunPhase string

const (
	PhaseChunking    RunPhase = "chunking"
	PhaseSubmitting  RunPhase = "submitting"
	PhasePolling     RunPhase = "polling"
	PhaseReconciling RunPhase = "reconciling"
	PhaseComplete    RunPhase = "complete"
	PhaseFailed      RunPhase = "failed"
	PhaseCancelled   RunPhase = "cancelled"
)

// RunProgress is a snapshot of a run's state, published after every phase
// transition and per-batch event. Safe to copy.
type RunProgress struct {
	RunID          string    `json:"runId"`
	JobID          string    `json:"jobId,omitempty"`
	Object         string    `json:"object"`
	Phase          RunPhase  `json:"phase"`
	BytesRead      int64     `json:"bytesRead"`
	DatasetBytes   int64     `json:"datasetBytes,omitempty"` // 0 when unknown
	ChunksStaged   int       `json:"chunksStaged"`
	BatchesTotal   int       `json:"batchesTotal"`
	BatchesPending int       `json:"batchesPending"`
	Reconciled     int       `json:"reconciled"`
	Created        int       `json:"created"`
	Failed         int       `json:"failed"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ProgressFunc receives progress snapshots. Callbacks must not block.
type ProgressFunc func(RunProgress)

// Tracker retains the latest snapshot of each run for the status server.
type Tracker struct {
	mu   sync.RWMutex
	runs map[string]RunProgress
}

// NewTracker creates an empty run tracker.
func NewTracker() *Tracker {
	return &Tracker{runs: make(map[string]RunProgress)}
}

// Observe is a ProgressFunc that records the snapshot.
func (t *Tracker) Observe(p RunProgress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[p.RunID] = p
}

// Run returns the latest snapshot for a run ID.
func (t *Tracker) Run(id string) (RunProgress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.runs[id]
	return p, ok
}

// Runs returns the latest snapshot of every tracked run.
func (t *Tracker) Runs() []RunProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]RunProgress, 0, len(t.runs))
	for _, p := range t.runs {
		out = append(out, p)
	}
	return out
}
