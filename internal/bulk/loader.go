package bulk

// loader.go composes the pipeline: chunk -> create job -> submit batches ->
// close job -> await completion -> reconcile -> aggregate report.
//
// Failure policy (in pipeline order):
//   - chunking or job-creation errors abort the run
//   - a batch submission error aborts the run only while no batch has been
//     submitted successfully; afterwards it degrades that batch's report
//     entry and the run continues
//   - closing the job is fail-fast
//   - once the job is closed, failures are per-batch: reconciliation
//     continues for every batch it can reach, and batches that never
//     reached a terminal state are reported as unresolved, never omitted

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/bulkloader/internal/chunk"
	"github.com/JonMunkholm/bulkloader/internal/staging"
	"github.com/google/uuid"
)

// Config holds the tunables of one load run.
type Config struct {
	MaxBatchBytes int           // serialized chunk size bound (default 10,000,000)
	MaxBatchRows  int           // data rows per chunk bound (default 10,000)
	Workers       int           // parallel submission/reconciliation bound
	PollInterval  time.Duration // delay between status cycles (default 10s)
	MaxWait       time.Duration // completion wait bound, 0 = unbounded
	DatasetBytes  int64         // estimated dataset size for progress, 0 = unknown
}

// Loader orchestrates one bulk load run end to end.
type Loader struct {
	controller *JobController
	poller     *CompletionPoller
	reconciler *ResultReconciler
	provider   staging.Provider
	cfg        Config
	progress   ProgressFunc
}

// NewLoader wires the pipeline over a remote service and a staging provider.
func NewLoader(svc Service, provider staging.Provider, cfg Config) *Loader {
	if cfg.MaxBatchBytes <= 0 {
		cfg.MaxBatchBytes = chunk.DefaultMaxBytes
	}
	if cfg.MaxBatchRows <= 0 {
		cfg.MaxBatchRows = chunk.DefaultMaxRows
	}
	return &Loader{
		controller: NewJobController(svc),
		poller:     NewCompletionPoller(svc, cfg.PollInterval, cfg.MaxWait),
		reconciler: NewResultReconciler(svc),
		provider:   provider,
		cfg:        cfg,
	}
}

// OnProgress registers a snapshot callback invoked on phase transitions and
// per-batch events. Must be set before Run.
func (l *Loader) OnProgress(fn ProgressFunc) { l.progress = fn }

// run carries the mutable state of one Run invocation.
type run struct {
	job      Job
	mu       sync.Mutex
	entries  map[string]*BatchReport
	batches  []Batch // successfully submitted, any order
	submitOK int
	firstErr error

	snap RunProgress
}

// Run executes the whole pipeline and returns the aggregate report.
//
// On a completion-wait timeout the returned error is a *TimeoutError and the
// report still enumerates every batch: terminal ones reconciled, pending
// ones unresolved with a failure reason.
func (l *Loader) Run(ctx context.Context, dataset io.Reader, object string, op Operation) (*Report, error) {
	start := time.Now()
	st := &run{
		entries: make(map[string]*BatchReport),
		snap: RunProgress{
			RunID:        uuid.New().String(),
			Object:       object,
			Phase:        PhaseChunking,
			DatasetBytes: l.cfg.DatasetBytes,
			StartedAt:    start,
		},
	}
	l.publish(st)

	log := slog.With("run_id", st.snap.RunID, "object", object)

	job, err := l.controller.CreateJob(ctx, object, op)
	if err != nil {
		return nil, l.fail(st, fmt.Errorf("create job: %w", err))
	}
	st.job = job
	st.snap.JobID = job.ID

	if err := l.submitAll(ctx, st, dataset); err != nil {
		return nil, l.fail(st, err)
	}
	if st.submitOK == 0 {
		if st.firstErr != nil {
			return nil, l.fail(st, fmt.Errorf("no batch submitted: %w", st.firstErr))
		}
		return nil, l.fail(st, &ChunkingError{Reason: "dataset has no data rows"})
	}

	if err := l.controller.CloseJob(ctx, &st.job); err != nil {
		return nil, l.fail(st, fmt.Errorf("close job: %w", err))
	}

	l.setPhase(st, PhasePolling)
	terminal, waitErr := l.poller.AwaitAll(ctx, st.job, st.batches)
	if waitErr != nil {
		if _, ok := waitErr.(*TimeoutError); !ok {
			return nil, l.fail(st, waitErr)
		}
		log.Warn("completion wait timed out", "terminal", len(terminal), "total", len(st.batches))
	}

	l.setPhase(st, PhaseReconciling)
	l.reconcileAll(ctx, st, terminal)

	report := l.buildReport(st, time.Since(start))
	l.setPhase(st, PhaseComplete)
	st.mu.Lock()
	st.snap.Created = report.Created
	st.snap.Failed = report.Failed
	st.mu.Unlock()
	l.publish(st)

	log.Info("run complete",
		"job_id", st.job.ID,
		"batches", len(report.Order),
		"created", report.Created,
		"updated", report.Updated,
		"failed", report.Failed,
		"unresolved", len(report.Unresolved()),
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, waitErr
}

// submitAll streams chunks out of the splitter and fans submissions out
// across the worker limiter. It returns an error only for conditions that
// abort the run (chunking failure, cancellation, or a submission failure
// before any batch succeeded).
func (l *Loader) submitAll(ctx context.Context, st *run, dataset io.Reader) error {
	l.setPhase(st, PhaseSubmitting)

	// BOM stripping and byte counting happen here so progress snapshots can
	// report how far into the dataset the splitter has read.
	counted := chunk.WrapDataset(dataset, l.cfg.DatasetBytes)
	splitter := chunk.NewSplitter(counted, l.provider, l.cfg.MaxBatchBytes, l.cfg.MaxBatchRows)
	limiter := NewWorkerLimiter(l.cfg.Workers, 0)

	var wg sync.WaitGroup
	abort := func(err error) error {
		wg.Wait()
		return err
	}

	for {
		ck, err := splitter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return abort(ctx.Err())
			}
			return abort(&ChunkingError{Reason: "split dataset", Err: err})
		}

		st.mu.Lock()
		st.snap.ChunksStaged++
		st.snap.BatchesTotal++
		st.snap.BytesRead = counted.BytesRead
		st.mu.Unlock()
		l.publish(st)

		if ck.Bytes > int64(l.cfg.MaxBatchBytes) {
			slog.Warn("oversized row emitted as its own chunk", "seq", ck.Seq, "bytes", ck.Bytes)
		}

		if err := limiter.Acquire(ctx); err != nil {
			ck.Discard(context.WithoutCancel(ctx))
			return abort(err)
		}

		wg.Add(1)
		go func(ck *chunk.Chunk) {
			defer wg.Done()
			defer limiter.Release()
			l.submitOne(ctx, st, ck)
		}(ck)
	}

	wg.Wait()

	st.mu.Lock()
	st.snap.BytesRead = counted.BytesRead
	st.mu.Unlock()

	// A submission failure only aborts while nothing was submitted; that
	// check happens in Run once all workers have finished.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// submitOne uploads a single chunk and records either a tracked batch or a
// degraded report entry. The staged payload is always released.
func (l *Loader) submitOne(ctx context.Context, st *run, ck *chunk.Chunk) {
	defer ck.Discard(context.WithoutCancel(ctx))

	batch, err := l.controller.SubmitBatch(ctx, st.job, ck)

	st.mu.Lock()
	defer st.mu.Unlock()

	if err != nil {
		if st.firstErr == nil {
			st.firstErr = err
		}
		key := fmt.Sprintf("unsubmitted-chunk-%d", ck.Seq)
		st.entries[key] = &BatchReport{
			Batch:   Batch{ID: key, JobID: st.job.ID, Seq: ck.Seq, Rows: ck.Rows, Bytes: ck.Bytes},
			Failure: fmt.Sprintf("submission failed: %v", err),
		}
		st.snap.Failed += ck.Rows
		return
	}

	st.submitOK++
	st.batches = append(st.batches, batch)
	st.entries[batch.ID] = &BatchReport{Batch: batch}
}

// reconcileAll reads result streams for every batch that reached a terminal
// state and marks the rest unresolved. Per-batch failures degrade that
// batch's entry only.
func (l *Loader) reconcileAll(ctx context.Context, st *run, terminal map[string]BatchState) {
	limiter := NewWorkerLimiter(l.cfg.Workers, 0)
	var wg sync.WaitGroup

	for _, batch := range st.batches {
		state, ok := terminal[batch.ID]
		if !ok {
			st.mu.Lock()
			st.entries[batch.ID].Failure = "did not reach a terminal state"
			st.mu.Unlock()
			continue
		}

		if err := limiter.Acquire(ctx); err != nil {
			st.mu.Lock()
			st.entries[batch.ID].Failure = fmt.Sprintf("reconciliation skipped: %v", err)
			st.mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(batch Batch, state BatchState) {
			defer wg.Done()
			defer limiter.Release()

			b := batch
			b.State = state
			outcomes, err := l.reconciler.ReconcileAll(ctx, st.job, b)

			st.mu.Lock()
			defer st.mu.Unlock()
			entry := st.entries[batch.ID]
			entry.Batch.State = state
			if err != nil {
				entry.Failure = fmt.Sprintf("results unavailable: %v", err)
				return
			}
			entry.Outcomes = outcomes
			st.snap.Reconciled++
			for _, o := range outcomes {
				if o.Success && o.Created {
					st.snap.Created++
				} else if !o.Success {
					st.snap.Failed++
				}
			}
		}(batch, state)
	}

	wg.Wait()
	l.publish(st)
}

// buildReport freezes the run state into an immutable report ordered by
// submission sequence.
func (l *Loader) buildReport(st *run, elapsed time.Duration) *Report {
	st.mu.Lock()
	defer st.mu.Unlock()

	report := &Report{
		Job:      st.job,
		Batches:  st.entries,
		Duration: elapsed,
	}

	ids := make([]string, 0, len(st.entries))
	for id := range st.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return st.entries[ids[i]].Batch.Seq < st.entries[ids[j]].Batch.Seq
	})
	report.Order = ids

	for _, id := range ids {
		for _, o := range st.entries[id].Outcomes {
			report.tally(o)
		}
	}
	return report
}

func (l *Loader) setPhase(st *run, phase RunPhase) {
	st.mu.Lock()
	st.snap.Phase = phase
	if phase == PhasePolling {
		st.snap.BatchesPending = len(st.batches)
	}
	st.mu.Unlock()
	l.publish(st)
}

// fail marks the run failed, publishes the final snapshot and returns err.
func (l *Loader) fail(st *run, err error) error {
	st.mu.Lock()
	if ctxErr(err) {
		st.snap.Phase = PhaseCancelled
	} else {
		st.snap.Phase = PhaseFailed
	}
	st.snap.Error = err.Error()
	st.mu.Unlock()
	l.publish(st)
	slog.Error("run failed", "run_id", st.snap.RunID, "error", err)
	return err
}

func (l *Loader) publish(st *run) {
	if l.progress == nil {
		return
	}
	st.mu.Lock()
	st.snap.UpdatedAt = time.Now()
	snap := st.snap
	st.mu.Unlock()
	l.progress(snap)
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
