package bulk

// poller.go waits for every submitted batch to reach a terminal state.
//
// The loop issues one bulk status query per cycle (never one call per batch)
// and removes batches from the pending set as they complete or fail. The
// first cycle runs immediately; subsequent cycles sleep for the configured
// interval. An optional maximum wait bounds the loop; the original behavior
// of waiting forever is preserved when MaxWait is zero.

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// DefaultPollInterval is the delay between status query cycles.
const DefaultPollInterval = 10 * time.Second

// CompletionPoller polls remote batch states until all are terminal.
type CompletionPoller struct {
	svc      Service
	interval time.Duration
	maxWait  time.Duration // 0 = unbounded
}

// NewCompletionPoller creates a poller. interval <= 0 falls back to
// DefaultPollInterval; maxWait <= 0 disables the timeout.
func NewCompletionPoller(svc Service, interval, maxWait time.Duration) *CompletionPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &CompletionPoller{svc: svc, interval: interval, maxWait: maxWait}
}

// AwaitAll blocks until every batch reaches Completed or Failed and returns
// the terminal state per batch ID. It fails with *TimeoutError when MaxWait
// is exceeded, and with ctx.Err() on cancellation; in both cases no states
// are fabricated for still-pending batches.
//
// Transient status-query failures are logged and retried on the next cycle
// rather than aborting the wait.
func (p *CompletionPoller) AwaitAll(ctx context.Context, job Job, batches []Batch) (map[string]BatchState, error) {
	// Build the pending set eagerly before the first cycle.
	pending := make(map[string]struct{}, len(batches))
	for _, b := range batches {
		pending[b.ID] = struct{}{}
	}

	terminal := make(map[string]BatchState, len(batches))

	var deadline time.Time
	if p.maxWait > 0 {
		deadline = time.Now().Add(p.maxWait)
	}

	sleep := time.Duration(0)
	for len(pending) > 0 {
		if err := sleepCtx(ctx, sleep); err != nil {
			return terminal, err
		}
		sleep = p.interval

		if !deadline.IsZero() && time.Now().After(deadline) {
			return terminal, &TimeoutError{Wait: p.maxWait, Pending: pendingIDs(pending)}
		}

		states, err := p.svc.BatchStates(ctx, job.ID)
		if err != nil {
			if ctx.Err() != nil {
				return terminal, ctx.Err()
			}
			slog.Warn("batch status query failed, will retry", "job_id", job.ID, "error", err)
			continue
		}

		for _, st := range states {
			if !st.State.Terminal() {
				continue
			}
			if _, ok := pending[st.BatchID]; ok {
				delete(pending, st.BatchID)
				terminal[st.BatchID] = st.State
				slog.Info("batch reached terminal state",
					"job_id", job.ID,
					"batch_id", st.BatchID,
					"state", string(st.State),
					"remaining", len(pending),
				)
			}
		}
	}

	return terminal, nil
}

func pendingIDs(pending map[string]struct{}) []string {
	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
