package bulk

import (
	"context"
	"errors"
	"testing"
	"time"
)

func namedBatches(ids ...string) []Batch {
	batches := make([]Batch, len(ids))
	for i, id := range ids {
		batches[i] = Batch{ID: id, JobID: "job-1", Seq: i}
	}
	return batches
}

func TestCompletionPoller_AllTerminalFirstCycle(t *testing.T) {
	svc := newFakeService()
	svc.statesFn = func(call int) ([]BatchStatus, error) {
		return []BatchStatus{
			{BatchID: "a", State: BatchCompleted},
			{BatchID: "b", State: BatchFailed},
		}, nil
	}

	p := NewCompletionPoller(svc, time.Minute, 0)
	terminal, err := p.AwaitAll(context.Background(), Job{ID: "job-1"}, namedBatches("a", "b"))
	if err != nil {
		t.Fatalf("AwaitAll() error = %v", err)
	}

	if terminal["a"] != BatchCompleted {
		t.Errorf("terminal[a] = %v, want Completed", terminal["a"])
	}
	if terminal["b"] != BatchFailed {
		t.Errorf("terminal[b] = %v, want Failed", terminal["b"])
	}
	if svc.stateCalls != 1 {
		t.Errorf("stateCalls = %d, want 1 (first cycle must not sleep)", svc.stateCalls)
	}
}

func TestCompletionPoller_GradualCompletion(t *testing.T) {
	svc := newFakeService()
	svc.statesFn = func(call int) ([]BatchStatus, error) {
		switch call {
		case 0:
			return []BatchStatus{
				{BatchID: "a", State: BatchInProgress},
				{BatchID: "b", State: BatchQueued},
			}, nil
		case 1:
			return []BatchStatus{
				{BatchID: "a", State: BatchCompleted},
				{BatchID: "b", State: BatchInProgress},
			}, nil
		default:
			return []BatchStatus{
				{BatchID: "a", State: BatchCompleted},
				{BatchID: "b", State: BatchFailed},
			}, nil
		}
	}

	p := NewCompletionPoller(svc, time.Millisecond, 0)
	terminal, err := p.AwaitAll(context.Background(), Job{ID: "job-1"}, namedBatches("a", "b"))
	if err != nil {
		t.Fatalf("AwaitAll() error = %v", err)
	}

	if len(terminal) != 2 {
		t.Fatalf("terminal count = %d, want 2", len(terminal))
	}
	if svc.stateCalls != 3 {
		t.Errorf("stateCalls = %d, want 3 (one query per cycle)", svc.stateCalls)
	}
}

func TestCompletionPoller_TransientQueryFailure(t *testing.T) {
	svc := newFakeService()
	svc.statesFn = func(call int) ([]BatchStatus, error) {
		if call == 0 {
			return nil, &TransportError{Op: "query batch states", Err: errors.New("connection reset")}
		}
		return []BatchStatus{{BatchID: "a", State: BatchCompleted}}, nil
	}

	p := NewCompletionPoller(svc, time.Millisecond, 0)
	terminal, err := p.AwaitAll(context.Background(), Job{ID: "job-1"}, namedBatches("a"))
	if err != nil {
		t.Fatalf("AwaitAll() error = %v, want retry instead", err)
	}
	if terminal["a"] != BatchCompleted {
		t.Errorf("terminal[a] = %v, want Completed", terminal["a"])
	}
}

func TestCompletionPoller_Timeout(t *testing.T) {
	svc := newFakeService()
	svc.statesFn = func(call int) ([]BatchStatus, error) {
		return []BatchStatus{
			{BatchID: "a", State: BatchCompleted},
			{BatchID: "b", State: BatchInProgress},
		}, nil
	}

	p := NewCompletionPoller(svc, 10*time.Millisecond, 25*time.Millisecond)
	terminal, err := p.AwaitAll(context.Background(), Job{ID: "job-1"}, namedBatches("a", "b"))

	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("error = %v, want *TimeoutError", err)
	}
	if len(timeout.Pending) != 1 || timeout.Pending[0] != "b" {
		t.Errorf("Pending = %v, want [b]", timeout.Pending)
	}
	// Partial terminal states are still returned
	if terminal["a"] != BatchCompleted {
		t.Errorf("terminal[a] = %v, want Completed", terminal["a"])
	}
	if _, ok := terminal["b"]; ok {
		t.Errorf("terminal[b] present; no state may be fabricated for a pending batch")
	}
}

func TestCompletionPoller_Cancellation(t *testing.T) {
	svc := newFakeService()
	svc.statesFn = func(call int) ([]BatchStatus, error) {
		return []BatchStatus{{BatchID: "a", State: BatchInProgress}}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	p := NewCompletionPoller(svc, 5*time.Millisecond, 0)
	_, err := p.AwaitAll(ctx, Job{ID: "job-1"}, namedBatches("a"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestCompletionPoller_NoBatches(t *testing.T) {
	svc := newFakeService()
	p := NewCompletionPoller(svc, time.Minute, 0)

	terminal, err := p.AwaitAll(context.Background(), Job{ID: "job-1"}, nil)
	if err != nil {
		t.Fatalf("AwaitAll() error = %v", err)
	}
	if len(terminal) != 0 {
		t.Errorf("terminal = %v, want empty", terminal)
	}
	if svc.stateCalls != 0 {
		t.Errorf("stateCalls = %d, want 0", svc.stateCalls)
	}
}
