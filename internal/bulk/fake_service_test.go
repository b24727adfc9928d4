package bulk

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// fakeService is an in-memory bulk.Service for pipeline tests. Batch IDs
// are assigned sequentially ("batch-0", "batch-1", ...) in submission
// order; results and errors are scripted per batch.
type fakeService struct {
	mu sync.Mutex

	createErr error
	closeErr  error

	// addErr fails the nth AddBatch call (0-based) when set.
	addErr map[int]error

	// statesFn scripts the nth BatchStates call (0-based).
	statesFn func(call int) ([]BatchStatus, error)

	// results maps batch ID to its CSV result stream.
	results   map[string]string
	resultErr map[string]error

	jobID      string
	closed     bool
	added      []string // payloads in submission order
	stateCalls int
}

func newFakeService() *fakeService {
	return &fakeService{
		jobID:     "job-1",
		addErr:    make(map[int]error),
		results:   make(map[string]string),
		resultErr: make(map[string]error),
	}
}

func (f *fakeService) CreateJob(ctx context.Context, object string, op Operation) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.jobID, nil
}

func (f *fakeService) AddBatch(ctx context.Context, jobID string, body io.Reader) (string, error) {
	payload, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	n := len(f.added)
	f.added = append(f.added, string(payload))
	if err, ok := f.addErr[n]; ok {
		return "", err
	}
	return fmt.Sprintf("batch-%d", n), nil
}

func (f *fakeService) CloseJob(ctx context.Context, jobID string) error {
	if f.closeErr != nil {
		return f.closeErr
	}
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeService) BatchStates(ctx context.Context, jobID string) ([]BatchStatus, error) {
	f.mu.Lock()
	call := f.stateCalls
	f.stateCalls++
	f.mu.Unlock()

	if f.statesFn != nil {
		return f.statesFn(call)
	}

	// Default: every submitted batch is Completed immediately.
	f.mu.Lock()
	defer f.mu.Unlock()
	states := make([]BatchStatus, 0, len(f.added))
	for i := range f.added {
		states = append(states, BatchStatus{BatchID: fmt.Sprintf("batch-%d", i), State: BatchCompleted})
	}
	return states, nil
}

func (f *fakeService) BatchResult(ctx context.Context, jobID, batchID string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.resultErr[batchID]; ok {
		return nil, err
	}
	csv, ok := f.results[batchID]
	if !ok {
		return nil, fmt.Errorf("no results for %s", batchID)
	}
	return io.NopCloser(strings.NewReader(csv)), nil
}

func (f *fakeService) payloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.added...)
}

// allSuccessResult builds a result CSV with n created records.
func allSuccessResult(n int) string {
	var b strings.Builder
	b.WriteString("Success,Created,Id,Error\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "true,true,001%06d,\n", i)
	}
	return b.String()
}
