package bulk

import (
	"context"
	"io"
)

// Service is the capability contract for the remote asynchronous batch
// service. Concrete transports (the async REST adapter in
// internal/salesforce, fakes in tests) implement it; the orchestration
// pipeline depends on nothing else.
//
// All methods honor context cancellation. Write operations mutate remote
// state and must not be retried by implementations; read operations
// (BatchStates, BatchResult) may be.
type Service interface {
	// CreateJob registers a new bulk job for the target object and
	// operation kind and returns its remote identifier.
	CreateJob(ctx context.Context, object string, op Operation) (string, error)

	// AddBatch submits one chunk payload (header + data rows, delimited
	// text) to an open job and returns the batch identifier.
	AddBatch(ctx context.Context, jobID string, body io.Reader) (string, error)

	// CloseJob marks the job closed for further submissions.
	CloseJob(ctx context.Context, jobID string) error

	// BatchStates returns the current state of every batch of the job in
	// a single call.
	BatchStates(ctx context.Context, jobID string) ([]BatchStatus, error)

	// BatchResult opens the per-record result stream of a terminal batch:
	// delimited-text rows with a header declaring the result field names
	// (at least Success, Created, Id, Error). The caller closes it.
	BatchResult(ctx context.Context, jobID, batchID string) (io.ReadCloser, error)
}
