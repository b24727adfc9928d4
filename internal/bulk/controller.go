package bulk

// controller.go manages the remote job lifecycle: create, submit batches,
// close. No retry happens at this layer; transient failures propagate to the
// orchestrator, which decides whether they abort the run or degrade a single
// batch entry.

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/bulkloader/internal/chunk"
)

// JobController creates and closes remote jobs and submits chunks as batches.
type JobController struct {
	svc Service
}

// NewJobController creates a controller over the given remote service.
func NewJobController(svc Service) *JobController {
	return &JobController{svc: svc}
}

// CreateJob registers a new bulk job for the target object and operation.
func (c *JobController) CreateJob(ctx context.Context, object string, op Operation) (Job, error) {
	id, err := c.svc.CreateJob(ctx, object, op)
	if err != nil {
		return Job{}, err
	}

	job := Job{
		ID:        id,
		Object:    object,
		Operation: op,
		State:     JobOpen,
		CreatedAt: time.Now(),
	}
	slog.Info("job created", "job_id", job.ID, "object", object, "operation", string(op))
	return job, nil
}

// SubmitBatch uploads one staged chunk to the job and returns its batch
// tracking entry. The chunk payload is streamed, not buffered.
func (c *JobController) SubmitBatch(ctx context.Context, job Job, ck *chunk.Chunk) (Batch, error) {
	body, err := ck.Open(ctx)
	if err != nil {
		return Batch{}, &TransportError{Op: "open staged chunk", Err: err}
	}
	defer body.Close()

	id, err := c.svc.AddBatch(ctx, job.ID, body)
	if err != nil {
		return Batch{}, err
	}

	b := Batch{
		ID:    id,
		JobID: job.ID,
		Seq:   ck.Seq,
		State: BatchQueued,
		Rows:  ck.Rows,
		Bytes: ck.Bytes,
	}
	slog.Debug("batch submitted", "job_id", job.ID, "batch_id", b.ID, "seq", b.Seq, "rows", b.Rows, "bytes", b.Bytes)
	return b, nil
}

// CloseJob marks the job closed for further submissions. Must be called
// exactly once, after all batches are submitted and before polling begins.
func (c *JobController) CloseJob(ctx context.Context, job *Job) error {
	if err := c.svc.CloseJob(ctx, job.ID); err != nil {
		return err
	}
	job.State = JobClosed
	slog.Info("job closed", "job_id", job.ID)
	return nil
}
