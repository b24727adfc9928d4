package bulk

// reconcile.go turns a terminal batch's result stream into structured
// per-record outcomes.
//
// The result stream is delimited text: a header row declaring the result
// field names, then one row per submitted record with fields matched
// positionally to that header. Both Completed and Failed batches are
// reconciled; a Failed batch typically yields all-failed outcomes.

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ResultReconciler reads per-record outcome rows for terminal batches.
type ResultReconciler struct {
	svc Service
}

// NewResultReconciler creates a reconciler over the given remote service.
func NewResultReconciler(svc Service) *ResultReconciler {
	return &ResultReconciler{svc: svc}
}

// Reconcile opens the batch's result stream and returns a lazy reader over
// its record outcomes. The caller must Close the reader; the stream is
// consumed once and is not restartable.
func (r *ResultReconciler) Reconcile(ctx context.Context, job Job, batch Batch) (*ResultReader, error) {
	stream, err := r.svc.BatchResult(ctx, job.ID, batch.ID)
	if err != nil {
		return nil, err
	}
	return NewResultReader(stream)
}

// ReconcileAll drains the result stream into a slice. Convenience for
// callers that want every outcome at once.
func (r *ResultReconciler) ReconcileAll(ctx context.Context, job Job, batch Batch) ([]RecordOutcome, error) {
	rr, err := r.Reconcile(ctx, job, batch)
	if err != nil {
		return nil, err
	}
	defer rr.Close()

	var outcomes []RecordOutcome
	for {
		o, err := rr.Next()
		if err == io.EOF {
			return outcomes, nil
		}
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, o)
	}
}

// ResultReader streams RecordOutcomes from one batch result stream.
type ResultReader struct {
	src    io.ReadCloser
	csv    *csv.Reader
	fields map[string]int // lowercased result field name -> column
}

// NewResultReader reads the result header row and prepares field mapping.
// A stream with no rows at all is malformed; a header-only stream is valid
// and yields io.EOF on the first Next.
func NewResultReader(src io.ReadCloser) (*ResultReader, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		src.Close()
		return nil, fmt.Errorf("result stream has no header row")
	}
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("read result header: %w", err)
	}

	fields := make(map[string]int, len(header))
	for i, name := range header {
		fields[strings.ToLower(strings.TrimSpace(name))] = i
	}

	return &ResultReader{src: src, csv: cr, fields: fields}, nil
}

// Next returns the next record outcome, or io.EOF when the stream ends.
func (r *ResultReader) Next() (RecordOutcome, error) {
	row, err := r.csv.Read()
	if err == io.EOF {
		return RecordOutcome{}, io.EOF
	}
	if err != nil {
		return RecordOutcome{}, fmt.Errorf("read result row: %w", err)
	}

	return RecordOutcome{
		Success: parseResultBool(r.field(row, "success")),
		Created: parseResultBool(r.field(row, "created")),
		ID:      r.field(row, "id"),
		Error:   r.field(row, "error"),
	}, nil
}

// Close releases the underlying stream.
func (r *ResultReader) Close() error {
	return r.src.Close()
}

func (r *ResultReader) field(row []string, name string) string {
	i, ok := r.fields[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// parseResultBool follows the remote service's boolean encoding: "true"
// (any case) is true, everything else false.
func parseResultBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}
