package bulk

import (
	"context"
	"io"
	"strings"
	"testing"
)

func resultReader(t *testing.T, csv string) *ResultReader {
	t.Helper()
	rr, err := NewResultReader(io.NopCloser(strings.NewReader(csv)))
	if err != nil {
		t.Fatalf("NewResultReader() error = %v", err)
	}
	return rr
}

func TestResultReader_FieldMapping(t *testing.T) {
	rr := resultReader(t, "Success,Created,Id,Error\ntrue,true,001xx000003DHP0,\nfalse,false,,REQUIRED_FIELD_MISSING: Name\n")
	defer rr.Close()

	first, err := rr.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	want := RecordOutcome{Success: true, Created: true, ID: "001xx000003DHP0"}
	if first != want {
		t.Errorf("first outcome = %+v, want %+v", first, want)
	}

	second, err := rr.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if second.Success || second.Created {
		t.Errorf("second outcome = %+v, want failure", second)
	}
	if second.Error != "REQUIRED_FIELD_MISSING: Name" {
		t.Errorf("Error = %q", second.Error)
	}

	if _, err := rr.Next(); err != io.EOF {
		t.Errorf("after last row, err = %v, want io.EOF", err)
	}
}

func TestResultReader_HeaderCaseInsensitive(t *testing.T) {
	rr := resultReader(t, "SUCCESS,created,ID,error\nTRUE,True,abc,\n")
	defer rr.Close()

	o, err := rr.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if !o.Success || !o.Created || o.ID != "abc" {
		t.Errorf("outcome = %+v", o)
	}
}

func TestResultReader_ReorderedColumns(t *testing.T) {
	rr := resultReader(t, "Error,Id,Created,Success\n,rec-1,false,true\n")
	defer rr.Close()

	o, err := rr.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if !o.Success || o.Created || o.ID != "rec-1" || o.Error != "" {
		t.Errorf("outcome = %+v", o)
	}
}

func TestResultReader_HeaderOnly(t *testing.T) {
	rr := resultReader(t, "Success,Created,Id,Error\n")
	defer rr.Close()

	if _, err := rr.Next(); err != io.EOF {
		t.Errorf("Next() = %v, want io.EOF for header-only stream", err)
	}
}

func TestResultReader_EmptyStream(t *testing.T) {
	_, err := NewResultReader(io.NopCloser(strings.NewReader("")))
	if err == nil {
		t.Fatal("expected error for stream with no header")
	}
}

func TestResultReader_BoolParsing(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"true", true},
		{"TRUE", true},
		{"True", true},
		{"1", true},
		{"false", false},
		{"", false},
		{"yes", false},
		{" true ", true},
	}
	for _, tt := range tests {
		if got := parseResultBool(tt.raw); got != tt.want {
			t.Errorf("parseResultBool(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestReconcileAll(t *testing.T) {
	svc := newFakeService()
	svc.results["batch-0"] = allSuccessResult(3)

	r := NewResultReconciler(svc)
	outcomes, err := r.ReconcileAll(context.Background(), Job{ID: "job-1"}, Batch{ID: "batch-0", State: BatchCompleted})
	if err != nil {
		t.Fatalf("ReconcileAll() error = %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}
	for i, o := range outcomes {
		if !o.Success || !o.Created || o.ID == "" {
			t.Errorf("outcome %d = %+v, want created with non-empty id", i, o)
		}
	}
}

func TestReconcileAll_Idempotent(t *testing.T) {
	// Each Reconcile opens a fresh stream; two passes over the same batch
	// must yield identical outcomes.
	svc := newFakeService()
	svc.results["batch-0"] = allSuccessResult(4)

	r := NewResultReconciler(svc)
	batch := Batch{ID: "batch-0", State: BatchCompleted}

	first, err := r.ReconcileAll(context.Background(), Job{ID: "job-1"}, batch)
	if err != nil {
		t.Fatalf("first ReconcileAll() error = %v", err)
	}
	second, err := r.ReconcileAll(context.Background(), Job{ID: "job-1"}, batch)
	if err != nil {
		t.Fatalf("second ReconcileAll() error = %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("outcome %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestReconcileAll_FailedBatchStillReconciled(t *testing.T) {
	// A Failed batch is a normal terminal outcome; its result stream is
	// read the same way and yields per-record failures.
	svc := newFakeService()
	svc.results["batch-0"] = "Success,Created,Id,Error\nfalse,false,,INVALID_FIELD\nfalse,false,,INVALID_FIELD\n"

	r := NewResultReconciler(svc)
	outcomes, err := r.ReconcileAll(context.Background(), Job{ID: "job-1"}, Batch{ID: "batch-0", State: BatchFailed})
	if err != nil {
		t.Fatalf("ReconcileAll() error = %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outcomes))
	}
	for _, o := range outcomes {
		if o.Success || o.Error == "" {
			t.Errorf("outcome = %+v, want failure with error text", o)
		}
	}
}
