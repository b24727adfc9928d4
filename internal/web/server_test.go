package web

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JonMunkholm/bulkloader/internal/bulk"
)

func TestHealthz(t *testing.T) {
	srv := NewServer(bulk.NewTracker(), nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestListRuns(t *testing.T) {
	tracker := bulk.NewTracker()
	tracker.Observe(bulk.RunProgress{RunID: "r1", Object: "Account", Phase: bulk.PhaseComplete, StartedAt: time.Now().Add(-time.Minute)})
	tracker.Observe(bulk.RunProgress{RunID: "r2", Object: "Contact", Phase: bulk.PhasePolling, StartedAt: time.Now()})

	srv := NewServer(tracker, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var runs []bulk.RunProgress
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	// Newest first
	if runs[0].RunID != "r2" {
		t.Errorf("runs[0] = %s, want r2", runs[0].RunID)
	}
}

func TestGetRun(t *testing.T) {
	tracker := bulk.NewTracker()
	tracker.Observe(bulk.RunProgress{RunID: "r1", Object: "Account", Phase: bulk.PhaseSubmitting})

	srv := NewServer(tracker, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/r1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var run bulk.RunProgress
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.Phase != bulk.PhaseSubmitting {
		t.Errorf("phase = %s", run.Phase)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	srv := NewServer(bulk.NewTracker(), nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != "NOT_FOUND" {
		t.Errorf("code = %q, want NOT_FOUND", resp.Code)
	}
}

func TestErrorLogCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	srv := NewServer(bulk.NewTracker(), nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var found bool
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var entry map[string]any
		if err := dec.Decode(&entry); err != nil {
			t.Fatalf("decode log entry: %v", err)
		}
		if entry["msg"] != "request error" {
			continue
		}
		found = true
		id, _ := entry["request_id"].(string)
		if id == "" {
			t.Errorf("log entry missing request_id: %v", entry)
		}
		if entry["path"] != "/api/runs/missing" {
			t.Errorf("path = %v", entry["path"])
		}
	}
	if !found {
		t.Fatal("no request error log entry was written")
	}
}

func TestHistory_PersistenceDisabled(t *testing.T) {
	srv := NewServer(bulk.NewTracker(), nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != "PERSISTENCE_DISABLED" {
		t.Errorf("code = %q", resp.Code)
	}
}
