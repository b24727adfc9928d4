package bulk

// errors.go defines the typed error kinds surfaced by the orchestration
// pipeline. Callers distinguish them with errors.As:
//
//   - TransportError: network/connectivity failure talking to the remote
//     service. Recoverable; a candidate for caller-level retry.
//   - RemoteServiceError: the remote service rejected a request (malformed
//     job or batch). Never retried automatically.
//   - ChunkingError: malformed input stream, e.g. a missing header row.
//   - TimeoutError: the bounded completion wait expired with batches still
//     pending.

import (
	"fmt"
	"strings"
	"time"
)

// TransportError wraps a network-level failure reaching the remote service.
type TransportError struct {
	Op  string // operation being attempted, e.g. "submit batch"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteServiceError reports a request the remote service rejected.
type RemoteServiceError struct {
	Op      string
	Code    string // remote error code, e.g. "InvalidJob"
	Message string
}

func (e *RemoteServiceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote service: %s: %s: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("remote service: %s: %s", e.Op, e.Message)
}

// ChunkingError reports a malformed input dataset.
type ChunkingError struct {
	Reason string
	Err    error
}

func (e *ChunkingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chunking: %s: %v", e.Reason, e.Err)
	}
	return "chunking: " + e.Reason
}

func (e *ChunkingError) Unwrap() error { return e.Err }

// TimeoutError reports that the completion wait exceeded its configured
// bound while the listed batches had not reached a terminal state.
type TimeoutError struct {
	Wait    time.Duration
	Pending []string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("completion wait exceeded %s with %d batches pending: %s",
		e.Wait, len(e.Pending), strings.Join(e.Pending, ", "))
}
