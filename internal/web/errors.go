package web

// errors.go provides unified error response handling for the status server.
//
// Errors are logged with full technical detail server-side and returned to
// clients as a stable JSON shape with a machine-readable code.

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/bulkloader/internal/bulk"
	"github.com/JonMunkholm/bulkloader/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errPersistenceDisabled = errors.New("run history persistence is not configured")

func errNotFound(kind, id string) error {
	return fmt.Errorf("%s %q not found", kind, id)
}

// respondError logs the technical error with request context and writes a
// JSON error response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: err.Error(),
		Code:  errorCode(err, statusCode),
	})
}

// errorCode maps an error to a stable machine-readable code.
func errorCode(err error, statusCode int) string {
	var transport *bulk.TransportError
	var remote *bulk.RemoteServiceError

	switch {
	case errors.Is(err, errPersistenceDisabled):
		return "PERSISTENCE_DISABLED"
	case errors.As(err, &transport):
		return "TRANSPORT_ERROR"
	case errors.As(err, &remote):
		return "REMOTE_SERVICE_ERROR"
	case statusCode == http.StatusNotFound:
		return "NOT_FOUND"
	default:
		return "INTERNAL_ERROR"
	}
}
