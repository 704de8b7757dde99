package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ndewijer/Holdings-Import-Backend/internal/api/middleware"
	"github.com/ndewijer/Holdings-Import-Backend/internal/logging"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLoggerWithOutput("info", &buf)

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := chimiddleware.RequestID(middleware.Logger(logger)(next))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/system/health", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected one JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["method"] != "GET" || entry["path"] != "/api/system/health" {
		t.Errorf("Unexpected method/path in log entry: %v", entry)
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Errorf("Expected status 418, got %v", entry["status"])
	}
	if entry["request_id"] == "" || entry["request_id"] == nil {
		t.Errorf("Expected a request id, got %v", entry["request_id"])
	}
}
