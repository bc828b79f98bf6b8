package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/manzil-bh/manzil-backend/internal/logging"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := logging.ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if logging.FromContext(context.Background()) != slog.Default() {
		t.Error("expected slog.Default() without a request logger")
	}
}

func TestMiddlewareLogsStatusAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Options{JSON: true, Writer: &buf})

	var sawLogger bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawLogger = logging.FromContext(r.Context()) != slog.Default()
		w.WriteHeader(http.StatusTeapot)
	})

	h := middleware.RequestID(logging.Middleware(logger)(inner))
	req := httptest.NewRequest(http.MethodGet, "/marketplace/land", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !sawLogger {
		t.Error("handler did not receive a request-scoped logger")
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log output is not one JSON line: %q", buf.String())
	}
	if line["status"] != float64(http.StatusTeapot) {
		t.Errorf("status = %v", line["status"])
	}
	if line["path"] != "/marketplace/land" {
		t.Errorf("path = %v", line["path"])
	}
	if line["request_id"] == "" || line["request_id"] == nil {
		t.Error("missing request_id")
	}
	if line["level"] != "WARN" {
		t.Errorf("4xx should log at WARN, got %v", line["level"])
	}
}
