package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/manzil-bh/manzil-backend/internal/scheduler"
)

func TestMapConfigHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	MapConfigHandler("pk.test")(rec, httptest.NewRequest(http.MethodGet, "/config/map", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["mapbox_token"] != "pk.test" {
		t.Errorf("body = %v", body)
	}
}

func TestRootHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	RootHandler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "Server is up!\n" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRunJobHandler(t *testing.T) {
	sched := scheduler.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ran := false
	if err := sched.Add(scheduler.Job{Name: "noop", Run: func(context.Context) error { ran = true; return nil }}); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	RunJobHandler(sched, "noop")(rec, httptest.NewRequest(http.MethodPost, "/admin/reindex", nil))
	if rec.Code != http.StatusOK || !ran {
		t.Errorf("status = %d, ran = %v", rec.Code, ran)
	}

	rec = httptest.NewRecorder()
	RunJobHandler(sched, "missing")(rec, httptest.NewRequest(http.MethodPost, "/admin/reindex", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("unknown job status = %d", rec.Code)
	}
}
