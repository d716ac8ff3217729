package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func staticCheck(name string, err error) Check {
	return Check{Name: name, Ping: func(context.Context) error { return err }}
}

type healthEnvelope struct {
	Status    string         `json:"status"`
	Data      HealthResponse `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) healthEnvelope {
	t.Helper()
	var env healthEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return env
}

func TestLive_Always200(t *testing.T) {
	t.Parallel()

	h := NewHealthHandler("test-version", staticCheck("database", errors.New("down")))

	rec := httptest.NewRecorder()
	h.Live(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	env := decodeHealth(t, rec)
	if env.Status != "success" || env.Data.Status != "ok" {
		t.Errorf("unexpected body %+v", env)
	}
	if env.Timestamp == 0 {
		t.Error("expected non-zero timestamp")
	}
}

func TestReady(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		checks []Check
		code   int
		status string
	}{
		{"no checks", nil, http.StatusOK, "ok"},
		{"all up", []Check{staticCheck("database", nil), staticCheck("notify", nil)}, http.StatusOK, "ok"},
		{"database down", []Check{staticCheck("database", errors.New("connection refused")), staticCheck("notify", nil)}, http.StatusServiceUnavailable, "down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHealthHandler("test-version", tt.checks...)
			rec := httptest.NewRecorder()
			h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rec.Code != tt.code {
				t.Fatalf("expected status %d, got %d", tt.code, rec.Code)
			}
			if got := decodeHealth(t, rec).Data.Status; got != tt.status {
				t.Errorf("expected status %q, got %q", tt.status, got)
			}
		})
	}
}

func TestHealth_ReportsComponents(t *testing.T) {
	t.Parallel()

	h := NewHealthHandler("1.2.3",
		staticCheck("database", nil),
		staticCheck("notify", errors.New("nats disconnected")),
	)
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	data := decodeHealth(t, rec).Data
	if data.Version != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %q", data.Version)
	}
	db := data.Components["database"]
	if db.Status != "ok" || db.Latency == "" {
		t.Errorf("database component = %+v", db)
	}
	n := data.Components["notify"]
	if n.Status != "down" || n.Error != "nats disconnected" {
		t.Errorf("notify component = %+v", n)
	}
}
