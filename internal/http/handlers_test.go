package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/example/rider-client/internal/logging"
)

func TestStatusEndpoints(t *testing.T) {
	var connected atomic.Bool
	s := NewStatusServer(logging.Discard(), func() any { return map[string]string{"phase": "idle"} },
		Check{Name: "channel", Fn: func(context.Context) error {
			if !connected.Load() {
				return errors.New("not connected")
			}
			return nil
		}})
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("healthz: %v %v", resp, err)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected a request id header")
	}
	resp.Body.Close()

	resp, _ = http.Get(srv.URL + "/ready")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while disconnected, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	connected.Store(true)
	resp, _ = http.Get(srv.URL + "/ready")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 once connected, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, _ = http.Get(srv.URL + "/v1/state")
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if body["phase"] != "idle" {
		t.Fatalf("unexpected state body %v", body)
	}

	resp, _ = http.Get(srv.URL + "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRecoverMiddleware(t *testing.T) {
	s := NewStatusServer(logging.Discard(), func() any { panic("boom") })
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/state", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rec.Code)
	}
}
