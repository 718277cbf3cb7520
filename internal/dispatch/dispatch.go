// Package dispatch escalates a ride to a telephony call when automatic
// matching does not produce a driver within the pooling window.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/rider-client/internal/observability"
)

var ErrCallFailed = errors.New("driver call failed")

type CallResult struct {
	Success bool   `json:"success"`
	CallSID string `json:"callSid,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CallDispatcher posts fallback call requests to the telephony endpoint.
type CallDispatcher struct {
	Endpoint string
	Phone    string
	Token    func() string
	Client   *http.Client
	Logger   *slog.Logger
}

func NewCallDispatcher(endpoint, phone string, token func() string, timeout time.Duration, logger *slog.Logger) *CallDispatcher {
	return &CallDispatcher{
		Endpoint: endpoint,
		Phone:    phone,
		Token:    token,
		Client:   &http.Client{Timeout: timeout},
		Logger:   logger.With("component", "dispatch"),
	}
}

// CallDriver asks the backend to phone a driver for rideID. A response
// with success=false is reported as ErrCallFailed.
func (d *CallDispatcher) CallDriver(ctx context.Context, rideID, pickup, destination string) (CallResult, error) {
	payload := map[string]string{
		"phone":       d.Phone,
		"rideId":      rideID,
		"pickup":      pickup,
		"destination": destination,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return CallResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint, bytes.NewReader(b))
	if err != nil {
		return CallResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.Token != nil {
		if tok := d.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		observability.FallbackCalls.WithLabelValues("transport_error").Inc()
		return CallResult{}, fmt.Errorf("call driver: %w", err)
	}
	defer resp.Body.Close()

	var out CallResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		observability.FallbackCalls.WithLabelValues("bad_response").Inc()
		return CallResult{}, fmt.Errorf("call driver: decode response (http %d): %w", resp.StatusCode, err)
	}
	if !out.Success {
		observability.FallbackCalls.WithLabelValues("rejected").Inc()
		msg := out.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return out, fmt.Errorf("%w: %s", ErrCallFailed, msg)
	}
	observability.FallbackCalls.WithLabelValues("ok").Inc()
	d.Logger.Info("fallback call initiated", "ride_id", rideID, "call_sid", out.CallSID)
	return out, nil
}
