// Package api is the rider's REST client for the ride and maps
// collaborators. Every call is bounded by the request context and the
// client timeout, and carries the rider's bearer token.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/rider-client/internal/models"
	"github.com/example/rider-client/internal/observability"
)

// MinSuggestionInput is the shortest trimmed input the server accepts.
const MinSuggestionInput = 3

var ErrInputTooShort = errors.New("suggestion input shorter than 3 characters")

// StatusError is a non-2xx collaborator response.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.Code, e.Message)
}

type Client struct {
	BaseURL string
	Token   func() string
	HTTP    *http.Client
}

func NewClient(baseURL string, token func() string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) CreateRide(ctx context.Context, req models.RideRequest) (models.Ride, error) {
	var ride models.Ride
	err := c.do(ctx, "create_ride", http.MethodPost, "/rides/create", nil, req, &ride)
	if err == nil && ride.ID == "" {
		err = errors.New("create_ride: response carried no ride id")
	}
	return ride, err
}

func (c *Client) Fare(ctx context.Context, pickup, destination string) (models.FareTable, error) {
	q := url.Values{"pickup": {pickup}, "destination": {destination}}
	fare := models.FareTable{}
	err := c.do(ctx, "get_fare", http.MethodGet, "/rides/get-fare", q, nil, &fare)
	return fare, err
}

func (c *Client) Suggestions(ctx context.Context, input string) ([]models.Suggestion, error) {
	if len(strings.TrimSpace(input)) < MinSuggestionInput {
		return nil, ErrInputTooShort
	}
	var out []models.Suggestion
	err := c.do(ctx, "get_suggestions", http.MethodGet, "/maps/get-suggestions", url.Values{"input": {input}}, nil, &out)
	return out, err
}

func (c *Client) PlaceDetails(ctx context.Context, placeID string) (models.Location, error) {
	var out struct {
		Location models.Location `json:"location"`
	}
	err := c.do(ctx, "get_place_details", http.MethodGet, "/maps/get-place-details", url.Values{"place_id": {placeID}}, nil, &out)
	return out.Location, err
}

// Route fetches the ordered waypoints between two points.
func (c *Client) Route(ctx context.Context, from, to models.Location) ([]models.Location, error) {
	q := url.Values{"pickup": {formatLatLng(from)}, "destination": {formatLatLng(to)}}
	var out []models.Location
	err := c.do(ctx, "get_route", http.MethodGet, "/maps/get-route", q, nil, &out)
	return out, err
}

func formatLatLng(l models.Location) string {
	return strconv.FormatFloat(l.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(l.Lng, 'f', 6, 64)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) (err error) {
	start := time.Now()
	status := "error"
	defer func() {
		observability.CollaboratorDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	}()

	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != nil {
		if tok := c.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, Code: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// errorMessage extracts {"message"} or {"error"} from an error body.
func errorMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(b, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(b))
}
