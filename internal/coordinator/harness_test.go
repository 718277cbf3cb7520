package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/example/rider-client/internal/channel"
	"github.com/example/rider-client/internal/clock"
	"github.com/example/rider-client/internal/dispatch"
	"github.com/example/rider-client/internal/logging"
	"github.com/example/rider-client/internal/models"
	"github.com/example/rider-client/internal/trip"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu          sync.Mutex
	suggestions []string
	creates     []models.RideRequest
	fares       int

	createHook func(req models.RideRequest) (models.Ride, error)
	fareErr    error
	placeErr   error
}

func (f *fakeAPI) CreateRide(_ context.Context, req models.RideRequest) (models.Ride, error) {
	f.mu.Lock()
	f.creates = append(f.creates, req)
	n := len(f.creates)
	hook := f.createHook
	f.mu.Unlock()
	if hook != nil {
		return hook(req)
	}
	return models.Ride{ID: "ride-" + strconv.Itoa(n), Pickup: req.Pickup, Destination: req.Destination, VehicleType: req.VehicleType, PassengerCount: req.PassengerCount}, nil
}

func (f *fakeAPI) Fare(context.Context, string, string) (models.FareTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fares++
	if f.fareErr != nil {
		return nil, f.fareErr
	}
	return models.FareTable{models.VehicleAuto: 120}, nil
}

func (f *fakeAPI) Suggestions(_ context.Context, input string) ([]models.Suggestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suggestions = append(f.suggestions, input)
	return []models.Suggestion{{Description: input, PlaceID: "place-" + input}}, nil
}

func (f *fakeAPI) PlaceDetails(_ context.Context, placeID string) (models.Location, error) {
	if f.placeErr != nil {
		return models.Location{}, f.placeErr
	}
	return models.Location{Lat: 12.9, Lng: float64(len(placeID))}, nil
}

func (f *fakeAPI) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates)
}

type emitted struct {
	event   string
	payload any
}

type fakeChannel struct {
	*channel.Bus
	mu      sync.Mutex
	emitted []emitted
	emitErr error
}

func (f *fakeChannel) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emitErr != nil {
		return f.emitErr
	}
	f.emitted = append(f.emitted, emitted{event: event, payload: payload})
	return nil
}

func (f *fakeChannel) emits(event string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, e := range f.emitted {
		if e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

type driverCall struct{ rideID, pickup, destination string }

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []driverCall
	err   error
}

func (f *fakeDispatcher) CallDriver(_ context.Context, rideID, pickup, destination string) (dispatch.CallResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, driverCall{rideID, pickup, destination})
	if f.err != nil {
		return dispatch.CallResult{}, f.err
	}
	return dispatch.CallResult{Success: true, CallSID: "CA1"}, nil
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type harness struct {
	t     *testing.T
	c     *Coordinator
	api   *fakeAPI
	ch    *fakeChannel
	disp  *fakeDispatcher
	clock *clock.Fake
}

// newHarness builds a coordinator that is stepped by settle instead of
// Run, so every test observes a deterministic order of transitions.
func newHarness(t *testing.T, userID string) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		api:   &fakeAPI{},
		ch:    &fakeChannel{Bus: channel.NewBus()},
		disp:  &fakeDispatcher{},
		clock: clock.NewFake(t0),
	}
	h.c = New(Config{
		UserID: func() string { return userID },
		Window: 10 * time.Minute,
		Tick:   time.Second,
		Clock:  h.clock,
	}, h.ch, h.api, h.disp, logging.Discard())
	detach := h.c.attach()
	t.Cleanup(func() {
		detach()
		h.c.stopTicker()
		h.c.cancel()
		h.c.wg.Wait()
	})
	return h
}

// settle applies queued events, collaborator results and pending ticks
// until nothing is left.
func (h *harness) settle() {
	h.t.Helper()
	for i := 0; i < 1000; i++ {
		h.c.wg.Wait()
		var tickC <-chan time.Time
		if h.c.ticker != nil {
			tickC = h.c.ticker.C()
		}
		select {
		case ev := <-h.c.inbox:
			h.c.handle(ev)
		case now := <-tickC:
			h.c.handle(tickEvent{now: now})
		default:
			return
		}
	}
	h.t.Fatalf("coordinator did not settle")
}

func (h *harness) push(event string, payload any) {
	h.t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		h.t.Fatalf("marshal %s: %v", event, err)
	}
	h.ch.Dispatch(event, b)
	h.settle()
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.settle()
}

func (h *harness) snap() Snapshot { return h.c.Snapshot() }

func (h *harness) chooseLocations() {
	h.c.OpenSearch(FieldPickup)
	h.c.ChooseSuggestion(models.Suggestion{Description: "Main Gate", PlaceID: "p1"})
	h.settle()
	h.c.OpenSearch(FieldDestination)
	h.c.ChooseSuggestion(models.Suggestion{Description: "Library", PlaceID: "p22"})
	h.settle()
}

// bookToConfirm walks the booking flow up to an open Confirm panel.
func (h *harness) bookToConfirm(count string) {
	h.t.Helper()
	h.chooseLocations()
	h.c.FindTrip()
	h.settle()
	h.c.SelectVehicle(models.VehicleAuto, count)
	h.settle()
	if !h.snap().Panels.Confirm {
		h.t.Fatalf("expected Confirm panel, got %+v", h.snap().Panels)
	}
}

func passenger(user, ride string, seats int) trip.Passenger {
	return trip.Passenger{UserID: user, RideID: ride, PassengerCount: seats}
}

func newTrip(status trip.Status, ps ...trip.Passenger) *trip.SharedTrip {
	seats := 0
	for _, p := range ps {
		seats += p.PassengerCount
	}
	return &trip.SharedTrip{
		PrimaryRideID: ps[0].RideID,
		Passengers:    ps,
		Capacity:      4,
		SeatsFilled:   seats,
		Pickup:        "Main Gate",
		Destination:   "Library",
		VehicleType:   models.VehicleAuto,
		Status:        status,
		CreatedAt:     t0,
	}
}

var errBoom = errors.New("boom")

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
