package coordinator

import (
	"testing"

	"github.com/example/rider-client/internal/models"
	"github.com/example/rider-client/internal/panel"
	"github.com/example/rider-client/internal/trip"
)

func TestSuggestionFetchNeedsThreeCharacters(t *testing.T) {
	h := newHarness(t, "u1")
	h.c.SetPickupText("Ma")
	h.settle()
	if len(h.api.suggestions) != 0 {
		t.Fatalf("expected no fetch for 2 characters, got %v", h.api.suggestions)
	}

	h.c.SetPickupText("Mai")
	h.settle()
	if len(h.api.suggestions) != 1 || h.api.suggestions[0] != "Mai" {
		t.Fatalf("expected exactly one fetch for %q, got %v", "Mai", h.api.suggestions)
	}
	if s := h.snap().Suggestions; len(s) != 1 || s[0].Description != "Mai" {
		t.Fatalf("unexpected suggestions %+v", s)
	}

	h.c.SetPickupText("  a ")
	h.settle()
	if len(h.api.suggestions) != 1 || len(h.snap().Suggestions) != 0 {
		t.Fatalf("short input should clear suggestions without fetching")
	}
}

func TestStaleSuggestionsDropped(t *testing.T) {
	h := newHarness(t, "u1")
	h.c.SetDestinationText("Lib")
	h.c.SetDestinationText("Libr")
	h.settle()

	if len(h.api.suggestions) != 2 {
		t.Fatalf("expected two fetches, got %v", h.api.suggestions)
	}
	if s := h.snap().Suggestions; len(s) != 1 || s[0].Description != "Libr" {
		t.Fatalf("expected only the latest suggestions, got %+v", s)
	}
}

func TestChooseSuggestion(t *testing.T) {
	h := newHarness(t, "u1")
	h.c.OpenSearch(FieldDestination)
	h.c.ChooseSuggestion(models.Suggestion{Description: "Nowhere"})
	h.settle()
	if h.snap().Notice != "Invalid suggestion. Please try again." {
		t.Fatalf("unexpected notice %q", h.snap().Notice)
	}

	h.c.ClearNotice()
	h.c.ChooseSuggestion(models.Suggestion{Description: "Library", PlaceID: "p22"})
	h.settle()
	s := h.snap()
	if s.Destination != "Library" || s.DestinationLocation == nil || s.Notice != "" {
		t.Fatalf("unexpected destination state %+v", s)
	}

	h.api.placeErr = errBoom
	h.c.ChooseSuggestion(models.Suggestion{Description: "Gym", PlaceID: "p3"})
	h.settle()
	if h.snap().Notice != "Failed to fetch location details. Please try again." || h.snap().DestinationLocation != nil {
		t.Fatalf("unexpected state after failed lookup %+v", h.snap())
	}
}

func TestFindTripNeedsBothLocations(t *testing.T) {
	h := newHarness(t, "u1")
	h.c.OpenSearch(FieldPickup)
	h.c.ChooseSuggestion(models.Suggestion{Description: "Main Gate", PlaceID: "p1"})
	h.c.FindTrip()
	h.settle()

	s := h.snap()
	if s.InputError != "Please select both pickup and destination." {
		t.Fatalf("unexpected input error %q", s.InputError)
	}
	if h.api.fares != 0 || !s.Panels.Search {
		t.Fatalf("expected no fare fetch and search still open")
	}
}

func TestFareFailureRollsBackToSearch(t *testing.T) {
	h := newHarness(t, "u1")
	h.api.fareErr = errBoom
	h.chooseLocations()
	h.c.FindTrip()
	h.settle()

	s := h.snap()
	if s.Notice != "Failed to fetch trip details." || !s.Panels.Search || s.Panels.VehicleChoice {
		t.Fatalf("expected rollback to Search, got %+v", s)
	}
	if s.Phase != PhaseIdle {
		t.Fatalf("unexpected phase %v", s.Phase)
	}
}

func TestPassengerCountValidation(t *testing.T) {
	h := newHarness(t, "u1")
	h.bookToConfirm("5")
	if got := h.snap().PassengerCount; got != 4 {
		t.Fatalf("expected 5 to clamp to 4, got %d", got)
	}
	h.c.ConfirmRide()
	h.settle()
	if req := h.api.creates[0]; req.PassengerCount != 4 {
		t.Fatalf("expected clamped count submitted, got %d", req.PassengerCount)
	}

	for _, in := range []string{"0", "two", "-1"} {
		h := newHarness(t, "u1")
		h.chooseLocations()
		h.c.FindTrip()
		h.c.SelectVehicle(models.VehicleAuto, in)
		h.settle()
		s := h.snap()
		if s.InputError == "" || s.Panels.Confirm || !s.Panels.VehicleChoice {
			t.Fatalf("input %q: expected inline error and no Confirm, got %+v", in, s)
		}
	}
}

func TestConfirmAtMostOncePerCycle(t *testing.T) {
	h := newHarness(t, "u1")
	h.bookToConfirm("2")
	h.c.ConfirmRide()
	h.c.ConfirmRide()
	h.settle()
	h.c.ConfirmRide()
	h.settle()
	if n := h.api.createCount(); n != 1 {
		t.Fatalf("expected one create call, got %d", n)
	}
}

func TestCreateFailureReopensConfirm(t *testing.T) {
	h := newHarness(t, "u1")
	h.bookToConfirm("2")
	h.api.createHook = func(models.RideRequest) (models.Ride, error) { return models.Ride{}, errBoom }
	h.c.ConfirmRide()
	h.settle()

	s := h.snap()
	if s.Notice != "Failed to confirm ride." || !s.Panels.Confirm || s.Ride != nil {
		t.Fatalf("expected Confirm reopened with notice, got %+v", s)
	}
	if len(h.ch.emits(models.EventCreateRideSharing)) != 0 {
		t.Fatalf("nothing should be published after a failed create")
	}

	h.api.createHook = nil
	h.c.ConfirmRide()
	h.settle()
	if n := h.api.createCount(); n != 2 {
		t.Fatalf("expected retry after failure, got %d creates", n)
	}
}

func TestConfirmPublishesPoolRequest(t *testing.T) {
	h := newHarness(t, "u1")
	h.bookToConfirm("3")
	h.c.ConfirmRide()
	h.settle()

	emits := h.ch.emits(models.EventCreateRideSharing)
	if len(emits) != 1 {
		t.Fatalf("expected one pool request, got %d", len(emits))
	}
	req := emits[0].(models.PoolRequest)
	want := models.PoolRequest{
		RideID: "ride-1", Pickup: "Main Gate", Destination: "Library", VehicleType: models.VehicleAuto,
		UserID: "u1", Name: "User", Phone: "0000000000", PassengerCount: 3,
	}
	if req != want {
		t.Fatalf("unexpected pool request\n got %+v\nwant %+v", req, want)
	}
	s := h.snap()
	if s.Panels.Confirm || s.Ride == nil || s.Phase != PhaseRideRequested {
		t.Fatalf("unexpected state after confirm %+v", s)
	}
}

// The pooled trip event may beat the REST response; both orders must
// end in the same state.
func TestCreateResponseAndTripEventOrderIndependent(t *testing.T) {
	created := trip.Update{Trip: newTrip(trip.StatusOpen, passenger("u1", "ride-1", 1))}

	restFirst := newHarness(t, "u1")
	restFirst.bookToConfirm("1")
	restFirst.c.ConfirmRide()
	restFirst.settle()
	restFirst.push(models.EventSharedRideCreated, created)

	eventFirst := newHarness(t, "u1")
	eventFirst.bookToConfirm("1")
	eventFirst.api.createHook = func(req models.RideRequest) (models.Ride, error) {
		eventFirst.ch.Dispatch(models.EventSharedRideCreated, mustMarshal(t, created))
		return models.Ride{ID: "ride-1", Pickup: req.Pickup, Destination: req.Destination, VehicleType: req.VehicleType, PassengerCount: 1}, nil
	}
	eventFirst.c.ConfirmRide()
	eventFirst.settle()

	a, b := restFirst.snap(), eventFirst.snap()
	if a.Phase != b.Phase || a.Panels != b.Panels || a.Ride.ID != b.Ride.ID || a.Trip.Key() != b.Trip.Key() {
		t.Fatalf("orders diverged:\nrest first  %+v\nevent first %+v", a, b)
	}
	if !b.Panels.PooledMatching || b.Phase != PhasePooledMatching {
		t.Fatalf("expected pooled matching, got %+v", b)
	}
	if n := len(eventFirst.ch.emits(models.EventCreateRideSharing)); n != 0 {
		t.Fatalf("ride already pooled, expected no pool request, got %d", n)
	}
}

func TestCreateResponseAfterAcceptanceDropped(t *testing.T) {
	h := newHarness(t, "u1")
	h.bookToConfirm("1")
	h.api.createHook = func(req models.RideRequest) (models.Ride, error) {
		h.ch.Dispatch(models.EventRideAccepted, mustMarshal(t, models.Ride{ID: "ride-9"}))
		return models.Ride{ID: "ride-1"}, nil
	}
	h.c.ConfirmRide()
	h.settle()

	s := h.snap()
	if s.Ride == nil || s.Ride.ID != "ride-9" || !s.Panels.Confirmed {
		t.Fatalf("accepted ride must win, got %+v", s)
	}
	if n := len(h.ch.emits(models.EventCreateRideSharing)); n != 0 {
		t.Fatalf("stale create response must not publish, got %d", n)
	}
}

func TestDismissConfirmationResets(t *testing.T) {
	h := newHarness(t, "u1")
	h.bookToConfirm("1")
	h.c.ConfirmRide()
	h.settle()
	h.push(models.EventRideAccepted, models.Ride{ID: "ride-1"})

	h.c.DismissConfirmation()
	h.settle()
	s := h.snap()
	if s.Phase != PhaseIdle || s.Ride != nil || s.Panels.Confirmed || s.ShowRoute {
		t.Fatalf("expected blank booking, got %+v", s)
	}
	if s.Pickup != "" || s.Destination != "" || s.PickupLocation != nil {
		t.Fatalf("expected inputs cleared, got %+v", s)
	}
}

func TestClosePanel(t *testing.T) {
	h := newHarness(t, "u1")
	h.c.OpenSearch(FieldPickup)
	h.settle()
	if h.snap().ActivePanel != panel.Search.String() {
		t.Fatalf("expected search panel, got %q", h.snap().ActivePanel)
	}
	h.c.ClosePanel(panel.Search)
	h.settle()
	if h.snap().Panels.InProgressCount() != 0 {
		t.Fatalf("expected no panel, got %+v", h.snap().Panels)
	}
}

func TestSubscribeSeesLatestSnapshot(t *testing.T) {
	h := newHarness(t, "u1")
	updates, cancel := h.c.Subscribe()
	defer cancel()
	<-updates

	h.c.OpenSearch(FieldPickup)
	h.c.SetPickupText("Main")
	h.settle()
	s := <-updates
	if s.Pickup != "Main" || !s.Panels.Search {
		t.Fatalf("expected latest snapshot, got %+v", s)
	}
}
