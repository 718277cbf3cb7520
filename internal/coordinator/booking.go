package coordinator

import (
	"context"
	"errors"
	"strings"

	"github.com/example/rider-client/internal/api"
	"github.com/example/rider-client/internal/models"
	"github.com/example/rider-client/internal/panel"
)

const (
	noticeInvalidSuggestion = "Invalid suggestion. Please try again."
	noticePlaceFailed       = "Failed to fetch location details. Please try again."
	noticeFareFailed        = "Failed to fetch trip details."
	noticeConfirmFailed     = "Failed to confirm ride."
	inputMissingLocations   = "Please select both pickup and destination."
	inputIncomplete         = "Please choose a vehicle and passenger count."
)

// event is anything applied on the loop goroutine.
type event interface {
	name() string
	apply(c *Coordinator)
}

// SetPickupText records typed pickup text and fetches suggestions for it
// once it is long enough.
func (c *Coordinator) SetPickupText(text string) {
	c.post(textEvent{field: FieldPickup, text: text})
}

func (c *Coordinator) SetDestinationText(text string) {
	c.post(textEvent{field: FieldDestination, text: text})
}

// OpenSearch shows the search panel for one of the location inputs.
func (c *Coordinator) OpenSearch(f Field) { c.post(openSearchEvent{field: f}) }

func (c *Coordinator) ChooseSuggestion(s models.Suggestion) {
	c.post(chooseSuggestionEvent{suggestion: s})
}

// FindTrip moves from location entry to vehicle choice and quotes fares.
func (c *Coordinator) FindTrip() { c.post(findTripEvent{}) }

// SelectVehicle validates the passenger count input and opens Confirm.
func (c *Coordinator) SelectVehicle(v models.VehicleType, countInput string) {
	c.post(selectVehicleEvent{vehicle: v, input: countInput})
}

// ConfirmRide submits the ride. It is honoured at most once per Confirm
// panel opening.
func (c *Coordinator) ConfirmRide() { c.post(confirmEvent{}) }

func (c *Coordinator) ClosePanel(p panel.Panel) { c.post(closePanelEvent{panel: p}) }

// DismissConfirmation ends a completed flow and resets to a blank booking.
func (c *Coordinator) DismissConfirmation() { c.post(dismissEvent{}) }

// ClearNotice dismisses the current notice and any inline input error.
func (c *Coordinator) ClearNotice() { c.post(clearNoticeEvent{}) }

type textEvent struct {
	field Field
	text  string
}

func (textEvent) name() string { return "set_text" }

func (e textEvent) apply(c *Coordinator) {
	in := c.st.input(e.field)
	if in.text == e.text {
		return
	}
	in.text = e.text
	in.location = nil
	in.seq++
	c.st.activeField = e.field
	c.st.inputError = ""

	if len(strings.TrimSpace(e.text)) < api.MinSuggestionInput {
		c.st.suggestions = nil
		return
	}
	field, text, seq := e.field, e.text, in.seq
	c.async("get_suggestions", func(ctx context.Context) event {
		list, err := c.api.Suggestions(ctx, text)
		return suggestionsResult{field: field, seq: seq, list: list, err: err}
	})
}

type suggestionsResult struct {
	field Field
	seq   uint64
	list  []models.Suggestion
	err   error
}

func (suggestionsResult) name() string { return "suggestions_result" }

func (e suggestionsResult) apply(c *Coordinator) {
	if c.st.input(e.field).seq != e.seq || c.st.activeField != e.field {
		return
	}
	if e.err != nil {
		if !errors.Is(e.err, api.ErrInputTooShort) {
			c.logger.Warn("suggestion fetch failed", "field", e.field.String(), "error", e.err)
		}
		c.st.suggestions = nil
		return
	}
	c.st.suggestions = e.list
}

type openSearchEvent struct{ field Field }

func (openSearchEvent) name() string { return "open_search" }

func (e openSearchEvent) apply(c *Coordinator) {
	if c.st.activeField != e.field {
		c.st.suggestions = nil
	}
	c.st.activeField = e.field
	c.st.show(panel.Search)
}

type chooseSuggestionEvent struct{ suggestion models.Suggestion }

func (chooseSuggestionEvent) name() string { return "choose_suggestion" }

func (e chooseSuggestionEvent) apply(c *Coordinator) {
	if e.suggestion.PlaceID == "" {
		c.st.notice = noticeInvalidSuggestion
		return
	}
	field := c.st.activeField
	in := c.st.input(field)
	in.text = e.suggestion.Description
	in.location = nil
	in.seq++
	c.st.suggestions = nil

	seq, placeID := in.seq, e.suggestion.PlaceID
	c.async("get_place_details", func(ctx context.Context) event {
		loc, err := c.api.PlaceDetails(ctx, placeID)
		return placeResult{field: field, seq: seq, location: loc, err: err}
	})
}

type placeResult struct {
	field    Field
	seq      uint64
	location models.Location
	err      error
}

func (placeResult) name() string { return "place_details_result" }

func (e placeResult) apply(c *Coordinator) {
	in := c.st.input(e.field)
	if in.seq != e.seq {
		return
	}
	if e.err != nil {
		c.logger.Warn("place details failed", "field", e.field.String(), "error", e.err)
		c.st.notice = noticePlaceFailed
		return
	}
	loc := e.location
	in.location = &loc
}

type findTripEvent struct{}

func (findTripEvent) name() string { return "find_trip" }

func (findTripEvent) apply(c *Coordinator) {
	if c.st.pickup.location == nil || c.st.destination.location == nil {
		c.st.inputError = inputMissingLocations
		return
	}
	c.st.inputError = ""
	c.st.showRoute = true
	c.st.hide(panel.Search)
	c.st.show(panel.VehicleChoice)
	c.st.phase = PhaseAwaitingFare
	c.st.fare = nil
	c.st.fareSeq++

	seq, pickup, destination := c.st.fareSeq, c.st.pickup.text, c.st.destination.text
	c.async("get_fare", func(ctx context.Context) event {
		fare, err := c.api.Fare(ctx, pickup, destination)
		return fareResult{seq: seq, fare: fare, err: err}
	})
}

type fareResult struct {
	seq  uint64
	fare models.FareTable
	err  error
}

func (fareResult) name() string { return "fare_result" }

func (e fareResult) apply(c *Coordinator) {
	if e.seq != c.st.fareSeq || c.st.phase != PhaseAwaitingFare {
		return
	}
	if e.err != nil {
		c.logger.Warn("fare fetch failed", "error", e.err)
		c.st.notice = noticeFareFailed
		c.st.hide(panel.VehicleChoice)
		c.st.show(panel.Search)
		c.st.phase = PhaseIdle
		return
	}
	c.st.fare = e.fare
}

type selectVehicleEvent struct {
	vehicle models.VehicleType
	input   string
}

func (selectVehicleEvent) name() string { return "select_vehicle" }

func (e selectVehicleEvent) apply(c *Coordinator) {
	if c.st.phase != PhaseAwaitingFare && c.st.phase != PhaseVehicleSelected && c.st.phase != PhaseIdle {
		c.logger.Info("vehicle selection ignored", "phase", c.st.phase.String())
		return
	}
	n, err := models.ParsePassengerCount(e.input)
	if err != nil {
		c.st.inputError = err.Error()
		return
	}
	if e.vehicle == "" {
		e.vehicle = models.VehicleAuto
	}
	c.st.inputError = ""
	c.st.vehicle = e.vehicle
	c.st.passenger = n
	c.st.hide(panel.VehicleChoice)
	c.st.show(panel.Confirm)
	c.st.phase = PhaseVehicleSelected
}

type confirmEvent struct{}

func (confirmEvent) name() string { return "confirm_ride" }

func (confirmEvent) apply(c *Coordinator) {
	st := &c.st
	if !st.panels.Visible(panel.Confirm) || st.confirmUsed == st.confirmCycle {
		c.logger.Debug("duplicate confirm ignored", "cycle", st.confirmCycle)
		return
	}
	if st.vehicle == "" || st.passenger == 0 {
		st.inputError = inputIncomplete
		return
	}
	if strings.TrimSpace(st.pickup.text) == "" || strings.TrimSpace(st.destination.text) == "" {
		st.inputError = inputMissingLocations
		return
	}
	st.confirmUsed = st.confirmCycle
	st.inputError = ""
	st.accepted = false
	st.ride = nil
	st.createSeq++
	req := models.RideRequest{
		Pickup:         st.pickup.text,
		Destination:    st.destination.text,
		VehicleType:    st.vehicle,
		PassengerCount: st.passenger,
	}
	st.createReq = &req
	st.phase = PhaseRideRequested

	seq := st.createSeq
	c.async("create_ride", func(ctx context.Context) event {
		ride, err := c.api.CreateRide(ctx, req)
		return rideCreatedResult{seq: seq, req: req, ride: ride, err: err}
	})
}

type rideCreatedResult struct {
	seq  uint64
	req  models.RideRequest
	ride models.Ride
	err  error
}

func (rideCreatedResult) name() string { return "create_ride_result" }

func (e rideCreatedResult) apply(c *Coordinator) {
	st := &c.st
	if e.seq != st.createSeq || st.createReq == nil || st.accepted {
		c.logger.Info("stale ride creation result dropped", "seq", e.seq)
		return
	}
	st.createReq = nil
	if e.err != nil {
		c.logger.Warn("ride creation failed", "error", e.err)
		st.notice = noticeConfirmFailed
		st.phase = PhaseVehicleSelected
		st.reopenConfirm()
		return
	}

	ride := e.ride
	if ride.PassengerCount == 0 {
		ride.PassengerCount = e.req.PassengerCount
	}
	st.ride = &ride
	st.hide(panel.Confirm)
	c.logger.Info("ride created", "ride_id", ride.ID, "passengers", ride.PassengerCount)

	// The pool may already know this ride if its event won the race.
	if st.trip.HasRide(ride.ID) {
		return
	}
	pickup, destination := ride.Pickup, ride.Destination
	if pickup == "" {
		pickup = e.req.Pickup
	}
	if destination == "" {
		destination = e.req.Destination
	}
	vehicle := ride.VehicleType
	if vehicle == "" {
		vehicle = e.req.VehicleType
	}
	req := models.PoolRequest{
		RideID:         ride.ID,
		Pickup:         pickup,
		Destination:    destination,
		VehicleType:    vehicle,
		UserID:         c.cfg.UserID(),
		Name:           c.cfg.Name,
		Phone:          c.cfg.Phone,
		PassengerCount: ride.PassengerCount,
	}
	if err := c.ch.Emit(models.EventCreateRideSharing, req); err != nil {
		c.logger.Warn("pool request not sent", "ride_id", ride.ID, "error", err)
		st.ride = nil
		st.notice = noticeConfirmFailed
		st.phase = PhaseVehicleSelected
		st.reopenConfirm()
	}
}

type closePanelEvent struct{ panel panel.Panel }

func (closePanelEvent) name() string { return "close_panel" }

func (e closePanelEvent) apply(c *Coordinator) {
	c.st.hide(e.panel)
	if e.panel == panel.Search {
		c.st.suggestions = nil
	}
}

type dismissEvent struct{}

func (dismissEvent) name() string { return "dismiss_confirmation" }

func (dismissEvent) apply(c *Coordinator) {
	st := &c.st
	st.hide(panel.Confirmed)
	if st.accepted && st.ride != nil {
		st.dismissedRide = st.ride.ID
	}
	st.ride = nil
	st.accepted = false
	st.createReq = nil
	st.clearTrip()
	st.pickup = locationInput{seq: st.pickup.seq + 1}
	st.destination = locationInput{seq: st.destination.seq + 1}
	st.suggestions = nil
	st.showRoute = false
	st.fare = nil
	st.vehicle = ""
	st.passenger = 0
	st.phase = PhaseIdle
}

type clearNoticeEvent struct{}

func (clearNoticeEvent) name() string { return "clear_notice" }

func (clearNoticeEvent) apply(c *Coordinator) {
	c.st.notice = ""
	c.st.inputError = ""
}
