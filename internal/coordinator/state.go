package coordinator

import (
	"github.com/example/rider-client/internal/models"
	"github.com/example/rider-client/internal/panel"
	"github.com/example/rider-client/internal/trip"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingFare
	PhaseVehicleSelected
	PhaseRideRequested
	PhasePooledMatching
	PhasePoolFull
	PhaseSearchingDriver
	PhaseRideAccepted
)

var phaseNames = [...]string{"idle", "awaiting_fare", "vehicle_selected", "ride_requested", "pooled_matching", "pool_full", "searching_driver", "ride_accepted"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Field selects which location input a search applies to.
type Field int

const (
	FieldPickup Field = iota
	FieldDestination
)

func (f Field) String() string {
	if f == FieldDestination {
		return "destination"
	}
	return "pickup"
}

func (f Field) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

type locationInput struct {
	text     string
	location *models.Location
	// seq increments on every edit; results carry the seq they were
	// issued for.
	seq uint64
}

type state struct {
	phase  Phase
	panels panel.State

	pickup, destination locationInput
	activeField         Field
	suggestions         []models.Suggestion
	showRoute           bool

	fare      models.FareTable
	fareSeq   uint64
	vehicle   models.VehicleType
	passenger int

	// confirmCycle counts Confirm panel openings; confirmUsed is the
	// cycle a submission was made in.
	confirmCycle uint64
	confirmUsed  uint64
	createSeq    uint64
	createReq    *models.RideRequest

	ride     *models.Ride
	accepted bool
	// dismissedRide is the accepted ride whose confirmation was closed;
	// repeats of its acceptance are dropped.
	dismissedRide string

	trip     *trip.SharedTrip
	yourFare *float64
	// windowClosed records trip keys whose window-closed transition
	// already ran.
	windowClosed map[string]bool

	notice     string
	inputError string
	connected  bool
}

func newState() state {
	return state{windowClosed: make(map[string]bool)}
}

func (s *state) input(f Field) *locationInput {
	if f == FieldDestination {
		return &s.destination
	}
	return &s.pickup
}

func (s *state) show(p panel.Panel) {
	if p == panel.Confirm && !s.panels.Visible(panel.Confirm) {
		s.confirmCycle++
	}
	s.panels = s.panels.Show(p)
}

func (s *state) hide(p panel.Panel) {
	s.panels = s.panels.Hide(p)
}

// reopenConfirm starts a fresh Confirm visibility cycle even when the
// panel is already up, so the user may submit again.
func (s *state) reopenConfirm() {
	s.hide(panel.Confirm)
	s.show(panel.Confirm)
}

func (s *state) clearTrip() {
	s.trip = nil
	s.yourFare = nil
}

// Snapshot is an immutable copy of coordinator state for renderers.
type Snapshot struct {
	Phase       Phase       `json:"phase"`
	ActivePanel string      `json:"activePanel"`
	Panels      panel.Flags `json:"panels"`

	Pickup              string              `json:"pickup"`
	Destination         string              `json:"destination"`
	PickupLocation      *models.Location    `json:"pickupLocation,omitempty"`
	DestinationLocation *models.Location    `json:"destinationLocation,omitempty"`
	ActiveField         Field               `json:"activeField"`
	Suggestions         []models.Suggestion `json:"suggestions,omitempty"`
	ShowRoute           bool                `json:"showRoute"`

	Fare           models.FareTable   `json:"fare,omitempty"`
	Vehicle        models.VehicleType `json:"vehicle,omitempty"`
	PassengerCount int                `json:"passengerCount,omitempty"`

	Ride          *models.Ride     `json:"ride,omitempty"`
	Trip          *trip.SharedTrip `json:"trip,omitempty"`
	YourFare      *float64         `json:"yourFare,omitempty"`
	Progress      float64          `json:"progress"`
	StatusMessage string           `json:"statusMessage,omitempty"`
	Countdown     string           `json:"countdown,omitempty"`

	Notice     string `json:"notice,omitempty"`
	InputError string `json:"inputError,omitempty"`
	Connected  bool   `json:"connected"`
}

func (s *state) snapshot(countdown string) Snapshot {
	snap := Snapshot{
		Phase:          s.phase,
		ActivePanel:    s.panels.Active.String(),
		Panels:         s.panels.Flags(),
		Pickup:         s.pickup.text,
		Destination:    s.destination.text,
		ActiveField:    s.activeField,
		Suggestions:    append([]models.Suggestion(nil), s.suggestions...),
		ShowRoute:      s.showRoute,
		Vehicle:        s.vehicle,
		PassengerCount: s.passenger,
		Trip:           s.trip.Clone(),
		Notice:         s.notice,
		InputError:     s.inputError,
		Connected:      s.connected,
	}
	if s.panels.Confirmed {
		snap.ActivePanel = panel.Confirmed.String()
	}
	if s.pickup.location != nil {
		l := *s.pickup.location
		snap.PickupLocation = &l
	}
	if s.destination.location != nil {
		l := *s.destination.location
		snap.DestinationLocation = &l
	}
	if s.fare != nil {
		snap.Fare = make(models.FareTable, len(s.fare))
		for k, v := range s.fare {
			snap.Fare[k] = v
		}
	}
	if s.ride != nil {
		r := *s.ride
		snap.Ride = &r
	}
	if s.yourFare != nil {
		f := *s.yourFare
		snap.YourFare = &f
	}
	if s.trip != nil {
		snap.Progress = s.trip.Progress()
		snap.StatusMessage = s.trip.StatusMessage()
		if s.trip.Matching() {
			snap.Countdown = countdown
		}
	}
	return snap
}
