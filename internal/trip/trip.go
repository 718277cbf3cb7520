// Package trip holds the pooled-ride aggregate. A SharedTrip is always
// replaced wholesale with the server's copy; nothing here patches
// individual fields.
package trip

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/rider-client/internal/models"
)

type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusAssigned Status = "ASSIGNED"
	StatusFull     Status = "FULL"
	StatusClosed   Status = "CLOSED"
)

type Passenger struct {
	UserID         string `json:"userId"`
	RideID         string `json:"rideId"`
	PassengerCount int    `json:"passengerCount"`
	SocketID       string `json:"socketId,omitempty"`
	Name           string `json:"name,omitempty"`
	Phone          string `json:"phone,omitempty"`
}

type SharedTrip struct {
	PrimaryRideID string             `json:"primaryRideId,omitempty"`
	DriverID      string             `json:"driverId,omitempty"`
	Passengers    []Passenger        `json:"passengers"`
	Capacity      int                `json:"capacity"`
	SeatsFilled   int                `json:"seatsFilled"`
	Pickup        string             `json:"pickup"`
	Destination   string             `json:"destination"`
	VehicleType   models.VehicleType `json:"vehicleType,omitempty"`
	BaseFare      float64            `json:"baseFare,omitempty"`
	Status        Status             `json:"status"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// Update is the payload of shared-ride-created/joined/updated/window-closed.
// YourFare is only present on created and updated.
type Update struct {
	Trip     *SharedTrip `json:"trip"`
	YourFare *float64    `json:"yourFare,omitempty"`
}

var ErrInvariant = errors.New("shared trip invariant violated")

// Validate checks the seat accounting invariants of a server payload.
func (t *SharedTrip) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: missing trip", ErrInvariant)
	}
	switch t.Status {
	case StatusOpen, StatusAssigned, StatusFull, StatusClosed:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvariant, t.Status)
	}
	if t.Capacity <= 0 {
		return fmt.Errorf("%w: capacity %d", ErrInvariant, t.Capacity)
	}
	if len(t.Passengers) == 0 {
		return fmt.Errorf("%w: no passengers", ErrInvariant)
	}
	sum := 0
	for _, p := range t.Passengers {
		if p.PassengerCount <= 0 {
			return fmt.Errorf("%w: passenger %s has %d seats", ErrInvariant, p.UserID, p.PassengerCount)
		}
		sum += p.PassengerCount
	}
	if sum != t.SeatsFilled {
		return fmt.Errorf("%w: seatsFilled %d != passenger seats %d", ErrInvariant, t.SeatsFilled, sum)
	}
	if t.SeatsFilled > t.Capacity {
		return fmt.Errorf("%w: seatsFilled %d exceeds capacity %d", ErrInvariant, t.SeatsFilled, t.Capacity)
	}
	if t.Status == StatusFull && t.SeatsFilled != t.Capacity {
		return fmt.Errorf("%w: FULL with %d/%d seats", ErrInvariant, t.SeatsFilled, t.Capacity)
	}
	return nil
}

// Initiator is the first passenger; join order is significant.
func (t *SharedTrip) Initiator() (Passenger, bool) {
	if t == nil || len(t.Passengers) == 0 {
		return Passenger{}, false
	}
	return t.Passengers[0], true
}

// Key identifies the pooling attempt across updates.
func (t *SharedTrip) Key() string {
	if t == nil {
		return ""
	}
	if t.PrimaryRideID != "" {
		return t.PrimaryRideID
	}
	if p, ok := t.Initiator(); ok {
		return p.RideID
	}
	return ""
}

func (t *SharedTrip) HasRide(rideID string) bool {
	if t == nil || rideID == "" {
		return false
	}
	for _, p := range t.Passengers {
		if p.RideID == rideID {
			return true
		}
	}
	return false
}

// Matching reports whether seats may still be filled.
func (t *SharedTrip) Matching() bool {
	return t != nil && (t.Status == StatusOpen || t.Status == StatusAssigned)
}

// Progress is the fill ratio in [0, 1].
func (t *SharedTrip) Progress() float64 {
	if t == nil || t.Capacity <= 0 {
		return 0
	}
	p := float64(t.SeatsFilled) / float64(t.Capacity)
	if p > 1 {
		p = 1
	}
	return p
}

func (t *SharedTrip) StatusMessage() string {
	if t == nil {
		return "Waiting for ride details..."
	}
	switch t.Status {
	case StatusOpen, StatusAssigned:
		return "Finding other passengers..."
	case StatusFull:
		return "Your ride pool is full!"
	case StatusClosed:
		return "Matching window closed. Your ride is starting!"
	default:
		return "Waiting for ride details..."
	}
}

// Clone returns a deep copy safe to hand to other goroutines.
func (t *SharedTrip) Clone() *SharedTrip {
	if t == nil {
		return nil
	}
	c := *t
	c.Passengers = append([]Passenger(nil), t.Passengers...)
	return &c
}
