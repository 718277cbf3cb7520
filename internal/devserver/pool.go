package devserver

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/example/rider-client/internal/clock"
	"github.com/example/rider-client/internal/models"
	"github.com/example/rider-client/internal/trip"
)

// fullGrace is how long a FULL trip stays up before its window closes.
const fullGrace = 3 * time.Second

// poolDiscount is applied to every party's fare once a trip is shared.
const poolDiscount = 0.75

var ErrBadPoolRequest = errors.New("invalid pool request")

// Notifier delivers channel events to a user's room.
type Notifier interface {
	Send(userID, event string, payload any) error
}

type pooledTrip struct {
	trip  trip.SharedTrip
	fares map[string]float64 // ride id -> undiscounted fare
	timer clock.Timer
}

// Pool groups pool requests for the same pickup, destination and vehicle
// into shared trips and runs their matching windows.
type Pool struct {
	Capacity int
	Window   time.Duration
	Clock    clock.Clock
	Notify   Notifier
	Logger   *slog.Logger

	mu     sync.Mutex
	open   map[string]*pooledTrip
	byRide map[string]*pooledTrip
}

func NewPool(capacity int, window time.Duration, clk clock.Clock, notify Notifier, logger *slog.Logger) *Pool {
	return &Pool{
		Capacity: capacity,
		Window:   window,
		Clock:    clk,
		Notify:   notify,
		Logger:   logger.With("component", "pool"),
		open:     make(map[string]*pooledTrip),
		byRide:   make(map[string]*pooledTrip),
	}
}

func poolKey(req models.PoolRequest) string {
	return req.Pickup + "|" + req.Destination + "|" + string(req.VehicleType)
}

// Request creates or joins a shared trip for req.
func (p *Pool) Request(req models.PoolRequest, socketID string, fare float64) error {
	if req.RideID == "" || req.UserID == "" {
		return fmt.Errorf("%w: ride and user id are required", ErrBadPoolRequest)
	}
	if req.PassengerCount < models.MinPassengers || req.PassengerCount > p.Capacity {
		return fmt.Errorf("%w: %d passengers does not fit a %d seat trip", ErrBadPoolRequest, req.PassengerCount, p.Capacity)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.byRide[req.RideID]; dup {
		p.Logger.Info("duplicate pool request ignored", "ride_id", req.RideID)
		return nil
	}

	passenger := trip.Passenger{
		UserID:         req.UserID,
		RideID:         req.RideID,
		PassengerCount: req.PassengerCount,
		SocketID:       socketID,
		Name:           req.Name,
		Phone:          req.Phone,
	}
	key := poolKey(req)
	pt := p.open[key]
	if pt == nil || pt.trip.Capacity-pt.trip.SeatsFilled < req.PassengerCount {
		p.create(key, req, passenger, fare)
		return nil
	}
	p.join(key, pt, passenger, fare)
	return nil
}

func (p *Pool) create(key string, req models.PoolRequest, passenger trip.Passenger, fare float64) {
	pt := &pooledTrip{
		trip: trip.SharedTrip{
			PrimaryRideID: req.RideID,
			Passengers:    []trip.Passenger{passenger},
			Capacity:      p.Capacity,
			SeatsFilled:   passenger.PassengerCount,
			Pickup:        req.Pickup,
			Destination:   req.Destination,
			VehicleType:   req.VehicleType,
			BaseFare:      fare,
			Status:        trip.StatusOpen,
			CreatedAt:     p.Clock.Now().UTC(),
		},
		fares: map[string]float64{req.RideID: fare},
	}
	p.open[key] = pt
	p.byRide[req.RideID] = pt
	p.Logger.Info("shared trip created", "trip", req.RideID, "user_id", req.UserID, "seats", passenger.PassengerCount)

	window := p.Window
	if p.markFull(key, pt) {
		window = fullGrace
	}
	pt.timer = p.Clock.AfterFunc(window, func() { p.closeWindow(pt) })
	fare = p.yourFare(pt, req.RideID)
	p.send(req.UserID, models.EventSharedRideCreated, trip.Update{Trip: pt.trip.Clone(), YourFare: &fare})
}

func (p *Pool) join(key string, pt *pooledTrip, passenger trip.Passenger, fare float64) {
	pt.trip.Passengers = append(pt.trip.Passengers, passenger)
	pt.trip.SeatsFilled += passenger.PassengerCount
	pt.fares[passenger.RideID] = fare
	p.byRide[passenger.RideID] = pt
	p.Logger.Info("shared trip joined", "trip", pt.trip.Key(), "user_id", passenger.UserID, "seats", pt.trip.SeatsFilled)

	if p.markFull(key, pt) && pt.timer != nil {
		pt.timer.Stop()
		pt.timer = p.Clock.AfterFunc(fullGrace, func() { p.closeWindow(pt) })
	}
	p.send(passenger.UserID, models.EventSharedRideJoined, trip.Update{Trip: pt.trip.Clone()})
	for _, other := range pt.trip.Passengers {
		if other.RideID == passenger.RideID {
			continue
		}
		f := p.yourFare(pt, other.RideID)
		p.send(other.UserID, models.EventSharedRideUpdated, trip.Update{Trip: pt.trip.Clone(), YourFare: &f})
	}
}

// markFull flips a filled trip to FULL and stops it taking joins.
func (p *Pool) markFull(key string, pt *pooledTrip) bool {
	if pt.trip.SeatsFilled < pt.trip.Capacity {
		return false
	}
	pt.trip.Status = trip.StatusFull
	delete(p.open, key)
	return true
}

func (p *Pool) closeWindow(pt *pooledTrip) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pt.trip.Status == trip.StatusClosed {
		return
	}
	pt.trip.Status = trip.StatusClosed
	for k, v := range p.open {
		if v == pt {
			delete(p.open, k)
		}
	}
	p.Logger.Info("matching window closed", "trip", pt.trip.Key(), "seats", pt.trip.SeatsFilled)
	for _, ps := range pt.trip.Passengers {
		p.send(ps.UserID, models.EventSharedWindowClosed, trip.Update{Trip: pt.trip.Clone()})
	}
}

func (p *Pool) yourFare(pt *pooledTrip, rideID string) float64 {
	f := pt.fares[rideID]
	if len(pt.trip.Passengers) > 1 {
		f *= poolDiscount
	}
	return math.Round(f*100) / 100
}

// Passengers returns the trip members sharing rideID's trip; a ride that
// was never pooled yields nil.
func (p *Pool) Passengers(rideID string) []trip.Passenger {
	p.mu.Lock()
	defer p.mu.Unlock()
	pt := p.byRide[rideID]
	if pt == nil {
		return nil
	}
	return append([]trip.Passenger(nil), pt.trip.Passengers...)
}

// Trip returns a copy of the trip containing rideID.
func (p *Pool) Trip(rideID string) (*trip.SharedTrip, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pt := p.byRide[rideID]
	if pt == nil {
		return nil, false
	}
	return pt.trip.Clone(), true
}

// Assign marks the trip as having a driver and stops its window.
func (p *Pool) Assign(rideID, driverID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pt := p.byRide[rideID]
	if pt == nil {
		return
	}
	if pt.timer != nil {
		pt.timer.Stop()
	}
	pt.trip.DriverID = driverID
	for k, v := range p.open {
		if v == pt {
			delete(p.open, k)
		}
	}
}

// send is called with p.mu held; Notify must not call back into Pool.
func (p *Pool) send(userID, event string, payload any) {
	if err := p.Notify.Send(userID, event, payload); err != nil {
		p.Logger.Warn("event not delivered", "event", event, "user_id", userID, "error", err)
	}
}
