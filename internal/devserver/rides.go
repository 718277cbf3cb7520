package devserver

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/example/rider-client/internal/geo"
	"github.com/example/rider-client/internal/models"
)

var (
	ErrUnknownPlace = errors.New("unknown place")
	ErrRideNotFound = errors.New("ride not found")
)

var vehicleMultiplier = map[models.VehicleType]float64{
	models.VehicleAuto: 1.0,
	models.VehicleCar:  1.5,
	models.VehicleMoto: 0.7,
}

// RideBook prices and records rides.
type RideBook struct {
	places    *Gazetteer
	baseFare  float64
	perKmFare float64

	mu     sync.RWMutex
	rides  map[string]models.Ride
	owners map[string]string
}

func NewRideBook(places *Gazetteer, baseFare, perKmFare float64) *RideBook {
	return &RideBook{
		places:    places,
		baseFare:  baseFare,
		perKmFare: perKmFare,
		rides:     make(map[string]models.Ride),
		owners:    make(map[string]string),
	}
}

// Fares quotes every vehicle type between two known places.
func (b *RideBook) Fares(pickup, destination string) (models.FareTable, error) {
	from, ok := b.places.ByName(pickup)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlace, pickup)
	}
	to, ok := b.places.ByName(destination)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlace, destination)
	}
	km := geo.Distance(from.Location, to.Location) / 1000
	out := make(models.FareTable, len(vehicleMultiplier))
	for v, m := range vehicleMultiplier {
		out[v] = math.Round((b.baseFare + b.perKmFare*km) * m)
	}
	return out, nil
}

func (b *RideBook) Create(req models.RideRequest, ownerID string) (models.Ride, error) {
	if strings.TrimSpace(req.Pickup) == "" || strings.TrimSpace(req.Destination) == "" {
		return models.Ride{}, errors.New("pickup and destination are required")
	}
	if req.PassengerCount < models.MinPassengers || req.PassengerCount > models.MaxPassengers {
		return models.Ride{}, models.ErrPassengerCount
	}
	if req.VehicleType == "" {
		req.VehicleType = models.VehicleAuto
	}
	fares, err := b.Fares(req.Pickup, req.Destination)
	if err != nil {
		return models.Ride{}, err
	}
	fare, ok := fares[req.VehicleType]
	if !ok {
		return models.Ride{}, fmt.Errorf("unknown vehicle type %q", req.VehicleType)
	}
	ride := models.Ride{
		ID:             uuid.NewString(),
		Pickup:         req.Pickup,
		Destination:    req.Destination,
		VehicleType:    req.VehicleType,
		PassengerCount: req.PassengerCount,
		Fare:           fare,
		Status:         "pending",
	}
	b.mu.Lock()
	b.rides[ride.ID] = ride
	if ownerID != "" {
		b.owners[ride.ID] = ownerID
	}
	b.mu.Unlock()
	return ride, nil
}

func (b *RideBook) Get(id string) (models.Ride, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.rides[id]
	return r, ok
}

func (b *RideBook) SetOwner(rideID, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.rides[rideID]; ok && userID != "" {
		b.owners[rideID] = userID
	}
}

func (b *RideBook) Owner(rideID string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.owners[rideID]
}

// SetStatus records a status change and returns the updated ride.
func (b *RideBook) SetStatus(id, status string) (models.Ride, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rides[id]
	if !ok {
		return models.Ride{}, ErrRideNotFound
	}
	r.Status = status
	b.rides[id] = r
	return r, nil
}

// straightRoute interpolates n+1 evenly spaced points between a and b.
func straightRoute(a, b models.Location, n int) []models.Location {
	out := make([]models.Location, 0, n+1)
	for i := 0; i <= n; i++ {
		f := float64(i) / float64(n)
		out = append(out, models.Location{Lat: a.Lat + (b.Lat-a.Lat)*f, Lng: a.Lng + (b.Lng-a.Lng)*f})
	}
	return out
}
