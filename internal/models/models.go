package models

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Suggestion is an autocomplete hit; it is discarded once a location is chosen.
type Suggestion struct {
	Description string   `json:"description"`
	PlaceID     string   `json:"place_id"`
	Location    Location `json:"location"`
}

type VehicleType string

const (
	VehicleAuto VehicleType = "auto"
	VehicleCar  VehicleType = "car"
	VehicleMoto VehicleType = "moto"
)

// VehicleTypes lists the bookable vehicles in display order.
var VehicleTypes = []VehicleType{VehicleAuto, VehicleCar, VehicleMoto}

// FareTable maps vehicle type to quoted fare.
type FareTable map[VehicleType]float64

type Ride struct {
	ID             string      `json:"_id"`
	Pickup         string      `json:"pickup"`
	Destination    string      `json:"destination"`
	VehicleType    VehicleType `json:"vehicleType"`
	PassengerCount int         `json:"passengerCount"`
	Fare           float64     `json:"fare,omitempty"`
	Status         string      `json:"status,omitempty"`
}

type RideRequest struct {
	Pickup         string      `json:"pickup"`
	Destination    string      `json:"destination"`
	VehicleType    VehicleType `json:"vehicleType"`
	PassengerCount int         `json:"passengerCount"`
}

const (
	MinPassengers = 1
	MaxPassengers = 4
)

var ErrPassengerCount = errors.New("at least 1 passenger required")

// ParsePassengerCount turns free-form input into a seat count. Values above
// MaxPassengers are clamped; zero, negative or non-numeric input is rejected.
func ParsePassengerCount(input string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < MinPassengers {
		return 0, ErrPassengerCount
	}
	if n > MaxPassengers {
		n = MaxPassengers
	}
	return n, nil
}

// RiderPosition is one coalesced position report.
type RiderPosition struct {
	UserID string    `json:"userId"`
	Lat    float64   `json:"lat"`
	Lng    float64   `json:"lng"`
	At     time.Time `json:"at"`
}
