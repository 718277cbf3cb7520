package models

import "encoding/json"

// Channel event names.
const (
	EventJoin               = "join"
	EventCreateRideSharing  = "create-ride-sharing"
	EventRideAccepted       = "ride-accepted"
	EventRideRejected       = "ride-rejected"
	EventSharedRideCreated  = "shared-ride-created"
	EventSharedRideJoined   = "shared-ride-joined"
	EventSharedRideUpdated  = "shared-ride-updated"
	EventSharedWindowClosed = "shared-ride-window-closed"
	EventRideCreationError  = "ride-creation-error"

	// Lifecycle pseudo-events raised locally by the channel client.
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// Envelope is the frame carried on the event channel.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type JoinRoom struct {
	UserID   string `json:"userId"`
	UserType string `json:"userType"`
}

// PoolRequest is published after a ride is created so the server can
// create or join a shared trip.
type PoolRequest struct {
	RideID         string      `json:"rideId"`
	Pickup         string      `json:"pickup"`
	Destination    string      `json:"destination"`
	VehicleType    VehicleType `json:"vehicleType"`
	UserID         string      `json:"userId"`
	Name           string      `json:"name"`
	Phone          string      `json:"phone"`
	PassengerCount int         `json:"passengerCount"`
}

type RideNotification struct {
	RideID      string `json:"rideId"`
	Pickup      string `json:"pickup"`
	Destination string `json:"destination"`
}

type CreationError struct {
	Message string `json:"message"`
}
