package coordinator

import (
	"context"

	"github.com/example/rider-client/internal/models"
	"github.com/example/rider-client/internal/observability"
	"github.com/example/rider-client/internal/panel"
	"github.com/example/rider-client/internal/trip"
)

const (
	noticeRejected       = "Driver has rejected your ride."
	noticeFallbackFailed = "Failed to initiate call to find a driver."
)

type rideAcceptedEvent struct{ ride models.Ride }

func (rideAcceptedEvent) name() string { return models.EventRideAccepted }

// Acceptance wins over every pooling state.
func (e rideAcceptedEvent) apply(c *Coordinator) {
	st := &c.st
	ride := e.ride
	if ride.ID != "" && ride.ID == st.dismissedRide {
		c.logger.Debug("acceptance for a dismissed ride ignored", "ride_id", ride.ID)
		return
	}
	st.ride = &ride
	st.accepted = true
	st.createReq = nil
	st.clearTrip()
	st.hide(panel.SearchingDriver)
	st.hide(panel.PooledMatching)
	st.show(panel.Confirmed)
	st.phase = PhaseRideAccepted
	c.logger.Info("ride accepted", "ride_id", ride.ID)
}

type rideRejectedEvent struct{ note models.RideNotification }

func (rideRejectedEvent) name() string { return models.EventRideRejected }

func (e rideRejectedEvent) apply(c *Coordinator) {
	st := &c.st
	if st.accepted {
		c.logger.Info("rejection after acceptance ignored", "ride_id", e.note.RideID)
		return
	}
	if e.note.RideID != "" && st.ride != nil && st.ride.ID != e.note.RideID {
		c.logger.Info("rejection for another ride ignored", "ride_id", e.note.RideID, "current", st.ride.ID)
		return
	}
	st.hide(panel.SearchingDriver)
	st.hide(panel.PooledMatching)
	st.notice = noticeRejected
	if key := st.trip.Key(); key != "" {
		// The pooling attempt is over; its late events must not revive it.
		st.windowClosed[key] = true
	}
	st.ride = nil
	st.createReq = nil
	st.clearTrip()
	st.phase = PhaseIdle
	c.logger.Info("ride rejected", "ride_id", e.note.RideID)
}

type creationErrorEvent struct{ message string }

func (creationErrorEvent) name() string { return models.EventRideCreationError }

func (e creationErrorEvent) apply(c *Coordinator) {
	st := &c.st
	if st.accepted {
		return
	}
	st.clearTrip()
	st.createReq = nil
	st.ride = nil
	st.hide(panel.PooledMatching)
	st.hide(panel.SearchingDriver)
	st.notice = "Error: " + e.message
	st.phase = PhaseVehicleSelected
	st.reopenConfirm()
	c.logger.Warn("ride creation error", "message", e.message)
}

type tripKind int

const (
	tripCreated tripKind = iota
	tripJoined
	tripUpdated
	tripWindowClosed
)

var tripEventNames = [...]string{
	models.EventSharedRideCreated,
	models.EventSharedRideJoined,
	models.EventSharedRideUpdated,
	models.EventSharedWindowClosed,
}

type tripEvent struct {
	kind   tripKind
	update trip.Update
}

func (e tripEvent) name() string { return tripEventNames[e.kind] }

func (e tripEvent) apply(c *Coordinator) {
	st := &c.st
	if st.accepted {
		c.logger.Debug("trip event after acceptance ignored", "event", e.name())
		return
	}
	next := e.update.Trip
	if err := next.Validate(); err != nil {
		observability.InvalidTripPayloads.Inc()
		c.logger.Warn("trip payload rejected", "event", e.name(), "error", err)
		return
	}
	if e.kind == tripUpdated && st.trip == nil {
		c.logger.Debug("update without a current trip ignored", "trip", next.Key())
		return
	}

	prevKey := st.trip.Key()
	if key := next.Key(); key != "" && st.windowClosed[key] && (prevKey != key || st.phase != PhaseSearchingDriver) {
		c.logger.Debug("trip event for a finished pooling attempt ignored", "event", e.name(), "trip", key)
		return
	}
	st.trip = next
	switch {
	case e.update.YourFare != nil:
		f := *e.update.YourFare
		st.yourFare = &f
	case prevKey != next.Key():
		st.yourFare = nil
	}

	switch e.kind {
	case tripCreated, tripJoined:
		st.hide(panel.Confirm)
		st.show(panel.PooledMatching)
		st.phase = matchingPhase(next)
	case tripUpdated:
		if st.phase != PhaseSearchingDriver {
			st.phase = matchingPhase(next)
		}
	case tripWindowClosed:
		c.windowClosed(next)
	}
}

func matchingPhase(t *trip.SharedTrip) Phase {
	if t.Status == trip.StatusFull {
		return PhasePoolFull
	}
	return PhasePooledMatching
}

// windowClosed runs once per pooling attempt; repeats only refresh the
// trip.
func (c *Coordinator) windowClosed(t *trip.SharedTrip) {
	st := &c.st
	key := t.Key()
	if key != "" && st.windowClosed[key] {
		c.logger.Debug("duplicate window close", "trip", key)
		return
	}
	st.windowClosed[key] = true
	st.hide(panel.PooledMatching)
	st.show(panel.SearchingDriver)
	st.phase = PhaseSearchingDriver

	initiator, ok := t.Initiator()
	if !ok || initiator.UserID == "" || initiator.UserID != c.cfg.UserID() {
		return
	}
	if st.accepted {
		return
	}
	rideID := t.PrimaryRideID
	if rideID == "" {
		rideID = initiator.RideID
	}
	// Trip fields only: local pickup/destination may have been edited.
	pickup, destination := t.Pickup, t.Destination
	c.logger.Info("matching window closed, calling driver", "trip", key, "ride_id", rideID)
	c.async("call_driver", func(ctx context.Context) event {
		_, err := c.disp.CallDriver(ctx, rideID, pickup, destination)
		return fallbackResult{key: key, err: err}
	})
}

type fallbackResult struct {
	key string
	err error
}

func (fallbackResult) name() string { return "fallback_result" }

func (e fallbackResult) apply(c *Coordinator) {
	st := &c.st
	if e.err == nil {
		return
	}
	c.logger.Warn("fallback call failed", "trip", e.key, "error", e.err)
	if st.accepted || st.phase != PhaseSearchingDriver || st.trip.Key() != e.key {
		return
	}
	st.notice = noticeFallbackFailed
	st.hide(panel.SearchingDriver)
	st.phase = PhaseVehicleSelected
	st.reopenConfirm()
}

type connectionEvent struct{ connected bool }

func (e connectionEvent) name() string {
	if e.connected {
		return models.EventConnect
	}
	return models.EventDisconnect
}

func (e connectionEvent) apply(c *Coordinator) {
	c.st.connected = e.connected
	if e.connected {
		c.logger.Info("channel connected")
	} else {
		c.logger.Warn("channel disconnected")
	}
}
