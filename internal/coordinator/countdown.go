package coordinator

import (
	"time"

	"github.com/example/rider-client/internal/trip"
)

type tickEvent struct{ now time.Time }

func (tickEvent) name() string { return "tick" }

// The snapshot is rebuilt after every event; a tick only needs to stop
// the ticker once the window has run out.
func (e tickEvent) apply(c *Coordinator) {
	if c.remaining() == 0 {
		c.stopTicker()
	}
}

func (c *Coordinator) remaining() time.Duration {
	if c.st.trip == nil {
		return 0
	}
	return trip.Remaining(c.st.trip.CreatedAt, c.cfg.Clock.Now(), c.cfg.Window)
}

func (c *Coordinator) countdown() string {
	if !c.st.trip.Matching() {
		return ""
	}
	return trip.FormatCountdown(c.remaining())
}

// syncTicker runs the countdown ticker only while the trip is matching
// and time remains.
func (c *Coordinator) syncTicker() {
	if !c.st.trip.Matching() || c.remaining() == 0 {
		c.stopTicker()
		return
	}
	if c.ticker == nil {
		c.ticker = c.cfg.Clock.NewTicker(c.cfg.Tick)
	}
}

func (c *Coordinator) stopTicker() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}
