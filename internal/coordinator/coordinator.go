// Package coordinator owns the ride lifecycle. User actions, channel
// events, collaborator results and countdown ticks are all funnelled into
// one inbox and applied by a single goroutine, so no two transitions ever
// run concurrently. Collaborator calls run on their own goroutines and
// post their results back; a result that no longer matches current state
// is dropped when it is applied.
package coordinator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/example/rider-client/internal/channel"
	"github.com/example/rider-client/internal/clock"
	"github.com/example/rider-client/internal/dispatch"
	"github.com/example/rider-client/internal/models"
	"github.com/example/rider-client/internal/observability"
	"github.com/example/rider-client/internal/panel"
	"github.com/example/rider-client/internal/trip"
)

const (
	defaultWindow  = 10 * time.Minute
	defaultTick    = time.Second
	defaultTimeout = 10 * time.Second
	defaultName    = "User"
	defaultPhone   = "0000000000"
	inboxSize      = 64
)

// RideAPI is the subset of REST collaborators the coordinator drives.
type RideAPI interface {
	CreateRide(ctx context.Context, req models.RideRequest) (models.Ride, error)
	Fare(ctx context.Context, pickup, destination string) (models.FareTable, error)
	Suggestions(ctx context.Context, input string) ([]models.Suggestion, error)
	PlaceDetails(ctx context.Context, placeID string) (models.Location, error)
}

type Dispatcher interface {
	CallDriver(ctx context.Context, rideID, pickup, destination string) (dispatch.CallResult, error)
}

// Channel is the event channel as seen by the coordinator.
type Channel interface {
	channel.Subscriber
	Emit(event string, payload any) error
}

type Config struct {
	UserID         func() string
	Name           string
	Phone          string
	Window         time.Duration
	Tick           time.Duration
	RequestTimeout time.Duration
	Clock          clock.Clock
}

func (c *Config) defaults() {
	if c.UserID == nil {
		c.UserID = func() string { return "" }
	}
	if c.Name == "" {
		c.Name = defaultName
	}
	if c.Phone == "" {
		c.Phone = defaultPhone
	}
	if c.Window <= 0 {
		c.Window = defaultWindow
	}
	if c.Tick <= 0 {
		c.Tick = defaultTick
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultTimeout
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
}

type Coordinator struct {
	cfg    Config
	ch     Channel
	api    RideAPI
	disp   Dispatcher
	logger *slog.Logger

	inbox  chan event
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	// loop-owned
	st     state
	ticker clock.Ticker

	mu   sync.RWMutex
	snap Snapshot
	subs map[chan Snapshot]struct{}
}

func New(cfg Config, ch Channel, api RideAPI, disp Dispatcher, logger *slog.Logger) *Coordinator {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:    cfg,
		ch:     ch,
		api:    api,
		disp:   disp,
		logger: logger.With("component", "coordinator"),
		inbox:  make(chan event, inboxSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		st:     newState(),
		subs:   make(map[chan Snapshot]struct{}),
	}
	c.snap = c.st.snapshot("")
	return c
}

// Run subscribes to the channel and processes events until ctx ends.
// Channel handlers are deregistered and the countdown ticker released
// before Run returns.
func (c *Coordinator) Run(ctx context.Context) error {
	detach := c.attach()
	defer func() {
		detach()
		c.stopTicker()
		c.cancel()
		c.once.Do(func() { close(c.done) })
		c.wg.Wait()
	}()

	for {
		var tickC <-chan time.Time
		if c.ticker != nil {
			tickC = c.ticker.C()
		}
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.inbox:
			c.handle(ev)
		case now := <-tickC:
			c.handle(tickEvent{now: now})
		}
	}
}

// attach registers every channel handler and returns the matching
// deregistration.
func (c *Coordinator) attach() func() {
	offs := []func(){
		channel.OnJSON(c.ch, models.EventRideAccepted, c.logger, func(r models.Ride) { c.post(rideAcceptedEvent{ride: r}) }),
		channel.OnJSON(c.ch, models.EventRideRejected, c.logger, func(n models.RideNotification) { c.post(rideRejectedEvent{note: n}) }),
		channel.OnJSON(c.ch, models.EventRideCreationError, c.logger, func(e models.CreationError) { c.post(creationErrorEvent{message: e.Message}) }),
		channel.OnJSON(c.ch, models.EventSharedRideCreated, c.logger, func(u trip.Update) { c.post(tripEvent{kind: tripCreated, update: u}) }),
		channel.OnJSON(c.ch, models.EventSharedRideJoined, c.logger, func(u trip.Update) { c.post(tripEvent{kind: tripJoined, update: u}) }),
		channel.OnJSON(c.ch, models.EventSharedRideUpdated, c.logger, func(u trip.Update) { c.post(tripEvent{kind: tripUpdated, update: u}) }),
		channel.OnJSON(c.ch, models.EventSharedWindowClosed, c.logger, func(u trip.Update) { c.post(tripEvent{kind: tripWindowClosed, update: u}) }),
		c.ch.On(models.EventConnect, func(json.RawMessage) { c.post(connectionEvent{connected: true}) }),
		c.ch.On(models.EventDisconnect, func(json.RawMessage) { c.post(connectionEvent{connected: false}) }),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func (c *Coordinator) post(ev event) {
	select {
	case c.inbox <- ev:
	case <-c.done:
	}
}

// async runs fn off the loop and posts its result event back.
func (c *Coordinator) async(op string, fn func(ctx context.Context) event) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RequestTimeout)
		defer cancel()
		ev := fn(ctx)
		if ev == nil {
			return
		}
		c.logger.Debug("collaborator returned", "op", op, "event", ev.name())
		c.post(ev)
	}()
}

func (c *Coordinator) handle(ev event) {
	c.logger.Debug("event", "event", ev.name(), "phase", c.st.phase.String())
	before := c.st.panels
	ev.apply(c)
	if after := c.st.panels; after != before {
		if after.Active != before.Active && after.Active != panel.None {
			observability.PanelTransitions.WithLabelValues(after.Active.String()).Inc()
		}
		if after.Confirmed && !before.Confirmed {
			observability.PanelTransitions.WithLabelValues(panel.Confirmed.String()).Inc()
		}
	}
	c.syncTicker()
	c.publish()
}

// Snapshot returns the state as of the last applied event.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Subscribe delivers the latest snapshot after every applied event.
// Slow readers only ever see the newest value.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	ch <- c.snap
	c.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			c.mu.Unlock()
		})
	}
}

func (c *Coordinator) publish() {
	snap := c.st.snapshot(c.countdown())
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = snap
	for ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
