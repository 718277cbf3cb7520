// Package geo tracks the rider's device position. Raw fixes from a
// Source are coalesced to at most one published position per interval;
// the newest fix seen while throttled is published once the interval
// allows it.
package geo

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/rider-client/internal/clock"
	"github.com/example/rider-client/internal/models"
)

var (
	ErrPermissionDenied = errors.New("geolocation permission denied")
	ErrUnsupported      = errors.New("geolocation is not supported")
)

type State int

const (
	StatePending State = iota
	StateAvailable
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StateFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Fix is a single device position.
type Fix struct {
	Location models.Location
	At       time.Time
}

// Source streams raw fixes until ctx ends. A non-nil return is terminal.
type Source interface {
	Watch(ctx context.Context, out chan<- Fix) error
}

type Tracker struct {
	src      Source
	interval time.Duration
	clock    clock.Clock
	limiter  *rate.Limiter
	logger   *slog.Logger

	mu     sync.RWMutex
	state  State
	latest Fix
	err    error

	updates chan Fix
}

func NewTracker(src Source, interval time.Duration, clk clock.Clock, logger *slog.Logger) *Tracker {
	if clk == nil {
		clk = clock.Real()
	}
	return &Tracker{
		src:      src,
		interval: interval,
		clock:    clk,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		logger:   logger.With("component", "geo"),
		updates:  make(chan Fix, 1),
	}
}

// Updates delivers published fixes; a slow reader only sees the newest.
func (t *Tracker) Updates() <-chan Fix { return t.updates }

// Latest reports the last published fix. State distinguishes "no fix
// yet" from a terminal failure; err is set only in StateFailed.
func (t *Tracker) Latest() (Fix, State, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest, t.state, t.err
}

func (t *Tracker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	raw := make(chan Fix, 16)
	errc := make(chan error, 1)
	go func() { errc <- t.src.Watch(ctx, raw) }()

	var pending *Fix
	var flush <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if err == nil || ctx.Err() != nil {
				return nil
			}
			t.fail(err)
			return err
		case f := <-raw:
			now := t.clock.Now()
			if t.limiter.AllowN(now, 1) {
				t.publish(f)
				pending, flush = nil, nil
				continue
			}
			pending = &f
			if flush == nil {
				flush = t.clock.After(t.wait(now))
			}
		case <-flush:
			flush = nil
			if pending == nil {
				continue
			}
			now := t.clock.Now()
			if t.limiter.AllowN(now, 1) {
				t.publish(*pending)
				pending = nil
				continue
			}
			flush = t.clock.After(t.wait(now))
		}
	}
}

// wait is the time until the limiter holds a whole token again.
func (t *Tracker) wait(now time.Time) time.Duration {
	missing := 1 - t.limiter.TokensAt(now)
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing * float64(t.interval))
}

func (t *Tracker) publish(f Fix) {
	t.mu.Lock()
	t.latest = f
	t.state = StateAvailable
	t.mu.Unlock()

	select {
	case <-t.updates:
	default:
	}
	t.updates <- f
}

func (t *Tracker) fail(err error) {
	t.mu.Lock()
	t.state = StateFailed
	t.err = err
	t.mu.Unlock()
	t.logger.Error("geolocation unavailable", "error", err)
}
