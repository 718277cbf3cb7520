// Package route keeps the map route in step with the chosen pickup and
// destination. Each Set supersedes the previous request: its context is
// cancelled and any late result is discarded.
package route

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/rider-client/internal/geo"
	"github.com/example/rider-client/internal/models"
)

// defaultSpeedMps is a city average used for the naive ETA (~28.8 km/h).
const defaultSpeedMps = 8.0

type Fetcher interface {
	Route(ctx context.Context, from, to models.Location) ([]models.Location, error)
}

type Result struct {
	Generation uint64
	Waypoints  []models.Location
	Meters     float64
	ETA        time.Duration
	Err        error
}

// Empty reports whether there is nothing to draw.
func (r Result) Empty() bool { return len(r.Waypoints) == 0 }

type Provider struct {
	fetcher Fetcher
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	current Result
	closed  bool
	wg      sync.WaitGroup

	results chan Result
}

func NewProvider(f Fetcher, timeout time.Duration, logger *slog.Logger) *Provider {
	return &Provider{
		fetcher: f,
		timeout: timeout,
		logger:  logger.With("component", "route"),
		results: make(chan Result, 1),
	}
}

// Results delivers every accepted result; slow readers see the newest.
func (p *Provider) Results() <-chan Result { return p.results }

func (p *Provider) Current() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Set requests the route between pickup and destination. A nil end
// yields an empty route without a fetch.
func (p *Provider) Set(pickup, destination *models.Location) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.gen++
	gen := p.gen
	if pickup == nil || destination == nil {
		p.acceptLocked(Result{Generation: gen})
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	p.cancel = cancel
	from, to := *pickup, *destination
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer cancel()
		wps, err := p.fetcher.Route(ctx, from, to)
		res := Result{Generation: gen, Err: err}
		if err == nil {
			res.Waypoints = wps
			res.Meters = geo.PathLength(wps)
			res.ETA = time.Duration(res.Meters / defaultSpeedMps * float64(time.Second))
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if gen != p.gen || p.closed {
			p.logger.Debug("superseded route dropped", "generation", gen)
			return
		}
		if err != nil {
			p.logger.Warn("route fetch failed", "error", err)
		}
		p.acceptLocked(res)
	}()
}

func (p *Provider) acceptLocked(r Result) {
	p.current = r
	select {
	case <-p.results:
	default:
	}
	p.results <- r
}

// Close cancels any in-flight fetch and waits for it to finish.
func (p *Provider) Close() {
	p.mu.Lock()
	p.closed = true
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
	p.wg.Wait()
}
