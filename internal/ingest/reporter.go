// Package ingest forwards the rider's coalesced positions to downstream
// sinks (Kafka, Redis GEO).
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/rider-client/internal/geo"
	"github.com/example/rider-client/internal/models"
	"github.com/example/rider-client/internal/observability"
)

type Sink interface {
	Name() string
	Report(ctx context.Context, p models.RiderPosition) error
}

type Reporter struct {
	userID func() string
	sinks  []Sink
	logger *slog.Logger
}

func NewReporter(userID func() string, logger *slog.Logger, sinks ...Sink) *Reporter {
	return &Reporter{userID: userID, sinks: sinks, logger: logger.With("component", "ingest")}
}

// Run reports every fix received until ctx ends or fixes is closed.
// A failing sink is logged and counted; it never stops the others.
func (r *Reporter) Run(ctx context.Context, fixes <-chan geo.Fix) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-fixes:
			if !ok {
				return
			}
			r.Report(ctx, f)
		}
	}
}

func (r *Reporter) Report(ctx context.Context, f geo.Fix) {
	user := r.userID()
	if user == "" {
		r.logger.Debug("position dropped, no user id")
		return
	}
	at := f.At
	if at.IsZero() {
		at = time.Now()
	}
	p := models.RiderPosition{UserID: user, Lat: f.Location.Lat, Lng: f.Location.Lng, At: at}
	for _, s := range r.sinks {
		if err := s.Report(ctx, p); err != nil {
			observability.PositionReportErrors.WithLabelValues(s.Name()).Inc()
			r.logger.Warn("position report failed", "sink", s.Name(), "error", err)
			continue
		}
		observability.PositionsReported.WithLabelValues(s.Name()).Inc()
	}
}
