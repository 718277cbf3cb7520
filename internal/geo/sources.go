package geo

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/rider-client/internal/clock"
	"github.com/example/rider-client/internal/models"
)

// Static reports one fixed position.
type Static struct {
	Location models.Location
	Clock    clock.Clock
}

func (s Static) Watch(ctx context.Context, out chan<- Fix) error {
	clk := s.Clock
	if clk == nil {
		clk = clock.Real()
	}
	select {
	case out <- Fix{Location: s.Location, At: clk.Now()}:
	case <-ctx.Done():
		return nil
	}
	<-ctx.Done()
	return nil
}

// Replay walks a recorded track, one point per Step.
type Replay struct {
	Track []models.Location
	Step  time.Duration
	Loop  bool
	Clock clock.Clock
}

func (r Replay) Watch(ctx context.Context, out chan<- Fix) error {
	if len(r.Track) == 0 {
		return fmt.Errorf("%w: empty track", ErrUnsupported)
	}
	clk := r.Clock
	if clk == nil {
		clk = clock.Real()
	}
	for i := 0; ; i++ {
		if i == len(r.Track) {
			if !r.Loop {
				<-ctx.Done()
				return nil
			}
			i = 0
		}
		select {
		case out <- Fix{Location: r.Track[i], At: clk.Now()}:
		case <-ctx.Done():
			return nil
		}
		select {
		case <-clk.After(r.Step):
		case <-ctx.Done():
			return nil
		}
	}
}

// Unavailable models a platform without geolocation or a denied
// permission prompt.
type Unavailable struct{ Err error }

func (u Unavailable) Watch(context.Context, chan<- Fix) error {
	if u.Err == nil {
		return ErrUnsupported
	}
	return u.Err
}

// Feed is a push-driven source for interactive use and tests.
type Feed struct {
	fixes chan Fix
	errs  chan error
}

func NewFeed() *Feed {
	return &Feed{fixes: make(chan Fix, 16), errs: make(chan error, 1)}
}

func (f *Feed) Push(fix Fix) { f.fixes <- fix }

// Fail ends the watch with err.
func (f *Feed) Fail(err error) {
	select {
	case f.errs <- err:
	default:
	}
}

func (f *Feed) Watch(ctx context.Context, out chan<- Fix) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-f.errs:
			return err
		case fix := <-f.fixes:
			select {
			case out <- fix:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// LoadTrack reads a YAML (or JSON) list of {lat, lng} points.
func LoadTrack(r io.Reader) ([]models.Location, error) {
	var points []struct {
		Lat float64 `yaml:"lat"`
		Lng float64 `yaml:"lng"`
	}
	if err := yaml.NewDecoder(r).Decode(&points); err != nil {
		return nil, fmt.Errorf("decode track: %w", err)
	}
	track := make([]models.Location, 0, len(points))
	for _, p := range points {
		track = append(track, models.Location{Lat: p.Lat, Lng: p.Lng})
	}
	return track, nil
}

func LoadTrackFile(path string) ([]models.Location, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadTrack(f)
}
