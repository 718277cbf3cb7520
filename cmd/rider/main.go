package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/redis/go-redis/v9"

	"github.com/example/rider-client/internal/api"
	"github.com/example/rider-client/internal/channel"
	"github.com/example/rider-client/internal/config"
	"github.com/example/rider-client/internal/coordinator"
	"github.com/example/rider-client/internal/dispatch"
	"github.com/example/rider-client/internal/geo"
	httpapi "github.com/example/rider-client/internal/http"
	"github.com/example/rider-client/internal/ingest"
	"github.com/example/rider-client/internal/logging"
	"github.com/example/rider-client/internal/models"
	"github.com/example/rider-client/internal/route"
	"github.com/example/rider-client/internal/session"
	"github.com/example/rider-client/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rider: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.ParseClientFlags(os.Args[1:])
	if err != nil {
		return err
	}

	// the TUI owns the terminal, so logs go to a file
	var logger *slog.Logger
	if cfg.NoTUI {
		logger = logging.NewLogger(cfg.LogLevel)
	} else {
		var closer io.Closer
		logger, closer, err = logging.OpenFile(cfg.LogFile, cfg.LogLevel)
		if err != nil {
			return err
		}
		defer closer.Close()
	}

	store, err := session.Open(cfg.SessionDir)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()
	id, err := session.Resolve(store, cfg.UserID, cfg.AuthToken, cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("resolve identity: %w", err)
	}
	if cfg.Name != "" {
		id.Name = cfg.Name
	}
	if cfg.Phone != "" {
		id.Phone = cfg.Phone
	}
	holder := session.NewHolder(id)
	logger = logger.With("user_id", id.UserID)
	logger.Info("rider starting", "api", cfg.APIBaseURL, "channel", cfg.ChannelURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiClient := api.NewClient(cfg.APIBaseURL, holder.Token, cfg.RequestTimeout)
	header := http.Header{}
	if tok := holder.Token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}
	ch := channel.New(channel.Config{
		URL:          cfg.ChannelURL,
		Header:       header,
		UserID:       holder.UserID,
		ReconnectMin: cfg.ReconnectMin,
		ReconnectMax: cfg.ReconnectMax,
	}, logger)
	disp := dispatch.NewCallDispatcher(cfg.CallDriverURL(), cfg.DispatchPhone, holder.Token, cfg.RequestTimeout, logger)
	coord := coordinator.New(coordinator.Config{
		UserID:         holder.UserID,
		Name:           id.Name,
		Phone:          id.Phone,
		Window:         cfg.MatchingWindow,
		Tick:           cfg.CountdownTick,
		RequestTimeout: cfg.RequestTimeout,
	}, ch, apiClient, disp, logger)

	src, err := positionSource(cfg)
	if err != nil {
		return err
	}
	tracker := geo.NewTracker(src, cfg.GeoInterval, nil, logger)

	sinks, checks, closeSinks := buildSinks(cfg, logger)
	defer closeSinks()
	reporter := ingest.NewReporter(holder.UserID, logger, sinks...)

	var fetcher route.Fetcher = apiClient
	if cfg.RouteBackend == config.RouteBackendOSRM {
		fetcher = route.NewOSRMFetcher(cfg.OSRMEndpoint)
	}
	routes := route.NewProvider(fetcher, cfg.RequestTimeout, logger)
	defer routes.Close()

	checks = append(checks, httpapi.Check{Name: "channel", Fn: func(context.Context) error {
		if !ch.Connected() {
			return errors.New("event channel disconnected")
		}
		return nil
	}})
	status := httpapi.NewStatusServer(logger, func() any {
		fix, state, gerr := tracker.Latest()
		v := map[string]any{"userId": holder.UserID(), "booking": coord.Snapshot(), "geo": state.String()}
		if state == geo.StateAvailable {
			v["position"] = fix.Location
		}
		if gerr != nil {
			v["geoError"] = gerr.Error()
		}
		return v
	}, checks...)
	srv := &http.Server{Addr: cfg.StatusAddr, Handler: status, ReadHeaderTimeout: 5 * time.Second}

	fixes := fanOut(ctx, tracker.Updates(), 2)
	var wg sync.WaitGroup
	goRun := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				logger.Error("component stopped", "component", name, "error", err)
			}
		}()
	}
	goRun("status", func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	goRun("channel", func() error { return ch.Run(ctx) })
	goRun("coordinator", func() error { return coord.Run(ctx) })
	goRun("ingest", func() error { reporter.Run(ctx, fixes[0]); return nil })
	goRun("route", func() error { followRoute(ctx, coord, routes); return nil })

	geoErr := make(chan error, 1)
	goRun("geo", func() error {
		err := tracker.Run(ctx)
		geoErr <- err
		return err
	})

	if cfg.NoTUI {
		<-ctx.Done()
	} else {
		snaps, unsubscribe := coord.Subscribe()
		model := tui.NewModel(coord, tui.Sources{Snapshots: snaps, Fixes: fixes[1], Routes: routes.Results()}, coord.Snapshot())
		prog := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		go func() {
			select {
			case err := <-geoErr:
				if err != nil {
					prog.Send(tui.PositionMsg{State: geo.StateFailed, Err: err})
				}
			case <-ctx.Done():
			}
		}()
		_, err := prog.Run()
		unsubscribe()
		if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			logger.Error("tui stopped", "error", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	wg.Wait()
	logger.Info("rider stopped")
	return nil
}

func positionSource(cfg config.ClientConfig) (geo.Source, error) {
	if cfg.ReplayPath == "" {
		return geo.Static{Location: models.Location{Lat: cfg.StartLat, Lng: cfg.StartLng}}, nil
	}
	track, err := geo.LoadTrackFile(cfg.ReplayPath)
	if err != nil {
		return nil, err
	}
	return geo.Replay{Track: track, Step: cfg.GeoInterval, Loop: true}, nil
}

// buildSinks wires the optional position sinks named in cfg.
func buildSinks(cfg config.ClientConfig, logger *slog.Logger) ([]ingest.Sink, []httpapi.Check, func()) {
	var sinks []ingest.Sink
	var checks []httpapi.Check
	var closers []io.Closer
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		rg := geo.NewRedisGeo(rc, cfg.RedisRiderGeoKey)
		sinks = append(sinks, rg)
		checks = append(checks, httpapi.Check{Name: "redis", Fn: rg.Ping})
		closers = append(closers, rc)
		logger.Info("reporting positions to redis", "addr", cfg.RedisAddr, "key", cfg.RedisRiderGeoKey)
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		sinks = append(sinks, kp)
		closers = append(closers, kp)
		logger.Info("reporting positions to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	return sinks, checks, func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}
}

// followRoute keeps the route provider pointed at the coordinator's
// chosen locations while the route is shown.
func followRoute(ctx context.Context, coord *coordinator.Coordinator, routes *route.Provider) {
	snaps, unsubscribe := coord.Subscribe()
	defer unsubscribe()
	var lastFrom, lastTo *models.Location
	shown := false
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-snaps:
			if !s.ShowRoute {
				if shown {
					routes.Set(nil, nil)
					shown, lastFrom, lastTo = false, nil, nil
				}
				continue
			}
			if shown && sameLocation(lastFrom, s.PickupLocation) && sameLocation(lastTo, s.DestinationLocation) {
				continue
			}
			shown, lastFrom, lastTo = true, s.PickupLocation, s.DestinationLocation
			routes.Set(lastFrom, lastTo)
		}
	}
}

func sameLocation(a, b *models.Location) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// fanOut copies every fix to n latest-wins channels.
func fanOut(ctx context.Context, in <-chan geo.Fix, n int) []chan geo.Fix {
	outs := make([]chan geo.Fix, n)
	for i := range outs {
		outs[i] = make(chan geo.Fix, 1)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case f := <-in:
				for _, out := range outs {
					select {
					case <-out:
					default:
					}
					out <- f
				}
			}
		}
	}()
	return outs
}
