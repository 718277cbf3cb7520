package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/example/rider-client/internal/config"
	"github.com/example/rider-client/internal/devserver"
	"github.com/example/rider-client/internal/logging"
)

func main() {
	configPath := pflag.String("config", os.Getenv("DEVSERVER_CONFIG"), "path to a YAML config file")
	pflag.Parse()

	cfg, err := config.LoadDevServerConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	places := devserver.DefaultGazetteer()
	if cfg.GazetteerPath != "" {
		if places, err = devserver.LoadGazetteer(cfg.GazetteerPath); err != nil {
			logger.Error("load gazetteer", "path", cfg.GazetteerPath, "error", err)
			os.Exit(1)
		}
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      devserver.New(cfg, places, nil, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("devserver listening", "addr", cfg.HTTPAddr, "pool_capacity", cfg.PoolCapacity, "window", cfg.MatchingWindow)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}
}
