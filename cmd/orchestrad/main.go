// Command orchestrad supervises a demo set of managers and serves their
// status over HTTP.
//
// Configuration is read from the YAML file given by -config (optional) and
// ORCHESTRA_* environment variables; edits to the file are applied without a
// restart.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoCodeAlone/orchestra"
	"github.com/GoCodeAlone/orchestra/config"
	"github.com/GoCodeAlone/orchestra/feeders"
	"github.com/GoCodeAlone/orchestra/lifecycle"
	"github.com/GoCodeAlone/orchestra/statusapi"
)

func main() {
	configPath := flag.String("config", "orchestra.yaml", "path to the orchestrator configuration file")
	addr := flag.String("addr", ":8080", "status API listen address")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	if err := run(*configPath, *addr, logger); err != nil {
		logger.Error("Orchestrator exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath, addr string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(
		feeders.YamlFeeder{Path: configPath, Optional: true},
		feeders.NewAffixedEnvFeeder("ORCHESTRA", ""),
	)
	var cfg config.Config
	if err := loader.Load(ctx, &cfg); err != nil {
		return err
	}
	for _, source := range loader.Sources() {
		logger.Debug("Loaded configuration source", "source", source.Name, "loaded", source.Loaded)
	}

	registry := prometheus.NewRegistry()
	o, err := orchestra.New(
		orchestra.WithLogger(logger),
		orchestra.WithConfig(cfg),
		orchestra.WithMetrics(registry),
		orchestra.WithObserver(lifecycle.NewFunctionalObserver("failure-log", func(ctx context.Context, event cloudevents.Event) error {
			logger.Warn("Lifecycle failure", "type", event.Type(), "source", event.Source())
			return nil
		}), lifecycle.EventTypeManagerStartFailed, lifecycle.EventTypeManagerDegraded, lifecycle.EventTypeManagerStopFailed),
	)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+cfg.StopTimeout)
		defer cancel()
		if err := o.Close(shutdownCtx); err != nil {
			logger.Warn("Orchestrator close failed", "error", err)
		}
	}()

	for _, reg := range demoRegistrations() {
		if err := o.Register(reg); err != nil {
			return err
		}
	}

	watcher, err := config.NewWatcher(loader, config.WatcherConfig{
		Path:     configPath,
		OnReload: o.ApplyConfig,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if err := watcher.StartWatch(ctx); err != nil {
		logger.Warn("Configuration hot reload disabled", "path", configPath, "error", err)
	} else {
		defer func() { _ = watcher.StopWatch() }()
	}

	if err := o.Start(ctx); err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Mount("/", statusapi.NewRouter(o))
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Status API listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
