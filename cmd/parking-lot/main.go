package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parking-lot/internal/config"
	"parking-lot/internal/history"
	"parking-lot/internal/logging"
	"parking-lot/internal/parking"
	"parking-lot/internal/server"
)

type mode int

const (
	modeShell mode = iota
	modeServe
	modeBoth
)

func main() {
	execute()
}

type app struct {
	cfg       *config.Config
	telemetry *parking.TelemetryProvider
	store     history.Store
	manager   *parking.Manager
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	telemetryProvider, err := parking.NewTelemetryProvider(cfg.TelemetrySettings())
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}

	if err := logging.Init(cfg.LoggingOptions()); err != nil {
		shutdownTelemetry(telemetryProvider)
		return nil, fmt.Errorf("initialize logging: %w", err)
	}

	store, err := history.Open(ctx, cfg.History)
	if err != nil {
		shutdownTelemetry(telemetryProvider)
		return nil, fmt.Errorf("open history store: %w", err)
	}

	var recorder parking.HistoryRecorder
	if store != nil {
		recorder = store
	}

	manager, err := parking.NewManager(cfg.SystemSettings(), telemetryProvider, recorder)
	if err != nil {
		shutdownTelemetry(telemetryProvider)
		return nil, fmt.Errorf("create parking system: %w", err)
	}

	logging.Info(ctx, "parking lot ready",
		"capacity", cfg.ParkingCapacity,
		"side_road_capacity", cfg.SideRoadCapacity(),
		"log_level", cfg.LogLevel,
		"billing_mode", cfg.BillingMode,
		"history_driver", cfg.History.Driver,
	)

	return &app{
		cfg:       cfg,
		telemetry: telemetryProvider,
		store:     store,
		manager:   manager,
	}, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logging.Error(context.Background(), "closing history store", "error", err)
		}
	}
	shutdownTelemetry(a.telemetry)
}

func run(parent context.Context, m mode) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if interval := a.cfg.DualExit.AutoRebalanceInterval; interval > 0 {
		rebalancer := parking.NewAutoRebalancer(a.manager, interval)
		go rebalancer.Run(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	switch m {
	case modeShell:
		runShell(ctx, cancel, a, sigChan)
	case modeServe:
		runServer(ctx, cancel, a, sigChan)
	case modeBoth:
		runBoth(ctx, cancel, a, sigChan)
	}
	return nil
}

func newServer(a *app) *server.Server {
	return server.NewServer(server.Options{
		Port:        a.cfg.Server.Port,
		ServiceName: a.cfg.Telemetry.ServiceName,
		JWTSecret:   a.cfg.Auth.JWTSecret,
	}, a.manager)
}

func runShell(ctx context.Context, cancel context.CancelFunc, a *app, sigChan chan os.Signal) {
	go func() {
		select {
		case <-sigChan:
			logging.Info(ctx, "shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	shell := parking.NewShell(a.manager, a.telemetry, os.Stdin, os.Stdout)
	shell.Run(ctx)
}

func runServer(ctx context.Context, cancel context.CancelFunc, a *app, sigChan chan os.Signal) {
	srv := newServer(a)

	go func() {
		select {
		case <-sigChan:
			logging.Info(ctx, "received shutdown signal")
		case <-ctx.Done():
		}
		shutdownServer(srv)
		cancel()
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Error(ctx, "server error", "error", err)
	}
}

func runBoth(ctx context.Context, cancel context.CancelFunc, a *app, sigChan chan os.Signal) {
	srv := newServer(a)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start()
	}()

	cliDone := make(chan struct{})
	go func() {
		shell := parking.NewShell(a.manager, a.telemetry, os.Stdin, os.Stdout)
		shell.Run(ctx)
		close(cliDone)
	}()

	select {
	case err := <-serverDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(ctx, "server error", "error", err)
		}
	case <-cliDone:
		logging.Info(ctx, "shell exited")
	case <-sigChan:
		logging.Info(ctx, "received shutdown signal")
	}

	shutdownServer(srv)
	cancel()
}

func shutdownServer(srv *server.Server) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx, "server shutdown error", "error", err)
	}
}

func shutdownTelemetry(telemetryProvider *parking.TelemetryProvider) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := telemetryProvider.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error shutting down telemetry: %v\n", err)
	}
}
