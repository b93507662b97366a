// Package app builds the auction engine from configuration and runs the
// selected mode until the process is told to stop.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/alanyoungcy/gemauction/internal/config"
)

// App owns the configuration and whatever Wire opened.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	mu      sync.Mutex
	cleanup func()
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger.With(slog.String("component", "app"))}
}

// Run wires dependencies and blocks in the configured mode. It returns when
// ctx is cancelled or a component fails. Call Close afterwards.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	runners := map[string]func(context.Context, *Dependencies) error{
		config.ModeAPI:     a.APIMode,
		config.ModeSweeper: a.SweeperMode,
		config.ModeFull:    a.FullMode,
	}
	run, ok := runners[mode]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	a.logger.InfoContext(ctx, "app: starting", slog.String("mode", mode), slog.Any("config", a.cfg.Redacted()))

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.mu.Lock()
	a.cleanup = cleanup
	a.mu.Unlock()

	a.logger.InfoContext(ctx, "app: wired",
		slog.String("store", a.cfg.Store.Driver),
		slog.Bool("redis", deps.SignalBus != nil),
		slog.Bool("nats", deps.EventStream != nil),
		slog.Bool("archive", deps.Archiver != nil),
	)
	return run(ctx, deps)
}

// Close releases everything Wire opened. Later calls do nothing.
func (a *App) Close() {
	a.mu.Lock()
	cleanup := a.cleanup
	a.cleanup = nil
	a.mu.Unlock()

	if cleanup != nil {
		a.logger.Info("app: closing connections")
		cleanup()
	}
}
