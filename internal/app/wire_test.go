package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/alanyoungcy/gemauction/internal/config"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWireMemoryDefaults(t *testing.T) {
	cfg := config.Defaults()
	deps, cleanup, err := Wire(context.Background(), &cfg, discard())
	assert.NoError(t, err)
	defer cleanup()

	check.NotNil(t, deps.AuctionStore)
	check.NotNil(t, deps.BidStore)
	check.NotNil(t, deps.AuditStore)
	check.NotNil(t, deps.Engine)
	check.NotNil(t, deps.Service)
	check.NotNil(t, deps.Sweeper)
	check.True(t, deps.RateLimiter == nil)
	check.True(t, deps.SignalBus == nil)
	check.True(t, deps.EventStream == nil)
	check.True(t, deps.Archiver == nil)
	check.Equal(t, 0, len(deps.Checks))
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "trade"
	a := New(&cfg, discard())
	err := a.Run(context.Background())
	check.Error(t, err)
	a.Close()
}

func TestSweeperModeStopsOnCancel(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = config.ModeSweeper
	a := New(&cfg, discard())
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	check.NoError(t, a.Run(ctx))
}
