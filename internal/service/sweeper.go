package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/alanyoungcy/gemauction/internal/auction"
	"github.com/alanyoungcy/gemauction/internal/domain"
)

// SweepLockKey names the lock that keeps sweeps to one replica at a time.
const SweepLockKey = "auction-sweep"

// Sweepable runs one lifecycle sweep and lists recently closed auctions.
type Sweepable interface {
	Sweep(ctx context.Context, now time.Time) (auction.SweepResult, error)
	ClosedSince(ctx context.Context, since time.Time, limit int) ([]domain.Auction, error)
}

// SweeperConfig tunes the Sweeper. Zero values select 5s ticks, a 30s lock
// and a 24h archive lookback.
type SweeperConfig struct {
	Interval time.Duration
	LockTTL  time.Duration
	// ArchiveLookback bounds how far back closed auctions are picked up for
	// archiving. Buy-now sales and failed uploads are caught this way.
	ArchiveLookback time.Duration
	Clock           func() time.Time
}

const (
	archiveBatch    = 200
	archivedMemory  = 4096
	defaultLookback = 24 * time.Hour
)

// Sweeper advances auctions past their deadlines on a fixed interval and
// archives every auction that reaches a terminal status, however it got there.
type Sweeper struct {
	svc      Sweepable
	locks    domain.LockManager
	archiver domain.Archiver
	cfg      SweeperConfig
	logger   *slog.Logger

	archived *lru.Cache // auction ids already uploaded

	mu     sync.Mutex
	cursor time.Time // ClosedAt where the next backlog scan starts
}

// NewSweeper creates a Sweeper. locks and archiver may be nil: without a lock
// every replica sweeps, and without an archiver nothing is archived.
func NewSweeper(svc Sweepable, locks domain.LockManager, archiver domain.Archiver, cfg SweeperConfig, logger *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.ArchiveLookback <= 0 {
		cfg.ArchiveLookback = defaultLookback
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	archived, _ := lru.New(archivedMemory) // only fails for a non-positive size
	return &Sweeper{
		svc:      svc,
		locks:    locks,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "sweeper")),
		archived: archived,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "sweeper: started", slog.Duration("interval", s.cfg.Interval))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sweeper: stopped")
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "sweeper: sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce performs a single sweep at the current time. When another replica
// holds the sweep lock it returns an empty result and no error.
func (s *Sweeper) RunOnce(ctx context.Context) (auction.SweepResult, error) {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, SweepLockKey, s.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.DebugContext(ctx, "sweeper: lock held elsewhere, skipping")
			return auction.SweepResult{}, nil
		}
		if err != nil {
			return auction.SweepResult{}, fmt.Errorf("sweeper: acquire lock: %w", err)
		}
		defer unlock()
	}

	now := s.cfg.Clock()
	res, sweepErr := s.svc.Sweep(ctx, now)
	if len(res.Transitioned) > 0 {
		s.logger.InfoContext(ctx, "sweeper: sweep committed", slog.Int("transitions", len(res.Transitioned)))
	}
	s.archive(ctx, now, res)
	return res, sweepErr
}

// archive uploads the auctions this sweep closed, then the backlog of closed
// auctions not yet uploaded. A failed upload stays in the backlog and is
// retried on the next sweep.
func (s *Sweeper) archive(ctx context.Context, now time.Time, res auction.SweepResult) {
	if s.archiver == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	failedNow := make(map[string]bool)
	for _, id := range slices.Sorted(maps.Keys(res.Auctions)) {
		if res.Auctions[id].Status.Terminal() && !s.upload(ctx, id) {
			failedNow[id] = true
		}
	}

	since := now.Add(-s.cfg.ArchiveLookback)
	if s.cursor.After(since) {
		since = s.cursor
	}
	closed, err := s.svc.ClosedSince(ctx, since, archiveBatch)
	if err != nil {
		s.logger.WarnContext(ctx, "sweeper: list closed auctions failed", slog.String("error", err.Error()))
		return
	}
	cursor, failed := since, false
	for _, a := range closed {
		ok := !failedNow[a.ID] && s.upload(ctx, a.ID)
		if !ok && !failed {
			cursor, failed = *a.ClosedAt, true
		}
		if !failed {
			cursor = *a.ClosedAt
		}
	}
	s.cursor = cursor
}

// upload archives one auction unless it already was. It reports whether the
// auction is archived.
func (s *Sweeper) upload(ctx context.Context, id string) bool {
	if s.archived.Contains(id) {
		return true
	}
	if _, err := s.archiver.ArchiveAuction(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "sweeper: archive failed",
			slog.String("auction_id", id),
			slog.String("error", err.Error()),
		)
		return false
	}
	s.archived.Add(id, struct{}{})
	return true
}
