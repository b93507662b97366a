package auction

import (
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/gemauction/internal/domain"
	"github.com/shopspring/decimal"
)

var t0 = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func timePtr(t time.Time) *time.Time { return &t }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newAuction is a live auction: start $100, increment $10, ending an hour
// after t0.
func newAuction(mods ...func(*domain.Auction)) *domain.Auction {
	a := &domain.Auction{
		ID:           "auc-ruby",
		Slug:         "burmese-ruby-2ct",
		Title:        "Burmese ruby, 2.01ct",
		Attributes:   map[string]string{"carat": "2.01", "origin": "Mogok"},
		StartingBid:  dec("100"),
		BidIncrement: dec("10"),
		CurrentBid:   dec("100"),
		StartTime:    t0.Add(-time.Hour),
		EndTime:      t0.Add(time.Hour),
		Status:       domain.AuctionStatusActive,
		IsActive:     true,
	}
	for _, m := range mods {
		m(a)
	}
	return a
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "bid-" + strconv.Itoa(s.n)
}
