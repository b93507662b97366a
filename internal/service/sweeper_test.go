package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/alanyoungcy/gemauction/internal/auction"
	"github.com/alanyoungcy/gemauction/internal/domain"
)

type fakeLocks struct {
	mu       sync.Mutex
	held     bool
	err      error
	acquired []string
	released int
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.held = true
	l.acquired = append(l.acquired, key)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held = false
		l.released++
	}, nil
}

type fakeArchiver struct {
	mu       sync.Mutex
	ids      []string
	fail     int // upcoming uploads that fail
	attempts int
}

func (a *fakeArchiver) ArchiveAuction(_ context.Context, id string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts++
	if a.fail > 0 {
		a.fail--
		return "", errors.New("s3: 503 slow down")
	}
	a.ids = append(a.ids, id)
	return "archive/" + id, nil
}

type stubSweep struct {
	calls  int
	result auction.SweepResult
	err    error
	closed []domain.Auction
	since  []time.Time
}

func (s *stubSweep) Sweep(context.Context, time.Time) (auction.SweepResult, error) {
	s.calls++
	return s.result, s.err
}

func (s *stubSweep) ClosedSince(_ context.Context, since time.Time, _ int) ([]domain.Auction, error) {
	s.since = append(s.since, since)
	var out []domain.Auction
	for _, a := range s.closed {
		if !a.ClosedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func TestSweeperArchivesTerminalAuctions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sold := f.createRuby(t)
	_, err := f.svc.PlaceBid(ctx, auction.BidRequest{AuctionID: sold.ID, BidderID: "alice", Amount: dec("100")})
	assert.NoError(t, err)
	later := f.createRuby(t, func(r *CreateAuctionRequest) {
		r.Slug = "padparadscha"
		r.StartTime = t0.Add(30 * time.Minute)
		r.EndTime = t0.Add(3 * time.Hour)
	})

	locks := &fakeLocks{}
	arch := &fakeArchiver{}
	sw := NewSweeper(f.svc, locks, arch, SweeperConfig{
		Clock: func() time.Time { return t0.Add(time.Hour) },
	}, discardLogger())

	res, err := sw.RunOnce(ctx)
	assert.NoError(t, err)
	check.Equal(t, 2, len(res.Transitioned))
	check.Equal(t, domain.AuctionStatusActive, res.Auctions[later.ID].Status)
	check.Equal(t, []string{sold.ID}, arch.ids)
	check.Equal(t, []string{SweepLockKey}, locks.acquired)
	check.Equal(t, 1, locks.released)
}

func TestSweeperSkipsWhenLockHeld(t *testing.T) {
	stub := &stubSweep{}
	locks := &fakeLocks{held: true}
	sw := NewSweeper(stub, locks, nil, SweeperConfig{}, discardLogger())

	res, err := sw.RunOnce(context.Background())
	assert.NoError(t, err)
	check.Equal(t, 0, len(res.Transitioned))
	check.Equal(t, 0, stub.calls)
}

func TestSweeperLockError(t *testing.T) {
	stub := &stubSweep{}
	boom := errors.New("redis: i/o timeout")
	sw := NewSweeper(stub, &fakeLocks{err: boom}, nil, SweeperConfig{}, discardLogger())

	_, err := sw.RunOnce(context.Background())
	check.True(t, errors.Is(err, boom))
	check.Equal(t, 0, stub.calls)
}

func TestSweeperArchivesPartialResultOnError(t *testing.T) {
	closed := &domain.Auction{ID: "a1", Status: domain.AuctionStatusNoSale}
	stub := &stubSweep{
		result: auction.SweepResult{
			Transitioned: []auction.Transition{{AuctionID: "a1", From: domain.AuctionStatusActive, To: domain.AuctionStatusNoSale}},
			Auctions:     map[string]*domain.Auction{"a1": closed},
		},
		err: domain.ErrStoreUnavailable,
	}
	arch := &fakeArchiver{}
	sw := NewSweeper(stub, nil, arch, SweeperConfig{}, discardLogger())

	res, err := sw.RunOnce(context.Background())
	check.True(t, errors.Is(err, domain.ErrStoreUnavailable))
	check.Equal(t, 1, len(res.Transitioned))
	check.Equal(t, []string{"a1"}, arch.ids)
}

func TestSweeperArchivesBuyNowSales(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ruby := f.createRuby(t)

	quote, err := f.svc.BuyNow(ctx, auction.BuyNowRequest{AuctionID: ruby.ID, BuyerID: "carol", OfferedPrice: dec("1")})
	assert.NoError(t, err)
	assert.False(t, quote.Sold)
	res, err := f.svc.BuyNow(ctx, auction.BuyNowRequest{AuctionID: ruby.ID, BuyerID: "carol", OfferedPrice: quote.ExpectedPrice})
	assert.NoError(t, err)
	assert.True(t, res.Sold)

	arch := &fakeArchiver{}
	sw := NewSweeper(f.svc, nil, arch, SweeperConfig{
		Clock: func() time.Time { return f.now.Add(time.Minute) },
	}, discardLogger())

	for range 2 {
		swept, err := sw.RunOnce(ctx)
		assert.NoError(t, err)
		check.Equal(t, 0, len(swept.Transitioned))
	}
	check.Equal(t, []string{ruby.ID}, arch.ids)
	check.Equal(t, 1, arch.attempts)
}

func TestSweeperRetriesFailedArchive(t *testing.T) {
	at := t0.Add(-time.Hour)
	later := t0.Add(-time.Minute)
	stub := &stubSweep{closed: []domain.Auction{
		{ID: "a1", Status: domain.AuctionStatusSold, ClosedAt: &at},
		{ID: "a2", Status: domain.AuctionStatusNoSale, ClosedAt: &later},
	}}
	arch := &fakeArchiver{fail: 1}
	sw := NewSweeper(stub, nil, arch, SweeperConfig{Clock: func() time.Time { return t0 }}, discardLogger())

	_, err := sw.RunOnce(context.Background())
	assert.NoError(t, err)
	check.Equal(t, []string{"a2"}, arch.ids)

	_, err = sw.RunOnce(context.Background())
	assert.NoError(t, err)
	check.Equal(t, []string{"a2", "a1"}, arch.ids)

	// Both are archived; later sweeps scan from the newest close only.
	_, err = sw.RunOnce(context.Background())
	assert.NoError(t, err)
	check.Equal(t, 3, arch.attempts)
	assert.Equal(t, 3, len(stub.since))
	check.True(t, stub.since[0].Equal(t0.Add(-24*time.Hour)))
	check.True(t, stub.since[1].Equal(at))
	check.True(t, stub.since[2].Equal(later))
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	stub := &stubSweep{}
	sw := NewSweeper(stub, nil, nil, SweeperConfig{Interval: time.Millisecond}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		check.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
