package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/gemauction/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store, id string, status domain.AuctionStatus) *domain.Auction {
	t.Helper()
	a := &domain.Auction{
		ID:           id,
		Slug:         "slug-" + id,
		StartingBid:  decimal.NewFromInt(100),
		BidIncrement: decimal.NewFromInt(10),
		StartTime:    t0.Add(-time.Hour),
		EndTime:      t0.Add(time.Hour),
		Status:       status,
		CreatedAt:    t0,
	}
	assert.NoError(t, s.Create(context.Background(), a))
	return a
}

func TestCreate(t *testing.T) {
	s := New()
	a := seed(t, s, "a1", domain.AuctionStatusActive)
	check.Equal(t, int64(1), a.Version)

	err := s.Create(context.Background(), &domain.Auction{ID: "a1"})
	check.True(t, errors.Is(err, domain.ErrAlreadyExists))

	err = s.Create(context.Background(), &domain.Auction{ID: "a2", Slug: "slug-a1"})
	check.True(t, errors.Is(err, domain.ErrAlreadyExists))

	_, err = s.GetByID(context.Background(), "missing")
	check.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestGetByIDReturnsCopy(t *testing.T) {
	s := New()
	seed(t, s, "a1", domain.AuctionStatusActive)

	got, err := s.GetByID(context.Background(), "a1")
	assert.NoError(t, err)
	got.Title = "changed"

	again, err := s.GetByID(context.Background(), "a1")
	assert.NoError(t, err)
	check.Equal(t, "", again.Title)
}

func TestCommitCAS(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := seed(t, s, "a1", domain.AuctionStatusActive)

	next := a.Clone()
	next.CurrentBid = decimal.NewFromInt(100)
	next.BidCount = 1
	next.HighestBidderID = "alice"
	first := domain.Bid{ID: "b1", AuctionID: "a1", BidderID: "alice", Amount: next.CurrentBid, IsWinning: true, CreatedAt: t0}
	assert.NoError(t, s.CommitCAS(ctx, 1, next, []domain.BidMutation{domain.InsertBid(first)}))

	snap, err := s.ReadWithVersion(ctx, "a1")
	assert.NoError(t, err)
	check.Equal(t, int64(2), snap.Auction.Version)
	assert.NotNil(t, snap.WinningBid)
	check.Equal(t, "b1", snap.WinningBid.ID)

	// A stale writer loses and changes nothing.
	stale := a.Clone()
	stale.HighestBidderID = "mallory"
	err = s.CommitCAS(ctx, 1, stale, nil)
	check.True(t, errors.Is(err, domain.ErrVersionConflict))

	next = snap.Auction.Clone()
	next.CurrentBid = decimal.NewFromInt(110)
	next.BidCount = 2
	next.HighestBidderID = "bob"
	second := domain.Bid{ID: "b2", AuctionID: "a1", BidderID: "bob", Amount: next.CurrentBid, IsWinning: true, CreatedAt: t0.Add(time.Second)}
	assert.NoError(t, s.CommitCAS(ctx, 2, next, []domain.BidMutation{
		domain.ClearWinning("b1"),
		domain.InsertBid(second),
	}))

	bids, err := s.ListByAuction(ctx, "a1", domain.ListOpts{})
	assert.NoError(t, err)
	assert.Equal(t, 2, len(bids))
	check.Equal(t, "b2", bids[0].ID)
	check.True(t, bids[0].IsWinning)
	check.False(t, bids[1].IsWinning)
}

func TestCommitCASRejectsBadMutationAtomically(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := seed(t, s, "a1", domain.AuctionStatusActive)

	next := a.Clone()
	next.BidCount = 1
	err := s.CommitCAS(ctx, 1, next, []domain.BidMutation{
		domain.InsertBid(domain.Bid{ID: "b1", AuctionID: "a1"}),
		domain.ClearWinning("nope"),
	})
	check.True(t, errors.Is(err, domain.ErrNotFound))

	got, err := s.GetByID(ctx, "a1")
	assert.NoError(t, err)
	check.Equal(t, int64(1), got.Version)
	check.Equal(t, 0, got.BidCount)
	bids, err := s.ListByAuction(ctx, "a1", domain.ListOpts{})
	assert.NoError(t, err)
	check.Equal(t, 0, len(bids))

	err = s.CommitCAS(ctx, 1, next, []domain.BidMutation{
		domain.InsertBid(domain.Bid{ID: "b1", AuctionID: "other"}),
	})
	check.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestInjectFault(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "a1", domain.AuctionStatusActive)
	boom := errors.New("boom")
	s.InjectFault(OpRead, 2, boom)

	for range 2 {
		_, err := s.ReadWithVersion(ctx, "a1")
		check.True(t, errors.Is(err, boom))
	}
	_, err := s.ReadWithVersion(ctx, "a1")
	check.NoError(t, err)
}

func TestCommitLostStillApplies(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := seed(t, s, "a1", domain.AuctionStatusActive)
	lost := errors.New("reset by peer")
	s.InjectFault(OpCommitLost, 1, lost)

	next := a.Clone()
	next.BidCount = 1
	bid := domain.Bid{ID: "b1", AuctionID: "a1", BidderID: "alice", Amount: decimal.NewFromInt(100), IsWinning: true}
	err := s.CommitCAS(ctx, 1, next, []domain.BidMutation{domain.InsertBid(bid)})
	check.True(t, errors.Is(err, lost))

	got, err := s.GetByID(ctx, "a1")
	assert.NoError(t, err)
	check.Equal(t, int64(2), got.Version)

	ok, err := s.HasBid(ctx, "a1", "b1")
	assert.NoError(t, err)
	check.True(t, ok)
	ok, err = s.HasBid(ctx, "a1", "b2")
	assert.NoError(t, err)
	check.False(t, ok)
	ok, err = s.HasBid(ctx, "other", "b1")
	assert.NoError(t, err)
	check.False(t, ok)
}

func TestListClosedSince(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "live", domain.AuctionStatusActive)
	closed := func(id string, status domain.AuctionStatus, at time.Time) {
		assert.NoError(t, s.Create(ctx, &domain.Auction{ID: id, Slug: id, Status: status, ClosedAt: &at}))
	}
	closed("old", domain.AuctionStatusSold, t0.Add(-48*time.Hour))
	closed("late", domain.AuctionStatusNoSale, t0.Add(2*time.Minute))
	closed("early", domain.AuctionStatusSold, t0.Add(time.Minute))
	closed("edge", domain.AuctionStatusSold, t0)
	assert.NoError(t, s.Create(ctx, &domain.Auction{ID: "open", Slug: "open", Status: domain.AuctionStatusSold}))

	got, err := s.ListClosedSince(ctx, t0, 10)
	assert.NoError(t, err)
	ids := make([]string, len(got))
	for i, a := range got {
		ids[i] = a.ID
	}
	check.Equal(t, []string{"edge", "early", "late"}, ids)

	got, err = s.ListClosedSince(ctx, t0, 2)
	assert.NoError(t, err)
	check.Equal(t, 2, len(got))
}

func TestListPastDeadline(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s, "live", domain.AuctionStatusActive)

	pending := &domain.Auction{ID: "pending", Slug: "pending", Status: domain.AuctionStatusScheduled,
		StartTime: t0.Add(-time.Minute), EndTime: t0.Add(time.Hour)}
	assert.NoError(t, s.Create(ctx, pending))

	over := &domain.Auction{ID: "over", Slug: "over", Status: domain.AuctionStatusActive,
		StartTime: t0.Add(-2 * time.Hour), EndTime: t0.Add(-10 * time.Minute)}
	assert.NoError(t, s.Create(ctx, over))

	ext := t0.Add(time.Minute)
	extended := &domain.Auction{ID: "extended", Slug: "extended", Status: domain.AuctionStatusActive,
		StartTime: t0.Add(-2 * time.Hour), EndTime: t0.Add(-time.Minute), ExtendedEndTime: &ext}
	assert.NoError(t, s.Create(ctx, extended))

	resting := &domain.Auction{ID: "resting", Slug: "resting", Status: domain.AuctionStatusEnded,
		StartTime: t0.Add(-2 * time.Hour), EndTime: t0.Add(time.Hour)}
	assert.NoError(t, s.Create(ctx, resting))

	got, err := s.ListPastDeadline(ctx, t0, []domain.AuctionStatus{
		domain.AuctionStatusScheduled,
		domain.AuctionStatusActive,
		domain.AuctionStatusEnded,
	})
	assert.NoError(t, err)
	ids := make([]string, len(got))
	for i, a := range got {
		ids[i] = a.ID
	}
	check.Equal(t, []string{"over", "pending", "resting"}, ids)
}

func TestListFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i, id := range []string{"a", "b", "c"} {
		a := &domain.Auction{ID: id, Slug: id, Status: domain.AuctionStatusActive, CreatedAt: t0.Add(time.Duration(i) * time.Minute)}
		assert.NoError(t, s.Create(ctx, a))
	}
	assert.NoError(t, s.Create(ctx, &domain.Auction{ID: "d", Slug: "d", Status: domain.AuctionStatusSold, CreatedAt: t0}))

	active := domain.AuctionStatusActive
	got, err := s.List(ctx, &active, domain.ListOpts{Limit: 2})
	assert.NoError(t, err)
	assert.Equal(t, 2, len(got))
	check.Equal(t, "c", got[0].ID)
	check.Equal(t, "b", got[1].ID)

	got, err = s.List(ctx, nil, domain.ListOpts{Offset: 10})
	assert.NoError(t, err)
	check.Equal(t, 0, len(got))

	since := t0.Add(time.Minute)
	got, err = s.List(ctx, nil, domain.ListOpts{Since: &since})
	assert.NoError(t, err)
	check.Equal(t, 2, len(got))
}

func TestAuditLog(t *testing.T) {
	ctx := context.Background()
	l := NewAuditLog()
	clock := t0
	l.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	assert.NoError(t, l.Log(ctx, "auction.created", map[string]any{"auction_id": "a1"}))
	assert.NoError(t, l.Log(ctx, "auction.created", map[string]any{"auction_id": "a2"}))
	assert.NoError(t, l.Log(ctx, "bid.accepted", map[string]any{"auction_id": "a1", "amount": "100"}))
	assert.NoError(t, l.Log(ctx, "sweep.run", nil))

	all, err := l.List(ctx, domain.ListOpts{})
	assert.NoError(t, err)
	assert.Equal(t, 4, len(all))
	check.Equal(t, "sweep.run", all[0].Event)
	check.Equal(t, "", all[0].AuctionID)

	trail, err := l.ListByAuction(ctx, "a1", domain.ListOpts{})
	assert.NoError(t, err)
	assert.Equal(t, 2, len(trail))
	check.Equal(t, "auction.created", trail[0].Event)
	check.Equal(t, "bid.accepted", trail[1].Event)
	check.Equal(t, "100", trail[1].Detail["amount"])

	trail, err = l.ListByAuction(ctx, "a1", domain.ListOpts{Limit: 1, Offset: 1})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(trail))
	check.Equal(t, int64(3), trail[0].ID)
}
