package auction

import (
	"testing"
	"time"

	"github.com/alanyoungcy/gemauction/internal/domain"
	"github.com/peterldowns/testy/check"
)

func TestPromote(t *testing.T) {
	a := newAuction(func(a *domain.Auction) {
		a.Status = domain.AuctionStatusScheduled
		a.StartTime = t0.Add(time.Minute)
	})

	_, ok := Promote(a, t0)
	check.False(t, ok)
	check.Equal(t, domain.AuctionStatusScheduled, a.Status)

	tr, ok := Promote(a, t0.Add(time.Minute))
	check.True(t, ok)
	check.Equal(t, Transition{AuctionID: a.ID, From: domain.AuctionStatusScheduled, To: domain.AuctionStatusActive}, tr)
	check.Equal(t, domain.AuctionStatusActive, a.Status)

	_, ok = Promote(a, t0.Add(time.Hour))
	check.False(t, ok)
}

func TestClose(t *testing.T) {
	tests := []struct {
		name       string
		mods       func(*domain.Auction)
		now        time.Time
		want       domain.AuctionStatus
		wantWinner string
		wantClosed bool
	}{
		{
			name:       "still running",
			mods:       func(a *domain.Auction) {},
			now:        t0,
			want:       domain.AuctionStatusActive,
			wantClosed: false,
		},
		{
			name: "sold without reserve",
			mods: func(a *domain.Auction) {
				a.CurrentBid, a.BidCount, a.HighestBidderID = dec("180"), 3, "alice"
			},
			now:        t0.Add(time.Hour),
			want:       domain.AuctionStatusSold,
			wantWinner: "alice",
			wantClosed: true,
		},
		{
			name: "below reserve",
			mods: func(a *domain.Auction) {
				a.ReservePrice = decPtr("500")
				a.CurrentBid, a.BidCount, a.HighestBidderID = dec("400"), 5, "alice"
			},
			now:        t0.Add(2 * time.Hour),
			want:       domain.AuctionStatusNoSale,
			wantClosed: true,
		},
		{
			name: "reserve met",
			mods: func(a *domain.Auction) {
				a.ReservePrice = decPtr("500")
				a.CurrentBid, a.BidCount, a.HighestBidderID = dec("500"), 6, "bob"
			},
			now:        t0.Add(2 * time.Hour),
			want:       domain.AuctionStatusSold,
			wantWinner: "bob",
			wantClosed: true,
		},
		{
			name:       "no bids",
			mods:       func(a *domain.Auction) {},
			now:        t0.Add(2 * time.Hour),
			want:       domain.AuctionStatusNoSale,
			wantClosed: true,
		},
		{
			name: "extended past now",
			mods: func(a *domain.Auction) {
				a.ExtendedEndTime = timePtr(t0.Add(3 * time.Hour))
			},
			now:        t0.Add(2 * time.Hour),
			want:       domain.AuctionStatusActive,
			wantClosed: false,
		},
		{
			name: "ended awaiting resolution",
			mods: func(a *domain.Auction) {
				a.Status = domain.AuctionStatusEnded
				a.CurrentBid, a.BidCount, a.HighestBidderID = dec("150"), 2, "carol"
			},
			now:        t0,
			want:       domain.AuctionStatusSold,
			wantWinner: "carol",
			wantClosed: true,
		},
		{
			name: "terminal is untouched",
			mods: func(a *domain.Auction) {
				a.Status = domain.AuctionStatusNoSale
			},
			now:        t0.Add(5 * time.Hour),
			want:       domain.AuctionStatusNoSale,
			wantClosed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAuction(tt.mods)
			_, ok := Close(a, tt.now)
			check.Equal(t, tt.wantClosed, ok)
			check.Equal(t, tt.want, a.Status)
			check.Equal(t, tt.wantWinner, a.WinnerID)
			if ok {
				check.NotNil(t, a.ClosedAt)
				check.False(t, a.ClosedAt.After(tt.now))
			}
		})
	}
}

func TestAdvance_ScheduledWindowAlreadyOver(t *testing.T) {
	a := newAuction(func(a *domain.Auction) {
		a.Status = domain.AuctionStatusScheduled
		a.StartTime = t0.Add(-2 * time.Hour)
		a.EndTime = t0.Add(-time.Hour)
	})

	ts := Advance(a, t0)
	check.Equal(t, []Transition{
		{AuctionID: a.ID, From: domain.AuctionStatusScheduled, To: domain.AuctionStatusActive},
		{AuctionID: a.ID, From: domain.AuctionStatusActive, To: domain.AuctionStatusNoSale},
	}, ts)
	check.Equal(t, 0, len(Advance(a, t0)))
}
