package auction

import (
	"testing"
	"time"

	"github.com/alanyoungcy/gemauction/internal/domain"
	"github.com/peterldowns/testy/check"
)

func TestResolveProxy_FirstBid(t *testing.T) {
	a := newAuction()
	ids := &seqIDs{}
	incoming := domain.Bid{ID: "in", AuctionID: a.ID, BidderID: "alice", Amount: dec("100"), MaxBid: decPtr("300"), CreatedAt: t0}

	res := ResolveProxy(a, incoming, nil, ids.next)

	check.Equal(t, "100", res.CurrentBid.String())
	check.Equal(t, "alice", res.HighestBidderID)
	check.True(t, res.Incoming.IsWinning)
	check.True(t, res.CounterBid == nil)
	check.Equal(t, 1, len(res.Mutations))
	check.Equal(t, 1, res.Inserted())
}

func TestResolveProxy_DefenderHolds(t *testing.T) {
	// Alice leads at $120 with a $200 ceiling; Bob bids $150 outright.
	a := newAuction(func(a *domain.Auction) {
		a.CurrentBid = dec("120")
		a.BidCount = 1
		a.HighestBidderID = "alice"
	})
	existing := &domain.Bid{ID: "alice-1", AuctionID: a.ID, BidderID: "alice", Amount: dec("120"), MaxBid: decPtr("200"), IsWinning: true, CreatedAt: t0.Add(-time.Minute)}
	incoming := domain.Bid{ID: "bob-1", AuctionID: a.ID, BidderID: "bob", Amount: dec("150"), CreatedAt: t0}

	res := ResolveProxy(a, incoming, existing, func() string { return "alice-auto" })

	check.Equal(t, "160", res.CurrentBid.String())
	check.Equal(t, "alice", res.HighestBidderID)
	check.False(t, res.Incoming.IsWinning)
	check.Equal(t, "150", res.Incoming.Amount.String())
	check.NotNil(t, res.CounterBid)
	check.Equal(t, "alice-auto", res.CounterBid.ID)
	check.Equal(t, "alice", res.CounterBid.BidderID)
	check.Equal(t, "160", res.CounterBid.Amount.String())
	check.Equal(t, "200", res.CounterBid.MaxBid.String())
	check.True(t, res.CounterBid.IsAutoBid)
	check.True(t, res.CounterBid.IsWinning)
	check.Equal(t, 2, res.Inserted())

	check.Equal(t, 3, len(res.Mutations))
	check.Equal(t, domain.BidClearWinning, res.Mutations[2].Op)
	check.Equal(t, "alice-1", res.Mutations[2].BidID)
}

func TestResolveProxy(t *testing.T) {
	tests := []struct {
		name        string
		existing    domain.Bid
		incoming    domain.Bid
		wantPrice   string
		wantLeader  string
		wantCounter bool
	}{
		{
			name:       "challenger ceiling beats defender ceiling",
			existing:   domain.Bid{BidderID: "alice", Amount: dec("120"), MaxBid: decPtr("200")},
			incoming:   domain.Bid{BidderID: "bob", Amount: dec("130"), MaxBid: decPtr("300")},
			wantPrice:  "210",
			wantLeader: "bob",
		},
		{
			name:       "challenger ceiling just above defender",
			existing:   domain.Bid{BidderID: "alice", Amount: dec("120"), MaxBid: decPtr("200")},
			incoming:   domain.Bid{BidderID: "bob", Amount: dec("130"), MaxBid: decPtr("205")},
			wantPrice:  "205",
			wantLeader: "bob",
		},
		{
			name:        "equal ceilings go to the earlier bid",
			existing:    domain.Bid{BidderID: "alice", Amount: dec("120"), MaxBid: decPtr("200")},
			incoming:    domain.Bid{BidderID: "bob", Amount: dec("150"), MaxBid: decPtr("200")},
			wantPrice:   "200",
			wantLeader:  "alice",
			wantCounter: true,
		},
		{
			name:       "direct bid above defender ceiling",
			existing:   domain.Bid{BidderID: "alice", Amount: dec("120"), MaxBid: decPtr("200")},
			incoming:   domain.Bid{BidderID: "bob", Amount: dec("250")},
			wantPrice:  "250",
			wantLeader: "bob",
		},
		{
			name:       "defender without ceiling",
			existing:   domain.Bid{BidderID: "alice", Amount: dec("120")},
			incoming:   domain.Bid{BidderID: "bob", Amount: dec("130")},
			wantPrice:  "130",
			wantLeader: "bob",
		},
		{
			name:       "leader raises own bid",
			existing:   domain.Bid{BidderID: "alice", Amount: dec("120")},
			incoming:   domain.Bid{BidderID: "alice", Amount: dec("140")},
			wantPrice:  "140",
			wantLeader: "alice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAuction(func(a *domain.Auction) {
				a.CurrentBid = tt.existing.Amount
				a.BidCount = 1
				a.HighestBidderID = tt.existing.BidderID
			})
			existing := tt.existing
			existing.ID, existing.AuctionID, existing.IsWinning, existing.CreatedAt = "old", a.ID, true, t0.Add(-time.Minute)
			incoming := tt.incoming
			incoming.ID, incoming.AuctionID, incoming.CreatedAt = "new", a.ID, t0

			res := ResolveProxy(a, incoming, &existing, func() string { return "counter" })

			check.Equal(t, tt.wantPrice, res.CurrentBid.String())
			check.Equal(t, tt.wantLeader, res.HighestBidderID)
			check.Equal(t, tt.wantCounter, res.CounterBid != nil)

			winning := 0
			for _, m := range res.Mutations {
				if m.Op == domain.BidInsert && m.Bid.IsWinning {
					winning++
					check.Equal(t, tt.wantLeader, m.Bid.BidderID)
					check.Equal(t, tt.wantPrice, m.Bid.Amount.String())
					check.True(t, m.Bid.Ceiling().GreaterThanOrEqual(m.Bid.Amount))
				}
				if m.Op == domain.BidClearWinning {
					check.Equal(t, "old", m.BidID)
				}
			}
			check.Equal(t, 1, winning)
		})
	}
}
