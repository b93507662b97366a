package auction

import (
	"github.com/alanyoungcy/gemauction/internal/domain"
	"github.com/shopspring/decimal"
)

// Resolution is the outcome of running the proxy rule for one incoming bid.
type Resolution struct {
	CurrentBid      decimal.Decimal
	HighestBidderID string
	Incoming        domain.Bid  // IsWinning is set
	CounterBid      *domain.Bid // automatic bid for the defending bidder, if any
	Mutations       []domain.BidMutation
}

// Inserted is the number of rows the resolution adds.
func (r Resolution) Inserted() int {
	if r.CounterBid != nil {
		return 2
	}
	return 1
}

// ResolveProxy applies the English-auction proxy rule. existing is the bid
// currently winning (nil for the first bid). newID names the counter-bid row
// when the defending bidder's ceiling holds.
//
// The defender keeps the lead when its ceiling is at least the challenger's;
// equal ceilings go to the earlier registration. The defender is then raised to
// min(defender ceiling, challenger ceiling + increment). Otherwise the
// challenger leads at max(amount, min(challenger ceiling, defender ceiling +
// increment)), and its row carries that price.
func ResolveProxy(a *domain.Auction, incoming domain.Bid, existing *domain.Bid, newID func() string) Resolution {
	res := Resolution{}

	if existing == nil || existing.BidderID == incoming.BidderID {
		incoming.IsWinning = true
		res.CurrentBid = incoming.Amount
		res.HighestBidderID = incoming.BidderID
		res.Incoming = incoming
		res.Mutations = append(res.Mutations, domain.InsertBid(incoming))
		if existing != nil {
			res.Mutations = append(res.Mutations, domain.ClearWinning(existing.ID))
		}
		return res
	}

	defender := existing.Ceiling()
	challenger := incoming.Ceiling()
	defenderHolds := defender.GreaterThan(challenger) ||
		(defender.Equal(challenger) && !incoming.CreatedAt.Before(existing.CreatedAt))

	if defenderHolds {
		price := decimal.Min(defender, challenger.Add(a.BidIncrement))
		counter := domain.Bid{
			ID:          newID(),
			AuctionID:   existing.AuctionID,
			BidderID:    existing.BidderID,
			BidderEmail: existing.BidderEmail,
			Amount:      price,
			MaxBid:      existing.MaxBid,
			IsAutoBid:   true,
			IsWinning:   true,
			CreatedAt:   incoming.CreatedAt,
		}
		incoming.IsWinning = false
		res.CurrentBid = price
		res.HighestBidderID = existing.BidderID
		res.Incoming = incoming
		res.CounterBid = &counter
		res.Mutations = append(res.Mutations,
			domain.InsertBid(incoming),
			domain.InsertBid(counter),
			domain.ClearWinning(existing.ID),
		)
		return res
	}

	price := decimal.Max(incoming.Amount, decimal.Min(challenger, defender.Add(a.BidIncrement)))
	if price.GreaterThan(incoming.Amount) {
		incoming.Amount = price
		incoming.IsAutoBid = true
	}
	incoming.IsWinning = true
	res.CurrentBid = price
	res.HighestBidderID = incoming.BidderID
	res.Incoming = incoming
	res.Mutations = append(res.Mutations,
		domain.InsertBid(incoming),
		domain.ClearWinning(existing.ID),
	)
	return res
}
