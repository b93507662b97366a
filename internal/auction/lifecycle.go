package auction

import (
	"time"

	"github.com/alanyoungcy/gemauction/internal/domain"
)

// SweepStatuses are the statuses a lifecycle sweep looks at.
var SweepStatuses = []domain.AuctionStatus{
	domain.AuctionStatusScheduled,
	domain.AuctionStatusActive,
	domain.AuctionStatusEnded,
}

// Promote moves a scheduled auction to active once now has reached its start
// time.
func Promote(a *domain.Auction, now time.Time) (Transition, bool) {
	if a.Status != domain.AuctionStatusScheduled || now.Before(a.StartTime) {
		return Transition{}, false
	}
	return apply(a, domain.AuctionStatusActive), true
}

// CloseOutcome is the terminal status for an auction whose bidding is over:
// sold when a highest bid exists and the reserve is met, no_sale otherwise
// (below reserve or no bids at all).
func CloseOutcome(a *domain.Auction) domain.AuctionStatus {
	if a.HasBids() && a.ReserveMet() {
		return domain.AuctionStatusSold
	}
	return domain.AuctionStatusNoSale
}

// Close resolves an active auction whose effective end time is not after now,
// or an ended auction still awaiting resolution. The winner is assigned only
// for a sale.
func Close(a *domain.Auction, now time.Time) (Transition, bool) {
	switch a.Status {
	case domain.AuctionStatusActive:
		if now.Before(a.EffectiveEndTime()) {
			return Transition{}, false
		}
	case domain.AuctionStatusEnded:
	case domain.AuctionStatusScheduled, domain.AuctionStatusSold, domain.AuctionStatusNoSale:
		return Transition{}, false
	default:
		panic("auction: unknown status " + string(a.Status))
	}

	closedAt := a.EffectiveEndTime()
	if now.Before(closedAt) {
		closedAt = now
	}
	outcome := CloseOutcome(a)
	t := apply(a, outcome)
	a.ClosedAt = &closedAt
	if outcome == domain.AuctionStatusSold {
		a.WinnerID = a.HighestBidderID
	} else {
		a.WinnerID = ""
	}
	return t, true
}

// Advance applies every transition due at now, in lifecycle order. A
// scheduled auction whose whole window has already passed is promoted and
// closed in one step.
func Advance(a *domain.Auction, now time.Time) []Transition {
	var out []Transition
	if t, ok := Promote(a, now); ok {
		out = append(out, t)
	}
	if t, ok := Close(a, now); ok {
		out = append(out, t)
	}
	return out
}

func apply(a *domain.Auction, to domain.AuctionStatus) Transition {
	if err := domain.Transition(a.Status, to); err != nil {
		panic(err)
	}
	t := Transition{AuctionID: a.ID, From: a.Status, To: to}
	a.Status = to
	return t
}
