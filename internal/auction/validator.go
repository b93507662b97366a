package auction

import (
	"time"

	"github.com/alanyoungcy/gemauction/internal/domain"
	"github.com/shopspring/decimal"
)

// Verdict is the result of validating a bid. The zero Verdict accepts.
type Verdict struct {
	Reason     domain.RejectReason
	MinimumBid decimal.Decimal
}

// OK reports whether the bid passed every check.
func (v Verdict) OK() bool { return v.Reason == domain.RejectNone }

func reject(reason domain.RejectReason) Verdict { return Verdict{Reason: reason} }

// MinimumNextBid is the lowest amount the next bid may carry: the starting bid
// while there are no bids, else the current bid plus one increment.
func MinimumNextBid(a *domain.Auction) decimal.Decimal {
	if a.BidCount == 0 {
		return a.StartingBid
	}
	return a.CurrentBid.Add(a.BidIncrement)
}

// CheckOpen runs the availability checks shared by bidding and Buy Now: the
// auction exists and is visible, its effective close time is still ahead of
// now, and the status is active.
func CheckOpen(a *domain.Auction, now time.Time) Verdict {
	if a == nil {
		return reject(domain.RejectAuctionNotFound)
	}
	if !a.IsActive {
		return reject(domain.RejectAuctionInactive)
	}
	if !now.Before(a.EffectiveEndTime()) {
		return reject(domain.RejectAuctionClosed)
	}
	switch a.Status {
	case domain.AuctionStatusActive:
		return Verdict{}
	case domain.AuctionStatusScheduled:
		return reject(domain.RejectAuctionInactive)
	case domain.AuctionStatusEnded, domain.AuctionStatusSold, domain.AuctionStatusNoSale:
		return reject(domain.RejectAuctionClosed)
	}
	panic("auction: unknown status " + string(a.Status))
}

// Validate checks a proposed bid against auction state. winning is the bid
// currently marked winning, nil when there are none. It has no side effects.
func Validate(a *domain.Auction, req BidRequest, winning *domain.Bid, now time.Time) Verdict {
	if v := CheckOpen(a, now); !v.OK() {
		return v
	}

	minimum := MinimumNextBid(a)
	if req.Amount.LessThan(minimum) {
		return Verdict{Reason: domain.RejectBidTooLow, MinimumBid: minimum}
	}
	if req.MaxBid != nil && req.MaxBid.LessThan(req.Amount) {
		return reject(domain.RejectMaxBidBelowAmount)
	}
	if winning != nil && winning.BidderID == req.BidderID &&
		winning.Ceiling().GreaterThan(a.CurrentBid) {
		return reject(domain.RejectSelfOutbid)
	}
	return Verdict{}
}
