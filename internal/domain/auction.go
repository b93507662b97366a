package domain

import (
	"maps"
	"time"

	"github.com/shopspring/decimal"
)

// Auction is a single lot offered for bidding. Money fields are decimal to keep
// increments and reserve comparisons exact.
type Auction struct {
	ID          string
	Slug        string
	Title       string
	Description string
	Attributes  map[string]string // gemstone catalog metadata (carat, cut, origin, ...)

	StartingBid  decimal.Decimal
	ReservePrice *decimal.Decimal // hidden floor, nil when unset
	BuyNowPrice  *decimal.Decimal // cleared once bidding reaches it
	BidIncrement decimal.Decimal
	CurrentBid   decimal.Decimal
	BidCount     int

	StartTime              time.Time
	EndTime                time.Time
	ExtendedEndTime        *time.Time
	AutoExtend             bool
	ExtendThresholdMinutes int
	ExtendMinutes          int
	ClosedAt               *time.Time

	Status          AuctionStatus
	IsActive        bool   // soft visibility flag, independent of Status
	HighestBidderID string // empty when there are no bids
	WinnerID        string // set only at terminal resolution

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveEndTime is the moment the auction stops accepting bids: the close
// time recorded at resolution, else the anti-snipe extension, else the
// original schedule.
func (a *Auction) EffectiveEndTime() time.Time {
	if a.ClosedAt != nil {
		return *a.ClosedAt
	}
	if a.ExtendedEndTime != nil {
		return *a.ExtendedEndTime
	}
	return a.EndTime
}

// HasBids reports whether any bid has been accepted.
func (a *Auction) HasBids() bool {
	return a.BidCount > 0 && a.HighestBidderID != ""
}

// ReserveMet reports whether the current price satisfies the reserve. An
// auction without a reserve always meets it.
func (a *Auction) ReserveMet() bool {
	if a.ReservePrice == nil {
		return true
	}
	return a.CurrentBid.GreaterThanOrEqual(*a.ReservePrice)
}

// Clone returns a deep copy so callers can mutate the result without touching
// the original snapshot.
func (a *Auction) Clone() *Auction {
	c := *a
	c.Attributes = maps.Clone(a.Attributes)
	c.ReservePrice = cloneDecimal(a.ReservePrice)
	c.BuyNowPrice = cloneDecimal(a.BuyNowPrice)
	c.ExtendedEndTime = cloneTime(a.ExtendedEndTime)
	c.ClosedAt = cloneTime(a.ClosedAt)
	return &c
}

// AuctionSnapshot is an auction as read for a compare-and-swap commit, together
// with the bid currently marked winning (nil when there are no bids).
type AuctionSnapshot struct {
	Auction    *Auction
	WinningBid *Bid
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
