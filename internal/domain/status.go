package domain

import "fmt"

// AuctionStatus represents the lifecycle state of an auction.
type AuctionStatus string

const (
	AuctionStatusScheduled AuctionStatus = "scheduled"
	AuctionStatusActive    AuctionStatus = "active"
	AuctionStatusEnded     AuctionStatus = "ended"
	AuctionStatusSold      AuctionStatus = "sold"
	AuctionStatusNoSale    AuctionStatus = "no_sale"
)

// AllAuctionStatuses lists every status in lifecycle order.
var AllAuctionStatuses = []AuctionStatus{
	AuctionStatusScheduled,
	AuctionStatusActive,
	AuctionStatusEnded,
	AuctionStatusSold,
	AuctionStatusNoSale,
}

// ParseAuctionStatus converts a stored or user supplied string into an
// AuctionStatus. Unknown values are rejected so every AuctionStatus in
// circulation is one of the declared variants.
func ParseAuctionStatus(s string) (AuctionStatus, error) {
	switch st := AuctionStatus(s); st {
	case AuctionStatusScheduled, AuctionStatusActive, AuctionStatusEnded,
		AuctionStatusSold, AuctionStatusNoSale:
		return st, nil
	}
	return "", fmt.Errorf("domain: parse auction status %q: %w", s, ErrInvalidInput)
}

// Terminal reports whether no further transition is possible. An ended
// auction is closed for bidding but still awaits sold/no_sale resolution.
func (s AuctionStatus) Terminal() bool {
	switch s {
	case AuctionStatusSold, AuctionStatusNoSale:
		return true
	case AuctionStatusScheduled, AuctionStatusActive, AuctionStatusEnded:
		return false
	}
	panic(fmt.Sprintf("domain: unknown auction status %q", string(s)))
}

// Closed reports whether the auction no longer accepts bids.
func (s AuctionStatus) Closed() bool {
	switch s {
	case AuctionStatusEnded, AuctionStatusSold, AuctionStatusNoSale:
		return true
	case AuctionStatusScheduled, AuctionStatusActive:
		return false
	}
	panic(fmt.Sprintf("domain: unknown auction status %q", string(s)))
}

// CanTransitionTo reports whether moving from s to next is a legal edge of the
// lifecycle: scheduled -> active -> {ended, sold, no_sale}, ended -> {sold, no_sale}.
func (s AuctionStatus) CanTransitionTo(next AuctionStatus) bool {
	switch s {
	case AuctionStatusScheduled:
		return next == AuctionStatusActive
	case AuctionStatusActive:
		return next == AuctionStatusEnded || next == AuctionStatusSold || next == AuctionStatusNoSale
	case AuctionStatusEnded:
		return next == AuctionStatusSold || next == AuctionStatusNoSale
	case AuctionStatusSold, AuctionStatusNoSale:
		return false
	}
	panic(fmt.Sprintf("domain: unknown auction status %q", string(s)))
}

// Transition returns an ErrIllegalTransition error unless from -> to is a
// legal lifecycle edge.
func Transition(from, to AuctionStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("domain: %s -> %s: %w", from, to, ErrIllegalTransition)
	}
	return nil
}
