package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrVersionConflict   = errors.New("version conflict")
	ErrContention        = errors.New("auction contended, try again")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrLockHeld          = errors.New("lock already held")
	ErrPublishFailed     = errors.New("publish failed")
)

// RejectReason is a business rule rejection returned to the bidder verbatim.
// Rejections are outcomes, not failures.
type RejectReason string

const (
	RejectNone              RejectReason = ""
	RejectAuctionNotFound   RejectReason = "AuctionNotFound"
	RejectAuctionInactive   RejectReason = "AuctionInactive"
	RejectAuctionClosed     RejectReason = "AuctionClosed"
	RejectBidTooLow         RejectReason = "BidTooLow"
	RejectMaxBidBelowAmount RejectReason = "MaxBidBelowAmount"
	RejectSelfOutbid        RejectReason = "SelfOutbid"
	RejectPriceMismatch     RejectReason = "PriceMismatch"
)
