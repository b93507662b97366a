package auction

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/gemauction/internal/domain"
	"github.com/shopspring/decimal"
)

// BidRequest is an inbound bid.
type BidRequest struct {
	AuctionID   string
	BidderID    string
	BidderEmail string
	Amount      decimal.Decimal
	MaxBid      *decimal.Decimal
}

// Check rejects malformed requests before any state is read.
func (r BidRequest) Check() error {
	var problems []string
	if strings.TrimSpace(r.AuctionID) == "" {
		problems = append(problems, "auction id is required")
	}
	if strings.TrimSpace(r.BidderID) == "" {
		problems = append(problems, "bidder id is required")
	}
	if !r.Amount.IsPositive() {
		problems = append(problems, "amount must be positive")
	}
	if r.MaxBid != nil && !r.MaxBid.IsPositive() {
		problems = append(problems, "max bid must be positive")
	}
	if !domain.IsCents(r.Amount) || (r.MaxBid != nil && !domain.IsCents(*r.MaxBid)) {
		problems = append(problems, "amounts are limited to whole cents")
	}
	return inputError(problems)
}

// BidResult is the outcome of PlaceBid. When Accepted is false, Reason says why
// and MinimumBid carries the lowest acceptable amount for BidTooLow.
type BidResult struct {
	Accepted        bool
	Reason          domain.RejectReason
	MinimumBid      decimal.Decimal
	BidID           string
	CurrentBid      decimal.Decimal
	BidCount        int
	ExtendedEndTime *time.Time
	IsWinning       bool

	// Committed state, for publishing. Nil on rejection.
	Auction  *domain.Auction
	Extended bool
}

// BuyNowRequest is an inbound instant purchase.
type BuyNowRequest struct {
	AuctionID    string
	BuyerID      string
	BuyerEmail   string
	OfferedPrice decimal.Decimal
}

// Check rejects malformed requests before any state is read.
func (r BuyNowRequest) Check() error {
	var problems []string
	if strings.TrimSpace(r.AuctionID) == "" {
		problems = append(problems, "auction id is required")
	}
	if strings.TrimSpace(r.BuyerID) == "" {
		problems = append(problems, "buyer id is required")
	}
	if !r.OfferedPrice.IsPositive() {
		problems = append(problems, "offered price must be positive")
	}
	return inputError(problems)
}

// BuyNowResult is the outcome of BuyNow. ExpectedPrice is filled on
// PriceMismatch so the caller can show the valid price.
type BuyNowResult struct {
	Sold          bool
	Reason        domain.RejectReason
	FinalPrice    decimal.Decimal
	ExpectedPrice decimal.Decimal

	Auction *domain.Auction
}

// Transition records one status change applied by a sweep.
type Transition struct {
	AuctionID string               `json:"auction_id"`
	From      domain.AuctionStatus `json:"from_status"`
	To        domain.AuctionStatus `json:"to_status"`
}

// SweepResult lists every transition a sweep committed.
type SweepResult struct {
	Transitioned []Transition `json:"transitioned"`

	// Auctions holds the committed state of each auction that changed, keyed by
	// id. Terminal ones are ready for archival.
	Auctions map[string]*domain.Auction `json:"-"`
}

func inputError(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("auction: %s: %w", strings.Join(problems, "; "), domain.ErrInvalidInput)
}
