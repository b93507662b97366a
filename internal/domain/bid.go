package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bid is an append-only record of one bidding action. Only IsWinning changes
// after the row is written.
type Bid struct {
	ID          string
	AuctionID   string
	BidderID    string
	BidderEmail string
	Amount      decimal.Decimal
	MaxBid      *decimal.Decimal // private proxy ceiling
	IsAutoBid   bool             // amount was raised by the proxy resolver
	IsBuyNow    bool             // row records an instant purchase
	IsWinning   bool
	CreatedAt   time.Time
}

// Ceiling is the most this bid will pay: the proxy maximum when set, else the
// visible amount.
func (b *Bid) Ceiling() decimal.Decimal {
	if b.MaxBid != nil {
		return *b.MaxBid
	}
	return b.Amount
}

// Public returns a copy safe to show other bidders.
func (b Bid) Public() Bid {
	b.MaxBid = nil
	return b
}

// BidOp identifies the kind of bid row change carried by a commit.
type BidOp string

const (
	BidInsert       BidOp = "insert"
	BidClearWinning BidOp = "clear_winning"
)

// BidMutation is one bid row change applied in the same atomic commit as the
// auction update. Insert uses Bid; ClearWinning uses BidID.
type BidMutation struct {
	Op    BidOp
	Bid   Bid
	BidID string
}

// InsertBid builds an insert mutation.
func InsertBid(b Bid) BidMutation {
	return BidMutation{Op: BidInsert, Bid: b}
}

// ClearWinning builds a mutation that unsets IsWinning on an existing row.
func ClearWinning(bidID string) BidMutation {
	return BidMutation{Op: BidClearWinning, BidID: bidID}
}
