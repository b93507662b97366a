package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionEventType names an auction event published after a commit.
type AuctionEventType string

const (
	EventBidAccepted     AuctionEventType = "bid_accepted"
	EventAuctionExtended AuctionEventType = "auction_extended"
	EventBuyNowSold      AuctionEventType = "buy_now_sold"
	EventStatusChanged   AuctionEventType = "status_changed"
)

// AuctionEvent is the public view of a committed change. Proxy maximums never
// appear here.
type AuctionEvent struct {
	Type            AuctionEventType `json:"type"`
	AuctionID       string           `json:"auction_id"`
	Status          AuctionStatus    `json:"status"`
	CurrentBid      decimal.Decimal  `json:"current_bid"`
	BidCount        int              `json:"bid_count"`
	HighestBidderID string           `json:"highest_bidder_id,omitempty"`
	WinnerID        string           `json:"winner_id,omitempty"`
	EndTime         time.Time        `json:"end_time"`
	BidID           string           `json:"bid_id,omitempty"`
	FromStatus      AuctionStatus    `json:"from_status,omitempty"`
	ToStatus        AuctionStatus    `json:"to_status,omitempty"`
	At              time.Time        `json:"at"`
}

// NewAuctionEvent fills the common fields from a committed auction.
func NewAuctionEvent(typ AuctionEventType, a *Auction, at time.Time) AuctionEvent {
	return AuctionEvent{
		Type:            typ,
		AuctionID:       a.ID,
		Status:          a.Status,
		CurrentBid:      a.CurrentBid,
		BidCount:        a.BidCount,
		HighestBidderID: a.HighestBidderID,
		WinnerID:        a.WinnerID,
		EndTime:         a.EffectiveEndTime(),
		At:              at,
	}
}

// AuctionChannel is the SignalBus channel carrying live events for one auction.
func AuctionChannel(auctionID string) string {
	return "auction:" + auctionID
}
