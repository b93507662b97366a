package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/gemauction/internal/auction"
	"github.com/alanyoungcy/gemauction/internal/domain"
)

// auctionView is the public auction shape. The reserve amount stays hidden;
// only whether one exists and whether it is met are exposed.
type auctionView struct {
	ID               string            `json:"id"`
	Slug             string            `json:"slug"`
	Title            string            `json:"title"`
	Description      string            `json:"description,omitempty"`
	Attributes       map[string]string `json:"attributes,omitempty"`
	StartingBid      decimal.Decimal   `json:"starting_bid"`
	BidIncrement     decimal.Decimal   `json:"bid_increment"`
	CurrentBid       decimal.Decimal   `json:"current_bid"`
	MinimumBid       decimal.Decimal   `json:"minimum_bid"`
	BuyNowPrice      *decimal.Decimal  `json:"buy_now_price,omitempty"`
	BidCount         int               `json:"bid_count"`
	HasReserve       bool              `json:"has_reserve"`
	ReserveMet       bool              `json:"reserve_met"`
	StartTime        time.Time         `json:"start_time"`
	EndTime          time.Time         `json:"end_time"`
	ExtendedEndTime  *time.Time        `json:"extended_end_time,omitempty"`
	EffectiveEndTime time.Time         `json:"effective_end_time"`
	AutoExtend       bool              `json:"auto_extend"`
	ClosedAt         *time.Time        `json:"closed_at,omitempty"`
	Status           string            `json:"status"`
	IsActive         bool              `json:"is_active"`
	HighestBidderID  string            `json:"highest_bidder_id,omitempty"`
	WinnerID         string            `json:"winner_id,omitempty"`
	Version          int64             `json:"version"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func newAuctionView(a *domain.Auction) auctionView {
	return auctionView{
		ID:               a.ID,
		Slug:             a.Slug,
		Title:            a.Title,
		Description:      a.Description,
		Attributes:       a.Attributes,
		StartingBid:      a.StartingBid,
		BidIncrement:     a.BidIncrement,
		CurrentBid:       a.CurrentBid,
		MinimumBid:       auction.MinimumNextBid(a),
		BuyNowPrice:      a.BuyNowPrice,
		BidCount:         a.BidCount,
		HasReserve:       a.ReservePrice != nil,
		ReserveMet:       a.ReserveMet(),
		StartTime:        a.StartTime,
		EndTime:          a.EndTime,
		ExtendedEndTime:  a.ExtendedEndTime,
		EffectiveEndTime: a.EffectiveEndTime(),
		AutoExtend:       a.AutoExtend,
		ClosedAt:         a.ClosedAt,
		Status:           string(a.Status),
		IsActive:         a.IsActive,
		HighestBidderID:  a.HighestBidderID,
		WinnerID:         a.WinnerID,
		Version:          a.Version,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

// bidView is the public bid shape: no proxy maximum, no email.
type bidView struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auction_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	IsAutoBid bool            `json:"is_auto_bid"`
	IsBuyNow  bool            `json:"is_buy_now"`
	IsWinning bool            `json:"is_winning"`
	CreatedAt time.Time       `json:"created_at"`
}

func newBidView(b domain.Bid) bidView {
	return bidView{
		ID:        b.ID,
		AuctionID: b.AuctionID,
		BidderID:  b.BidderID,
		Amount:    b.Amount,
		IsAutoBid: b.IsAutoBid,
		IsBuyNow:  b.IsBuyNow,
		IsWinning: b.IsWinning,
		CreatedAt: b.CreatedAt,
	}
}
