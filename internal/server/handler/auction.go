package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/gemauction/internal/auction"
	"github.com/alanyoungcy/gemauction/internal/domain"
	"github.com/alanyoungcy/gemauction/internal/service"
)

// AuctionService defines the methods the auction handler requires from the
// service layer.
type AuctionService interface {
	CreateAuction(ctx context.Context, req service.CreateAuctionRequest) (*domain.Auction, error)
	GetAuction(ctx context.Context, id string) (*domain.Auction, error)
	ListAuctions(ctx context.Context, status *domain.AuctionStatus, opts domain.ListOpts) ([]domain.Auction, error)
	ListBids(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.Bid, error)
	AuditTrail(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.AuditEntry, error)
	PlaceBid(ctx context.Context, req auction.BidRequest) (auction.BidResult, error)
	BuyNow(ctx context.Context, req auction.BuyNowRequest) (auction.BuyNowResult, error)
}

// SweepRunner triggers one lifecycle sweep.
type SweepRunner interface {
	RunOnce(ctx context.Context) (auction.SweepResult, error)
}

// AuctionHandler serves auction, bid and lifecycle endpoints.
type AuctionHandler struct {
	auctions AuctionService
	sweeper  SweepRunner
	logger   *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler.
func NewAuctionHandler(auctions AuctionService, sweeper SweepRunner, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctions: auctions,
		sweeper:  sweeper,
		logger:   logger.With(slog.String("component", "auction_handler")),
	}
}

type createAuctionRequest struct {
	Slug                   string            `json:"slug"`
	Title                  string            `json:"title"`
	Description            string            `json:"description"`
	Attributes             map[string]string `json:"attributes"`
	StartingBid            decimal.Decimal   `json:"starting_bid"`
	ReservePrice           *decimal.Decimal  `json:"reserve_price"`
	BuyNowPrice            *decimal.Decimal  `json:"buy_now_price"`
	BidIncrement           decimal.Decimal   `json:"bid_increment"`
	StartTime              time.Time         `json:"start_time"`
	EndTime                time.Time         `json:"end_time"`
	AutoExtend             bool              `json:"auto_extend"`
	ExtendThresholdMinutes int               `json:"extend_threshold_minutes"`
	ExtendMinutes          int               `json:"extend_minutes"`
}

// CreateAuction stores a new auction.
// POST /api/auctions
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var body createAuctionRequest
	if err := decodeJSON(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}

	a, err := h.auctions.CreateAuction(r.Context(), service.CreateAuctionRequest{
		Slug:                   body.Slug,
		Title:                  body.Title,
		Description:            body.Description,
		Attributes:             body.Attributes,
		StartingBid:            body.StartingBid,
		ReservePrice:           body.ReservePrice,
		BuyNowPrice:            body.BuyNowPrice,
		BidIncrement:           body.BidIncrement,
		StartTime:              body.StartTime,
		EndTime:                body.EndTime,
		AutoExtend:             body.AutoExtend,
		ExtendThresholdMinutes: body.ExtendThresholdMinutes,
		ExtendMinutes:          body.ExtendMinutes,
	})
	if err != nil {
		h.fail(r, "create auction", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAuctionView(a))
}

// GetAuction returns one auction.
// GET /api/auctions/{id}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	a, err := h.auctions.GetAuction(r.Context(), pathParam(r, "id"))
	if err != nil {
		h.fail(r, "get auction", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAuctionView(a))
}

type listAuctionsResponse struct {
	Auctions []auctionView `json:"auctions"`
}

// ListAuctions returns auctions newest first, optionally filtered by status.
// GET /api/auctions?status=active&limit=50&offset=0
func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var status *domain.AuctionStatus
	if v := r.URL.Query().Get("status"); v != "" {
		st, err := domain.ParseAuctionStatus(v)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		status = &st
	}

	auctions, err := h.auctions.ListAuctions(r.Context(), status, opts)
	if err != nil {
		h.fail(r, "list auctions", err)
		writeDomainError(w, err)
		return
	}

	views := make([]auctionView, len(auctions))
	for i := range auctions {
		views[i] = newAuctionView(&auctions[i])
	}
	writeJSON(w, http.StatusOK, listAuctionsResponse{Auctions: views})
}

type listBidsResponse struct {
	Bids []bidView `json:"bids"`
}

// ListBids returns an auction's public bid history, newest first.
// GET /api/auctions/{id}/bids
func (h *AuctionHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	bids, err := h.auctions.ListBids(r.Context(), pathParam(r, "id"), opts)
	if err != nil {
		h.fail(r, "list bids", err)
		writeDomainError(w, err)
		return
	}

	views := make([]bidView, len(bids))
	for i, b := range bids {
		views[i] = newBidView(b)
	}
	writeJSON(w, http.StatusOK, listBidsResponse{Bids: views})
}

type auditTrailResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
}

// AuditTrail returns every audit entry for an auction, oldest first.
// GET /api/auctions/{id}/audit
func (h *AuctionHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entries, err := h.auctions.AuditTrail(r.Context(), pathParam(r, "id"), opts)
	if err != nil {
		h.fail(r, "audit trail", err)
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, auditTrailResponse{Entries: entries})
}

type placeBidRequest struct {
	BidderID    string           `json:"bidder_id"`
	BidderEmail string           `json:"bidder_email"`
	Amount      decimal.Decimal  `json:"amount"`
	MaxBid      *decimal.Decimal `json:"max_bid"`
}

type placeBidResponse struct {
	Accepted        bool             `json:"accepted"`
	Reason          string           `json:"reason,omitempty"`
	MinimumBid      *decimal.Decimal `json:"minimum_bid,omitempty"`
	BidID           string           `json:"bid_id,omitempty"`
	CurrentBid      *decimal.Decimal `json:"current_bid,omitempty"`
	BidCount        int              `json:"bid_count,omitempty"`
	ExtendedEndTime *time.Time       `json:"extended_end_time,omitempty"`
	IsWinning       bool             `json:"is_winning"`
}

// PlaceBid submits a bid. A business rejection is a 409 carrying the reason.
// POST /api/auctions/{id}/bids
func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var body placeBidRequest
	if err := decodeJSON(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}

	res, err := h.auctions.PlaceBid(r.Context(), auction.BidRequest{
		AuctionID:   pathParam(r, "id"),
		BidderID:    body.BidderID,
		BidderEmail: body.BidderEmail,
		Amount:      body.Amount,
		MaxBid:      body.MaxBid,
	})
	if err != nil {
		h.fail(r, "place bid", err)
		writeDomainError(w, err)
		return
	}

	if !res.Accepted {
		resp := placeBidResponse{Reason: string(res.Reason)}
		if res.Reason == domain.RejectBidTooLow {
			resp.MinimumBid = &res.MinimumBid
		}
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	writeJSON(w, http.StatusOK, placeBidResponse{
		Accepted:        true,
		BidID:           res.BidID,
		CurrentBid:      &res.CurrentBid,
		BidCount:        res.BidCount,
		ExtendedEndTime: res.ExtendedEndTime,
		IsWinning:       res.IsWinning,
	})
}

type buyNowRequest struct {
	BuyerID      string          `json:"buyer_id"`
	BuyerEmail   string          `json:"buyer_email"`
	OfferedPrice decimal.Decimal `json:"offered_price"`
}

type buyNowResponse struct {
	Sold          bool             `json:"sold"`
	Reason        string           `json:"reason,omitempty"`
	FinalPrice    *decimal.Decimal `json:"final_price,omitempty"`
	ExpectedPrice *decimal.Decimal `json:"expected_price,omitempty"`
}

// BuyNow purchases the lot outright at the current Buy Now price.
// POST /api/auctions/{id}/buy-now
func (h *AuctionHandler) BuyNow(w http.ResponseWriter, r *http.Request) {
	var body buyNowRequest
	if err := decodeJSON(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}

	res, err := h.auctions.BuyNow(r.Context(), auction.BuyNowRequest{
		AuctionID:    pathParam(r, "id"),
		BuyerID:      body.BuyerID,
		BuyerEmail:   body.BuyerEmail,
		OfferedPrice: body.OfferedPrice,
	})
	if err != nil {
		h.fail(r, "buy now", err)
		writeDomainError(w, err)
		return
	}

	if !res.Sold {
		resp := buyNowResponse{Reason: string(res.Reason)}
		if res.Reason == domain.RejectPriceMismatch {
			resp.ExpectedPrice = &res.ExpectedPrice
		}
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	writeJSON(w, http.StatusOK, buyNowResponse{Sold: true, FinalPrice: &res.FinalPrice})
}

type sweepResponse struct {
	Transitioned []auction.Transition `json:"transitioned"`
	Error        string               `json:"error,omitempty"`
}

// Sweep runs one lifecycle sweep now. A partial failure still reports the
// transitions that were committed.
// POST /api/lifecycle/sweep
func (h *AuctionHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.sweeper.RunOnce(r.Context())
	resp := sweepResponse{Transitioned: res.Transitioned}
	if resp.Transitioned == nil {
		resp.Transitioned = []auction.Transition{}
	}
	if err != nil {
		h.fail(r, "sweep", err)
		resp.Error = "sweep incomplete"
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// fail logs err at a level matching its cause.
func (h *AuctionHandler) fail(r *http.Request, op string, err error) {
	attrs := []any{slog.String("op", op), slog.String("error", err.Error())}
	switch statusFor(err) {
	case http.StatusInternalServerError:
		h.logger.ErrorContext(r.Context(), "auction_handler: request failed", attrs...)
	case http.StatusServiceUnavailable:
		h.logger.WarnContext(r.Context(), "auction_handler: request failed", attrs...)
	default:
		h.logger.DebugContext(r.Context(), "auction_handler: request refused", attrs...)
	}
}
