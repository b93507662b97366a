package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/gemauction/internal/auction"
	"github.com/alanyoungcy/gemauction/internal/domain"
)

// Engine is the subset of auction.Engine the service drives.
type Engine interface {
	PlaceBid(ctx context.Context, req auction.BidRequest) (auction.BidResult, error)
	BuyNow(ctx context.Context, req auction.BuyNowRequest) (auction.BuyNowResult, error)
	SweepLifecycle(ctx context.Context, now time.Time) (auction.SweepResult, error)
}

// AuctionConfig tunes the service. Zero values disable the bid rate limit and
// use a 1024-entry snapshot cache.
type AuctionConfig struct {
	BidRateLimit  int
	BidRateWindow time.Duration
	CacheSize     int
	Clock         func() time.Time
}

const defaultCacheSize = 1024

// AuctionService sits between transports and the engine. After every commit
// it fans the event out on the signal bus and the durable stream and writes
// an audit entry. Those side effects are best
// effort; a failure is logged and the committed result still returns.
type AuctionService struct {
	engine   Engine
	auctions domain.AuctionStore
	bids     domain.BidStore
	limiter  domain.RateLimiter
	bus      domain.SignalBus
	stream   domain.EventStream
	audit    domain.AuditStore
	cache    *lru.Cache
	cfg      AuctionConfig
	logger   *slog.Logger
}

// NewAuctionService creates an AuctionService. limiter, bus and stream may be
// nil when the deployment runs without Redis or NATS.
func NewAuctionService(
	engine Engine,
	auctions domain.AuctionStore,
	bids domain.BidStore,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	stream domain.EventStream,
	audit domain.AuditStore,
	cfg AuctionConfig,
	logger *slog.Logger,
) (*AuctionService, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("auction_service: snapshot cache: %w", err)
	}
	return &AuctionService{
		engine:   engine,
		auctions: auctions,
		bids:     bids,
		limiter:  limiter,
		bus:      bus,
		stream:   stream,
		audit:    audit,
		cache:    cache,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "auction_service")),
	}, nil
}

// PlaceBid applies the per-bidder rate limit and hands the bid to the engine.
// A rate-limited bid returns domain.ErrRateLimited. A limiter outage lets the
// bid through.
func (s *AuctionService) PlaceBid(ctx context.Context, req auction.BidRequest) (auction.BidResult, error) {
	if err := s.allowBid(ctx, req.BidderID); err != nil {
		return auction.BidResult{}, err
	}

	res, err := s.engine.PlaceBid(ctx, req)
	if err != nil {
		return auction.BidResult{}, fmt.Errorf("auction_service: place bid on %s: %w", req.AuctionID, err)
	}
	if !res.Accepted {
		s.logger.DebugContext(ctx, "auction_service: bid rejected",
			slog.String("auction_id", req.AuctionID),
			slog.String("reason", string(res.Reason)),
		)
		return res, nil
	}

	now := s.cfg.Clock()
	s.remember(res.Auction)

	ev := domain.NewAuctionEvent(domain.EventBidAccepted, res.Auction, now)
	ev.BidID = res.BidID
	s.publish(ctx, ev)
	if res.Extended {
		s.publish(ctx, domain.NewAuctionEvent(domain.EventAuctionExtended, res.Auction, now))
	}

	s.auditLog(ctx, "bid.accepted", map[string]any{
		"auction_id":  req.AuctionID,
		"bid_id":      res.BidID,
		"bidder_id":   req.BidderID,
		"amount":      req.Amount.String(),
		"current_bid": res.CurrentBid.String(),
		"bid_count":   res.BidCount,
		"winning":     res.IsWinning,
		"extended":    res.Extended,
	})
	return res, nil
}

// BuyNow hands an instant purchase to the engine and publishes the sale.
func (s *AuctionService) BuyNow(ctx context.Context, req auction.BuyNowRequest) (auction.BuyNowResult, error) {
	if err := s.allowBid(ctx, req.BuyerID); err != nil {
		return auction.BuyNowResult{}, err
	}

	res, err := s.engine.BuyNow(ctx, req)
	if err != nil {
		return auction.BuyNowResult{}, fmt.Errorf("auction_service: buy now on %s: %w", req.AuctionID, err)
	}
	if !res.Sold {
		s.logger.DebugContext(ctx, "auction_service: buy now rejected",
			slog.String("auction_id", req.AuctionID),
			slog.String("reason", string(res.Reason)),
		)
		return res, nil
	}

	now := s.cfg.Clock()
	s.remember(res.Auction)
	s.publish(ctx, domain.NewAuctionEvent(domain.EventBuyNowSold, res.Auction, now))

	s.auditLog(ctx, "buy_now.sold", map[string]any{
		"auction_id":  req.AuctionID,
		"buyer_id":    req.BuyerID,
		"final_price": res.FinalPrice.String(),
	})
	return res, nil
}

// Sweep runs one lifecycle sweep and publishes each status change. The
// partial result is returned together with the first per-auction error.
func (s *AuctionService) Sweep(ctx context.Context, now time.Time) (auction.SweepResult, error) {
	res, err := s.engine.SweepLifecycle(ctx, now)

	for _, t := range res.Transitioned {
		a, ok := res.Auctions[t.AuctionID]
		if !ok {
			continue
		}
		s.remember(a)

		ev := domain.NewAuctionEvent(domain.EventStatusChanged, a, now)
		ev.FromStatus = t.From
		ev.ToStatus = t.To
		s.publish(ctx, ev)

		s.auditLog(ctx, "lifecycle.transition", map[string]any{
			"auction_id":  t.AuctionID,
			"from_status": string(t.From),
			"to_status":   string(t.To),
			"winner_id":   a.WinnerID,
		})
	}

	if err != nil {
		return res, fmt.Errorf("auction_service: sweep: %w", err)
	}
	return res, nil
}

// CreateAuctionRequest describes a new lot.
type CreateAuctionRequest struct {
	Slug                   string
	Title                  string
	Description            string
	Attributes             map[string]string
	StartingBid            decimal.Decimal
	ReservePrice           *decimal.Decimal
	BuyNowPrice            *decimal.Decimal
	BidIncrement           decimal.Decimal
	StartTime              time.Time
	EndTime                time.Time
	AutoExtend             bool
	ExtendThresholdMinutes int
	ExtendMinutes          int
}

// Check validates pricing and schedule.
func (r CreateAuctionRequest) Check() error {
	var problems []string
	if strings.TrimSpace(r.Slug) == "" {
		problems = append(problems, "slug is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		problems = append(problems, "title is required")
	}
	if !r.StartingBid.IsPositive() {
		problems = append(problems, "starting bid must be positive")
	}
	if !r.BidIncrement.IsPositive() {
		problems = append(problems, "bid increment must be positive")
	}
	if r.ReservePrice != nil && !r.ReservePrice.IsPositive() {
		problems = append(problems, "reserve price must be positive")
	}
	if r.BuyNowPrice != nil && r.BuyNowPrice.LessThan(r.StartingBid) {
		problems = append(problems, "buy now price must be at least the starting bid")
	}
	for _, price := range []*decimal.Decimal{&r.StartingBid, &r.BidIncrement, r.ReservePrice, r.BuyNowPrice} {
		if price != nil && !domain.IsCents(*price) {
			problems = append(problems, "prices are limited to whole cents")
			break
		}
	}
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		problems = append(problems, "start and end time are required")
	} else if !r.EndTime.After(r.StartTime) {
		problems = append(problems, "end time must be after start time")
	}
	if r.AutoExtend && (r.ExtendThresholdMinutes <= 0 || r.ExtendMinutes <= 0) {
		problems = append(problems, "auto extend needs a positive threshold and extension")
	}
	if r.ExtendThresholdMinutes < 0 || r.ExtendMinutes < 0 {
		problems = append(problems, "extension minutes must not be negative")
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("auction_service: %s: %w", strings.Join(problems, "; "), domain.ErrInvalidInput)
}

// CreateAuction stores a new auction. It starts scheduled when StartTime is in
// the future and active otherwise; an auction whose end time has passed is
// rejected.
func (s *AuctionService) CreateAuction(ctx context.Context, req CreateAuctionRequest) (*domain.Auction, error) {
	if err := req.Check(); err != nil {
		return nil, err
	}
	now := s.cfg.Clock().UTC()
	if !req.EndTime.After(now) {
		return nil, fmt.Errorf("auction_service: end time %s is in the past: %w", req.EndTime.Format(time.RFC3339), domain.ErrInvalidInput)
	}

	status := domain.AuctionStatusActive
	if req.StartTime.After(now) {
		status = domain.AuctionStatusScheduled
	}
	a := &domain.Auction{
		ID:                     uuid.NewString(),
		Slug:                   req.Slug,
		Title:                  req.Title,
		Description:            req.Description,
		Attributes:             req.Attributes,
		StartingBid:            req.StartingBid,
		ReservePrice:           req.ReservePrice,
		BuyNowPrice:            req.BuyNowPrice,
		BidIncrement:           req.BidIncrement,
		CurrentBid:             req.StartingBid,
		StartTime:              req.StartTime.UTC(),
		EndTime:                req.EndTime.UTC(),
		AutoExtend:             req.AutoExtend,
		ExtendThresholdMinutes: req.ExtendThresholdMinutes,
		ExtendMinutes:          req.ExtendMinutes,
		Status:                 status,
		IsActive:               true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.auctions.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("auction_service: create auction %s: %w", req.Slug, err)
	}

	s.remember(a)
	s.auditLog(ctx, "auction.created", map[string]any{
		"auction_id": a.ID,
		"slug":       a.Slug,
		"status":     string(a.Status),
	})
	s.logger.InfoContext(ctx, "auction_service: auction created",
		slog.String("auction_id", a.ID),
		slog.String("status", string(a.Status)),
	)
	return a.Clone(), nil
}

// GetAuction returns an auction. Sold and no-sale auctions are served from the
// snapshot cache; live ones are always read from the store, since another
// replica may have committed since.
func (s *AuctionService) GetAuction(ctx context.Context, id string) (*domain.Auction, error) {
	if v, ok := s.cache.Get(id); ok {
		return v.(*domain.Auction).Clone(), nil
	}
	a, err := s.auctions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("auction_service: get auction %s: %w", id, err)
	}
	s.remember(a)
	return a, nil
}

// ClosedSince lists auctions that reached sold or no_sale at or after since,
// earliest first.
func (s *AuctionService) ClosedSince(ctx context.Context, since time.Time, limit int) ([]domain.Auction, error) {
	out, err := s.auctions.ListClosedSince(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("auction_service: list closed since %s: %w", since.Format(time.RFC3339), err)
	}
	return out, nil
}

// ListAuctions lists auctions newest first.
func (s *AuctionService) ListAuctions(ctx context.Context, status *domain.AuctionStatus, opts domain.ListOpts) ([]domain.Auction, error) {
	out, err := s.auctions.List(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("auction_service: list auctions: %w", err)
	}
	return out, nil
}

// ListBids returns an auction's bid history with proxy maximums removed.
func (s *AuctionService) ListBids(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.Bid, error) {
	if _, err := s.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	rows, err := s.bids.ListByAuction(ctx, auctionID, opts)
	if err != nil {
		return nil, fmt.Errorf("auction_service: list bids for %s: %w", auctionID, err)
	}
	public := make([]domain.Bid, len(rows))
	for i, b := range rows {
		public[i] = b.Public()
	}
	return public, nil
}

// AuditTrail returns the audit entries recorded for an auction, oldest first.
// Unlike ListBids it is meant for operators, so details are not filtered.
func (s *AuctionService) AuditTrail(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if _, err := s.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	if s.audit == nil {
		return []domain.AuditEntry{}, nil
	}
	entries, err := s.audit.ListByAuction(ctx, auctionID, opts)
	if err != nil {
		return nil, fmt.Errorf("auction_service: audit trail for %s: %w", auctionID, err)
	}
	return entries, nil
}

func (s *AuctionService) allowBid(ctx context.Context, bidderID string) error {
	if s.limiter == nil || s.cfg.BidRateLimit <= 0 || s.cfg.BidRateWindow <= 0 {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, "bids:"+bidderID, s.cfg.BidRateLimit, s.cfg.BidRateWindow)
	if err != nil {
		s.logger.WarnContext(ctx, "auction_service: rate limiter unavailable, allowing bid",
			slog.String("bidder_id", bidderID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !allowed {
		return fmt.Errorf("auction_service: bidder %s: %w", bidderID, domain.ErrRateLimited)
	}
	return nil
}

// remember caches terminal snapshots only. Nothing changes them afterwards.
func (s *AuctionService) remember(a *domain.Auction) {
	if a == nil || !a.Status.Terminal() {
		return
	}
	s.cache.Add(a.ID, a.Clone())
}

func (s *AuctionService) publish(ctx context.Context, ev domain.AuctionEvent) {
	if s.bus != nil {
		payload, err := json.Marshal(ev)
		if err == nil {
			err = s.bus.Publish(ctx, domain.AuctionChannel(ev.AuctionID), payload)
		}
		if err != nil {
			s.logger.WarnContext(ctx, "auction_service: signal publish failed",
				slog.String("auction_id", ev.AuctionID),
				slog.String("type", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.stream != nil {
		if err := s.stream.Publish(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "auction_service: stream publish failed",
				slog.String("auction_id", ev.AuctionID),
				slog.String("type", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *AuctionService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "auction_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
