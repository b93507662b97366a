package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/gemauction/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	Retry             RetryPolicy
	BuyNowPremium     decimal.Decimal // zero means one bid increment
	PriceEpsilon      decimal.Decimal // zero means DefaultPriceEpsilon
	MaxTotalExtension time.Duration   // zero means unbounded
	Clock             func() time.Time
	NewID             func() string
}

// Engine is the auction lifecycle controller. Every mutation is a
// read-validate-resolve-commit cycle against the record store, committed with
// compare-and-swap on the auction version and re-run from a fresh read when
// another writer got there first. Different auctions never coordinate.
type Engine struct {
	store  domain.AuctionStore
	opts   Options
	logger *slog.Logger
}

// NewEngine creates an Engine on top of store.
func NewEngine(store domain.AuctionStore, opts Options, logger *slog.Logger) *Engine {
	opts.Retry = opts.Retry.withDefaults()
	if opts.PriceEpsilon.IsZero() {
		opts.PriceEpsilon = DefaultPriceEpsilon
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Engine{
		store:  store,
		opts:   opts,
		logger: logger.With(slog.String("component", "auction_engine")),
	}
}

// PlaceBid validates a bid, resolves it against any proxy ceiling, applies the
// anti-snipe extension and commits. Rejections come back in the result with a
// nil error; a non-nil error is ErrInvalidInput, ErrContention,
// ErrStoreUnavailable or a context error.
func (e *Engine) PlaceBid(ctx context.Context, req BidRequest) (BidResult, error) {
	if err := req.Check(); err != nil {
		return BidResult{}, err
	}

	var (
		result BidResult
		// unsettled is the result of an attempt whose commit failed in
		// transit. It may have been applied.
		unsettled *BidResult
	)
	err := e.opts.Retry.Do(ctx, "place bid", func(ctx context.Context) error {
		if unsettled != nil {
			applied, err := e.store.HasBid(ctx, req.AuctionID, unsettled.BidID)
			if err != nil {
				return err
			}
			if applied {
				result = *unsettled
				return nil
			}
			unsettled = nil
		}

		snap, err := e.store.ReadWithVersion(ctx, req.AuctionID)
		if errors.Is(err, domain.ErrNotFound) {
			result = BidResult{Reason: domain.RejectAuctionNotFound}
			return nil
		}
		if err != nil {
			return err
		}

		now := e.opts.Clock()
		a := snap.Auction.Clone()
		Promote(a, now)

		if v := Validate(a, req, snap.WinningBid, now); !v.OK() {
			result = BidResult{Reason: v.Reason, MinimumBid: v.MinimumBid}
			return nil
		}

		incoming := domain.Bid{
			ID:          e.opts.NewID(),
			AuctionID:   a.ID,
			BidderID:    req.BidderID,
			BidderEmail: req.BidderEmail,
			Amount:      req.Amount,
			MaxBid:      req.MaxBid,
			CreatedAt:   now,
		}
		res := ResolveProxy(a, incoming, snap.WinningBid, e.opts.NewID)

		a.CurrentBid = res.CurrentBid
		a.HighestBidderID = res.HighestBidderID
		a.BidCount += res.Inserted()
		if a.BuyNowPrice != nil && a.CurrentBid.GreaterThanOrEqual(*a.BuyNowPrice) {
			a.BuyNowPrice = nil
		}
		ext, extended := MaybeExtend(a, now, e.opts.MaxTotalExtension)
		if extended {
			a.ExtendedEndTime = &ext
		}
		a.UpdatedAt = now

		a.Version = snap.Auction.Version + 1
		committed := BidResult{
			Accepted:        true,
			BidID:           res.Incoming.ID,
			CurrentBid:      a.CurrentBid,
			BidCount:        a.BidCount,
			ExtendedEndTime: a.ExtendedEndTime,
			IsWinning:       res.Incoming.IsWinning,
			Auction:         a,
			Extended:        extended,
		}
		if err := e.store.CommitCAS(ctx, snap.Auction.Version, a, res.Mutations); err != nil {
			if errors.Is(err, domain.ErrStoreUnavailable) {
				unsettled = &committed
			}
			return err
		}
		result = committed
		return nil
	})
	if err != nil {
		e.logFailure("place bid", req.AuctionID, err)
		return BidResult{}, err
	}

	if !result.Accepted {
		e.logger.Debug("auction_engine: bid rejected",
			slog.String("auction_id", req.AuctionID),
			slog.String("bidder_id", req.BidderID),
			slog.String("reason", string(result.Reason)),
		)
	}
	return result, nil
}

// BuyNow sells the auction to the buyer at the derived Buy Now price when the
// offer matches it within epsilon.
func (e *Engine) BuyNow(ctx context.Context, req BuyNowRequest) (BuyNowResult, error) {
	if err := req.Check(); err != nil {
		return BuyNowResult{}, err
	}

	var (
		result    BuyNowResult
		unsettled *BuyNowResult
		purchased string // row id behind unsettled
	)
	err := e.opts.Retry.Do(ctx, "buy now", func(ctx context.Context) error {
		if unsettled != nil {
			applied, err := e.store.HasBid(ctx, req.AuctionID, purchased)
			if err != nil {
				return err
			}
			if applied {
				result = *unsettled
				return nil
			}
			unsettled = nil
		}

		snap, err := e.store.ReadWithVersion(ctx, req.AuctionID)
		if errors.Is(err, domain.ErrNotFound) {
			result = BuyNowResult{Reason: domain.RejectAuctionNotFound}
			return nil
		}
		if err != nil {
			return err
		}

		now := e.opts.Clock()
		a := snap.Auction.Clone()
		Promote(a, now)

		if v := CheckOpen(a, now); !v.OK() {
			result = BuyNowResult{Reason: v.Reason}
			return nil
		}
		price := BuyNowPrice(a, e.opts.BuyNowPremium)
		if !PriceMatches(req.OfferedPrice, price, e.opts.PriceEpsilon) {
			result = BuyNowResult{Reason: domain.RejectPriceMismatch, ExpectedPrice: price}
			return nil
		}

		purchase := domain.Bid{
			ID:          e.opts.NewID(),
			AuctionID:   a.ID,
			BidderID:    req.BuyerID,
			BidderEmail: req.BuyerEmail,
			Amount:      price,
			IsBuyNow:    true,
			IsWinning:   true,
			CreatedAt:   now,
		}
		muts := []domain.BidMutation{domain.InsertBid(purchase)}
		if snap.WinningBid != nil {
			muts = append(muts, domain.ClearWinning(snap.WinningBid.ID))
		}

		if err := domain.Transition(a.Status, domain.AuctionStatusSold); err != nil {
			return err
		}
		a.Status = domain.AuctionStatusSold
		a.WinnerID = req.BuyerID
		a.HighestBidderID = req.BuyerID
		a.CurrentBid = price
		a.BidCount++
		a.BuyNowPrice = nil
		a.IsActive = false
		a.ClosedAt = &now
		a.UpdatedAt = now

		a.Version = snap.Auction.Version + 1
		committed := BuyNowResult{Sold: true, FinalPrice: price, Auction: a}
		if err := e.store.CommitCAS(ctx, snap.Auction.Version, a, muts); err != nil {
			if errors.Is(err, domain.ErrStoreUnavailable) {
				unsettled, purchased = &committed, purchase.ID
			}
			return err
		}
		result = committed
		return nil
	})
	if err != nil {
		e.logFailure("buy now", req.AuctionID, err)
		return BuyNowResult{}, err
	}

	if !result.Sold {
		e.logger.Debug("auction_engine: buy now rejected",
			slog.String("auction_id", req.AuctionID),
			slog.String("buyer_id", req.BuyerID),
			slog.String("reason", string(result.Reason)),
		)
	}
	return result, nil
}

// SweepLifecycle moves every auction whose deadline has passed to its next
// status. Each candidate is re-read and committed under compare-and-swap, so a
// bid that extended the auction in the meantime keeps it open. Running it again
// with the same now is a no-op. A failure on one auction is logged and does not
// stop the others; the first such error is returned with the partial result.
func (e *Engine) SweepLifecycle(ctx context.Context, now time.Time) (SweepResult, error) {
	result := SweepResult{Auctions: make(map[string]*domain.Auction)}

	var candidates []domain.Auction
	err := e.opts.Retry.Do(ctx, "list past deadline", func(ctx context.Context) error {
		var err error
		candidates, err = e.store.ListPastDeadline(ctx, now, SweepStatuses)
		return err
	})
	if err != nil {
		return result, err
	}

	var firstErr error
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		transitions, committed, err := e.advance(ctx, c.ID, now)
		if err != nil {
			e.logFailure("sweep", c.ID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(transitions) == 0 {
			continue
		}
		result.Transitioned = append(result.Transitioned, transitions...)
		result.Auctions[c.ID] = committed
		for _, t := range transitions {
			e.logger.Info("auction_engine: status changed",
				slog.String("auction_id", t.AuctionID),
				slog.String("from", string(t.From)),
				slog.String("to", string(t.To)),
			)
		}
	}
	return result, firstErr
}

func (e *Engine) advance(ctx context.Context, id string, now time.Time) ([]Transition, *domain.Auction, error) {
	var (
		transitions []Transition
		committed   *domain.Auction
	)
	err := e.opts.Retry.Do(ctx, "advance "+id, func(ctx context.Context) error {
		transitions, committed = nil, nil

		snap, err := e.store.ReadWithVersion(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		a := snap.Auction.Clone()
		ts := Advance(a, now)
		if len(ts) == 0 {
			return nil
		}
		a.UpdatedAt = now
		if err := e.store.CommitCAS(ctx, snap.Auction.Version, a, nil); err != nil {
			return err
		}
		a.Version = snap.Auction.Version + 1
		transitions, committed = ts, a
		return nil
	})
	return transitions, committed, err
}

func (e *Engine) logFailure(op, auctionID string, err error) {
	level := slog.LevelError
	if errors.Is(err, domain.ErrContention) || errors.Is(err, context.Canceled) {
		level = slog.LevelWarn
	}
	e.logger.Log(context.Background(), level, fmt.Sprintf("auction_engine: %s failed", op),
		slog.String("auction_id", auctionID),
		slog.String("error", err.Error()),
	)
}
