package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/gemauction/internal/domain"
)

// BidStore implements domain.BidStore using PostgreSQL. Bid rows are written
// only through AuctionStore.CommitCAS.
type BidStore struct {
	pool *pgxpool.Pool
}

var _ domain.BidStore = (*BidStore)(nil)

// NewBidStore creates a new BidStore backed by the given connection pool.
func NewBidStore(pool *pgxpool.Pool) *BidStore {
	return &BidStore{pool: pool}
}

const bidSelectCols = `b.id, b.auction_id, b.bidder_id, b.bidder_email,
	b.amount::text, b.max_bid::text, b.is_auto_bid, b.is_buy_now, b.is_winning, b.created_at`

// winningBidCols is the LEFT JOIN projection used by ReadWithVersion.
const winningBidCols = `w.id, w.auction_id, w.bidder_id, w.bidder_email,
	w.amount::text, w.max_bid::text, w.is_auto_bid, w.is_buy_now, w.is_winning, w.created_at`

// ListByAuction returns an auction's bids in reverse insertion order.
func (s *BidStore) ListByAuction(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.Bid, error) {
	var f filter
	f.add("b.auction_id = $%d", auctionID)
	f.window("b.created_at", opts.Since, opts.Until)
	query, args := f.build(`SELECT `+bidSelectCols+` FROM bids b`, "b.seq DESC", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bids for %s: %w", auctionID, transient(err))
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		var nb nullableBid
		if err := rows.Scan(nb.dest()...); err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", err)
		}
		b, err := nb.bid()
		if err != nil {
			return nil, fmt.Errorf("postgres: decode bid: %w", err)
		}
		bids = append(bids, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bids rows: %w", transient(err))
	}
	return bids, nil
}

// nullableBid scans a bid row that may be entirely NULL (no winning bid).
type nullableBid struct {
	id, auctionID, bidderID, email, amount, maxBid *string
	autoBid, buyNow, winning                       *bool
	createdAt                                      *time.Time
}

func (n *nullableBid) dest() []any {
	return []any{
		&n.id, &n.auctionID, &n.bidderID, &n.email,
		&n.amount, &n.maxBid, &n.autoBid, &n.buyNow, &n.winning, &n.createdAt,
	}
}

// bid converts the scanned row, returning nil when the row was NULL.
func (n *nullableBid) bid() (*domain.Bid, error) {
	if n.id == nil {
		return nil, nil
	}
	amount, err := decimal.NewFromString(deref(n.amount))
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	maxBid, err := parseNumeric(n.maxBid)
	if err != nil {
		return nil, fmt.Errorf("max_bid: %w", err)
	}
	b := &domain.Bid{
		ID:          *n.id,
		AuctionID:   deref(n.auctionID),
		BidderID:    deref(n.bidderID),
		BidderEmail: deref(n.email),
		Amount:      amount,
		MaxBid:      maxBid,
		IsAutoBid:   n.autoBid != nil && *n.autoBid,
		IsBuyNow:    n.buyNow != nil && *n.buyNow,
		IsWinning:   n.winning != nil && *n.winning,
	}
	if n.createdAt != nil {
		b.CreatedAt = *n.createdAt
	}
	return b, nil
}
