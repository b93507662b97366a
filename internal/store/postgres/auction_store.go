package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/gemauction/internal/domain"
)

// AuctionStore implements domain.AuctionStore using PostgreSQL. The version
// column carries the compare-and-swap precondition; the auction row and its
// bid mutations commit in one transaction.
type AuctionStore struct {
	pool *pgxpool.Pool
}

var _ domain.AuctionStore = (*AuctionStore)(nil)

// NewAuctionStore creates a new AuctionStore backed by the given connection pool.
func NewAuctionStore(pool *pgxpool.Pool) *AuctionStore {
	return &AuctionStore{pool: pool}
}

// auctionSelectCols lists the columns selected when reading auctions. Money
// is read as text so it round-trips through decimal without float loss.
const auctionSelectCols = `a.id, a.slug, a.title, a.description, a.attributes,
	a.starting_bid::text, a.reserve_price::text, a.buy_now_price::text,
	a.bid_increment::text, a.current_bid::text, a.bid_count,
	a.start_time, a.end_time, a.extended_end_time, a.auto_extend,
	a.extend_threshold_minutes, a.extend_minutes, a.closed_at,
	a.status, a.is_active, a.highest_bidder_id, a.winner_id,
	a.version, a.created_at, a.updated_at`

// Create inserts a new auction at version 1.
func (s *AuctionStore) Create(ctx context.Context, a *domain.Auction) error {
	attrs, err := json.Marshal(attributesOrEmpty(a.Attributes))
	if err != nil {
		return fmt.Errorf("postgres: marshal auction attributes: %w", err)
	}

	const query = `
		INSERT INTO auctions (
			id, slug, title, description, attributes,
			starting_bid, reserve_price, buy_now_price, bid_increment, current_bid, bid_count,
			start_time, end_time, extended_end_time, auto_extend,
			extend_threshold_minutes, extend_minutes, closed_at,
			status, is_active, highest_bidder_id, winner_id,
			version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18,
			$19, $20, $21, $22,
			1, NOW(), NOW()
		)
		RETURNING version, created_at, updated_at`

	err = s.pool.QueryRow(ctx, query,
		a.ID, a.Slug, a.Title, a.Description, attrs,
		a.StartingBid.String(), numericArg(a.ReservePrice), numericArg(a.BuyNowPrice),
		a.BidIncrement.String(), a.CurrentBid.String(), a.BidCount,
		a.StartTime, a.EndTime, a.ExtendedEndTime, a.AutoExtend,
		a.ExtendThresholdMinutes, a.ExtendMinutes, a.ClosedAt,
		string(a.Status), a.IsActive, nullString(a.HighestBidderID), nullString(a.WinnerID),
	).Scan(&a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: create auction %s: %w", a.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create auction %s: %w", a.ID, transient(err))
	}
	return nil
}

// GetByID returns the auction with the given id.
func (s *AuctionStore) GetByID(ctx context.Context, id string) (*domain.Auction, error) {
	query := `SELECT ` + auctionSelectCols + ` FROM auctions a WHERE a.id = $1`
	a, err := scanAuctionFromRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: get auction %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: get auction %s: %w", id, transient(err))
	}
	return a, nil
}

// List returns auctions newest first, optionally filtered by status.
func (s *AuctionStore) List(ctx context.Context, status *domain.AuctionStatus, opts domain.ListOpts) ([]domain.Auction, error) {
	var f filter
	if status != nil {
		f.add("a.status = $%d", string(*status))
	}
	f.window("a.created_at", opts.Since, opts.Until)
	query, args := f.build(`SELECT `+auctionSelectCols+` FROM auctions a`, "a.created_at DESC, a.id", opts)

	return s.queryAuctions(ctx, "list auctions", query, args...)
}

// ReadWithVersion reads the auction and its winning bid in one statement so
// both come from the same snapshot.
func (s *AuctionStore) ReadWithVersion(ctx context.Context, id string) (*domain.AuctionSnapshot, error) {
	query := `SELECT ` + auctionSelectCols + `, ` + winningBidCols + `
		FROM auctions a
		LEFT JOIN bids w ON w.auction_id = a.id AND w.is_winning
		WHERE a.id = $1`

	a := &scannedAuction{Auction: &domain.Auction{}}
	var w nullableBid
	dest := append(a.dest(), w.dest()...)
	if err := s.pool.QueryRow(ctx, query, id).Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: read auction %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: read auction %s: %w", id, transient(err))
	}
	if err := a.finish(); err != nil {
		return nil, fmt.Errorf("postgres: read auction %s: %w", id, err)
	}
	winning, err := w.bid()
	if err != nil {
		return nil, fmt.Errorf("postgres: read winning bid for %s: %w", id, err)
	}
	return &domain.AuctionSnapshot{Auction: a.Auction, WinningBid: winning}, nil
}

// CommitCAS writes next and applies muts in one transaction, guarded by
// version = expectedVersion. Winning flags are cleared before new rows are
// inserted so the one-winner index never sees two winners.
func (s *AuctionStore) CommitCAS(ctx context.Context, expectedVersion int64, next *domain.Auction, muts []domain.BidMutation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin commit %s: %w", next.ID, transient(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const update = `
		UPDATE auctions SET
			reserve_price = $3, buy_now_price = $4, current_bid = $5, bid_count = $6,
			extended_end_time = $7, closed_at = $8, status = $9, is_active = $10,
			highest_bidder_id = $11, winner_id = $12,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2`

	tag, err := tx.Exec(ctx, update,
		next.ID, expectedVersion,
		numericArg(next.ReservePrice), numericArg(next.BuyNowPrice),
		next.CurrentBid.String(), next.BidCount,
		next.ExtendedEndTime, next.ClosedAt,
		string(next.Status), next.IsActive,
		nullString(next.HighestBidderID), nullString(next.WinnerID),
	)
	if err != nil {
		return fmt.Errorf("postgres: update auction %s: %w", next.ID, transient(err))
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM auctions WHERE id = $1)`, next.ID).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check auction %s: %w", next.ID, transient(err))
		}
		if !exists {
			return fmt.Errorf("postgres: update auction %s: %w", next.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("postgres: update auction %s at version %d: %w", next.ID, expectedVersion, domain.ErrVersionConflict)
	}

	var clears []string
	var inserts []domain.Bid
	for _, m := range muts {
		switch m.Op {
		case domain.BidClearWinning:
			clears = append(clears, m.BidID)
		case domain.BidInsert:
			inserts = append(inserts, m.Bid)
		default:
			return fmt.Errorf("postgres: unknown bid op %q: %w", m.Op, domain.ErrInvalidInput)
		}
	}

	if len(clears) > 0 {
		tag, err := tx.Exec(ctx,
			`UPDATE bids SET is_winning = FALSE WHERE auction_id = $1 AND id = ANY($2)`,
			next.ID, clears,
		)
		if err != nil {
			return fmt.Errorf("postgres: clear winning bids on %s: %w", next.ID, transient(err))
		}
		if tag.RowsAffected() != int64(len(clears)) {
			return fmt.Errorf("postgres: clear winning bids on %s: %w", next.ID, domain.ErrNotFound)
		}
	}

	const insert = `
		INSERT INTO bids (
			id, auction_id, bidder_id, bidder_email, amount, max_bid,
			is_auto_bid, is_buy_now, is_winning, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for _, b := range inserts {
		if b.AuctionID != next.ID {
			return fmt.Errorf("postgres: bid %s belongs to %s, not %s: %w", b.ID, b.AuctionID, next.ID, domain.ErrInvalidInput)
		}
		if _, err := tx.Exec(ctx, insert,
			b.ID, b.AuctionID, b.BidderID, b.BidderEmail, b.Amount.String(), numericArg(b.MaxBid),
			b.IsAutoBid, b.IsBuyNow, b.IsWinning, b.CreatedAt,
		); err != nil {
			return fmt.Errorf("postgres: insert bid %s: %w", b.ID, transient(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit auction %s: %w", next.ID, transient(err))
	}
	return nil
}

// ListPastDeadline returns auctions whose next lifecycle deadline is not after
// now, earliest deadline first.
func (s *AuctionStore) ListPastDeadline(ctx context.Context, now time.Time, statuses []domain.AuctionStatus) ([]domain.Auction, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	query := `SELECT ` + auctionSelectCols + `
		FROM auctions a
		WHERE a.status = ANY($2) AND (
			(a.status = 'scheduled' AND a.start_time <= $1)
			OR (a.status = 'active' AND COALESCE(a.closed_at, a.extended_end_time, a.end_time) <= $1)
			OR a.status = 'ended'
		)
		ORDER BY CASE WHEN a.status = 'scheduled' THEN a.start_time
			ELSE COALESCE(a.closed_at, a.extended_end_time, a.end_time) END, a.id`

	return s.queryAuctions(ctx, "list past deadline", query, now, names)
}

// ListClosedSince returns sold and no_sale auctions closed at or after since.
func (s *AuctionStore) ListClosedSince(ctx context.Context, since time.Time, limit int) ([]domain.Auction, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + auctionSelectCols + ` FROM auctions a
		WHERE a.status IN ('sold', 'no_sale') AND a.closed_at >= $1
		ORDER BY a.closed_at, a.id
		LIMIT $2`
	return s.queryAuctions(ctx, "list closed since", query, since, limit)
}

// HasBid reports whether the bid row exists.
func (s *AuctionStore) HasBid(ctx context.Context, auctionID, bidID string) (bool, error) {
	var found bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM bids WHERE id = $1 AND auction_id = $2)`,
		bidID, auctionID,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("postgres: has bid %s: %w", bidID, transient(err))
	}
	return found, nil
}

func (s *AuctionStore) queryAuctions(ctx context.Context, op, query string, args ...any) ([]domain.Auction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, transient(err))
	}
	defer rows.Close()

	var out []domain.Auction
	for rows.Next() {
		a, err := scanAuctionFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: %s: scan: %w", op, err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, transient(err))
	}
	return out, nil
}

// scannedAuction holds the raw column values until finish converts them.
type scannedAuction struct {
	*domain.Auction
	attrs                                   []byte
	startingBid, increment, current, status string
	reserve, buyNow, highest, winner        *string
}

func (s *scannedAuction) dest() []any {
	return []any{
		&s.ID, &s.Slug, &s.Title, &s.Description, &s.attrs,
		&s.startingBid, &s.reserve, &s.buyNow, &s.increment, &s.current, &s.BidCount,
		&s.StartTime, &s.EndTime, &s.ExtendedEndTime, &s.AutoExtend,
		&s.ExtendThresholdMinutes, &s.ExtendMinutes, &s.ClosedAt,
		&s.status, &s.IsActive, &s.highest, &s.winner,
		&s.Version, &s.CreatedAt, &s.UpdatedAt,
	}
}

func (s *scannedAuction) finish() error {
	var err error
	if s.StartingBid, err = decimal.NewFromString(s.startingBid); err != nil {
		return fmt.Errorf("starting_bid: %w", err)
	}
	if s.BidIncrement, err = decimal.NewFromString(s.increment); err != nil {
		return fmt.Errorf("bid_increment: %w", err)
	}
	if s.CurrentBid, err = decimal.NewFromString(s.current); err != nil {
		return fmt.Errorf("current_bid: %w", err)
	}
	if s.ReservePrice, err = parseNumeric(s.reserve); err != nil {
		return fmt.Errorf("reserve_price: %w", err)
	}
	if s.BuyNowPrice, err = parseNumeric(s.buyNow); err != nil {
		return fmt.Errorf("buy_now_price: %w", err)
	}
	if s.Status, err = domain.ParseAuctionStatus(s.status); err != nil {
		return err
	}
	s.HighestBidderID = deref(s.highest)
	s.WinnerID = deref(s.winner)
	s.Attributes = map[string]string{}
	if len(s.attrs) > 0 {
		if err := json.Unmarshal(s.attrs, &s.Attributes); err != nil {
			return fmt.Errorf("attributes: %w", err)
		}
	}
	return nil
}

func scanAuctionFromRow(scanner interface{ Scan(dest ...any) error }) (*domain.Auction, error) {
	s := &scannedAuction{Auction: &domain.Auction{}}
	if err := scanner.Scan(s.dest()...); err != nil {
		return nil, err
	}
	if err := s.finish(); err != nil {
		return nil, err
	}
	return s.Auction, nil
}

func attributesOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func numericArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	v := d.String()
	return &v
}

func parseNumeric(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
