package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuctionStore is the auction record store. CommitCAS is the only write path
// for a live auction: it applies next and every bid mutation atomically, and
// only if the stored version still equals expectedVersion. A moved version
// yields ErrVersionConflict; transient failures wrap ErrStoreUnavailable.
type AuctionStore interface {
	Create(ctx context.Context, a *Auction) error
	GetByID(ctx context.Context, id string) (*Auction, error)
	List(ctx context.Context, status *AuctionStatus, opts ListOpts) ([]Auction, error)
	ReadWithVersion(ctx context.Context, id string) (*AuctionSnapshot, error)
	CommitCAS(ctx context.Context, expectedVersion int64, next *Auction, muts []BidMutation) error
	// ListPastDeadline returns auctions in one of statuses whose next lifecycle
	// deadline has passed: scheduled ones whose start time is <= now, active ones
	// whose effective end time is <= now, and every ended one.
	ListPastDeadline(ctx context.Context, now time.Time, statuses []AuctionStatus) ([]Auction, error)
	// ListClosedSince returns sold and no_sale auctions whose ClosedAt is at or
	// after since, earliest first, at most limit of them.
	ListClosedSince(ctx context.Context, since time.Time, limit int) ([]Auction, error)
	// HasBid reports whether bidID is recorded against auctionID. It settles
	// whether a commit that failed in transit was applied.
	HasBid(ctx context.Context, auctionID, bidID string) (bool, error)
}

// BidStore reads bid history.
type BidStore interface {
	ListByAuction(ctx context.Context, auctionID string, opts ListOpts) ([]Bid, error)
}

// AuditEntry is a single audit log row. AuctionID mirrors detail["auction_id"]
// so an auction's trail can be read back without scanning every entry.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	AuctionID string         `json:"auction_id,omitempty"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	// ListByAuction returns one auction's entries, oldest first.
	ListByAuction(ctx context.Context, auctionID string, opts ListOpts) ([]AuditEntry, error)
}
