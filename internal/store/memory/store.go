// Package memory is an in-process record store with the same compare-and-swap
// contract as the Postgres store. It backs the "memory" store driver and the
// engine tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/gemauction/internal/domain"
)

// Operation names accepted by InjectFault.
const (
	OpRead             = "read"
	OpCommit           = "commit"
	OpListPastDeadline = "list_past_deadline"

	// OpCommitLost fails a CommitCAS after it has been applied, as when the
	// acknowledgement is lost on the wire.
	OpCommitLost = "commit_lost"
)

// Store keeps auctions and bids in maps guarded by one mutex.
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	auctions map[string]*domain.Auction
	bids     map[string][]domain.Bid // auction id -> rows in insert order

	faultMu sync.Mutex
	faults  map[string][]error

	beforeCommit func(auctionID string)
}

var (
	_ domain.AuctionStore = (*Store)(nil)
	_ domain.BidStore     = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{
		auctions: make(map[string]*domain.Auction),
		bids:     make(map[string][]domain.Bid),
		faults:   make(map[string][]error),
	}
}

// InjectFault makes the next n calls of op fail with err before touching
// state.
func (s *Store) InjectFault(op string, n int, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	for range n {
		s.faults[op] = append(s.faults[op], err)
	}
}

// OnBeforeCommit registers fn to run at the start of every CommitCAS, before
// the version check. Tests use it to interleave a competing writer.
func (s *Store) OnBeforeCommit(fn func(auctionID string)) {
	s.mu.Lock()
	s.beforeCommit = fn
	s.mu.Unlock()
}

func (s *Store) fault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	q := s.faults[op]
	if len(q) == 0 {
		return nil
	}
	s.faults[op] = q[1:]
	return q[0]
}

// Create inserts a new auction at version 1.
func (s *Store) Create(ctx context.Context, a *domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.auctions[a.ID]; ok {
		return fmt.Errorf("memory: create auction %s: %w", a.ID, domain.ErrAlreadyExists)
	}
	for _, other := range s.auctions {
		if a.Slug != "" && other.Slug == a.Slug {
			return fmt.Errorf("memory: create auction slug %s: %w", a.Slug, domain.ErrAlreadyExists)
		}
	}
	now := time.Now().UTC()
	c := a.Clone()
	c.Version = 1
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	s.auctions[a.ID] = c
	a.Version, a.CreatedAt, a.UpdatedAt = c.Version, c.CreatedAt, c.UpdatedAt
	return nil
}

// GetByID returns a copy of the auction.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.auctions[id]
	if !ok {
		return nil, fmt.Errorf("memory: get auction %s: %w", id, domain.ErrNotFound)
	}
	return a.Clone(), nil
}

// List returns auctions newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, status *domain.AuctionStatus, opts domain.ListOpts) ([]domain.Auction, error) {
	s.mu.RLock()
	out := make([]domain.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		if status != nil && a.Status != *status {
			continue
		}
		if !inWindow(a.CreatedAt, opts) {
			continue
		}
		out = append(out, *a.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(x, y domain.Auction) int {
		if c := y.CreatedAt.Compare(x.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})
	return paginate(out, opts), nil
}

// ReadWithVersion returns the auction and its winning bid.
func (s *Store) ReadWithVersion(ctx context.Context, id string) (*domain.AuctionSnapshot, error) {
	if err := s.fault(OpRead); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.auctions[id]
	if !ok {
		return nil, fmt.Errorf("memory: read auction %s: %w", id, domain.ErrNotFound)
	}
	snap := &domain.AuctionSnapshot{Auction: a.Clone()}
	for i := len(s.bids[id]) - 1; i >= 0; i-- {
		if b := s.bids[id][i]; b.IsWinning {
			snap.WinningBid = &b
			break
		}
	}
	return snap, nil
}

// CommitCAS replaces the auction and applies muts if the stored version still
// equals expectedVersion. Mutations are checked before anything is written so
// a bad mutation leaves the store untouched.
func (s *Store) CommitCAS(ctx context.Context, expectedVersion int64, next *domain.Auction, muts []domain.BidMutation) error {
	if err := s.fault(OpCommit); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory: commit auction %s: %w", next.ID, err)
	}

	s.mu.RLock()
	hook := s.beforeCommit
	s.mu.RUnlock()
	if hook != nil {
		hook(next.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.auctions[next.ID]
	if !ok {
		return fmt.Errorf("memory: commit auction %s: %w", next.ID, domain.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("memory: commit auction %s at version %d (stored %d): %w",
			next.ID, expectedVersion, cur.Version, domain.ErrVersionConflict)
	}

	rows := slices.Clone(s.bids[next.ID])
	index := make(map[string]int, len(rows))
	for i, b := range rows {
		index[b.ID] = i
	}
	for _, m := range muts {
		switch m.Op {
		case domain.BidInsert:
			if m.Bid.AuctionID != next.ID {
				return fmt.Errorf("memory: commit auction %s: bid %s belongs to %s: %w",
					next.ID, m.Bid.ID, m.Bid.AuctionID, domain.ErrInvalidInput)
			}
			if _, dup := index[m.Bid.ID]; dup {
				return fmt.Errorf("memory: insert bid %s: %w", m.Bid.ID, domain.ErrAlreadyExists)
			}
			b := m.Bid
			if m.Bid.MaxBid != nil {
				ceiling := *m.Bid.MaxBid
				b.MaxBid = &ceiling
			}
			index[b.ID] = len(rows)
			rows = append(rows, b)
		case domain.BidClearWinning:
			i, found := index[m.BidID]
			if !found {
				return fmt.Errorf("memory: clear winning bid %s: %w", m.BidID, domain.ErrNotFound)
			}
			rows[i].IsWinning = false
		default:
			return fmt.Errorf("memory: unknown bid op %q: %w", m.Op, domain.ErrInvalidInput)
		}
	}

	stored := next.Clone()
	stored.Version = expectedVersion + 1
	stored.CreatedAt = cur.CreatedAt
	s.auctions[next.ID] = stored
	s.bids[next.ID] = rows
	return s.fault(OpCommitLost)
}

// ListPastDeadline returns auctions due for a lifecycle transition at now,
// earliest deadline first.
func (s *Store) ListPastDeadline(ctx context.Context, now time.Time, statuses []domain.AuctionStatus) ([]domain.Auction, error) {
	if err := s.fault(OpListPastDeadline); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Auction
	for _, a := range s.auctions {
		if !slices.Contains(statuses, a.Status) {
			continue
		}
		if due(a, now) {
			out = append(out, *a.Clone())
		}
	}
	slices.SortFunc(out, func(x, y domain.Auction) int {
		if c := deadline(&x).Compare(deadline(&y)); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})
	return out, nil
}

// ListClosedSince returns terminal auctions closed at or after since, earliest
// close first.
func (s *Store) ListClosedSince(ctx context.Context, since time.Time, limit int) ([]domain.Auction, error) {
	s.mu.RLock()
	var out []domain.Auction
	for _, a := range s.auctions {
		if a.Status.Terminal() && a.ClosedAt != nil && !a.ClosedAt.Before(since) {
			out = append(out, *a.Clone())
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(x, y domain.Auction) int {
		if c := x.ClosedAt.Compare(*y.ClosedAt); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// HasBid reports whether the bid row exists.
func (s *Store) HasBid(ctx context.Context, auctionID, bidID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.ContainsFunc(s.bids[auctionID], func(b domain.Bid) bool { return b.ID == bidID }), nil
}

// ListByAuction returns bids for an auction, newest first.
func (s *Store) ListByAuction(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.Bid, error) {
	s.mu.RLock()
	rows := make([]domain.Bid, 0, len(s.bids[auctionID]))
	for _, b := range s.bids[auctionID] {
		if !inWindow(b.CreatedAt, opts) {
			continue
		}
		rows = append(rows, b)
	}
	s.mu.RUnlock()

	slices.Reverse(rows)
	return paginate(rows, opts), nil
}

func due(a *domain.Auction, now time.Time) bool {
	switch a.Status {
	case domain.AuctionStatusScheduled, domain.AuctionStatusActive:
		return !now.Before(deadline(a))
	case domain.AuctionStatusEnded:
		return true
	}
	return false
}

func deadline(a *domain.Auction) time.Time {
	if a.Status == domain.AuctionStatusScheduled {
		return a.StartTime
	}
	return a.EffectiveEndTime()
}

func inWindow(t time.Time, opts domain.ListOpts) bool {
	if opts.Since != nil && t.Before(*opts.Since) {
		return false
	}
	return opts.Until == nil || !t.After(*opts.Until)
}

func paginate[T any](rows []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(rows) {
			return []T{}
		}
		rows = rows[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(rows) {
		rows = rows[:opts.Limit]
	}
	return rows
}
