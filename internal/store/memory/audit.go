package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/alanyoungcy/gemauction/internal/domain"
)

// AuditLog is an in-process append-only audit log.
type AuditLog struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
	now     func() time.Time
}

var _ domain.AuditStore = (*AuditLog)(nil)

// NewAuditLog returns an empty AuditLog.
func NewAuditLog() *AuditLog {
	return &AuditLog{now: time.Now}
}

// Log appends an audit entry.
func (l *AuditLog) Log(ctx context.Context, event string, detail map[string]any) error {
	auctionID, _ := detail["auction_id"].(string)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, domain.AuditEntry{
		ID:        int64(len(l.entries) + 1),
		Event:     event,
		AuctionID: auctionID,
		Detail:    maps.Clone(detail),
		CreatedAt: l.now().UTC(),
	})
	return nil
}

// List returns audit entries newest first.
func (l *AuditLog) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	rows := l.matching(func(e domain.AuditEntry) bool { return inWindow(e.CreatedAt, opts) })
	slices.Reverse(rows)
	return paginate(rows, opts), nil
}

// ListByAuction returns one auction's entries oldest first.
func (l *AuditLog) ListByAuction(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	rows := l.matching(func(e domain.AuditEntry) bool {
		return e.AuctionID == auctionID && inWindow(e.CreatedAt, opts)
	})
	return paginate(rows, opts), nil
}

func (l *AuditLog) matching(keep func(domain.AuditEntry) bool) []domain.AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.AuditEntry
	for _, e := range l.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
