package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/gemauction/internal/domain"
)

// AuditStore implements domain.AuditStore on the audit_log table. The
// auction_id column is generated from detail->>'auction_id'.
type AuditStore struct {
	pool *pgxpool.Pool
}

var _ domain.AuditStore = (*AuditStore)(nil)

// NewAuditStore creates an AuditStore backed by pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

const auditSelect = `SELECT id, event, COALESCE(auction_id, ''), detail, created_at FROM audit_log`

// Log appends an entry. detail is stored as JSONB.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	if detail == nil {
		detail = map[string]any{}
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail for %s: %w", event, err)
	}
	if _, err := s.pool.Exec(ctx, `INSERT INTO audit_log (event, detail) VALUES ($1, $2)`, event, raw); err != nil {
		return fmt.Errorf("postgres: log audit event %s: %w", event, transient(err))
	}
	return nil
}

// List returns entries newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	var f filter
	f.window("created_at", opts.Since, opts.Until)
	query, args := f.build(auditSelect, "created_at DESC, id DESC", opts)
	return s.query(ctx, "list audit entries", query, args)
}

// ListByAuction returns one auction's trail in the order it was written.
func (s *AuditStore) ListByAuction(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	var f filter
	f.add("auction_id = $%d", auctionID)
	f.window("created_at", opts.Since, opts.Until)
	query, args := f.build(auditSelect, "id ASC", opts)
	return s.query(ctx, "list audit entries for "+auctionID, query, args)
}

func (s *AuditStore) query(ctx context.Context, op, query string, args []any) ([]domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, transient(err))
	}
	entries, err := pgx.CollectRows(rows, scanAuditEntry)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, transient(err))
	}
	return entries, nil
}

func scanAuditEntry(row pgx.CollectableRow) (domain.AuditEntry, error) {
	var (
		e   domain.AuditEntry
		raw []byte
	)
	if err := row.Scan(&e.ID, &e.Event, &e.AuctionID, &raw, &e.CreatedAt); err != nil {
		return e, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &e.Detail); err != nil {
			return e, fmt.Errorf("unmarshal audit detail %d: %w", e.ID, err)
		}
	}
	return e, nil
}
