package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/gemauction/internal/domain"
	"github.com/alanyoungcy/gemauction/internal/store/memory"
)

type memBlobs struct {
	mu   sync.Mutex
	objs map[string][]byte
	puts int
}

func newMemBlobs() *memBlobs { return &memBlobs{objs: map[string][]byte{}} }

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objs[path] = b
	m.puts++
	return nil
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objs[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objs[path]
	return ok, nil
}

var closedAt = time.Date(2026, time.March, 1, 13, 0, 0, 0, time.UTC)

func seedSoldAuction(t *testing.T, store *memory.Store) *domain.Auction {
	t.Helper()
	ctx := context.Background()

	a := &domain.Auction{
		ID:           "auc-sapphire",
		Slug:         "kashmir-sapphire",
		Title:        "Kashmir sapphire, 3.2ct",
		Attributes:   map[string]string{"carat": "3.2"},
		StartingBid:  decimal.NewFromInt(1000),
		BidIncrement: decimal.NewFromInt(50),
		CurrentBid:   decimal.NewFromInt(1000),
		StartTime:    closedAt.Add(-2 * time.Hour),
		EndTime:      closedAt,
		Status:       domain.AuctionStatusActive,
		IsActive:     true,
	}
	assert.NoError(t, store.Create(ctx, a))

	maxBid := decimal.NewFromInt(1500)
	first := domain.Bid{
		ID: "bid-1", AuctionID: a.ID, BidderID: "alice",
		Amount: decimal.NewFromInt(1000), MaxBid: &maxBid,
		IsWinning: true, CreatedAt: closedAt.Add(-time.Hour),
	}
	next := a.Clone()
	next.BidCount = 1
	next.HighestBidderID = "alice"
	assert.NoError(t, store.CommitCAS(ctx, 1, next, []domain.BidMutation{domain.InsertBid(first)}))

	second := domain.Bid{
		ID: "bid-2", AuctionID: a.ID, BidderID: "bob",
		Amount: decimal.NewFromInt(1050), CreatedAt: closedAt.Add(-30 * time.Minute),
	}
	counter := domain.Bid{
		ID: "bid-3", AuctionID: a.ID, BidderID: "alice",
		Amount: decimal.NewFromInt(1100), MaxBid: &maxBid, IsAutoBid: true,
		IsWinning: true, CreatedAt: second.CreatedAt,
	}
	next = next.Clone()
	next.BidCount = 3
	next.CurrentBid = decimal.NewFromInt(1100)
	assert.NoError(t, store.CommitCAS(ctx, 2, next, []domain.BidMutation{
		domain.ClearWinning("bid-1"), domain.InsertBid(second), domain.InsertBid(counter),
	}))

	sold := next.Clone()
	sold.Status = domain.AuctionStatusSold
	sold.WinnerID = "alice"
	sold.ClosedAt = &closedAt
	assert.NoError(t, store.CommitCAS(ctx, 3, sold, nil))
	return sold
}

func newTestArchiver(store *memory.Store, blobs *memBlobs, audit domain.AuditStore) *Archiver {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewArchiver(blobs, blobs, store, store, audit, logger)
}

func TestArchiverRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	blobs := newMemBlobs()
	audit := memory.NewAuditLog()
	sold := seedSoldAuction(t, store)

	arch := newTestArchiver(store, blobs, audit)
	path, err := arch.ArchiveAuction(ctx, sold.ID)
	assert.NoError(t, err)
	check.Equal(t, "archive/auctions/2026/03/01/auc-sapphire.jsonl", path)

	got, bids, err := arch.ReadArchive(ctx, path)
	assert.NoError(t, err)
	check.Equal(t, sold.ID, got.ID)
	check.Equal(t, domain.AuctionStatusSold, got.Status)
	check.Equal(t, "alice", got.WinnerID)
	check.Equal(t, "1100", got.CurrentBid.String())
	check.Equal(t, "3.2", got.Attributes["carat"])

	assert.Equal(t, 3, len(bids))
	check.Equal(t, "bid-1", bids[0].ID)
	check.Equal(t, "bid-3", bids[2].ID)
	check.False(t, bids[0].IsWinning)
	check.True(t, bids[2].IsWinning)
	assert.NotNil(t, bids[2].MaxBid)
	check.Equal(t, "1500", bids[2].MaxBid.String())

	entries, err := audit.List(ctx, domain.ListOpts{})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(entries))
	check.Equal(t, "archive.auction", entries[0].Event)
}

func TestArchiverSkipsExistingObject(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	blobs := newMemBlobs()
	sold := seedSoldAuction(t, store)
	arch := newTestArchiver(store, blobs, memory.NewAuditLog())

	first, err := arch.ArchiveAuction(ctx, sold.ID)
	assert.NoError(t, err)
	second, err := arch.ArchiveAuction(ctx, sold.ID)
	assert.NoError(t, err)

	check.Equal(t, first, second)
	check.Equal(t, 1, blobs.puts)
}

func TestArchiverRejectsOpenAuction(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	open := &domain.Auction{
		ID:           "auc-open",
		Slug:         "open-lot",
		StartingBid:  decimal.NewFromInt(10),
		BidIncrement: decimal.NewFromInt(1),
		CurrentBid:   decimal.NewFromInt(10),
		StartTime:    closedAt.Add(-time.Hour),
		EndTime:      closedAt,
		Status:       domain.AuctionStatusActive,
		IsActive:     true,
	}
	assert.NoError(t, store.Create(ctx, open))

	arch := newTestArchiver(store, newMemBlobs(), memory.NewAuditLog())
	_, err := arch.ArchiveAuction(ctx, open.ID)
	check.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = arch.ArchiveAuction(ctx, "missing")
	check.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestNormaliseEndpoint(t *testing.T) {
	cases := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"minio:9000", false, "http://minio:9000"},
		{"e2.example.com", true, "https://e2.example.com"},
		{"https://r2.example.com", false, "https://r2.example.com"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			check.Equal(t, tc.want, normaliseEndpoint(tc.in, tc.useSSL))
		})
	}
}
