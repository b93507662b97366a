package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/gemauction/internal/domain"
)

const (
	archiveContentType = "application/x-ndjson"
	archivePageSize    = 500
)

// AuctionSource is the read side the archiver needs from the auction store.
type AuctionSource interface {
	GetByID(ctx context.Context, id string) (*domain.Auction, error)
}

// Archiver implements domain.Archiver. Each closed auction becomes one JSONL
// object: an auction line followed by one line per bid, oldest first.
// Proxy maximums are kept because the archive is internal.
type Archiver struct {
	writer   domain.BlobWriter
	reader   domain.BlobReader
	auctions AuctionSource
	bids     domain.BidStore
	audit    domain.AuditStore
	logger   *slog.Logger
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	auctions AuctionSource,
	bids domain.BidStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		writer:   writer,
		reader:   reader,
		auctions: auctions,
		bids:     bids,
		audit:    audit,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// archiveLine is one JSONL record. Exactly one of Auction and Bid is set.
type archiveLine struct {
	Kind    string          `json:"kind"`
	Auction *domain.Auction `json:"auction,omitempty"`
	Bid     *domain.Bid     `json:"bid,omitempty"`
}

// ArchiveAuction uploads the auction and its bid history and returns the
// object path. Only terminal auctions are archived. An auction already in the
// archive is not uploaded again.
func (a *Archiver) ArchiveAuction(ctx context.Context, auctionID string) (string, error) {
	auc, err := a.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive auction %s: %w", auctionID, err)
	}
	if !auc.Status.Terminal() {
		return "", fmt.Errorf("s3blob: archive auction %s in status %s: %w", auctionID, auc.Status, domain.ErrInvalidInput)
	}

	path := ArchivePath(auc)
	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive auction %s: %w", auctionID, err)
	}
	if exists {
		a.logger.DebugContext(ctx, "archiver: already archived", slog.String("auction_id", auctionID), slog.String("path", path))
		return path, nil
	}

	bids, err := a.allBids(ctx, auctionID)
	if err != nil {
		return "", err
	}

	buf, err := encodeArchive(auc, bids)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive auction %s: %w", auctionID, err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), archiveContentType); err != nil {
		return "", fmt.Errorf("s3blob: archive auction %s: %w", auctionID, err)
	}

	if err := a.audit.Log(ctx, "archive.auction", map[string]any{
		"auction_id": auctionID,
		"path":       path,
		"bids":       len(bids),
		"status":     string(auc.Status),
	}); err != nil {
		return path, fmt.Errorf("s3blob: archive auction %s audit log: %w", auctionID, err)
	}

	a.logger.InfoContext(ctx, "archiver: auction archived",
		slog.String("auction_id", auctionID),
		slog.String("path", path),
		slog.Int("bids", len(bids)),
	)
	return path, nil
}

// ReadArchive restores an archived auction and its bids from path.
func (a *Archiver) ReadArchive(ctx context.Context, path string) (*domain.Auction, []domain.Bid, error) {
	body, err := a.reader.Get(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("s3blob: read archive %s: %w", path, err)
	}
	defer body.Close()

	var (
		auc  *domain.Auction
		bids []domain.Bid
	)
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var line archiveLine
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			return nil, nil, fmt.Errorf("s3blob: decode archive %s: %w", path, err)
		}
		switch {
		case line.Kind == "auction" && line.Auction != nil:
			auc = line.Auction
		case line.Kind == "bid" && line.Bid != nil:
			bids = append(bids, *line.Bid)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("s3blob: read archive %s: %w", path, err)
	}
	if auc == nil {
		return nil, nil, fmt.Errorf("s3blob: archive %s has no auction line: %w", path, domain.ErrNotFound)
	}
	return auc, bids, nil
}

// allBids pages through the bid store and returns bids oldest first.
func (a *Archiver) allBids(ctx context.Context, auctionID string) ([]domain.Bid, error) {
	var all []domain.Bid
	for offset := 0; ; offset += archivePageSize {
		page, err := a.bids.ListByAuction(ctx, auctionID, domain.ListOpts{Limit: archivePageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("s3blob: list bids for %s: %w", auctionID, err)
		}
		all = append(all, page...)
		if len(page) < archivePageSize {
			break
		}
	}
	// The store lists newest first.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}

// ArchivePath partitions archives by close date:
//
//	archive/auctions/2026/03/01/<auction-id>.jsonl
func ArchivePath(a *domain.Auction) string {
	return fmt.Sprintf("archive/auctions/%s/%s.jsonl", a.EffectiveEndTime().UTC().Format("2006/01/02"), a.ID)
}

func encodeArchive(a *domain.Auction, bids []domain.Bid) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(archiveLine{Kind: "auction", Auction: a}); err != nil {
		return nil, fmt.Errorf("jsonl encode auction: %w", err)
	}
	for i := range bids {
		if err := enc.Encode(archiveLine{Kind: "bid", Bid: &bids[i]}); err != nil {
			return nil, fmt.Errorf("jsonl encode bid %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
