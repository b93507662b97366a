package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/gemauction/internal/auction"
	s3blob "github.com/alanyoungcy/gemauction/internal/blob/s3"
	"github.com/alanyoungcy/gemauction/internal/cache/redis"
	"github.com/alanyoungcy/gemauction/internal/config"
	"github.com/alanyoungcy/gemauction/internal/domain"
	"github.com/alanyoungcy/gemauction/internal/server/handler"
	"github.com/alanyoungcy/gemauction/internal/service"
	"github.com/alanyoungcy/gemauction/internal/store/memory"
	"github.com/alanyoungcy/gemauction/internal/store/postgres"
	natsstream "github.com/alanyoungcy/gemauction/internal/stream/nats"
)

// Dependencies bundles everything the run modes need. It is constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	AuctionStore domain.AuctionStore
	BidStore     domain.BidStore
	AuditStore   domain.AuditStore

	// Optional infrastructure; nil when not configured.
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	EventStream domain.EventStream
	Archiver    domain.Archiver

	Engine  *auction.Engine
	Service *service.AuctionService
	Sweeper *service.Sweeper

	// Health checks keyed by dependency name.
	Checks map[string]handler.Pinger
}

// pingFunc adapts a health function to handler.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{Checks: map[string]handler.Pinger{}}

	// --- Record store ---
	switch cfg.Store.Driver {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:              cfg.Postgres.DSN,
			Host:             cfg.Postgres.Host,
			Port:             cfg.Postgres.Port,
			Database:         cfg.Postgres.Database,
			User:             cfg.Postgres.User,
			Password:         cfg.Postgres.Password,
			SSLMode:          cfg.Postgres.SSLMode,
			MaxConns:         cfg.Postgres.PoolMaxConns,
			MinConns:         cfg.Postgres.PoolMinConns,
			StatementTimeout: cfg.Postgres.StatementTimeout.Duration,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pgClient.Pool()
		deps.AuctionStore = postgres.NewAuctionStore(pool)
		deps.BidStore = postgres.NewBidStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pgClient
	default:
		logger.WarnContext(ctx, "wire: using in-memory store; nothing survives a restart")
		mem := memory.New()
		deps.AuctionStore = mem
		deps.BidStore = mem
		deps.AuditStore = memory.NewAuditLog()
	}

	// --- Redis ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			MaxRetries:  cfg.Redis.MaxRetries,
			DialTimeout: cfg.Redis.DialTimeout.Duration,
			TLSEnabled:  cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Checks["redis"] = redisClient
	}

	// --- NATS JetStream ---
	if cfg.NATS.URL != "" {
		stream, err := natsstream.Connect(ctx, natsstream.Config{
			URL:           cfg.NATS.URL,
			StreamName:    cfg.NATS.StreamName,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			MaxAge:        cfg.NATS.MaxAge.Duration,
			Replicas:      cfg.NATS.Replicas,
		})
		if err != nil {
			return fail("nats", err)
		}
		closers = append(closers, func() { _ = stream.Close() })
		deps.EventStream = stream
	}

	// --- Engine and service ---
	deps.Engine = auction.NewEngine(deps.AuctionStore, auction.Options{
		Retry: auction.RetryPolicy{
			MaxCommitAttempts: cfg.Auction.MaxCommitAttempts,
			StoreRetries:      cfg.Auction.StoreRetries,
			StoreBackoff:      cfg.Auction.StoreBackoff.Duration,
		},
		BuyNowPremium:     cfg.Auction.BuyNowPremium,
		PriceEpsilon:      cfg.Auction.PriceEpsilon,
		MaxTotalExtension: cfg.Auction.MaxTotalExtension.Duration,
	}, logger)

	svc, err := service.NewAuctionService(
		deps.Engine,
		deps.AuctionStore,
		deps.BidStore,
		deps.RateLimiter,
		deps.SignalBus,
		deps.EventStream,
		deps.AuditStore,
		service.AuctionConfig{
			BidRateLimit:  cfg.Auction.BidRateLimit,
			BidRateWindow: cfg.Auction.BidRateWindow.Duration,
			CacheSize:     cfg.Auction.SnapshotCacheSize,
		},
		logger,
	)
	if err != nil {
		return fail("auction service", err)
	}
	deps.Service = svc

	// --- S3 archive ---
	if cfg.Auction.ArchiveClosed {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client, int64(cfg.S3.PartSizeMB)<<20),
			s3blob.NewReader(s3Client),
			deps.AuctionStore,
			deps.BidStore,
			deps.AuditStore,
			logger,
		)
		deps.Checks["s3"] = pingFunc(s3Client.Health)
	}

	deps.Sweeper = service.NewSweeper(svc, deps.LockManager, deps.Archiver, service.SweeperConfig{
		Interval:        cfg.Auction.SweepInterval.Duration,
		LockTTL:         cfg.Auction.SweepLockTTL.Duration,
		ArchiveLookback: cfg.Auction.ArchiveLookback.Duration,
	}, logger)

	return deps, cleanup, nil
}
