// Package config defines the top-level configuration for the auction engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by GEMAUCTION_* environment variables.
type Config struct {
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	NATS     NATSConfig     `toml:"nats"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Auction  AuctionConfig  `toml:"auction"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// StoreConfig selects the record store.
type StoreConfig struct {
	// Driver is "postgres" or "memory". The memory store keeps nothing across
	// restarts and only coordinates writers inside one process.
	Driver string `toml:"driver"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN              string   `toml:"dsn"`
	Host             string   `toml:"host"`
	Port             int      `toml:"port"`
	Database         string   `toml:"database"`
	User             string   `toml:"user"`
	Password         string   `toml:"password"`
	SSLMode          string   `toml:"ssl_mode"`
	PoolMaxConns     int      `toml:"pool_max_conns"`
	PoolMinConns     int      `toml:"pool_min_conns"`
	StatementTimeout duration `toml:"statement_timeout"`
	RunMigrations    bool     `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables the
// live signal bus, the sweep lock and rate limiting.
type RedisConfig struct {
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	DialTimeout duration `toml:"dial_timeout"`
	TLSEnabled  bool     `toml:"tls_enabled"`
}

// NATSConfig holds JetStream parameters. An empty URL disables the durable
// event stream.
type NATSConfig struct {
	URL           string   `toml:"url"`
	StreamName    string   `toml:"stream_name"`
	SubjectPrefix string   `toml:"subject_prefix"`
	MaxAge        duration `toml:"max_age"`
	Replicas      int      `toml:"replicas"`
}

// S3Config holds S3-compatible object storage parameters used by the closed
// auction archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	PartSizeMB     int    `toml:"part_size_mb"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKeys     []string `toml:"api_keys"` // old and new key together during rotation
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// AuctionConfig tunes the engine, sweeper and service.
type AuctionConfig struct {
	MaxCommitAttempts int      `toml:"max_commit_attempts"`
	StoreRetries      int      `toml:"store_retries"`
	StoreBackoff      duration `toml:"store_backoff"`

	// BuyNowPremium is added to the current bid once the reserve is met.
	// Zero means one bid increment. Written as a string, e.g. "25.00".
	BuyNowPremium decimal.Decimal `toml:"buy_now_premium"`
	PriceEpsilon  decimal.Decimal `toml:"price_epsilon"`

	// MaxTotalExtension caps how far anti-snipe may push the end time.
	// Zero means unbounded.
	MaxTotalExtension duration `toml:"max_total_extension"`

	SweepInterval     duration `toml:"sweep_interval"`
	SweepLockTTL      duration `toml:"sweep_lock_ttl"`
	BidRateLimit      int      `toml:"bid_rate_limit"`
	BidRateWindow     duration `toml:"bid_rate_window"`
	SnapshotCacheSize int      `toml:"snapshot_cache_size"`
	ArchiveClosed     bool     `toml:"archive_closed"`
	ArchiveLookback   duration `toml:"archive_lookback"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Store: StoreConfig{Driver: "memory"},
		Postgres: PostgresConfig{
			Host:             "localhost",
			Port:             5432,
			Database:         "gemauction",
			User:             "postgres",
			SSLMode:          "disable",
			PoolMaxConns:     10,
			PoolMinConns:     2,
			StatementTimeout: duration{5 * time.Second},
			RunMigrations:    true,
		},
		Redis: RedisConfig{
			PoolSize:    20,
			MaxRetries:  3,
			DialTimeout: duration{5 * time.Second},
		},
		NATS: NATSConfig{
			StreamName:    "AUCTION_EVENTS",
			SubjectPrefix: "auction.events",
			MaxAge:        duration{7 * 24 * time.Hour},
			Replicas:      1,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "gemauction-archive",
			ForcePathStyle: true,
			PartSizeMB:     8,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Auction: AuctionConfig{
			MaxCommitAttempts: 5,
			StoreRetries:      3,
			StoreBackoff:      duration{25 * time.Millisecond},
			PriceEpsilon:      decimal.RequireFromString("0.005"),
			SweepInterval:     duration{5 * time.Second},
			SweepLockTTL:      duration{30 * time.Second},
			BidRateLimit:      10,
			BidRateWindow:     duration{10 * time.Second},
			SnapshotCacheSize: 1024,
			ArchiveLookback:   duration{24 * time.Hour},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// Mode values.
const (
	ModeAPI     = "api"
	ModeSweeper = "sweeper"
	ModeFull    = "full"
)

var validModes = map[string]bool{
	ModeAPI:     true,
	ModeSweeper: true,
	ModeFull:    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: api, sweeper, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown driver %q (valid: postgres, memory)", c.Store.Driver))
	}

	// The sweeper needs the shared lock unless the store is process-local.
	if c.Store.Driver == "postgres" && c.Redis.Addr == "" && c.Mode != ModeAPI {
		errs = append(errs, "redis: addr is required to run the sweeper against postgres")
	}
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.NATS.URL != "" {
		if c.NATS.StreamName == "" {
			errs = append(errs, "nats: stream_name must not be empty")
		}
		if c.NATS.Replicas < 1 || c.NATS.Replicas > 5 {
			errs = append(errs, "nats: replicas must be 1-5")
		}
	}

	if c.Auction.ArchiveClosed {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when auction.archive_closed is set")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when auction.archive_closed is set")
		}
	}

	if c.Mode != ModeSweeper {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	a := c.Auction
	if a.MaxCommitAttempts < 1 {
		errs = append(errs, "auction: max_commit_attempts must be >= 1")
	}
	if a.StoreBackoff.Duration < 0 {
		errs = append(errs, "auction: store_backoff must be >= 0")
	}
	if a.BuyNowPremium.IsNegative() {
		errs = append(errs, "auction: buy_now_premium must be >= 0")
	}
	if !a.BuyNowPremium.Equal(a.BuyNowPremium.Truncate(2)) {
		errs = append(errs, "auction: buy_now_premium must be whole cents")
	}
	if !a.PriceEpsilon.IsPositive() {
		errs = append(errs, "auction: price_epsilon must be > 0")
	}
	if a.ArchiveLookback.Duration < 0 {
		errs = append(errs, "auction: archive_lookback must be >= 0")
	}
	if a.MaxTotalExtension.Duration < 0 {
		errs = append(errs, "auction: max_total_extension must be >= 0")
	}
	if a.SweepInterval.Duration <= 0 {
		errs = append(errs, "auction: sweep_interval must be > 0")
	}
	if a.SweepLockTTL.Duration < a.SweepInterval.Duration {
		errs = append(errs, "auction: sweep_lock_ttl must be >= sweep_interval")
	}
	if a.BidRateLimit < 0 {
		errs = append(errs, "auction: bid_rate_limit must be >= 0")
	}
	if a.BidRateLimit > 0 && a.BidRateWindow.Duration <= 0 {
		errs = append(errs, "auction: bid_rate_window must be > 0 when bid_rate_limit is set")
	}
	if a.SnapshotCacheSize < 1 {
		errs = append(errs, "auction: snapshot_cache_size must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
