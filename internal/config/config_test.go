package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	assert.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	check.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "api"

[store]
driver = "postgres"

[postgres]
database = "gems"

[auction]
buy_now_premium = "25.50"
sweep_interval = "2s"
max_total_extension = "30m"
`)
	cfg, err := Load(path)
	assert.NoError(t, err)

	check.Equal(t, ModeAPI, cfg.Mode)
	check.Equal(t, "postgres", cfg.Store.Driver)
	check.Equal(t, "gems", cfg.Postgres.Database)
	check.Equal(t, 5432, cfg.Postgres.Port)
	check.True(t, cfg.Auction.BuyNowPremium.Equal(decimal.RequireFromString("25.50")))
	check.Equal(t, 2*time.Second, cfg.Auction.SweepInterval.Duration)
	check.Equal(t, 30*time.Minute, cfg.Auction.MaxTotalExtension.Duration)
	check.Equal(t, 5, cfg.Auction.MaxCommitAttempts)
	check.NoError(t, cfg.Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	assert.NoError(t, err)
	check.Equal(t, "memory", cfg.Store.Driver)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeTOML(t, `
[auction]
sweep_interval = "soon"
`)
	_, err := Load(path)
	check.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMAUCTION_MODE", "sweeper")
	t.Setenv("GEMAUCTION_REDIS_ADDR", "redis:6379")
	t.Setenv("GEMAUCTION_SERVER_CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("GEMAUCTION_AUCTION_PRICE_EPSILON", "0.01")
	t.Setenv("GEMAUCTION_AUCTION_BID_RATE_WINDOW", "1m")
	t.Setenv("GEMAUCTION_SERVER_PORT", "not-a-number")

	cfg, err := Load(writeTOML(t, `mode = "api"`))
	assert.NoError(t, err)

	check.Equal(t, ModeSweeper, cfg.Mode)
	check.Equal(t, "redis:6379", cfg.Redis.Addr)
	check.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	check.True(t, cfg.Auction.PriceEpsilon.Equal(decimal.RequireFromString("0.01")))
	check.Equal(t, time.Minute, cfg.Auction.BidRateWindow.Duration)
	check.Equal(t, 8000, cfg.Server.Port)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log_level"},
		{"driver", func(c *Config) { c.Store.Driver = "sqlite" }, "unknown driver"},
		{"sweeper needs redis", func(c *Config) { c.Store.Driver = "postgres" }, "redis: addr is required"},
		{"epsilon", func(c *Config) { c.Auction.PriceEpsilon = decimal.Zero }, "price_epsilon"},
		{"premium", func(c *Config) { c.Auction.BuyNowPremium = decimal.NewFromInt(-1) }, "buy_now_premium"},
		{"premium cents", func(c *Config) { c.Auction.BuyNowPremium = decimal.RequireFromString("0.125") }, "whole cents"},
		{"lock ttl", func(c *Config) { c.Auction.SweepLockTTL.Duration = time.Second }, "sweep_lock_ttl"},
		{"archive bucket", func(c *Config) {
			c.Auction.ArchiveClosed = true
			c.S3.Bucket = ""
		}, "s3: bucket"},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server: port"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			assert.Error(t, err)
			check.True(t, strings.Contains(err.Error(), tc.want))
		})
	}

	cfg := Defaults()
	cfg.Mode = "x"
	cfg.LogLevel = "y"
	err := cfg.Validate()
	assert.Error(t, err)
	check.True(t, strings.Contains(err.Error(), "unknown mode"))
	check.True(t, strings.Contains(err.Error(), "unknown log_level"))
}

func TestRedacted(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Server.APIKeys = []string{"old", "new"}
	cfg.S3.SecretKey = "secret"

	r := cfg.Redacted()
	check.Equal(t, "***", r.Postgres.Password)
	check.Equal(t, []string{"***", "***"}, r.Server.APIKeys)
	check.Equal(t, "new", cfg.Server.APIKeys[1])
	check.Equal(t, "***", r.S3.SecretKey)
	check.Equal(t, "", r.Postgres.DSN)
	check.Equal(t, "hunter2", cfg.Postgres.Password)

	r.Server.CORSOrigins[0] = "mutated"
	check.Equal(t, "http://localhost:3000", cfg.Server.CORSOrigins[0])
}
