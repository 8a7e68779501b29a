package memory

import (
	"time"

	"github.com/graphein-ai/mcp-temporal-memory-go/internal/database"
)

// Config exposes a stable wrapper for store configuration in package mode.
// Zero fields fall back to the environment-derived defaults.
type Config struct {
	URL               string
	AuthToken         string
	PoolSize          int
	ConnTimeoutMs     int
	IdleTimeoutSec    int
	RetryAttempts     int
	RetryBackoffMs    int
	StmtCacheSize     int
	ResultCacheTTLSec int
}

func (c *Config) toInternal() *database.Config {
	cfg := database.NewConfig()
	if c.URL != "" {
		cfg.URL = c.URL
	}
	if c.AuthToken != "" {
		cfg.AuthToken = c.AuthToken
	}
	if c.PoolSize > 0 {
		cfg.PoolSize = c.PoolSize
	}
	if c.ConnTimeoutMs > 0 {
		cfg.ConnTimeout = time.Duration(c.ConnTimeoutMs) * time.Millisecond
	}
	if c.IdleTimeoutSec > 0 {
		cfg.IdleTimeout = time.Duration(c.IdleTimeoutSec) * time.Second
	}
	if c.RetryAttempts > 0 {
		cfg.RetryAttempts = c.RetryAttempts
	}
	if c.RetryBackoffMs > 0 {
		cfg.RetryBackoff = time.Duration(c.RetryBackoffMs) * time.Millisecond
	}
	if c.StmtCacheSize > 0 {
		cfg.StmtCacheSize = c.StmtCacheSize
	}
	if c.ResultCacheTTLSec > 0 {
		cfg.ResultCacheTTL = time.Duration(c.ResultCacheTTLSec) * time.Second
	}
	return cfg
}
