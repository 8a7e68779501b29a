package database

import (
	"os"
	"strconv"
	"time"
)

// Config holds the database and pool configuration.
type Config struct {
	URL       string
	AuthToken string

	// Pool tuning
	PoolSize       int           // max concurrent leased connections
	ConnTimeout    time.Duration // max wait for a free slot before PoolTimeoutError
	IdleTimeout    time.Duration // idle connections older than this are recycled
	RetryAttempts  int           // bounded retries on pool timeout
	RetryBackoff   time.Duration // base backoff between retries, grows per attempt
	StmtCacheSize  int           // per-connection prepared statement cap
	ResultCacheTTL time.Duration // backstop expiry for cached query results
}

// NewConfig creates a new Config from environment variables with documented
// fallbacks.
func NewConfig() *Config {
	url := os.Getenv("LIBSQL_URL")
	if url == "" {
		url = "file:./memory.db"
	}

	return &Config{
		URL:            url,
		AuthToken:      os.Getenv("LIBSQL_AUTH_TOKEN"),
		PoolSize:       envInt("POOL_SIZE", 5, 1),
		ConnTimeout:    envDuration("POOL_CONN_TIMEOUT_MS", time.Millisecond, 5000, 1),
		IdleTimeout:    envDuration("POOL_IDLE_TIMEOUT_SEC", time.Second, 300, 1),
		RetryAttempts:  envInt("POOL_RETRY_ATTEMPTS", 3, 0),
		RetryBackoff:   envDuration("POOL_RETRY_BACKOFF_MS", time.Millisecond, 20, 0),
		StmtCacheSize:  envInt("STMT_CACHE_SIZE", 100, 1),
		ResultCacheTTL: envDuration("RESULT_CACHE_TTL_SEC", time.Second, 300, 0),
	}
}

// envInt reads an integer from the environment, falling back when unset,
// unparsable, or below floor. Zero is a valid setting where the floor allows
// it: POOL_RETRY_ATTEMPTS=0 disables retries and RESULT_CACHE_TTL_SEC=0
// disables result caching.
func envInt(key string, fallback, floor int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= floor {
			return n
		}
	}
	return fallback
}

func envDuration(key string, unit time.Duration, fallback, floor int) time.Duration {
	return time.Duration(envInt(key, fallback, floor)) * unit
}
