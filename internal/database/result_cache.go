package database

import (
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/graphein-ai/mcp-temporal-memory-go/internal/metrics"
)

// resultCache is the process-wide query result cache. Entries record the
// tables their result was derived from; every write invalidates all entries
// touching a written table. The store has no fine-grained dependency
// tracking, so invalidation is deliberately conservative, and TTL expiry is
// a backstop against invalidation bugs.
//
// Reads compute their result outside the cache lock (and outside the pool
// lease), so a write can commit and invalidate between the computation and
// the put. Per-table generation counters close that window: a read snapshots
// the generations of the tables it will touch before querying, and put
// refuses to store a result whose tables moved since the snapshot.
type resultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[uint64]*cachedResult
	gens    map[string]uint64
	global  uint64 // bumped by clear, covers tables never individually invalidated
}

type cachedResult struct {
	value   any
	tables  []string
	expires time.Time
}

// genSnapshot records table generations observed before a read started.
type genSnapshot struct {
	global uint64
	tables map[string]uint64
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		ttl:     ttl,
		entries: make(map[uint64]*cachedResult),
		gens:    make(map[string]uint64),
	}
}

// fingerprint hashes normalized query text plus parameter values into a
// cache key.
func fingerprint(sqlText string, args ...any) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(normalizeSQL(sqlText))
	for _, a := range args {
		_, _ = fmt.Fprintf(d, "|%v", a)
	}
	return d.Sum64()
}

// get returns the cached value for fp if present and unexpired. The op label
// feeds hit/miss metrics only.
func (c *resultCache) get(op string, fp uint64) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[fp]
	if !ok {
		metrics.Default().IncResultCacheMiss(op)
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, fp)
		metrics.Default().IncResultCacheMiss(op)
		return nil, false
	}
	metrics.Default().IncResultCacheHit(op)
	return entry.value, true
}

// snapshot captures the current generations of the given tables. Callers
// take it before running the query whose result they intend to put.
func (c *resultCache) snapshot(tables ...string) genSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := genSnapshot{global: c.global, tables: make(map[string]uint64, len(tables))}
	for _, t := range tables {
		snap.tables[t] = c.gens[t]
	}
	return snap
}

// put stores value for fp, tagged with the tables it was computed from. The
// entry is dropped on the floor when any tagged table was invalidated after
// snap was taken: the result may predate that write.
func (c *resultCache) put(fp uint64, value any, snap genSnapshot, tables ...string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if snap.global != c.global {
		return
	}
	for _, t := range tables {
		if c.gens[t] != snap.tables[t] {
			return
		}
	}
	c.entries[fp] = &cachedResult{
		value:   value,
		tables:  tables,
		expires: time.Now().Add(c.ttl),
	}
}

// invalidateTables drops every entry derived from any of the given tables
// and advances their generations so in-flight reads cannot re-cache results
// computed before the write.
func (c *resultCache) invalidateTables(tables ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tables {
		c.gens[t]++
	}
	for fp, entry := range c.entries {
		if touchesAny(entry.tables, tables) {
			delete(c.entries, fp)
		}
	}
}

// clear drops everything; sweeps and schema changes use this.
func (c *resultCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.global++
	c.entries = make(map[uint64]*cachedResult)
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func touchesAny(have, written []string) bool {
	for _, h := range have {
		for _, w := range written {
			if h == w {
				return true
			}
		}
	}
	return false
}
