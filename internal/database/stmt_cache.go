package database

import (
	"container/list"
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/graphein-ai/mcp-temporal-memory-go/internal/metrics"
)

// stmtCache caches prepared statements for one connection, keyed by
// normalized SQL text, with LRU eviction once maxSize is reached. A miss is
// never an error, only a recompilation. No locking: a pooledConn is owned by
// exactly one lease at a time.
type stmtCache struct {
	maxSize int
	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

type stmtEntry struct {
	sqlText string
	stmt    *sql.Stmt
}

func newStmtCache(maxSize int) *stmtCache {
	return &stmtCache{
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// get returns the cached statement for sqlText, preparing and inserting it
// on miss.
func (c *stmtCache) get(ctx context.Context, conn *sql.Conn, sqlText string) (*sql.Stmt, error) {
	key := normalizeSQL(sqlText)
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		metrics.Default().IncStmtCacheHit()
		return el.Value.(*stmtEntry).stmt, nil
	}
	metrics.Default().IncStmtCacheMiss()

	stmt, err := conn.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	if c.order.Len() >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = c.order.PushFront(&stmtEntry{sqlText: key, stmt: stmt})
	return stmt, nil
}

func (c *stmtCache) evictOldest() {
	el := c.order.Back()
	if el == nil {
		return
	}
	entry := c.order.Remove(el).(*stmtEntry)
	delete(c.entries, entry.sqlText)
	_ = entry.stmt.Close()
}

func (c *stmtCache) closeAll() {
	for el := c.order.Front(); el != nil; el = el.Next() {
		_ = el.Value.(*stmtEntry).stmt.Close()
	}
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

func (c *stmtCache) len() int { return c.order.Len() }

// normalizeSQL collapses incidental whitespace so query shapes written with
// different indentation share a cache slot.
func normalizeSQL(sqlText string) string {
	return strings.Join(strings.Fields(sqlText), " ")
}
