package database

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/graphein-ai/mcp-temporal-memory-go/internal/apptype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDBSeq atomic.Int64

// setupTestStore opens a store over a fresh in-memory database. The
// `cache=shared` is crucial for sharing the database across the pool's
// connections within the same process; the sequence number keeps tests
// isolated from each other.
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	config := NewConfig()
	config.URL = fmt.Sprintf("file:testdb-%d?mode=memory&cache=shared", testDBSeq.Add(1))
	store, err := NewStore(config)
	require.NoError(t, err)

	cleanup := func() {
		err := store.Close()
		assert.NoError(t, err)
	}
	return store, cleanup
}

func mustCreateEntity(t *testing.T, store *Store, name, entityType string, confidence float64) *apptype.Entity {
	t.Helper()
	entity, err := store.CreateEntity(context.Background(), apptype.CreateEntitySpec{
		Name:            name,
		EntityType:      entityType,
		ConfidenceScore: confidence,
	})
	require.NoError(t, err)
	return entity
}

func TestNewStoreRejectsBadPoolSize(t *testing.T) {
	config := NewConfig()
	config.PoolSize = 0
	_, err := NewStore(config)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestMaintainSweepsRetentionCategories(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	keep, err := store.CreateCategory(ctx, "durable", 5, 0)
	require.NoError(t, err)
	purge, err := store.CreateCategory(ctx, "ephemeral", 1, 1)
	require.NoError(t, err)

	fresh := mustCreateEntity(t, store, "fresh", "note", 0.9)
	_, err = store.UpdateEntity(ctx, apptype.UpdateEntitySpec{ID: fresh.ID, CategoryID: &keep.ID})
	require.NoError(t, err)

	old := mustCreateEntity(t, store, "old", "note", 0.9)
	_, err = store.UpdateEntity(ctx, apptype.UpdateEntitySpec{ID: old.ID, CategoryID: &purge.ID})
	require.NoError(t, err)
	ageEntity(t, store, old.ID, 48*time.Hour)

	require.NoError(t, store.Maintain(ctx))

	_, err = store.GetEntity(ctx, old.ID)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
	_, err = store.GetEntity(ctx, fresh.ID)
	assert.NoError(t, err)
}

// ageEntity rewinds an entity's created_at so retention tests don't have to
// wait for wall-clock days to pass.
func ageEntity(t *testing.T, store *Store, id int64, by time.Duration) {
	t.Helper()
	err := store.withConn(context.Background(), func(ctx context.Context, pc *pooledConn) error {
		_, err := pc.conn.ExecContext(ctx,
			"UPDATE entities SET created_at = ? WHERE id = ?",
			toNanos(time.Now().Add(-by)), id)
		return err
	})
	require.NoError(t, err)
	store.InvalidateAll()
}
