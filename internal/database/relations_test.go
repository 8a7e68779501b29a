package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/graphein-ai/mcp-temporal-memory-go/internal/apptype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndCloseRelation(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	from := mustCreateEntity(t, store, "a", "t", 0.5)
	to := mustCreateEntity(t, store, "b", "t", 0.5)

	relation, err := store.CreateRelation(ctx, apptype.CreateRelationSpec{
		FromEntity: from.ID, ToEntity: to.ID, RelationType: "depends_on", ConfidenceScore: 0.9,
	})
	require.NoError(t, err)
	assert.True(t, relation.Open())
	assert.False(t, relation.ValidFrom.IsZero())

	closed, err := store.CloseRelation(ctx, relation.ID, time.Time{})
	require.NoError(t, err)
	require.NotNil(t, closed.ValidUntil)
	assert.False(t, closed.Open())

	// Closing twice is an invalid state, not a silent no-op.
	_, err = store.CloseRelation(ctx, relation.ID, time.Now())
	var ise *InvalidStateError
	require.ErrorAs(t, err, &ise)
}

func TestCloseRelationNotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.CloseRelation(context.Background(), 12345, time.Now())
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestCloseRelationBeforeValidFrom(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	from := mustCreateEntity(t, store, "a", "t", 0.5)
	to := mustCreateEntity(t, store, "b", "t", 0.5)

	start := time.Now()
	relation, err := store.CreateRelation(ctx, apptype.CreateRelationSpec{
		FromEntity: from.ID, ToEntity: to.ID, RelationType: "r",
		ConfidenceScore: 0.5, ValidFrom: start,
	})
	require.NoError(t, err)

	_, err = store.CloseRelation(ctx, relation.ID, start.Add(-time.Hour))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestCreateRelationValidation(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	from := mustCreateEntity(t, store, "a", "t", 0.5)

	var ve *ValidationError
	_, err := store.CreateRelation(ctx, apptype.CreateRelationSpec{
		FromEntity: from.ID, ToEntity: 9999, RelationType: "r", ConfidenceScore: 0.5,
	})
	require.ErrorAs(t, err, &ve)

	_, err = store.CreateRelation(ctx, apptype.CreateRelationSpec{
		FromEntity: from.ID, ToEntity: from.ID, RelationType: "", ConfidenceScore: 0.5,
	})
	require.ErrorAs(t, err, &ve)

	_, err = store.CreateRelation(ctx, apptype.CreateRelationSpec{
		FromEntity: from.ID, ToEntity: from.ID, RelationType: "r", ConfidenceScore: 2.0,
	})
	require.ErrorAs(t, err, &ve)
}

// A second open window for the same (from, to, type) key supersedes the
// first: the prior window is closed at the exact instant the new one begins,
// leaving at most one open row per key.
func TestCreateRelationSupersedesOpenWindow(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	from := mustCreateEntity(t, store, "a", "t", 0.5)
	to := mustCreateEntity(t, store, "b", "t", 0.5)

	t1 := time.Now().Add(-2 * time.Hour)
	t2 := time.Now().Add(-1 * time.Hour)

	first, err := store.CreateRelation(ctx, apptype.CreateRelationSpec{
		FromEntity: from.ID, ToEntity: to.ID, RelationType: "r",
		ConfidenceScore: 0.5, ValidFrom: t1,
	})
	require.NoError(t, err)

	second, err := store.CreateRelation(ctx, apptype.CreateRelationSpec{
		FromEntity: from.ID, ToEntity: to.ID, RelationType: "r",
		ConfidenceScore: 0.8, ValidFrom: t2,
	})
	require.NoError(t, err)

	history, err := store.RelationHistory(ctx, from.ID, to.ID, "r")
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Oldest first; the first window is closed exactly where the second
	// begins, with no gap and no overlap.
	assert.Equal(t, first.ID, history[0].ID)
	require.NotNil(t, history[0].ValidUntil)
	assert.Equal(t, second.ValidFrom, *history[0].ValidUntil)
	assert.True(t, history[1].Open())

	open := 0
	for _, r := range history {
		if r.Open() {
			open++
		}
	}
	assert.Equal(t, 1, open)
}

// Racing writers on the same key must never leave two open windows; the
// partial unique index is the last line of defense when the in-transaction
// check is not enough.
func TestCreateRelationConcurrentSameKey(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	from := mustCreateEntity(t, store, "a", "t", 0.5)
	to := mustCreateEntity(t, store, "b", "t", 0.5)

	const writers = 16
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.CreateRelation(ctx, apptype.CreateRelationSpec{
				FromEntity: from.ID, ToEntity: to.ID, RelationType: "r",
				ConfidenceScore: 0.5,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		// Losers surface as a conflict (lost the index race) or a
		// validation error (their start predates the superseding window).
		var conflict *ConflictError
		var invalid *ValidationError
		assert.True(t, errors.As(err, &conflict) || errors.As(err, &invalid),
			"unexpected error: %v", err)
	}
	require.GreaterOrEqual(t, succeeded, 1)

	history, err := store.RelationHistory(ctx, from.ID, to.ID, "r")
	require.NoError(t, err)
	require.Len(t, history, succeeded)

	open := 0
	for _, r := range history {
		if r.Open() {
			open++
		}
	}
	assert.Equal(t, 1, open)
}

func TestCreateRelationBeforeOpenWindowStart(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	from := mustCreateEntity(t, store, "a", "t", 0.5)
	to := mustCreateEntity(t, store, "b", "t", 0.5)

	t1 := time.Now().Add(-time.Hour)
	_, err := store.CreateRelation(ctx, apptype.CreateRelationSpec{
		FromEntity: from.ID, ToEntity: to.ID, RelationType: "r",
		ConfidenceScore: 0.5, ValidFrom: t1,
	})
	require.NoError(t, err)

	_, err = store.CreateRelation(ctx, apptype.CreateRelationSpec{
		FromEntity: from.ID, ToEntity: to.ID, RelationType: "r",
		ConfidenceScore: 0.5, ValidFrom: t1.Add(-time.Hour),
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

// Both window boundaries are inclusive; a nanosecond past either end is out.
func TestQueryRelationsAtTimeBoundaries(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	from := mustCreateEntity(t, store, "a", "t", 0.5)
	to := mustCreateEntity(t, store, "b", "t", 0.5)

	start := time.Now().Add(-2 * time.Hour)
	end := time.Now().Add(-1 * time.Hour)

	relation, err := store.CreateRelation(ctx, apptype.CreateRelationSpec{
		FromEntity: from.ID, ToEntity: to.ID, RelationType: "r",
		ConfidenceScore: 0.5, ValidFrom: start,
	})
	require.NoError(t, err)
	_, err = store.CloseRelation(ctx, relation.ID, end)
	require.NoError(t, err)

	at := func(instant time.Time) int {
		t.Helper()
		relations, err := store.QueryRelations(ctx, from.ID, &instant)
		require.NoError(t, err)
		return len(relations)
	}

	assert.Equal(t, 1, at(start))
	assert.Equal(t, 1, at(end))
	assert.Equal(t, 1, at(start.Add(30*time.Minute)))
	assert.Equal(t, 0, at(start.Add(-time.Nanosecond)))
	assert.Equal(t, 0, at(end.Add(time.Nanosecond)))
}

func TestQueryRelationsOpenWindowUnbounded(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	from := mustCreateEntity(t, store, "a", "t", 0.5)
	to := mustCreateEntity(t, store, "b", "t", 0.5)

	_, err := store.CreateRelation(ctx, apptype.CreateRelationSpec{
		FromEntity: from.ID, ToEntity: to.ID, RelationType: "r",
		ConfidenceScore: 0.5, ValidFrom: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	farFuture := time.Now().Add(1000 * time.Hour)
	relations, err := store.QueryRelations(ctx, from.ID, &farFuture)
	require.NoError(t, err)
	assert.Len(t, relations, 1)

	// The query sees the relation from either endpoint.
	relations, err = store.QueryRelations(ctx, to.ID, nil)
	require.NoError(t, err)
	assert.Len(t, relations, 1)
}

func TestRelationHistoryOrdering(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	from := mustCreateEntity(t, store, "a", "t", 0.5)
	to := mustCreateEntity(t, store, "b", "t", 0.5)

	base := time.Now().Add(-10 * time.Hour)
	for i := 0; i < 3; i++ {
		_, err := store.CreateRelation(ctx, apptype.CreateRelationSpec{
			FromEntity: from.ID, ToEntity: to.ID, RelationType: "r",
			ConfidenceScore: 0.5, ValidFrom: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	history, err := store.RelationHistory(ctx, from.ID, to.ID, "r")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].ValidFrom.Before(history[i-1].ValidFrom))
	}
	// Only the newest window is still open.
	assert.True(t, history[2].Open())
	assert.False(t, history[0].Open())
	assert.False(t, history[1].Open())
}
