package database

import (
	"context"
	"testing"
	"time"

	"github.com/graphein-ai/mcp-temporal-memory-go/internal/apptype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCategoryValidation(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	var ve *ValidationError
	_, err := store.CreateCategory(ctx, "", 3, 0)
	require.ErrorAs(t, err, &ve)
	_, err = store.CreateCategory(ctx, "x", 0, 0)
	require.ErrorAs(t, err, &ve)
	_, err = store.CreateCategory(ctx, "x", 6, 0)
	require.ErrorAs(t, err, &ve)
	_, err = store.CreateCategory(ctx, "x", 3, -1)
	require.ErrorAs(t, err, &ve)

	_, err = store.CreateCategory(ctx, "x", 3, 30)
	require.NoError(t, err)
	_, err = store.CreateCategory(ctx, "x", 2, 10)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
}

func TestListCategoriesOrderedByPriority(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.CreateCategory(ctx, "low", 1, 0)
	require.NoError(t, err)
	_, err = store.CreateCategory(ctx, "high", 5, 0)
	require.NoError(t, err)
	_, err = store.CreateCategory(ctx, "mid", 3, 7)
	require.NoError(t, err)

	categories, err := store.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 3)
	assert.Equal(t, "high", categories[0].Name)
	assert.Equal(t, "mid", categories[1].Name)
	assert.Equal(t, "low", categories[2].Name)
	assert.Equal(t, 7, categories[1].RetentionPeriod)
}

func TestSweepExpiredPurgesOnlyAgedEntities(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	category, err := store.CreateCategory(ctx, "short-lived", 2, 1)
	require.NoError(t, err)

	aged := mustCreateEntity(t, store, "aged", "note", 0.5)
	fresh := mustCreateEntity(t, store, "fresh", "note", 0.5)
	other := mustCreateEntity(t, store, "other", "note", 0.5)
	for _, id := range []int64{aged.ID, fresh.ID} {
		_, err = store.UpdateEntity(ctx, apptype.UpdateEntitySpec{ID: id, CategoryID: &category.ID})
		require.NoError(t, err)
	}

	// The aged entity carries a relation and a resource link that must go
	// with it.
	_, err = store.CreateRelation(ctx, apptype.CreateRelationSpec{
		FromEntity: aged.ID, ToEntity: other.ID, RelationType: "r", ConfidenceScore: 0.5,
	})
	require.NoError(t, err)
	_, err = store.UpsertCloudResource(ctx, apptype.CloudResource{
		ResourceType: "s3", EntityName: "aged",
	})
	require.NoError(t, err)

	ageEntity(t, store, aged.ID, 48*time.Hour)

	purged, err := store.SweepExpired(ctx, category.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = store.GetEntity(ctx, aged.ID)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	_, err = store.GetEntity(ctx, fresh.ID)
	assert.NoError(t, err)

	relations, err := store.QueryRelations(ctx, other.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, relations)
	resources, err := store.QueryCloudResources(ctx, apptype.ResourceFilter{})
	require.NoError(t, err)
	assert.Empty(t, resources)
}

func TestSweepExpiredRetentionZeroKeepsEverything(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	category, err := store.CreateCategory(ctx, "forever", 5, 0)
	require.NoError(t, err)

	entity := mustCreateEntity(t, store, "keeper", "note", 0.5)
	_, err = store.UpdateEntity(ctx, apptype.UpdateEntitySpec{ID: entity.ID, CategoryID: &category.ID})
	require.NoError(t, err)
	ageEntity(t, store, entity.ID, 10*365*24*time.Hour)

	purged, err := store.SweepExpired(ctx, category.ID)
	require.NoError(t, err)
	assert.Zero(t, purged)

	_, err = store.GetEntity(ctx, entity.ID)
	assert.NoError(t, err)
}

func TestSweepExpiredUnknownCategory(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.SweepExpired(context.Background(), 999)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}
