package database

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/graphein-ai/mcp-temporal-memory-go/internal/apptype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetEntity(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	created, err := store.CreateEntity(ctx, apptype.CreateEntitySpec{
		Name:            "payments-api",
		EntityType:      "service",
		ConfidenceScore: 0.85,
		ContextSource:   "deploy-log",
		Metadata:        json.RawMessage(`{"owner":"platform"}`),
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	byID, err := store.GetEntity(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "payments-api", byID.Name)
	assert.Equal(t, "service", byID.EntityType)
	assert.Equal(t, 0.85, byID.ConfidenceScore)
	assert.Equal(t, "deploy-log", byID.ContextSource)
	assert.JSONEq(t, `{"owner":"platform"}`, string(byID.Metadata))
	assert.False(t, byID.CreatedAt.IsZero())

	byName, err := store.GetEntityByName(ctx, "payments-api")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)
}

func TestCreateEntityValidation(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	var ve *ValidationError

	_, err := store.CreateEntity(ctx, apptype.CreateEntitySpec{Name: "", EntityType: "t", ConfidenceScore: 0.5})
	require.ErrorAs(t, err, &ve)

	_, err = store.CreateEntity(ctx, apptype.CreateEntitySpec{Name: "n", EntityType: "", ConfidenceScore: 0.5})
	require.ErrorAs(t, err, &ve)

	_, err = store.CreateEntity(ctx, apptype.CreateEntitySpec{Name: "n", EntityType: "t", ConfidenceScore: -0.1})
	require.ErrorAs(t, err, &ve)

	_, err = store.CreateEntity(ctx, apptype.CreateEntitySpec{Name: "n", EntityType: "t", ConfidenceScore: 1.1})
	require.ErrorAs(t, err, &ve)

	_, err = store.CreateEntity(ctx, apptype.CreateEntitySpec{
		Name: "n", EntityType: "t", ConfidenceScore: 0.5,
		Metadata: json.RawMessage(`{not json`),
	})
	require.ErrorAs(t, err, &ve)

	// Boundary scores are valid.
	_, err = store.CreateEntity(ctx, apptype.CreateEntitySpec{Name: "zero", EntityType: "t", ConfidenceScore: 0.0})
	require.NoError(t, err)
	_, err = store.CreateEntity(ctx, apptype.CreateEntitySpec{Name: "one", EntityType: "t", ConfidenceScore: 1.0})
	require.NoError(t, err)
}

func TestCreateEntityDuplicateName(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	mustCreateEntity(t, store, "unique-name", "t", 0.5)
	_, err := store.CreateEntity(ctx, apptype.CreateEntitySpec{
		Name: "unique-name", EntityType: "t", ConfidenceScore: 0.5,
	})
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
}

func TestUpdateEntityPartial(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	created := mustCreateEntity(t, store, "svc", "service", 0.5)

	score := 0.9
	updated, err := store.UpdateEntity(ctx, apptype.UpdateEntitySpec{
		ID:              created.ID,
		ConfidenceScore: &score,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.9, updated.ConfidenceScore)
	// Untouched fields survive.
	assert.Equal(t, "svc", updated.Name)
	assert.Equal(t, "service", updated.EntityType)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.False(t, updated.LastUpdated.Before(created.LastUpdated))

	_, err = store.UpdateEntity(ctx, apptype.UpdateEntitySpec{ID: 99999, ConfidenceScore: &score})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)

	bad := 1.5
	_, err = store.UpdateEntity(ctx, apptype.UpdateEntitySpec{ID: created.ID, ConfidenceScore: &bad})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestQueryEntitiesFilter(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	mustCreateEntity(t, store, "a", "service", 0.3)
	mustCreateEntity(t, store, "b", "service", 0.8)
	mustCreateEntity(t, store, "c", "database", 0.9)

	svc := "service"
	entities, err := store.QueryEntities(ctx, apptype.EntityFilter{EntityType: &svc})
	require.NoError(t, err)
	assert.Len(t, entities, 2)

	min := 0.8
	entities, err = store.QueryEntities(ctx, apptype.EntityFilter{MinConfidence: &min})
	require.NoError(t, err)
	assert.Len(t, entities, 2)
	for _, e := range entities {
		assert.GreaterOrEqual(t, e.ConfidenceScore, 0.8)
	}

	entities, err = store.QueryEntities(ctx, apptype.EntityFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	// Newest first.
	assert.Equal(t, "c", entities[0].Name)
}

func TestQueryEntitiesUsesResultCache(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	mustCreateEntity(t, store, "cached", "t", 0.5)

	first, err := store.QueryEntities(ctx, apptype.EntityFilter{})
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, 1, store.results.len())

	// Second identical query is served from cache.
	second, err := store.QueryEntities(ctx, apptype.EntityFilter{})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// A write to entities evicts the cached result.
	mustCreateEntity(t, store, "evictor", "t", 0.5)
	assert.Equal(t, 0, store.results.len())

	third, err := store.QueryEntities(ctx, apptype.EntityFilter{})
	require.NoError(t, err)
	assert.Len(t, third, 2)
}

func TestDeleteEntityCascades(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	from := mustCreateEntity(t, store, "from", "t", 0.5)
	to := mustCreateEntity(t, store, "to", "t", 0.5)

	_, err := store.CreateRelation(ctx, apptype.CreateRelationSpec{
		FromEntity: from.ID, ToEntity: to.ID, RelationType: "depends_on", ConfidenceScore: 0.7,
	})
	require.NoError(t, err)

	_, err = store.UpsertCloudResource(ctx, apptype.CloudResource{
		ResourceID: "i-123", ResourceType: "ec2", EntityName: "from",
	})
	require.NoError(t, err)

	require.NoError(t, store.DeleteEntity(ctx, from.ID))

	_, err = store.GetEntity(ctx, from.ID)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)

	relations, err := store.QueryRelations(ctx, to.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, relations)

	resources, err := store.QueryCloudResources(ctx, apptype.ResourceFilter{})
	require.NoError(t, err)
	assert.Empty(t, resources)
}

func TestDeleteEntityNotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	err := store.DeleteEntity(context.Background(), 424242)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}
