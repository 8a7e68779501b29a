package memory

import (
	"context"
	"time"

	"github.com/graphein-ai/mcp-temporal-memory-go/internal/apptype"
	"github.com/graphein-ai/mcp-temporal-memory-go/internal/database"
)

// Service provides a library-first API for memory operations without MCP transport.
type Service struct {
	store *database.Store
}

// NewService constructs a Service with the provided config.
func NewService(cfg *Config) (*Service, error) {
	store, err := database.NewStore(cfg.toInternal())
	if err != nil {
		return nil, err
	}
	return &Service{store: store}, nil
}

// Close releases resources.
func (s *Service) Close() error { return s.store.Close() }

// CreateEntity records a new fact.
func (s *Service) CreateEntity(ctx context.Context, spec apptype.CreateEntitySpec) (*apptype.Entity, error) {
	return s.store.CreateEntity(ctx, spec)
}

// UpdateEntity applies a partial update.
func (s *Service) UpdateEntity(ctx context.Context, update apptype.UpdateEntitySpec) (*apptype.Entity, error) {
	return s.store.UpdateEntity(ctx, update)
}

// GetEntity fetches an entity by id.
func (s *Service) GetEntity(ctx context.Context, id int64) (*apptype.Entity, error) {
	return s.store.GetEntity(ctx, id)
}

// GetEntityByName fetches an entity by its unique name.
func (s *Service) GetEntityByName(ctx context.Context, name string) (*apptype.Entity, error) {
	return s.store.GetEntityByName(ctx, name)
}

// QueryEntities lists entities matching the filter.
func (s *Service) QueryEntities(ctx context.Context, filter apptype.EntityFilter) ([]apptype.Entity, error) {
	return s.store.QueryEntities(ctx, filter)
}

// DeleteEntity removes an entity with its relations and resource links.
func (s *Service) DeleteEntity(ctx context.Context, id int64) error {
	return s.store.DeleteEntity(ctx, id)
}

// CreateRelation opens a validity window, superseding any open window for
// the same key.
func (s *Service) CreateRelation(ctx context.Context, spec apptype.CreateRelationSpec) (*apptype.Relation, error) {
	return s.store.CreateRelation(ctx, spec)
}

// CloseRelation ends an open relation's validity window.
func (s *Service) CloseRelation(ctx context.Context, relationID int64, validUntil time.Time) (*apptype.Relation, error) {
	return s.store.CloseRelation(ctx, relationID, validUntil)
}

// QueryRelations lists relations touching an entity, optionally at a point
// in time.
func (s *Service) QueryRelations(ctx context.Context, entityID int64, atTime *time.Time) ([]apptype.Relation, error) {
	return s.store.QueryRelations(ctx, entityID, atTime)
}

// RelationHistory lists every validity window recorded for a relation key.
func (s *Service) RelationHistory(ctx context.Context, from, to int64, relationType string) ([]apptype.Relation, error) {
	return s.store.RelationHistory(ctx, from, to, relationType)
}

// SearchText performs text search over names, types and context sources.
func (s *Service) SearchText(ctx context.Context, query string, limit int) (*apptype.GraphResult, error) {
	return s.store.SearchNodes(ctx, query, limit)
}

// ReadGraph returns recent entities and relations with limit.
func (s *Service) ReadGraph(ctx context.Context, limit int) (*apptype.GraphResult, error) {
	return s.store.ReadGraph(ctx, limit)
}

// Neighbors fetches the 1-hop neighborhood of an entity.
func (s *Service) Neighbors(ctx context.Context, entityID int64, direction string, atTime *time.Time) (*apptype.GraphResult, error) {
	return s.store.Neighbors(ctx, entityID, direction, atTime)
}

// CreateCategory creates a knowledge category.
func (s *Service) CreateCategory(ctx context.Context, name string, priority, retentionDays int) (*apptype.KnowledgeCategory, error) {
	return s.store.CreateCategory(ctx, name, priority, retentionDays)
}

// ListCategories lists categories, highest priority first.
func (s *Service) ListCategories(ctx context.Context) ([]apptype.KnowledgeCategory, error) {
	return s.store.ListCategories(ctx)
}

// SweepExpired enforces a category's retention policy.
func (s *Service) SweepExpired(ctx context.Context, categoryID int64) (int64, error) {
	return s.store.SweepExpired(ctx, categoryID)
}

// UpsertCloudResource links cloud resource metadata to an entity.
func (s *Service) UpsertCloudResource(ctx context.Context, resource apptype.CloudResource) (*apptype.CloudResource, error) {
	return s.store.UpsertCloudResource(ctx, resource)
}

// QueryCloudResources lists resources matching the filter.
func (s *Service) QueryCloudResources(ctx context.Context, filter apptype.ResourceFilter) ([]apptype.CloudResource, error) {
	return s.store.QueryCloudResources(ctx, filter)
}

// RunBatch applies write operations atomically.
func (s *Service) RunBatch(ctx context.Context, ops []apptype.BatchOp) (string, []apptype.BatchResult, error) {
	return s.store.RunBatch(ctx, ops)
}

// Maintain runs retention sweeps and engine housekeeping.
func (s *Service) Maintain(ctx context.Context) error {
	return s.store.Maintain(ctx)
}
