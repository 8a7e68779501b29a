package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/graphein-ai/mcp-temporal-memory-go/internal/apptype"
	"github.com/graphein-ai/mcp-temporal-memory-go/internal/metrics"
)

// RunBatch applies a sequence of write operations atomically: one connection
// lease, one transaction. The first failing operation aborts the whole batch
// and the error names the batch id and the offending index, so callers can
// retry or drop the exact operation.
func (s *Store) RunBatch(ctx context.Context, ops []apptype.BatchOp) (string, []apptype.BatchResult, error) {
	done := metrics.TimeOp("db_run_batch")
	success := false
	defer func() { done(success) }()

	batchID := uuid.NewString()
	if len(ops) == 0 {
		return batchID, nil, newValidationError("operations", "batch must contain at least one operation")
	}

	results := make([]apptype.BatchResult, 0, len(ops))
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for i, op := range ops {
			result, err := applyBatchOp(ctx, tx, op)
			if err != nil {
				return &BatchError{BatchID: batchID, OpIndex: i, Err: err}
			}
			result.Index = i
			result.Kind = op.Kind
			results = append(results, *result)
		}
		return nil
	})
	if err != nil {
		return batchID, nil, err
	}

	// Any batch may have touched any table.
	s.results.invalidateTables(tableEntities, tableRelations, tableCloudResources)
	success = true
	return batchID, results, nil
}

func applyBatchOp(ctx context.Context, tx *sql.Tx, op apptype.BatchOp) (*apptype.BatchResult, error) {
	switch op.Kind {
	case apptype.BatchCreateEntity:
		if op.CreateEntity == nil {
			return nil, newValidationError("createEntity", "payload is required for create_entity")
		}
		spec := *op.CreateEntity
		if strings.TrimSpace(spec.Name) == "" {
			return nil, newValidationError("name", "must be a non-empty string")
		}
		if strings.TrimSpace(spec.EntityType) == "" {
			return nil, newValidationError("entity_type", "must be a non-empty string")
		}
		if err := validateConfidence(spec.ConfidenceScore); err != nil {
			return nil, err
		}
		if len(spec.Metadata) > 0 && !json.Valid(spec.Metadata) {
			return nil, newValidationError("metadata", "must be valid JSON")
		}
		entity, err := insertEntity(ctx, tx, spec)
		if err != nil {
			return nil, err
		}
		return &apptype.BatchResult{Entity: entity}, nil

	case apptype.BatchUpdateEntity:
		if op.UpdateEntity == nil {
			return nil, newValidationError("updateEntity", "payload is required for update_entity")
		}
		update := *op.UpdateEntity
		if update.ConfidenceScore != nil {
			if err := validateConfidence(*update.ConfidenceScore); err != nil {
				return nil, err
			}
		}
		if len(update.Metadata) > 0 && !json.Valid(update.Metadata) {
			return nil, newValidationError("metadata", "must be valid JSON")
		}
		entity, err := applyEntityUpdate(ctx, tx, update)
		if err != nil {
			return nil, err
		}
		return &apptype.BatchResult{Entity: entity}, nil

	case apptype.BatchDeleteEntity:
		if op.DeleteEntityID == 0 {
			return nil, newValidationError("deleteEntityId", "payload is required for delete_entity")
		}
		if err := deleteEntityTx(ctx, tx, op.DeleteEntityID); err != nil {
			return nil, err
		}
		return &apptype.BatchResult{}, nil

	case apptype.BatchCreateRelation:
		if op.CreateRelation == nil {
			return nil, newValidationError("createRelation", "payload is required for create_relation")
		}
		spec := *op.CreateRelation
		if strings.TrimSpace(spec.RelationType) == "" {
			return nil, newValidationError("relation_type", "must be a non-empty string")
		}
		if err := validateConfidence(spec.ConfidenceScore); err != nil {
			return nil, err
		}
		if spec.ValidFrom.IsZero() {
			spec.ValidFrom = time.Now()
		}
		relation, err := insertRelation(ctx, tx, spec)
		if err != nil {
			// No retry inside a batch; surface open-key collisions directly.
			if isUniqueViolation(err) {
				return nil, &ConflictError{Reason: fmt.Sprintf(
					"open relation already exists for (%d -> %d, %s)",
					spec.FromEntity, spec.ToEntity, spec.RelationType)}
			}
			return nil, err
		}
		return &apptype.BatchResult{Relation: relation}, nil

	case apptype.BatchCloseRelation:
		if op.CloseRelation == nil {
			return nil, newValidationError("closeRelation", "payload is required for close_relation")
		}
		until := op.CloseRelation.ValidUntil
		if until.IsZero() {
			until = time.Now()
		}
		relation, err := closeRelationTx(ctx, tx, op.CloseRelation.RelationID, until)
		if err != nil {
			return nil, err
		}
		return &apptype.BatchResult{Relation: relation}, nil

	case apptype.BatchUpsertResource:
		if op.UpsertResource == nil {
			return nil, newValidationError("upsertResource", "payload is required for upsert_cloud_resource")
		}
		resource := *op.UpsertResource
		if strings.TrimSpace(resource.ResourceType) == "" {
			return nil, newValidationError("resource_type", "must be a non-empty string")
		}
		if strings.TrimSpace(resource.EntityName) == "" {
			return nil, newValidationError("entity_name", "must reference an entity")
		}
		if resource.ResourceID == "" {
			resource.ResourceID = uuid.NewString()
		}
		if err := upsertCloudResourceTx(ctx, tx, &resource); err != nil {
			return nil, err
		}
		return &apptype.BatchResult{}, nil

	default:
		return nil, newValidationError("kind", fmt.Sprintf("unknown batch operation: %q", op.Kind))
	}
}
