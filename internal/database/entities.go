package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/graphein-ai/mcp-temporal-memory-go/internal/apptype"
	"github.com/graphein-ai/mcp-temporal-memory-go/internal/metrics"
)

func validateConfidence(score float64) error {
	if score < 0.0 || score > 1.0 {
		return newValidationError("confidence_score", fmt.Sprintf("must be within [0.0, 1.0], got %g", score))
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateEntity records a new fact. Duplicate names are a ConflictError;
// confidence outside [0,1] is rejected before anything touches the database.
func (s *Store) CreateEntity(ctx context.Context, spec apptype.CreateEntitySpec) (*apptype.Entity, error) {
	done := metrics.TimeOp("db_create_entity")
	success := false
	defer func() { done(success) }()

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

	var entity *apptype.Entity
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var txErr error
		entity, txErr = insertEntity(ctx, tx, spec)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	s.results.invalidateTables(tableEntities)
	success = true
	return entity, nil
}

func insertEntity(ctx context.Context, tx *sql.Tx, spec apptype.CreateEntitySpec) (*apptype.Entity, error) {
	now := time.Now()
	res, err := tx.ExecContext(ctx, `
        INSERT INTO entities (name, entity_type, created_at, last_updated,
            confidence_score, context_source, metadata, category_id)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		spec.Name, spec.EntityType, toNanos(now), toNanos(now),
		spec.ConfidenceScore, nullableString(spec.ContextSource),
		nullableJSON(spec.Metadata), nullableID(spec.CategoryID))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Reason: fmt.Sprintf("entity name already exists: %s", spec.Name)}
		}
		return nil, newStorageError("create_entity", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, newStorageError("create_entity", err)
	}
	return &apptype.Entity{
		ID:              id,
		Name:            spec.Name,
		EntityType:      spec.EntityType,
		CreatedAt:       fromNanos(toNanos(now)),
		LastUpdated:     fromNanos(toNanos(now)),
		ConfidenceScore: spec.ConfidenceScore,
		ContextSource:   spec.ContextSource,
		Metadata:        spec.Metadata,
		CategoryID:      spec.CategoryID,
	}, nil
}

// UpdateEntity applies a partial update, bumping last_updated. Reinforcement
// and contradiction both land here as confidence mutations.
func (s *Store) UpdateEntity(ctx context.Context, update apptype.UpdateEntitySpec) (*apptype.Entity, error) {
	done := metrics.TimeOp("db_update_entity")
	success := false
	defer func() { done(success) }()

	if update.ConfidenceScore != nil {
		if err := validateConfidence(*update.ConfidenceScore); err != nil {
			return nil, err
		}
	}
	if update.EntityType != nil && strings.TrimSpace(*update.EntityType) == "" {
		return nil, newValidationError("entity_type", "must be a non-empty string")
	}
	if len(update.Metadata) > 0 && !json.Valid(update.Metadata) {
		return nil, newValidationError("metadata", "must be valid JSON")
	}

	var entity *apptype.Entity
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var txErr error
		entity, txErr = applyEntityUpdate(ctx, tx, update)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	s.results.invalidateTables(tableEntities)
	success = true
	return entity, nil
}

func applyEntityUpdate(ctx context.Context, tx *sql.Tx, update apptype.UpdateEntitySpec) (*apptype.Entity, error) {
	sets := []string{"last_updated = ?"}
	args := []any{toNanos(time.Now())}
	if update.EntityType != nil {
		sets = append(sets, "entity_type = ?")
		args = append(args, *update.EntityType)
	}
	if update.ConfidenceScore != nil {
		sets = append(sets, "confidence_score = ?")
		args = append(args, *update.ConfidenceScore)
	}
	if update.ContextSource != nil {
		sets = append(sets, "context_source = ?")
		args = append(args, *update.ContextSource)
	}
	if len(update.Metadata) > 0 {
		sets = append(sets, "metadata = ?")
		args = append(args, string(update.Metadata))
	}
	if update.CategoryID != nil {
		sets = append(sets, "category_id = ?")
		args = append(args, *update.CategoryID)
	}
	args = append(args, update.ID)

	res, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE entities SET %s WHERE id = ?", strings.Join(sets, ", ")), args...)
	if err != nil {
		return nil, newStorageError("update_entity", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, newStorageError("update_entity", err)
	}
	if affected == 0 {
		return nil, newNotFoundError("entity", update.ID)
	}
	return fetchEntityTx(ctx, tx, update.ID)
}

func fetchEntityTx(ctx context.Context, tx *sql.Tx, id int64) (*apptype.Entity, error) {
	row := tx.QueryRowContext(ctx, selectEntitySQL+" WHERE id = ?", id)
	entity, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, newNotFoundError("entity", id)
	}
	return entity, err
}

const selectEntitySQL = `
    SELECT id, name, entity_type, created_at, last_updated,
           confidence_score, context_source, metadata, category_id
    FROM entities`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*apptype.Entity, error) {
	var e apptype.Entity
	var createdAt, lastUpdated int64
	var contextSource, metadata sql.NullString
	var categoryID sql.NullInt64
	if err := row.Scan(&e.ID, &e.Name, &e.EntityType, &createdAt, &lastUpdated,
		&e.ConfidenceScore, &contextSource, &metadata, &categoryID); err != nil {
		return nil, err
	}
	e.CreatedAt = fromNanos(createdAt)
	e.LastUpdated = fromNanos(lastUpdated)
	e.ContextSource = contextSource.String
	if metadata.Valid {
		e.Metadata = json.RawMessage(metadata.String)
	}
	if categoryID.Valid {
		id := categoryID.Int64
		e.CategoryID = &id
	}
	return &e, nil
}

// GetEntity retrieves a single entity by id.
func (s *Store) GetEntity(ctx context.Context, id int64) (*apptype.Entity, error) {
	var entity *apptype.Entity
	err := s.withConn(ctx, func(ctx context.Context, pc *pooledConn) error {
		stmt, err := pc.stmts.get(ctx, pc.conn, selectEntitySQL+" WHERE id = ?")
		if err != nil {
			return err
		}
		row := stmt.QueryRowContext(ctx, id)
		entity, err = scanEntity(row)
		if err == sql.ErrNoRows {
			return newNotFoundError("entity", id)
		}
		if err != nil {
			return newStorageError("get_entity", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// GetEntityByName retrieves a single entity by its unique name.
func (s *Store) GetEntityByName(ctx context.Context, name string) (*apptype.Entity, error) {
	var entity *apptype.Entity
	err := s.withConn(ctx, func(ctx context.Context, pc *pooledConn) error {
		stmt, err := pc.stmts.get(ctx, pc.conn, selectEntitySQL+" WHERE name = ?")
		if err != nil {
			return err
		}
		row := stmt.QueryRowContext(ctx, name)
		entity, err = scanEntity(row)
		if err == sql.ErrNoRows {
			return newNotFoundError("entity", name)
		}
		if err != nil {
			return newStorageError("get_entity_by_name", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// QueryEntities returns entities matching the filter, newest first. Results
// are cached by (query, parameters) fingerprint until a write to entities
// invalidates them.
func (s *Store) QueryEntities(ctx context.Context, filter apptype.EntityFilter) ([]apptype.Entity, error) {
	done := metrics.TimeOp("db_query_entities")
	success := false
	defer func() { done(success) }()

	if filter.MinConfidence != nil {
		if err := validateConfidence(*filter.MinConfidence); err != nil {
			return nil, err
		}
	}

	query := selectEntitySQL + " WHERE 1=1"
	var args []any
	if filter.EntityType != nil {
		query += " AND entity_type = ?"
		args = append(args, *filter.EntityType)
	}
	if filter.MinConfidence != nil {
		query += " AND confidence_score >= ?"
		args = append(args, *filter.MinConfidence)
	}
	if filter.CategoryID != nil {
		query += " AND category_id = ?"
		args = append(args, *filter.CategoryID)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	fp := fingerprint(query, args...)
	if cached, ok := s.results.get("query_entities", fp); ok {
		success = true
		return cached.([]apptype.Entity), nil
	}
	snap := s.results.snapshot(tableEntities)

	var entities []apptype.Entity
	err := s.withConn(ctx, func(ctx context.Context, pc *pooledConn) error {
		stmt, err := pc.stmts.get(ctx, pc.conn, query)
		if err != nil {
			return err
		}
		rows, err := stmt.QueryContext(ctx, args...)
		if err != nil {
			return newStorageError("query_entities", err)
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanEntity(rows)
			if err != nil {
				return newStorageError("query_entities", err)
			}
			entities = append(entities, *e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	s.results.put(fp, entities, snap, tableEntities)
	success = true
	return entities, nil
}

// DeleteEntity removes an entity and cascades to its relations and cloud
// resource links in one transaction. Dangling references are never left
// behind.
func (s *Store) DeleteEntity(ctx context.Context, id int64) error {
	done := metrics.TimeOp("db_delete_entity")
	success := false
	defer func() { done(success) }()

	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return deleteEntityTx(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	s.results.invalidateTables(tableEntities, tableRelations, tableCloudResources)
	success = true
	return nil
}

func deleteEntityTx(ctx context.Context, tx *sql.Tx, id int64) error {
	var name string
	err := tx.QueryRowContext(ctx, "SELECT name FROM entities WHERE id = ?", id).Scan(&name)
	if err == sql.ErrNoRows {
		return newNotFoundError("entity", id)
	}
	if err != nil {
		return newStorageError("delete_entity", err)
	}

	// Explicit cascade rather than trusting PRAGMA state on every handle.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM relations WHERE from_entity = ? OR to_entity = ?", id, id); err != nil {
		return newStorageError("delete_entity", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM cloud_resources WHERE entity_name = ?", name); err != nil {
		return newStorageError("delete_entity", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE id = ?", id); err != nil {
		return newStorageError("delete_entity", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
