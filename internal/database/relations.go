package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/graphein-ai/mcp-temporal-memory-go/internal/apptype"
	"github.com/graphein-ai/mcp-temporal-memory-go/internal/metrics"
)

const selectRelationSQL = `
    SELECT id, from_entity, to_entity, relation_type, created_at,
           valid_from, valid_until, confidence_score, context_source
    FROM relations`

func scanRelation(row rowScanner) (*apptype.Relation, error) {
	var r apptype.Relation
	var createdAt, validFrom int64
	var validUntil sql.NullInt64
	var contextSource sql.NullString
	if err := row.Scan(&r.ID, &r.FromEntity, &r.ToEntity, &r.RelationType,
		&createdAt, &validFrom, &validUntil, &r.ConfidenceScore, &contextSource); err != nil {
		return nil, err
	}
	r.CreatedAt = fromNanos(createdAt)
	r.ValidFrom = fromNanos(validFrom)
	if validUntil.Valid {
		t := fromNanos(validUntil.Int64)
		r.ValidUntil = &t
	}
	r.ContextSource = contextSource.String
	return &r, nil
}

// CreateRelation opens a new relation. If an open relation with the same
// (from, to, type) exists it is closed at the new window's start inside the
// same transaction; history is append-only, the old row is never deleted.
// The partial unique index on open relations serializes concurrent writers
// on the same key: the loser retries and closes the winner's row.
func (s *Store) CreateRelation(ctx context.Context, spec apptype.CreateRelationSpec) (*apptype.Relation, error) {
	done := metrics.TimeOp("db_create_relation")
	success := false
	defer func() { done(success) }()

	if strings.TrimSpace(spec.RelationType) == "" {
		return nil, newValidationError("relation_type", "must be a non-empty string")
	}
	if err := validateConfidence(spec.ConfidenceScore); err != nil {
		return nil, err
	}
	if spec.ValidFrom.IsZero() {
		spec.ValidFrom = time.Now()
	}

	var relation *apptype.Relation
	var err error
	// Bounded retries on the open-key unique index; each retry closes the
	// row the winning writer left open.
	for attempt := 0; attempt < 3; attempt++ {
		err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			var txErr error
			relation, txErr = insertRelation(ctx, tx, spec)
			return txErr
		})
		if err == nil || !isUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Reason: fmt.Sprintf(
				"open relation already exists for (%d -> %d, %s)",
				spec.FromEntity, spec.ToEntity, spec.RelationType)}
		}
		return nil, err
	}
	s.results.invalidateTables(tableRelations)
	success = true
	return relation, nil
}

func insertRelation(ctx context.Context, tx *sql.Tx, spec apptype.CreateRelationSpec) (*apptype.Relation, error) {
	for _, endpoint := range []int64{spec.FromEntity, spec.ToEntity} {
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM entities WHERE id = ?", endpoint).Scan(&one)
		if err == sql.ErrNoRows {
			return nil, newValidationError("endpoint", fmt.Sprintf("entity %d does not exist", endpoint))
		}
		if err != nil {
			return nil, newStorageError("create_relation", err)
		}
	}

	// Close the prior open window at the instant the new one begins.
	prior := tx.QueryRowContext(ctx, selectRelationSQL+`
        WHERE from_entity = ? AND to_entity = ? AND relation_type = ? AND valid_until IS NULL`,
		spec.FromEntity, spec.ToEntity, spec.RelationType)
	existing, err := scanRelation(prior)
	switch {
	case err == sql.ErrNoRows:
		// Nothing open; first observation of this fact.
	case err != nil:
		return nil, newStorageError("create_relation", err)
	default:
		if spec.ValidFrom.Before(existing.ValidFrom) {
			return nil, newValidationError("valid_from", fmt.Sprintf(
				"new window starts %s, before the open relation's valid_from %s",
				spec.ValidFrom.UTC().Format(time.RFC3339Nano),
				existing.ValidFrom.Format(time.RFC3339Nano)))
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE relations SET valid_until = ? WHERE id = ? AND valid_until IS NULL",
			toNanos(spec.ValidFrom), existing.ID); err != nil {
			return nil, newStorageError("create_relation", err)
		}
	}

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
        INSERT INTO relations (from_entity, to_entity, relation_type, created_at,
            valid_from, valid_until, confidence_score, context_source)
        VALUES (?, ?, ?, ?, ?, NULL, ?, ?)`,
		spec.FromEntity, spec.ToEntity, spec.RelationType, toNanos(now),
		toNanos(spec.ValidFrom), spec.ConfidenceScore, nullableString(spec.ContextSource))
	if err != nil {
		return nil, err // unique violation handled by the caller's retry loop
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, newStorageError("create_relation", err)
	}
	return &apptype.Relation{
		ID:              id,
		FromEntity:      spec.FromEntity,
		ToEntity:        spec.ToEntity,
		RelationType:    spec.RelationType,
		CreatedAt:       fromNanos(toNanos(now)),
		ValidFrom:       fromNanos(toNanos(spec.ValidFrom)),
		ConfidenceScore: spec.ConfidenceScore,
		ContextSource:   spec.ContextSource,
	}, nil
}

// CloseRelation ends an open relation's validity window.
func (s *Store) CloseRelation(ctx context.Context, relationID int64, validUntil time.Time) (*apptype.Relation, error) {
	done := metrics.TimeOp("db_close_relation")
	success := false
	defer func() { done(success) }()

	if validUntil.IsZero() {
		validUntil = time.Now()
	}

	var relation *apptype.Relation
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var txErr error
		relation, txErr = closeRelationTx(ctx, tx, relationID, validUntil)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	s.results.invalidateTables(tableRelations)
	success = true
	return relation, nil
}

func closeRelationTx(ctx context.Context, tx *sql.Tx, relationID int64, validUntil time.Time) (*apptype.Relation, error) {
	row := tx.QueryRowContext(ctx, selectRelationSQL+" WHERE id = ?", relationID)
	existing, err := scanRelation(row)
	if err == sql.ErrNoRows {
		return nil, newNotFoundError("relation", relationID)
	}
	if err != nil {
		return nil, newStorageError("close_relation", err)
	}
	if existing.ValidUntil != nil {
		return nil, &InvalidStateError{Reason: fmt.Sprintf("relation %d is already closed", relationID)}
	}
	if validUntil.Before(existing.ValidFrom) {
		return nil, newValidationError("valid_until", "must not precede valid_from")
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE relations SET valid_until = ? WHERE id = ?",
		toNanos(validUntil), relationID); err != nil {
		return nil, newStorageError("close_relation", err)
	}
	until := fromNanos(toNanos(validUntil))
	existing.ValidUntil = &until
	return existing, nil
}

// QueryRelations returns relations touching the entity. When atTime is set,
// only relations whose validity window contains it are returned; both window
// boundaries are inclusive and a null valid_until is an unbounded future.
func (s *Store) QueryRelations(ctx context.Context, entityID int64, atTime *time.Time) ([]apptype.Relation, error) {
	done := metrics.TimeOp("db_query_relations")
	success := false
	defer func() { done(success) }()

	query := selectRelationSQL + " WHERE (from_entity = ? OR to_entity = ?)"
	args := []any{entityID, entityID}
	if atTime != nil {
		query += " AND valid_from <= ? AND (valid_until IS NULL OR ? <= valid_until)"
		t := toNanos(*atTime)
		args = append(args, t, t)
	}
	query += " ORDER BY valid_from ASC, id ASC"

	fp := fingerprint(query, args...)
	if cached, ok := s.results.get("query_relations", fp); ok {
		success = true
		return cached.([]apptype.Relation), nil
	}
	snap := s.results.snapshot(tableRelations)

	relations, err := s.queryRelationRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	s.results.put(fp, relations, snap, tableRelations)
	success = true
	return relations, nil
}

// RelationHistory returns every validity window ever recorded for a key,
// oldest first. Relations are append-only, so this is the full audit trail
// of the fact.
func (s *Store) RelationHistory(ctx context.Context, fromEntity, toEntity int64, relationType string) ([]apptype.Relation, error) {
	query := selectRelationSQL + `
        WHERE from_entity = ? AND to_entity = ? AND relation_type = ?
        ORDER BY valid_from ASC, id ASC`
	args := []any{fromEntity, toEntity, relationType}

	fp := fingerprint(query, args...)
	if cached, ok := s.results.get("relation_history", fp); ok {
		return cached.([]apptype.Relation), nil
	}
	snap := s.results.snapshot(tableRelations)
	relations, err := s.queryRelationRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	s.results.put(fp, relations, snap, tableRelations)
	return relations, nil
}

func (s *Store) queryRelationRows(ctx context.Context, query string, args ...any) ([]apptype.Relation, error) {
	var relations []apptype.Relation
	err := s.withConn(ctx, func(ctx context.Context, pc *pooledConn) error {
		stmt, err := pc.stmts.get(ctx, pc.conn, query)
		if err != nil {
			return err
		}
		rows, err := stmt.QueryContext(ctx, args...)
		if err != nil {
			return newStorageError("query_relations", err)
		}
		defer rows.Close()
		for rows.Next() {
			r, err := scanRelation(rows)
			if err != nil {
				return newStorageError("query_relations", err)
			}
			relations = append(relations, *r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return relations, nil
}
