package database

import (
	"context"
	"time"

	"github.com/graphein-ai/mcp-temporal-memory-go/internal/apptype"
	"github.com/graphein-ai/mcp-temporal-memory-go/internal/metrics"
)

// ReadGraph returns the most recent entities and the open relations among
// them, a working-set summary for an agent resuming a session.
func (s *Store) ReadGraph(ctx context.Context, limit int) (*apptype.GraphResult, error) {
	done := metrics.TimeOp("db_read_graph")
	success := false
	defer func() { done(success) }()

	if limit <= 0 {
		limit = 100
	}
	query := selectEntitySQL + " ORDER BY created_at DESC, id DESC LIMIT ?"
	args := []any{limit}

	fp := fingerprint(query, args...)
	if cached, ok := s.results.get("read_graph", fp); ok {
		success = true
		return cached.(*apptype.GraphResult), nil
	}
	snap := s.results.snapshot(tableEntities, tableRelations)

	var result apptype.GraphResult
	err := s.withConn(ctx, func(ctx context.Context, pc *pooledConn) error {
		stmt, err := pc.stmts.get(ctx, pc.conn, query)
		if err != nil {
			return err
		}
		rows, err := stmt.QueryContext(ctx, args...)
		if err != nil {
			return newStorageError("read_graph", err)
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanEntity(rows)
			if err != nil {
				return newStorageError("read_graph", err)
			}
			result.Entities = append(result.Entities, *e)
		}
		if err := rows.Err(); err != nil {
			return newStorageError("read_graph", err)
		}
		if len(result.Entities) == 0 {
			return nil
		}
		ids := make([]int64, len(result.Entities))
		for i, e := range result.Entities {
			ids[i] = e.ID
		}
		relations, err := openRelationsAmong(ctx, pc, ids)
		if err != nil {
			return err
		}
		result.Relations = relations
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.results.put(fp, &result, snap, tableEntities, tableRelations)
	success = true
	return &result, nil
}

// Neighbors performs a one-hop traversal from an entity. Direction is "out",
// "in", or "both"; atTime restricts to relations valid at that instant.
func (s *Store) Neighbors(ctx context.Context, entityID int64, direction string, atTime *time.Time) (*apptype.GraphResult, error) {
	done := metrics.TimeOp("db_neighbors")
	success := false
	defer func() { done(success) }()

	var cond string
	switch direction {
	case "out":
		cond = "from_entity = ?"
	case "in":
		cond = "to_entity = ?"
	case "", "both":
		direction = "both"
		cond = "(from_entity = ? OR to_entity = ?)"
	default:
		return nil, newValidationError("direction", "must be one of out, in, both")
	}

	query := selectRelationSQL + " WHERE " + cond
	var args []any
	if direction == "both" {
		args = append(args, entityID, entityID)
	} else {
		args = append(args, entityID)
	}
	if atTime != nil {
		query += " AND valid_from <= ? AND (valid_until IS NULL OR ? <= valid_until)"
		t := toNanos(*atTime)
		args = append(args, t, t)
	}
	query += " ORDER BY valid_from ASC, id ASC"

	fp := fingerprint(query, args...)
	if cached, ok := s.results.get("neighbors", fp); ok {
		success = true
		return cached.(*apptype.GraphResult), nil
	}
	snap := s.results.snapshot(tableEntities, tableRelations)

	var result apptype.GraphResult
	err := s.withConn(ctx, func(ctx context.Context, pc *pooledConn) error {
		stmt, err := pc.stmts.get(ctx, pc.conn, query)
		if err != nil {
			return err
		}
		rows, err := stmt.QueryContext(ctx, args...)
		if err != nil {
			return newStorageError("neighbors", err)
		}
		defer rows.Close()
		for rows.Next() {
			r, err := scanRelation(rows)
			if err != nil {
				return newStorageError("neighbors", err)
			}
			result.Relations = append(result.Relations, *r)
		}
		if err := rows.Err(); err != nil {
			return newStorageError("neighbors", err)
		}

		// Collect the far endpoints plus the origin itself.
		seen := map[int64]bool{entityID: true}
		ids := []int64{entityID}
		for _, r := range result.Relations {
			for _, id := range []int64{r.FromEntity, r.ToEntity} {
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}
		entities, err := entitiesByIDs(ctx, pc, ids)
		if err != nil {
			return err
		}
		result.Entities = entities
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.results.put(fp, &result, snap, tableEntities, tableRelations)
	success = true
	return &result, nil
}

func entitiesByIDs(ctx context.Context, pc *pooledConn, ids []int64) ([]apptype.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id)
	}
	query := selectEntitySQL + " WHERE id IN (" + string(placeholders) + ") ORDER BY id ASC"

	stmt, err := pc.stmts.get(ctx, pc.conn, query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, newStorageError("neighbors", err)
	}
	defer rows.Close()
	var entities []apptype.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, newStorageError("neighbors", err)
		}
		entities = append(entities, *e)
	}
	return entities, rows.Err()
}
