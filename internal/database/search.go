package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/graphein-ai/mcp-temporal-memory-go/internal/apptype"
	"github.com/graphein-ai/mcp-temporal-memory-go/internal/metrics"
)

// escapeLike neutralizes LIKE metacharacters in user input so a search for
// "100%" matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// SearchNodes finds entities whose name, type, or context source contains the
// query text, along with the currently open relations among the matches.
// Empty queries are rejected rather than returning the whole graph.
func (s *Store) SearchNodes(ctx context.Context, query string, limit int) (*apptype.GraphResult, error) {
	done := metrics.TimeOp("db_search_nodes")
	success := false
	defer func() { done(success) }()

	if strings.TrimSpace(query) == "" {
		return nil, newValidationError("query", "must be a non-empty string")
	}
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(query) + "%"

	searchSQL := selectEntitySQL + ` WHERE (name LIKE ? ESCAPE '\'
        OR entity_type LIKE ? ESCAPE '\'
        OR context_source LIKE ? ESCAPE '\')
        ORDER BY confidence_score DESC, id ASC LIMIT ?`
	args := []any{pattern, pattern, pattern, limit}

	fp := fingerprint(searchSQL, args...)
	if cached, ok := s.results.get("search_nodes", fp); ok {
		success = true
		return cached.(*apptype.GraphResult), nil
	}
	snap := s.results.snapshot(tableEntities, tableRelations)

	var result apptype.GraphResult
	err := s.withConn(ctx, func(ctx context.Context, pc *pooledConn) error {
		stmt, err := pc.stmts.get(ctx, pc.conn, searchSQL)
		if err != nil {
			return err
		}
		rows, err := stmt.QueryContext(ctx, args...)
		if err != nil {
			return newStorageError("search_nodes", err)
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanEntity(rows)
			if err != nil {
				return newStorageError("search_nodes", err)
			}
			result.Entities = append(result.Entities, *e)
		}
		if err := rows.Err(); err != nil {
			return newStorageError("search_nodes", err)
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

	// A search touches both tables, so a write to either evicts it.
	s.results.put(fp, &result, snap, tableEntities, tableRelations)
	success = true
	return &result, nil
}

// openRelationsAmong returns open relations whose endpoints are both inside
// the id set. The IN lists are built per-call, so the statement goes through
// the cache keyed by placeholder count.
func openRelationsAmong(ctx context.Context, pc *pooledConn, ids []int64) ([]apptype.Relation, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := fmt.Sprintf(selectRelationSQL+` WHERE valid_until IS NULL
        AND from_entity IN (%s) AND to_entity IN (%s)
        ORDER BY valid_from ASC, id ASC`, placeholders, placeholders)
	args := make([]any, 0, len(ids)*2)
	for _, id := range ids {
		args = append(args, id)
	}
	for _, id := range ids {
		args = append(args, id)
	}

	stmt, err := pc.stmts.get(ctx, pc.conn, query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, newStorageError("search_nodes", err)
	}
	defer rows.Close()
	var relations []apptype.Relation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, newStorageError("search_nodes", err)
		}
		relations = append(relations, *r)
	}
	return relations, rows.Err()
}
