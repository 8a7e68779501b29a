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

// CreateCategory registers a retention/priority policy bucket.
func (s *Store) CreateCategory(ctx context.Context, name string, priority, retentionDays int) (*apptype.KnowledgeCategory, error) {
	done := metrics.TimeOp("db_create_category")
	success := false
	defer func() { done(success) }()

	if strings.TrimSpace(name) == "" {
		return nil, newValidationError("name", "must be a non-empty string")
	}
	if priority < 1 || priority > 5 {
		return nil, newValidationError("priority", fmt.Sprintf("must be within [1, 5], got %d", priority))
	}
	if retentionDays < 0 {
		return nil, newValidationError("retention_period", "must be >= 0 days")
	}

	var category *apptype.KnowledgeCategory
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO knowledge_categories (name, priority, retention_period) VALUES (?, ?, ?)",
			name, priority, retentionDays)
		if err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Reason: "category name already exists: " + name}
			}
			return newStorageError("create_category", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return newStorageError("create_category", err)
		}
		category = &apptype.KnowledgeCategory{
			ID:              id,
			Name:            name,
			Priority:        priority,
			RetentionPeriod: retentionDays,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.results.invalidateTables(tableCategories)
	success = true
	return category, nil
}

// ListCategories returns all policy buckets ordered by priority, highest
// first.
func (s *Store) ListCategories(ctx context.Context) ([]apptype.KnowledgeCategory, error) {
	query := `SELECT id, name, priority, retention_period
        FROM knowledge_categories ORDER BY priority DESC, name ASC`

	fp := fingerprint(query)
	if cached, ok := s.results.get("list_categories", fp); ok {
		return cached.([]apptype.KnowledgeCategory), nil
	}
	snap := s.results.snapshot(tableCategories)

	var categories []apptype.KnowledgeCategory
	err := s.withConn(ctx, func(ctx context.Context, pc *pooledConn) error {
		stmt, err := pc.stmts.get(ctx, pc.conn, query)
		if err != nil {
			return err
		}
		rows, err := stmt.QueryContext(ctx)
		if err != nil {
			return newStorageError("list_categories", err)
		}
		defer rows.Close()
		for rows.Next() {
			var c apptype.KnowledgeCategory
			if err := rows.Scan(&c.ID, &c.Name, &c.Priority, &c.RetentionPeriod); err != nil {
				return newStorageError("list_categories", err)
			}
			categories = append(categories, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	s.results.put(fp, categories, snap, tableCategories)
	return categories, nil
}

// SweepExpired purges every entity of the category whose age exceeds the
// category's retention period, cascading to relations and cloud resource
// links, all in one transaction. Returns the number of purged entities.
func (s *Store) SweepExpired(ctx context.Context, categoryID int64) (int64, error) {
	done := metrics.TimeOp("db_sweep_expired")
	success := false
	defer func() { done(success) }()

	var purged int64
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var retentionDays int
		err := tx.QueryRowContext(ctx,
			"SELECT retention_period FROM knowledge_categories WHERE id = ?", categoryID).
			Scan(&retentionDays)
		if err == sql.ErrNoRows {
			return newNotFoundError("category", categoryID)
		}
		if err != nil {
			return newStorageError("sweep_expired", err)
		}
		if retentionDays <= 0 {
			// Retention 0 means keep forever; nothing to purge.
			return nil
		}

		cutoff := toNanos(time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour))
		rows, err := tx.QueryContext(ctx,
			"SELECT id FROM entities WHERE category_id = ? AND created_at < ?",
			categoryID, cutoff)
		if err != nil {
			return newStorageError("sweep_expired", err)
		}
		var expired []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return newStorageError("sweep_expired", err)
			}
			expired = append(expired, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return newStorageError("sweep_expired", err)
		}

		for _, id := range expired {
			if err := deleteEntityTx(ctx, tx, id); err != nil {
				return err
			}
		}
		purged = int64(len(expired))
		return nil
	})
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.results.invalidateTables(tableEntities, tableRelations, tableCloudResources)
	}
	success = true
	return purged, nil
}
