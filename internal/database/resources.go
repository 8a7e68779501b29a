package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/graphein-ai/mcp-temporal-memory-go/internal/apptype"
	"github.com/graphein-ai/mcp-temporal-memory-go/internal/metrics"
)

// UpsertCloudResource stores infrastructure metadata linked to an existing
// entity. The core treats the metadata blob as opaque; ingestion pipelines
// (Terraform/Ansible parsers, cloud SDKs) live upstream. A missing
// resource_id is generated.
func (s *Store) UpsertCloudResource(ctx context.Context, resource apptype.CloudResource) (*apptype.CloudResource, error) {
	done := metrics.TimeOp("db_upsert_cloud_resource")
	success := false
	defer func() { done(success) }()

	if strings.TrimSpace(resource.ResourceType) == "" {
		return nil, newValidationError("resource_type", "must be a non-empty string")
	}
	if strings.TrimSpace(resource.EntityName) == "" {
		return nil, newValidationError("entity_name", "must reference an entity")
	}
	if len(resource.Metadata) > 0 && !json.Valid(resource.Metadata) {
		return nil, newValidationError("metadata", "must be valid JSON")
	}
	if resource.ResourceID == "" {
		resource.ResourceID = uuid.NewString()
	}

	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return upsertCloudResourceTx(ctx, tx, &resource)
	})
	if err != nil {
		return nil, err
	}
	s.results.invalidateTables(tableCloudResources)
	success = true
	return &resource, nil
}

func upsertCloudResourceTx(ctx context.Context, tx *sql.Tx, resource *apptype.CloudResource) error {
	var one int
	err := tx.QueryRowContext(ctx,
		"SELECT 1 FROM entities WHERE name = ?", resource.EntityName).Scan(&one)
	if err == sql.ErrNoRows {
		return newValidationError("entity_name", "entity does not exist: "+resource.EntityName)
	}
	if err != nil {
		return newStorageError("upsert_cloud_resource", err)
	}

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
        UPDATE cloud_resources
        SET resource_type = ?, region = ?, account_id = ?, metadata = ?,
            entity_name = ?, last_updated = ?
        WHERE resource_id = ?`,
		resource.ResourceType, nullableString(resource.Region),
		nullableString(resource.AccountID), nullableJSON(resource.Metadata),
		resource.EntityName, toNanos(now), resource.ResourceID)
	if err != nil {
		return newStorageError("upsert_cloud_resource", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return newStorageError("upsert_cloud_resource", err)
	}
	if affected > 0 {
		resource.LastUpdated = fromNanos(toNanos(now))
		return nil
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO cloud_resources (resource_id, resource_type, region,
            account_id, metadata, entity_name, created_at, last_updated)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		resource.ResourceID, resource.ResourceType, nullableString(resource.Region),
		nullableString(resource.AccountID), nullableJSON(resource.Metadata),
		resource.EntityName, toNanos(now), toNanos(now))
	if err != nil {
		return newStorageError("upsert_cloud_resource", err)
	}
	resource.CreatedAt = fromNanos(toNanos(now))
	resource.LastUpdated = fromNanos(toNanos(now))
	return nil
}

// QueryCloudResources returns resources matching the filter, cache-eligible.
func (s *Store) QueryCloudResources(ctx context.Context, filter apptype.ResourceFilter) ([]apptype.CloudResource, error) {
	done := metrics.TimeOp("db_query_cloud_resources")
	success := false
	defer func() { done(success) }()

	query := `SELECT resource_id, resource_type, region, account_id, metadata,
        entity_name, created_at, last_updated FROM cloud_resources WHERE 1=1`
	var args []any
	if filter.ResourceType != nil {
		query += " AND resource_type = ?"
		args = append(args, *filter.ResourceType)
	}
	if filter.Region != nil {
		query += " AND region = ?"
		args = append(args, *filter.Region)
	}
	query += " ORDER BY resource_id"

	fp := fingerprint(query, args...)
	if cached, ok := s.results.get("query_cloud_resources", fp); ok {
		success = true
		return cached.([]apptype.CloudResource), nil
	}
	snap := s.results.snapshot(tableCloudResources)

	var resources []apptype.CloudResource
	err := s.withConn(ctx, func(ctx context.Context, pc *pooledConn) error {
		stmt, err := pc.stmts.get(ctx, pc.conn, query)
		if err != nil {
			return err
		}
		rows, err := stmt.QueryContext(ctx, args...)
		if err != nil {
			return newStorageError("query_cloud_resources", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r apptype.CloudResource
			var region, accountID, metadata sql.NullString
			var createdAt, lastUpdated int64
			if err := rows.Scan(&r.ResourceID, &r.ResourceType, &region, &accountID,
				&metadata, &r.EntityName, &createdAt, &lastUpdated); err != nil {
				return newStorageError("query_cloud_resources", err)
			}
			r.Region = region.String
			r.AccountID = accountID.String
			if metadata.Valid {
				r.Metadata = json.RawMessage(metadata.String)
			}
			r.CreatedAt = fromNanos(createdAt)
			r.LastUpdated = fromNanos(lastUpdated)
			resources = append(resources, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	s.results.put(fp, resources, snap, tableCloudResources)
	success = true
	return resources, nil
}
