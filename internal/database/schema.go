package database

// Timestamps are stored as INTEGER unix nanoseconds (UTC). Validity-window
// comparisons must be exact at boundaries, which integer comparison gives us
// for free; text datetime formats do not survive lexicographic comparison
// once fractional seconds vary in width.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS knowledge_categories (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT UNIQUE NOT NULL,
        priority INTEGER NOT NULL CHECK (priority >= 1 AND priority <= 5),
        retention_period INTEGER NOT NULL DEFAULT 0 CHECK (retention_period >= 0)
    )`,

	`CREATE TABLE IF NOT EXISTS entities (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT UNIQUE NOT NULL,
        entity_type TEXT NOT NULL,
        created_at INTEGER NOT NULL,
        last_updated INTEGER NOT NULL,
        confidence_score REAL NOT NULL DEFAULT 1.0
            CHECK (confidence_score >= 0.0 AND confidence_score <= 1.0),
        context_source TEXT,
        metadata TEXT,
        category_id INTEGER,
        FOREIGN KEY (category_id) REFERENCES knowledge_categories(id)
    )`,

	`CREATE TABLE IF NOT EXISTS relations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        from_entity INTEGER NOT NULL,
        to_entity INTEGER NOT NULL,
        relation_type TEXT NOT NULL,
        created_at INTEGER NOT NULL,
        valid_from INTEGER NOT NULL,
        valid_until INTEGER,
        confidence_score REAL NOT NULL DEFAULT 1.0
            CHECK (confidence_score >= 0.0 AND confidence_score <= 1.0),
        context_source TEXT,
        CHECK (valid_until IS NULL OR valid_from <= valid_until),
        FOREIGN KEY (from_entity) REFERENCES entities(id) ON DELETE CASCADE,
        FOREIGN KEY (to_entity) REFERENCES entities(id) ON DELETE CASCADE
    )`,

	`CREATE TABLE IF NOT EXISTS cloud_resources (
        resource_id TEXT PRIMARY KEY,
        resource_type TEXT NOT NULL,
        region TEXT,
        account_id TEXT,
        metadata TEXT,
        entity_name TEXT NOT NULL,
        created_at INTEGER NOT NULL,
        last_updated INTEGER NOT NULL,
        FOREIGN KEY (entity_name) REFERENCES entities(name) ON DELETE CASCADE
    )`,

	// Compound indices backing the query_entities / query_relations shapes
	`CREATE INDEX IF NOT EXISTS idx_entities_type_created ON entities(entity_type, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_type_confidence ON entities(entity_type, confidence_score)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_category ON entities(category_id)`,
	`CREATE INDEX IF NOT EXISTS idx_relations_from_type ON relations(from_entity, relation_type)`,
	`CREATE INDEX IF NOT EXISTS idx_relations_to ON relations(to_entity)`,
	`CREATE INDEX IF NOT EXISTS idx_cloud_resources_type ON cloud_resources(resource_type)`,
	`CREATE INDEX IF NOT EXISTS idx_cloud_resources_entity ON cloud_resources(entity_name)`,

	// At most one open relation per (from, to, type). Concurrent writers that
	// race past the in-transaction close both hit this index; the loser's
	// transaction fails and the caller sees a ConflictError.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_relations_open_key
        ON relations(from_entity, to_entity, relation_type)
        WHERE valid_until IS NULL`,
}

// Tables written by each mutating operation, used for conservative result
// cache invalidation.
const (
	tableEntities       = "entities"
	tableRelations      = "relations"
	tableCategories     = "knowledge_categories"
	tableCloudResources = "cloud_resources"
)
