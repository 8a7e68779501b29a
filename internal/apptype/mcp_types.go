package apptype

import "time"

// CreateEntityArgs represents the arguments for the create_entity tool
type CreateEntityArgs struct {
	Entity CreateEntitySpec `json:"entity" jsonschema:"The entity to create."`
}

// UpdateEntityArgs represents the arguments for the update_entity tool
type UpdateEntityArgs struct {
	Update UpdateEntitySpec `json:"update" jsonschema:"Partial entity update keyed by id."`
}

// DeleteEntityArgs represents the arguments for the delete_entity tool
type DeleteEntityArgs struct {
	ID int64 `json:"id" jsonschema:"The id of the entity to delete."`
}

// CreateRelationArgs represents the arguments for the create_relation tool
type CreateRelationArgs struct {
	Relation CreateRelationSpec `json:"relation" jsonschema:"The relation to open. Any prior open relation with the same endpoints and type is closed atomically."`
}

// CloseRelationArgs represents the arguments for the close_relation tool
type CloseRelationArgs struct {
	RelationID int64      `json:"relationId" jsonschema:"The id of the open relation to close."`
	ValidUntil *time.Time `json:"validUntil,omitempty" jsonschema:"End of the validity window. Defaults to now."`
}

// QueryEntitiesArgs represents the arguments for the query_entities tool
type QueryEntitiesArgs struct {
	Filter EntityFilter `json:"filter,omitempty" jsonschema:"Optional filters on type, minimum confidence and category."`
}

// QueryRelationsArgs represents the arguments for the query_relations tool
type QueryRelationsArgs struct {
	EntityID int64      `json:"entityId" jsonschema:"Entity whose relations to fetch (either endpoint)."`
	AtTime   *time.Time `json:"atTime,omitempty" jsonschema:"When set, only relations whose validity window contains this instant are returned."`
}

// RelationHistoryArgs represents the arguments for the relation_history tool
type RelationHistoryArgs struct {
	FromEntity   int64  `json:"fromEntity"`
	ToEntity     int64  `json:"toEntity"`
	RelationType string `json:"relationType"`
}

// SearchNodesArgs represents the arguments for the search_nodes tool
type SearchNodesArgs struct {
	Query string `json:"query" jsonschema:"Substring matched against entity name, type and context source."`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of entities to return (default 10)."`
}

// ReadGraphArgs represents the arguments for the read_graph tool
type ReadGraphArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of recent entities to return (default 10)."`
}

// NeighborsArgs represents arguments for fetching 1-hop neighbors.
// Direction may be "out", "in", or "both" (default "both").
type NeighborsArgs struct {
	EntityIDs []int64    `json:"entityIds" jsonschema:"Seed entity ids to expand from."`
	Direction string     `json:"direction,omitempty" jsonschema:"Which direction of edges to follow: out|in|both (default both)."`
	AtTime    *time.Time `json:"atTime,omitempty" jsonschema:"When set, only edges valid at this instant are followed."`
}

// CreateCategoryArgs represents the arguments for the create_category tool
type CreateCategoryArgs struct {
	Name            string `json:"name" jsonschema:"Unique category name."`
	Priority        int    `json:"priority" jsonschema:"Priority from 1 (lowest) to 5 (highest)."`
	RetentionPeriod int    `json:"retentionPeriod" jsonschema:"Retention period in days; 0 keeps entities forever."`
}

// ListCategoriesArgs represents the arguments for the list_categories tool
type ListCategoriesArgs struct{}

// SweepExpiredArgs represents the arguments for the sweep_expired tool
type SweepExpiredArgs struct {
	CategoryID int64 `json:"categoryId" jsonschema:"Category whose retention policy to enforce."`
}

// SweepResult reports how many entities a sweep purged.
type SweepResult struct {
	CategoryID int64 `json:"categoryId"`
	Purged     int64 `json:"purged"`
}

// UpsertCloudResourceArgs represents the arguments for the upsert_cloud_resource tool
type UpsertCloudResourceArgs struct {
	Resource CloudResource `json:"resource" jsonschema:"Cloud resource metadata linked to an existing entity by name."`
}

// QueryCloudResourcesArgs represents the arguments for the query_cloud_resources tool
type QueryCloudResourcesArgs struct {
	Filter ResourceFilter `json:"filter,omitempty" jsonschema:"Optional filters on resource type and region."`
}

// CloudResourcesResult wraps cloud resource rows for structured output.
type CloudResourcesResult struct {
	Resources []CloudResource `json:"resources"`
}

// RunBatchArgs represents the arguments for the run_batch tool
type RunBatchArgs struct {
	Ops []BatchOp `json:"ops" jsonschema:"Write operations applied atomically in one transaction."`
}

// RunBatchResult wraps per-op results for structured output.
type RunBatchResult struct {
	BatchID string        `json:"batchId"`
	Results []BatchResult `json:"results"`
}

// RelationsResult wraps relation rows for structured output.
type RelationsResult struct {
	Relations []Relation `json:"relations"`
}

// EntitiesResult wraps entity rows for structured output.
type EntitiesResult struct {
	Entities []Entity `json:"entities"`
}

// CategoriesResult wraps category rows for structured output.
type CategoriesResult struct {
	Categories []KnowledgeCategory `json:"categories"`
}

// Health
type HealthArgs struct{}

type HealthResult struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Revision  string `json:"revision"`
	BuildDate string `json:"buildDate"`
	PoolSize  int    `json:"poolSize"`
}
