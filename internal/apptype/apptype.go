package apptype

import (
	"encoding/json"
	"time"
)

// Entity represents a named, typed fact in the knowledge graph.
type Entity struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	EntityType      string          `json:"entityType"`
	CreatedAt       time.Time       `json:"createdAt"`
	LastUpdated     time.Time       `json:"lastUpdated"`
	ConfidenceScore float64         `json:"confidenceScore"`
	ContextSource   string          `json:"contextSource,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	CategoryID      *int64          `json:"categoryId,omitempty"`
}

// Relation is a directed, typed edge between two entities with a validity
// window. Rows are append-only history: a superseded relation keeps its row
// with valid_until set, it is never rewritten in place.
type Relation struct {
	ID              int64      `json:"id"`
	FromEntity      int64      `json:"fromEntity"`
	ToEntity        int64      `json:"toEntity"`
	RelationType    string     `json:"relationType"`
	CreatedAt       time.Time  `json:"createdAt"`
	ValidFrom       time.Time  `json:"validFrom"`
	ValidUntil      *time.Time `json:"validUntil,omitempty"`
	ConfidenceScore float64    `json:"confidenceScore"`
	ContextSource   string     `json:"contextSource,omitempty"`
}

// Open reports whether the relation's validity window is unbounded.
func (r Relation) Open() bool { return r.ValidUntil == nil }

// KnowledgeCategory is a retention/priority policy bucket for entities.
type KnowledgeCategory struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Priority        int    `json:"priority"`
	RetentionPeriod int    `json:"retentionPeriod"` // days; 0 = keep forever
}

// CloudResource is infrastructure metadata owned by the entity it links to.
type CloudResource struct {
	ResourceID   string          `json:"resourceId"`
	ResourceType string          `json:"resourceType"`
	Region       string          `json:"region,omitempty"`
	AccountID    string          `json:"accountId,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	EntityName   string          `json:"entityName"`
	CreatedAt    time.Time       `json:"createdAt"`
	LastUpdated  time.Time       `json:"lastUpdated"`
}

// CreateEntitySpec carries the caller-supplied fields for a new entity.
type CreateEntitySpec struct {
	Name            string          `json:"name"`
	EntityType      string          `json:"entityType"`
	ConfidenceScore float64         `json:"confidenceScore"`
	ContextSource   string          `json:"contextSource,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	CategoryID      *int64          `json:"categoryId,omitempty"`
}

// UpdateEntitySpec is a partial update; nil fields are left untouched.
type UpdateEntitySpec struct {
	ID              int64           `json:"id"`
	EntityType      *string         `json:"entityType,omitempty"`
	ConfidenceScore *float64        `json:"confidenceScore,omitempty"`
	ContextSource   *string         `json:"contextSource,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	CategoryID      *int64          `json:"categoryId,omitempty"`
}

// CreateRelationSpec carries the caller-supplied fields for a new relation.
// A zero ValidFrom means "now".
type CreateRelationSpec struct {
	FromEntity      int64     `json:"fromEntity"`
	ToEntity        int64     `json:"toEntity"`
	RelationType    string    `json:"relationType"`
	ConfidenceScore float64   `json:"confidenceScore"`
	ContextSource   string    `json:"contextSource,omitempty"`
	ValidFrom       time.Time `json:"validFrom,omitempty"`
}

// CloseRelationSpec closes an open relation at the given instant.
type CloseRelationSpec struct {
	RelationID int64     `json:"relationId"`
	ValidUntil time.Time `json:"validUntil"`
}

// EntityFilter narrows query_entities. Nil fields are not applied.
type EntityFilter struct {
	EntityType    *string  `json:"entityType,omitempty"`
	MinConfidence *float64 `json:"minConfidence,omitempty"`
	CategoryID    *int64   `json:"categoryId,omitempty"`
	Limit         int      `json:"limit,omitempty"`
}

// ResourceFilter narrows query_cloud_resources. Nil fields are not applied.
type ResourceFilter struct {
	ResourceType *string `json:"resourceType,omitempty"`
	Region       *string `json:"region,omitempty"`
}

// BatchOpKind enumerates the write operations a batch may contain.
type BatchOpKind string

const (
	BatchCreateEntity   BatchOpKind = "create_entity"
	BatchUpdateEntity   BatchOpKind = "update_entity"
	BatchDeleteEntity   BatchOpKind = "delete_entity"
	BatchCreateRelation BatchOpKind = "create_relation"
	BatchCloseRelation  BatchOpKind = "close_relation"
	BatchUpsertResource BatchOpKind = "upsert_cloud_resource"
)

// BatchOp is one write operation inside a batch. The payload field matching
// Kind must be set.
type BatchOp struct {
	Kind           BatchOpKind         `json:"kind"`
	CreateEntity   *CreateEntitySpec   `json:"createEntity,omitempty"`
	UpdateEntity   *UpdateEntitySpec   `json:"updateEntity,omitempty"`
	DeleteEntityID int64               `json:"deleteEntityId,omitempty"`
	CreateRelation *CreateRelationSpec `json:"createRelation,omitempty"`
	CloseRelation  *CloseRelationSpec  `json:"closeRelation,omitempty"`
	UpsertResource *CloudResource      `json:"upsertResource,omitempty"`
}

// BatchResult reports the outcome of one batch operation.
type BatchResult struct {
	Index    int         `json:"index"`
	Kind     BatchOpKind `json:"kind"`
	Entity   *Entity     `json:"entity,omitempty"`
	Relation *Relation   `json:"relation,omitempty"`
}

// GraphResult bundles entities with the relations among them.
type GraphResult struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}
