package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/graphein-ai/mcp-temporal-memory-go/internal/apptype"
	"github.com/graphein-ai/mcp-temporal-memory-go/internal/buildinfo"
	"github.com/graphein-ai/mcp-temporal-memory-go/internal/database"
	"github.com/graphein-ai/mcp-temporal-memory-go/internal/metrics"
	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPServer handles MCP protocol communication
type MCPServer struct {
	server *mcp.Server
	store  *database.Store
}

// NewMCPServer creates a new MCP server
func NewMCPServer(store *database.Store) *MCPServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "mcp-temporal-memory-go",
		Version: buildinfo.Version,
	}, nil)

	mcpServer := &MCPServer{
		server: server,
		store:  store,
	}

	// initialize metrics from env (no-op if disabled)
	metrics.InitFromEnv()
	mcpServer.setupToolHandlers()
	return mcpServer
}

func mustSchema[T any](name string) *jsonschema.Schema {
	schema, err := jsonschema.For[T]()
	if err != nil {
		panic(fmt.Sprintf("failed to create schema for %s: %v", name, err))
	}
	return schema
}

// setupToolHandlers registers all MCP tools
func (s *MCPServer) setupToolHandlers() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "create_entity",
		Title:       "Create Entity",
		Description: "Record a new fact as a typed entity with a confidence score.",
		InputSchema: mustSchema[apptype.CreateEntityArgs]("CreateEntityArgs"),
	}, s.handleCreateEntity)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "update_entity",
		Title:       "Update Entity",
		Description: "Partially update an entity (type, confidence, context, metadata, category).",
		InputSchema: mustSchema[apptype.UpdateEntityArgs]("UpdateEntityArgs"),
	}, s.handleUpdateEntity)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_entity",
		Title:       "Delete Entity",
		Description: "Delete an entity and all its relations and cloud resource links.",
		InputSchema: mustSchema[apptype.DeleteEntityArgs]("DeleteEntityArgs"),
	}, s.handleDeleteEntity)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "create_relation",
		Title:       "Create Relation",
		Description: "Open a temporally-bounded relation between two entities. A prior open relation with the same key is closed at the new window's start.",
		InputSchema: mustSchema[apptype.CreateRelationArgs]("CreateRelationArgs"),
	}, s.handleCreateRelation)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "close_relation",
		Title:       "Close Relation",
		Description: "End an open relation's validity window.",
		InputSchema: mustSchema[apptype.CloseRelationArgs]("CloseRelationArgs"),
	}, s.handleCloseRelation)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "query_entities",
		Title:        "Query Entities",
		Description:  "List entities filtered by type, minimum confidence, and category.",
		InputSchema:  mustSchema[apptype.QueryEntitiesArgs]("QueryEntitiesArgs"),
		OutputSchema: mustSchema[apptype.EntitiesResult]("EntitiesResult (query)"),
	}, s.handleQueryEntities)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "query_relations",
		Title:        "Query Relations",
		Description:  "List relations touching an entity, optionally restricted to those valid at a point in time.",
		InputSchema:  mustSchema[apptype.QueryRelationsArgs]("QueryRelationsArgs"),
		OutputSchema: mustSchema[apptype.RelationsResult]("RelationsResult (query)"),
	}, s.handleQueryRelations)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "relation_history",
		Title:        "Relation History",
		Description:  "Full validity-window history for a (from, to, type) relation key, oldest first.",
		InputSchema:  mustSchema[apptype.RelationHistoryArgs]("RelationHistoryArgs"),
		OutputSchema: mustSchema[apptype.RelationsResult]("RelationsResult (history)"),
	}, s.handleRelationHistory)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "search_nodes",
		Title:        "Search Nodes",
		Description:  "Text search over entity names, types and context sources, with the open relations among the matches.",
		InputSchema:  mustSchema[apptype.SearchNodesArgs]("SearchNodesArgs"),
		OutputSchema: mustSchema[apptype.GraphResult]("GraphResult (search)"),
	}, s.handleSearchNodes)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "read_graph",
		Title:        "Read Graph",
		Description:  "Get recent entities and the open relations among them.",
		InputSchema:  mustSchema[apptype.ReadGraphArgs]("ReadGraphArgs"),
		OutputSchema: mustSchema[apptype.GraphResult]("GraphResult (read)"),
	}, s.handleReadGraph)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "neighbors",
		Title:        "Neighbors",
		Description:  "Fetch 1-hop neighbors for given entities, optionally at a point in time.",
		InputSchema:  mustSchema[apptype.NeighborsArgs]("NeighborsArgs"),
		OutputSchema: mustSchema[apptype.GraphResult]("GraphResult (neighbors)"),
	}, s.handleNeighbors)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "create_category",
		Title:       "Create Category",
		Description: "Create a knowledge category with a priority and retention period.",
		InputSchema: mustSchema[apptype.CreateCategoryArgs]("CreateCategoryArgs"),
	}, s.handleCreateCategory)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "list_categories",
		Title:        "List Categories",
		Description:  "List knowledge categories, highest priority first.",
		InputSchema:  mustSchema[apptype.ListCategoriesArgs]("ListCategoriesArgs"),
		OutputSchema: mustSchema[apptype.CategoriesResult]("CategoriesResult"),
	}, s.handleListCategories)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "sweep_expired",
		Title:        "Sweep Expired",
		Description:  "Purge entities whose category retention period has elapsed.",
		InputSchema:  mustSchema[apptype.SweepExpiredArgs]("SweepExpiredArgs"),
		OutputSchema: mustSchema[apptype.SweepResult]("SweepResult"),
	}, s.handleSweepExpired)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "upsert_cloud_resource",
		Title:       "Upsert Cloud Resource",
		Description: "Create or update cloud resource metadata linked to an existing entity.",
		InputSchema: mustSchema[apptype.UpsertCloudResourceArgs]("UpsertCloudResourceArgs"),
	}, s.handleUpsertCloudResource)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "query_cloud_resources",
		Title:        "Query Cloud Resources",
		Description:  "List cloud resources filtered by type and region.",
		InputSchema:  mustSchema[apptype.QueryCloudResourcesArgs]("QueryCloudResourcesArgs"),
		OutputSchema: mustSchema[apptype.CloudResourcesResult]("CloudResourcesResult"),
	}, s.handleQueryCloudResources)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "run_batch",
		Title:        "Run Batch",
		Description:  "Apply a sequence of write operations atomically in one transaction.",
		InputSchema:  mustSchema[apptype.RunBatchArgs]("RunBatchArgs"),
		OutputSchema: mustSchema[apptype.RunBatchResult]("RunBatchResult"),
	}, s.handleRunBatch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "health_check",
		Title:        "Health Check",
		Description:  "Returns server and configuration information.",
		InputSchema:  mustSchema[apptype.HealthArgs]("HealthArgs"),
		OutputSchema: mustSchema[apptype.HealthResult]("HealthResult"),
	}, s.handleHealth)
}

// handleCreateEntity handles the create_entity tool call
func (s *MCPServer) handleCreateEntity(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.CreateEntityArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeTool("create_entity")
	var success bool
	defer func() { done(success) }()

	entity, err := s.store.CreateEntity(ctx, params.Arguments.Entity)
	if err != nil {
		return nil, fmt.Errorf("failed to create entity: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Created entity %d (%s)", entity.ID, entity.Name),
			},
		},
	}, nil
}

// handleUpdateEntity handles the update_entity tool call
func (s *MCPServer) handleUpdateEntity(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.UpdateEntityArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeTool("update_entity")
	var success bool
	defer func() { done(success) }()

	entity, err := s.store.UpdateEntity(ctx, params.Arguments.Update)
	if err != nil {
		return nil, fmt.Errorf("failed to update entity: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Updated entity %d (%s)", entity.ID, entity.Name),
			},
		},
	}, nil
}

// handleDeleteEntity handles the delete_entity tool call
func (s *MCPServer) handleDeleteEntity(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.DeleteEntityArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeTool("delete_entity")
	var success bool
	defer func() { done(success) }()

	if err := s.store.DeleteEntity(ctx, params.Arguments.ID); err != nil {
		return nil, fmt.Errorf("failed to delete entity: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Deleted entity %d and its associated data", params.Arguments.ID),
			},
		},
	}, nil
}

// handleCreateRelation handles the create_relation tool call
func (s *MCPServer) handleCreateRelation(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.CreateRelationArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeTool("create_relation")
	var success bool
	defer func() { done(success) }()

	relation, err := s.store.CreateRelation(ctx, params.Arguments.Relation)
	if err != nil {
		return nil, fmt.Errorf("failed to create relation: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Opened relation %d (%d -%s-> %d)",
					relation.ID, relation.FromEntity, relation.RelationType, relation.ToEntity),
			},
		},
	}, nil
}

// handleCloseRelation handles the close_relation tool call
func (s *MCPServer) handleCloseRelation(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.CloseRelationArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeTool("close_relation")
	var success bool
	defer func() { done(success) }()

	var until time.Time
	if params.Arguments.ValidUntil != nil {
		until = *params.Arguments.ValidUntil
	}
	relation, err := s.store.CloseRelation(ctx, params.Arguments.RelationID, until)
	if err != nil {
		return nil, fmt.Errorf("failed to close relation: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Closed relation %d at %s",
					relation.ID, relation.ValidUntil.Format(time.RFC3339)),
			},
		},
	}, nil
}

// handleQueryEntities handles the query_entities tool call
func (s *MCPServer) handleQueryEntities(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.QueryEntitiesArgs],
) (*mcp.CallToolResultFor[apptype.EntitiesResult], error) {
	done := metrics.TimeTool("query_entities")
	var success bool
	defer func() { done(success) }()

	entities, err := s.store.QueryEntities(ctx, params.Arguments.Filter)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[apptype.EntitiesResult]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Found %d entities", len(entities))},
		},
		StructuredContent: apptype.EntitiesResult{Entities: entities},
	}, nil
}

// handleQueryRelations handles the query_relations tool call
func (s *MCPServer) handleQueryRelations(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.QueryRelationsArgs],
) (*mcp.CallToolResultFor[apptype.RelationsResult], error) {
	done := metrics.TimeTool("query_relations")
	var success bool
	defer func() { done(success) }()

	relations, err := s.store.QueryRelations(ctx, params.Arguments.EntityID, params.Arguments.AtTime)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[apptype.RelationsResult]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Found %d relations", len(relations))},
		},
		StructuredContent: apptype.RelationsResult{Relations: relations},
	}, nil
}

// handleRelationHistory handles the relation_history tool call
func (s *MCPServer) handleRelationHistory(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.RelationHistoryArgs],
) (*mcp.CallToolResultFor[apptype.RelationsResult], error) {
	done := metrics.TimeTool("relation_history")
	var success bool
	defer func() { done(success) }()

	relations, err := s.store.RelationHistory(ctx,
		params.Arguments.FromEntity, params.Arguments.ToEntity, params.Arguments.RelationType)
	if err != nil {
		return nil, fmt.Errorf("history lookup failed: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[apptype.RelationsResult]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Found %d validity windows", len(relations))},
		},
		StructuredContent: apptype.RelationsResult{Relations: relations},
	}, nil
}

// handleSearchNodes handles the search_nodes tool call
func (s *MCPServer) handleSearchNodes(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.SearchNodesArgs],
) (*mcp.CallToolResultFor[apptype.GraphResult], error) {
	done := metrics.TimeTool("search_nodes")
	var success bool
	defer func() { done(success) }()

	result, err := s.store.SearchNodes(ctx, params.Arguments.Query, params.Arguments.Limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[apptype.GraphResult]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Search completed successfully"},
		},
		StructuredContent: *result,
	}, nil
}

// handleReadGraph handles the read_graph tool call
func (s *MCPServer) handleReadGraph(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.ReadGraphArgs],
) (*mcp.CallToolResultFor[apptype.GraphResult], error) {
	done := metrics.TimeTool("read_graph")
	var success bool
	defer func() { done(success) }()

	result, err := s.store.ReadGraph(ctx, params.Arguments.Limit)
	if err != nil {
		return nil, fmt.Errorf("read graph failed: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[apptype.GraphResult]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Graph read successfully"},
		},
		StructuredContent: *result,
	}, nil
}

// handleNeighbors handles the neighbors tool call, merging the 1-hop
// expansions of every seed entity.
func (s *MCPServer) handleNeighbors(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.NeighborsArgs],
) (*mcp.CallToolResultFor[apptype.GraphResult], error) {
	done := metrics.TimeTool("neighbors")
	var success bool
	defer func() { done(success) }()

	merged := apptype.GraphResult{}
	seenEntities := map[int64]bool{}
	seenRelations := map[int64]bool{}
	for _, id := range params.Arguments.EntityIDs {
		result, err := s.store.Neighbors(ctx, id, params.Arguments.Direction, params.Arguments.AtTime)
		if err != nil {
			return nil, fmt.Errorf("neighbors failed: %w", err)
		}
		for _, e := range result.Entities {
			if !seenEntities[e.ID] {
				seenEntities[e.ID] = true
				merged.Entities = append(merged.Entities, e)
			}
		}
		for _, r := range result.Relations {
			if !seenRelations[r.ID] {
				seenRelations[r.ID] = true
				merged.Relations = append(merged.Relations, r)
			}
		}
	}
	success = true
	return &mcp.CallToolResultFor[apptype.GraphResult]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Neighbors fetched"},
		},
		StructuredContent: merged,
	}, nil
}

// handleCreateCategory handles the create_category tool call
func (s *MCPServer) handleCreateCategory(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.CreateCategoryArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeTool("create_category")
	var success bool
	defer func() { done(success) }()

	category, err := s.store.CreateCategory(ctx,
		params.Arguments.Name, params.Arguments.Priority, params.Arguments.RetentionPeriod)
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Created category %d (%s)", category.ID, category.Name),
			},
		},
	}, nil
}

// handleListCategories handles the list_categories tool call
func (s *MCPServer) handleListCategories(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.ListCategoriesArgs],
) (*mcp.CallToolResultFor[apptype.CategoriesResult], error) {
	done := metrics.TimeTool("list_categories")
	var success bool
	defer func() { done(success) }()

	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[apptype.CategoriesResult]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Found %d categories", len(categories))},
		},
		StructuredContent: apptype.CategoriesResult{Categories: categories},
	}, nil
}

// handleSweepExpired handles the sweep_expired tool call
func (s *MCPServer) handleSweepExpired(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.SweepExpiredArgs],
) (*mcp.CallToolResultFor[apptype.SweepResult], error) {
	done := metrics.TimeTool("sweep_expired")
	var success bool
	defer func() { done(success) }()

	purged, err := s.store.SweepExpired(ctx, params.Arguments.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("sweep failed: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[apptype.SweepResult]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Purged %d expired entities", purged)},
		},
		StructuredContent: apptype.SweepResult{
			CategoryID: params.Arguments.CategoryID,
			Purged:     purged,
		},
	}, nil
}

// handleUpsertCloudResource handles the upsert_cloud_resource tool call
func (s *MCPServer) handleUpsertCloudResource(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.UpsertCloudResourceArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeTool("upsert_cloud_resource")
	var success bool
	defer func() { done(success) }()

	resource, err := s.store.UpsertCloudResource(ctx, params.Arguments.Resource)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert cloud resource: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Upserted cloud resource %s for entity %s",
					resource.ResourceID, resource.EntityName),
			},
		},
	}, nil
}

// handleQueryCloudResources handles the query_cloud_resources tool call
func (s *MCPServer) handleQueryCloudResources(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.QueryCloudResourcesArgs],
) (*mcp.CallToolResultFor[apptype.CloudResourcesResult], error) {
	done := metrics.TimeTool("query_cloud_resources")
	var success bool
	defer func() { done(success) }()

	resources, err := s.store.QueryCloudResources(ctx, params.Arguments.Filter)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[apptype.CloudResourcesResult]{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Found %d cloud resources", len(resources))},
		},
		StructuredContent: apptype.CloudResourcesResult{Resources: resources},
	}, nil
}

// handleRunBatch handles the run_batch tool call
func (s *MCPServer) handleRunBatch(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.RunBatchArgs],
) (*mcp.CallToolResultFor[apptype.RunBatchResult], error) {
	done := metrics.TimeTool("run_batch")
	var success bool
	defer func() { done(success) }()

	batchID, results, err := s.store.RunBatch(ctx, params.Arguments.Ops)
	if err != nil {
		return nil, fmt.Errorf("batch failed: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[apptype.RunBatchResult]{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Batch %s applied %d operations", batchID, len(results)),
			},
		},
		StructuredContent: apptype.RunBatchResult{BatchID: batchID, Results: results},
	}, nil
}

// handleHealth handles the health_check tool call
func (s *MCPServer) handleHealth(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.HealthArgs],
) (*mcp.CallToolResultFor[apptype.HealthResult], error) {
	done := metrics.TimeTool("health_check")
	defer func() { done(true) }()
	cfg := s.store.Config()
	// observe current pool gauges
	inUse, idle := s.store.PoolStats()
	metrics.Default().ObservePoolStats(inUse, idle)
	res := &apptype.HealthResult{
		Name:      "mcp-temporal-memory-go",
		Version:   buildinfo.Version,
		Revision:  buildinfo.Revision,
		BuildDate: buildinfo.BuildDate,
		PoolSize:  cfg.PoolSize,
	}
	return &mcp.CallToolResultFor[apptype.HealthResult]{
		Content:           []mcp.Content{&mcp.TextContent{Text: "ok"}},
		StructuredContent: *res,
	}, nil
}

// poolStatsTicker periodically reports pool gauges while the server runs.
func (s *MCPServer) poolStatsTicker(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				inUse, idle := s.store.PoolStats()
				metrics.Default().ObservePoolStats(inUse, idle)
			}
		}
	}()
}

// Run starts the MCP server with stdio transport
func (s *MCPServer) Run(ctx context.Context) error {
	s.poolStatsTicker(ctx)
	transport := mcp.NewStdioTransport()
	return s.server.Run(ctx, transport)
}

// RunSSE starts the MCP server over SSE at the given address and endpoint
func (s *MCPServer) RunSSE(ctx context.Context, addr string, endpoint string) error {
	s.poolStatsTicker(ctx)
	handler := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server { return s.server })
	mux := http.NewServeMux()
	mux.Handle(endpoint, handler)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 0)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("SSE MCP server listening on %s%s", addr, endpoint)
	return srv.ListenAndServe()
}
