package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/graphein-ai/mcp-temporal-memory-go/internal/apptype"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type StepResult struct {
	Name      string `json:"name"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

type Report struct {
	SSEURL     string       `json:"sse_url"`
	StartedAt  time.Time    `json:"started_at"`
	DurationMs int64        `json:"duration_ms"`
	Steps      []StepResult `json:"steps"`
	Passed     bool         `json:"passed"`
}

func main() {
	sseURL := flag.String("sse-url", "http://localhost:8080/sse", "SSE endpoint URL")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "integration-tester", Version: "dev"}, nil)
	transport := mcp.NewSSEClientTransport(*sseURL, nil)

	start := time.Now()
	report := Report{SSEURL: *sseURL, StartedAt: start}
	steps := make([]StepResult, 0, 16)

	// Connect
	tConn := time.Now()
	connRes := StepResult{Name: "connect"}
	session, err := client.Connect(ctx, transport)
	if err != nil {
		connRes.Error = err.Error()
		connRes.ElapsedMs = elapsedMsSince(tConn)
		report.Steps = append(steps, connRes)
		report.DurationMs = elapsedMsSince(start)
		emit(report)
		os.Exit(1)
	}
	defer session.Close()
	connRes.Success = true
	connRes.ElapsedMs = elapsedMsSince(tConn)
	steps = append(steps, connRes)

	steps = append(steps, runListTools(ctx, session))
	steps = append(steps, runCall(ctx, session, "create_entity", apptype.CreateEntityArgs{
		Entity: apptype.CreateEntitySpec{Name: "svc-api", EntityType: "service", ConfidenceScore: 0.9},
	}))
	steps = append(steps, runCall(ctx, session, "create_entity", apptype.CreateEntityArgs{
		Entity: apptype.CreateEntitySpec{Name: "db-main", EntityType: "database", ConfidenceScore: 0.8},
	}))
	steps = append(steps, runCall(ctx, session, "create_relation", apptype.CreateRelationArgs{
		Relation: apptype.CreateRelationSpec{FromEntity: 1, ToEntity: 2, RelationType: "depends_on", ConfidenceScore: 0.9},
	}))
	steps = append(steps, runCall(ctx, session, "query_entities", apptype.QueryEntitiesArgs{}))
	steps = append(steps, runCall(ctx, session, "query_relations", apptype.QueryRelationsArgs{EntityID: 1}))
	steps = append(steps, runCall(ctx, session, "search_nodes", apptype.SearchNodesArgs{Query: "svc", Limit: 10}))
	steps = append(steps, runCall(ctx, session, "read_graph", apptype.ReadGraphArgs{Limit: 10}))
	steps = append(steps, runCall(ctx, session, "neighbors", apptype.NeighborsArgs{EntityIDs: []int64{1}}))
	steps = append(steps, runCall(ctx, session, "relation_history", apptype.RelationHistoryArgs{
		FromEntity: 1, ToEntity: 2, RelationType: "depends_on",
	}))
	steps = append(steps, runCall(ctx, session, "create_category", apptype.CreateCategoryArgs{
		Name: "ephemeral", Priority: 1, RetentionPeriod: 7,
	}))
	steps = append(steps, runCall(ctx, session, "list_categories", apptype.ListCategoriesArgs{}))
	steps = append(steps, runCall(ctx, session, "upsert_cloud_resource", apptype.UpsertCloudResourceArgs{
		Resource: apptype.CloudResource{ResourceType: "ec2", Region: "us-east-1", EntityName: "svc-api"},
	}))
	steps = append(steps, runCall(ctx, session, "query_cloud_resources", apptype.QueryCloudResourcesArgs{}))
	steps = append(steps, runCall(ctx, session, "run_batch", apptype.RunBatchArgs{
		Ops: []apptype.BatchOp{
			{Kind: apptype.BatchCreateEntity, CreateEntity: &apptype.CreateEntitySpec{
				Name: "cache-redis", EntityType: "cache", ConfidenceScore: 0.7,
			}},
		},
	}))
	steps = append(steps, runCall(ctx, session, "health_check", apptype.HealthArgs{}))
	steps = append(steps, runCall(ctx, session, "delete_entity", apptype.DeleteEntityArgs{ID: 2}))

	report.Steps = steps
	report.DurationMs = elapsedMsSince(start)
	report.Passed = true
	for _, s := range steps {
		if !s.Success {
			report.Passed = false
			break
		}
	}
	emit(report)
	if !report.Passed {
		os.Exit(1)
	}
}

func emit(report Report) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}

func runListTools(ctx context.Context, session *mcp.ClientSession) StepResult {
	t0 := time.Now()
	res := StepResult{Name: "list_tools"}
	if _, err := session.ListTools(ctx, &mcp.ListToolsParams{}); err != nil {
		res.Error = err.Error()
	} else {
		res.Success = true
	}
	res.ElapsedMs = elapsedMsSince(t0)
	return res
}

func runCall(ctx context.Context, session *mcp.ClientSession, tool string, args any) StepResult {
	t0 := time.Now()
	res := StepResult{Name: tool}
	raw, err := json.Marshal(args)
	if err != nil {
		res.Error = fmt.Sprintf("marshal args: %v", err)
		res.ElapsedMs = elapsedMsSince(t0)
		return res
	}
	if _, err := session.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: json.RawMessage(raw)}); err != nil {
		res.Error = err.Error()
	} else {
		res.Success = true
	}
	res.ElapsedMs = elapsedMsSince(t0)
	return res
}

func elapsedMsSince(t time.Time) int64 {
	return time.Since(t).Milliseconds()
}
