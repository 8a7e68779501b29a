package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/graphein-ai/mcp-temporal-memory-go/internal/apptype"
	"github.com/graphein-ai/mcp-temporal-memory-go/internal/database"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

// pickFreePort tries to get a free TCP port on 127.0.0.1
func pickFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func startSSEServer(t *testing.T, dbName string) (*mcp.ClientSession, context.CancelFunc) {
	t.Helper()
	cfg := database.NewConfig()
	cfg.URL = fmt.Sprintf("file:%s?mode=memory&cache=shared", dbName)
	store, err := database.NewStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv := NewMCPServer(store)

	port, err := pickFreePort()
	require.NoError(t, err)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	endpoint := "/sse"

	ctx, cancel := context.WithCancel(context.Background())

	go func() { _ = srv.RunSSE(ctx, addr, endpoint) }()

	// wait briefly for server to bind
	time.Sleep(150 * time.Millisecond)

	client := mcp.NewClient(&mcp.Implementation{Name: "e2e-client", Version: "test"}, nil)
	transport := mcp.NewSSEClientTransport("http://"+addr+endpoint, nil)

	// retry connect a few times to avoid flakes
	var session *mcp.ClientSession
	for i := 0; i < 5; i++ {
		session, err = client.Connect(ctx, transport)
		if err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session, cancel
}

func callTool(t *testing.T, ctx context.Context, session *mcp.ClientSession, name string, args any) *mcp.CallToolResult {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: json.RawMessage(raw)})
	require.NoError(t, err)
	require.False(t, res.IsError, "tool %s returned an error result", name)
	return res
}

func TestSSEServer_ListTools(t *testing.T) {
	session, cancel := startSSEServer(t, "e2e-list-tools")
	defer cancel()
	ctx := context.Background()

	tools, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	require.NotEmpty(t, tools.Tools)

	names := make(map[string]bool, len(tools.Tools))
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{
		"create_entity", "update_entity", "delete_entity",
		"create_relation", "close_relation",
		"query_entities", "query_relations", "relation_history",
		"search_nodes", "read_graph", "neighbors",
		"create_category", "list_categories", "sweep_expired",
		"upsert_cloud_resource", "query_cloud_resources",
		"run_batch", "health_check",
	} {
		require.True(t, names[want], "missing tool %s", want)
	}
}

func TestSSEServer_EntityRelationRoundTrip(t *testing.T) {
	session, cancel := startSSEServer(t, "e2e-roundtrip")
	defer cancel()
	ctx := context.Background()

	callTool(t, ctx, session, "create_entity", apptype.CreateEntityArgs{
		Entity: apptype.CreateEntitySpec{Name: "svc", EntityType: "service", ConfidenceScore: 0.9},
	})
	callTool(t, ctx, session, "create_entity", apptype.CreateEntityArgs{
		Entity: apptype.CreateEntitySpec{Name: "db", EntityType: "database", ConfidenceScore: 0.8},
	})
	callTool(t, ctx, session, "create_relation", apptype.CreateRelationArgs{
		Relation: apptype.CreateRelationSpec{
			FromEntity: 1, ToEntity: 2, RelationType: "depends_on", ConfidenceScore: 0.9,
		},
	})

	res := callTool(t, ctx, session, "query_relations", apptype.QueryRelationsArgs{EntityID: 1})
	structured, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var relations apptype.RelationsResult
	require.NoError(t, json.Unmarshal(structured, &relations))
	require.Len(t, relations.Relations, 1)
	require.True(t, relations.Relations[0].Open())

	res = callTool(t, ctx, session, "search_nodes", apptype.SearchNodesArgs{Query: "svc", Limit: 5})
	structured, err = json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var graph apptype.GraphResult
	require.NoError(t, json.Unmarshal(structured, &graph))
	require.Len(t, graph.Entities, 1)

	res = callTool(t, ctx, session, "health_check", apptype.HealthArgs{})
	structured, err = json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var health apptype.HealthResult
	require.NoError(t, json.Unmarshal(structured, &health))
	require.Equal(t, "mcp-temporal-memory-go", health.Name)
	require.Positive(t, health.PoolSize)
}
