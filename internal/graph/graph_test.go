package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routelens/internal/storage"
)

func sampleRows() []storage.RouteRecord {
	return []storage.RouteRecord{
		{RelPath: "api/users.py", Method: "GET", HTTPPath: "/users", HandlerName: "list_users"},
		{RelPath: "api/users.py", Method: "POST", HTTPPath: "/users", HandlerName: "create_user"},
		{RelPath: "api/items.py", Method: "GET", HTTPPath: "/items", HandlerName: "list_items"},
	}
}

func TestBuildEndpointGraph(t *testing.T) {
	result := BuildEndpointGraph(sampleRows())
	s := result.Graph.Stats()

	assert.Equal(t, 3, s.Endpoints)
	assert.Equal(t, 2, s.Files)
	assert.Equal(t, 3, s.Handlers)
	assert.Equal(t, 3, s.DeclaresEdges)
	assert.Equal(t, 3, s.HandlesEdges)
}

func TestBuildEndpointGraphDeduplicatesEdges(t *testing.T) {
	rows := sampleRows()
	// Same endpoint declared twice in the same file on different lines.
	rows = append(rows, storage.RouteRecord{
		RelPath: "api/users.py", Method: "GET", HTTPPath: "/users", HandlerName: "list_users", DeclLine: 99,
	})

	result := BuildEndpointGraph(rows)
	s := result.Graph.Stats()
	assert.Equal(t, 3, s.Endpoints)
	assert.Equal(t, 3, s.DeclaresEdges)
	assert.Equal(t, 3, s.HandlesEdges)
}

func TestExportIsStable(t *testing.T) {
	first := BuildEndpointGraph(sampleRows()).Export()
	second := BuildEndpointGraph(sampleRows()).Export()

	assert.Equal(t, first.Nodes, second.Nodes)
	assert.Equal(t, first.Edges, second.Edges)

	require.NotEmpty(t, first.Nodes)
	for i := 1; i < len(first.Nodes); i++ {
		assert.Less(t, first.Nodes[i-1].ID, first.Nodes[i].ID)
	}
}

func TestDOTOutput(t *testing.T) {
	dot := BuildEndpointGraph(sampleRows()).DOT()

	assert.True(t, strings.HasPrefix(dot, "digraph endpoints {"))
	assert.Contains(t, dot, `"endpoint:GET /users"`)
	assert.Contains(t, dot, `"file:api/users.py"`)
	assert.Contains(t, dot, "DECLARES")
	assert.Contains(t, dot, "HANDLES")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(dot), "}"))
}
