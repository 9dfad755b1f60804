// Package graph builds a thin deterministic graph over the stored route set:
// endpoint, file and handler nodes connected by DECLARES and HANDLES edges.
package graph

import (
	"fmt"
	"sort"
	"time"

	"routelens/internal/storage"
)

// Node types and edge types.
const (
	NodeEndpoint = "endpoint"
	NodeFile     = "file"
	NodeHandler  = "handler"

	EdgeDeclares = "DECLARES"
	EdgeHandles  = "HANDLES"
)

type Node struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label"`
}

type Edge struct {
	Src  string `json:"src"`
	Dst  string `json:"dst"`
	Type string `json:"type"`
}

type Graph struct {
	Nodes map[string]Node
	Edges []Edge
}

func NewGraph() *Graph {
	return &Graph{Nodes: make(map[string]Node)}
}

func (g *Graph) AddNode(n Node) {
	if _, ok := g.Nodes[n.ID]; !ok {
		g.Nodes[n.ID] = n
	}
}

// BuildResult pairs a graph with its generation timestamp so exports are
// reproducible.
type BuildResult struct {
	Graph       *Graph
	GeneratedAt int64
}

func endpointNodeID(method, httpPath string) string {
	return fmt.Sprintf("endpoint:%s %s", method, httpPath)
}

func fileNodeID(relPath string) string {
	return "file:" + relPath
}

// Handlers are scoped to their file to avoid collisions across modules.
func handlerNodeID(relPath, handlerName string) string {
	return fmt.Sprintf("handler:%s:%s", relPath, handlerName)
}

// BuildEndpointGraph builds the endpoint graph from route rows. Edges are
// de-duplicated and sorted so exports are stable across runs.
func BuildEndpointGraph(rows []storage.RouteRecord) *BuildResult {
	g := NewGraph()
	edgeSeen := make(map[Edge]struct{})

	for _, r := range rows {
		eid := endpointNodeID(r.Method, r.HTTPPath)
		fid := fileNodeID(r.RelPath)
		hid := handlerNodeID(r.RelPath, r.HandlerName)

		g.AddNode(Node{ID: eid, Type: NodeEndpoint, Label: r.Method + " " + r.HTTPPath})
		g.AddNode(Node{ID: fid, Type: NodeFile, Label: r.RelPath})
		g.AddNode(Node{ID: hid, Type: NodeHandler, Label: r.HandlerName})

		for _, e := range []Edge{
			{Src: fid, Dst: eid, Type: EdgeDeclares},
			{Src: hid, Dst: eid, Type: EdgeHandles},
		} {
			if _, ok := edgeSeen[e]; ok {
				continue
			}
			edgeSeen[e] = struct{}{}
			g.Edges = append(g.Edges, e)
		}
	}

	sort.Slice(g.Edges, func(i, j int) bool {
		a, b := g.Edges[i], g.Edges[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Src != b.Src {
			return a.Src < b.Src
		}
		return a.Dst < b.Dst
	})

	return &BuildResult{Graph: g, GeneratedAt: time.Now().Unix()}
}

// Stats summarizes node and edge counts by type.
type Stats struct {
	Endpoints     int `json:"endpoints"`
	Files         int `json:"files"`
	Handlers      int `json:"handlers"`
	DeclaresEdges int `json:"declares_edges"`
	HandlesEdges  int `json:"handles_edges"`
}

func (g *Graph) Stats() Stats {
	var s Stats
	for _, n := range g.Nodes {
		switch n.Type {
		case NodeEndpoint:
			s.Endpoints++
		case NodeFile:
			s.Files++
		case NodeHandler:
			s.Handlers++
		}
	}
	for _, e := range g.Edges {
		switch e.Type {
		case EdgeDeclares:
			s.DeclaresEdges++
		case EdgeHandles:
			s.HandlesEdges++
		}
	}
	return s
}
