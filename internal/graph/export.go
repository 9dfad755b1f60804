package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Export is the serializable form of a built graph, with nodes in a stable
// order.
type Export struct {
	GeneratedAt int64  `json:"generated_at"`
	Nodes       []Node `json:"nodes"`
	Edges       []Edge `json:"edges"`
}

func (r *BuildResult) Export() Export {
	nodes := make([]Node, 0, len(r.Graph.Nodes))
	for _, n := range r.Graph.Nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	return Export{
		GeneratedAt: r.GeneratedAt,
		Nodes:       nodes,
		Edges:       r.Graph.Edges,
	}
}

// DOT renders the graph in graphviz dot format.
func (r *BuildResult) DOT() string {
	exp := r.Export()

	var b strings.Builder
	b.WriteString("digraph endpoints {\n")
	b.WriteString("  rankdir=LR;\n")
	for _, n := range exp.Nodes {
		shape := "ellipse"
		switch n.Type {
		case NodeFile:
			shape = "box"
		case NodeHandler:
			shape = "oval"
		}
		fmt.Fprintf(&b, "  %q [label=%q, shape=%s];\n", n.ID, n.Label, shape)
	}
	for _, e := range exp.Edges {
		fmt.Fprintf(&b, "  %q -> %q [label=%q];\n", e.Src, e.Dst, e.Type)
	}
	b.WriteString("}\n")
	return b.String()
}
