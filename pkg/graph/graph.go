// Package graph reconstructs the ancestry of a file from its lineage
// document and renders it as Graphviz DOT.
package graph

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// NodeKind classifies a graph node.
type NodeKind int

const (
	// NodeTarget is the file the graph was built for.
	NodeTarget NodeKind = iota
	// NodeProgram is one invocation that produced a file.
	NodeProgram
	// NodeFile is a local file input.
	NodeFile
	// NodeRemote is a network input.
	NodeRemote
)

func (k NodeKind) String() string {
	switch k {
	case NodeTarget:
		return "target"
	case NodeProgram:
		return "program"
	case NodeFile:
		return "file"
	case NodeRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Node is a vertex of the lineage graph.
type Node struct {
	ID    string
	Label string
	Kind  NodeKind
	// Host is the network authority of a remote node.
	Host string
}

// Edge points from an ancestor to what it fed.
type Edge struct {
	From string
	To   string
}

// Graph is a deduplicated set of nodes and edges.
type Graph struct {
	root  string
	nodes map[string]Node
	edges map[Edge]struct{}
}

func newGraph() *Graph {
	return &Graph{
		nodes: make(map[string]Node),
		edges: make(map[Edge]struct{}),
	}
}

func (g *Graph) addNode(n Node) {
	if _, ok := g.nodes[n.ID]; !ok {
		g.nodes[n.ID] = n
	}
}

func (g *Graph) addEdge(from, to string) {
	g.edges[Edge{From: from, To: to}] = struct{}{}
}

// Root returns the target node's ID.
func (g *Graph) Root() string { return g.root }

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes sorted by ID.
func (g *Graph) Nodes() []Node {
	nodes := slices.Collect(maps.Values(g.nodes))
	slices.SortFunc(nodes, func(a, b Node) int { return cmp.Compare(a.ID, b.ID) })
	return nodes
}

// Edges returns all edges sorted by endpoints.
func (g *Graph) Edges() []Edge {
	edges := slices.Collect(maps.Keys(g.edges))
	slices.SortFunc(edges, func(a, b Edge) int {
		if c := cmp.Compare(a.From, b.From); c != 0 {
			return c
		}
		return cmp.Compare(a.To, b.To)
	})
	return edges
}

// Count returns the number of nodes of kind k.
func (g *Graph) Count(k NodeKind) int {
	n := 0
	for _, node := range g.nodes {
		if node.Kind == k {
			n++
		}
	}
	return n
}

// Clusters groups remote node IDs by host. Hosts and IDs are sorted.
func (g *Graph) Clusters() map[string][]string {
	clusters := make(map[string][]string)
	for _, n := range g.nodes {
		if n.Kind == NodeRemote && n.Host != "" {
			clusters[n.Host] = append(clusters[n.Host], n.ID)
		}
	}
	for _, ids := range clusters {
		slices.Sort(ids)
	}
	return clusters
}

// DOT renders the graph in Graphviz syntax. Programs are boxes, files and
// remotes are ellipses, and remotes sharing a host sit in a dotted cluster.
func (g *Graph) DOT(name string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "digraph %s {\n", quoteDOT(name))
	sb.WriteString("    rankdir=LR;\n")
	sb.WriteString("\n")

	clusters := g.Clusters()
	clustered := make(map[string]bool)
	for _, ids := range clusters {
		for _, id := range ids {
			clustered[id] = true
		}
	}

	for _, n := range g.Nodes() {
		if clustered[n.ID] {
			continue
		}
		fmt.Fprintf(&sb, "    %s;\n", nodeDOT(n))
	}

	hosts := slices.Sorted(maps.Keys(clusters))
	for i, host := range hosts {
		fmt.Fprintf(&sb, "\n    subgraph cluster_%d {\n", i)
		sb.WriteString("        style=dotted;\n")
		fmt.Fprintf(&sb, "        label=%s;\n", quoteDOT(host))
		for _, id := range clusters[host] {
			fmt.Fprintf(&sb, "        %s;\n", nodeDOT(g.nodes[id]))
		}
		sb.WriteString("    }\n")
	}

	sb.WriteString("\n")
	for _, e := range g.Edges() {
		fmt.Fprintf(&sb, "    %s -> %s;\n", quoteDOT(e.From), quoteDOT(e.To))
	}

	sb.WriteString("}\n")
	return sb.String()
}

func nodeDOT(n Node) string {
	shape := "ellipse"
	if n.Kind == NodeProgram {
		shape = "box"
	}
	attrs := fmt.Sprintf("label=%s, shape=%s", quoteDOT(n.Label), shape)
	if n.Kind == NodeTarget {
		attrs += ", style=bold"
	}
	return fmt.Sprintf("%s [%s]", quoteDOT(n.ID), attrs)
}

func quoteDOT(s string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		"\"", "\\\"",
		"\n", "\\n",
	)
	return "\"" + replacer.Replace(s) + "\""
}

// nodeID derives a stable identifier from parts.
func nodeID(parts ...string) string {
	return fmt.Sprintf("n%016x", xxhash.Sum64String(strings.Join(parts, "\x00")))
}
