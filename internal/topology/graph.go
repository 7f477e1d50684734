package topology

import (
	"strings"

	"go-topo/internal/category"
)

// CategorySource records where a node's category came from.
type CategorySource string

const (
	SourceInventory CategorySource = "inventory"
	SourceReported  CategorySource = "reported"
	SourceDefault   CategorySource = "default"
)

type Node struct {
	ID       string            `json:"id"`
	Category category.Category `json:"category"`
	Source   CategorySource    `json:"source"`
}

// Endpoint is one side of a physical connection.
type Endpoint struct {
	Device    string
	Interface string
}

func (e Endpoint) less(o Endpoint) bool {
	if e.Device != o.Device {
		return e.Device < o.Device
	}
	return e.Interface < o.Interface
}

// ConnectionID identifies a physical connection regardless of which side
// reported it.
type ConnectionID struct {
	First, Second Endpoint
}

// NewConnectionID returns the order-independent identity of a connection.
func NewConnectionID(a, b Endpoint) ConnectionID {
	if b.less(a) {
		a, b = b, a
	}
	return ConnectionID{First: a, Second: b}
}

// InterfacePair holds the interface on the A side and the B side of an edge.
type InterfacePair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Edge connects devices A and B (A <= B) over one or more interface pairs.
type Edge struct {
	A     string          `json:"a"`
	B     string          `json:"b"`
	Pairs []InterfacePair `json:"pairs"`
}

// Label renders the edge as "a1, a2 - b1, b2".
func (e Edge) Label() string {
	as := make([]string, 0, len(e.Pairs))
	bs := make([]string, 0, len(e.Pairs))
	for _, p := range e.Pairs {
		as = append(as, p.A)
		bs = append(bs, p.B)
	}
	return strings.Join(as, ", ") + " - " + strings.Join(bs, ", ")
}

func (e *Edge) addPair(p InterfacePair) bool {
	for _, have := range e.Pairs {
		if have == p {
			return false
		}
	}
	e.Pairs = append(e.Pairs, p)
	return true
}

type devicePair struct{ a, b string }

// orient returns the device pair in canonical order together with the
// interface pair oriented to it.
func orient(local, localIf, remote, remoteIf string) (devicePair, InterfacePair) {
	if remote < local {
		return devicePair{a: remote, b: local}, InterfacePair{A: remoteIf, B: localIf}
	}
	return devicePair{a: local, b: remote}, InterfacePair{A: localIf, B: remoteIf}
}

// Graph is an undirected multigraph of devices. Nodes and edges keep
// insertion order.
type Graph struct {
	nodes     []Node
	nodeIndex map[string]int
	edges     []Edge
	edgeIndex map[devicePair]int
}

func NewGraph() *Graph {
	return &Graph{
		nodeIndex: make(map[string]int),
		edgeIndex: make(map[devicePair]int),
	}
}

// Node returns the node with the given normalized id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.nodeIndex[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns the stored edges. In NoDedup mode the same device pair may
// appear several times; use Links for a grouped view.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, cloneEdge(e))
	}
	return out
}

// Links groups edges by unordered device pair, merging interface pairs in
// discovery order.
func (g *Graph) Links() []Edge {
	index := make(map[devicePair]int, len(g.edges))
	var out []Edge
	for _, e := range g.edges {
		key := devicePair{a: e.A, b: e.B}
		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, Edge{A: e.A, B: e.B})
			i = len(out) - 1
		}
		for _, p := range e.Pairs {
			out[i].addPair(p)
		}
	}
	return out
}

func (g *Graph) NodeCount() int { return len(g.nodes) }
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Empty reports whether there is nothing to render.
func (g *Graph) Empty() bool { return len(g.nodes) == 0 }

func (g *Graph) addNode(n Node) {
	g.nodeIndex[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
}

func (g *Graph) node(id string) (*Node, bool) {
	i, ok := g.nodeIndex[id]
	if !ok {
		return nil, false
	}
	return &g.nodes[i], true
}

// appendEdge adds a new edge for every call.
func (g *Graph) appendEdge(key devicePair, p InterfacePair) {
	g.edges = append(g.edges, Edge{A: key.a, B: key.b, Pairs: []InterfacePair{p}})
}

// accumulate adds p to the single edge between the device pair.
func (g *Graph) accumulate(key devicePair, p InterfacePair) bool {
	if i, ok := g.edgeIndex[key]; ok {
		return g.edges[i].addPair(p)
	}
	g.edgeIndex[key] = len(g.edges)
	g.appendEdge(key, p)
	return true
}

func cloneEdge(e Edge) Edge {
	pairs := make([]InterfacePair, len(e.Pairs))
	copy(pairs, e.Pairs)
	e.Pairs = pairs
	return e
}
