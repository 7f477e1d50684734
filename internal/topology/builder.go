package topology

import (
	"log/slog"
	"strings"

	"go-topo/internal/category"
)

// EdgePolicy decides what happens when the same physical link is reported
// more than once.
type EdgePolicy int

const (
	// DedupByInterfacePair keeps one edge per device pair and drops reports
	// whose connection identity was already recorded.
	DedupByInterfacePair EdgePolicy = iota
	// NoDedup turns every neighbor record into its own edge.
	NoDedup
)

func (p EdgePolicy) String() string {
	switch p {
	case DedupByInterfacePair:
		return "dedup"
	case NoDedup:
		return "multigraph"
	}
	return "unknown"
}

// PolicyFor maps the dedup switch to a policy.
func PolicyFor(dedup bool) EdgePolicy {
	if dedup {
		return DedupByInterfacePair
	}
	return NoDedup
}

type Options struct {
	Policy     EdgePolicy
	Categories category.Table
	Logger     *slog.Logger
}

// Builder turns per-device neighbor reports into a Graph. It holds no state
// between builds.
type Builder struct {
	policy     EdgePolicy
	categories category.Table
	log        *slog.Logger
}

func NewBuilder(opts Options) *Builder {
	if opts.Categories == nil {
		opts.Categories = category.DefaultTable()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{
		policy:     opts.Policy,
		categories: opts.Categories,
		log:        opts.Logger,
	}
}

func (b *Builder) Policy() EdgePolicy { return b.policy }

// Result is the outcome of one build.
type Result struct {
	Graph    *Graph
	Warnings []Warning
}

// Build constructs the topology graph from devices in inventory order.
// Malformed devices and records are skipped and reported as warnings; only a
// nil device list is an error.
func (b *Builder) Build(devices []DeviceInput) (Result, error) {
	if devices == nil {
		return Result{}, ErrNilInput
	}

	g := NewGraph()
	seen := make(map[ConnectionID]struct{})
	var warnings []Warning

	for i, dev := range devices {
		local := NormalizeIdentity(dev.Identity)
		if local == "" {
			warnings = append(warnings, Warning{Input: i, Record: -1, Err: ErrMalformedDevice})
			continue
		}
		b.addInventoryNode(g, local, dev.Category)

		for j, rec := range dev.Neighbors {
			if err := rec.Validate(); err != nil {
				warnings = append(warnings, Warning{Device: local, Input: i, Record: j, Err: err})
				continue
			}

			remote := NormalizeIdentity(rec.Neighbor)
			b.addNeighborNode(g, remote, rec.Platform)

			localIf := strings.TrimSpace(rec.LocalInterface)
			remoteIf := strings.TrimSpace(rec.NeighborInterface)
			key, pair := orient(local, localIf, remote, remoteIf)

			if b.policy == NoDedup {
				g.appendEdge(key, pair)
				b.log.Debug("adding edge", "a", key.a, "b", key.b, "a_if", pair.A, "b_if", pair.B)
				continue
			}

			id := NewConnectionID(Endpoint{local, localIf}, Endpoint{remote, remoteIf})
			if _, dup := seen[id]; dup {
				b.log.Debug("skipping duplicate connection", "a", key.a, "b", key.b, "a_if", pair.A, "b_if", pair.B)
				continue
			}
			seen[id] = struct{}{}
			if g.accumulate(key, pair) {
				b.log.Debug("adding edge", "a", key.a, "b", key.b, "a_if", pair.A, "b_if", pair.B)
			}
		}
	}

	return Result{Graph: g, Warnings: warnings}, nil
}

// addInventoryNode adds a polled device. An inventory category replaces a
// category that came from a neighbor report or the default, but never an
// earlier inventory category.
func (b *Builder) addInventoryNode(g *Graph, id, model string) {
	n, ok := g.node(id)
	if !ok {
		c := b.categories.Resolve(model)
		g.addNode(Node{ID: id, Category: c, Source: SourceInventory})
		b.log.Debug("adding node", "node", id, "category", c)
		return
	}
	if n.Source == SourceInventory {
		return
	}
	n.Category = b.categories.Resolve(model)
	n.Source = SourceInventory
	b.log.Debug("node category set from inventory", "node", id, "category", n.Category)
}

// addNeighborNode adds a reported neighbor if it is not known yet.
func (b *Builder) addNeighborNode(g *Graph, id, platform string) {
	if _, ok := g.node(id); ok {
		return
	}
	c, known := b.categories.Lookup(platform)
	src := SourceReported
	if !known {
		src = SourceDefault
	}
	g.addNode(Node{ID: id, Category: c, Source: src})
	b.log.Debug("adding node", "node", id, "category", c, "source", src)
}
