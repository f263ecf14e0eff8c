// Package graph holds the directed referral multigraph of one run. Entities
// live in an arena indexed by int; edges reference them by index so cycles
// need no back-pointers and traversal bounds are structural.
package graph

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/refintel/api/schemas"
)

var (
	// ErrGraphIntegrity reports an internal invariant violation, such as an
	// edge pointing at an entity that was never added. It aborts the run.
	ErrGraphIntegrity = errors.New("graph integrity violation")
	// ErrGraphFrozen is returned when a frozen builder is mutated.
	ErrGraphFrozen = errors.New("graph is frozen")
)

// Builder accumulates entities and edges. It is append-only; Freeze hands the
// contents over to a read-only Graph.
type Builder struct {
	entities []schemas.Entity
	byID     map[string]int
	edges    []schemas.ReferralEdge
	stats    schemas.IngestStats
	hasStats bool
	maxDepth int
	frozen   bool
	log      *zap.Logger
}

// NewBuilder creates an empty builder. maxDepth bounds reach and chain depth.
func NewBuilder(maxDepth int, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		byID:     make(map[string]int),
		maxDepth: maxDepth,
		log:      logger.Named("graph"),
	}
}

// AddEntity appends an entity and returns its arena index. The entity's Index
// field is overwritten with that position.
func (b *Builder) AddEntity(e schemas.Entity) (int, error) {
	if b.frozen {
		return 0, ErrGraphFrozen
	}
	if e.ID == "" {
		return 0, fmt.Errorf("%w: entity without id", ErrGraphIntegrity)
	}
	if _, dup := b.byID[e.ID]; dup {
		return 0, fmt.Errorf("%w: duplicate entity id '%s'", ErrGraphIntegrity, e.ID)
	}
	idx := len(b.entities)
	e.Index = idx
	b.entities = append(b.entities, e)
	b.byID[e.ID] = idx
	return idx, nil
}

// AddEdge appends one referral event. Parallel edges are kept; an edge whose
// endpoints are the same entity is flagged as a self loop.
func (b *Builder) AddEdge(e schemas.ReferralEdge) error {
	if b.frozen {
		return ErrGraphFrozen
	}
	if e.From < 0 || e.From >= len(b.entities) {
		return fmt.Errorf("%w: edge from record %d references unknown entity %d", ErrGraphIntegrity, e.RecordIndex, e.From)
	}
	if e.To < 0 || e.To >= len(b.entities) {
		return fmt.Errorf("%w: edge from record %d references unknown entity %d", ErrGraphIntegrity, e.RecordIndex, e.To)
	}
	e.SelfLoop = e.From == e.To
	b.edges = append(b.edges, e)
	return nil
}

// SetIngestStats attaches the record accounting of the run. When set, Freeze
// checks that every valid record produced exactly one edge.
func (b *Builder) SetIngestStats(s schemas.IngestStats) error {
	if b.frozen {
		return ErrGraphFrozen
	}
	b.stats = s
	b.hasStats = true
	return nil
}

// Freeze closes the builder and computes per-entity metrics.
func (b *Builder) Freeze() (*Graph, error) {
	if b.frozen {
		return nil, ErrGraphFrozen
	}
	if b.hasStats && b.stats.ValidRecords() != len(b.edges) {
		return nil, fmt.Errorf("%w: %d valid records produced %d edges", ErrGraphIntegrity, b.stats.ValidRecords(), len(b.edges))
	}
	b.frozen = true

	g := &Graph{
		entities: b.entities,
		byID:     b.byID,
		edges:    b.edges,
		stats:    b.stats,
		maxDepth: b.maxDepth,
		out:      make([][]int, len(b.entities)),
		in:       make([][]int, len(b.entities)),
		succ:     make([][]int, len(b.entities)),
	}
	if !b.hasStats {
		g.stats.RawRecords = len(b.edges)
	}
	g.index()
	g.computeMetrics()

	b.log.Info("Referral graph frozen",
		zap.Int("entities", len(g.entities)),
		zap.Int("edges", len(g.edges)),
		zap.Int("max_chain_depth", g.maxDepth))
	return g, nil
}

// Graph is the frozen referral multigraph. All accessors return copies; the
// graph itself is never mutated after Freeze.
type Graph struct {
	entities []schemas.Entity
	byID     map[string]int
	edges    []schemas.ReferralEdge
	stats    schemas.IngestStats
	maxDepth int

	out  [][]int // edge indexes by source entity
	in   [][]int // edge indexes by target entity
	succ [][]int // distinct non-self successors
	met  []schemas.EntityMetrics
}

func (g *Graph) index() {
	seen := make([]map[int]struct{}, len(g.entities))
	for i, e := range g.edges {
		g.out[e.From] = append(g.out[e.From], i)
		g.in[e.To] = append(g.in[e.To], i)
		if e.SelfLoop {
			continue
		}
		if seen[e.From] == nil {
			seen[e.From] = make(map[int]struct{})
		}
		if _, ok := seen[e.From][e.To]; !ok {
			seen[e.From][e.To] = struct{}{}
			g.succ[e.From] = append(g.succ[e.From], e.To)
		}
	}
}

// Len returns the number of entities.
func (g *Graph) Len() int { return len(g.entities) }

// EdgeCount returns the number of edges, self loops included.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// MaxChainDepth returns the hop bound used for reach and chain depth.
func (g *Graph) MaxChainDepth() int { return g.maxDepth }

// IngestStats returns the record accounting attached at build time.
func (g *Graph) IngestStats() schemas.IngestStats { return g.stats }

// Entity returns the entity at arena index i.
func (g *Graph) Entity(i int) schemas.Entity {
	return copyEntity(g.entities[i])
}

// EntityByID looks an entity up by its stable id.
func (g *Graph) EntityByID(id string) (schemas.Entity, bool) {
	i, ok := g.byID[id]
	if !ok {
		return schemas.Entity{}, false
	}
	return copyEntity(g.entities[i]), true
}

// Entities returns all entities in arena order.
func (g *Graph) Entities() []schemas.Entity {
	out := make([]schemas.Entity, len(g.entities))
	for i, e := range g.entities {
		out[i] = copyEntity(e)
	}
	return out
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []schemas.ReferralEdge {
	out := make([]schemas.ReferralEdge, len(g.edges))
	copy(out, g.edges)
	return out
}

// OutEdges returns the edges where entity i is the referrer.
func (g *Graph) OutEdges(i int) []schemas.ReferralEdge {
	return g.pick(g.out[i])
}

// InEdges returns the edges where entity i was referred.
func (g *Graph) InEdges(i int) []schemas.ReferralEdge {
	return g.pick(g.in[i])
}

func (g *Graph) pick(idx []int) []schemas.ReferralEdge {
	out := make([]schemas.ReferralEdge, len(idx))
	for k, i := range idx {
		out[k] = g.edges[i]
	}
	return out
}

// Metrics returns the structural metrics of entity i.
func (g *Graph) Metrics(i int) schemas.EntityMetrics {
	return g.met[i]
}

func copyEntity(e schemas.Entity) schemas.Entity {
	if e.RawIDs != nil {
		e.RawIDs = append([]string(nil), e.RawIDs...)
	}
	return e
}
