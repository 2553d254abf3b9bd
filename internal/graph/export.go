package graph

import (
	"errors"
	"fmt"
)

// ErrCorruptSnapshot is returned when a snapshot references nodes that do
// not exist or carries an invalid term.
var ErrCorruptSnapshot = errors.New("corrupt graph snapshot")

// EdgeRecord is one edge in a Snapshot, as arena indices.
type EdgeRecord struct {
	Child  NodeID       `json:"c"`
	Type   RelationType `json:"t"`
	Parent NodeID       `json:"p"`
}

// Snapshot is a plain serializable form of a frozen graph.
type Snapshot struct {
	Ontology   string            `json:"ontology"`
	RootPolicy RootPolicy        `json:"root_policy"`
	Terms      []*Term           `json:"terms"`
	Edges      []EdgeRecord      `json:"edges"`
	Roots      []NodeID          `json:"roots"`
	Typedefs   map[string]string `json:"typedefs,omitempty"`
}

// Snapshot exports the graph. The graph must be frozen.
func (g *Graph) Snapshot() (*Snapshot, error) {
	if !g.Frozen() {
		return nil, fmt.Errorf("snapshot of unfrozen graph %s", g.ontology)
	}
	s := &Snapshot{
		Ontology:   g.ontology,
		RootPolicy: g.policy,
		Terms:      g.terms,
		Edges:      make([]EdgeRecord, 0, g.edges),
		Roots:      g.roots,
		Typedefs:   g.typedefs,
	}
	for _, rel := range g.relOrder {
		for c, parents := range g.rels[rel].parents {
			for _, p := range parents {
				s.Edges = append(s.Edges, EdgeRecord{Child: NodeID(c), Type: rel, Parent: p})
			}
		}
	}
	return s, nil
}

// FromSnapshot rebuilds a frozen graph. Node indices are preserved so
// closure snapshots taken against the original graph stay valid.
func FromSnapshot(s *Snapshot) (*Graph, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrCorruptSnapshot)
	}
	g := New(s.Ontology)
	if s.RootPolicy != "" {
		g.policy = s.RootPolicy
	}
	for i, t := range s.Terms {
		if _, err := g.AddTerm(t); err != nil {
			return nil, fmt.Errorf("%w: term %d: %v", ErrCorruptSnapshot, i, err)
		}
	}
	n := NodeID(len(g.terms))
	for _, e := range s.Edges {
		if e.Child < 0 || e.Child >= n || e.Parent < 0 || e.Parent >= n {
			return nil, fmt.Errorf("%w: edge %d -> %d out of range", ErrCorruptSnapshot, e.Child, e.Parent)
		}
		g.addEdge(e.Child, e.Type, e.Parent)
	}
	for k, v := range s.Typedefs {
		g.typedefs[k] = v
	}
	for _, r := range s.Roots {
		if r < 0 || r >= n {
			return nil, fmt.Errorf("%w: root %d out of range", ErrCorruptSnapshot, r)
		}
	}
	g.roots = append([]NodeID(nil), s.Roots...)
	g.frozen.Store(true)
	return g, nil
}
