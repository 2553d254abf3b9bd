package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
)

var (
	// ErrFrozen is returned by mutating calls on a frozen graph.
	ErrFrozen = errors.New("graph is frozen")
	// ErrDuplicateTerm is returned when a term id is already present.
	ErrDuplicateTerm = errors.New("duplicate term id")
	// ErrUnknownTerm is returned when a relation endpoint does not exist.
	ErrUnknownTerm = errors.New("unknown term")
	// ErrInvalidTerm is returned for terms without an id.
	ErrInvalidTerm = errors.New("invalid term")
)

// NodeID is the arena index of a term inside one Graph.
type NodeID int32

// adjacency holds both directions of one relation type.
type adjacency struct {
	parents  [][]NodeID // indexed by child
	children [][]NodeID // indexed by parent
}

func (a *adjacency) grow(n int) {
	for len(a.parents) < n {
		a.parents = append(a.parents, nil)
		a.children = append(a.children, nil)
	}
}

// Graph is the term graph of one ontology. It is append-only while building
// and read-only after Freeze; all query methods are safe for concurrent use
// once frozen.
type Graph struct {
	ontology string
	policy   RootPolicy

	terms []*Term
	index map[string]NodeID // primary ids
	alt   map[string]NodeID // alternate ids

	rels     map[RelationType]*adjacency
	relOrder []RelationType
	edges    int

	typedefs map[string]string

	roots  []NodeID
	frozen atomic.Bool
}

// New creates an empty graph for the given ontology id.
func New(ontology string) *Graph {
	return &Graph{
		ontology: ontology,
		policy:   RootStrict,
		index:    make(map[string]NodeID),
		alt:      make(map[string]NodeID),
		rels:     make(map[RelationType]*adjacency),
		typedefs: make(map[string]string),
	}
}

// Ontology returns the ontology id the graph was built for.
func (g *Graph) Ontology() string { return g.ontology }

// RootPolicy returns the policy used to compute roots.
func (g *Graph) RootPolicy() RootPolicy { return g.policy }

// Frozen reports whether Freeze has been called.
func (g *Graph) Frozen() bool { return g.frozen.Load() }

// Len returns the number of terms.
func (g *Graph) Len() int { return len(g.terms) }

// SetRootPolicy selects the root detection policy applied by Freeze.
func (g *Graph) SetRootPolicy(p RootPolicy) error {
	if g.Frozen() {
		return ErrFrozen
	}
	g.policy = p
	return nil
}

// AddTerm appends a term. Alternate ids already claimed by another term are
// ignored so every lookup key maps to exactly one node.
func (g *Graph) AddTerm(t *Term) (NodeID, error) {
	if g.Frozen() {
		return 0, ErrFrozen
	}
	if t == nil || t.ID == "" {
		return 0, ErrInvalidTerm
	}
	if _, ok := g.index[t.ID]; ok {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateTerm, t.ID)
	}
	id := NodeID(len(g.terms))
	g.terms = append(g.terms, t)
	g.index[t.ID] = id
	// A primary id wins over an earlier alternate id with the same text.
	delete(g.alt, t.ID)
	for _, a := range t.AltIDs {
		if a == "" || a == t.ID {
			continue
		}
		if _, ok := g.index[a]; ok {
			continue
		}
		if _, ok := g.alt[a]; ok {
			continue
		}
		g.alt[a] = id
	}
	for _, adj := range g.rels {
		adj.grow(len(g.terms))
	}
	return id, nil
}

// AddRelation adds child -rel-> parent. Both endpoints must already exist
// (primary or alternate id). Duplicate edges are ignored.
func (g *Graph) AddRelation(childID string, rel RelationType, parentID string) error {
	if g.Frozen() {
		return ErrFrozen
	}
	c, ok := g.NodeID(childID)
	if !ok {
		return fmt.Errorf("%w: child %s", ErrUnknownTerm, childID)
	}
	p, ok := g.NodeID(parentID)
	if !ok {
		return fmt.Errorf("%w: parent %s", ErrUnknownTerm, parentID)
	}
	g.addEdge(c, rel, p)
	return nil
}

func (g *Graph) addEdge(c NodeID, rel RelationType, p NodeID) {
	adj, ok := g.rels[rel]
	if !ok {
		adj = &adjacency{}
		g.rels[rel] = adj
		g.relOrder = append(g.relOrder, rel)
	}
	adj.grow(len(g.terms))
	for _, existing := range adj.parents[c] {
		if existing == p {
			return
		}
	}
	adj.parents[c] = append(adj.parents[c], p)
	adj.children[p] = append(adj.children[p], c)
	g.edges++
}

// AddTypedef records a relation type declaration for inspection.
func (g *Graph) AddTypedef(id, name string) error {
	if g.Frozen() {
		return ErrFrozen
	}
	g.typedefs[id] = name
	return nil
}

// Typedefs returns declared relation types (id -> name).
func (g *Graph) Typedefs() map[string]string {
	out := make(map[string]string, len(g.typedefs))
	for k, v := range g.typedefs {
		out[k] = v
	}
	return out
}

// Freeze computes the root set and makes the graph immutable. Calling it
// again is a no-op.
func (g *Graph) Freeze() {
	if g.Frozen() {
		return
	}
	g.roots = g.computeRoots()
	g.frozen.Store(true)
}

// NodeID resolves a primary or alternate id to its arena index.
func (g *Graph) NodeID(id string) (NodeID, bool) {
	if n, ok := g.index[id]; ok {
		return n, true
	}
	n, ok := g.alt[id]
	return n, ok
}

// Node returns the term stored at n.
func (g *Graph) Node(n NodeID) *Term {
	if n < 0 || int(n) >= len(g.terms) {
		return nil
	}
	return g.terms[n]
}

// Term returns the term whose primary id is id.
func (g *Graph) Term(id string) (*Term, bool) {
	n, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.terms[n], true
}

// Lookup returns the term for a primary or alternate id.
func (g *Graph) Lookup(id string) (*Term, bool) {
	n, ok := g.NodeID(id)
	if !ok {
		return nil, false
	}
	return g.terms[n], true
}

// AltIDs returns the alternate-id table (alt id -> primary id).
func (g *Graph) AltIDs() map[string]string {
	out := make(map[string]string, len(g.alt))
	for a, n := range g.alt {
		out[a] = g.terms[n].ID
	}
	return out
}

// Terms returns all terms in insertion order.
func (g *Graph) Terms() []*Term {
	out := make([]*Term, len(g.terms))
	copy(out, g.terms)
	return out
}

// RelationTypes returns every relation type present, in first-seen order.
func (g *Graph) RelationTypes() []RelationType {
	out := make([]RelationType, len(g.relOrder))
	copy(out, g.relOrder)
	return out
}

// ParentNodes returns the direct parents of n under rel.
// The returned slice must not be modified.
func (g *Graph) ParentNodes(n NodeID, rel RelationType) []NodeID {
	adj, ok := g.rels[rel]
	if !ok || int(n) >= len(adj.parents) || n < 0 {
		return nil
	}
	return adj.parents[n]
}

// ChildNodes returns the direct children of n under rel.
// The returned slice must not be modified.
func (g *Graph) ChildNodes(n NodeID, rel RelationType) []NodeID {
	adj, ok := g.rels[rel]
	if !ok || int(n) >= len(adj.children) || n < 0 {
		return nil
	}
	return adj.children[n]
}

// DirectParents returns the direct parents of id under the given relation
// types, or under all relation types if none are given.
func (g *Graph) DirectParents(id string, rels ...RelationType) []*Term {
	n, ok := g.NodeID(id)
	if !ok {
		return nil
	}
	return g.collect(n, rels, g.ParentNodes)
}

// DirectChildren returns the direct children of id under the given relation
// types, or under all relation types if none are given.
func (g *Graph) DirectChildren(id string, rels ...RelationType) []*Term {
	n, ok := g.NodeID(id)
	if !ok {
		return nil
	}
	return g.collect(n, rels, g.ChildNodes)
}

func (g *Graph) collect(n NodeID, rels []RelationType, step func(NodeID, RelationType) []NodeID) []*Term {
	if len(rels) == 0 {
		rels = g.relOrder
	}
	seen := make(map[NodeID]struct{})
	var out []*Term
	for _, rel := range rels {
		for _, m := range step(n, rel) {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, g.terms[m])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Relations returns every edge, grouped by relation type in first-seen order.
func (g *Graph) Relations() []Relation {
	out := make([]Relation, 0, g.edges)
	for _, rel := range g.relOrder {
		adj := g.rels[rel]
		for c, parents := range adj.parents {
			for _, p := range parents {
				out = append(out, Relation{Child: g.terms[c].ID, Type: rel, Parent: g.terms[p].ID})
			}
		}
	}
	return out
}

// Roots returns the root terms computed by Freeze, sorted by id.
// It returns nil before Freeze.
func (g *Graph) Roots() []*Term {
	out := make([]*Term, 0, len(g.roots))
	for _, n := range g.roots {
		out = append(out, g.terms[n])
	}
	return out
}

// IsRoot reports whether id is in the root set.
func (g *Graph) IsRoot(id string) bool {
	n, ok := g.NodeID(id)
	if !ok {
		return false
	}
	i := sort.Search(len(g.roots), func(i int) bool { return g.terms[g.roots[i]].ID >= g.terms[n].ID })
	return i < len(g.roots) && g.roots[i] == n
}

// Stats returns aggregate counts.
func (g *Graph) Stats() Stats {
	s := Stats{
		Terms:           len(g.terms),
		Relations:       g.edges,
		Roots:           len(g.roots),
		RelationsByType: make(map[string]int, len(g.relOrder)),
	}
	for _, t := range g.terms {
		if t.Obsolete {
			s.Obsolete++
		}
	}
	for _, rel := range g.relOrder {
		count := 0
		for _, parents := range g.rels[rel].parents {
			count += len(parents)
		}
		s.RelationsByType[rel.String()] = count
	}
	return s
}

func (g *Graph) hasAnyParent(n NodeID) bool {
	for _, adj := range g.rels {
		if int(n) < len(adj.parents) && len(adj.parents[n]) > 0 {
			return true
		}
	}
	return false
}

func (g *Graph) computeRoots() []NodeID {
	var roots []NodeID
	for i := range g.terms {
		n := NodeID(i)
		var root bool
		switch g.policy {
		case RootGreedy:
			root = g.isGreedyRoot(n)
		default:
			root = !g.hasAnyParent(n)
		}
		if root {
			roots = append(roots, n)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return g.terms[roots[i]].ID < g.terms[roots[j]].ID })
	return roots
}

func (g *Graph) live(n NodeID) bool {
	t := g.terms[n]
	return !t.Obsolete && !t.Instance
}

// isGreedyRoot walks upward through obsolete and instance parents looking
// for a live ancestor.
func (g *Graph) isGreedyRoot(n NodeID) bool {
	if !g.live(n) {
		return false
	}
	visited := map[NodeID]struct{}{n: {}}
	stack := []NodeID{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, rel := range g.relOrder {
			for _, p := range g.ParentNodes(cur, rel) {
				if _, ok := visited[p]; ok {
					continue
				}
				visited[p] = struct{}{}
				if g.live(p) {
					return false
				}
				stack = append(stack, p)
			}
		}
	}
	return true
}
