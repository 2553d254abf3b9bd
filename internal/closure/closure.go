// Package closure computes and memoizes transitive ancestor and descendant
// sets over a frozen term graph.
//
// A closure of x is every term reachable from x in one or more steps along
// the policy's relation set, excluding x itself. Traversal keeps an
// in-progress set; an edge back into it is a cycle in the source data and
// that branch is pruned, so malformed input always terminates.
package closure

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/imyousuf/ontograph/internal/graph"
)

// Policy selects which relation types a closure follows.
type Policy uint8

const (
	// PolicyIsA follows IS_A edges only.
	PolicyIsA Policy = iota
	// PolicyPartOf follows PART_OF and IS_A edges, so "part of X" reaches
	// the is-a children of X.
	PolicyPartOf
	// PolicyDevelopsFrom follows DEVELOPS_FROM and IS_A edges.
	PolicyDevelopsFrom

	numPolicies = 3
)

// Policies lists every policy in index order.
var Policies = []Policy{PolicyIsA, PolicyPartOf, PolicyDevelopsFrom}

var policyRelations = [numPolicies][]graph.RelationType{
	PolicyIsA:          {graph.IsA},
	PolicyPartOf:       {graph.PartOf, graph.IsA},
	PolicyDevelopsFrom: {graph.DevelopsFrom, graph.IsA},
}

// Relations returns the relation types followed by p.
func (p Policy) Relations() []graph.RelationType {
	if int(p) >= numPolicies {
		return nil
	}
	return policyRelations[p]
}

func (p Policy) String() string {
	switch p {
	case PolicyIsA:
		return "is_a"
	case PolicyPartOf:
		return "part_of"
	case PolicyDevelopsFrom:
		return "develops_from"
	}
	return fmt.Sprintf("policy(%d)", uint8(p))
}

// ParsePolicy parses a policy name. Empty means PolicyIsA.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "is_a", "isa":
		return PolicyIsA, nil
	case "part_of", "partof":
		return PolicyPartOf, nil
	case "develops_from", "developsfrom":
		return PolicyDevelopsFrom, nil
	}
	return 0, fmt.Errorf("unknown closure policy %q (want is_a, part_of or develops_from)", s)
}

// Direction of a closure.
type Direction uint8

const (
	Up   Direction = iota // ancestors
	Down                  // descendants
)

func (d Direction) String() string {
	if d == Up {
		return "ancestors"
	}
	return "descendants"
}

// Breadth is how far a subtree restriction extends.
type Breadth uint8

const (
	// BreadthNone accepts only the root itself.
	BreadthNone Breadth = iota
	// BreadthDirect accepts the root or one of its direct children.
	BreadthDirect
	// BreadthAll accepts the root or any descendant.
	BreadthAll
)

// ParseBreadth parses "none", "direct" or "all". Empty means BreadthAll.
func ParseBreadth(s string) (Breadth, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "exact":
		return BreadthNone, nil
	case "direct":
		return BreadthDirect, nil
	case "", "all":
		return BreadthAll, nil
	}
	return 0, fmt.Errorf("unknown breadth %q (want none, direct or all)", s)
}

func (b Breadth) String() string {
	switch b {
	case BreadthNone:
		return "none"
	case BreadthDirect:
		return "direct"
	}
	return "all"
}

// set is an immutable sorted node set.
type set []graph.NodeID

func (s set) contains(n graph.NodeID) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= n })
	return i < len(s) && s[i] == n
}

// Observer receives closure instrumentation events.
type Observer interface {
	ClosureComputed(policy, direction string)
	CycleDetected(policy string)
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger used to report cycles.
func WithLogger(l *slog.Logger) Option {
	return func(x *Index) {
		if l != nil {
			x.log = l
		}
	}
}

// WithObserver attaches an instrumentation sink.
func WithObserver(o Observer) Option {
	return func(x *Index) { x.obs = o }
}

// Index memoizes closures over one frozen graph. It is safe for concurrent
// use; two goroutines racing on the same term may both compute it, which
// wastes work but yields identical results.
type Index struct {
	g   *graph.Graph
	log *slog.Logger
	obs Observer

	memo   [numPolicies][2]sync.Map // NodeID -> set
	cycles sync.Map                 // cycleKey -> struct{}
}

type cycleKey struct {
	policy Policy
	node   graph.NodeID
}

// New creates an index over a frozen graph.
func New(g *graph.Graph, opts ...Option) (*Index, error) {
	if g == nil || !g.Frozen() {
		return nil, fmt.Errorf("closure index requires a frozen graph")
	}
	x := &Index{g: g, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(x)
	}
	x.log = x.log.With("ontology", g.Ontology())
	return x, nil
}

// Graph returns the graph the index covers.
func (x *Index) Graph() *graph.Graph { return x.g }

func (x *Index) closure(n graph.NodeID, p Policy, d Direction) set {
	memo := &x.memo[p][d]
	if v, ok := memo.Load(n); ok {
		return v.(set)
	}
	s := x.compute(n, p, d)
	actual, _ := memo.LoadOrStore(n, s)
	if x.obs != nil {
		x.obs.ClosureComputed(p.String(), d.String())
	}
	return actual.(set)
}

type frame struct {
	node graph.NodeID
	next []graph.NodeID
}

// compute runs an iterative DFS from start. Nodes whose closure is already
// memoized are not expanded; their sets are merged instead.
func (x *Index) compute(start graph.NodeID, p Policy, d Direction) set {
	memo := &x.memo[p][d]
	rels := p.Relations()
	step := x.g.ParentNodes
	if d == Down {
		step = x.g.ChildNodes
	}
	neighbors := func(n graph.NodeID) []graph.NodeID {
		if len(rels) == 1 {
			return step(n, rels[0])
		}
		var out []graph.NodeID
		for _, r := range rels {
			out = append(out, step(n, r)...)
		}
		return out
	}

	reached := make(map[graph.NodeID]struct{})
	inProgress := map[graph.NodeID]struct{}{start: {}}
	done := make(map[graph.NodeID]struct{})
	stack := []frame{{node: start, next: neighbors(start)}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if len(top.next) == 0 {
			delete(inProgress, top.node)
			done[top.node] = struct{}{}
			stack = stack[:len(stack)-1]
			continue
		}
		m := top.next[0]
		top.next = top.next[1:]

		if _, ok := inProgress[m]; ok {
			x.reportCycle(p, top.node, m)
			continue
		}
		if _, ok := done[m]; ok {
			continue
		}
		reached[m] = struct{}{}
		if v, ok := memo.Load(m); ok {
			for _, k := range v.(set) {
				reached[k] = struct{}{}
			}
			done[m] = struct{}{}
			continue
		}
		inProgress[m] = struct{}{}
		stack = append(stack, frame{node: m, next: neighbors(m)})
	}

	delete(reached, start)
	out := make(set, 0, len(reached))
	for k := range reached {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (x *Index) reportCycle(p Policy, from, to graph.NodeID) {
	if _, loaded := x.cycles.LoadOrStore(cycleKey{policy: p, node: to}, struct{}{}); loaded {
		return
	}
	if x.obs != nil {
		x.obs.CycleDetected(p.String())
	}
	x.log.Warn("cycle detected, pruning branch",
		"policy", p.String(),
		"from", x.g.Node(from).ID,
		"to", x.g.Node(to).ID)
}

func (x *Index) terms(s set) []*graph.Term {
	out := make([]*graph.Term, len(s))
	for i, n := range s {
		out[i] = x.g.Node(n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Ancestors returns the transitive ancestors of id under p, sorted by id.
// Unknown ids yield nil.
func (x *Index) Ancestors(id string, p Policy) []*graph.Term {
	n, ok := x.g.NodeID(id)
	if !ok || int(p) >= numPolicies {
		return nil
	}
	return x.terms(x.closure(n, p, Up))
}

// Descendants returns the transitive descendants of id under p, sorted by id.
// Unknown ids yield nil.
func (x *Index) Descendants(id string, p Policy) []*graph.Term {
	n, ok := x.g.NodeID(id)
	if !ok || int(p) >= numPolicies {
		return nil
	}
	return x.terms(x.closure(n, p, Down))
}

// AncestorIDs is Ancestors returning ids.
func (x *Index) AncestorIDs(id string, p Policy) []string {
	return termIDs(x.Ancestors(id, p))
}

// DescendantIDs is Descendants returning ids.
func (x *Index) DescendantIDs(id string, p Policy) []string {
	return termIDs(x.Descendants(id, p))
}

func termIDs(terms []*graph.Term) []string {
	if terms == nil {
		return nil
	}
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.ID
	}
	return out
}

// IsAncestor reports whether ancestor is in the closure of id under p.
func (x *Index) IsAncestor(id, ancestor string, p Policy) bool {
	n, ok := x.g.NodeID(id)
	if !ok || int(p) >= numPolicies {
		return false
	}
	a, ok := x.g.NodeID(ancestor)
	if !ok {
		return false
	}
	return x.closure(n, p, Up).contains(a)
}

// IsDescendantOf is the subtree restriction used by validators, under the
// IS_A policy.
func (x *Index) IsDescendantOf(term, root string, b Breadth) bool {
	return x.IsDescendantOfWith(PolicyIsA, term, root, b)
}

// IsDescendantOfWith checks whether term lies in root's subtree under p:
// BreadthNone requires term == root, BreadthDirect also accepts direct
// children, BreadthAll accepts any descendant.
func (x *Index) IsDescendantOfWith(p Policy, term, root string, b Breadth) bool {
	t, ok := x.g.NodeID(term)
	if !ok || int(p) >= numPolicies {
		return false
	}
	r, ok := x.g.NodeID(root)
	if !ok {
		return false
	}
	if t == r {
		return true
	}
	switch b {
	case BreadthDirect:
		for _, rel := range p.Relations() {
			for _, c := range x.g.ChildNodes(r, rel) {
				if c == t {
					return true
				}
			}
		}
		return false
	case BreadthAll:
		return x.closure(t, p, Up).contains(r)
	}
	return false
}

// Warm computes the closures of every root term under every policy.
func (x *Index) Warm() {
	for _, root := range x.g.Roots() {
		n, _ := x.g.NodeID(root.ID)
		for _, p := range Policies {
			x.closure(n, p, Down)
		}
	}
}

// Len returns the number of memoized closures.
func (x *Index) Len() int {
	total := 0
	for p := range x.memo {
		for d := range x.memo[p] {
			x.memo[p][d].Range(func(_, _ any) bool {
				total++
				return true
			})
		}
	}
	return total
}

// Entry is one memoized closure in a Snapshot.
type Entry struct {
	Policy    Policy         `json:"p"`
	Direction Direction      `json:"d"`
	Node      graph.NodeID   `json:"n"`
	Set       []graph.NodeID `json:"s"`
}

// Snapshot is the serializable memo of an Index.
type Snapshot struct {
	Entries []Entry `json:"entries"`
}

// Snapshot exports every memoized closure, ordered by policy, direction and
// node.
func (x *Index) Snapshot() *Snapshot {
	s := &Snapshot{}
	for p := range x.memo {
		for d := range x.memo[p] {
			start := len(s.Entries)
			x.memo[p][d].Range(func(k, v any) bool {
				s.Entries = append(s.Entries, Entry{
					Policy:    Policy(p),
					Direction: Direction(d),
					Node:      k.(graph.NodeID),
					Set:       v.(set),
				})
				return true
			})
			part := s.Entries[start:]
			sort.Slice(part, func(i, j int) bool { return part[i].Node < part[j].Node })
		}
	}
	return s
}

// Restore builds an index over g with its memo pre-populated from snap.
// Entries referencing nodes outside g are rejected.
func Restore(g *graph.Graph, snap *Snapshot, opts ...Option) (*Index, error) {
	x, err := New(g, opts...)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return x, nil
	}
	n := graph.NodeID(g.Len())
	valid := func(id graph.NodeID) bool { return id >= 0 && id < n }
	for i, e := range snap.Entries {
		if int(e.Policy) >= numPolicies || e.Direction > Down || !valid(e.Node) {
			return nil, fmt.Errorf("%w: closure entry %d", graph.ErrCorruptSnapshot, i)
		}
		s := make(set, len(e.Set))
		for j, m := range e.Set {
			if !valid(m) {
				return nil, fmt.Errorf("%w: closure entry %d references node %d", graph.ErrCorruptSnapshot, i, m)
			}
			s[j] = m
		}
		sort.Slice(s, func(a, b int) bool { return s[a] < s[b] })
		x.memo[e.Policy][e.Direction].Store(e.Node, s)
	}
	return x, nil
}
