// Package registry owns every loaded ontology and answers the queries
// validators make: identifier resolution, name search and subtree checks.
//
// A Registry starts loading and becomes ready once LoadAll succeeds; after
// that it is read-only. Until then every query behaves as if the registry
// were empty.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"

	"github.com/imyousuf/ontograph/internal/closure"
	"github.com/imyousuf/ontograph/internal/config"
	"github.com/imyousuf/ontograph/internal/graph"
	"github.com/imyousuf/ontograph/internal/loader"
	"github.com/imyousuf/ontograph/internal/parser"
)

var (
	// ErrLoad is returned when a configured ontology cannot be loaded.
	ErrLoad = errors.New("load ontology")
	// ErrAlreadyLoaded is returned by a second LoadAll.
	ErrAlreadyLoaded = errors.New("registry already loaded")
	// ErrInvalidConfig is returned for an unusable ontology list.
	ErrInvalidConfig = errors.New("invalid ontology configuration")
)

// DefaultConcurrency bounds parallel loads when none is configured.
const DefaultConcurrency = 4

// Loader loads one configured ontology.
type Loader interface {
	Load(ctx context.Context, src config.OntologySource) (*loader.Result, error)
}

// Entry is one loaded ontology.
type Entry struct {
	ID       string
	Source   string
	Graph    *graph.Graph
	Closure  *closure.Index
	Header   parser.Header
	Stats    parser.Stats
	Origin   string
	Duration time.Duration
}

// Ref is a term together with the ontology that holds it.
type Ref struct {
	Ontology string
	Term     *graph.Term
}

// ID returns the term id.
func (r Ref) ID() string { return r.Term.ID }

func (r Ref) String() string { return r.Ontology + "/" + r.Term.ID }

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithConcurrency bounds how many ontologies load at once.
func WithConcurrency(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithNormalizers replaces the identifier extraction chain used by Resolve.
func WithNormalizers(n ...Normalizer) Option {
	return func(r *Registry) { r.normalizers = n }
}

type state uint8

const (
	stateIdle state = iota
	stateLoading
	stateReady
	stateFailed
)

// idEntry locates a term by id: index into order, and the node.
type idEntry struct {
	ont  int
	node graph.NodeID
}

// Registry maps ontology ids to their graphs and closure indices.
type Registry struct {
	loader      Loader
	log         *slog.Logger
	concurrency int
	normalizers []Normalizer

	mu      sync.RWMutex
	state   state
	entries map[string]*Entry
	pending []*Entry // registered before LoadAll

	// Built when the registry becomes ready.
	order []*Entry
	pos   map[string]int
	ids   map[string]idEntry
	names map[string][]Ref
}

// New creates a registry that loads through l. l may be nil when every
// entry is added with Register.
func New(l Loader, opts ...Option) *Registry {
	r := &Registry{
		loader:      l,
		log:         slog.New(slog.DiscardHandler),
		concurrency: DefaultConcurrency,
		normalizers: DefaultNormalizers(),
		entries:     make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a pre-built entry. It must be called before LoadAll; the
// entry precedes configured ontologies in resolution order.
func (r *Registry) Register(e *Entry) error {
	if e == nil || e.ID == "" || e.Graph == nil || e.Closure == nil {
		return fmt.Errorf("%w: incomplete entry", ErrInvalidConfig)
	}
	if !e.Graph.Frozen() {
		return fmt.Errorf("%w: graph of %s is not frozen", ErrInvalidConfig, e.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateIdle {
		return ErrAlreadyLoaded
	}
	if _, dup := r.entries[e.ID]; dup {
		return fmt.Errorf("%w: duplicate ontology id %s", ErrInvalidConfig, e.ID)
	}
	r.entries[e.ID] = e
	r.pending = append(r.pending, e)
	return nil
}

// LoadAll loads every source concurrently and makes the registry ready. Any
// single failure is fatal: the error names the ontology and the registry
// stays un-ready. LoadAll may only be called once.
func (r *Registry) LoadAll(ctx context.Context, sources []config.OntologySource) error {
	r.mu.Lock()
	if r.state != stateIdle {
		r.mu.Unlock()
		return ErrAlreadyLoaded
	}
	if err := r.validate(sources); err != nil {
		r.mu.Unlock()
		return err
	}
	r.state = stateLoading
	r.mu.Unlock()

	start := time.Now()
	loaded := make([]*Entry, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			res, err := r.loader.Load(gctx, src)
			if err != nil {
				return fmt.Errorf("%w %s: %w", ErrLoad, src.ID, err)
			}
			e := &Entry{
				ID:       src.ID,
				Source:   src.Source,
				Graph:    res.Graph,
				Closure:  res.Closure,
				Header:   res.Header,
				Stats:    res.Stats,
				Origin:   res.Origin,
				Duration: res.Duration,
			}
			r.mu.Lock()
			r.entries[src.ID] = e
			r.mu.Unlock()
			loaded[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.mu.Lock()
		r.state = stateFailed
		r.mu.Unlock()
		r.log.Error("ontology load failed", "error", err)
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.build(append(r.pending, loaded...))
	r.state = stateReady
	r.log.Info("registry ready",
		"ontologies", len(r.order),
		"ids", len(r.ids),
		"names", len(r.names),
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

func (r *Registry) validate(sources []config.OntologySource) error {
	if len(sources) == 0 && len(r.pending) == 0 {
		return fmt.Errorf("%w: no ontologies configured", ErrInvalidConfig)
	}
	if len(sources) > 0 && r.loader == nil {
		return fmt.Errorf("%w: no loader", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(sources))
	for id := range r.entries {
		seen[id] = true
	}
	for i, src := range sources {
		switch {
		case src.ID == "":
			return fmt.Errorf("%w: ontology %d has no id", ErrInvalidConfig, i)
		case src.Source == "":
			return fmt.Errorf("%w: ontology %s has no source", ErrInvalidConfig, src.ID)
		case seen[src.ID]:
			return fmt.Errorf("%w: duplicate ontology id %s", ErrInvalidConfig, src.ID)
		}
		seen[src.ID] = true
	}
	return nil
}

// build fills the reverse tables from entries in resolution order. The
// first ontology to claim an id keeps it.
func (r *Registry) build(order []*Entry) {
	fold := cases.Fold()
	r.order = order
	r.pos = make(map[string]int, len(order))
	r.ids = make(map[string]idEntry)
	r.names = make(map[string][]Ref)

	for i, e := range order {
		r.pos[e.ID] = i
		for n, t := range e.Graph.Terms() {
			ref := idEntry{ont: i, node: graph.NodeID(n)}
			if _, taken := r.ids[t.ID]; !taken {
				r.ids[t.ID] = ref
			}
			var folded []string
			for _, name := range t.Names() {
				key := fold.String(strings.TrimSpace(name))
				if key == "" || contains(folded, key) {
					continue
				}
				folded = append(folded, key)
				r.names[key] = append(r.names[key], Ref{Ontology: e.ID, Term: t})
			}
		}
	}
	// Alternate ids only claim what no primary id holds.
	for i, e := range order {
		for alt, primary := range e.Graph.AltIDs() {
			if _, taken := r.ids[alt]; taken {
				continue
			}
			n, _ := e.Graph.NodeID(primary)
			r.ids[alt] = idEntry{ont: i, node: n}
		}
	}
	for _, refs := range r.names {
		r.sortRefs(refs)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// sortRefs orders refs by ontology position, then id.
func (r *Registry) sortRefs(refs []Ref) {
	sort.SliceStable(refs, func(i, j int) bool {
		pi, pj := r.pos[refs[i].Ontology], r.pos[refs[j].Ontology]
		if pi != pj {
			return pi < pj
		}
		return refs[i].Term.ID < refs[j].Term.ID
	})
}

// Ready reports whether LoadAll has completed successfully.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state == stateReady
}

// Entry returns a loaded ontology by id.
func (r *Registry) Entry(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state != stateReady {
		return nil, false
	}
	i, ok := r.pos[id]
	if !ok {
		return nil, false
	}
	return r.order[i], true
}

// Ontologies returns every loaded ontology in resolution order.
func (r *Registry) Ontologies() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state != stateReady {
		return nil
	}
	out := make([]*Entry, len(r.order))
	copy(out, r.order)
	return out
}

// Resolve maps an external identifier (MIRIAM URN, resolver URL, CURIE or
// bare accession) to a term. Unknown identifiers are not an error.
func (r *Registry) Resolve(uri string) (Ref, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolve(uri)
}

func (r *Registry) resolve(uri string) (Ref, bool) {
	if r.state != stateReady {
		return Ref{}, false
	}
	cands := candidates(uri, r.normalizers)
	for _, c := range cands {
		if ref, ok := r.lookup(c); ok {
			return ref, true
		}
	}
	// Bare local parts ("0005737") are qualified with each ontology id.
	for _, e := range r.order {
		for _, c := range cands {
			if strings.IndexByte(c, ':') >= 0 {
				continue
			}
			if ref, ok := r.lookup(e.ID + ":" + c); ok && ref.Ontology == e.ID {
				return ref, true
			}
		}
	}
	return Ref{}, false
}

func (r *Registry) lookup(id string) (Ref, bool) {
	ie, ok := r.ids[id]
	if !ok {
		return Ref{}, false
	}
	e := r.order[ie.ont]
	return Ref{Ontology: e.ID, Term: e.Graph.Node(ie.node)}, true
}

// SearchByName returns every term whose preferred name or synonym matches
// name under Unicode case folding, optionally restricted to the given
// ontologies. Results are ordered by ontology then id; ambiguity is left to
// the caller.
func (r *Registry) SearchByName(name string, ontologyIDs ...string) []Ref {
	key := cases.Fold().String(strings.TrimSpace(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state != stateReady || key == "" {
		return nil
	}
	refs := r.names[key]
	if len(ontologyIDs) == 0 {
		return append([]Ref(nil), refs...)
	}
	var out []Ref
	for _, ref := range refs {
		if contains(ontologyIDs, ref.Ontology) {
			out = append(out, ref)
		}
	}
	return out
}

// resolvePair resolves term and root into the same ontology.
func (r *Registry) resolvePair(term, root string) (*Entry, Ref, Ref, bool) {
	t, ok := r.resolve(term)
	if !ok {
		return nil, Ref{}, Ref{}, false
	}
	rt, ok := r.resolve(root)
	if !ok || rt.Ontology != t.Ontology {
		return nil, Ref{}, Ref{}, false
	}
	return r.order[r.pos[t.Ontology]], t, rt, true
}

// IsDescendantOf checks term against root's subtree under the IS_A policy.
// Both arguments go through Resolve; terms from different ontologies are
// never related.
func (r *Registry) IsDescendantOf(term, root string, b closure.Breadth) bool {
	return r.IsDescendantOfWith(closure.PolicyIsA, term, root, b)
}

// IsDescendantOfWith is IsDescendantOf under an explicit closure policy.
func (r *Registry) IsDescendantOfWith(p closure.Policy, term, root string, b closure.Breadth) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, t, rt, ok := r.resolvePair(term, root)
	if !ok {
		return false
	}
	return e.Closure.IsDescendantOfWith(p, t.ID(), rt.ID(), b)
}

// DirectParents returns the direct parents of term under rels (all relation
// types when none are given).
func (r *Registry) DirectParents(term string, rels ...graph.RelationType) []Ref {
	return r.neighbors(term, true, rels)
}

// DirectChildren returns the direct children of term under rels (all
// relation types when none are given).
func (r *Registry) DirectChildren(term string, rels ...graph.RelationType) []Ref {
	return r.neighbors(term, false, rels)
}

func (r *Registry) neighbors(term string, up bool, rels []graph.RelationType) []Ref {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.resolve(term)
	if !ok {
		return nil
	}
	g := r.order[r.pos[ref.Ontology]].Graph
	var terms []*graph.Term
	if up {
		terms = g.DirectParents(ref.ID(), rels...)
	} else {
		terms = g.DirectChildren(ref.ID(), rels...)
	}
	return refs(ref.Ontology, terms)
}

// Ancestors returns the transitive ancestors of term under p.
func (r *Registry) Ancestors(term string, p closure.Policy) []Ref {
	return r.closure(term, p, true)
}

// Descendants returns the transitive descendants of term under p.
func (r *Registry) Descendants(term string, p closure.Policy) []Ref {
	return r.closure(term, p, false)
}

func (r *Registry) closure(term string, p closure.Policy, up bool) []Ref {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.resolve(term)
	if !ok {
		return nil
	}
	x := r.order[r.pos[ref.Ontology]].Closure
	if up {
		return refs(ref.Ontology, x.Ancestors(ref.ID(), p))
	}
	return refs(ref.Ontology, x.Descendants(ref.ID(), p))
}

// Roots returns the root terms of an ontology.
func (r *Registry) Roots(ontologyID string) []Ref {
	e, ok := r.Entry(ontologyID)
	if !ok {
		return nil
	}
	return refs(e.ID, e.Graph.Roots())
}

func refs(ontology string, terms []*graph.Term) []Ref {
	if len(terms) == 0 {
		return nil
	}
	out := make([]Ref, len(terms))
	for i, t := range terms {
		out[i] = Ref{Ontology: ontology, Term: t}
	}
	return out
}
