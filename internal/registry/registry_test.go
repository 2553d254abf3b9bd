package registry

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/imyousuf/ontograph/internal/cache"
	"github.com/imyousuf/ontograph/internal/closure"
	"github.com/imyousuf/ontograph/internal/config"
	"github.com/imyousuf/ontograph/internal/graph"
	"github.com/imyousuf/ontograph/internal/loader"
	"github.com/imyousuf/ontograph/internal/metrics"
	"github.com/imyousuf/ontograph/internal/parser"
	"github.com/imyousuf/ontograph/internal/parser/obo"
)

const goOBO = `format-version: 1.2

[Term]
id: GO:0005575
name: cellular_component

[Term]
id: GO:0005623
name: cell
is_a: GO:0005575

[Term]
id: GO:0005737
name: cytoplasm
alt_id: GO:0000001
synonym: "Zytoplasma" RELATED []
is_a: GO:0005575
relationship: part_of GO:0005623

[Term]
id: GO:0005739
name: mitochondrion
is_a: GO:0005575
relationship: part_of GO:0005737
`

const clOBO = `format-version: 1.2

[Term]
id: CL:0000000
name: cell

[Term]
id: CL:0000540
name: neuron
is_a: CL:0000000
`

// stubLoader parses in-memory sources keyed by source location.
type stubLoader struct {
	sources map[string]string
	fail    map[string]error
	calls   atomic.Int32
}

func (s *stubLoader) Load(_ context.Context, src config.OntologySource) (*loader.Result, error) {
	s.calls.Add(1)
	if err := s.fail[src.ID]; err != nil {
		return nil, err
	}
	res, err := obo.NewParser().Parse(strings.NewReader(s.sources[src.Source]), parser.ParseOptions{Ontology: src.ID})
	if err != nil {
		return nil, err
	}
	res.Graph.Freeze()
	x, err := closure.New(res.Graph)
	if err != nil {
		return nil, err
	}
	return &loader.Result{
		Bundle: &cache.Bundle{Ontology: src.ID, Graph: res.Graph, Closure: x, Header: res.Header},
		Origin: metrics.OriginSource,
		Stats:  res.Stats,
	}, nil
}

func newStub() *stubLoader {
	return &stubLoader{sources: map[string]string{"go.obo": goOBO, "cl.obo": clOBO}}
}

var testSources = []config.OntologySource{
	{ID: "GO", Source: "go.obo"},
	{ID: "CL", Source: "cl.obo"},
}

func newLoaded(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	r := New(newStub(), opts...)
	if err := r.LoadAll(context.Background(), testSources); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	return r
}

func refIDs(refs []Ref) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.String()
	}
	return out
}

func TestResolveIdentifierShapes(t *testing.T) {
	r := newLoaded(t)

	uris := []string{
		"urn:miriam:obo.go:GO%3A0005737",
		"GO:0005737",
		"go:0005737",
		"http://identifiers.org/GO:0005737",
		"https://identifiers.org/go/GO:0005737",
		"http://purl.obolibrary.org/obo/GO_0005737",
		"0005737",
		"GO:0000001",
		"  GO:0005737 ",
	}
	for _, uri := range uris {
		ref, ok := r.Resolve(uri)
		if !ok {
			t.Errorf("Resolve(%q) did not resolve", uri)
			continue
		}
		if ref.Ontology != "GO" || ref.ID() != "GO:0005737" {
			t.Errorf("Resolve(%q) = %s, want GO/GO:0005737", uri, ref)
		}
	}

	for _, uri := range []string{"", "GO:9999999", "urn:miriam:obo.go:", "http://identifiers.org/"} {
		if ref, ok := r.Resolve(uri); ok {
			t.Errorf("Resolve(%q) = %s, want no match", uri, ref)
		}
	}
}

func TestCytoplasmScenario(t *testing.T) {
	r := newLoaded(t)

	hits := r.SearchByName("Cytoplasm")
	if got := refIDs(hits); !reflect.DeepEqual(got, []string{"GO/GO:0005737"}) {
		t.Fatalf("SearchByName(Cytoplasm) = %v", got)
	}
	if got := refIDs(r.SearchByName("zytoplasma")); !reflect.DeepEqual(got, []string{"GO/GO:0005737"}) {
		t.Errorf("synonym search = %v", got)
	}

	tests := []struct {
		name   string
		policy closure.Policy
		term   string
		root   string
		b      closure.Breadth
		want   bool
	}{
		{"all under root", closure.PolicyIsA, "GO:0005737", "GO:0005575", closure.BreadthAll, true},
		{"direct child", closure.PolicyIsA, "GO:0005737", "GO:0005575", closure.BreadthDirect, true},
		{"exact is not descendant", closure.PolicyIsA, "GO:0005737", "GO:0005575", closure.BreadthNone, false},
		{"exact self", closure.PolicyIsA, "GO:0005737", "GO:0005737", closure.BreadthNone, true},
		{"not under sibling by is_a", closure.PolicyIsA, "GO:0005737", "GO:0005623", closure.BreadthAll, false},
		{"under cell by part_of", closure.PolicyPartOf, "GO:0005737", "GO:0005623", closure.BreadthAll, true},
		{"transitive part_of", closure.PolicyPartOf, "GO:0005739", "GO:0005623", closure.BreadthAll, true},
		{"transitive part_of not direct", closure.PolicyPartOf, "GO:0005739", "GO:0005623", closure.BreadthDirect, false},
		{"mixed identifier shapes", closure.PolicyIsA, "urn:miriam:obo.go:GO%3A0005737", "http://identifiers.org/GO:0005575", closure.BreadthAll, true},
		{"unknown term", closure.PolicyIsA, "GO:9999999", "GO:0005575", closure.BreadthAll, false},
		{"across ontologies", closure.PolicyIsA, "CL:0000540", "GO:0005575", closure.BreadthAll, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.IsDescendantOfWith(tt.policy, tt.term, tt.root, tt.b); got != tt.want {
				t.Errorf("IsDescendantOfWith(%v, %s, %s, %v) = %v, want %v", tt.policy, tt.term, tt.root, tt.b, got, tt.want)
			}
		})
	}
	if !r.IsDescendantOf(hits[0].ID(), "GO:0005575", closure.BreadthAll) {
		t.Error("IsDescendantOf(cytoplasm, cellular_component) = false")
	}
}

func TestSearchByNameAcrossOntologies(t *testing.T) {
	r := newLoaded(t)

	if got := refIDs(r.SearchByName("CELL")); !reflect.DeepEqual(got, []string{"GO/GO:0005623", "CL/CL:0000000"}) {
		t.Errorf("SearchByName(CELL) = %v", got)
	}
	if got := refIDs(r.SearchByName("cell", "CL")); !reflect.DeepEqual(got, []string{"CL/CL:0000000"}) {
		t.Errorf("SearchByName(cell, CL) = %v", got)
	}
	if got := r.SearchByName("nucleus"); len(got) != 0 {
		t.Errorf("SearchByName(nucleus) = %v", refIDs(got))
	}
	if got := r.SearchByName("   "); len(got) != 0 {
		t.Errorf("SearchByName(blank) = %v", refIDs(got))
	}
}

func TestNavigation(t *testing.T) {
	r := newLoaded(t)

	if got := refIDs(r.DirectParents("GO:0005737", graph.PartOf)); !reflect.DeepEqual(got, []string{"GO/GO:0005623"}) {
		t.Errorf("DirectParents(part_of) = %v", got)
	}
	if got := refIDs(r.DirectChildren("GO:0005737")); !reflect.DeepEqual(got, []string{"GO/GO:0005739"}) {
		t.Errorf("DirectChildren = %v", got)
	}
	if got := refIDs(r.Ancestors("GO:0005739", closure.PolicyPartOf)); !reflect.DeepEqual(got, []string{"GO/GO:0005575", "GO/GO:0005623", "GO/GO:0005737"}) {
		t.Errorf("Ancestors(part_of) = %v", got)
	}
	if got := refIDs(r.Descendants("CL:0000000", closure.PolicyIsA)); !reflect.DeepEqual(got, []string{"CL/CL:0000540"}) {
		t.Errorf("Descendants = %v", got)
	}
	if got := refIDs(r.Roots("GO")); !reflect.DeepEqual(got, []string{"GO/GO:0005575"}) {
		t.Errorf("Roots(GO) = %v", got)
	}
	if got := r.Roots("NOPE"); got != nil {
		t.Errorf("Roots(NOPE) = %v", refIDs(got))
	}

	var ids []string
	for _, e := range r.Ontologies() {
		ids = append(ids, e.ID)
	}
	if !reflect.DeepEqual(ids, []string{"GO", "CL"}) {
		t.Errorf("Ontologies = %v", ids)
	}
}

func TestLoadFailureIsFatal(t *testing.T) {
	stub := newStub()
	stub.fail = map[string]error{"CL": errors.New("boom")}
	r := New(stub, WithConcurrency(1))

	err := r.LoadAll(context.Background(), testSources)
	if !errors.Is(err, ErrLoad) {
		t.Fatalf("LoadAll error = %v, want ErrLoad", err)
	}
	if !strings.Contains(err.Error(), "CL") {
		t.Errorf("error %q does not name the ontology", err)
	}
	if r.Ready() {
		t.Error("registry ready after failed load")
	}
	if _, ok := r.Resolve("GO:0005737"); ok {
		t.Error("Resolve succeeded on un-ready registry")
	}
	if err := r.LoadAll(context.Background(), testSources); !errors.Is(err, ErrAlreadyLoaded) {
		t.Errorf("second LoadAll = %v, want ErrAlreadyLoaded", err)
	}
}

func TestLoadAllValidation(t *testing.T) {
	tests := []struct {
		name    string
		sources []config.OntologySource
	}{
		{"empty", nil},
		{"missing id", []config.OntologySource{{Source: "go.obo"}}},
		{"missing source", []config.OntologySource{{ID: "GO"}}},
		{"duplicate", []config.OntologySource{{ID: "GO", Source: "go.obo"}, {ID: "GO", Source: "cl.obo"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStub()
			r := New(stub)
			if err := r.LoadAll(context.Background(), tt.sources); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("LoadAll = %v, want ErrInvalidConfig", err)
			}
			if stub.calls.Load() != 0 {
				t.Errorf("loader called %d times for invalid config", stub.calls.Load())
			}
		})
	}
}

func TestQueriesBeforeLoad(t *testing.T) {
	r := New(newStub())
	if r.Ready() {
		t.Fatal("new registry is ready")
	}
	if got := r.SearchByName("cell"); got != nil {
		t.Errorf("SearchByName before load = %v", refIDs(got))
	}
	if r.IsDescendantOf("GO:0005737", "GO:0005575", closure.BreadthAll) {
		t.Error("IsDescendantOf before load = true")
	}
	if r.Ontologies() != nil {
		t.Error("Ontologies before load not nil")
	}
}

func TestFirstOntologyWinsIDClash(t *testing.T) {
	stub := newStub()
	stub.sources["dup.obo"] = `[Term]
id: GO:0005737
name: shadow cytoplasm
`
	r := New(stub)
	sources := []config.OntologySource{
		{ID: "DUP", Source: "dup.obo"},
		{ID: "GO", Source: "go.obo"},
	}
	if err := r.LoadAll(context.Background(), sources); err != nil {
		t.Fatal(err)
	}
	ref, ok := r.Resolve("GO:0005737")
	if !ok || ref.Ontology != "DUP" {
		t.Errorf("Resolve = %v %v, want DUP", ref, ok)
	}
	// Scoped queries still reach the shadowed term through its own ontology.
	if got := refIDs(r.SearchByName("cytoplasm", "GO")); !reflect.DeepEqual(got, []string{"GO/GO:0005737"}) {
		t.Errorf("SearchByName(cytoplasm, GO) = %v", got)
	}
}

func TestRegisterAndNormalizerOverride(t *testing.T) {
	res, err := newStub().Load(context.Background(), config.OntologySource{ID: "GO", Source: "go.obo"})
	if err != nil {
		t.Fatal(err)
	}
	onlyCURIE := func(uri string) []string {
		if strings.Contains(uri, ":") && !strings.Contains(uri, "/") {
			return []string{uri}
		}
		return nil
	}
	r := New(nil, WithNormalizers(onlyCURIE))
	if err := r.Register(&Entry{ID: "GO", Graph: res.Graph, Closure: res.Closure}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&Entry{ID: "GO", Graph: res.Graph, Closure: res.Closure}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("duplicate Register = %v", err)
	}
	if err := r.LoadAll(context.Background(), nil); err != nil {
		t.Fatalf("LoadAll with registered entries: %v", err)
	}
	if _, ok := r.Resolve("GO:0005737"); !ok {
		t.Error("CURIE did not resolve")
	}
	if _, ok := r.Resolve("http://identifiers.org/GO:0005737"); ok {
		t.Error("URL resolved with the URL normalizer removed")
	}
	if err := r.Register(&Entry{ID: "CL", Graph: res.Graph, Closure: res.Closure}); !errors.Is(err, ErrAlreadyLoaded) {
		t.Errorf("Register after load = %v", err)
	}
}

func TestColdAndWarmAnswersAgree(t *testing.T) {
	cold := newLoaded(t)
	warm := newLoaded(t)
	for _, e := range warm.Ontologies() {
		e.Closure.Warm()
	}
	terms := []string{"GO:0005575", "GO:0005623", "GO:0005737", "GO:0005739"}
	for _, p := range closure.Policies {
		for _, term := range terms {
			for _, root := range terms {
				for _, b := range []closure.Breadth{closure.BreadthNone, closure.BreadthDirect, closure.BreadthAll} {
					c := cold.IsDescendantOfWith(p, term, root, b)
					w := warm.IsDescendantOfWith(p, term, root, b)
					if c != w {
						t.Errorf("%v %s under %s (%v): cold %v, warm %v", p, term, root, b, c, w)
					}
				}
			}
		}
	}
}

func TestCandidates(t *testing.T) {
	got := candidates("urn:miriam:obo.go:go%3A0005737", DefaultNormalizers())
	want := []string{"go:0005737", "GO:0005737", "0005737", "urn:miriam:obo.go:go%3A0005737", "URN:MIRIAM:OBO.GO:GO%3A0005737"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("candidates = %q, want %q", got, want)
	}
	if got := URLNormalizer("http://purl.obolibrary.org/obo/GO_0005737?x=1"); !reflect.DeepEqual(got, []string{"GO_0005737", "GO:0005737"}) {
		t.Errorf("URLNormalizer = %q", got)
	}
	if got := MIRIAMNormalizer("GO:0005737"); got != nil {
		t.Errorf("MIRIAMNormalizer(CURIE) = %q", got)
	}
}
