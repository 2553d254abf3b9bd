package cache

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/imyousuf/ontograph/internal/closure"
	"github.com/imyousuf/ontograph/internal/graph"
	"github.com/imyousuf/ontograph/internal/parser"
)

func testBundle(t *testing.T, fingerprint string) *Bundle {
	t.Helper()
	g := graph.New("GO")
	for _, term := range []*graph.Term{
		{ID: "GO:0005575", Name: "cellular_component"},
		{ID: "GO:0005623", Name: "cell"},
		{ID: "GO:0005737", Name: "cytoplasm", AltIDs: []string{"GO:0005738"},
			Synonyms: []graph.Synonym{{Text: "cytosol", Scope: graph.ScopeNarrow}}},
	} {
		if _, err := g.AddTerm(term); err != nil {
			t.Fatalf("AddTerm: %v", err)
		}
	}
	for _, r := range []graph.Relation{
		{Child: "GO:0005623", Type: graph.IsA, Parent: "GO:0005575"},
		{Child: "GO:0005737", Type: graph.IsA, Parent: "GO:0005575"},
		{Child: "GO:0005737", Type: graph.PartOf, Parent: "GO:0005623"},
		{Child: "GO:0005737", Type: graph.Named("regulates"), Parent: "GO:0005623"},
	} {
		if err := g.AddRelation(r.Child, r.Type, r.Parent); err != nil {
			t.Fatalf("AddRelation: %v", err)
		}
	}
	g.Freeze()
	x, err := closure.New(g)
	if err != nil {
		t.Fatalf("closure.New: %v", err)
	}
	x.Warm()
	return &Bundle{Ontology: "GO", Fingerprint: fingerprint, Graph: g, Closure: x}
}

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

type countingObserver struct {
	requests map[string]int
	stores   map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{requests: map[string]int{}, stores: map[string]int{}}
}

func (o *countingObserver) CacheRequest(result string) { o.requests[result]++ }
func (o *countingObserver) CacheStore(result string) { o.stores[result]++ }

func TestEncodeDecodeRoundTrip(t *testing.T) {
	b := testBundle(t, "00000000000000aa")
	data, err := Encode(b)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("OGC1")) {
		t.Fatalf("missing magic: %q", data[:4])
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Ontology != "GO" || got.Fingerprint != "00000000000000aa" {
		t.Errorf("identity = %s@%s", got.Ontology, got.Fingerprint)
	}
	if got.Graph.Len() != 3 {
		t.Errorf("Len = %d, want 3", got.Graph.Len())
	}
	if term, ok := got.Graph.Lookup("GO:0005738"); !ok || term.ID != "GO:0005737" {
		t.Error("alt id lost in round trip")
	}
	if got.Closure.Len() != b.Closure.Len() {
		t.Errorf("closure Len = %d, want %d", got.Closure.Len(), b.Closure.Len())
	}
	want := b.Closure.DescendantIDs("GO:0005623", closure.PolicyPartOf)
	if ids := got.Closure.DescendantIDs("GO:0005623", closure.PolicyPartOf); len(ids) != 1 || ids[0] != want[0] {
		t.Errorf("part_of descendants = %v, want %v", ids, want)
	}
	if rels := got.Graph.DirectParents("GO:0005737", graph.Named("regulates")); len(rels) != 1 {
		t.Errorf("named relation lost: %v", rels)
	}
	roots := got.Graph.Roots()
	if len(roots) != 1 || roots[0].ID != "GO:0005575" {
		t.Errorf("Roots = %v", roots)
	}
}

func TestDecodeCorrupt(t *testing.T) {
	data, err := Encode(testBundle(t, "00000000000000aa"))
	if err != nil {
		t.Fatal(err)
	}
	cases := map[string][]byte{
		"empty":     nil,
		"bad magic": append([]byte("XXXX"), data[4:]...),
		"truncated": data[:len(data)/2],
		"not zstd":  []byte("OGC1 plain text"),
	}
	for name, blob := range cases {
		if _, err := Decode(blob); !errors.Is(err, ErrCorrupt) {
			t.Errorf("%s: Decode error = %v, want ErrCorrupt", name, err)
		}
	}
}

func TestMust(t *testing.T) {
	if got := must(7, nil); got != 7 {
		t.Errorf("must = %d", got)
	}
	defer func() {
		r := recover()
		if r == nil || !strings.Contains(r.(string), "boom") {
			t.Errorf("recover() = %v, want panic mentioning boom", r)
		}
	}()
	must(0, errors.New("boom"))
}

func TestCacheStoreAndLoad(t *testing.T) {
	ctx := context.Background()
	obs := newCountingObserver()
	c := New(newTestFileStore(t), WithObserver(obs))

	if _, ok := c.TryLoad(ctx, "GO", "00000000000000aa"); ok {
		t.Fatal("empty cache hit")
	}
	if err := c.Store(ctx, testBundle(t, "00000000000000aa")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	b, ok := c.TryLoad(ctx, "GO", "00000000000000aa")
	if !ok {
		t.Fatal("TryLoad missed after Store")
	}
	if b.Graph.Len() != 3 {
		t.Errorf("Len = %d", b.Graph.Len())
	}
	if _, ok := c.TryLoad(ctx, "GO", "00000000000000bb"); ok {
		t.Error("different fingerprint hit")
	}
	if obs.requests[ResultHit] != 1 || obs.requests[ResultMiss] != 2 || obs.stores[ResultOK] != 1 {
		t.Errorf("observer = %v / %v", obs.requests, obs.stores)
	}
}

func TestCacheCorruptEntryIsMissAndDeleted(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)
	var logs bytes.Buffer
	obs := newCountingObserver()
	c := New(store, WithObserver(obs), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	key := Key{Ontology: "GO", Fingerprint: "00000000000000aa"}
	if err := store.Put(ctx, key, []byte("OGC1 garbage")); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.TryLoad(ctx, "GO", key.Fingerprint); ok {
		t.Fatal("corrupt entry hit")
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, ErrMiss) {
		t.Errorf("corrupt entry not deleted: %v", err)
	}
	if obs.requests[ResultCorrupt] != 1 {
		t.Errorf("observer = %v", obs.requests)
	}
	if !strings.Contains(logs.String(), "discarding unreadable cache entry") {
		t.Errorf("corrupt entry not logged:\n%s", logs.String())
	}
}

func TestCacheMismatchedEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)
	c := New(store)

	data, err := Encode(testBundle(t, "00000000000000aa"))
	if err != nil {
		t.Fatal(err)
	}
	// A blob filed under the wrong fingerprint must not be trusted.
	if err := store.Put(ctx, Key{Ontology: "GO", Fingerprint: "00000000000000bb"}, data); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.TryLoad(ctx, "GO", "00000000000000bb"); ok {
		t.Error("mismatched entry hit")
	}
}

func TestStorePrunesOldFingerprints(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)
	c := New(store)

	for _, fp := range []string{"00000000000000aa", "00000000000000bb"} {
		if err := c.Store(ctx, testBundle(t, fp)); err != nil {
			t.Fatalf("Store(%s): %v", fp, err)
		}
	}
	infos, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].Key.Fingerprint != "00000000000000bb" {
		t.Errorf("List = %+v, want only the newest fingerprint", infos)
	}
}

func TestFileStoreListAndClear(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)
	for _, k := range []Key{{"GO", "aa"}, {"PSI-MI", "bb"}} {
		if err := s.Put(ctx, k, []byte("x")); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}
	os.WriteFile(filepath.Join(s.Dir(), "README"), []byte("not a cache file"), 0o644)

	infos, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 || infos[0].Key != (Key{"GO", "aa"}) || infos[1].Key != (Key{"PSI-MI", "bb"}) {
		t.Errorf("List = %+v", infos)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if infos, _ := s.List(ctx); len(infos) != 0 {
		t.Errorf("List after Clear = %+v", infos)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "README")); err != nil {
		t.Error("Clear removed a foreign file")
	}
}

func TestKeyValidate(t *testing.T) {
	for _, k := range []Key{{"", "aa"}, {"GO", ""}, {"../etc", "aa"}, {"GO", "a-b"}, {"G:O", "aa"}} {
		if err := k.Validate(); err == nil {
			t.Errorf("Validate(%s) accepted", k)
		}
	}
	if err := (Key{"PSI-MI", "0123abcd"}).Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestNullStore(t *testing.T) {
	ctx := context.Background()
	c := New(Null{})
	if err := c.Store(ctx, testBundle(t, "aa")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, ok := c.TryLoad(ctx, "GO", "aa"); ok {
		t.Error("null cache hit")
	}
}

func TestFingerprint(t *testing.T) {
	opts := parser.ParseOptions{Ontology: "GO"}
	base := Fingerprint("go.obo", []byte("content"), opts)
	if len(base) != 16 {
		t.Errorf("fingerprint %q, want 16 hex digits", base)
	}
	if Fingerprint("go.obo", []byte("content"), opts) != base {
		t.Error("fingerprint not deterministic")
	}
	variants := map[string]string{
		"content":  Fingerprint("go.obo", []byte("content2"), opts),
		"location": Fingerprint("other.obo", []byte("content"), opts),
		"policy":   Fingerprint("go.obo", []byte("content"), parser.ParseOptions{Ontology: "GO", RootPolicy: graph.RootGreedy}),
		"prefix":   Fingerprint("go.obo", []byte("content"), parser.ParseOptions{Ontology: "GO", IDPrefix: "GO"}),
	}
	for name, fp := range variants {
		if fp == base {
			t.Errorf("changing %s did not change the fingerprint", name)
		}
	}

	h := NewHasher("go.obo", opts)
	h.Write([]byte("con"))
	h.Write([]byte("tent"))
	if h.Sum() != base {
		t.Error("streamed fingerprint differs")
	}
}
