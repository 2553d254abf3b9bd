package embedded

import (
	"context"
	"errors"
	"testing"

	"github.com/imyousuf/ontograph/internal/cache"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := cache.Key{Ontology: "GO", Fingerprint: "00000000000000aa"}

	if _, err := s.Get(ctx, key); !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("Get on empty store = %v, want ErrMiss", err)
	}
	if err := s.Put(ctx, key, []byte("blob")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "blob" {
		t.Errorf("Get = %q, want %q", got, "blob")
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, cache.ErrMiss) {
		t.Errorf("Get after Delete = %v, want ErrMiss", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}

func TestPruneKeepsOnlyCurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, k := range []cache.Key{
		{Ontology: "GO", Fingerprint: "aa"},
		{Ontology: "GO", Fingerprint: "bb"},
		{Ontology: "GOX", Fingerprint: "cc"},
		{Ontology: "CL", Fingerprint: "dd"},
	} {
		if err := s.Put(ctx, k, []byte(k.Fingerprint)); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}
	if err := s.Prune(ctx, "GO", "bb"); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	infos, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var keys []string
	for _, info := range infos {
		keys = append(keys, info.Key.String())
	}
	want := []string{"CL@dd", "GO@bb", "GOX@cc"}
	if len(keys) != len(want) {
		t.Fatalf("List = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("List[%d] = %s, want %s", i, keys[i], want[i])
		}
	}
	if infos[1].Size != 2 {
		t.Errorf("Size = %d, want 2", infos[1].Size)
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Put(ctx, cache.Key{Ontology: "GO", Fingerprint: "aa"}, []byte("x"))
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	infos, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 0 {
		t.Errorf("List after Clear = %+v", infos)
	}
}

func TestCacheOverBadger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := cache.New(s)
	// A corrupt blob is a miss and gets removed.
	key := cache.Key{Ontology: "GO", Fingerprint: "aa"}
	s.Put(ctx, key, []byte("garbage"))
	if _, ok := c.TryLoad(ctx, "GO", "aa"); ok {
		t.Fatal("corrupt blob hit")
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, cache.ErrMiss) {
		t.Errorf("corrupt blob not deleted: %v", err)
	}
}
