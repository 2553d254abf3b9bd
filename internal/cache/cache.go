// Package cache persists parsed ontologies with their warmed closures so a
// restart can skip parsing when the source has not changed.
//
// A cache entry is addressed by (ontology, fingerprint). Every read problem,
// from a missing blob to a truncated or foreign one, is a miss: it is logged,
// counted, the offending entry is deleted, and the caller rebuilds from the
// source.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/imyousuf/ontograph/internal/closure"
	"github.com/imyousuf/ontograph/internal/graph"
	"github.com/imyousuf/ontograph/internal/parser"
)

var (
	// ErrMiss is returned by a BlobStore when no blob exists for a key.
	ErrMiss = errors.New("cache miss")
	// ErrCorrupt is returned when a blob cannot be decoded.
	ErrCorrupt = errors.New("corrupt cache entry")
)

// Request and store outcomes reported to an Observer.
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultCorrupt = "corrupt"
	ResultOK      = "ok"
	ResultError   = "error"
)

// Key addresses one cache blob.
type Key struct {
	Ontology    string
	Fingerprint string
}

func (k Key) String() string {
	return k.Ontology + "@" + k.Fingerprint
}

// Validate rejects keys that cannot be used as file names or key segments.
func (k Key) Validate() error {
	if k.Ontology == "" || k.Fingerprint == "" {
		return fmt.Errorf("invalid cache key %q: empty component", k.String())
	}
	if strings.ContainsAny(k.Ontology, `/\:`) || strings.ContainsAny(k.Fingerprint, `/\:-`) {
		return fmt.Errorf("invalid cache key %q: reserved character", k.String())
	}
	return nil
}

// Info describes a stored blob.
type Info struct {
	Key     Key       `json:"key"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time,omitzero"`
}

// BlobStore is raw keyed byte storage for encoded bundles.
type BlobStore interface {
	// Get returns the blob for key, or ErrMiss.
	Get(ctx context.Context, key Key) ([]byte, error)
	// Put stores a blob, replacing any existing one.
	Put(ctx context.Context, key Key, data []byte) error
	// Delete removes a blob. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error
	// Prune removes every blob of ontologyID whose fingerprint differs
	// from keep.
	Prune(ctx context.Context, ontologyID, keep string) error
	// List describes every stored blob.
	List(ctx context.Context) ([]Info, error)
	// Clear removes every blob.
	Clear(ctx context.Context) error
	// Close releases resources held by the store.
	Close() error
}

// Bundle is what the cache persists for one ontology.
type Bundle struct {
	Ontology    string
	Fingerprint string
	Header      parser.Header
	Graph       *graph.Graph
	Closure     *closure.Index
}

// Observer receives cache instrumentation events.
type Observer interface {
	CacheRequest(result string)
	CacheStore(result string)
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the cache logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

// WithObserver attaches an instrumentation sink.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.obs = o }
}

// WithClosureOptions sets the options applied to restored closure indices.
func WithClosureOptions(opts ...closure.Option) Option {
	return func(c *Cache) { c.closureOpts = opts }
}

// Cache encodes bundles onto a BlobStore.
type Cache struct {
	store       BlobStore
	log         *slog.Logger
	obs         Observer
	closureOpts []closure.Option
}

// New wraps a blob store.
func New(store BlobStore, opts ...Option) *Cache {
	c := &Cache{store: store, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store encodes b and writes it, then prunes older fingerprints of the same
// ontology. A failed prune is logged but does not fail the store.
func (c *Cache) Store(ctx context.Context, b *Bundle) error {
	key := Key{Ontology: b.Ontology, Fingerprint: b.Fingerprint}
	err := c.put(ctx, key, b)
	if err != nil {
		c.report(false, ResultError)
		c.log.Warn("cache store failed", "ontology", key.Ontology, "fingerprint", key.Fingerprint, "error", err)
		return err
	}
	c.report(false, ResultOK)
	if err := c.store.Prune(ctx, key.Ontology, key.Fingerprint); err != nil {
		c.log.Warn("cache prune failed", "ontology", key.Ontology, "error", err)
	}
	c.log.Debug("cache stored", "ontology", key.Ontology, "fingerprint", key.Fingerprint)
	return nil
}

func (c *Cache) put(ctx context.Context, key Key, b *Bundle) error {
	if err := key.Validate(); err != nil {
		return err
	}
	data, err := Encode(b)
	if err != nil {
		return err
	}
	return c.store.Put(ctx, key, data)
}

// TryLoad returns the cached bundle for (ontologyID, fingerprint). It never
// fails: any problem is reported as a miss.
func (c *Cache) TryLoad(ctx context.Context, ontologyID, fingerprint string) (*Bundle, bool) {
	key := Key{Ontology: ontologyID, Fingerprint: fingerprint}
	log := c.log.With("ontology", ontologyID, "fingerprint", fingerprint)
	if err := key.Validate(); err != nil {
		c.report(true, ResultMiss)
		log.Debug("cache bypassed", "error", err)
		return nil, false
	}

	data, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		c.report(true, ResultMiss)
		log.Debug("cache miss")
		return nil, false
	}
	if err != nil {
		c.report(true, ResultMiss)
		log.Warn("cache read failed", "error", err)
		return nil, false
	}

	b, err := Decode(data, c.closureOpts...)
	if err == nil && (b.Ontology != ontologyID || b.Fingerprint != fingerprint) {
		err = fmt.Errorf("%w: entry is for %s@%s", ErrCorrupt, b.Ontology, b.Fingerprint)
	}
	if err != nil {
		c.report(true, ResultCorrupt)
		log.Warn("discarding unreadable cache entry", "error", err)
		if derr := c.store.Delete(ctx, key); derr != nil {
			log.Warn("delete cache entry failed", "error", derr)
		}
		return nil, false
	}
	c.report(true, ResultHit)
	log.Debug("cache hit", "terms", b.Graph.Len(), "closures", b.Closure.Len())
	return b, true
}

// BlobStore returns the underlying blob store.
func (c *Cache) BlobStore() BlobStore { return c.store }

// Close closes the underlying blob store.
func (c *Cache) Close() error { return c.store.Close() }

func (c *Cache) report(request bool, result string) {
	if c.obs == nil {
		return
	}
	if request {
		c.obs.CacheRequest(result)
		return
	}
	c.obs.CacheStore(result)
}
