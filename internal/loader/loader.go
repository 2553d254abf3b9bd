// Package loader turns one configured ontology source into a queryable
// bundle: fetch, fingerprint, cache lookup, parse, freeze, closure index,
// cache store.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/imyousuf/ontograph/internal/cache"
	"github.com/imyousuf/ontograph/internal/closure"
	"github.com/imyousuf/ontograph/internal/config"
	"github.com/imyousuf/ontograph/internal/graph"
	"github.com/imyousuf/ontograph/internal/metrics"
	"github.com/imyousuf/ontograph/internal/parser"
	"github.com/imyousuf/ontograph/internal/parser/obo"
	"github.com/imyousuf/ontograph/internal/source"
)

// Config holds the loader's collaborators and defaults. Nil collaborators
// get working defaults: a plain fetcher, an OBO-only parser registry, no
// caching, no metrics, and a discarding logger.
type Config struct {
	Fetcher *source.Fetcher
	Parsers *parser.Registry
	Cache   *cache.Cache
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// RootPolicy applies to sources that do not set their own.
	RootPolicy graph.RootPolicy
	// MaxValueLength bounds OBO tag values; zero means the parser default.
	MaxValueLength int
	// WarmRoots precomputes every root's descendant closures before the
	// bundle is cached.
	WarmRoots bool
}

// Result is one loaded ontology.
type Result struct {
	*cache.Bundle
	// Origin is metrics.OriginCache or metrics.OriginSource.
	Origin string
	// Duration is the wall time of the load.
	Duration time.Duration
	// Stats is the parse summary; zero for cache hits.
	Stats parser.Stats
}

// Loader loads ontologies one at a time; a single Loader may be shared by
// concurrent callers.
type Loader struct {
	fetcher *source.Fetcher
	parsers *parser.Registry
	cache   *cache.Cache
	metrics *metrics.Metrics
	log     *slog.Logger

	rootPolicy     graph.RootPolicy
	maxValueLength int
	warmRoots      bool
}

// New creates a Loader.
func New(cfg Config) *Loader {
	l := &Loader{
		fetcher:        cfg.Fetcher,
		parsers:        cfg.Parsers,
		cache:          cfg.Cache,
		metrics:        cfg.Metrics,
		log:            cfg.Logger,
		rootPolicy:     cfg.RootPolicy,
		maxValueLength: cfg.MaxValueLength,
		warmRoots:      cfg.WarmRoots,
	}
	if l.log == nil {
		l.log = slog.New(slog.DiscardHandler)
	}
	if l.fetcher == nil {
		l.fetcher = source.NewFetcher(source.WithLogger(l.log))
	}
	if l.parsers == nil {
		l.parsers = DefaultParsers()
	}
	if l.cache == nil {
		l.cache = cache.New(cache.Null{})
	}
	if l.rootPolicy == "" {
		l.rootPolicy = graph.RootStrict
	}
	return l
}

// DefaultParsers returns a registry holding every built-in parser.
func DefaultParsers() *parser.Registry {
	r := parser.NewRegistry()
	r.Register(obo.NewParser())
	return r
}

// Load makes src queryable. Any error is fatal for this ontology; cache
// problems are not errors.
func (l *Loader) Load(ctx context.Context, src config.OntologySource) (*Result, error) {
	start := time.Now()
	res, err := l.load(ctx, src)
	d := time.Since(start)

	origin := metrics.OriginSource
	terms := 0
	if res != nil {
		res.Duration = d
		origin = res.Origin
		terms = res.Graph.Len()
	}
	l.metrics.LoadFinished(src.ID, origin, d, terms, err)
	if err != nil {
		return nil, err
	}
	l.log.Info("ontology loaded",
		"ontology", src.ID,
		"terms", terms,
		"cache_hit", origin == metrics.OriginCache,
		"duration", d.Round(time.Millisecond))
	return res, nil
}

func (l *Loader) load(ctx context.Context, src config.OntologySource) (*Result, error) {
	log := l.log.With("ontology", src.ID)
	policy, err := graph.ParseRootPolicy(src.RootPolicy)
	if err != nil {
		return nil, fmt.Errorf("ontology %s: %w", src.ID, err)
	}
	if src.RootPolicy == "" {
		policy = l.rootPolicy
	}
	opts := parser.ParseOptions{
		Ontology:       src.ID,
		RootPolicy:     policy,
		IDPrefix:       src.IDPrefix,
		MaxValueLength: l.maxValueLength,
		Logger:         l.log,
	}.Normalized()

	p, err := l.parsers.ForLocation(src.Source, parser.Format(src.Format))
	if err != nil {
		return nil, fmt.Errorf("ontology %s: %w", src.ID, err)
	}

	log.Debug("fetching source", "location", src.Source)
	fetched, err := l.fetcher.Fetch(ctx, src.Source)
	if err != nil {
		return nil, fmt.Errorf("ontology %s: %w", src.ID, err)
	}

	fp := cache.Fingerprint(src.Source, fetched.Data, opts)
	if b, ok := l.cache.TryLoad(ctx, src.ID, fp); ok {
		return &Result{Bundle: b, Origin: metrics.OriginCache}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Debug("parsing source", "format", p.Format(), "bytes", len(fetched.Data))
	parsed, err := p.Parse(bytes.NewReader(fetched.Data), opts)
	if err != nil {
		return nil, fmt.Errorf("ontology %s: parse %s: %w", src.ID, src.Source, err)
	}
	l.metrics.ParseWarnings(src.ID, parsed.Stats.Warnings)

	g := parsed.Graph
	g.Freeze()
	x, err := closure.New(g, closure.WithLogger(l.log), closure.WithObserver(l.metrics))
	if err != nil {
		return nil, fmt.Errorf("ontology %s: %w", src.ID, err)
	}
	if l.warmRoots {
		x.Warm()
		log.Debug("warmed root closures", "roots", len(g.Roots()), "closures", x.Len())
	}

	b := &cache.Bundle{
		Ontology:    src.ID,
		Fingerprint: fp,
		Header:      parsed.Header,
		Graph:       g,
		Closure:     x,
	}
	if err := l.cache.Store(ctx, b); err != nil {
		log.Warn("continuing without cache entry", "error", err)
	}
	return &Result{Bundle: b, Origin: metrics.OriginSource, Stats: parsed.Stats}, nil
}
