package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/imyousuf/ontograph/internal/cache"
	"github.com/imyousuf/ontograph/internal/cache/embedded"
	"github.com/imyousuf/ontograph/internal/closure"
	"github.com/imyousuf/ontograph/internal/config"
	"github.com/imyousuf/ontograph/internal/loader"
	"github.com/imyousuf/ontograph/internal/logging"
	"github.com/imyousuf/ontograph/internal/metrics"
	"github.com/imyousuf/ontograph/internal/registry"
	"github.com/imyousuf/ontograph/internal/source"
)

// badgerDirName is the badger database directory under the cache dir.
const badgerDirName = "badger"

// openBlobStore opens the cache backend selected by cfg.
func openBlobStore(cfg *config.Config) (cache.BlobStore, error) {
	dir := cfg.ResolveCacheDir()
	switch cfg.Cache.Backend {
	case config.CacheBackendNone:
		return cache.Null{}, nil
	case config.CacheBackendBadger:
		store, err := embedded.Open(filepath.Join(dir, badgerDirName))
		if err != nil {
			return nil, fmt.Errorf("open badger cache: %w", err)
		}
		return store, nil
	case "", config.CacheBackendFile:
		store, err := cache.NewFileStore(dir)
		if err != nil {
			return nil, fmt.Errorf("open file cache: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
}

// session is everything a command needs to load and query ontologies.
type session struct {
	cfg      *config.Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	gatherer *prometheus.Registry
	cache    *cache.Cache
	loader   *loader.Loader
	registry *registry.Registry
}

// newSession loads and validates the configuration, then wires logging,
// metrics, the cache backend and the registry. Logs go to errOut.
func newSession(errOut io.Writer) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	log, err := logging.New(logging.Config{
		Format:   cfg.Logging.Format,
		Level:    level,
		Output:   errOut,
		OnRecord: m.LogRecorded,
	})
	if err != nil {
		return nil, err
	}

	timeout, err := cfg.Loader.Timeout()
	if err != nil {
		return nil, err
	}
	store, err := openBlobStore(cfg)
	if err != nil {
		return nil, err
	}
	c := cache.New(store,
		cache.WithLogger(log),
		cache.WithObserver(m),
		cache.WithClosureOptions(closure.WithLogger(log), closure.WithObserver(m)))
	fetcher := source.NewFetcher(
		source.WithTimeout(timeout),
		source.WithUserAgent("ontograph/"+Version),
		source.WithLogger(log))

	l := loader.New(loader.Config{
		Fetcher:        fetcher,
		Cache:          c,
		Metrics:        m,
		Logger:         log,
		RootPolicy:     cfg.PolicyFor(config.OntologySource{}),
		MaxValueLength: cfg.Loader.MaxValueLength,
		WarmRoots:      cfg.Loader.WarmRoots,
	})
	reg := registry.New(l,
		registry.WithLogger(log),
		registry.WithConcurrency(cfg.Loader.Concurrency))

	return &session{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		gatherer: promReg,
		cache:    c,
		loader:   l,
		registry: reg,
	}, nil
}

// openRegistry builds a session and loads every configured ontology.
func openRegistry(ctx context.Context, errOut io.Writer) (*session, error) {
	s, err := newSession(errOut)
	if err != nil {
		return nil, err
	}
	if err := s.registry.LoadAll(ctx, s.cfg.Ontologies); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the cache backend.
func (s *session) Close() error {
	return s.cache.Close()
}
