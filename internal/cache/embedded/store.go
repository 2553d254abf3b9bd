// Package embedded is a BadgerDB-backed cache.BlobStore. All bundles share
// one database under the cache directory.
package embedded

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/imyousuf/ontograph/internal/cache"
)

// Key prefixes for the BadgerDB key scheme.
const (
	prefixBundle = "bundle:"
)

// bundleKey returns the key for one (ontology, fingerprint) blob.
func bundleKey(k cache.Key) []byte {
	return []byte(prefixBundle + k.Ontology + ":" + k.Fingerprint)
}

// ontologyPrefix returns the key prefix shared by every blob of ontologyID.
func ontologyPrefix(ontologyID string) []byte {
	return []byte(prefixBundle + ontologyID + ":")
}

func parseKey(raw []byte) (cache.Key, bool) {
	rest, ok := strings.CutPrefix(string(raw), prefixBundle)
	if !ok {
		return cache.Key{}, false
	}
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 || i == len(rest)-1 {
		return cache.Key{}, false
	}
	return cache.Key{Ontology: rest[:i], Fingerprint: rest[i+1:]}, true
}

// Store implements cache.BlobStore on BadgerDB.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a BadgerDB cache at dbPath.
func Open(dbPath string) (*Store, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // suppress badger logs
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(_ context.Context, key cache.Key) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(bundleKey(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Put(_ context.Context, key cache.Key, data []byte) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(bundleKey(key), data)
	})
}

func (s *Store) Delete(_ context.Context, key cache.Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(bundleKey(key))
	})
}

// Prune removes every blob of ontologyID except the one for keep.
func (s *Store) Prune(_ context.Context, ontologyID, keep string) error {
	keepKey := string(bundleKey(cache.Key{Ontology: ontologyID, Fingerprint: keep}))
	keys, err := s.scanKeys(ontologyPrefix(ontologyID))
	if err != nil {
		return err
	}
	stale := keys[:0]
	for _, k := range keys {
		if string(k) != keepKey {
			stale = append(stale, k)
		}
	}
	return s.deleteKeys(stale)
}

func (s *Store) List(_ context.Context) ([]cache.Info, error) {
	var out []cache.Info
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixBundle)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.Valid(); it.Next() {
			item := it.Item()
			key, ok := parseKey(item.Key())
			if !ok {
				continue
			}
			out = append(out, cache.Info{Key: key, Size: item.ValueSize()})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out, nil
}

func (s *Store) Clear(_ context.Context) error {
	if err := s.db.DropPrefix([]byte(prefixBundle)); err != nil {
		return fmt.Errorf("clear bundles: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// scanKeys collects every key with the given prefix.
func (s *Store) scanKeys(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

// deleteKeys removes keys in batches to stay under transaction size limits.
func (s *Store) deleteKeys(keys [][]byte) error {
	const batchSize = 1000
	for i := 0; i < len(keys); i += batchSize {
		batch := keys[i:min(i+batchSize, len(keys))]
		err := s.db.Update(func(txn *badger.Txn) error {
			for _, key := range batch {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("delete keys: %w", err)
		}
	}
	return nil
}

var _ cache.BlobStore = (*Store)(nil)
