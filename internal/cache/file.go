package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const fileExt = ".ogc"

// FileStore keeps one file per (ontology, fingerprint) under a directory,
// named <ontology>-<fingerprint>.ogc.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file cache: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the cache directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(key Key) string {
	return filepath.Join(s.dir, key.Ontology+"-"+key.Fingerprint+fileExt)
}

// parseName splits a cache file name into its key.
func parseName(name string) (Key, bool) {
	if !strings.HasSuffix(name, fileExt) {
		return Key{}, false
	}
	base := strings.TrimSuffix(name, fileExt)
	i := strings.LastIndexByte(base, '-')
	if i <= 0 || i == len(base)-1 {
		return Key{}, false
	}
	return Key{Ontology: base[:i], Fingerprint: base[i+1:]}, true
}

func (s *FileStore) Get(_ context.Context, key Key) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	return data, nil
}

// Put writes to a temporary file in the same directory and renames it into
// place, so readers never see a partial entry.
func (s *FileStore) Put(_ context.Context, key Key, data []byte) error {
	if err := key.Validate(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-"+key.Ontology+"-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete cache file: %w", err)
	}
	return nil
}

func (s *FileStore) Prune(ctx context.Context, ontologyID, keep string) error {
	infos, err := s.List(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, info := range infos {
		if info.Key.Ontology != ontologyID || info.Key.Fingerprint == keep {
			continue
		}
		if err := s.Delete(ctx, info.Key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *FileStore) List(_ context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list cache dir: %w", err)
	}
	var out []Info
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key, ok := parseName(e.Name())
		if !ok {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{Key: key, Size: fi.Size(), ModTime: fi.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out, nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	infos, err := s.List(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, info := range infos {
		if err := s.Delete(ctx, info.Key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *FileStore) Close() error { return nil }

// Null is a BlobStore that stores nothing.
type Null struct{}

func (Null) Get(context.Context, Key) ([]byte, error) { return nil, ErrMiss }
func (Null) Put(context.Context, Key, []byte) error { return nil }
func (Null) Delete(context.Context, Key) error { return nil }
func (Null) Prune(context.Context, string, string) error { return nil }
func (Null) List(context.Context) ([]Info, error) { return nil, nil }
func (Null) Clear(context.Context) error { return nil }
func (Null) Close() error { return nil }
