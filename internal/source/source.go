// Package source fetches ontology sources from local paths, embedded
// resources and remote URLs.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

var (
	// ErrUnsupportedLocation is returned for a location scheme the fetcher
	// cannot read.
	ErrUnsupportedLocation = errors.New("unsupported source location")
	// ErrFetch wraps any failure to obtain a source's bytes.
	ErrFetch = errors.New("fetch source")
)

// ResourceScheme prefixes locations read from the fetcher's resource FS.
const ResourceScheme = "resource:"

// Source is the raw content of one ontology source.
type Source struct {
	// Location is the configured location, verbatim.
	Location string
	// Path is the local file the content was read from; empty for
	// resources.
	Path string
	// Data is the (decompressed) content.
	Data []byte
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithResources sets the file system resource: locations are read from.
func WithResources(fsys fs.FS) Option {
	return func(f *Fetcher) { f.resources = fsys }
}

// WithHTTPClient replaces the HTTP client used for remote sources.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithTimeout bounds each remote download. Zero means no bound beyond the
// caller's context.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

// WithUserAgent sets the User-Agent header of remote requests.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithTempDir sets where downloads are staged.
func WithTempDir(dir string) Option {
	return func(f *Fetcher) { f.tempDir = dir }
}

// WithLogger sets the fetcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.log = l
		}
	}
}

// Fetcher reads ontology sources.
type Fetcher struct {
	resources fs.FS
	client    *http.Client
	timeout   time.Duration
	userAgent string
	tempDir   string
	log       *slog.Logger
}

// NewFetcher creates a fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    http.DefaultClient,
		userAgent: "ontograph",
		log:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch reads location. Plain paths and file:// URLs are read from disk,
// resource:<path> from the resource FS, and http(s) URLs are downloaded to a
// temporary file first. Content ending in .gz, or starting with the gzip
// magic, is decompressed.
func (f *Fetcher) Fetch(ctx context.Context, location string) (*Source, error) {
	src, err := f.fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	if isGzip(location, src.Data) {
		data, err := gunzip(src.Data)
		if err != nil {
			return nil, fmt.Errorf("%w %s: decompress: %v", ErrFetch, location, err)
		}
		src.Data = data
	}
	return src, nil
}

func (f *Fetcher) fetch(ctx context.Context, location string) (*Source, error) {
	if location == "" {
		return nil, fmt.Errorf("%w: empty location", ErrUnsupportedLocation)
	}
	if rest, ok := strings.CutPrefix(location, ResourceScheme); ok {
		return f.fetchResource(location, rest)
	}
	if p, ok := LocalPath(location); ok {
		return readFile(location, p)
	}
	if u, err := url.Parse(location); err == nil {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return f.download(ctx, location)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedLocation, location)
}

// LocalPath returns the file a location refers to when it is a bare path or
// a file:// URL.
func LocalPath(location string) (string, bool) {
	if location == "" || strings.HasPrefix(location, ResourceScheme) {
		return "", false
	}
	u, err := url.Parse(location)
	if err != nil || len(u.Scheme) <= 1 {
		// A bare path (a single-letter scheme is a Windows drive).
		return location, true
	}
	if !strings.EqualFold(u.Scheme, "file") {
		return "", false
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	return p, p != ""
}

func readFile(location, p string) (*Source, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrFetch, location, err)
	}
	return &Source{Location: location, Path: p, Data: data}, nil
}

func (f *Fetcher) fetchResource(location, name string) (*Source, error) {
	if f.resources == nil {
		return nil, fmt.Errorf("%w: no resource file system for %s", ErrUnsupportedLocation, location)
	}
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	data, err := fs.ReadFile(f.resources, name)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrFetch, location, err)
	}
	return &Source{Location: location, Data: data}, nil
}

// download stages a remote source in a temp file, then reads it back.
func (f *Fetcher) download(ctx context.Context, location string) (*Source, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, "GET", location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrFetch, location, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrFetch, location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w %s: server returned %s", ErrFetch, location, resp.Status)
	}

	out, err := os.CreateTemp(f.tempDir, "ontograph-source-*")
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrFetch, location, err)
	}
	defer os.Remove(out.Name())
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrFetch, location, err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrFetch, location, err)
	}
	f.log.Debug("downloaded source", "location", location, "bytes", n, "duration", time.Since(start))

	src, err := readFile(location, out.Name())
	if err != nil {
		return nil, err
	}
	src.Path = ""
	return src, nil
}

var gzipMagic = []byte{0x1f, 0x8b}

func isGzip(location string, data []byte) bool {
	loc := location
	if i := strings.IndexAny(loc, "?#"); i >= 0 {
		loc = loc[:i]
	}
	return strings.HasSuffix(strings.ToLower(loc), ".gz") || bytes.HasPrefix(data, gzipMagic)
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
