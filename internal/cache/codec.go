package cache

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/imyousuf/ontograph/internal/closure"
	"github.com/imyousuf/ontograph/internal/graph"
	"github.com/imyousuf/ontograph/internal/parser"
)

// FormatVersion is bumped whenever the encoded layout changes. It is part of
// every fingerprint, so old entries simply stop matching.
const FormatVersion = 1

// maxDecodedSize bounds the decompressed size of a single entry.
const maxDecodedSize = 4 << 30

var magic = []byte("OGC1")

var (
	encoder = must(zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)))
	decoder = must(zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize)))
)

// must panics on a codec construction error.
func must[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("cache codec: %v", err))
	}
	return v
}

type envelope struct {
	FormatVersion int               `json:"format_version"`
	Ontology      string            `json:"ontology"`
	Fingerprint   string            `json:"fingerprint"`
	Header        parser.Header     `json:"header"`
	Graph         *graph.Snapshot   `json:"graph"`
	Closure       *closure.Snapshot `json:"closure"`
}

// Encode serializes a bundle: magic, then a zstd-compressed JSON envelope.
func Encode(b *Bundle) ([]byte, error) {
	if b == nil || b.Graph == nil {
		return nil, fmt.Errorf("encode bundle: no graph")
	}
	gs, err := b.Graph.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("encode bundle %s: %w", b.Ontology, err)
	}
	env := envelope{
		FormatVersion: FormatVersion,
		Ontology:      b.Ontology,
		Fingerprint:   b.Fingerprint,
		Header:        b.Header,
		Graph:         gs,
	}
	if b.Closure != nil {
		env.Closure = b.Closure.Snapshot()
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal bundle %s: %w", b.Ontology, err)
	}
	out := make([]byte, len(magic), len(magic)+len(raw)/4)
	copy(out, magic)
	return encoder.EncodeAll(raw, out), nil
}

// Decode reverses Encode. Every failure wraps ErrCorrupt.
func Decode(data []byte, opts ...closure.Option) (*Bundle, error) {
	if !bytes.HasPrefix(data, magic) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	raw, err := decoder.DecodeAll(data[len(magic):], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", ErrCorrupt, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", ErrCorrupt, err)
	}
	if env.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: format version %d, want %d", ErrCorrupt, env.FormatVersion, FormatVersion)
	}
	g, err := graph.FromSnapshot(env.Graph)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	x, err := closure.Restore(g, env.Closure, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &Bundle{
		Ontology:    env.Ontology,
		Fingerprint: env.Fingerprint,
		Header:      env.Header,
		Graph:       g,
		Closure:     x,
	}, nil
}

// Hasher accumulates a source fingerprint. Write the source content to it,
// then call Sum.
type Hasher struct {
	h hash.Hash64
}

// NewHasher starts a fingerprint over everything that changes the parsed
// result apart from content: the format version, the source location and
// the parse options.
func NewHasher(location string, opts parser.ParseOptions) *Hasher {
	opts = opts.Normalized()
	h := &Hasher{h: xxhash.New()}
	fields := []string{
		"v" + strconv.Itoa(FormatVersion),
		location,
		opts.Ontology,
		string(opts.RootPolicy),
		opts.IDPrefix,
		strings.Join(opts.MetaPrefixes, ","),
		strconv.Itoa(opts.MaxValueLength),
	}
	for _, f := range fields {
		io.WriteString(h.h, f)
		h.h.Write([]byte{0})
	}
	return h
}

func (h *Hasher) Write(p []byte) (int, error) { return h.h.Write(p) }

// Sum returns the fingerprint as 16 hex digits.
func (h *Hasher) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// Fingerprint hashes an in-memory source.
func Fingerprint(location string, content []byte, opts parser.ParseOptions) string {
	h := NewHasher(location, opts)
	h.Write(content)
	return h.Sum()
}
