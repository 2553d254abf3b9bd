// Package parser defines the interface implemented by ontology source parsers
// and a registry that selects a parser by format or file extension.
package parser

import (
	"errors"
	"io"
	"log/slog"

	"github.com/imyousuf/ontograph/internal/graph"
)

// Format identifies an ontology source format.
type Format string

const (
	FormatOBO Format = "obo"
)

// FileExtensions maps each format to its recognized file extensions.
var FileExtensions = map[Format][]string{
	FormatOBO: {".obo"},
}

var (
	// ErrEmptySource is returned when a source contains no usable terms.
	ErrEmptySource = errors.New("source contains no terms")
	// ErrUnsupportedFormat is returned when no parser handles a source.
	ErrUnsupportedFormat = errors.New("unsupported source format")
)

// DefaultMetaPrefixes are id prefixes of bookkeeping records that are never
// ontology terms.
var DefaultMetaPrefixes = []string{"obo:", "oboInOwl:", "owl:", "rdf:", "rdfs:", "xsd:", "_:"}

// DefaultMaxValueLength bounds a single tag value.
const DefaultMaxValueLength = 8192

// ParseOptions controls how a source is turned into a graph.
type ParseOptions struct {
	// Ontology is the configured ontology id (e.g. "GO").
	Ontology string
	// RootPolicy is applied to the graph before it is returned.
	RootPolicy graph.RootPolicy
	// IDPrefix, when set, drops terms whose id prefix differs. Some sources
	// bundle a second vocabulary inline.
	IDPrefix string
	// MetaPrefixes lists reserved id prefixes; nil means DefaultMetaPrefixes.
	MetaPrefixes []string
	// MaxValueLength bounds tag values; zero means DefaultMaxValueLength.
	MaxValueLength int
	// Logger receives recoverable anomalies. Nil discards them.
	Logger *slog.Logger
}

// Normalized returns a copy with defaults filled in.
func (o ParseOptions) Normalized() ParseOptions {
	if o.RootPolicy == "" {
		o.RootPolicy = graph.RootStrict
	}
	if o.MetaPrefixes == nil {
		o.MetaPrefixes = DefaultMetaPrefixes
	}
	if o.MaxValueLength <= 0 {
		o.MaxValueLength = DefaultMaxValueLength
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Header holds source-level metadata.
type Header struct {
	FormatVersion    string `json:"format_version,omitempty"`
	DataVersion      string `json:"data_version,omitempty"`
	Ontology         string `json:"ontology,omitempty"`
	DefaultNamespace string `json:"default_namespace,omitempty"`
}

// Stats counts what a parse kept and what it skipped.
type Stats struct {
	Stanzas   int `json:"stanzas"`
	Terms     int `json:"terms"`
	Relations int `json:"relations"`
	// Warnings counts recoverable anomalies by kind.
	Warnings map[string]int `json:"warnings,omitempty"`
}

// Warn records one anomaly of the given kind.
func (s *Stats) Warn(kind string) {
	if s.Warnings == nil {
		s.Warnings = make(map[string]int)
	}
	s.Warnings[kind]++
}

// Result is the output of a parse: an unfrozen graph plus metadata.
type Result struct {
	Graph  *graph.Graph
	Header Header
	Stats  Stats
	Format Format
}

// Parser turns source bytes into a term graph.
type Parser interface {
	// Format returns which format this parser handles.
	Format() Format

	// Extensions returns the file extensions this parser can handle.
	Extensions() []string

	// Parse reads a whole source and returns the built, unfrozen graph.
	Parse(r io.Reader, opts ParseOptions) (*Result, error)
}
