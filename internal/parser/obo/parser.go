// Package obo parses OBO flat-file ontologies into term graphs.
//
// Real OBO sources are inconsistent, so the parser is tolerant: malformed
// fields, over-long values, duplicate ids, dangling relation endpoints and
// unparseable property values are logged, counted and skipped. Only a read
// error or a source without a single usable term fails the parse.
package obo

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/imyousuf/ontograph/internal/graph"
	"github.com/imyousuf/ontograph/internal/parser"
)

// Warning kinds reported in parser.Stats.Warnings.
const (
	WarnMalformedLine    = "malformed_line"
	WarnMalformedField   = "malformed_field"
	WarnValueTooLong     = "value_too_long"
	WarnMissingID        = "missing_id"
	WarnDuplicateTerm    = "duplicate_term"
	WarnDanglingRelation = "dangling_relation"
	WarnPropertyValue    = "property_value"
	SkipMetaRecord       = "meta_record"
	SkipForeignTerm      = "foreign_term"
)

const (
	readerBufferSize      = 1 << 20 // 1 MB
	initialStanzaCapacity = 8
)

const (
	stanzaHeader   = ""
	stanzaTerm     = "Term"
	stanzaInstance = "Instance"
	stanzaTypedef  = "Typedef"
)

var legacySynonymScopes = map[string]graph.SynonymScope{
	"exact_synonym":   graph.ScopeExact,
	"narrow_synonym":  graph.ScopeNarrow,
	"broad_synonym":   graph.ScopeBroad,
	"related_synonym": graph.ScopeRelated,
}

// OBOParser reads OBO 1.2/1.4 flat files.
type OBOParser struct{}

// NewParser creates a new OBO parser.
func NewParser() *OBOParser {
	return &OBOParser{}
}

func (p *OBOParser) Format() parser.Format {
	return parser.FormatOBO
}

func (p *OBOParser) Extensions() []string {
	return parser.FileExtensions[parser.FormatOBO]
}

// Parse reads the whole source and returns an unfrozen graph with the root
// policy from opts already applied.
func (p *OBOParser) Parse(r io.Reader, opts parser.ParseOptions) (*parser.Result, error) {
	opts = opts.Normalized()
	e := &extractor{
		opts:  opts,
		log:   opts.Logger.With("ontology", opts.Ontology),
		pool:  newInternPool(),
		graph: graph.New(opts.Ontology),
		res:   &parser.Result{Format: parser.FormatOBO},
	}
	if err := e.run(bufio.NewReaderSize(r, readerBufferSize)); err != nil {
		return nil, err
	}
	if e.graph.Len() == 0 {
		return nil, fmt.Errorf("%w: %s", parser.ErrEmptySource, opts.Ontology)
	}
	if err := e.graph.SetRootPolicy(opts.RootPolicy); err != nil {
		return nil, err
	}
	e.res.Graph = e.graph
	e.res.Stats.Terms = e.graph.Len()
	if n := e.res.Stats.Warnings[WarnDanglingRelation]; n > 0 {
		e.log.Warn("dropped dangling relations", "count", n)
	}
	return e.res, nil
}

type pendingRelation struct {
	child  string
	rel    graph.RelationType
	parent string
	line   int
}

type extractor struct {
	opts  parser.ParseOptions
	log   *slog.Logger
	pool  *internPool
	graph *graph.Graph
	res   *parser.Result

	line    int
	pending []pendingRelation

	// current stanza
	kind      string
	startLine int
	term      *graph.Term
	rels      []pendingRelation
	typedefID string
	typedefNm string
}

func (e *extractor) run(r *bufio.Reader) error {
	for {
		raw, err := r.ReadString('\n')
		if len(raw) > 0 {
			e.line++
			e.handleLine(strings.TrimRight(raw, "\r\n"))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read obo source at line %d: %w", e.line, err)
		}
	}
	e.flushStanza()
	e.resolveRelations()
	return nil
}

func (e *extractor) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '!' {
		return
	}
	if line[0] == '[' {
		line = stripComment(line)
		if !strings.HasSuffix(line, "]") {
			e.warn(WarnMalformedLine, "unterminated stanza header", "text", line)
			return
		}
		e.flushStanza()
		e.beginStanza(strings.TrimSpace(line[1 : len(line)-1]))
		return
	}

	tag, value, ok := strings.Cut(line, ":")
	tag = strings.TrimSpace(tag)
	if !ok || tag == "" {
		e.warn(WarnMalformedLine, "line is not a tag-value pair", "text", truncate(line))
		return
	}
	value = strings.TrimSpace(value)
	if len(value) > e.opts.MaxValueLength {
		e.warn(WarnValueTooLong, "value exceeds maximum length", "tag", tag, "length", len(value))
		return
	}

	switch e.kind {
	case stanzaHeader:
		e.headerTag(tag, value)
	case stanzaTerm, stanzaInstance:
		e.termTag(tag, value)
	case stanzaTypedef:
		e.typedefTag(tag, value)
	}
}

func (e *extractor) headerTag(tag, value string) {
	h := &e.res.Header
	switch tag {
	case "format-version":
		h.FormatVersion = value
	case "data-version":
		h.DataVersion = value
	case "ontology":
		h.Ontology = value
	case "default-namespace":
		h.DefaultNamespace = e.pool.get(stripComment(value))
	}
}

func (e *extractor) beginStanza(kind string) {
	e.res.Stats.Stanzas++
	e.kind = kind
	e.startLine = e.line
	e.term = nil
	e.rels = e.rels[:0]
	e.typedefID, e.typedefNm = "", ""
	switch kind {
	case stanzaTerm, stanzaInstance:
		e.term = &graph.Term{Instance: kind == stanzaInstance}
		if cap(e.rels) == 0 {
			e.rels = make([]pendingRelation, 0, initialStanzaCapacity)
		}
	case stanzaTypedef:
	default:
		e.log.Debug("skipping unsupported stanza", "stanza", kind, "line", e.line)
	}
}

func (e *extractor) termTag(tag, value string) {
	t := e.term
	switch tag {
	case "id":
		id := stripComment(value)
		if t.ID != "" {
			e.warn(WarnMalformedField, "repeated id tag", "id", t.ID, "ignored", id)
			return
		}
		t.ID = id
	case "name":
		if t.Name == "" {
			t.Name = unescape(stripComment(value))
		}
	case "namespace":
		t.Namespace = e.pool.get(stripComment(value))
	case "def":
		text, _, err := readQuoted(value)
		if err != nil {
			e.warn(WarnMalformedField, "bad def", "tag", tag, "error", err)
			return
		}
		t.Definition = text
	case "comment":
		t.Comment = unescape(stripComment(value))
	case "synonym":
		e.addSynonym(tag, value, "")
	case "is_a", "instance_of":
		target := firstField(stripComment(value))
		if target == "" {
			e.warn(WarnMalformedField, "empty relation target", "tag", tag)
			return
		}
		e.rels = append(e.rels, pendingRelation{rel: graph.IsA, parent: target, line: e.line})
	case "relationship":
		relName, target, err := parseRelationship(stripComment(value))
		if err != nil {
			e.warn(WarnMalformedField, "bad relationship", "value", truncate(value), "error", err)
			return
		}
		rel := graph.ParseRelationType(e.pool.get(relName))
		e.rels = append(e.rels, pendingRelation{rel: rel, parent: target, line: e.line})
	case "alt_id":
		if alt := firstField(stripComment(value)); alt != "" {
			t.AltIDs = append(t.AltIDs, alt)
		}
	case "xref":
		if x := firstField(stripComment(value)); x != "" {
			t.Xrefs = append(t.Xrefs, x)
		}
	case "is_obsolete":
		t.Obsolete = strings.EqualFold(stripComment(value), "true")
	case "property_value":
		key, v, err := parsePropertyValue(stripComment(value))
		if err != nil {
			e.warn(WarnPropertyValue, "bad property_value", "value", truncate(value), "error", err)
			return
		}
		e.annotate(key, v)
	default:
		if scope, ok := legacySynonymScopes[tag]; ok {
			e.addSynonym(tag, value, scope)
			return
		}
		e.annotate(tag, unescape(stripComment(value)))
	}
}

func (e *extractor) addSynonym(tag, value string, scope graph.SynonymScope) {
	syn, err := parseSynonym(value, scope)
	if err != nil {
		e.warn(WarnMalformedField, "bad synonym", "tag", tag, "value", truncate(value), "error", err)
		return
	}
	e.term.Synonyms = append(e.term.Synonyms, syn)
}

func (e *extractor) annotate(key, value string) {
	t := e.term
	if t.Annotations == nil {
		t.Annotations = make(map[string][]string, 2)
	}
	key = e.pool.get(key)
	t.Annotations[key] = append(t.Annotations[key], value)
}

func (e *extractor) typedefTag(tag, value string) {
	switch tag {
	case "id":
		e.typedefID = stripComment(value)
	case "name":
		e.typedefNm = unescape(stripComment(value))
	}
}

// flushStanza commits the stanza being built, if any.
func (e *extractor) flushStanza() {
	switch e.kind {
	case stanzaTypedef:
		if e.typedefID != "" {
			_ = e.graph.AddTypedef(e.typedefID, e.typedefNm)
		}
	case stanzaTerm, stanzaInstance:
		e.commitTerm()
	}
	e.kind = ""
	e.term = nil
}

func (e *extractor) commitTerm() {
	t := e.term
	if t == nil {
		return
	}
	switch {
	case t.ID == "":
		e.warnAt(e.startLine, WarnMissingID, "stanza without id")
		return
	case hasAnyPrefix(t.ID, e.opts.MetaPrefixes):
		e.res.Stats.Warn(SkipMetaRecord)
		e.log.Debug("discarding meta record", "id", t.ID, "line", e.startLine)
		return
	case e.opts.IDPrefix != "" && idPrefix(t.ID) != e.opts.IDPrefix:
		e.res.Stats.Warn(SkipForeignTerm)
		e.log.Debug("discarding term from embedded vocabulary", "id", t.ID, "line", e.startLine)
		return
	}
	if t.Namespace == "" {
		t.Namespace = e.res.Header.DefaultNamespace
	}
	if _, err := e.graph.AddTerm(t); err != nil {
		e.warnAt(e.startLine, WarnDuplicateTerm, "skipping term", "id", t.ID, "error", err)
		return
	}
	for _, r := range e.rels {
		r.child = t.ID
		e.pending = append(e.pending, r)
	}
}

// resolveRelations adds buffered relations once every term is known, so
// forward references resolve.
func (e *extractor) resolveRelations() {
	for _, r := range e.pending {
		if err := e.graph.AddRelation(r.child, r.rel, r.parent); err != nil {
			e.res.Stats.Warn(WarnDanglingRelation)
			e.log.Debug("dropping relation", "child", r.child, "relation", r.rel.String(), "parent", r.parent, "line", r.line, "error", err)
			continue
		}
		e.res.Stats.Relations++
	}
	e.pending = nil
}

func (e *extractor) warn(kind, msg string, args ...any) {
	e.warnAt(e.line, kind, msg, args...)
}

func (e *extractor) warnAt(line int, kind, msg string, args ...any) {
	e.res.Stats.Warn(kind)
	e.log.Warn(msg, append([]any{"line", line, "kind", kind}, args...)...)
}

func truncate(s string) string {
	const maxLen = 80
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
