package obo

import (
	"errors"
	"strings"

	"github.com/imyousuf/ontograph/internal/graph"
)

var (
	errUnterminatedQuote = errors.New("unterminated quoted string")
	errMissingQuote      = errors.New("expected quoted string")
	errTooFewFields      = errors.New("too few fields")
)

// internPool avoids duplicate string allocations for repeated values such as
// namespaces and relation names.
type internPool struct {
	m map[string]string
}

func newInternPool() *internPool {
	return &internPool{m: make(map[string]string, 64)}
}

func (p *internPool) get(s string) string {
	if v, ok := p.m[s]; ok {
		return v
	}
	p.m[s] = s
	return s
}

// stripComment removes an unescaped, unquoted trailing "! comment" and a
// trailing "{qualifier}" block, returning the trimmed value. A brace block is
// a qualifier only when it is balanced, ends the value and is preceded by
// whitespace, so names such as "bis{2-chloroethyl}" survive.
func stripComment(v string) string {
	v = strings.TrimSpace(v)
	inQuote := false
	escaped := false
	depth := 0
	blockAt, blockEnd := -1, -1
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '!':
			v = v[:i]
		case c == '{':
			if depth == 0 {
				blockAt = i
			}
			depth++
		case c == '}' && depth > 0:
			depth--
			if depth == 0 {
				blockEnd = i
			}
		}
	}
	v = strings.TrimRight(v, " \t")
	if depth == 0 && blockAt > 0 && blockEnd == len(v)-1 && (v[blockAt-1] == ' ' || v[blockAt-1] == '\t') {
		v = strings.TrimSpace(v[:blockAt])
	}
	return v
}

// unescape resolves OBO backslash escapes.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i == len(s)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'W':
			b.WriteByte(' ')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// readQuoted parses a leading quoted string and returns its unescaped text
// and the remainder after the closing quote.
func readQuoted(s string) (text, rest string, err error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, `"`) {
		return "", s, errMissingQuote
	}
	escaped := false
	for i := 1; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == '"':
			return unescape(s[1:i]), strings.TrimSpace(s[i+1:]), nil
		}
	}
	return "", "", errUnterminatedQuote
}

// firstField returns the first whitespace-delimited token.
func firstField(s string) string {
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i]
	}
	return s
}

// parseSynonym parses: "text" SCOPE [TYPE] [xrefs]
func parseSynonym(v string, defaultScope graph.SynonymScope) (graph.Synonym, error) {
	text, rest, err := readQuoted(v)
	if err != nil {
		return graph.Synonym{}, err
	}
	syn := graph.Synonym{Text: text, Scope: defaultScope}
	rest = stripComment(rest)
	if i := strings.IndexByte(rest, '['); i >= 0 {
		rest = rest[:i]
	}
	fields := strings.Fields(rest)
	if len(fields) > 0 {
		switch scope := graph.SynonymScope(strings.ToUpper(fields[0])); scope {
		case graph.ScopeExact, graph.ScopeBroad, graph.ScopeNarrow, graph.ScopeRelated:
			syn.Scope = scope
			fields = fields[1:]
		}
	}
	if len(fields) > 0 {
		syn.Type = fields[0]
	}
	if syn.Scope == "" {
		syn.Scope = graph.ScopeRelated
	}
	return syn, nil
}

// parsePropertyValue parses: key value [datatype] or key "value" datatype.
func parsePropertyValue(v string) (key, value string, err error) {
	v = strings.TrimSpace(v)
	key = firstField(v)
	rest := strings.TrimSpace(v[len(key):])
	if key == "" || rest == "" {
		return "", "", errTooFewFields
	}
	if strings.HasPrefix(rest, `"`) {
		text, _, err := readQuoted(rest)
		if err != nil {
			return "", "", err
		}
		return key, text, nil
	}
	return key, firstField(rest), nil
}

// parseRelationship parses: <type> <target-id>
func parseRelationship(v string) (rel, target string, err error) {
	fields := strings.Fields(v)
	if len(fields) < 2 {
		return "", "", errTooFewFields
	}
	return fields[0], fields[1], nil
}

// idPrefix returns the prefix of a CURIE ("GO" for "GO:0005737").
func idPrefix(id string) string {
	if i := strings.IndexByte(id, ':'); i > 0 {
		return id[:i]
	}
	return ""
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
