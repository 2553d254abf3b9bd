package registry

import (
	"net/url"
	"strings"
)

// A Normalizer extracts candidate accessions from an external identifier.
// It returns nil when the identifier is not in the shape it handles.
type Normalizer func(uri string) []string

const miriamPrefix = "urn:miriam:"

// MIRIAMNormalizer handles urn:miriam:<namespace>:<local>. The
// percent-decoded local part is the first candidate ("GO:0005737" for
// urn:miriam:obo.go:GO%3A0005737), its final colon segment the second.
func MIRIAMNormalizer(uri string) []string {
	if len(uri) < len(miriamPrefix) || !strings.EqualFold(uri[:len(miriamPrefix)], miriamPrefix) {
		return nil
	}
	rest := uri[len(miriamPrefix):]
	_, local, ok := strings.Cut(rest, ":")
	if !ok || local == "" {
		return nil
	}
	local = unescape(local)
	out := []string{local}
	if i := strings.LastIndexByte(local, ':'); i >= 0 && i < len(local)-1 {
		out = append(out, local[i+1:])
	}
	return out
}

// URLNormalizer handles http(s) resolver URLs. The final path segment is the
// candidate, with the OBO PURL form GO_0005737 also tried as GO:0005737.
func URLNormalizer(uri string) []string {
	lower := strings.ToLower(uri)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return nil
	}
	p := uri
	if u, err := url.Parse(uri); err == nil {
		p = u.EscapedPath()
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimRight(p, "/")
	seg := p[strings.LastIndexByte(p, '/')+1:]
	if seg == "" {
		return nil
	}
	seg = unescape(seg)
	out := []string{seg}
	if alt, ok := purlForm(seg); ok {
		out = append(out, alt)
	}
	return out
}

// CURIENormalizer accepts a bare accession or CURIE as is.
func CURIENormalizer(uri string) []string {
	if uri == "" {
		return nil
	}
	return []string{uri}
}

// DefaultNormalizers is the chain Resolve uses unless overridden.
func DefaultNormalizers() []Normalizer {
	return []Normalizer{MIRIAMNormalizer, URLNormalizer, CURIENormalizer}
}

// purlForm rewrites PREFIX_LOCAL to PREFIX:LOCAL when the id has no colon.
func purlForm(s string) (string, bool) {
	if strings.IndexByte(s, ':') >= 0 {
		return "", false
	}
	i := strings.IndexByte(s, '_')
	if i <= 0 || i == len(s)-1 {
		return "", false
	}
	return s[:i] + ":" + s[i+1:], true
}

func unescape(s string) string {
	if d, err := url.PathUnescape(s); err == nil {
		return d
	}
	return s
}

// candidates runs the chain and expands each candidate with its upper-cased
// form, keeping first-seen order.
func candidates(uri string, chain []Normalizer) []string {
	uri = strings.TrimSpace(uri)
	seen := make(map[string]struct{}, 8)
	var out []string
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, n := range chain {
		for _, c := range n(uri) {
			add(c)
			add(strings.ToUpper(c))
		}
	}
	return out
}
