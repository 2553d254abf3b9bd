// Package graph holds the ontology term graph: terms, typed relations, and
// the per-relation adjacency indices built from an OBO source.
package graph

import (
	"fmt"
	"strings"
)

// RelationKind tags the variant held by a RelationType.
type RelationKind uint8

const (
	KindIsA RelationKind = iota + 1
	KindPartOf
	KindDevelopsFrom
	KindNamed
)

// RelationType is the tagged variant IsA | PartOf | DevelopsFrom | Named(name).
// It is a comparable value and can be used as a map key.
type RelationType struct {
	Kind RelationKind `json:"kind"`
	Name string       `json:"name,omitempty"` // only set for KindNamed
}

var (
	IsA          = RelationType{Kind: KindIsA}
	PartOf       = RelationType{Kind: KindPartOf}
	DevelopsFrom = RelationType{Kind: KindDevelopsFrom}
)

// Named returns a relation type outside the three canonical ones. Named
// relations are kept for inspection and never followed by closure queries.
func Named(name string) RelationType {
	return RelationType{Kind: KindNamed, Name: name}
}

// IsCanonical reports whether r is one of IsA, PartOf, DevelopsFrom.
func (r RelationType) IsCanonical() bool {
	return r.Kind == KindIsA || r.Kind == KindPartOf || r.Kind == KindDevelopsFrom
}

func (r RelationType) String() string {
	switch r.Kind {
	case KindIsA:
		return "is_a"
	case KindPartOf:
		return "part_of"
	case KindDevelopsFrom:
		return "develops_from"
	case KindNamed:
		return r.Name
	}
	return fmt.Sprintf("relation(%d)", r.Kind)
}

// relationSynonyms maps lower-cased spellings to canonical relation types.
var relationSynonyms = map[string]RelationType{
	"is_a":                  IsA,
	"isa":                   IsA,
	"is-a":                  IsA,
	"obo_rel:is_a":          IsA,
	"rdfs:subclassof":       IsA,
	"subclassof":            IsA,
	"part_of":               PartOf,
	"partof":                PartOf,
	"part-of":               PartOf,
	"obo_rel:part_of":       PartOf,
	"bfo:0000050":           PartOf,
	"develops_from":         DevelopsFrom,
	"developsfrom":          DevelopsFrom,
	"develops-from":         DevelopsFrom,
	"obo_rel:develops_from": DevelopsFrom,
	"ro:0002202":            DevelopsFrom,
}

// ParseRelationType normalizes a relation spelling found in a source.
// Unknown spellings become Named relations with the original text.
func ParseRelationType(s string) RelationType {
	s = strings.TrimSpace(s)
	if rt, ok := relationSynonyms[strings.ToLower(s)]; ok {
		return rt
	}
	return Named(s)
}

// SynonymScope is the OBO synonym scope.
type SynonymScope string

const (
	ScopeExact   SynonymScope = "EXACT"
	ScopeBroad   SynonymScope = "BROAD"
	ScopeNarrow  SynonymScope = "NARROW"
	ScopeRelated SynonymScope = "RELATED"
)

// Synonym is an alternative name for a term.
type Synonym struct {
	Text  string       `json:"text"`
	Scope SynonymScope `json:"scope,omitempty"`
	Type  string       `json:"type,omitempty"`
}

// Term is one ontology term.
type Term struct {
	ID          string              `json:"id"`
	Name        string              `json:"name,omitempty"`
	Namespace   string              `json:"namespace,omitempty"`
	Definition  string              `json:"definition,omitempty"`
	Comment     string              `json:"comment,omitempty"`
	Synonyms    []Synonym           `json:"synonyms,omitempty"`
	AltIDs      []string            `json:"alt_ids,omitempty"`
	Xrefs       []string            `json:"xrefs,omitempty"`
	Obsolete    bool                `json:"obsolete,omitempty"`
	Instance    bool                `json:"instance,omitempty"`
	Annotations map[string][]string `json:"annotations,omitempty"`
}

// Names returns the preferred name followed by every synonym text.
func (t *Term) Names() []string {
	names := make([]string, 0, 1+len(t.Synonyms))
	if t.Name != "" {
		names = append(names, t.Name)
	}
	for _, s := range t.Synonyms {
		if s.Text != "" {
			names = append(names, s.Text)
		}
	}
	return names
}

// Relation is a directed edge from a child term to a parent term.
type Relation struct {
	Child  string       `json:"child"`
	Type   RelationType `json:"type"`
	Parent string       `json:"parent"`
}

// RootPolicy selects how root terms are detected when a graph is frozen.
type RootPolicy string

const (
	// RootStrict: a root has no parent edge of any relation type.
	RootStrict RootPolicy = "strict"
	// RootGreedy: a root is a live (non-obsolete, non-instance) term from which
	// no other live term is reachable upward, walking through obsolete and
	// instance parents.
	RootGreedy RootPolicy = "greedy"
)

// ParseRootPolicy validates a policy name. Empty means RootStrict.
func ParseRootPolicy(s string) (RootPolicy, error) {
	switch RootPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RootStrict:
		return RootStrict, nil
	case RootGreedy:
		return RootGreedy, nil
	}
	return "", fmt.Errorf("unknown root policy %q (want strict or greedy)", s)
}

// Stats holds aggregate counts for a graph.
type Stats struct {
	Terms           int            `json:"terms"`
	Obsolete        int            `json:"obsolete"`
	Relations       int            `json:"relations"`
	Roots           int            `json:"roots"`
	RelationsByType map[string]int `json:"relations_by_type"`
}
