package parser

import (
	"fmt"
	"path"
	"strings"
	"sync"
)

// Registry manages a collection of format parsers.
type Registry struct {
	mu       sync.RWMutex
	parsers  map[Format]Parser
	extIndex map[string]Parser
	order    []Format
	fallback Format
}

// NewRegistry creates a new parser registry. Sources whose extension is not
// recognized are handed to the first registered parser.
func NewRegistry() *Registry {
	return &Registry{
		parsers:  make(map[Format]Parser),
		extIndex: make(map[string]Parser),
		order:    make([]Format, 0),
	}
}

// Register adds a parser to the registry, indexing it by format and file extensions.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := p.Format()
	if _, exists := r.parsers[f]; !exists {
		r.order = append(r.order, f)
	}
	if r.fallback == "" {
		r.fallback = f
	}
	r.parsers[f] = p
	for _, ext := range p.Extensions() {
		r.extIndex[strings.ToLower(ext)] = p
	}
}

// Get retrieves a parser by format.
func (r *Registry) Get(f Format) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.parsers[f]
	return p, ok
}

// GetByExtension retrieves a parser by file extension (e.g. ".obo").
func (r *Registry) GetByExtension(ext string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.extIndex[strings.ToLower(ext)]
	return p, ok
}

// ForLocation picks a parser for a source location. An explicit format wins;
// otherwise the extension of the location is used (ignoring a trailing .gz),
// then the fallback parser.
func (r *Registry) ForLocation(location string, explicit Format) (Parser, error) {
	if explicit != "" {
		p, ok := r.Get(explicit)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, explicit)
		}
		return p, nil
	}
	loc := location
	if i := strings.IndexAny(loc, "?#"); i >= 0 {
		loc = loc[:i]
	}
	loc = strings.TrimSuffix(strings.ToLower(loc), ".gz")
	if p, ok := r.GetByExtension(path.Ext(loc)); ok {
		return p, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.parsers[r.fallback]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, location)
}

// All returns all registered parsers in registration order.
func (r *Registry) All() []Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Parser, len(r.order))
	for i, f := range r.order {
		result[i] = r.parsers[f]
	}
	return result
}
