// Package payload normalizes intercepted request bodies and query strings
// into flat key/value mappings the flow transforms can read uniformly.
//
// DESIGN: Upstream clients send the same fields as JSON objects, JSON arrays
// of key/value-pair objects, or form-urlencoded strings, with inconsistent
// key casing. Everything funnels into Params so the transforms never care
// which encoding arrived.
package payload

import "strings"

// Params is a flat key->value mapping with case-insensitive keys.
//
// The first occurrence of a key wins: later duplicates (in any casing) are
// dropped, and the first-seen spelling is what serialization emits. Iteration
// follows insertion order, so rebuilt bodies and query strings are
// deterministic.
type Params struct {
	keys   []string          // first-seen spellings, insertion order
	values map[string]string // lowercased key -> value
}

// NewParams returns an empty mapping.
func NewParams() *Params {
	return &Params{values: make(map[string]string)}
}

// Add inserts key=value unless the key (case-insensitively) is already
// present. Empty keys are dropped; empty values are stored, since blankness
// is a lookup-time concern.
func (p *Params) Add(key, value string) {
	if key == "" {
		return
	}
	folded := strings.ToLower(key)
	if _, exists := p.values[folded]; exists {
		return
	}
	p.keys = append(p.keys, key)
	p.values[folded] = value
}

// Set inserts or overwrites key=value. An existing entry keeps its original
// spelling and position.
func (p *Params) Set(key, value string) {
	if key == "" {
		return
	}
	folded := strings.ToLower(key)
	if _, exists := p.values[folded]; exists {
		p.values[folded] = value
		return
	}
	p.keys = append(p.keys, key)
	p.values[folded] = value
}

// Get returns the stored value for key, case-insensitively. The boolean
// reports presence; a present entry may still hold an empty value.
func (p *Params) Get(key string) (string, bool) {
	v, ok := p.values[strings.ToLower(key)]
	return v, ok
}

// Has reports whether key is present, regardless of its value.
func (p *Params) Has(key string) bool {
	_, ok := p.values[strings.ToLower(key)]
	return ok
}

// Len returns the number of entries.
func (p *Params) Len() int {
	return len(p.keys)
}

// Each calls fn for every entry in insertion order, using the first-seen key
// spelling.
func (p *Params) Each(fn func(key, value string)) {
	for _, k := range p.keys {
		fn(k, p.values[strings.ToLower(k)])
	}
}

// Clone returns an independent copy.
func (p *Params) Clone() *Params {
	out := NewParams()
	p.Each(func(k, v string) { out.Add(k, v) })
	return out
}
