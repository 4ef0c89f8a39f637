// Package diff computes the structural difference between two canonical
// attribute maps.
//
// The engine is vendor and unit agnostic: numeric-looking strings are compared
// as opaque strings. Numeric interpretation belongs to the tolerance filter.
package diff

import (
	"circuitsync/internal/domain"
)

// Options configures list comparison
type Options struct {
	// Unordered names the keys whose list values compare as multisets.
	// An entry matches either a full canonical path or a leaf name.
	Unordered []string `yaml:"unordered,omitempty" json:"unordered,omitempty"`
}

// Engine diffs canonical maps. The zero value compares every list in order.
type Engine struct {
	unordered map[string]bool
}

// New creates an engine with the given options
func New(opts Options) *Engine {
	e := &Engine{unordered: make(map[string]bool, len(opts.Unordered))}
	for _, k := range opts.Unordered {
		e.unordered[k] = true
	}
	return e
}

// Diff returns the symmetric difference of observed and designed. A key
// present on one side only is recorded with Absent on the other; keys with
// equal values are omitted. Neither input is modified.
func (e *Engine) Diff(observed, designed domain.AttributeMap) domain.DiffPair {
	out := domain.NewDiffPair()
	for k, ov := range observed {
		dv, ok := designed[k]
		if !ok {
			dv = domain.Absent
		}
		if e.equal(k, ov, dv) {
			continue
		}
		out.ObservedOnly[k] = domain.CloneValue(ov)
		out.DesignedOnly[k] = domain.CloneValue(dv)
	}
	for k, dv := range designed {
		if _, ok := observed[k]; ok {
			continue
		}
		if domain.IsAbsent(dv) {
			continue
		}
		out.ObservedOnly[k] = domain.Absent
		out.DesignedOnly[k] = domain.CloneValue(dv)
	}
	return out
}

func (e *Engine) equal(key string, a, b any) bool {
	la, aIsList := a.([]any)
	lb, bIsList := b.([]any)
	if aIsList && bIsList && e.isUnordered(key) {
		return multisetEqual(la, lb)
	}
	return domain.ValuesEqual(a, b)
}

func (e *Engine) isUnordered(key string) bool {
	if e == nil || len(e.unordered) == 0 {
		return false
	}
	return e.unordered[key] || e.unordered[domain.Leaf(key)]
}

// multisetEqual compares lists ignoring order but respecting multiplicity
func multisetEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, av := range a {
		found := false
		for j, bv := range b {
			if !used[j] && domain.ValuesEqual(av, bv) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
