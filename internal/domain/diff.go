package domain

// DiffPair holds the two sides of a structural difference. Both maps always
// share the same key set; a key missing on one side is recorded as Absent.
type DiffPair struct {
	ObservedOnly AttributeMap `json:"observed"`
	DesignedOnly AttributeMap `json:"designed"`
}

// NewDiffPair returns an empty pair
func NewDiffPair() DiffPair {
	return DiffPair{
		ObservedOnly: AttributeMap{},
		DesignedOnly: AttributeMap{},
	}
}

// Empty reports whether there is nothing left to act on
func (p DiffPair) Empty() bool {
	return len(p.ObservedOnly) == 0 && len(p.DesignedOnly) == 0
}

// Len returns the number of differing attributes
func (p DiffPair) Len() int {
	return len(p.ObservedOnly)
}

// Keys returns the differing attribute paths in sorted order
func (p DiffPair) Keys() []string {
	return p.ObservedOnly.Keys()
}

// Has reports whether the key differs
func (p DiffPair) Has(key string) bool {
	return p.ObservedOnly.Has(key)
}

// Clone returns a deep copy of the pair
func (p DiffPair) Clone() DiffPair {
	out := DiffPair{
		ObservedOnly: p.ObservedOnly.Clone(),
		DesignedOnly: p.DesignedOnly.Clone(),
	}
	if out.ObservedOnly == nil {
		out.ObservedOnly = AttributeMap{}
	}
	if out.DesignedOnly == nil {
		out.DesignedOnly = AttributeMap{}
	}
	return out
}

// Without returns a copy with the given keys removed from both sides
func (p DiffPair) Without(keys ...string) DiffPair {
	out := p.Clone()
	for _, k := range keys {
		delete(out.ObservedOnly, k)
		delete(out.DesignedOnly, k)
	}
	return out
}

// Only returns a copy that keeps just the keys accepted by keep
func (p DiffPair) Only(keep func(key string) bool) DiffPair {
	out := NewDiffPair()
	for k, v := range p.ObservedOnly {
		if keep(k) {
			out.ObservedOnly[k] = CloneValue(v)
			out.DesignedOnly[k] = CloneValue(p.DesignedOnly[k])
		}
	}
	return out
}

// WithValues returns a copy where key carries the given values on each side
func (p DiffPair) WithValues(key string, observed, designed any) DiffPair {
	out := p.Clone()
	out.ObservedOnly[key] = observed
	out.DesignedOnly[key] = designed
	return out
}

// Symmetric reports whether both sides carry the same key set
func (p DiffPair) Symmetric() bool {
	if len(p.ObservedOnly) != len(p.DesignedOnly) {
		return false
	}
	for k := range p.ObservedOnly {
		if _, ok := p.DesignedOnly[k]; !ok {
			return false
		}
	}
	return true
}

// KeysByLeaf returns the differing paths whose leaf name is in names
func (p DiffPair) KeysByLeaf(names map[string]bool) []string {
	var keys []string
	for _, k := range p.Keys() {
		if names[Leaf(k)] {
			keys = append(keys, k)
		}
	}
	return keys
}
