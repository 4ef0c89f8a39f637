package normalize

import (
	"path"
	"strings"

	"circuitsync/internal/domain"
)

// Profile shapes the canonical map for one scope
type Profile struct {
	// Include lists the leaf names to keep. Empty keeps every leaf.
	Include []string `yaml:"include,omitempty" json:"include,omitempty"`
	// Exclude lists dotted glob patterns; "*" matches one path segment.
	// A pattern that matches a prefix of a path drops the whole subtree.
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	// Required lists top-level sections the document must carry
	Required []string `yaml:"required,omitempty" json:"required,omitempty"`
}

// keeps reports whether a canonical path survives the profile
func (p Profile) keeps(key string) bool {
	if len(p.Include) > 0 && !containsString(p.Include, domain.Leaf(key)) {
		return false
	}
	for _, pattern := range p.Exclude {
		if matchesPrefix(pattern, key) {
			return false
		}
	}
	return true
}

// Merge returns a profile carrying the entries of both, p first
func (p Profile) Merge(other Profile) Profile {
	return Profile{
		Include:  appendUnique(p.Include, other.Include),
		Exclude:  appendUnique(p.Exclude, other.Exclude),
		Required: appendUnique(p.Required, other.Required),
	}
}

// Validate checks every exclude pattern is a well-formed glob
func (p Profile) Validate() error {
	for _, pattern := range p.Exclude {
		for _, seg := range strings.Split(pattern, domain.PathSeparator) {
			if _, err := path.Match(escapeSlash(seg), ""); err != nil {
				return err
			}
		}
	}
	return nil
}

// matchesPrefix reports whether pattern matches key or one of its dotted prefixes
func matchesPrefix(pattern, key string) bool {
	patSegs := strings.Split(pattern, domain.PathSeparator)
	keySegs := strings.Split(key, domain.PathSeparator)
	if len(patSegs) > len(keySegs) {
		return false
	}
	for i, ps := range patSegs {
		if !matchSegment(ps, keySegs[i]) {
			return false
		}
	}
	return true
}

func matchSegment(pattern, seg string) bool {
	if pattern == "*" || pattern == seg {
		return true
	}
	ok, err := path.Match(escapeSlash(pattern), escapeSlash(seg))
	return err == nil && ok
}

// escapeSlash keeps port names like "1/1/1" inside a single glob segment
func escapeSlash(s string) string {
	return strings.ReplaceAll(s, "/", "|")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func appendUnique(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if !containsString(out, s) {
			out = append(out, s)
		}
	}
	return out
}
