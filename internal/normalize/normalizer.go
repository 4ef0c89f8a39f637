// Package normalize flattens nested configuration documents into canonical
// attribute maps.
package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"circuitsync/internal/domain"
)

// ErrInvalidDocument is returned for input that is not a JSON object
var ErrInvalidDocument = errors.New("invalid configuration document")

// Normalizer produces canonical attribute maps. It is safe for concurrent use:
// profiles are copied in at construction and never mutated.
type Normalizer struct {
	profiles map[domain.Scope]Profile
}

// New creates a normalizer with the given per-scope profiles
func New(profiles map[domain.Scope]Profile) *Normalizer {
	copied := make(map[domain.Scope]Profile, len(profiles))
	for scope, p := range profiles {
		copied[scope] = p
	}
	return &Normalizer{profiles: copied}
}

// ProfileFor returns the most specific profile registered for scope
func (n *Normalizer) ProfileFor(scope domain.Scope) Profile {
	for _, s := range scope.Fallbacks() {
		if p, ok := n.profiles[s]; ok {
			return p
		}
	}
	return Profile{}
}

// Normalize flattens doc into dotted-path attributes shaped by the scope's profile.
// Objects recurse, lists of scalars stay list values, lists holding objects
// recurse with index segments, and null or empty containers become Absent.
// A required section that is missing, null or empty becomes ConfigAbsent.
func (n *Normalizer) Normalize(doc domain.Document, scope domain.Scope) (domain.AttributeMap, error) {
	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidDocument)
	}
	root := gjson.ParseBytes(doc)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: top level is %s, want object", ErrInvalidDocument, root.Type)
	}

	flat := make(domain.AttributeMap)
	flatten(flat, "", root)

	profile := n.ProfileFor(scope)
	out := make(domain.AttributeMap, len(flat))
	for k, v := range flat {
		if domain.IsConfigAbsent(v) || profile.keeps(k) {
			out[k] = v
		}
	}
	for _, section := range profile.Required {
		if sectionMissing(flat, section) {
			out[section] = domain.ConfigAbsent
		}
	}
	return out, nil
}

// MissingSections returns the required sections marked ConfigAbsent in m
func MissingSections(m domain.AttributeMap) []string {
	var sections []string
	for _, k := range m.Keys() {
		if domain.IsConfigAbsent(m[k]) {
			sections = append(sections, k)
		}
	}
	return sections
}

func flatten(out domain.AttributeMap, prefix string, node gjson.Result) {
	switch {
	case node.IsObject():
		if isConfigAbsentMarker(node) {
			out[prefix] = domain.ConfigAbsent
			return
		}
		empty := true
		node.ForEach(func(key, value gjson.Result) bool {
			empty = false
			flatten(out, domain.JoinPath(prefix, key.String()), value)
			return true
		})
		if empty && prefix != "" {
			out[prefix] = domain.Absent
		}
	case node.IsArray():
		items := node.Array()
		if len(items) == 0 {
			out[prefix] = domain.Absent
			return
		}
		if !hasContainer(items) {
			list := make([]any, len(items))
			for i, item := range items {
				list[i] = scalar(item)
			}
			out[prefix] = list
			return
		}
		for i, item := range items {
			flatten(out, domain.JoinPath(prefix, strconv.Itoa(i)), item)
		}
	default:
		out[prefix] = scalar(node)
	}
}

func scalar(r gjson.Result) any {
	switch r.Type {
	case gjson.Null:
		return domain.Absent
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.Number:
		return r.Num
	default:
		return r.String()
	}
}

func hasContainer(items []gjson.Result) bool {
	for _, item := range items {
		if item.IsObject() || item.IsArray() {
			return true
		}
	}
	return false
}

func isConfigAbsentMarker(node gjson.Result) bool {
	m := node.Map()
	if len(m) != 1 {
		return false
	}
	v, ok := m[domain.AbsentMarkerKey()]
	return ok && v.String() == "config"
}

// sectionMissing reports whether a required section carries no attributes:
// not present, null, an empty container, or already marked ConfigAbsent.
func sectionMissing(flat domain.AttributeMap, section string) bool {
	if v, ok := flat[section]; ok {
		return domain.IsAbsent(v) || domain.IsConfigAbsent(v)
	}
	prefix := section + domain.PathSeparator
	for k := range flat {
		if strings.HasPrefix(k, prefix) {
			return false
		}
	}
	return true
}
