// Package bootstrap gathers evidence about the host circuitsync runs on and
// the files and credentials its config points at, then recommends a mode and
// the capabilities that can be enabled.
package bootstrap

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies types of evidence
type Category string

const (
	CategoryEnvironment Category = "environment"
	CategoryTools       Category = "tools"
	CategoryPaths       Category = "paths"
	CategoryCredentials Category = "credentials"
)

// Evidence represents a single discovered fact
type Evidence struct {
	ID         string         `json:"id"`
	Category   Category       `json:"category"`
	Property   string         `json:"property"`
	Value      any            `json:"value"`
	Confidence float64        `json:"confidence"` // 0.0-1.0
	Source     string         `json:"source"`     // e.g., "filesystem", "environment", "config"
	Method     string         `json:"method"`     // e.g., "/.dockerenv exists"
	Timestamp  time.Time      `json:"timestamp"`
	Raw        map[string]any `json:"raw,omitempty"`
}

// NewEvidence creates evidence with a fresh ID
func NewEvidence(cat Category, prop string, value any, conf float64, source, method string) Evidence {
	return Evidence{
		ID:         uuid.NewString(),
		Category:   cat,
		Property:   prop,
		Value:      value,
		Confidence: conf,
		Source:     source,
		Method:     method,
		Timestamp:  time.Now(),
	}
}

// WithRaw adds raw data to evidence and returns it (for chaining)
func (e Evidence) WithRaw(raw map[string]any) Evidence {
	e.Raw = raw
	return e
}

// EvidenceSet aggregates multiple pieces of evidence
type EvidenceSet struct {
	items []Evidence
}

// NewEvidenceSet creates an empty evidence set
func NewEvidenceSet() *EvidenceSet {
	return &EvidenceSet{}
}

// Add appends a single piece of evidence
func (es *EvidenceSet) Add(e Evidence) {
	es.items = append(es.items, e)
}

// AddAll appends multiple pieces of evidence
func (es *EvidenceSet) AddAll(items []Evidence) {
	es.items = append(es.items, items...)
}

// All returns all evidence
func (es *EvidenceSet) All() []Evidence {
	return es.items
}

// Count returns the number of evidence items
func (es *EvidenceSet) Count() int {
	return len(es.items)
}

// ByCategory returns evidence filtered by category
func (es *EvidenceSet) ByCategory(cat Category) []Evidence {
	var result []Evidence
	for _, e := range es.items {
		if e.Category == cat {
			result = append(result, e)
		}
	}
	return result
}

// BestValue returns the highest-confidence value for a property
func (es *EvidenceSet) BestValue(cat Category, prop string) (any, float64, bool) {
	var best Evidence
	var found bool

	for _, e := range es.items {
		if e.Category == cat && e.Property == prop {
			if !found || e.Confidence > best.Confidence {
				best = e
				found = true
			}
		}
	}

	if !found {
		return nil, 0, false
	}
	return best.Value, best.Confidence, true
}

// Bool returns the best value of a boolean property; missing counts as false
func (es *EvidenceSet) Bool(cat Category, prop string) bool {
	v, _, ok := es.BestValue(cat, prop)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// String returns the best value of a string property
func (es *EvidenceSet) String(cat Category, prop string) string {
	v, _, ok := es.BestValue(cat, prop)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Any reports whether any evidence for a boolean property is true
func (es *EvidenceSet) Any(cat Category, prop string) bool {
	for _, e := range es.items {
		if e.Category == cat && e.Property == prop {
			if b, ok := e.Value.(bool); ok && b {
				return true
			}
		}
	}
	return false
}
