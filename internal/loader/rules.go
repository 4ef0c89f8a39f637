// Package loader reads the YAML files circuitsync is driven by: the rule
// tables that shape a pass and the circuit inventory.
package loader

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"circuitsync/internal/classify"
	"circuitsync/internal/diff"
	"circuitsync/internal/domain"
	"circuitsync/internal/normalize"
	"circuitsync/internal/service"
	"circuitsync/internal/tolerance"
	"circuitsync/internal/validate"
)

// RulesYAML represents the rule tables file
type RulesYAML struct {
	Version string `yaml:"version"`
	// Defaults starts from the built-in tables; listed scopes replace theirs
	Defaults  bool                           `yaml:"defaults"`
	Unordered []string                       `yaml:"unordered,omitempty"`
	Triggers  map[string]map[string][]string `yaml:"triggers,omitempty"`
	Scopes    []ScopeYAML                    `yaml:"scopes"`
}

// ScopeYAML holds everything keyed by one (service type, vendor) pair
type ScopeYAML struct {
	ServiceType string             `yaml:"service_type"`
	Vendor      string             `yaml:"vendor"`
	Profile     *normalize.Profile `yaml:"profile,omitempty"`
	Rules       []tolerance.Rule   `yaml:"rules,omitempty"`
	Checks      []validate.Check   `yaml:"checks,omitempty"`
}

func (s ScopeYAML) scope() domain.Scope {
	st := domain.ServiceType(domain.Wildcard)
	if s.ServiceType != "" && s.ServiceType != domain.Wildcard {
		st = domain.ParseServiceType(s.ServiceType)
	}
	vendor := domain.Vendor(domain.Wildcard)
	if s.Vendor != "" && s.Vendor != domain.Wildcard {
		vendor = domain.ParseVendor(s.Vendor)
	}
	return domain.Scope{ServiceType: st, Vendor: vendor}
}

// Ruleset is a validated, immutable set of tables
type Ruleset struct {
	Profiles  map[domain.Scope]normalize.Profile
	Tolerance *tolerance.Table
	Checks    *validate.Table
	Triggers  map[domain.Vendor]classify.Triggers
	Diff      diff.Options
	// Warnings lists order-dependent rule pairs found while loading
	Warnings []string
}

// DefaultRuleset returns the built-in tables
func DefaultRuleset() (*Ruleset, error) {
	return ParseRules([]byte("defaults: true\n"))
}

// LoadRules loads a rules file
func LoadRules(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return ParseRules(data)
}

// ParseRules parses and validates rule tables from YAML bytes
func ParseRules(data []byte) (*Ruleset, error) {
	var y RulesYAML
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return convertRules(&y)
}

func convertRules(y *RulesYAML) (*Ruleset, error) {
	rules := map[domain.Scope][]tolerance.Rule{}
	checks := map[domain.Scope][]validate.Check{}
	if y.Defaults {
		rules = tolerance.DefaultRules()
		checks = validate.DefaultChecks()
	}

	rs := &Ruleset{
		Profiles: map[domain.Scope]normalize.Profile{},
		Diff:     diff.Options{Unordered: y.Unordered},
	}

	seen := map[domain.Scope]bool{}
	for _, s := range y.Scopes {
		scope := s.scope()
		if seen[scope] {
			return nil, fmt.Errorf("scope %s listed twice", scope)
		}
		seen[scope] = true

		if s.Rules != nil {
			rules[scope] = s.Rules
		}
		if s.Checks != nil {
			checks[scope] = s.Checks
		}
		if s.Profile != nil {
			if err := s.Profile.Validate(); err != nil {
				return nil, fmt.Errorf("scope %s profile: %w", scope, err)
			}
			rs.Profiles[scope] = *s.Profile
		}
	}

	table, err := tolerance.NewTable(rules)
	if err != nil {
		return nil, err
	}
	rs.Tolerance = table
	rs.Warnings = table.Interactions()

	checkTable, err := validate.NewTable(checks)
	if err != nil {
		return nil, err
	}
	rs.Checks = checkTable

	triggers, err := convertTriggers(y.Triggers, y.Defaults)
	if err != nil {
		return nil, err
	}
	rs.Triggers = triggers

	return rs, nil
}

// convertTriggers builds per-vendor trigger tables. A nil result lets the
// classifier fall back to its defaults.
func convertTriggers(in map[string]map[string][]string, withDefaults bool) (map[domain.Vendor]classify.Triggers, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[domain.Vendor]classify.Triggers, len(in)+1)
	if withDefaults {
		out[domain.Wildcard] = classify.DefaultTriggers()
	}
	for vendorName, categories := range in {
		vendor := domain.Vendor(domain.Wildcard)
		if vendorName != domain.Wildcard {
			vendor = domain.ParseVendor(vendorName)
		}
		t := classify.Triggers{}
		for name, leaves := range categories {
			category, err := domain.ParseCategory(name)
			if err != nil {
				return nil, fmt.Errorf("triggers for %s: %w", vendorName, err)
			}
			t[category] = append(t[category], leaves...)
		}
		out[vendor] = t
	}
	return out, nil
}

// Pipeline builds the pass stages from the tables
func (rs *Ruleset) Pipeline() *service.Pipeline {
	return &service.Pipeline{
		Normalizer: normalize.New(rs.Profiles),
		Differ:     diff.New(rs.Diff),
		Filter:     tolerance.New(rs.Tolerance),
		Classifier: classify.New(rs.Triggers),
		Validator:  validate.New(rs.Checks),
	}
}

// ExportRules renders explicit tables (no defaults flag) for every scope
func ExportRules(rules map[domain.Scope][]tolerance.Rule, checks map[domain.Scope][]validate.Check, profiles map[domain.Scope]normalize.Profile) ([]byte, error) {
	scopes := map[domain.Scope]bool{}
	for s := range rules {
		scopes[s] = true
	}
	for s := range checks {
		scopes[s] = true
	}
	for s := range profiles {
		scopes[s] = true
	}
	ordered := make([]domain.Scope, 0, len(scopes))
	for s := range scopes {
		ordered = append(ordered, s)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].String() < ordered[j].String() })

	y := &RulesYAML{Version: "1"}
	for _, s := range ordered {
		entry := ScopeYAML{
			ServiceType: string(s.ServiceType),
			Vendor:      string(s.Vendor),
			Rules:       rules[s],
			Checks:      checks[s],
		}
		if p, ok := profiles[s]; ok {
			entry.Profile = &p
		}
		y.Scopes = append(y.Scopes, entry)
	}

	return yaml.Marshal(y)
}
