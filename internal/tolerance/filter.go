// Package tolerance drops diff entries that are semantically acceptable:
// numeric tolerance bands, circuit-ID labels, known-noisy fields and
// change-order scoping.
package tolerance

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"circuitsync/internal/domain"
	"circuitsync/internal/logging"
)

// Context carries what the rules need beyond the diff itself
type Context struct {
	Scope       domain.Scope
	CircuitID   string
	Model       string
	HandoffPort string
	// ChangeOrder marks a bandwidth-only change order
	ChangeOrder bool
	// Observed and Designed are the full canonical maps the diff came from
	Observed domain.AttributeMap
	Designed domain.AttributeMap
}

// Table holds the ordered rules per scope. It is immutable once built.
type Table struct {
	rules map[domain.Scope][]Rule
}

// NewTable validates the rules and builds a table
func NewTable(rules map[domain.Scope][]Rule) (*Table, error) {
	t := &Table{rules: make(map[domain.Scope][]Rule, len(rules))}
	for scope, list := range rules {
		for _, r := range list {
			if err := r.Validate(); err != nil {
				return nil, fmt.Errorf("scope %s: %w", scope, err)
			}
		}
		copied := make([]Rule, len(list))
		copy(copied, list)
		t.rules[scope] = copied
	}
	return t, nil
}

// Rules returns the rules of the most specific scope that has any
func (t *Table) Rules(scope domain.Scope) []Rule {
	if t == nil {
		return nil
	}
	for _, s := range scope.Fallbacks() {
		if list, ok := t.rules[s]; ok {
			return list
		}
	}
	return nil
}

// Scopes returns the number of scopes with rules
func (t *Table) Scopes() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// Interactions lists rule pairs whose outcome depends on their order: a rule
// that rewrites list values followed by a rule on the same leaf that reads
// list values. Removals commute and are never reported.
func (t *Table) Interactions() []string {
	if t == nil {
		return nil
	}
	var out []string
	for scope, list := range t.rules {
		for i, first := range list {
			if !first.prunes() {
				continue
			}
			leaves := first.targets()
			for _, later := range list[i+1:] {
				if !later.readsLists() {
					continue
				}
				for leaf := range later.targets() {
					if leaves[leaf] {
						out = append(out, fmt.Sprintf("%s: %q rewrites %s before %q reads it", scope, first.Name, leaf, later.Name))
					}
				}
			}
		}
	}
	return out
}

// Filter applies a table to diff pairs. Safe for concurrent use.
type Filter struct {
	table *Table
	log   *logrus.Entry
}

// New creates a filter over the table
func New(table *Table) *Filter {
	return &Filter{table: table, log: logging.For("tolerance")}
}

// Filter returns a new pair with every acceptable difference removed. Rules
// only remove keys or prune list elements, so the result never has a key the
// input lacked. During a change order the scope's change_order rule, or the
// vendor's ChangeOrderKeys when the scope has none, supersedes every other rule.
func (f *Filter) Filter(pair domain.DiffPair, ctx Context) domain.DiffPair {
	rules := f.table.Rules(ctx.Scope)
	out := pair.Clone()
	if out.Empty() {
		return out
	}

	if ctx.ChangeOrder {
		if r, ok := changeOrderRule(rules, ctx); ok {
			return f.run(r, out, ctx)
		}
	}

	for _, r := range rules {
		if r.Kind == KindChangeOrder || !r.appliesTo(ctx.Model) {
			continue
		}
		out = f.run(r, out, ctx)
		if out.Empty() {
			break
		}
	}
	return out
}

// changeOrderRule picks the narrowing rule for a change order. Scopes without
// one, NNI and most ELAN vendors among them, use the vendor's bandwidth keys.
func changeOrderRule(rules []Rule, ctx Context) (Rule, bool) {
	for _, r := range rules {
		if r.Kind == KindChangeOrder && r.appliesTo(ctx.Model) {
			return r, true
		}
	}
	if _, ok := ChangeOrderKeys[ctx.Scope.Vendor]; ok {
		return changeOrder(ctx.Scope.Vendor), true
	}
	return Rule{}, false
}

func (f *Filter) run(r Rule, pair domain.DiffPair, ctx Context) domain.DiffPair {
	out, dropped := r.apply(pair, ctx)
	if len(dropped) > 0 {
		f.log.WithFields(logrus.Fields{
			"circuit": ctx.CircuitID,
			"scope":   ctx.Scope.String(),
			"rule":    r.Name,
			"keys":    dropped,
		}).Debug("tolerated differences")
	}
	return out
}
