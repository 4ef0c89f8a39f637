package tolerance

import (
	"errors"
	"fmt"
	"math"
	"net/netip"
	"strings"

	"circuitsync/internal/domain"
)

// ErrUnknownRuleKind is returned when a table names a kind the filter cannot run
var ErrUnknownRuleKind = errors.New("unknown tolerance rule kind")

// Kind selects the predicate a rule applies
type Kind string

const (
	// KindBandwidth drops the bandwidth keys when the summed counters agree
	// within ceil(designed * percent / 100)
	KindBandwidth Kind = "bandwidth"
	// KindLabel drops a key whose observed value contains the circuit ID
	KindLabel Kind = "label"
	// KindLabelList prunes list elements that contain the circuit ID
	KindLabelList Kind = "label_list"
	// KindKnownAbsent drops a key whose observed value is legitimately empty
	KindKnownAbsent Kind = "known_absent"
	// KindChangeOrder keeps only the listed keys during a change order
	KindChangeOrder Kind = "change_order"
	// KindNumeric drops a key whose numeric values agree within percent
	KindNumeric Kind = "numeric"
	// KindAtLeast drops a key whose observed value reaches a designed reference
	KindAtLeast Kind = "at_least"
	// KindCaseFold drops a key whose upper-cased observed value equals the design
	KindCaseFold Kind = "case_fold"
	// KindIPv6 drops a key when both sides hold the same IPv6 address and prefix length
	KindIPv6 Kind = "ipv6"
)

// HandoffPortPlaceholder expands to the device's upper-cased handoff port in Within paths
const HandoffPortPlaceholder = "{handoff_port}"

// DefaultBandwidthPercent is the bandwidth tolerance band used when a rule sets none
const DefaultBandwidthPercent = 1.0

// Rule is one named, scoped tolerance predicate
type Rule struct {
	Name string `yaml:"name" json:"name"`
	Kind Kind   `yaml:"kind" json:"kind"`
	// Keys lists the leaf names the rule examines or drops
	Keys []string `yaml:"keys,omitempty" json:"keys,omitempty"`
	// Counters lists the leaves summed by a bandwidth rule
	Counters []string `yaml:"counters,omitempty" json:"counters,omitempty"`
	// Within restricts counter sums to these path prefixes
	Within  []string `yaml:"within,omitempty" json:"within,omitempty"`
	Percent float64  `yaml:"percent,omitempty" json:"percent,omitempty"`
	// Reference is the designed attribute an at_least rule compares with
	Reference    string   `yaml:"reference,omitempty" json:"reference,omitempty"`
	Models       []string `yaml:"models,omitempty" json:"models,omitempty"`
	ExceptModels []string `yaml:"except_models,omitempty" json:"except_models,omitempty"`
}

// Validate checks the rule can be evaluated
func (r Rule) Validate() error {
	switch r.Kind {
	case KindBandwidth:
		if len(r.Counters) == 0 {
			return fmt.Errorf("rule %q: bandwidth rule needs counters", r.Name)
		}
	case KindAtLeast:
		if r.Reference == "" {
			return fmt.Errorf("rule %q: at_least rule needs a reference", r.Name)
		}
		fallthrough
	case KindLabel, KindLabelList, KindKnownAbsent, KindChangeOrder, KindNumeric, KindCaseFold, KindIPv6:
		if len(r.Keys) == 0 {
			return fmt.Errorf("rule %q: %s rule needs keys", r.Name, r.Kind)
		}
	default:
		return fmt.Errorf("rule %q: %w: %q", r.Name, ErrUnknownRuleKind, r.Kind)
	}
	if r.Percent < 0 {
		return fmt.Errorf("rule %q: negative percent", r.Name)
	}
	return nil
}

// appliesTo reports whether the rule covers the device model
func (r Rule) appliesTo(model string) bool {
	if len(r.Models) > 0 && !containsFold(r.Models, model) {
		return false
	}
	return !containsFold(r.ExceptModels, model)
}

// prunes reports whether the rule rewrites values rather than only removing keys
func (r Rule) prunes() bool {
	return r.Kind == KindLabelList
}

// readsLists reports whether the rule's decision can depend on list contents
func (r Rule) readsLists() bool {
	return r.Kind == KindLabelList || r.Kind == KindKnownAbsent
}

func (r Rule) targets() map[string]bool {
	names := r.Keys
	if r.Kind == KindBandwidth && len(names) == 0 {
		names = r.Counters
	}
	set := make(map[string]bool, len(names))
	for _, k := range names {
		set[k] = true
	}
	return set
}

// apply returns the pair with every key the rule accepts removed
func (r Rule) apply(pair domain.DiffPair, ctx Context) (domain.DiffPair, []string) {
	switch r.Kind {
	case KindBandwidth:
		return r.applyBandwidth(pair, ctx)
	case KindLabelList:
		return r.applyLabelList(pair, ctx)
	case KindChangeOrder:
		return r.applyChangeOrder(pair)
	}

	var drop []string
	for _, key := range pair.KeysByLeaf(r.targets()) {
		if r.accepts(key, pair.ObservedOnly[key], pair.DesignedOnly[key], ctx) {
			drop = append(drop, key)
		}
	}
	if len(drop) == 0 {
		return pair, nil
	}
	return pair.Without(drop...), drop
}

// accepts evaluates the per-key predicates
func (r Rule) accepts(key string, observed, designed any, ctx Context) bool {
	switch r.Kind {
	case KindLabel:
		s, ok := observed.(string)
		return ok && ctx.CircuitID != "" && strings.Contains(s, ctx.CircuitID)
	case KindKnownAbsent:
		return domain.IsEmptyValue(observed)
	case KindNumeric:
		o, ok1 := domain.NumericValue(observed)
		d, ok2 := domain.NumericValue(designed)
		return ok1 && ok2 && math.Abs(o-d) <= math.Abs(d)*r.percent()/100
	case KindAtLeast:
		o, ok := domain.NumericValue(observed)
		if !ok || o == 0 {
			return false
		}
		ref, ok := lookup(ctx.Designed, r.Reference)
		if !ok {
			return false
		}
		d, ok := domain.NumericValue(ref)
		return ok && o >= d
	case KindCaseFold:
		o, ok1 := observed.(string)
		d, ok2 := designed.(string)
		return ok1 && ok2 && o != "" && d != "" && strings.ToUpper(o) == d
	case KindIPv6:
		return sameIPv6(observed, designed)
	}
	return false
}

func (r Rule) percent() float64 {
	if r.Percent == 0 {
		return DefaultBandwidthPercent
	}
	return r.Percent
}

// applyBandwidth sums the counters on each full map and drops every bandwidth
// key when |observed - designed| <= ceil(designed * percent / 100)
func (r Rule) applyBandwidth(pair domain.DiffPair, ctx Context) (domain.DiffPair, []string) {
	within := r.expandWithin(ctx)
	designedTotal, found := sumCounters(ctx.Designed, r.Counters, within)
	if !found {
		return pair, nil
	}
	observedTotal, _ := sumCounters(ctx.Observed, r.Counters, within)

	band := math.Ceil(designedTotal * r.percent() / 100)
	if math.Abs(observedTotal-designedTotal) > band {
		return pair, nil
	}
	drop := pair.KeysByLeaf(r.targets())
	if len(drop) == 0 {
		return pair, nil
	}
	return pair.Without(drop...), drop
}

func (r Rule) expandWithin(ctx Context) []string {
	if len(r.Within) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.Within))
	for _, w := range r.Within {
		out = append(out, strings.ReplaceAll(w, HandoffPortPlaceholder, strings.ToUpper(ctx.HandoffPort)))
	}
	return out
}

// applyLabelList prunes list elements containing the circuit ID from both
// sides. The key is dropped once the observed list is empty; a designed list
// that empties on its own is recorded as Absent.
func (r Rule) applyLabelList(pair domain.DiffPair, ctx Context) (domain.DiffPair, []string) {
	if ctx.CircuitID == "" {
		return pair, nil
	}
	out := pair
	var drop []string
	for _, key := range pair.KeysByLeaf(r.targets()) {
		obs, obsIsList := pair.ObservedOnly[key].([]any)
		des, desIsList := pair.DesignedOnly[key].([]any)
		if !obsIsList && !desIsList {
			continue
		}
		var newObs, newDes any = pair.ObservedOnly[key], pair.DesignedOnly[key]
		if obsIsList {
			pruned := pruneContaining(obs, ctx.CircuitID)
			if len(pruned) == 0 {
				drop = append(drop, key)
				continue
			}
			newObs = pruned
		}
		if desIsList {
			pruned := pruneContaining(des, ctx.CircuitID)
			if len(pruned) == 0 {
				newDes = domain.Absent
			} else {
				newDes = pruned
			}
		}
		out = out.WithValues(key, newObs, newDes)
	}
	if len(drop) > 0 {
		out = out.Without(drop...)
	}
	return out, drop
}

// applyChangeOrder keeps only the listed keys that carry a value on both sides
func (r Rule) applyChangeOrder(pair domain.DiffPair) (domain.DiffPair, []string) {
	keep := r.targets()
	var drop []string
	for _, key := range pair.Keys() {
		if keep[domain.Leaf(key)] &&
			!domain.IsEmptyValue(pair.ObservedOnly[key]) &&
			!domain.IsEmptyValue(pair.DesignedOnly[key]) {
			continue
		}
		drop = append(drop, key)
	}
	if len(drop) == 0 {
		return pair, nil
	}
	return pair.Without(drop...), drop
}

func pruneContaining(list []any, circuitID string) []any {
	out := make([]any, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok && strings.Contains(s, circuitID) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// sumCounters adds up every numeric counter leaf, optionally restricted to
// keys below one of the within prefixes. found is false when no counter exists.
func sumCounters(m domain.AttributeMap, counters, within []string) (total float64, found bool) {
	names := make(map[string]bool, len(counters))
	for _, c := range counters {
		names[c] = true
	}
	for _, k := range m.Keys() {
		if !names[domain.Leaf(k)] || !underAny(k, within) {
			continue
		}
		if n, ok := domain.NumericValue(m[k]); ok {
			total += n
			found = true
		}
	}
	return total, found
}

func underAny(key string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if key == p || strings.HasPrefix(key, p+domain.PathSeparator) {
			return true
		}
	}
	return false
}

// lookup resolves a reference as a full path first, then as a leaf name
func lookup(m domain.AttributeMap, ref string) (any, bool) {
	if v, ok := m[ref]; ok {
		return v, true
	}
	_, v, ok := m.FindLeaf(ref)
	return v, ok
}

// sameIPv6 compares "addr/len" values after canonicalising the address
func sameIPv6(observed, designed any) bool {
	o, ok1 := observed.(string)
	d, ok2 := designed.(string)
	if !ok1 || !ok2 {
		return false
	}
	op, err := parseIPv6(o)
	if err != nil {
		return false
	}
	dp, err := parseIPv6(d)
	if err != nil {
		return false
	}
	return op == dp
}

func parseIPv6(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	var p netip.Prefix
	if strings.Contains(s, "/") {
		parsed, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, err
		}
		p = parsed
	} else {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return netip.Prefix{}, err
		}
		p = netip.PrefixFrom(addr, addr.BitLen())
	}
	if !p.Addr().Is6() {
		return netip.Prefix{}, fmt.Errorf("%s is not an IPv6 address", s)
	}
	return p, nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
