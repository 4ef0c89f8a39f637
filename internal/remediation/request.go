package remediation

import (
	"strconv"
	"strings"

	"circuitsync/internal/domain"
)

// Request is everything a planner may draw parameters from
type Request struct {
	Circuit    domain.Circuit
	Device     domain.Device
	Categories domain.CategorySet
	Designed   domain.AttributeMap
	Observed   domain.AttributeMap
	Diff       domain.DiffPair
}

// Wants reports whether the category was requested
func (r Request) Wants(c domain.Category) bool {
	return r.Categories.Has(c)
}

// designedDiff returns the designed side of the first diff key with the given leaf
func (r Request) designedDiff(leaf string) (any, bool) {
	_, v, ok := r.Diff.DesignedOnly.FindLeaf(leaf)
	if !ok || domain.IsAbsent(v) {
		return nil, false
	}
	return v, true
}

// observedDiff returns the observed side of the first diff key with the given leaf
func (r Request) observedDiff(leaf string) (any, bool) {
	_, v, ok := r.Diff.ObservedOnly.FindLeaf(leaf)
	if !ok || domain.IsAbsent(v) {
		return nil, false
	}
	return v, true
}

// PriorityBits maps a class of service onto its 802.1p priority bit
var PriorityBits = map[string]int{
	"GOLD":   5,
	"SILVER": 3,
	"BRONZE": 1,
}

// PriorityBit resolves a class of service name
func PriorityBit(cos string) (int, bool) {
	p, ok := PriorityBits[strings.ToUpper(strings.TrimSpace(cos))]
	return p, ok
}

// stringAt returns the value at path formatted as a string, or "" when absent
func stringAt(m domain.AttributeMap, path string) string {
	v, ok := m[path]
	if !ok || domain.IsAbsent(v) {
		return ""
	}
	return domain.FormatValue(v)
}

// valueAt returns the value at path, or def when absent
func valueAt(m domain.AttributeMap, path string, def any) any {
	v, ok := m[path]
	if !ok || domain.IsAbsent(v) || domain.IsConfigAbsent(v) {
		return def
	}
	return v
}

// firstElement returns the first element of a list value, or the value itself
func firstElement(v any) string {
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return ""
		}
		return domain.FormatValue(list[0])
	}
	return domain.FormatValue(v)
}

// bandwidthKbps converts "100m" or "1g" notation to kilobits per second
func bandwidthKbps(bw string) string {
	bw = strings.ToLower(strings.TrimSpace(bw))
	if len(bw) < 2 {
		return ""
	}
	n := bw[:len(bw)-1]
	if _, err := strconv.Atoi(n); err != nil {
		return ""
	}
	switch bw[len(bw)-1] {
	case 'g':
		return n + "000000"
	case 'm':
		return n + "000"
	}
	return ""
}

// lastDashField returns the text after the last "-"
func lastDashField(s string) string {
	if i := strings.LastIndex(s, "-"); i >= 0 {
		return s[i+1:]
	}
	return s
}
