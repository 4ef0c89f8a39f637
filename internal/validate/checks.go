// Package validate runs the checks made on a normalized device state before
// remediation: problems the diff cannot express on its own, and scopes where
// a pass must only report.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"circuitsync/internal/domain"
)

// ErrUnknownCheckKind is returned when a table names a kind no check implements
var ErrUnknownCheckKind = errors.New("unknown validation check kind")

// Kind selects what a check looks at
type Kind string

const (
	// KindReportOnly forbids remediation for the scope
	KindReportOnly Kind = "report_only"
	// KindAdminSpeed reports a port admin speed below the circuit bandwidth
	KindAdminSpeed Kind = "admin_speed"
	// KindARPPresent skips remediation when the section holds no ARP entry
	KindARPPresent Kind = "arp_present"
	// KindFlowCircuitName requires a flow whose name carries the circuit ID
	KindFlowCircuitName Kind = "flow_circuit_name"
	// KindErrorPassthrough copies a device-reported error into the diff
	KindErrorPassthrough Kind = "error_passthrough"
)

// Keys added to the reported diff
const (
	AdminSpeedKey      = "adminSpeed"
	ARPKey             = "voice_ip_in_arp_table"
	FlowConfigErrorKey = "Flow Config Error"
	ConfigErrorKey     = "Config Error"
)

// Check is one named, scoped validation
type Check struct {
	Name string `yaml:"name" json:"name"`
	Kind Kind   `yaml:"kind" json:"kind"`
	// Section is the top-level section the check reads
	Section string `yaml:"section,omitempty" json:"section,omitempty"`
	// Key is the leaf (or, for error_passthrough, the section) the check reads
	Key    string        `yaml:"key,omitempty" json:"key,omitempty"`
	Roles  []domain.Role `yaml:"roles,omitempty" json:"roles,omitempty"`
	Models []string      `yaml:"models,omitempty" json:"models,omitempty"`
}

// Validate checks the entry can be evaluated
func (c Check) Validate() error {
	switch c.Kind {
	case KindReportOnly:
	case KindARPPresent:
		if c.Section == "" {
			return fmt.Errorf("check %q: %s check needs a section", c.Name, c.Kind)
		}
	case KindAdminSpeed, KindFlowCircuitName:
		if c.Section == "" || c.Key == "" {
			return fmt.Errorf("check %q: %s check needs a section and a key", c.Name, c.Kind)
		}
	case KindErrorPassthrough:
		if c.Key == "" {
			return fmt.Errorf("check %q: %s check needs a key", c.Name, c.Kind)
		}
	default:
		return fmt.Errorf("check %q: %w: %q", c.Name, ErrUnknownCheckKind, c.Kind)
	}
	return nil
}

// appliesTo reports whether the check covers the device
func (c Check) appliesTo(d domain.Device) bool {
	if len(c.Models) > 0 && !containsFold(c.Models, d.Model) {
		return false
	}
	if len(c.Roles) == 0 {
		return true
	}
	for _, r := range c.Roles {
		if strings.EqualFold(string(r), string(d.Role)) {
			return true
		}
	}
	return false
}

// run evaluates the check and records what it found
func (c Check) run(ctx Context, f *Findings) {
	switch c.Kind {
	case KindReportOnly:
		f.skip(fmt.Sprintf("%s circuits are report only", ctx.Circuit.ServiceType))
	case KindAdminSpeed:
		c.runAdminSpeed(ctx, f)
	case KindARPPresent:
		c.runARPPresent(ctx, f)
	case KindFlowCircuitName:
		c.runFlowCircuitName(ctx, f)
	case KindErrorPassthrough:
		for _, k := range ctx.Observed.Keys() {
			if k == c.Key || strings.HasPrefix(k, c.Key+domain.PathSeparator) {
				f.Entries[k] = ctx.Observed[k]
			}
		}
	}
}

func (c Check) runAdminSpeed(ctx Context, f *Findings) {
	_, raw, ok := findIn(ctx.Observed, c.Section, c.Key)
	if !ok {
		return
	}
	speed, ok := domain.NumericValue(raw)
	if !ok {
		return
	}
	bandwidth, ok := BandwidthKbps(ctx.Circuit.Bandwidth)
	if !ok {
		return
	}
	if int64(speed) < bandwidth {
		f.Entries[AdminSpeedKey] = fmt.Sprintf(
			"Incorrect Data - Unsupported AdminSpeed for Bandwidth: admin speed: %d bandwidth: %d",
			int64(speed), bandwidth)
	}
}

func (c Check) runARPPresent(ctx Context, f *Findings) {
	v, ok := ctx.Observed[c.Section]
	if !ok || !domain.IsEmptyValue(v) {
		return
	}
	f.Entries[ARPKey] = false
	f.skip("voice IP is not in the ARP table")
}

func (c Check) runFlowCircuitName(ctx Context, f *Findings) {
	_, raw, ok := findIn(ctx.Observed, c.Section, c.Key)
	name, _ := raw.(string)
	if !ok || domain.IsEmptyValue(raw) || name == "" {
		f.Entries[ConfigErrorKey] = "Device is missing mp_flow"
		f.skip("device is missing mp_flow")
		return
	}
	if !strings.Contains(name, ctx.Circuit.ID) {
		f.Entries[FlowConfigErrorKey] = "mp_flow is not configured for this circuit"
		f.skip("mp_flow is not configured for this circuit")
	}
}

// findIn returns the first attribute under section whose leaf is name
func findIn(m domain.AttributeMap, section, name string) (string, any, bool) {
	prefix := section + domain.PathSeparator
	for _, k := range m.Keys() {
		if strings.HasPrefix(k, prefix) && domain.Leaf(k) == name {
			return k, m[k], true
		}
	}
	return "", nil, false
}

var digits = regexp.MustCompile(`\d+`)

// BandwidthKbps converts a circuit bandwidth such as "100M" or "1G" to kbps.
// A bare number is taken as kbps.
func BandwidthKbps(bw string) (int64, bool) {
	match := digits.FindString(bw)
	if match == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(match, 10, 64)
	if err != nil {
		return 0, false
	}
	lower := strings.ToLower(bw)
	switch {
	case strings.Contains(lower, "g"):
		n *= 1000000
	case strings.Contains(lower, "m"):
		n *= 1000
	}
	return n, true
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
