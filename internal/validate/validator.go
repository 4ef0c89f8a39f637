package validate

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"circuitsync/internal/domain"
	"circuitsync/internal/logging"
)

// Context is what a check sees of a pass
type Context struct {
	Circuit  domain.Circuit
	Device   domain.Device
	Observed domain.AttributeMap
}

// Findings collects the outcome of the checks for one device state
type Findings struct {
	// Entries are added to the reported diff on the observed side
	Entries domain.AttributeMap
	// SkipRemediation forbids the executor for this pass
	SkipRemediation bool
	Reasons         []string
}

func (f *Findings) skip(reason string) {
	f.SkipRemediation = true
	f.Reasons = append(f.Reasons, reason)
}

// Keys returns the diff keys the findings contribute, sorted
func (f Findings) Keys() []string {
	return f.Entries.Keys()
}

// Apply returns a copy of pair carrying the findings. The designed side of an
// added entry is Absent.
func (f Findings) Apply(pair domain.DiffPair) domain.DiffPair {
	out := pair.Clone()
	for k, v := range f.Entries {
		out.ObservedOnly[k] = v
		out.DesignedOnly[k] = domain.Absent
	}
	return out
}

// Table holds the ordered checks per scope. It is immutable once built.
type Table struct {
	checks map[domain.Scope][]Check
}

// NewTable validates the checks and builds a table
func NewTable(checks map[domain.Scope][]Check) (*Table, error) {
	t := &Table{checks: make(map[domain.Scope][]Check, len(checks))}
	for scope, list := range checks {
		for _, c := range list {
			if err := c.Validate(); err != nil {
				return nil, fmt.Errorf("scope %s: %w", scope, err)
			}
		}
		copied := make([]Check, len(list))
		copy(copied, list)
		t.checks[scope] = copied
	}
	return t, nil
}

// Checks returns the checks of the most specific scope that has any
func (t *Table) Checks(scope domain.Scope) []Check {
	if t == nil {
		return nil
	}
	for _, s := range scope.Fallbacks() {
		if list, ok := t.checks[s]; ok {
			return list
		}
	}
	return nil
}

// Scopes returns the scopes with checks, sorted
func (t *Table) Scopes() []domain.Scope {
	if t == nil {
		return nil
	}
	out := make([]domain.Scope, 0, len(t.checks))
	for s := range t.checks {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// DefaultChecks returns the built-in checks keyed by scope
func DefaultChecks() map[domain.Scope][]Check {
	passthrough := Check{Name: "fre-error", Kind: KindErrorPassthrough, Key: "FRE_ERROR"}
	adminSpeed := Check{Name: "rad-admin-speed", Kind: KindAdminSpeed, Section: "FRE", Key: "admin_speed"}

	base := map[domain.ServiceType][]Check{
		domain.ServiceFIA:   {passthrough},
		domain.ServiceELine: {passthrough},
		domain.ServiceCTBH:  {passthrough},
		domain.ServiceVoice: {
			{Name: "voice-pe-arp", Kind: KindARPPresent, Section: "ARP", Roles: []domain.Role{domain.RolePE}},
			passthrough,
		},
		domain.ServiceELAN: {
			{Name: "fre-error-cpe", Kind: KindErrorPassthrough, Key: "FRE_ERROR", Roles: []domain.Role{domain.RoleCPE}},
		},
		domain.ServiceNNI: {{Name: "nni-report-only", Kind: KindReportOnly}},
	}

	checks := map[domain.Scope][]Check{}
	for st, list := range base {
		checks[domain.Scope{ServiceType: st, Vendor: domain.Wildcard}] = list
		checks[domain.Scope{ServiceType: st, Vendor: domain.VendorRAD}] = append(append([]Check{}, list...), adminSpeed)
	}
	checks[domain.Scope{ServiceType: domain.ServiceELAN, Vendor: domain.VendorADVA}] = append(
		append([]Check{}, base[domain.ServiceELAN]...),
		Check{
			Name:    "adva-pro-mp-flow",
			Kind:    KindFlowCircuitName,
			Section: "FRE",
			Key:     "circuitName",
			Models:  domain.AdvaProModels,
		},
	)
	return checks
}

// DefaultTable builds the built-in table
func DefaultTable() (*Table, error) {
	return NewTable(DefaultChecks())
}

// Validator runs a table against device states. Safe for concurrent use.
type Validator struct {
	table *Table
	log   *logrus.Entry
}

// New creates a validator over the table
func New(table *Table) *Validator {
	return &Validator{table: table, log: logging.For("validate")}
}

// Run evaluates the scope's checks against the observed state
func (v *Validator) Run(ctx Context) Findings {
	f := Findings{Entries: domain.AttributeMap{}}
	if v == nil {
		return f
	}
	scope := ctx.Circuit.ScopeFor(ctx.Device)
	for _, c := range v.table.Checks(scope) {
		if !c.appliesTo(ctx.Device) {
			continue
		}
		c.run(ctx, &f)
	}
	if len(f.Entries) > 0 || f.SkipRemediation {
		v.log.WithFields(logrus.Fields{
			"circuit": ctx.Circuit.ID,
			"device":  ctx.Device.Ref(),
			"scope":   scope.String(),
			"entries": f.Keys(),
			"reasons": f.Reasons,
		}).Debug("validation findings")
	}
	return f
}
