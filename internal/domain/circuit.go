package domain

import (
	"fmt"
	"strings"
)

// Vendor identifies a device vendor family
type Vendor string

const (
	VendorADVA    Vendor = "ADVA"
	VendorRAD     Vendor = "RAD"
	VendorCisco   Vendor = "CISCO"
	VendorJuniper Vendor = "JUNIPER"
	VendorNokia   Vendor = "NOKIA"
)

// ParseVendor normalises a vendor name from inventory data
func ParseVendor(s string) Vendor {
	return Vendor(strings.ToUpper(strings.TrimSpace(s)))
}

// ServiceType identifies the product a circuit delivers
type ServiceType string

const (
	ServiceFIA   ServiceType = "FIA"
	ServiceVoice ServiceType = "VOICE"
	ServiceELine ServiceType = "ELINE"
	ServiceELAN  ServiceType = "ELAN"
	ServiceNNI   ServiceType = "NNI"
	ServiceCTBH  ServiceType = "CTBH 4G"
)

// ParseServiceType normalises a service type name from inventory data
func ParseServiceType(s string) ServiceType {
	return ServiceType(strings.ToUpper(strings.TrimSpace(s)))
}

// Role is the topology role of a device on a circuit (PE, CPE, MTU, AGG)
type Role string

const (
	RolePE  Role = "PE"
	RoleCPE Role = "CPE"
	RoleMTU Role = "MTU"
	RoleAGG Role = "AGG"
)

// OrderType distinguishes new installs from change orders
type OrderType string

const (
	OrderNew    OrderType = "NEW"
	OrderChange OrderType = "CHANGE"
)

// Wildcard matches any service type or vendor in a Scope
const Wildcard = "*"

// Scope keys every vendor-specific lookup table
type Scope struct {
	ServiceType ServiceType `json:"service_type" yaml:"service_type"`
	Vendor      Vendor      `json:"vendor" yaml:"vendor"`
}

// String implements fmt.Stringer
func (s Scope) String() string {
	return fmt.Sprintf("%s/%s", s.ServiceType, s.Vendor)
}

// Fallbacks returns the scopes to try for a lookup, most specific first
func (s Scope) Fallbacks() []Scope {
	return []Scope{
		s,
		{ServiceType: s.ServiceType, Vendor: Wildcard},
		{ServiceType: Wildcard, Vendor: s.Vendor},
		{ServiceType: Wildcard, Vendor: Wildcard},
	}
}

// Device is a circuit endpoint the reconciler targets
type Device struct {
	TID                    string `json:"tid" yaml:"tid"`
	Vendor                 Vendor `json:"vendor" yaml:"vendor"`
	Model                  string `json:"model,omitempty" yaml:"model,omitempty"`
	Role                   Role   `json:"role,omitempty" yaml:"role,omitempty"`
	ManagementIP           string `json:"management_ip,omitempty" yaml:"management_ip,omitempty"`
	FQDN                   string `json:"fqdn,omitempty" yaml:"fqdn,omitempty"`
	Location               string `json:"location,omitempty" yaml:"location,omitempty"`
	HandoffPort            string `json:"handoff_port,omitempty" yaml:"handoff_port,omitempty"`
	HandoffPortDescription string `json:"handoff_port_description,omitempty" yaml:"handoff_port_description,omitempty"`
	NetworkPort            string `json:"network_port,omitempty" yaml:"network_port,omitempty"`
	PortRole               string `json:"port_role,omitempty" yaml:"port_role,omitempty"`
}

// Ref returns the identifier results are stored under: the upper-cased TID,
// suffixed with the location when one is known.
func (d Device) Ref() string {
	ref := strings.ToUpper(d.TID)
	if d.Location != "" {
		ref += "_" + d.Location
	}
	return ref
}

// Address returns the management address, preferring the IP over the FQDN
func (d Device) Address() string {
	if d.ManagementIP != "" {
		return d.ManagementIP
	}
	return d.FQDN
}

// AdvaProModels are the ADVA models that carry queue and policer profiles on
// separate client and network TPEs
var AdvaProModels = []string{
	"FSP 150-XG116PRO",
	"FSP 150-XG116PROH",
	"FSP 150-XG118PRO",
	"FSP 150-XG120PRO",
}

// IsAdvaPro reports whether the device is an ADVA PRO family model
func (d Device) IsAdvaPro() bool {
	if d.Vendor != VendorADVA {
		return false
	}
	for _, m := range AdvaProModels {
		if strings.EqualFold(m, d.Model) {
			return true
		}
	}
	return false
}

// Circuit is the service a set of devices is reconciled for
type Circuit struct {
	ID                 string      `json:"id" yaml:"id"`
	ServiceType        ServiceType `json:"service_type" yaml:"service_type"`
	OrderType          OrderType   `json:"order_type,omitempty" yaml:"order_type,omitempty"`
	VLAN               string      `json:"vlan,omitempty" yaml:"vlan,omitempty"`
	Bandwidth          string      `json:"bandwidth,omitempty" yaml:"bandwidth,omitempty"`
	CoS                string      `json:"cos,omitempty" yaml:"cos,omitempty"`
	ServiceDescription string      `json:"service_description,omitempty" yaml:"service_description,omitempty"`
	VRFID              string      `json:"vrf_id,omitempty" yaml:"vrf_id,omitempty"`
	Devices            []Device    `json:"devices,omitempty" yaml:"devices,omitempty"`
}

// ScopeFor returns the lookup scope for a device on this circuit
func (c Circuit) ScopeFor(d Device) Scope {
	return Scope{ServiceType: c.ServiceType, Vendor: d.Vendor}
}

// IsChangeOrder reports whether the circuit is being reconciled for a change order
func (c Circuit) IsChangeOrder() bool {
	return c.OrderType == OrderChange
}
