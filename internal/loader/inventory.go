package loader

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"circuitsync/internal/domain"
)

// InventoryYAML represents the circuit inventory file
type InventoryYAML struct {
	Version  string                  `yaml:"version"`
	Circuits map[string]*CircuitYAML `yaml:"circuits"`
}

// CircuitYAML represents one circuit
type CircuitYAML struct {
	ServiceType        string       `yaml:"service_type"`
	OrderType          string       `yaml:"order_type,omitempty"`
	VLAN               string       `yaml:"vlan,omitempty"`
	Bandwidth          string       `yaml:"bandwidth,omitempty"`
	CoS                string       `yaml:"cos,omitempty"`
	ServiceDescription string       `yaml:"service_description,omitempty"`
	VRFID              string       `yaml:"vrf_id,omitempty"`
	Devices            []DeviceYAML `yaml:"devices"`
}

// DeviceYAML represents a circuit endpoint
type DeviceYAML struct {
	TID                    string `yaml:"tid"`
	Vendor                 string `yaml:"vendor"`
	Model                  string `yaml:"model,omitempty"`
	Role                   string `yaml:"role,omitempty"`
	ManagementIP           string `yaml:"management_ip,omitempty"`
	FQDN                   string `yaml:"fqdn,omitempty"`
	Location               string `yaml:"location,omitempty"`
	HandoffPort            string `yaml:"handoff_port,omitempty"`
	HandoffPortDescription string `yaml:"handoff_port_description,omitempty"`
	NetworkPort            string `yaml:"network_port,omitempty"`
	PortRole               string `yaml:"port_role,omitempty"`
}

// Inventory is the set of circuits a deployment reconciles
type Inventory struct {
	circuits map[string]domain.Circuit
}

// NewInventory indexes circuits by ID
func NewInventory(circuits ...domain.Circuit) *Inventory {
	inv := &Inventory{circuits: make(map[string]domain.Circuit, len(circuits))}
	for _, c := range circuits {
		inv.circuits[c.ID] = c
	}
	return inv
}

// Circuit returns a circuit by ID
func (inv *Inventory) Circuit(id string) (domain.Circuit, bool) {
	c, ok := inv.circuits[id]
	return c, ok
}

// Circuits returns every circuit sorted by ID
func (inv *Inventory) Circuits() []domain.Circuit {
	out := make([]domain.Circuit, 0, len(inv.circuits))
	for _, c := range inv.circuits {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindDevice returns the first circuit and endpoint for a TID, matched case-insensitively
func (inv *Inventory) FindDevice(tid string) (domain.Circuit, domain.Device, bool) {
	for _, c := range inv.Circuits() {
		for _, d := range c.Devices {
			if strings.EqualFold(d.TID, tid) {
				return c, d, true
			}
		}
	}
	return domain.Circuit{}, domain.Device{}, false
}

// LoadInventory loads circuits from a YAML file
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return ParseInventory(data)
}

// ParseInventory parses circuits from YAML bytes
func ParseInventory(data []byte) (*Inventory, error) {
	var y InventoryYAML
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return convertInventory(&y)
}

func convertInventory(y *InventoryYAML) (*Inventory, error) {
	var circuits []domain.Circuit
	for id, c := range y.Circuits {
		if c == nil {
			return nil, fmt.Errorf("circuit %s: empty entry", id)
		}
		if c.ServiceType == "" {
			return nil, fmt.Errorf("circuit %s: service_type is required", id)
		}
		circuit := domain.Circuit{
			ID:                 id,
			ServiceType:        domain.ParseServiceType(c.ServiceType),
			OrderType:          domain.OrderNew,
			VLAN:               c.VLAN,
			Bandwidth:          c.Bandwidth,
			CoS:                strings.ToUpper(c.CoS),
			ServiceDescription: c.ServiceDescription,
			VRFID:              c.VRFID,
		}
		if c.OrderType != "" {
			circuit.OrderType = domain.OrderType(strings.ToUpper(c.OrderType))
		}

		seen := map[string]bool{}
		for i, d := range c.Devices {
			if d.TID == "" || d.Vendor == "" {
				return nil, fmt.Errorf("circuit %s device %d: tid and vendor are required", id, i)
			}
			key := strings.ToUpper(d.TID)
			if seen[key] {
				return nil, fmt.Errorf("circuit %s: device %s listed twice", id, d.TID)
			}
			seen[key] = true

			circuit.Devices = append(circuit.Devices, domain.Device{
				TID:                    d.TID,
				Vendor:                 domain.ParseVendor(d.Vendor),
				Model:                  d.Model,
				Role:                   domain.Role(strings.ToUpper(d.Role)),
				ManagementIP:           d.ManagementIP,
				FQDN:                   d.FQDN,
				Location:               d.Location,
				HandoffPort:            d.HandoffPort,
				HandoffPortDescription: d.HandoffPortDescription,
				NetworkPort:            d.NetworkPort,
				PortRole:               d.PortRole,
			})
		}
		circuits = append(circuits, circuit)
	}

	return NewInventory(circuits...), nil
}
