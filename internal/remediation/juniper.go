package remediation

import (
	"context"
	"fmt"
	"strings"

	"circuitsync/internal/domain"
)

const (
	juniperRoutingInstancePath = "FRE.ROUTING INSTANCE.properties.name"
	juniperVLANNamePath        = "FRE.vlan_name"
	juniperDesignSection       = "FRE"
	juniperLogicalTPELookup    = "get-logical-tpe.json"
)

// Juniper issues one command per change and commits only with the last one,
// so a partially applied plan is never committed
type Juniper struct{}

func (Juniper) Vendor() domain.Vendor { return domain.VendorJuniper }

func (j Juniper) Plan(ctx context.Context, req Request, lookup CommandRunner) ([]domain.Command, error) {
	var commands []domain.Command
	if req.Wants(domain.CategoryDescription) {
		commands = append(commands, j.descriptionCommands(req)...)
	}
	if req.Wants(domain.CategoryBandwidth) {
		cmd, err := j.bandwidthCommand(ctx, req, lookup)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}
	if len(commands) == 0 {
		return nil, fmt.Errorf("%w: no juniper command for %s", ErrNotRemediable, req.Categories)
	}
	for i := range commands {
		commands[i].Parameters["commit"] = i == len(commands)-1
	}
	return commands, nil
}

func (Juniper) descriptionCommands(req Request) []domain.Command {
	iface := strings.ToLower(req.Device.HandoffPort)
	commands := []domain.Command{{
		Name: "set-physical-interface-params.json",
		Parameters: map[string]any{
			"interface":   iface,
			"param":       "description",
			"description": req.Device.HandoffPortDescription,
		},
	}}

	if req.Device.Role != domain.RolePE {
		return append(commands, domain.Command{
			Name: "update-logical-tpe-vlans-description.json",
			Parameters: map[string]any{
				"vlan_name":   stringAt(req.Observed, juniperVLANNamePath),
				"description": req.Circuit.ServiceDescription,
			},
		})
	}

	commands = append(commands, domain.Command{
		Name: "update-logical-tpe.json",
		Parameters: map[string]any{
			"interface":   iface,
			"unit":        req.Circuit.VLAN,
			"description": req.Circuit.ServiceDescription,
		},
	})
	if req.Circuit.ServiceType == domain.ServiceELAN {
		commands = append(commands, domain.Command{
			Name: "update-routing-instance-direct.json",
			Parameters: map[string]any{
				"name":        stringAt(req.Observed, juniperRoutingInstancePath),
				"description": fmt.Sprintf("VC%s:TRANS:ELAN::", req.Circuit.VRFID),
			},
		})
	}
	return commands
}

func (Juniper) bandwidthCommand(ctx context.Context, req Request, lookup CommandRunner) (domain.Command, error) {
	iface := strings.ToLower(req.Device.HandoffPort)
	existing, err := lookup.Execute(ctx, req.Device, juniperLogicalTPELookup, map[string]any{
		"interface": iface,
		"unit":      req.Circuit.VLAN,
	})
	if err != nil {
		return domain.Command{}, fmt.Errorf("look up logical interface: %w", err)
	}

	bw := designedBandwidth(req.Designed)
	if bw == "" {
		return domain.Command{}, fmt.Errorf("%w: no designed bandwidth", ErrNotRemediable)
	}
	params := map[string]any{
		"interface":      iface,
		"unit":           req.Circuit.VLAN,
		"bandwidth":      bandwidthKbps(bw),
		"output_policer": bw,
		"service_type":   string(req.Circuit.ServiceType),
	}
	if existing.Get("result.input_policer").Exists() {
		params["input_policer"] = bw
	}
	return domain.Command{Name: "update-logical-tpe.json", Parameters: params}, nil
}

// designedBandwidth returns the first designed FRE attribute whose name mentions bandwidth
func designedBandwidth(designed domain.AttributeMap) string {
	prefix := juniperDesignSection + domain.PathSeparator
	for _, k := range designed.Keys() {
		if strings.HasPrefix(k, prefix) && strings.Contains(domain.Leaf(k), "bandwidth") {
			if s := stringAt(designed, k); s != "" {
				return s
			}
		}
	}
	return ""
}
