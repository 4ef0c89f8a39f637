package remediation

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"circuitsync/internal/domain"
)

const ciscoPolicyLookup = "cm-get-service-policies.json"

// Cisco looks up the service policies on both interfaces, then plans a single
// remediation.json command carrying the old and new policy names
type Cisco struct{}

func (Cisco) Vendor() domain.Vendor { return domain.VendorCisco }

type servicePolicy struct {
	Input  string
	Output string
}

func (c Cisco) Plan(ctx context.Context, req Request, lookup CommandRunner) ([]domain.Command, error) {
	pbit, ok := PriorityBit(req.Circuit.CoS)
	if !ok {
		return nil, fmt.Errorf("%w: unknown class of service %q", ErrNotRemediable, req.Circuit.CoS)
	}
	networkIf := strings.ReplaceAll(req.Device.NetworkPort, "-", "/")
	clientIf := strings.ReplaceAll(req.Device.HandoffPort, "-", "/")

	result, err := lookup.Execute(ctx, req.Device, ciscoPolicyLookup, map[string]any{
		"network_interface_id": networkIf,
		"client_interface_id":  clientIf,
		"vlan":                 req.Circuit.VLAN,
	})
	if err != nil {
		return nil, fmt.Errorf("look up service policies: %w", err)
	}
	instances := result.Get("result")
	clientPolicy := policyFor(instances, clientIf, req.Circuit)
	networkPolicy := policyFor(instances, networkIf, req.Circuit)

	serviceType := string(req.Circuit.ServiceType)
	params := map[string]any{
		"portRole":          req.Device.PortRole,
		"serviceType":       serviceType,
		"pbit":              pbit,
		"cid":               req.Circuit.ID,
		"vlan":              req.Circuit.VLAN,
		"network_interface": networkIf,
		"client_interface":  clientIf,
	}
	if req.Wants(domain.CategoryBandwidth) {
		bw := strings.ToLower(req.Circuit.Bandwidth)
		bps := ""
		if v, ok := req.designedDiff("bandwidth"); ok {
			bps = domain.FormatValue(v)
		}
		params["bandwidth_update"] = "true"
		params["old_client_service_policy_input"] = clientPolicy.Input
		params["old_client_service_policy_output"] = clientPolicy.Output
		params["old_network_service_policy_input"] = networkPolicy.Input
		params["old_network_service_policy_output"] = networkPolicy.Output
		params["bandwidth_bps"] = bps
		params["bandwidth_kbps"] = bandwidthKbps(bw)
		params["bandwidth"] = bw
		params["qos_description"] = fmt.Sprintf("%s:%s:::%s", req.Device.PortRole, serviceType, req.Circuit.VLAN)
		params["new_network_service_policy_input"] = fmt.Sprintf("QCP-%s%s-HFP-IN-SUBMAP", serviceType, bw)
		params["new_client_service_policy_input"] = fmt.Sprintf("QSP-%s%s-CFP-IN-MAP", serviceType, bw)
	}
	if req.Wants(domain.CategoryDescription) {
		params["description_update"] = "true"
		params["port_description"] = ""
		params["client_interface_description"] = ""
		if v, ok := req.designedDiff("portDescription"); ok {
			params["port_description"] = domain.FormatValue(v)
		}
		if v, ok := req.designedDiff("serviceDescription"); ok {
			params["client_interface_description"] = domain.FormatValue(v)
		}
	}
	if networkPolicy.Input != "" || networkPolicy.Output != "" {
		params["is_network_interface_policed"] = "True"
	}
	return []domain.Command{{Name: "remediation.json", Parameters: params}}, nil
}

// policyFor finds the service instance for this circuit on an interface
func policyFor(instances gjson.Result, iface string, circuit domain.Circuit) servicePolicy {
	var policy servicePolicy
	instances.ForEach(func(_, inst gjson.Result) bool {
		if inst.Get("interface").String() == iface &&
			inst.Get("instance_id").String() == circuit.VLAN &&
			inst.Get("instance_tag").String() == circuit.ID {
			policy.Input = inst.Get("service_policy_input").String()
			policy.Output = inst.Get("service_policy_output").String()
			return false
		}
		return true
	})
	return policy
}
