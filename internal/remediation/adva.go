package remediation

import (
	"context"
	"fmt"
	"strings"

	"circuitsync/internal/domain"
)

// Attribute paths the ADVA planners read
const (
	advaFlowIDPath          = "FRE.properties.data.id"
	advaFlowAttributes      = "FRE.properties.included.%s.attributes.additionalAttributes.%s"
	advaClientFlowpointPath = "Client TPE.properties.data.id"
	advaNetFlowpointPath    = "Network TPE.properties.data.id"
	advaPolicerProfile      = "Client TPE.properties.data.attributes.additionalAttributes.policerProfile.%s"
)

// elephantFlowCIR is the committed rate from which an ADVA PRO flow is an elephant flow
const elephantFlowCIR = 2000000000

// ADVA plans a single remediation.json command covering every category.
// PRO family models use their model-specific command file instead.
type ADVA struct{}

func (ADVA) Vendor() domain.Vendor { return domain.VendorADVA }

func (a ADVA) Plan(_ context.Context, req Request, _ CommandRunner) ([]domain.Command, error) {
	if req.Device.IsAdvaPro() {
		return a.planPro(req)
	}

	flowID := stringAt(req.Observed, advaFlowIDPath)
	if flowID == "" {
		return nil, fmt.Errorf("%w: no flow id on %s", ErrNotRemediable, req.Device.Ref())
	}
	port := strings.ToUpper(req.Device.HandoffPort)
	params := map[string]any{
		"port":    strings.ToLower(req.Device.HandoffPort),
		"flow_id": flowID,
	}
	if req.Wants(domain.CategoryDescription) {
		params["description_update"] = "true"
		params["alias"] = req.Device.HandoffPortDescription
		params["circuit-name"] = req.Circuit.ID
	}
	if req.Wants(domain.CategoryBandwidth) {
		params["bandwidth_update"] = "true"
		for param, leaf := range map[string]string{
			"cir": "epAccessA2NFlowCir",
			"cbs": "epAccessA2NFlowCbs",
			"eir": "epAccessA2NFlowEir",
			"ebs": "epAccessA2NFlowEbs",
		} {
			params[param] = valueAt(req.Designed, fmt.Sprintf(advaFlowAttributes, port, leaf), nil)
		}
	}
	if req.Wants(domain.CategoryPriorityBit) {
		if ctag, ok := advaMatchingCTag(req); ok {
			params["pbit_update"] = "true"
			params["ctag"] = ctag
		}
	}
	return []domain.Command{{Name: "remediation.json", Parameters: params}}, nil
}

// advaMatchingCTag returns the designed C-tag when both sides share the VLAN;
// the priority bit is never rewritten across a VLAN mismatch
func advaMatchingCTag(req Request) (string, bool) {
	designed, ok := req.designedDiff("epAccessFlowCVlanTag")
	if !ok {
		return "", false
	}
	observed, ok := req.observedDiff("epAccessFlowCVlanTag")
	if !ok {
		return "", false
	}
	d, o := firstElement(designed), firstElement(observed)
	if strings.Split(d, "-")[0] != strings.Split(o, "-")[0] {
		return "", false
	}
	return d, true
}

func (ADVA) planPro(req Request) ([]domain.Command, error) {
	client := stringAt(req.Observed, advaClientFlowpointPath)
	network := stringAt(req.Observed, advaNetFlowpointPath)
	if client == "" || network == "" {
		return nil, fmt.Errorf("%w: no flowpoint ids on %s", ErrNotRemediable, req.Device.Ref())
	}
	params := map[string]any{
		"flowpoint_id_client":  lastDashField(client),
		"flowpoint_id_network": lastDashField(network),
		"client_port":          lastDashField(strings.ToLower(req.Device.HandoffPort)),
	}
	if req.Wants(domain.CategoryDescription) {
		params["description_update"] = "true"
		params["client_desc"] = req.Device.HandoffPortDescription
	}
	if req.Wants(domain.CategoryBandwidth) {
		cir := valueAt(req.Designed, fmt.Sprintf(advaPolicerProfile, "cir"), 0.0)
		params["bandwidth_update"] = "true"
		params["cir"] = cir
		params["eir"] = valueAt(req.Designed, fmt.Sprintf(advaPolicerProfile, "eir"), 0.0)
		params["cbs"] = valueAt(req.Designed, fmt.Sprintf(advaPolicerProfile, "cbs"), "512")
		params["ebs"] = valueAt(req.Designed, fmt.Sprintf(advaPolicerProfile, "ebs"), "512")
		params["is_elephant_flow"] = "false"
		if n, ok := domain.NumericValue(cir); ok && n >= elephantFlowCIR {
			params["is_elephant_flow"] = "true"
		}
	}
	if req.Wants(domain.CategoryPriorityBit) {
		if _, vlanDiffers := req.designedDiff("vlanId"); !vlanDiffers {
			if pbit, ok := req.designedDiff("c_tag_pbit"); ok {
				params["pbit_update"] = "true"
				params["ctag"] = req.Circuit.VLAN + "-" + domain.FormatValue(pbit)
			}
		}
	}
	return []domain.Command{{Name: advaProCommandFile(req.Device.Model), Parameters: params}}, nil
}

// advaProCommandFile names the model-specific command file; the 116PROH and
// 118PRO share the 116pro files
func advaProCommandFile(model string) string {
	dir := strings.ToLower(model)
	switch {
	case strings.Contains(model, "116PROH"), strings.Contains(model, "118PRO"):
		dir = "116pro"
	case len(dir) > 6:
		dir = dir[len(dir)-6:]
	}
	return "ge/" + dir + "/remediation.json"
}
