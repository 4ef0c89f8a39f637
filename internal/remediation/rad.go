package remediation

import (
	"context"
	"fmt"
	"strings"

	"circuitsync/internal/domain"
)

const radNativeNamePath = "FRE.service_name_IN"

// RAD plans a single remediation.json command. Bandwidth and priority bit
// changes are keyed on the service's native name, so they are only planned
// when the device reports one.
type RAD struct{}

func (RAD) Vendor() domain.Vendor { return domain.VendorRAD }

func (RAD) Plan(_ context.Context, req Request, _ CommandRunner) ([]domain.Command, error) {
	params := map[string]any{}
	nativeName := stringAt(req.Observed, radNativeNamePath)

	if req.Wants(domain.CategoryDescription) {
		params["description_update"] = "true"
		params["desc"] = req.Device.HandoffPortDescription
		params["port"] = strings.ToLower(strings.ReplaceAll(req.Device.HandoffPort, "-", " "))
	}
	if req.Wants(domain.CategoryBandwidth) && nativeName != "" {
		if bw, ok := req.designedDiff("policer_name"); ok {
			params["bandwidth_update"] = "true"
			params["bw"] = domain.FormatValue(bw)
			params["native_name"] = nativeName
			params["cid"] = req.Circuit.ID
		}
	}
	if req.Wants(domain.CategoryPriorityBit) && nativeName != "" {
		if _, vlanDiffers := req.designedDiff("vlan"); !vlanDiffers {
			params["pbit_update"] = "true"
			params["native_name"] = nativeName
			params["vlan"] = req.Circuit.VLAN
			if pbit, ok := req.designedDiff("egressCosPbit"); ok {
				params["pbit"] = domain.FormatValue(pbit)
			}
		}
	}

	if len(params) == 0 {
		return nil, fmt.Errorf("%w: no native service name on %s", ErrNotRemediable, req.Device.Ref())
	}
	return []domain.Command{{Name: "remediation.json", Parameters: params}}, nil
}
