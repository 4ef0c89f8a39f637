package tolerance

import "circuitsync/internal/domain"

// ChangeOrderKeys lists the bandwidth keys kept during a change order, per vendor
var ChangeOrderKeys = map[domain.Vendor][]string{
	domain.VendorNokia:   {"cir"},
	domain.VendorRAD:     {"policer_name", "admin_speed"},
	domain.VendorADVA:    {"epAccessA2NFlowCir", "epAccessA2NFlowEir", "eir", "cir"},
	domain.VendorJuniper: {"bandwidth_description", "bwProfileFlowParameters", "in_bwProfileFlowParameters", "bandwidth"},
	domain.VendorCisco:   {"bandwidth"},
}

func changeOrder(vendor domain.Vendor) Rule {
	return Rule{Name: "change-order-bandwidth-only", Kind: KindChangeOrder, Keys: ChangeOrderKeys[vendor]}
}

func radNativeNames() Rule {
	return Rule{Name: "rad-native-names", Kind: KindCaseFold, Keys: []string{"service_name_IN", "service_name_OUT"}}
}

func advaRules() []Rule {
	return []Rule{
		{Name: "adva-service-name-list", Kind: KindLabelList, Keys: []string{"serviceName"}},
		{Name: "adva-service-name", Kind: KindLabel, Keys: []string{"serviceName"}},
		{Name: "adva-pro-circuit-name", Kind: KindLabel, Keys: []string{"circuitName"}, Models: domain.AdvaProModels},
		{Name: "adva-pro-user-label-list", Kind: KindLabelList, Keys: []string{"userLabel"}, Models: domain.AdvaProModels},
		{Name: "adva-pro-user-label", Kind: KindLabel, Keys: []string{"userLabel"}, Models: domain.AdvaProModels},
		{
			Name:     "adva-pro-bandwidth",
			Kind:     KindBandwidth,
			Keys:     []string{"cir", "eir"},
			Counters: []string{"cir", "eir"},
			Within:   []string{"Client TPE", "Network TPE"},
			Models:   domain.AdvaProModels,
		},
		{
			Name:         "adva-bandwidth",
			Kind:         KindBandwidth,
			Keys:         []string{"epAccessA2NFlowCir", "epAccessA2NFlowEir"},
			Counters:     []string{"epAccessA2NFlowCir", "epAccessA2NFlowEir"},
			Within:       []string{"FRE.properties.included." + HandoffPortPlaceholder},
			ExceptModels: domain.AdvaProModels,
		},
		changeOrder(domain.VendorADVA),
	}
}

func radRules() []Rule {
	return []Rule{radNativeNames(), changeOrder(domain.VendorRAD)}
}

func juniperLabel() Rule {
	return Rule{Name: "juniper-user-label", Kind: KindLabel, Keys: []string{"userLabel"}}
}

func juniperIPv6() Rule {
	return Rule{Name: "juniper-ipv6", Kind: KindIPv6, Keys: []string{"ipv6"}}
}

// DefaultRules returns the built-in vendor tables, keyed by scope and in
// evaluation order
func DefaultRules() map[domain.Scope][]Rule {
	rules := map[domain.Scope][]Rule{}
	scope := func(st domain.ServiceType, v domain.Vendor) domain.Scope {
		return domain.Scope{ServiceType: st, Vendor: v}
	}

	for _, st := range []domain.ServiceType{domain.ServiceFIA, domain.ServiceVoice} {
		rules[scope(st, domain.VendorRAD)] = radRules()
		rules[scope(st, domain.VendorADVA)] = advaRules()
		rules[scope(st, domain.VendorJuniper)] = []Rule{
			juniperLabel(), juniperIPv6(), changeOrder(domain.VendorJuniper),
		}
		rules[scope(st, domain.VendorCisco)] = []Rule{changeOrder(domain.VendorCisco)}
		rules[scope(st, domain.VendorNokia)] = []Rule{changeOrder(domain.VendorNokia)}
	}
	rules[scope(domain.ServiceVoice, domain.VendorJuniper)] = []Rule{
		{
			Name: "juniper-voice-unrouted",
			Kind: KindKnownAbsent,
			Keys: []string{"ipv6", "nextipv4hop", "nextipv6hop", "in_bwProfileFlowParameters"},
		},
		juniperLabel(),
		juniperIPv6(),
		changeOrder(domain.VendorJuniper),
	}

	for _, st := range []domain.ServiceType{domain.ServiceELine, domain.ServiceCTBH} {
		rules[scope(st, domain.VendorNokia)] = []Rule{
			{Name: "nokia-port-speed", Kind: KindAtLeast, Keys: []string{"port_speed"}, Reference: "FRE.cir"},
			{Name: "nokia-cir", Kind: KindNumeric, Keys: []string{"cir"}, Percent: 10},
			changeOrder(domain.VendorNokia),
		}
		rules[scope(st, domain.VendorRAD)] = radRules()
		rules[scope(st, domain.VendorADVA)] = advaRules()
		rules[scope(st, domain.VendorJuniper)] = []Rule{juniperLabel(), changeOrder(domain.VendorJuniper)}
		rules[scope(st, domain.VendorCisco)] = []Rule{changeOrder(domain.VendorCisco)}
	}

	rules[scope(domain.ServiceELAN, domain.VendorRAD)] = radRules()
	rules[scope(domain.ServiceELAN, domain.VendorADVA)] = advaRules()

	// NNI circuits tolerate nothing
	rules[scope(domain.ServiceNNI, domain.Wildcard)] = []Rule{}

	return rules
}

// DefaultTable builds the built-in table
func DefaultTable() (*Table, error) {
	return NewTable(DefaultRules())
}
