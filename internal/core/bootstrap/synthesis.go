package bootstrap

import (
	"circuitsync/internal/config"
)

// Report is the recommendation synthesized from an evidence set
type Report struct {
	Mode       config.Mode `json:"mode"`
	Confidence float64     `json:"confidence"`
	Reasons    []string    `json:"reasons"`
	// Problems stop every pass from running
	Problems []string `json:"problems,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	// Capabilities maps plugin capability names to whether they can be enabled
	Capabilities map[string]bool `json:"capabilities"`
}

// Ready reports whether passes can run at all
func (r Report) Ready() bool {
	return len(r.Problems) == 0
}

// Synthesize recommends a mode and capabilities from gathered evidence
func Synthesize(es *EvidenceSet, cfg *config.Config) Report {
	r := Report{
		Mode:         config.ModeReport,
		Confidence:   0.9,
		Capabilities: map[string]bool{},
	}

	// === Files ===
	for _, check := range []struct{ prop, problem string }{
		{"designs_readable", "designs.dir is not a readable directory"},
		{"database_writable", "database directory is not writable"},
		{"rules_valid", "rules file does not load"},
		{"inventory_valid", "inventory file does not load"},
	} {
		if !es.Bool(CategoryPaths, check.prop) {
			r.Problems = append(r.Problems, check.problem)
		}
	}
	if cfg.Observed.Source == config.ObservedFile && !es.Bool(CategoryPaths, "observed_readable") {
		r.Problems = append(r.Problems, "observed.dir is not a readable directory")
	}

	// === Device access ===
	canCommand := false
	switch cfg.Observed.Source {
	case config.ObservedFile:
		r.Reasons = append(r.Reasons, "Observed state comes from files - no device commands possible")
	case config.ObservedSSH:
		switch {
		case !es.Bool(CategoryCredentials, "ssh_user"):
			r.Problems = append(r.Problems, "no SSH user configured")
		case !es.Any(CategoryCredentials, "ssh_auth"):
			r.Problems = append(r.Problems, "no usable SSH password or key")
		default:
			canCommand = true
			r.Reasons = append(r.Reasons, "SSH credentials available")
		}
		if !es.Bool(CategoryCredentials, "ssh_known_hosts") {
			r.Warnings = append(r.Warnings, "SSH host keys are not verified - set transport.ssh.known_hosts_path")
			r.Confidence -= 0.1
		}
	case config.ObservedGNMI:
		if !es.Bool(CategoryCredentials, "gnmi_username") {
			r.Problems = append(r.Problems, "no gNMI username configured")
		} else {
			canCommand = true
			r.Reasons = append(r.Reasons, "gNMI credentials available")
		}
		if !es.Bool(CategoryCredentials, "gnmi_password") {
			r.Warnings = append(r.Warnings, "gNMI password is empty")
		}
		if !es.Bool(CategoryCredentials, "gnmi_tls") {
			r.Warnings = append(r.Warnings, "gNMI runs without TLS")
			r.Confidence -= 0.1
		}
	}

	// === Preflight ===
	hasNmap := es.Bool(CategoryTools, "has_nmap")
	r.Capabilities["preflight"] = hasNmap && cfg.Observed.Source != config.ObservedFile
	if hasNmap {
		r.Reasons = append(r.Reasons, "nmap available for management port checks")
	} else if cfg.Capabilities.Plugins.Preflight.Enabled {
		r.Problems = append(r.Problems, "preflight is enabled but nmap was not found")
	}

	// === Rule watcher ===
	r.Capabilities["rule_watcher"] = cfg.Rules.Path != "" && es.Bool(CategoryPaths, "rules_valid")

	// === Environment ===
	if es.String(CategoryEnvironment, "environment_type") == string(EnvTypeContainerized) {
		r.Reasons = append(r.Reasons, "Running in a container - device reachability depends on its network")
		if hasNmap {
			r.Confidence -= 0.05
		}
	}

	if canCommand && r.Ready() {
		r.Mode = config.ModeRemediate
		r.Confidence -= 0.1
		r.Reasons = append(r.Reasons, "Corrective commands can be sent")
	}
	return r
}
