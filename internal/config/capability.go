package config

// CapabilityType distinguishes built-in from optional capabilities
type CapabilityType string

const (
	CapabilityTypeCore   CapabilityType = "core"   // Compiled in, always available
	CapabilityTypePlugin CapabilityType = "plugin" // Optional, may need external deps
)

// CapabilityConfig defines settings for a single capability
type CapabilityConfig struct {
	Enabled    bool    `yaml:"enabled"`
	MinMode    Mode    `yaml:"min_mode,omitempty"`    // Minimum mode required
	BinaryPath *string `yaml:"binary_path,omitempty"` // Path to external binary (plugins)
}

// CoreCapabilities defines the built-in capabilities
type CoreCapabilities struct {
	HTTPServer  CapabilityConfig `yaml:"http_server"`
	SSEEvents   CapabilityConfig `yaml:"sse_events"`
	Remediation CapabilityConfig `yaml:"remediation"`
}

// PluginCapabilities defines optional capabilities
type PluginCapabilities struct {
	Preflight   CapabilityConfig `yaml:"preflight"`
	RuleWatcher CapabilityConfig `yaml:"rule_watcher"`
}

// CapabilitiesConfig holds all capability settings
type CapabilitiesConfig struct {
	Core    CoreCapabilities   `yaml:"core"`
	Plugins PluginCapabilities `yaml:"plugins"`
}

// DefaultCapabilities returns the default capability configuration
func DefaultCapabilities() CapabilitiesConfig {
	return CapabilitiesConfig{
		Core: CoreCapabilities{
			HTTPServer:  CapabilityConfig{Enabled: true},
			SSEEvents:   CapabilityConfig{Enabled: true},
			Remediation: CapabilityConfig{Enabled: true, MinMode: ModeRemediate},
		},
		Plugins: PluginCapabilities{
			Preflight: CapabilityConfig{
				Enabled: false, // Requires nmap binary
				MinMode: ModeReport,
			},
			RuleWatcher: CapabilityConfig{
				Enabled: true,
				MinMode: ModeReport,
			},
		},
	}
}

// CapabilityInfo provides runtime info about a capability
type CapabilityInfo struct {
	Name        string         `json:"name"`
	Type        CapabilityType `json:"type"`
	Enabled     bool           `json:"enabled"`
	MinMode     Mode           `json:"min_mode"`
	Description string         `json:"description"`
}

// ListCapabilities returns info about all capabilities
func (c *CapabilitiesConfig) ListCapabilities() []CapabilityInfo {
	return []CapabilityInfo{
		{
			Name:        "http_server",
			Type:        CapabilityTypeCore,
			Enabled:     c.Core.HTTPServer.Enabled,
			MinMode:     ModeReport,
			Description: "Result API server",
		},
		{
			Name:        "sse_events",
			Type:        CapabilityTypeCore,
			Enabled:     c.Core.SSEEvents.Enabled,
			MinMode:     ModeReport,
			Description: "Server-Sent Events for pass progress",
		},
		{
			Name:        "remediation",
			Type:        CapabilityTypeCore,
			Enabled:     c.Core.Remediation.Enabled,
			MinMode:     ModeRemediate,
			Description: "One corrective device command per pass",
		},
		{
			Name:        "preflight",
			Type:        CapabilityTypePlugin,
			Enabled:     c.Plugins.Preflight.Enabled,
			MinMode:     c.Plugins.Preflight.MinMode,
			Description: "Management port check via nmap",
		},
		{
			Name:        "rule_watcher",
			Type:        CapabilityTypePlugin,
			Enabled:     c.Plugins.RuleWatcher.Enabled,
			MinMode:     c.Plugins.RuleWatcher.MinMode,
			Description: "Reload rule tables when the file changes",
		},
	}
}

// IsEnabled checks if a capability is enabled for the given mode
func (c *CapabilitiesConfig) IsEnabled(name string, currentMode Mode) bool {
	for _, cap := range c.ListCapabilities() {
		if cap.Name == name {
			return cap.Enabled && currentMode.Allows(cap.MinMode)
		}
	}
	return false
}
