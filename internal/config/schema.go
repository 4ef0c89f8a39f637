package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version      int                `yaml:"version"`
	Mode         Mode               `yaml:"mode"`
	Posture      Posture            `yaml:"posture"`
	Behavior     *BehaviorOverride  `yaml:"behavior,omitempty"`
	Database     DatabaseConfig     `yaml:"database"`
	Rules        RulesConfig        `yaml:"rules"`
	Inventory    InventoryConfig    `yaml:"inventory"`
	Designs      DesignsConfig      `yaml:"designs"`
	Observed     ObservedConfig     `yaml:"observed"`
	Transport    TransportConfig    `yaml:"transport"`
	Preflight    PreflightConfig    `yaml:"preflight"`
	HTTP         HTTPConfig         `yaml:"http"`
	Capabilities CapabilitiesConfig `yaml:"capabilities"`
}

// BehaviorOverride allows overriding posture defaults
type BehaviorOverride struct {
	FetchTimeout        *Duration `yaml:"fetch_timeout,omitempty"`
	CommandTimeout      *Duration `yaml:"command_timeout,omitempty"`
	PreflightTimeout    *Duration `yaml:"preflight_timeout,omitempty"`
	MaxConcurrentPasses *int      `yaml:"max_concurrent_passes,omitempty"`
}

// DatabaseConfig holds the result store settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
	// HistoryLimit caps the stored passes per device; 0 keeps everything
	HistoryLimit int `yaml:"history_limit,omitempty"`
}

// RulesConfig locates the tolerance, profile and trigger tables
type RulesConfig struct {
	Path  string `yaml:"path,omitempty"` // empty = built-in tables
	Watch bool   `yaml:"watch"`          // reload on change in serve mode
}

// InventoryConfig locates the circuit inventory file
type InventoryConfig struct {
	Path string `yaml:"path"`
}

// DesignsConfig locates the model-builder output
type DesignsConfig struct {
	Dir string `yaml:"dir"`
}

// ObservedSource selects how live device configuration is read
type ObservedSource string

const (
	ObservedFile ObservedSource = "file"
	ObservedSSH  ObservedSource = "ssh"
	ObservedGNMI ObservedSource = "gnmi"
)

// ObservedConfig selects the device reader
type ObservedConfig struct {
	Source ObservedSource `yaml:"source"`
	Dir    string         `yaml:"dir,omitempty"` // for source=file
}

// TransportConfig holds device transport settings
type TransportConfig struct {
	SSH  SSHConfig  `yaml:"ssh"`
	GNMI GNMIConfig `yaml:"gnmi"`
}

// SSHConfig configures the command gateway reached over SSH. Paths only;
// secret values never live in the config file.
type SSHConfig struct {
	User           string  `yaml:"user"`
	Port           int     `yaml:"port"`
	KeyPath        *string `yaml:"key_path,omitempty"`
	KnownHostsPath *string `yaml:"known_hosts_path,omitempty"`
	// Gateway is the remote command run per device command; the command name
	// is appended and parameters are sent as JSON on stdin
	Gateway string `yaml:"gateway"`
	// ReadCommand is the command name that returns the observed configuration
	ReadCommand string `yaml:"read_command"`
}

// GNMIConfig configures gNMI access to devices that support it
type GNMIConfig struct {
	Port       int      `yaml:"port"`
	Username   string   `yaml:"username,omitempty"`
	Insecure   bool     `yaml:"insecure"`
	SkipVerify bool     `yaml:"skip_verify"`
	Encoding   string   `yaml:"encoding"`
	Paths      []string `yaml:"paths,omitempty"`
}

// PreflightConfig lists the management ports that must answer before a pass
type PreflightConfig struct {
	Ports []int `yaml:"ports,omitempty"`
}

// HTTPConfig holds the serve-mode listener
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
