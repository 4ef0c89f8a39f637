// Package config provides configuration management for circuitsync.
//
// The config file says where things live and how hard passes may push:
// rule tables, design documents, the result store, device transports, and the
// mode/posture pair. It never holds secret values, only paths to them.
//
// Config file locations (priority order):
//  1. $CIRCUITSYNC_CONFIG
//  2. ./circuitsync.yaml
//  3. $XDG_CONFIG_HOME/circuitsync/config.yaml
//  4. ~/.config/circuitsync/config.yaml
//  5. /etc/circuitsync/config.yaml
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied after parsing
const (
	DefaultDatabasePath = "./circuitsync.db"
	DefaultHTTPAddr     = ":8780"
	DefaultSSHPort      = 22
	DefaultGNMIPort     = 57400
	DefaultGNMIEncoding = "json_ietf"
	DefaultGateway      = "netconf-gateway run"
	DefaultReadCommand  = "get-config.json"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Parse decodes a config document and applies defaults
func Parse(data []byte) (*Config, error) {
	cfg := Config{Capabilities: DefaultCapabilities()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{Capabilities: DefaultCapabilities()}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Mode == "" {
		c.Mode = ModeReport
	}
	if c.Posture == "" {
		c.Posture = PostureBalanced
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Observed.Source == "" {
		c.Observed.Source = ObservedSSH
	}
	if c.Transport.SSH.Port == 0 {
		c.Transport.SSH.Port = DefaultSSHPort
	}
	if c.Transport.SSH.Gateway == "" {
		c.Transport.SSH.Gateway = DefaultGateway
	}
	if c.Transport.SSH.ReadCommand == "" {
		c.Transport.SSH.ReadCommand = DefaultReadCommand
	}
	if c.Transport.GNMI.Port == 0 {
		c.Transport.GNMI.Port = DefaultGNMIPort
	}
	if c.Transport.GNMI.Encoding == "" {
		c.Transport.GNMI.Encoding = DefaultGNMIEncoding
	}
	if len(c.Preflight.Ports) == 0 {
		c.Preflight.Ports = []int{c.Transport.SSH.Port}
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}

	// Core capabilities are always enabled
	c.Capabilities.Core.HTTPServer.Enabled = true
	c.Capabilities.Core.SSEEvents.Enabled = true
	if c.Capabilities.Core.Remediation.MinMode == "" {
		c.Capabilities.Core.Remediation.MinMode = ModeRemediate
	}
}

// Validate rejects values defaults cannot repair
func (c *Config) Validate() error {
	var problems []string
	if c.Mode != ModeReport && c.Mode != ModeRemediate {
		problems = append(problems, fmt.Sprintf("mode %q: want report or remediate", c.Mode))
	}
	if _, ok := PostureProfiles[c.Posture]; !ok {
		problems = append(problems, fmt.Sprintf("posture %q: want cautious, balanced or aggressive", c.Posture))
	}
	switch c.Observed.Source {
	case ObservedSSH, ObservedGNMI:
	case ObservedFile:
		if c.Observed.Dir == "" {
			problems = append(problems, "observed.dir is required for source file")
		}
	default:
		problems = append(problems, fmt.Sprintf("observed.source %q: want ssh, gnmi or file", c.Observed.Source))
	}
	if c.Behavior != nil && c.Behavior.MaxConcurrentPasses != nil && *c.Behavior.MaxConcurrentPasses < 1 {
		problems = append(problems, "behavior.max_concurrent_passes must be at least 1")
	}
	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

// RemediationEnabled reports whether passes may send corrective commands
func (c *Config) RemediationEnabled() bool {
	return c.Capabilities.IsEnabled("remediation", c.Mode)
}

// EffectiveBehavior returns behavior profile with overrides applied
func (c *Config) EffectiveBehavior() BehaviorProfile {
	base := c.Posture.GetProfile()

	if c.Behavior == nil {
		return base
	}

	if c.Behavior.FetchTimeout != nil {
		base.FetchTimeout = c.Behavior.FetchTimeout.Duration()
	}
	if c.Behavior.CommandTimeout != nil {
		base.CommandTimeout = c.Behavior.CommandTimeout.Duration()
	}
	if c.Behavior.PreflightTimeout != nil {
		base.PreflightTimeout = c.Behavior.PreflightTimeout.Duration()
	}
	if c.Behavior.MaxConcurrentPasses != nil {
		base.MaxConcurrentPasses = *c.Behavior.MaxConcurrentPasses
	}

	return base
}

// GetEnabledCapabilities returns list of capabilities enabled for current mode
func (c *Config) GetEnabledCapabilities() []CapabilityInfo {
	var enabled []CapabilityInfo

	for _, cap := range c.Capabilities.ListCapabilities() {
		if cap.Enabled && c.Mode.Allows(cap.MinMode) {
			enabled = append(enabled, cap)
		}
	}

	return enabled
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	behavior := c.EffectiveBehavior()
	caps := c.GetEnabledCapabilities()

	summary := fmt.Sprintf("Mode: %s, Posture: %s, Observed: %s\n", c.Mode, c.Posture, c.Observed.Source)
	summary += fmt.Sprintf("Fetch: %s, Command: %s, Concurrency: %d\n",
		behavior.FetchTimeout, behavior.CommandTimeout, behavior.MaxConcurrentPasses)
	summary += fmt.Sprintf("Enabled capabilities (%d):", len(caps))
	for _, cap := range caps {
		summary += fmt.Sprintf(" %s", cap.Name)
	}

	return summary
}
