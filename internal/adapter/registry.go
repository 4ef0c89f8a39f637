package adapter

import (
	"errors"
	"fmt"
	"os"

	"circuitsync/internal/config"
	"circuitsync/internal/remediation"
)

// Stack is the set of adapters a reconciliation service runs against
type Stack struct {
	Design   *FileSource
	Observed ObservedReader
	// Runner is nil when the observed source cannot issue commands
	Runner remediation.CommandRunner
	// Preflight is nil unless the preflight capability is enabled
	Preflight *NmapPreflight
}

// Build assembles the adapters selected by cfg
func Build(cfg *config.Config) (*Stack, error) {
	if cfg.Designs.Dir == "" {
		return nil, errors.New("designs.dir is required")
	}
	design, err := NewFileSource(cfg.Designs.Dir)
	if err != nil {
		return nil, fmt.Errorf("designs: %w", err)
	}
	stack := &Stack{Design: design}
	behavior := cfg.EffectiveBehavior()

	switch cfg.Observed.Source {
	case config.ObservedFile:
		observed, err := NewFileSource(cfg.Observed.Dir)
		if err != nil {
			return nil, fmt.Errorf("observed: %w", err)
		}
		stack.Observed = observed
	case config.ObservedSSH:
		runner, err := buildSSH(cfg.Transport.SSH, behavior)
		if err != nil {
			return nil, err
		}
		stack.Observed = runner
		stack.Runner = runner
	case config.ObservedGNMI:
		sections, err := ParseGNMISections(cfg.Transport.GNMI.Paths)
		if err != nil {
			return nil, err
		}
		client := NewGNMIClient(GNMIConfig{
			Port:       cfg.Transport.GNMI.Port,
			Username:   cfg.Transport.GNMI.Username,
			Password:   os.Getenv(EnvGNMIPassword),
			Insecure:   cfg.Transport.GNMI.Insecure,
			SkipVerify: cfg.Transport.GNMI.SkipVerify,
			Encoding:   cfg.Transport.GNMI.Encoding,
			Timeout:    behavior.FetchTimeout,
			Sections:   sections,
		})
		stack.Observed = client
		stack.Runner = client
	default:
		return nil, fmt.Errorf("unknown observed source %q", cfg.Observed.Source)
	}

	if cfg.Capabilities.IsEnabled("preflight", cfg.Mode) {
		var opts []NmapOption
		opts = append(opts, WithScanTimeout(behavior.PreflightTimeout))
		if bin := cfg.Capabilities.Plugins.Preflight.BinaryPath; bin != nil {
			opts = append(opts, WithBinaryPath(*bin))
		}
		preflight, err := NewNmapPreflight(cfg.Preflight.Ports, opts...)
		if err != nil {
			return nil, err
		}
		stack.Preflight = preflight
	}
	return stack, nil
}

func buildSSH(cfg config.SSHConfig, behavior config.BehaviorProfile) (*SSHRunner, error) {
	opts := []SSHOption{
		WithSSHPort(cfg.Port),
		WithGateway(cfg.Gateway),
		WithReadCommand(cfg.ReadCommand),
		WithSSHTimeout(behavior.FetchTimeout),
		WithPassword(os.Getenv(EnvSSHPassword)),
	}
	if cfg.KeyPath != nil && *cfg.KeyPath != "" {
		signer, err := LoadSigner(*cfg.KeyPath, os.Getenv(EnvSSHKeyPass))
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithSigner(signer))
	}
	if cfg.KnownHostsPath != nil && *cfg.KnownHostsPath != "" {
		cb, err := LoadKnownHosts(*cfg.KnownHostsPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithHostKeyCallback(cb))
	}
	return NewSSHRunner(envOr(EnvSSHUser, cfg.User), opts...)
}
