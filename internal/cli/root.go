// Package cli implements the circuitsync command line.
//
// Every command reads the config file first (see package config), then
// applies CIRCUITSYNC_* environment variables and flags on top of it.
package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"circuitsync/internal/config"
	"circuitsync/internal/logging"
)

// EnvPrefix is the prefix of every environment override
const EnvPrefix = "CIRCUITSYNC"

// Config keys that may be overridden from the environment, e.g.
// CIRCUITSYNC_DESIGNS_DIR or CIRCUITSYNC_OBSERVED_SOURCE
var envOverrides = []string{
	"database.path",
	"rules.path",
	"inventory.path",
	"designs.dir",
	"observed.source",
	"observed.dir",
	"http.addr",
}

// globals carries the persistent flags shared by every subcommand
type globals struct {
	v *viper.Viper
}

func newGlobals() *globals {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return &globals{v: v}
}

// NewRootCmd creates the root command with version info and subcommands
func NewRootCmd(version, commit, date string) *cobra.Command {
	g := newGlobals()

	cmd := &cobra.Command{
		Use:   "circuitsync",
		Short: "Reconcile designed circuit configuration against live devices",
		Long: "circuitsync compares the designed configuration of each circuit endpoint with " +
			"the configuration observed on the device, tolerates known vendor quirks, " +
			"optionally issues one corrective command per pass, and records the outcome.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.configureLogging()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.Version = fmt.Sprintf("%s (Built on %s from Git SHA %s)", version, date, commit)

	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (default: search CIRCUITSYNC_CONFIG, ./circuitsync.yaml, XDG and /etc)")
	flags.String("mode", "", "override mode: report or remediate")
	flags.String("posture", "", "override posture: cautious, balanced or aggressive")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	for _, name := range []string{"config", "mode", "posture", "log-level"} {
		_ = g.v.BindPFlag(name, flags.Lookup(name))
	}

	cmd.AddCommand(newReconcileCmd(g))
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newResultsCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newRulesCmd(g))
	cmd.AddCommand(newDoctorCmd(g))

	return cmd
}

// Execute runs the provided root command
func Execute(cmd *cobra.Command) error {
	if err := cmd.Execute(); err != nil {
		return fmt.Errorf("command execution failed: %w", err)
	}
	return nil
}

func (g *globals) configureLogging() error {
	logging.ConfigureRuntime()

	raw := g.v.GetString("log-level")
	if raw == "" {
		return nil
	}
	level, err := logrus.ParseLevel(raw)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logrus.SetLevel(level)
	return nil
}

// loadConfig reads the config file and applies environment and flag overrides
func (g *globals) loadConfig() (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if explicit := g.v.GetString("config"); explicit != "" {
		cfg, path, err = config.LoadFromPath(explicit)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return nil, path, err
	}

	if mode := g.v.GetString("mode"); mode != "" {
		cfg.Mode = config.Mode(strings.ToLower(mode))
	}
	if posture := g.v.GetString("posture"); posture != "" {
		cfg.Posture = config.Posture(strings.ToLower(posture))
	}
	for _, key := range envOverrides {
		if value := g.v.GetString(key); value != "" {
			applyOverride(cfg, key, value)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func applyOverride(cfg *config.Config, key, value string) {
	switch key {
	case "database.path":
		cfg.Database.Path = value
	case "rules.path":
		cfg.Rules.Path = value
	case "inventory.path":
		cfg.Inventory.Path = value
	case "designs.dir":
		cfg.Designs.Dir = value
	case "observed.source":
		cfg.Observed.Source = config.ObservedSource(strings.ToLower(value))
	case "observed.dir":
		cfg.Observed.Dir = value
	case "http.addr":
		cfg.HTTP.Addr = value
	}
}

// ErrDirtyResults is returned by reconcile --fail-on-dirty when a pass did not end clean
var ErrDirtyResults = errors.New("one or more devices did not reconcile clean")
