// Package logging configures the process-wide logrus logger.
//
// Binaries call ConfigureRuntime once at startup; tests call ConfigureTests.
// Both are idempotent. Level and format can be overridden from the
// environment with CIRCUITSYNC_LOG_LEVEL and CIRCUITSYNC_LOG_FORMAT.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	EnvLogLevel  = "CIRCUITSYNC_LOG_LEVEL"
	EnvLogFormat = "CIRCUITSYNC_LOG_FORMAT"
)

// Profile selects the defaults applied before environment overrides
type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config is the resolved logger configuration
type Config struct {
	Level  logrus.Level
	JSON   bool
	Output io.Writer
}

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

// Configure applies the profile to the standard logger exactly once
func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		applyEnvOverrides(&cfg)
		apply(logrus.StandardLogger(), cfg)
	})
}

// For returns an entry tagged with the component name
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}

func defaultConfig(profile Profile) Config {
	switch profile {
	case ProfileTest:
		return Config{Level: logrus.DebugLevel, Output: io.Discard}
	default:
		return Config{Level: logrus.InfoLevel, Output: os.Stderr}
	}
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
		if cfg.Output == io.Discard {
			cfg.Output = os.Stderr
		}
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvLogFormat))) {
	case "json":
		cfg.JSON = true
	case "text":
		cfg.JSON = false
	}
}

func apply(logger *logrus.Logger, cfg Config) {
	logger.SetOutput(cfg.Output)
	logger.SetLevel(cfg.Level)
	if cfg.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    true,
		DisableTimestamp: false,
	})
}

func parseLevel(raw string) (logrus.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return logrus.InfoLevel, false
	case "trace":
		return logrus.TraceLevel, true
	case "debug":
		return logrus.DebugLevel, true
	case "info":
		return logrus.InfoLevel, true
	case "warn", "warning":
		return logrus.WarnLevel, true
	case "error":
		return logrus.ErrorLevel, true
	case "off", "none", "disabled":
		return logrus.PanicLevel, true
	default:
		return logrus.InfoLevel, false
	}
}
