package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestModeLevel(t *testing.T) {
	tests := []struct {
		mode  Mode
		level int
	}{
		{ModeReport, 0},
		{ModeRemediate, 1},
	}

	for _, tt := range tests {
		if got := tt.mode.Level(); got != tt.level {
			t.Errorf("Mode(%s).Level() = %d, want %d", tt.mode, got, tt.level)
		}
	}
}

func TestModeAllows(t *testing.T) {
	tests := []struct {
		current  Mode
		required Mode
		allowed  bool
	}{
		{ModeRemediate, ModeReport, true},
		{ModeRemediate, ModeRemediate, true},
		{ModeReport, ModeReport, true},
		{ModeReport, ModeRemediate, false},
	}

	for _, tt := range tests {
		if got := tt.current.Allows(tt.required); got != tt.allowed {
			t.Errorf("Mode(%s).Allows(%s) = %v, want %v",
				tt.current, tt.required, got, tt.allowed)
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input string
		want  Mode
	}{
		{"report", ModeReport},
		{"remediate", ModeRemediate},
		{"invalid", ModeReport}, // Default
		{"", ModeReport},        // Default
	}

	for _, tt := range tests {
		if got := ParseMode(tt.input); got != tt.want {
			t.Errorf("ParseMode(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestPostureGetProfile(t *testing.T) {
	postures := []Posture{PostureCautious, PostureBalanced, PostureAggressive}

	for _, p := range postures {
		profile := p.GetProfile()
		if profile.FetchTimeout == 0 {
			t.Errorf("Posture(%s).GetProfile().FetchTimeout should not be 0", p)
		}
		if profile.MaxConcurrentPasses == 0 {
			t.Errorf("Posture(%s).GetProfile().MaxConcurrentPasses should not be 0", p)
		}
	}

	cautious := PostureCautious.GetProfile()
	aggressive := PostureAggressive.GetProfile()

	if cautious.FetchTimeout <= aggressive.FetchTimeout {
		t.Error("Cautious should wait longer for device state than aggressive")
	}
	if cautious.MaxConcurrentPasses >= aggressive.MaxConcurrentPasses {
		t.Error("Cautious should run fewer passes at once than aggressive")
	}
	if got := Posture("stealth").GetProfile(); got != PostureBalanced.GetProfile() {
		t.Error("Unknown posture should fall back to balanced")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Mode != ModeReport {
		t.Errorf("Mode = %s, want %s", cfg.Mode, ModeReport)
	}
	if cfg.Posture != PostureBalanced {
		t.Errorf("Posture = %s, want %s", cfg.Posture, PostureBalanced)
	}
	if cfg.Database.Path == "" {
		t.Error("Database.Path should not be empty")
	}
	if cfg.Observed.Source != ObservedSSH {
		t.Errorf("Observed.Source = %s, want ssh", cfg.Observed.Source)
	}
	if len(cfg.Preflight.Ports) != 1 || cfg.Preflight.Ports[0] != DefaultSSHPort {
		t.Errorf("Preflight.Ports = %v, want [22]", cfg.Preflight.Ports)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig should validate: %v", err)
	}
}

func TestRemediationEnabled(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RemediationEnabled() {
		t.Error("report mode must never remediate")
	}

	cfg.Mode = ModeRemediate
	if !cfg.RemediationEnabled() {
		t.Error("remediate mode should remediate")
	}

	cfg.Capabilities.Core.Remediation.Enabled = false
	if cfg.RemediationEnabled() {
		t.Error("disabled capability wins over mode")
	}
}

func TestEffectiveBehavior(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Posture = PostureBalanced

	behavior := cfg.EffectiveBehavior()
	expected := PostureBalanced.GetProfile()

	if behavior.FetchTimeout != expected.FetchTimeout {
		t.Errorf("FetchTimeout = %s, want %s", behavior.FetchTimeout, expected.FetchTimeout)
	}

	override := 10 * time.Second
	cfg.Behavior = &BehaviorOverride{
		FetchTimeout: (*Duration)(&override),
	}
	behavior = cfg.EffectiveBehavior()

	if behavior.FetchTimeout != override {
		t.Errorf("FetchTimeout = %s, want %s (override)", behavior.FetchTimeout, override)
	}
	if behavior.MaxConcurrentPasses != expected.MaxConcurrentPasses {
		t.Errorf("MaxConcurrentPasses = %d, want %d (posture default)",
			behavior.MaxConcurrentPasses, expected.MaxConcurrentPasses)
	}
}

func TestParse(t *testing.T) {
	t.Run("overrides and defaults", func(t *testing.T) {
		cfg, err := Parse([]byte(`
mode: remediate
posture: aggressive
behavior:
  fetch_timeout: 5s
observed:
  source: file
  dir: ./observed
capabilities:
  plugins:
    preflight:
      enabled: true
`))
		if err != nil {
			t.Fatalf("Parse() error: %v", err)
		}
		if cfg.Mode != ModeRemediate {
			t.Errorf("Mode = %s, want remediate", cfg.Mode)
		}
		if got := cfg.EffectiveBehavior().FetchTimeout; got != 5*time.Second {
			t.Errorf("FetchTimeout = %s, want 5s", got)
		}
		if !cfg.Capabilities.IsEnabled("preflight", cfg.Mode) {
			t.Error("preflight should be enabled")
		}
		if !cfg.Capabilities.IsEnabled("rule_watcher", cfg.Mode) {
			t.Error("rule_watcher default should survive a partial capabilities block")
		}
		if cfg.Transport.GNMI.Encoding != DefaultGNMIEncoding {
			t.Errorf("GNMI.Encoding = %s, want %s", cfg.Transport.GNMI.Encoding, DefaultGNMIEncoding)
		}
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		_, err := Parse([]byte("mode: fix-everything\nposture: reckless\nobserved:\n  source: file\n"))
		if err == nil {
			t.Fatal("expected an error")
		}
		for _, want := range []string{"mode", "posture", "observed.dir"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("error %q should mention %s", err, want)
			}
		}
	})

	t.Run("bad duration", func(t *testing.T) {
		if _, err := Parse([]byte("behavior:\n  fetch_timeout: soon\n")); err == nil {
			t.Error("expected a duration error")
		}
	})
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Posture = PostureAggressive
	cfg.Mode = ModeRemediate
	cfg.Designs.Dir = "/srv/designs"

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, path, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}
	if path != configPath {
		t.Errorf("path = %s, want %s", path, configPath)
	}

	if loaded.Posture != PostureAggressive {
		t.Errorf("Posture = %s, want %s", loaded.Posture, PostureAggressive)
	}
	if loaded.Mode != ModeRemediate {
		t.Error("Mode should be remediate")
	}
	if loaded.Designs.Dir != "/srv/designs" {
		t.Errorf("Designs.Dir = %s, want /srv/designs", loaded.Designs.Dir)
	}
}

func TestFindConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ConfigFileName)

	cfg := DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	t.Chdir(tmpDir)

	if found := FindConfigPath(); found == "" {
		t.Error("FindConfigPath() should find config in working directory")
	}

	t.Setenv(EnvConfigPath, "/nonexistent/path.yaml")
	if found := FindConfigPath(); found == "" {
		t.Error("FindConfigPath() should fall back when env path doesn't exist")
	}

	explicit := filepath.Join(t.TempDir(), "explicit.yaml")
	if err := os.WriteFile(explicit, []byte("mode: report\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigPath, explicit)
	if found := FindConfigPath(); found != explicit {
		t.Errorf("FindConfigPath() = %s, want %s", found, explicit)
	}
}

func TestDuration(t *testing.T) {
	d := Duration(5 * time.Minute)

	if d.Duration() != 5*time.Minute {
		t.Errorf("Duration() = %s, want 5m", d.Duration())
	}

	marshaled, err := d.MarshalYAML()
	if err != nil {
		t.Fatalf("MarshalYAML() error: %v", err)
	}
	if marshaled != "5m0s" {
		t.Errorf("MarshalYAML() = %v, want 5m0s", marshaled)
	}
}
