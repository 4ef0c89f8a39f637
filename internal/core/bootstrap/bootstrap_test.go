package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"circuitsync/internal/config"
)

func TestNewEvidence(t *testing.T) {
	e := NewEvidence(CategoryEnvironment, "test_prop", "test_value", 0.95, "test_source", "test method")

	if e.Category != CategoryEnvironment {
		t.Errorf("Category = %v, want %v", e.Category, CategoryEnvironment)
	}
	if e.Property != "test_prop" {
		t.Errorf("Property = %v, want test_prop", e.Property)
	}
	if e.Value != "test_value" {
		t.Errorf("Value = %v, want test_value", e.Value)
	}
	if e.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", e.Confidence)
	}
	if e.ID == "" {
		t.Error("ID should not be empty")
	}
}

func TestEvidenceSet_BestValue(t *testing.T) {
	es := NewEvidenceSet()

	es.Add(NewEvidence(CategoryEnvironment, "type", "docker", 0.80, "source1", "method1"))
	es.Add(NewEvidence(CategoryEnvironment, "type", "podman", 0.95, "source2", "method2"))
	es.Add(NewEvidence(CategoryEnvironment, "type", "docker", 0.85, "source3", "method3"))

	val, conf, found := es.BestValue(CategoryEnvironment, "type")
	if !found {
		t.Error("BestValue should find evidence")
	}
	if val != "podman" {
		t.Errorf("Value = %v, want podman", val)
	}
	if conf != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", conf)
	}

	if _, _, found := es.BestValue(CategoryTools, "type"); found {
		t.Error("BestValue should not match another category")
	}
}

func TestEvidenceSet_Any(t *testing.T) {
	es := NewEvidenceSet()
	es.Add(NewEvidence(CategoryCredentials, "ssh_auth", false, 0.95, "filesystem", "bad key"))
	es.Add(NewEvidence(CategoryCredentials, "ssh_auth", true, 0.80, "environment", "password set"))

	if es.Bool(CategoryCredentials, "ssh_auth") {
		t.Error("Bool should follow the most confident evidence")
	}
	if !es.Any(CategoryCredentials, "ssh_auth") {
		t.Error("Any should see the password evidence")
	}
	if es.Any(CategoryCredentials, "gnmi_password") {
		t.Error("Any should be false without evidence")
	}
}

func TestEvidenceSet_ByCategory(t *testing.T) {
	es := NewEvidenceSet()

	es.Add(NewEvidence(CategoryEnvironment, "env1", "v1", 0.9, "s", "m"))
	es.Add(NewEvidence(CategoryEnvironment, "env2", "v2", 0.9, "s", "m"))
	es.Add(NewEvidence(CategoryTools, "has_nmap", true, 0.9, "s", "m"))

	if got := len(es.ByCategory(CategoryEnvironment)); got != 2 {
		t.Errorf("ByCategory(environment) returned %d items, want 2", got)
	}
	if got := len(es.ByCategory(CategoryTools)); got != 1 {
		t.Errorf("ByCategory(tools) returned %d items, want 1", got)
	}
	if es.Count() != 3 {
		t.Errorf("Count = %d, want 3", es.Count())
	}
}

func TestDetectEnvironment(t *testing.T) {
	dir := t.TempDir()
	oldDocker, oldCgroup := dockerEnvPath, cgroupPath
	t.Cleanup(func() { dockerEnvPath, cgroupPath = oldDocker, oldCgroup })
	t.Setenv("KUBERNETES_SERVICE_HOST", "")
	t.Setenv("container", "")

	dockerEnvPath = filepath.Join(dir, "missing")
	cgroupPath = filepath.Join(dir, "cgroup")
	if err := os.WriteFile(cgroupPath, []byte("0::/init.scope\n"), 0644); err != nil {
		t.Fatal(err)
	}

	es := NewEvidenceSet()
	es.AddAll(DetectEnvironment())
	if got := es.String(CategoryEnvironment, "environment_type"); got != string(EnvTypeHost) {
		t.Errorf("environment_type = %q, want host", got)
	}

	if err := os.WriteFile(cgroupPath, []byte("0::/kubepods/besteffort/pod1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	es = NewEvidenceSet()
	es.AddAll(DetectEnvironment())
	if got := es.String(CategoryEnvironment, "environment_type"); got != string(EnvTypeContainerized) {
		t.Errorf("environment_type = %q, want containerized", got)
	}
	if got := es.String(CategoryEnvironment, "container_runtime"); got != string(RuntimeKubernetes) {
		t.Errorf("container_runtime = %q, want kubernetes", got)
	}
}

// testConfig points a file-backed config at a fresh directory tree
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	for _, sub := range []string{"designs", "observed"} {
		if err := os.Mkdir(filepath.Join(dir, sub), 0755); err != nil {
			t.Fatal(err)
		}
	}
	inventory := filepath.Join(dir, "circuits.yaml")
	if err := os.WriteFile(inventory, []byte("circuits:\n  C1:\n    service_type: FIA\n    devices: [{tid: pe01, vendor: cisco}]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Designs.Dir = filepath.Join(dir, "designs")
	cfg.Observed.Source = config.ObservedFile
	cfg.Observed.Dir = filepath.Join(dir, "observed")
	cfg.Inventory.Path = inventory
	cfg.Database.Path = filepath.Join(dir, "results.db")
	return cfg
}

func TestDetectPaths(t *testing.T) {
	cfg := testConfig(t)

	es := NewEvidenceSet()
	es.AddAll(DetectPaths(cfg))
	for _, prop := range []string{"designs_readable", "observed_readable", "database_writable", "rules_valid", "inventory_valid"} {
		if !es.Bool(CategoryPaths, prop) {
			t.Errorf("%s = false, want true", prop)
		}
	}

	cfg.Designs.Dir = filepath.Join(cfg.Designs.Dir, "missing")
	cfg.Rules.Path = filepath.Join(t.TempDir(), "missing.yaml")
	es = NewEvidenceSet()
	es.AddAll(DetectPaths(cfg))
	if es.Bool(CategoryPaths, "designs_readable") {
		t.Error("designs_readable should be false for a missing directory")
	}
	if es.Bool(CategoryPaths, "rules_valid") {
		t.Error("rules_valid should be false for a missing rules file")
	}
}

func TestDetectCredentials(t *testing.T) {
	t.Setenv("CIRCUITSYNC_SSH_USER", "")
	t.Setenv("CIRCUITSYNC_SSH_PASSWORD", "secret")

	cfg := config.DefaultConfig()
	cfg.Transport.SSH.User = "ops"
	missing := filepath.Join(t.TempDir(), "id_missing")
	cfg.Transport.SSH.KeyPath = &missing

	es := NewEvidenceSet()
	es.AddAll(DetectCredentials(cfg))
	if !es.Bool(CategoryCredentials, "ssh_user") {
		t.Error("ssh_user should be true")
	}
	if !es.Any(CategoryCredentials, "ssh_auth") {
		t.Error("the password should count as SSH auth despite the missing key")
	}
	if es.Bool(CategoryCredentials, "ssh_known_hosts") {
		t.Error("ssh_known_hosts should be false when not configured")
	}
}

func TestSynthesize(t *testing.T) {
	tests := []struct {
		name      string
		source    config.ObservedSource
		setup     func(*EvidenceSet)
		wantMode  config.Mode
		wantReady bool
	}{
		{
			name:   "file source reports only",
			source: config.ObservedFile,
			setup: func(es *EvidenceSet) {
				es.Add(NewEvidence(CategoryPaths, "observed_readable", true, 0.95, "", ""))
			},
			wantMode:  config.ModeReport,
			wantReady: true,
		},
		{
			name:   "ssh with credentials can remediate",
			source: config.ObservedSSH,
			setup: func(es *EvidenceSet) {
				es.Add(NewEvidence(CategoryCredentials, "ssh_user", true, 0.99, "", ""))
				es.Add(NewEvidence(CategoryCredentials, "ssh_auth", true, 0.95, "", ""))
				es.Add(NewEvidence(CategoryCredentials, "ssh_known_hosts", true, 0.95, "", ""))
			},
			wantMode:  config.ModeRemediate,
			wantReady: true,
		},
		{
			name:   "ssh without auth is not ready",
			source: config.ObservedSSH,
			setup: func(es *EvidenceSet) {
				es.Add(NewEvidence(CategoryCredentials, "ssh_user", true, 0.99, "", ""))
			},
			wantMode:  config.ModeReport,
			wantReady: false,
		},
		{
			name:   "gnmi with username",
			source: config.ObservedGNMI,
			setup: func(es *EvidenceSet) {
				es.Add(NewEvidence(CategoryCredentials, "gnmi_username", true, 0.99, "", ""))
				es.Add(NewEvidence(CategoryCredentials, "gnmi_tls", true, 0.99, "", ""))
			},
			wantMode:  config.ModeRemediate,
			wantReady: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Observed.Source = tt.source

			es := NewEvidenceSet()
			for _, prop := range []string{"designs_readable", "database_writable", "rules_valid", "inventory_valid"} {
				es.Add(NewEvidence(CategoryPaths, prop, true, 0.99, "", ""))
			}
			tt.setup(es)

			report := Synthesize(es, cfg)
			if report.Mode != tt.wantMode {
				t.Errorf("Mode = %v, want %v", report.Mode, tt.wantMode)
				t.Logf("Reasons: %v Problems: %v", report.Reasons, report.Problems)
			}
			if report.Ready() != tt.wantReady {
				t.Errorf("Ready = %v, want %v (problems: %v)", report.Ready(), tt.wantReady, report.Problems)
			}
		})
	}
}

func TestSynthesizePreflightWithoutNmap(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Observed.Source = config.ObservedFile
	cfg.Capabilities.Plugins.Preflight.Enabled = true

	es := NewEvidenceSet()
	es.Add(NewEvidence(CategoryTools, "has_nmap", false, 0.95, "", ""))

	report := Synthesize(es, cfg)
	if report.Capabilities["preflight"] {
		t.Error("preflight should not be offered without nmap")
	}
	found := false
	for _, p := range report.Problems {
		if p == "preflight is enabled but nmap was not found" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing nmap problem in %v", report.Problems)
	}
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Evidence) == 0 {
		t.Error("Run should gather evidence")
	}
	if !result.Report.Ready() {
		t.Errorf("Report should be ready, problems: %v", result.Report.Problems)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, cfg); err == nil {
		t.Error("Run should stop on a cancelled context")
	}
}

func TestEvidenceWithRaw(t *testing.T) {
	e := NewEvidence(CategoryEnvironment, "test", "value", 0.9, "source", "method").
		WithRaw(map[string]any{"key": "value", "num": 42})

	if e.Raw == nil {
		t.Error("Raw should not be nil")
	}
	if e.Raw["key"] != "value" {
		t.Errorf("Raw[key] = %v, want value", e.Raw["key"])
	}
	if e.Raw["num"] != 42 {
		t.Errorf("Raw[num] = %v, want 42", e.Raw["num"])
	}
}
