package bootstrap

import (
	"os"
	"os/exec"
	"path/filepath"

	"circuitsync/internal/adapter"
	"circuitsync/internal/config"
	"circuitsync/internal/loader"
)

// DetectTools looks for the external binaries optional capabilities need
func DetectTools(cfg *config.Config) []Evidence {
	name := "nmap"
	if p := cfg.Capabilities.Plugins.Preflight.BinaryPath; p != nil && *p != "" {
		name = *p
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return []Evidence{NewEvidence(CategoryTools, "has_nmap", false, 0.95, "path", "lookup of "+name+" failed")}
	}
	return []Evidence{
		NewEvidence(CategoryTools, "has_nmap", true, 0.95, "path", "found "+name).
			WithRaw(map[string]any{"path": path}),
	}
}

// DetectPaths checks every file and directory the config points at
func DetectPaths(cfg *config.Config) []Evidence {
	var evidence []Evidence

	evidence = append(evidence, dirEvidence("designs_readable", cfg.Designs.Dir))
	if cfg.Observed.Source == config.ObservedFile {
		evidence = append(evidence, dirEvidence("observed_readable", cfg.Observed.Dir))
	}
	evidence = append(evidence, databaseEvidence(cfg.Database.Path))

	if cfg.Rules.Path == "" {
		evidence = append(evidence, NewEvidence(CategoryPaths, "rules_valid", true, 0.99, "config", "built-in tables"))
	} else if rs, err := loader.LoadRules(cfg.Rules.Path); err != nil {
		evidence = append(evidence, NewEvidence(CategoryPaths, "rules_valid", false, 0.99, "filesystem", err.Error()))
	} else {
		evidence = append(evidence, NewEvidence(CategoryPaths, "rules_valid", true, 0.99, "filesystem", "parsed "+cfg.Rules.Path).
			WithRaw(map[string]any{"scopes": rs.Tolerance.Scopes(), "warnings": rs.Warnings}))
	}

	if cfg.Inventory.Path == "" {
		evidence = append(evidence, NewEvidence(CategoryPaths, "inventory_valid", false, 0.99, "config", "inventory.path not set"))
	} else if inv, err := loader.LoadInventory(cfg.Inventory.Path); err != nil {
		evidence = append(evidence, NewEvidence(CategoryPaths, "inventory_valid", false, 0.99, "filesystem", err.Error()))
	} else {
		evidence = append(evidence, NewEvidence(CategoryPaths, "inventory_valid", true, 0.99, "filesystem", "parsed "+cfg.Inventory.Path).
			WithRaw(map[string]any{"circuits": len(inv.Circuits())}))
	}

	return evidence
}

func dirEvidence(prop, dir string) Evidence {
	if dir == "" {
		return NewEvidence(CategoryPaths, prop, false, 0.99, "config", "directory not set")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return NewEvidence(CategoryPaths, prop, false, 0.95, "filesystem", err.Error())
	}
	return NewEvidence(CategoryPaths, prop, true, 0.95, "filesystem", "listed "+dir).
		WithRaw(map[string]any{"entries": len(entries)})
}

func databaseEvidence(path string) Evidence {
	if path == ":memory:" {
		return NewEvidence(CategoryPaths, "database_writable", true, 0.99, "config", "in-memory database")
	}
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".circuitsync-probe-*")
	if err != nil {
		return NewEvidence(CategoryPaths, "database_writable", false, 0.95, "filesystem", err.Error())
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return NewEvidence(CategoryPaths, "database_writable", true, 0.95, "filesystem", "created a file in "+dir)
}

// DetectCredentials checks the credentials the observed source will use
func DetectCredentials(cfg *config.Config) []Evidence {
	var evidence []Evidence

	switch cfg.Observed.Source {
	case config.ObservedSSH:
		ssh := cfg.Transport.SSH
		user := ssh.User
		if env := os.Getenv(adapter.EnvSSHUser); env != "" {
			user = env
		}
		evidence = append(evidence, NewEvidence(CategoryCredentials, "ssh_user", user != "", 0.99, "config", "transport.ssh.user or "+adapter.EnvSSHUser))

		if os.Getenv(adapter.EnvSSHPassword) != "" {
			evidence = append(evidence, NewEvidence(CategoryCredentials, "ssh_auth", true, 0.8, "environment", adapter.EnvSSHPassword+" set"))
		}
		if ssh.KeyPath != nil && *ssh.KeyPath != "" {
			if _, err := adapter.LoadSigner(*ssh.KeyPath, os.Getenv(adapter.EnvSSHKeyPass)); err != nil {
				evidence = append(evidence, NewEvidence(CategoryCredentials, "ssh_auth", false, 0.95, "filesystem", err.Error()))
			} else {
				evidence = append(evidence, NewEvidence(CategoryCredentials, "ssh_auth", true, 0.95, "filesystem", "loaded "+*ssh.KeyPath))
			}
		}

		if ssh.KnownHostsPath != nil && *ssh.KnownHostsPath != "" {
			_, err := adapter.LoadKnownHosts(*ssh.KnownHostsPath)
			method := "loaded " + *ssh.KnownHostsPath
			if err != nil {
				method = err.Error()
			}
			evidence = append(evidence, NewEvidence(CategoryCredentials, "ssh_known_hosts", err == nil, 0.95, "filesystem", method))
		}

	case config.ObservedGNMI:
		gnmi := cfg.Transport.GNMI
		evidence = append(evidence,
			NewEvidence(CategoryCredentials, "gnmi_username", gnmi.Username != "", 0.99, "config", "transport.gnmi.username"),
			NewEvidence(CategoryCredentials, "gnmi_password", os.Getenv(adapter.EnvGNMIPassword) != "", 0.99, "environment", adapter.EnvGNMIPassword),
			NewEvidence(CategoryCredentials, "gnmi_tls", !gnmi.Insecure, 0.99, "config", "transport.gnmi.insecure"),
		)
	}

	return evidence
}
