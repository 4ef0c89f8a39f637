package adapter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"circuitsync/internal/domain"
)

// Credential environment variables. Secret values never live in the config file.
const (
	EnvSSHUser      = "CIRCUITSYNC_SSH_USER"
	EnvSSHPassword  = "CIRCUITSYNC_SSH_PASSWORD"
	EnvSSHKeyPass   = "CIRCUITSYNC_SSH_KEY_PASSPHRASE"
	EnvGNMIPassword = "CIRCUITSYNC_GNMI_PASSWORD"
)

var (
	// ErrNoAddress is returned for devices without a management IP or FQDN
	ErrNoAddress = errors.New("device has no management address")
	// ErrCommandFailed wraps an error reported by the device or gateway
	ErrCommandFailed = errors.New("device command failed")
)

// ObservedReader reads the live configuration of a device
type ObservedReader interface {
	ObservedConfig(ctx context.Context, circuit domain.Circuit, device domain.Device) (domain.Document, error)
}

// deviceAddress returns host:port for the device
func deviceAddress(device domain.Device, port int) (string, error) {
	host := device.Address()
	if host == "" {
		return "", fmt.Errorf("%w: %s", ErrNoAddress, device.Ref())
	}
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s:%d", host, port), nil
}

// parseCommandOutput validates a JSON command answer. A top-level "error"
// string is the gateway's way of reporting a failed command.
func parseCommandOutput(name string, out []byte) (domain.CommandResult, error) {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return domain.CommandResult("{}"), nil
	}
	if !gjson.Valid(trimmed) {
		return nil, fmt.Errorf("%w: %s returned non-JSON output: %.120s", ErrCommandFailed, name, trimmed)
	}
	if msg := gjson.Get(trimmed, "error"); msg.Type == gjson.String && msg.String() != "" {
		return nil, fmt.Errorf("%w: %s: %s", ErrCommandFailed, name, msg.String())
	}
	return domain.CommandResult(trimmed), nil
}

// observedParams are the parameters sent with the read command
func observedParams(circuit domain.Circuit, device domain.Device) map[string]any {
	return map[string]any{
		"circuit_id":   circuit.ID,
		"service_type": string(circuit.ServiceType),
		"tid":          device.TID,
		"model":        device.Model,
		"port":         strings.ToLower(device.HandoffPort),
		"network_port": device.NetworkPort,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
