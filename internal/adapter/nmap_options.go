package adapter

import "time"

// NmapOption is a functional option for configuring NmapPreflight
type NmapOption func(*NmapPreflight)

// WithBinaryPath points at a specific nmap binary instead of the one on PATH
func WithBinaryPath(path string) NmapOption {
	return func(n *NmapPreflight) {
		n.binaryPath = path
	}
}

// WithScanTimeout bounds a single preflight scan
func WithScanTimeout(d time.Duration) NmapOption {
	return func(n *NmapPreflight) {
		if d > 0 {
			n.timeout = d
		}
	}
}
