package adapter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/sirupsen/logrus"

	"circuitsync/internal/domain"
	"circuitsync/internal/logging"
)

// NmapPreflight checks that the management ports of a device are open
// before a pass fetches any state
type NmapPreflight struct {
	ports      []int
	binaryPath string
	timeout    time.Duration
	scan       func(ctx context.Context, opts ...nmap.Option) (*nmap.Run, error)
	log        *logrus.Entry
}

// NewNmapPreflight creates a preflight check for the given ports
func NewNmapPreflight(ports []int, opts ...NmapOption) (*NmapPreflight, error) {
	if len(ports) == 0 {
		return nil, fmt.Errorf("preflight needs at least one port")
	}
	for _, p := range ports {
		if p < 1 || p > 65535 {
			return nil, fmt.Errorf("invalid preflight port %d", p)
		}
	}
	n := &NmapPreflight{
		ports:   append([]int(nil), ports...),
		timeout: 30 * time.Second,
		log:     logging.For("preflight"),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.scan == nil {
		n.scan = runScan
	}
	return n, nil
}

// Check implements service.Preflight
func (n *NmapPreflight) Check(ctx context.Context, device domain.Device) error {
	host := device.Address()
	if host == "" {
		return fmt.Errorf("%w: %v", domain.ErrStateUnavailable, fmt.Errorf("%w: %s", ErrNoAddress, device.Ref()))
	}

	scanCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	opts := []nmap.Option{
		nmap.WithTargets(host),
		nmap.WithPorts(formatPorts(n.ports)),
		nmap.WithSkipHostDiscovery(),
	}
	if n.binaryPath != "" {
		opts = append(opts, nmap.WithBinaryPath(n.binaryPath))
	}

	result, err := n.scan(scanCtx, opts...)
	if err != nil {
		return fmt.Errorf("%w: preflight scan of %s: %v", domain.ErrStateUnavailable, host, err)
	}

	closed := closedPorts(result, n.ports)
	log := n.log.WithFields(logrus.Fields{"device": device.Ref(), "host": host})
	if len(closed) > 0 {
		log.WithField("closed", closed).Warn("Management ports not reachable")
		return fmt.Errorf("%w: %s management ports not open: %s", domain.ErrStateUnavailable, device.Ref(), formatPorts(closed))
	}
	log.Debug("Preflight passed")
	return nil
}

func runScan(ctx context.Context, opts ...nmap.Option) (*nmap.Run, error) {
	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}
	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		logging.For("preflight").WithField("warnings", *warnings).Debug("nmap warnings")
	}
	return result, nil
}

// closedPorts returns the wanted ports not reported open on an up host
func closedPorts(result *nmap.Run, want []int) []int {
	open := map[int]bool{}
	if result != nil {
		for _, host := range result.Hosts {
			if host.Status.State != "up" && host.Status.State != "" {
				continue
			}
			for _, port := range host.Ports {
				if port.State.State == "open" {
					open[int(port.ID)] = true
				}
			}
		}
	}
	var closed []int
	for _, p := range want {
		if !open[p] {
			closed = append(closed, p)
		}
	}
	sort.Ints(closed)
	return closed
}

func formatPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}
