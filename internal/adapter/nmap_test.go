package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circuitsync/internal/domain"
)

func scanResult(state string, open ...uint16) *nmap.Run {
	host := nmap.Host{Status: nmap.Status{State: state}}
	for _, p := range open {
		host.Ports = append(host.Ports, nmap.Port{ID: p, Protocol: "tcp", State: nmap.State{State: "open"}})
	}
	host.Ports = append(host.Ports, nmap.Port{ID: 23, Protocol: "tcp", State: nmap.State{State: "closed"}})
	return &nmap.Run{Hosts: []nmap.Host{host}}
}

func TestClosedPorts(t *testing.T) {
	tests := []struct {
		name   string
		result *nmap.Run
		want   []int
	}{
		{"all open", scanResult("up", 22, 830), nil},
		{"one closed", scanResult("up", 830), []int{22}},
		{"host down", scanResult("down", 22, 830), []int{22, 830}},
		{"filtered port", scanResult("up"), []int{22, 830}},
		{"nil result", nil, []int{22, 830}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, closedPorts(tt.result, []int{830, 22}))
		})
	}
}

func TestNmapPreflightCheck(t *testing.T) {
	p, err := NewNmapPreflight([]int{22, 830}, WithBinaryPath("/opt/nmap/bin/nmap"), WithScanTimeout(time.Second))
	require.NoError(t, err)

	var calls int
	p.scan = func(ctx context.Context, opts ...nmap.Option) (*nmap.Run, error) {
		calls++
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		assert.Len(t, opts, 4, "targets, ports, skip discovery and binary path")
		return scanResult("up", 22, 830), nil
	}
	require.NoError(t, p.Check(context.Background(), testDevice))
	assert.Equal(t, 1, calls)

	p.scan = func(context.Context, ...nmap.Option) (*nmap.Run, error) {
		return scanResult("up", 22), nil
	}
	err = p.Check(context.Background(), testDevice)
	require.ErrorIs(t, err, domain.ErrStateUnavailable)
	assert.Contains(t, err.Error(), "830")

	p.scan = func(context.Context, ...nmap.Option) (*nmap.Run, error) {
		return nil, errors.New("nmap not found")
	}
	assert.ErrorIs(t, p.Check(context.Background(), testDevice), domain.ErrStateUnavailable)

	noAddr := testDevice
	noAddr.ManagementIP = ""
	err = p.Check(context.Background(), noAddr)
	assert.ErrorIs(t, err, domain.ErrStateUnavailable)
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestNewNmapPreflightValidation(t *testing.T) {
	_, err := NewNmapPreflight(nil)
	assert.Error(t, err)
	_, err = NewNmapPreflight([]int{0})
	assert.Error(t, err)
	_, err = NewNmapPreflight([]int{70000})
	assert.Error(t, err)
}

func TestFormatPorts(t *testing.T) {
	assert.Equal(t, "22,830", formatPorts([]int{22, 830}))
	assert.Equal(t, "", formatPorts(nil))
}
