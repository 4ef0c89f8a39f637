package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"circuitsync/internal/domain"
)

// DefaultMaxConcurrentPasses bounds a circuit run when no limit is configured
const DefaultMaxConcurrentPasses = 4

// CircuitSummary is published when every device of a circuit has reported
type CircuitSummary struct {
	CircuitID string        `json:"circuit_id"`
	Devices   int           `json:"devices"`
	Clean     int           `json:"clean"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Runner fans a circuit out into one pass per device
type Runner struct {
	service       *ReconcileService
	maxConcurrent int64
}

// NewRunner creates a runner allowing at most maxConcurrent passes at a time
func NewRunner(service *ReconcileService, maxConcurrent int) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentPasses
	}
	return &Runner{service: service, maxConcurrent: int64(maxConcurrent)}
}

// ReconcileCircuit runs a pass for every device of the circuit. Results are
// returned in device order; a device whose pass could not start still gets a
// reported result carrying the error.
func (r *Runner) ReconcileCircuit(ctx context.Context, circuit domain.Circuit, opts PassOptions) ([]*domain.ReconciliationResult, error) {
	start := time.Now()
	r.service.eventBus.Publish(Event{Type: EventCircuitStarted, Payload: map[string]any{
		"circuit": circuit.ID, "devices": len(circuit.Devices),
	}})

	results := make([]*domain.ReconciliationResult, len(circuit.Devices))
	sem := semaphore.NewWeighted(r.maxConcurrent)
	group, groupCtx := errgroup.WithContext(ctx)

	for i, device := range circuit.Devices {
		group.Go(func() error {
			if err := sem.Acquire(groupCtx, 1); err != nil {
				results[i] = r.service.Reconcile(groupCtx, circuit, device, opts)
				return fmt.Errorf("acquire semaphore: %w", err)
			}
			defer sem.Release(1)

			results[i] = r.service.Reconcile(groupCtx, circuit, device, opts)
			return nil
		})
	}

	waitErr := group.Wait()

	summary := Summarize(circuit.ID, results, time.Since(start))
	r.service.eventBus.Publish(Event{Type: EventCircuitDone, Payload: summary})

	if waitErr != nil {
		return results, fmt.Errorf("reconcile circuit %s: %w", circuit.ID, waitErr)
	}
	return results, nil
}

// Summarize counts clean and failed passes among results
func Summarize(circuitID string, results []*domain.ReconciliationResult, elapsed time.Duration) CircuitSummary {
	summary := CircuitSummary{CircuitID: circuitID, Devices: len(results), Duration: elapsed}
	for _, res := range results {
		if res == nil {
			continue
		}
		if res.Clean() {
			summary.Clean++
		}
		if res.HasFatalError() || (res.Remediation != nil && res.Remediation.Failed()) {
			summary.Failed++
		}
	}
	return summary
}
