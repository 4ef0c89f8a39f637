// Package remediation builds and issues vendor-specific corrective commands.
//
// Each vendor plugs in through the Remediator interface. The Executor plans
// the commands for every requested category, runs them in order and turns
// any failure into a failed outcome; it never returns an error to the caller.
package remediation

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"circuitsync/internal/domain"
	"circuitsync/internal/logging"
)

var (
	// ErrNoRemediator is recorded when a vendor has no remediation support
	ErrNoRemediator = errors.New("no remediator for vendor")
	// ErrNotRemediable is returned by planners that lack the data to build a command
	ErrNotRemediable = errors.New("device cannot be remediated")
)

// CommandRunner sends a named command with parameters to a device
type CommandRunner interface {
	Execute(ctx context.Context, device domain.Device, name string, params map[string]any) (domain.CommandResult, error)
}

// Remediator plans the corrective commands for one vendor. Planners may issue
// read-only lookups through the runner; the executor issues everything they plan.
type Remediator interface {
	Vendor() domain.Vendor
	Plan(ctx context.Context, req Request, lookup CommandRunner) ([]domain.Command, error)
}

// Executor dispatches remediation by vendor
type Executor struct {
	runner      CommandRunner
	remediators map[domain.Vendor]Remediator
	log         *logrus.Entry
}

// NewExecutor creates an executor. Later remediators replace earlier ones for the same vendor.
func NewExecutor(runner CommandRunner, remediators ...Remediator) *Executor {
	e := &Executor{
		runner:      runner,
		remediators: make(map[domain.Vendor]Remediator, len(remediators)),
		log:         logging.For("remediation"),
	}
	for _, r := range remediators {
		e.remediators[r.Vendor()] = r
	}
	return e
}

// DefaultRemediators returns the built-in vendor planners
func DefaultRemediators() []Remediator {
	return []Remediator{ADVA{}, RAD{}, Cisco{}, Juniper{}}
}

// Supports reports whether a remediator is registered for the vendor
func (e *Executor) Supports(vendor domain.Vendor) bool {
	_, ok := e.remediators[vendor]
	return ok
}

// Remediate plans and issues the commands for req. The outcome is
// informational only; convergence is judged by re-reading the device.
func (e *Executor) Remediate(ctx context.Context, req Request) domain.RemediationOutcome {
	outcome := domain.RemediationOutcome{Status: domain.OutcomeSkipped, Categories: req.Categories}
	log := e.log.WithFields(logrus.Fields{
		"circuit":    req.Circuit.ID,
		"device":     req.Device.Ref(),
		"vendor":     req.Device.Vendor,
		"categories": req.Categories.String(),
	})

	if req.Categories.Empty() {
		return outcome
	}
	r, ok := e.remediators[req.Device.Vendor]
	if !ok {
		outcome.Error = fmt.Errorf("%w %s", ErrNoRemediator, req.Device.Vendor).Error()
		log.Info("remediation skipped: vendor not supported")
		return outcome
	}

	commands, err := r.Plan(ctx, req, e.runner)
	if err != nil {
		outcome.Error = err.Error()
		if errors.Is(err, ErrNotRemediable) {
			log.WithError(err).Info("remediation skipped")
			return outcome
		}
		outcome.Status = domain.OutcomeFailed
		log.WithError(err).Warn("remediation planning failed")
		return outcome
	}
	if len(commands) == 0 {
		log.Info("remediation skipped: nothing to send")
		return outcome
	}

	for _, cmd := range commands {
		outcome.Commands = append(outcome.Commands, cmd)
		log.WithField("command", cmd.Name).Debug("sending remediation command")
		if _, err := e.runner.Execute(ctx, req.Device, cmd.Name, cmd.Parameters); err != nil {
			outcome.Status = domain.OutcomeFailed
			outcome.Error = fmt.Errorf("%w: %s: %v", domain.ErrRemediationFailure, cmd.Name, err).Error()
			log.WithError(err).WithField("command", cmd.Name).Warn("remediation command failed")
			return outcome
		}
	}

	outcome.Status = domain.OutcomeSucceeded
	log.WithField("commands", len(commands)).Info("remediation commands sent")
	return outcome
}
