package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"circuitsync/internal/domain"
	"circuitsync/internal/logging"
	"circuitsync/internal/normalize"
	"circuitsync/internal/remediation"
	"circuitsync/internal/tolerance"
	"circuitsync/internal/validate"
)

// MissingConfigMessage is reported for a required section the device lacks
const MissingConfigMessage = "Device is missing interface/circuit config"

// DesignSource produces the designed configuration of a device
type DesignSource interface {
	DesignedConfig(ctx context.Context, circuit domain.Circuit, device domain.Device) (domain.Document, error)
}

// ObservedSource reads the live configuration of a device
type ObservedSource interface {
	ObservedConfig(ctx context.Context, circuit domain.Circuit, device domain.Device) (domain.Document, error)
}

// Reporter receives the single result of every pass
type Reporter interface {
	Report(ctx context.Context, result *domain.ReconciliationResult) error
}

// Remediator issues the corrective commands; remediation.Executor implements it
type Remediator interface {
	Remediate(ctx context.Context, req remediation.Request) domain.RemediationOutcome
}

// Preflight checks a device is reachable before any state is fetched
type Preflight interface {
	Check(ctx context.Context, device domain.Device) error
}

// PassOptions controls one reconciliation pass
type PassOptions struct {
	// Remediate allows the executor to run when the filtered diff is not empty
	Remediate bool
	// FetchTimeout bounds each state fetch; zero means no extra bound
	FetchTimeout time.Duration
	// CommandTimeout bounds the remediation call; zero means no extra bound
	CommandTimeout time.Duration
}

// ReconcileService runs reconciliation passes: normalize, diff, filter,
// classify, remediate at most once, re-verify and report.
type ReconcileService struct {
	design    DesignSource
	observed  ObservedSource
	reporter  Reporter
	executor  Remediator
	preflight Preflight
	pipeline  atomic.Pointer[Pipeline]
	locks     *DeviceLocks
	eventBus  *EventBus
	log       *logrus.Entry
	now       func() time.Time
}

// NewReconcileService creates a new reconcile service
func NewReconcileService(design DesignSource, observed ObservedSource, executor Remediator, reporter Reporter, pipeline *Pipeline, eventBus *EventBus) (*ReconcileService, error) {
	if design == nil || observed == nil || reporter == nil {
		return nil, errors.New("design, observed and reporter collaborators are required")
	}
	if err := pipeline.validate(); err != nil {
		return nil, err
	}
	s := &ReconcileService{
		design:   design,
		observed: observed,
		reporter: reporter,
		executor: executor,
		locks:    NewDeviceLocks(),
		eventBus: eventBus,
		log:      logging.For("reconcile"),
		now:      time.Now,
	}
	s.pipeline.Store(pipeline)
	return s, nil
}

// SetPreflight installs a reachability check run before every fetch
func (s *ReconcileService) SetPreflight(p Preflight) {
	s.preflight = p
}

// SetPipeline swaps the rule tables used by passes started from now on
func (s *ReconcileService) SetPipeline(p *Pipeline) error {
	if err := p.validate(); err != nil {
		return err
	}
	s.pipeline.Store(p)
	s.eventBus.Publish(Event{Type: EventRulesReloaded})
	return nil
}

// Locks exposes the per-device lock table
func (s *ReconcileService) Locks() *DeviceLocks {
	return s.locks
}

// pass carries the per-pass state through the stages
type pass struct {
	circuit  domain.Circuit
	device   domain.Device
	opts     PassOptions
	pipeline *Pipeline
	result   *domain.ReconciliationResult
	log      *logrus.Entry
	designed domain.AttributeMap
	observed domain.AttributeMap
}

func (p *pass) enter(state domain.PassState) {
	p.result.States = append(p.result.States, state)
	p.log.WithField("state", state).Debug("pass state")
}

func (p *pass) fail(err error) {
	rerr := domain.NewReconciliationError(err)
	p.result.Errors = append(p.result.Errors, rerr)
	entry := p.log.WithField("kind", rerr.Kind)
	if rerr.Kind.Fatal() {
		entry.WithError(err).Error("pass aborted")
	} else {
		entry.WithError(err).Warn("pass continued after error")
	}
}

func (p *pass) scope() domain.Scope {
	return p.circuit.ScopeFor(p.device)
}

// Reconcile runs one pass for a device and always returns a result. The
// result has been reported by the time Reconcile returns and is never
// modified afterwards.
func (s *ReconcileService) Reconcile(ctx context.Context, circuit domain.Circuit, device domain.Device, opts PassOptions) *domain.ReconciliationResult {
	p := &pass{
		circuit:  circuit,
		device:   device,
		opts:     opts,
		pipeline: s.pipeline.Load(),
		log: s.log.WithFields(logrus.Fields{
			"circuit": circuit.ID,
			"device":  device.Ref(),
			"vendor":  device.Vendor,
		}),
		result: &domain.ReconciliationResult{
			ID:          uuid.NewString(),
			CircuitID:   circuit.ID,
			DeviceRef:   device.Ref(),
			Device:      device,
			StartedAt:   s.now(),
			InitialDiff: domain.NewDiffPair(),
			FinalDiff:   domain.NewDiffPair(),
		},
	}
	p.enter(domain.StateStart)
	s.eventBus.Publish(Event{Type: EventPassStarted, Payload: map[string]string{
		"circuit": circuit.ID, "device": device.Ref(),
	}})

	unlock, err := s.locks.Lock(ctx, device.TID)
	if err != nil {
		p.fail(fmt.Errorf("%w: waiting for device lock: %v", domain.ErrStateUnavailable, err))
	} else {
		s.runLocked(ctx, p, unlock)
	}

	p.enter(domain.StateReported)
	p.enter(domain.StateDone)
	p.result.FinishedAt = s.now()

	if err := s.reporter.Report(ctx, p.result); err != nil {
		p.log.WithError(err).Error("failed to report result")
	}
	s.eventBus.Publish(Event{Type: EventPassCompleted, Payload: p.result})

	p.log.WithFields(logrus.Fields{
		"initial":    p.result.InitialDiff.Len(),
		"final":      p.result.FinalDiff.Len(),
		"remediated": p.result.RemediationAttempted,
		"errors":     len(p.result.Errors),
	}).Info("pass complete")
	return p.result
}

// runLocked runs the pass while holding the device lock. A panicking
// collaborator ends the pass with state_unavailable and releases the lock.
func (s *ReconcileService) runLocked(ctx context.Context, p *pass, unlock func()) {
	defer unlock()
	defer func() {
		if r := recover(); r != nil {
			p.fail(fmt.Errorf("%w: pass panicked: %v", domain.ErrStateUnavailable, r))
		}
	}()
	s.run(ctx, p)
}

// run drives the state machine up to, but not including, Reported
func (s *ReconcileService) run(ctx context.Context, p *pass) {
	if s.preflight != nil {
		if err := s.preflight.Check(ctx, p.device); err != nil {
			p.fail(fmt.Errorf("%w: preflight: %v", domain.ErrStateUnavailable, err))
			return
		}
	}

	designed, err := s.fetchDesigned(ctx, p)
	if err != nil {
		p.fail(err)
		return
	}
	p.designed = designed

	observed, err := s.fetchObserved(ctx, p)
	if err != nil {
		p.fail(err)
		return
	}
	p.observed = observed
	p.enter(domain.StateNormalized)

	if missing := normalize.MissingSections(observed); len(missing) > 0 {
		s.reportMissingConfig(p, missing)
		return
	}

	findings := s.runChecks(p)
	filtered := s.compare(p)
	reported := findings.Apply(filtered)
	p.result.InitialDiff = reported
	p.result.FinalDiff = reported.Clone()
	if reported.Empty() {
		p.enter(domain.StateClean)
		return
	}
	p.enter(domain.StateNeedsRemediation)

	actionable := filtered.Without(findings.Keys()...)
	categories, unclassified := p.pipeline.Classifier.Classify(actionable, p.device.Vendor)
	if len(unclassified) > 0 {
		p.fail(fmt.Errorf("%w: %s", domain.ErrClassificationAmbiguity, strings.Join(unclassified, ", ")))
	}
	if !p.opts.Remediate || s.executor == nil {
		return
	}
	if findings.SkipRemediation {
		p.result.Remediation = &domain.RemediationOutcome{
			Status:     domain.OutcomeSkipped,
			Categories: categories,
			Reason:     strings.Join(findings.Reasons, "; "),
		}
		p.log.WithField("reasons", findings.Reasons).Info("remediation skipped")
		return
	}
	if categories.Empty() {
		return
	}

	s.remediate(ctx, p, categories, actionable)
	s.reverify(ctx, p)
}

// runChecks runs the scope's checks against the current observed state
func (s *ReconcileService) runChecks(p *pass) validate.Findings {
	return p.pipeline.Validator.Run(validate.Context{
		Circuit:  p.circuit,
		Device:   p.device,
		Observed: p.observed,
	})
}

// compare runs diff and filter over the current designed and observed maps
func (s *ReconcileService) compare(p *pass) domain.DiffPair {
	raw := p.pipeline.Differ.Diff(p.observed, p.designed)
	p.enter(domain.StateDiffed)
	filtered := p.pipeline.Filter.Filter(raw, tolerance.Context{
		Scope:       p.scope(),
		CircuitID:   p.circuit.ID,
		Model:       p.device.Model,
		HandoffPort: p.device.HandoffPort,
		ChangeOrder: p.circuit.IsChangeOrder(),
		Observed:    p.observed,
		Designed:    p.designed,
	})
	p.enter(domain.StateFiltered)
	return filtered
}

// remediate invokes the executor exactly once
func (s *ReconcileService) remediate(ctx context.Context, p *pass, categories domain.CategorySet, filtered domain.DiffPair) {
	p.enter(domain.StateRemediating)
	p.result.RemediationAttempted = true

	cmdCtx := ctx
	if p.opts.CommandTimeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, p.opts.CommandTimeout)
		defer cancel()
	}
	outcome := s.executor.Remediate(cmdCtx, remediation.Request{
		Circuit:    p.circuit,
		Device:     p.device,
		Categories: categories,
		Designed:   p.designed,
		Observed:   p.observed,
		Diff:       filtered,
	})
	p.result.Remediation = &outcome
	if outcome.Failed() {
		msg := strings.TrimPrefix(outcome.Error, domain.ErrRemediationFailure.Error()+": ")
		p.fail(fmt.Errorf("%w: %s", domain.ErrRemediationFailure, msg))
	}
	s.eventBus.Publish(Event{Type: EventRemediation, Payload: map[string]any{
		"device":     p.device.Ref(),
		"categories": categories,
		"status":     outcome.Status,
	}})
}

// reverify re-reads the device and recomputes the final diff. The designed
// state is immutable for the pass and is not fetched again.
func (s *ReconcileService) reverify(ctx context.Context, p *pass) {
	observed, err := s.fetchObserved(ctx, p)
	if err != nil {
		p.fail(err)
		return
	}
	p.observed = observed
	if missing := normalize.MissingSections(observed); len(missing) > 0 {
		s.reportMissingConfig(p, missing)
		return
	}
	findings := s.runChecks(p)
	p.result.FinalDiff = findings.Apply(s.compare(p))
	p.enter(domain.StateReverified)
}

func (s *ReconcileService) reportMissingConfig(p *pass, sections []string) {
	report := domain.NewDiffPair()
	for _, section := range sections {
		key := section + " Config Error"
		report.ObservedOnly[key] = MissingConfigMessage
		report.DesignedOnly[key] = domain.Absent
	}
	if !p.result.RemediationAttempted {
		p.result.InitialDiff = report
	}
	p.result.FinalDiff = report.Clone()
	p.fail(fmt.Errorf("%w: %s", domain.ErrMissingRequiredConfig, strings.Join(sections, ", ")))
}

func (s *ReconcileService) fetchDesigned(ctx context.Context, p *pass) (domain.AttributeMap, error) {
	fetchCtx, cancel := withTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()
	doc, err := s.design.DesignedConfig(fetchCtx, p.circuit, p.device)
	if err != nil {
		return nil, fmt.Errorf("%w: designed config: %v", domain.ErrStateUnavailable, err)
	}
	if err := fetchCtx.Err(); err != nil {
		return nil, fmt.Errorf("%w: designed config: %v", domain.ErrStateUnavailable, err)
	}
	m, err := p.pipeline.Normalizer.Normalize(doc, p.scope())
	if err != nil {
		return nil, fmt.Errorf("%w: normalize designed config: %v", domain.ErrStateUnavailable, err)
	}
	if missing := normalize.MissingSections(m); len(missing) > 0 {
		return nil, fmt.Errorf("%w: designed config lacks %s", domain.ErrStateUnavailable, strings.Join(missing, ", "))
	}
	return m, nil
}

func (s *ReconcileService) fetchObserved(ctx context.Context, p *pass) (domain.AttributeMap, error) {
	fetchCtx, cancel := withTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()
	doc, err := s.observed.ObservedConfig(fetchCtx, p.circuit, p.device)
	if err != nil {
		return nil, fmt.Errorf("%w: observed config: %v", domain.ErrStateUnavailable, err)
	}
	if err := fetchCtx.Err(); err != nil {
		return nil, fmt.Errorf("%w: observed config: %v", domain.ErrStateUnavailable, err)
	}
	m, err := p.pipeline.Normalizer.Normalize(doc, p.scope())
	if err != nil {
		return nil, fmt.Errorf("%w: normalize observed config: %v", domain.ErrStateUnavailable, err)
	}
	return m, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
