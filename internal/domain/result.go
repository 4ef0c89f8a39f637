package domain

import (
	"errors"
	"time"
)

// PassState is a step of the reconciliation state machine
type PassState string

const (
	StateStart            PassState = "start"
	StateNormalized       PassState = "normalized"
	StateDiffed           PassState = "diffed"
	StateFiltered         PassState = "filtered"
	StateClean            PassState = "clean"
	StateNeedsRemediation PassState = "needs_remediation"
	StateRemediating      PassState = "remediating"
	StateReverified       PassState = "reverified"
	StateReported         PassState = "reported"
	StateDone             PassState = "done"
)

// ErrorKind classifies a reconciliation error
type ErrorKind string

const (
	// ErrorStateUnavailable: designed or observed state could not be fetched or normalized
	ErrorStateUnavailable ErrorKind = "state_unavailable"
	// ErrorMissingRequiredConfig: the device lacks a mandatory sub-document
	ErrorMissingRequiredConfig ErrorKind = "missing_required_config"
	// ErrorRemediationFailure: the corrective command failed (recovered)
	ErrorRemediationFailure ErrorKind = "remediation_command_failure"
	// ErrorClassificationAmbiguity: a diff key matches no remediation category (recovered)
	ErrorClassificationAmbiguity ErrorKind = "classification_ambiguity"
)

// Fatal reports whether an error of this kind ends the pass before remediation
func (k ErrorKind) Fatal() bool {
	return k == ErrorStateUnavailable || k == ErrorMissingRequiredConfig
}

// Sentinel errors wrapped by collaborators and mapped onto error kinds
var (
	ErrStateUnavailable        = errors.New("state unavailable")
	ErrMissingRequiredConfig   = errors.New("missing required config")
	ErrRemediationFailure      = errors.New("remediation command failed")
	ErrClassificationAmbiguity = errors.New("diff key matches no remediation category")
)

// KindOf maps an error onto its kind, defaulting to state_unavailable
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrMissingRequiredConfig):
		return ErrorMissingRequiredConfig
	case errors.Is(err, ErrRemediationFailure):
		return ErrorRemediationFailure
	case errors.Is(err, ErrClassificationAmbiguity):
		return ErrorClassificationAmbiguity
	default:
		return ErrorStateUnavailable
	}
}

// ReconciliationError is a structured, reportable error
type ReconciliationError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// NewReconciliationError converts err into a reportable error
func NewReconciliationError(err error) ReconciliationError {
	return ReconciliationError{Kind: KindOf(err), Message: err.Error()}
}

// Error implements error
func (e ReconciliationError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// OutcomeStatus is the result of invoking the remediation executor
type OutcomeStatus string

const (
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
)

// RemediationOutcome records what the executor did. Correctness is never
// judged from it; the re-diff after remediation decides convergence.
type RemediationOutcome struct {
	Status     OutcomeStatus `json:"status"`
	Categories CategorySet   `json:"categories"`
	Commands   []Command     `json:"commands,omitempty"`
	Error      string        `json:"error,omitempty"`
	// Reason explains a skip decided before the executor was called
	Reason string `json:"reason,omitempty"`
}

// Failed reports whether the corrective command failed
func (o RemediationOutcome) Failed() bool {
	return o.Status == OutcomeFailed
}

// ReconciliationResult is the single report emitted per device per pass
type ReconciliationResult struct {
	ID                   string                `json:"id"`
	CircuitID            string                `json:"circuit_id"`
	DeviceRef            string                `json:"device_ref"`
	Device               Device                `json:"device"`
	StartedAt            time.Time             `json:"started_at"`
	FinishedAt           time.Time             `json:"finished_at"`
	InitialDiff          DiffPair              `json:"initial_diff"`
	RemediationAttempted bool                  `json:"remediation_attempted"`
	Remediation          *RemediationOutcome   `json:"remediation,omitempty"`
	FinalDiff            DiffPair              `json:"final_diff"`
	Errors               []ReconciliationError `json:"errors,omitempty"`
	States               []PassState           `json:"states"`
}

// Clean reports whether the pass ended with nothing left to act on
func (r *ReconciliationResult) Clean() bool {
	return r.FinalDiff.Empty() && !r.HasFatalError()
}

// HasFatalError reports whether the pass aborted before remediation
func (r *ReconciliationResult) HasFatalError() bool {
	for _, e := range r.Errors {
		if e.Kind.Fatal() {
			return true
		}
	}
	return false
}

// HasError reports whether an error of the given kind was recorded
func (r *ReconciliationResult) HasError(kind ErrorKind) bool {
	for _, e := range r.Errors {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// FinalState returns the last state the pass reached
func (r *ReconciliationResult) FinalState() PassState {
	if len(r.States) == 0 {
		return StateStart
	}
	return r.States[len(r.States)-1]
}

// Visited reports whether the pass went through the given state
func (r *ReconciliationResult) Visited(state PassState) bool {
	for _, s := range r.States {
		if s == state {
			return true
		}
	}
	return false
}
