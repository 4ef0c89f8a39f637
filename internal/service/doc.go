// Package service implements the reconciliation controller for circuitsync.
//
// The service layer sits between the outer shells (CLI, HTTP handlers) and the
// pure pipeline stages, coordinating the collaborators a pass needs: design
// documents, observed device state, the remediation executor and the result
// reporter.
//
// # Passes
//
// ReconcileService.Reconcile runs one pass for one device: fetch both documents,
// normalize, diff, filter and classify. A non-empty filtered diff triggers the
// executor at most once, after which the device is re-read and the diff is
// recomputed against the same designed state. Every pass yields exactly one
// ReconciliationResult, handed to the Reporter before Reconcile returns.
//
// The states a pass went through are recorded on the result:
//
//	start -> normalized -> diffed -> filtered -> clean | needs_remediation
//	      -> remediating -> reverified -> reported -> done
//
// # Concurrency
//
// Passes on the same device are serialised by DeviceLocks. Runner fans the
// devices of a circuit out in parallel, bounded by a weighted semaphore.
// SetPipeline swaps the rule tables atomically; a running pass keeps the
// tables it started with.
//
// # Event System
//
// Pass, remediation, circuit and reload events are published on the EventBus
// for Server-Sent Events clients.
package service
