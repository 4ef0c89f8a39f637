// Package domain defines the core types of the circuitsync reconciliation engine.
//
// The package holds plain value types and has no infrastructure dependencies
// beyond JSON helpers.
//
// # Attribute Maps
//
// AttributeMap is the canonical, flat form of a configuration document: dotted
// attribute paths mapped to scalars or lists of scalars. Two sentinels keep
// "missing" distinct from "present but empty":
//
// Absent marks an attribute with no value on one side of a comparison.
//
// ConfigAbsent marks a mandatory sub-document that was not found at all on the
// device. It normalizes to a single marker value instead of an empty map.
//
// # Diffs
//
// DiffPair holds the observed and designed sides of a difference. Both sides
// always carry the same key set, and every operation on a pair returns a new
// pair rather than mutating the receiver.
//
// # Circuits and Devices
//
// Circuit and Device describe what a pass reconciles. Scope (service type and
// vendor) keys every vendor table: tolerance rules, normalizer profiles and
// remediation trigger keys.
//
// # Results
//
// ReconciliationResult is emitted exactly once per device per pass. Errors are
// recorded as structured ReconciliationError values, never returned past the
// controller.
package domain
