// Package repository defines the data access interfaces for circuitsync.
//
// The only persisted entity is the reconciliation result. Everything else a
// pass touches (documents, canonical maps, diffs) lives for one pass only.
//
// # ResultStore Interface
//
// ResultStore keeps the last result per device plus a bounded history of
// earlier passes, each with its initial and final diffs, the remediation
// outcome and the structured errors.
//
// # SQLite Implementation
//
// The sqlite subpackage implements ResultStore on modernc.org/sqlite (pure Go,
// no cgo) with WAL mode for file databases. Diffs and outcomes are stored as
// JSON columns; the sentinel values survive the round trip.
//
// # Schema Migration
//
// The sqlite repository migrates the schema on startup with CREATE IF NOT
// EXISTS statements, so existing data is preserved.
//
// # Testing
//
// The sqlite repository is tested against in-memory databases.
package repository
