package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"circuitsync/internal/domain"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullToBool converts sql.NullInt64 to bool (0 = false, non-zero = true)
func nullToBool(ni sql.NullInt64) bool {
	return ni.Valid && ni.Int64 != 0
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// boolToInt stores a bool in an INTEGER column
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timeToNanos stores a time as Unix nanoseconds so ORDER BY is exact
func timeToNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// nanosToTime restores a stored time in UTC
func nanosToTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// ============================================================================
// JSON Marshaling Helpers
// ============================================================================

// unmarshalJSONField safely unmarshals JSON from nullable string into target
func unmarshalJSONField(ns sql.NullString, target interface{}) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), target)
}

// marshalToNull marshals interface to nullable JSON string
// Returns empty NullString for nil values and empty slices
func marshalToNull(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}

	switch val := v.(type) {
	case *domain.RemediationOutcome:
		if val == nil {
			return sql.NullString{}, nil
		}
	case []domain.ReconciliationError:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// ============================================================================
// Schema Evolution Guide
// ============================================================================
//
// To add a new column to the results table:
// 1. Add field to resultRow struct (below)
// 2. Update scanArgs() - APPEND to end to match column order
// 3. Update resultColumns constant - APPEND to end
// 4. Update toDomain() to map new field to domain.ReconciliationResult
// 5. Update resultInsertArgs()
// 6. Add migration in sqlite.go migrate()
// 7. Update relevant tests
//
// CRITICAL: Column order must match between:
// - resultColumns constant
// - scanArgs() return slice
// - resultInsertArgs() return slice

// ============================================================================
// Result Row Scanner
// ============================================================================

// resultColumns lists the results table columns in scan order
const resultColumns = `id, circuit_id, device_ref, vendor, started_ns, finished_ns,
	clean, remediation_attempted, remediation_status,
	device, initial_diff, final_diff, remediation, errors, states`

// resultRow holds all columns from a result query for scanning
type resultRow struct {
	ID                   string
	CircuitID            string
	DeviceRef            string
	Vendor               sql.NullString
	StartedNs            int64
	FinishedNs           int64
	Clean                sql.NullInt64
	RemediationAttempted sql.NullInt64
	RemediationStatus    sql.NullString
	DeviceJSON           sql.NullString
	InitialDiffJSON      sql.NullString
	FinalDiffJSON        sql.NullString
	RemediationJSON      sql.NullString
	ErrorsJSON           sql.NullString
	StatesJSON           sql.NullString
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match resultColumns order exactly
func (r *resultRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,                   // 1
		&r.CircuitID,            // 2
		&r.DeviceRef,            // 3
		&r.Vendor,               // 4
		&r.StartedNs,            // 5
		&r.FinishedNs,           // 6
		&r.Clean,                // 7
		&r.RemediationAttempted, // 8
		&r.RemediationStatus,    // 9
		&r.DeviceJSON,           // 10
		&r.InitialDiffJSON,      // 11
		&r.FinalDiffJSON,        // 12
		&r.RemediationJSON,      // 13
		&r.ErrorsJSON,           // 14
		&r.StatesJSON,           // 15
	}
}

// toDomain converts the scanned row to a domain result
func (r *resultRow) toDomain() (*domain.ReconciliationResult, error) {
	res := &domain.ReconciliationResult{
		ID:                   r.ID,
		CircuitID:            r.CircuitID,
		DeviceRef:            r.DeviceRef,
		StartedAt:            nanosToTime(r.StartedNs),
		FinishedAt:           nanosToTime(r.FinishedNs),
		RemediationAttempted: nullToBool(r.RemediationAttempted),
		InitialDiff:          domain.NewDiffPair(),
		FinalDiff:            domain.NewDiffPair(),
	}

	if err := unmarshalJSONField(r.DeviceJSON, &res.Device); err != nil {
		return nil, fmt.Errorf("failed to parse device for %s: %w", r.ID, err)
	}
	if err := unmarshalJSONField(r.InitialDiffJSON, &res.InitialDiff); err != nil {
		return nil, fmt.Errorf("failed to parse initial diff for %s: %w", r.ID, err)
	}
	if err := unmarshalJSONField(r.FinalDiffJSON, &res.FinalDiff); err != nil {
		return nil, fmt.Errorf("failed to parse final diff for %s: %w", r.ID, err)
	}
	if r.RemediationJSON.Valid {
		var outcome domain.RemediationOutcome
		if err := unmarshalJSONField(r.RemediationJSON, &outcome); err != nil {
			return nil, fmt.Errorf("failed to parse remediation for %s: %w", r.ID, err)
		}
		res.Remediation = &outcome
	}
	if err := unmarshalJSONField(r.ErrorsJSON, &res.Errors); err != nil {
		return nil, fmt.Errorf("failed to parse errors for %s: %w", r.ID, err)
	}
	if err := unmarshalJSONField(r.StatesJSON, &res.States); err != nil {
		return nil, fmt.Errorf("failed to parse states for %s: %w", r.ID, err)
	}
	if res.Device.Vendor == "" {
		res.Device.Vendor = domain.Vendor(nullToString(r.Vendor))
	}

	return res, nil
}

// resultInsertArgs builds the insert arguments in resultColumns order
func resultInsertArgs(res *domain.ReconciliationResult) ([]interface{}, error) {
	device, err := marshalToNull(res.Device)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal device: %w", err)
	}
	initial, err := marshalToNull(res.InitialDiff)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal initial diff: %w", err)
	}
	final, err := marshalToNull(res.FinalDiff)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal final diff: %w", err)
	}
	remediation, err := marshalToNull(res.Remediation)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal remediation: %w", err)
	}
	errs, err := marshalToNull(res.Errors)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal errors: %w", err)
	}
	states, err := marshalToNull(res.States)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal states: %w", err)
	}

	var status sql.NullString
	if res.Remediation != nil {
		status = stringToNull(string(res.Remediation.Status))
	}

	return []interface{}{
		res.ID,
		res.CircuitID,
		res.DeviceRef,
		stringToNull(string(res.Device.Vendor)),
		timeToNanos(res.StartedAt),
		timeToNanos(res.FinishedAt),
		boolToInt(res.Clean()),
		boolToInt(res.RemediationAttempted),
		status,
		device,
		initial,
		final,
		remediation,
		errs,
		states,
	}, nil
}
