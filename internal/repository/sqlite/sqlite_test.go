package sqlite

import (
	"context"
	"database/sql"
	"reflect"
	"testing"
	"time"

	"circuitsync/internal/domain"
	"circuitsync/internal/repository"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestRepo creates an in-memory SQLite repository for testing
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}

	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertEqual fails the test if expected != actual
func assertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newResult builds a result finishing at baseTime + offset
func newResult(id, tid string, offset time.Duration) *domain.ReconciliationResult {
	device := domain.Device{TID: tid, Vendor: domain.VendorADVA, Model: "FSP 150-GE114PRO-C"}
	return &domain.ReconciliationResult{
		ID:          id,
		CircuitID:   "21.L1XX.006991..TWCC",
		DeviceRef:   device.Ref(),
		Device:      device,
		StartedAt:   baseTime.Add(offset - time.Second),
		FinishedAt:  baseTime.Add(offset),
		InitialDiff: domain.NewDiffPair(),
		FinalDiff:   domain.NewDiffPair(),
		States:      []domain.PassState{domain.StateStart, domain.StateClean, domain.StateDone},
	}
}

// ============================================================================
// Helper Function Tests
// ============================================================================

func TestNullToString(t *testing.T) {
	tests := []struct {
		name     string
		input    sql.NullString
		expected string
	}{
		{"valid string", sql.NullString{String: "hello", Valid: true}, "hello"},
		{"null", sql.NullString{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertEqual(t, tt.expected, nullToString(tt.input))
		})
	}
}

func TestTimeNanosRoundTrip(t *testing.T) {
	t.Run("zero time stays zero", func(t *testing.T) {
		assertEqual(t, int64(0), timeToNanos(time.Time{}))
		if !nanosToTime(0).IsZero() {
			t.Fatal("expected zero time")
		}
	})

	t.Run("nanoseconds survive", func(t *testing.T) {
		ts := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
		if !nanosToTime(timeToNanos(ts)).Equal(ts) {
			t.Fatalf("round trip changed %v", ts)
		}
	})
}

func TestMarshalToNull(t *testing.T) {
	t.Run("nil outcome is null", func(t *testing.T) {
		var outcome *domain.RemediationOutcome
		ns, err := marshalToNull(outcome)
		assertNoError(t, err)
		assertEqual(t, false, ns.Valid)
	})

	t.Run("empty errors are null", func(t *testing.T) {
		ns, err := marshalToNull([]domain.ReconciliationError{})
		assertNoError(t, err)
		assertEqual(t, false, ns.Valid)
	})

	t.Run("diff keeps sentinels", func(t *testing.T) {
		pair := domain.NewDiffPair().WithValues("FRE Config Error", "Device is missing interface/circuit config", domain.Absent)
		ns, err := marshalToNull(pair)
		assertNoError(t, err)

		var back domain.DiffPair
		assertNoError(t, unmarshalJSONField(ns, &back))
		if !domain.IsAbsent(back.DesignedOnly["FRE Config Error"]) {
			t.Fatalf("expected Absent, got %#v", back.DesignedOnly["FRE Config Error"])
		}
	})
}

// ============================================================================
// Result Store Tests
// ============================================================================

func TestSaveAndGetResult(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	res := newResult("r1", "austxm01zw", 0)
	res.InitialDiff = domain.NewDiffPair().WithValues("FRE.serviceName", "OLD", "21.L1XX.006991..TWCC")
	res.RemediationAttempted = true
	res.Remediation = &domain.RemediationOutcome{
		Status:     domain.OutcomeFailed,
		Categories: domain.NewCategorySet(domain.CategoryDescription),
		Commands:   []domain.Command{{Name: "remediation.json", Parameters: map[string]any{"description_update": "true"}}},
		Error:      "remediation command failed: timeout",
	}
	res.FinalDiff = res.InitialDiff.Clone()
	res.Errors = []domain.ReconciliationError{{Kind: domain.ErrorRemediationFailure, Message: "timeout"}}

	assertNoError(t, repo.SaveResult(ctx, res))

	got, err := repo.GetResult(ctx, "r1")
	assertNoError(t, err)
	if got == nil {
		t.Fatal("expected a result")
	}
	assertEqual(t, res.DeviceRef, got.DeviceRef)
	assertEqual(t, res.InitialDiff, got.InitialDiff)
	assertEqual(t, res.FinalDiff, got.FinalDiff)
	assertEqual(t, res.Errors, got.Errors)
	assertEqual(t, res.States, got.States)
	assertEqual(t, *res.Remediation, *got.Remediation)
	assertEqual(t, res.Device, got.Device)
	if !got.FinishedAt.Equal(res.FinishedAt) {
		t.Fatalf("FinishedAt = %v, want %v", got.FinishedAt, res.FinishedAt)
	}

	missing, err := repo.GetResult(ctx, "nope")
	assertNoError(t, err)
	if missing != nil {
		t.Fatal("expected nil for unknown id")
	}
}

func TestSaveResultValidates(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.SaveResult(context.Background(), &domain.ReconciliationResult{}); err == nil {
		t.Fatal("expected an error for a result without id")
	}
	if err := repo.SaveResult(context.Background(), nil); err == nil {
		t.Fatal("expected an error for nil")
	}
}

func TestLastResult(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.Report(ctx, newResult("r1", "austxm01zw", 0)))
	assertNoError(t, repo.Report(ctx, newResult("r2", "austxm01zw", time.Minute)))

	t.Run("newest result wins", func(t *testing.T) {
		got, err := repo.LastResult(ctx, "AUSTXM01ZW")
		assertNoError(t, err)
		assertEqual(t, "r2", got.ID)
	})

	t.Run("lookup ignores case", func(t *testing.T) {
		got, err := repo.LastResult(ctx, "austxm01zw")
		assertNoError(t, err)
		assertEqual(t, "r2", got.ID)
	})

	t.Run("late arrival does not replace a newer result", func(t *testing.T) {
		assertNoError(t, repo.Report(ctx, newResult("r0", "austxm01zw", -time.Minute)))
		got, err := repo.LastResult(ctx, "AUSTXM01ZW")
		assertNoError(t, err)
		assertEqual(t, "r2", got.ID)
	})

	t.Run("unknown device", func(t *testing.T) {
		got, err := repo.LastResult(ctx, "nowhere")
		assertNoError(t, err)
		if got != nil {
			t.Fatal("expected nil")
		}
	})
}

func TestListLastResults(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	clean := newResult("a1", "dev-a", 0)
	dirty := newResult("b1", "dev-b", 0)
	dirty.FinalDiff = domain.NewDiffPair().WithValues("FRE.cir", 500.0, 1000.0)
	other := newResult("c1", "dev-c", 0)
	other.CircuitID = "51.KGFD.000001..CHTR"

	for _, r := range []*domain.ReconciliationResult{other, dirty, clean} {
		assertNoError(t, repo.SaveResult(ctx, r))
	}

	t.Run("all devices sorted", func(t *testing.T) {
		got, err := repo.ListLastResults(ctx, repository.ResultFilter{})
		assertNoError(t, err)
		assertEqual(t, []string{"a1", "b1", "c1"}, ids(got))
	})

	t.Run("by circuit", func(t *testing.T) {
		got, err := repo.ListLastResults(ctx, repository.ResultFilter{CircuitID: "21.L1XX.006991..TWCC"})
		assertNoError(t, err)
		assertEqual(t, []string{"a1", "b1"}, ids(got))
	})

	t.Run("dirty only", func(t *testing.T) {
		got, err := repo.ListLastResults(ctx, repository.ResultFilter{DirtyOnly: true})
		assertNoError(t, err)
		assertEqual(t, []string{"b1"}, ids(got))
	})
}

func TestHistory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i, id := range []string{"h1", "h2", "h3", "h4"} {
		assertNoError(t, repo.SaveResult(ctx, newResult(id, "dev-a", time.Duration(i)*time.Minute)))
	}

	got, err := repo.History(ctx, "DEV-A", 0)
	assertNoError(t, err)
	assertEqual(t, []string{"h4", "h3", "h2", "h1"}, ids(got))

	got, err = repo.History(ctx, "DEV-A", 2)
	assertNoError(t, err)
	assertEqual(t, []string{"h4", "h3"}, ids(got))
}

func TestHistoryLimit(t *testing.T) {
	repo := newTestRepo(t)
	repo.SetHistoryLimit(2)
	ctx := context.Background()

	for i, id := range []string{"h1", "h2", "h3"} {
		assertNoError(t, repo.SaveResult(ctx, newResult(id, "dev-a", time.Duration(i)*time.Minute)))
	}
	assertNoError(t, repo.SaveResult(ctx, newResult("other", "dev-b", 0)))

	got, err := repo.History(ctx, "DEV-A", 0)
	assertNoError(t, err)
	assertEqual(t, []string{"h3", "h2"}, ids(got))

	last, err := repo.LastResult(ctx, "DEV-B")
	assertNoError(t, err)
	assertEqual(t, "other", last.ID)
}

func ids(results []*domain.ReconciliationResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.ID)
	}
	return out
}
