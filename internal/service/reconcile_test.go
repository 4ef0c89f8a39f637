package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circuitsync/internal/classify"
	"circuitsync/internal/diff"
	"circuitsync/internal/domain"
	"circuitsync/internal/normalize"
	"circuitsync/internal/remediation"
	"circuitsync/internal/tolerance"
	"circuitsync/internal/validate"
)

const circuitID = "21.L1XX.006991..TWCC"

// staticDesign always returns the same document
type staticDesign struct {
	doc string
	err error
}

func (s staticDesign) DesignedConfig(context.Context, domain.Circuit, domain.Device) (domain.Document, error) {
	return domain.Document(s.doc), s.err
}

// sequenceObserved returns its documents in order and then repeats the last one
type sequenceObserved struct {
	mu       sync.Mutex
	docs     []string
	calls    int
	inflight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
	block    bool
}

func (s *sequenceObserved) ObservedConfig(ctx context.Context, _ domain.Circuit, _ domain.Device) (domain.Document, error) {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.docs) {
		i = len(s.docs) - 1
	}
	s.calls++
	return domain.Document(s.docs[i]), nil
}

func (s *sequenceObserved) fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordingReporter keeps every reported result
type recordingReporter struct {
	mu      sync.Mutex
	results []*domain.ReconciliationResult
	err     error
}

func (r *recordingReporter) Report(_ context.Context, res *domain.ReconciliationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return r.err
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

// countingExecutor answers every request with the same outcome
type countingExecutor struct {
	mu       sync.Mutex
	requests []remediation.Request
	status   domain.OutcomeStatus
}

func (e *countingExecutor) Remediate(_ context.Context, req remediation.Request) domain.RemediationOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	out := domain.RemediationOutcome{Status: e.status, Categories: req.Categories}
	if e.status == domain.OutcomeFailed {
		out.Error = "remediation command failed: remediation.json: connection reset"
	}
	return out
}

func (e *countingExecutor) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

// commandRunner captures remediation commands for the real executor
type commandRunner struct {
	mu    sync.Mutex
	names []string
	last  map[string]any
}

func (c *commandRunner) Execute(_ context.Context, _ domain.Device, name string, params map[string]any) (domain.CommandResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, name)
	c.last = params
	return domain.CommandResult(`{"status":"ok"}`), nil
}

var advaDevice = domain.Device{
	TID:                    "austxm01zw",
	Vendor:                 domain.VendorADVA,
	Model:                  "FSP 150-GE114PRO-C",
	HandoffPort:            "eth-1-1-1",
	HandoffPortDescription: "CUST:" + circuitID,
}

var fiaCircuit = domain.Circuit{ID: circuitID, ServiceType: domain.ServiceFIA, VLAN: "1100", CoS: "GOLD"}

func advaDoc(cir float64, serviceName string) string {
	return `{"FRE":{"properties":{"data":{"id":"flow-1-1-1-1"},"included":{"ETH-1-1-1":{"attributes":{"additionalAttributes":{` +
		`"epAccessA2NFlowCir":` + formatFloat(cir) + `,"epAccessA2NFlowEir":0}}}},"serviceName":"` + serviceName + `"}}}`
}

func formatFloat(f float64) string {
	return domain.FormatValue(f)
}

func requiredFREPipeline(t *testing.T) *Pipeline {
	t.Helper()
	table, err := tolerance.DefaultTable()
	require.NoError(t, err)
	return &Pipeline{
		Normalizer: normalize.New(map[domain.Scope]normalize.Profile{
			{ServiceType: domain.Wildcard, Vendor: domain.VendorADVA}: {Required: []string{"FRE"}},
		}),
		Differ:     diff.New(diff.Options{}),
		Filter:     tolerance.New(table),
		Classifier: classify.New(nil),
	}
}

type fixture struct {
	svc      *ReconcileService
	observed *sequenceObserved
	reporter *recordingReporter
	executor *countingExecutor
	bus      *EventBus
}

func newFixture(t *testing.T, designed string, observed ...string) *fixture {
	t.Helper()
	f := &fixture{
		observed: &sequenceObserved{docs: observed},
		reporter: &recordingReporter{},
		executor: &countingExecutor{status: domain.OutcomeSucceeded},
		bus:      NewEventBus(),
	}
	svc, err := NewReconcileService(staticDesign{doc: designed}, f.observed, f.executor, f.reporter, requiredFREPipeline(t), f.bus)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestNewReconcileServiceValidates(t *testing.T) {
	t.Run("collaborators are required", func(t *testing.T) {
		_, err := NewReconcileService(nil, &sequenceObserved{}, nil, &recordingReporter{}, &Pipeline{}, nil)
		assert.Error(t, err)
	})

	t.Run("pipeline stages are required", func(t *testing.T) {
		_, err := NewReconcileService(staticDesign{}, &sequenceObserved{}, nil, &recordingReporter{}, &Pipeline{}, nil)
		assert.Error(t, err)
	})
}

func TestBandwidthWithinToleranceIsClean(t *testing.T) {
	f := newFixture(t, advaDoc(1000, circuitID), advaDoc(990, circuitID))

	res := f.svc.Reconcile(context.Background(), fiaCircuit, advaDevice, PassOptions{Remediate: true})

	assert.True(t, res.Clean(), "final diff: %v", res.FinalDiff)
	assert.True(t, res.InitialDiff.Empty())
	assert.True(t, res.Visited(domain.StateClean))
	assert.False(t, res.RemediationAttempted)
	assert.Zero(t, f.executor.calls())
	assert.Equal(t, []domain.PassState{
		domain.StateStart, domain.StateNormalized, domain.StateDiffed, domain.StateFiltered,
		domain.StateClean, domain.StateReported, domain.StateDone,
	}, res.States)
	assert.Equal(t, 1, f.reporter.count())
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "AUSTXM01ZW", res.DeviceRef)
}

func TestDescriptionDriftIsRemediated(t *testing.T) {
	runner := &commandRunner{}
	executor := remediation.NewExecutor(runner, remediation.DefaultRemediators()...)
	observed := &sequenceObserved{docs: []string{
		advaDoc(1000, "FIA OLD CUSTOMER"),
		advaDoc(1000, circuitID),
	}}
	reporter := &recordingReporter{}
	svc, err := NewReconcileService(staticDesign{doc: advaDoc(1000, circuitID)}, observed, executor, reporter, requiredFREPipeline(t), nil)
	require.NoError(t, err)

	res := svc.Reconcile(context.Background(), fiaCircuit, advaDevice, PassOptions{Remediate: true})

	require.True(t, res.RemediationAttempted)
	require.NotNil(t, res.Remediation)
	assert.Equal(t, domain.OutcomeSucceeded, res.Remediation.Status, res.Remediation.Error)
	assert.True(t, res.Remediation.Categories.Has(domain.CategoryDescription))
	assert.False(t, res.Remediation.Categories.Has(domain.CategoryBandwidth))

	assert.Equal(t, []string{"remediation.json"}, runner.names)
	assert.Equal(t, "true", runner.last["description_update"])
	assert.Equal(t, circuitID, runner.last["circuit-name"])
	assert.Equal(t, advaDevice.HandoffPortDescription, runner.last["alias"])

	assert.True(t, res.InitialDiff.Has("FRE.serviceName"))
	assert.True(t, res.FinalDiff.Empty(), "re-diff after remediation: %v", res.FinalDiff)
	assert.Equal(t, 2, observed.fetches())
	assert.True(t, res.Visited(domain.StateRemediating))
	assert.True(t, res.Visited(domain.StateReverified))
	assert.Equal(t, domain.StateDone, res.FinalState())
}

func TestMissingRequiredConfig(t *testing.T) {
	for name, observed := range map[string]string{
		"marker":  `{"FRE":{"@absent":"config"}}`,
		"missing": `{"Client TPE":{"id":"x"}}`,
		"null":    `{"FRE":null}`,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, advaDoc(1000, circuitID), observed)

			res := f.svc.Reconcile(context.Background(), fiaCircuit, advaDevice, PassOptions{Remediate: true})

			assert.True(t, res.HasError(domain.ErrorMissingRequiredConfig))
			assert.True(t, res.HasFatalError())
			assert.False(t, res.RemediationAttempted)
			assert.Zero(t, f.executor.calls())
			assert.Equal(t, MissingConfigMessage, res.FinalDiff.ObservedOnly["FRE Config Error"])
			assert.True(t, domain.IsAbsent(res.FinalDiff.DesignedOnly["FRE Config Error"]))
			assert.True(t, res.InitialDiff.Has("FRE Config Error"))
			assert.Equal(t, 1, f.reporter.count())
		})
	}
}

func TestFailingRemediationConverges(t *testing.T) {
	f := newFixture(t, advaDoc(1000, circuitID), advaDoc(500, circuitID))
	f.executor.status = domain.OutcomeFailed

	var finals []domain.DiffPair
	for range 2 {
		res := f.svc.Reconcile(context.Background(), fiaCircuit, advaDevice, PassOptions{Remediate: true})
		require.True(t, res.RemediationAttempted)
		assert.True(t, res.HasError(domain.ErrorRemediationFailure))
		assert.False(t, res.HasFatalError())
		assert.False(t, res.FinalDiff.Empty())
		finals = append(finals, res.FinalDiff)
	}

	assert.Equal(t, finals[0], finals[1])
	assert.Equal(t, 2, f.executor.calls(), "one remediation per pass")
	assert.Equal(t, 4, f.observed.fetches(), "one re-read per pass")
	assert.Equal(t, 2, f.reporter.count())

	msg := f.reporter.results[0].Errors[0].Message
	assert.Equal(t, 1, countOccurrences(msg, "remediation command failed"), msg)
}

func countOccurrences(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}

func TestReportModeNeverRemediates(t *testing.T) {
	f := newFixture(t, advaDoc(1000, circuitID), advaDoc(500, circuitID))

	res := f.svc.Reconcile(context.Background(), fiaCircuit, advaDevice, PassOptions{})

	assert.Equal(t, []domain.PassState{
		domain.StateStart, domain.StateNormalized, domain.StateDiffed, domain.StateFiltered,
		domain.StateNeedsRemediation, domain.StateReported, domain.StateDone,
	}, res.States)
	assert.False(t, res.RemediationAttempted)
	assert.Zero(t, f.executor.calls())
	assert.Equal(t, res.InitialDiff, res.FinalDiff)
	assert.Equal(t, 1, f.observed.fetches())
}

func TestUnclassifiedKeysAreReported(t *testing.T) {
	designed := `{"FRE":{"mtu":9000}}`
	observed := `{"FRE":{"mtu":1500}}`
	f := newFixture(t, designed, observed)

	res := f.svc.Reconcile(context.Background(), fiaCircuit, advaDevice, PassOptions{Remediate: true})

	assert.True(t, res.HasError(domain.ErrorClassificationAmbiguity))
	assert.False(t, res.HasFatalError())
	assert.Zero(t, f.executor.calls(), "no category means nothing to send")
	assert.True(t, res.FinalDiff.Has("FRE.mtu"))
}

func TestFetchFailures(t *testing.T) {
	t.Run("designed fetch error", func(t *testing.T) {
		reporter := &recordingReporter{}
		svc, err := NewReconcileService(staticDesign{err: errors.New("model builder down")}, &sequenceObserved{docs: []string{"{}"}}, nil, reporter, requiredFREPipeline(t), nil)
		require.NoError(t, err)

		res := svc.Reconcile(context.Background(), fiaCircuit, advaDevice, PassOptions{Remediate: true})
		assert.True(t, res.HasError(domain.ErrorStateUnavailable))
		assert.Contains(t, res.Errors[0].Message, "model builder down")
		assert.Equal(t, domain.StateDone, res.FinalState())
		assert.False(t, res.Visited(domain.StateNormalized))
		assert.Equal(t, 1, reporter.count())
	})

	t.Run("designed document without required section", func(t *testing.T) {
		f := newFixture(t, `{"other":1}`, advaDoc(1000, circuitID))
		res := f.svc.Reconcile(context.Background(), fiaCircuit, advaDevice, PassOptions{Remediate: true})
		assert.True(t, res.HasError(domain.ErrorStateUnavailable))
		assert.False(t, res.HasError(domain.ErrorMissingRequiredConfig))
	})

	t.Run("malformed observed document", func(t *testing.T) {
		f := newFixture(t, advaDoc(1000, circuitID), `{"FRE":`)
		res := f.svc.Reconcile(context.Background(), fiaCircuit, advaDevice, PassOptions{Remediate: true})
		assert.True(t, res.HasError(domain.ErrorStateUnavailable))
		assert.Zero(t, f.executor.calls())
	})

	t.Run("observed fetch timeout", func(t *testing.T) {
		f := newFixture(t, advaDoc(1000, circuitID), advaDoc(1000, circuitID))
		f.observed.block = true

		start := time.Now()
		res := f.svc.Reconcile(context.Background(), fiaCircuit, advaDevice, PassOptions{Remediate: true, FetchTimeout: 20 * time.Millisecond})
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.True(t, res.HasError(domain.ErrorStateUnavailable))
		assert.Contains(t, res.Errors[0].Message, context.DeadlineExceeded.Error())
		assert.Zero(t, f.executor.calls())
	})
}

type failingPreflight struct{}

func (failingPreflight) Check(context.Context, domain.Device) error {
	return errors.New("port 22 filtered")
}

func TestPreflightFailureSkipsFetch(t *testing.T) {
	f := newFixture(t, advaDoc(1000, circuitID), advaDoc(1000, circuitID))
	f.svc.SetPreflight(failingPreflight{})

	res := f.svc.Reconcile(context.Background(), fiaCircuit, advaDevice, PassOptions{Remediate: true})
	assert.True(t, res.HasError(domain.ErrorStateUnavailable))
	assert.Zero(t, f.observed.fetches())
}

func TestReporterErrorDoesNotChangeResult(t *testing.T) {
	f := newFixture(t, advaDoc(1000, circuitID), advaDoc(1000, circuitID))
	f.reporter.err = errors.New("disk full")

	res := f.svc.Reconcile(context.Background(), fiaCircuit, advaDevice, PassOptions{Remediate: true})
	assert.True(t, res.Clean())
	assert.Equal(t, 1, f.reporter.count())
}

func TestPassesOnOneDeviceAreSerialised(t *testing.T) {
	f := newFixture(t, advaDoc(1000, circuitID), advaDoc(1000, circuitID))
	f.observed.delay = 10 * time.Millisecond

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.svc.Reconcile(context.Background(), fiaCircuit, advaDevice, PassOptions{})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.observed.maxSeen.Load())
	assert.Equal(t, 4, f.reporter.count())
	assert.Zero(t, f.svc.Locks().Held())
}

func TestEventsArePublished(t *testing.T) {
	f := newFixture(t, advaDoc(1000, circuitID), advaDoc(500, circuitID))
	events := make(chan Event, 16)
	f.bus.Subscribe(events)

	f.svc.Reconcile(context.Background(), fiaCircuit, advaDevice, PassOptions{Remediate: true})

	var types []EventType
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	assert.Equal(t, []EventType{EventPassStarted, EventRemediation, EventPassCompleted}, types)
}

func TestSetPipeline(t *testing.T) {
	f := newFixture(t, advaDoc(1000, circuitID), advaDoc(990, circuitID))
	events := make(chan Event, 4)
	f.bus.Subscribe(events)

	assert.Error(t, f.svc.SetPipeline(&Pipeline{}))

	strict := requiredFREPipeline(t)
	table, err := tolerance.NewTable(nil)
	require.NoError(t, err)
	strict.Filter = tolerance.New(table)
	require.NoError(t, f.svc.SetPipeline(strict))
	assert.Equal(t, EventRulesReloaded, (<-events).Type)

	res := f.svc.Reconcile(context.Background(), fiaCircuit, advaDevice, PassOptions{})
	assert.False(t, res.Clean(), "without tolerance rules 990 differs from 1000")
}

func checkedPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p := requiredFREPipeline(t)
	checks, err := validate.DefaultTable()
	require.NoError(t, err)
	p.Validator = validate.New(checks)
	return p
}

func TestNNIIsNeverRemediated(t *testing.T) {
	f := newFixture(t, advaDoc(1000, circuitID), advaDoc(1000, "OLD NAME"))
	require.NoError(t, f.svc.SetPipeline(checkedPipeline(t)))
	nni := domain.Circuit{ID: circuitID, ServiceType: domain.ServiceNNI, VLAN: "1100"}

	res := f.svc.Reconcile(context.Background(), nni, advaDevice, PassOptions{Remediate: true})

	assert.Zero(t, f.executor.calls())
	assert.False(t, res.RemediationAttempted)
	assert.True(t, res.FinalDiff.Has("FRE.serviceName"))
	require.NotNil(t, res.Remediation)
	assert.Equal(t, domain.OutcomeSkipped, res.Remediation.Status)
	assert.Equal(t, "NNI circuits are report only", res.Remediation.Reason)
	assert.True(t, res.Visited(domain.StateNeedsRemediation))
	assert.False(t, res.Visited(domain.StateRemediating))
}

func TestCheckFindingsAreReported(t *testing.T) {
	t.Run("missing mp_flow blocks remediation", func(t *testing.T) {
		f := newFixture(t, advaDoc(1000, circuitID), advaDoc(1000, "OLD NAME"))
		require.NoError(t, f.svc.SetPipeline(checkedPipeline(t)))
		elan := domain.Circuit{ID: circuitID, ServiceType: domain.ServiceELAN, VLAN: "1100"}
		pro := advaDevice
		pro.Model = "FSP 150-XG116PRO"

		res := f.svc.Reconcile(context.Background(), elan, pro, PassOptions{Remediate: true})

		assert.Zero(t, f.executor.calls())
		assert.Equal(t, "Device is missing mp_flow", res.InitialDiff.ObservedOnly[validate.ConfigErrorKey])
		assert.True(t, res.FinalDiff.Has(validate.ConfigErrorKey))
		assert.False(t, res.HasError(domain.ErrorClassificationAmbiguity), "check entries are not classified")
	})

	t.Run("device errors pass through and remediation still runs", func(t *testing.T) {
		observed := `{"FRE_ERROR":"flow lookup timed out",` + advaDoc(1000, "OLD NAME")[1:]
		f := newFixture(t, advaDoc(1000, circuitID), observed)
		require.NoError(t, f.svc.SetPipeline(checkedPipeline(t)))

		res := f.svc.Reconcile(context.Background(), fiaCircuit, advaDevice, PassOptions{Remediate: true})

		assert.Equal(t, "flow lookup timed out", res.InitialDiff.ObservedOnly["FRE_ERROR"])
		assert.True(t, res.FinalDiff.Has("FRE_ERROR"))
		assert.Equal(t, 1, f.executor.calls())
		require.Len(t, f.executor.requests, 1)
		assert.False(t, f.executor.requests[0].Diff.Has("FRE_ERROR"))
		assert.False(t, res.HasError(domain.ErrorClassificationAmbiguity))
	})

	t.Run("report mode records no skip", func(t *testing.T) {
		f := newFixture(t, advaDoc(1000, circuitID), advaDoc(1000, "OLD NAME"))
		require.NoError(t, f.svc.SetPipeline(checkedPipeline(t)))
		nni := domain.Circuit{ID: circuitID, ServiceType: domain.ServiceNNI}

		res := f.svc.Reconcile(context.Background(), nni, advaDevice, PassOptions{})
		assert.Nil(t, res.Remediation)
	})
}

// panickingDesign fails the way a buggy collaborator would
type panickingDesign struct{}

func (panickingDesign) DesignedConfig(context.Context, domain.Circuit, domain.Device) (domain.Document, error) {
	panic("nil map in model builder")
}

func TestPanickingCollaboratorEndsPass(t *testing.T) {
	reporter := &recordingReporter{}
	svc, err := NewReconcileService(panickingDesign{}, &sequenceObserved{docs: []string{"{}"}}, nil, reporter, requiredFREPipeline(t), nil)
	require.NoError(t, err)

	var res *domain.ReconciliationResult
	require.NotPanics(t, func() {
		res = svc.Reconcile(context.Background(), fiaCircuit, advaDevice, PassOptions{Remediate: true})
	})
	assert.True(t, res.HasError(domain.ErrorStateUnavailable))
	assert.Contains(t, res.Errors[0].Message, "nil map in model builder")
	assert.Equal(t, domain.StateDone, res.FinalState())
	assert.Equal(t, 1, reporter.count())
	assert.Zero(t, svc.Locks().Held())

	done := make(chan struct{})
	go func() {
		svc.Reconcile(context.Background(), fiaCircuit, advaDevice, PassOptions{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("device lock was not released")
	}
}

// slowDesign ignores its context
type slowDesign struct {
	delay time.Duration
	doc   string
}

func (s slowDesign) DesignedConfig(context.Context, domain.Circuit, domain.Device) (domain.Document, error) {
	time.Sleep(s.delay)
	return domain.Document(s.doc), nil
}

func TestDesignedFetchTimeoutIsEnforced(t *testing.T) {
	observed := &sequenceObserved{docs: []string{advaDoc(1000, circuitID)}}
	executor := &countingExecutor{status: domain.OutcomeSucceeded}
	svc, err := NewReconcileService(slowDesign{delay: 50 * time.Millisecond, doc: advaDoc(500, circuitID)}, observed, executor, &recordingReporter{}, requiredFREPipeline(t), nil)
	require.NoError(t, err)

	res := svc.Reconcile(context.Background(), fiaCircuit, advaDevice, PassOptions{Remediate: true, FetchTimeout: 10 * time.Millisecond})

	assert.True(t, res.HasError(domain.ErrorStateUnavailable))
	assert.Contains(t, res.Errors[0].Message, context.DeadlineExceeded.Error())
	assert.Zero(t, observed.fetches())
	assert.Zero(t, executor.calls())
}
