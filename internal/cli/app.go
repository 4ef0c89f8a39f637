package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"circuitsync/internal/adapter"
	"circuitsync/internal/config"
	"circuitsync/internal/domain"
	"circuitsync/internal/handler"
	"circuitsync/internal/loader"
	"circuitsync/internal/logging"
	"circuitsync/internal/remediation"
	"circuitsync/internal/repository/sqlite"
	"circuitsync/internal/service"
)

// app is the fully wired engine one command runs against
type app struct {
	cfg       *config.Config
	rules     *loader.Ruleset
	inventory *loader.Inventory
	store     *sqlite.Repository
	stack     *adapter.Stack
	bus       *service.EventBus
	service   *service.ReconcileService
	runner    *service.Runner
	opts      service.PassOptions
	log       *logrus.Entry
}

// appOptions are per-command additions to the config file
type appOptions struct {
	// OutputDir also writes every result as a file under this directory
	OutputDir string
	Format    string
}

func loadRuleset(cfg *config.Config) (*loader.Ruleset, error) {
	if cfg.Rules.Path == "" {
		return loader.DefaultRuleset()
	}
	rs, err := loader.LoadRules(cfg.Rules.Path)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", cfg.Rules.Path, err)
	}
	return rs, nil
}

func openStore(cfg *config.Config) (*sqlite.Repository, error) {
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	store.SetHistoryLimit(cfg.Database.HistoryLimit)
	return store, nil
}

func newApp(cfg *config.Config, o appOptions) (*app, error) {
	log := logging.For("cli")

	if cfg.Inventory.Path == "" {
		return nil, errors.New("inventory.path is required")
	}
	inventory, err := loader.LoadInventory(cfg.Inventory.Path)
	if err != nil {
		return nil, fmt.Errorf("inventory %s: %w", cfg.Inventory.Path, err)
	}

	rules, err := loadRuleset(cfg)
	if err != nil {
		return nil, err
	}
	for _, w := range rules.Warnings {
		log.WithField("rules", cfg.Rules.Path).Warn(w)
	}

	stack, err := adapter.Build(cfg)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	reporters := service.Reporters{store}
	if o.OutputDir != "" {
		writer, err := adapter.NewResultWriter(o.OutputDir, o.Format)
		if err != nil {
			store.Close()
			return nil, err
		}
		reporters = append(reporters, writer)
	}

	var executor service.Remediator
	if stack.Runner != nil {
		executor = remediation.NewExecutor(stack.Runner, remediation.DefaultRemediators()...)
	}

	bus := service.NewEventBus()
	svc, err := service.NewReconcileService(stack.Design, stack.Observed, executor, reporters, rules.Pipeline(), bus)
	if err != nil {
		store.Close()
		return nil, err
	}
	if stack.Preflight != nil {
		svc.SetPreflight(stack.Preflight)
	}

	behavior := cfg.EffectiveBehavior()
	a := &app{
		cfg:       cfg,
		rules:     rules,
		inventory: inventory,
		store:     store,
		stack:     stack,
		bus:       bus,
		service:   svc,
		runner:    service.NewRunner(svc, behavior.MaxConcurrentPasses),
		opts: service.PassOptions{
			Remediate:      cfg.RemediationEnabled() && executor != nil,
			FetchTimeout:   behavior.FetchTimeout,
			CommandTimeout: behavior.CommandTimeout,
		},
		log: log,
	}

	log.WithFields(logrus.Fields{
		"mode":      cfg.Mode,
		"posture":   cfg.Posture,
		"observed":  cfg.Observed.Source,
		"circuits":  len(inventory.Circuits()),
		"remediate": a.opts.Remediate,
	}).Debug("Engine ready")

	return a, nil
}

// Close releases the result store
func (a *app) Close() error {
	return a.store.Close()
}

// reconcileCircuits runs every circuit in turn and collects one report per circuit
func (a *app) reconcileCircuits(ctx context.Context, circuits []domain.Circuit, opts service.PassOptions) ([]handler.ReconcileResponse, error) {
	reports := make([]handler.ReconcileResponse, 0, len(circuits))
	var errs []error
	for _, circuit := range circuits {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		start := time.Now()
		results, err := a.runner.ReconcileCircuit(ctx, circuit, opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("circuit %s: %w", circuit.ID, err))
		}
		summary := service.Summarize(circuit.ID, results, time.Since(start))
		a.log.WithFields(logrus.Fields{
			"circuit": summary.CircuitID,
			"devices": summary.Devices,
			"clean":   summary.Clean,
			"failed":  summary.Failed,
		}).Info("Circuit reconciled")
		reports = append(reports, handler.ReconcileResponse{Summary: summary, Results: results})
	}
	return reports, errors.Join(errs...)
}

// schedule reconciles every circuit on each tick until ctx is cancelled
func (a *app) schedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.reconcileCircuits(ctx, a.inventory.Circuits(), a.opts); err != nil && ctx.Err() == nil {
				a.log.WithError(err).Warn("Scheduled reconcile finished with errors")
			}
		}
	}
}
