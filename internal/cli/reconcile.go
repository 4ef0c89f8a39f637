package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"circuitsync/internal/codec"
	"circuitsync/internal/domain"
	"circuitsync/internal/handler"
	"circuitsync/internal/service"
)

const reconcileCmdLong = `Run one reconciliation pass for every device of the given circuits.

Each pass fetches the designed and observed configuration, normalizes and diffs
them, drops tolerated differences and, in remediate mode, issues at most one
corrective command before verifying again. Every result is stored in the
result database.

Examples:
  # Reconcile two circuits from the inventory
  circuitsync reconcile 21.L1XX.006991..TWCC 51.KGFD.000001..CHTR

  # Reconcile every circuit, report only, and keep a YAML copy of each result
  circuitsync reconcile --all --no-remediate --output-dir ./results --format yaml

  # Reconcile the circuit a single device belongs to, that device only
  circuitsync reconcile --device AUSTXM01ZW`

type reconcileFlags struct {
	all         bool
	device      string
	noRemediate bool
	outputDir   string
	format      string
	failOnDirty bool
}

func newReconcileCmd(g *globals) *cobra.Command {
	var f reconcileFlags

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:          "reconcile [<circuit>...]",
		Short:        "Reconcile circuits against their live devices",
		Long:         reconcileCmdLong,
		SilenceUsage: true,
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		f.outputDir = v.GetString("output-dir")
		f.format = v.GetString("format")
		return runReconcile(cmd, g, args, f)
	}

	cmd.Flags().BoolVar(&f.all, "all", false, "reconcile every circuit in the inventory")
	cmd.Flags().StringVar(&f.device, "device", "", "reconcile a single device by TID")
	cmd.Flags().BoolVar(&f.noRemediate, "no-remediate", false, "report only, even in remediate mode")
	cmd.Flags().String("output-dir", "", "also write each result to <dir>/<circuit>/<device>.<format>")
	cmd.Flags().String("format", "json", "output format: json or yaml")
	cmd.Flags().BoolVar(&f.failOnDirty, "fail-on-dirty", false, "exit non-zero when any device did not end clean")

	_ = v.BindPFlag("output-dir", cmd.Flags().Lookup("output-dir"))
	_ = v.BindPFlag("format", cmd.Flags().Lookup("format"))

	return cmd
}

func runReconcile(cmd *cobra.Command, g *globals, args []string, f reconcileFlags) error {
	if err := validateSelection(args, f); err != nil {
		return err
	}
	out, err := codec.ForFormat(f.format)
	if err != nil {
		return err
	}

	cfg, _, err := g.loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, appOptions{OutputDir: f.outputDir, Format: f.format})
	if err != nil {
		return err
	}
	defer a.Close()

	opts := a.opts
	if f.noRemediate {
		opts.Remediate = false
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reports []handler.ReconcileResponse
	var runErr error
	if f.device != "" {
		report, err := a.reconcileDevice(ctx, f.device, opts)
		if err != nil {
			return err
		}
		reports = []handler.ReconcileResponse{report}
	} else {
		circuits, err := a.selectCircuits(args, f.all)
		if err != nil {
			return err
		}
		reports, runErr = a.reconcileCircuits(ctx, circuits, opts)
	}

	if err := out.Encode(reports, cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	if runErr != nil {
		return runErr
	}
	if f.failOnDirty && anyDirty(reports) {
		return ErrDirtyResults
	}
	return nil
}

func validateSelection(args []string, f reconcileFlags) error {
	selectors := 0
	if len(args) > 0 {
		selectors++
	}
	if f.all {
		selectors++
	}
	if f.device != "" {
		selectors++
	}
	switch selectors {
	case 0:
		return errors.New("name at least one circuit, or use --all or --device")
	case 1:
		return nil
	default:
		return errors.New("circuit arguments, --all and --device are mutually exclusive")
	}
}

// selectCircuits resolves circuit IDs against the inventory
func (a *app) selectCircuits(ids []string, all bool) ([]domain.Circuit, error) {
	if all {
		return a.inventory.Circuits(), nil
	}
	circuits := make([]domain.Circuit, 0, len(ids))
	var unknown []string
	for _, id := range ids {
		c, ok := a.inventory.Circuit(id)
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		circuits = append(circuits, c)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown circuit(s): %s", strings.Join(unknown, ", "))
	}
	return circuits, nil
}

// reconcileDevice runs a single pass for one device of the inventory
func (a *app) reconcileDevice(ctx context.Context, tid string, opts service.PassOptions) (handler.ReconcileResponse, error) {
	circuit, device, ok := a.inventory.FindDevice(tid)
	if !ok {
		return handler.ReconcileResponse{}, fmt.Errorf("device %s is not in the inventory", tid)
	}
	start := time.Now()
	result := a.service.Reconcile(ctx, circuit, device, opts)
	results := []*domain.ReconciliationResult{result}
	return handler.ReconcileResponse{
		Summary: service.Summarize(circuit.ID, results, time.Since(start)),
		Results: results,
	}, nil
}

func anyDirty(reports []handler.ReconcileResponse) bool {
	for _, r := range reports {
		for _, res := range r.Results {
			if res == nil || !res.Clean() {
				return true
			}
		}
	}
	return false
}
