package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"circuitsync/internal/codec"
	"circuitsync/internal/domain"
	"circuitsync/internal/repository"
)

func newResultsCmd(g *globals) *cobra.Command {
	var (
		circuitID string
		dirty     bool
		history   int
		format    string
	)

	cmd := &cobra.Command{
		Use:   "results [<device>]",
		Short: "Show stored reconciliation results",
		Long: "Without a device, list the last result of every device, optionally narrowed " +
			"to one circuit or to devices that did not end clean. With a device, show its " +
			"last result or, with --history, its stored passes newest first.",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		out, err := codec.ForFormat(format)
		if err != nil {
			return err
		}
		cfg, _, err := g.loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		var results []*domain.ReconciliationResult
		switch {
		case len(args) == 1 && history > 0:
			results, err = store.History(ctx, args[0], history)
		case len(args) == 1:
			var last *domain.ReconciliationResult
			last, err = store.LastResult(ctx, args[0])
			if err == nil && last == nil {
				return fmt.Errorf("no result stored for device %s", args[0])
			}
			if last != nil {
				results = []*domain.ReconciliationResult{last}
			}
		default:
			results, err = store.ListLastResults(ctx, repository.ResultFilter{CircuitID: circuitID, DirtyOnly: dirty})
		}
		if err != nil {
			return err
		}

		if results == nil {
			results = []*domain.ReconciliationResult{}
		}
		return out.Encode(results, cmd.OutOrStdout())
	}

	cmd.Flags().StringVar(&circuitID, "circuit", "", "only devices of this circuit")
	cmd.Flags().BoolVar(&dirty, "dirty", false, "only devices whose last pass did not end clean")
	cmd.Flags().IntVar(&history, "history", 0, "show up to N stored passes of the device")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")

	return cmd
}
