package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"circuitsync/internal/loader"
	"circuitsync/internal/tolerance"
	"circuitsync/internal/validate"
)

func newRulesCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect tolerance rule tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		SilenceUsage: true,
	}

	cmd.AddCommand(newRulesDumpCmd())
	cmd.AddCommand(newRulesCheckCmd(g))

	return cmd
}

func newRulesDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "dump",
		Short:        "Print the built-in tables as an editable rules file",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := loader.ExportRules(tolerance.DefaultRules(), validate.DefaultChecks(), nil)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newRulesCheckCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "check [<file>]",
		Short: "Validate a rules file",
		Long: "Parse and validate a rules file (default: rules.path from config) and list " +
			"rule pairs whose outcome depends on evaluation order.",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, _, err := g.loadConfig()
				if err != nil {
					return err
				}
				path = cfg.Rules.Path
			}
			if path == "" {
				return errors.New("no rules file given and rules.path is not set")
			}

			rs, err := loader.LoadRules(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: ok, %d scopes\n", path, rs.Tolerance.Scopes())
			for _, w := range rs.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			return nil
		},
	}
}
