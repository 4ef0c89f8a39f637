package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"circuitsync/internal/codec"
	"circuitsync/internal/core/bootstrap"
)

// ErrNotReady is returned by doctor when passes cannot run with the current config
var ErrNotReady = errors.New("circuitsync is not ready to run passes")

func newDoctorCmd(g *globals) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check this host and config are ready to run passes",
		Long: "Gather evidence about the host, the files the config points at and the " +
			"device credentials, then recommend a mode and the optional capabilities " +
			"that can be enabled.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
	}

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := g.loadConfig()
		if err != nil {
			return err
		}
		result, err := bootstrap.Run(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if format == "text" {
			writeDoctorText(out, result)
		} else {
			c, err := codec.ForFormat(format)
			if err != nil {
				return err
			}
			if err := c.Encode(result, out); err != nil {
				return err
			}
		}

		if !result.Report.Ready() {
			return ErrNotReady
		}
		return nil
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or yaml")

	return cmd
}

func writeDoctorText(w io.Writer, result *bootstrap.Result) {
	r := result.Report
	fmt.Fprintf(w, "Recommended mode: %s (confidence %.0f%%)\n", r.Mode, r.Confidence*100)

	for _, reason := range r.Reasons {
		fmt.Fprintf(w, "  - %s\n", reason)
	}

	names := make([]string, 0, len(r.Capabilities))
	for name := range r.Capabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "Capability %s: %t\n", name, r.Capabilities[name])
	}

	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "WARNING: %s\n", warning)
	}
	for _, problem := range r.Problems {
		fmt.Fprintf(w, "PROBLEM: %s\n", problem)
	}
	if r.Ready() {
		fmt.Fprintln(w, "Ready")
	}
}
