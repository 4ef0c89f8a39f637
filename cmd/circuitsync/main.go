// Command circuitsync reconciles designed circuit configuration against the
// configuration observed on live devices.
package main

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"circuitsync/internal/cli"
)

// Set with -ldflags at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	exitCode := runSafely(os.Args[1:], runWithArgs, os.Stderr)

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func runSafely(args []string, runner func([]string) int, errWriter io.Writer) (exitCode int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(errWriter, "panic recovered: %v\n%s", r, debug.Stack())
			exitCode = 1
		}
	}()

	return runner(args)
}

func runWithArgs(args []string) int {
	rootCmd := cli.NewRootCmd(version, commit, date)
	rootCmd.SetArgs(args)

	if err := cli.Execute(rootCmd); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "error: %v\n", err)
		return 1
	}

	return 0
}
