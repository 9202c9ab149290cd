package main

import (
	"fmt"
	"io"
	"os"

	"imgstore/internal/api"
	"imgstore/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

// Exit statuses. A missing image or owner gets its own status so scripts can
// tell "nothing there" from a failure.
const (
	exitOK       = 0
	exitFailure  = 1
	exitNotFound = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return exitFailure
	}
	if cfg.TrustedProjectConfigPath != "" {
		fmt.Fprintf(stderr, "warning: using trusted project config from %s\n", cfg.TrustedProjectConfigPath)
	}

	root := newRootCmd(cfg)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		for _, line := range formatCLIError(err) {
			fmt.Fprintln(stderr, line)
		}
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case api.IsNotFound(err):
		return exitNotFound
	default:
		return exitFailure
	}
}
