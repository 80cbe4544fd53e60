// Package main is the entry point for the eventbus host.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dshills/eventbus/internal/cli"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := cli.NewRootCmd(fmt.Sprintf("%s (commit %s, built %s)", version, commit, date))

	if err := root.ExecuteContext(context.Background()); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		return 1
	}
	return 0
}
