package main

import (
	"os"
	"os/signal"

	"github.com/spf13/pflag"
	"github.com/vizierdb/vizier/src/internal/pctx"
	"github.com/vizierdb/vizier/src/internal/signals"
	"github.com/vizierdb/vizier/src/server/cmd/vizierctl/cmd"
)

func main() {
	pflag.CommandLine = pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	// Interrupting an edit stops waiting; modules still running stay RUNNING until canceled.
	ctx, stop := signal.NotifyContext(pctx.Background("vizierctl"), signals.TerminationSignals...)
	err := cmd.VizierctlCmd(ctx).Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}
