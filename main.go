// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/optinreach/cmd"
)

// main is the entry point for the optinreach CLI. It installs signal-aware
// cancellation so an interrupted run drains and flushes its ledger.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.ExecuteContext(ctx)
}
