package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/pitwall/pkg/logger"
)

func main() {
	// Initialize logging; fetch re-points it at the run log once the output
	// directory is known.
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(exitConfig)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Stderr.WriteString("pitwall: " + err.Error() + "\n")
		os.Exit(exitCode(err))
	}
}
