package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/reprobox/internal/cmd"
	"github.com/felixgeelhaar/reprobox/internal/exitcode"
)

func main() {
	// Create a context that listens for interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		exitcode.Exit(exitcode.Success)
	}

	// A replayed run's status wins over the interruption that ended it.
	var status *exitcode.StatusError
	if errors.As(err, &status) {
		exitcode.Exit(status.Code)
	}

	// Check if error was due to context cancellation (e.g., Ctrl+C)
	if ctx.Err() == context.Canceled {
		fmt.Fprintln(os.Stderr, "\nOperation cancelled by user")
		exitcode.Exit(exitcode.Interrupted)
	}

	exitcode.Exit(cmd.ReportError(os.Stderr, err))
}
