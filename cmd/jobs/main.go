// Command jobs runs one scheduled job and exits. It is intended to be
// invoked by an external cron, not as an in-process goroutine.
//
// Exit codes: 0 = success, 1 = error or a job that reported failures.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
