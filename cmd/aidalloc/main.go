// aidalloc allocates retention funding across institutions.
//
// Usage:
//
//	aidalloc discrete --data=<csv|db> [--budget=10000000] [--tiers=0,50000,100000]
//	aidalloc strategy --data=<csv|db> --strategy=performance [--compare]
//	aidalloc compare --data=<csv|db> [--budget=50000000]
//
// Results are written to stdout as JSON or MessagePack; logs go to stderr.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for runs that produced a result without a usable
// allocation and 1 for every other failure.
func exitCode(err error) int {
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return 2
	}
	return 1
}
