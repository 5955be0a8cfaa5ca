// Package signals wires OS signal delivery to graceful shutdown of the
// daemon's background goroutines.
package signals

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// NotifyContext returns a context canceled when SIGTERM or SIGINT is
// received, along with the stop func the caller must defer to release the
// underlying signal.Notify registration.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
}

// Raw subscribes chan os.Signal directly, used by callers that need to
// distinguish the specific signal received (e.g. for shutdown-reason
// logging) rather than a plain context cancellation.
func Raw() chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	return ch
}
