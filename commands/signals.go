package commands

import (
	"context"
	"os/signal"

	"golang.org/x/sys/unix"
)

// notifyContext is cancelled on SIGINT or SIGTERM.
func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, unix.SIGINT, unix.SIGTERM)
}
