// Package sigcontext ties process signals to context cancellation.
package sigcontext

import (
	"context"
	"os"
	"os/signal"
	"sync"

	"github.com/amazonlinux/bottlerocket/taskwatch/pkg/logging"
)

// WithSignalCancel returns a context that is cancelled when one of sigs is
// delivered to the process. The returned cancel releases the signal handlers
// and must be called. Once it has been called a repeated signal falls back to
// the runtime's default handling, so a second ^C terminates the process.
func WithSignalCancel(ctx context.Context, log logging.Logger, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	sigctx, ctxcancel := context.WithCancel(ctx)

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, sigs...)

	var once sync.Once
	cancel := func() {
		ctxcancel()
		once.Do(func() {
			signal.Stop(sigchan)
		})
	}

	go func() {
		select {
		case <-sigctx.Done():
		case sig := <-sigchan:
			log.WithField("signal", sig.String()).Info("received signal, shutting down")
			ctxcancel()
		}
	}()

	return sigctx, cancel
}
