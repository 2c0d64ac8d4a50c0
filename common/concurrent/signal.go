package concurrent

import (
	"context"
	"os"
	"os/signal"

	"github.com/hearthvm/hearth/common/logging"
)

var logger = logging.NewLogger("signal")

// OnSignal calls f when one of the expected signals arrives, then returns.
// If the context is canceled first, OnSignal returns without calling f.
//
// For graceful termination, run it in its own goroutine with the main
// context's cancel function:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	go OnSignal(ctx, cancel, syscall.SIGINT, syscall.SIGTERM)
func OnSignal(ctx context.Context, f func(), sigs ...os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	defer signal.Stop(ch)

	select {
	case sig := <-ch:
		logger.Warn().Msgf("Caught signal %s", sig)
		f()
	case <-ctx.Done():
	}
}
