package concurrent

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

type Func = func(context.Context) error

// RunWithTimeout runs every function in its own goroutine and waits for all
// of them. The first error cancels the shared context and is returned.
// If timeout is positive, it bounds the whole run.
func RunWithTimeout(ctx context.Context, timeout time.Duration, fs ...Func) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	g, gCtx := errgroup.WithContext(ctx)
	for _, f := range fs {
		g.Go(func() error {
			return f(gCtx)
		})
	}
	return g.Wait()
}

// Run calls RunWithTimeout without a timeout.
func Run(ctx context.Context, fs ...Func) error {
	return RunWithTimeout(ctx, 0, fs...)
}
