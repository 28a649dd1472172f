package controller

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// AddShutdownHook registers a function to be called during graceful shutdown.
// Hooks are executed in the order they were added.
func (c *Controller) AddShutdownHook(hook ShutdownHook) {
	c.shutdownHooks = append(c.shutdownHooks, hook)
}

// SetLogFlushFunc sets the function used to flush pending log writes.
// This is called with a timeout during shutdown to ensure logs are persisted.
func (c *Controller) SetLogFlushFunc(fn func() error) {
	c.logFlushFn = fn
}

// Done is closed once shutdown has started.
func (c *Controller) Done() <-chan struct{} {
	return c.shutdownCh
}

// setupSignalHandler returns a context cancelled on SIGTERM or SIGINT.
func (c *Controller) setupSignalHandler(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-sigCh:
			c.logInfo("Received signal %v, initiating graceful shutdown", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// gracefulShutdown performs a controlled shutdown sequence:
// 1. Flush pending log writes (with timeout)
// 2. Run registered shutdown hooks
// 3. Close event sinks and clients
func (c *Controller) gracefulShutdown() {
	c.shutdownOnce.Do(func() {
		close(c.shutdownCh)
		c.logInfo("Initiating graceful shutdown at anchor %s after round %d", c.state.Anchor, c.state.Round)

		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		c.flushLogs(ctx)
		c.runShutdownHooks(ctx)

		for _, sink := range c.sinks {
			if err := sink.Close(); err != nil {
				c.logWarning("failed to close event sink: %v", err)
			}
		}
		if c.metadataUpdater != nil {
			if err := c.metadataUpdater.Close(); err != nil {
				c.logWarning("failed to close metadata updater: %v", err)
			}
		}
		if c.secretManager != nil {
			if err := c.secretManager.Close(); err != nil {
				c.logWarning("failed to close Secret Manager client: %v", err)
			}
		}

		c.logInfo("Graceful shutdown complete")

		if c.cloudLogger != nil {
			if err := c.cloudLogger.Close(); err != nil {
				c.logger.Printf("Warning: failed to close cloud logger: %v", err)
			}
		}
	})
}

// flushLogs ensures all pending log writes are sent before shutdown.
// It uses a timeout to prevent blocking indefinitely on log flush.
func (c *Controller) flushLogs(ctx context.Context) {
	if c.logFlushFn == nil {
		return
	}

	flushCtx, cancel := context.WithTimeout(ctx, LogFlushTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.logFlushFn()
	}()

	select {
	case err := <-done:
		if err != nil {
			c.logWarning("log flush completed with error: %v", err)
		}
	case <-flushCtx.Done():
		c.logWarning("log flush timed out, some logs may be lost")
	}
}

// runShutdownHooks executes all registered shutdown hooks in order.
// Each hook receives the shutdown context and should respect cancellation.
func (c *Controller) runShutdownHooks(ctx context.Context) {
	if len(c.shutdownHooks) == 0 {
		return
	}

	c.logInfo("Running %d shutdown hooks", len(c.shutdownHooks))

	for i, hook := range c.shutdownHooks {
		select {
		case <-ctx.Done():
			c.logWarning("shutdown timeout reached, skipping remaining %d hooks", len(c.shutdownHooks)-i)
			return
		default:
		}

		if err := hook(ctx); err != nil {
			c.logWarning("shutdown hook %d failed: %v", i+1, err)
		}
	}
}
