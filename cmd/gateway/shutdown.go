package main

import (
	"context"
	"errors"

	"github.com/orderflow/gateway/internal/observability"
)

// run serves until ctx is cancelled or a server fails, then shuts down.
func (a *application) run(ctx context.Context) error {
	errCh, err := a.start()
	if err != nil {
		a.release(ctx)
		return err
	}
	return a.wait(ctx, errCh)
}

// wait blocks until ctx is done or a server reports an error.
func (a *application) wait(ctx context.Context, errCh <-chan error) error {
	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("received shutdown signal")
	case serveErr = <-errCh:
		a.logger.Error("server failed", observability.Error(serveErr))
	}

	return errors.Join(serveErr, a.shutdown(ctx))
}

// shutdown drains the servers and releases the counter store and tracer.
func (a *application) shutdown(ctx context.Context) error {
	timeout := a.config.Listener.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	var errs []error

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("failed to stop gateway gracefully", observability.Error(err))
		errs = append(errs, err)
	}

	if a.metricsServer != nil {
		a.logger.Info("stopping metrics server")
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("failed to stop metrics server gracefully", observability.Error(err))
			errs = append(errs, err)
		}
	}

	a.release(shutdownCtx)
	a.logger.Info("gateway stopped")

	return errors.Join(errs...)
}

// release closes the counter store and flushes the tracer.
func (a *application) release(ctx context.Context) {
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close counter store", observability.Error(err))
	}

	if err := a.tracer.Shutdown(context.WithoutCancel(ctx)); err != nil {
		a.logger.Error("failed to shutdown tracer", observability.Error(err))
	}
}
