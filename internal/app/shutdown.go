package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// errDrainTimeout is returned when the admin HTTP server didn't finish draining within
// its deadline, so cmd/soar/main.go's log.Fatal path exits non-zero (spec.md:186,198:
// exit 0 on clean drain, non-zero on unclean/timeout).
var errDrainTimeout = errors.New("shutdown: drain deadline exceeded")

// awaitShutdown is shared between Run and RunAggregates: it blocks on whichever happens
// first, context cancellation or the server failing on its own, and on cancellation drains
// srv within drainCtx's deadline before returning. Unlike a bare `_ = srv.Shutdown(...)`,
// the drain's outcome is what determines the returned error, not always nil. onCancel, if
// non-nil, runs once ctx.Done() fires and before the drain starts (used for logging).
func awaitShutdown(ctx context.Context, srv *http.Server, drainCtx context.Context, errCh <-chan error, onCancel func()) error {
	select {
	case <-ctx.Done():
		if onCancel != nil {
			onCancel()
		}
		shutdownErr := srv.Shutdown(drainCtx)
		<-errCh
		if shutdownErr != nil {
			if errors.Is(shutdownErr, context.DeadlineExceeded) {
				return errDrainTimeout
			}
			return fmt.Errorf("shutdown: %w", shutdownErr)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
