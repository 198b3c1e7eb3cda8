// Package supervisor ties page lifecycle events to controller cleanup:
// every completed navigation force-cleans the new document, so nothing the
// previous document's sessions injected or marked survives into it.
package supervisor

import (
	"context"
	"log/slog"
)

// NavigationSource reports completed navigations until ctx is done.
type NavigationSource interface {
	Navigations(ctx context.Context) <-chan struct{}
}

// Cleaner is the part of the controller the supervisor drives.
type Cleaner interface {
	ForceCleanup(ctx context.Context) error
}

// Watch calls ForceCleanup after every navigation until ctx is done.
// Cleanup errors are logged and never stop the watch.
func Watch(ctx context.Context, src NavigationSource, c Cleaner, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	navs := src.Navigations(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-navs:
			if !ok {
				return
			}
			logger.Debug("supervisor: navigation, cleaning up")
			if err := c.ForceCleanup(ctx); err != nil {
				logger.Warn("supervisor: cleanup after navigation", "error", err)
			}
		}
	}
}

// OnDisconnect runs a final ForceCleanup with a fresh context bounded by
// the cleaner's own timeout. Consumer surfaces call it when their peer goes
// away (MCP session end, HTTP shutdown, CLI exit).
func OnDisconnect(c Cleaner, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := c.ForceCleanup(context.Background()); err != nil {
		logger.Warn("supervisor: cleanup on disconnect", "error", err)
	}
}
