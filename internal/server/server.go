// Package server runs the HTTP listener until its context is cancelled.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/swissbasket/livedesk/logging"
)

// Options configures the HTTP server.
type Options struct {
	Listen          string
	Handler         http.Handler
	Logger          *logging.Logger
	ShutdownTimeout time.Duration
	// Listener overrides Listen when set.
	Listener net.Listener
}

// Run serves until ctx is done, then shuts down gracefully.
// It returns ctx.Err() after a clean shutdown.
func Run(ctx context.Context, opts Options) error {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	ln := opts.Listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", opts.Listen)
		if err != nil {
			return fmt.Errorf("listen %s: %w", opts.Listen, err)
		}
	}

	srv := &http.Server{
		Handler:           opts.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	opts.Logger.Info("server", "listening", map[string]any{"addr": ln.Addr().String()})

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server shutdown: %w", err)
		}
		opts.Logger.Info("server", "stopped", nil)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}
