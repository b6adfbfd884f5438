package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// Run starts the workers, the health monitor, the dispatcher and the HTTP
// server, and blocks until ctx is cancelled or the server fails. Everything
// is stopped and released before Run returns.
func (app *application) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", app.config.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		app.cleanup()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return app.serve(ctx, ln)
}

func (app *application) serve(ctx context.Context, ln net.Listener) error {
	defer app.cleanup()

	server := &http.Server{
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	app.workers.Start()

	var background sync.WaitGroup
	background.Add(2)
	go func() {
		defer background.Done()
		app.monitor.Run(runCtx)
	}()
	go func() {
		defer background.Done()
		app.dispatcher.Run(runCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", slog.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info("shutting down server")
	case err := <-serveErr:
		if err != nil {
			app.logger.Error("server failed", slog.Any("error", err))
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", slog.Any("error", err))
		runErr = errors.Join(runErr, fmt.Errorf("server shutdown failed: %w", err))
	}

	// No new dispatches once the loop is down; queued sends get the rest of
	// the shutdown budget.
	cancel()
	background.Wait()
	app.queue.Close()
	app.drainQueue(shutdownCtx)
	app.workers.Stop()

	app.logger.Info("server shutdown completed")
	return runErr
}

// drainQueue waits for queued notification tasks to be picked up or for ctx
// to expire.
func (app *application) drainQueue(ctx context.Context) {
	for app.queue.Len() > 0 {
		select {
		case <-ctx.Done():
			app.logger.Warn("dropping queued notifications at shutdown", slog.Int("queued", app.queue.Len()))
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}
