package server

import (
	"chat-relay/contract"
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

var _ contract.Worker = (*HTTPWorker)(nil)

// CreateServer creates an HTTP server with production timeouts.
// Websocket sessions are hijacked and manage their own deadlines.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Drainer closes long-lived sessions the HTTP server does not track.
type Drainer interface {
	Shutdown(ctx context.Context)
}

// HTTPWorker serves until its context is canceled, then shuts down gracefully.
type HTTPWorker struct {
	log             *slog.Logger
	server          *http.Server
	drainer         Drainer
	shutdownTimeout time.Duration
}

func NewHTTPWorker(log *slog.Logger, server *http.Server, drainer Drainer, shutdownTimeout time.Duration) *HTTPWorker {
	return &HTTPWorker{log: log, server: server, drainer: drainer, shutdownTimeout: shutdownTimeout}
}

func (w *HTTPWorker) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		w.log.Info(fmt.Sprintf("Server listening on %s", w.server.Addr))
		errChan <- w.server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if goerrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	w.log.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
	defer cancel()
	if err := w.server.Shutdown(shutdownCtx); err != nil {
		w.log.Warn("HTTP server shutdown error", "error", err)
	}
	if w.drainer != nil {
		w.drainer.Shutdown(shutdownCtx)
	}
	w.log.Info("HTTP server shutdown completed")
	return nil
}
