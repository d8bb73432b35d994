// Package server exposes the HTTP surface of the bot: the signed interactions webhook,
// health probes, and metrics. It injects correlation IDs into request contexts and
// carries them into deferred interaction work for consistent logging.
package server

import (
	"context"
	"crypto/ed25519"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/grizzpector/persistence"
	"github.com/onnwee/grizzpector/session"
)

// InteractionsPath is the webhook endpoint registered with Discord.
const InteractionsPath = "/api/interactions"

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	PublicKey ed25519.PublicKey
	Manager   *session.Manager
	Store     *session.Store
	Editor    ResponseEditor
	Runner    *DeferredRunner
	Provider  persistence.Provider
}

// NewMux returns the HTTP handler with all routes.
func NewMux(ctx context.Context, deps Deps) http.Handler {
	handlers := NewHandlers(ctx, deps)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", handlers.HandleHealthz)
	mux.HandleFunc("/readyz", handlers.HandleReadyz)
	mux.Handle(InteractionsPath, verifySignature(http.HandlerFunc(handlers.HandleInteractions), deps.PublicKey))

	return withCorrelation(mux)
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, deps Deps, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(ctx, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// WithoutCancel keeps context values but lets shutdown run to completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr), slog.String("component", "http"))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
