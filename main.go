// Command grizzpector runs the Discord interactions webhook for the Salmon Run inspector bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects the credential persistence backend (local files or Redis).
//   - Wires the Nintendo account and SplatNet 3 clients into the session manager.
//   - Serves /api/interactions, /healthz, /readyz and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM: the HTTP server stops accepting requests and
// in-flight deferred interaction work is given a bounded window to finish.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/grizzpector/config"
	"github.com/onnwee/grizzpector/nsoapi"
	"github.com/onnwee/grizzpector/persistence"
	"github.com/onnwee/grizzpector/server"
	"github.com/onnwee/grizzpector/session"
	"github.com/onnwee/grizzpector/splatnetapi"
	"github.com/onnwee/grizzpector/telemetry"
)

const deferredDrainTimeout = 15 * time.Second

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Tracing is optional; requires OTEL_EXPORTER_OTLP_ENDPOINT.
	shutdownTracing, err := telemetry.InitTracing("grizzpector", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()
	slog.Info("telemetry initialized", slog.Bool("tracing", telemetry.IsTracingEnabled()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := persistence.New(cfg)
	if err != nil {
		slog.Error("persistence setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	closeProvider, err := persistence.Connect(ctx, provider)
	if err != nil {
		slog.Error("persistence connect failed", slog.Any("err", err), slog.String("provider", cfg.PersistenceProvider))
		os.Exit(1)
	}
	defer func() {
		if err := closeProvider(); err != nil {
			slog.Error("failed to close persistence", slog.Any("err", err))
		}
	}()
	slog.Info("persistence ready", slog.String("provider", cfg.PersistenceProvider))

	manager := session.NewManager(nsoapi.New(cfg), splatnetapi.New(cfg), provider)
	store := session.NewStore(manager.Restore)

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		slog.Error("discord session setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	dg.UserAgent = cfg.UserAgent

	// Deferred work is rooted at a context that outlives the signal so the drain below can finish it.
	taskCtx, cancelTasks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelTasks()
	runner := server.NewDeferredRunner(taskCtx)

	startPprof()

	deps := server.Deps{
		PublicKey: cfg.DiscordPublicKey,
		Manager:   manager,
		Store:     store,
		Editor:    server.NewDiscordEditor(dg),
		Runner:    runner,
		Provider:  provider,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx, deps, cfg.HTTPAddr)
	})

	if err := g.Wait(); err != nil {
		slog.Error("http server exited with error", slog.Any("err", err))
	}
	slog.Info("shutting down", slog.Int("sessions", store.Len()))

	drainCtx, cancel := context.WithTimeout(context.Background(), deferredDrainTimeout)
	defer cancel()
	if err := runner.Wait(drainCtx); err != nil {
		slog.Warn("deferred tasks still running at shutdown", slog.Any("err", err))
		cancelTasks()
	}
}

// setupLogging configures the default slog logger from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

// startPprof exposes /debug/pprof on PPROF_ADDR when ENABLE_PPROF=1.
func startPprof() {
	if os.Getenv("ENABLE_PPROF") != "1" {
		return
	}
	addr := os.Getenv("PPROF_ADDR")
	if addr == "" {
		addr = "localhost:6060"
	}
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", addr))
		srv := &http.Server{
			Addr:              addr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}
