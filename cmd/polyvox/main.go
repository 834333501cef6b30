// Command polyvox is the Polyvox realtime transcription server.
//
// It serves a WebSocket ingress for speaker audio, runs the per-session
// transcription pipeline against the configured speech provider, persists
// accepted segments to PostgreSQL, and exposes Prometheus metrics plus
// health endpoints on a separate observability listener.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/polyvox/internal/config"
	"github.com/MrWong99/polyvox/internal/health"
	"github.com/MrWong99/polyvox/internal/observe"
	"github.com/MrWong99/polyvox/internal/pipeline"
	"github.com/MrWong99/polyvox/internal/resilience"
	"github.com/MrWong99/polyvox/internal/store/postgres"
	"github.com/MrWong99/polyvox/internal/transport"
	"github.com/MrWong99/polyvox/pkg/provider/speech"
	oaispeech "github.com/MrWong99/polyvox/pkg/provider/speech/openai"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "polyvox: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "polyvox: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("polyvox starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"metrics_addr", cfg.Server.MetricsAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "polyvox"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// --- Speech provider ---
	provider, guard := buildProvider(cfg)
	if provider == nil {
		slog.Warn("no speech provider configured — transcription disabled")
	}

	// --- Transcript store ---
	var persister pipeline.Persister
	var store *postgres.Store
	if cfg.Store.PostgresDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			slog.Error("failed to open transcript store", "err", err)
			return 1
		}
		defer store.Close()
		persister = store
		slog.Info("transcript store connected")
	} else {
		slog.Warn("no postgres_dsn configured — transcript persistence disabled")
	}

	// --- Pipeline ---
	manager := pipeline.NewManager(pipeline.ManagerConfig{
		Pipeline:  &cfg.Pipeline,
		Provider:  provider,
		Persister: persister,
		Logger:    logger,
	})

	// --- HTTP servers ---
	ingressMux := http.NewServeMux()
	ingressMux.Handle("/ws", transport.NewServer(manager, logger))
	ingress := &http.Server{Addr: cfg.Server.ListenAddr, Handler: ingressMux}

	var obsServer *http.Server
	if cfg.Server.MetricsAddr != "" {
		obsMux := http.NewServeMux()
		obsMux.Handle("GET /metrics", promhttp.Handler())
		newHealthHandler(store, guard).Register(obsMux)
		obsServer = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: obsMux}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("websocket ingress listening", "addr", cfg.Server.ListenAddr)
		if err := ingress.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ingress: %w", err)
		}
		return nil
	})
	if obsServer != nil {
		g.Go(func() error {
			slog.Info("observability endpoint listening", "addr", cfg.Server.MetricsAddr)
			if err := obsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("observability: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	slog.Info("server ready — press Ctrl+C to shut down")
	runErr := g.Wait()

	// --- Graceful shutdown ---
	slog.Info("shutting down…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop accepting connections first, then drain live sessions.
	if err := ingress.Shutdown(shutdownCtx); err != nil {
		slog.Warn("ingress shutdown error", "err", err)
	}
	if obsServer != nil {
		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("observability shutdown error", "err", err)
		}
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		slog.Error("session drain error", "err", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildProvider constructs the configured speech provider wrapped in circuit
// breakers. Returns (nil, nil) when transcription is unconfigured.
func buildProvider(cfg *config.Config) (speech.Provider, *resilience.GuardedProvider) {
	if cfg.Provider.Name != "openai" || cfg.Provider.APIKey == "" {
		return nil, nil
	}

	var opts []oaispeech.Option
	if cfg.Provider.BaseURL != "" {
		opts = append(opts, oaispeech.WithBaseURL(cfg.Provider.BaseURL))
	}
	if cfg.Provider.STTModel != "" {
		opts = append(opts, oaispeech.WithSTTModel(cfg.Provider.STTModel))
	}
	if cfg.Provider.TranslateModel != "" {
		opts = append(opts, oaispeech.WithTranslateModel(cfg.Provider.TranslateModel))
	}
	if d := cfg.Provider.RequestTimeout(); d > 0 {
		opts = append(opts, oaispeech.WithTimeout(d))
	}

	inner, err := oaispeech.New(cfg.Provider.APIKey, opts...)
	if err != nil {
		slog.Warn("speech provider unavailable", "err", err)
		return nil, nil
	}
	slog.Info("speech provider created",
		"name", cfg.Provider.Name,
		"stt_model", cfg.Provider.STTModel,
		"translate_model", cfg.Provider.TranslateModel)

	guard := resilience.Guard(inner, resilience.CircuitBreakerConfig{Name: "speech"})
	return guard, guard
}

// newHealthHandler wires readiness probes for whichever collaborators exist.
func newHealthHandler(store *postgres.Store, guard *resilience.GuardedProvider) *health.Handler {
	var probes []health.Probe
	if store != nil {
		probes = append(probes, health.Probe{Name: "database", Check: store.Ping})
	}
	if guard != nil {
		probes = append(probes, health.Probe{
			Name: "provider",
			Check: func(context.Context) error {
				if guard.TranscribeState() == resilience.StateOpen {
					return errors.New("transcription circuit open")
				}
				return nil
			},
		})
	}
	return health.New(probes...)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
