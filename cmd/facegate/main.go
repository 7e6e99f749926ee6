// Command facegate is the main entry point for the FaceGate enrollment and
// verification server.
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

	"github.com/biosso/facegate/internal/config"
	"github.com/biosso/facegate/internal/gateway"
	"github.com/biosso/facegate/internal/health"
	"github.com/biosso/facegate/internal/observe"
	"github.com/biosso/facegate/internal/protocol"
	"github.com/biosso/facegate/internal/resilience"
	"github.com/biosso/facegate/pkg/extract"
	"github.com/biosso/facegate/pkg/extract/remote"
	"github.com/biosso/facegate/pkg/match"
	"github.com/biosso/facegate/pkg/store"
	memstore "github.com/biosso/facegate/pkg/store/memory"
	pgstore "github.com/biosso/facegate/pkg/store/postgres"
)

// defaultDimensions matches the deployed face model's embedding size.
const defaultDimensions = 512

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "facegate: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "facegate: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("facegate starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	obsShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "facegate"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := obsShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Extractor ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinExtractors(reg)

	extractor, err := buildExtractor(cfg, reg)
	if err != nil {
		slog.Error("failed to build extractor", "err", err)
		return 1
	}
	extractor = observe.InstrumentExtractor(extractor, metrics)

	// ── Store ─────────────────────────────────────────────────────────────────
	st, storeChecker, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise embedding store", "err", err)
		return 1
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("store close error", "err", err)
		}
	}()

	// ── Pipeline and gateway ──────────────────────────────────────────────────
	matcher := match.New(cfg.Match.AcceptThreshold)
	pipeline := protocol.NewPipeline(extractor, st, matcher, nil)

	gw := gateway.New(pipeline,
		gateway.WithMetrics(metrics),
		gateway.WithMaxImageBytes(cfg.Gateway.MaxImageBytes),
		gateway.WithFrameLimits(cfg.Gateway.FrameMinWidth, cfg.Gateway.FrameMinHeight),
		gateway.WithFeedbackLimit(cfg.Gateway.FeedbackRate, cfg.Gateway.FeedbackBurst),
		gateway.WithIdleTimeout(time.Duration(cfg.Gateway.IdleTimeoutSeconds)*time.Second),
	)

	mux := http.NewServeMux()
	gw.Register(mux)
	health.New(storeChecker).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observe.Middleware(metrics)(mux),
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyReload(config.Diff(old, new), logLevel, matcher, gw)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	printStartupSummary(cfg, matcher.Threshold())
	slog.Info("server ready — press Ctrl+C to shut down")

	// ── Serve until signalled ─────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Extractor wiring ──────────────────────────────────────────────────────────

// registerBuiltinExtractors wires the extractor factories that ship with
// FaceGate into reg.
func registerBuiltinExtractors(reg *config.Registry) {
	reg.RegisterExtractor("remote", func(cfg config.ExtractorConfig) (extract.Provider, error) {
		dims := cfg.Dimensions
		if dims <= 0 {
			dims = defaultDimensions
		}
		var opts []remote.Option
		if cfg.TimeoutSeconds > 0 {
			opts = append(opts, remote.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
		}
		return remote.New(cfg.BaseURL, cfg.Model, dims, opts...)
	})
}

// buildExtractor instantiates the configured extractor and wraps it in a
// circuit breaker so a failing inference sidecar cannot cascade into every
// connection.
func buildExtractor(cfg *config.Config, reg *config.Registry) (extract.Provider, error) {
	name := cfg.Extractor.Name
	if name == "" {
		name = "remote"
	}
	ec := cfg.Extractor
	ec.Name = name

	p, err := reg.CreateExtractor(ec)
	if err != nil {
		return nil, fmt.Errorf("create extractor %q: %w", name, err)
	}
	slog.Info("extractor created", "name", name, "model", p.ModelID(), "dimensions", p.Dimensions())

	return resilience.NewExtractorFallback(p, name, resilience.FallbackConfig{}), nil
}

// buildStore instantiates the configured embedding store and a matching
// readiness checker.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, health.Checker, error) {
	dims := cfg.Extractor.Dimensions
	if dims <= 0 {
		dims = defaultDimensions
	}

	switch cfg.Store.Driver {
	case config.StorePostgres:
		st, err := pgstore.NewStore(ctx, cfg.Store.PostgresDSN, dims)
		if err != nil {
			return nil, health.Checker{}, err
		}
		slog.Info("store initialised", "driver", "postgres", "dimensions", dims)
		return st, health.Checker{Name: "store", Check: st.Ping}, nil

	case config.StoreMemory, "":
		slog.Info("store initialised", "driver", "memory")
		return memstore.New(), health.Checker{
			Name:  "store",
			Check: func(context.Context) error { return nil },
		}, nil

	default:
		return nil, health.Checker{}, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// ── Config hot reload ─────────────────────────────────────────────────────────

// applyReload applies the hot-reloadable parts of a config change and logs
// everything that needs a restart.
func applyReload(d config.ConfigDiff, logLevel *slog.LevelVar, matcher *match.Matcher, gw *gateway.Server) {
	if d.LogLevelChanged {
		logLevel.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level updated", "log_level", d.NewLogLevel)
	}
	if d.ThresholdChanged {
		matcher.SetThreshold(d.NewThreshold)
		slog.Info("accept threshold updated", "accept_threshold", matcher.Threshold())
	}
	if d.FrameLimitsChanged {
		gw.SetFrameLimits(d.NewFrameMinWidth, d.NewFrameMinHeight)
		slog.Info("frame quality limits updated",
			"min_width", d.NewFrameMinWidth, "min_height", d.NewFrameMinHeight)
	}
	for _, section := range d.RestartRequired {
		slog.Warn("config change requires a restart to take effect", "section", section)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, threshold float64) {
	extractorName := cfg.Extractor.Name
	if extractorName == "" {
		extractorName = "remote"
	}
	if cfg.Extractor.Model != "" {
		extractorName += " / " + cfg.Extractor.Model
	}
	driver := string(cfg.Store.Driver)
	if driver == "" {
		driver = "memory"
	}

	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║        FaceGate — startup summary        ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	printSummaryRow("Extractor", extractorName)
	printSummaryRow("Store", driver)
	printSummaryRow("Threshold", fmt.Sprintf("%.2f", threshold))
	if cfg.Server.ListenAddr != "" {
		printSummaryRow("Listen addr", cfg.Server.ListenAddr)
	}
	if cfg.Server.TLS != nil {
		printSummaryRow("TLS", "enabled")
	}
	fmt.Println("╚══════════════════════════════════════════╝")
}

func printSummaryRow(label, value string) {
	if len(value) > 24 {
		value = value[:21] + "…"
	}
	fmt.Printf("║  %-12s : %-24s ║\n", label, value)
}

// ── Logger ────────────────────────────────────────────────────────────────────

// newLogger builds the process logger. The returned [slog.LevelVar] allows the
// level to be changed at runtime by the config watcher.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
