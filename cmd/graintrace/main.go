package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/graintrace/core/pkg/anchor"
	"github.com/graintrace/core/pkg/api"
	"github.com/graintrace/core/pkg/artifacts"
	"github.com/graintrace/core/pkg/certificate"
	"github.com/graintrace/core/pkg/config"
	"github.com/graintrace/core/pkg/ledger"
	"github.com/graintrace/core/pkg/observability"
	"github.com/graintrace/core/pkg/schema"
	"github.com/graintrace/core/pkg/store"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServe(stdout, stderr)
	}

	switch args[1] {
	case "server", "serve":
		return runServe(stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if strings.HasPrefix(args[1], "-") {
			return runServe(stdout, stderr)
		}
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "graintrace - hash-chained batch lifecycle ledger")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  graintrace serve               Start the HTTP server (default)")
	fmt.Fprintln(w, "  graintrace verify <stream-id>  Replay a stream and report integrity")
	fmt.Fprintln(w, "  graintrace help                Show this help")
}

// services holds everything the commands need after wiring.
type services struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sql.DB
	service  *ledger.Service
	compiler *certificate.Compiler
}

func (s *services) close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func buildServices(ctx context.Context) (*services, error) {
	cfg := config.Load()

	if path := os.Getenv("GRAINTRACE_PROFILE"); path != "" {
		profile, err := config.LoadProfile(path)
		if err != nil {
			return nil, err
		}
		if err := profile.Apply(cfg); err != nil {
			return nil, err
		}
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	var (
		db      *sql.DB
		blockSt ledger.Store
		err     error
	)
	switch cfg.StoreDriver {
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("ensure data dir: %w", err)
			}
		}
		db, err = sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		blockSt, err = store.NewSQLiteStore(db)
		if err != nil {
			return nil, err
		}
		logger.Info("ledger store ready", "driver", "sqlite", "path", cfg.SQLitePath)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres store requires DATABASE_URL")
		}
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
		blockSt, err = store.NewPostgresStore(db)
		if err != nil {
			return nil, err
		}
		logger.Info("ledger store ready", "driver", "postgres")
	case "memory":
		blockSt = store.NewMemoryStore()
		logger.Info("ledger store ready", "driver", "memory")
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	var cache ledger.HeadCache
	if cfg.RedisURL != "" {
		cache, err = ledger.NewRedisHeadCacheFromURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis head cache: %w", err)
		}
		logger.Info("head cache ready", "backend", "redis")
	} else {
		cache = ledger.NewMemoryHeadCache()
	}

	validator, err := schema.NewValidator()
	if err != nil {
		return nil, err
	}

	opts := []ledger.Option{
		ledger.WithValidator(validator),
		ledger.WithDuplicateWindow(cfg.DuplicateWindow),
		ledger.WithLogger(logger),
	}
	if cfg.AnchorEndpoint != "" {
		opts = append(opts, ledger.WithAnchorer(
			anchor.NewHTTPAnchorer(cfg.AnchorEndpoint, nil, logger)))
		logger.Info("anchoring enabled", "endpoint", cfg.AnchorEndpoint)
	}

	svc := ledger.NewService(blockSt, cache, opts...)

	artifactStore, err := artifacts.NewStoreFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	compiler := certificate.NewCompiler(svc, artifactStore, cfg.GatewayBase, logger)

	return &services{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		service:  svc,
		compiler: compiler,
	}, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func runServe(stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svcs, err := buildServices(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return 1
	}
	defer svcs.close()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "graintrace",
		ServiceVersion: certificate.Version,
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SampleRate:     1.0,
		Enabled:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "",
		Insecure:       os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
	})
	if err != nil {
		fmt.Fprintf(stderr, "observability init failed: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	limiter := api.NewRateLimiter(svcs.cfg.RateLimitRPS, svcs.cfg.RateLimitBurst)
	server := &http.Server{
		Addr:              ":" + svcs.cfg.Port,
		Handler:           api.NewServer(svcs.service, svcs.compiler, limiter, svcs.logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		svcs.logger.Info("server listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()
	fmt.Fprintf(stdout, "graintrace ready on :%s\n", svcs.cfg.Port)

	select {
	case <-ctx.Done():
		svcs.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			svcs.logger.Error("shutdown failed", "error", err)
			return 1
		}
		return 0
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(stderr, "server failed: %v\n", err)
			return 1
		}
		return 0
	}
}

func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: graintrace verify <stream-id>")
		return 2
	}
	streamID := fs.Arg(0)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svcs, err := buildServices(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return 1
	}
	defer svcs.close()

	obs, err := observability.New(ctx, observability.DefaultConfig())
	if err != nil {
		fmt.Fprintf(stderr, "observability init failed: %v\n", err)
		return 1
	}
	ctx, done := obs.TrackOperation(ctx, "ledger.verify",
		attribute.String("stream.id", streamID))

	report, err := svcs.service.Verify(ctx, streamID)
	done(err)
	if err != nil {
		fmt.Fprintf(stderr, "verify failed: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)

	if report.InvalidBlocks > 0 {
		return 1
	}
	return 0
}
