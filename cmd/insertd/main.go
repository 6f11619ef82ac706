// Package main is the entry point for the insertd server.
//
// insertd accepts JSON rows over HTTP and writes them into SQLite files,
// creating and widening tables as permitted. Configuration is read from CLI
// flags, a .env file and insertd.yaml in the data directory. insertd.yaml is
// watched; access policies and tokens are reloaded on change.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/maruel/insertd/internal/capability"
	"github.com/maruel/insertd/internal/config"
	"github.com/maruel/insertd/internal/metrics"
	"github.com/maruel/insertd/internal/metrics/datadog"
	"github.com/maruel/insertd/internal/metrics/prom"
	"github.com/maruel/insertd/internal/server"
	"github.com/maruel/insertd/internal/server/handlers"
	"github.com/maruel/insertd/internal/server/ratelimit"
	"github.com/maruel/insertd/internal/sqlitedb"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "insertd: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	printSchema := flag.Bool("print-config-schema", false, "Print the JSON Schema of insertd.yaml and exit")
	httpAddr := flag.String("http", "localhost:8001", "Address to listen on (e.g., localhost:8001, :8001, 0.0.0.0:8001)")
	dataDir := flag.String("data-dir", "./data", "Data directory holding the SQLite files and insertd.yaml")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	unsafe := flag.Bool("unsafe", false, "Allow anyone to insert, create and alter tables")
	cors := flag.Bool("cors", false, "Add permissive CORS headers")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}
	if *printSchema {
		b, err := config.Schema()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(b)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	slog.SetDefault(newLogger(ll))

	if err := os.MkdirAll(*dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	env, err := loadDotEnv(*dataDir)
	if err != nil {
		return err
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if !set["http"] {
		if v := env["HTTP"]; v != "" {
			*httpAddr = v
		}
	}
	if !set["log-level"] {
		if v := env["LOG_LEVEL"]; v != "" {
			*logLevel = v
		}
	}
	level, err := parseLogLevel(*logLevel)
	if err != nil {
		return err
	}
	ll.Set(level)

	serverCfg, err := config.Load(*dataDir)
	if err != nil {
		return err
	}
	// Flags only ever widen what the file grants.
	serverCfg.Unsafe = serverCfg.Unsafe || *unsafe
	serverCfg.CORS = serverCfg.CORS || *cors
	if serverCfg.Unsafe {
		slog.WarnContext(ctx, "Unsafe mode: every caller may insert, create and alter tables")
	}

	addr := *httpAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	registry := sqlitedb.NewRegistry(*dataDir, serverCfg.Databases, serverCfg.CreateDatabases, sqlitedb.Options{})
	defer func() {
		if err := registry.Close(); err != nil {
			slog.WarnContext(ctx, "Failed to close databases", "err", err)
		}
	}()
	gate := capability.NewGate(serverCfg.Policies()...)
	authn := serverCfg.Authenticator()

	cliUnsafe := *unsafe
	if err := config.Watch(ctx, *dataDir, func(c *config.ServerConfig) {
		c.Unsafe = c.Unsafe || cliUnsafe
		gate.Swap(c.Policies()...)
		authn.Swap(c.Tokens, c.JWTSecret)
	}); err != nil {
		return fmt.Errorf("failed to watch %s: %w", config.FileName, err)
	}

	buildVersion, _, _, _ := getBuildInfo()
	rateLimits := ratelimit.NewConfig(serverCfg.RateLimits.WriteRatePerMin, serverCfg.RateLimits.WriteBurst)
	defer rateLimits.Close()
	cfg := &server.Config{
		Version:             buildVersion,
		CORS:                serverCfg.CORS,
		MaxRequestBodyBytes: int64(serverCfg.Quotas.MaxRequestBodyBytes),
		MaxBatchRows:        serverCfg.Quotas.MaxBatchRows,
		RateLimits:          rateLimits,
	}
	closeMetrics, err := setupMetrics(ctx, &serverCfg.Metrics, env, cfg)
	if err != nil {
		return err
	}
	defer closeMetrics()

	svc := &handlers.Services{Databases: registry, Gate: gate, Auth: authn}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(svc, cfg),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server",
			"addr", addr,
			"version", buildVersion,
			"driver", sqlitedb.GetInfo().DriverType,
			"databases", strings.Join(registry.Names(), ","),
			"max_body", humanize.IBytes(uint64(cfg.MaxRequestBodyBytes)),
			"max_rows", humanize.Comma(int64(cfg.MaxBatchRows)),
			"cors", cfg.CORS,
		)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

// setupMetrics installs the configured metrics backend. The returned function
// flushes and releases it.
func setupMetrics(ctx context.Context, m *config.Metrics, env map[string]string, cfg *server.Config) (func(), error) {
	switch m.Backend {
	case "prometheus":
		b := prom.NewBackend()
		metrics.SetBackend(b)
		cfg.Metrics = b.Handler()
		slog.InfoContext(ctx, "Metrics enabled", "backend", m.Backend, "path", "/-/metrics")
		return func() { metrics.SetBackend(nil) }, nil
	case "datadog":
		tags := slices.Concat(m.Tags, datadog.ParseTagsCSV(env["DD_TAGS"]))
		b, err := datadog.NewBackend(ctx, datadog.Options{Tags: tags, FlushEvery: m.FlushInterval})
		if err != nil {
			return nil, err
		}
		metrics.SetBackend(b)
		slog.InfoContext(ctx, "Metrics enabled", "backend", m.Backend, "tags", strings.Join(tags, ","))
		return func() {
			metrics.SetBackend(nil)
			if err := b.Close(); err != nil {
				slog.WarnContext(ctx, "Failed to flush metrics", "err", err)
			}
		}, nil
	default:
		return func() {}, nil
	}
}

func newLogger(ll *slog.LevelVar) *slog.Logger {
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			if a.Key == "ip" {
				if v := a.Value.String(); v == "127.0.0.1" || v == "::1" {
					return slog.Attr{}
				}
			}
			if isZeroAttr(a.Value.Any()) {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func isZeroAttr(v any) bool {
	switch t := v.(type) {
	case string:
		return t == ""
	case bool:
		return !t
	case uint64:
		return t == 0
	case int64:
		return t == 0
	case float64:
		return t == 0
	case time.Time:
		return t.IsZero()
	case time.Duration:
		return t == 0
	case nil:
		return true
	}
	return false
}

func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q", s)
	}
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("insertd %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	fmt.Printf("  SQLite:     %s\n", sqlitedb.GetInfo().Package)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}

// loadDotEnv reads KEY=value lines from dataDir/.env. A missing file is not
// an error.
func loadDotEnv(dataDir string) (map[string]string, error) {
	env := make(map[string]string)
	content, err := os.ReadFile(filepath.Join(dataDir, ".env")) //nolint:gosec // G304: path is constructed from dataDir flag, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return nil, err
	}
	for line := range strings.SplitSeq(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if strings.HasPrefix(val, "'") || strings.HasSuffix(val, "'") {
			return nil, fmt.Errorf("single quotes are not supported in .env: %s", line)
		}
		if strings.HasPrefix(val, "\"") {
			unquoted, err := strconv.Unquote(val)
			if err != nil {
				return nil, fmt.Errorf("failed to unquote %s: %w", key, err)
			}
			val = unquoted
		}
		env[key] = val
	}
	return env, nil
}
