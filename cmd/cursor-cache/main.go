// Command cursor-cache previews Windows cursor libraries: it serves cached
// previews over HTTP, renders single cursors, and browses a directory in
// the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	cursorcache "github.com/wolfeidau/cursor-cache"
	"github.com/wolfeidau/cursor-cache/backend"
	"github.com/wolfeidau/cursor-cache/internal/config"
	"github.com/wolfeidau/cursor-cache/internal/tui"
	"github.com/wolfeidau/cursor-cache/playback"
	"github.com/wolfeidau/cursor-cache/preview"
	"github.com/wolfeidau/cursor-cache/registry"
	"github.com/wolfeidau/cursor-cache/server"
	"github.com/wolfeidau/cursor-cache/store/s3fifo"
	"github.com/wolfeidau/cursor-cache/telemetry"
)

var version = "dev"

// Globals are flags shared by every command.
type Globals struct {
	Config    string `help:"Path to the YAML config file." default:"cursor-cache.yaml" env:"CURSOR_CACHE_CONFIG" type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error). Overrides the config file."`
	LogFormat string `help:"Log format (auto, text, json). Overrides the config file."`
}

// CLI is the top-level command structure for cursor-cache.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version." short:"V"`
	Serve   ServeCmd         `cmd:"" help:"Serve cursor previews over HTTP."`
	Render  RenderCmd        `cmd:"" help:"Render one cursor preview to stdout or a file."`
	Browse  BrowseCmd        `cmd:"" help:"Browse a cursor directory in the terminal."`
}

// ServeCmd runs the HTTP preview server.
type ServeCmd struct {
	Address        string   `help:"Address to listen on. Overrides the config file."`
	MaxConnections int      `help:"Maximum concurrent connections (0 = config value)."`
	Root           []string `help:"Library root; restricts served paths and is preloaded on start."`
	Preload        bool     `help:"Preload every cursor under the library roots on start." default:"true" negatable:""`
	Prometheus     bool     `help:"Expose Prometheus metrics on /metrics."`
	OTLPEndpoint   string   `help:"OTLP gRPC endpoint for metrics export." name:"otlp-endpoint"`
}

// Run starts the server and blocks until SIGINT or SIGTERM.
func (s *ServeCmd) Run(g *Globals) error {
	cfg, logger, err := setup(g, os.Stderr)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	if s.Address != "" {
		cfg.Server.Address = s.Address
	}
	if s.MaxConnections > 0 {
		cfg.Server.MaxConnections = s.MaxConnections
	}
	if len(s.Root) > 0 {
		cfg.Server.LibraryRoots = s.Root
	}
	if s.Prometheus {
		cfg.Telemetry.EnablePrometheus = true
	}
	if s.OTLPEndpoint != "" {
		cfg.Telemetry.OTLPEndpoint = s.OTLPEndpoint
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricsConfig{
		ServiceName:      "cursor-cache",
		ServiceVersion:   version,
		OTLPEndpoint:     cfg.Telemetry.OTLPEndpoint,
		EnablePrometheus: cfg.Telemetry.EnablePrometheus,
		FlushInterval:    cfg.Telemetry.FlushInterval,
	})
	if err != nil {
		return fmt.Errorf("serve: initialising metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	}()

	resolver := newResolver(cfg, logger)

	srv, err := server.New(server.Config{
		Address:        cfg.Server.Address,
		MaxConnections: cfg.Server.MaxConnections,
		LibraryRoots:   cfg.Server.LibraryRoots,
		Logger:         logger,
	}, resolver)
	if err != nil {
		return fmt.Errorf("serve: creating server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	logger.Info("server started",
		"address", srv.Address(),
		"roots", cfg.Server.LibraryRoots,
		"prometheus", cfg.Telemetry.EnablePrometheus,
	)

	if s.Preload {
		preloadRoots(ctx, resolver, cfg.Server.LibraryRoots, logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// preloadRoots warms the caches with every cursor under roots without
// waiting for the work to finish.
func preloadRoots(ctx context.Context, resolver *preview.Resolver, roots []string, logger *slog.Logger) {
	var descs []cursorcache.Descriptor
	for _, root := range roots {
		found, err := cursorcache.ScanLibrary(root)
		if err != nil {
			logger.Warn("scanning library root failed", "root", root, "error", err)
			continue
		}
		descs = append(descs, found...)
	}
	if len(descs) == 0 {
		return
	}
	done := resolver.PreloadAsync(ctx, descs)
	go func() {
		stats, ok := <-done
		if ok {
			logger.Info("startup preload finished",
				"loaded", stats.Loaded,
				"failed", stats.Failed,
				"skipped", stats.Skipped,
			)
		}
	}()
}

// RenderCmd renders a single preview.
type RenderCmd struct {
	Path   string `arg:"" optional:"" help:"Cursor file to render." type:"path"`
	System string `help:"Render a system cursor by name instead of a file."`
	Format string `help:"Output format." enum:"png,dataurl" default:"png"`
	Output string `help:"Write to this file instead of stdout." short:"o" type:"path"`
}

// Run renders the cursor and writes it out.
func (r *RenderCmd) Run(g *Globals) error {
	cfg, logger, err := setup(g, os.Stderr)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	var w io.Writer = os.Stdout
	if r.Output != "" {
		f, err := os.Create(r.Output)
		if err != nil {
			return fmt.Errorf("render: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	} else if r.Format == "png" && isTerminal(os.Stdout) {
		return errors.New("render: refusing to write PNG to a terminal; use --output or --format=dataurl")
	}

	return r.run(context.Background(), w, newResolver(cfg, logger))
}

func (r *RenderCmd) run(ctx context.Context, w io.Writer, resolver *preview.Resolver) error {
	var desc cursorcache.Descriptor
	switch {
	case r.System != "" && r.Path != "":
		return errors.New("render: give either a path or --system, not both")
	case r.System != "":
		desc = cursorcache.SystemCursor(r.System)
	case r.Path != "":
		desc = cursorcache.FileCursor(r.Path)
	default:
		return errors.New("render: a path or --system name is required")
	}

	url, err := resolver.ResolvePreview(ctx, desc)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	if r.Format == "dataurl" {
		_, err = fmt.Fprintln(w, url)
		return err
	}

	_, data, err := url.Decode()
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// BrowseCmd opens the terminal browser.
type BrowseCmd struct {
	Dir     string `arg:"" help:"Directory of cursor files." type:"existingdir"`
	System  bool   `help:"Also show the built-in system cursors."`
	Cells   int    `help:"Preview width in terminal cells." default:"16"`
	LogFile string `help:"Write logs to this file; logging is discarded otherwise." type:"path"`
}

// Run scans the directory and runs the TUI until the user quits.
func (b *BrowseCmd) Run(g *Globals) error {
	if !isTerminal(os.Stdout) {
		return errors.New("browse: requires a terminal (TTY)")
	}

	logOut := io.Discard
	if b.LogFile != "" {
		f, err := os.OpenFile(b.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("browse: %w", err)
		}
		defer func() { _ = f.Close() }()
		logOut = f
	}

	cfg, logger, err := setup(g, logOut)
	if err != nil {
		return fmt.Errorf("browse: %w", err)
	}

	descs, err := cursorcache.ScanLibrary(b.Dir)
	if err != nil {
		return fmt.Errorf("browse: %w", err)
	}
	if b.System {
		for _, name := range backend.SystemCursorNames() {
			descs = append(descs, cursorcache.SystemCursor(name))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	resolver := newResolver(cfg, logger)
	model := tui.NewModel(ctx, resolver, descs, tui.Options{
		Cells:           b.Cells,
		RefreshInterval: cfg.Playback.RefreshInterval,
		PlayerOptions:   []playback.Option{playback.WithCarryRemainder(cfg.Playback.CarryRemainder)},
		Title:           b.Dir,
		Logger:          logger,
	})
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("browse: %w", err)
	}
	return nil
}

// setup loads the config, applies environment and flag overrides, and
// builds the logger.
func setup(g *Globals, logOut io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, nil, err
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Log.Format = g.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := newLogger(logOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newLogger builds a slog logger. The "auto" format picks colored tint
// output on a terminal and plain text otherwise.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "auto":
		if f, ok := w.(*os.File); ok && isTerminal(f) {
			handler = tint.NewHandler(w, &tint.Options{Level: lvl, TimeFormat: time.Kitchen})
		} else {
			handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
		}
	case "text":
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	return slog.New(handler), nil
}

// newResolver wires the native backend, optional S3-FIFO bounds and the
// optional failure TTL into a Resolver.
func newResolver(cfg *config.Config, logger *slog.Logger) *preview.Resolver {
	native := backend.NewNative(backend.Config{
		PreviewSize:      cfg.Backend.PreviewSize,
		MaxFileSize:      cfg.Backend.MaxFileSize,
		SystemCursorDirs: cfg.Backend.SystemCursorDirs,
		Logger:           logger,
	})
	b := backend.NewInstrumentedBackend(native, "native")

	return preview.NewResolver(b,
		preview.WithLogger(logger),
		preview.WithPreloadLimit(cfg.Preload.Limit),
		preview.WithStaticRegistryOptions(registryOptions("static", cfg.Cache.Static, cfg.Cache.FailureTTL, logger)...),
		preview.WithAnimatedRegistryOptions(registryOptions("animated", cfg.Cache.Animated, cfg.Cache.FailureTTL, logger)...),
	)
}

func registryOptions(name string, limits config.Limits, failureTTL time.Duration, logger *slog.Logger) []registry.Option {
	opts := []registry.Option{registry.WithFailureTTL(failureTTL)}
	if limits.Bounded() {
		opts = append(opts, registry.WithPolicy(s3fifo.NewManager(s3fifo.Config{
			Name:       name,
			MaxBytes:   limits.MaxBytes,
			MaxEntries: limits.MaxEntries,
			Logger:     logger,
		})))
	}
	return opts
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("cursor-cache"),
		kong.Description("Cursor preview cache, server and browser."),
		kong.Vars{"version": version},
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
