// smart-image-editor composes promotional banners: a background image,
// one or more logos and styled text laid out by a template.
//
// It runs as an HTTP service with a live editor session, or renders a
// single request from the command line.
//
// Usage:
//
//	smart-image-editor [flags]
//
// Flags:
//
//	-config string    Path to configuration file (default: XDG search)
//	-serve            Run the HTTP API
//	-addr string      Listen address override for -serve
//	-request string   Render the JSON request in this file
//	-out string       Write the rendered JPEG here (with -request)
//	-preview          Show the rendered banner in the terminal (with -request)
//	-list-templates   Print the template catalog and exit
//	-verbose          Enable debug logging
//	-version          Print version and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"

	"github.com/mrt-jh/smart-image-editor/pkg/config"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath    = flag.String("config", "", "Path to configuration file")
		serve         = flag.Bool("serve", false, "Run the HTTP API")
		addr          = flag.String("addr", "", "Listen address override (with -serve)")
		requestPath   = flag.String("request", "", "Render the JSON request in this file")
		outPath       = flag.String("out", "", "Write the rendered JPEG to this path (with -request)")
		preview       = flag.Bool("preview", false, "Show the rendered banner in the terminal (with -request)")
		listTemplates = flag.Bool("list-templates", false, "Print the template catalog and exit")
		verbose       = flag.Bool("verbose", false, "Enable verbose logging")
		showVersion   = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("smart-image-editor %s (%s) built %s\n", version, commit, date)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		if cfg.Server.PublicURL == "http://localhost"+cfg.Server.Addr {
			cfg.Server.PublicURL = "http://localhost" + *addr
		}
		cfg.Server.Addr = *addr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := newLogger(cfg.General, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *listTemplates:
		err = runListTemplates(os.Stdout, cfg)
	case *serve:
		err = runServe(ctx, cfg, logger)
	case *requestPath != "":
		if *outPath == "" && !*preview {
			*preview = true
		}
		err = runRequest(ctx, cfg, logger, *requestPath, *outPath, *preview)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromFile(path)
}

// newLogger builds the process logger: text on a terminal, JSON otherwise,
// copied to the configured log file when there is one. The returned
// function closes the log file.
func newLogger(g config.GeneralConfig, verbose bool) (*slog.Logger, func(), error) {
	level := parseLevel(g.LogLevel)
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if g.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(g.LogFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(g.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closeFn = func() { _ = f.Close() }
	}

	var h slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h), closeFn, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
