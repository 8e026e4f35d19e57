// Package main is the entry point for the conclave server.
//
// conclave is a local multi-agent chat workspace: project folders hold chat
// rooms populated by AI agents that answer through a configurable model
// provider. Records live as JSON documents under the data directory, files in
// a SQLite database next to them. Configuration is read from config.yaml, a
// .env file and CLI flags.
//
// Usage:
//
//	conclave [flags] [serve|export|import|schema|history|ingest] [args]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/maruel/conclave/internal/assets"
	"github.com/maruel/conclave/internal/completion"
	"github.com/maruel/conclave/internal/config"
	"github.com/maruel/conclave/internal/history"
	"github.com/maruel/conclave/internal/jsondb"
	"github.com/maruel/conclave/internal/storage"
	"github.com/maruel/conclave/internal/workspace"
)

// Layout of the data directory.
const (
	recordsDir = "records"
	assetsFile = "assets.db"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "conclave: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	httpAddr := flag.String("http", "localhost:8080", "Address to listen on (e.g., localhost:8080, :8080, 0.0.0.0:8080)")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = usage
	flag.Parse()

	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	slog.SetDefault(newLogger(ll))

	if err := os.MkdirAll(*dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	cfg, err := config.Load(*dataDir)
	if err != nil {
		return err
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	cfg.Override(set, *httpAddr, *logLevel)
	lvl, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	ll.Set(lvl)

	cmd, args := "serve", flag.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	if cmd == "schema" {
		return runSchema(args)
	}

	a, err := openApp(ctx, *dataDir, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	switch cmd {
	case "serve":
		if len(args) > 0 {
			return fmt.Errorf("unknown arguments: %v", args)
		}
		return runServe(ctx, stop, a)
	case "export":
		return runExport(ctx, a, args)
	case "import":
		return runImport(ctx, a, args)
	case "history":
		return runHistory(ctx, a, args)
	case "ingest":
		return runIngest(ctx, a, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "usage: conclave [flags] [command] [args]\n\n")
	fmt.Fprintf(out, "commands:\n")
	fmt.Fprintf(out, "  serve                       run the HTTP server (default)\n")
	fmt.Fprintf(out, "  export [-assets] [file]     write a backup archive\n")
	fmt.Fprintf(out, "  import <file>               restore a backup archive\n")
	fmt.Fprintf(out, "  schema                      print the backup JSON schema\n")
	fmt.Fprintf(out, "  history [-n N]              list recent checkpoints\n")
	fmt.Fprintf(out, "  ingest <folder-id> <file>…  store files in a folder\n\n")
	fmt.Fprintf(out, "flags:\n")
	flag.PrintDefaults()
}

func newLogger(ll *slog.LevelVar) *slog.Logger {
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			skip := false
			switch t := a.Value.Any().(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case uint64:
				skip = t == 0
			case int64:
				skip = t == 0
			case float64:
				skip = t == 0
			case time.Time:
				skip = t.IsZero()
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
}

// app holds the opened stores.
type app struct {
	cfg     *config.Config
	store   *storage.Store
	files   *assets.Store
	history *history.Repo
	svc     *workspace.Service
	version string
}

func openApp(ctx context.Context, dataDir string, cfg *config.Config) (*app, error) {
	version, _, _, _ := getBuildInfo()
	recDir := filepath.Join(dataDir, recordsDir)
	medium, err := jsondb.NewDirMedium(recDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open records: %w", err)
	}
	a := &app{cfg: cfg, store: storage.New(medium), version: version}
	if cfg.History {
		if a.history, err = history.Open(ctx, recDir); err != nil {
			return nil, err
		}
	}
	if a.files, err = assets.Open(ctx, filepath.Join(dataDir, assetsFile)); err != nil {
		return nil, err
	}
	gen := completion.New(&completion.Options{
		RequestsPerMinute: cfg.Completion.RequestsPerMinute,
		Timeout:           cfg.Completion.Timeout,
	})
	opts := &workspace.Options{AppVersion: version}
	if a.history != nil {
		opts.History = a.history
	}
	a.svc = workspace.New(a.store, a.files, gen, opts)
	return a, nil
}

func (a *app) close() {
	if err := a.files.Close(); err != nil {
		slog.Warn("Failed to close asset store", "err", err)
	}
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("conclave %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
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
