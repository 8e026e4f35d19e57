package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/maruel/conclave/internal/archive"
	"github.com/maruel/conclave/internal/inbox"
	"github.com/maruel/conclave/internal/server"
)

func runServe(ctx context.Context, stop context.CancelFunc, a *app) error {
	// Watch own executable for modifications (for development restarts)
	if err := watchExecutable(ctx, stop); err != nil {
		return fmt.Errorf("failed to watch executable: %w", err)
	}

	hub := server.NewHub(a.cfg.CORSOrigins)
	a.svc.ObserveMessages(hub)
	defer hub.Close()

	inboxErr := make(chan error, 1)
	if a.cfg.Inbox.Dir != "" {
		if _, err := a.svc.GetFolder(a.cfg.Inbox.FolderID); err != nil {
			return fmt.Errorf("inbox: %w", err)
		}
		w := inbox.New(a.cfg.Inbox.Dir, a.cfg.Inbox.FolderID, a.svc)
		go func() { inboxErr <- w.Run(ctx) }()
	}

	addr := a.cfg.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(a.svc, hub, &server.Options{Version: a.version, CORSOrigins: a.cfg.CORSOrigins}),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", addr, "version", a.version, "history", a.cfg.History)
		serverErr <- httpServer.ListenAndServe()
	}()

	var err error
	select {
	case err = <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		} else {
			err = fmt.Errorf("server error: %w", err)
		}
		stop()
	case err = <-inboxErr:
		if err != nil {
			err = fmt.Errorf("inbox: %w", err)
		}
		stop()
	case <-ctx.Done():
	}
	slog.InfoContext(ctx, "Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err2 := httpServer.Shutdown(shutdownCtx); err2 != nil && err == nil {
		err = fmt.Errorf("shutdown error: %w", err2)
	}
	slog.InfoContext(ctx, "Server stopped")
	return err
}

func runExport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	withAssets := fs.Bool("assets", false, "Include stored files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("unknown arguments: %v", fs.Args()[1:])
	}
	path := fs.Arg(0)
	if path == "" {
		path = archive.FileName(time.Now())
	}
	var w io.Writer = os.Stdout
	var f *os.File
	if path != "-" {
		var err error
		if f, err = os.Create(path); err != nil { //nolint:gosec // G304: path comes from the command line
			return err
		}
		w = f
	}
	m, err := a.svc.Export(ctx, w, *withAssets)
	if f != nil {
		if err2 := f.Close(); err == nil {
			err = err2
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Exported backup", "path", path, "keys", len(m.DataKeys), "assets", m.IncludesAssets)
	return nil
}

func runImport(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: conclave import <file.zip>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	res, err := a.svc.Import(ctx, f, st.Size())
	if res != nil {
		slog.InfoContext(ctx, "Imported backup", "restored", res.Restored, "total", res.Total, "files", res.Files)
	}
	return err
}

func runSchema(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown arguments: %v", args)
	}
	data, err := archive.Schema()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(data, '\n'))
	return err
}

func runHistory(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	n := fs.Int("n", 20, "Number of checkpoints to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.history == nil {
		return errors.New("history is disabled; set history: true in config.yaml")
	}
	commits, err := a.history.Log(ctx, *n)
	if err != nil {
		return err
	}
	for _, c := range commits {
		fmt.Printf("%.8s  %s  %s\n", c.Hash, c.When.Local().Format(time.DateTime), c.Message)
	}
	return nil
}

func runIngest(ctx context.Context, a *app, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: conclave ingest <folder-id> <file>...")
	}
	folderID := args[0]
	var errs []error
	for _, p := range args[1:] {
		f, err := a.svc.IngestFile(ctx, folderID, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		fmt.Printf("%s  %s  %s\n", f.ID, f.Name, f.Type)
	}
	return errors.Join(errs...)
}

// watchExecutable watches the current executable for modifications and calls
// stop to trigger graceful shutdown when detected.
func watchExecutable(ctx context.Context, stop context.CancelFunc) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(exe); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) {
					slog.InfoContext(ctx, "Executable modified, initiating shutdown")
					stop()
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching executable", "err", err)
			}
		}
	}()
	return nil
}
