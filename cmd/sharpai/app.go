package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/sharpai/sharpai-go"
	"github.com/sharpai/sharpai-go/internal/config"
	"github.com/sharpai/sharpai-go/internal/events"
	"github.com/sharpai/sharpai-go/internal/journal"
)

// app is the wiring shared by every server command: logger, SDK, and
// the optional journal recording stream sessions in the background.
type app struct {
	stdout io.Writer
	stderr io.Writer
	output string

	cfg    *config.Config
	logger *slog.Logger
	sdk    *sharpai.SDK
	store  *journal.Store

	stopRecorder context.CancelFunc
	recorderDone sync.WaitGroup
}

// newApp builds the SDK from cfg. When withJournal is set and the
// journal is configured, stream sessions are recorded until Close.
func newApp(ctx context.Context, stdout, stderr io.Writer, output string, cfg *config.Config, withJournal bool) (*app, error) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(stderr, level, cfg.LogFormat)

	a := &app{
		stdout: stdout,
		stderr: stderr,
		output: output,
		cfg:    cfg,
		logger: logger,
	}

	opts := []sharpai.Option{
		sharpai.WithTimeout(cfg.Timeout),
		sharpai.WithInsecureTLS(cfg.TLSInsecureSkipVerify),
		sharpai.WithLogger(logger),
		sharpai.WithLogRequests(cfg.LogRequests),
		sharpai.WithLogResponses(cfg.LogResponses),
	}

	if withJournal && cfg.Journal.Enabled() {
		store, err := openJournal(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		a.store = store

		bus := events.New()
		rec := journal.NewRecorder(store, bus, logger.With("component", "journal"))
		opts = append(opts, sharpai.WithEvents(bus))

		// The recorder outlives ctx so sessions cut short by Ctrl-C are
		// still written; Close stops it.
		recCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a.stopRecorder = cancel
		a.recorderDone.Add(1)
		go func() {
			defer a.recorderDone.Done()
			rec.Run(recCtx)
		}()
	}

	s, err := sharpai.New(cfg.Endpoint, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.sdk = s

	logger.Debug("client ready",
		"endpoint", cfg.Endpoint,
		"timeout", cfg.Timeout,
		"journal", a.store != nil,
	)
	return a, nil
}

// openJournal opens the journal database, creating its directory.
func openJournal(path string) (*journal.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}
	store, err := journal.NewStore(path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return store, nil
}

// Close flushes the recorder and closes the journal.
func (a *app) Close() {
	if a.stopRecorder != nil {
		a.stopRecorder()
		a.recorderDone.Wait()
		a.stopRecorder = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close journal", "error", err)
		}
		a.store = nil
	}
}

// wantJSON reports whether JSON output was requested.
func (a *app) wantJSON() bool { return a.output == "json" }

// writeJSON encodes v as indented JSON on stdout.
func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
