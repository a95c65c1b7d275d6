// Package logger holds the process-wide structured logger.
//
// Components take an optional *slog.Logger in their options and resolve it
// with For. A nil logger follows the process logger, so subsystems built
// before Init still log through whatever Init installs.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	logPrefix     = "guestkit-"
	logSuffix     = ".log"
	logDateLayout = "2006-01-02"
	retentionDays = 30
)

var (
	current atomic.Pointer[slog.Logger]

	fileMu sync.Mutex
	file   *os.File // open log file of the current logger, if any
)

func init() {
	current.Store(discard())
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// Options configures the logger initialization.
type Options struct {
	Enabled bool       // If false, all logging is discarded
	Writer  io.Writer  // Text output destination. Takes precedence over LogDir
	LogDir  string     // Directory for daily JSON log files. Default: ~/.guestkit/logs
	Level   slog.Level // Minimum level; the zero value is Info
}

// Init replaces the process logger. Calling it again closes the log file
// opened by the previous call.
func Init(opts Options) error {
	next, f, err := build(opts)
	if err != nil {
		return err
	}
	current.Store(next)

	fileMu.Lock()
	prev := file
	file = f
	fileMu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return nil
}

func build(opts Options) (*slog.Logger, *os.File, error) {
	if !opts.Enabled {
		return discard(), nil, nil
	}
	ho := &slog.HandlerOptions{Level: opts.Level}
	if opts.Writer != nil {
		return slog.New(slog.NewTextHandler(opts.Writer, ho)), nil, nil
	}

	dir := opts.LogDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, err
		}
		dir = filepath.Join(home, ".guestkit", "logs")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	pruneLogs(dir, time.Now().AddDate(0, 0, -retentionDays))

	name := filepath.Join(dir, logPrefix+time.Now().Format(logDateLayout)+logSuffix)
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(slog.NewJSONHandler(f, ho)), f, nil
}

// Default returns the process logger.
func Default() *slog.Logger { return current.Load() }

// For returns l tagged with component. A nil l yields a logger that
// forwards every record to the process logger current at that moment.
func For(l *slog.Logger, component string) *slog.Logger {
	if l == nil {
		l = slog.New(processHandler{})
	}
	return l.With("component", component)
}

// processHandler resolves the process logger per record and replays the
// attributes and groups bound to it.
type processHandler struct {
	bind []func(slog.Handler) slog.Handler
}

func (h processHandler) resolve() slog.Handler {
	out := current.Load().Handler()
	for _, b := range h.bind {
		out = b(out)
	}
	return out
}

func (h processHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return current.Load().Handler().Enabled(ctx, level)
}

func (h processHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h processHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return processHandler{bind: append(slices.Clip(h.bind), func(x slog.Handler) slog.Handler { return x.WithAttrs(attrs) })}
}

func (h processHandler) WithGroup(name string) slog.Handler {
	return processHandler{bind: append(slices.Clip(h.bind), func(x slog.Handler) slog.Handler { return x.WithGroup(name) })}
}

// pruneLogs removes daily log files dated before cutoff. Failures are
// ignored; a stale log file is harmless.
func pruneLogs(dir string, cutoff time.Time) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, logPrefix) || !strings.HasSuffix(name, logSuffix) {
			continue
		}
		day, err := time.Parse(logDateLayout, strings.TrimSuffix(strings.TrimPrefix(name, logPrefix), logSuffix))
		if err != nil || !day.Before(cutoff) {
			continue
		}
		_ = os.Remove(filepath.Join(dir, name))
	}
}
