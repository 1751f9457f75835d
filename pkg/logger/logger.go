package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

// Config describes how the application logger should behave.
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
	AddSource   bool
	Audit       AuditConfig
}

// AuditConfig controls where state-change audit lines are written.
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// state is one generation of loggers together with the files they own.
type state struct {
	app     *slog.Logger
	audit   *slog.Logger
	closers []io.Closer
	once    sync.Once
}

func (s *state) close() error {
	var err error
	s.once.Do(func() {
		for _, c := range s.closers {
			err = errors.Join(err, c.Close())
		}
	})
	return err
}

var current atomic.Pointer[state]

// Init configures the process-wide logger instances. Calling Init again
// replaces the previous configuration and closes the files it opened.
func Init(cfg Config) error {
	s, err := build(cfg)
	if err != nil {
		return err
	}
	if prev := current.Swap(s); prev != nil {
		_ = prev.close()
	}
	return nil
}

func build(cfg Config) (*state, error) {
	s := &state{}
	out, err := s.outputs(cfg.OutputPaths)
	if err != nil {
		_ = s.close()
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level), AddSource: cfg.AddSource}
	if strings.EqualFold(cfg.Format, "text") {
		s.app = slog.New(slog.NewTextHandler(out, opts))
	} else {
		s.app = slog.New(slog.NewJSONHandler(out, opts))
	}

	if !cfg.Audit.Enabled {
		s.audit = s.app.With(slog.Bool("audit", true))
		return s, nil
	}
	writer, err := newRotatingWriter(cfg.Audit)
	if err != nil {
		_ = s.close()
		return nil, err
	}
	s.closers = append(s.closers, writer)
	s.audit = slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return s, nil
}

// outputs opens every configured destination. Files are tracked so that
// Sync or the next Init can close them.
func (s *state) outputs(paths []string) (io.Writer, error) {
	if len(paths) == 0 {
		return os.Stdout, nil
	}
	writers := make([]io.Writer, 0, len(paths))
	for _, path := range paths {
		switch strings.ToLower(strings.TrimSpace(path)) {
		case "", "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		case "discard":
			writers = append(writers, io.Discard)
		default:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
			file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", path, err)
			}
			s.closers = append(s.closers, file)
			writers = append(writers, file)
		}
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

// parseLevel accepts slog level names plus "warning"; anything else is info.
func parseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func load() *state {
	if s := current.Load(); s != nil {
		return s
	}
	s, err := build(Config{})
	if err != nil {
		s = &state{app: slog.Default()}
		s.audit = s.app
	}
	if !current.CompareAndSwap(nil, s) {
		return current.Load()
	}
	return s
}

// L returns the structured logger instance.
func L() *slog.Logger {
	return load().app
}

// Audit returns the logger that records every committed state change.
func Audit() *slog.Logger {
	return load().audit
}

// Named returns a child logger tagged with the provided component name.
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}

// Sync closes the files opened by Init.
func Sync() error {
	if s := current.Load(); s != nil {
		return s.close()
	}
	return nil
}
