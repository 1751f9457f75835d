package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const backupTimeFormat = "20060102T150405.000000000"

// rotationPolicy is the resolved form of AuditConfig.
type rotationPolicy struct {
	maxBytes   int64
	maxBackups int
	maxAge     time.Duration
}

func policyFor(cfg AuditConfig) rotationPolicy {
	p := rotationPolicy{maxBytes: 100 << 20, maxBackups: 7, maxAge: 30 * 24 * time.Hour}
	if cfg.MaxSizeMB > 0 {
		p.maxBytes = int64(cfg.MaxSizeMB) << 20
	}
	if cfg.MaxBackups > 0 {
		p.maxBackups = cfg.MaxBackups
	}
	if cfg.MaxAgeDays > 0 {
		p.maxAge = time.Duration(cfg.MaxAgeDays) * 24 * time.Hour
	}
	return p
}

// rotatingWriter appends audit lines to path. When a write would push the
// file past maxBytes the file is renamed to <name>-<timestamp><ext> and a new
// one is started; archives beyond maxBackups or older than maxAge are removed.
type rotatingWriter struct {
	mu      sync.Mutex
	path    string
	policy  rotationPolicy
	file    *os.File
	written int64
	clock   func() time.Time
}

func newRotatingWriter(cfg AuditConfig) (*rotatingWriter, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("audit log path cannot be empty when enabled")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	return &rotatingWriter{path: cfg.Path, policy: policyFor(cfg), clock: time.Now}, nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		if err := w.openExisting(); err != nil {
			return 0, err
		}
	}
	if w.written > 0 && w.written+int64(len(p)) > w.policy.maxBytes {
		if err := w.archive(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *rotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeFile()
}

func (w *rotatingWriter) closeFile() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file, w.written = nil, 0
	return err
}

func (w *rotatingWriter) openExisting() error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	w.file, w.written = file, info.Size()
	return nil
}

func (w *rotatingWriter) archive() error {
	if err := w.closeFile(); err != nil {
		return fmt.Errorf("close audit log: %w", err)
	}
	if err := os.Rename(w.path, w.backupName(w.clock())); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("archive audit log: %w", err)
	}
	w.prune()
	return w.openExisting()
}

func (w *rotatingWriter) backupName(at time.Time) string {
	ext := filepath.Ext(w.path)
	return strings.TrimSuffix(w.path, ext) + "-" + at.UTC().Format(backupTimeFormat) + ext
}

// backups lists archives oldest first; the timestamp format sorts lexically.
func (w *rotatingWriter) backups() []string {
	ext := filepath.Ext(w.path)
	matches, err := filepath.Glob(strings.TrimSuffix(w.path, ext) + "-*" + ext)
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}

func (w *rotatingWriter) prune() {
	archives := w.backups()
	cutoff := w.clock().Add(-w.policy.maxAge)
	for i, name := range archives {
		if len(archives)-i > w.policy.maxBackups {
			_ = os.Remove(name)
			continue
		}
		if info, err := os.Stat(name); err == nil && info.ModTime().Before(cutoff) {
			_ = os.Remove(name)
		}
	}
}
