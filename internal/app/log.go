package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// tidyHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<runID>\t<message>\t<key=value ...>
//
// One record is one line. Pipeline workers log concurrently, so each line is
// assembled first and written with a single Write under a lock shared by
// every handler derived from the same root.
type tidyHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	runID  string
	level  slog.Level
	prefix string // group path, "scan." for WithGroup("scan")
	attrs  []slog.Attr
}

func newTidyHandler(w io.Writer, runID string, level slog.Level) *tidyHandler {
	return &tidyHandler{mu: &sync.Mutex{}, w: w, runID: runID, level: level}
}

func (h *tidyHandler) Enabled(_ context.Context, level slog.Level) bool { return level >= h.level }

func (h *tidyHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	buf.WriteString(r.Time.UTC().Format("2006-01-02T15:04:05Z"))
	buf.WriteByte('\t')
	buf.WriteString(r.Level.String())
	buf.WriteByte('\t')
	buf.WriteString(h.runID)
	buf.WriteByte('\t')
	buf.WriteString(escapeField(r.Message))

	// Pre-set attrs already carry their group prefix.
	for _, a := range h.attrs {
		appendAttr(&buf, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&buf, h.prefix, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func appendAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(buf, prefix, ga)
		}
		return
	}
	buf.WriteByte('\t')
	buf.WriteString(prefix)
	buf.WriteString(a.Key)
	buf.WriteByte('=')
	buf.WriteString(escapeField(fmt.Sprint(a.Value.Any())))
}

// escapeField quotes s when it would break the tab-separated line.
func escapeField(s string) string {
	if strings.ContainsAny(s, "\t\n\r") {
		return strconv.Quote(s)
	}
	return s
}

func (h *tidyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	h2.attrs = append(h2.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		h2.attrs = append(h2.attrs, a)
	}
	return &h2
}

func (h *tidyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}

// newLogger creates a structured logger that writes to logDir/tidy.log and,
// when console is non-nil, to console as well.
// It returns the slog.Logger, the open log file (for cleanup), and any error.
func newLogger(logDir, runID string, level slog.Level, console io.Writer) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "tidy.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	var w io.Writer = f
	if console != nil {
		w = io.MultiWriter(f, console)
	}
	return slog.New(newTidyHandler(w, runID, level)), f, nil
}

// slogAdapter wraps *slog.Logger to satisfy the tidy.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
