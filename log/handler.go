package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// discardHandler drops every record; used as the default root logger before
// InitLogger is called.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

// DiscardHandler returns a handler that drops all records.
func DiscardHandler() slog.Handler {
	return discardHandler{}
}

// terminalHandler writes aligned, optionally colorized
// "LEVEL[hh:mm:ss.mmm] msg key=value ..." lines to an io.Writer; the module
// appears among the attributes as module=<name>. It is deliberately simpler than a full slog.TextHandler
// since operators mostly grep these lines rather than parse them.
type terminalHandler struct {
	mu       sync.Mutex
	w        io.Writer
	level    slog.Level
	useColor bool
	attrs    []slog.Attr
}

// NewTerminalHandlerWithLevel returns a handler that writes human-readable
// lines to w for records at or above level.
func NewTerminalHandlerWithLevel(w io.Writer, level slog.Level, useColor bool) slog.Handler {
	return &terminalHandler{w: w, level: level, useColor: useColor}
}

func (h *terminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *terminalHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	line := fmt.Sprintf("%s[%s] %s", LevelAlignedString(r.Level), r.Time.Format("15:04:05.000"), r.Message)
	for _, a := range h.attrs {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value)
		return true
	})
	if h.useColor {
		line = colorize(r.Level, line)
	}
	_, err := fmt.Fprintln(h.w, line)
	return err
}

func (h *terminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &terminalHandler{w: h.w, level: h.level, useColor: h.useColor, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
}

func (h *terminalHandler) WithGroup(string) slog.Handler {
	return h
}

func colorize(level slog.Level, line string) string {
	var color string
	switch level {
	case LevelCrit, slog.LevelError:
		color = "\x1b[31m"
	case slog.LevelWarn:
		color = "\x1b[33m"
	case slog.LevelDebug, LevelTrace:
		color = "\x1b[90m"
	default:
		return line
	}
	return color + line + "\x1b[0m"
}
