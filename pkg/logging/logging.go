// Package logging wraps log/slog with the orchestrator's house style: a
// quiet-by-default handler that only promotes third-party (vendored SDK)
// log lines to view at DEBUG level, and a colorized writer for terminal
// output. Every package in this module logs through slog.Default() (or an
// explicitly passed *slog.Logger) rather than fmt.Println, so a single Init
// call controls the whole process's log behavior.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

var defaultLogger *slog.Logger

const corePackagePrefix = "github.com/forgehq/forge"

// ParseLevel converts a string log level into a slog.Level. Unknown values
// fall back to Warn rather than erroring, matching the tolerant defaults
// config loading uses elsewhere in this module.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// filteringHandler suppresses log lines originating outside this module's
// own packages unless the configured level is Debug or lower. This keeps a
// process embedding several provider SDKs and an MCP client library from
// drowning operator-facing logs in vendored chatter.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel && h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || h.isOwnPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) isOwnPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	file, _ := fn.FileLine(pc)
	return strings.Contains(fn.Name(), corePackagePrefix) || strings.Contains(file, "/forge/")
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m"
	case level >= slog.LevelWarn:
		return "\033[33m"
	case level >= slog.LevelInfo:
		return "\033[36m"
	default:
		return "\033[90m"
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// coloredHandler formats records as "LEVEL message key=value ..." with ANSI
// color on the level token when writing to a terminal.
type coloredHandler struct {
	writer   io.Writer
	minLevel slog.Level
	useColor bool
}

func (h *coloredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *coloredHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	if !record.Time.IsZero() {
		b.WriteString(record.Time.Format("2006-01-02T15:04:05.000Z0700 "))
	}
	levelStr := strings.ToUpper(record.Level.String())
	if h.useColor {
		b.WriteString(levelColor(record.Level))
		b.WriteString(levelStr)
		b.WriteString("\033[0m")
	} else {
		b.WriteString(levelStr)
	}
	b.WriteString(" ")
	b.WriteString(record.Message)
	record.Attrs(func(a slog.Attr) bool {
		b.WriteString(" ")
		b.WriteString(a.Key)
		b.WriteString("=")
		b.WriteString(a.Value.String())
		return true
	})
	b.WriteString("\n")
	_, err := h.writer.Write([]byte(b.String()))
	return err
}

func (h *coloredHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *coloredHandler) WithGroup(_ string) slog.Handler      { return h }

// Init installs the default logger. level controls both verbosity and
// whether third-party log lines are let through (see filteringHandler).
func Init(level slog.Level, output *os.File) {
	inner := &coloredHandler{writer: output, minLevel: level, useColor: isTerminal(output)}
	defaultLogger = slog.New(&filteringHandler{handler: inner, minLevel: level})
	slog.SetDefault(defaultLogger)
}

// Get returns the process default logger, initializing one at Info level to
// stderr on first use so packages never need a nil check.
func Get() *slog.Logger {
	if defaultLogger == nil {
		Init(slog.LevelInfo, os.Stderr)
	}
	return defaultLogger
}
