// Package logx sets up the process-wide logger.
//
// It builds on log/slog and adds the three extra severities the engine uses
// on top of the standard four: "success" for round settlements, "market" for
// price/volatility lines, and "status" for uneventful round summaries. Output
// goes to a colored console handler and a size-rotating log file at the same
// time.
package logx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Extra severities. They rank above Info but below Warn so a file sink at
// Info level captures them.
const (
	LevelSuccess slog.Level = slog.LevelInfo + 1
	LevelMarket  slog.Level = slog.LevelInfo + 2
	LevelStatus  slog.Level = slog.LevelInfo + 3
)

// levelName maps the custom levels to their display names.
func levelName(l slog.Level) string {
	switch l {
	case LevelSuccess:
		return "SUCCESS"
	case LevelMarket:
		return "MARKET"
	case LevelStatus:
		return "STATUS"
	default:
		return l.String()
	}
}

// replaceLevel renders custom level values with their names in the file sink.
func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(levelName(lvl))
		}
	}
	return a
}

// Setup builds the engine logger: console + rotating file (5 MiB, 3 backups).
// The file sink records Info and above; the console level is configurable.
func Setup(logFile, consoleLevel string) (*slog.Logger, error) {
	if dir := filepath.Dir(logFile); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}

	fw, err := newRotatingWriter(logFile, 5*1024*1024, 3)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	fileHandler := slog.NewTextHandler(fw, &slog.HandlerOptions{
		Level:       slog.LevelInfo,
		ReplaceAttr: replaceLevel,
	})
	console := newConsoleHandler(os.Stdout, ParseLevel(consoleLevel))

	return slog.New(multiHandler{console, fileHandler}), nil
}

// ParseLevel maps a config string to a slog level. Unknown values fall back
// to Info.
func ParseLevel(level string) slog.Level {
	switch level {
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

// Success logs a round-settlement line.
func Success(l *slog.Logger, msg string, args ...any) {
	l.Log(context.Background(), LevelSuccess, msg, args...)
}

// Market logs a price/volatility line.
func Market(l *slog.Logger, msg string, args ...any) {
	l.Log(context.Background(), LevelMarket, msg, args...)
}

// Status logs an uneventful round summary.
func Status(l *slog.Logger, msg string, args ...any) {
	l.Log(context.Background(), LevelStatus, msg, args...)
}

// multiHandler fans a record out to every wrapped handler.
type multiHandler []slog.Handler

func (m multiHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithGroup(name)
	}
	return out
}
