package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cockroachdb/redact"
)

var Log *slog.Logger

// Init initializes the global slog logger with a simple text handler at Info
// level. Sink and level are overridable via FTS_LOG_SINK ("file:<path>" or
// unset for stdout) and FTS_LOG_LEVEL ("debug"|"info"|"warn"|"error").
func Init() {
	sink := os.Getenv("FTS_LOG_SINK")
	lvl := strings.ToLower(strings.TrimSpace(os.Getenv("FTS_LOG_LEVEL")))
	var level slog.Level
	switch lvl {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if strings.HasPrefix(sink, "file:") {
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err == nil {
			Log = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
			return
		}
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
	}
	Log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// Redact returns a safe-to-log representation of an arbitrary value using
// cockroachdb/redact. Use this instead of logging raw document text or full
// query strings, neither of which belong verbatim in engine logs.
func Redact(v interface{}) string {
	return redact.Sprint(v).StripMarkers()
}

// Sync is a no-op for slog handlers used here.
func Sync() {}

// Debug logs with slog-style key/value pairs.
func Debug(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Debug(msg, args...)
}

// Info logs with slog-style key/value pairs.
func Info(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Info(msg, args...)
}

// Warn logs with slog-style key/value pairs.
func Warn(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Warn(msg, args...)
}

// Error logs with slog-style key/value pairs.
func Error(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Error(msg, args...)
}
