package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
}

// Init routes log output to stdout as one JSON object per line.
func Init() {
	SetOutput(os.Stdout)
	Info("logger initialized", nil)
}

// SetOutput replaces the destination of all subsequent log lines.
func SetOutput(w io.Writer) {
	current.Store(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))
}

func Debug(msg string, fields map[string]any) {
	log(slog.LevelDebug, msg, fields)
}

func Info(msg string, fields map[string]any) {
	log(slog.LevelInfo, msg, fields)
}

func Warn(msg string, fields map[string]any) {
	log(slog.LevelWarn, msg, fields)
}

func Error(msg string, fields map[string]any) {
	log(slog.LevelError, msg, fields)
}

func Fatal(msg string, fields map[string]any) {
	log(slog.LevelError+4, msg, fields)
	os.Exit(1)
}

func log(level slog.Level, msg string, fields map[string]any) {
	l := current.Load()
	if len(fields) == 0 {
		l.Log(context.Background(), level, msg)
		return
	}
	l.Log(context.Background(), level, msg, slog.Any("fields", fields))
}
