package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu      sync.Mutex
	base    *slog.Logger
	level   = new(slog.LevelVar)
	logFile *os.File
)

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitLogger writes to stderr and, when filename is set, appends to that file too.
func InitLogger(filename string, lvl string) error {
	mu.Lock()
	defer mu.Unlock()

	closeFileLocked()
	var w io.Writer = os.Stderr
	if filename != "" {
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		logFile = f
		w = io.MultiWriter(os.Stderr, f)
	}
	setLocked(w, lvl)
	return nil
}

// SetOutput redirects logging to w. Tests use it to capture log lines.
func SetOutput(w io.Writer, lvl string) {
	mu.Lock()
	defer mu.Unlock()
	setLocked(w, lvl)
}

func setLocked(w io.Writer, lvl string) {
	level.Set(ParseLevel(lvl))
	base = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeFileLocked()
}

func closeFileLocked() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// L returns the process logger, creating a stderr info logger on first use.
func L() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		setLocked(os.Stderr, "info")
	}
	return base
}

func With(args ...any) *slog.Logger {
	return L().With(args...)
}

func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	L().Error(msg, args...)
}
