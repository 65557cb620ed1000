package log

import (
	"log/slog"
	"os"
	"sync"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	logger     *slog.Logger
	loggerOnce sync.Once
	levelVar   slog.LevelVar
)

// initLogger initializes the global logger to write to stderr.
// Default minimum level is INFO.
func initLogger() {
	loggerOnce.Do(func() {
		levelVar.Set(slog.LevelInfo)
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: &levelVar,
		}))
	})
}

func SetLevel(l Level) {
	initLogger()
	switch l {
	case LevelDebug:
		levelVar.Set(slog.LevelDebug)
	case LevelError:
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

func Debug(msg string, kv ...any) {
	initLogger()
	logger.Debug(msg, kv...)
}

func Info(msg string, kv ...any) {
	initLogger()
	logger.Info(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	initLogger()
	// Prepend error into the key-value list so every error line carries err=.
	extended := append([]any{"err", err}, kv...)
	logger.Error(msg, extended...)
}
