// Package logger provides structured logging for demitasse.
//
// The proxy's stdout carries protocol frames, so all console logging
// goes to stderr. A log file can be added on top for post-mortems.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

var (
	slogger *slog.Logger
	logFile *os.File
)

// Init initializes the slog-based logger.
// If logDir is non-empty, logs are mirrored to a dated file under it.
// If jsonOutput is true, logs are formatted as JSON.
func Init(logDir string, jsonOutput bool) error {
	var writer io.Writer = os.Stderr

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return err
		}

		logFileName := "demitasse-" + time.Now().Format("2006-01-02") + ".log"
		logFilePath := filepath.Join(logDir, logFileName)

		var err error
		logFile, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		writer = io.MultiWriter(os.Stderr, logFile)
	}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(writer, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}

	slogger = slog.New(handler)
	slog.SetDefault(slogger)

	return nil
}

// Close closes the log file, if any.
func Close() error {
	if logFile != nil {
		return logFile.Close()
	}
	return nil
}

// Slog returns the slog.Logger instance for structured logging
func Slog() *slog.Logger {
	if slogger == nil {
		return slog.Default()
	}
	return slogger
}

// Info logs an info message
func Info(msg string, args ...any) {
	Slog().Info(msg, args...)
}

// Warn logs a warning
func Warn(msg string, args ...any) {
	Slog().Warn(msg, args...)
}

// Error logs an error
func Error(msg string, args ...any) {
	Slog().Error(msg, args...)
}
