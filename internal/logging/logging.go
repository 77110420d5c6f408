// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
)

// Setup configures the global slog logger.
// Console output goes to stderr so archive data can be written to stdout.
// If logOutputDir is non-empty, logs are also written as JSON to a
// timestamped file in that directory; the returned closer closes it.
func Setup(levelStr string, logOutputDir string) (io.Closer, error) {
	level := parseLogLevel(levelStr)

	consoleHandler := tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.TimeOnly})

	if logOutputDir == "" {
		slog.SetDefault(slog.New(consoleHandler))
		return io.NopCloser(nil), nil
	}

	logDir := os.ExpandEnv(logOutputDir)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	logFilePath := filepath.Join(logDir, fmt.Sprintf("zipkit_%s.log", timestamp))

	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	fileHandler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(slogmulti.Fanout(consoleHandler, fileHandler)))

	fmt.Fprintf(os.Stderr, "Logging to file: %s\n", logFilePath)
	return logFile, nil
}

// parseLogLevel converts a string log level to slog.Level
func parseLogLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
