// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const serviceName = "approval-engine"

// NewLogger returns the service logger writing to stdout.
// - env=dev: text handler with source locations
// - env=prod: JSON handler without source locations
// level is one of debug/info/warn/error, default info.
func NewLogger(env, level string) *slog.Logger {
	return New(os.Stdout, env, level)
}

// New is NewLogger with an explicit destination.
func New(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(env), "prod") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		opts.AddSource = true
		h = slog.NewTextHandler(w, opts)
	}

	return slog.New(h).With("service", serviceName)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
