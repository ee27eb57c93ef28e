// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates the JSON logger services write to stderr and
// installs it as the slog default.
func NewLogger(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}
