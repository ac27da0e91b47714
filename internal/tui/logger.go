package tui

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// FileLogger returns a logger writing to path so log output does not tear the
// alt-screen rendering. The returned close function closes the file.
func FileLogger(path string, level slog.Level) (*slog.Logger, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("tui: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("tui: open log file: %w", err)
	}
	handler := log.NewWithOptions(f, log.Options{
		ReportTimestamp: true,
		Level:           log.Level(level),
		Prefix:          "present",
	})
	return slog.New(handler), f.Close, nil
}
