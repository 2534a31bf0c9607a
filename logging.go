package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// setupLogging builds the root logger. Output goes to stderr and, when path
// is set, to a log file that keeps a single rotated history file. The
// opened file, if any, is returned so callers can close it on shutdown.
func setupLogging(level, path string) (hclog.Logger, *os.File, error) {
	var out io.Writer = os.Stderr
	var logFile *os.File

	if path != "" {
		f, err := openRotatedLog(path)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(os.Stderr, f)
		logFile = f
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "flowwatch",
		Level:  parseLevel(level),
		Output: out,
	})
	return logger, logFile, nil
}

func parseLevel(s string) hclog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WARNING":
		return hclog.Warn
	case "":
		return hclog.Info
	}
	if lvl := hclog.LevelFromString(s); lvl != hclog.NoLevel {
		return lvl
	}
	return hclog.Info
}

func openRotatedLog(path string) (*os.File, error) {
	// Keep only one backup.
	_ = os.Remove(path + ".1")

	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".1"); err != nil {
			return nil, fmt.Errorf("failed to rotate existing log: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}
