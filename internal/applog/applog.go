// Package applog initialises the global slog logger for the advisor.
// Call Init once at startup; all other packages use log/slog directly.
package applog

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
)

// FileName is the log file created under the temp directory by default.
const FileName = "vrpoker-advisor.log"

var debugMode atomic.Bool

type Options struct {
	Debug bool
	// Console receives human-facing log output. Nil means os.Stderr so that
	// stdout stays free for rendered results.
	Console io.Writer
	// File is the log file path. Empty selects TempLogPath().
	File string
}

// Init sets up the global slog logger writing text records to the console
// and the log file. The returned closer releases the file.
func Init(opts Options) io.Closer {
	debugMode.Store(opts.Debug)

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	writers := []io.Writer{console}

	path := opts.File
	if path == "" {
		path = TempLogPath()
	}
	var closer io.Closer = nopCloser{}
	if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
		writers = append(writers, f)
		closer = f
	}

	h := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
	if f, ok := closer.(*os.File); ok {
		slog.Debug("Logging to file", "path", f.Name())
	}
	return closer
}

// IsDebug reports whether debug mode is active.
func IsDebug() bool {
	return debugMode.Load()
}

func TempLogPath() string {
	return filepath.Join(os.TempDir(), FileName)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
