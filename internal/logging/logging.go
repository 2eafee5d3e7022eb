package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the log file. Empty disables file logging.
	FilePath string
	// MaxSizeMB is the size that triggers rotation.
	MaxSizeMB int
	// MaxFiles is how many rotated files are kept.
	MaxFiles int
	// WriteToStderr mirrors records to stderr.
	WriteToStderr bool
}

// DefaultConfig logs at info to the default file only.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		FilePath:  DefaultLogPath(),
		MaxSizeMB: 10,
		MaxFiles:  5,
	}
}

// DebugConfig logs at debug and mirrors to stderr.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	cfg.WriteToStderr = true
	return cfg
}

// Setup builds a JSON logger over the rotating file (and stderr when enabled).
// The returned cleanup flushes and closes the file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	var writers []io.Writer
	var rw *RotatingWriter

	if cfg.FilePath != "" {
		var err error
		rw, err = NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, rw)
	}
	if cfg.WriteToStderr {
		writers = append(writers, os.Stderr)
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	}))

	cleanup := func() {
		if rw != nil {
			_ = rw.Sync()
			_ = rw.Close()
		}
	}
	return logger, cleanup, nil
}

// ParseLevel converts a level name to slog.Level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
