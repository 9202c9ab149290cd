package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"imgstore/internal/config"
)

const logLevelEnvKey = "IMGSTORE_LOG_LEVEL"

// Origins of a log level, named the way a user would set them.
const (
	levelFromFlag   = "--log-level"
	levelFromEnv    = logLevelEnvKey
	levelFromConfig = "log_level"
)

var logLevelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// levelChoice is the raw level that won and where it came from. An empty
// origin means nothing was set and the default applies.
type levelChoice struct {
	raw    string
	origin string
}

func chooseLogLevel(flagLevel string, cfg *config.Config) levelChoice {
	candidates := []levelChoice{
		{raw: flagLevel, origin: levelFromFlag},
		{raw: os.Getenv(logLevelEnvKey), origin: levelFromEnv},
	}
	if cfg != nil {
		candidates = append(candidates, levelChoice{raw: cfg.LogLevel, origin: levelFromConfig})
	}
	for _, c := range candidates {
		if strings.TrimSpace(c.raw) != "" {
			return c
		}
	}
	return levelChoice{raw: config.DefaultLogLevel}
}

// configureLoggerForCLI installs the process logger on w. A bad --log-level
// fails the command; a bad env or config value falls back to the default and
// returns a warning for the user.
func configureLoggerForCLI(w io.Writer, flagLevel string, jsonLogs bool, cfg *config.Config) (string, error) {
	choice := chooseLogLevel(flagLevel, cfg)
	level, err := parseLogLevel(choice.raw)
	warning := ""
	if err != nil {
		if choice.origin == levelFromFlag {
			return "", fmt.Errorf("invalid --log-level %q", flagLevel)
		}
		level = logLevelNames[config.DefaultLogLevel]
		warning = fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", choice.origin, choice.raw, config.DefaultLogLevel)
	}
	slog.SetDefault(newLogger(w, level, jsonLogs))
	return warning, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	level, ok := logLevelNames[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

// newLogger writes text lines, or JSON lines when the CLI runs with --json so
// scripted callers can parse stderr as well as stdout.
func newLogger(w io.Writer, level slog.Level, jsonLogs bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if jsonLogs {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// componentLogger tags the default logger with the imgstore component and
// the storage backend it runs against.
func componentLogger(component string, cfg *config.Config) *slog.Logger {
	logger := slog.Default().With("component", component)
	if cfg != nil && cfg.Backend != "" {
		logger = logger.With("backend", cfg.Backend)
	}
	return logger
}
