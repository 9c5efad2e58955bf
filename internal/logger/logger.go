// Package logger configures the global zerolog logger from command-line options.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is a go-flags option group shared by all commands.
type Logger struct {
	Level  string `long:"log-level"  env:"LOG_LEVEL"  description:"Log level" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" default:"info"`
	Format string `long:"log-format" env:"LOG_FORMAT" description:"Log format" choice:"console" choice:"json" default:"console"`
	Output string `long:"log-output" env:"LOG_OUTPUT" description:"Log output: stderr, stdout or a file path" default:"stderr"`
}

// Setup applies the options to the global logger.
// An unknown level falls back to info; an unwritable file falls back to stderr.
func (l Logger) Setup() {
	level, err := zerolog.ParseLevel(strings.ToLower(l.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := l.writer()
	if l.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	if err != nil && l.Level != "" {
		log.Warn().Str("level", l.Level).Msg("Unknown log level, using info")
	}
}

func (l Logger) writer() io.Writer {
	switch l.Output {
	case "", "stderr":
		return os.Stderr
	case "stdout":
		return os.Stdout
	}

	f, err := os.OpenFile(l.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Error().Err(err).Str("path", l.Output).Msg("Failed to open log file, using stderr")
		return os.Stderr
	}

	return f
}
