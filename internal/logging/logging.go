// Package logging owns the process-wide zerolog logger and the child
// loggers the bot's components write through. Every component logger
// carries a "component" field; loggers scoped to a chat message add "mid".
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. It writes info and above to stderr
// until Init is called.
var Logger = newLogger(DefaultConfig())

// Level is a zerolog level.
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
)

// Config selects where and how much the bot logs.
type Config struct {
	Level Level
	// Pretty switches from JSON lines to zerolog's console format.
	Pretty bool
	// Output defaults to stderr.
	Output io.Writer
}

// DefaultConfig logs JSON at info level to stderr.
func DefaultConfig() Config {
	return Config{Level: InfoLevel, Output: os.Stderr}
}

// Init replaces the process-wide logger. Loggers derived earlier keep
// writing through the previous one.
func Init(cfg Config) {
	Logger = newLogger(cfg)
}

func newLogger(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(out).Level(cfg.Level).With().Timestamp().Logger()
}

// ParseLevel reads a level name, case-insensitively. "warning" is accepted
// for warn. Unknown names give InfoLevel.
func ParseLevel(name string) Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		return InfoLevel
	}
	return level
}

// Named derives a logger for a component from parent.
func Named(parent zerolog.Logger, component string) zerolog.Logger {
	return parent.With().Str("component", component).Logger()
}

// Component derives a logger for a component from the process-wide logger.
func Component(name string) zerolog.Logger {
	return Named(Logger, name)
}

// ForMessage tags every entry of l with the ID of the chat message being
// handled. Synthetic invocations have no message and are tagged as such.
func ForMessage(l zerolog.Logger, messageID string) zerolog.Logger {
	if messageID == "" {
		messageID = "synthetic"
	}
	return l.With().Str("mid", messageID).Logger()
}
