package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	// Set log level
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Use JSON or console output
	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger scoped to a named component
// (e.g. "executor", "rpc", "sandbox"). It's the usual entry point;
// the With*ID helpers below chain off its result (or off any other
// logger) rather than resetting back to the bare global Logger, so a
// single execution's component, execution_id, function_id and
// sandbox_id all land on the same child logger instead of each
// helper clobbering the fields the last one attached.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithExecutionID attaches execution_id to base.
func WithExecutionID(base zerolog.Logger, executionID string) zerolog.Logger {
	return base.With().Str("execution_id", executionID).Logger()
}

// WithFunctionID attaches function_id to base.
func WithFunctionID(base zerolog.Logger, functionID string) zerolog.Logger {
	return base.With().Str("function_id", functionID).Logger()
}

// WithAttachmentID attaches attachment_id to base.
func WithAttachmentID(base zerolog.Logger, attachmentID string) zerolog.Logger {
	return base.With().Str("attachment_id", attachmentID).Logger()
}

// WithSandboxID attaches sandbox_id to base.
func WithSandboxID(base zerolog.Logger, sandboxID string) zerolog.Logger {
	return base.With().Str("sandbox_id", sandboxID).Logger()
}

// Helper functions for common logging patterns
func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
