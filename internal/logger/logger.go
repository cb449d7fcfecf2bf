package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Component names used for the "component" field
const (
	ComponentChainIndex   = "chainindex"
	ComponentChainStorage = "chainstorage"
	ComponentQuery        = "query"
	ComponentBuilder      = "builder"
	ComponentBench        = "bench"
	ComponentAPI          = "api"
)

// Config holds logger configuration
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Default: "info"
	Level string

	// Development switches to colored console output with stack traces on warnings
	Development bool

	// Encoding is "json" or "console". Default: "json"
	Encoding string

	// OutputPaths defaults to ["stderr"] so that command output on stdout stays clean
	OutputPaths []string

	// ErrorOutputPaths defaults to ["stderr"]
	ErrorOutputPaths []string

	// InitialFields are attached to every entry
	InitialFields map[string]interface{}
}

type contextKey struct{}

var loggerKey = contextKey{}

// New builds a logger from a level and a format name. "json" (or
// "production") selects structured output, anything else the console
// encoder in development mode.
func New(level, format string) (*zap.Logger, error) {
	cfg := &Config{Level: level, Encoding: "json"}
	if format != "json" && format != "production" {
		cfg.Encoding = "console"
		cfg.Development = true
	}
	return NewWithConfig(cfg)
}

// NewDevelopment creates a debug-level console logger
func NewDevelopment() (*zap.Logger, error) {
	return NewWithConfig(&Config{Level: "debug", Encoding: "console", Development: true})
}

// NewProduction creates an info-level JSON logger
func NewProduction() (*zap.Logger, error) {
	return NewWithConfig(&Config{Level: "info", Encoding: "json"})
}

// NewWithConfig creates a logger with the specified configuration
func NewWithConfig(cfg *Config) (*zap.Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	c := *cfg
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Encoding == "" {
		c.Encoding = "json"
	}
	if len(c.OutputPaths) == 0 {
		c.OutputPaths = []string{"stderr"}
	}
	if len(c.ErrorOutputPaths) == 0 {
		c.ErrorOutputPaths = []string{"stderr"}
	}

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}

	var encoderConfig zapcore.EncoderConfig
	if c.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:             level,
		Development:       c.Development,
		Encoding:          c.Encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       c.OutputPaths,
		ErrorOutputPaths:  c.ErrorOutputPaths,
		InitialFields:     c.InitialFields,
		DisableStacktrace: !c.Development,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// WithLogger returns a new context with the given logger attached
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from the context, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return zap.NewNop()
	}
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return zap.NewNop()
}

// WithComponent returns a logger with a "component" field. A nil logger
// yields a no-op logger.
func WithComponent(logger *zap.Logger, component string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(zap.String("component", component))
}

// WithFields returns a logger with additional fields
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	return logger.With(fields...)
}
