// Package logger provides structured logging with credential redaction.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with redaction and context helpers.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// New creates a new Logger instance.
func New(cfg Config) *Logger {
	level := parseLevel(cfg.Level)

	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   level == slog.LevelDebug,
		ReplaceAttr: redactAttr,
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// NewDefault creates a JSON logger at info level.
func NewDefault() *Logger {
	return New(Config{Level: "info", Format: "json", Output: os.Stdout})
}

// NewDevelopment creates a text logger at debug level.
func NewDevelopment() *Logger {
	return New(Config{Level: "debug", Format: "text", Output: os.Stdout})
}

// NewNop creates a logger that discards all output. For tests.
func NewNop() *Logger {
	return New(Config{Level: "error", Format: "json", Output: io.Discard})
}

// redactedKeys lists attribute keys whose values must never reach logs.
// Includes everything that can carry a platform credential or webhook
// signing material.
var redactedKeys = map[string]bool{
	"password":           true,
	"secret":             true,
	"token":              true,
	"authorization":      true,
	"bearer":             true,
	"api_key":            true,
	"apikey":             true,
	"private_key":        true,
	"access_token":       true,
	"refresh_token":      true,
	"jwt":                true,
	"cookie":             true,
	"session":            true,
	"client_secret":      true,
	"connection_string":  true,
	"dsn":                true,
	"database_url":       true,
	"redis_url":          true,
	"encryption_key":     true,
	"signing_key":        true,
	"webhook_secret":     true,
	"signature":          true,
	"x-hub-signature":    true,
	"x-gitlab-token":     true,
	"clone_token":        true,
	"installation_token": true,
	"app_password":       true,
	"anthropic_api_key":  true,
	"key_hash":           true,
	"raw_key":            true,
	"credential":         true,
	"credentials":        true,
}

// redactAttr masks sensitive values in log attributes.
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)

	if redactedKeys[key] {
		return slog.String(a.Key, "[REDACTED]")
	}

	for sensitive := range redactedKeys {
		if strings.Contains(key, sensitive) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}

	return a
}

// With returns a new Logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithError returns a new Logger with the error attribute.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.Logger.With(slog.Any("error", err))}
}

// ContextKey is the type for values the HTTP layer stores in the request
// context and the logger picks up.
type ContextKey string

const (
	ContextKeyRequestID ContextKey = "request_id"
	ContextKeyTeamID    ContextKey = "team_id"
)

// WithContext returns a new Logger carrying request-scoped attributes.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.Logger

	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok && requestID != "" {
		logger = logger.With(slog.String("request_id", requestID))
	}
	if teamID, ok := ctx.Value(ContextKeyTeamID).(string); ok && teamID != "" {
		logger = logger.With(slog.String("team_id", teamID))
	}

	return &Logger{Logger: logger}
}

// Stdlib returns the underlying *slog.Logger.
func (l *Logger) Stdlib() *slog.Logger {
	return l.Logger
}

// SetDefault sets this logger as the default slog logger.
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type contextKey string

const loggerKey contextKey = "logger"

// ToContext adds the logger to the context.
func ToContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from the context, falling back to the
// default logger.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey).(*Logger); ok {
		return logger
	}
	return NewDefault()
}
