package slogging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// FallbackLogger provides a simple logger that writes to gin's output
type FallbackLogger struct {
	logger *slog.Logger
}

// Debug logs debug level messages
func (l *FallbackLogger) Debug(format string, args ...any) {
	l.logger.Debug(formatMessage(format, args...))
}

// Info logs info level messages
func (l *FallbackLogger) Info(format string, args ...any) {
	l.logger.Info(formatMessage(format, args...))
}

// Warn logs warning level messages
func (l *FallbackLogger) Warn(format string, args ...any) {
	l.logger.Warn(formatMessage(format, args...))
}

// Error logs error level messages
func (l *FallbackLogger) Error(format string, args ...any) {
	l.logger.Error(formatMessage(format, args...))
}

// NewFallbackLogger creates a simple logger for fallback use
func NewFallbackLogger() SimpleLogger {
	handler := slog.NewTextHandler(gin.DefaultWriter, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	return &FallbackLogger{
		logger: slog.New(handler),
	}
}

// GinContextLike defines a minimal interface for contexts that can be used with the logger
type GinContextLike interface {
	Get(key string) (any, bool)
	GetHeader(key string) string
	ClientIP() string
}

// GetContextLogger retrieves a logger from the context or creates a fallback
func GetContextLogger(c GinContextLike) SimpleLogger {
	loggerInterface, exists := c.Get("logger")
	if exists {
		if logger, ok := loggerInterface.(SimpleLogger); ok {
			return logger
		}
	}
	return NewFallbackLogger()
}

// WithContext returns a context-aware logger that includes request information
func (l *Logger) WithContext(c GinContextLike) *ContextLogger {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
		if setter, ok := c.(interface{ Header(string, string) }); ok {
			setter.Header("X-Request-ID", requestID)
		}
	}

	userID, _ := c.Get("userID")

	contextLogger := l.slogger.With(
		slog.String("request_id", requestID),
		slog.String("client_ip", c.ClientIP()),
		slog.String("user_id", fmt.Sprintf("%v", userID)),
	)

	return &ContextLogger{
		logger:  l,
		slogger: contextLogger,
	}
}

// ContextLogger adds request context to log messages
type ContextLogger struct {
	logger  *Logger
	slogger *slog.Logger
}

// Debug logs a debug-level message with context
func (cl *ContextLogger) Debug(format string, args ...any) {
	if cl.logger.level > LogLevelDebug {
		return
	}
	cl.slogger.Debug(SanitizeLogMessage(formatMessage(format, args...)))
}

// Info logs an info-level message with context
func (cl *ContextLogger) Info(format string, args ...any) {
	if cl.logger.level > LogLevelInfo {
		return
	}
	cl.slogger.Info(SanitizeLogMessage(formatMessage(format, args...)))
}

// Warn logs a warning-level message with context
func (cl *ContextLogger) Warn(format string, args ...any) {
	if cl.logger.level > LogLevelWarn {
		return
	}
	cl.slogger.Warn(SanitizeLogMessage(formatMessage(format, args...)))
}

// Error logs an error-level message with context
func (cl *ContextLogger) Error(format string, args ...any) {
	if cl.logger.level > LogLevelError {
		return
	}
	cl.slogger.Error(SanitizeLogMessage(formatMessage(format, args...)))
}

// DebugCtx logs a debug message with structured attributes
func (cl *ContextLogger) DebugCtx(msg string, attrs ...slog.Attr) {
	cl.slogger.LogAttrs(context.Background(), slog.LevelDebug, SanitizeLogMessage(msg), attrs...)
}

// InfoCtx logs an info message with structured attributes
func (cl *ContextLogger) InfoCtx(msg string, attrs ...slog.Attr) {
	cl.slogger.LogAttrs(context.Background(), slog.LevelInfo, SanitizeLogMessage(msg), attrs...)
}

// WarnCtx logs a warning message with structured attributes
func (cl *ContextLogger) WarnCtx(msg string, attrs ...slog.Attr) {
	cl.slogger.LogAttrs(context.Background(), slog.LevelWarn, SanitizeLogMessage(msg), attrs...)
}

// ErrorCtx logs an error message with structured attributes
func (cl *ContextLogger) ErrorCtx(msg string, attrs ...slog.Attr) {
	cl.slogger.LogAttrs(context.Background(), slog.LevelError, SanitizeLogMessage(msg), attrs...)
}
