// Package gwlog provides the gateway's structured logging, adapted from
// runtime/logger: a global slog.Logger configured from an environment
// variable, a SetLevel/SetVerbose pair for programmatic control, and
// domain-specific structured helpers. Where the teacher's helpers cover LLM
// calls and tool execution, these cover breaker transitions, admission
// decisions, dispatch outcomes, and webhook delivery attempts -- the events
// this gateway actually emits.
package gwlog

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// DefaultLogger is the global structured logger instance, safe for
// concurrent use.
var DefaultLogger *slog.Logger

func init() {
	level := slog.LevelInfo
	if envLevel := os.Getenv("GATEWAY_LOG_LEVEL"); envLevel != "" {
		switch strings.ToLower(envLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	DefaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// SetLevel changes the logging level for all subsequent log operations.
func SetLevel(level slog.Level) {
	DefaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// SetVerbose enables debug-level logging when verbose is true, otherwise
// restores info-level.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
		return
	}
	SetLevel(slog.LevelInfo)
}

func Info(msg string, args ...any)  { DefaultLogger.Info(msg, args...) }
func Debug(msg string, args ...any) { DefaultLogger.Debug(msg, args...) }
func Warn(msg string, args ...any)  { DefaultLogger.Warn(msg, args...) }
func Error(msg string, args ...any) { DefaultLogger.Error(msg, args...) }

func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// BreakerEvent logs a circuit breaker state transition.
func BreakerEvent(agentID, from, to string, failureCount int, attrs ...any) {
	allAttrs := append([]any{
		"agent_id", agentID,
		"from_state", from,
		"to_state", to,
		"failure_count", failureCount,
	}, attrs...)
	DefaultLogger.Info("breaker transition", allAttrs...)
}

// AdmissionReject logs a call rejected before dispatch (circuit open or
// backpressure). This is logged at info, not warn -- per spec §7, admission
// rejections are an expected resilience outcome, not a fault.
func AdmissionReject(agentID, reason string, attrs ...any) {
	allAttrs := append([]any{"agent_id", agentID, "reason", reason}, attrs...)
	DefaultLogger.Info("admission rejected", allAttrs...)
}

// Dispatch logs the outcome of a dispatched call to an upstream agent.
func Dispatch(agentID, method string, ok bool, durationMs int64, attrs ...any) {
	allAttrs := append([]any{
		"agent_id", agentID,
		"method", method,
		"ok", ok,
		"duration_ms", durationMs,
	}, attrs...)
	if ok {
		DefaultLogger.Info("dispatch complete", allAttrs...)
	} else {
		DefaultLogger.Warn("dispatch failed", allAttrs...)
	}
}

// PushAttempt logs a single webhook delivery attempt.
func PushAttempt(url string, attempt int, statusCode int, err error) {
	if err != nil {
		DefaultLogger.Warn("push attempt failed", "url", RedactURL(url), "attempt", attempt, "status", statusCode, "error", err)
		return
	}
	DefaultLogger.Info("push attempt", "url", RedactURL(url), "attempt", attempt, "status", statusCode)
}

// sensitivePatterns mirrors runtime/logger's redaction approach, generalized
// from OpenAI/Google API-key shapes to this gateway's own secrets: bearer
// tokens, HMAC signatures, JWTs, and raw Authorization header values.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._-]+`),
	regexp.MustCompile(`(?i)(authorization"?\s*[:=]\s*"?)[^\s",}]+`),
	regexp.MustCompile(`(?i)(x-a2a-signature"?\s*[:=]\s*"?)[0-9a-f]+`),
	regexp.MustCompile(`(?i)(x-a2a-token"?\s*[:=]\s*"?)[^\s",}]+`),
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`), // JWT
}

// RedactSensitiveData scans s for known secret shapes and replaces them with
// "[REDACTED]", leaving the surrounding structure intact. No log statement
// anywhere in the gateway should emit a raw PushConfig.auth secret, agent
// bearer token, or JWT signing key; callers route any string that might
// contain one through this function first.
func RedactSensitiveData(s string) string {
	out := s
	for _, re := range sensitivePatterns {
		out = re.ReplaceAllString(out, "${1}[REDACTED]")
	}
	return out
}

// RedactURL redacts a URL's userinfo component, if present, without
// touching the rest of the string -- used for webhook/agent URLs that may
// embed credentials.
func RedactURL(u string) string {
	re := regexp.MustCompile(`://[^/@]+@`)
	return re.ReplaceAllString(u, "://[REDACTED]@")
}
