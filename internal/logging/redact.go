package logging

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// sensitiveKeyPatterns lists substrings that indicate a log attribute key holds a secret value.
// Values logged under these keys will be fully redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"private_key",
	"credential",
	"access_token",
	"accesstoken",
	"api_key",
}

// nonSecretTokenKeys contain "token" but never carry a credential.
var nonSecretTokenKeys = []string{
	"token_present",
	"token_type",
	"token_count",
}

// jwtPattern matches compact JWS tokens as issued by the auth services.
var jwtPattern = regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*`)

// ethPrivateKeyPattern matches Ethereum-style private keys (0x followed by 64 hex chars).
var ethPrivateKeyPattern = regexp.MustCompile(`\b0x[0-9a-fA-F]{64}\b`)

// longHexPattern matches hex strings longer than 64 characters that look like private keys.
var longHexPattern = regexp.MustCompile(`\b[0-9a-fA-F]{65,}\b`)

// RedactingHandler wraps an slog.Handler and redacts sensitive values before they
// are passed to the inner handler.
type RedactingHandler struct {
	inner slog.Handler
}

// NewRedactingHandler creates a RedactingHandler that wraps the given inner handler.
func NewRedactingHandler(inner slog.Handler) *RedactingHandler {
	return &RedactingHandler{inner: inner}
}

// Enabled reports whether the inner handler handles records at the given level.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle redacts sensitive attribute values and forwards the record to the inner handler.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	var redacted []slog.Attr
	r.Attrs(func(a slog.Attr) bool {
		redacted = append(redacted, redactAttr(a))
		return true
	})

	newRecord := slog.NewRecord(r.Time, r.Level, redactString(r.Message), r.PC)
	newRecord.AddAttrs(redacted...)

	return h.inner.Handle(ctx, newRecord)
}

// WithAttrs returns a new handler with the given attributes redacted.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(redacted)}
}

// WithGroup returns a new handler with the given group name.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name)}
}

// redactAttr returns a copy of the attribute with its value redacted if necessary.
func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		out := make([]any, len(group))
		for i, ga := range group {
			out[i] = redactAttr(ga)
		}
		return slog.Group(a.Key, out...)
	}

	key := strings.ToLower(a.Key)

	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(key, pattern) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}

	if strings.Contains(key, "token") && !isNonSecretTokenKey(key) {
		if a.Value.Kind() == slog.KindString && a.Value.String() != "" {
			return slog.String(a.Key, "[REDACTED]")
		}
	}

	if a.Value.Kind() == slog.KindString {
		val := a.Value.String()
		redacted := redactString(val)
		if redacted != val {
			return slog.String(a.Key, redacted)
		}
	}

	return a
}

func isNonSecretTokenKey(key string) bool {
	for _, k := range nonSecretTokenKeys {
		if key == k {
			return true
		}
	}
	return false
}

// redactString scans a string value and replaces known secret patterns.
func redactString(val string) string {
	val = jwtPattern.ReplaceAllStringFunc(val, func(match string) string {
		return "eyJ...[REDACTED]"
	})

	// Keep enough of a private key to tell two apart
	val = ethPrivateKeyPattern.ReplaceAllStringFunc(val, func(match string) string {
		return match[:6] + "..." + match[len(match)-4:]
	})

	val = longHexPattern.ReplaceAllStringFunc(val, func(match string) string {
		return match[:8] + "...[REDACTED]"
	})

	return val
}

// EnableRedaction wraps the current global logger with a RedactingHandler.
// After calling this, all log output through the global logging functions
// will have sensitive values automatically redacted.
func EnableRedaction() {
	mu.Lock()
	defer mu.Unlock()

	handler := defaultLogger.Handler()

	// Avoid double-wrapping if already a RedactingHandler
	if _, ok := handler.(*RedactingHandler); ok {
		return
	}

	defaultLogger = slog.New(NewRedactingHandler(handler))
}

// NewRedactingLogger creates a new slog.Logger with redaction enabled.
func NewRedactingLogger(inner slog.Handler) *slog.Logger {
	return slog.New(NewRedactingHandler(inner))
}
