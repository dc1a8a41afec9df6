// Package logging builds the slog loggers used across Prospector.
//
// Every logger is wrapped in a RedactingHandler so that search API keys,
// LLM tokens and credentials embedded in URLs never reach the log output,
// even in verbose mode where request URLs are logged.
package logging

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// MaskValue replaces redacted values
const MaskValue = "***REDACTED***"

// sensitiveKeys are attribute keys whose values are always masked
var sensitiveKeys = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"proxy-authorization": true,
	"password":            true,
	"secret":              true,
	"token":               true,
	"key":                 true,
	"api_key":             true,
	"apikey":              true,
	"api-key":             true,
	"access_token":        true,
	"cx":                  true,
	"engine_id":           true,
}

// sensitiveKeywords mask any key that contains them
var sensitiveKeywords = []string{"password", "secret", "token", "api_key", "apikey", "credential"}

// sensitivePatterns mask a whole string value
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^AIza[0-9A-Za-z_\-]{35}$`),             // Google API key
	regexp.MustCompile(`^sk-[A-Za-z0-9_\-]{20,}$`),             // OpenAI key
	regexp.MustCompile(`(?i)^bearer\s+.+`),                     // Bearer header
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.`), // JWT
}

// inlinePatterns redact secrets embedded in longer strings such as URLs and error messages
var inlinePatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`([?&](?:key|api_key|apikey|token|access_token|cx)=)[^&\s"']+`), "${1}" + MaskValue},
	{regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`), MaskValue},
	{regexp.MustCompile(`sk-[A-Za-z0-9_\-]{20,}`), MaskValue},
	{regexp.MustCompile(`(//[^/:@\s]+:)[^@/\s]+@`), "${1}" + MaskValue + "@"},
}

// RedactingHandler wraps an slog.Handler and masks sensitive attributes
type RedactingHandler struct {
	handler slog.Handler
}

// NewRedactingHandler wraps handler. A nil handler wraps slog.Default().Handler().
func NewRedactingHandler(handler slog.Handler) *RedactingHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &RedactingHandler{handler: handler}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, Redact(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, clean)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = sanitizeAttr(a)
	}
	return &RedactingHandler{handler: h.handler.WithAttrs(clean)}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{handler: h.handler.WithGroup(name)}
}

func sanitizeAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		clean := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			clean[i] = sanitizeAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	}

	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, Redact(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, Redact(err.Error()))
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	if sensitiveKeys[k] {
		return true
	}
	for _, kw := range sensitiveKeywords {
		if strings.Contains(k, kw) {
			return true
		}
	}
	return false
}

// Redact masks secrets in s. Whole-value secrets are replaced entirely,
// embedded ones (URL query parameters, URL userinfo, known key formats) in place.
func Redact(s string) string {
	for _, p := range sensitivePatterns {
		if p.MatchString(s) {
			return MaskValue
		}
	}
	for _, p := range inlinePatterns {
		s = p.re.ReplaceAllString(s, p.repl)
	}
	return s
}

// New creates a redacting logger writing to w. verbose enables debug output;
// jsonOutput selects the JSON handler over the text handler.
func New(w io.Writer, verbose, jsonOutput bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(NewRedactingHandler(handler))
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
