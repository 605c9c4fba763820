package logger

import (
	"log/slog"
	"regexp"
	"strings"
)

// Attribute keys whose values are always redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"account_key",
	"accountkey",
	"access_key",
	"connection_string",
	"encryption_key",
	"credential",
	"token",
	"authorization",
}

// Credential-shaped values, redacted under any key.
var sensitiveValuePatterns = []*regexp.Regexp{
	// AWS access key ids.
	regexp.MustCompile(`\b(AKIA|ASIA)[A-Z0-9]{16}\b`),
	// Azure connection string and SAS fragments.
	regexp.MustCompile(`(?i)(AccountKey|SharedAccessSignature|sig)=[^;&\s]+`),
}

const redactedValue = "***REDACTED***"

func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if s == "" {
			return a
		}
		if IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
		if r := RedactString(s); r != s {
			return slog.String(a.Key, r)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			msg := err.Error()
			if r := RedactString(msg); r != msg {
				return slog.String(a.Key, r)
			}
		}
	}
	return a
}

// RedactString masks credential-shaped substrings of value.
func RedactString(value string) string {
	for _, re := range sensitiveValuePatterns {
		value = re.ReplaceAllStringFunc(value, func(m string) string {
			if i := strings.IndexByte(m, '='); i >= 0 {
				return m[:i+1] + redactedValue
			}
			return redactedValue
		})
	}
	return value
}

// IsSensitiveKey reports whether a key name suggests secret content.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, p := range sensitiveKeyPatterns {
		if strings.Contains(k, p) {
			return true
		}
	}
	return false
}
