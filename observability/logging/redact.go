package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log lines.
const RedactedValue = "[REDACTED]"

// Keys MaskField always emits verbatim. Identities and operation names are
// public in the router, so they stay readable.
var allowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"component": {},
	"operation": {},
	"method":    {},
	"module":    {},
	"caller":    {},
	"requestid": {},
	"kind":      {},
}

// Keys every handler from NewHandler masks, wherever they are logged.
var sensitive = map[string]struct{}{
	"authorization": {},
	"token":         {},
	"bearertoken":   {},
	"hmacsecret":    {},
	"secret":        {},
	"password":      {},
	"apikey":        {},
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.NewReplacer("_", "", "-", "").Replace(key)
}

// IsAllowlisted reports whether key is exempt from MaskField.
func IsAllowlisted(key string) bool {
	_, ok := allowlist[normalizeKey(key)]
	return ok
}

// IsSensitive reports whether key always carries a credential.
func IsSensitive(key string) bool {
	_, ok := sensitive[normalizeKey(key)]
	return ok
}

// MaskValue returns RedactedValue for non-empty values. Empty values are
// returned unchanged.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns an attribute that redacts value unless key is
// allowlisted. The key casing is preserved.
func MaskField(key, value string) slog.Attr {
	if IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}

func maskSensitive(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindGroup || !IsSensitive(attr.Key) {
		return attr
	}
	return slog.String(attr.Key, MaskValue(attr.Value.String()))
}
