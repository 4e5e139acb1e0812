package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces secrets in log output.
const RedactedValue = "[REDACTED]"

// truncateKeep is how many leading and trailing characters of an opaque
// value survive truncation.
const truncateKeep = 8

// secretKeys never reach the log in any form.
var secretKeys = map[string]struct{}{
	"passphrase":  {},
	"password":    {},
	"private_key": {},
	"privatekey":  {},
	"keystore":    {},
}

// opaqueKeys are correlated by prefix and suffix only. A full request
// signature with its nonce is enough to replay a request inside the skew.
var opaqueKeys = map[string]struct{}{
	"signature": {},
	"nonce":     {},
}

// Redact masks secret attributes and truncates opaque ones. Setup installs
// it on every handler; call sites that log through other handlers may use
// it directly.
func Redact(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() != slog.KindString || attr.Value.String() == "" {
		return attr
	}
	key := strings.ToLower(strings.TrimSpace(attr.Key))
	if _, ok := secretKeys[key]; ok {
		return slog.String(attr.Key, RedactedValue)
	}
	if _, ok := opaqueKeys[key]; ok {
		return slog.String(attr.Key, Truncate(attr.Value.String(), truncateKeep))
	}
	return attr
}

// Truncate keeps the first and last n characters of long opaque values such
// as signatures so they can be correlated without being reproduced.
func Truncate(value string, n int) string {
	if n <= 0 || len(value) <= 2*n+3 {
		return value
	}
	return value[:n] + "..." + value[len(value)-n:]
}
