package env

import "strings"

const (
	// GeminiKeyPrefix is the prefix every Google API key carries.
	GeminiKeyPrefix = "AIza"
	// GeminiKeyMinLength is the shortest key accepted as
	// well-formed.
	GeminiKeyMinLength = 30
)

// RedactAPIKey masks an API key, showing only the first 4 and
// last 4 characters.
func RedactAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// MaskKey renders a key for display: a fixed run of bullets and
// the last four characters. Empty keys render empty.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	last := key
	if len(key) > 4 {
		last = key[len(key)-4:]
	}
	return strings.Repeat("•", 10) + last
}

// ValidateAPIKeyFormat reports whether key looks like a Google
// API key. It does not contact the service.
func ValidateAPIKeyFormat(key string) bool {
	return strings.HasPrefix(key, GeminiKeyPrefix) &&
		len(key) >= GeminiKeyMinLength
}
