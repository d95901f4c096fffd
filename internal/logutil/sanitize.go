package logutil

import "strings"

// tokenPrefixLen is how much of a bearer token may appear in logs.
const tokenPrefixLen = 8

// SanitizeForLog strips newlines and control characters from client-supplied
// strings so they cannot forge additional log entries.
func SanitizeForLog(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// TokenPrefix returns a loggable reference to a token without revealing it.
func TokenPrefix(token string) string {
	if len(token) <= tokenPrefixLen {
		return strings.Repeat("*", len(token))
	}
	return SanitizeForLog(token[:tokenPrefixLen]) + "…"
}
