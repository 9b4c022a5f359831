// Package utils provides common utility functions.
package utils

import "strings"

// MaskKey masks a credential for safe logging (shows first 8 and last 4 chars).
// Use this for client secrets, access keys and bearer tokens so they never
// appear in plain text in log output.
func MaskKey(key string) string {
	if key == "" {
		return "(empty)"
	}
	if len(key) < 16 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

// IsBlank reports whether s is empty or whitespace only.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Truncate shortens a value for log output. Values at or under maxLen are
// returned unchanged.
func Truncate(value string, maxLen int) string {
	if maxLen <= 0 || len(value) <= maxLen {
		return value
	}
	return value[:maxLen] + "..."
}
