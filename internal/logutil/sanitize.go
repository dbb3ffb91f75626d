package logutil

import "strings"

// MaxLogValueLength bounds user-provided values written to the log.
const MaxLogValueLength = 200

// SanitizeForLog removes newlines and control characters from user-provided
// strings so they cannot forge log entries, and truncates long values.
func SanitizeForLog(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	var result strings.Builder
	result.Grow(len(s))
	n := 0
	for _, r := range s {
		if r < 32 || r == 0x7f {
			continue
		}
		if n == MaxLogValueLength {
			result.WriteString("...")
			break
		}
		result.WriteRune(r)
		n++
	}
	return result.String()
}
