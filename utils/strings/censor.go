// Package strings provides helpers to print sensitive strings.
package strings

import (
	"fmt"
	"strings"
)

// Censor masks a string for debugging, showing a few characters at the start and end.
func Censor(s string, visibleChars int, mask string) string {
	sLen := len(s)
	if sLen <= 2*visibleChars+len(mask) {
		return fmt.Sprintf("%s (len: %d)", strings.Repeat(mask, sLen), sLen)
	}
	return fmt.Sprintf(
		"%s%s%s (len: %d)",
		s[:visibleChars],
		strings.Repeat(mask, 5),
		s[sLen-visibleChars:],
		sLen,
	)
}

// CensorValues censors every value of a map, e.g. HTTP headers.
func CensorValues(m map[string]string, visibleChars int) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = Censor(v, visibleChars, "*")
	}
	return out
}
