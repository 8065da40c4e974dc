package router

import (
	"strconv"
	"unicode/utf8"
)

// preview returns at most n bytes of s, cut on a rune boundary, with an ellipsis when shortened
func preview(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

// truncateToolResult bounds a tool result before it is fed back to the model.
// maxBytes <= 0 disables truncation.
func truncateToolResult(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	return preview(s, maxBytes) + "\n[truncated: result was " + strconv.Itoa(len(s)) + " bytes]"
}
