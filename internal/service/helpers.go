package service

import (
	"strings"
	"unicode/utf8"
)

// stringPreview truncates body to at most max bytes without splitting a
// rune, marking a cut with an ellipsis.
func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	cut := max
	if cut > 3 {
		cut -= 3
	}
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	if max <= 3 {
		return body[:cut]
	}
	return body[:cut] + "..."
}
