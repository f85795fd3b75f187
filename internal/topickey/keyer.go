// Package topickey derives deterministic, order-independent fingerprints
// from closing summaries. Two summaries describing the same issue with the
// same significant words map to the same key, which is what lets the topic
// engine count repeats without any search infrastructure.
package topickey

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxTokens bounds how many significant tokens enter a key.
	MaxTokens = 12
	// MaxKeyLength caps the final key size in bytes.
	MaxKeyLength = 120
	// MinTokenLength drops short filler words before stop-word checks.
	MinTokenLength = 4

	separator = "-"
)

// stopWords are generic English filler plus words that appear in nearly
// every support summary and therefore carry no topic signal.
var stopWords = map[string]struct{}{
	"about": {}, "after": {}, "again": {}, "also": {}, "always": {},
	"another": {}, "anyone": {}, "because": {}, "been": {}, "before": {},
	"being": {}, "cannot": {}, "could": {}, "customer": {}, "does": {},
	"doesn": {}, "doesnt": {}, "dont": {}, "error": {}, "every": {}, "failed": {},
	"failing": {}, "fails": {}, "getting": {}, "have": {}, "having": {},
	"help": {}, "issue": {}, "issues": {}, "just": {}, "keeps": {},
	"like": {}, "longer": {}, "need": {}, "needs": {}, "other": {},
	"please": {}, "problem": {}, "problems": {}, "really": {}, "says": {},
	"should": {}, "since": {}, "still": {}, "support": {}, "thanks": {},
	"that": {}, "their": {}, "them": {}, "then": {}, "there": {},
	"they": {}, "this": {}, "ticket": {}, "tried": {}, "trying": {},
	"unable": {}, "user": {}, "users": {}, "very": {}, "want": {},
	"wants": {}, "were": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "while": {}, "will": {}, "with": {}, "wont": {},
	"would": {}, "your": {},
}

// Key derives the similarity key for a closing summary. It returns the
// empty string when no significant tokens survive filtering, in which case
// the summary is not clusterable.
func Key(summary string) string {
	normalized := normalize(summary)
	seen := make(map[string]struct{})
	var tokens []string
	for _, token := range strings.Fields(normalized) {
		if len(token) < MinTokenLength {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	if len(tokens) == 0 {
		return ""
	}

	sort.Strings(tokens)
	if len(tokens) > MaxTokens {
		tokens = tokens[:MaxTokens]
	}
	key := strings.Join(tokens, separator)
	if len(key) > MaxKeyLength {
		cut := MaxKeyLength
		// never split a rune; a partial final token is fine, invalid
		// UTF-8 is not
		for cut > 0 && !utf8.RuneStart(key[cut]) {
			cut--
		}
		key = strings.TrimRight(key[:cut], separator)
	}
	return key
}

// normalize lowercases the text and replaces punctuation with spaces so
// "card-declined!" and "card declined" tokenize identically.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return b.String()
}
