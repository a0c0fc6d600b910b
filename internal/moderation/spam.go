package moderation

import (
	"regexp"
	"unicode/utf8"
)

// punctuationRunPattern matches three or more consecutive ! ? . or ,
var punctuationRunPattern = regexp.MustCompile(`[!?.,]{3,}`)

// SpamChecks is the per-heuristic breakdown of a spam check.
type SpamChecks struct {
	Repeated             bool `json:"is_repeated"`
	ExcessiveCaps        bool `json:"has_excessive_caps"`
	CharRepetition       bool `json:"has_char_repetition"`
	ExcessivePunctuation bool `json:"has_excessive_punctuation"`
	SuspiciousChars      bool `json:"has_suspicious_chars"`
}

// SpamResult is the outcome of CheckSpam. Spam is the OR of all checks.
type SpamResult struct {
	Spam   bool       `json:"is_spam"`
	Checks SpamChecks `json:"checks"`
}

// Fired returns the names of the checks that were true, in check order.
func (r SpamResult) Fired() []string {
	var names []string
	for _, sc := range spamChecks {
		if *sc.field(&r.Checks) {
			names = append(names, sc.name)
		}
	}
	return names
}

// spamCheck pairs a heuristic with the SpamChecks field it sets.
type spamCheck struct {
	name  string
	match func(content string, prior []Message) bool
	field func(*SpamChecks) *bool
}

// spamChecks is applied in full on every call; callers read the breakdown, so
// nothing short-circuits.
var spamChecks = []spamCheck{
	{name: "repeated", match: isRepeated, field: func(c *SpamChecks) *bool { return &c.Repeated }},
	{name: "excessive_caps", match: func(s string, _ []Message) bool { return hasExcessiveCaps(s) },
		field: func(c *SpamChecks) *bool { return &c.ExcessiveCaps }},
	{name: "char_repetition", match: func(s string, _ []Message) bool { return hasCharFlood(s) },
		field: func(c *SpamChecks) *bool { return &c.CharRepetition }},
	{name: "excessive_punctuation", match: func(s string, _ []Message) bool { return punctuationRunPattern.MatchString(s) },
		field: func(c *SpamChecks) *bool { return &c.ExcessivePunctuation }},
	{name: "suspicious_chars", match: func(s string, _ []Message) bool { return hasNonASCII(s) },
		field: func(c *SpamChecks) *bool { return &c.SuspiciousChars }},
}

// CheckSpam runs every spam heuristic against content. prior is the sender's
// recent conversation history and may be empty.
func CheckSpam(content string, prior []Message) SpamResult {
	var res SpamResult
	for _, sc := range spamChecks {
		hit := sc.match(content, prior)
		*sc.field(&res.Checks) = hit
		res.Spam = res.Spam || hit
	}
	return res
}

// isRepeated reports whether content exactly equals any prior message.
func isRepeated(content string, prior []Message) bool {
	for _, m := range prior {
		if m.Content == content {
			return true
		}
	}
	return false
}

// hasExcessiveCaps reports whether ASCII capitals make up more than half of
// content's characters. Empty content is never excessive.
func hasExcessiveCaps(content string) bool {
	total := utf8.RuneCountInString(content)
	if total == 0 {
		return false
	}
	caps := 0
	for i := 0; i < len(content); i++ {
		if c := content[i]; c >= 'A' && c <= 'Z' {
			caps++
		}
	}
	return caps*2 > total
}

// hasCharFlood returns true if text contains 5 or more consecutive identical
// characters. Go's regexp package (RE2) does not support backreferences, so
// this is implemented as a simple linear scan which is both correct and fast.
func hasCharFlood(text string) bool {
	const threshold = 5

	count := 1
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}

// hasNonASCII reports whether text contains any byte outside 0x00-0x7F.
func hasNonASCII(text string) bool {
	for i := 0; i < len(text); i++ {
		if text[i] >= utf8.RuneSelf {
			return true
		}
	}
	return false
}
