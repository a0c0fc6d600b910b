package moderation

import (
	"regexp"
	"strings"
)

// Placeholder replaces every personal-information match in redacted text.
const Placeholder = "[redacted]"

// rule pairs a category with the pattern that detects it.
type rule struct {
	category Category
	pattern  *regexp.Regexp
}

// rules is evaluated top to bottom. Detect stops at the first match and Redact
// substitutes category by category in the same order, so reordering this list
// changes observable results.
var rules = []rule{
	{CategoryEmail, regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)},
	{CategoryPhone, regexp.MustCompile(`(?:\+?1[-. ]?)?(?:\(\d{3}\)\s?|\d{3}[-.]?)\d{3}[-.]?\d{4}`)},
	{CategorySocialMedia, regexp.MustCompile(`(?:^|\s)[@#][a-zA-Z0-9_]+`)},
	{CategoryWebsites, regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?[a-z0-9-]+(?:\.[a-z0-9-]+)*\.[a-z]{2,}(?:/\S*)?`)},
	{CategoryCommonPlatforms, regexp.MustCompile(`(?i)whatsapp|telegram|wechat|snapchat|instagram|facebook|venmo|paypal|cash\s?app|zelle|skype|discord|viber`)},
	{CategoryObfuscatedEmail, regexp.MustCompile(`[a-zA-Z0-9._%+-]+\s*[@＠]\s*[a-zA-Z0-9-]+\s*\.\s*[a-zA-Z]{2,}`)},
	{CategoryObfuscatedPhone, regexp.MustCompile(`\d{3}[\s.-]+\d{3}[\s.-]+\d{4}`)},
	{CategorySpelledOutDomains, regexp.MustCompile(`(?i)(?:gmail|yahoo|hotmail|outlook)\s*(?:dot|period|punkt|\.)\s*(?:com|net|org|de|co)`)},
}

// suspiciousPhrases are matched case-insensitively as substrings, in order,
// only when no pattern matched. Entries must be lower case.
var suspiciousPhrases = []string{
	"contact me",
	"dm me",
	"text me",
	"call me",
	"email me",
	"my number",
	"my phone",
	"my email",
	"my insta",
	"reach me at",
	"hit me up",
	"message me on",
	"add me on",
	"outside the app",
	"off the app",
	"off platform",
	"at gmail",
	"at yahoo",
	"at hotmail",
	"at outlook",
	"dot com",
	"dot net",
	"dot org",
}

// Detect returns the first personal-information match in text. Categories are
// tried in rule order and the phrase list is the fallback. An empty Detection
// means text is clean.
func Detect(text string) Detection {
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			return Detection{Match: PatternMatch{Kind: r.category, Pattern: r.pattern.String()}}
		}
	}

	lower := strings.ToLower(text)
	for _, phrase := range suspiciousPhrases {
		if strings.Contains(lower, phrase) {
			return Detection{Match: PhraseMatch{Phrase: phrase}}
		}
	}
	return Detection{}
}

// Redact replaces every pattern match with Placeholder. Each category runs on
// the output of the previous one; the phrase list is not applied.
func Redact(text string) string {
	for _, r := range rules {
		text = r.pattern.ReplaceAllLiteralString(text, Placeholder)
	}
	return text
}

// PatternFor returns the pattern source for a pattern category.
func PatternFor(c Category) (string, bool) {
	for _, r := range rules {
		if r.category == c {
			return r.pattern.String(), true
		}
	}
	return "", false
}
