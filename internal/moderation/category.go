package moderation

// Category names one class of personal-information pattern.
type Category string

const (
	CategoryEmail             Category = "email"
	CategoryPhone             Category = "phone"
	CategorySocialMedia       Category = "socialMedia"
	CategoryWebsites          Category = "websites"
	CategoryCommonPlatforms   Category = "commonPlatforms"
	CategoryObfuscatedEmail   Category = "obfuscatedEmail"
	CategoryObfuscatedPhone   Category = "obfuscatedPhone"
	CategorySpelledOutDomains Category = "spelledOutDomains"
	CategorySuspiciousPhrase  Category = "suspicious_phrase"
)

// Categories returns every pattern category in evaluation order followed by
// CategorySuspiciousPhrase, which is only consulted when no pattern matched.
func Categories() []Category {
	out := make([]Category, 0, len(rules)+1)
	for _, r := range rules {
		out = append(out, r.category)
	}
	return append(out, CategorySuspiciousPhrase)
}

// Valid reports whether c is a category the detector can produce.
func (c Category) Valid() bool {
	if c == CategorySuspiciousPhrase {
		return true
	}
	for _, r := range rules {
		if r.category == c {
			return true
		}
	}
	return false
}
