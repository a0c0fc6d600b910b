package moderation

// Warnings shown to the sender, by category.
const (
	WarningEmail            = "Sharing email addresses is not allowed. Please keep all communication within our in-app messaging."
	WarningPhone            = "Sharing phone numbers is not allowed. Please keep all communication within our in-app messaging."
	WarningSocialMedia      = "Sharing social media handles is not allowed."
	WarningWebsites         = "Sharing external links is not allowed."
	WarningSuspiciousPhrase = "Your message contains language suggesting an attempt to share contact information."
	WarningGeneric          = "This content is not allowed. Please keep all communication on the platform."
	WarningSpam             = "Your message looks like spam. Please avoid repeating messages, excessive capitals, punctuation or unusual characters."
)

// WarningFor returns the warning for d. ok is false when d is clean.
// Categories without a dedicated text get WarningGeneric.
func WarningFor(d Detection) (warning string, ok bool) {
	if !d.HasPersonalInfo() {
		return "", false
	}
	switch d.Category() {
	case CategoryEmail:
		return WarningEmail, true
	case CategoryPhone:
		return WarningPhone, true
	case CategorySocialMedia:
		return WarningSocialMedia, true
	case CategoryWebsites:
		return WarningWebsites, true
	case CategorySuspiciousPhrase:
		return WarningSuspiciousPhrase, true
	default:
		return WarningGeneric, true
	}
}
