package moderation

import "errors"

// User-facing failure texts.
const (
	MessageContactInfo = "Messages cannot contain personal contact information."
	FieldContactInfo   = "Personal information is not allowed in this field."
)

// ErrPersonalInfo is matched by every *PersonalInfoError.
var ErrPersonalInfo = errors.New("moderation: personal information detected")

// ValidationResult is the structured outcome of Validate. Content is set only
// when the input is valid; Error and Details only when it is not.
type ValidationResult struct {
	Valid   bool       `json:"is_valid"`
	Error   string     `json:"error,omitempty"`
	Details *Detection `json:"details,omitempty"`
	Content string     `json:"content,omitempty"`
}

// Validate gates content on Detect. Valid content is returned exactly as given.
func Validate(content string) ValidationResult {
	d := Detect(content)
	if !d.HasPersonalInfo() {
		return ValidationResult{Valid: true, Content: content}
	}
	return ValidationResult{
		Valid:   false,
		Error:   MessageContactInfo,
		Details: &d,
	}
}

// PersonalInfoError is returned by Sanitize when content carries personal
// information.
type PersonalInfoError struct {
	Detection Detection
}

func (e *PersonalInfoError) Error() string { return FieldContactInfo }

// Is makes errors.Is(err, ErrPersonalInfo) hold.
func (e *PersonalInfoError) Is(target error) bool { return target == ErrPersonalInfo }

// Sanitize is the fail-fast form of Validate for free-text fields such as
// profile bios. It returns content unchanged or a *PersonalInfoError.
func Sanitize(content string) (string, error) {
	d := Detect(content)
	if d.HasPersonalInfo() {
		return "", &PersonalInfoError{Detection: d}
	}
	return content, nil
}
