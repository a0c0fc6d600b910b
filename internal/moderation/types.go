package moderation

import (
	"encoding/json"
	"fmt"
)

// Match is the evidence behind a positive Detection. It is implemented only by
// PatternMatch and PhraseMatch.
type Match interface {
	Category() Category
	isMatch()
}

// PatternMatch is produced when one of the pattern categories matched.
type PatternMatch struct {
	Kind    Category
	Pattern string // source of the pattern that matched
}

func (m PatternMatch) Category() Category { return m.Kind }
func (PatternMatch) isMatch()             {}

// PhraseMatch is produced by the suspicious-phrase fallback.
type PhraseMatch struct {
	Phrase string
}

func (PhraseMatch) Category() Category { return CategorySuspiciousPhrase }
func (PhraseMatch) isMatch()           {}

// Detection is the result of Detect. The zero value means no personal
// information was found.
type Detection struct {
	Match Match
}

// HasPersonalInfo reports whether anything matched.
func (d Detection) HasPersonalInfo() bool { return d.Match != nil }

// Category returns the matched category, or "" for a clean detection.
func (d Detection) Category() Category {
	if d.Match == nil {
		return ""
	}
	return d.Match.Category()
}

// detectionJSON is the wire form of a Detection.
type detectionJSON struct {
	HasPersonalInfo bool     `json:"has_personal_info"`
	Type            Category `json:"type,omitempty"`
	MatchedPattern  string   `json:"matched_pattern,omitempty"`
	MatchedPhrase   string   `json:"matched_phrase,omitempty"`
}

// MarshalJSON flattens the match variant into a single object.
func (d Detection) MarshalJSON() ([]byte, error) {
	out := detectionJSON{HasPersonalInfo: d.HasPersonalInfo()}
	switch m := d.Match.(type) {
	case PatternMatch:
		out.Type = m.Kind
		out.MatchedPattern = m.Pattern
	case PhraseMatch:
		out.Type = CategorySuspiciousPhrase
		out.MatchedPhrase = m.Phrase
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds the match variant from its wire form.
func (d *Detection) UnmarshalJSON(data []byte) error {
	var in detectionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("moderation: decode detection: %w", err)
	}
	switch {
	case !in.HasPersonalInfo:
		d.Match = nil
	case in.Type == CategorySuspiciousPhrase:
		d.Match = PhraseMatch{Phrase: in.MatchedPhrase}
	case in.Type.Valid():
		d.Match = PatternMatch{Kind: in.Type, Pattern: in.MatchedPattern}
	default:
		return fmt.Errorf("moderation: unknown detection type %q", in.Type)
	}
	return nil
}

// Message is one prior message in a conversation. Only Content is inspected.
type Message struct {
	Content string `json:"content"`
}
