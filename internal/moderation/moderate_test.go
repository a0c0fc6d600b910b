package moderation

import (
	"errors"
	"testing"
)

func TestValidate_PassThrough(t *testing.T) {
	inputs := []string{
		"  keep   my   spacing  ",
		"MiXeD CaSe stays",
		"",
		"naïve café",
	}
	for _, in := range inputs {
		res := Validate(in)
		if !res.Valid {
			t.Fatalf("Validate(%q) invalid: %s", in, res.Error)
		}
		if res.Content != in {
			t.Errorf("Validate(%q).Content = %q, want exact input", in, res.Content)
		}
		if res.Details != nil || res.Error != "" {
			t.Errorf("Validate(%q) carries failure fields on success: %+v", in, res)
		}
	}
}

func TestValidate_Rejects(t *testing.T) {
	res := Validate("text me on telegram")
	if res.Valid {
		t.Fatal("expected invalid")
	}
	if res.Error != MessageContactInfo {
		t.Errorf("Error = %q, want %q", res.Error, MessageContactInfo)
	}
	if res.Details == nil || res.Details.Category() != CategoryCommonPlatforms {
		t.Errorf("Details = %+v, want commonPlatforms", res.Details)
	}
	if res.Content != "" {
		t.Errorf("Content = %q, want empty on failure", res.Content)
	}
}

func TestSanitize(t *testing.T) {
	got, err := Sanitize("Vintage lover, size 8, based in Leeds")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Vintage lover, size 8, based in Leeds" {
		t.Errorf("Sanitize changed clean input: %q", got)
	}

	_, err = Sanitize("find me on instagram")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrPersonalInfo) {
		t.Errorf("errors.Is(err, ErrPersonalInfo) = false for %v", err)
	}
	if err.Error() != FieldContactInfo {
		t.Errorf("err.Error() = %q, want %q", err.Error(), FieldContactInfo)
	}
	var pie *PersonalInfoError
	if !errors.As(err, &pie) {
		t.Fatalf("expected *PersonalInfoError, got %T", err)
	}
	if pie.Detection.Category() != CategoryCommonPlatforms {
		t.Errorf("Detection category = %q, want %q", pie.Detection.Category(), CategoryCommonPlatforms)
	}
}

func TestWarningFor(t *testing.T) {
	tests := []struct {
		category Category
		want     string
	}{
		{CategoryEmail, WarningEmail},
		{CategoryPhone, WarningPhone},
		{CategorySocialMedia, WarningSocialMedia},
		{CategoryWebsites, WarningWebsites},
		{CategorySuspiciousPhrase, WarningSuspiciousPhrase},
		{CategoryCommonPlatforms, WarningGeneric},
		{CategoryObfuscatedEmail, WarningGeneric},
		{CategoryObfuscatedPhone, WarningGeneric},
		{CategorySpelledOutDomains, WarningGeneric},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			var d Detection
			if tt.category == CategorySuspiciousPhrase {
				d = Detection{Match: PhraseMatch{Phrase: "dm me"}}
			} else {
				d = Detection{Match: PatternMatch{Kind: tt.category}}
			}
			got, ok := WarningFor(d)
			if !ok {
				t.Fatal("ok = false for positive detection")
			}
			if got != tt.want {
				t.Errorf("WarningFor(%s) = %q, want %q", tt.category, got, tt.want)
			}
		})
	}
}

func TestWarningFor_Exhaustive(t *testing.T) {
	for _, c := range Categories() {
		d := Detection{Match: PatternMatch{Kind: c}}
		if w, ok := WarningFor(d); !ok || w == "" {
			t.Errorf("no warning for category %q", c)
		}
	}

	if w, ok := WarningFor(Detection{Match: PatternMatch{Kind: "unmapped"}}); !ok || w != WarningGeneric {
		t.Errorf("unmapped category got %q, %v", w, ok)
	}
	if w, ok := WarningFor(Detection{}); ok || w != "" {
		t.Errorf("clean detection got %q, %v", w, ok)
	}
}

func TestModerate_Scenarios(t *testing.T) {
	tests := []struct {
		name    string
		content string
		prior   []Message
		action  Action
		message string
	}{
		{"repeat of history", "hi", []Message{{Content: "hi"}}, ActionBlockSpam, WarningSpam},
		{"email", "Let's meet, email me at a@b.com", nil, ActionBlockContent, WarningEmail},
		{"clean", "I love this dress, is it available in size M?", nil, ActionAllow, ""},
		{"obfuscated phone gets generic text", "my cell is 555 123 4567", nil, ActionBlockContent, WarningGeneric},
		{"phrase", "just dm me", nil, ActionBlockContent, WarningSuspiciousPhrase},
		{"shouting", "RENT IT NOW", nil, ActionBlockSpam, WarningSpam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Moderate(tt.content, tt.prior)
			if d.Action != tt.action {
				t.Fatalf("Moderate(%q).Action = %q, want %q", tt.content, d.Action, tt.action)
			}
			if d.Message != tt.message {
				t.Errorf("Moderate(%q).Message = %q, want %q", tt.content, d.Message, tt.message)
			}
		})
	}
}

func TestModerate_SpamRunsFirst(t *testing.T) {
	msg := "email me at a@b.com"
	d := Moderate(msg, []Message{{Content: msg}})
	if d.Action != ActionBlockSpam {
		t.Fatalf("Action = %q, want %q", d.Action, ActionBlockSpam)
	}
	if d.Spam == nil || !d.Spam.Checks.Repeated {
		t.Errorf("Spam = %+v, want Repeated", d.Spam)
	}
	if d.Detection != nil || d.Redacted != "" {
		t.Errorf("content stage ran after spam block: %+v", d)
	}
}

func TestModerate_AllowKeepsContent(t *testing.T) {
	msg := "I love this dress, is it available in size M?"
	d := Moderate(msg, nil)
	if !d.Allowed() {
		t.Fatalf("Action = %q, want allow", d.Action)
	}
	if d.Content != msg {
		t.Errorf("Content = %q, want %q", d.Content, msg)
	}
	if d.Message != "" || d.Redacted != "" || d.Spam != nil || d.Detection != nil {
		t.Errorf("allow decision carries block fields: %+v", d)
	}
}

func TestModerate_BlockContentRedacts(t *testing.T) {
	d := Moderate("Let's meet, email me at a@b.com", nil)
	if d.Redacted != "Let's meet, email me at [redacted]" {
		t.Errorf("Redacted = %q", d.Redacted)
	}
	if d.Detection == nil || d.Detection.Category() != CategoryEmail {
		t.Errorf("Detection = %+v, want email", d.Detection)
	}
	if d.Content != "" {
		t.Errorf("Content = %q, want empty on block", d.Content)
	}
}
