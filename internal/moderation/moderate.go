package moderation

// Action is the outcome of Moderate.
type Action string

const (
	ActionAllow        Action = "allow"
	ActionBlockSpam    Action = "block-spam"
	ActionBlockContent Action = "block-content"
)

// Decision is the result of Moderate.
//
// allow carries Content, the original text unchanged. block-spam carries the
// spam breakdown. block-content carries the detection and a Redacted copy of
// the text that is safe to display. Message is set on both block actions.
type Decision struct {
	Action    Action      `json:"action"`
	Message   string      `json:"message,omitempty"`
	Content   string      `json:"content,omitempty"`
	Redacted  string      `json:"redacted,omitempty"`
	Spam      *SpamResult `json:"spam,omitempty"`
	Detection *Detection  `json:"detection,omitempty"`
}

// Allowed reports whether the message may be delivered.
func (d Decision) Allowed() bool { return d.Action == ActionAllow }

// Moderate runs the spam heuristics and then the content validator, stopping
// at the first failure. prior is the recent history of the conversation.
func Moderate(content string, prior []Message) Decision {
	if spam := CheckSpam(content, prior); spam.Spam {
		return Decision{
			Action:  ActionBlockSpam,
			Message: WarningSpam,
			Spam:    &spam,
		}
	}

	v := Validate(content)
	if !v.Valid {
		warning, _ := WarningFor(*v.Details)
		return Decision{
			Action:    ActionBlockContent,
			Message:   warning,
			Redacted:  Redact(content),
			Detection: v.Details,
		}
	}

	return Decision{Action: ActionAllow, Content: v.Content}
}
