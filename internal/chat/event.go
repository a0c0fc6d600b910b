package chat

import "github.com/closetloop/gatekeeper/internal/moderation"

// Entry is one delivered message kept in a conversation's recent history.
type Entry struct {
	From string `json:"from"` // sender user ID
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// Prior converts history entries into the form the spam check consumes.
// When sender is non-empty only that sender's entries are kept.
func Prior(entries []Entry, sender string) []moderation.Message {
	out := make([]moderation.Message, 0, len(entries))
	for _, e := range entries {
		if sender != "" && e.From != sender {
			continue
		}
		out = append(out, moderation.Message{Content: e.Text})
	}
	return out
}

// DeliveryEvent is published once a message has passed moderation. It is the
// only way a message reaches the recipient.
type DeliveryEvent struct {
	Type           string `json:"type"` // "message"
	ConversationID string `json:"conversation_id"`
	From           string `json:"from"`
	To             string `json:"to"`
	Text           string `json:"text"`
	Ts             int64  `json:"ts"`
}

// ReviewEvent is published when a listing review passes validation.
type ReviewEvent struct {
	ListingID string `json:"listing_id"`
	AuthorID  string `json:"author_id"`
	Text      string `json:"text"`
	Ts        int64  `json:"ts"`
}
