package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestContentRequest_Decode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"string", `{"content":"hello"}`, "hello", nil},
		{"empty string is content", `{"content":""}`, "", nil},
		{"escaped", `{"content":"a@b.com"}`, "a@b.com", nil},
		{"missing", `{}`, "", ErrMissingContent},
		{"null", `{"content":null}`, "", ErrMissingContent},
		{"number", `{"content":42}`, "", ErrInvalidContent},
		{"object", `{"content":{"text":"hi"}}`, "", ErrInvalidContent},
		{"array", `{"content":["hi"]}`, "", ErrInvalidContent},
		{"not an object", `"hello"`, "", ErrMalformedRequest},
		{"broken json", `{"content":`, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req ContentRequest
			err := json.Unmarshal([]byte(tt.input), &req)
			if tt.name == "broken json" {
				if err == nil {
					t.Fatal("expected syntax error")
				}
				return
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.Content != tt.want {
				t.Errorf("Content = %q, want %q", req.Content, tt.want)
			}
		})
	}
}

func TestModerateRequest_Decode(t *testing.T) {
	var req ModerateRequest
	err := json.Unmarshal([]byte(`{"content":"hi","prior_messages":[{"content":"hey"},{"content":"hi"}]}`), &req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Content != "hi" || len(req.PriorMessages) != 2 || req.PriorMessages[1].Content != "hi" {
		t.Errorf("decoded = %+v", req)
	}

	if err := json.Unmarshal([]byte(`{"content":"hi"}`), &req); err != nil {
		t.Fatalf("prior_messages should be optional: %v", err)
	}
	if req.PriorMessages == nil || len(req.PriorMessages) != 0 {
		t.Errorf("PriorMessages = %#v, want empty non-nil", req.PriorMessages)
	}

	err = json.Unmarshal([]byte(`{"content":"hi","prior_messages":[{"content":7}]}`), &req)
	if !errors.Is(err, ErrInvalidContent) {
		t.Errorf("non-string prior content: err = %v, want ErrInvalidContent", err)
	}
}

func TestSendMessageRequest_Decode(t *testing.T) {
	var req SendMessageRequest
	err := json.Unmarshal([]byte(`{"sender_id":"alice","recipient_id":"bob","content":"is the coat still free?"}`), &req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := SendMessageRequest{SenderID: "alice", RecipientID: "bob", Content: "is the coat still free?"}
	if req != want {
		t.Errorf("decoded = %+v, want %+v", req, want)
	}

	err = json.Unmarshal([]byte(`{"sender_id":"alice","content":null}`), &req)
	if !errors.Is(err, ErrMissingContent) {
		t.Errorf("err = %v, want ErrMissingContent", err)
	}
}

func TestReviewAndSanitizeRequest_Decode(t *testing.T) {
	var rr ReviewRequest
	if err := json.Unmarshal([]byte(`{"author_id":"u1","content":"fit perfectly"}`), &rr); err != nil {
		t.Fatalf("review: %v", err)
	}
	if rr.AuthorID != "u1" || rr.Content != "fit perfectly" {
		t.Errorf("review = %+v", rr)
	}

	var sr SanitizeRequest
	if err := json.Unmarshal([]byte(`{"user_id":"u2","content":true}`), &sr); !errors.Is(err, ErrInvalidContent) {
		t.Errorf("sanitize bool content: err = %v, want ErrInvalidContent", err)
	}
}

func TestParseModerationRequest(t *testing.T) {
	req, err := ParseModerationRequest([]byte(`{"request_id":"r1","conversation_id":"c1","sender_id":"alice","recipient_id":"bob","content":"hello"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.RequestID != "r1" || req.ConversationID != "c1" || req.Content != "hello" {
		t.Errorf("decoded = %+v", req)
	}

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"missing conversation", `{"sender_id":"a","content":"x"}`, ErrMalformedRequest},
		{"missing sender", `{"conversation_id":"c","content":"x"}`, ErrMalformedRequest},
		{"missing content", `{"conversation_id":"c","sender_id":"a"}`, ErrMissingContent},
		{"numeric content", `{"conversation_id":"c","sender_id":"a","content":1}`, ErrInvalidContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseModerationRequest([]byte(tt.input)); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestModerationResult_OmitsEmpty(t *testing.T) {
	data, err := json.Marshal(ModerationResult{RequestID: "r1", Action: "allow"})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"request_id":"r1","action":"allow"}` {
		t.Errorf("wire form = %s", data)
	}
}
