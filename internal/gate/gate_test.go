package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/closetloop/gatekeeper/internal/audit"
	"github.com/closetloop/gatekeeper/internal/chat"
	"github.com/closetloop/gatekeeper/internal/feed"
	"github.com/closetloop/gatekeeper/internal/moderation"
	"github.com/closetloop/gatekeeper/internal/ratelimit"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeHistory struct {
	*chat.MessageBuffer
	recentErr error
}

func (h *fakeHistory) Recent(ctx context.Context, id string) ([]chat.Entry, error) {
	if h.recentErr != nil {
		return nil, h.recentErr
	}
	return h.MessageBuffer.Recent(ctx, id)
}

type fakeDispatcher struct {
	mu        sync.Mutex
	delivered []chat.DeliveryEvent
	reviews   []chat.ReviewEvent
	err       error
}

func (d *fakeDispatcher) Deliver(_ context.Context, ev chat.DeliveryEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.delivered = append(d.delivered, ev)
	return nil
}

func (d *fakeDispatcher) PublishReview(_ context.Context, ev chat.ReviewEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.reviews = append(d.reviews, ev)
	return nil
}

type fakeAudit struct {
	mu      sync.Mutex
	records []audit.Record
	err     error
}

func (a *fakeAudit) Create(_ context.Context, r *audit.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, *r)
	return a.err
}

type fakeStrikes struct {
	muted     map[string]int
	escalated []string
	err       error
}

func (s *fakeStrikes) IsMuted(_ context.Context, id string) (bool, int, string, error) {
	if s.err != nil {
		return false, 0, "", s.err
	}
	rem, ok := s.muted[id]
	return ok, rem, "email", nil
}

func (s *fakeStrikes) Escalate(_ context.Context, id, reason string) (time.Duration, error) {
	s.escalated = append(s.escalated, id+":"+reason)
	return 15 * time.Minute, nil
}

type fakeLimiter struct {
	counts map[string]int
	err    error
}

func (l *fakeLimiter) Allow(_ context.Context, id string, rule ratelimit.Rule) (bool, error) {
	if l.err != nil {
		return true, l.err
	}
	if l.counts == nil {
		l.counts = make(map[string]int)
	}
	l.counts[rule.Key+id]++
	return l.counts[rule.Key+id] <= rule.Limit, nil
}

func (l *fakeLimiter) RetryAfter(context.Context, string, ratelimit.Rule) (time.Duration, error) {
	return 7 * time.Second, nil
}

type fakeFeed struct {
	events []feed.Event
}

func (f *fakeFeed) Broadcast(ev feed.Event) { f.events = append(f.events, ev) }

type fixture struct {
	gate       *Gate
	history    *fakeHistory
	dispatcher *fakeDispatcher
	audit      *fakeAudit
	strikes    *fakeStrikes
	limiter    *fakeLimiter
	feed       *fakeFeed
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		history:    &fakeHistory{MessageBuffer: chat.NewMessageBuffer(10)},
		dispatcher: &fakeDispatcher{},
		audit:      &fakeAudit{},
		strikes:    &fakeStrikes{muted: map[string]int{}},
		limiter:    &fakeLimiter{},
		feed:       &fakeFeed{},
	}
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	f.gate = New(cfg, Deps{
		History:    f.history,
		Dispatcher: f.dispatcher,
		Audit:      f.audit,
		Strikes:    f.strikes,
		Limiter:    f.limiter,
		Feed:       f.feed,
	}, nil)
	return f
}

func send(t *testing.T, f *fixture, sender, text string) SendOutcome {
	t.Helper()
	out, err := f.gate.Send(context.Background(), SendRequest{
		ConversationID: "conv_1",
		SenderID:       sender,
		RecipientID:    "bob",
		Text:           text,
	})
	if err != nil {
		t.Fatalf("Send(%q): %v", text, err)
	}
	return out
}

// ---------------------------------------------------------------------------
// Send
// ---------------------------------------------------------------------------

func TestSend_AllowDeliversAndRecords(t *testing.T) {
	f := newFixture(t, nil)

	out := send(t, f, "alice", "Is the green dress available next weekend?")
	if !out.Decision.Allowed() {
		t.Fatalf("Action = %q, want allow", out.Decision.Action)
	}
	if len(f.dispatcher.delivered) != 1 {
		t.Fatalf("delivered %d messages, want 1", len(f.dispatcher.delivered))
	}
	ev := f.dispatcher.delivered[0]
	if ev.From != "alice" || ev.To != "bob" || ev.Text != "Is the green dress available next weekend?" {
		t.Errorf("delivery event = %+v", ev)
	}
	if got := f.history.Get("conv_1"); len(got) != 1 || got[0].From != "alice" {
		t.Errorf("history = %+v", got)
	}
	if len(f.audit.records) != 0 || len(f.feed.events) != 0 {
		t.Error("allowed message must not be audited or broadcast")
	}
}

func TestSend_RepeatIsSpam(t *testing.T) {
	f := newFixture(t, nil)

	send(t, f, "alice", "hi there")
	out := send(t, f, "alice", "hi there")
	if out.Decision.Action != moderation.ActionBlockSpam {
		t.Fatalf("Action = %q, want block-spam", out.Decision.Action)
	}
	if out.Decision.Message != moderation.WarningSpam {
		t.Errorf("Message = %q", out.Decision.Message)
	}
	if len(f.dispatcher.delivered) != 1 {
		t.Errorf("blocked message was delivered")
	}
	if len(f.audit.records) != 1 || f.audit.records[0].Checks[0] != "repeated" {
		t.Errorf("audit = %+v", f.audit.records)
	}
	if len(f.strikes.escalated) != 0 {
		t.Error("spam must not escalate strikes")
	}
}

func TestSend_HistoryScope(t *testing.T) {
	tests := []struct {
		scope string
		want  moderation.Action
	}{
		{ScopeSender, moderation.ActionAllow},
		{ScopeConversation, moderation.ActionBlockSpam},
	}

	for _, tt := range tests {
		t.Run(tt.scope, func(t *testing.T) {
			f := newFixture(t, func(c *Config) { c.HistoryScope = tt.scope })
			send(t, f, "bob", "sounds good")
			if got := send(t, f, "alice", "sounds good").Decision.Action; got != tt.want {
				t.Errorf("Action = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSend_ContactInfoBlocksAndEscalates(t *testing.T) {
	f := newFixture(t, nil)

	out := send(t, f, "alice", "email me at alice@example.com")
	d := out.Decision
	if d.Action != moderation.ActionBlockContent {
		t.Fatalf("Action = %q, want block-content", d.Action)
	}
	if d.Message != moderation.WarningEmail {
		t.Errorf("Message = %q", d.Message)
	}
	if d.Redacted != "email me at [redacted]" {
		t.Errorf("Redacted = %q", d.Redacted)
	}
	if len(f.dispatcher.delivered) != 0 {
		t.Error("blocked message was delivered")
	}
	if len(f.history.Get("conv_1")) != 0 {
		t.Error("blocked message entered history")
	}

	if len(f.audit.records) != 1 {
		t.Fatalf("audit records = %d, want 1", len(f.audit.records))
	}
	rec := f.audit.records[0]
	if rec.Category != "email" || rec.Redacted != "email me at [redacted]" || rec.Source != audit.SourceMessage {
		t.Errorf("audit record = %+v", rec)
	}
	if len(f.feed.events) != 1 || f.feed.events[0].Redacted != rec.Redacted {
		t.Errorf("feed events = %+v", f.feed.events)
	}
	if len(f.strikes.escalated) != 1 || f.strikes.escalated[0] != "alice:email" {
		t.Errorf("escalated = %v", f.strikes.escalated)
	}
	if out.MuteApplied != 15*time.Minute {
		t.Errorf("MuteApplied = %v", out.MuteApplied)
	}
}

func TestSend_StrikesDisabled(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Strikes = false })
	send(t, f, "alice", "find me on instagram")
	if len(f.strikes.escalated) != 0 {
		t.Errorf("escalated with strikes disabled: %v", f.strikes.escalated)
	}
}

func TestSend_Throttled(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.MessageRule = ratelimit.RuleMessage.WithLimits(2, time.Minute)
	})

	send(t, f, "alice", "first")
	send(t, f, "alice", "second")
	out := send(t, f, "alice", "third")
	if !out.Throttled {
		t.Fatal("Throttled = false, want true")
	}
	if out.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v", out.RetryAfter)
	}
	if out.Decision.Action != "" {
		t.Errorf("moderation ran for a throttled message: %+v", out.Decision)
	}
	if len(f.dispatcher.delivered) != 2 {
		t.Errorf("delivered = %d, want 2", len(f.dispatcher.delivered))
	}
}

func TestSend_Muted(t *testing.T) {
	f := newFixture(t, nil)
	f.strikes.muted["alice"] = 600

	out := send(t, f, "alice", "hello again")
	if !out.Muted || out.MutedFor != 10*time.Minute {
		t.Fatalf("outcome = %+v, want muted for 10m", out)
	}
	if len(f.dispatcher.delivered) != 0 {
		t.Error("muted sender's message was delivered")
	}
}

func TestSend_FailsOpen(t *testing.T) {
	f := newFixture(t, nil)
	f.limiter.err = errors.New("redis down")
	f.strikes.err = errors.New("redis down")
	f.history.recentErr = errors.New("redis down")

	out := send(t, f, "alice", "still works?")
	if !out.Decision.Allowed() {
		t.Fatalf("Action = %q, want allow when infra fails", out.Decision.Action)
	}
}

func TestSend_DeliveryFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.dispatcher.err = errors.New("nats down")

	_, err := f.gate.Send(context.Background(), SendRequest{ConversationID: "conv_1", SenderID: "alice", Text: "hello"})
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("err = %v, want ErrDelivery", err)
	}
	if len(f.history.Get("conv_1")) != 0 {
		t.Error("undelivered message entered history")
	}
}

func TestSend_InvalidMessage(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name  string
		req   SendRequest
		inner error
	}{
		{"empty", SendRequest{ConversationID: "c", SenderID: "a", Text: ""}, chat.ErrEmptyMessage},
		{"bad utf8", SendRequest{ConversationID: "c", SenderID: "a", Text: "\xff\xfe"}, chat.ErrInvalidUTF8},
		{"no sender", SendRequest{ConversationID: "c", Text: "hi"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.gate.Send(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidMessage) {
				t.Fatalf("err = %v, want ErrInvalidMessage", err)
			}
			if tt.inner != nil && !errors.Is(err, tt.inner) {
				t.Errorf("err = %v, want wrapped %v", err, tt.inner)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Reviews and profile fields
// ---------------------------------------------------------------------------

func TestSubmitReview(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	out, err := f.gate.SubmitReview(ctx, ReviewRequest{ListingID: "l1", AuthorID: "alice", Text: "Fit perfectly, would rent again"})
	if err != nil {
		t.Fatalf("SubmitReview: %v", err)
	}
	if !out.Accepted || len(f.dispatcher.reviews) != 1 {
		t.Fatalf("clean review not published: %+v", out)
	}

	out, err = f.gate.SubmitReview(ctx, ReviewRequest{ListingID: "l1", AuthorID: "alice", Text: "DM me @closetqueen for a discount"})
	if err != nil {
		t.Fatalf("SubmitReview: %v", err)
	}
	if out.Accepted {
		t.Fatal("review with a handle was accepted")
	}
	if out.Warning != moderation.WarningSocialMedia {
		t.Errorf("Warning = %q", out.Warning)
	}
	if out.Result.Error != moderation.MessageContactInfo {
		t.Errorf("Result.Error = %q", out.Result.Error)
	}
	if len(f.dispatcher.reviews) != 1 {
		t.Error("rejected review was published")
	}
	if len(f.audit.records) != 1 || f.audit.records[0].Source != audit.SourceReview {
		t.Errorf("audit = %+v", f.audit.records)
	}
}

// Repeated reviews are not spam-checked.
func TestSubmitReview_NoSpamCheck(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 2; i++ {
		out, err := f.gate.SubmitReview(context.Background(), ReviewRequest{ListingID: "l1", AuthorID: "a", Text: "LOVELY!!!"})
		if err != nil || !out.Accepted {
			t.Fatalf("review %d: %+v, %v", i, out, err)
		}
	}
}

func TestSanitizeField(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	got, err := f.gate.SanitizeField(ctx, SanitizeRequest{UserID: "u1", Field: "bio", Value: "Vintage lover based in Leeds"})
	if err != nil || got != "Vintage lover based in Leeds" {
		t.Fatalf("SanitizeField = %q, %v", got, err)
	}

	_, err = f.gate.SanitizeField(ctx, SanitizeRequest{UserID: "u1", Field: "bio", Value: "call 555-123-4567"})
	if !errors.Is(err, moderation.ErrPersonalInfo) {
		t.Fatalf("err = %v, want ErrPersonalInfo", err)
	}
	if err.Error() != moderation.FieldContactInfo {
		t.Errorf("err text = %q", err.Error())
	}
	if len(f.audit.records) != 1 || f.audit.records[0].SubjectID != "bio" || f.audit.records[0].Redacted != "call [redacted]" {
		t.Errorf("audit = %+v", f.audit.records)
	}
}

func TestSanitizeField_Throttled(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.ProfileRule = ratelimit.RuleProfile.WithLimits(1, time.Hour)
	})
	ctx := context.Background()
	req := SanitizeRequest{UserID: "u1", Field: "bio", Value: "hello"}

	if _, err := f.gate.SanitizeField(ctx, req); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := f.gate.SanitizeField(ctx, req)
	var te *ThrottledError
	if !errors.As(err, &te) || !errors.Is(err, ErrThrottled) {
		t.Fatalf("err = %v, want *ThrottledError", err)
	}
	if te.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v", te.RetryAfter)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("New without History did not panic")
		}
	}()
	New(DefaultConfig(), Deps{Dispatcher: &fakeDispatcher{}}, nil)
}
