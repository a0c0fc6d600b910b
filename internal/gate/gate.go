// Package gate runs every piece of user content through moderation before it
// can reach anyone else. Chat messages pass rate limiting, the mute check and
// the full spam plus personal-information pipeline; reviews and profile
// fields pass the personal-information validator only.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/closetloop/gatekeeper/internal/audit"
	"github.com/closetloop/gatekeeper/internal/chat"
	"github.com/closetloop/gatekeeper/internal/feed"
	"github.com/closetloop/gatekeeper/internal/logger"
	"github.com/closetloop/gatekeeper/internal/metrics"
	"github.com/closetloop/gatekeeper/internal/moderation"
	"github.com/closetloop/gatekeeper/internal/ratelimit"
)

// History scopes.
const (
	ScopeSender       = "sender"       // only the sender's own recent messages
	ScopeConversation = "conversation" // every participant's recent messages
)

var (
	// ErrInvalidMessage is returned for requests that can never be moderated:
	// missing identifiers or text that fails chat.ValidateMessage.
	ErrInvalidMessage = errors.New("gate: invalid message")

	// ErrDelivery is returned when an allowed message could not be published.
	ErrDelivery = errors.New("gate: delivery failed")

	// ErrThrottled matches *ThrottledError.
	ErrThrottled = errors.New("gate: rate limited")
)

// ThrottledError is returned by SanitizeField when the caller is over its
// window.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("gate: rate limited, retry after %s", e.RetryAfter)
}

func (e *ThrottledError) Is(target error) bool { return target == ErrThrottled }

// Config tunes the gate.
type Config struct {
	HistoryScope string
	RateLimit    bool
	MessageRule  ratelimit.Rule
	ReviewRule   ratelimit.Rule
	ProfileRule  ratelimit.Rule
	Strikes      bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		HistoryScope: ScopeSender,
		RateLimit:    true,
		MessageRule:  ratelimit.RuleMessage,
		ReviewRule:   ratelimit.RuleReview,
		ProfileRule:  ratelimit.RuleProfile,
		Strikes:      true,
	}
}

// Gate is safe for concurrent use.
type Gate struct {
	cfg  Config
	deps Deps
	log  *logger.Logger
	now  func() time.Time
}

// New creates a gate. It panics if a required collaborator is missing.
func New(cfg Config, deps Deps, log *logger.Logger) *Gate {
	if deps.History == nil || deps.Dispatcher == nil {
		panic("gate: History and Dispatcher are required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.HistoryScope == "" {
		cfg.HistoryScope = ScopeSender
	}
	return &Gate{
		cfg:  cfg,
		deps: deps,
		log:  log.WithComponent("gate"),
		now:  time.Now,
	}
}

// SendRequest is one chat message on its way to a recipient.
type SendRequest struct {
	ConversationID string
	SenderID       string
	RecipientID    string
	Text           string
}

// SendOutcome reports what happened to a message. When Throttled or Muted is
// set moderation did not run and Decision is zero.
type SendOutcome struct {
	Decision    moderation.Decision `json:"decision"`
	Throttled   bool                `json:"throttled,omitempty"`
	RetryAfter  time.Duration       `json:"-"`
	Muted       bool                `json:"muted,omitempty"`
	MutedFor    time.Duration       `json:"-"`
	MuteApplied time.Duration       `json:"-"` // mute started by this message
}

// Send moderates a chat message and, when allowed, delivers it and records
// it in the conversation history.
func (g *Gate) Send(ctx context.Context, req SendRequest) (SendOutcome, error) {
	if req.ConversationID == "" || req.SenderID == "" {
		return SendOutcome{}, fmt.Errorf("%w: conversation and sender are required", ErrInvalidMessage)
	}
	if err := chat.ValidateMessage(req.Text); err != nil {
		return SendOutcome{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	log := g.log.With(
		zap.String("conversation_id", req.ConversationID),
		zap.String("sender_id", req.SenderID),
	)

	if ok, retry := g.allow(ctx, req.SenderID, g.cfg.MessageRule); !ok {
		log.Info("message throttled", zap.Duration("retry_after", retry))
		return SendOutcome{Throttled: true, RetryAfter: retry}, nil
	}

	if g.deps.Strikes != nil {
		muted, remaining, _, err := g.deps.Strikes.IsMuted(ctx, req.SenderID)
		if err != nil {
			log.Warn("mute lookup failed, failing open", zap.Error(err))
		} else if muted {
			metrics.MutedRejectionsTotal.Inc()
			log.Info("message from muted sender", zap.Int("remaining_seconds", remaining))
			return SendOutcome{Muted: true, MutedFor: time.Duration(remaining) * time.Second}, nil
		}
	}

	start := g.now()
	entries, err := g.deps.History.Recent(ctx, req.ConversationID)
	if err != nil {
		log.Warn("history load failed, moderating without history", zap.Error(err))
		entries = nil
	}
	scope := req.SenderID
	if g.cfg.HistoryScope == ScopeConversation {
		scope = ""
	}
	decision := moderation.Moderate(req.Text, chat.Prior(entries, scope))
	metrics.ModerationLatency.Observe(g.now().Sub(start).Seconds())
	g.observe(decision.Action, decision.Detection, decision.Spam)

	out := SendOutcome{Decision: decision}

	if decision.Allowed() {
		ts := g.now().UnixMilli()
		ev := chat.DeliveryEvent{
			Type:           "message",
			ConversationID: req.ConversationID,
			From:           req.SenderID,
			To:             req.RecipientID,
			Text:           decision.Content,
			Ts:             ts,
		}
		if err := g.deps.Dispatcher.Deliver(ctx, ev); err != nil {
			log.Error("delivery failed", zap.Error(err))
			return out, fmt.Errorf("%w: %w", ErrDelivery, err)
		}
		entry := chat.Entry{From: req.SenderID, Text: decision.Content, Ts: ts}
		if err := g.deps.History.Append(ctx, req.ConversationID, entry); err != nil {
			log.Warn("history append failed", zap.Error(err))
		}
		log.Debug("message allowed")
		return out, nil
	}

	redacted := decision.Redacted
	if redacted == "" {
		redacted = moderation.Redact(req.Text)
	}
	rec := &audit.Record{
		Source:    audit.SourceMessage,
		SubjectID: req.ConversationID,
		SenderID:  req.SenderID,
		Action:    string(decision.Action),
		Redacted:  redacted,
	}
	if decision.Detection != nil {
		rec.Category = string(decision.Detection.Category())
	}
	if decision.Spam != nil {
		rec.Checks = decision.Spam.Fired()
	}
	g.record(ctx, log, rec)

	log.Info("message blocked",
		zap.String("action", string(decision.Action)),
		zap.String("category", rec.Category),
		zap.Strings("checks", rec.Checks))
	log.Debug("blocked message redacted copy", zap.String("redacted", redacted))

	if decision.Action == moderation.ActionBlockContent && g.cfg.Strikes && g.deps.Strikes != nil {
		d, err := g.deps.Strikes.Escalate(ctx, req.SenderID, rec.Category)
		if err != nil {
			log.Warn("strike escalation failed", zap.Error(err))
		} else {
			out.MuteApplied = d
			log.Info("sender muted", zap.Duration("duration", d))
		}
	}
	return out, nil
}

// ReviewRequest is a listing review awaiting publication.
type ReviewRequest struct {
	ListingID string
	AuthorID  string
	Text      string
}

// ReviewOutcome reports whether a review was published. Warning is set when
// the validator rejected it.
type ReviewOutcome struct {
	Accepted   bool                        `json:"accepted"`
	Result     moderation.ValidationResult `json:"result"`
	Warning    string                      `json:"warning,omitempty"`
	Throttled  bool                        `json:"throttled,omitempty"`
	RetryAfter time.Duration               `json:"-"`
}

// SubmitReview validates a review and publishes it when clean. Reviews do
// not go through the spam heuristics.
func (g *Gate) SubmitReview(ctx context.Context, req ReviewRequest) (ReviewOutcome, error) {
	if req.ListingID == "" || req.AuthorID == "" {
		return ReviewOutcome{}, fmt.Errorf("%w: listing and author are required", ErrInvalidMessage)
	}
	if err := chat.ValidateMessage(req.Text); err != nil {
		return ReviewOutcome{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	log := g.log.With(
		zap.String("listing_id", req.ListingID),
		zap.String("author_id", req.AuthorID),
	)

	if ok, retry := g.allow(ctx, req.AuthorID, g.cfg.ReviewRule); !ok {
		log.Info("review throttled", zap.Duration("retry_after", retry))
		return ReviewOutcome{Throttled: true, RetryAfter: retry}, nil
	}

	res := moderation.Validate(req.Text)
	if !res.Valid {
		warning, _ := moderation.WarningFor(*res.Details)
		g.observe(moderation.ActionBlockContent, res.Details, nil)
		g.record(ctx, log, &audit.Record{
			Source:    audit.SourceReview,
			SubjectID: req.ListingID,
			SenderID:  req.AuthorID,
			Action:    string(moderation.ActionBlockContent),
			Category:  string(res.Details.Category()),
			Redacted:  moderation.Redact(req.Text),
		})
		log.Info("review rejected", zap.String("category", string(res.Details.Category())))
		return ReviewOutcome{Result: res, Warning: warning}, nil
	}

	g.observe(moderation.ActionAllow, nil, nil)
	ev := chat.ReviewEvent{
		ListingID: req.ListingID,
		AuthorID:  req.AuthorID,
		Text:      res.Content,
		Ts:        g.now().UnixMilli(),
	}
	if err := g.deps.Dispatcher.PublishReview(ctx, ev); err != nil {
		log.Error("review publish failed", zap.Error(err))
		return ReviewOutcome{Result: res}, fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return ReviewOutcome{Accepted: true, Result: res}, nil
}

// SanitizeRequest is a profile field value about to be saved.
type SanitizeRequest struct {
	UserID string
	Field  string
	Value  string
}

// SanitizeField returns the value unchanged when it is clean. Otherwise it
// returns the *moderation.PersonalInfoError from moderation.Sanitize, or a
// *ThrottledError when the user is over the profile window.
func (g *Gate) SanitizeField(ctx context.Context, req SanitizeRequest) (string, error) {
	if req.UserID == "" || req.Field == "" {
		return "", fmt.Errorf("%w: user and field are required", ErrInvalidMessage)
	}

	log := g.log.With(
		zap.String("user_id", req.UserID),
		zap.String("field", req.Field),
	)

	if ok, retry := g.allow(ctx, req.UserID, g.cfg.ProfileRule); !ok {
		log.Info("profile check throttled", zap.Duration("retry_after", retry))
		return "", &ThrottledError{RetryAfter: retry}
	}

	value, err := moderation.Sanitize(req.Value)
	if err != nil {
		var pie *moderation.PersonalInfoError
		if errors.As(err, &pie) {
			g.observe(moderation.ActionBlockContent, &pie.Detection, nil)
			g.record(ctx, log, &audit.Record{
				Source:    audit.SourceProfile,
				SubjectID: req.Field,
				SenderID:  req.UserID,
				Action:    string(moderation.ActionBlockContent),
				Category:  string(pie.Detection.Category()),
				Redacted:  moderation.Redact(req.Value),
			})
			log.Info("profile field rejected", zap.String("category", string(pie.Detection.Category())))
		}
		return "", err
	}
	g.observe(moderation.ActionAllow, nil, nil)
	return value, nil
}

// allow applies rule to id. Limiter failures fail open.
func (g *Gate) allow(ctx context.Context, id string, rule ratelimit.Rule) (bool, time.Duration) {
	if !g.cfg.RateLimit || g.deps.Limiter == nil {
		return true, 0
	}
	ok, err := g.deps.Limiter.Allow(ctx, id, rule)
	if err != nil {
		g.log.Warn("rate limit check failed, failing open", zap.String("rule", rule.Name), zap.Error(err))
		return true, 0
	}
	if ok {
		return true, 0
	}
	metrics.ThrottledTotal.WithLabelValues(rule.Name).Inc()
	retry, err := g.deps.Limiter.RetryAfter(ctx, id, rule)
	if err != nil || retry <= 0 {
		retry = rule.Window
	}
	return false, retry
}

func (g *Gate) observe(action moderation.Action, d *moderation.Detection, spam *moderation.SpamResult) {
	metrics.DecisionsTotal.WithLabelValues(string(action)).Inc()
	if d != nil && d.HasPersonalInfo() {
		metrics.DetectionsTotal.WithLabelValues(string(d.Category())).Inc()
	}
	if spam != nil {
		for _, check := range spam.Fired() {
			metrics.SpamChecksTotal.WithLabelValues(check).Inc()
		}
	}
}

// record writes rec to the audit log and the live feed. Audit failures are
// logged and never fail the request.
func (g *Gate) record(ctx context.Context, log *zap.Logger, rec *audit.Record) {
	if g.deps.Audit != nil {
		if err := g.deps.Audit.Create(ctx, rec); err != nil {
			log.Error("audit write failed", zap.Error(err))
		}
	}
	if g.deps.Feed != nil {
		g.deps.Feed.Broadcast(feed.Event{
			Source:    string(rec.Source),
			SubjectID: rec.SubjectID,
			SenderID:  rec.SenderID,
			Action:    rec.Action,
			Category:  rec.Category,
			Checks:    rec.Checks,
			Redacted:  rec.Redacted,
			Ts:        g.now().UnixMilli(),
		})
	}
}
