package gate

import (
	"context"
	"time"

	"github.com/closetloop/gatekeeper/internal/audit"
	"github.com/closetloop/gatekeeper/internal/chat"
	"github.com/closetloop/gatekeeper/internal/feed"
	"github.com/closetloop/gatekeeper/internal/ratelimit"
)

// History is the recent message store. chat.Store and chat.MessageBuffer
// implement it.
type History interface {
	Recent(ctx context.Context, conversationID string) ([]chat.Entry, error)
	Append(ctx context.Context, conversationID string, e chat.Entry) error
}

// Dispatcher carries allowed content onward. messaging.NATSClient
// implements it.
type Dispatcher interface {
	Deliver(ctx context.Context, ev chat.DeliveryEvent) error
	PublishReview(ctx context.Context, ev chat.ReviewEvent) error
}

// AuditLog persists blocked decisions. audit.Store implements it.
type AuditLog interface {
	Create(ctx context.Context, r *audit.Record) error
}

// Strikes tracks mutes for repeat offenders. strike.Store implements it.
type Strikes interface {
	IsMuted(ctx context.Context, senderID string) (bool, int, string, error)
	Escalate(ctx context.Context, senderID string, reason string) (time.Duration, error)
}

// Limiter is a per-identifier fixed window. ratelimit.Limiter implements it.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	RetryAfter(ctx context.Context, identifier string, rule ratelimit.Rule) (time.Duration, error)
}

// Broadcaster publishes blocked decisions to live subscribers. feed.Hub
// implements it.
type Broadcaster interface {
	Broadcast(ev feed.Event)
}

// Deps are the gate's collaborators. History and Dispatcher are required;
// a nil optional collaborator disables its step.
type Deps struct {
	History    History
	Dispatcher Dispatcher
	Audit      AuditLog
	Strikes    Strikes
	Limiter    Limiter
	Feed       Broadcaster
}
