// Package messaging provides a NATS client wrapper for pub/sub messaging
// between gatekeeper and the rest of the marketplace. It handles connection
// lifecycle, subject-based subscriptions, and the publish side of delivery:
// a chat message reaches its recipient only through Deliver.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/closetloop/gatekeeper/internal/chat"
)

// NATS subject patterns used by gatekeeper.
const (
	SubjectModeration       = "moderation.check"
	SubjectModerationResult = "moderation.result" // + .<sender_id>
	SubjectDeliver          = "message.deliver"   // + .<conversation_id>
	SubjectNotify           = "notify"            // + .<recipient_id>
	SubjectReviewSubmitted  = "review.submitted"
)

// ModerationResultSubject returns the reply subject for a sender.
func ModerationResultSubject(senderID string) string {
	return SubjectModerationResult + "." + senderID
}

// DeliverSubject returns the delivery subject for a conversation.
func DeliverSubject(conversationID string) string {
	return SubjectDeliver + "." + conversationID
}

// NotifySubject returns the notification subject for a recipient.
func NotifySubject(recipientID string) string {
	return SubjectNotify + "." + recipientID
}

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	log  *zap.Logger
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "gatekeeper",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig, log *zap.Logger) (*NATSClient, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "nats"))

	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info("connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Info("connected", zap.String("url", nc.ConnectedUrl()))

	return &NATSClient{
		conn: nc,
		log:  log,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

func (c *NATSClient) publishJSON(ctx context.Context, subject string, v interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("nats marshal %s: %w", subject, err)
	}
	if err := c.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// QueueSubscribe is Subscribe within a queue group so that several moderator
// workers share the load of one subject.
func (c *NATSClient) QueueSubscribe(subject, queue string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.QueueSubscribe(subject, queue, handler)
	if err != nil {
		return fmt.Errorf("nats queue subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// Deliver publishes an allowed message to its conversation and notifies the
// recipient. A failed delivery publish is returned; a failed notification is
// only logged because the message itself went out.
func (c *NATSClient) Deliver(ctx context.Context, ev chat.DeliveryEvent) error {
	if ev.Type == "" {
		ev.Type = "message"
	}
	if err := c.publishJSON(ctx, DeliverSubject(ev.ConversationID), ev); err != nil {
		return err
	}
	if ev.To == "" {
		return nil
	}
	if err := c.publishJSON(ctx, NotifySubject(ev.To), ev); err != nil {
		c.log.Warn("notify failed",
			zap.String("conversation_id", ev.ConversationID),
			zap.String("recipient_id", ev.To),
			zap.Error(err))
	}
	return nil
}

// PublishReview announces a review that passed validation.
func (c *NATSClient) PublishReview(ctx context.Context, ev chat.ReviewEvent) error {
	return c.publishJSON(ctx, SubjectReviewSubmitted, ev)
}

// PublishModerationRequest publishes a moderation check request.
func (c *NATSClient) PublishModerationRequest(data []byte) error {
	return c.Publish(SubjectModeration, data)
}

// SubscribeModerationCheck subscribes to moderation check requests in the
// given queue group.
func (c *NATSClient) SubscribeModerationCheck(queue string, handler func(data []byte)) error {
	return c.QueueSubscribe(SubjectModeration, queue, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishModerationResult publishes a moderation result for a specific sender.
func (c *NATSClient) PublishModerationResult(senderID string, data []byte) error {
	return c.Publish(ModerationResultSubject(senderID), data)
}

// SubscribeModerationResult subscribes to moderation results for a specific sender.
func (c *NATSClient) SubscribeModerationResult(senderID string, handler func(data []byte)) error {
	return c.Subscribe(ModerationResultSubject(senderID), func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// UnsubscribeModerationResult unsubscribes from moderation results for a sender.
func (c *NATSClient) UnsubscribeModerationResult(senderID string) error {
	return c.unsubscribe(ModerationResultSubject(senderID))
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.log.Warn("drain failed", zap.String("subject", subject), zap.Error(err))
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		c.log.Warn("connection drain failed", zap.Error(err))
	}

	c.log.Info("client closed")
}

// unsubscribe removes and unsubscribes from a specific subject.
func (c *NATSClient) unsubscribe(subject string) error {
	c.mu.Lock()
	sub, ok := c.subs[subject]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for subject %s", subject)
	}
	delete(c.subs, subject)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", subject, err)
	}
	return nil
}
