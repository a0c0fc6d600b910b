package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/closetloop/gatekeeper/internal/app"
	"github.com/closetloop/gatekeeper/internal/config"
	"github.com/closetloop/gatekeeper/internal/gate"
	"github.com/closetloop/gatekeeper/internal/logger"
	"github.com/closetloop/gatekeeper/internal/messaging"
	"github.com/closetloop/gatekeeper/internal/protocol"
)

// queueGroup lets several moderator workers share moderation.check.
const queueGroup = "gatekeeper-moderators"

// requestTimeout bounds the handling of one moderation request.
const requestTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := app.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log = log.WithComponent("moderator")

	deps, err := app.Build(context.Background(), cfg, log, "gatekeeper-moderator")
	if err != nil {
		log.Fatal("failed to build dependencies", zap.Error(err))
	}
	defer deps.Close()

	app.WatchConfig(loader, log)

	err = deps.NATS.SubscribeModerationCheck(queueGroup, func(data []byte) {
		handleCheck(deps.Gate, deps.NATS, log, data)
	})
	if err != nil {
		log.Fatal("failed to subscribe to moderation checks", zap.Error(err))
	}

	log.Info("moderation worker running",
		zap.String("subject", messaging.SubjectModeration),
		zap.String("queue", queueGroup),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))
}

// handleCheck moderates one request and publishes the result to the
// sender. Requests without a sender cannot be answered and are dropped.
func handleCheck(g *gate.Gate, nc *messaging.NATSClient, log *logger.Logger, data []byte) {
	req, err := protocol.ParseModerationRequest(data)
	if err != nil {
		log.Warn("malformed moderation request", zap.Error(err))
		if req = senderOnly(data); req.SenderID != "" {
			publish(nc, log, req.SenderID, protocol.ModerationResult{
				RequestID:      req.RequestID,
				ConversationID: req.ConversationID,
				Error:          err.Error(),
			})
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	out, err := g.Send(ctx, gate.SendRequest{
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		RecipientID:    req.RecipientID,
		Text:           req.Content,
	})
	res := protocol.ModerationResult{
		RequestID:      req.RequestID,
		ConversationID: req.ConversationID,
	}
	if err != nil {
		res.Error = err.Error()
	} else {
		res.Action = out.Decision.Action
		res.Message = out.Decision.Message
		res.Redacted = out.Decision.Redacted
		res.Throttled = out.Throttled
		res.RetryAfter = int(out.RetryAfter.Seconds())
		res.Muted = out.Muted
		res.MutedFor = int(out.MutedFor.Seconds())
	}
	publish(nc, log, req.SenderID, res)
}

// senderOnly recovers the routing fields of a request whose content failed
// to decode.
func senderOnly(data []byte) protocol.ModerationRequest {
	var routing struct {
		RequestID      string `json:"request_id"`
		ConversationID string `json:"conversation_id"`
		SenderID       string `json:"sender_id"`
	}
	json.Unmarshal(data, &routing)
	return protocol.ModerationRequest{
		RequestID:      routing.RequestID,
		ConversationID: routing.ConversationID,
		SenderID:       routing.SenderID,
	}
}

func publish(nc *messaging.NATSClient, log *logger.Logger, senderID string, res protocol.ModerationResult) {
	data, err := json.Marshal(res)
	if err != nil {
		log.Error("failed to marshal result", zap.Error(err))
		return
	}
	if err := nc.PublishModerationResult(senderID, data); err != nil {
		log.Error("failed to publish result", zap.String("sender_id", senderID), zap.Error(err))
	}
}
