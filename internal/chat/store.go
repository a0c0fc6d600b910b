package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// HistoryPrefix is the Redis key prefix for conversation history lists:
	//
	//	Key:   conv:<conversation_id>:recent
	//	Value: list of JSON-encoded Entry, oldest first
	HistoryPrefix = "conv:"

	// DefaultHistoryTTL bounds how long an idle conversation keeps its history.
	DefaultHistoryTTL = 7 * 24 * time.Hour
)

// Store keeps the recent history of every conversation in Redis so that all
// gateway and moderator instances see the same prior messages.
type Store struct {
	rdb  *redis.Client
	size int
	ttl  time.Duration
}

// NewStore creates a history store that keeps size messages per conversation
// for ttl after the last append. Non-positive values fall back to defaults.
func NewStore(rdb *redis.Client, size int, ttl time.Duration) *Store {
	if size <= 0 {
		size = DefaultHistorySize
	}
	if ttl <= 0 {
		ttl = DefaultHistoryTTL
	}
	return &Store{rdb: rdb, size: size, ttl: ttl}
}

func historyKey(conversationID string) string {
	return HistoryPrefix + conversationID + ":recent"
}

// Append pushes e onto the conversation history, trims it to the configured
// size and refreshes the TTL in a single pipeline.
func (s *Store) Append(ctx context.Context, conversationID string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("chat: marshal entry: %w", err)
	}

	key := historyKey(conversationID)
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-s.size), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("chat: append history: %w", err)
	}
	return nil
}

// Recent returns the retained history for a conversation, oldest first.
// Entries that fail to decode are skipped.
func (s *Store) Recent(ctx context.Context, conversationID string) ([]Entry, error) {
	raw, err := s.rdb.LRange(ctx, historyKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("chat: load history: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Delete removes a conversation's history.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	return s.rdb.Del(ctx, historyKey(conversationID)).Err()
}
