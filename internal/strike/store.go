// Package strike mutes senders whose messages keep getting blocked for
// sharing contact details. Mutes are Redis keys with TTL-based expiry:
//
//	Key:   mute:<sender_id>
//	Value: <reason>
//	TTL:   mute duration
//
// The offense counter lives at strikes:<sender_id> for StrikesTTL after the
// first offense in a window.
package strike

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// MutePrefix is the Redis key prefix for mute records.
	MutePrefix = "mute:"

	// StrikesPrefix is the Redis key prefix for offense counters.
	StrikesPrefix = "strikes:"

	// Escalating mute durations.
	Mute15Min  = 15 * time.Minute // 1st offense
	Mute1Hour  = 1 * time.Hour    // 2nd offense
	Mute24Hour = 24 * time.Hour   // 3rd+ offense

	// StrikesTTL is how long the offense counter lives in Redis. After 24h
	// without new offenses the counter resets to zero.
	StrikesTTL = 24 * time.Hour
)

// Store manages mutes and offense counters in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a new strike store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// IsMuted checks if a sender is currently muted.
// Returns (isMuted, remainingSeconds, reason, error). Redis errors are
// returned so callers can decide how to handle them; the gate fails open.
func (s *Store) IsMuted(ctx context.Context, senderID string) (bool, int, string, error) {
	key := MutePrefix + senderID

	reason, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, 0, "", nil
	}
	if err != nil {
		return false, 0, "", err
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		// The mute exists; report it with 0 remaining rather than drop it.
		return true, 0, reason, nil
	}

	remaining := 0
	if ttl > 0 {
		remaining = int(ttl.Seconds())
	}
	return true, remaining, reason, nil
}

// Mute silences a sender for duration.
func (s *Store) Mute(ctx context.Context, senderID string, duration time.Duration, reason string) error {
	return s.client.Set(ctx, MutePrefix+senderID, reason, duration).Err()
}

// Unmute lifts a mute immediately. The offense counter is left in place.
func (s *Store) Unmute(ctx context.Context, senderID string) error {
	return s.client.Del(ctx, MutePrefix+senderID).Err()
}

// escalationDuration returns the mute duration for a given offense count.
func escalationDuration(offenseCount int) time.Duration {
	switch {
	case offenseCount <= 1:
		return Mute15Min
	case offenseCount == 2:
		return Mute1Hour
	default:
		return Mute24Hour
	}
}

// GetOffenseCount returns the current offense counter for a sender, 0 when
// no offense was recorded or the counter expired.
func (s *Store) GetOffenseCount(ctx context.Context, senderID string) (int, error) {
	val, err := s.client.Get(ctx, StrikesPrefix+senderID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

// Escalate records an offense and mutes the sender for a duration that grows
// with the number of offenses in the current window:
//
//	1st offense  -> 15 minutes
//	2nd offense  -> 1 hour
//	3rd+ offense -> 24 hours
//
// Returns the mute duration that was applied.
func (s *Store) Escalate(ctx context.Context, senderID string, reason string) (time.Duration, error) {
	key := StrikesPrefix + senderID

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("strike: escalate incr: %w", err)
	}

	// TTL only on first increment so the window doesn't slide.
	if count == 1 {
		if err := s.client.Expire(ctx, key, StrikesTTL).Err(); err != nil {
			return 0, fmt.Errorf("strike: escalate expire: %w", err)
		}
	}

	duration := escalationDuration(int(count))
	if err := s.Mute(ctx, senderID, duration, reason); err != nil {
		return 0, fmt.Errorf("strike: escalate mute: %w", err)
	}
	return duration, nil
}
