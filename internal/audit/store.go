// Package audit provides PostgreSQL-backed storage for blocked moderation
// decisions. Each record keeps the redacted text, never the original, so
// trust and safety staff can review what was stopped and why.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Source identifies which surface produced a record.
type Source string

const (
	SourceMessage Source = "message"
	SourceReview  Source = "review"
	SourceProfile Source = "profile"
)

// validSources and validActions match the CHECK constraints on the
// moderation_events table.
var (
	validSources = map[Source]bool{
		SourceMessage: true,
		SourceReview:  true,
		SourceProfile: true,
	}
	validActions = map[string]bool{
		"block-spam":    true,
		"block-content": true,
	}
)

// Record is one blocked decision.
type Record struct {
	ID        uuid.UUID      `db:"id"`
	Source    Source         `db:"source"`
	SubjectID string         `db:"subject_id"` // conversation, listing or profile field
	SenderID  string         `db:"sender_id"`
	Action    string         `db:"action"`
	Category  string         `db:"category"`
	Checks    pq.StringArray `db:"checks"` // spam checks that fired
	Redacted  string         `db:"redacted"`
	CreatedAt time.Time      `db:"created_at"`
}

// Validate checks a record against the table constraints without touching
// the database.
func (r *Record) Validate() error {
	if !validSources[r.Source] {
		return fmt.Errorf("audit: invalid source %q", r.Source)
	}
	if !validActions[r.Action] {
		return fmt.Errorf("audit: invalid action %q", r.Action)
	}
	if r.SenderID == "" {
		return fmt.Errorf("audit: sender_id is required")
	}
	return nil
}

// Store manages audit records in PostgreSQL.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore creates a new audit store backed by the given database handle.
func NewStore(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Open connects to PostgreSQL at databaseURL.
func Open(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("audit: connect: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Create validates and inserts a record. A zero ID is replaced with a new
// UUID; CreatedAt is filled from the database.
func (s *Store) Create(ctx context.Context, r *Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Checks == nil {
		r.Checks = pq.StringArray{}
	}

	const query = `
		INSERT INTO moderation_events (id, source, subject_id, sender_id, action, category, checks, redacted)
		VALUES (:id, :source, :subject_id, :sender_id, :action, :category, :checks, :redacted)
		RETURNING created_at`

	rows, err := s.db.NamedQueryContext(ctx, query, r)
	if err != nil {
		s.logger.Error("audit insert failed",
			zap.Error(err),
			zap.String("source", string(r.Source)),
			zap.String("action", r.Action))
		return fmt.Errorf("audit: insert: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&r.CreatedAt); err != nil {
			return fmt.Errorf("audit: scan created_at: %w", err)
		}
	}
	return rows.Err()
}

// CountRecent returns the number of blocked decisions for a sender within
// the given time window.
func (s *Store) CountRecent(ctx context.Context, senderID string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM moderation_events
		WHERE sender_id = $1
		  AND created_at >= NOW() - $2::interval`

	var count int
	if err := s.db.GetContext(ctx, &count, query, senderID, window.String()); err != nil {
		return 0, fmt.Errorf("audit: count recent: %w", err)
	}
	return count, nil
}

// ListBySender returns a sender's most recent records, newest first.
func (s *Store) ListBySender(ctx context.Context, senderID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, source, subject_id, sender_id, action, category, checks, redacted, created_at
		FROM moderation_events
		WHERE sender_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	var records []Record
	if err := s.db.SelectContext(ctx, &records, query, senderID, limit); err != nil {
		return nil, fmt.Errorf("audit: list by sender: %w", err)
	}
	return records, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
