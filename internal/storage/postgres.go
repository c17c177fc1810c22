// Package storage persists terminal moderation records to PostgreSQL.
// Writes are audit-only: the pipeline never blocks on them, callers log
// and continue when a write fails.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"github.com/sentra/moderation/internal/domain"
)

// Store wraps a Postgres connection for the moderation audit tables.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// NewStore opens a Postgres connection and verifies it.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Store{
		db:     db,
		logger: log.New(log.Writer(), "[STORE] ", log.LstdFlags),
	}, nil
}

// NewStoreWithDB wraps an existing connection. Used by tests.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: log.New(log.Writer(), "[STORE] ", log.LstdFlags),
	}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// InitSchema creates the audit tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS moderation_results (
			id UUID PRIMARY KEY,
			content_id UUID NOT NULL,
			decision TEXT NOT NULL,
			decision_source TEXT NOT NULL,
			severity TEXT NOT NULL,
			violations TEXT[] NOT NULL DEFAULT '{}',
			ml_scores JSONB,
			image_analysis JSONB,
			reputation_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			combined_risk_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			processing_time_ms BIGINT NOT NULL DEFAULT 0,
			tier_processed TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_content ON moderation_results (content_id)`,
		`CREATE INDEX IF NOT EXISTS idx_results_created ON moderation_results (created_at)`,

		`CREATE TABLE IF NOT EXISTS chat_decisions (
			message_id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			channel_id TEXT NOT NULL,
			decision TEXT NOT NULL,
			severity TEXT NOT NULL,
			violations TEXT[] NOT NULL DEFAULT '{}',
			spam_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			toxicity_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_rate_limited BOOLEAN NOT NULL DEFAULT FALSE,
			is_repeat_message BOOLEAN NOT NULL DEFAULT FALSE,
			is_burst_detected BOOLEAN NOT NULL DEFAULT FALSE,
			message_count_1m INT NOT NULL DEFAULT 0,
			message_count_5m INT NOT NULL DEFAULT 0,
			event_time TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_channel ON chat_decisions (channel_id, event_time)`,

		`CREATE TABLE IF NOT EXISTS review_tasks (
			id UUID PRIMARY KEY,
			content_id UUID NOT NULL,
			content_type TEXT NOT NULL,
			user_id UUID NOT NULL,
			text_preview TEXT NOT NULL DEFAULT '',
			image_urls TEXT[] NOT NULL DEFAULT '{}',
			priority INT NOT NULL,
			sla_deadline TIMESTAMPTZ NOT NULL,
			escalation_reason TEXT NOT NULL DEFAULT '',
			detected_violations TEXT[] NOT NULL DEFAULT '{}',
			ml_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_open ON review_tasks (priority, created_at) WHERE completed_at IS NULL`,

		`CREATE TABLE IF NOT EXISTS dead_letters (
			id BIGSERIAL PRIMARY KEY,
			content_id UUID NOT NULL,
			user_id UUID NOT NULL,
			error_kind TEXT NOT NULL,
			cause TEXT NOT NULL,
			payload JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	s.logger.Printf("schema ready")
	return nil
}

// SaveResult records a terminal Flow A decision.
func (s *Store) SaveResult(ctx context.Context, result *domain.ModerationResult) error {
	scores, err := nullableJSON(result.MLScores)
	if err != nil {
		return err
	}
	analysis, err := nullableJSON(result.ImageAnalysis)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO moderation_results
			(id, content_id, decision, decision_source, severity, violations,
			 ml_scores, image_analysis, reputation_score, combined_risk_score,
			 processing_time_ms, tier_processed, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO NOTHING`,
		result.ID, result.ContentID,
		string(result.Decision), string(result.DecisionSource), result.Severity.String(),
		pq.Array(violationStrings(result.Violations)),
		scores, analysis,
		result.ReputationScore, result.CombinedRiskScore,
		result.ProcessingTimeMs, string(result.TierProcessed),
		result.Notes, result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save result %s: %w", result.ID, err)
	}
	return nil
}

// SaveChatDecision records a terminal Flow B decision.
func (s *Store) SaveChatDecision(ctx context.Context, d *domain.ChatDecision) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_decisions
			(message_id, user_id, channel_id, decision, severity, violations,
			 spam_score, toxicity_score, is_rate_limited, is_repeat_message,
			 is_burst_detected, message_count_1m, message_count_5m, event_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (message_id) DO NOTHING`,
		d.MessageID, d.UserID, d.ChannelID,
		string(d.Decision), d.Severity.String(),
		pq.Array(violationStrings(d.Violations)),
		d.SpamScore, d.ToxicityScore,
		d.IsRateLimited, d.IsRepeatMessage, d.IsBurstDetected,
		d.UserMessageCount1m, d.UserMessageCount5m, d.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save chat decision %s: %w", d.MessageID, err)
	}
	return nil
}

// SaveReviewTask records an escalated task for the review audit trail.
func (s *Store) SaveReviewTask(ctx context.Context, t *domain.ReviewTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_tasks
			(id, content_id, content_type, user_id, text_preview, image_urls,
			 priority, sla_deadline, escalation_reason, detected_violations,
			 ml_confidence, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO NOTHING`,
		t.ID, t.ContentID, string(t.ContentType), t.UserID,
		t.TextPreview, pq.Array(t.ImageURLs),
		int(t.Priority), t.SLADeadline, t.EscalationReason,
		pq.Array(violationStrings(t.DetectedViolations)),
		t.MLConfidence, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save review task %s: %w", t.ID, err)
	}
	return nil
}

// CompleteReviewTask stamps a task as handled by a reviewer.
func (s *Store) CompleteReviewTask(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE review_tasks SET completed_at = $2 WHERE id = $1 AND completed_at IS NULL`,
		id, at)
	if err != nil {
		return fmt.Errorf("failed to complete review task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("review task %s not found or already completed", id)
	}
	return nil
}

// DeadLetter records content the pipeline could not decide.
func (s *Store) DeadLetter(ctx context.Context, content *domain.Content, kind domain.ErrorKind, cause error) error {
	payload, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to marshal dead-letter payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dead_letters (content_id, user_id, error_kind, cause, payload)
		VALUES ($1,$2,$3,$4,$5)`,
		content.ID, content.UserID, kind.String(), cause.Error(), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save dead letter for %s: %w", content.ID, err)
	}
	return nil
}

// DecisionCounts returns decision totals since the given instant. Feeds
// the stats endpoint; not on the hot path.
func (s *Store) DecisionCounts(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT decision, COUNT(*) FROM moderation_results
		WHERE created_at >= $1 GROUP BY decision`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count decisions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var decision string
		var n int64
		if err := rows.Scan(&decision, &n); err != nil {
			return nil, err
		}
		counts[decision] = n
	}
	return counts, rows.Err()
}

// RecentResultsForUser returns a user's latest decisions, newest first.
func (s *Store) RecentResultsForUser(ctx context.Context, contentIDs []string, limit int) ([]domain.ModerationResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content_id, decision, decision_source, severity,
		       reputation_score, combined_risk_score, processing_time_ms,
		       tier_processed, notes, created_at
		FROM moderation_results
		WHERE content_id = ANY($1::uuid[])
		ORDER BY created_at DESC
		LIMIT $2`, pq.Array(contentIDs), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []domain.ModerationResult
	for rows.Next() {
		var r domain.ModerationResult
		var decision, source, severity, tier string
		if err := rows.Scan(&r.ID, &r.ContentID, &decision, &source, &severity,
			&r.ReputationScore, &r.CombinedRiskScore, &r.ProcessingTimeMs,
			&tier, &r.Notes, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Decision = domain.ContentStatus(decision)
		r.DecisionSource = domain.DecisionSource(source)
		r.TierProcessed = domain.ProcessingTier(tier)
		r.Severity = severityFromString(severity)
		results = append(results, r)
	}
	return results, rows.Err()
}

func violationStrings(vs []domain.ViolationType) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = string(v)
	}
	return out
}

func severityFromString(s string) domain.SeverityLevel {
	for lvl := domain.SeverityNone; lvl <= domain.SeverityCritical; lvl++ {
		if lvl.String() == s {
			return lvl
		}
	}
	return domain.SeverityNone
}

func nullableJSON(v any) (any, error) {
	switch x := v.(type) {
	case *domain.MLScores:
		if x == nil {
			return nil, nil
		}
	case *domain.ImageAnalysis:
		if x == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json column: %w", err)
	}
	return b, nil
}
