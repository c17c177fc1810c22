package domain

import (
	"time"

	"github.com/google/uuid"
)

// ViolationRecord is an immutable entry in a user's violation history.
type ViolationRecord struct {
	ViolationType ViolationType `json:"violation_type"`
	Severity      int           `json:"severity"` // 0-4, mirrors SeverityLevel
	ContentID     uuid.UUID     `json:"content_id"`
	Timestamp     time.Time     `json:"timestamp"`
	ActionTaken   string        `json:"action_taken"`
}

// Reputation is the per-user mutable scoring record. The history is
// append-only: new records go to the tail and older entries never change.
type Reputation struct {
	OverallScore      float64 `json:"overall_score"` // 0-100, starts at 50
	CommunityStanding float64 `json:"community_standing"`
	AccountAgeFactor  float64 `json:"account_age_factor"`

	TotalPosts    int     `json:"total_posts"`
	ApprovedPosts int     `json:"approved_posts"`
	RejectedPosts int     `json:"rejected_posts"`
	ApprovalRate  float64 `json:"approval_rate"`

	PostsLastHour int `json:"posts_last_hour"`
	PostsLastDay  int `json:"posts_last_day"`
	PostsLastWeek int `json:"posts_last_week"`

	TotalViolations      int               `json:"total_violations"`
	ViolationsLast30Days int               `json:"violations_last_30_days"`
	ViolationHistory     []ViolationRecord `json:"violation_history,omitempty"`
	LastViolation        time.Time         `json:"last_violation,omitempty"`

	LastUpdated time.Time `json:"last_updated"`
}

// RiskLevelFor applies the classification ladder to a score and a trailing
// 30-day violation count. Ties break to the earlier rule.
func RiskLevelFor(score float64, violations30d int) RiskLevel {
	switch {
	case score >= 80 && violations30d == 0:
		return RiskTrusted
	case score >= 50 && violations30d <= 1:
		return RiskNormal
	case score >= 30 || violations30d <= 3:
		return RiskWatch
	case score >= 10:
		return RiskRestricted
	default:
		return RiskBanned
	}
}

// RiskProfile is the derived routing view over a user's reputation.
// It is computed on demand and never persisted independently.
type RiskProfile struct {
	UserID    uuid.UUID `json:"user_id"`
	RiskLevel RiskLevel `json:"risk_level"`
	RiskScore float64   `json:"risk_score"` // 1 - overall/100

	RequiresHumanReview bool `json:"requires_human_review"`
	FastTrackApproved   bool `json:"fast_track_approved"`

	MaxPostsPerMinute int `json:"max_posts_per_minute"`
	MaxPostsPerHour   int `json:"max_posts_per_hour"`

	CurrentVelocity float64 `json:"current_velocity"` // posts per minute
	IsBursting      bool    `json:"is_bursting"`

	ComputedAt time.Time `json:"computed_at"`
}
