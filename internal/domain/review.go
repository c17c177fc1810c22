package domain

import (
	"time"

	"github.com/google/uuid"
)

// SLAWaitMinutes maps each review priority to its maximum wait time.
var SLAWaitMinutes = map[ReviewPriority]int{
	PriorityLow:      1440, // 24 hours
	PriorityMedium:   240,  // 4 hours
	PriorityHigh:     60,
	PriorityUrgent:   15,
	PriorityCritical: 5,
}

// PriorityForSeverity derives the queue priority from a result's severity.
func PriorityForSeverity(s SeverityLevel) ReviewPriority {
	switch s {
	case SeverityCritical:
		return PriorityCritical
	case SeverityHigh:
		return PriorityUrgent
	case SeverityMedium:
		return PriorityHigh
	case SeverityLow:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ReviewTask is a human review queue item. Once constructed the engine
// treats it as immutable; assignment and completion live in the external
// review system.
type ReviewTask struct {
	ID          uuid.UUID   `json:"id"`
	ContentID   uuid.UUID   `json:"content_id"`
	ContentType ContentType `json:"content_type"`

	TextPreview string   `json:"text_preview,omitempty"`
	ImageURLs   []string `json:"image_urls,omitempty"`
	UserID      uuid.UUID `json:"user_id"`

	Priority    ReviewPriority `json:"priority"`
	SLADeadline time.Time      `json:"sla_deadline"`

	EscalationReason   string          `json:"escalation_reason"`
	DetectedViolations []ViolationType `json:"detected_violations,omitempty"`
	MLConfidence       float64         `json:"ml_confidence"`

	CreatedAt time.Time `json:"created_at"`
}

// TimeRemaining returns the time until SLA breach at the given instant.
func (t *ReviewTask) TimeRemaining(now time.Time) time.Duration {
	return t.SLADeadline.Sub(now)
}

// SLABreached reports whether the deadline has passed at the given instant.
func (t *ReviewTask) SLABreached(now time.Time) bool {
	return now.After(t.SLADeadline)
}

// SLAPercentRemaining returns how much of the SLA window remains, 0-100.
func (t *ReviewTask) SLAPercentRemaining(now time.Time) float64 {
	total := t.SLADeadline.Sub(t.CreatedAt)
	if total <= 0 {
		return 0
	}
	remaining := t.TimeRemaining(now)
	if remaining <= 0 {
		return 0
	}
	pct := remaining.Seconds() / total.Seconds() * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// TruncatePreview bounds the text snapshot stored on a review task to
// maxRunes code points.
func TruncatePreview(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes])
}
