// Package domain holds the shared record types flowing through both
// moderation pipelines: Flow A (asynchronous content) and Flow B (live chat).
package domain

// SeverityLevel ranks violations. Higher values require faster action.
// Ordering is numeric — comparisons and max() use the integer value.
type SeverityLevel int

const (
	SeverityNone     SeverityLevel = 0
	SeverityLow      SeverityLevel = 1
	SeverityMedium   SeverityLevel = 2
	SeverityHigh     SeverityLevel = 3
	SeverityCritical SeverityLevel = 4
)

func (s SeverityLevel) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MaxSeverity returns the more severe of two levels.
func MaxSeverity(a, b SeverityLevel) SeverityLevel {
	if a > b {
		return a
	}
	return b
}

// ContentType identifies what kind of artifact is being moderated.
type ContentType string

const (
	ContentForumPost ContentType = "forum_post"
	ContentImage     ContentType = "image"
	ContentProfile   ContentType = "profile"
	ContentLiveChat  ContentType = "live_chat"
	ContentVideo     ContentType = "video"
	ContentAudio     ContentType = "audio"
)

// ContentStatus is the moderation state of a piece of content.
type ContentStatus string

const (
	StatusPending     ContentStatus = "pending"
	StatusApproved    ContentStatus = "approved"
	StatusRejected    ContentStatus = "rejected"
	StatusEscalated   ContentStatus = "escalated"
	StatusQuarantined ContentStatus = "quarantined"
)

// DecisionSource records which tier produced the terminal decision.
type DecisionSource string

const (
	SourceTriage   DecisionSource = "triage"
	SourceML       DecisionSource = "ml"
	SourceHuman    DecisionSource = "human"
	SourceRealtime DecisionSource = "realtime"
)

// ProcessingTier is the stage a content last reached in the cascade.
type ProcessingTier string

const (
	TierTriage ProcessingTier = "tier1_triage"
	TierML     ProcessingTier = "tier2_ml"
	TierHuman  ProcessingTier = "tier3_human"
)

// ViolationType classifies a detected policy violation.
type ViolationType string

const (
	ViolationSpam         ViolationType = "spam"
	ViolationProfanity    ViolationType = "profanity"
	ViolationHateSpeech   ViolationType = "hate_speech"
	ViolationHarassment   ViolationType = "harassment"
	ViolationViolence     ViolationType = "violence"
	ViolationAdultContent ViolationType = "adult_content"
	ViolationCSAM         ViolationType = "csam"
	ViolationThreat       ViolationType = "threat"
)

// IsCritical reports whether the violation kind triggers an immediate ban
// regardless of history.
func (v ViolationType) IsCritical() bool {
	return v == ViolationCSAM || v == ViolationThreat
}

// DedupeViolations returns the unique violation kinds, preserving first-seen order.
func DedupeViolations(vs []ViolationType) []ViolationType {
	seen := make(map[ViolationType]bool, len(vs))
	out := make([]ViolationType, 0, len(vs))
	for _, v := range vs {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// RiskLevel classifies a user for risk-based routing.
type RiskLevel string

const (
	RiskTrusted    RiskLevel = "trusted"
	RiskNormal     RiskLevel = "normal"
	RiskWatch      RiskLevel = "watch"
	RiskRestricted RiskLevel = "restricted"
	RiskBanned     RiskLevel = "banned"
)

// ReviewPriority ranks tasks in the human review queue.
// Ordering is numeric — higher means more urgent.
type ReviewPriority int

const (
	PriorityLow      ReviewPriority = 1
	PriorityMedium   ReviewPriority = 2
	PriorityHigh     ReviewPriority = 3
	PriorityUrgent   ReviewPriority = 4
	PriorityCritical ReviewPriority = 5
)

func (p ReviewPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}
