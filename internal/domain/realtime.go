package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is the Flow B input: a live chat message with an event-time
// timestamp. The processing budget is 10ms end to end.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	ChannelID string    `json:"channel_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the required chat message fields.
func (m *ChatMessage) Validate() error {
	if m.ID == uuid.Nil {
		return NewInputInvalid("message id is required")
	}
	if m.UserID == uuid.Nil {
		return NewInputInvalid("user id is required")
	}
	if m.ChannelID == "" {
		return NewInputInvalid("channel id is required")
	}
	if m.Timestamp.IsZero() {
		return NewInputInvalid("timestamp is required")
	}
	return nil
}

// ChatDecision is the terminal Flow B record.
type ChatDecision struct {
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	ChannelID string    `json:"channel_id"`

	Decision   ContentStatus   `json:"decision"`
	Severity   SeverityLevel   `json:"severity"`
	Violations []ViolationType `json:"violations,omitempty"`

	SpamScore     float64 `json:"spam_score"`
	ToxicityScore float64 `json:"toxicity_score"`

	ProcessingTimeMs int64 `json:"processing_time_ms"`

	UserMessageCount1m int `json:"user_message_count_1m"`
	UserMessageCount5m int `json:"user_message_count_5m"`

	IsRateLimited   bool `json:"is_rate_limited"`
	IsRepeatMessage bool `json:"is_repeat_message"`
	IsBurstDetected bool `json:"is_burst_detected"`

	Timestamp time.Time `json:"timestamp"`
}

// ChannelState tracks per-channel activity for raid and spam-wave detection.
type ChannelState struct {
	ChannelID string `json:"channel_id"`

	ActiveUsers int     `json:"active_users"`
	MessageRate float64 `json:"message_rate"` // messages per second, smoothed

	NormalMessageRate float64 `json:"normal_message_rate"`
	SpikeThreshold    float64 `json:"spike_threshold"`

	RaidDetected bool `json:"raid_detected"`
	SpamWave     bool `json:"spam_wave"`

	LastUpdated time.Time `json:"last_updated"`
}
