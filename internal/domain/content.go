package domain

import (
	"time"

	"github.com/google/uuid"
)

// ContentMetadata carries creator context captured at submission time.
type ContentMetadata struct {
	IPAddress   string `json:"ip_address,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
	GeoLocation string `json:"geo_location,omitempty"`
	DeviceID    string `json:"device_id,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

// Content is the immutable input to Flow A. At least one of TextContent,
// ImageURL, or MediaURLs must be non-empty.
type Content struct {
	ID          uuid.UUID   `json:"id"`
	ContentType ContentType `json:"content_type"`
	UserID      uuid.UUID   `json:"user_id"`

	TextContent string   `json:"text_content,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	MediaURLs   []string `json:"media_urls,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	ParentContentID uuid.UUID       `json:"parent_content_id,omitempty"`
	ChannelID       string          `json:"channel_id,omitempty"`
	Metadata        ContentMetadata `json:"metadata"`
}

// Validate checks the content payload invariant.
func (c *Content) Validate() error {
	if c.ID == uuid.Nil {
		return NewInputInvalid("content id is required")
	}
	if c.UserID == uuid.Nil {
		return NewInputInvalid("user id is required")
	}
	if c.TextContent == "" && c.ImageURL == "" && len(c.MediaURLs) == 0 {
		return NewInputInvalid("content must carry text, an image, or media")
	}
	return nil
}

// HasMedia reports whether the content carries any image or media reference.
func (c *Content) HasMedia() bool {
	return c.ImageURL != "" || len(c.MediaURLs) > 0
}

// MLScores are the nine bounded signals produced by the text scorer.
// All probabilities lie in [0,1]; sentiment lies in [-1,1].
type MLScores struct {
	Toxicity        float64 `json:"toxicity"`
	SpamProbability float64 `json:"spam_probability"`
	HateSpeech      float64 `json:"hate_speech"`
	Harassment      float64 `json:"harassment"`
	Violence        float64 `json:"violence"`
	AdultContent    float64 `json:"adult_content"`
	Sentiment       float64 `json:"sentiment"`
	Confidence      float64 `json:"confidence"`
}

// ImageAnalysis is the image analyser output for image/media content.
type ImageAnalysis struct {
	ModerationLabels []ImageLabel `json:"moderation_labels,omitempty"`
	FacesDetected    int          `json:"faces_detected"`
	TextDetected     []string     `json:"text_detected,omitempty"`
	ExplicitNudity   float64      `json:"explicit_nudity"`
	Violence         float64      `json:"violence"`
	WeaponsDetected  bool         `json:"weapons_detected"`
}

// ImageLabel is a single moderation label with its probability.
type ImageLabel struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// ModerationResult is the terminal Flow A record, persisted for audit.
type ModerationResult struct {
	ID        uuid.UUID `json:"id"`
	ContentID uuid.UUID `json:"content_id"`

	Decision       ContentStatus   `json:"decision"`
	DecisionSource DecisionSource  `json:"decision_source"`
	Severity       SeverityLevel   `json:"severity"`
	Violations     []ViolationType `json:"violations,omitempty"`

	MLScores          *MLScores      `json:"ml_scores,omitempty"`
	ImageAnalysis     *ImageAnalysis `json:"image_analysis,omitempty"`
	ReputationScore   float64        `json:"reputation_score"`
	CombinedRiskScore float64        `json:"combined_risk_score"`

	ProcessingTimeMs int64          `json:"processing_time_ms"`
	TierProcessed    ProcessingTier `json:"tier_processed"`

	CreatedAt time.Time `json:"created_at"`
	Notes     string    `json:"notes,omitempty"`
}

// Clamp01 bounds a score to [0,1]. Simulated scorers clamp rather than
// reject on numeric overflow.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
