// Package mlscoring is the Tier 2 ML stage: it scores text on nine bounded
// signals, analyses attached images, and maps threshold crossings to
// violations with a confidence-driven human-review signal.
package mlscoring

import (
	"context"
	"math/rand"
	"strings"
	"sync"

	"github.com/sentra/moderation/internal/domain"
)

// TextScorer produces the per-signal scores for a text payload.
// Implementations must be safe for concurrent use.
type TextScorer interface {
	ScoreText(ctx context.Context, text string) (domain.MLScores, error)
}

// ImageAnalyzer inspects an image reference for moderation labels.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, url string) (domain.ImageAnalysis, error)
}

// Deterministic word lists standing in for model inference. The weights are
// calibrated so short clean text stays well under every threshold.
var (
	toxicWords     = []string{"hate", "stupid", "idiot", "moron", "loser"}
	spamIndicators = []string{"buy now", "click here", "free", "$$", "limited time"}
	harassPhrases  = []string{"you should", "you are a", "people like you"}
	violenceWords  = []string{"kill", "hurt", "attack", "fight", "destroy"}

	positiveWords = []string{"good", "great", "love", "happy", "wonderful"}
	negativeWords = []string{"bad", "hate", "sad", "terrible", "awful"}
)

// ReferenceScorer is the deterministic in-process scorer used when no model
// endpoint is configured. An optional noise source perturbs scores for load
// and chaos testing; with Noise nil, identical input yields identical output.
type ReferenceScorer struct {
	mu     sync.Mutex
	noise  *rand.Rand // nil means deterministic
	jitter float64
}

// NewReferenceScorer returns a deterministic scorer.
func NewReferenceScorer() *ReferenceScorer {
	return &ReferenceScorer{}
}

// WithNoise adds uniform jitter in [0, amplitude) to each probability.
func (r *ReferenceScorer) WithNoise(seed int64, amplitude float64) *ReferenceScorer {
	r.noise = rand.New(rand.NewSource(seed))
	r.jitter = amplitude
	return r
}

// ScoreText computes the nine signals from word occurrence counts.
func (r *ReferenceScorer) ScoreText(ctx context.Context, text string) (domain.MLScores, error) {
	if err := ctx.Err(); err != nil {
		return domain.MLScores{}, domain.NewScorerUnavailable("text scorer interrupted", err)
	}

	lower := strings.ToLower(text)

	scores := domain.MLScores{
		Toxicity:        r.perturb(weighted(lower, toxicWords, 0.2)),
		SpamProbability: r.perturb(weighted(lower, spamIndicators, 0.25)),
		Harassment:      r.perturb(weighted(lower, harassPhrases, 0.3)),
		Violence:        r.perturb(weighted(lower, violenceWords, 0.25)),
		HateSpeech:      0,
		AdultContent:    0,
		Sentiment:       sentimentOf(lower),
		Confidence:      confidenceFor(text),
	}
	return scores, nil
}

func (r *ReferenceScorer) perturb(v float64) float64 {
	if r.noise == nil {
		return v
	}
	r.mu.Lock()
	j := r.noise.Float64() * r.jitter
	r.mu.Unlock()
	return domain.Clamp01(v + j)
}

// weighted sums weight per occurrence of any listed term, clamped to [0,1].
func weighted(lower string, terms []string, weight float64) float64 {
	score := 0.0
	for _, term := range terms {
		score += float64(strings.Count(lower, term)) * weight
	}
	return domain.Clamp01(score)
}

// sentimentOf returns (pos-neg)/(pos+neg), or 0 when neither appears.
func sentimentOf(lower string) float64 {
	pos, neg := 0, 0
	for _, w := range positiveWords {
		pos += strings.Count(lower, w)
	}
	for _, w := range negativeWords {
		neg += strings.Count(lower, w)
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

// confidenceFor grows with text length: longer text gives the signal more
// evidence. Capped at 0.95 so nothing is ever fully certain.
func confidenceFor(text string) float64 {
	c := 0.5 + float64(len(text))/1000
	if c > 0.95 {
		c = 0.95
	}
	return c
}

// ReferenceImageAnalyzer keys its verdict off the URL path, which is enough
// to exercise every image branch without a vision backend.
type ReferenceImageAnalyzer struct{}

// NewReferenceImageAnalyzer returns the URL-keyed analyzer.
func NewReferenceImageAnalyzer() *ReferenceImageAnalyzer {
	return &ReferenceImageAnalyzer{}
}

// AnalyzeImage inspects the URL for marker substrings.
func (a *ReferenceImageAnalyzer) AnalyzeImage(ctx context.Context, url string) (domain.ImageAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return domain.ImageAnalysis{}, domain.NewScorerUnavailable("image analyzer interrupted", err)
	}

	lower := strings.ToLower(url)
	analysis := domain.ImageAnalysis{}

	if strings.Contains(lower, "nsfw") || strings.Contains(lower, "explicit") {
		analysis.ExplicitNudity = 0.92
		analysis.ModerationLabels = append(analysis.ModerationLabels,
			domain.ImageLabel{Name: "Explicit Nudity", Confidence: 0.92})
	}
	if strings.Contains(lower, "gore") || strings.Contains(lower, "violence") {
		analysis.Violence = 0.88
		analysis.ModerationLabels = append(analysis.ModerationLabels,
			domain.ImageLabel{Name: "Graphic Violence", Confidence: 0.88})
	}
	if strings.Contains(lower, "weapon") || strings.Contains(lower, "gun") {
		analysis.WeaponsDetected = true
		analysis.ModerationLabels = append(analysis.ModerationLabels,
			domain.ImageLabel{Name: "Weapons", Confidence: 0.85})
	}
	return analysis, nil
}
