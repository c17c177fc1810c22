package mlscoring

import (
	"context"
	"log"
	"time"

	"github.com/sentra/moderation/internal/domain"
)

// Thresholds are the per-signal trip points mapping scores to violations.
type Thresholds struct {
	Toxicity     float64 `yaml:"toxicity"`
	Spam         float64 `yaml:"spam"`
	HateSpeech   float64 `yaml:"hate_speech"`
	Harassment   float64 `yaml:"harassment"`
	Violence     float64 `yaml:"violence"`
	AdultContent float64 `yaml:"adult_content"`

	ImageNudity   float64 `yaml:"image_nudity"`
	ImageViolence float64 `yaml:"image_violence"`

	// BorderlineBand flags scores within this distance of a threshold
	// for human review.
	BorderlineBand float64 `yaml:"borderline_band"`
	// LowConfidence flags any result the scorer is unsure about.
	LowConfidence float64 `yaml:"low_confidence"`
}

// DefaultThresholds returns the production trip points.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Toxicity:       0.70,
		Spam:           0.80,
		HateSpeech:     0.60,
		Harassment:     0.65,
		Violence:       0.70,
		AdultContent:   0.75,
		ImageNudity:    0.7,
		ImageViolence:  0.7,
		BorderlineBand: 0.1,
		LowConfidence:  0.5,
	}
}

// Verdict is the ML tier outcome consumed by the orchestrator.
type Verdict struct {
	Scores           domain.MLScores
	ImageAnalysis    *domain.ImageAnalysis
	Violations       []domain.ViolationType
	Severity         domain.SeverityLevel
	NeedsHumanReview bool
	ProcessingTimeMs int64
}

// Service runs text scoring plus optional image analysis and applies the
// threshold table.
type Service struct {
	scorer     TextScorer
	images     ImageAnalyzer
	thresholds Thresholds
	logger     *log.Logger
	now        func() time.Time
}

// NewService builds the ML tier. The image analyzer may be nil when no
// vision backend is configured; media content then scores on text only.
func NewService(scorer TextScorer, images ImageAnalyzer, th Thresholds) *Service {
	return &Service{
		scorer:     scorer,
		images:     images,
		thresholds: th,
		logger:     log.New(log.Writer(), "[ML] ", log.LstdFlags),
		now:        time.Now,
	}
}

// SetClock overrides the time source used for latency measurement.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Score evaluates a content item. A scorer failure surfaces as a
// ScorerUnavailable error so the caller can fall back to triage-only mode.
func (s *Service) Score(ctx context.Context, content *domain.Content) (Verdict, error) {
	start := s.now()

	scores, err := s.scorer.ScoreText(ctx, content.TextContent)
	if err != nil {
		s.logger.Printf("text scorer failed for content %s: %v", content.ID, err)
		if domain.KindOf(err) == domain.ErrScorerUnavailable {
			return Verdict{}, err
		}
		return Verdict{}, domain.NewScorerUnavailable("text scorer failed", err)
	}

	verdict := Verdict{Scores: scores}

	if content.HasMedia() && s.images != nil {
		url := content.ImageURL
		if url == "" {
			url = content.MediaURLs[0]
		}
		analysis, err := s.images.AnalyzeImage(ctx, url)
		if err != nil {
			// Image backend down is not fatal: text scores still stand,
			// but a human looks at the media.
			s.logger.Printf("image analysis failed for content %s: %v", content.ID, err)
			verdict.NeedsHumanReview = true
		} else {
			verdict.ImageAnalysis = &analysis
		}
	}

	s.applyThresholds(&verdict)
	verdict.Violations = domain.DedupeViolations(verdict.Violations)
	verdict.ProcessingTimeMs = s.now().Sub(start).Milliseconds()
	return verdict, nil
}

func (s *Service) applyThresholds(v *Verdict) {
	th := s.thresholds
	scores := v.Scores

	add := func(vt domain.ViolationType, sev domain.SeverityLevel) {
		v.Violations = append(v.Violations, vt)
		v.Severity = domain.MaxSeverity(v.Severity, sev)
	}

	if scores.Toxicity >= th.Toxicity {
		add(domain.ViolationHarassment, domain.SeverityMedium)
	}
	if scores.SpamProbability >= th.Spam {
		add(domain.ViolationSpam, domain.SeverityLow)
	}
	if scores.HateSpeech >= th.HateSpeech {
		add(domain.ViolationHateSpeech, domain.SeverityHigh)
	}
	if scores.Harassment >= th.Harassment {
		add(domain.ViolationHarassment, domain.SeverityMedium)
	}
	if scores.Violence >= th.Violence {
		add(domain.ViolationViolence, domain.SeverityHigh)
	}
	if scores.AdultContent >= th.AdultContent {
		add(domain.ViolationAdultContent, domain.SeverityMedium)
	}

	if ia := v.ImageAnalysis; ia != nil {
		if ia.ExplicitNudity >= th.ImageNudity {
			add(domain.ViolationAdultContent, domain.SeverityHigh)
		}
		if ia.Violence >= th.ImageViolence {
			add(domain.ViolationViolence, domain.SeverityHigh)
		}
		if ia.WeaponsDetected {
			add(domain.ViolationViolence, domain.SeverityMedium)
		}
	}

	if s.isBorderline(scores) {
		v.NeedsHumanReview = true
	}
}

// isBorderline flags low scorer confidence or any score sitting within the
// borderline band of its threshold, on either side.
func (s *Service) isBorderline(scores domain.MLScores) bool {
	th := s.thresholds
	if scores.Confidence < th.LowConfidence {
		return true
	}
	band := th.BorderlineBand
	return near(scores.Toxicity, th.Toxicity, band) ||
		near(scores.HateSpeech, th.HateSpeech, band) ||
		near(scores.Harassment, th.Harassment, band)
}

func near(score, threshold, band float64) bool {
	d := score - threshold
	if d < 0 {
		d = -d
	}
	return d < band
}
