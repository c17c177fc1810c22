// Package moderation contains the Flow A orchestrator: risk assessment,
// the fast-approve gate, the triage and ML tiers, score combination, and
// the routing of terminal decisions.
package moderation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/sentra/moderation/internal/domain"
	"github.com/sentra/moderation/internal/events"
	"github.com/sentra/moderation/internal/metrics"
	"github.com/sentra/moderation/internal/mlscoring"
	"github.com/sentra/moderation/internal/reputation"
	"github.com/sentra/moderation/internal/review"
	"github.com/sentra/moderation/internal/triage"
)

// Score combination weights. Low ML confidence raises combined risk:
// content the model is unsure about routes toward humans.
const (
	weightTriageConfidence = 0.3
	weightMLUncertainty    = 0.5
	weightUserRisk         = 0.2
)

// Config is the orchestrator's tunable surface.
type Config struct {
	EscalationThreshold float64       `yaml:"escalation_threshold"` // strictly greater escalates
	RejectHighThreshold float64       `yaml:"reject_high_threshold"`
	ApproveThreshold    float64       `yaml:"approve_threshold"`
	LowConfidence       float64       `yaml:"low_confidence"`
	TriageTimeout       time.Duration `yaml:"triage_timeout"`
	MLTimeout           time.Duration `yaml:"ml_timeout"`
	EndToEndTimeout     time.Duration `yaml:"end_to_end_timeout"`
}

// DefaultConfig returns the production routing thresholds.
func DefaultConfig() Config {
	return Config{
		EscalationThreshold: 0.6,
		RejectHighThreshold: 0.7,
		ApproveThreshold:    0.3,
		LowConfidence:       0.5,
		TriageTimeout:       50 * time.Millisecond,
		MLTimeout:           500 * time.Millisecond,
		EndToEndTimeout:     5 * time.Second,
	}
}

// ResultSink persists terminal moderation results for audit.
type ResultSink interface {
	SaveResult(ctx context.Context, result *domain.ModerationResult) error
}

// DeadLetterSink receives records the pipeline could not decide.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, content *domain.Content, kind domain.ErrorKind, cause error) error
}

// Orchestrator routes content through the tier cascade. It is safe for
// concurrent use; per-user serialization lives in the reputation engine.
type Orchestrator struct {
	cfg        Config
	reputation *reputation.Engine
	triage     *triage.Service
	ml         *mlscoring.Service
	queue      *review.Queue

	sink       ResultSink          // optional
	deadLetter DeadLetterSink      // optional
	emitter    events.EventEmitter // optional
	metrics    *metrics.Metrics    // optional

	logger *log.Logger
	now    func() time.Time
}

// NewOrchestrator wires the tier cascade. queue must be non-nil; sink,
// dead-letter, emitter and metrics may each be nil.
func NewOrchestrator(cfg Config, rep *reputation.Engine, tr *triage.Service, ml *mlscoring.Service, queue *review.Queue) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		reputation: rep,
		triage:     tr,
		ml:         ml,
		queue:      queue,
		logger:     log.New(log.Writer(), "[ORCHESTRATOR] ", log.LstdFlags),
		now:        time.Now,
	}
}

// SetClock overrides the time source. Used by tests and replay.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// WithSink attaches a result sink.
func (o *Orchestrator) WithSink(s ResultSink) *Orchestrator { o.sink = s; return o }

// WithDeadLetter attaches a dead-letter sink.
func (o *Orchestrator) WithDeadLetter(d DeadLetterSink) *Orchestrator { o.deadLetter = d; return o }

// WithEmitter attaches a decision event emitter.
func (o *Orchestrator) WithEmitter(e events.EventEmitter) *Orchestrator { o.emitter = e; return o }

// WithMetrics attaches Prometheus instrumentation.
func (o *Orchestrator) WithMetrics(m *metrics.Metrics) *Orchestrator { o.metrics = m; return o }

// ProcessContent runs the full cascade for one content item. On escalation
// the returned review task is already enqueued. Errors carry an ErrorKind;
// dead-lettered content returns the error alongside a nil result.
func (o *Orchestrator) ProcessContent(ctx context.Context, content *domain.Content) (*domain.ModerationResult, *domain.ReviewTask, error) {
	start := o.now()

	if err := content.Validate(); err != nil {
		o.sendDeadLetter(ctx, content, err)
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.EndToEndTimeout)
	defer cancel()

	o.reputation.NoteSubmission(content.UserID)
	profile := o.reputation.GetRiskProfile(content.UserID)

	// Fast-approve gate: trusted, text-only, not bursting.
	if profile.FastTrackApproved && !content.HasMedia() && !profile.IsBursting {
		result := o.newResult(content, profile)
		result.Decision = domain.StatusApproved
		result.DecisionSource = domain.SourceTriage
		result.TierProcessed = domain.TierTriage
		result.CombinedRiskScore = domain.Clamp01(weightUserRisk * profile.RiskScore)
		result.Notes = "fast-track approved"
		o.recordOutcome(content, result)
		o.finish(ctx, content, result, start)
		return result, nil, nil
	}

	// Tier 1: triage.
	triageRes := o.triage.Triage(content)
	if d := o.now().Sub(start); d > o.cfg.TriageTimeout {
		o.logger.Printf("triage over budget for content %s: %v", content.ID, d)
	}

	if triageRes.ShouldBlock {
		result := o.newResult(content, profile)
		result.Decision = domain.StatusRejected
		result.DecisionSource = domain.SourceTriage
		result.TierProcessed = domain.TierTriage
		result.Severity = triageRes.Severity
		result.Violations = triageRes.Violations
		result.CombinedRiskScore = domain.Clamp01(
			weightTriageConfidence*triageRes.Confidence + weightUserRisk*profile.RiskScore)
		result.Notes = fmt.Sprintf("triage block: %v", triageRes.MatchedPatterns)
		o.recordOutcome(content, result)
		o.finish(ctx, content, result, start)
		return result, nil, nil
	}

	// Tier 2: ML scoring under its own deadline.
	mlCtx, mlCancel := context.WithTimeout(ctx, o.cfg.MLTimeout)
	verdict, err := o.ml.Score(mlCtx, content)
	mlCancel()
	if err != nil {
		switch domain.KindOf(err) {
		case domain.ErrScorerUnavailable:
			return o.fallbackTriageOnly(ctx, content, profile, triageRes, start)
		default:
			o.sendDeadLetter(ctx, content, err)
			return nil, nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		werr := domain.NewInternal("pipeline deadline exceeded", err)
		o.sendDeadLetter(ctx, content, werr)
		return nil, nil, werr
	}

	combined := domain.Clamp01(
		weightTriageConfidence*triageRes.Confidence +
			weightMLUncertainty*(1-verdict.Scores.Confidence) +
			weightUserRisk*profile.RiskScore)

	result := o.newResult(content, profile)
	result.MLScores = &verdict.Scores
	result.ImageAnalysis = verdict.ImageAnalysis
	result.Severity = domain.MaxSeverity(triageRes.Severity, verdict.Severity)
	result.Violations = domain.DedupeViolations(append(triageRes.Violations, verdict.Violations...))
	result.CombinedRiskScore = combined
	result.DecisionSource = domain.SourceML
	result.TierProcessed = domain.TierML

	if o.metrics != nil {
		o.metrics.RecordCombinedRisk(combined)
	}

	// Escalation: human signal from the ML tier, or combined risk strictly
	// above the threshold. Exactly at the threshold does not escalate.
	if verdict.NeedsHumanReview || combined > o.cfg.EscalationThreshold {
		task := o.escalate(content, result, o.escalationReason(verdict, combined))
		o.finish(ctx, content, result, start)
		return result, task, nil
	}

	result.Decision = o.finalDecision(result.Severity, combined)
	o.recordOutcome(content, result)
	o.finish(ctx, content, result, start)
	return result, nil, nil
}

// finalDecision applies the routing rules top-down.
func (o *Orchestrator) finalDecision(severity domain.SeverityLevel, combined float64) domain.ContentStatus {
	switch {
	case severity == domain.SeverityCritical:
		return domain.StatusRejected
	case severity == domain.SeverityHigh && combined > o.cfg.RejectHighThreshold:
		return domain.StatusRejected
	case severity == domain.SeverityMedium:
		return domain.StatusQuarantined
	case combined < o.cfg.ApproveThreshold:
		return domain.StatusApproved
	default:
		return domain.StatusApproved
	}
}

// fallbackTriageOnly degrades to a triage-only escalation when the ML tier
// is unavailable. Severity is capped at medium: without model scores the
// pipeline cannot justify a harsher call on its own.
func (o *Orchestrator) fallbackTriageOnly(ctx context.Context, content *domain.Content, profile domain.RiskProfile, triageRes triage.Result, start time.Time) (*domain.ModerationResult, *domain.ReviewTask, error) {
	if o.metrics != nil {
		o.metrics.RecordFallback()
	}
	o.logger.Printf("ML tier unavailable, triage-only fallback for content %s", content.ID)

	result := o.newResult(content, profile)
	result.DecisionSource = domain.SourceTriage
	result.TierProcessed = domain.TierTriage
	result.Severity = triageRes.Severity
	if result.Severity > domain.SeverityMedium {
		result.Severity = domain.SeverityMedium
	}
	result.Violations = triageRes.Violations
	result.CombinedRiskScore = domain.Clamp01(
		weightTriageConfidence*triageRes.Confidence + weightUserRisk*profile.RiskScore)
	result.Notes = "ml scorer unavailable"

	task := o.escalate(content, result, "ml scorer unavailable")
	o.finish(ctx, content, result, start)
	return result, task, nil
}

// escalate marks the result escalated, builds the review task, and
// enqueues it. Escalations record no reputation outcome.
func (o *Orchestrator) escalate(content *domain.Content, result *domain.ModerationResult, reason string) *domain.ReviewTask {
	result.Decision = domain.StatusEscalated
	result.TierProcessed = domain.TierHuman

	task := review.BuildTask(content, result, reason, o.now())
	o.queue.Enqueue(task)

	if o.metrics != nil {
		st := o.queue.Stats()
		for p, depth := range st.DepthByPriority {
			o.metrics.UpdateQueueDepth(p.String(), depth)
		}
	}
	return task
}

func (o *Orchestrator) escalationReason(verdict mlscoring.Verdict, combined float64) string {
	switch {
	case verdict.Scores.Confidence < o.cfg.LowConfidence:
		return "low ml confidence"
	case verdict.NeedsHumanReview:
		return "borderline ml scores"
	default:
		return fmt.Sprintf("combined risk %.2f above threshold", combined)
	}
}

// recordOutcome feeds terminal approvals and rejections back into the
// reputation engine. Quarantined and escalated outcomes record nothing.
func (o *Orchestrator) recordOutcome(content *domain.Content, result *domain.ModerationResult) {
	switch result.Decision {
	case domain.StatusRejected:
		for _, v := range result.Violations {
			o.reputation.RecordViolation(content.UserID, v, int(result.Severity), content.ID, "content_rejected")
		}
	case domain.StatusApproved:
		o.reputation.RecordApproval(content.UserID)
	}
}

func (o *Orchestrator) newResult(content *domain.Content, profile domain.RiskProfile) *domain.ModerationResult {
	return &domain.ModerationResult{
		ID:              uuid.New(),
		ContentID:       content.ID,
		ReputationScore: (1 - profile.RiskScore) * 100,
		CreatedAt:       o.now(),
	}
}

// finish stamps latency, persists the result, emits the decision event,
// and records metrics. Sink failures are logged, never fatal.
func (o *Orchestrator) finish(ctx context.Context, content *domain.Content, result *domain.ModerationResult, start time.Time) {
	elapsed := o.now().Sub(start)
	result.ProcessingTimeMs = elapsed.Milliseconds()

	if o.sink != nil {
		if err := o.sink.SaveResult(ctx, result); err != nil {
			o.logger.Printf("result sink failed for content %s: %v", content.ID, err)
		}
	}

	if o.emitter != nil {
		o.emitter.Emit(eventTypeFor(result.Decision), "/flow-a/orchestrator", content.ID.String(), map[string]interface{}{
			"user_id":             content.UserID.String(),
			"decision":            string(result.Decision),
			"decision_source":     string(result.DecisionSource),
			"severity":            result.Severity.String(),
			"combined_risk_score": result.CombinedRiskScore,
			"tier":                string(result.TierProcessed),
		})
	}

	if o.metrics != nil {
		o.metrics.RecordContent(string(result.Decision), string(result.TierProcessed), elapsed.Seconds())
	}
}

func eventTypeFor(decision domain.ContentStatus) string {
	switch decision {
	case domain.StatusApproved:
		return events.TypeContentApproved
	case domain.StatusEscalated:
		return events.TypeContentEscalated
	default:
		return events.TypeContentRejected
	}
}

// sendDeadLetter routes an undecidable record to the dead-letter sink.
func (o *Orchestrator) sendDeadLetter(ctx context.Context, content *domain.Content, cause error) {
	kind := domain.KindOf(cause)
	o.logger.Printf("dead-letter content %s: %v", content.ID, cause)

	if o.metrics != nil {
		o.metrics.RecordDeadLetter(kind.String())
	}
	if o.deadLetter != nil {
		if err := o.deadLetter.DeadLetter(ctx, content, kind, cause); err != nil {
			o.logger.Printf("dead-letter sink failed for content %s: %v", content.ID, err)
		}
	}
	if o.emitter != nil {
		o.emitter.Emit(events.TypeDeadLetter, "/flow-a/orchestrator", content.ID.String(), map[string]interface{}{
			"user_id": content.UserID.String(),
			"kind":    kind.String(),
			"error":   cause.Error(),
		})
	}
}
