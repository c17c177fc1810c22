package mlscoring

import (
	"context"
	"errors"

	"github.com/sentra/moderation/internal/circuitbreaker"
	"github.com/sentra/moderation/internal/domain"
)

// BreakerScorer guards a TextScorer with a circuit breaker. When the
// breaker is open every call fails fast as scorer-unavailable, which the
// orchestrator turns into triage-only fallback.
type BreakerScorer struct {
	scorer  TextScorer
	breaker *circuitbreaker.CircuitBreaker
}

// NewBreakerScorer wraps the scorer. A nil config uses breaker defaults.
func NewBreakerScorer(scorer TextScorer, cfg *circuitbreaker.Config) *BreakerScorer {
	if cfg == nil {
		cfg = circuitbreaker.DefaultConfig("text-scorer")
	}
	return &BreakerScorer{
		scorer:  scorer,
		breaker: circuitbreaker.New(cfg),
	}
}

// ScoreText delegates through the breaker.
func (b *BreakerScorer) ScoreText(ctx context.Context, text string) (domain.MLScores, error) {
	var scores domain.MLScores
	err := b.breaker.Execute(ctx, func(ctx context.Context) error {
		var inner error
		scores, inner = b.scorer.ScoreText(ctx, text)
		return inner
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return domain.MLScores{}, domain.NewScorerUnavailable("text scorer circuit open", err)
		}
		return domain.MLScores{}, err
	}
	return scores, nil
}

// BreakerState exposes the breaker position for health reporting.
func (b *BreakerScorer) BreakerState() circuitbreaker.State {
	return b.breaker.State()
}
