package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra/moderation/internal/domain"
	"github.com/sentra/moderation/internal/mlscoring"
	"github.com/sentra/moderation/internal/reputation"
	"github.com/sentra/moderation/internal/review"
	"github.com/sentra/moderation/internal/triage"
)

// recordingScorer returns fixed scores and counts invocations.
type recordingScorer struct {
	mu     sync.Mutex
	scores domain.MLScores
	err    error
	calls  int
}

func (s *recordingScorer) ScoreText(_ context.Context, _ string) (domain.MLScores, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.scores, s.err
}

func (s *recordingScorer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type capturingDeadLetter struct {
	mu       sync.Mutex
	contents []*domain.Content
	kinds    []domain.ErrorKind
}

func (c *capturingDeadLetter) DeadLetter(_ context.Context, content *domain.Content, kind domain.ErrorKind, _ error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contents = append(c.contents, content)
	c.kinds = append(c.kinds, kind)
	return nil
}

type harness struct {
	orch   *Orchestrator
	rep    *reputation.Engine
	queue  *review.Queue
	scorer *recordingScorer
}

func newHarness(t *testing.T, cfg Config, scorer *recordingScorer) *harness {
	t.Helper()
	rep := reputation.NewEngine()
	queue := review.NewQueue(nil)
	ml := mlscoring.NewService(scorer, nil, mlscoring.DefaultThresholds())
	orch := NewOrchestrator(cfg, rep, triage.NewService(triage.DefaultConfig()), ml, queue)
	return &harness{orch: orch, rep: rep, queue: queue, scorer: scorer}
}

func cleanScorer() *recordingScorer {
	return &recordingScorer{scores: domain.MLScores{Confidence: 0.9}}
}

func submit(t *testing.T, h *harness, userID uuid.UUID, text string) (*domain.ModerationResult, *domain.ReviewTask) {
	t.Helper()
	content := &domain.Content{
		ID:          uuid.New(),
		ContentType: domain.ContentForumPost,
		UserID:      userID,
		TextContent: text,
		CreatedAt:   time.Now(),
	}
	result, task, err := h.orch.ProcessContent(context.Background(), content)
	require.NoError(t, err)
	return result, task
}

// trustedUser builds a user whose score lands at risk level trusted:
// aged account, perfect approval rate, maximum community standing.
func trustedUser(rep *reputation.Engine) uuid.UUID {
	id := uuid.New()
	rep.CreateUserAt(id, "veteran", time.Now().Add(-2*365*24*time.Hour))
	rep.SetCommunityStanding(id, 100)
	return id
}

func normalUser(rep *reputation.Engine) uuid.UUID {
	id := uuid.New()
	rep.CreateUser(id, "newcomer")
	return id
}

func TestTrustedTextFastApproval(t *testing.T) {
	h := newHarness(t, DefaultConfig(), cleanScorer())
	user := trustedUser(h.rep)

	before, _ := h.rep.GetUser(user)
	result, task := submit(t, h, user, "Great game everyone!")

	assert.Equal(t, domain.StatusApproved, result.Decision)
	assert.Equal(t, domain.SourceTriage, result.DecisionSource)
	assert.Equal(t, domain.TierTriage, result.TierProcessed)
	assert.Equal(t, domain.SeverityNone, result.Severity)
	assert.Nil(t, task)
	assert.Equal(t, 0, h.scorer.callCount())

	after, _ := h.rep.GetUser(user)
	assert.GreaterOrEqual(t, after.Reputation.OverallScore, before.Reputation.OverallScore)
}

func TestFastApprovalFeedsReputation(t *testing.T) {
	// A fast-tracked approval counts like any other: trusted users keep
	// accruing approved posts after crossing into the trusted tier.
	h := newHarness(t, DefaultConfig(), cleanScorer())
	user := trustedUser(h.rep)

	result, _ := submit(t, h, user, "Great game everyone!")
	require.Equal(t, domain.StatusApproved, result.Decision)
	require.Equal(t, "fast-track approved", result.Notes)

	after, _ := h.rep.GetUser(user)
	assert.Equal(t, 1, after.Reputation.ApprovedPosts)

	submit(t, h, user, "Rematch next week?")
	after, _ = h.rep.GetUser(user)
	assert.Equal(t, 2, after.Reputation.ApprovedPosts)
}

func TestFastApproveDeniedForMedia(t *testing.T) {
	h := newHarness(t, DefaultConfig(), cleanScorer())
	user := trustedUser(h.rep)

	content := &domain.Content{
		ID:          uuid.New(),
		ContentType: domain.ContentImage,
		UserID:      user,
		TextContent: "look at this",
		ImageURL:    "https://cdn.example.com/pic.jpg",
		CreatedAt:   time.Now(),
	}
	_, _, err := h.orch.ProcessContent(context.Background(), content)
	require.NoError(t, err)

	// Media breaks the fast-approve gate: the ML tier ran.
	assert.Equal(t, 1, h.scorer.callCount())
}

func TestBlockedDomainRejectsAtTriage(t *testing.T) {
	h := newHarness(t, DefaultConfig(), cleanScorer())
	user := normalUser(h.rep)

	result, task := submit(t, h, user, "grab it at https://spam-domain.net/deal buy now")

	assert.Equal(t, domain.StatusRejected, result.Decision)
	assert.Equal(t, domain.SourceTriage, result.DecisionSource)
	assert.Equal(t, domain.TierTriage, result.TierProcessed)
	assert.Equal(t, domain.SeverityHigh, result.Severity)
	assert.Contains(t, result.Violations, domain.ViolationSpam)
	assert.GreaterOrEqual(t, result.CombinedRiskScore, 0.0)
	assert.LessOrEqual(t, result.CombinedRiskScore, 1.0)
	assert.Nil(t, task)
	assert.Equal(t, 0, h.scorer.callCount())

	// The rejection fed back into reputation.
	after, _ := h.rep.GetUser(user)
	assert.Equal(t, 1, after.Reputation.TotalViolations)
}

func TestCriticalPatternRejectsWithoutML(t *testing.T) {
	h := newHarness(t, DefaultConfig(), cleanScorer())
	user := normalUser(h.rep)

	result, task := submit(t, h, user, "this is a bomb threat against the venue")

	assert.Equal(t, domain.StatusRejected, result.Decision)
	assert.Equal(t, domain.SourceTriage, result.DecisionSource)
	assert.Equal(t, domain.SeverityCritical, result.Severity)
	assert.Contains(t, result.Violations, domain.ViolationThreat)
	assert.Nil(t, task)
	assert.Equal(t, 0, h.scorer.callCount())

	// Critical violation kinds ban immediately.
	after, _ := h.rep.GetUser(user)
	assert.True(t, after.IsBanned)
}

func TestBorderlineMLEscalates(t *testing.T) {
	// Harassment just above its 0.65 threshold sits inside the borderline
	// band, so the verdict carries the human-review signal.
	scorer := &recordingScorer{scores: domain.MLScores{Harassment: 0.66, Confidence: 0.55}}
	h := newHarness(t, DefaultConfig(), scorer)
	user := normalUser(h.rep)

	now := time.Now()
	result, task := submit(t, h, user, "you should really reconsider, your behaviour is borderline")

	assert.Equal(t, domain.StatusEscalated, result.Decision)
	assert.Equal(t, domain.TierHuman, result.TierProcessed)
	require.NotNil(t, task)
	assert.Equal(t, domain.PriorityHigh, task.Priority) // severity medium
	assert.WithinDuration(t, now.Add(60*time.Minute), task.SLADeadline, 5*time.Second)
	assert.Equal(t, "borderline ml scores", task.EscalationReason)
	assert.Equal(t, 1, h.queue.Len())

	// Escalation records no reputation outcome.
	after, _ := h.rep.GetUser(user)
	assert.Equal(t, 0, after.Reputation.TotalViolations)
	assert.Equal(t, 0, after.Reputation.ApprovedPosts)
}

func TestLowConfidenceEscalationReason(t *testing.T) {
	scorer := &recordingScorer{scores: domain.MLScores{Confidence: 0.3}}
	h := newHarness(t, DefaultConfig(), scorer)

	_, task := submit(t, h, normalUser(h.rep), "hard to tell what this means")

	require.NotNil(t, task)
	assert.Equal(t, "low ml confidence", task.EscalationReason)
}

func TestEscalationThresholdIsStrictlyGreater(t *testing.T) {
	// Pin the combined score by fixing every input, then set the threshold
	// to exactly that value: equality must not escalate.
	scorer := &recordingScorer{scores: domain.MLScores{Confidence: 0.5}}
	h := newHarness(t, DefaultConfig(), scorer)
	user := uuid.New() // unknown user, risk score 0.5

	combined := weightMLUncertainty*(1-0.5) + weightUserRisk*0.5

	cfg := DefaultConfig()
	cfg.EscalationThreshold = combined
	h.orch.cfg = cfg
	result, task := submit(t, h, user, "plain enough message")
	assert.NotEqual(t, domain.StatusEscalated, result.Decision)
	assert.Nil(t, task)

	cfg.EscalationThreshold = combined - 1e-9
	h.orch.cfg = cfg
	result, task = submit(t, h, user, "plain enough message again")
	assert.Equal(t, domain.StatusEscalated, result.Decision)
	require.NotNil(t, task)
	assert.Contains(t, task.EscalationReason, "combined risk")
}

func TestMediumSeverityQuarantines(t *testing.T) {
	scorer := &recordingScorer{scores: domain.MLScores{Toxicity: 0.85, Confidence: 0.9}}
	h := newHarness(t, DefaultConfig(), scorer)
	user := normalUser(h.rep)

	result, task := submit(t, h, user, "borderline hostile text")

	assert.Equal(t, domain.StatusQuarantined, result.Decision)
	assert.Equal(t, domain.SourceML, result.DecisionSource)
	assert.Contains(t, result.Violations, domain.ViolationHarassment)
	assert.Nil(t, task)

	// Quarantine records no reputation outcome.
	after, _ := h.rep.GetUser(user)
	assert.Equal(t, 0, after.Reputation.TotalViolations)
	assert.Equal(t, 0, after.Reputation.ApprovedPosts)
}

func TestHighSeverityLowCombinedApproves(t *testing.T) {
	// High severity only rejects when combined risk also exceeds the bar;
	// a confident model with a clean triage pass approves.
	scorer := &recordingScorer{scores: domain.MLScores{Violence: 0.75, Confidence: 0.95}}
	h := newHarness(t, DefaultConfig(), scorer)
	user := normalUser(h.rep)

	result, _ := submit(t, h, user, "the boxers will fight for the title")

	assert.Equal(t, domain.SeverityHigh, result.Severity)
	assert.Less(t, result.CombinedRiskScore, 0.3)
	assert.Equal(t, domain.StatusApproved, result.Decision)
}

func TestScorerUnavailableFallback(t *testing.T) {
	scorer := &recordingScorer{err: errors.New("model endpoint down")}
	h := newHarness(t, DefaultConfig(), scorer)
	user := normalUser(h.rep)

	result, task := submit(t, h, user, "a free iphone, limited time offer, act now before midnight")

	assert.Equal(t, domain.StatusEscalated, result.Decision)
	assert.Equal(t, domain.SourceTriage, result.DecisionSource)
	assert.LessOrEqual(t, result.Severity, domain.SeverityMedium)
	assert.Contains(t, result.Violations, domain.ViolationSpam)
	assert.Equal(t, "ml scorer unavailable", result.Notes)
	require.NotNil(t, task)
	assert.Equal(t, "ml scorer unavailable", task.EscalationReason)
}

func TestInvalidInputDeadLetters(t *testing.T) {
	h := newHarness(t, DefaultConfig(), cleanScorer())
	dl := &capturingDeadLetter{}
	h.orch.WithDeadLetter(dl)

	content := &domain.Content{ID: uuid.New(), UserID: uuid.New()} // no payload
	result, task, err := h.orch.ProcessContent(context.Background(), content)

	require.Error(t, err)
	assert.Equal(t, domain.ErrInputInvalid, domain.KindOf(err))
	assert.Nil(t, result)
	assert.Nil(t, task)
	require.Len(t, dl.kinds, 1)
	assert.Equal(t, domain.ErrInputInvalid, dl.kinds[0])
}

func TestCancelledContextDeadLetters(t *testing.T) {
	// The stub scorer ignores the context, so cancellation surfaces at the
	// post-ML deadline check and the record dead-letters as internal.
	h := newHarness(t, DefaultConfig(), cleanScorer())
	dl := &capturingDeadLetter{}
	h.orch.WithDeadLetter(dl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	content := &domain.Content{
		ID:          uuid.New(),
		ContentType: domain.ContentForumPost,
		UserID:      normalUser(h.rep),
		TextContent: "anything",
		CreatedAt:   time.Now(),
	}
	_, _, err := h.orch.ProcessContent(ctx, content)

	require.Error(t, err)
	assert.Equal(t, domain.ErrInternal, domain.KindOf(err))
	require.Len(t, dl.kinds, 1)
	assert.Equal(t, domain.ErrInternal, dl.kinds[0])
}

func TestIdempotentDecisionForSameInput(t *testing.T) {
	runOnce := func() *domain.ModerationResult {
		h := newHarness(t, DefaultConfig(), nil)
		h.orch.ml = mlscoring.NewService(mlscoring.NewReferenceScorer(), nil, mlscoring.DefaultThresholds())
		user := uuid.New()
		h.rep.CreateUser(user, "same")
		content := &domain.Content{
			ID:          uuid.MustParse("6d1c0b5e-9f3a-4a7e-8d2b-1f0e9c8b7a65"),
			ContentType: domain.ContentForumPost,
			UserID:      user,
			TextContent: "you are a loser and an idiot",
			CreatedAt:   time.Unix(1700000000, 0),
		}
		result, _, err := h.orch.ProcessContent(context.Background(), content)
		require.NoError(t, err)
		return result
	}

	a := runOnce()
	b := runOnce()
	assert.Equal(t, a.Decision, b.Decision)
	assert.Equal(t, a.DecisionSource, b.DecisionSource)
	assert.Equal(t, a.Severity, b.Severity)
	assert.Equal(t, a.Violations, b.Violations)
}

func TestCombinedRiskAlwaysBounded(t *testing.T) {
	texts := []string{
		"hello world",
		"free free free free free buy now click here $$ $$ $$",
		"kill hurt attack fight destroy kill hurt attack",
		"you should you are a people like you you should",
	}
	h := newHarness(t, DefaultConfig(), nil)
	h.orch.ml = mlscoring.NewService(mlscoring.NewReferenceScorer(), nil, mlscoring.DefaultThresholds())

	for _, text := range texts {
		result, _ := submit(t, h, normalUser(h.rep), text)
		assert.GreaterOrEqual(t, result.CombinedRiskScore, 0.0, text)
		assert.LessOrEqual(t, result.CombinedRiskScore, 1.0, text)
	}
}
