package triage

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra/moderation/internal/domain"
)

func newContent(text string) *domain.Content {
	return &domain.Content{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		ContentType: domain.ContentForumPost,
		TextContent: text,
	}
}

func TestTriageCleanContent(t *testing.T) {
	svc := NewService(DefaultConfig())

	res := svc.Triage(newContent("I really enjoyed the concert last night, great crowd"))

	assert.False(t, res.ShouldBlock)
	assert.Equal(t, domain.SeverityNone, res.Severity)
	assert.Empty(t, res.Violations)
	assert.Empty(t, res.MatchedPatterns)
	assert.Equal(t, 0.0, res.Confidence)
}

func TestTriageCriticalShortCircuits(t *testing.T) {
	svc := NewService(DefaultConfig())

	// Critical plus spam in one message: the critical hit wins outright and
	// no other check runs.
	res := svc.Triage(newContent("I will kill you. Also click here to win a prize"))

	assert.True(t, res.ShouldBlock)
	assert.Equal(t, domain.SeverityCritical, res.Severity)
	assert.Equal(t, 0.99, res.Confidence)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, domain.ViolationThreat, res.Violations[0])
	// Short-circuit means the spam regex never contributed a label.
	for _, m := range res.MatchedPatterns {
		assert.NotContains(t, m, "regex:")
	}
}

func TestTriageBlockedDomain(t *testing.T) {
	svc := NewService(DefaultConfig())

	res := svc.Triage(newContent("check this out https://www.malware-site.com/download"))

	assert.True(t, res.ShouldBlock)
	assert.Equal(t, domain.SeverityHigh, res.Severity)
	assert.Equal(t, 0.95, res.Confidence)
	assert.Contains(t, res.MatchedPatterns, "blocked_domain")
	assert.Contains(t, res.Violations, domain.ViolationSpam)
}

func TestTriageSpamRegexAlone(t *testing.T) {
	svc := NewService(DefaultConfig())

	res := svc.Triage(newContent("limited time offer on new headphones"))

	// Medium severity at 0.80 confidence sits below the block rule.
	assert.False(t, res.ShouldBlock)
	assert.Equal(t, domain.SeverityMedium, res.Severity)
	assert.Equal(t, 0.80, res.Confidence)
	assert.Contains(t, res.Violations, domain.ViolationSpam)
	require.NotEmpty(t, res.MatchedPatterns)
	assert.Contains(t, res.MatchedPatterns[0], "regex:")
}

func TestTriageSpamPhrase(t *testing.T) {
	svc := NewService(DefaultConfig())

	res := svc.Triage(newContent("Congratulations you have won! Reply to collect"))

	assert.Equal(t, domain.SeverityMedium, res.Severity)
	require.NotEmpty(t, res.MatchedPatterns)
	assert.Contains(t, res.MatchedPatterns[0], "phrase:")
}

func TestTriageSpamPlusProfanityBlocks(t *testing.T) {
	svc := NewService(DefaultConfig())

	// Spam raises severity to medium, profanity raises confidence to 0.90.
	// medium + 0.90 crosses the block rule.
	res := svc.Triage(newContent("this shit is a limited time offer"))

	assert.True(t, res.ShouldBlock)
	assert.Equal(t, domain.SeverityMedium, res.Severity)
	assert.Equal(t, 0.90, res.Confidence)
	assert.Contains(t, res.Violations, domain.ViolationSpam)
	assert.Contains(t, res.Violations, domain.ViolationProfanity)
}

func TestTriageProfanityAlone(t *testing.T) {
	svc := NewService(DefaultConfig())

	res := svc.Triage(newContent("well damn, that was unexpected"))

	assert.False(t, res.ShouldBlock)
	assert.Equal(t, domain.SeverityLow, res.Severity)
	assert.Equal(t, 0.90, res.Confidence)
	assert.Contains(t, res.Violations, domain.ViolationProfanity)
}

func TestTriageDuplicateDetection(t *testing.T) {
	svc := NewService(DefaultConfig())

	first := svc.Triage(newContent("selling my old bike, decent condition"))
	assert.False(t, first.ShouldBlock)
	assert.NotContains(t, first.MatchedPatterns, "duplicate_content")

	second := svc.Triage(newContent("selling my old bike, decent condition"))
	assert.Contains(t, second.MatchedPatterns, "duplicate_content")
	assert.Equal(t, domain.SeverityLow, second.Severity)
	assert.Contains(t, second.Violations, domain.ViolationSpam)
	assert.False(t, second.ShouldBlock)
}

func TestTriageEmptyTextNeverDuplicate(t *testing.T) {
	svc := NewService(DefaultConfig())

	svc.Triage(newContent(""))
	res := svc.Triage(newContent(""))

	assert.NotContains(t, res.MatchedPatterns, "duplicate_content")
	assert.Equal(t, 0, svc.CacheSize())
}

func TestTriageViolationsDeduped(t *testing.T) {
	svc := NewService(DefaultConfig())

	// Spam regex, blocked domain and duplicate all map to spam; the
	// violation list carries it once.
	text := "free iphone at https://spam-domain.net/claim"
	svc.Triage(newContent(text))
	res := svc.Triage(newContent(text))

	spamCount := 0
	for _, v := range res.Violations {
		if v == domain.ViolationSpam {
			spamCount++
		}
	}
	assert.Equal(t, 1, spamCount)
	assert.True(t, res.ShouldBlock)
	assert.Equal(t, domain.SeverityHigh, res.Severity)
}

func TestHashCacheEviction(t *testing.T) {
	c := newHashCache(3)

	assert.False(t, c.Seen("a"))
	assert.False(t, c.Seen("b"))
	assert.False(t, c.Seen("c"))
	assert.Equal(t, 3, c.Len())

	// "d" evicts "a", the oldest entry.
	assert.False(t, c.Seen("d"))
	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Seen("a"))
	assert.True(t, c.Seen("d"))
}

func TestHashCacheHitRefreshesRecency(t *testing.T) {
	c := newHashCache(2)

	c.Seen("a")
	c.Seen("b")
	assert.True(t, c.Seen("a")) // a is now newest
	c.Seen("c")                 // evicts b, not a

	assert.True(t, c.Seen("a"))
	assert.False(t, c.Seen("b"))
}

func TestHashCacheDefaultCapacity(t *testing.T) {
	c := newHashCache(0)
	assert.Equal(t, 10000, c.capacity)
}

func BenchmarkTriage(b *testing.B) {
	svc := NewService(DefaultConfig())
	contents := make([]*domain.Content, 64)
	for i := range contents {
		contents[i] = newContent(fmt.Sprintf("message %d with some ordinary text in it", i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		svc.Triage(contents[i%len(contents)])
	}
}
