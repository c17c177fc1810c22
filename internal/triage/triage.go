// Package triage implements the deterministic fast path of the moderation
// cascade: critical patterns, blocked domains, spam regexes and exact
// phrases, profanity, and duplicate detection. Budget: under 50ms.
package triage

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sentra/moderation/internal/domain"
)

// Spam patterns. In production these come from trained models; the
// deterministic set here mirrors the shapes seen in real spam waves.
var spamPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)buy\s+now\s*!*\s*\$?\d*`),
	regexp.MustCompile(`(?i)click\s+here\s+to\s+win`),
	regexp.MustCompile(`(?i)free\s+(?:gift|money|iphone)`),
	regexp.MustCompile(`(?i)limited\s+time\s+offer`),
	regexp.MustCompile(`(?i)act\s+now\s+before`),
	regexp.MustCompile(`(?i)earn\s+\$\d+\s+(?:daily|weekly|hourly)`),
	regexp.MustCompile(`(?i)(?:crypto|bitcoin)\s+(?:investment|profit)`),
	regexp.MustCompile(`https?://bit\.ly/\w+`), // URL shorteners favored by spam
	regexp.MustCompile(`(?i)dm\s+me\s+for\s+(?:details|more)`),
}

var profanityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:fuck|shit|damn|ass|bitch)\b`),
}

// Critical patterns short-circuit the whole pipeline.
var criticalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:kill\s+(?:you|myself|yourself)|bomb\s+threat)\b`),
	regexp.MustCompile(`(?i)\b(?:child\s+porn|cp\s+links)\b`),
}

var urlPattern = regexp.MustCompile(`https?://(?:www\.)?([^\s/]+)`)

// Result is the triage outcome handed back to the orchestrator.
type Result struct {
	ShouldBlock      bool
	Violations       []domain.ViolationType
	Severity         domain.SeverityLevel
	Confidence       float64
	MatchedPatterns  []string
	ProcessingTimeMs int64
}

// Config is the tunable surface of the triage tier.
type Config struct {
	DuplicateCacheSize int
	BlockedDomains     []string
	SpamPhrases        []string
}

// DefaultConfig returns the triage defaults.
func DefaultConfig() Config {
	return Config{
		DuplicateCacheSize: 10000,
		BlockedDomains: []string{
			"malware-site.com",
			"phishing-example.com",
			"spam-domain.net",
		},
		SpamPhrases: []string{
			"click here to claim your prize",
			"congratulations you have won",
			"wire transfer required",
		},
	}
}

// Service performs Tier 1 triage. Stateless per call, except for the
// bounded duplicate-hash cache.
type Service struct {
	blockedDomains map[string]bool
	spamPhrases    []string
	recentHashes   *hashCache
	now            func() time.Time
}

// NewService creates a triage service with the given configuration.
func NewService(cfg Config) *Service {
	domains := make(map[string]bool, len(cfg.BlockedDomains))
	for _, d := range cfg.BlockedDomains {
		domains[strings.ToLower(d)] = true
	}
	return &Service{
		blockedDomains: domains,
		spamPhrases:    cfg.SpamPhrases,
		recentHashes:   newHashCache(cfg.DuplicateCacheSize),
		now:            time.Now,
	}
}

// SetClock overrides the time source used for latency measurement.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Triage runs the fixed check sequence over a content's text. The first
// critical hit short-circuits; every other check accumulates.
func (s *Service) Triage(content *domain.Content) Result {
	start := s.now()

	text := content.TextContent
	textLower := strings.ToLower(text)

	var violations []domain.ViolationType
	var matched []string
	severity := domain.SeverityNone
	confidence := 0.0

	// 1. Critical content blocks immediately.
	if hits := matchAll(criticalPatterns, text); len(hits) > 0 {
		for range hits {
			violations = append(violations, domain.ViolationThreat)
		}
		return Result{
			ShouldBlock:      true,
			Violations:       domain.DedupeViolations(violations),
			Severity:         domain.SeverityCritical,
			Confidence:       0.99,
			MatchedPatterns:  hits,
			ProcessingTimeMs: s.elapsedMs(start),
		}
	}

	// 2. Blocklisted domains in extracted URLs.
	if s.hasBlockedDomain(text) {
		violations = append(violations, domain.ViolationSpam)
		matched = append(matched, "blocked_domain")
		severity = domain.MaxSeverity(severity, domain.SeverityHigh)
		confidence = maxf(confidence, 0.95)
	}

	// 3. Spam regexes and exact phrases.
	if hits := s.matchSpam(text, textLower); len(hits) > 0 {
		violations = append(violations, domain.ViolationSpam)
		matched = append(matched, hits...)
		severity = domain.MaxSeverity(severity, domain.SeverityMedium)
		confidence = maxf(confidence, 0.80)
	}

	// 4. Profanity.
	if hits := matchAll(profanityPatterns, text); len(hits) > 0 {
		violations = append(violations, domain.ViolationProfanity)
		matched = append(matched, prefixAll("profanity:", hits)...)
		severity = domain.MaxSeverity(severity, domain.SeverityLow)
		confidence = maxf(confidence, 0.90)
	}

	// 5. Duplicate content.
	if s.isDuplicate(text) {
		violations = append(violations, domain.ViolationSpam)
		matched = append(matched, "duplicate_content")
		severity = domain.MaxSeverity(severity, domain.SeverityLow)
		confidence = maxf(confidence, 0.85)
	}

	shouldBlock := severity >= domain.SeverityHigh ||
		(severity >= domain.SeverityMedium && confidence >= 0.9)

	return Result{
		ShouldBlock:      shouldBlock,
		Violations:       domain.DedupeViolations(violations),
		Severity:         severity,
		Confidence:       confidence,
		MatchedPatterns:  matched,
		ProcessingTimeMs: s.elapsedMs(start),
	}
}

// CacheSize returns the current duplicate-cache occupancy.
func (s *Service) CacheSize() int { return s.recentHashes.Len() }

func (s *Service) matchSpam(text, textLower string) []string {
	var hits []string
	for _, re := range spamPatterns {
		if re.MatchString(text) {
			hits = append(hits, fmt.Sprintf("regex:%s", truncate(re.String(), 30)))
		}
	}
	for _, phrase := range s.spamPhrases {
		if strings.Contains(textLower, phrase) {
			hits = append(hits, fmt.Sprintf("phrase:%s", truncate(phrase, 30)))
		}
	}
	return hits
}

func (s *Service) hasBlockedDomain(text string) bool {
	for _, m := range urlPattern.FindAllStringSubmatch(text, -1) {
		if s.blockedDomains[strings.ToLower(m[1])] {
			return true
		}
	}
	return false
}

func (s *Service) isDuplicate(text string) bool {
	if text == "" {
		return false
	}
	sum := md5.Sum([]byte(text))
	return s.recentHashes.Seen(hex.EncodeToString(sum[:]))
}

func (s *Service) elapsedMs(start time.Time) int64 {
	return s.now().Sub(start).Milliseconds()
}

func matchAll(patterns []*regexp.Regexp, text string) []string {
	var hits []string
	for _, re := range patterns {
		if re.MatchString(text) {
			hits = append(hits, re.String())
		}
	}
	return hits
}

func prefixAll(prefix string, in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = prefix + truncate(s, 20)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
