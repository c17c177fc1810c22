// Package reputation maintains per-user reputation scores and derives the
// risk profiles that drive routing in the moderation pipeline. Higher
// reputation means faster processing and lower scrutiny.
package reputation

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentra/moderation/internal/domain"
)

// Scoring weights for the overall reputation formula.
const (
	weightApprovalRate      = 0.3
	weightAccountAge        = 0.2
	weightViolationHistory  = 0.3
	weightCommunityStanding = 0.2

	// Violations decay exponentially over this many days.
	violationDecayDays = 90.0

	// Small boost applied per approved post, clamped to 100.
	approvalBoost = 0.1
)

// User is a user entry owned by the engine. Violations are stored as owned
// immutable records inside the reputation, referencing content by ID only.
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`

	RiskLevel  domain.RiskLevel  `json:"risk_level"`
	Reputation domain.Reputation `json:"reputation"`

	IsMuted     bool      `json:"is_muted"`
	MutedUntil  time.Time `json:"muted_until,omitempty"`
	IsBanned    bool      `json:"is_banned"`
	BannedUntil time.Time `json:"banned_until,omitempty"` // zero = permanent
	BanReason   string    `json:"ban_reason,omitempty"`

	RateLimitMultiplier float64 `json:"rate_limit_multiplier"`

	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

type userEntry struct {
	mu   sync.Mutex
	user User

	// Timestamps of submissions in the trailing hour, pruned on access.
	recentPosts []time.Time
}

// Engine manages reputation state. The user map is guarded by a read-write
// mutex; each user entry carries its own lock so the orchestrator can read
// a risk profile, release, and re-acquire only to record the outcome.
type Engine struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*userEntry

	now    func() time.Time
	logger *log.Logger
}

// NewEngine creates a reputation engine.
func NewEngine() *Engine {
	return &Engine{
		users:  make(map[uuid.UUID]*userEntry),
		now:    time.Now,
		logger: log.New(log.Writer(), "[REPUTATION] ", log.LstdFlags),
	}
}

// SetClock overrides the engine's time source. Used by tests and replay.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// CreateUser registers a new user with a neutral starting reputation.
func (e *Engine) CreateUser(id uuid.UUID, username string) *User {
	return e.CreateUserAt(id, username, e.now())
}

// CreateUserAt registers a user with an explicit account creation time.
func (e *Engine) CreateUserAt(id uuid.UUID, username string, createdAt time.Time) *User {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entry, ok := e.users[id]; ok {
		u := entry.user
		return &u
	}

	entry := &userEntry{
		user: User{
			ID:        id,
			Username:  username,
			RiskLevel: domain.RiskNormal,
			Reputation: domain.Reputation{
				OverallScore:      50.0,
				CommunityStanding: 50.0,
				ApprovalRate:      1.0,
				LastUpdated:       createdAt,
			},
			RateLimitMultiplier: 1.0,
			CreatedAt:           createdAt,
			LastActive:          createdAt,
		},
	}
	e.users[id] = entry

	u := entry.user
	return &u
}

// GetUser returns a copy of the user record, or false if unknown.
func (e *Engine) GetUser(id uuid.UUID) (User, bool) {
	entry := e.entry(id)
	if entry == nil {
		return User{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.user, true
}

// SetCommunityStanding adjusts the community-standing component (0-100)
// and recomputes the score. Standing normally comes from an external
// community service; this is its injection point.
func (e *Engine) SetCommunityStanding(id uuid.UUID, standing float64) {
	entry := e.entry(id)
	if entry == nil {
		return
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if standing < 0 {
		standing = 0
	} else if standing > 100 {
		standing = 100
	}
	entry.user.Reputation.CommunityStanding = standing
	e.recompute(entry)
}

// GetRiskProfile derives the routing view for a user. Unknown users get a
// neutral profile. The computation is pure over the current user state.
func (e *Engine) GetRiskProfile(id uuid.UUID) domain.RiskProfile {
	now := e.now()

	entry := e.entry(id)
	if entry == nil {
		return domain.RiskProfile{
			UserID:            id,
			RiskLevel:         domain.RiskNormal,
			RiskScore:         0.5,
			MaxPostsPerMinute: rateLimitPerMinute(domain.RiskNormal),
			MaxPostsPerHour:   rateLimitPerHour(domain.RiskNormal),
			ComputedAt:        now,
		}
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	e.recompute(entry)
	rep := &entry.user.Reputation

	level := domain.RiskLevelFor(rep.OverallScore, rep.ViolationsLast30Days)
	if e.banActive(&entry.user, now) {
		level = domain.RiskBanned
	}

	perHour := rateLimitPerHour(level)
	postsLastHour := e.prunedPostCount(entry, now)

	return domain.RiskProfile{
		UserID:              id,
		RiskLevel:           level,
		RiskScore:           1 - rep.OverallScore/100,
		RequiresHumanReview: level == domain.RiskWatch || level == domain.RiskRestricted,
		FastTrackApproved:   level == domain.RiskTrusted,
		MaxPostsPerMinute:   rateLimitPerMinute(level),
		MaxPostsPerHour:     perHour,
		CurrentVelocity:     float64(postsLastHour) / 60.0,
		IsBursting:          float64(postsLastHour) > float64(perHour)*0.5,
		ComputedAt:          now,
	}
}

// RecordViolation appends an immutable history record, updates counters,
// recomputes the score, and applies automatic sanctions.
func (e *Engine) RecordViolation(id uuid.UUID, kind domain.ViolationType, severity int, contentID uuid.UUID, actionTaken string) {
	entry := e.entry(id)
	if entry == nil {
		return
	}
	now := e.now()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	rep := &entry.user.Reputation
	rep.ViolationHistory = append(rep.ViolationHistory, domain.ViolationRecord{
		ViolationType: kind,
		Severity:      severity,
		ContentID:     contentID,
		Timestamp:     now,
		ActionTaken:   actionTaken,
	})
	rep.TotalViolations++
	rep.LastViolation = now
	rep.RejectedPosts++
	rep.TotalPosts++

	e.recompute(entry)
	entry.user.RiskLevel = domain.RiskLevelFor(rep.OverallScore, rep.ViolationsLast30Days)

	e.applySanctions(entry, kind, now)
}

// RecordApproval counts an approved post and nudges the score up slightly.
func (e *Engine) RecordApproval(id uuid.UUID) {
	entry := e.entry(id)
	if entry == nil {
		return
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	rep := &entry.user.Reputation
	rep.TotalPosts++
	rep.ApprovedPosts++

	e.recompute(entry)
	rep.OverallScore = math.Min(100, rep.OverallScore+approvalBoost)
	entry.user.RiskLevel = domain.RiskLevelFor(rep.OverallScore, rep.ViolationsLast30Days)
}

// NoteSubmission updates the rolling velocity counters for a user. Called
// once per submitted content, before routing.
func (e *Engine) NoteSubmission(id uuid.UUID) {
	entry := e.entry(id)
	if entry == nil {
		return
	}
	now := e.now()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.recentPosts = append(entry.recentPosts, now)
	rep := &entry.user.Reputation
	rep.PostsLastHour = e.prunedPostCount(entry, now)
	rep.PostsLastDay++
	rep.PostsLastWeek++
	entry.user.LastActive = now
}

// UserCount returns the number of tracked users.
func (e *Engine) UserCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.users)
}

func (e *Engine) entry(id uuid.UUID) *userEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.users[id]
}

// recompute rebuilds the overall score as a pure function of the history,
// the account age, the approval rate, and the community standing. The
// caller must hold the entry lock.
func (e *Engine) recompute(entry *userEntry) {
	now := e.now()
	rep := &entry.user.Reputation

	if rep.TotalPosts > 0 {
		rep.ApprovalRate = float64(rep.ApprovedPosts) / float64(rep.TotalPosts)
	}

	// Account age factor scales linearly to 100 over one year.
	ageDays := now.Sub(entry.user.CreatedAt).Hours() / 24
	rep.AccountAgeFactor = math.Min(100, ageDays/3.65)

	impact := violationImpact(rep.ViolationHistory, now)
	rep.ViolationsLast30Days = violationsSince(rep.ViolationHistory, now.Add(-30*24*time.Hour))

	rep.OverallScore = rep.ApprovalRate*100*weightApprovalRate +
		rep.AccountAgeFactor*weightAccountAge +
		(100-impact)*weightViolationHistory +
		rep.CommunityStanding*weightCommunityStanding

	rep.LastUpdated = now
}

// violationImpact sums severity-weighted, exponentially decayed penalties
// over the full history, capped at 100. Recent violations dominate.
func violationImpact(history []domain.ViolationRecord, now time.Time) float64 {
	if len(history) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range history {
		daysAgo := now.Sub(v.Timestamp).Hours() / 24
		if daysAgo < 0 {
			daysAgo = 0
		}
		total += float64(v.Severity) * 10 * math.Exp(-daysAgo/violationDecayDays)
	}
	return math.Min(100, total)
}

func violationsSince(history []domain.ViolationRecord, cutoff time.Time) int {
	n := 0
	for _, v := range history {
		if v.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

// applySanctions enforces the automatic sanction ladder. Critical violation
// kinds ban immediately regardless of history. The caller holds the entry lock.
func (e *Engine) applySanctions(entry *userEntry, kind domain.ViolationType, now time.Time) {
	u := &entry.user

	if kind.IsCritical() {
		u.IsBanned = true
		u.BannedUntil = time.Time{} // permanent
		u.BanReason = "critical violation: " + string(kind)
		u.RiskLevel = domain.RiskBanned
		e.logger.Printf("Banned user %s: %s", u.ID, u.BanReason)
		return
	}

	recent := u.Reputation.ViolationsLast30Days
	switch {
	case recent >= 5:
		u.IsBanned = true
		u.BannedUntil = now.Add(30 * 24 * time.Hour)
		u.BanReason = "repeated violations"
		u.RiskLevel = domain.RiskBanned
		e.logger.Printf("Banned user %s for 30d: %d violations in 30d", u.ID, recent)
	case recent >= 3:
		u.IsMuted = true
		u.MutedUntil = now.Add(24 * time.Hour)
		u.RiskLevel = domain.RiskRestricted
	case recent >= 2:
		u.RiskLevel = domain.RiskWatch
		u.RateLimitMultiplier = 2.0
	}
}

func (e *Engine) banActive(u *User, now time.Time) bool {
	if !u.IsBanned {
		return false
	}
	if u.BannedUntil.IsZero() {
		return true
	}
	return now.Before(u.BannedUntil)
}

// prunedPostCount drops submissions older than an hour and returns the
// count of the remainder. The caller holds the entry lock.
func (e *Engine) prunedPostCount(entry *userEntry, now time.Time) int {
	cutoff := now.Add(-time.Hour)
	posts := entry.recentPosts
	i := 0
	for i < len(posts) && !posts[i].After(cutoff) {
		i++
	}
	if i > 0 {
		posts = append([]time.Time(nil), posts[i:]...)
		entry.recentPosts = posts
	}
	entry.user.Reputation.PostsLastHour = len(posts)
	return len(posts)
}

// Rate limit table by risk level (per-minute / per-hour).

func rateLimitPerMinute(level domain.RiskLevel) int {
	switch level {
	case domain.RiskTrusted:
		return 20
	case domain.RiskNormal:
		return 10
	case domain.RiskWatch:
		return 5
	case domain.RiskRestricted:
		return 2
	default:
		return 0
	}
}

func rateLimitPerHour(level domain.RiskLevel) int {
	switch level {
	case domain.RiskTrusted:
		return 200
	case domain.RiskNormal:
		return 100
	case domain.RiskWatch:
		return 50
	case domain.RiskRestricted:
		return 20
	default:
		return 0
	}
}
