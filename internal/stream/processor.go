package stream

import (
	"crypto/md5"
	"encoding/hex"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentra/moderation/internal/domain"
	"github.com/sentra/moderation/internal/metrics"
)

// Toxic vocabulary for the synchronous chat path. Deliberately tiny: the
// 10ms budget rules out model calls, so this is substring counting only.
var chatToxicWords = []string{"idiot", "stupid", "hate", "kill", "die"}

// LatePolicy decides whether a late message is dropped. The default keeps
// everything: late chat still needs moderating.
type LatePolicy func(msg *domain.ChatMessage, watermark time.Time) bool

// Config is the Flow B tunable surface.
type Config struct {
	AllowedLateness time.Duration `yaml:"allowed_lateness"`

	TumblingSize time.Duration `yaml:"tumbling_size"`
	SlidingSize  time.Duration `yaml:"sliding_size"`
	SlidingSlide time.Duration `yaml:"sliding_slide"`
	SessionGap   time.Duration `yaml:"session_gap"`

	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
	RecentHashCapacity int `yaml:"recent_hash_capacity"`

	SpamRejectThreshold     float64       `yaml:"spam_reject_threshold"`
	ToxicityRejectThreshold float64       `yaml:"toxicity_reject_threshold"`
	BurstMinInterval        time.Duration `yaml:"burst_min_interval"`
	BurstVelocity           float64       `yaml:"burst_velocity"`

	BlocklistPhrases []string `yaml:"blocklist_phrases"`

	SweepEvery     int           `yaml:"sweep_every"`
	StateIdleTTL   time.Duration `yaml:"state_idle_ttl"`
	DecisionBudget time.Duration `yaml:"decision_budget"`
}

// DefaultConfig returns the production Flow B parameters.
func DefaultConfig() Config {
	return Config{
		AllowedLateness:         10 * time.Second,
		TumblingSize:            time.Minute,
		SlidingSize:             5 * time.Minute,
		SlidingSlide:            time.Minute,
		SessionGap:              2 * time.Minute,
		RateLimitPerMinute:      10,
		RecentHashCapacity:      100,
		SpamRejectThreshold:     0.7,
		ToxicityRejectThreshold: 0.8,
		BurstMinInterval:        500 * time.Millisecond,
		BurstVelocity:           2.0,
		BlocklistPhrases:        []string{"buy followers", "free robux", "click my link"},
		SweepEvery:              100,
		StateIdleTTL:            5 * time.Minute,
		DecisionBudget:          10 * time.Millisecond,
	}
}

// userState is the keyed per-user state: recent message timestamps,
// hash FIFO, velocity EMA, and the current session window.
type userState struct {
	Timestamps   []time.Time
	RecentHashes []string
	LastMessage  time.Time
	Velocity     float64
	Session      *Window
}

// Clone deep-copies the state for checkpoints.
func (s *userState) Clone() StateValue {
	cp := &userState{
		Timestamps:   append([]time.Time(nil), s.Timestamps...),
		RecentHashes: append([]string(nil), s.RecentHashes...),
		LastMessage:  s.LastMessage,
		Velocity:     s.Velocity,
	}
	if s.Session != nil {
		sess := *s.Session
		cp.Session = &sess
	}
	return cp
}

const userStateName = "user"

// Processor is the Flow B engine. Callers must serialise messages per
// user key (see KeyedPool); different keys may run in parallel.
type Processor struct {
	cfg      Config
	backend  Backend
	channels *ChannelTracker
	metrics  *metrics.Metrics // optional
	late     LatePolicy

	mu        sync.Mutex
	watermark time.Time
	processed int
	lateCount int

	logger *log.Logger
	now    func() time.Time
}

// NewProcessor builds a Flow B processor over the given state backend.
func NewProcessor(cfg Config, backend Backend) *Processor {
	return &Processor{
		cfg:      cfg,
		backend:  backend,
		channels: NewChannelTracker(),
		late:     func(*domain.ChatMessage, time.Time) bool { return false },
		logger:   log.New(log.Writer(), "[STREAM] ", log.LstdFlags),
		now:      time.Now,
	}
}

// SetClock overrides the wall clock used for latency measurement.
func (p *Processor) SetClock(now func() time.Time) { p.now = now }

// SetLatePolicy replaces the late-message policy.
func (p *Processor) SetLatePolicy(policy LatePolicy) { p.late = policy }

// WithMetrics attaches Prometheus instrumentation.
func (p *Processor) WithMetrics(m *metrics.Metrics) *Processor { p.metrics = m; return p }

// Channels exposes the per-channel activity tracker.
func (p *Processor) Channels() *ChannelTracker { return p.channels }

// Watermark returns the current event-time watermark.
func (p *Processor) Watermark() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermark
}

// LateCount returns how many late messages have been seen.
func (p *Processor) LateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lateCount
}

// Process decides one chat message. A nil decision with a nil error means
// the late policy dropped the message.
func (p *Processor) Process(msg *domain.ChatMessage) (*domain.ChatDecision, error) {
	start := p.now()

	if err := msg.Validate(); err != nil {
		return nil, err
	}

	if dropped := p.advanceWatermark(msg); dropped {
		return nil, nil
	}

	state := p.loadState(msg.UserID)

	// Window assignment: the session window is carried in state; the
	// tumbling and sliding assigners feed the channel tracker and the
	// aggregation consumers.
	session := SessionWindow(state.Session, msg.Timestamp, p.cfg.SessionGap)
	state.Session = &session

	// Counts include the current message.
	state.Timestamps = append(state.Timestamps, msg.Timestamp)
	count1m := countSince(state.Timestamps, msg.Timestamp.Add(-time.Minute))
	count5m := countSince(state.Timestamps, msg.Timestamp.Add(-p.cfg.SlidingSize))

	// Features.
	textLower := strings.ToLower(msg.Text)
	spamScore := spamScoreOf(msg.Text)
	toxicity := toxicityOf(textLower)

	hash := chatHash(msg.Text)
	isDuplicate := containsHash(state.RecentHashes, hash)

	rateLimited := count1m > p.cfg.RateLimitPerMinute

	var bursting bool
	if !state.LastMessage.IsZero() {
		delta := msg.Timestamp.Sub(state.LastMessage)
		bursting = delta < p.cfg.BurstMinInterval && state.Velocity > p.cfg.BurstVelocity
		if delta > 0 {
			// EMA with alpha 0.3 over instantaneous rate.
			inst := 1.0 / delta.Seconds()
			state.Velocity = 0.3*inst + 0.7*state.Velocity
		}
	}

	decision := &domain.ChatDecision{
		MessageID:          msg.ID,
		UserID:             msg.UserID,
		ChannelID:          msg.ChannelID,
		Decision:           domain.StatusApproved,
		SpamScore:          spamScore,
		ToxicityScore:      toxicity,
		UserMessageCount1m: count1m,
		UserMessageCount5m: count5m,
		IsRateLimited:      rateLimited,
		IsRepeatMessage:    isDuplicate,
		IsBurstDetected:    bursting,
		Timestamp:          msg.Timestamp,
	}

	p.applyRules(decision, textLower, len(state.RecentHashes))

	// State write is best-effort: a failed write loses counters for this
	// message but the decision still stands.
	state.RecentHashes = pushHash(state.RecentHashes, hash, p.cfg.RecentHashCapacity)
	state.LastMessage = msg.Timestamp
	if err := p.backend.Put(msg.UserID, userStateName, state); err != nil {
		p.logger.Printf("state write failed for user %s: %v", msg.UserID, err)
	}

	p.channels.Observe(msg.ChannelID, msg.UserID, msg.Timestamp)
	p.maybeSweep()

	elapsed := p.now().Sub(start)
	decision.ProcessingTimeMs = elapsed.Milliseconds()
	if elapsed > p.cfg.DecisionBudget {
		p.logger.Printf("decision over budget for message %s: %v", msg.ID, elapsed)
	}
	if p.metrics != nil {
		label := "allow"
		if decision.Decision == domain.StatusRejected {
			label = "reject"
		}
		p.metrics.RecordChatDecision(label, elapsed.Seconds(), decision.IsRateLimited)
	}
	return decision, nil
}

// applyRules applies the fixed rule ladder. Rejections accumulate: the
// final severity is the maximum across tripped rules.
func (p *Processor) applyRules(d *domain.ChatDecision, textLower string, priorHashes int) {
	reject := func(sev domain.SeverityLevel, v domain.ViolationType) {
		d.Decision = domain.StatusRejected
		d.Severity = domain.MaxSeverity(d.Severity, sev)
		if v != "" {
			d.Violations = append(d.Violations, v)
		}
	}

	if d.SpamScore > p.cfg.SpamRejectThreshold {
		reject(domain.SeverityMedium, domain.ViolationSpam)
	}
	if d.ToxicityScore > p.cfg.ToxicityRejectThreshold {
		reject(domain.SeverityHigh, domain.ViolationHarassment)
	}
	if d.IsRepeatMessage && priorHashes > 3 {
		reject(domain.SeverityLow, domain.ViolationSpam)
	}
	for _, phrase := range p.cfg.BlocklistPhrases {
		if strings.Contains(textLower, phrase) {
			reject(domain.SeverityMedium, domain.ViolationSpam)
			break
		}
	}
	if d.IsRateLimited {
		reject(d.Severity, "") // no severity change
	}
	if d.IsBurstDetected {
		// Bursting raises severity but never blocks on its own.
		d.Severity = domain.MaxSeverity(d.Severity, domain.SeverityLow)
	}
	d.Violations = domain.DedupeViolations(d.Violations)
}

// advanceWatermark updates the watermark and applies the late policy.
// Returns true when the message is dropped.
func (p *Processor) advanceWatermark(msg *domain.ChatMessage) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if msg.Timestamp.After(p.watermark) {
		p.watermark = msg.Timestamp
		return false
	}
	if msg.Timestamp.Before(p.watermark.Add(-p.cfg.AllowedLateness)) {
		p.lateCount++
		return p.late(msg, p.watermark)
	}
	return false
}

func (p *Processor) loadState(userID uuid.UUID) *userState {
	if v, ok := p.backend.Get(userID, userStateName); ok {
		if s, ok := v.(*userState); ok {
			return s.Clone().(*userState)
		}
	}
	return &userState{}
}

// maybeSweep runs the idle-state sweep once per SweepEvery messages,
// pruning expired window entries and evicting users idle past the TTL.
func (p *Processor) maybeSweep() {
	p.mu.Lock()
	p.processed++
	due := p.processed%p.cfg.SweepEvery == 0
	watermark := p.watermark
	p.mu.Unlock()
	if !due {
		return
	}

	cutoff := watermark.Add(-p.cfg.StateIdleTTL)
	evicted := 0
	for _, key := range p.backend.Keys() {
		v, ok := p.backend.Get(key, userStateName)
		if !ok {
			continue
		}
		s, ok := v.(*userState)
		if !ok {
			continue
		}
		if s.LastMessage.Before(cutoff) {
			if err := p.backend.Clear(key, userStateName); err != nil {
				p.logger.Printf("sweep clear failed for user %s: %v", key, err)
			}
			evicted++
			continue
		}
		pruned := s.Clone().(*userState)
		pruned.Timestamps = pruneBefore(pruned.Timestamps, cutoff)
		if err := p.backend.Put(key, userStateName, pruned); err != nil {
			p.logger.Printf("sweep write failed for user %s: %v", key, err)
		}
	}

	if p.metrics != nil {
		p.metrics.RecordSweep(evicted)
	}
	if evicted > 0 {
		p.logger.Printf("sweep evicted %d idle user states", evicted)
	}
}

// chatHash is the 16-char MD5 prefix of the normalised text.
func chatHash(text string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(sum[:])[:16]
}

func containsHash(hashes []string, h string) bool {
	for _, x := range hashes {
		if x == h {
			return true
		}
	}
	return false
}

func pushHash(hashes []string, h string, capacity int) []string {
	hashes = append(hashes, h)
	if len(hashes) > capacity {
		hashes = hashes[len(hashes)-capacity:]
	}
	return hashes
}

func countSince(timestamps []time.Time, cutoff time.Time) int {
	n := 0
	for _, t := range timestamps {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

func pruneBefore(timestamps []time.Time, cutoff time.Time) []time.Time {
	out := timestamps[:0]
	for _, t := range timestamps {
		if !t.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// spamScoreOf combines three cheap structural signals.
func spamScoreOf(text string) float64 {
	score := 0.0
	if longestRun(text) >= 5 {
		score += 0.3
	}
	if capsRatio(text) >= 0.7 {
		score += 0.3
	}
	if strings.Count(text, "http://")+strings.Count(text, "https://") >= 3 {
		score += 0.4
	}
	return domain.Clamp01(score)
}

func toxicityOf(textLower string) float64 {
	n := 0
	for _, w := range chatToxicWords {
		n += strings.Count(textLower, w)
	}
	score := float64(n) * 0.25
	if score > 1 {
		score = 1
	}
	return score
}

func longestRun(text string) int {
	best, run := 0, 0
	var prev rune
	for i, r := range text {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
		prev = r
	}
	return best
}

func capsRatio(text string) float64 {
	letters, upper := 0, 0
	for _, r := range text {
		if r >= 'a' && r <= 'z' {
			letters++
		} else if r >= 'A' && r <= 'Z' {
			letters++
			upper++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}
