package stream

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentra/moderation/internal/domain"
)

// ChannelTracker aggregates per-channel activity for raid and spam-wave
// detection. It buckets messages into the processor's tumbling minute
// windows and smooths the rate with the same EMA used per user.
type ChannelTracker struct {
	mu       sync.Mutex
	channels map[string]*channelEntry

	// A raid is a sudden influx of users; a spam wave is a rate spike.
	spikeFactor   float64
	raidUserCount int
}

type channelEntry struct {
	state      domain.ChannelState
	window     Window
	windowMsgs int
	users      map[uuid.UUID]time.Time
}

// NewChannelTracker creates an empty tracker with default spike settings.
func NewChannelTracker() *ChannelTracker {
	return &ChannelTracker{
		channels:      make(map[string]*channelEntry),
		spikeFactor:   3.0,
		raidUserCount: 20,
	}
}

// Observe records one message in a channel at event time t.
func (ct *ChannelTracker) Observe(channelID string, userID uuid.UUID, t time.Time) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	entry, ok := ct.channels[channelID]
	if !ok {
		entry = &channelEntry{
			state: domain.ChannelState{
				ChannelID:      channelID,
				SpikeThreshold: ct.spikeFactor,
			},
			window: TumblingWindows(t, time.Minute)[0],
			users:  make(map[uuid.UUID]time.Time),
		}
		ct.channels[channelID] = entry
	}

	current := TumblingWindows(t, time.Minute)[0]
	if current.Start.After(entry.window.Start) {
		// Window rolled over: fold the finished minute into the rates.
		rate := float64(entry.windowMsgs) / entry.window.End.Sub(entry.window.Start).Seconds()
		entry.state.MessageRate = 0.3*rate + 0.7*entry.state.MessageRate
		if entry.state.NormalMessageRate == 0 {
			entry.state.NormalMessageRate = entry.state.MessageRate
		} else {
			entry.state.NormalMessageRate = 0.05*entry.state.MessageRate + 0.95*entry.state.NormalMessageRate
		}
		entry.window = current
		entry.windowMsgs = 0
	}
	entry.windowMsgs++
	entry.users[userID] = t

	// Prune users idle for over five minutes.
	cutoff := t.Add(-5 * time.Minute)
	for id, last := range entry.users {
		if last.Before(cutoff) {
			delete(entry.users, id)
		}
	}

	entry.state.ActiveUsers = len(entry.users)
	entry.state.RaidDetected = entry.state.ActiveUsers >= ct.raidUserCount &&
		entry.state.MessageRate > entry.state.NormalMessageRate*ct.spikeFactor
	entry.state.SpamWave = entry.state.NormalMessageRate > 0 &&
		entry.state.MessageRate > entry.state.NormalMessageRate*ct.spikeFactor
	entry.state.LastUpdated = t
}

// State returns a copy of a channel's current state.
func (ct *ChannelTracker) State(channelID string) (domain.ChannelState, bool) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	entry, ok := ct.channels[channelID]
	if !ok {
		return domain.ChannelState{}, false
	}
	return entry.state, true
}

// ChannelCount returns the number of tracked channels.
func (ct *ChannelTracker) ChannelCount() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.channels)
}
