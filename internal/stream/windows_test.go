package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTumblingWindowContainsTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 3, 30, 0, time.UTC)

	windows := TumblingWindows(ts, time.Minute)

	require.Len(t, windows, 1)
	w := windows[0]
	assert.Equal(t, time.Date(2026, 3, 1, 12, 3, 0, 0, time.UTC), w.Start)
	assert.Equal(t, w.Start.Add(time.Minute), w.End)
	assert.True(t, w.Contains(ts))
}

func TestTumblingWindowBoundaryIsHalfOpen(t *testing.T) {
	boundary := time.Date(2026, 3, 1, 12, 4, 0, 0, time.UTC)

	w := TumblingWindows(boundary, time.Minute)[0]

	assert.Equal(t, boundary, w.Start)
	assert.True(t, w.Contains(boundary))
	assert.False(t, w.Contains(boundary.Add(time.Minute)))
}

func TestSlidingWindowsCoverTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 3, 30, 0, time.UTC)

	windows := SlidingWindows(ts, 5*time.Minute, time.Minute)

	require.Len(t, windows, 5)
	for i, w := range windows {
		assert.True(t, w.Contains(ts), "window %d", i)
		assert.Equal(t, w.Start.Add(5*time.Minute), w.End)
		if i > 0 {
			assert.True(t, w.Start.After(windows[i-1].Start), "start-ascending order")
		}
	}
	assert.Equal(t, time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC), windows[0].Start)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 3, 0, 0, time.UTC), windows[4].Start)
}

func TestSlidingWindowsOnSlideBoundary(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 3, 0, 0, time.UTC)

	windows := SlidingWindows(ts, 5*time.Minute, time.Minute)

	require.Len(t, windows, 5)
	// The window ending exactly at ts is excluded (half-open).
	assert.Equal(t, time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC), windows[0].Start)
}

func TestSessionWindowStartsFresh(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	w := SessionWindow(nil, ts, 2*time.Minute)

	assert.Equal(t, ts, w.Start)
	assert.Equal(t, ts, w.End)
}

func TestSessionWindowExtendsWithinGap(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	session := SessionWindow(nil, start, 2*time.Minute)

	// 90 seconds later: inside the gap, the session stretches.
	session = SessionWindow(&session, start.Add(90*time.Second), 2*time.Minute)
	assert.Equal(t, start, session.Start)
	assert.Equal(t, start.Add(90*time.Second), session.End)

	// Exactly at end + gap still extends.
	atGap := session.End.Add(2 * time.Minute)
	session = SessionWindow(&session, atGap, 2*time.Minute)
	assert.Equal(t, start, session.Start)
	assert.Equal(t, atGap, session.End)
}

func TestSessionWindowBreaksAfterGap(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	session := SessionWindow(nil, start, 2*time.Minute)

	later := start.Add(2*time.Minute + time.Second)
	fresh := SessionWindow(&session, later, 2*time.Minute)

	assert.Equal(t, later, fresh.Start)
	assert.Equal(t, later, fresh.End)
}

func TestSessionWindowOutOfOrderTimestampKeepsEnd(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	session := Window{Start: start, End: start.Add(time.Minute)}

	// A timestamp before the current end extends nothing.
	got := SessionWindow(&session, start.Add(30*time.Second), 2*time.Minute)
	assert.Equal(t, session, got)
}
