// Package stream is the Flow B engine: keyed, windowed processing of live
// chat messages with a sub-10ms decision budget.
package stream

import "time"

// Window is a half-open event-time interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// TumblingWindows returns the single fixed window containing t.
// Windows are aligned to the epoch: start = floor(t/size)*size.
func TumblingWindows(t time.Time, size time.Duration) []Window {
	start := t.Truncate(size)
	return []Window{{Start: start, End: start.Add(size)}}
}

// SlidingWindows returns every window of the given size and slide whose
// half-open range contains t, in start-ascending order.
func SlidingWindows(t time.Time, size, slide time.Duration) []Window {
	// Earliest window that can still contain t starts at the first slide
	// boundary after t-size.
	first := t.Add(-size).Truncate(slide)
	if first.Add(size).Before(t) || first.Add(size).Equal(t) {
		first = first.Add(slide)
	}

	var windows []Window
	for start := first; !start.After(t); start = start.Add(slide) {
		w := Window{Start: start, End: start.Add(size)}
		if w.Contains(t) {
			windows = append(windows, w)
		}
	}
	return windows
}

// SessionWindow extends a previous session or opens a new one. If prev is
// non-nil and t falls within gap of its end, the session stretches to
// cover t; otherwise a fresh zero-length session starts at t.
func SessionWindow(prev *Window, t time.Time, gap time.Duration) Window {
	if prev != nil && !t.After(prev.End.Add(gap)) {
		end := prev.End
		if t.After(end) {
			end = t
		}
		return Window{Start: prev.Start, End: end}
	}
	return Window{Start: t, End: t}
}
