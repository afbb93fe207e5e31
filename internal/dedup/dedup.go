// Package dedup suppresses re-submission of an identical normalized
// utterance within a short window. A recognition engine can re-emit the
// same final phrase across restarts; this bounds the duplicate inserts
// without requiring server-side dedup.
package dedup

import "time"

// DefaultWindow is the suppression window for identical utterances.
const DefaultWindow = 3 * time.Second

// Guard remembers exactly one (text, timestamp) pair: the most recently
// accepted utterance. Not safe for concurrent use; it is owned by the
// session event loop, which is single-writer.
type Guard struct {
	window   time.Duration
	lastText string
	lastAt   time.Time
}

// New creates a guard with the given suppression window.
// A non-positive window falls back to DefaultWindow.
func New(window time.Duration) *Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Guard{window: window}
}

// ShouldAccept reports whether the utterance should be processed.
// It rejects when text equals the remembered text and now is within the
// suppression window of the remembered timestamp. On acceptance the
// remembered pair is overwritten.
func (g *Guard) ShouldAccept(text string, now time.Time) bool {
	if text == g.lastText && now.Sub(g.lastAt) < g.window {
		return false
	}
	g.lastText = text
	g.lastAt = now
	return true
}

// Reset clears the remembered pair.
func (g *Guard) Reset() {
	g.lastText = ""
	g.lastAt = time.Time{}
}
