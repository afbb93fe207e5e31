package mock

import (
	"context"
	"sync"
	"testing"
	"time"

	"voice-order-logger/internal/models"
)

// recordingCallback collects emitted events.
type recordingCallback struct {
	mu        sync.Mutex
	started   bool
	ended     bool
	fragments []models.Fragment
}

func (c *recordingCallback) OnStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
}

func (c *recordingCallback) OnResult(fragments []models.Fragment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fragments = append(c.fragments, fragments...)
}

func (c *recordingCallback) OnEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ended = true
}

func (c *recordingCallback) OnError(err error) {}

func (c *recordingCallback) snapshot() (bool, bool, []models.Fragment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started, c.ended, append([]models.Fragment(nil), c.fragments...)
}

func fastConfig() Config {
	return Config{
		Script: []Utterance{
			{Interims: []string{"牛肉"}, Final: "牛肉麵 120"},
		},
		InterimDelay: time.Millisecond,
		UtteranceGap: 5 * time.Millisecond,
		SessionLimit: time.Second,
	}
}

func TestEngine_EmitsInterimThenFinal(t *testing.T) {
	e := New(fastConfig())
	cb := &recordingCallback{}

	if err := e.Start(context.Background(), cb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer e.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		_, _, frags := cb.snapshot()
		if len(frags) >= 2 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	started, _, frags := cb.snapshot()
	if !started {
		t.Fatal("expected start event")
	}
	if len(frags) < 2 {
		t.Fatalf("expected interim and final fragments, got %d", len(frags))
	}
	if frags[0].Final {
		t.Error("expected first fragment to be interim")
	}
	var sawFinal bool
	for _, f := range frags {
		if f.Final {
			sawFinal = true
		}
	}
	if !sawFinal {
		t.Error("expected a final fragment")
	}
}

func TestEngine_StopEmitsEnd(t *testing.T) {
	e := New(fastConfig())
	cb := &recordingCallback{}

	if err := e.Start(context.Background(), cb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ended, _ := cb.snapshot(); ended {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("expected end event after stop")
}

func TestEngine_SessionLimitEndsInstance(t *testing.T) {
	cfg := fastConfig()
	cfg.SessionLimit = 20 * time.Millisecond
	e := New(cfg)
	cb := &recordingCallback{}

	if err := e.Start(context.Background(), cb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ended, _ := cb.snapshot(); ended {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("expected engine to self-end at the session limit")
}
