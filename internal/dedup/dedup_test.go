package dedup

import (
	"testing"
	"time"
)

func TestGuard_AcceptsFirstUtterance(t *testing.T) {
	g := New(3 * time.Second)
	now := time.Now()

	if !g.ShouldAccept("牛肉麵 120", now) {
		t.Error("expected first utterance to be accepted")
	}
}

func TestGuard_RejectsIdenticalWithinWindow(t *testing.T) {
	g := New(3 * time.Second)
	base := time.Now()

	if !g.ShouldAccept("牛肉麵 120", base) {
		t.Fatal("expected first utterance to be accepted")
	}
	if g.ShouldAccept("牛肉麵 120", base.Add(1*time.Second)) {
		t.Error("expected identical utterance at +1s to be rejected")
	}
}

func TestGuard_AcceptsIdenticalAfterWindow(t *testing.T) {
	g := New(3 * time.Second)
	base := time.Now()

	if !g.ShouldAccept("牛肉麵 120", base) {
		t.Fatal("expected first utterance to be accepted")
	}
	if !g.ShouldAccept("牛肉麵 120", base.Add(3100*time.Millisecond)) {
		t.Error("expected identical utterance at +3.1s to be accepted")
	}
}

func TestGuard_AcceptsDifferentTextWithinWindow(t *testing.T) {
	g := New(3 * time.Second)
	base := time.Now()

	g.ShouldAccept("牛肉麵 120", base)
	if !g.ShouldAccept("珍珠奶茶 60", base.Add(500*time.Millisecond)) {
		t.Error("expected different utterance to be accepted within window")
	}
}

func TestGuard_AcceptanceOverwritesMemory(t *testing.T) {
	g := New(3 * time.Second)
	base := time.Now()

	g.ShouldAccept("牛肉麵 120", base)
	g.ShouldAccept("珍珠奶茶 60", base.Add(1*time.Second))

	// The first text is no longer remembered, so it is accepted again
	// even though it is still inside the original window.
	if !g.ShouldAccept("牛肉麵 120", base.Add(2*time.Second)) {
		t.Error("expected older utterance to be accepted after memory was overwritten")
	}
	// The second text is the remembered one now.
	if g.ShouldAccept("珍珠奶茶 60", base.Add(2*time.Second)) {
		t.Error("expected remembered utterance to be rejected")
	}
}

func TestGuard_Reset(t *testing.T) {
	g := New(3 * time.Second)
	base := time.Now()

	g.ShouldAccept("牛肉麵 120", base)
	g.Reset()

	if !g.ShouldAccept("牛肉麵 120", base.Add(100*time.Millisecond)) {
		t.Error("expected utterance to be accepted after reset")
	}
}

func TestNew_NonPositiveWindowUsesDefault(t *testing.T) {
	g := New(0)
	if g.window != DefaultWindow {
		t.Errorf("expected default window %v, got %v", DefaultWindow, g.window)
	}
}
