package main

import (
	"testing"
	"time"
)

// TestRotaryState_AddStep_DirectionChange tests that direction changes
// don't count toward the velocity threshold
func TestRotaryState_AddStep_DirectionChange(t *testing.T) {
	r := newRotaryState()
	now := time.Unix(0, 0)

	r.addStep(1, 200, now)
	r.addStep(1, 200, now)
	if count := r.addStep(1, 200, now); count != 3 {
		t.Errorf("expected 3 clockwise steps, got %d", count)
	}

	if count := r.addStep(-1, 200, now); count != 1 {
		t.Errorf("expected count=1 for new direction, got %d", count)
	}

	// Back again: the old clockwise steps are still in the window
	if count := r.addStep(1, 200, now); count != 4 {
		t.Errorf("expected count=4, got %d", count)
	}
}

// TestRotaryState_AddStep_WindowExpiry tests that old steps are pruned
func TestRotaryState_AddStep_WindowExpiry(t *testing.T) {
	r := newRotaryState()
	now := time.Unix(0, 0)

	r.addStep(1, 100, now)
	r.addStep(1, 100, now.Add(10*time.Millisecond))
	if count := r.addStep(1, 100, now.Add(20*time.Millisecond)); count != 3 {
		t.Errorf("expected count=3, got %d", count)
	}

	if count := r.addStep(1, 100, now.Add(150*time.Millisecond)); count != 1 {
		t.Errorf("expected count=1 after window expiry, got %d", count)
	}
	if len(r.recentSteps) != 1 {
		t.Errorf("expected pruned history, got %d entries", len(r.recentSteps))
	}
}

func TestRotaryState_DegreesFor(t *testing.T) {
	cfg := defaultRotaryConfig()
	r := newRotaryState()
	now := time.Unix(0, 0)

	if got := r.degreesFor(0, cfg, now); got != 0 {
		t.Errorf("zero steps = %v", got)
	}
	if got := r.degreesFor(2, cfg, now); got != 6 {
		t.Errorf("2 steps = %v, want 6", got)
	}
	r.degreesFor(1, cfg, now)
	if got := r.degreesFor(1, cfg, now); got != 6 {
		t.Errorf("third step inside the window should be doubled, got %v", got)
	}

	// A multiplier of 1 disables velocity scaling.
	cfg.VelocityMultiplier = 1
	r = newRotaryState()
	for i := 0; i < 5; i++ {
		if got := r.degreesFor(-1, cfg, now); got != -3 {
			t.Fatalf("step %d = %v, want -3", i, got)
		}
	}
}
