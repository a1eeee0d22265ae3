package main

import (
	"time"
)

// rotaryState tracks recent dial activity for velocity detection.
// This allows us to detect "fast spinning" and scale the step size accordingly.
//
// Owned by the session; not safe for concurrent use.
type rotaryState struct {
	recentSteps []rotaryStep
}

// rotaryStep records a single encoder detent/step
type rotaryStep struct {
	timestamp time.Time
	direction int // +1 clockwise, -1 counter-clockwise
}

// RotaryConfig is the dial policy: degrees per detent plus velocity scaling.
type RotaryConfig struct {
	DegPerStep         float64
	VelocityWindowMS   int
	VelocityThreshold  int
	VelocityMultiplier float64
}

func defaultRotaryConfig() RotaryConfig {
	return RotaryConfig{
		DegPerStep:         defaultDialDegPerStep,
		VelocityWindowMS:   defaultDialVelocityWindowMS,
		VelocityThreshold:  defaultDialVelocityThreshold,
		VelocityMultiplier: defaultDialVelocityMultiplier,
	}
}

// newRotaryState creates a new rotary state tracker
func newRotaryState() *rotaryState {
	return &rotaryState{
		recentSteps: make([]rotaryStep, 0, 16),
	}
}

// addStep records a new encoder step at now and returns the count of recent
// steps in the same direction within the velocity window.
func (r *rotaryState) addStep(direction int, windowMS int, now time.Time) int {
	cutoff := now.Add(-time.Duration(windowMS) * time.Millisecond)

	// Remove old steps outside the velocity window
	filtered := r.recentSteps[:0] // reuse underlying array
	for _, s := range r.recentSteps {
		if s.timestamp.After(cutoff) {
			filtered = append(filtered, s)
		}
	}

	filtered = append(filtered, rotaryStep{
		timestamp: now,
		direction: direction,
	})
	r.recentSteps = filtered

	sameDir := 0
	for _, s := range filtered {
		if s.direction == direction {
			sameDir++
		}
	}

	return sameDir
}

// degreesFor converts a dial turn into a boundary delta, applying the
// velocity multiplier when the dial is being spun quickly.
func (r *rotaryState) degreesFor(steps int, cfg RotaryConfig, now time.Time) float64 {
	if steps == 0 {
		return 0
	}
	direction := 1
	if steps < 0 {
		direction = -1
	}

	count := r.addStep(direction, cfg.VelocityWindowMS, now)

	deg := float64(steps) * cfg.DegPerStep
	if cfg.VelocityThreshold > 0 && count >= cfg.VelocityThreshold && cfg.VelocityMultiplier > 1 {
		deg *= cfg.VelocityMultiplier
	}
	return deg
}
