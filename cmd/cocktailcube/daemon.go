package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Central Daemon Loop
// ============================================================================
//
// Design rules enforced here:
//   - The session is owned by this goroutine; nothing else touches it.
//   - Gestures and poll ticks are handled one at a time, so a tick never
//     overlaps another tick or a gesture.
//   - A tick that outlives the poll interval is not followed by a burst of
//     queued ticks: the pending tick is dropped (skip-if-busy).
//
// ============================================================================

// runDaemon is the main daemon loop that:
//   - Receives Events from views, IPC and input devices
//   - Runs a poll tick on a fixed cadence
//   - Forwards session broadcasts to the state feed
//
// Shutdown semantics:
//   - Exits when ctx is canceled
//   - Exits cleanly when the events channel is closed
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	session *Session,
	pollInterval time.Duration,
	broadcasts chan<- StateBroadcast,
	logger *slog.Logger,
) {
	if session == nil {
		logger.Error("daemon session is nil")
		return
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollIntervalMS * time.Millisecond
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	emit := func() {
		for _, b := range session.TakeBroadcasts() {
			if broadcasts == nil {
				continue
			}
			select {
			case broadcasts <- b:
			default:
				logger.Warn("broadcast queue full, dropping state change", "type", broadcastType(b))
			}
		}
	}

	// First poll right away instead of waiting a full period.
	session.Tick(ctx)
	emit()

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}
			session.HandleEvent(ctx, ev)
			emit()

		case <-ticker.C:
			start := time.Now()
			session.Tick(ctx)
			emit()

			// Skip-if-busy: a tick that fired while this one was running is
			// stale by now.
			select {
			case <-ticker.C:
				logger.Debug("poll tick skipped (previous tick still running)", "elapsed", time.Since(start))
			default:
			}
		}
	}
}

func broadcastType(b StateBroadcast) string {
	if ev, ok := convertBroadcast(b); ok {
		return ev.Type
	}
	return "unknown"
}
