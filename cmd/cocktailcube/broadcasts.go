package main

import "time"

// ==============================
// Broadcasts (state changes for views)
// ==============================

// StateBroadcast is a session-emitted state change, fanned out to WS clients
// by RunBroadcaster. Broadcasts carry values, never pointers into session state.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastSettingsChanged is emitted after a successful settings read.
type BroadcastSettingsChanged struct {
	Settings MixerSettings
	At       time.Time
}

func (BroadcastSettingsChanged) broadcastMarker() {}

// BroadcastSlicesChanged is emitted once per tick or gesture in which any
// boundary moved (or the dial selection changed).
type BroadcastSlicesChanged struct {
	View     ControlView
	FromUser bool
	At       time.Time
}

func (BroadcastSlicesChanged) broadcastMarker() {}

// BroadcastTimespanChanged is emitted when the slider position changes,
// either from the device or from the user moving the slider.
type BroadcastTimespanChanged struct {
	TimespanMS int
	FromUser   bool
	At         time.Time
}

func (BroadcastTimespanChanged) broadcastMarker() {}

// BroadcastOnlineChanged is emitted on online/offline transitions only.
type BroadcastOnlineChanged struct {
	Online        bool
	LastSuccessAt time.Time
	At            time.Time
}

func (BroadcastOnlineChanged) broadcastMarker() {}

// BroadcastWriteFailed reports a device write that did not happen. Views
// should offer the user a reload.
type BroadcastWriteFailed struct {
	Command WriteCommand
	Kind    FailureKind
	Err     string
	At      time.Time
}

func (BroadcastWriteFailed) broadcastMarker() {}

// BroadcastNotice is an informational message for the user.
type BroadcastNotice struct {
	Message string
	At      time.Time
}

func (BroadcastNotice) broadcastMarker() {}

// StateSnapshot is a coherent copy of session state, produced on the daemon
// goroutine and safe to hand to any other goroutine.
type StateSnapshot struct {
	SettingsKnown bool
	Settings      MixerSettings

	Control ControlView

	TimespanMS    int
	TimespanKnown bool
	SliderHeld    bool

	Online        bool
	LastSuccessAt time.Time

	UpdateVersion int
	At            time.Time
}

// IsMixer reports the device mode. Until settings are known the device is
// assumed to be a mixer.
func (s StateSnapshot) IsMixer() bool {
	return !s.SettingsKnown || s.Settings.IsMixer
}
