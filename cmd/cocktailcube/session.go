package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

// ============================================================================
// Session - the single owner of all synchronization state
// ============================================================================
//
// Rules:
//   - Only the daemon goroutine calls into a Session.
//   - Control callbacks never perform I/O; completed gestures enqueue a
//     WriteCommand which is executed after the handler returns.
//   - Broadcasts are collected in an outbox and drained by the daemon loop.
//
// ============================================================================

const barModeNotice = "The mixer is in bar mode. Control not available"

// SessionConfig holds the session's policy knobs.
type SessionConfig struct {
	OnlineThreshold time.Duration
	AdjustStepDeg   int
	Rotary          RotaryConfig
}

func defaultSessionConfig() SessionConfig {
	return SessionConfig{
		OnlineThreshold: defaultOnlineThresholdMS * time.Millisecond,
		AdjustStepDeg:   defaultAdjustStepDeg,
		Rotary:          defaultRotaryConfig(),
	}
}

// Session mirrors the device into the control and turns gestures into writes.
type Session struct {
	gateway DeviceGateway
	control GestureControl
	cfg     SessionConfig
	logger  *slog.Logger

	// now is injectable for tests.
	now func() time.Time

	live   *liveness
	gate   *versionGate
	edit   *editState
	rotary *rotaryState

	settings      MixerSettings
	settingsKnown bool

	timespanMS    int
	timespanKnown bool

	online bool

	// lastInvalid suppresses repeated warnings for the same bad fields.
	lastInvalid string

	// Reduce-then-execute queues
	writes        []WriteCommand
	gestureOrigin string

	slicesDirty    bool
	slicesFromUser bool
	outbox         []StateBroadcast
}

// NewSession wires a session to its gateway and control. The session
// registers itself as the control's listener.
func NewSession(gateway DeviceGateway, control GestureControl, cfg SessionConfig, logger *slog.Logger) *Session {
	if logger == nil {
		logger = discardLogger()
	}
	if cfg.AdjustStepDeg <= 0 {
		cfg.AdjustStepDeg = defaultAdjustStepDeg
	}
	if cfg.Rotary.DegPerStep <= 0 {
		cfg.Rotary = defaultRotaryConfig()
	}

	s := &Session{
		gateway: gateway,
		control: control,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		live:    newLiveness(cfg.OnlineThreshold),
		gate:    newVersionGate(),
		edit:    newEditState(control),
		rotary:  newRotaryState(),
	}
	control.SetListener(s)
	return s
}

func (s *Session) isMixer() bool {
	return !s.settingsKnown || s.settings.IsMixer
}

// ============================================================================
// Poll loop tick
// ============================================================================

// Tick runs one poll cycle. It never returns an error: failures degrade the
// online indicator and are otherwise logged.
func (s *Session) Tick(ctx context.Context) {
	// 1. Never disturb a gesture in progress. Liveness is not refreshed either.
	if s.edit.suppressed() {
		s.logger.Debug("tick skipped, edit in progress",
			"slider_held", s.edit.sliderHeld,
			"control_dragged", s.edit.controlDragged())
		return
	}

	// 2. Values read.
	values, err := s.gateway.ReadValues(ctx)
	if err != nil {
		s.logger.Debug("values read failed", "error", err)
	} else {
		// 3. Liveness, version gate, conditional settings read.
		s.live.recordSuccess(s.now())
		s.reportInvalid(values.Invalid)

		if s.gate.observe(values.UpdateVersion) {
			s.logger.Debug("update version changed, fetching settings", "version", values.UpdateVersion)
			s.refreshSettings(ctx)
		}

		// 4-6. Apply to the control and the slider.
		s.applyValues(values)
	}

	// 7. Online indicator, regardless of outcome.
	s.updateOnline()
	s.flushSlices()
}

func (s *Session) refreshSettings(ctx context.Context) {
	settings, err := s.gateway.ReadSettings(ctx)
	if err != nil {
		// Retry on the next tick rather than waiting for the next version change.
		s.gate.forget()
		s.logger.Warn("settings read failed", "error", err)
		return
	}
	s.live.recordSuccess(s.now())

	modeChanged := s.settingsKnown && s.settings.IsMixer != settings.IsMixer
	s.settings = settings
	s.settingsKnown = true
	s.control.SetLabelsAndColors(settings.LiquidNames, settings.LiquidColors)
	s.slicesDirty = true

	if modeChanged {
		s.logger.Info("device mode changed", "is_mixer", settings.IsMixer)
	}
	s.logger.Info("settings applied",
		"mixer_name", settings.MixerName,
		"is_mixer", settings.IsMixer,
		"version", s.gate.known())
	s.publish(BroadcastSettingsChanged{Settings: settings, At: s.now()})
}

func (s *Session) applyValues(values MixerValues) {
	if s.edit.suppressed() {
		return
	}

	switch {
	case !s.isMixer():
		s.control.SetAngles(barModeAngles)
	case values.AnglesValid:
		s.control.SetAngles(values.LiquidAngles)
	default:
		s.logger.Debug("liquid angles not applied")
	}

	if values.TimespanValid && !s.edit.sliderHeld {
		if !s.timespanKnown || s.timespanMS != values.CycleTimespanMS {
			s.timespanMS = values.CycleTimespanMS
			s.timespanKnown = true
			s.publish(BroadcastTimespanChanged{TimespanMS: s.timespanMS, At: s.now()})
		}
	}
}

// reportInvalid logs received fields that were left unapplied. The same set
// is only logged at Warn once until it changes.
func (s *Session) reportInvalid(invalid []FieldError) {
	if len(invalid) == 0 {
		s.lastInvalid = ""
		return
	}
	parts := make([]string, 0, len(invalid))
	for _, fe := range invalid {
		parts = append(parts, fe.Error())
	}
	key := strings.Join(parts, "; ")
	if key == s.lastInvalid {
		s.logger.Debug("received fields not applied", "fields", key)
		return
	}
	s.lastInvalid = key
	s.logger.Warn("received fields not applied", "fields", key, "kind", ValidationFailure)
}

func (s *Session) updateOnline() {
	now := s.now()
	online := s.live.isOnline(now)
	s.control.SetOnlineIndicator(online)
	if online == s.online {
		return
	}
	s.online = online
	if online {
		s.logger.Info("device online")
	} else {
		s.logger.Warn("device offline", "last_success_at", s.live.last())
	}
	s.publish(BroadcastOnlineChanged{Online: online, LastSuccessAt: s.live.last(), At: now})
}

// ============================================================================
// Gestures
// ============================================================================

// HandleEvent applies one event, then executes any writes it produced.
func (s *Session) HandleEvent(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case SliderPress:
		s.edit.pressSlider()

	case SliderInput:
		s.publish(BroadcastTimespanChanged{TimespanMS: snapTimespan(e.Value), FromUser: true, At: s.now()})

	case SliderCommit:
		v := snapTimespan(e.Value)
		s.timespanMS = v
		s.timespanKnown = true
		s.enqueueWrite(WriteCommand{Field: FieldCycleTimespan, Value: v, Origin: "slider"})
		s.publish(BroadcastTimespanChanged{TimespanMS: v, FromUser: true, At: s.now()})

	case PointerRelease:
		s.edit.releasePointer()
		if s.control.IsBeingDragged() {
			s.endGesture("drag", s.control.EndDrag)
		}

	case DragBegin:
		if err := s.control.BeginDrag(e.Index); err != nil {
			s.logger.Warn("drag rejected", "index", e.Index, "error", err)
		}

	case DragMove:
		s.control.DragBy(e.Delta)

	case DragEnd:
		s.endGesture("drag", s.control.EndDrag)

	case Adjust:
		delta := float64(e.Direction * s.cfg.AdjustStepDeg)
		s.endGesture("adjust", func() { s.control.MoveAngle(e.Index, delta) })

	case DialTurn:
		s.handleDial(e.Steps)

	case SelectSegment:
		sel := s.control.SelectSegment(e.Delta)
		s.logger.Debug("segment selected", "index", sel)
		s.slicesDirty = true
		s.slicesFromUser = true

	case Reload:
		s.Reload()

	case RequestStateSnapshot:
		if e.Reply != nil {
			select {
			case e.Reply <- s.Snapshot():
			default:
				s.logger.Warn("snapshot reply dropped (receiver not ready)")
			}
		}

	default:
		s.logger.Warn("unhandled event", "type", fmt.Sprintf("%T", ev))
	}

	s.flushWrites(ctx)
	s.flushSlices()
}

// endGesture runs a gesture-completing control call with its origin recorded
// so OnShifted can label the write.
func (s *Session) endGesture(origin string, fn func()) {
	s.gestureOrigin = origin
	defer func() { s.gestureOrigin = "" }()
	fn()
}

func (s *Session) handleDial(steps int) {
	if steps == 0 {
		return
	}
	if s.control.IsBeingDragged() {
		s.logger.Debug("dial ignored during drag")
		return
	}
	delta := s.rotary.degreesFor(steps, s.cfg.Rotary, s.now())
	index := s.control.View().Selected
	s.endGesture("dial", func() { s.control.MoveAngle(index, delta) })
}

// Reload is the user-confirmed re-sync after a failed write: the next
// successful values read re-fetches settings and overwrites local state.
func (s *Session) Reload() {
	s.gate.forget()
	s.lastInvalid = ""
	s.logger.Info("reload requested, settings will be re-fetched")
}

// ============================================================================
// ControlListener
// ============================================================================

func (s *Session) OnChange(fromUserInput bool, index int) {
	s.slicesDirty = true
	if fromUserInput {
		s.slicesFromUser = true
	}
}

func (s *Session) OnShift(index int, delta float64) {
	s.logger.Debug("segment shifting", "index", index, "delta", delta)
}

func (s *Session) OnShifted(index int, delta float64) {
	if !s.isMixer() {
		s.logger.Info("write skipped, bar mode", "index", index, "delta", delta)
		s.publish(BroadcastNotice{Message: barModeNotice, At: s.now()})
		return
	}
	field, ok := liquidAngleField(index)
	if !ok {
		s.logger.Warn("shift on unknown segment", "index", index)
		return
	}
	origin := s.gestureOrigin
	if origin == "" {
		origin = "drag"
	}
	s.enqueueWrite(WriteCommand{Field: field, Value: int(math.Round(delta)), Origin: origin})
}

// ============================================================================
// Queues
// ============================================================================

func (s *Session) enqueueWrite(cmd WriteCommand) {
	s.writes = append(s.writes, cmd)
}

func (s *Session) flushWrites(ctx context.Context) {
	for len(s.writes) > 0 {
		cmd := s.writes[0]
		s.writes = s.writes[1:]

		if err := s.gateway.WriteField(ctx, cmd.Field, cmd.Value); err != nil {
			kind := FailureKind(0)
			var ge *GatewayError
			if errors.As(err, &ge) {
				kind = ge.Kind
			}
			s.logger.Warn("device write failed", "command", cmd.String(), "kind", kind, "error", err)
			s.publish(BroadcastWriteFailed{Command: cmd, Kind: kind, Err: err.Error(), At: s.now()})
			continue
		}

		s.live.recordSuccess(s.now())
		s.logger.Info("device write", "field", cmd.Field, "value", cmd.Value, "origin", cmd.Origin)
	}
}

func (s *Session) flushSlices() {
	if !s.slicesDirty {
		return
	}
	s.publish(BroadcastSlicesChanged{View: s.control.View(), FromUser: s.slicesFromUser, At: s.now()})
	s.slicesDirty = false
	s.slicesFromUser = false
}

func (s *Session) publish(b StateBroadcast) {
	s.outbox = append(s.outbox, b)
}

// TakeBroadcasts drains the outbox.
func (s *Session) TakeBroadcasts() []StateBroadcast {
	out := s.outbox
	s.outbox = nil
	return out
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() StateSnapshot {
	return StateSnapshot{
		SettingsKnown: s.settingsKnown,
		Settings:      s.settings,
		Control:       s.control.View(),
		TimespanMS:    s.timespanMS,
		TimespanKnown: s.timespanKnown,
		SliderHeld:    s.edit.sliderHeld,
		Online:        s.online,
		LastSuccessAt: s.live.last(),
		UpdateVersion: s.gate.known(),
		At:            s.now(),
	}
}

// snapTimespan clamps a slider value to the device range and snaps it to the
// slider step.
func snapTimespan(v int) int {
	if v < minCycleTimespanMS {
		v = minCycleTimespanMS
	}
	if v > maxCycleTimespanMS {
		v = maxCycleTimespanMS
	}
	steps := math.Round(float64(v-minCycleTimespanMS) / cycleTimespanStepMS)
	return minCycleTimespanMS + int(steps)*cycleTimespanStepMS
}
