package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Events - gestures and requests consumed by the daemon loop
// ============================================================================
// Views (WebSocket), IPC clients and input devices all speak the same event
// vocabulary. The daemon loop is the only consumer; it hands each event to
// the session.
// ============================================================================

// Event is a marker interface for everything the daemon loop consumes.
type Event interface {
	eventMarker()
}

// SliderPress: pointer or touch down on the cycle timespan slider.
type SliderPress struct{}

func (SliderPress) eventMarker() {}

// SliderInput is an intermediate slider position. It only updates the readout.
type SliderInput struct {
	Value int `json:"value"`
}

func (SliderInput) eventMarker() {}

// SliderCommit is the slider's change event: the value the user settled on.
type SliderCommit struct {
	Value int `json:"value"`
}

func (SliderCommit) eventMarker() {}

// PointerRelease: pointer or touch up anywhere in the view.
type PointerRelease struct{}

func (PointerRelease) eventMarker() {}

// DragBegin starts a drag on boundary Index.
type DragBegin struct {
	Index int `json:"index"`
}

func (DragBegin) eventMarker() {}

// DragMove moves the dragged boundary by Delta degrees (relative to the last move).
type DragMove struct {
	Delta float64 `json:"delta"`
}

func (DragMove) eventMarker() {}

// DragEnd releases the dragged boundary.
type DragEnd struct{}

func (DragEnd) eventMarker() {}

// Adjust is a +/- button press on segment Index.
type Adjust struct {
	Index     int `json:"index"`
	Direction int `json:"direction"` // -1 or +1
}

func (Adjust) eventMarker() {}

// DialTurn is a raw rotary encoder movement (detents). The session owns the
// velocity policy.
type DialTurn struct {
	Steps int `json:"steps"`
}

func (DialTurn) eventMarker() {}

// SelectSegment moves the dial's target boundary.
type SelectSegment struct {
	Delta int `json:"delta"`
}

func (SelectSegment) eventMarker() {}

// Reload is the user's answer to a failed write: re-sync everything from the device.
type Reload struct{}

func (Reload) eventMarker() {}

// RequestStateSnapshot asks the loop for a coherent snapshot (used on WS connect
// and by GET /api/state). Internal only; it has no JSON form.
type RequestStateSnapshot struct {
	Reply chan<- StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	eventSliderPress    = "slider_press"
	eventSliderInput    = "slider_input"
	eventSliderCommit   = "slider_commit"
	eventPointerRelease = "pointer_release"
	eventDragBegin      = "drag_begin"
	eventDragMove       = "drag_move"
	eventDragEnd        = "drag_end"
	eventAdjust         = "adjust"
	eventDialTurn       = "dial_turn"
	eventSelectSegment  = "select_segment"
	eventReload         = "reload"
)

func decodeData[T Event](env EventEnvelope) (Event, error) {
	var ev T
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("unmarshal %s: missing data", env.Type)
	}
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
	}
	return ev, nil
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case eventSliderPress:
		return SliderPress{}, nil
	case eventSliderInput:
		return decodeData[SliderInput](env)
	case eventSliderCommit:
		return decodeData[SliderCommit](env)
	case eventPointerRelease:
		return PointerRelease{}, nil

	case eventDragBegin:
		return decodeData[DragBegin](env)
	case eventDragMove:
		return decodeData[DragMove](env)
	case eventDragEnd:
		return DragEnd{}, nil

	case eventAdjust:
		ev, err := decodeData[Adjust](env)
		if err != nil {
			return nil, err
		}
		if a := ev.(Adjust); a.Direction != 1 && a.Direction != -1 {
			return nil, fmt.Errorf("unmarshal %s: direction must be -1 or +1, got %d", env.Type, a.Direction)
		}
		return ev, nil

	case eventDialTurn:
		return decodeData[DialTurn](env)
	case eventSelectSegment:
		return decodeData[SelectSegment](env)
	case eventReload:
		return Reload{}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope
	var payload any

	switch e := e.(type) {
	case SliderPress:
		env.Type = eventSliderPress
	case SliderInput:
		env.Type, payload = eventSliderInput, e
	case SliderCommit:
		env.Type, payload = eventSliderCommit, e
	case PointerRelease:
		env.Type = eventPointerRelease
	case DragBegin:
		env.Type, payload = eventDragBegin, e
	case DragMove:
		env.Type, payload = eventDragMove, e
	case DragEnd:
		env.Type = eventDragEnd
	case Adjust:
		env.Type, payload = eventAdjust, e
	case DialTurn:
		env.Type, payload = eventDialTurn, e
	case SelectSegment:
		env.Type, payload = eventSelectSegment, e
	case Reload:
		env.Type = eventReload
	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", env.Type, err)
		}
		env.Data = data
	}

	return json.Marshal(env)
}
