package main

import (
	"strings"
	"testing"
)

func TestUnmarshalEvent_Gestures(t *testing.T) {
	tests := []struct {
		in   string
		want Event
	}{
		{`{"type":"slider_press"}`, SliderPress{}},
		{`{"type":"slider_commit","data":{"value":420}}`, SliderCommit{Value: 420}},
		{`{"type":"pointer_release"}`, PointerRelease{}},
		{`{"type":"drag_begin","data":{"index":2}}`, DragBegin{Index: 2}},
		{`{"type":"drag_move","data":{"delta":-1.5}}`, DragMove{Delta: -1.5}},
		{`{"type":"adjust","data":{"index":0,"direction":-1}}`, Adjust{Index: 0, Direction: -1}},
		{`{"type":"dial_turn","data":{"steps":3}}`, DialTurn{Steps: 3}},
		{`{"type":"reload"}`, Reload{}},
	}

	for _, tt := range tests {
		got, err := UnmarshalEvent([]byte(tt.in))
		if err != nil {
			t.Errorf("UnmarshalEvent(%s): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("UnmarshalEvent(%s) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestUnmarshalEvent_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		errPart string
	}{
		{"not json", `adjust`, "envelope"},
		{"unknown type", `{"type":"set_volume","data":{}}`, "unknown event type"},
		{"missing data", `{"type":"drag_begin"}`, "missing data"},
		{"bad direction", `{"type":"adjust","data":{"index":1,"direction":2}}`, "direction"},
		{"zero direction", `{"type":"adjust","data":{"index":1}}`, "direction"},
		{"wrong data type", `{"type":"slider_commit","data":{"value":"fast"}}`, "slider_commit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalEvent([]byte(tt.in))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("error %q should mention %q", err, tt.errPart)
			}
		})
	}
}

func TestMarshalEvent_RoundTrip(t *testing.T) {
	for _, ev := range []Event{
		SliderInput{Value: 260},
		DragEnd{},
		SelectSegment{Delta: -1},
		Adjust{Index: 2, Direction: 1},
	} {
		data, err := MarshalEvent(ev)
		if err != nil {
			t.Fatalf("MarshalEvent(%#v): %v", ev, err)
		}
		got, err := UnmarshalEvent(data)
		if err != nil {
			t.Fatalf("UnmarshalEvent(%s): %v", data, err)
		}
		if got != ev {
			t.Errorf("round trip %#v -> %s -> %#v", ev, data, got)
		}
	}
}

func TestMarshalEvent_InternalEventsHaveNoWireForm(t *testing.T) {
	if _, err := MarshalEvent(RequestStateSnapshot{}); err == nil {
		t.Errorf("snapshot requests must not be marshalable")
	}
}
