package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// translateInputEvent maps a raw evdev event to a gesture. Dial detents
// become DialTurn, next/previous keys move the dial's target segment.
func translateInputEvent(ev inputEvent) (Event, bool) {
	switch ev.Type {
	case EV_REL:
		switch ev.Code {
		case REL_DIAL, REL_WHEEL:
			if ev.Value == 0 {
				return nil, false
			}
			return DialTurn{Steps: int(ev.Value)}, true
		}

	case EV_KEY:
		if ev.Value != evValuePress {
			return nil, false
		}
		switch ev.Code {
		case KEY_NEXTSONG:
			return SelectSegment{Delta: 1}, true
		case KEY_PREVIOUSSONG:
			return SelectSegment{Delta: -1}, true
		}
	}
	return nil, false
}

// runInputDevices reads the configured evdev devices and forwards gestures
// to the daemon loop until ctx is canceled. No devices means nothing to do.
func runInputDevices(ctx context.Context, paths []string, events chan<- Event, logger *slog.Logger) error {
	if len(paths) == 0 {
		logger.Debug("no input devices configured")
		return nil
	}

	files := make([]*os.File, 0, len(paths))
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	for _, p := range paths {
		f, err := os.Open(ExpandPath(p))
		if err != nil {
			return fmt.Errorf("open input device %s: %w (run as root or add user to 'input' group)", p, err)
		}
		files = append(files, f)
	}
	logger.Info("input devices opened", "devices", paths)

	raw := make(chan inputEvent, 64)
	readErr := make(chan error, 1)
	go func() {
		readErr <- readInputEvents(ctx, files, raw)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErr:
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("input reader stopped: %w", err)
			}
			return nil

		case ev := <-raw:
			gesture, ok := translateInputEvent(ev)
			if !ok {
				continue
			}
			select {
			case events <- gesture:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
