package main

import "fmt"

// ==============================
// Commands (side effects)
// ==============================

// WriteCommand is one device write requested by a completed gesture.
// Gesture handlers only enqueue; the session flushes the queue after the
// handler returns, so a gesture never performs I/O from inside a control
// callback.
type WriteCommand struct {
	Field Field
	Value int
	// Origin names the gesture that produced the write ("drag", "adjust", "dial", "slider").
	Origin string
}

func (c WriteCommand) String() string {
	return fmt.Sprintf("WriteCommand(%s=%d, origin=%s)", c.Field, c.Value, c.Origin)
}
