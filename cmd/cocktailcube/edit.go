package main

// editState tracks gestures in progress so polled values never land on an
// element the user is holding.
//
// sliderHeld is set when the timespan slider is pressed and cleared by a
// pointer release anywhere, not only on the slider itself. The drag flag is
// delegated to the control.
type editState struct {
	sliderHeld bool
	control    Control
}

func newEditState(control Control) *editState {
	return &editState{control: control}
}

func (e *editState) pressSlider() { e.sliderHeld = true }

// releasePointer ends any slider hold. It returns true if a hold was active.
func (e *editState) releasePointer() bool {
	held := e.sliderHeld
	e.sliderHeld = false
	return held
}

func (e *editState) controlDragged() bool {
	return e.control != nil && e.control.IsBeingDragged()
}

// suppressed reports whether remote values must not be applied right now.
func (e *editState) suppressed() bool {
	return e.sliderHeld || e.controlDragged()
}

// gestureTracker follows the gestures one connection has opened, so a hold
// can be released for it when the connection goes away. It is owned by the
// goroutine reading that connection.
type gestureTracker struct {
	sliderHeld bool
	dragging   bool
}

// observe records an event that was accepted by the daemon loop.
func (g *gestureTracker) observe(ev Event) {
	switch ev.(type) {
	case SliderPress:
		g.sliderHeld = true
	case DragBegin:
		g.dragging = true
	case DragEnd:
		g.dragging = false
	case PointerRelease:
		g.sliderHeld = false
		g.dragging = false
	}
}

func (g *gestureTracker) open() bool { return g.sliderHeld || g.dragging }
