package main

import (
	"errors"
	"fmt"
	"math"
)

// ============================================================================
// Doughnut control model
// ============================================================================
// The control is a ring split into liquidCount slices. Boundary i is the
// start of slice i; slice i ends at boundary i+1 (wrapping). Moving boundary i
// forward shrinks slice i and grows slice i-1, which is exactly what the
// device does with a LIQUID_ANGLE_<i+1> increment.
// ============================================================================

// ControlListener receives the control's notifications. All callbacks are
// invoked synchronously on the goroutine that mutated the control.
type ControlListener interface {
	// OnChange fires once per boundary that moved.
	OnChange(fromUserInput bool, index int)

	// OnShift fires during a gesture with the accumulated signed delta (degrees).
	OnShift(index int, delta float64)

	// OnShifted fires once when a gesture completes with a non-zero delta.
	OnShifted(index int, delta float64)
}

// Control is the capability surface the poll loop depends on.
type Control interface {
	SetListener(l ControlListener)
	SetLabelsAndColors(names, colors [liquidCount]string)

	// SetAngles expects each value in [0,360]; callers validate first.
	SetAngles(angles [liquidCount]float64)
	SliceSizePercentage(index int) float64
	IsBeingDragged() bool
	SetOnlineIndicator(online bool)
}

// GestureControl adds the user-facing gesture operations.
type GestureControl interface {
	Control

	BeginDrag(index int) error
	DragBy(delta float64)
	EndDrag()
	MoveAngle(index int, delta float64) float64

	SelectSegment(delta int) int
	View() ControlView
}

// ControlView is a copy of everything a view needs to render the control.
type ControlView struct {
	Angles      [liquidCount]float64 `json:"angles"`
	Percentages [liquidCount]float64 `json:"percentages"`
	Labels      [liquidCount]string  `json:"labels"`
	Colors      [liquidCount]string  `json:"colors"`
	Selected    int                  `json:"selected"`
	Dragging    bool                 `json:"dragging"`
	Online      bool                 `json:"online"`
}

var (
	errInvalidSegment = errors.New("invalid segment index")
	errAlreadyDragged = errors.New("a drag gesture is already in progress")
)

// Doughnut is the in-memory control. It is not safe for concurrent use; the
// daemon loop owns it.
type Doughnut struct {
	angles   [liquidCount]float64
	labels   [liquidCount]string
	colors   [liquidCount]string
	minAngle float64
	online   bool
	selected int

	listener ControlListener

	drag *dragGesture
}

type dragGesture struct {
	index int
	start float64
	lo    float64
	hi    float64
	total float64
}

// initialAngles is what the control shows before the first successful read.
var initialAngles = [liquidCount]float64{0, 135, 180}

// NewDoughnut creates a control with default colors and a minimum slice angle.
func NewDoughnut(minAngle float64) *Doughnut {
	if minAngle <= 0 {
		minAngle = defaultMinAngleDeg
	}
	return &Doughnut{
		angles:   initialAngles,
		colors:   defaultLiquidColors,
		minAngle: minAngle,
	}
}

func (d *Doughnut) SetListener(l ControlListener) { d.listener = l }

func (d *Doughnut) SetLabelsAndColors(names, colors [liquidCount]string) {
	d.labels = names
	for i, c := range colors {
		if c == "" {
			c = defaultLiquidColors[i]
		}
		d.colors[i] = c
	}
}

// SetAngles moves boundaries to device-reported positions and fires
// OnChange(false, i) for each boundary that actually moved.
func (d *Doughnut) SetAngles(angles [liquidCount]float64) {
	var moved []int
	for i, a := range angles {
		a = normalizeAngle(a)
		if sameAngle(d.angles[i], a) {
			continue
		}
		d.angles[i] = a
		moved = append(moved, i)
	}
	for _, i := range moved {
		d.notifyChange(false, i)
	}
}

// Angles returns the current boundaries in degrees.
func (d *Doughnut) Angles() [liquidCount]float64 { return d.angles }

func (d *Doughnut) IsBeingDragged() bool { return d.drag != nil }

func (d *Doughnut) SetOnlineIndicator(online bool) { d.online = online }

// Online reports the last indicator state set by the poll loop.
func (d *Doughnut) Online() bool { return d.online }

func (d *Doughnut) sliceSize(index int) float64 {
	next := (index + 1) % liquidCount
	return normalizeAngle(d.angles[next] - d.angles[index])
}

// SliceSizePercentage returns the share of the ring slice index covers.
// A slice at or below the minimum angle reads as 0.
func (d *Doughnut) SliceSizePercentage(index int) float64 {
	if index < 0 || index >= liquidCount {
		return 0
	}
	return d.percentages()[index]
}

// percentages mirrors how the device displays the mixture: a slice at the
// minimum angle is muted and its share is given to the larger of the other two.
func (d *Doughnut) percentages() [liquidCount]float64 {
	var sizes [liquidCount]float64
	for i := range sizes {
		sizes[i] = d.sliceSize(i)
	}
	for i := range sizes {
		if sizes[i] == 0 || sizes[i] > d.minAngle+angleEpsilon {
			continue
		}
		a, b := (i+1)%liquidCount, (i+2)%liquidCount
		if sizes[a] > sizes[b] {
			sizes[a] += sizes[i]
		} else {
			sizes[b] += sizes[i]
		}
		sizes[i] = 0
	}

	var out [liquidCount]float64
	for i, s := range sizes {
		out[i] = s * 100.0 / 360.0
	}
	return out
}

// shiftBounds is the range a delta on boundary index may take so that
// neither neighbouring slice shrinks below the minimum angle. A slice that is
// already smaller is never shrunk further.
func (d *Doughnut) shiftBounds(index int) (lo, hi float64) {
	prev := (index + liquidCount - 1) % liquidCount
	lo = math.Min(0, -(d.sliceSize(prev) - d.minAngle))
	hi = math.Max(0, d.sliceSize(index)-d.minAngle)
	return lo, hi
}

// BeginDrag starts a drag gesture on boundary index.
func (d *Doughnut) BeginDrag(index int) error {
	if index < 0 || index >= liquidCount {
		return fmt.Errorf("%w: %d", errInvalidSegment, index)
	}
	if d.drag != nil {
		return errAlreadyDragged
	}
	lo, hi := d.shiftBounds(index)
	d.drag = &dragGesture{index: index, start: d.angles[index], lo: lo, hi: hi}
	d.selected = index
	return nil
}

// DragBy moves the dragged boundary by delta degrees. Movement past a
// neighbouring boundary is clamped. No-op without an active drag.
func (d *Doughnut) DragBy(delta float64) {
	g := d.drag
	if g == nil || delta == 0 || math.IsNaN(delta) {
		return
	}
	total := clamp(g.total+delta, g.lo, g.hi)
	if total == g.total {
		return
	}
	g.total = total
	d.angles[g.index] = normalizeAngle(g.start + total)
	d.notifyChange(true, g.index)
	d.notifyShift(g.index, total)
}

// EndDrag completes the gesture. The boundary snaps to a whole-degree offset
// and OnShifted fires once if the net movement is non-zero.
func (d *Doughnut) EndDrag() {
	g := d.drag
	if g == nil {
		return
	}
	d.drag = nil

	total := roundWithin(g.total, g.lo, g.hi)
	if total != g.total {
		d.angles[g.index] = normalizeAngle(g.start + total)
		d.notifyChange(true, g.index)
	}
	if total != 0 {
		d.notifyShifted(g.index, total)
	}
}

// MoveAngle is a complete gesture (the +/- buttons and the dial). It returns
// the delta actually applied after clamping.
func (d *Doughnut) MoveAngle(index int, delta float64) float64 {
	if index < 0 || index >= liquidCount || d.drag != nil {
		return 0
	}
	lo, hi := d.shiftBounds(index)
	delta = roundWithin(clamp(delta, lo, hi), lo, hi)
	if delta == 0 {
		return 0
	}
	d.selected = index
	d.angles[index] = normalizeAngle(d.angles[index] + delta)
	d.notifyChange(true, index)
	d.notifyShift(index, delta)
	d.notifyShifted(index, delta)
	return delta
}

// SelectSegment moves the selection (used by the dial) and returns it.
func (d *Doughnut) SelectSegment(delta int) int {
	d.selected = ((d.selected+delta)%liquidCount + liquidCount) % liquidCount
	return d.selected
}

func (d *Doughnut) View() ControlView {
	return ControlView{
		Angles:      d.angles,
		Percentages: d.percentages(),
		Labels:      d.labels,
		Colors:      d.colors,
		Selected:    d.selected,
		Dragging:    d.drag != nil,
		Online:      d.online,
	}
}

func (d *Doughnut) notifyChange(fromUser bool, index int) {
	if d.listener != nil {
		d.listener.OnChange(fromUser, index)
	}
}

func (d *Doughnut) notifyShift(index int, delta float64) {
	if d.listener != nil {
		d.listener.OnShift(index, delta)
	}
}

func (d *Doughnut) notifyShifted(index int, delta float64) {
	if d.listener != nil {
		d.listener.OnShifted(index, delta)
	}
}

// ============================================================================
// Angle helpers
// ============================================================================

const angleEpsilon = 1e-9

// normalizeAngle maps any angle into [0,360).
func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360-angleEpsilon {
		a = 0
	}
	return a
}

func sameAngle(a, b float64) bool {
	return math.Abs(normalizeAngle(a)-normalizeAngle(b)) < angleEpsilon
}

// roundWithin rounds v to whole degrees, rounding toward zero instead when
// the nearest whole degree lies outside [lo, hi]. lo <= 0 <= hi.
func roundWithin(v, lo, hi float64) float64 {
	r := math.Round(v)
	if r > hi {
		return math.Floor(hi)
	}
	if r < lo {
		return math.Ceil(lo)
	}
	return r
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
