package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_KEY = 0x01
	EV_REL = 0x02

	KEY_NEXTSONG     = 163
	KEY_PREVIOUSSONG = 165

	// Rotary encoder relative axis codes
	REL_DIAL  = 0x07
	REL_WHEEL = 0x08
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Device protocol
const (
	controlPath = "/control"

	// Field names accepted by the device for PUT commands.
	FieldLiquidAngle1  Field = "LIQUID_ANGLE_1"
	FieldLiquidAngle2  Field = "LIQUID_ANGLE_2"
	FieldLiquidAngle3  Field = "LIQUID_ANGLE_3"
	FieldCycleTimespan Field = "CYCLE_TIMESPAN"
)

// Value ranges reported and accepted by the device
const (
	minAngleDeg = 0.0
	maxAngleDeg = 360.0

	minCycleTimespanMS  = 200
	maxCycleTimespanMS  = 1000
	cycleTimespanStepMS = 20
)

// Loop and liveness defaults
const (
	defaultPollIntervalMS    = 500  // Poll loop period (ms)
	defaultOnlineThresholdMS = 1500 // Staleness threshold for the online indicator (ms)
	defaultDeviceTimeoutMS   = 400  // Per-request HTTP timeout (ms); keep below the poll period

	// unknownVersion is the "no data" sentinel for NEED_UPDATE.
	unknownVersion = -1
)

// Control defaults
const (
	defaultMinAngleDeg   = 6.0 // Smallest slice the control allows (degrees)
	defaultAdjustStepDeg = 3   // +/- button distance multiplier (degrees)

	liquidCount = 3
)

// Dial (rotary encoder) defaults
const (
	defaultDialDegPerStep         = 3   // Degrees per encoder detent
	defaultDialVelocityWindowMS   = 200 // Time window for velocity detection (ms)
	defaultDialVelocityMultiplier = 2.0 // Multiplier for "fast spinning"
	defaultDialVelocityThreshold  = 3   // Steps in window to trigger velocity mode
)

// barModeAngles are shown when the device is a bar dispenser: three equal
// decorative segments.
var barModeAngles = [liquidCount]float64{0, 120, 240}

// defaultLiquidColors are used when the device reports an empty color.
var defaultLiquidColors = [liquidCount]string{"#969696", "#D5D5D5", "#494949"}
