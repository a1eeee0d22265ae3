package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// MixerSettings is the rarely-changing half of the device state.
type MixerSettings struct {
	IsMixer      bool
	MixerName    string
	LiquidNames  [liquidCount]string
	LiquidColors [liquidCount]string
}

// LogoAsset is the image the device web page shows next to the mixer name.
func (s MixerSettings) LogoAsset() string {
	if s.MixerName == "" {
		return ""
	}
	return "logo_" + strings.ToLower(s.MixerName) + ".svg"
}

// MixerValues is one polled snapshot of the fast-changing device state.
//
// Fields that failed validation are flagged invalid and listed in Invalid;
// the rest of the snapshot is still usable.
type MixerValues struct {
	UpdateVersion int

	LiquidAngles [liquidCount]float64
	AnglesValid  bool

	CycleTimespanMS int
	TimespanValid   bool

	Invalid []FieldError
}

// Wire keys
const (
	keyNeedUpdate    = "NEED_UPDATE"
	keyIsMixer       = "IS_MIXER"
	keyMixerName     = "MIXER_NAME"
	keyCycleTimespan = "CYCLE_TIMESPAN"
)

func liquidKey(prefix string, index int) string {
	return fmt.Sprintf("%s_%d", prefix, index+1)
}

// The firmware formats floats with printf, so a broken sensor value shows up
// as a bare NaN token which is not valid JSON.
var bareNaN = regexp.MustCompile(`(?i)([:\[,]\s*)[-+]?nan\b`)

// decodeDocument unwraps the one-element array the device answers with.
func decodeDocument(body []byte) (map[string]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}
	body = bareNaN.ReplaceAll(body, []byte("${1}null"))

	if body[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, fmt.Errorf("decode object: %w", err)
		}
		return obj, nil
	}

	var doc []map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode array: %w", err)
	}
	if len(doc) == 0 || doc[0] == nil {
		return nil, errors.New("empty array")
	}
	return doc[0], nil
}

// parseValues validates a values document. A missing or non-integer version
// makes the whole document unusable; range problems only invalidate their field.
func parseValues(body []byte) (MixerValues, error) {
	doc, err := decodeDocument(body)
	if err != nil {
		return MixerValues{}, err
	}

	v := MixerValues{UpdateVersion: unknownVersion}

	raw, ok := doc[keyNeedUpdate]
	if !ok {
		return MixerValues{}, fmt.Errorf("missing %s", keyNeedUpdate)
	}
	version, err := parseNumber(raw)
	if err != nil || version != math.Trunc(version) {
		return MixerValues{}, fmt.Errorf("%s is not an integer: %s", keyNeedUpdate, string(raw))
	}
	v.UpdateVersion = int(version)

	v.AnglesValid = true
	for i := 0; i < liquidCount; i++ {
		key := liquidKey("LIQUID_ANGLE", i)
		raw, ok := doc[key]
		if !ok {
			v.AnglesValid = false
			v.Invalid = append(v.Invalid, FieldError{Field: key, Reason: "missing"})
			continue
		}
		angle, err := parseNumber(raw)
		if err != nil {
			v.AnglesValid = false
			v.Invalid = append(v.Invalid, FieldError{Field: key, Reason: err.Error()})
			continue
		}
		if angle < minAngleDeg || angle > maxAngleDeg {
			v.AnglesValid = false
			v.Invalid = append(v.Invalid, FieldError{Field: key, Reason: fmt.Sprintf("%g outside [0,360]", angle)})
			continue
		}
		v.LiquidAngles[i] = angle
	}
	if !v.AnglesValid {
		v.LiquidAngles = [liquidCount]float64{}
	}

	if raw, ok := doc[keyCycleTimespan]; !ok {
		v.Invalid = append(v.Invalid, FieldError{Field: keyCycleTimespan, Reason: "missing"})
	} else if ts, err := parseNumber(raw); err != nil {
		v.Invalid = append(v.Invalid, FieldError{Field: keyCycleTimespan, Reason: err.Error()})
	} else if ts < minCycleTimespanMS || ts > maxCycleTimespanMS {
		v.Invalid = append(v.Invalid, FieldError{Field: keyCycleTimespan, Reason: fmt.Sprintf("%g outside [%d,%d]", ts, minCycleTimespanMS, maxCycleTimespanMS)})
	} else {
		v.CycleTimespanMS = int(math.Round(ts))
		v.TimespanValid = true
	}

	return v, nil
}

// parseSettings validates a settings document. Missing fields are fatal;
// empty colors fall back to the control's default palette.
func parseSettings(body []byte) (MixerSettings, error) {
	doc, err := decodeDocument(body)
	if err != nil {
		return MixerSettings{}, err
	}

	var s MixerSettings

	raw, ok := doc[keyIsMixer]
	if !ok {
		return MixerSettings{}, fmt.Errorf("missing %s", keyIsMixer)
	}
	if s.IsMixer, err = parseFlexBool(raw); err != nil {
		return MixerSettings{}, fmt.Errorf("%s: %w", keyIsMixer, err)
	}

	if s.MixerName, err = stringField(doc, keyMixerName); err != nil {
		return MixerSettings{}, err
	}

	for i := 0; i < liquidCount; i++ {
		if s.LiquidNames[i], err = stringField(doc, liquidKey("LIQUID_NAME", i)); err != nil {
			return MixerSettings{}, err
		}
		color, err := stringField(doc, liquidKey("LIQUID_COLOR", i))
		if err != nil {
			return MixerSettings{}, err
		}
		if strings.TrimSpace(color) == "" {
			color = defaultLiquidColors[i]
		}
		s.LiquidColors[i] = color
	}

	return s, nil
}

func stringField(doc map[string]json.RawMessage, key string) (string, error) {
	raw, ok := doc[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s is not a string: %s", key, string(raw))
	}
	return s, nil
}

// parseNumber accepts JSON numbers and numeric strings; null, NaN and
// infinities are rejected.
func parseNumber(raw json.RawMessage) (float64, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return 0, errors.New("not a number")
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, fmt.Errorf("not a number: %s", string(raw))
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", s)
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("not a number")
	}
	return f, nil
}

// parseFlexBool accepts true/false, 1/0 and their string forms.
func parseFlexBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return parsed, nil
		}
		return false, fmt.Errorf("not a boolean: %q", s)
	}

	f, err := parseNumber(raw)
	if err != nil {
		return false, fmt.Errorf("not a boolean: %s", string(raw))
	}
	switch f {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("not a boolean: %g", f)
	}
}
