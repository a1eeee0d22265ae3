package main

import (
	"strings"
	"testing"
)

func TestParseValues_ValidDocument(t *testing.T) {
	body := []byte(`[{"NEED_UPDATE":5,"LIQUID_ANGLE_1":90,"LIQUID_ANGLE_2":200,"LIQUID_ANGLE_3":310,"CYCLE_TIMESPAN":500}]`)

	v, err := parseValues(body)
	if err != nil {
		t.Fatalf("parseValues: %v", err)
	}
	if v.UpdateVersion != 5 {
		t.Errorf("version = %d, want 5", v.UpdateVersion)
	}
	if !v.AnglesValid {
		t.Fatalf("expected angles valid, invalid=%v", v.Invalid)
	}
	want := [liquidCount]float64{90, 200, 310}
	if v.LiquidAngles != want {
		t.Errorf("angles = %v, want %v", v.LiquidAngles, want)
	}
	if !v.TimespanValid || v.CycleTimespanMS != 500 {
		t.Errorf("timespan = %d (valid=%v), want 500", v.CycleTimespanMS, v.TimespanValid)
	}
	if len(v.Invalid) != 0 {
		t.Errorf("expected no invalid fields, got %v", v.Invalid)
	}
}

func TestParseValues_BareNaNInvalidatesAnglesOnly(t *testing.T) {
	body := []byte(`[{"NEED_UPDATE":5,"LIQUID_ANGLE_1":NaN,"LIQUID_ANGLE_2":200,"LIQUID_ANGLE_3":310,"CYCLE_TIMESPAN":500}]`)

	v, err := parseValues(body)
	if err != nil {
		t.Fatalf("NaN must not make the document malformed: %v", err)
	}
	if v.AnglesValid {
		t.Fatalf("expected angles invalid")
	}
	if v.LiquidAngles != ([liquidCount]float64{}) {
		t.Errorf("invalid angles must be zeroed, got %v", v.LiquidAngles)
	}
	if !v.TimespanValid || v.CycleTimespanMS != 500 {
		t.Errorf("timespan should still be valid, got %d (valid=%v)", v.CycleTimespanMS, v.TimespanValid)
	}
	if len(v.Invalid) != 1 || v.Invalid[0].Field != "LIQUID_ANGLE_1" {
		t.Errorf("invalid = %v, want LIQUID_ANGLE_1 only", v.Invalid)
	}
}

func TestParseValues_RangeChecks(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		anglesValid   bool
		timespanValid bool
	}{
		{"angle above 360", `[{"NEED_UPDATE":1,"LIQUID_ANGLE_1":361,"LIQUID_ANGLE_2":2,"LIQUID_ANGLE_3":3,"CYCLE_TIMESPAN":500}]`, false, true},
		{"negative angle", `[{"NEED_UPDATE":1,"LIQUID_ANGLE_1":-1,"LIQUID_ANGLE_2":2,"LIQUID_ANGLE_3":3,"CYCLE_TIMESPAN":500}]`, false, true},
		{"angle missing", `[{"NEED_UPDATE":1,"LIQUID_ANGLE_1":1,"LIQUID_ANGLE_3":3,"CYCLE_TIMESPAN":500}]`, false, true},
		{"bounds inclusive", `[{"NEED_UPDATE":1,"LIQUID_ANGLE_1":0,"LIQUID_ANGLE_2":360,"LIQUID_ANGLE_3":3,"CYCLE_TIMESPAN":1000}]`, true, true},
		{"timespan too small", `[{"NEED_UPDATE":1,"LIQUID_ANGLE_1":1,"LIQUID_ANGLE_2":2,"LIQUID_ANGLE_3":3,"CYCLE_TIMESPAN":199}]`, true, false},
		{"timespan too large", `[{"NEED_UPDATE":1,"LIQUID_ANGLE_1":1,"LIQUID_ANGLE_2":2,"LIQUID_ANGLE_3":3,"CYCLE_TIMESPAN":1001}]`, true, false},
		{"timespan nan", `[{"NEED_UPDATE":1,"LIQUID_ANGLE_1":1,"LIQUID_ANGLE_2":2,"LIQUID_ANGLE_3":3,"CYCLE_TIMESPAN":nan}]`, true, false},
		{"numeric strings", `[{"NEED_UPDATE":"1","LIQUID_ANGLE_1":"1.5","LIQUID_ANGLE_2":"2","LIQUID_ANGLE_3":"3","CYCLE_TIMESPAN":"400"}]`, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseValues([]byte(tt.body))
			if err != nil {
				t.Fatalf("parseValues: %v", err)
			}
			if v.AnglesValid != tt.anglesValid {
				t.Errorf("AnglesValid = %v, want %v (invalid=%v)", v.AnglesValid, tt.anglesValid, v.Invalid)
			}
			if v.TimespanValid != tt.timespanValid {
				t.Errorf("TimespanValid = %v, want %v (invalid=%v)", v.TimespanValid, tt.timespanValid, v.Invalid)
			}
		})
	}
}

func TestParseValues_MalformedDocuments(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"not json", `<html>busy</html>`},
		{"empty array", `[]`},
		{"missing version", `[{"LIQUID_ANGLE_1":1,"LIQUID_ANGLE_2":2,"LIQUID_ANGLE_3":3,"CYCLE_TIMESPAN":500}]`},
		{"fractional version", `[{"NEED_UPDATE":1.5,"CYCLE_TIMESPAN":500}]`},
		{"nan version", `[{"NEED_UPDATE":NaN,"CYCLE_TIMESPAN":500}]`},
		{"truncated", `[{"NEED_UPDATE":1,`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseValues([]byte(tt.body)); err == nil {
				t.Fatalf("expected error for %q", tt.body)
			}
		})
	}
}

func TestParseValues_AcceptsBareObject(t *testing.T) {
	v, err := parseValues([]byte(`{"NEED_UPDATE":-1,"LIQUID_ANGLE_1":1,"LIQUID_ANGLE_2":2,"LIQUID_ANGLE_3":3,"CYCLE_TIMESPAN":500}`))
	if err != nil {
		t.Fatalf("parseValues: %v", err)
	}
	if v.UpdateVersion != unknownVersion {
		t.Errorf("version = %d, want sentinel", v.UpdateVersion)
	}
}

func TestParseSettings_FirmwareFormat(t *testing.T) {
	// The firmware prints IS_MIXER as 1/0.
	body := []byte(`[{"IS_MIXER":0,"MIXER_NAME":"CocktailCube","LIQUID_NAME_1":"Rum","LIQUID_NAME_2":"Cola","LIQUID_NAME_3":"Lime","LIQUID_COLOR_1":"#AA0000","LIQUID_COLOR_2":"","LIQUID_COLOR_3":"#00AA00"}]`)

	s, err := parseSettings(body)
	if err != nil {
		t.Fatalf("parseSettings: %v", err)
	}
	if s.IsMixer {
		t.Errorf("IS_MIXER=0 must decode to false")
	}
	if s.MixerName != "CocktailCube" {
		t.Errorf("name = %q", s.MixerName)
	}
	if s.LiquidNames != [liquidCount]string{"Rum", "Cola", "Lime"} {
		t.Errorf("names = %v", s.LiquidNames)
	}
	if s.LiquidColors[1] != defaultLiquidColors[1] {
		t.Errorf("empty color should fall back to %q, got %q", defaultLiquidColors[1], s.LiquidColors[1])
	}
	if got := s.LogoAsset(); got != "logo_cocktailcube.svg" {
		t.Errorf("logo = %q", got)
	}
}

func TestParseSettings_BooleanForms(t *testing.T) {
	for _, raw := range []string{`true`, `1`, `"true"`, `"1"`} {
		body := `[{"IS_MIXER":` + raw + `,"MIXER_NAME":"x","LIQUID_NAME_1":"a","LIQUID_NAME_2":"b","LIQUID_NAME_3":"c","LIQUID_COLOR_1":"","LIQUID_COLOR_2":"","LIQUID_COLOR_3":""}]`
		s, err := parseSettings([]byte(body))
		if err != nil {
			t.Fatalf("IS_MIXER=%s: %v", raw, err)
		}
		if !s.IsMixer {
			t.Errorf("IS_MIXER=%s should decode to true", raw)
		}
	}

	body := `[{"IS_MIXER":2,"MIXER_NAME":"x","LIQUID_NAME_1":"a","LIQUID_NAME_2":"b","LIQUID_NAME_3":"c","LIQUID_COLOR_1":"","LIQUID_COLOR_2":"","LIQUID_COLOR_3":""}]`
	if _, err := parseSettings([]byte(body)); err == nil {
		t.Errorf("IS_MIXER=2 should be rejected")
	}
}

func TestParseSettings_MissingField(t *testing.T) {
	body := []byte(`[{"IS_MIXER":1,"MIXER_NAME":"x","LIQUID_NAME_1":"a","LIQUID_NAME_2":"b"}]`)
	_, err := parseSettings(body)
	if err == nil {
		t.Fatalf("expected error for missing fields")
	}
	if !strings.Contains(err.Error(), "LIQUID_NAME_3") {
		t.Errorf("error should name the missing field, got %v", err)
	}
}
