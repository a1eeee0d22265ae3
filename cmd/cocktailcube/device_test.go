package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeDevice serves the /control query interface the way the firmware does.
type fakeDevice struct {
	mu       sync.Mutex
	values   string
	settings string
	status   int
	delay    time.Duration
	requests []*http.Request
}

func (d *fakeDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	d.requests = append(d.requests, r)
	values, settings, status, delay := d.values, d.settings, d.status, d.delay
	d.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if r.URL.Path != "/control" {
		http.NotFound(w, r)
		return
	}
	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("Value not valid"))
		return
	}

	q := r.URL.Query()
	switch {
	case r.Method == http.MethodGet && q.Has("values"):
		_, _ = w.Write([]byte(values))
	case r.Method == http.MethodGet && q.Has("settings"):
		_, _ = w.Write([]byte(settings))
	case r.Method == http.MethodPut:
		_, _ = w.Write([]byte("Value update success"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (d *fakeDevice) lastRequest() *http.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.requests) == 0 {
		return nil
	}
	return d.requests[len(d.requests)-1]
}

func newTestDevice(t *testing.T, d *fakeDevice) *DeviceClient {
	t.Helper()
	srv := httptest.NewServer(d)
	t.Cleanup(srv.Close)

	c, err := NewDeviceClient(srv.URL, discardLogger(), 200)
	if err != nil {
		t.Fatalf("NewDeviceClient: %v", err)
	}
	return c
}

func TestNewDeviceClient_RejectsBadURLs(t *testing.T) {
	for _, raw := range []string{"", "192.168.4.1", "ws://192.168.4.1", "http://"} {
		if _, err := NewDeviceClient(raw, nil, 0); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestDeviceClient_ReadValues(t *testing.T) {
	d := &fakeDevice{values: `[{"NEED_UPDATE":7,"LIQUID_ANGLE_1":10,"LIQUID_ANGLE_2":20,"LIQUID_ANGLE_3":30,"CYCLE_TIMESPAN":600}]`}
	c := newTestDevice(t, d)

	v, err := c.ReadValues(context.Background())
	if err != nil {
		t.Fatalf("ReadValues: %v", err)
	}
	if v.UpdateVersion != 7 || v.CycleTimespanMS != 600 {
		t.Errorf("unexpected values %+v", v)
	}

	r := d.lastRequest()
	if r.Method != http.MethodGet || r.URL.RawQuery != "values=0" {
		t.Errorf("request = %s ?%s, want GET ?values=0", r.Method, r.URL.RawQuery)
	}
	if r.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("expected no-cache header")
	}
}

func TestDeviceClient_ReadSettings(t *testing.T) {
	d := &fakeDevice{settings: `[{"IS_MIXER":1,"MIXER_NAME":"CocktailCube","LIQUID_NAME_1":"a","LIQUID_NAME_2":"b","LIQUID_NAME_3":"c","LIQUID_COLOR_1":"#111111","LIQUID_COLOR_2":"#222222","LIQUID_COLOR_3":"#333333"}]`}
	c := newTestDevice(t, d)

	s, err := c.ReadSettings(context.Background())
	if err != nil {
		t.Fatalf("ReadSettings: %v", err)
	}
	if !s.IsMixer || s.LiquidColors[2] != "#333333" {
		t.Errorf("unexpected settings %+v", s)
	}
	if q := d.lastRequest().URL.RawQuery; q != "settings=0" {
		t.Errorf("query = %q, want settings=0", q)
	}
}

func TestDeviceClient_WriteField(t *testing.T) {
	d := &fakeDevice{}
	c := newTestDevice(t, d)

	if err := c.WriteField(context.Background(), FieldLiquidAngle1, -15); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	r := d.lastRequest()
	if r.Method != http.MethodPut {
		t.Errorf("method = %s, want PUT", r.Method)
	}
	if r.URL.RawQuery != "LIQUID_ANGLE_1=-15" {
		t.Errorf("query = %q, want LIQUID_ANGLE_1=-15", r.URL.RawQuery)
	}
}

func TestDeviceClient_WriteFieldValidation(t *testing.T) {
	d := &fakeDevice{}
	c := newTestDevice(t, d)

	err := c.WriteField(context.Background(), FieldCycleTimespan, 1200)
	if !IsFailureKind(err, ValidationFailure) {
		t.Fatalf("expected ValidationFailure, got %v", err)
	}
	err = c.WriteField(context.Background(), Field("LIQUID_ANGLE_4"), 1)
	if !IsFailureKind(err, ValidationFailure) {
		t.Fatalf("expected ValidationFailure for unknown field, got %v", err)
	}
	if d.lastRequest() != nil {
		t.Errorf("invalid writes must not reach the device")
	}
}

func TestDeviceClient_FailureKinds(t *testing.T) {
	t.Run("protocol", func(t *testing.T) {
		c := newTestDevice(t, &fakeDevice{status: http.StatusNotFound})
		if err := c.WriteField(context.Background(), FieldCycleTimespan, 500); !IsFailureKind(err, ProtocolFailure) {
			t.Fatalf("expected ProtocolFailure, got %v", err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		c := newTestDevice(t, &fakeDevice{values: `not json`})
		_, err := c.ReadValues(context.Background())
		if !IsFailureKind(err, MalformedPayload) {
			t.Fatalf("expected MalformedPayload, got %v", err)
		}
		var ge *GatewayError
		if !errors.As(err, &ge) || ge.Op != "read values" {
			t.Errorf("expected op 'read values', got %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		c := newTestDevice(t, &fakeDevice{values: `[]`, delay: 400 * time.Millisecond})
		if _, err := c.ReadValues(context.Background()); !IsFailureKind(err, TransportFailure) {
			t.Fatalf("expected TransportFailure, got %v", err)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		c, err := NewDeviceClient(url, nil, 200)
		if err != nil {
			t.Fatalf("NewDeviceClient: %v", err)
		}
		if _, err := c.ReadSettings(context.Background()); !IsFailureKind(err, TransportFailure) {
			t.Fatalf("expected TransportFailure, got %v", err)
		}
	})
}
