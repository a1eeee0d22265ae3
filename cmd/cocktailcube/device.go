package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Field is a device setting that can be written with a single PUT.
type Field string

// liquidAngleField returns the LIQUID_ANGLE_<n> field for a zero-based segment index.
func liquidAngleField(index int) (Field, bool) {
	switch index {
	case 0:
		return FieldLiquidAngle1, true
	case 1:
		return FieldLiquidAngle2, true
	case 2:
		return FieldLiquidAngle3, true
	default:
		return "", false
	}
}

func (f Field) valid() bool {
	switch f {
	case FieldLiquidAngle1, FieldLiquidAngle2, FieldLiquidAngle3, FieldCycleTimespan:
		return true
	default:
		return false
	}
}

// DeviceGateway defines the device operations the session needs.
// This allows for mocking in tests.
type DeviceGateway interface {
	ReadValues(ctx context.Context) (MixerValues, error)
	ReadSettings(ctx context.Context) (MixerSettings, error)

	// WriteField sends one named-field command. For LIQUID_ANGLE_<n> the value
	// is a signed relative increment in degrees, not an absolute angle.
	WriteField(ctx context.Context, field Field, value int) error
}

// DeviceClient talks to the device's /control query interface over HTTP.
//
// It never retries: every call is one request, and every failure comes back
// as a *GatewayError.
type DeviceClient struct {
	http     *http.Client
	endpoint *url.URL
	logger   *slog.Logger
}

// NewDeviceClient validates the base URL and prepares a client with a per-request timeout.
func NewDeviceClient(baseURL string, logger *slog.Logger, timeoutMS int) (*DeviceClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid device URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid device URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid device URL %q: missing host", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + controlPath
	u.RawQuery = ""

	if logger == nil {
		logger = discardLogger()
	}
	if timeoutMS <= 0 {
		timeoutMS = defaultDeviceTimeoutMS
	}

	return &DeviceClient{
		http:     &http.Client{Timeout: time.Duration(timeoutMS) * time.Millisecond},
		endpoint: u,
		logger:   logger,
	}, nil
}

// requestURL builds /control?<key>=<value>. The device dispatches on the
// first argument name only.
func (c *DeviceClient) requestURL(key, value string) string {
	u := *c.endpoint
	u.RawQuery = url.QueryEscape(key) + "=" + url.QueryEscape(value)
	return u.String()
}

// do performs one request and returns the body of a 2xx response.
func (c *DeviceClient) do(ctx context.Context, op, method, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, failure(TransportFailure, op, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, failure(TransportFailure, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, failure(TransportFailure, op, fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, failure(ProtocolFailure, op, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	return body, nil
}

// ReadValues fetches ?values=0.
func (c *DeviceClient) ReadValues(ctx context.Context) (MixerValues, error) {
	const op = "read values"

	body, err := c.do(ctx, op, http.MethodGet, c.requestURL("values", "0"))
	if err != nil {
		return MixerValues{}, err
	}

	values, err := parseValues(body)
	if err != nil {
		return MixerValues{}, failure(MalformedPayload, op, err)
	}

	c.logger.Debug("read values",
		"version", values.UpdateVersion,
		"angles", values.LiquidAngles,
		"angles_valid", values.AnglesValid,
		"cycle_timespan_ms", values.CycleTimespanMS,
		"timespan_valid", values.TimespanValid)

	return values, nil
}

// ReadSettings fetches ?settings=0.
func (c *DeviceClient) ReadSettings(ctx context.Context) (MixerSettings, error) {
	const op = "read settings"

	body, err := c.do(ctx, op, http.MethodGet, c.requestURL("settings", "0"))
	if err != nil {
		return MixerSettings{}, err
	}

	settings, err := parseSettings(body)
	if err != nil {
		return MixerSettings{}, failure(MalformedPayload, op, err)
	}

	c.logger.Debug("read settings",
		"is_mixer", settings.IsMixer,
		"mixer_name", settings.MixerName,
		"liquid_names", settings.LiquidNames,
		"liquid_colors", settings.LiquidColors)

	return settings, nil
}

// WriteField sends PUT ?<field>=<value> with no body.
func (c *DeviceClient) WriteField(ctx context.Context, field Field, value int) error {
	op := "write " + string(field)

	if !field.valid() {
		return failure(ValidationFailure, op, errors.New("unknown field"))
	}
	if field == FieldCycleTimespan && (value < minCycleTimespanMS || value > maxCycleTimespanMS) {
		return failure(ValidationFailure, op, fmt.Errorf("%d outside [%d,%d]", value, minCycleTimespanMS, maxCycleTimespanMS))
	}

	body, err := c.do(ctx, op, http.MethodPut, c.requestURL(string(field), strconv.Itoa(value)))
	if err != nil {
		return err
	}

	c.logger.Debug("write field", "field", field, "value", value, "response", strings.TrimSpace(string(body)))
	return nil
}
