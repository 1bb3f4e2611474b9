package iot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cristalhq/hedgedhttp"
)

// ClientConfig configures HTTPClient.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration // per request; 0 => 10s

	// Reads are hedged: when a GET has not answered after HedgeAfter, up to
	// HedgeUpTo extra copies are sent and the first reply wins.
	// HedgeAfter 0 disables hedging.
	HedgeAfter time.Duration
	HedgeUpTo  int

	Transport http.RoundTripper // nil => http.DefaultTransport
}

// HTTPClient talks to the devices REST backend.
type HTTPClient struct {
	base  *url.URL
	read  *http.Client
	write *http.Client
	stats *hedgedhttp.Stats
}

var _ API = (*HTTPClient)(nil)

const maxErrorBody = 4 << 10

func NewHTTPClient(cfg ClientConfig) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("iot: base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("iot: base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	c := &HTTPClient{
		base:  base,
		write: &http.Client{Transport: transport, Timeout: cfg.Timeout},
	}

	// mutations are not idempotent, only reads go through the hedger
	readTransport := transport
	if cfg.HedgeAfter > 0 {
		upto := cfg.HedgeUpTo
		if upto <= 0 {
			upto = 2
		}
		readTransport, c.stats, err = hedgedhttp.NewRoundTripperAndStats(cfg.HedgeAfter, upto, transport)
		if err != nil {
			return nil, fmt.Errorf("iot: hedging: %w", err)
		}
	}
	c.read = &http.Client{Transport: readTransport, Timeout: cfg.Timeout}
	return c, nil
}

// HedgeStats reports hedging counters; nil when hedging is disabled.
func (c *HTTPClient) HedgeStats() *hedgedhttp.Stats { return c.stats }

func (c *HTTPClient) Device(ctx context.Context, name string) (Device, error) {
	var d Device
	err := c.do(ctx, c.read, http.MethodGet, "/devices/"+name, nil, nil, &d)
	return d, err
}

func (c *HTTPClient) FindDevices(ctx context.Context, q FindOptions) (Collection[Device], error) {
	var out Collection[Device]
	err := c.find(ctx, "/devices", q, &out)
	return out, err
}

func (c *HTTPClient) FindPingHistory(ctx context.Context, q FindOptions) (Collection[DevicePingHistory], error) {
	var out Collection[DevicePingHistory]
	err := c.find(ctx, "/device-ping-history", q, &out)
	return out, err
}

func (c *HTTPClient) FindAwakeHistory(ctx context.Context, q FindOptions) (Collection[DeviceAwakeHistory], error) {
	var out Collection[DeviceAwakeHistory]
	err := c.find(ctx, "/device-awake-history", q, &out)
	return out, err
}

func (c *HTTPClient) AddDevice(ctx context.Context, d Device) (Device, error) {
	var out Device
	err := c.do(ctx, c.write, http.MethodPost, "/devices", nil, d, &out)
	return out, err
}

func (c *HTTPClient) UpdateDevice(ctx context.Context, name string, patch DevicePatch) error {
	return c.do(ctx, c.write, http.MethodPatch, "/devices/"+name, nil, patch, nil)
}

func (c *HTTPClient) DeleteDevice(ctx context.Context, name string) error {
	return c.do(ctx, c.write, http.MethodDelete, "/devices/"+name, nil, nil, nil)
}

func (c *HTTPClient) WakeUp(ctx context.Context, name string) (AwakeResult, error) {
	var out AwakeResult
	err := c.do(ctx, c.write, http.MethodPost, "/devices/"+name+"/awake", nil, nil, &out)
	return out, err
}

func (c *HTTPClient) Ping(ctx context.Context, name string) (PingResult, error) {
	var out PingResult
	err := c.do(ctx, c.write, http.MethodPost, "/devices/"+name+"/ping", nil, nil, &out)
	return out, err
}

// find sends q JSON-encoded in the findOptions query parameter.
func (c *HTTPClient) find(ctx context.Context, path string, q FindOptions, out any) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("iot: encode query: %w", err)
	}
	return c.do(ctx, c.read, http.MethodGet, path, url.Values{"findOptions": {string(raw)}}, nil, out)
}

func (c *HTTPClient) do(ctx context.Context, hc *http.Client, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path += path
	u.RawQuery = query.Encode()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("iot: encode body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("iot: decode %s %s: %w", method, path, err)
	}
	return nil
}
