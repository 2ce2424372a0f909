package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"schedweb/internal/config"
	appLog "schedweb/internal/log"
)

// StatusOK is the only envelope status treated as success.
const StatusOK = "200"

var (
	// ErrStatus matches any envelope whose status is not StatusOK.
	ErrStatus = errors.New("backend returned non-success status")
	// ErrNoData is returned when a list response has no data member.
	ErrNoData = errors.New("backend response has no data")
	// ErrMethodNotAllowed is returned before sending when the endpoint table
	// does not list the method for the resource.
	ErrMethodNotAllowed = errors.New("method not allowed for resource")
	// ErrUnknownResource is returned for resources missing from the table.
	ErrUnknownResource = errors.New("unknown backend resource")
)

// StatusError carries the status string of a failed envelope.
type StatusError struct {
	Resource string
	Method   string
	Status   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: backend status %q", e.Method, e.Resource, e.Status)
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// envelope is the response shape shared by every endpoint.
type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// Client talks to the scheduling REST backend using an explicit endpoint
// table instead of per-call-site URLs.
type Client struct {
	client    *http.Client
	baseURL   string
	endpoints map[string]config.EndpointConfig
	metrics   *Metrics
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithMetrics records request counts and latencies.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient builds a Client from the backend section of the config.
func NewClient(cfg config.BackendConfig, opts ...Option) *Client {
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	endpoints := cfg.Endpoints
	if endpoints == nil {
		endpoints = config.DefaultEndpoints()
	}
	c := &Client{
		client:    &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		endpoints: endpoints,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// List fetches a resource collection and decodes its payload into out,
// which must be a pointer to a slice.
func (c *Client) List(ctx context.Context, resource string, out any) error {
	ep, err := c.endpoint(resource, http.MethodGet)
	if err != nil {
		return err
	}

	env, err := c.do(ctx, resource, ep, http.MethodGet, nil)
	if err != nil {
		return err
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		c.metrics.observeOutcome(resource, http.MethodGet, "no_data")
		return fmt.Errorf("%s: %w", resource, ErrNoData)
	}

	payload := []byte(env.Data)
	if ep.Encoding == config.EncodingString {
		var inner string
		if err := json.Unmarshal(env.Data, &inner); err != nil {
			return fmt.Errorf("%s: decode string payload: %w", resource, err)
		}
		payload = []byte(inner)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: decode payload: %w", resource, err)
	}
	return nil
}

// Create POSTs payload to the resource.
func (c *Client) Create(ctx context.Context, resource string, payload any) error {
	return c.send(ctx, resource, http.MethodPost, payload)
}

// Update PUTs payload to the resource. The payload must already carry the
// record id under the resource's id key.
func (c *Client) Update(ctx context.Context, resource string, payload any) error {
	return c.send(ctx, resource, http.MethodPut, payload)
}

// Delete sends a DELETE whose body is payload, e.g. {"client_id": 3}.
func (c *Client) Delete(ctx context.Context, resource string, payload any) error {
	return c.send(ctx, resource, http.MethodDelete, payload)
}

func (c *Client) send(ctx context.Context, resource, method string, payload any) error {
	ep, err := c.endpoint(resource, method)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s %s: encode payload: %w", method, resource, err)
	}
	_, err = c.do(ctx, resource, ep, method, body)
	return err
}

func (c *Client) endpoint(resource, method string) (config.EndpointConfig, error) {
	ep, ok := c.endpoints[resource]
	if !ok {
		return config.EndpointConfig{}, fmt.Errorf("%q: %w", resource, ErrUnknownResource)
	}
	if !ep.Allows(method) {
		return config.EndpointConfig{}, fmt.Errorf("%s %s: %w", method, resource, ErrMethodNotAllowed)
	}
	return ep, nil
}

// do performs one request and returns the decoded envelope when its status
// is StatusOK.
func (c *Client) do(ctx context.Context, resource string, ep config.EndpointConfig, method string, body []byte) (envelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+ep.Path, reader)
	if err != nil {
		return envelope{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	appLog.Debug("backend request", "method", method, "resource", resource)

	start := time.Now()
	resp, err := c.client.Do(req)
	c.metrics.observeLatency(resource, method, time.Since(start))
	if err != nil {
		c.metrics.observeOutcome(resource, method, "transport_error")
		return envelope{}, fmt.Errorf("%s %s: %w", method, resource, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.observeOutcome(resource, method, "transport_error")
		return envelope{}, fmt.Errorf("%s %s: read body: %w", method, resource, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.metrics.observeOutcome(resource, method, "malformed")
		return envelope{}, fmt.Errorf("%s %s: malformed response (http %d): %w", method, resource, resp.StatusCode, err)
	}
	if env.Status != StatusOK {
		c.metrics.observeOutcome(resource, method, "status_error")
		return envelope{}, &StatusError{Resource: resource, Method: method, Status: env.Status}
	}

	c.metrics.observeOutcome(resource, method, "ok")
	return env, nil
}
