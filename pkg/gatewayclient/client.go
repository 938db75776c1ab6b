// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package gatewayclient provides a Go client library for the gateway's
// Messages API.
//
// Create a client pointing to your gateway instance:
//
//	c := gatewayclient.New("http://localhost:8787")
//
//	resp, err := c.SendMessage(ctx, gatewayclient.MessagesRequest{
//	    Model:    "sonnet",
//	    Messages: []gatewayclient.Message{{Role: "user", Content: "hello"}},
//	})
//
// For streaming responses, use Stream instead and consume the returned
// channel of StreamEvent until it closes.
package gatewayclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/groupsio/claudegw/internal/api/version"
)

// Client is a gateway API client. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// New creates a client for the gateway at baseURL (e.g.
// "http://localhost:8787"). Any trailing slash is removed.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiVersion: version.LatestVersion,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithVersion pins the client to a specific date-based API version.
func WithVersion(v string) Option {
	return func(c *Client) { c.apiVersion = v }
}

// WithHTTPClient sets a custom HTTP client, e.g. for TLS or proxy settings.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the HTTP client timeout. Irrelevant to Stream, whose
// requests are bounded by the caller's context instead.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// Version returns the API version this client sends.
func (c *Client) Version() string { return c.apiVersion }

// BaseURL returns the gateway base URL this client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// APIError is an error response from the gateway, per its error taxonomy.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *APIError       `json:"error"`
}

// SendMessage posts a non-streaming request to POST /v1/messages.
func (c *Client) SendMessage(ctx context.Context, req MessagesRequest) (*MessagesResponse, error) {
	req.Stream = false
	data, err := c.postJSON(ctx, "/v1/messages", req)
	if err != nil {
		return nil, err
	}
	var resp MessagesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode messages response: %w", err)
	}
	return &resp, nil
}

// Stream posts a streaming request to POST /v1/messages and returns a
// channel of decoded SSE frames. The channel closes when the response body
// is exhausted or ctx is cancelled.
func (c *Client) Stream(ctx context.Context, req MessagesRequest) (<-chan StreamEvent, error) {
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq, req.SessionKey, req.Regenerate)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	ch := make(chan StreamEvent, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		scanSSE(resp.Body, ch)
	}()
	return ch, nil
}

// scanSSE reads "event: <name>\ndata: <payload>\n\n" frames from r and
// sends each onto ch, skipping keepalive comment lines.
func scanSSE(r io.Reader, ch chan<- StreamEvent) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var event string
	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event != "" {
				ch <- StreamEvent{Event: event, Data: append([]byte(nil), data.Bytes()...)}
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data.WriteString(strings.TrimPrefix(line, "data: "))
		}
	}
}

// Models lists the model tiers GET /v1/models advertises.
func (c *Client) Models(ctx context.Context) ([]ModelInfo, error) {
	data, err := c.get(ctx, "/v1/models")
	if err != nil {
		return nil, err
	}
	var models []ModelInfo
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}
	return models, nil
}

// Health queries GET /health.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	data, err := c.get(ctx, "/health")
	if err != nil {
		return nil, err
	}
	var status HealthStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return &status, nil
}

func (c *Client) setHeaders(req *http.Request, sessionKey string, regenerate bool) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(version.Header, c.apiVersion)
	if sessionKey != "" {
		req.Header.Set("x-session-key", sessionKey)
	}
	if regenerate {
		req.Header.Set("x-regenerate", "true")
	}
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, body MessagesRequest) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return c.doWithHeaders(ctx, http.MethodPost, path, bytes.NewReader(data), body.SessionKey, body.Regenerate)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (json.RawMessage, error) {
	return c.doWithHeaders(ctx, method, path, body, "", false)
}

func (c *Client) doWithHeaders(ctx context.Context, method, path string, body io.Reader, sessionKey string, regenerate bool) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, sessionKey, regenerate)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

func (c *Client) parseResponse(resp *http.Response) (json.RawMessage, error) {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
		}
		return respBody, nil
	}

	if apiResp.Error != nil {
		return nil, apiResp.Error
	}

	return apiResp.Data, nil
}
