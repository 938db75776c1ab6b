// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import "encoding/json"

// CLIEvent is a parsed NDJSON line from the assistant CLI's
// --output-format stream-json, --include-partial-messages mode.
type CLIEvent struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	Result    string          `json:"result,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Errors    []string        `json:"errors,omitempty"`
	Status    string          `json:"status,omitempty"`
	// stream_event inner fields (present when Type == "stream_event")
	Event json.RawMessage `json:"event,omitempty"`
	// usage, reported on result and message_delta events
	Usage *CLIUsage `json:"usage,omitempty"`
}

// CLIUsage is the token-accounting block attached to several event types.
type CLIUsage struct {
	InputTokens              int `json:"input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	OutputTokens             int `json:"output_tokens"`
}

// innerStreamEvent is the payload of a CLIEvent's Event field: the actual
// Anthropic-shaped streaming event (message_start, content_block_start,
// content_block_delta, content_block_stop, message_delta, message_stop).
type innerStreamEvent struct {
	Type         string          `json:"type"`
	Index        int             `json:"index"`
	ContentBlock json.RawMessage `json:"content_block,omitempty"`
	Delta        json.RawMessage `json:"delta,omitempty"`
	Message      json.RawMessage `json:"message,omitempty"`
	Usage        *CLIUsage       `json:"usage,omitempty"`
}

type innerContentBlock struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type innerDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

func totalInputTokens(u *CLIUsage) int {
	if u == nil {
		return 0
	}
	return u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
}
