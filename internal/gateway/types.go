// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package gateway implements the session-aware Messages API engine that
// drives an interactive assistant CLI as a short-lived child process per
// turn, translating its NDJSON event stream into normalized SSE.
package gateway

import (
	"encoding/json"
	"time"
)

// Session is a registry record mapping a stable session key to the CLI
// session UUID and the canonical identity that produced it.
type Session struct {
	Key      string    `json:"key"`
	UUID     string    `json:"uuid"`
	Identity string    `json:"identity,omitempty"`
	LastUsed time.Time `json:"last_used"`
}

// MessagesRequest is the subset of the Anthropic Messages API request body
// this gateway accepts.
type MessagesRequest struct {
	Model    string          `json:"model"`
	Messages []InputMessage  `json:"messages"`
	System   json.RawMessage `json:"system,omitempty"`
	Stream   bool            `json:"stream"`
}

// InputMessage is one entry of the request's messages array. Content may be
// a plain string or an array of content blocks (text/image), so it is kept
// raw and decoded lazily by textOf/imagesOf.
type InputMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// InputContentBlock is one element of an InputMessage's content array form.
type InputContentBlock struct {
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
	Source *ImageSource    `json:"source,omitempty"`
	Extra  json.RawMessage `json:"-"`
}

// ImageSource carries a base64-encoded image payload.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// MessagesResponse is the non-streaming response envelope for /v1/messages.
type MessagesResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Content      []OutputBlock  `json:"content"`
	StopReason   string         `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

// OutputBlock is one content block of a non-streaming response.
type OutputBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Usage reports token accounting for a turn.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// RunRequest is everything the Request Handler resolves from an HTTP
// request before handing off to the queue and supervisor.
type RunRequest struct {
	SessionKey string
	Identity   string
	Prompt     string
	ImagePaths []string
	SystemText string
	AppendText string
	Model      string
	MessageID  string
	Stream     bool
	Regenerate bool
	StopOnly   bool
}

// RunOutcome is what a completed run reports back to the handler.
type RunOutcome struct {
	UUID         string
	MessageID    string
	Text         string
	InputTokens  int
	OutputTokens int
	Err          error
}
