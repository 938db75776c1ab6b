// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"strings"
)

// Collector assembles the SSE timeline the Translator produces into a
// single non-streaming MessagesResponse, for clients that set
// stream:false. It is attached in place of a direct SSE write (§4.6).
type Collector struct {
	blocks  []OutputBlock
	cur     strings.Builder
	curType string
	open    bool
}

// NewCollector creates an empty collector.
func NewCollector() *Collector { return &Collector{} }

// Feed processes one SSE event from the translator.
func (c *Collector) Feed(ev SSEEvent) {
	switch ev.Event {
	case "content_block_start":
		var payload struct {
			ContentBlock struct {
				Type string `json:"type"`
			} `json:"content_block"`
		}
		if json.Unmarshal(ev.Data, &payload) == nil {
			c.cur.Reset()
			c.curType = payload.ContentBlock.Type
			c.open = true
		}
	case "content_block_delta":
		if !c.open {
			return
		}
		var payload struct {
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
		}
		if json.Unmarshal(ev.Data, &payload) == nil && payload.Delta.Type == "text_delta" {
			c.cur.WriteString(payload.Delta.Text)
		}
	case "content_block_stop":
		if c.open {
			c.blocks = append(c.blocks, OutputBlock{Type: c.curType, Text: c.cur.String()})
			c.open = false
		}
	}
}

// Build returns the finished content blocks.
func (c *Collector) Build() []OutputBlock {
	if len(c.blocks) == 0 {
		return []OutputBlock{{Type: "text", Text: ""}}
	}
	return c.blocks
}
