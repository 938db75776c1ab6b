// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"fmt"
	"time"
)

// SSEEvent is one event of the outbound Messages API stream.
type SSEEvent struct {
	Event string
	Data  []byte
}

// Translator consumes parsed CLI events for a single run and emits the
// normalized Messages-API SSE timeline. Tool traffic never reaches the
// output: the CLI executes its own tools, and forwarding tool_use blocks
// to a client gateway that also tries to execute tools causes a retry
// loop, so those blocks are hidden entirely.
type Translator struct {
	messageID string
	model     string

	started  bool
	sseIndex int
	openType string // "" | "text" | "thinking"

	insideTool    bool
	toolExecuting bool
	compacting    bool
	textSent      bool
	resultSeen    bool

	inputTokens  int
	outputTokens int

	out []SSEEvent
}

// NewTranslator creates a translator for one run.
func NewTranslator(messageID, model string) *Translator {
	return &Translator{messageID: messageID, model: model}
}

// ToolExecuting reports whether a tool_use block has started and no text
// or thinking block has started since, used by the supervisor to pick the
// idle-timeout threshold.
func (t *Translator) ToolExecuting() bool { return t.toolExecuting }

// Compacting reports whether a compaction notice is in progress.
func (t *Translator) Compacting() bool { return t.compacting }

// ResultReceived reports whether a terminal result event was already
// consumed. The CLI sometimes reports quota/credit conditions by printing a
// valid result and then exiting non-zero; a run that got this far is a
// success regardless of what the exit code says.
func (t *Translator) ResultReceived() bool { return t.resultSeen }

// Consume processes one parsed CLIEvent and returns the SSE events it
// produces, if any.
func (t *Translator) Consume(ev CLIEvent) []SSEEvent {
	t.out = t.out[:0]
	t.ensureStarted()

	switch ev.Type {
	case "stream_event":
		if ev.Event != nil {
			t.consumeInner(ev.Event)
		}
	case "system":
		if ev.Subtype == "compact_boundary" || ev.Status == "compacting" {
			t.emitCompactionNotice()
		}
	case "result":
		t.consumeResult(ev)
	case "message_delta":
		if ev.Usage != nil {
			t.outputTokens = ev.Usage.OutputTokens
		}
	default:
		// init, assistant, user, control_request: monitor-only, not forwarded.
	}

	return append([]SSEEvent(nil), t.out...)
}

// Close finalizes the stream when the child exits: closes any open block
// and emits the terminal message_delta/message_stop pair. ok indicates a
// clean (non-error) exit.
func (t *Translator) Close(ok bool) []SSEEvent {
	t.out = t.out[:0]
	t.ensureStarted()

	if !t.textSent && ok {
		t.emitSynthesizedText("")
	}
	t.closeOpenBlock()

	if ok {
		t.emit("message_delta", map[string]any{
			"type":  "message_delta",
			"delta": map[string]any{"stop_reason": "end_turn", "stop_sequence": nil},
			"usage": map[string]any{"output_tokens": t.outputTokens},
		})
		t.emit("message_stop", map[string]any{"type": "message_stop"})
	}

	return append([]SSEEvent(nil), t.out...)
}

func (t *Translator) ensureStarted() {
	if t.started {
		return
	}
	t.started = true
	t.emit("message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":            t.messageID,
			"type":          "message",
			"role":          "assistant",
			"model":         t.model,
			"content":       []any{},
			"stop_reason":   nil,
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": t.inputTokens, "output_tokens": 0},
		},
	})
}

func (t *Translator) consumeInner(raw json.RawMessage) {
	var inner innerStreamEvent
	if json.Unmarshal(raw, &inner) != nil {
		return
	}

	switch inner.Type {
	case "message_start":
		if inner.Message != nil {
			var msg struct {
				Usage *CLIUsage `json:"usage"`
			}
			if json.Unmarshal(inner.Message, &msg) == nil && msg.Usage != nil {
				t.inputTokens = totalInputTokens(msg.Usage)
			}
		}

	case "content_block_start":
		if inner.ContentBlock == nil {
			return
		}
		var cb innerContentBlock
		if json.Unmarshal(inner.ContentBlock, &cb) != nil {
			return
		}

		switch cb.Type {
		case "tool_use":
			t.insideTool = true
			t.toolExecuting = true
		case "text", "thinking":
			t.insideTool = false
			t.toolExecuting = false
			t.compacting = false
			t.openType = cb.Type
			t.emit("content_block_start", map[string]any{
				"type":  "content_block_start",
				"index": t.sseIndex,
				"content_block": map[string]any{
					"type": cb.Type,
					"text": "",
				},
			})
		}

	case "content_block_delta":
		if inner.Delta == nil || t.insideTool {
			return
		}
		var d innerDelta
		if json.Unmarshal(inner.Delta, &d) != nil {
			return
		}
		switch d.Type {
		case "text_delta":
			text := StripGatewayTags(d.Text)
			if text == "" {
				return
			}
			t.textSent = true
			t.emit("content_block_delta", map[string]any{
				"type":  "content_block_delta",
				"index": t.sseIndex,
				"delta": map[string]any{"type": "text_delta", "text": text},
			})
		case "thinking_delta":
			t.emit("content_block_delta", map[string]any{
				"type":  "content_block_delta",
				"index": t.sseIndex,
				"delta": map[string]any{"type": "thinking_delta", "thinking": d.Text},
			})
		}

	case "content_block_stop":
		if t.insideTool {
			t.insideTool = false
			return
		}
		if t.openType != "" {
			t.emit("content_block_stop", map[string]any{
				"type":  "content_block_stop",
				"index": t.sseIndex,
			})
			t.sseIndex++
			t.openType = ""
		}

	case "message_delta":
		if inner.Usage != nil {
			t.outputTokens = inner.Usage.OutputTokens
		}
	}
}

func (t *Translator) consumeResult(ev CLIEvent) {
	t.resultSeen = true
	if ev.Usage != nil {
		t.inputTokens = totalInputTokens(ev.Usage)
		t.outputTokens = ev.Usage.OutputTokens
	}
	if !t.textSent && ev.Result != "" {
		t.emitSynthesizedText(ev.Result)
	}
}

// emitCompactionNotice injects a synthetic text block so the client sees
// the context compaction happening instead of a silent multi-minute pause.
func (t *Translator) emitCompactionNotice() {
	t.compacting = true
	t.closeOpenBlock()
	notice := fmt.Sprintf("[Auto context compaction at %s — summarizing conversation history, this may take a few minutes...]",
		time.Now().UTC().Format(time.RFC3339))
	t.emitSynthesizedText(notice)
	t.closeOpenBlock()
}

func (t *Translator) emitSynthesizedText(text string) {
	text = StripGatewayTags(text)
	t.emit("content_block_start", map[string]any{
		"type":  "content_block_start",
		"index": t.sseIndex,
		"content_block": map[string]any{
			"type": "text",
			"text": "",
		},
	})
	t.openType = "text"
	if text != "" {
		t.emit("content_block_delta", map[string]any{
			"type":  "content_block_delta",
			"index": t.sseIndex,
			"delta": map[string]any{"type": "text_delta", "text": text},
		})
		t.textSent = true
	}
}

func (t *Translator) closeOpenBlock() {
	if t.openType == "" {
		return
	}
	t.emit("content_block_stop", map[string]any{
		"type":  "content_block_stop",
		"index": t.sseIndex,
	})
	t.sseIndex++
	t.openType = ""
}

func (t *Translator) emit(name string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	t.out = append(t.out, SSEEvent{Event: name, Data: data})
}
