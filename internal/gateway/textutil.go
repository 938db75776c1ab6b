// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var replyToTagRe = regexp.MustCompile(`\[\[reply_to_message_id:\s*\d+\]\]\s*`)

// StripGatewayTags removes gateway-only metadata markers from text headed
// to or received from the model, so the model never echoes them back.
// Idempotent: applying it twice is the same as applying it once.
func StripGatewayTags(s string) string {
	return replyToTagRe.ReplaceAllString(s, "")
}

var senderTagRe = regexp.MustCompile(`\[from:\s*[^(]*\(@([^)]+)\)\]`)
var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\{.*?\\}\\s*```")

// ExtractIdentity derives the canonical identity for a request from the
// system prompt text: a sender handle tag takes precedence over a chat_id
// found in a fenced JSON metadata block.
func ExtractIdentity(systemText string) string {
	if m := senderTagRe.FindStringSubmatch(systemText); m != nil {
		return strings.ToLower(strings.TrimSpace(m[1]))
	}
	if chatID := chatIDFromFencedJSON(systemText); chatID != "" {
		return chatID
	}
	return ""
}

func chatIDFromFencedJSON(s string) string {
	parsed := fencedMetadataJSON(s)
	if parsed == nil {
		return ""
	}
	v, ok := parsed["chat_id"]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

// fencedMetadataJSON parses the first fenced ```json {...}``` block in s, if
// any. Used both to derive identity (chat_id) and to build the per-turn
// metadata fragment appended on resume (channel, chat_id, flags).
func fencedMetadataJSON(s string) map[string]any {
	block := fencedJSONRe.FindString(s)
	if block == "" {
		return nil
	}
	start := strings.Index(block, "{")
	end := strings.LastIndex(block, "}")
	if start < 0 || end < start {
		return nil
	}
	var parsed map[string]any
	if json.Unmarshal([]byte(block[start:end+1]), &parsed) != nil {
		return nil
	}
	return parsed
}

const standingReminder = "Re-read the project's system instructions for this conversation before replying; they are not resent on resume."

// TurnMetadataFragment builds the small text appended via
// --append-system-prompt on a resumed session: the current turn's
// channel/chat_id/flags, if present in the system prompt's fenced metadata
// block, plus a standing reminder to keep following the instructions
// already stored with the session. The full system prompt is never resent
// on resume (see buildArgs) — only this fragment is.
func TurnMetadataFragment(systemText string) string {
	var fields []string
	if parsed := fencedMetadataJSON(systemText); parsed != nil {
		for _, key := range []string{"channel", "chat_id", "flags"} {
			if v, ok := parsed[key]; ok {
				fields = append(fields, fmt.Sprintf("%s=%v", key, v))
			}
		}
	}

	var b strings.Builder
	if len(fields) > 0 {
		b.WriteString("[[turn: " + strings.Join(fields, " ") + "]]\n")
	}
	b.WriteString(standingReminder)
	return b.String()
}

var modelOpus = regexp.MustCompile(`(?i)opus`)
var modelSonnet = regexp.MustCompile(`(?i)sonnet`)
var modelHaiku = regexp.MustCompile(`(?i)haiku`)

// NormalizeModel strips an ecosystem vendor prefix and date suffix from a
// model identifier and collapses it to one of the three known tiers when
// recognizable, passing through unchanged otherwise.
func NormalizeModel(model string) string {
	m := model
	if idx := strings.LastIndex(m, "/"); idx >= 0 {
		m = m[idx+1:]
	}
	switch {
	case modelOpus.MatchString(m):
		return "opus"
	case modelSonnet.MatchString(m):
		return "sonnet"
	case modelHaiku.MatchString(m):
		return "haiku"
	}
	return model
}
