// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// mockcli stands in for the real assistant CLI during end-to-end tests. It
// understands the same flags the supervisor builds (--resume, --session-id,
// --output-format, ...), keeps its own JSONL transcript under
// ~/.claude/projects the way the real CLI does, and answers a small,
// deterministic set of prompts so the gateway's continuity, isolation,
// regenerate and tool-filtering behavior can be exercised without a live
// model behind it.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/groupsio/claudegw/internal/claudecli"
)

func main() {
	var (
		resume         string
		sessionID      string
		systemPrompt   string
		appendSystem   string
		model          string
		outputFormat   string
		permissionMode string
		print          bool
		verbose        bool
		partial        bool
	)
	flag.StringVar(&resume, "resume", "", "")
	flag.StringVar(&sessionID, "session-id", "", "")
	flag.StringVar(&systemPrompt, "system-prompt", "", "")
	flag.StringVar(&appendSystem, "append-system-prompt", "", "")
	flag.StringVar(&model, "model", "", "")
	flag.StringVar(&outputFormat, "output-format", "json", "")
	flag.StringVar(&permissionMode, "permission-mode", "", "")
	flag.BoolVar(&print, "print", false, "")
	flag.BoolVar(&verbose, "verbose", false, "")
	flag.BoolVar(&partial, "include-partial-messages", false, "")
	flag.Parse()

	promptBytes, _ := io.ReadAll(bufio.NewReader(os.Stdin))
	prompt := strings.TrimSpace(string(promptBytes))

	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "mockcli: getwd:", err)
		os.Exit(1)
	}

	sessUUID := sessionID
	resuming := resume != ""
	if resuming {
		sessUUID = resume
	}
	logInvocation(resuming, sessUUID)

	var history []claudecli.Line
	if resuming {
		history, _ = claudecli.ReadLines(wd, sessUUID)
	}

	if slowMS := slowDelay(prompt); slowMS > 0 {
		time.Sleep(time.Duration(slowMS) * time.Millisecond)
	}

	reply := respond(prompt, history)

	userLine := newLine("user", sessUUID, lastUUID(history), userMessage(prompt))
	appendLines(wd, sessUUID, history, userLine)
	history = append(history, userLine)

	switch outputFormat {
	case "stream-json":
		emitStream(sessUUID, reply)
	default:
		emitJSON(sessUUID, reply)
	}

	assistantLine := newLine("assistant", sessUUID, userLine.UUID, assistantMessage(reply.text))
	appendLines(wd, sessUUID, history, assistantLine)

	// (badexit) simulates the CLI reporting a quota/credit condition: it
	// still prints a valid result, then exits non-zero.
	if strings.Contains(prompt, "(badexit)") {
		os.Exit(7)
	}
}

// reply is the decoded shape of what a turn produces: either a single text
// block, or the tool_use + text sequence S4-style fixtures ask for.
type reply struct {
	text     string
	toolDemo bool
}

var (
	rememberNumberRe = regexp.MustCompile(`\d{6}`)
	secretWordRe     = regexp.MustCompile(`(?i)secret word is (\w+)`)
	secretIsRe       = regexp.MustCompile(`(?i)^Secret is (\w+)\.$`)
)

func respond(prompt string, history []claudecli.Line) reply {
	switch {
	case strings.Contains(prompt, "[TOOLDEMO]"):
		return reply{text: "Result", toolDemo: true}

	case strings.Contains(prompt, "Remember the number"):
		if m := rememberNumberRe.FindString(prompt); m != "" {
			return reply{text: "Understood, I'll remember " + m + "."}
		}
		return reply{text: "Understood."}

	case strings.Contains(prompt, "What number?"):
		for _, l := range history {
			if text := userText(l); text != "" {
				if m := rememberNumberRe.FindString(text); m != "" {
					return reply{text: "The number is " + m + "."}
				}
			}
		}
		return reply{text: "I don't recall a number."}

	case secretWordRe.MatchString(prompt):
		word := secretWordRe.FindStringSubmatch(prompt)[1]
		return reply{text: "Got it, your secret word is " + word + "."}

	case strings.Contains(strings.ToLower(prompt), "what's my secret word") ||
		strings.Contains(strings.ToLower(prompt), "what is my secret word"):
		for _, l := range history {
			if text := userText(l); text != "" {
				if m := secretWordRe.FindStringSubmatch(text); m != nil {
					return reply{text: "Your secret word is " + m[1] + "."}
				}
			}
		}
		return reply{text: "I don't know your secret word."}

	case secretIsRe.MatchString(prompt):
		word := secretIsRe.FindStringSubmatch(prompt)[1]
		return reply{text: "Noted: " + word + "."}

	case prompt == "List all secrets.":
		var secrets []string
		for _, l := range history {
			if text := userText(l); text != "" {
				if m := secretIsRe.FindStringSubmatch(text); m != nil {
					secrets = append(secrets, m[1])
				}
			}
		}
		if len(secrets) == 0 {
			return reply{text: "No secrets recorded."}
		}
		return reply{text: "Secrets: " + strings.Join(secrets, ", ") + "."}

	default:
		return reply{text: "Acknowledged."}
	}
}

// slowDelay reads an artificial per-turn delay, in milliseconds, for
// prompts that opt into it with a "(slow)" marker. The duration itself
// comes from the environment so a test can tune it per scenario without
// recompiling this binary.
func slowDelay(prompt string) int {
	if !strings.Contains(prompt, "(slow)") {
		return 0
	}
	ms, err := strconv.Atoi(os.Getenv("MOCKCLI_SLOW_MS"))
	if err != nil || ms <= 0 {
		return 2000
	}
	return ms
}

// logInvocation appends "resume|new,<uuid>" to the file named by
// MOCKCLI_ARGLOG, if set, so a test can inspect how each spawn was
// actually invoked without needing to intercept the real CLI's argv.
func logInvocation(resuming bool, sessUUID string) {
	path := os.Getenv("MOCKCLI_ARGLOG")
	if path == "" {
		return
	}
	mode := "new"
	if resuming {
		mode = "resume"
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s,%s\n", mode, sessUUID)
}

func userText(l claudecli.Line) string {
	var msg struct {
		Content string `json:"content"`
	}
	if json.Unmarshal(l.Message, &msg) != nil {
		return ""
	}
	return msg.Content
}

func lastUUID(history []claudecli.Line) string {
	if len(history) == 0 {
		return ""
	}
	return history[len(history)-1].UUID
}

func userMessage(prompt string) json.RawMessage {
	data, _ := json.Marshal(map[string]any{"role": "user", "content": prompt})
	return data
}

func assistantMessage(text string) json.RawMessage {
	data, _ := json.Marshal(map[string]any{
		"role":    "assistant",
		"content": []map[string]any{{"type": "text", "text": text}},
	})
	return data
}

func newLine(typ, sessionID, parentUUID string, message json.RawMessage) claudecli.Line {
	return claudecli.Line{
		Type:        typ,
		SessionID:   sessionID,
		UUID:        uuid.New().String(),
		ParentUUID:  parentUUID,
		Message:     message,
		CWD:         mustGetwd(),
		Version:     "mock",
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		IsSidechain: false,
		UserType:    "external",
	}
}

func mustGetwd() string {
	wd, _ := os.Getwd()
	return wd
}

// appendLines writes line to the session's JSONL transcript, creating
// the project directory and file on first use.
func appendLines(workspaceDir, sessionUUID string, existing []claudecli.Line, line claudecli.Line) {
	path, err := claudecli.SessionPath(workspaceDir, sessionUUID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mockcli: session path:", err)
		return
	}
	dir, err := claudecli.ProjectDir(workspaceDir)
	if err != nil {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "mockcli: mkdir:", err)
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mockcli: open transcript:", err)
		return
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.Encode(line)
}

// emitJSON writes the single-document --output-format json response.
func emitJSON(sessionID string, r reply) {
	doc := map[string]any{
		"type":       "result",
		"subtype":    "success",
		"session_id": sessionID,
		"result":     r.text,
		"usage":      map[string]any{"input_tokens": 10, "output_tokens": len(strings.Fields(r.text))},
	}
	data, _ := json.Marshal(doc)
	os.Stdout.Write(data)
	os.Stdout.Write([]byte("\n"))
}

// emitStream writes the --output-format stream-json NDJSON event sequence:
// a message_start, the content blocks for this turn (a tool_use block
// followed by a text block when toolDemo is set, a single text block
// otherwise), a message_delta carrying usage, and a terminal result line.
func emitStream(sessionID string, r reply) {
	write := func(v map[string]any) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		os.Stdout.Write(data)
		os.Stdout.Write([]byte("\n"))
	}
	streamEvent := func(event map[string]any) {
		write(map[string]any{"type": "stream_event", "session_id": sessionID, "event": event})
	}

	streamEvent(map[string]any{
		"type":    "message_start",
		"message": map[string]any{"usage": map[string]any{"input_tokens": 10}},
	})

	if r.toolDemo {
		streamEvent(map[string]any{
			"type":  "content_block_start",
			"index": 0,
			"content_block": map[string]any{
				"type": "tool_use", "id": "toolu_01demo", "name": "demo_tool", "input": map[string]any{},
			},
		})
		streamEvent(map[string]any{
			"type":  "content_block_delta",
			"index": 0,
			"delta": map[string]any{"type": "input_json_delta", "partial_json": "{}"},
		})
		streamEvent(map[string]any{"type": "content_block_stop", "index": 0})

		streamEvent(map[string]any{
			"type":          "content_block_start",
			"index":         1,
			"content_block": map[string]any{"type": "text", "text": ""},
		})
		streamEvent(map[string]any{
			"type":  "content_block_delta",
			"index": 1,
			"delta": map[string]any{"type": "text_delta", "text": r.text},
		})
		streamEvent(map[string]any{"type": "content_block_stop", "index": 1})
	} else {
		streamEvent(map[string]any{
			"type":          "content_block_start",
			"index":         0,
			"content_block": map[string]any{"type": "text", "text": ""},
		})
		streamEvent(map[string]any{
			"type":  "content_block_delta",
			"index": 0,
			"delta": map[string]any{"type": "text_delta", "text": r.text},
		})
		streamEvent(map[string]any{"type": "content_block_stop", "index": 0})
	}

	outputTokens := len(strings.Fields(r.text))
	streamEvent(map[string]any{
		"type":  "message_delta",
		"usage": map[string]any{"output_tokens": outputTokens},
	})

	write(map[string]any{
		"type":       "result",
		"subtype":    "success",
		"session_id": sessionID,
		"result":     r.text,
		"usage":      map[string]any{"input_tokens": 10, "output_tokens": outputTokens},
	})
}
