// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package e2e drives the gateway's HTTP surface end to end against
// mockcli, a fixture CLI that understands the same invocation flags and
// NDJSON wire format as the real one. These tests exercise the scenarios
// the request engine is designed around: continuity, isolation,
// regenerate, tool filtering, preemption and disconnect.
package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupsio/claudegw/internal/api"
	"github.com/groupsio/claudegw/internal/events"
	"github.com/groupsio/claudegw/internal/gateway"
)

var (
	mockCLIOnce sync.Once
	mockCLIPath string
	mockCLIErr  error
)

// buildMockCLI compiles e2e/mockcli once per test binary run and returns
// the path to the resulting executable.
func buildMockCLI(t *testing.T) string {
	t.Helper()
	mockCLIOnce.Do(func() {
		dir := t.TempDir()
		mockCLIPath = filepath.Join(dir, "mockcli")
		cmd := exec.Command("go", "build", "-o", mockCLIPath, "./mockcli")
		cmd.Dir = mustWd()
		out, err := cmd.CombinedOutput()
		if err != nil {
			mockCLIErr = fmt.Errorf("build mockcli: %w: %s", err, out)
		}
	})
	if mockCLIErr != nil {
		t.Fatalf("%v", mockCLIErr)
	}
	return mockCLIPath
}

func mustWd() string {
	wd, _ := os.Getwd()
	return wd
}

// testGateway wires an Engine and its HTTP router over a fresh mock-CLI
// workspace, with no persistence across tests.
type testGateway struct {
	server  *httptest.Server
	engine  *gateway.Engine
	argLog  string
	workDir string
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	binary := buildMockCLI(t)

	home := t.TempDir()
	t.Setenv("HOME", home)

	workDir := t.TempDir()
	argLog := filepath.Join(t.TempDir(), "arglog.csv")
	t.Setenv("MOCKCLI_ARGLOG", argLog)

	reg := gateway.NewRegistry("", 0)
	aliases := gateway.NewAliasMap("")
	queue := gateway.NewQueue()
	bus := events.NewMemoryEventBus(events.MemoryBusConfig{})

	cfg := gateway.EngineConfig{
		Binary:       binary,
		WorkspaceDir: workDir,
		TempDir:      t.TempDir(),
		Idle:         gateway.DefaultIdleTimeouts(),
	}
	engine := gateway.NewEngine(cfg, reg, queue, aliases, bus)

	router := api.NewRouter(api.Dependencies{Engine: engine, Bus: bus, Version: "test"})
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		bus.Close()
		aliases.Close()
	})

	return &testGateway{server: server, engine: engine, argLog: argLog, workDir: workDir}
}

type sentMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (g *testGateway) send(t *testing.T, key, prompt string, regenerate bool) (*http.Response, error) {
	t.Helper()
	body, _ := json.Marshal(map[string]any{
		"model":    "sonnet",
		"stream":   false,
		"messages": []sentMessage{{Role: "user", Content: prompt}},
	})
	req, err := http.NewRequest(http.MethodPost, g.server.URL+"/v1/messages", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-session-key", key)
	if regenerate {
		req.Header.Set("x-regenerate", "true")
	}
	return http.DefaultClient.Do(req)
}

func (g *testGateway) sendAndDecode(t *testing.T, key, prompt string, regenerate bool) string {
	t.Helper()
	resp, err := g.send(t, key, prompt, regenerate)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope struct {
		Data struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.NotEmpty(t, envelope.Data.Content)
	return envelope.Data.Content[0].Text
}

func (g *testGateway) argLogLines(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(g.argLog)
	if err != nil {
		return nil
	}
	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// S1: a session continues across turns — the second turn recalls what the
// first one was told, and the first spawn uses a fresh session while the
// second resumes the same session UUID.
func TestBasicContinuity(t *testing.T) {
	g := newTestGateway(t)

	g.sendAndDecode(t, "k1", "Remember the number 424242.", false)
	reply := g.sendAndDecode(t, "k1", "What number?", false)
	assert.Contains(t, reply, "424242")

	lines := g.argLogLines(t)
	require.Len(t, lines, 2)
	firstMode, firstUUID, _ := strings.Cut(lines[0], ",")
	secondMode, secondUUID, _ := strings.Cut(lines[1], ",")
	assert.Equal(t, "new", firstMode)
	assert.Equal(t, "resume", secondMode)
	assert.Equal(t, firstUUID, secondUUID)
}

// S2: two independent session keys never see each other's history.
func TestIsolationAcrossKeys(t *testing.T) {
	g := newTestGateway(t)

	g.sendAndDecode(t, "kA", "My secret word is apple.", false)
	g.sendAndDecode(t, "kB", "My secret word is banana.", false)

	replyA := g.sendAndDecode(t, "kA", "What's my secret word?", false)
	replyB := g.sendAndDecode(t, "kB", "What's my secret word?", false)

	assert.Contains(t, replyA, "apple")
	assert.NotContains(t, replyA, "banana")
	assert.Contains(t, replyB, "banana")
	assert.NotContains(t, replyB, "apple")
}

// S3: a regenerated turn forks the session before the offending turn, so
// the assistant only ever sees what came before it — and the original
// transcript file is untouched on disk.
func TestRegenerateForksBeforeOffendingTurn(t *testing.T) {
	g := newTestGateway(t)

	g.sendAndDecode(t, "k3", "Secret is alpha.", false)
	g.sendAndDecode(t, "k3", "Secret is bravo.", false)

	reply := g.sendAndDecode(t, "k3", "List all secrets.", true)
	assert.Contains(t, reply, "alpha")
	assert.NotContains(t, reply, "bravo")

	lines := g.argLogLines(t)
	require.Len(t, lines, 3)
	_, firstUUID, _ := strings.Cut(lines[0], ",")
	_, thirdUUID, _ := strings.Cut(lines[2], ",")
	assert.NotEqual(t, firstUUID, thirdUUID, "regenerate must spawn a fresh forked session")

	original, err := os.Stat(filepath.Join(projectDir(t, g.workDir), firstUUID+".jsonl"))
	require.NoError(t, err)
	assert.Greater(t, original.Size(), int64(0))
}

// S4: tool_use traffic never reaches the client; only the surrounding text
// blocks do, re-indexed from zero.
func TestToolTrafficIsHidden(t *testing.T) {
	g := newTestGateway(t)

	resp, err := g.send(t, "k4", "[TOOLDEMO] Use the tool then answer.", false)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope struct {
		Data struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.Len(t, envelope.Data.Content, 1)
	assert.Equal(t, "text", envelope.Data.Content[0].Type)
	assert.Equal(t, "Result", envelope.Data.Content[0].Text)
}

// S4 (streaming form): the raw SSE timeline shows exactly the client-facing
// events, with no tool_use block and indices re-based at zero.
func TestToolTrafficIsHiddenStreaming(t *testing.T) {
	g := newTestGateway(t)

	body, _ := json.Marshal(map[string]any{
		"model":    "sonnet",
		"stream":   true,
		"messages": []sentMessage{{Role: "user", Content: "[TOOLDEMO] Use the tool then answer."}},
	})
	req, err := http.NewRequest(http.MethodPost, g.server.URL+"/v1/messages", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("x-session-key", "k4s")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var got []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			got = append(got, name)
		}
	}
	want := []string{
		"message_start",
		"content_block_start", "content_block_delta", "content_block_stop",
		"message_delta", "message_stop",
	}
	assert.Equal(t, want, got)
}

// S5: an in-flight request for a key is preempted by a regenerate request
// on the same key; the first child is killed, the second runs to
// completion, and the queue's active slot for the key ends up empty.
func TestPreemptionOnRegenerate(t *testing.T) {
	g := newTestGateway(t)
	t.Setenv("MOCKCLI_SLOW_MS", "5000")

	var firstStatus, secondStatus int
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		resp, err := g.send(t, "kP", "Run a long task (slow).", false)
		if err == nil {
			firstStatus = resp.StatusCode
			resp.Body.Close()
		}
	}()

	time.Sleep(300 * time.Millisecond)

	go func() {
		defer wg.Done()
		resp, err := g.send(t, "kP", "Quick answer.", true)
		if err == nil {
			secondStatus = resp.StatusCode
			resp.Body.Close()
		}
	}()

	wg.Wait()

	assert.Equal(t, http.StatusOK, firstStatus)
	assert.Equal(t, http.StatusOK, secondStatus)
	assert.False(t, g.engine.Queue.IsActive("kP"), "no run should remain active for the key")
}

// S6: a client that disconnects mid-stream gets its child killed promptly,
// and the session registry is not updated for the abandoned turn.
func TestDisconnectKillsChild(t *testing.T) {
	g := newTestGateway(t)
	t.Setenv("MOCKCLI_SLOW_MS", "5000")

	body, _ := json.Marshal(map[string]any{
		"model":    "sonnet",
		"stream":   true,
		"messages": []sentMessage{{Role: "user", Content: "Run a long task (slow)."}},
	})
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.server.URL+"/v1/messages", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("x-session-key", "kD")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)
	cancel()
	resp.Body.Close()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && g.engine.Queue.IsActive("kD") {
		time.Sleep(50 * time.Millisecond)
	}
	assert.False(t, g.engine.Queue.IsActive("kD"))

	_, ok := g.engine.Registry.Lookup("kD")
	assert.False(t, ok, "an abandoned turn must not be recorded in the registry")
}

// A CLI that answers and then exits non-zero (reporting a quota/credit
// condition this way) is a success: message_stop is still emitted exactly
// once and the turn is still recorded in the registry.
func TestNonZeroExitWithResultIsSuccess(t *testing.T) {
	g := newTestGateway(t)

	body, _ := json.Marshal(map[string]any{
		"model":    "sonnet",
		"stream":   true,
		"messages": []sentMessage{{Role: "user", Content: "Answer, then report a quota error (badexit)."}},
	})
	req, err := http.NewRequest(http.MethodPost, g.server.URL+"/v1/messages", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("x-session-key", "kBadExit")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			got = append(got, name)
		}
	}
	require.NotEmpty(t, got)
	assert.Equal(t, "message_stop", got[len(got)-1], "message_stop must still be emitted, and last")
	assert.Equal(t, 1, countEvent(got, "message_start"))
	assert.Equal(t, 1, countEvent(got, "message_stop"))

	_, ok := g.engine.Registry.Lookup("kBadExit")
	assert.True(t, ok, "a turn with a parseable result must be recorded even if the CLI exited non-zero")
}

func countEvent(events []string, name string) int {
	n := 0
	for _, e := range events {
		if e == name {
			n++
		}
	}
	return n
}

func projectDir(t *testing.T, workDir string) string {
	t.Helper()
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	encoded := strings.NewReplacer("/", "-", ".", "-").Replace(workDir)
	return filepath.Join(home, ".claude", "projects", encoded)
}
