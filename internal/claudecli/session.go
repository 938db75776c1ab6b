// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package claudecli reads and forks the CLI's own on-disk JSONL session
// format. The gateway never writes to a session file while its owning
// child is running; it only reads (to check resumability) and forks (on
// regenerate).
package claudecli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Line is a single entry in a CLI session JSONL file.
type Line struct {
	Type           string          `json:"type"`
	SessionID      string          `json:"sessionId"`
	UUID           string          `json:"uuid"`
	ParentUUID     string          `json:"parentUuid,omitempty"`
	Message        json.RawMessage `json:"message"`
	CWD            string          `json:"cwd"`
	GitBranch      string          `json:"gitBranch,omitempty"`
	Version        string          `json:"version"`
	Timestamp      string          `json:"timestamp"`
	IsSidechain    bool            `json:"isSidechain"`
	UserType       string          `json:"userType"`
	PermissionMode string          `json:"permissionMode,omitempty"`
}

// messageRole is the minimal shape needed to classify a line without
// decoding its full content-block payload.
type messageRole struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ProjectDir returns the CLI's per-workspace storage directory, encoding
// workspacePath the way the CLI does: "/" and "." become "-".
func ProjectDir(workspacePath string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	encoded := strings.NewReplacer("/", "-", ".", "-").Replace(workspacePath)
	return filepath.Join(home, ".claude", "projects", encoded), nil
}

// SessionPath returns the JSONL path for a given session UUID under workspacePath.
func SessionPath(workspacePath, sessionUUID string) (string, error) {
	dir, err := ProjectDir(workspacePath)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, sessionUUID+".jsonl"), nil
}

// Exists reports whether a session JSONL file is present on disk.
func Exists(workspacePath, sessionUUID string) bool {
	path, err := SessionPath(workspacePath, sessionUUID)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Delete removes a session JSONL file, used to clear an "already in use"
// lock before respawning with a fresh session id. Missing files are not
// an error.
func Delete(workspacePath, sessionUUID string) error {
	path, err := SessionPath(workspacePath, sessionUUID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// ReadLines loads every entry of a session JSONL file in file order.
func ReadLines(workspacePath, sessionUUID string) ([]Line, error) {
	path, err := SessionPath(workspacePath, sessionUUID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []Line
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var line Line
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan session file: %w", err)
	}
	return lines, nil
}

// isRealUserTurn reports whether line is a genuine user turn: type and
// role "user", not a sidechain entry, and not a line whose content is
// purely a tool_result carrier (the CLI represents tool results as
// synthetic user turns that aren't something a human typed). Compact
// summaries are not told apart from other user turns: Line carries no
// field that marks them.
func isRealUserTurn(line Line) bool {
	if line.Type != "user" {
		return false
	}
	if line.IsSidechain {
		return false
	}

	var msg messageRole
	if err := json.Unmarshal(line.Message, &msg); err != nil {
		return false
	}
	if msg.Role != "user" {
		return false
	}

	switch content := msg.Content.(type) {
	case string:
		return content != ""
	case []any:
		for _, item := range content {
			block, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := block["type"].(string); t != "tool_result" {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// ForkResult describes a completed regeneration fork.
type ForkResult struct {
	NewUUID string
	Kept    int
	Removed int
}

// Fork truncates the stored conversation at the last real user turn: that
// turn and every descendant (by parentUuid chain) is dropped, along with
// an immediately preceding file-history-snapshot entry. The surviving
// prefix is written to a new JSONL file under a freshly generated UUID;
// the original file is left untouched.
func Fork(workspacePath, sessionUUID string) (*ForkResult, error) {
	lines, err := ReadLines(workspacePath, sessionUUID)
	if err != nil {
		return nil, err
	}

	cutIdx := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if isRealUserTurn(lines[i]) {
			cutIdx = i
			break
		}
	}
	if cutIdx == -1 {
		return nil, fmt.Errorf("no real user turn found to fork at")
	}

	removeUUIDs := map[string]bool{lines[cutIdx].UUID: true}
	for _, line := range lines[cutIdx+1:] {
		if removeUUIDs[line.ParentUUID] {
			removeUUIDs[line.UUID] = true
		}
	}

	// Drop a file-history-snapshot line immediately preceding the cut, if present.
	dropSnapshotAt := -1
	if cutIdx > 0 && lines[cutIdx-1].Type == "file-history-snapshot" {
		dropSnapshotAt = cutIdx - 1
	}

	kept := make([]Line, 0, len(lines))
	for i, line := range lines {
		if removeUUIDs[line.UUID] || i == dropSnapshotAt {
			continue
		}
		kept = append(kept, line)
	}

	newUUID := uuid.New().String()
	for i := range kept {
		kept[i].SessionID = newUUID
	}

	dir, err := ProjectDir(workspacePath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create project dir: %w", err)
	}
	newPath := filepath.Join(dir, newUUID+".jsonl")

	f, err := os.Create(newPath)
	if err != nil {
		return nil, fmt.Errorf("create forked session file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	for _, line := range kept {
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("write forked line: %w", err)
		}
	}

	return &ForkResult{
		NewUUID: newUUID,
		Kept:    len(kept),
		Removed: len(lines) - len(kept),
	}, nil
}
