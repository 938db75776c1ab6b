// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ParseError is returned for a malformed or incomplete request body.
type ParseError struct{ Msg string }

func (e *ParseError) Error() string { return e.Msg }

// LastUserText returns the text of the last user-role message in req,
// along with any image content blocks it carries. Earlier messages are
// ignored: the CLI preserves its own conversation history across resume,
// so this gateway never replays the full transcript on each turn.
func LastUserText(req *MessagesRequest) (string, []InputContentBlock, error) {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		m := req.Messages[i]
		if m.Role != "user" {
			continue
		}
		text, blocks := decodeContent(m.Content)
		return text, blocks, nil
	}
	return "", nil, &ParseError{Msg: "no user message present"}
}

func decodeContent(raw json.RawMessage) (string, []InputContentBlock) {
	var asString string
	if json.Unmarshal(raw, &asString) == nil {
		return asString, nil
	}

	var blocks []InputContentBlock
	if json.Unmarshal(raw, &blocks) != nil {
		return "", nil
	}

	var texts []string
	var images []InputContentBlock
	for _, b := range blocks {
		switch b.Type {
		case "text":
			texts = append(texts, b.Text)
		case "image":
			images = append(images, b)
		}
	}
	return strings.Join(texts, "\n"), images
}

// SystemText decodes a request's system field, which may be a bare
// string, an array of {type:"text", text} blocks, or an object with a
// .text field.
func SystemText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var asString string
	if json.Unmarshal(raw, &asString) == nil {
		return asString
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if json.Unmarshal(raw, &blocks) == nil {
		var parts []string
		for _, b := range blocks {
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}

	var obj struct {
		Text string `json:"text"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.Text
	}
	return ""
}

// WriteImageFiles decodes each image block's base64 payload to a file
// under dir and returns the written paths in order. dir is created if
// necessary; the caller owns removing it once the run completes.
func WriteImageFiles(dir string, blocks []InputContentBlock) ([]string, error) {
	if len(blocks) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}

	var paths []string
	for i, b := range blocks {
		if b.Source == nil || b.Source.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(b.Source.Data)
		if err != nil {
			continue
		}
		ext := extensionFor(b.Source.MediaType)
		name := filepath.Join(dir, fmt.Sprintf("image-%d%s", i, ext))
		if err := os.WriteFile(name, data, 0o600); err != nil {
			return paths, fmt.Errorf("write image: %w", err)
		}
		paths = append(paths, name)
	}
	return paths, nil
}

func extensionFor(mediaType string) string {
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// TempImageDir returns a per-request scratch directory name, unique
// enough to never collide with a concurrent request on the same key.
func TempImageDir(base, key string) (string, error) {
	var rnd [8]byte
	if _, err := rand.Read(rnd[:]); err != nil {
		return "", err
	}
	return filepath.Join(base, fmt.Sprintf("%s-%x", key[:minInt(8, len(key))], rnd)), nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
