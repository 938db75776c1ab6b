// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import "encoding/json"

// StreamParser extracts complete JSON objects from a byte stream that is
// usually but not always newline-delimited. The CLI occasionally emits two
// objects back to back with no separator, so line-splitting on its own
// would corrupt the stream; this tracks brace depth and string/escape state
// instead.
type StreamParser struct {
	buf        []byte
	depth      int
	inString   bool
	escapeNext bool
	start      int // offset of the current candidate object, -1 if none open
}

// NewStreamParser returns an empty parser ready to accept chunks.
func NewStreamParser() *StreamParser {
	return &StreamParser{start: -1}
}

// Feed appends a chunk and returns every complete JSON object it completes,
// in order. Objects that fail to unmarshal are dropped silently; a partial
// trailing object is retained internally for the next call.
func (p *StreamParser) Feed(chunk []byte) []json.RawMessage {
	var out []json.RawMessage

	for _, b := range chunk {
		p.buf = append(p.buf, b)

		if p.escapeNext {
			p.escapeNext = false
			continue
		}

		if p.inString {
			switch b {
			case '\\':
				p.escapeNext = true
			case '"':
				p.inString = false
			}
			continue
		}

		switch b {
		case '"':
			p.inString = true
		case '{':
			if p.depth == 0 {
				p.start = len(p.buf) - 1
			}
			p.depth++
		case '}':
			if p.depth == 0 {
				// Stray closing brace outside any object; ignore.
				continue
			}
			p.depth--
			if p.depth == 0 && p.start >= 0 {
				candidate := p.buf[p.start:len(p.buf)]
				if msg := parseCandidate(candidate); msg != nil {
					out = append(out, msg)
				}
				p.buf = p.buf[len(p.buf):]
				p.start = -1
			}
		}
	}

	return out
}

func parseCandidate(candidate []byte) json.RawMessage {
	cp := make([]byte, len(candidate))
	copy(cp, candidate)
	var probe json.RawMessage
	if err := json.Unmarshal(cp, &probe); err != nil {
		return nil
	}
	return probe
}
