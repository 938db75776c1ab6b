// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import "sync"

// debugHub fans out pre-translation CLI events to operator subscribers of
// a single session key, for the /v1/debug/stream endpoint. It never
// touches the client-facing SSE timeline: tool_use traffic the translator
// hides from Messages-API clients is visible here.
type debugHub struct {
	mu   sync.Mutex
	subs map[string]map[chan CLIEvent]struct{}
}

func newDebugHub() *debugHub {
	return &debugHub{subs: make(map[string]map[chan CLIEvent]struct{})}
}

// Subscribe registers a buffered channel of raw CLI events for key. The
// caller must call the returned cancel func when done reading.
func (h *debugHub) Subscribe(key string) (ch chan CLIEvent, cancel func()) {
	ch = make(chan CLIEvent, 32)
	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[chan CLIEvent]struct{})
	}
	h.subs[key][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs[key], ch)
		h.mu.Unlock()
		close(ch)
	}
}

func (h *debugHub) broadcast(key string, ev CLIEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[key] {
		select {
		case ch <- ev:
		default:
			// A slow operator subscriber drops events rather than
			// blocking the run it's watching.
		}
	}
}
