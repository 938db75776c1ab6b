// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/groupsio/claudegw/internal/gateway"
)

// DebugHandler serves GET /v1/debug/stream: an operator-only WebSocket
// that mirrors the pre-translation CLI event stream for one session key,
// including the tool_use traffic the client-facing SSE timeline hides.
type DebugHandler struct {
	Engine *gateway.Engine
}

// NewDebugHandler creates a debug-stream handler.
func NewDebugHandler(engine *gateway.Engine) *DebugHandler {
	return &DebugHandler{Engine: engine}
}

func (h *DebugHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		WriteError(w, http.StatusBadRequest, ErrInvalidRequest, "key query parameter required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch, cancel := h.Engine.Debug().Subscribe(key)
	defer cancel()

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(54 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
