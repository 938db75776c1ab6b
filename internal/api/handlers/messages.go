// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/valyala/bytebufferpool"

	"github.com/groupsio/claudegw/internal/api/version"
	"github.com/groupsio/claudegw/internal/gateway"
)

const messagesEndpoint = "messages.create"

const stopCommand = "/stop"

// MessagesHandler serves POST /v1/messages.
type MessagesHandler struct {
	Engine       *gateway.Engine
	ImageTempDir string
}

// NewMessagesHandler creates a messages handler.
func NewMessagesHandler(engine *gateway.Engine, imageTempDir string) *MessagesHandler {
	return &MessagesHandler{Engine: engine, ImageTempDir: imageTempDir}
}

func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req gateway.MessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrInvalidRequest, "request body must be valid JSON")
		return
	}

	prompt, images, err := gateway.LastUserText(&req)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrInvalidRequest, err.Error())
		return
	}

	systemText := gateway.SystemText(req.System)
	identity := gateway.ExtractIdentity(systemText)

	key := r.Header.Get("x-session-key")
	if key == "" {
		key = gateway.SessionKeyFor(systemText, identity)
	}
	regenerate := strings.EqualFold(r.Header.Get("x-regenerate"), "true")

	if strings.TrimSpace(prompt) == stopCommand {
		h.Engine.HandleStop(key)
		h.writeStopReply(w, req, regenerate)
		return
	}

	var imagePaths []string
	if len(images) > 0 {
		dir, err := gateway.TempImageDir(h.ImageTempDir, key)
		if err == nil {
			if paths, err := gateway.WriteImageFiles(dir, images); err == nil {
				imagePaths = paths
				defer os.RemoveAll(dir)
			}
		}
	}

	runReq := gateway.RunRequest{
		SessionKey: key,
		Identity:   identity,
		Prompt:     gateway.StripGatewayTags(prompt),
		ImagePaths: imagePaths,
		SystemText: gateway.StripGatewayTags(systemText),
		AppendText: gateway.StripGatewayTags(gateway.TurnMetadataFragment(systemText)),
		Model:      gateway.NormalizeModel(req.Model),
		MessageID:  "msg_" + gateway.NewForkUUID(),
		Stream:     req.Stream,
		Regenerate: regenerate,
	}

	if req.Stream {
		h.runStreaming(w, r, runReq)
		return
	}
	h.runCollected(w, r, runReq)
}

func (h *MessagesHandler) writeStopReply(w http.ResponseWriter, req gateway.MessagesRequest, regenerate bool) {
	resp := gateway.MessagesResponse{
		ID:         "msg_" + gateway.NewForkUUID(),
		Type:       "message",
		Role:       "assistant",
		Model:      gateway.NormalizeModel(req.Model),
		Content:    []gateway.OutputBlock{{Type: "text", Text: "Stopped."}},
		StopReason: "end_turn",
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (h *MessagesHandler) runStreaming(w http.ResponseWriter, r *http.Request, runReq gateway.RunRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, ErrAPIError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Request-Id", runReq.MessageID)
	w.WriteHeader(http.StatusOK)

	outcome, err := h.Engine.Run(r.Context(), runReq, func(ev gateway.SSEEvent) {
		writeSSEFrame(w, ev)
		flusher.Flush()
	})
	if err != nil {
		writeSSEFrame(w, gateway.SSEEvent{
			Event: "error",
			Data:  []byte(`{"type":"error","error":{"type":"api_error","message":"` + jsonEscape(err.Error()) + `"}}`),
		})
		flusher.Flush()
		return
	}
	if outcome.Err != nil {
		writeSSEFrame(w, gateway.SSEEvent{
			Event: "error",
			Data:  []byte(`{"type":"error","error":{"type":"api_error","message":"` + jsonEscape(outcome.Err.Error()) + `"}}`),
		})
		flusher.Flush()
	}
}

func (h *MessagesHandler) runCollected(w http.ResponseWriter, r *http.Request, runReq gateway.RunRequest) {
	collector := gateway.NewCollector()
	outcome, err := h.Engine.Run(r.Context(), runReq, collector.Feed)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrAPIError, err.Error())
		return
	}
	if outcome.Err != nil {
		WriteError(w, http.StatusInternalServerError, ErrAPIError, outcome.Err.Error())
		return
	}

	resp := gateway.MessagesResponse{
		ID:         outcome.MessageID,
		Type:       "message",
		Role:       "assistant",
		Model:      runReq.Model,
		Content:    collector.Build(),
		StopReason: "end_turn",
		Usage: gateway.Usage{
			InputTokens:  outcome.InputTokens,
			OutputTokens: outcome.OutputTokens,
		},
	}

	apiVersion := version.FromContext(r.Context())
	WriteJSON(w, http.StatusOK, version.Transform(apiVersion, messagesEndpoint, resp))
}

// writeSSEFrame serializes one SSE event using a pooled buffer: the
// streaming hot path otherwise allocates one []byte per event.
func writeSSEFrame(w http.ResponseWriter, ev gateway.SSEEvent) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.WriteString("event: ")
	buf.WriteString(ev.Event)
	buf.WriteString("\ndata: ")
	buf.Write(ev.Data)
	buf.WriteString("\n\n")
	w.Write(buf.B)
}

func jsonEscape(s string) string {
	b, _ := json.Marshal(s)
	if len(b) >= 2 {
		return string(b[1 : len(b)-1])
	}
	return s
}
