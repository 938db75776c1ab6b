// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import "net/http"

var gatewayFeatures = []string{
	"messages",
	"streaming",
	"session-resume",
	"regenerate",
	"tool-filtering",
}

type healthResponse struct {
	Status         string   `json:"status"`
	Version        string   `json:"version"`
	Features       []string `json:"features"`
	MonitorClients int      `json:"monitorClients"`
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	Version string
	Events  *EventHandler
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(version string, eventHandler *EventHandler) *HealthHandler {
	return &HealthHandler{Version: version, Events: eventHandler}
}

// Health writes the liveness + feature report.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if h.Events != nil {
		clients = h.Events.ClientCount()
	}
	WriteJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		Version:        h.Version,
		Features:       gatewayFeatures,
		MonitorClients: clients,
	})
}
