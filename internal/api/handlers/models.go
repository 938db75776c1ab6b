// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import "net/http"

type modelInfo struct {
	ID string `json:"id"`
}

var advertisedModels = []modelInfo{
	{ID: "opus"},
	{ID: "sonnet"},
	{ID: "haiku"},
}

// Models handles GET /v1/models: a static advertisement of the three
// model tiers the gateway accepts (see gateway.NormalizeModel).
func Models(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, advertisedModels)
}
