// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os/exec"
)

// DeployHandler serves POST /deploy: a signed push webhook that launches a
// detached update script. It never blocks the HTTP response on the
// script's completion.
type DeployHandler struct {
	Secret        string
	ScriptPath    string
	DefaultBranch string
}

// NewDeployHandler creates a deploy webhook handler. An empty secret
// rejects every request (the webhook is disabled by default).
func NewDeployHandler(secret, scriptPath, defaultBranch string) *DeployHandler {
	if defaultBranch == "" {
		defaultBranch = "main"
	}
	return &DeployHandler{Secret: secret, ScriptPath: scriptPath, DefaultBranch: defaultBranch}
}

type pushPayload struct {
	Ref string `json:"ref"`
}

func (h *DeployHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrInvalidRequest, "unreadable body")
		return
	}

	if !h.validSignature(r, body) {
		WriteError(w, http.StatusUnauthorized, ErrUnauthorized, "signature mismatch")
		return
	}

	var push pushPayload
	if err := json.Unmarshal(body, &push); err != nil {
		WriteError(w, http.StatusBadRequest, ErrInvalidRequest, "malformed payload")
		return
	}

	if push.Ref != "refs/heads/"+h.DefaultBranch {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored", "ref": push.Ref})
		return
	}

	if h.ScriptPath != "" {
		cmd := exec.Command(h.ScriptPath)
		if err := cmd.Start(); err != nil {
			log.Printf("deploy: failed to launch update script: %v", err)
		} else {
			go cmd.Wait()
		}
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "deploying"})
}

func (h *DeployHandler) validSignature(r *http.Request, body []byte) bool {
	if h.Secret == "" {
		return false
	}
	header := r.Header.Get("X-Hub-Signature-256")
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	want, err := hex.DecodeString(header[len(prefix):])
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write(body)
	got := mac.Sum(nil)
	return subtle.ConstantTimeCompare(want, got) == 1
}
