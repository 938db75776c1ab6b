// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"fmt"
	"log"

	"github.com/groupsio/claudegw/internal/claudecli"
)

// Regenerate forks the session stored under key's current UUID at the
// last real user turn and records the resulting fresh UUID in the
// registry, so the next resume picks up the fork instead of the
// original. The original JSONL file is left untouched on disk.
func Regenerate(reg *Registry, workspaceDir, key, identity string) (string, error) {
	sess, ok := reg.Lookup(key)
	if !ok {
		return "", fmt.Errorf("no existing session for key")
	}
	if !claudecli.Exists(workspaceDir, sess.UUID) {
		return "", fmt.Errorf("session %s not found on disk", sess.UUID)
	}

	result, err := claudecli.Fork(workspaceDir, sess.UUID)
	if err != nil {
		return "", fmt.Errorf("fork session: %w", err)
	}

	log.Printf("gateway: forked session %s -> %s (kept %d, removed %d)",
		sess.UUID, result.NewUUID, result.Kept, result.Removed)

	reg.Record(key, result.NewUUID, identity)
	return result.NewUUID, nil
}
