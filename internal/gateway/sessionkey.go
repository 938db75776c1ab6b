// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

var volatileMetadataRe = regexp.MustCompile(`\[\[reply_to_message_id:\s*\d+\]\]`)

// stableSystemText strips per-message volatile metadata (things that
// change turn to turn even within the same logical conversation) from a
// system prompt, leaving only the text that should be stable across turns
// from the same chat.
func stableSystemText(systemText string) string {
	return volatileMetadataRe.ReplaceAllString(systemText, "")
}

// SessionKeyFor derives the stable session key for a request: the stable
// system-prompt text plus the canonical identity, hashed. Two requests from
// the same logical chat produce the same key even as per-message metadata
// changes from turn to turn.
func SessionKeyFor(systemText, identity string) string {
	h := sha256.New()
	h.Write([]byte(stableSystemText(systemText)))
	h.Write([]byte{0})
	h.Write([]byte(identity))
	return hex.EncodeToString(h.Sum(nil))
}
