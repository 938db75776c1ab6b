// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"log"
	"path/filepath"

	ps "github.com/mitchellh/go-ps"
)

// logAlreadyInUse scans the process table for another instance of binary
// already running before the session lock it left behind is cleared. Best
// effort: a failure to enumerate processes is logged and ignored.
func logAlreadyInUse(binary string) {
	procs, err := ps.Processes()
	if err != nil {
		log.Printf("gateway: process scan for %q failed: %v", binary, err)
		return
	}
	want := filepath.Base(binary)
	for _, p := range procs {
		if p.Executable() == want {
			log.Printf("gateway: found running %s (pid %d, ppid %d) while clearing a stale session lock",
				want, p.Pid(), p.PPid())
		}
	}
}
