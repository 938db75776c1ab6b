// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/groupsio/claudegw/internal/api/handlers"
)

// Recovery is middleware that recovers from panics. A panic mid-request
// here almost always means a child process or translator bug, not a client
// error, so every recovered request is reported the same way regardless of
// which handler raised it.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("panic recovered: %s %s: %v\n%s", r.Method, r.URL.Path, err, debug.Stack())
				handlers.WriteError(w, http.StatusInternalServerError, handlers.ErrAPIError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
