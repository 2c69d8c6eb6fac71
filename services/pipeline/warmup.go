// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// warmupComplete tracks whether startup dependency checks (model
// backend reachable, stores healthy, model pulled) have finished.
var warmupComplete atomic.Bool

// IsWarmupComplete reports whether the service is ready for patch
// traffic.
func IsWarmupComplete() bool {
	return warmupComplete.Load()
}

// MarkWarmupComplete flips the readiness flag. Called once by the
// startup goroutine after all dependencies check out.
func MarkWarmupComplete() {
	warmupComplete.Store(true)
}

// ResetWarmupForTesting clears the readiness flag.
func ResetWarmupForTesting() {
	warmupComplete.Store(false)
}

// WarmupGuardMiddleware rejects patch traffic with 503 until warmup
// completes. Health and readiness endpoints are registered outside
// the guarded group so probes keep working during startup.
func WarmupGuardMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsWarmupComplete() {
			c.Header("Retry-After", "5")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{
				Error: "service is warming up, try again shortly",
				Code:  "WARMUP_IN_PROGRESS",
			})
			return
		}
		c.Next()
	}
}
