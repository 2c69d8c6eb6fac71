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

import "github.com/gin-gonic/gin"

// RegisterRoutes attaches the pipeline's HTTP API to a router group.
//
// Description:
//
//	Patch submission sits behind the warmup guard; probes and reads
//	do not, so health checks and history stay available while the
//	model backend is still coming up.
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	rg.GET("/health", handlers.HandleHealth)
	rg.GET("/ready", handlers.HandleReady)

	v1 := rg.Group("/v1")
	{
		v1.GET("/services", handlers.HandleServices)
		v1.GET("/patch/history/:service", handlers.HandleHistory)

		guarded := v1.Group("")
		guarded.Use(WarmupGuardMiddleware())
		{
			guarded.POST("/patch", handlers.HandlePatch)
		}
	}
}
