// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command valuestore serves and persists per-service configuration
// documents as *.values.json files.
//
// Usage:
//
//	go run ./cmd/valuestore -dir ./values
//	go run ./cmd/valuestore -dir ./values -port 8082
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/ConfigPilot/services/valuestore"
)

func main() {
	port := flag.Int("port", 8082, "Port to listen on")
	dir := flag.String("dir", "./values", "Directory containing *.values.json files")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	svc, err := valuestore.NewService(*dir)
	if err != nil {
		slog.Error("Failed to open values directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if *debug {
		router.Use(gin.Logger())
	}
	valuestore.RegisterRoutes(router.Group(""), valuestore.NewHandlers(svc))

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Starting ConfigPilot values store",
		slog.String("address", addr),
		slog.String("dir", *dir),
	)
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
