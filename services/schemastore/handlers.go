// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schemastore

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the JSON error envelope for HTTP failures.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	service *Service
}

// NewHandlers creates the handler set for a schema store Service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// HandleList serves GET /v1/schemas.
func (h *Handlers) HandleList(c *gin.Context) {
	names, err := h.service.ListNames()
	if err != nil {
		slog.Error("schema listing failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "could not list schemas",
			Code:  "LIST_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": names})
}

// HandleGet serves GET /v1/schemas/:name.
func (h *Handlers) HandleGet(c *gin.Context) {
	name := c.Param("name")
	raw, err := h.service.Load(name)
	if err != nil {
		if errors.Is(err, ErrUnknownService) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "no schema for service " + name,
				Code:  "UNKNOWN_SERVICE",
			})
			return
		}
		slog.Error("schema read failed",
			slog.String("service", name),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "could not read schema",
			Code:  "READ_FAILED",
		})
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

// HandleHealth is the liveness probe.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RegisterRoutes attaches the schema store API to a router group.
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	rg.GET("/health", handlers.HandleHealth)
	v1 := rg.Group("/v1")
	{
		v1.GET("/schemas", handlers.HandleList)
		v1.GET("/schemas/:name", handlers.HandleGet)
	}
}
