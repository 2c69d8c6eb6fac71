// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package valuestore

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

// NewHandlers creates the handler set for a values store Service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// HandleGet serves GET /v1/values/:name.
func (h *Handlers) HandleGet(c *gin.Context) {
	name := c.Param("name")
	doc, err := h.service.Load(name)
	if err != nil {
		if errors.Is(err, ErrUnknownService) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "no values for service " + name,
				Code:  "UNKNOWN_SERVICE",
			})
			return
		}
		slog.Error("values read failed",
			slog.String("service", name),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "could not read values",
			Code:  "READ_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, doc)
}

// HandlePut serves PUT /v1/values/:name.
func (h *Handlers) HandlePut(c *gin.Context) {
	name := c.Param("name")
	if !ValidName(name) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid service name " + name,
			Code:  "INVALID_NAME",
		})
		return
	}

	var doc map[string]any
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "body must be a JSON object: " + err.Error(),
			Code:  "INVALID_BODY",
		})
		return
	}

	if err := h.service.Store(name, doc); err != nil {
		slog.Error("values write failed",
			slog.String("service", name),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "could not persist values",
			Code:  "WRITE_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stored", "service": name})
}

// HandleHealth is the liveness probe.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RegisterRoutes attaches the values store API to a router group.
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	rg.GET("/health", handlers.HandleHealth)
	v1 := rg.Group("/v1")
	{
		v1.GET("/values/:name", handlers.HandleGet)
		v1.PUT("/values/:name", handlers.HandlePut)
	}
}
