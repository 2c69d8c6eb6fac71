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
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/ConfigPilot/services/pipeline/datatypes"
)

// ErrorResponse is the JSON error envelope for HTTP failures.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// PatchRequestBody is the POST /v1/patch payload.
type PatchRequestBody struct {
	// Input is the natural language instruction.
	Input string `json:"input" binding:"required"`

	// Service optionally pins the target service.
	Service string `json:"service,omitempty"`
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	service *Service
}

// NewHandlers creates the handler set for a pipeline Service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// HandlePatch processes one natural language patch request.
//
// Description:
//
//	POST /v1/patch. The response mirrors datatypes.PatchResult. HTTP
//	status reflects the outcome class: 200 applied, 422 for requests
//	the pipeline understood but rejected, 400 for requests it could
//	not interpret, 503 for dependency outages.
func (h *Handlers) HandlePatch(c *gin.Context) {
	requestID := getOrCreateRequestID(c)

	var body PatchRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_BODY",
		})
		return
	}
	if strings.TrimSpace(body.Input) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "input must not be empty",
			Code:  "INVALID_BODY",
		})
		return
	}

	result := h.service.Handle(c.Request.Context(), datatypes.PatchRequest{
		RequestID: requestID,
		Utterance: body.Input,
		Service:   body.Service,
	})

	c.JSON(statusForResult(result), result)
}

// HandleHistory serves the audit trail for one service.
//
// GET /v1/patch/history/:service?limit=N
func (h *Handlers) HandleHistory(c *gin.Context) {
	service := c.Param("service")
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "limit must be an integer between 1 and 500",
				Code:  "INVALID_LIMIT",
			})
			return
		}
		limit = parsed
	}

	records, err := h.service.History(c.Request.Context(), service, limit)
	if err != nil {
		slog.Error("history read failed",
			slog.String("service", service),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "could not read patch history",
			Code:  "HISTORY_READ_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"service": service,
		"records": records,
	})
}

// HandleServices lists the services the schema store knows.
//
// GET /v1/services
func (h *Handlers) HandleServices(c *gin.Context) {
	services, err := h.service.Services(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "schema store unavailable",
			Code:  "SCHEMA_STORE_DOWN",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": services})
}

// HandleHealth is the liveness probe.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady is the readiness probe; it reports warming until the
// startup checks finish.
func (h *Handlers) HandleReady(c *gin.Context) {
	if !IsWarmupComplete() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "warming"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// statusForResult maps the pipeline outcome to an HTTP status.
func statusForResult(result *datatypes.PatchResult) int {
	if result.Applied {
		return http.StatusOK
	}
	if result.Error == nil {
		return http.StatusInternalServerError
	}
	switch result.Error.Kind {
	case datatypes.KindUnidentified,
		datatypes.KindAmbiguousPath,
		datatypes.KindNoSuchField:
		return http.StatusBadRequest
	case datatypes.KindTypeMismatch,
		datatypes.KindConstraintViolation,
		datatypes.KindPathNotInSchema:
		return http.StatusUnprocessableEntity
	case datatypes.KindModelUnavailable,
		datatypes.KindSchemaUnavailable,
		datatypes.KindValuesUnavailable:
		return http.StatusServiceUnavailable
	case datatypes.KindNoJSONFound,
		datatypes.KindMalformedJSON:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// getOrCreateRequestID returns the inbound X-Request-ID or mints one.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
