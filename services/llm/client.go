// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides HTTP clients for text generation backends. The
// default backend is a local Ollama server; an OpenAI-compatible
// client is available for hosted deployments.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrUnavailable indicates the model backend could not be reached or
// did not answer in time. Callers treat it as a transient outage, not
// a bad response.
var ErrUnavailable = errors.New("llm: model backend unavailable")

// Message is one turn of a conversation sent to a chat-style backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams carries optional per-request generation settings.
// Nil members fall back to backend defaults.
type GenerationParams struct {
	Temperature *float32
	MaxTokens   *int
	TopP        *float32
	Stop        []string

	// KeepAlive controls how long an Ollama backend keeps the model
	// loaded after the request ("5m", "-1"). Ignored by other backends.
	KeepAlive string

	// ModelOverride selects a model other than the client default.
	ModelOverride string
}

// Client is the minimal generation surface the patch pipeline needs.
//
// Thread Safety: implementations must be safe for concurrent use.
type Client interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// NewFromEnv builds a Client from the MODEL_PROVIDER environment
// variable. "ollama" (and unset) selects OllamaClient; "openai"
// selects OpenAIClient.
func NewFromEnv() (Client, error) {
	provider := os.Getenv("MODEL_PROVIDER")
	switch provider {
	case "", "ollama":
		return NewOllamaClient(), nil
	case "openai":
		return NewOpenAIClient()
	default:
		return nil, fmt.Errorf("llm: unknown MODEL_PROVIDER %q", provider)
	}
}

// Float32Ptr returns a pointer to v. Helper for building GenerationParams.
func Float32Ptr(v float32) *float32 { return &v }

// IntPtr returns a pointer to v. Helper for building GenerationParams.
func IntPtr(v int) *int { return &v }
