// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

// =============================================================================
// Ollama Wire Types
// =============================================================================

const defaultOllamaBaseURL = "http://localhost:11434"

type ollamaGenerateRequest struct {
	Model     string        `json:"model"`
	Prompt    string        `json:"prompt"`
	Stream    bool          `json:"stream"`
	KeepAlive string        `json:"keep_alive,omitempty"`
	Options   ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature *float32 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type ollamaPullRequest struct {
	Name string `json:"name"`
}

type ollamaPullEvent struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// =============================================================================
// Client Implementation
// =============================================================================

// OllamaClient implements Client against a local Ollama server using
// raw net/http.
//
// Description:
//
//	Uses the non-streaming /api/generate endpoint for text generation,
//	/api/tags for readiness probing, and /api/pull for model downloads.
//
// Thread Safety: OllamaClient is safe for concurrent use.
type OllamaClient struct {
	httpClient *http.Client
	model      string
	baseURL    string
}

// NewOllamaClient creates an OllamaClient from environment variables.
//
// Description:
//
//	Reads OLLAMA_BASE_URL and OLLAMA_MODEL from the environment.
//	Defaults to http://localhost:11434 and "llama3.2" respectively.
//
// Outputs:
//   - *OllamaClient: The configured client.
func NewOllamaClient() *OllamaClient {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	model := os.Getenv("OLLAMA_MODEL")
	if model == "" {
		model = "llama3.2"
		slog.Warn("OLLAMA_MODEL not set, defaulting to llama3.2")
	}
	slog.Info("Initializing Ollama client",
		slog.String("base_url", baseURL),
		slog.String("model", model),
	)
	return NewOllamaClientWithConfig(baseURL, model)
}

// NewOllamaClientWithConfig creates an OllamaClient with explicit
// configuration. Useful for testing against httptest servers.
func NewOllamaClientWithConfig(baseURL, model string) *OllamaClient {
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		model:      model,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// Model returns the client's default model name.
func (o *OllamaClient) Model() string { return o.model }

// Generate implements the Client interface.
//
// Description:
//
//	Sends a single non-streaming completion request to /api/generate
//	and returns the raw response text. Transport failures and timeouts
//	wrap ErrUnavailable so callers can distinguish outages from bad
//	model output.
//
// Inputs:
//   - ctx: Context for cancellation and timeout.
//   - prompt: The full prompt text.
//   - params: Generation parameters. MaxTokens maps to num_predict.
//
// Outputs:
//   - string: The model's response text.
//   - error: Non-nil if the request fails.
//
// Thread Safety: This method is safe for concurrent use.
func (o *OllamaClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	model := o.model
	if params.ModelOverride != "" {
		model = params.ModelOverride
	}

	slog.Debug("Generating text via Ollama",
		slog.String("model", model),
		slog.Int("prompt_len", len(prompt)),
	)

	reqPayload := ollamaGenerateRequest{
		Model:     model,
		Prompt:    prompt,
		Stream:    false,
		KeepAlive: params.KeepAlive,
		Options: ollamaOptions{
			Temperature: params.Temperature,
			NumPredict:  params.MaxTokens,
			TopP:        params.TopP,
			Stop:        params.Stop,
		},
	}

	reqBody, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("ollama: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/generate", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("ollama: creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama: %w: %v", ErrUnavailable, transportReason(err))
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama: reading response body: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", fmt.Errorf("ollama: %w: server returned status %d: %s",
			ErrUnavailable, resp.StatusCode, SafeLogString(string(bodyBytes)))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama: API returned status %d: %s",
			resp.StatusCode, SafeLogString(string(bodyBytes)))
	}

	var apiResp ollamaGenerateResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", fmt.Errorf("ollama: parsing response JSON: %w", err)
	}
	if apiResp.Error != "" {
		return "", fmt.Errorf("ollama: API error: %s", SafeLogString(apiResp.Error))
	}

	slog.Debug("Received Ollama response",
		slog.Bool("done", apiResp.Done),
		slog.Int("response_len", len(apiResp.Response)),
	)
	return apiResp.Response, nil
}

// WaitForReady polls /api/tags until the server answers or ctx expires.
//
// Description:
//
//	Intended for startup sequencing: Ollama can take a while to come up
//	after the host boots, and requests sent before then fail with
//	connection errors. Polls once per interval.
//
// Inputs:
//   - ctx: Bounds the total wait.
//   - interval: Delay between probes. Values below one second are
//     raised to one second.
//
// Outputs:
//   - error: nil once the server responds, otherwise ctx's error
//     wrapped with ErrUnavailable.
func (o *OllamaClient) WaitForReady(ctx context.Context, interval time.Duration) error {
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := o.probe(ctx); err == nil {
			slog.Info("Ollama server is ready", slog.String("base_url", o.baseURL))
			return nil
		} else {
			slog.Debug("Ollama not ready yet", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("ollama: %w: waiting for server: %v", ErrUnavailable, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (o *OllamaClient) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, "GET", o.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// HasModel reports whether the server already has name (or the
// client's default model when name is empty) in its local tag list.
func (o *OllamaClient) HasModel(ctx context.Context, name string) (bool, error) {
	if name == "" {
		name = o.model
	}
	req, err := http.NewRequestWithContext(ctx, "GET", o.baseURL+"/api/tags", nil)
	if err != nil {
		return false, fmt.Errorf("ollama: creating tags request: %w", err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("ollama: %w: %v", ErrUnavailable, transportReason(err))
	}
	defer resp.Body.Close()

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, fmt.Errorf("ollama: parsing tags response: %w", err)
	}
	for _, m := range tags.Models {
		if m.Name == name || strings.TrimSuffix(m.Name, ":latest") == name {
			return true, nil
		}
	}
	return false, nil
}

// EnsureModelPulled downloads the model via /api/pull if the server
// does not already have it.
//
// Description:
//
//	The pull endpoint streams newline-delimited JSON progress events
//	until the download completes. Progress is logged at Debug and the
//	final status at Info. Pulls of multi-gigabyte models can take
//	minutes, so callers should pass a generous ctx.
//
// Inputs:
//   - ctx: Bounds the entire pull.
//   - name: Model to pull; empty means the client default.
//
// Outputs:
//   - error: Non-nil when the pull fails or the stream reports an error.
func (o *OllamaClient) EnsureModelPulled(ctx context.Context, name string) error {
	if name == "" {
		name = o.model
	}

	present, err := o.HasModel(ctx, name)
	if err != nil {
		return err
	}
	if present {
		slog.Debug("Ollama model already present", slog.String("model", name))
		return nil
	}

	slog.Info("Pulling Ollama model", slog.String("model", name))

	reqBody, err := json.Marshal(ollamaPullRequest{Name: name})
	if err != nil {
		return fmt.Errorf("ollama: marshaling pull request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/pull", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("ollama: creating pull request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama: %w: %v", ErrUnavailable, transportReason(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama: pull returned status %d: %s",
			resp.StatusCode, SafeLogString(string(bodyBytes)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lastStatus := ""
	for scanner.Scan() {
		var event ollamaPullEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		if event.Error != "" {
			return fmt.Errorf("ollama: pull failed: %s", SafeLogString(event.Error))
		}
		if event.Status != "" && event.Status != lastStatus {
			slog.Debug("Ollama pull progress",
				slog.String("model", name),
				slog.String("status", event.Status),
			)
			lastStatus = event.Status
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ollama: reading pull stream: %w", err)
	}

	slog.Info("Ollama model pull complete", slog.String("model", name))
	return nil
}

// transportReason unwraps common transport failures to a short cause
// string suitable for wrapping under ErrUnavailable.
func transportReason(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "request timed out"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "deadline exceeded"
	}
	return err.Error()
}
