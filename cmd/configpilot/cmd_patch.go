// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// PatchRequest is the POST /v1/patch payload.
type PatchRequest struct {
	Input   string `json:"input"`
	Service string `json:"service,omitempty"`
}

// PatchResponse mirrors the pipeline's patch result.
type PatchResponse struct {
	RequestID  string `json:"request_id"`
	Applied    bool   `json:"applied"`
	Service    string `json:"service,omitempty"`
	Confidence string `json:"confidence,omitempty"`
	Path       string `json:"path,omitempty"`
	Value      any    `json:"value,omitempty"`
	Source     string `json:"source,omitempty"`
	Error      *struct {
		Stage   string `json:"stage"`
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// HistoryResponse is the GET /v1/patch/history/:service payload.
type HistoryResponse struct {
	Service string `json:"service"`
	Records []struct {
		RequestID string    `json:"request_id"`
		Utterance string    `json:"utterance"`
		Path      string    `json:"path,omitempty"`
		Value     any       `json:"value,omitempty"`
		Applied   bool      `json:"applied"`
		ErrorKind string    `json:"error_kind,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"records"`
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Minute}
}

func runPatchCommand(_ *cobra.Command, args []string) {
	instruction := strings.Join(args, " ")

	payload, err := json.Marshal(PatchRequest{Input: instruction, Service: patchService})
	if err != nil {
		fatalf("Error: %v", err)
	}

	resp, err := httpClient().Post(serverURL+"/v1/patch", "application/json", bytes.NewReader(payload))
	if err != nil {
		fatalf("Error: could not reach pipeline server at %s: %v", serverURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fatalf("Error: reading response: %v", err)
	}

	var result PatchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		fatalf("Error: unexpected response (%d): %s", resp.StatusCode, body)
	}

	if result.Applied {
		fmt.Printf("Applied to service '%s'\n", result.Service)
		fmt.Printf("  %s = %v\n", result.Path, result.Value)
		fmt.Printf("  (resolution: %s, field: %s)\n", result.Confidence, result.Source)
		return
	}

	if result.Error != nil {
		fmt.Printf("Not applied: %s\n", result.Error.Message)
		fmt.Printf("  stage: %s, kind: %s\n", result.Error.Stage, result.Error.Kind)
		if result.Service != "" {
			fmt.Printf("  service: %s\n", result.Service)
		}
	} else {
		fmt.Printf("Not applied (HTTP %d): %s\n", resp.StatusCode, body)
	}
}

func runServicesCommand(_ *cobra.Command, _ []string) {
	resp, err := httpClient().Get(serverURL + "/v1/services")
	if err != nil {
		fatalf("Error: could not reach pipeline server at %s: %v", serverURL, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Services []string `json:"services"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		fatalf("Error: unexpected response: %v", err)
	}
	if len(payload.Services) == 0 {
		fmt.Println("(no services registered)")
		return
	}
	for _, name := range payload.Services {
		fmt.Println(name)
	}
}

func runHistoryCommand(_ *cobra.Command, args []string) {
	service := args[0]
	url := fmt.Sprintf("%s/v1/patch/history/%s?limit=%d", serverURL, service, historyLimit)

	resp, err := httpClient().Get(url)
	if err != nil {
		fatalf("Error: could not reach pipeline server at %s: %v", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		fatalf("Error: HTTP %d: %s", resp.StatusCode, body)
	}

	var payload HistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		fatalf("Error: unexpected response: %v", err)
	}
	if len(payload.Records) == 0 {
		fmt.Printf("No patch history for '%s'\n", service)
		return
	}
	for _, rec := range payload.Records {
		status := "applied"
		if !rec.Applied {
			status = "failed (" + rec.ErrorKind + ")"
		}
		fmt.Printf("%s  %-30s %s\n", rec.CreatedAt.Format(time.RFC3339), status, rec.Utterance)
		if rec.Path != "" {
			fmt.Printf("%21s %s = %v\n", "", rec.Path, rec.Value)
		}
	}
}

func runGetCommand(_ *cobra.Command, args []string) {
	service := args[0]
	valuesURL := envOr("VALUES_STORE_URL", "http://localhost:8082")

	resp, err := httpClient().Get(valuesURL + "/v1/values/" + service)
	if err != nil {
		fatalf("Error: could not reach values store at %s: %v", valuesURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		fmt.Printf("No stored configuration for '%s'\n", service)
		return
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		fatalf("Error: HTTP %d: %s", resp.StatusCode, body)
	}

	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		fatalf("Error: unexpected response: %v", err)
	}
	pretty, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		fatalf("Error: %v", err)
	}
	fmt.Println(string(pretty))
}
