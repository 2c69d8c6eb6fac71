// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store provides HTTP clients for the schema store and values
// store services.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates the store has no entry for the service.
	ErrNotFound = errors.New("store: not found")

	// ErrUnavailable indicates the store could not be reached or
	// answered with a server error.
	ErrUnavailable = errors.New("store: unavailable")
)

const clientTimeout = 10 * time.Second

// =============================================================================
// Schema Store Client
// =============================================================================

// SchemaClient talks to the schema store service.
//
// Thread Safety: SchemaClient is safe for concurrent use.
type SchemaClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewSchemaClient creates a client for the schema store at baseURL.
func NewSchemaClient(baseURL string) *SchemaClient {
	return &SchemaClient{
		httpClient: &http.Client{Timeout: clientTimeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// GetSchema fetches and parses the schema for a service.
//
// Outputs:
//   - []byte: the raw schema JSON, for callers that re-serve it.
//   - error: ErrNotFound for unknown services, ErrUnavailable for
//     transport and server failures.
func (c *SchemaClient) GetSchema(ctx context.Context, service string) ([]byte, error) {
	return getJSON(ctx, c.httpClient, c.baseURL+"/v1/schemas/"+url.PathEscape(service))
}

// ListServices returns the names of every schema the store serves.
func (c *SchemaClient) ListServices(ctx context.Context) ([]string, error) {
	raw, err := getJSON(ctx, c.httpClient, c.baseURL+"/v1/schemas")
	if err != nil {
		return nil, err
	}
	var payload struct {
		Services []string `json:"services"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("store: parsing service list: %w", err)
	}
	return payload.Services, nil
}

// Healthy probes the store's health endpoint.
func (c *SchemaClient) Healthy(ctx context.Context) error {
	return probeHealth(ctx, c.httpClient, c.baseURL+"/health")
}

// =============================================================================
// Values Store Client
// =============================================================================

// ValuesClient talks to the values store service.
//
// Thread Safety: ValuesClient is safe for concurrent use.
type ValuesClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewValuesClient creates a client for the values store at baseURL.
func NewValuesClient(baseURL string) *ValuesClient {
	return &ValuesClient{
		httpClient: &http.Client{Timeout: clientTimeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// GetValues fetches the current configuration document for a service.
func (c *ValuesClient) GetValues(ctx context.Context, service string) (map[string]any, error) {
	raw, err := getJSON(ctx, c.httpClient, c.baseURL+"/v1/values/"+url.PathEscape(service))
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("store: parsing values document: %w", err)
	}
	return doc, nil
}

// PutValues replaces the configuration document for a service.
func (c *ValuesClient) PutValues(ctx context.Context, service string, doc map[string]any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: marshaling values document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.baseURL+"/v1/values/"+url.PathEscape(service), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("store: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: service %q", ErrNotFound, service)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("store: put rejected with status %d", resp.StatusCode)
	}
	return nil
}

// Healthy probes the store's health endpoint.
func (c *ValuesClient) Healthy(ctx context.Context) error {
	return probeHealth(ctx, c.httpClient, c.baseURL+"/health")
}

// =============================================================================
// Shared Helpers
// =============================================================================

func getJSON(ctx context.Context, client *http.Client, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("store: creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("store: reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, fullURL)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("store: unexpected status %d from %s", resp.StatusCode, fullURL)
	}
	return body, nil
}

func probeHealth(ctx context.Context, client *http.Client, fullURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("store: creating health request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}
