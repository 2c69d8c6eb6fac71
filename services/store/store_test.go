// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSchemaClient_GetSchema(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/schemas/chat":
			w.Write([]byte(`{"type": "object", "properties": {"motd": {"type": "string"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewSchemaClient(server.URL)

	raw, err := client.GetSchema(context.Background(), "chat")
	if err != nil {
		t.Fatalf("GetSchema failed: %v", err)
	}
	if !json.Valid(raw) {
		t.Error("GetSchema returned invalid JSON")
	}

	_, err = client.GetSchema(context.Background(), "billing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestSchemaClient_ListServices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/schemas" {
			t.Errorf("path = %q, want /v1/schemas", r.URL.Path)
		}
		w.Write([]byte(`{"services": ["chat", "matchmaking", "tournament"]}`))
	}))
	defer server.Close()

	client := NewSchemaClient(server.URL)
	services, err := client.ListServices(context.Background())
	if err != nil {
		t.Fatalf("ListServices failed: %v", err)
	}
	if len(services) != 3 || services[0] != "chat" {
		t.Errorf("services = %v", services)
	}
}

func TestSchemaClient_ServerErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewSchemaClient(server.URL)
	_, err := client.GetSchema(context.Background(), "chat")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestSchemaClient_ConnectionRefusedIsUnavailable(t *testing.T) {
	client := NewSchemaClient("http://127.0.0.1:1")
	_, err := client.GetSchema(context.Background(), "chat")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestValuesClient_GetValues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/values/chat" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"motd": "hello", "max_message_length": 500}`))
	}))
	defer server.Close()

	client := NewValuesClient(server.URL)
	doc, err := client.GetValues(context.Background(), "chat")
	if err != nil {
		t.Fatalf("GetValues failed: %v", err)
	}
	if doc["motd"] != "hello" {
		t.Errorf("motd = %v, want hello", doc["motd"])
	}
	if doc["max_message_length"] != float64(500) {
		t.Errorf("max_message_length = %v, want 500", doc["max_message_length"])
	}
}

func TestValuesClient_PutValues(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %q, want PUT", r.Method)
		}
		if r.URL.Path != "/v1/values/chat" {
			t.Errorf("path = %q, want /v1/values/chat", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewValuesClient(server.URL)
	doc := map[string]any{"motd": "updated"}
	if err := client.PutValues(context.Background(), "chat", doc); err != nil {
		t.Fatalf("PutValues failed: %v", err)
	}
	if received["motd"] != "updated" {
		t.Errorf("server received %v", received)
	}
}

func TestValuesClient_PutValues_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewValuesClient(server.URL)
	err := client.PutValues(context.Background(), "chat", map[string]any{})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"status": "ok"}`))
	}))
	defer server.Close()

	if err := NewSchemaClient(server.URL).Healthy(context.Background()); err != nil {
		t.Errorf("schema Healthy failed: %v", err)
	}
	if err := NewValuesClient(server.URL).Healthy(context.Background()); err != nil {
		t.Errorf("values Healthy failed: %v", err)
	}
	if err := NewValuesClient("http://127.0.0.1:1").Healthy(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("unreachable Healthy = %v, want ErrUnavailable", err)
	}
}
