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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	svc, err := NewService(dir)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc, dir
}

func TestStoreAndLoadRoundTrip(t *testing.T) {
	svc, dir := newTestService(t)

	doc := map[string]any{
		"motd":               "welcome",
		"max_message_length": float64(2000),
		"resources":          map[string]any{"memory": map[string]any{"limit_mib": float64(512)}},
	}
	if err := svc.Store("chat", doc); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	loaded, err := svc.Load("chat")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded["motd"] != "welcome" || loaded["max_message_length"] != float64(2000) {
		t.Errorf("loaded = %v", loaded)
	}

	// No stray temp files after a successful write.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestLoad_Unknown(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Load("chat"); !errors.Is(err, ErrUnknownService) {
		t.Errorf("Load error = %v", err)
	}
	if _, err := svc.Load("../../etc/passwd"); !errors.Is(err, ErrUnknownService) {
		t.Errorf("traversal error = %v", err)
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	svc, dir := newTestService(t)
	if err := os.WriteFile(filepath.Join(dir, "chat.values.json"), []byte("{oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Load("chat"); err == nil || errors.Is(err, ErrUnknownService) {
		t.Errorf("Load error = %v, want parse failure", err)
	}
}

func TestStore_InvalidName(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.Store("../escape", map[string]any{}); err == nil {
		t.Error("expected error for invalid name")
	}
}

func TestStore_ConcurrentWritersLeaveValidDocument(t *testing.T) {
	svc, _ := newTestService(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			doc := map[string]any{"writer": float64(n)}
			if err := svc.Store("chat", doc); err != nil {
				t.Errorf("Store failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	loaded, err := svc.Load("chat")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, ok := loaded["writer"].(float64); !ok {
		t.Errorf("document torn or missing: %v", loaded)
	}
}

func TestHTTPSurface(t *testing.T) {
	svc, _ := newTestService(t)
	router := gin.New()
	RegisterRoutes(router.Group(""), NewHandlers(svc))

	put := func(name, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/v1/values/"+name, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	if w := put("chat", `{"motd": "hi"}`); w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body = %s", w.Code, w.Body.String())
	}
	if w := put("chat", `[1, 2]`); w.Code != http.StatusBadRequest {
		t.Errorf("PUT array status = %d, want 400", w.Code)
	}
	if w := put("Bad.Name", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("PUT invalid name status = %d, want 400", w.Code)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/values/chat", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d", w.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	if doc["motd"] != "hi" {
		t.Errorf("doc = %v", doc)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/values/tournament", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("GET unknown status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/health status = %d", w.Code)
	}
}

// TestSeedValues checks the repository's seed data for
// `cmd/valuestore -dir`: every shipped document must load as a JSON
// object, and each one pairs with a schema of the same name.
func TestSeedValues(t *testing.T) {
	svc, err := NewService(filepath.Join("..", "..", "test", "fixtures", "values"))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	checks := map[string]string{
		"chat":        "motd",
		"matchmaking": "max_party_size",
		"tournament":  "bracket_size",
	}
	for name, key := range checks {
		doc, err := svc.Load(name)
		if err != nil {
			t.Fatalf("Load(%q) failed: %v", name, err)
		}
		if _, ok := doc[key]; !ok {
			t.Errorf("seed document %q missing %q: %v", name, key, doc)
		}
	}
}

func TestStoreWritesPrettyJSON(t *testing.T) {
	svc, dir := newTestService(t)
	if err := svc.Store("chat", map[string]any{"a": float64(1)}); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "chat.values.json"))
	if err != nil {
		t.Fatal(err)
	}
	want := "{\n  \"a\": 1\n}\n"
	if string(raw) != want {
		t.Errorf("file = %q, want %q", raw, want)
	}
}
