// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"strings"
	"testing"
)

func TestGetServiceRules_LoadsEmbeddedDefaults(t *testing.T) {
	ResetServiceRules()
	t.Cleanup(ResetServiceRules)

	rules, err := GetServiceRules(context.Background())
	if err != nil {
		t.Fatalf("GetServiceRules failed: %v", err)
	}
	names := rules.Names()
	if len(names) < 3 {
		t.Fatalf("expected at least 3 services, got %v", names)
	}
	want := map[string]bool{"chat": true, "matchmaking": true, "tournament": true}
	for _, name := range names {
		delete(want, name)
	}
	if len(want) != 0 {
		t.Errorf("missing services in embedded rules: %v", want)
	}
}

func TestGetServiceRules_NilContext(t *testing.T) {
	if _, err := GetServiceRules(nil); err == nil { //nolint:staticcheck
		t.Fatal("expected error for nil context")
	}
}

func TestGetServiceRules_Caches(t *testing.T) {
	ResetServiceRules()
	t.Cleanup(ResetServiceRules)

	first, err := GetServiceRules(context.Background())
	if err != nil {
		t.Fatalf("first load failed: %v", err)
	}
	second, err := GetServiceRules(context.Background())
	if err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	if first != second {
		t.Error("expected cached pointer on second call")
	}
}

func TestLoadServiceRules_NormalizesCase(t *testing.T) {
	yaml := `
services:
  - name: chat
    keywords: ["CHAT", "  Message "]
    exclusions: ["TOURNAMENT"]
field_synonyms:
  Memory: ["Limit_MiB"]
`
	rules, err := LoadServiceRules(context.Background(), []byte(yaml))
	if err != nil {
		t.Fatalf("LoadServiceRules failed: %v", err)
	}
	if rules.Services[0].Keywords[0] != "chat" || rules.Services[0].Keywords[1] != "message" {
		t.Errorf("keywords not normalized: %v", rules.Services[0].Keywords)
	}
	if rules.Services[0].Exclusions[0] != "tournament" {
		t.Errorf("exclusions not normalized: %v", rules.Services[0].Exclusions)
	}
	frags, ok := rules.FieldSynonyms["memory"]
	if !ok || frags[0] != "limit_mib" {
		t.Errorf("field synonyms not normalized: %v", rules.FieldSynonyms)
	}
}

func TestLoadServiceRules_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "empty data",
			yaml: "",
			want: "empty YAML",
		},
		{
			name: "no services",
			yaml: "field_synonyms: {}",
			want: "services must not be empty",
		},
		{
			name: "missing name",
			yaml: "services:\n  - keywords: [a]",
			want: "name must not be empty",
		},
		{
			name: "missing keywords",
			yaml: "services:\n  - name: chat",
			want: "keywords must not be empty",
		},
		{
			name: "duplicate name",
			yaml: "services:\n  - name: chat\n    keywords: [a]\n  - name: chat\n    keywords: [b]",
			want: "duplicate name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadServiceRules(context.Background(), []byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}
