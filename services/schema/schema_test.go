// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

import (
	"errors"
	"testing"
)

func mustParseDoc(t *testing.T, raw string) Document {
	t.Helper()
	doc, err := ParseDocument([]byte(raw))
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}
	return doc
}

const chatSchema = `{
	"type": "object",
	"properties": {
		"motd": {"type": "string", "description": "Message of the day", "maxLength": 120},
		"difficulty": {"type": "string", "enum": ["easy", "medium", "hard"]},
		"max_message_length": {"type": "integer", "minimum": 1, "maximum": 4000},
		"profanity_filter": {"type": "boolean"},
		"resources": {
			"type": "object",
			"properties": {
				"memory": {
					"type": "object",
					"properties": {
						"limit_mib": {"type": "integer", "minimum": 64},
						"request_mib": {"type": "integer", "minimum": 64}
					}
				},
				"cpu": {
					"type": "object",
					"properties": {
						"limit_millicpu": {"type": "integer", "minimum": 100}
					}
				}
			}
		},
		"region": {"type": "string", "pattern": "^[a-z]+-[a-z]+-[0-9]$"}
	}
}`

func TestParsePointer(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "single segment", raw: "motd", want: "/motd"},
		{name: "leading slash", raw: "/resources/memory/limit_mib", want: "/resources/memory/limit_mib"},
		{name: "escaped slash", raw: "/a~1b/c", want: "/a~1b/c"},
		{name: "empty", raw: "", wantErr: true},
		{name: "whitespace only", raw: "   ", wantErr: true},
		{name: "empty segment", raw: "/a//b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ptr, err := ParsePointer(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePointer(%q) succeeded, want error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePointer(%q) failed: %v", tt.raw, err)
			}
			if got := ptr.String(); got != tt.want {
				t.Errorf("round trip = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParsePointerDecodesEscapes(t *testing.T) {
	ptr, err := ParsePointer("/a~1b/t~0ilde")
	if err != nil {
		t.Fatalf("ParsePointer failed: %v", err)
	}
	if ptr[0] != "a/b" || ptr[1] != "t~ilde" {
		t.Errorf("decoded segments = %v, want [a/b t~ilde]", []string(ptr))
	}
}

func TestFlattenProducesLeavesOnly(t *testing.T) {
	doc := mustParseDoc(t, chatSchema)
	fields := doc.Flatten()

	wantPaths := []string{
		"/difficulty",
		"/max_message_length",
		"/motd",
		"/profanity_filter",
		"/region",
		"/resources/cpu/limit_millicpu",
		"/resources/memory/limit_mib",
		"/resources/memory/request_mib",
	}
	if len(fields) != len(wantPaths) {
		t.Fatalf("Flatten returned %d fields, want %d", len(fields), len(wantPaths))
	}
	for i, want := range wantPaths {
		if fields[i].Path != want {
			t.Errorf("fields[%d].Path = %q, want %q", i, fields[i].Path, want)
		}
	}
}

func TestFlattenCarriesConstraints(t *testing.T) {
	doc := mustParseDoc(t, chatSchema)
	ptr, _ := ParsePointer("/max_message_length")
	field, ok := doc.Lookup(ptr)
	if !ok {
		t.Fatal("Lookup(/max_message_length) returned false")
	}
	if field.Type != "integer" {
		t.Errorf("Type = %q, want integer", field.Type)
	}
	if field.Minimum == nil || *field.Minimum != 1 {
		t.Errorf("Minimum = %v, want 1", field.Minimum)
	}
	if field.Maximum == nil || *field.Maximum != 4000 {
		t.Errorf("Maximum = %v, want 4000", field.Maximum)
	}
}

func TestFlattenEmptySchema(t *testing.T) {
	doc := mustParseDoc(t, `{"type": "object"}`)
	if fields := doc.Flatten(); len(fields) != 0 {
		t.Errorf("Flatten on empty schema returned %d fields, want 0", len(fields))
	}
}

func TestValidate(t *testing.T) {
	doc := mustParseDoc(t, chatSchema)

	tests := []struct {
		name    string
		path    string
		value   any
		wantErr error
	}{
		{name: "valid string", path: "/motd", value: "welcome"},
		{name: "valid enum", path: "/difficulty", value: "hard"},
		{name: "valid integer", path: "/max_message_length", value: float64(500)},
		{name: "valid boolean", path: "/profanity_filter", value: true},
		{name: "valid nested", path: "/resources/memory/limit_mib", value: float64(512)},
		{name: "valid pattern", path: "/region", value: "us-west-2"},

		{name: "unknown path", path: "/no_such_field", wantErr: ErrPathNotInSchema},
		{name: "string for integer", path: "/max_message_length", value: "big", wantErr: ErrTypeMismatch},
		{name: "fractional integer", path: "/max_message_length", value: 3.5, wantErr: ErrTypeMismatch},
		{name: "number for boolean", path: "/profanity_filter", value: float64(1), wantErr: ErrTypeMismatch},
		{name: "enum miss", path: "/difficulty", value: "impossible", wantErr: ErrConstraintViolation},
		{name: "below minimum", path: "/max_message_length", value: float64(0), wantErr: ErrConstraintViolation},
		{name: "above maximum", path: "/max_message_length", value: float64(9000), wantErr: ErrConstraintViolation},
		{name: "pattern miss", path: "/region", value: "WEST", wantErr: ErrConstraintViolation},
		{name: "over max length", path: "/motd", value: string(make([]byte, 200)), wantErr: ErrConstraintViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ptr, err := ParsePointer(tt.path)
			if err != nil {
				t.Fatalf("ParsePointer(%q) failed: %v", tt.path, err)
			}
			err = Validate(doc, ptr, tt.value)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate failed: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
