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
	"encoding/json"
	"fmt"
	"sort"
)

// Document is a parsed JSON Schema style description of one service's
// configuration. Only the subset the patch pipeline needs is modeled:
// nested "properties" objects with "type", "description", "enum",
// numeric bounds, string length bounds, and "pattern".
type Document map[string]any

// Field is one leaf of a flattened schema. A leaf is any property
// whose type is not "object". Constraint members are nil when the
// schema does not declare them.
type Field struct {
	// Pointer addresses the field inside the values document.
	Pointer Pointer

	// Path is the canonical slash-separated rendering of Pointer,
	// used in prompts and log lines.
	Path string

	// Type is the declared JSON type ("string", "integer", "number",
	// "boolean", "array"). Empty when the schema omits it.
	Type string

	// Description is the schema's human description, if any.
	Description string

	Enum      []any
	Minimum   *float64
	Maximum   *float64
	Pattern   string
	MinLength *int
	MaxLength *int
}

// ParseDocument decodes raw schema JSON into a Document.
func ParseDocument(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("schema: parse document: %w", err)
	}
	return doc, nil
}

// Flatten walks the document's nested "properties" maps and returns
// every leaf field in deterministic path order. Object-typed
// properties contribute their children, not themselves. A schema with
// no properties flattens to an empty list.
func (d Document) Flatten() []Field {
	var fields []Field
	flattenInto(map[string]any(d), nil, &fields)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Path < fields[j].Path })
	return fields
}

// Lookup returns the Field addressed by ptr, or false when the
// pointer does not name a leaf of this schema.
func (d Document) Lookup(ptr Pointer) (Field, bool) {
	for _, f := range d.Flatten() {
		if f.Pointer.Equal(ptr) {
			return f, true
		}
	}
	return Field{}, false
}

func flattenInto(node map[string]any, prefix Pointer, out *[]Field) {
	props, ok := node["properties"].(map[string]any)
	if !ok {
		return
	}
	for name, raw := range props {
		child, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		ptr := make(Pointer, len(prefix), len(prefix)+1)
		copy(ptr, prefix)
		ptr = append(ptr, name)

		typ, _ := child["type"].(string)
		if typ == "object" {
			flattenInto(child, ptr, out)
			continue
		}
		*out = append(*out, fieldFromNode(ptr, typ, child))
	}
}

func fieldFromNode(ptr Pointer, typ string, node map[string]any) Field {
	f := Field{
		Pointer: ptr,
		Path:    ptr.String(),
		Type:    typ,
	}
	if desc, ok := node["description"].(string); ok {
		f.Description = desc
	}
	if enum, ok := node["enum"].([]any); ok && len(enum) > 0 {
		f.Enum = enum
	}
	if v, ok := floatMember(node, "minimum"); ok {
		f.Minimum = &v
	}
	if v, ok := floatMember(node, "maximum"); ok {
		f.Maximum = &v
	}
	if pat, ok := node["pattern"].(string); ok {
		f.Pattern = pat
	}
	if v, ok := floatMember(node, "minLength"); ok {
		n := int(v)
		f.MinLength = &n
	}
	if v, ok := floatMember(node, "maxLength"); ok {
		n := int(v)
		f.MaxLength = &n
	}
	return f
}

func floatMember(node map[string]any, key string) (float64, bool) {
	switch v := node[key].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
