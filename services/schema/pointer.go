// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schema models configuration schemas as flat lists of leaf
// fields and validates proposed values against them.
package schema

import (
	"fmt"
	"strings"
)

// Pointer addresses a single leaf field inside a configuration
// document as an ordered list of object keys, root to leaf.
type Pointer []string

// ParsePointer parses a slash-separated field path ("/resources/memory")
// into a Pointer. The leading slash is optional. Escaped characters
// follow JSON Pointer conventions: "~1" decodes to "/" and "~0" to "~".
//
// Inputs:
//   - raw: the textual path. Must reference at least one segment.
//
// Outputs:
//   - Pointer: the decoded segments.
//   - error: non-nil when the path is empty or contains empty segments.
func ParsePointer(raw string) (Pointer, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("schema: empty field path")
	}

	parts := strings.Split(trimmed, "/")
	ptr := make(Pointer, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("schema: field path %q contains an empty segment", raw)
		}
		seg := strings.ReplaceAll(part, "~1", "/")
		seg = strings.ReplaceAll(seg, "~0", "~")
		ptr = append(ptr, seg)
	}
	return ptr, nil
}

// String renders the pointer back to its canonical slash-separated
// form with JSON Pointer escaping applied to each segment.
func (p Pointer) String() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for _, seg := range p {
		b.WriteByte('/')
		esc := strings.ReplaceAll(seg, "~", "~0")
		esc = strings.ReplaceAll(esc, "/", "~1")
		b.WriteString(esc)
	}
	return b.String()
}

// Equal reports whether two pointers reference the same field.
func (p Pointer) Equal(other Pointer) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Leaf returns the final segment, or "" for an empty pointer.
func (p Pointer) Leaf() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}
