// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patch applies a single validated field update to a
// configuration document without mutating the original.
package patch

import (
	"fmt"

	"github.com/AleutianAI/ConfigPilot/services/schema"
)

// Apply sets the field addressed by ptr to value and returns the new
// document.
//
// Description:
//
//	Copy-on-write along the pointer's spine: every map on the path to
//	the leaf is shallow-copied, siblings are shared with the input.
//	The input document is never mutated, so a failed persist leaves
//	the caller's copy untouched. A missing leaf is created when its
//	parent object exists; missing intermediate objects are an error
//	since the schema validated the path against declared structure.
//
// Inputs:
//   - doc: The current document. May be nil, treated as empty.
//   - ptr: The field to set. Must have at least one segment.
//   - value: The validated new value.
//
// Outputs:
//   - map[string]any: The patched document.
//   - error: Non-nil when ptr is empty or an intermediate segment
//     exists but is not an object.
func Apply(doc map[string]any, ptr schema.Pointer, value any) (map[string]any, error) {
	if len(ptr) == 0 {
		return nil, fmt.Errorf("patch: empty pointer")
	}

	root := cloneMap(doc)
	cur := root
	for i := 0; i < len(ptr)-1; i++ {
		seg := ptr[i]
		child, exists := cur[seg]
		if !exists {
			return nil, fmt.Errorf("patch: intermediate object %q missing at %s",
				seg, ptr[:i+1])
		}
		childMap, ok := child.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("patch: segment %q at %s is %T, not an object",
				seg, ptr[:i+1], child)
		}
		next := cloneMap(childMap)
		cur[seg] = next
		cur = next
	}
	cur[ptr.Leaf()] = value
	return root, nil
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
