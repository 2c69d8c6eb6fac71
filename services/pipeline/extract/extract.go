// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract pulls the JSON payload out of free-form model
// output. Models wrap answers in prose, markdown fences, and partial
// fragments; this package finds the balanced JSON value inside.
package extract

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var extractOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pilot",
		Subsystem: "extract",
		Name:      "outcomes_total",
		Help:      "JSON extraction outcomes from model output.",
	},
	[]string{"outcome"},
)

var (
	// ErrNoJSONFound indicates the text contains no complete JSON
	// object or array.
	ErrNoJSONFound = errors.New("extract: no JSON found in model output")

	// ErrMalformedJSON indicates a balanced span was found but does
	// not parse as JSON.
	ErrMalformedJSON = errors.New("extract: JSON in model output does not parse")
)

// Extract returns the last complete JSON object or array embedded in
// text.
//
// Description:
//
//	Scans byte-by-byte tracking brace/bracket depth. String state is
//	only tracked inside an open span, so quotes in surrounding prose
//	cannot confuse the scanner, while unbalanced braces inside quoted
//	JSON strings are ignored correctly. When the text holds several
//	complete spans (models sometimes echo an example before the
//	answer), the last one wins. Markdown code fences are stripped
//	before scanning.
//
// Inputs:
//   - text: raw model output.
//
// Outputs:
//   - json.RawMessage: the extracted JSON value.
//   - error: ErrNoJSONFound or ErrMalformedJSON.
func Extract(text string) (json.RawMessage, error) {
	cleaned := stripFences(text)

	spans := balancedSpans(cleaned)
	if len(spans) == 0 {
		extractOutcomes.WithLabelValues("no_json").Inc()
		return nil, ErrNoJSONFound
	}

	candidate := spans[len(spans)-1]
	if !json.Valid([]byte(candidate)) {
		extractOutcomes.WithLabelValues("malformed").Inc()
		return nil, ErrMalformedJSON
	}
	extractOutcomes.WithLabelValues("ok").Inc()
	return json.RawMessage(candidate), nil
}

// ExtractObject is Extract restricted to objects; it unmarshals the
// payload into a generic map.
func ExtractObject(text string) (map[string]any, error) {
	raw, err := Extract(text)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, ErrMalformedJSON
	}
	return obj, nil
}

// stripFences removes markdown code fence markers so a fenced payload
// scans the same as a bare one.
func stripFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// balancedSpans returns every top-level balanced {...} or [...] span
// in order of appearance. Incomplete trailing spans are dropped.
func balancedSpans(text string) []string {
	var spans []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if depth > 0 {
			// Inside a span: honor JSON string syntax so braces in
			// string values do not affect depth.
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{', '[':
				depth++
			case '}', ']':
				depth--
				if depth == 0 {
					spans = append(spans, text[start:i+1])
					start = -1
				}
			}
			continue
		}

		if c == '{' || c == '[' {
			depth = 1
			start = i
			inString = false
			escaped = false
		}
	}
	return spans
}
