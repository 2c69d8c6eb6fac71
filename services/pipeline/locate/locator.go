// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package locate narrows an utterance to a single schema field and a
// proposed value. A lexical heuristic over the flattened field list
// runs first; the model sees only that list when it has to arbitrate,
// never the full configuration document.
package locate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/ConfigPilot/services/llm"
	"github.com/AleutianAI/ConfigPilot/services/pipeline/datatypes"
	"github.com/AleutianAI/ConfigPilot/services/pipeline/extract"
	"github.com/AleutianAI/ConfigPilot/services/schema"
)

var locatorTracer = otel.Tracer("aleutian.pilot.locate")

var (
	// ErrAmbiguousPath indicates neither the heuristic nor the model
	// could narrow the utterance to exactly one field.
	ErrAmbiguousPath = errors.New("locate: utterance does not narrow to one field")

	// ErrNoSuchField indicates the model named a path that is not in
	// the flattened field list.
	ErrNoSuchField = errors.New("locate: named path is not a schema field")
)

// =============================================================================
// Metrics
// =============================================================================

var locateDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pilot",
		Subsystem: "locate",
		Name:      "decisions_total",
		Help:      "Path location decisions by source.",
	},
	[]string{"source"},
)

// =============================================================================
// Locator
// =============================================================================

const (
	modelTimeout     = 120 * time.Second
	maxModelAttempts = 2

	// heuristicMinScore is the lowest score a sole top candidate may
	// have and still resolve without the model.
	heuristicMinScore = 3
)

// Locator maps utterances to proposed single-field changes.
//
// Thread Safety: Locator is safe for concurrent use.
type Locator struct {
	model    llm.Client
	synonyms map[string][]string
}

// NewLocator creates a Locator. synonyms maps utterance vocabulary to
// field name fragments and may be nil.
func NewLocator(model llm.Client, synonyms map[string][]string) *Locator {
	return &Locator{model: model, synonyms: synonyms}
}

// Locate narrows the utterance to one field of the flattened schema
// and extracts the value to write.
//
// Description:
//
//	The heuristic phase tokenizes the utterance and scores every field
//	by lexical overlap with its name, the synonym table, and its
//	description. A sole top scorer with a parseable value resolves
//	immediately. Anything else goes to the model, which is shown only
//	the flattened field list and asked for a {"path", "value"} pair.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - utterance: The natural language instruction.
//   - fields: The flattened schema of the already-resolved service.
//
// Outputs:
//   - datatypes.ProposedChange: The located path and proposed value.
//   - error: ErrAmbiguousPath, ErrNoSuchField, or an error wrapping
//     llm.ErrUnavailable.
func (l *Locator) Locate(ctx context.Context, utterance string, fields []schema.Field) (datatypes.ProposedChange, error) {
	ctx, span := locatorTracer.Start(ctx, "locate.Locate")
	defer span.End()
	span.SetAttributes(attribute.Int("fields", len(fields)))

	if len(fields) == 0 {
		return datatypes.ProposedChange{}, fmt.Errorf("%w: schema has no leaf fields", ErrAmbiguousPath)
	}

	if change, ok := l.heuristicLocate(utterance, fields); ok {
		span.SetAttributes(
			attribute.String("path", change.Path.String()),
			attribute.String("source", string(datatypes.SourceHeuristic)),
		)
		locateDecisions.WithLabelValues(string(datatypes.SourceHeuristic)).Inc()
		slog.Debug("path located heuristically",
			slog.String("path", change.Path.String()),
		)
		return change, nil
	}

	change, err := l.modelLocate(ctx, utterance, fields)
	if err != nil {
		return datatypes.ProposedChange{}, err
	}

	span.SetAttributes(
		attribute.String("path", change.Path.String()),
		attribute.String("source", string(datatypes.SourceModel)),
	)
	locateDecisions.WithLabelValues(string(datatypes.SourceModel)).Inc()
	slog.Info("path located by model",
		slog.String("path", change.Path.String()),
	)
	return change, nil
}

// =============================================================================
// Heuristic Phase
// =============================================================================

func (l *Locator) heuristicLocate(utterance string, fields []schema.Field) (datatypes.ProposedChange, bool) {
	tokens := tokenize(utterance)
	if len(tokens) == 0 {
		return datatypes.ProposedChange{}, false
	}

	best := -1
	bestScore := 0
	tied := false
	for i := range fields {
		score := l.scoreField(tokens, &fields[i])
		switch {
		case score > bestScore:
			best, bestScore, tied = i, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}
	if best < 0 || tied || bestScore < heuristicMinScore {
		return datatypes.ProposedChange{}, false
	}

	value, ok := parseValue(utterance, &fields[best])
	if !ok {
		return datatypes.ProposedChange{}, false
	}
	return datatypes.ProposedChange{
		Path:   fields[best].Pointer,
		Value:  value,
		Source: datatypes.SourceHeuristic,
	}, true
}

// scoreField measures lexical overlap between utterance tokens and one
// field. Name token hits weigh most, synonym hits next, description
// hits least.
func (l *Locator) scoreField(tokens []string, field *schema.Field) int {
	nameTokens := fieldNameTokens(field)
	descLower := strings.ToLower(field.Description)

	score := 0
	for _, tok := range tokens {
		if nameTokens[tok] {
			score += 3
			continue
		}
		synHit := false
		for _, frag := range l.synonyms[tok] {
			for name := range nameTokens {
				if strings.Contains(name, frag) || strings.Contains(frag, name) {
					score += 2
					synHit = true
					break
				}
			}
			if synHit {
				break
			}
		}
		if synHit {
			continue
		}
		if len(tok) > 3 && descLower != "" && strings.Contains(descLower, tok) {
			score++
		}
	}
	return score
}

// fieldNameTokens splits every path segment on underscores and camel
// case humps into a lowercase token set.
func fieldNameTokens(field *schema.Field) map[string]bool {
	tokens := make(map[string]bool)
	for _, seg := range field.Pointer {
		for _, part := range splitIdentifier(seg) {
			tokens[part] = true
		}
		tokens[strings.ToLower(seg)] = true
	}
	return tokens
}

func splitIdentifier(s string) []string {
	var parts []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case r == '_' || r == '-' || r == '.':
			flush()
		case r >= 'A' && r <= 'Z':
			flush()
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return parts
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '_'
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

// =============================================================================
// Value Parsing
// =============================================================================

var valueMarkers = []string{" to ", " = ", " as ", " at "}

// parseValue pulls the intended value out of the utterance tail and
// coerces it to the field's declared type. Returns ok=false when no
// usable value is found, which sends the request to the model instead.
func parseValue(utterance string, field *schema.Field) (any, bool) {
	lowered := strings.ToLower(utterance)

	// Boolean fields accept toggle vocabulary anywhere in the text.
	if field.Type == "boolean" {
		if v, ok := parseToggle(lowered); ok {
			return v, true
		}
	}

	tail := ""
	for _, marker := range valueMarkers {
		if idx := strings.LastIndex(lowered, marker); idx >= 0 {
			candidate := strings.TrimSpace(utterance[idx+len(marker):])
			if candidate != "" {
				tail = candidate
				break
			}
		}
	}
	if tail == "" {
		return nil, false
	}
	tail = strings.Trim(tail, `"'.!?`)

	switch field.Type {
	case "integer", "number":
		word := firstWord(tail)
		f, err := strconv.ParseFloat(word, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	case "boolean":
		return parseToggle(strings.ToLower(tail))
	default:
		if len(field.Enum) > 0 {
			return matchEnum(tail, field.Enum)
		}
		return tail, true
	}
}

func parseToggle(lowered string) (bool, bool) {
	for _, w := range []string{" on", " true", " enabled", "enable ", "turn on"} {
		if strings.Contains(lowered, w) {
			return true, true
		}
	}
	for _, w := range []string{" off", " false", " disabled", "disable ", "turn off"} {
		if strings.Contains(lowered, w) {
			return false, true
		}
	}
	return false, false
}

// matchEnum returns the enum member the tail names, preserving the
// member's canonical casing and type.
func matchEnum(tail string, enum []any) (any, bool) {
	loweredTail := strings.ToLower(tail)
	for _, member := range enum {
		if s, ok := member.(string); ok {
			if strings.EqualFold(tail, s) || strings.Contains(loweredTail, strings.ToLower(s)) {
				return s, true
			}
		}
	}
	if f, err := strconv.ParseFloat(firstWord(tail), 64); err == nil {
		for _, member := range enum {
			if mf, ok := member.(float64); ok && mf == f {
				return mf, true
			}
		}
	}
	return nil, false
}

func firstWord(s string) string {
	if idx := strings.IndexAny(s, " \t\n"); idx >= 0 {
		return s[:idx]
	}
	return s
}

// =============================================================================
// Model Phase
// =============================================================================

func (l *Locator) modelLocate(ctx context.Context, utterance string, fields []schema.Field) (datatypes.ProposedChange, error) {
	var lastErr error
	var lastRaw string
	for attempt := 1; attempt <= maxModelAttempts; attempt++ {
		prompt := buildLocatePrompt(fields, utterance, attempt > 1)
		callCtx, cancel := context.WithTimeout(ctx, modelTimeout)
		raw, err := l.model.Generate(callCtx, prompt, llm.GenerationParams{
			Temperature: llm.Float32Ptr(0.1),
			MaxTokens:   llm.IntPtr(256),
		})
		cancel()
		if err != nil {
			// An outage or timeout gets the same single retry an
			// unusable answer does.
			if attempt == maxModelAttempts {
				return datatypes.ProposedChange{}, fmt.Errorf("locate: model call failed: %w", err)
			}
			slog.Warn("model location call failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			continue
		}

		change, parseErr := parseLocateAnswer(raw, fields)
		if parseErr == nil {
			return change, nil
		}
		lastRaw = llm.SafeLogString(truncate(raw, 200))
		if errors.Is(parseErr, ErrNoSuchField) {
			// The model answered cleanly but named a nonexistent field.
			// Retrying with the same list rarely helps.
			return datatypes.ProposedChange{}, &datatypes.ModelOutputError{
				Output: lastRaw,
				Err:    parseErr,
			}
		}
		lastErr = parseErr
		slog.Warn("model location answer unusable",
			slog.Int("attempt", attempt),
			slog.String("error", parseErr.Error()),
			slog.String("raw", lastRaw),
		)
	}
	// Keep the last parse failure in the chain so callers can tell
	// "no JSON at all" apart from "JSON that names nothing useful".
	return datatypes.ProposedChange{}, &datatypes.ModelOutputError{
		Output: lastRaw,
		Err: fmt.Errorf("%w after %d attempts: %w",
			ErrAmbiguousPath, maxModelAttempts, lastErr),
	}
}

func buildLocatePrompt(fields []schema.Field, utterance string, strict bool) string {
	var b strings.Builder
	b.WriteString("You translate configuration change requests into a single field update.\n")
	b.WriteString("The available fields are:\n")
	for i := range fields {
		b.WriteString("  ")
		b.WriteString(fields[i].Path)
		if fields[i].Type != "" {
			b.WriteString(" (")
			b.WriteString(fields[i].Type)
			b.WriteString(")")
		}
		if len(fields[i].Enum) > 0 {
			b.WriteString(" one of ")
			b.WriteString(enumList(fields[i].Enum))
		}
		if fields[i].Description != "" {
			b.WriteString(" - ")
			b.WriteString(fields[i].Description)
		}
		b.WriteByte('\n')
	}
	b.WriteString("\nRequest: ")
	b.WriteString(utterance)
	b.WriteString("\n\nAnswer with a JSON object of the form ")
	b.WriteString(`{"path": "<field path>", "value": <new value>} `)
	b.WriteString("using exactly one path from the list above.")
	if strict {
		b.WriteString("\nRespond with the JSON object only. No prose, no explanation, no markdown.")
	}
	return b.String()
}

func enumList(enum []any) string {
	parts := make([]string, 0, len(enum))
	for _, m := range enum {
		parts = append(parts, fmt.Sprintf("%v", m))
	}
	return strings.Join(parts, "|")
}

func parseLocateAnswer(raw string, fields []schema.Field) (datatypes.ProposedChange, error) {
	obj, err := extract.ExtractObject(raw)
	if err != nil {
		return datatypes.ProposedChange{}, fmt.Errorf("locate: %w", err)
	}

	pathRaw, ok := obj["path"].(string)
	if !ok || strings.TrimSpace(pathRaw) == "" {
		return datatypes.ProposedChange{}, fmt.Errorf("locate: answer has no path member")
	}
	value, ok := obj["value"]
	if !ok {
		return datatypes.ProposedChange{}, fmt.Errorf("locate: answer has no value member")
	}

	ptr, err := schema.ParsePointer(pathRaw)
	if err != nil {
		return datatypes.ProposedChange{}, fmt.Errorf("locate: answer path invalid: %w", err)
	}
	for i := range fields {
		if fields[i].Pointer.Equal(ptr) {
			return datatypes.ProposedChange{
				Path:   fields[i].Pointer,
				Value:  value,
				Source: datatypes.SourceModel,
			}, nil
		}
	}
	return datatypes.ProposedChange{}, fmt.Errorf("%w: %s", ErrNoSuchField, ptr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
