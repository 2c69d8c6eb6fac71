// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve identifies which service an utterance targets.
// Keyword rules run first; the model is consulted only when the rules
// are inconclusive, keeping the common path cheap and deterministic.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/ConfigPilot/services/llm"
	"github.com/AleutianAI/ConfigPilot/services/pipeline/config"
	"github.com/AleutianAI/ConfigPilot/services/pipeline/datatypes"
	"github.com/AleutianAI/ConfigPilot/services/pipeline/extract"
)

var resolverTracer = otel.Tracer("aleutian.pilot.resolve")

// ErrUnidentified indicates no service could be determined for the
// utterance, by keywords or by the model.
var ErrUnidentified = errors.New("resolve: no service identified")

// =============================================================================
// Metrics
// =============================================================================

var (
	resolveDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pilot",
			Subsystem: "resolve",
			Name:      "decisions_total",
			Help:      "Service resolution decisions by confidence source.",
		},
		[]string{"confidence"},
	)

	resolveModelAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pilot",
			Subsystem: "resolve",
			Name:      "model_attempts_total",
			Help:      "Model fallback attempts during service resolution.",
		},
	)
)

// =============================================================================
// Resolver
// =============================================================================

const (
	// modelTimeout bounds each resolution model call.
	modelTimeout = 120 * time.Second

	// maxModelAttempts is the keyword-miss retry budget. The second
	// attempt uses a stricter JSON-only prompt.
	maxModelAttempts = 2
)

// Resolver maps utterances to service identities.
//
// Description:
//
//	Two-phase resolution. The keyword phase scans the utterance against
//	the configured service rules; a single unambiguous hit resolves
//	without any model call. Otherwise the model phase asks the backend
//	to pick from the known service names only.
//
// Thread Safety: Resolver is safe for concurrent use.
type Resolver struct {
	rules *config.ServiceRules
	model llm.Client
}

// NewResolver creates a Resolver over the given rules and model client.
func NewResolver(rules *config.ServiceRules, model llm.Client) *Resolver {
	return &Resolver{rules: rules, model: model}
}

// Resolve identifies the service an utterance targets.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - utterance: The natural language instruction.
//
// Outputs:
//   - datatypes.ServiceIdentity: The resolved service and how it was found.
//   - error: ErrUnidentified when no service matches, or an error
//     wrapping llm.ErrUnavailable when the model backend is down.
func (r *Resolver) Resolve(ctx context.Context, utterance string) (datatypes.ServiceIdentity, error) {
	ctx, span := resolverTracer.Start(ctx, "resolve.Resolve")
	defer span.End()

	if strings.TrimSpace(utterance) == "" {
		return datatypes.ServiceIdentity{}, fmt.Errorf("%w: empty utterance", ErrUnidentified)
	}

	if name, ok := r.keywordMatch(utterance); ok {
		span.SetAttributes(
			attribute.String("service", name),
			attribute.String("confidence", string(datatypes.ConfidenceKeyword)),
		)
		resolveDecisions.WithLabelValues(string(datatypes.ConfidenceKeyword)).Inc()
		slog.Debug("service resolved by keywords",
			slog.String("service", name),
		)
		return datatypes.ServiceIdentity{
			Name:       name,
			Confidence: datatypes.ConfidenceKeyword,
		}, nil
	}

	name, err := r.modelResolve(ctx, utterance)
	if err != nil {
		return datatypes.ServiceIdentity{}, err
	}

	span.SetAttributes(
		attribute.String("service", name),
		attribute.String("confidence", string(datatypes.ConfidenceModel)),
	)
	resolveDecisions.WithLabelValues(string(datatypes.ConfidenceModel)).Inc()
	slog.Info("service resolved by model",
		slog.String("service", name),
	)
	return datatypes.ServiceIdentity{
		Name:       name,
		Confidence: datatypes.ConfidenceModel,
	}, nil
}

// Known reports whether name is a configured service.
func (r *Resolver) Known(name string) bool {
	for _, svc := range r.rules.Services {
		if svc.Name == name {
			return true
		}
	}
	return false
}

// =============================================================================
// Keyword Phase
// =============================================================================

// keywordMatch returns the sole service whose keywords hit the
// utterance. Zero or multiple hits return ok=false so the model phase
// can arbitrate.
func (r *Resolver) keywordMatch(utterance string) (string, bool) {
	lowered := strings.ToLower(utterance)

	var matches []string
	for _, svc := range r.rules.Services {
		if ruleMatches(svc, lowered) {
			matches = append(matches, svc.Name)
		}
	}
	if len(matches) == 1 {
		return matches[0], true
	}
	if len(matches) > 1 {
		slog.Debug("keyword phase ambiguous, deferring to model",
			slog.Int("matches", len(matches)),
		)
	}
	return "", false
}

func ruleMatches(rule config.ServiceRule, lowered string) bool {
	hit := false
	for _, kw := range rule.Keywords {
		if strings.Contains(lowered, kw) {
			hit = true
			break
		}
	}
	if !hit {
		return false
	}
	for _, ex := range rule.Exclusions {
		if strings.Contains(lowered, ex) {
			return false
		}
	}
	return true
}

// =============================================================================
// Model Phase
// =============================================================================

func (r *Resolver) modelResolve(ctx context.Context, utterance string) (string, error) {
	names := r.rules.Names()

	var lastRaw string
	for attempt := 1; attempt <= maxModelAttempts; attempt++ {
		resolveModelAttempts.Inc()

		prompt := buildResolvePrompt(names, utterance, attempt > 1)
		callCtx, cancel := context.WithTimeout(ctx, modelTimeout)
		raw, err := r.model.Generate(callCtx, prompt, llm.GenerationParams{
			Temperature: llm.Float32Ptr(0.0),
			MaxTokens:   llm.IntPtr(10),
		})
		cancel()
		if err != nil {
			// An outage or timeout gets the same single retry an
			// unusable answer does.
			if attempt == maxModelAttempts {
				return "", fmt.Errorf("resolve: model call failed: %w", err)
			}
			slog.Warn("model resolution call failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			continue
		}

		if name, ok := parseServiceAnswer(raw, names); ok {
			return name, nil
		}
		lastRaw = llm.SafeLogString(truncate(raw, 200))
		slog.Warn("model resolution answer unusable",
			slog.Int("attempt", attempt),
			slog.String("raw", lastRaw),
		)
	}
	return "", &datatypes.ModelOutputError{
		Output: lastRaw,
		Err:    fmt.Errorf("%w: model could not name a known service", ErrUnidentified),
	}
}

func buildResolvePrompt(names []string, utterance string, strict bool) string {
	var b strings.Builder
	b.WriteString("You route configuration change requests to services.\n")
	b.WriteString("Known services: ")
	b.WriteString(strings.Join(names, ", "))
	b.WriteString("\n\nRequest: ")
	b.WriteString(utterance)
	b.WriteString("\n\nAnswer with a JSON object of the form {\"service\": \"<name>\"} ")
	b.WriteString("where <name> is exactly one of the known services.")
	if strict {
		b.WriteString("\nRespond with the JSON object only. No prose, no explanation, no markdown.")
	}
	return b.String()
}

// parseServiceAnswer extracts a known service name from the model's
// raw answer. JSON is preferred; a bare service name anywhere in the
// text is accepted as a fallback since small models often skip the
// JSON wrapper on short answers.
func parseServiceAnswer(raw string, names []string) (string, bool) {
	if obj, err := extract.ExtractObject(raw); err == nil {
		if name, ok := obj["service"].(string); ok {
			name = strings.ToLower(strings.TrimSpace(name))
			for _, known := range names {
				if name == known {
					return known, true
				}
			}
		}
	}

	cleaned := strings.ToLower(stripNonLetters(raw))
	for _, known := range names {
		if strings.Contains(cleaned, known) {
			return known, true
		}
	}
	return "", false
}

func stripNonLetters(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == ' ' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
