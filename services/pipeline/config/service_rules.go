// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the embedded rule files that drive keyword
// service resolution and heuristic field matching.
package config

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

var configTracer = otel.Tracer("aleutian.pilot.config")

// MaxYAMLFileSize bounds rule file parsing.
const MaxYAMLFileSize = 1 << 20

// =============================================================================
// Embedded Default Service Rules
// =============================================================================

//go:embed service_rules.yaml
var defaultServiceRulesYAML []byte

// =============================================================================
// Service Rule Types
// =============================================================================

// ServiceRules defines the keyword rules used to resolve an utterance
// to a service before any model call is made.
//
// Description:
//
//	Contains one ServiceRule per known service plus the field synonym
//	table used by heuristic path matching.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type ServiceRules struct {
	// Services lists the known services and their trigger keywords.
	Services []ServiceRule `yaml:"services"`

	// FieldSynonyms maps utterance words to schema field name fragments
	// ("memory" to "limit_mib"). Used when scoring candidate fields.
	FieldSynonyms map[string][]string `yaml:"field_synonyms"`
}

// ServiceRule maps trigger keywords to one service.
//
// Description:
//
//	A service matches when any keyword appears in the utterance and no
//	exclusion does. Exclusions disambiguate services whose vocabulary
//	overlaps ("match" appears in both matchmaking and tournament talk).
type ServiceRule struct {
	// Name is the service identifier as known to the schema store.
	Name string `yaml:"name"`

	// Keywords are lowercase substrings that select this service.
	Keywords []string `yaml:"keywords"`

	// Exclusions suppress the match when present in the utterance.
	Exclusions []string `yaml:"exclusions"`
}

// Names returns the configured service names in declaration order.
func (r *ServiceRules) Names() []string {
	names := make([]string, 0, len(r.Services))
	for _, svc := range r.Services {
		names = append(names, svc.Name)
	}
	return names
}

// =============================================================================
// Singleton Service Rules
// =============================================================================

var (
	serviceRulesMu      sync.RWMutex
	serviceRulesOnce    sync.Once
	cachedServiceRules  *ServiceRules
	serviceRulesLoadErr error
)

// GetServiceRules returns the cached service rules.
//
// Description:
//
//	Loads the embedded rules on first call and caches for subsequent
//	calls. Uses sync.Once for thread-safe initialization.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//
// Outputs:
//
//	*ServiceRules - The loaded rules. Never nil on success.
//	error - Non-nil if loading or validation failed.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func GetServiceRules(ctx context.Context) (*ServiceRules, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetServiceRules: ctx must not be nil")
	}

	serviceRulesMu.RLock()
	if cachedServiceRules != nil || serviceRulesLoadErr != nil {
		rules, err := cachedServiceRules, serviceRulesLoadErr
		serviceRulesMu.RUnlock()
		return rules, err
	}
	serviceRulesMu.RUnlock()

	serviceRulesMu.Lock()
	defer serviceRulesMu.Unlock()

	if cachedServiceRules != nil || serviceRulesLoadErr != nil {
		return cachedServiceRules, serviceRulesLoadErr
	}

	serviceRulesOnce.Do(func() {
		cachedServiceRules, serviceRulesLoadErr = LoadServiceRules(ctx, defaultServiceRulesYAML)
	})

	return cachedServiceRules, serviceRulesLoadErr
}

// ResetServiceRules resets the cached rules for testing.
//
// Thread Safety: Safe for concurrent use.
func ResetServiceRules() {
	serviceRulesMu.Lock()
	defer serviceRulesMu.Unlock()
	cachedServiceRules = nil
	serviceRulesLoadErr = nil
	serviceRulesOnce = sync.Once{}
}

// LoadServiceRules loads and validates ServiceRules from YAML bytes.
//
// Description:
//
//	Parses the YAML, lowercases all keywords and exclusions, and
//	validates the rules for consistency (non-empty names, at least one
//	keyword per service, no duplicate names).
//
// Inputs:
//
//	ctx - Context for tracing.
//	data - Raw YAML bytes to parse.
//
// Outputs:
//
//	*ServiceRules - The validated rules.
//	error - Non-nil if parsing or validation fails.
func LoadServiceRules(ctx context.Context, data []byte) (*ServiceRules, error) {
	_, span := configTracer.Start(ctx, "config.LoadServiceRules")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("LoadServiceRules: empty YAML data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadServiceRules: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var rules ServiceRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("LoadServiceRules: parsing YAML: %w", err)
	}

	// Normalize everything to lowercase; matching is case-insensitive.
	for i := range rules.Services {
		for j, kw := range rules.Services[i].Keywords {
			rules.Services[i].Keywords[j] = strings.ToLower(strings.TrimSpace(kw))
		}
		for j, ex := range rules.Services[i].Exclusions {
			rules.Services[i].Exclusions[j] = strings.ToLower(strings.TrimSpace(ex))
		}
	}
	normalized := make(map[string][]string, len(rules.FieldSynonyms))
	for word, fragments := range rules.FieldSynonyms {
		lowered := make([]string, len(fragments))
		for i, frag := range fragments {
			lowered[i] = strings.ToLower(strings.TrimSpace(frag))
		}
		normalized[strings.ToLower(word)] = lowered
	}
	rules.FieldSynonyms = normalized

	if err := validateServiceRules(&rules); err != nil {
		return nil, fmt.Errorf("LoadServiceRules: validation: %w", err)
	}

	span.SetAttributes(
		attribute.Int("services", len(rules.Services)),
		attribute.Int("field_synonyms", len(rules.FieldSynonyms)),
	)

	slog.Info("service rules loaded",
		slog.Int("services", len(rules.Services)),
		slog.Int("field_synonyms", len(rules.FieldSynonyms)),
	)

	return &rules, nil
}

// validateServiceRules checks all rules for consistency.
func validateServiceRules(rules *ServiceRules) error {
	if len(rules.Services) == 0 {
		return fmt.Errorf("services must not be empty")
	}
	seen := make(map[string]bool, len(rules.Services))
	for i, svc := range rules.Services {
		if svc.Name == "" {
			return fmt.Errorf("service[%d]: name must not be empty", i)
		}
		if seen[svc.Name] {
			return fmt.Errorf("service[%d]: duplicate name %q", i, svc.Name)
		}
		seen[svc.Name] = true
		if len(svc.Keywords) == 0 {
			return fmt.Errorf("service[%d] (%s): keywords must not be empty", i, svc.Name)
		}
		for j, kw := range svc.Keywords {
			if kw == "" {
				return fmt.Errorf("service[%d] (%s): keyword[%d] must not be empty", i, svc.Name, j)
			}
		}
	}
	return nil
}
