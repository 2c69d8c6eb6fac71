// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/AleutianAI/ConfigPilot/services/llm"
	"github.com/AleutianAI/ConfigPilot/services/pipeline/config"
	"github.com/AleutianAI/ConfigPilot/services/pipeline/datatypes"
)

// mockModel implements llm.Client with a scripted response.
type mockModel struct {
	generateFunc func(ctx context.Context, prompt string, params llm.GenerationParams) (string, error)
	calls        int
}

func (m *mockModel) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	m.calls++
	if m.generateFunc == nil {
		return "", fmt.Errorf("unexpected model call")
	}
	return m.generateFunc(ctx, prompt, params)
}

func makeTestRules(t *testing.T) *config.ServiceRules {
	t.Helper()
	yaml := `
services:
  - name: chat
    keywords: [chat, message, motd]
  - name: matchmaking
    keywords: [matchmaking, match, lobby, queue]
    exclusions: [tournament, bracket]
  - name: tournament
    keywords: [tournament, bracket, elimination]
`
	rules, err := config.LoadServiceRules(context.Background(), []byte(yaml))
	if err != nil {
		t.Fatalf("LoadServiceRules failed: %v", err)
	}
	return rules
}

func TestResolve_KeywordSingleMatch(t *testing.T) {
	model := &mockModel{}
	r := NewResolver(makeTestRules(t), model)

	identity, err := r.Resolve(context.Background(), "set the chat motd to hello")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if identity.Name != "chat" {
		t.Errorf("Name = %q, want chat", identity.Name)
	}
	if identity.Confidence != datatypes.ConfidenceKeyword {
		t.Errorf("Confidence = %q, want keyword", identity.Confidence)
	}
	if model.calls != 0 {
		t.Errorf("model called %d times, want 0 for keyword resolution", model.calls)
	}
}

func TestResolve_ExclusionSuppressesMatch(t *testing.T) {
	// "match" hits matchmaking, but "tournament" excludes it, leaving
	// only the tournament rule matched.
	model := &mockModel{}
	r := NewResolver(makeTestRules(t), model)

	identity, err := r.Resolve(context.Background(), "set the tournament match length to 3")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if identity.Name != "tournament" {
		t.Errorf("Name = %q, want tournament", identity.Name)
	}
	if model.calls != 0 {
		t.Errorf("model called %d times, want 0", model.calls)
	}
}

func TestResolve_AmbiguousKeywordsFallToModel(t *testing.T) {
	// Both chat and matchmaking keywords hit, so the model decides.
	model := &mockModel{
		generateFunc: func(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
			return `{"service": "matchmaking"}`, nil
		},
	}
	r := NewResolver(makeTestRules(t), model)

	identity, err := r.Resolve(context.Background(), "increase the chat queue depth")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if identity.Name != "matchmaking" {
		t.Errorf("Name = %q, want matchmaking", identity.Name)
	}
	if identity.Confidence != datatypes.ConfidenceModel {
		t.Errorf("Confidence = %q, want model", identity.Confidence)
	}
	if model.calls != 1 {
		t.Errorf("model called %d times, want 1", model.calls)
	}
}

func TestResolve_ModelBareWordAnswer(t *testing.T) {
	model := &mockModel{
		generateFunc: func(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
			return "The service is: tournament.", nil
		},
	}
	r := NewResolver(makeTestRules(t), model)

	identity, err := r.Resolve(context.Background(), "turn on seeding please")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if identity.Name != "tournament" {
		t.Errorf("Name = %q, want tournament", identity.Name)
	}
}

func TestResolve_ModelRetryThenSuccess(t *testing.T) {
	model := &mockModel{}
	model.generateFunc = func(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
		if model.calls == 1 {
			return "I think you probably want some gaming thing?", nil
		}
		return `{"service": "chat"}`, nil
	}
	r := NewResolver(makeTestRules(t), model)

	identity, err := r.Resolve(context.Background(), "change the welcome banner")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if identity.Name != "chat" {
		t.Errorf("Name = %q, want chat", identity.Name)
	}
	if model.calls != 2 {
		t.Errorf("model called %d times, want 2", model.calls)
	}
}

func TestResolve_ModelUnknownServiceFails(t *testing.T) {
	model := &mockModel{
		generateFunc: func(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
			return `{"service": "billing"}`, nil
		},
	}
	r := NewResolver(makeTestRules(t), model)

	_, err := r.Resolve(context.Background(), "adjust the billing cycle")
	if !errors.Is(err, ErrUnidentified) {
		t.Errorf("error = %v, want ErrUnidentified", err)
	}
	if model.calls != maxModelAttempts {
		t.Errorf("model called %d times, want %d", model.calls, maxModelAttempts)
	}

	var modelOutput *datatypes.ModelOutputError
	if !errors.As(err, &modelOutput) {
		t.Fatalf("error = %v, want wrapped ModelOutputError", err)
	}
	if !strings.Contains(modelOutput.Output, "billing") {
		t.Errorf("Output = %q, want the model's answer", modelOutput.Output)
	}
}

func TestResolve_ModelTimeoutRetriedOnce(t *testing.T) {
	model := &mockModel{
		generateFunc: func(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
			return "", fmt.Errorf("ollama: %w: connection refused", llm.ErrUnavailable)
		},
	}
	r := NewResolver(makeTestRules(t), model)

	_, err := r.Resolve(context.Background(), "do something unclear")
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Errorf("error = %v, want wrapped llm.ErrUnavailable", err)
	}
	if model.calls != maxModelAttempts {
		t.Errorf("model called %d times, want %d (initial + retry)", model.calls, maxModelAttempts)
	}
}

func TestResolve_ModelOutageThenAnswer(t *testing.T) {
	model := &mockModel{}
	model.generateFunc = func(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
		if model.calls == 1 {
			return "", fmt.Errorf("ollama: %w: timeout", llm.ErrUnavailable)
		}
		return `{"service": "chat"}`, nil
	}
	r := NewResolver(makeTestRules(t), model)

	identity, err := r.Resolve(context.Background(), "do something unclear")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if identity.Name != "chat" || identity.Confidence != datatypes.ConfidenceModel {
		t.Errorf("identity = %+v", identity)
	}
	if model.calls != 2 {
		t.Errorf("model called %d times, want 2", model.calls)
	}
}

func TestResolve_EmptyUtterance(t *testing.T) {
	r := NewResolver(makeTestRules(t), &mockModel{})
	_, err := r.Resolve(context.Background(), "   ")
	if !errors.Is(err, ErrUnidentified) {
		t.Errorf("error = %v, want ErrUnidentified", err)
	}
}

func TestKnown(t *testing.T) {
	r := NewResolver(makeTestRules(t), &mockModel{})
	if !r.Known("chat") {
		t.Error("chat should be known")
	}
	if r.Known("billing") {
		t.Error("billing should not be known")
	}
}
