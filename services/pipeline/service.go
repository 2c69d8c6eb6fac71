// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline coordinates the stages that turn a natural
// language utterance into a validated, persisted configuration patch.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/ConfigPilot/services/audit"
	"github.com/AleutianAI/ConfigPilot/services/pipeline/datatypes"
	"github.com/AleutianAI/ConfigPilot/services/pipeline/patch"
	"github.com/AleutianAI/ConfigPilot/services/schema"
	"github.com/AleutianAI/ConfigPilot/services/store"
)

var pipelineTracer = otel.Tracer("aleutian.pilot.pipeline")

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// ServiceResolver identifies which service an utterance targets.
type ServiceResolver interface {
	Resolve(ctx context.Context, utterance string) (datatypes.ServiceIdentity, error)

	// Known reports whether name is a configured service, for
	// membership-checking explicitly pinned services.
	Known(name string) bool
}

// PathLocator narrows an utterance to one field and a proposed value.
type PathLocator interface {
	Locate(ctx context.Context, utterance string, fields []schema.Field) (datatypes.ProposedChange, error)
}

// SchemaFetcher serves schema documents by service name.
type SchemaFetcher interface {
	GetSchema(ctx context.Context, service string) ([]byte, error)
	ListServices(ctx context.Context) ([]string, error)
}

// ValuesStore serves and persists configuration documents.
type ValuesStore interface {
	GetValues(ctx context.Context, service string) (map[string]any, error)
	PutValues(ctx context.Context, service string, doc map[string]any) error
}

// =============================================================================
// Service
// =============================================================================

// Service is the patch pipeline coordinator.
//
// Description:
//
//	Sequences resolve, schema fetch, locate, validate, apply, and
//	persist. The read-validate-write window is serialized per target
//	service so concurrent patches cannot lose updates. Every attempt,
//	applied or failed, is journaled best-effort.
//
// Thread Safety: Service is safe for concurrent use.
type Service struct {
	resolver ServiceResolver
	locator  PathLocator
	schemas  SchemaFetcher
	values   ValuesStore
	journal  *audit.Journal
	locks    *serviceLocks
}

// NewService wires a pipeline Service. journal may be nil, which
// disables audit logging.
func NewService(resolver ServiceResolver, locator PathLocator, schemas SchemaFetcher, values ValuesStore, journal *audit.Journal) *Service {
	return &Service{
		resolver: resolver,
		locator:  locator,
		schemas:  schemas,
		values:   values,
		journal:  journal,
		locks:    newServiceLocks(),
	}
}

// History returns the most recent journaled patch attempts for a
// service, newest first.
func (s *Service) History(ctx context.Context, service string, limit int) ([]audit.PatchRecord, error) {
	return s.journal.List(ctx, service, limit)
}

// Services lists the names known to the schema store.
func (s *Service) Services(ctx context.Context) ([]string, error) {
	return s.schemas.ListServices(ctx)
}

// Handle runs one utterance through the full pipeline.
//
// Description:
//
//	The result always carries the request ID and, once known, the
//	resolved service. Applied is true only when the patched document
//	was validated and persisted; otherwise Error classifies exactly
//	what went wrong and at which stage.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - req: The utterance plus optional explicit service pin.
//
// Outputs:
//   - *datatypes.PatchResult: Never nil.
func (s *Service) Handle(ctx context.Context, req datatypes.PatchRequest) *datatypes.PatchResult {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.Handle",
		oteltrace.WithAttributes(attribute.String("request_id", req.RequestID)),
	)
	defer span.End()
	start := time.Now()

	result := &datatypes.PatchResult{RequestID: req.RequestID}
	defer func() {
		patchLatency.Observe(time.Since(start).Seconds())
		s.journalAttempt(ctx, req, result, time.Since(start))
		s.countOutcome(result)
	}()

	// Stage: resolve.
	identity, perr := s.resolveIdentity(ctx, req)
	if perr != nil {
		result.Error = perr
		return result
	}
	result.Service = identity.Name
	result.Confidence = identity.Confidence
	span.SetAttributes(
		attribute.String("service", identity.Name),
		attribute.String("confidence", string(identity.Confidence)),
	)

	// Stage: schema fetch.
	rawSchema, err := s.schemas.GetSchema(ctx, identity.Name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) && identity.Confidence == datatypes.ConfidenceExplicit {
			// The caller named a service nobody knows. That is an
			// identification problem, not a store outage.
			result.Error = &datatypes.PipelineError{
				Stage:   datatypes.StageResolve,
				Kind:    datatypes.KindUnidentified,
				Message: "unknown service " + identity.Name,
				Err:     err,
			}
			return result
		}
		result.Error = classify(datatypes.StageSchemaFetch, err)
		return result
	}
	doc, err := schema.ParseDocument(rawSchema)
	if err != nil {
		result.Error = classify(datatypes.StageSchemaFetch, err)
		return result
	}
	fields := doc.Flatten()

	// Stage: locate.
	change, err := s.locator.Locate(ctx, req.Utterance, fields)
	if err != nil {
		result.Error = classify(datatypes.StageLocate, err)
		return result
	}
	result.Path = change.Path.String()
	result.Value = change.Value
	result.Source = change.Source
	span.SetAttributes(
		attribute.String("path", result.Path),
		attribute.String("source", string(change.Source)),
	)

	// The read-validate-write window below must not interleave with
	// another patch to the same service.
	release := s.locks.acquire(identity.Name)
	defer release()

	// Stage: values fetch. A service with a schema but no stored
	// document yet starts from an empty one.
	current, err := s.values.GetValues(ctx, identity.Name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		result.Error = classify(datatypes.StageValuesFetch, err)
		return result
	}

	// Stage: validate.
	if err := schema.Validate(doc, change.Path, change.Value); err != nil {
		result.Error = classify(datatypes.StageValidate, err)
		return result
	}

	// Stage: apply.
	patched, err := patch.Apply(current, change.Path, change.Value)
	if err != nil {
		result.Error = classify(datatypes.StageApply, err)
		return result
	}

	// Stage: persist.
	if err := s.values.PutValues(ctx, identity.Name, patched); err != nil {
		result.Error = classify(datatypes.StagePersist, err)
		return result
	}

	result.Applied = true
	slog.Info("patch applied",
		slog.String("request_id", req.RequestID),
		slog.String("service", identity.Name),
		slog.String("path", result.Path),
		slog.String("confidence", string(identity.Confidence)),
		slog.String("source", string(change.Source)),
		slog.Duration("duration", time.Since(start)),
	)
	return result
}

func (s *Service) resolveIdentity(ctx context.Context, req datatypes.PatchRequest) (datatypes.ServiceIdentity, *datatypes.PipelineError) {
	if req.Service != "" {
		if !s.resolver.Known(req.Service) {
			return datatypes.ServiceIdentity{}, &datatypes.PipelineError{
				Stage:   datatypes.StageResolve,
				Kind:    datatypes.KindUnidentified,
				Message: "unknown service " + req.Service,
			}
		}
		return datatypes.ServiceIdentity{
			Name:       req.Service,
			Confidence: datatypes.ConfidenceExplicit,
		}, nil
	}
	identity, err := s.resolver.Resolve(ctx, req.Utterance)
	if err != nil {
		return datatypes.ServiceIdentity{}, classify(datatypes.StageResolve, err)
	}
	return identity, nil
}

func (s *Service) journalAttempt(ctx context.Context, req datatypes.PatchRequest, result *datatypes.PatchResult, elapsed time.Duration) {
	rec := &audit.PatchRecord{
		RequestID:  req.RequestID,
		Service:    result.Service,
		Utterance:  req.Utterance,
		Path:       result.Path,
		Value:      result.Value,
		Applied:    result.Applied,
		Confidence: string(result.Confidence),
		Source:     string(result.Source),
		DurationMs: elapsed.Milliseconds(),
	}
	if result.Error != nil {
		rec.ErrorKind = string(result.Error.Kind)
		rec.Stage = string(result.Error.Stage)
	}
	if rec.Service == "" {
		// Journal unidentified requests under a reserved bucket so
		// they remain inspectable.
		rec.Service = "_unresolved"
	}
	if err := s.journal.Record(ctx, rec); err != nil {
		slog.Warn("audit journaling failed",
			slog.String("request_id", req.RequestID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) countOutcome(result *datatypes.PatchResult) {
	if result.Applied {
		patchRequests.WithLabelValues("applied").Inc()
		return
	}
	if result.Error != nil {
		patchRequests.WithLabelValues(string(result.Error.Kind)).Inc()
		stageFailures.WithLabelValues(string(result.Error.Stage), string(result.Error.Kind)).Inc()
	}
}
