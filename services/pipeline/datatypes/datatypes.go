// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the shared types that flow through the patch
// pipeline: service identities, proposed changes, patch results, and
// the pipeline error taxonomy.
package datatypes

import (
	"fmt"

	"github.com/AleutianAI/ConfigPilot/services/schema"
)

// Confidence records how a service identity was established.
type Confidence string

const (
	// ConfidenceKeyword means keyword rules alone identified the service.
	ConfidenceKeyword Confidence = "keyword"

	// ConfidenceModel means the model fallback identified the service.
	ConfidenceModel Confidence = "model"

	// ConfidenceExplicit means the caller named the service directly.
	ConfidenceExplicit Confidence = "explicit"
)

// ChangeSource records how a proposed change was produced.
type ChangeSource string

const (
	// SourceHeuristic means lexical field matching located the change.
	SourceHeuristic ChangeSource = "heuristic"

	// SourceModel means the model fallback located the change.
	SourceModel ChangeSource = "model"
)

// ServiceIdentity is the resolved target of an utterance.
type ServiceIdentity struct {
	Name       string     `json:"name"`
	Confidence Confidence `json:"confidence"`
}

// ProposedChange is a single field update awaiting validation.
type ProposedChange struct {
	Path   schema.Pointer `json:"-"`
	Value  any            `json:"value"`
	Source ChangeSource   `json:"source"`
}

// Stage identifies which pipeline step produced an error.
type Stage string

const (
	StageResolve     Stage = "resolve"
	StageSchemaFetch Stage = "schema_fetch"
	StageLocate      Stage = "locate"
	StageValuesFetch Stage = "values_fetch"
	StageValidate    Stage = "validate"
	StageApply       Stage = "apply"
	StagePersist     Stage = "persist"
)

// ErrorKind classifies pipeline failures so callers can distinguish
// user mistakes from infrastructure outages.
type ErrorKind string

const (
	// KindUnidentified: no service could be determined for the utterance.
	KindUnidentified ErrorKind = "unidentified_service"

	// KindAmbiguousPath: the utterance could not be narrowed to one field.
	KindAmbiguousPath ErrorKind = "ambiguous_path"

	// KindNoSuchField: the located path names no field in the schema.
	KindNoSuchField ErrorKind = "no_such_field"

	// KindNoJSONFound: the model response contained no JSON at all.
	KindNoJSONFound ErrorKind = "no_json_found"

	// KindMalformedJSON: the model response contained JSON that does not parse.
	KindMalformedJSON ErrorKind = "malformed_json"

	// KindTypeMismatch: the proposed value has the wrong JSON type.
	KindTypeMismatch ErrorKind = "type_mismatch"

	// KindConstraintViolation: the proposed value breaks an enum, range,
	// pattern, or length constraint.
	KindConstraintViolation ErrorKind = "constraint_violation"

	// KindPathNotInSchema: the path was valid when located but is absent
	// from the schema used for validation.
	KindPathNotInSchema ErrorKind = "path_not_in_schema"

	// KindModelUnavailable: the model backend could not be reached.
	KindModelUnavailable ErrorKind = "model_unavailable"

	// KindSchemaUnavailable: the schema store could not serve the schema.
	KindSchemaUnavailable ErrorKind = "schema_unavailable"

	// KindValuesUnavailable: the values store could not serve the document.
	KindValuesUnavailable ErrorKind = "values_unavailable"

	// KindWriteError: persisting the patched document failed.
	KindWriteError ErrorKind = "write_error"

	// KindInternal: an unclassified failure.
	KindInternal ErrorKind = "internal"
)

// PipelineError is the structured failure a patch request ends with.
//
// Fields:
//   - Stage: the pipeline step that failed.
//   - Kind: the taxonomy classification.
//   - Message: operator-facing description, safe to log and return.
//   - Raw: the offending model output, when one exists. Truncated by
//     the producer, never by this type.
//   - Err: the underlying error. Excluded from JSON.
type PipelineError struct {
	Stage   Stage     `json:"stage"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Raw     string    `json:"raw,omitempty"`
	Err     error     `json:"-"`
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pipeline: %s at %s: %s: %v", e.Kind, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("pipeline: %s at %s: %s", e.Kind, e.Stage, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// ModelOutputError attaches the offending model output to a stage
// error so the failure report can carry it back to the caller.
// Output is redacted and truncated by the producer.
type ModelOutputError struct {
	Output string
	Err    error
}

func (e *ModelOutputError) Error() string { return e.Err.Error() }

func (e *ModelOutputError) Unwrap() error { return e.Err }

// PatchRequest is one utterance submitted for processing.
type PatchRequest struct {
	// RequestID correlates logs, traces, and journal entries.
	RequestID string `json:"request_id"`

	// Utterance is the natural language instruction.
	Utterance string `json:"utterance"`

	// Service optionally pins the target service, skipping resolution.
	Service string `json:"service,omitempty"`
}

// PatchResult is the outcome of one patch request. Applied is true
// only when the new document was validated and persisted.
type PatchResult struct {
	RequestID  string         `json:"request_id"`
	Applied    bool           `json:"applied"`
	Service    string         `json:"service,omitempty"`
	Confidence Confidence     `json:"confidence,omitempty"`
	Path       string         `json:"path,omitempty"`
	Value      any            `json:"value,omitempty"`
	Source     ChangeSource   `json:"source,omitempty"`
	Error      *PipelineError `json:"error,omitempty"`
}
