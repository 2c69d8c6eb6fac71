// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"errors"

	"github.com/AleutianAI/ConfigPilot/services/llm"
	"github.com/AleutianAI/ConfigPilot/services/pipeline/datatypes"
	"github.com/AleutianAI/ConfigPilot/services/pipeline/extract"
	"github.com/AleutianAI/ConfigPilot/services/pipeline/locate"
	"github.com/AleutianAI/ConfigPilot/services/pipeline/resolve"
	"github.com/AleutianAI/ConfigPilot/services/schema"
	"github.com/AleutianAI/ConfigPilot/services/store"
)

// classify maps a stage error onto the pipeline error taxonomy.
//
// Description:
//
//	Sentinel checks run most-specific first: extraction failures hide
//	behind locate's ambiguity wrapper, and the model outage sentinel
//	can surface from either resolver or locator. Unrecognized errors
//	become KindInternal rather than leaking raw error text categories
//	to clients.
func classify(stage datatypes.Stage, err error) *datatypes.PipelineError {
	kind := datatypes.KindInternal

	switch {
	case errors.Is(err, llm.ErrUnavailable):
		kind = datatypes.KindModelUnavailable
	case errors.Is(err, extract.ErrNoJSONFound):
		kind = datatypes.KindNoJSONFound
	case errors.Is(err, extract.ErrMalformedJSON):
		kind = datatypes.KindMalformedJSON
	case errors.Is(err, resolve.ErrUnidentified):
		kind = datatypes.KindUnidentified
	case errors.Is(err, locate.ErrNoSuchField):
		kind = datatypes.KindNoSuchField
	case errors.Is(err, locate.ErrAmbiguousPath):
		kind = datatypes.KindAmbiguousPath
	case errors.Is(err, schema.ErrTypeMismatch):
		kind = datatypes.KindTypeMismatch
	case errors.Is(err, schema.ErrConstraintViolation):
		kind = datatypes.KindConstraintViolation
	case errors.Is(err, schema.ErrPathNotInSchema):
		kind = datatypes.KindPathNotInSchema
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, store.ErrNotFound):
		switch stage {
		case datatypes.StageSchemaFetch:
			kind = datatypes.KindSchemaUnavailable
		case datatypes.StageValuesFetch:
			kind = datatypes.KindValuesUnavailable
		case datatypes.StagePersist:
			kind = datatypes.KindWriteError
		}
	}

	if kind == datatypes.KindInternal && stage == datatypes.StagePersist {
		kind = datatypes.KindWriteError
	}

	perr := &datatypes.PipelineError{
		Stage:   stage,
		Kind:    kind,
		Message: err.Error(),
		Err:     err,
	}
	var modelOutput *datatypes.ModelOutputError
	if errors.As(err, &modelOutput) {
		perr.Raw = modelOutput.Output
	}
	return perr
}
