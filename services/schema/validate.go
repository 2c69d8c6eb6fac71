// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
)

var (
	// ErrPathNotInSchema indicates the pointer does not name any leaf
	// of the schema being validated against.
	ErrPathNotInSchema = errors.New("schema: path not present in schema")

	// ErrTypeMismatch indicates the value's JSON type does not match
	// the field's declared type.
	ErrTypeMismatch = errors.New("schema: value type does not match field type")

	// ErrConstraintViolation indicates the value has the right type
	// but falls outside an enum, range, pattern, or length constraint.
	ErrConstraintViolation = errors.New("schema: value violates field constraint")
)

// Validate checks value against the field addressed by ptr.
//
// Description:
//
//	Validation is two-phase: the JSON type is checked first, then every
//	constraint the schema declares for the field. The first failing
//	check wins. Values are expected in their decoded JSON form, so all
//	numbers arrive as float64; an "integer" field accepts a float64
//	only when it carries no fractional part.
//
// Inputs:
//   - doc: the schema to validate against.
//   - ptr: the leaf field being written.
//   - value: the decoded candidate value.
//
// Outputs:
//   - error: nil on success, otherwise wraps ErrPathNotInSchema,
//     ErrTypeMismatch, or ErrConstraintViolation.
func Validate(doc Document, ptr Pointer, value any) error {
	field, ok := doc.Lookup(ptr)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPathNotInSchema, ptr)
	}
	return ValidateField(field, value)
}

// ValidateField checks value against a single flattened field. Callers
// that already hold the flattened list can skip the pointer lookup.
func ValidateField(field Field, value any) error {
	if err := checkType(field, value); err != nil {
		return err
	}
	return checkConstraints(field, value)
}

func checkType(field Field, value any) error {
	switch field.Type {
	case "":
		return nil
	case "string":
		if _, ok := value.(string); !ok {
			return typeErr(field, value, "string")
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return typeErr(field, value, "boolean")
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return typeErr(field, value, "number")
		}
	case "integer":
		f, ok := value.(float64)
		if !ok || math.Trunc(f) != f {
			return typeErr(field, value, "integer")
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return typeErr(field, value, "array")
		}
	default:
		return fmt.Errorf("%w: field %s declares unsupported type %q",
			ErrTypeMismatch, field.Path, field.Type)
	}
	return nil
}

func typeErr(field Field, value any, want string) error {
	return fmt.Errorf("%w: field %s wants %s, got %T",
		ErrTypeMismatch, field.Path, want, value)
}

func checkConstraints(field Field, value any) error {
	if len(field.Enum) > 0 {
		if !enumContains(field.Enum, value) {
			return fmt.Errorf("%w: field %s only accepts %v",
				ErrConstraintViolation, field.Path, field.Enum)
		}
	}

	if f, ok := value.(float64); ok {
		if field.Minimum != nil && f < *field.Minimum {
			return fmt.Errorf("%w: field %s minimum is %v, got %v",
				ErrConstraintViolation, field.Path, *field.Minimum, f)
		}
		if field.Maximum != nil && f > *field.Maximum {
			return fmt.Errorf("%w: field %s maximum is %v, got %v",
				ErrConstraintViolation, field.Path, *field.Maximum, f)
		}
	}

	if s, ok := value.(string); ok {
		if field.MinLength != nil && len(s) < *field.MinLength {
			return fmt.Errorf("%w: field %s requires at least %d characters",
				ErrConstraintViolation, field.Path, *field.MinLength)
		}
		if field.MaxLength != nil && len(s) > *field.MaxLength {
			return fmt.Errorf("%w: field %s allows at most %d characters",
				ErrConstraintViolation, field.Path, *field.MaxLength)
		}
		if field.Pattern != "" {
			re, err := regexp.Compile(field.Pattern)
			if err != nil {
				return fmt.Errorf("%w: field %s has an invalid pattern: %v",
					ErrConstraintViolation, field.Path, err)
			}
			if !re.MatchString(s) {
				return fmt.Errorf("%w: field %s must match %q",
					ErrConstraintViolation, field.Path, field.Pattern)
			}
		}
	}
	return nil
}

func enumContains(enum []any, value any) bool {
	for _, member := range enum {
		if reflect.DeepEqual(member, value) {
			return true
		}
	}
	return false
}
