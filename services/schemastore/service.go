// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schemastore serves configuration schemas from a directory
// of *.schema.json files. Schemas are read on every request so edits
// on disk show up without a restart.
package schemastore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// serviceNamePattern bounds names so they stay safe as file name
// stems and URL segments.
var serviceNamePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

const schemaSuffix = ".schema.json"

// ErrUnknownService indicates no schema file exists for a name.
var ErrUnknownService = fmt.Errorf("schemastore: unknown service")

// Service reads schemas from a single directory.
//
// Thread Safety: Service holds no mutable state; the filesystem is
// the source of truth.
type Service struct {
	dir string
}

// NewService validates the schema directory and returns a Service.
func NewService(dir string) (*Service, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schemastore: schema directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("schemastore: %s is not a directory", dir)
	}
	return &Service{dir: dir}, nil
}

// ValidName reports whether name is acceptable as a service name.
func ValidName(name string) bool {
	return name != "" && len(name) <= 64 && serviceNamePattern.MatchString(name)
}

// ListNames returns the service names with a schema file, sorted.
func (s *Service) ListNames() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+schemaSuffix))
	if err != nil {
		return nil, fmt.Errorf("schemastore: scanning %s: %w", s.dir, err)
	}
	names := make([]string, 0, len(matches))
	for _, match := range matches {
		name := strings.TrimSuffix(filepath.Base(match), schemaSuffix)
		if ValidName(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Load returns the raw schema document for a service.
//
// Outputs:
//   - []byte: The schema JSON, verbatim from disk.
//   - error: ErrUnknownService when no file exists; other errors for
//     unreadable or syntactically invalid files.
func (s *Service) Load(name string) ([]byte, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	raw, err := os.ReadFile(filepath.Join(s.dir, name+schemaSuffix))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownService, name)
		}
		return nil, fmt.Errorf("schemastore: reading schema %s: %w", name, err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("schemastore: schema %s is not valid JSON", name)
	}
	return raw, nil
}
