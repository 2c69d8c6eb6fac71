// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package valuestore persists per-service configuration documents as
// *.values.json files. Writes go through a temp file and rename so a
// crash never leaves a half-written document behind.
package valuestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var serviceNamePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

const valuesSuffix = ".values.json"

// ErrUnknownService indicates no values document exists for a name.
var ErrUnknownService = fmt.Errorf("valuestore: unknown service")

// Service reads and writes values documents under one directory.
//
// Thread Safety: Writes are serialized with an internal mutex; the
// rename makes each read see either the old or the new document,
// never a mix.
type Service struct {
	dir string
	mu  sync.Mutex
}

// NewService validates the values directory and returns a Service.
func NewService(dir string) (*Service, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("valuestore: values directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("valuestore: %s is not a directory", dir)
	}
	return &Service{dir: dir}, nil
}

// ValidName reports whether name is acceptable as a service name.
func ValidName(name string) bool {
	return name != "" && len(name) <= 64 && serviceNamePattern.MatchString(name)
}

// Load returns the stored document for a service.
func (s *Service) Load(name string) (map[string]any, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	raw, err := os.ReadFile(filepath.Join(s.dir, name+valuesSuffix))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownService, name)
		}
		return nil, fmt.Errorf("valuestore: reading values %s: %w", name, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("valuestore: values %s: %w", name, err)
	}
	return doc, nil
}

// Store replaces the document for a service atomically.
//
// Description:
//
//	The document is marshaled to a temp file in the same directory,
//	fsynced, then renamed over the target. Concurrent Store calls
//	are serialized.
func (s *Service) Store(name string, doc map[string]any) error {
	if !ValidName(name) {
		return fmt.Errorf("valuestore: invalid service name %q", name)
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("valuestore: marshaling values %s: %w", name, err)
	}
	payload = append(payload, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, name+".values.*.tmp")
	if err != nil {
		return fmt.Errorf("valuestore: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("valuestore: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("valuestore: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("valuestore: closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name+valuesSuffix)); err != nil {
		return fmt.Errorf("valuestore: replacing values %s: %w", name, err)
	}
	return nil
}
