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

import "sync"

// serviceLocks serializes the read-validate-write window per service.
// Two concurrent patches to the same service would otherwise race on
// the values document and lose one update.
//
// Thread Safety: serviceLocks is safe for concurrent use.
type serviceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newServiceLocks() *serviceLocks {
	return &serviceLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the named service and returns the release func.
// Locks are created on first use and never removed; the service set
// is small and fixed by the schema store.
func (s *serviceLocks) acquire(service string) func() {
	s.mu.Lock()
	lock, ok := s.locks[service]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[service] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
