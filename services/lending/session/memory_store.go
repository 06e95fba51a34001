// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and by deployments
// that do not want an on-disk session database. Expiry is evaluated
// lazily on Get against an injectable clock.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// Now is the clock used for TTL checks. Defaults to time.Now.
	Now func() time.Time
}

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		Now:     time.Now,
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return State{}, false, nil
	}
	if s.Now().After(entry.expiresAt) {
		delete(s.entries, id)
		return State{}, false, nil
	}
	return entry.state, true, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, id string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = memoryEntry{state: state, expiresAt: s.Now().Add(TTL)}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
