// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package selection accumulates code excerpts the user attaches to their
// next message. Excerpts are grouped by file path and keep their selection
// order within each file.
package selection

import "sync"

// Store collects selected excerpts between sends. A path is present only
// while it has at least one excerpt; clearing removes everything.
type Store struct {
	mu       sync.Mutex
	excerpts map[string][]string
}

// NewStore creates an empty selection store.
func NewStore() *Store {
	return &Store{
		excerpts: make(map[string][]string),
	}
}

// Add appends an excerpt under a file path. Empty excerpts are ignored so a
// path can never exist with nothing under it.
func (s *Store) Add(path, excerpt string) {
	if path == "" || excerpt == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.excerpts[path] = append(s.excerpts[path], excerpt)
}

// Remove drops the excerpt at index i under a path. When the last excerpt
// goes, the path goes with it.
func (s *Store) Remove(path string, i int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.excerpts[path]
	if i < 0 || i >= len(list) {
		return
	}
	list = append(list[:i], list[i+1:]...)
	if len(list) == 0 {
		delete(s.excerpts, path)
	} else {
		s.excerpts[path] = list
	}
}

// Clear removes all selections.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.excerpts = make(map[string][]string)
}

// Snapshot returns a deep copy of the current selections. Mutating the
// result does not affect the store; sends attach the snapshot so later edits
// cannot leak into an in-flight message.
func (s *Store) Snapshot() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.excerpts) == 0 {
		return nil
	}
	out := make(map[string][]string, len(s.excerpts))
	for path, list := range s.excerpts {
		copied := make([]string, len(list))
		copy(copied, list)
		out[path] = copied
	}
	return out
}

// Len returns the total number of excerpts across all paths.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, list := range s.excerpts {
		n += len(list)
	}
	return n
}

// IsEmpty reports whether nothing is selected.
func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.excerpts) == 0
}
