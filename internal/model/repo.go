// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "sort"

// =============================================================================
// CACHED REPOSITORY
// =============================================================================

// RepoFile is one flattened path/content pair of a fetched repository.
type RepoFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// CachedRepository is the materialized file set of a conversation's
// repository, as returned by the backend and persisted in the local cache.
type CachedRepository struct {
	Files     []RepoFile `json:"files"`
	SourceURL string     `json:"github_url"`
}

// FileCount returns the number of files in the repository.
func (r *CachedRepository) FileCount() int {
	return len(r.Files)
}

// Lookup returns the content of the file at path, if present.
func (r *CachedRepository) Lookup(path string) (string, bool) {
	for _, f := range r.Files {
		if f.Path == path {
			return f.Content, true
		}
	}
	return "", false
}

// Paths returns all file paths in sorted order, for stable tree rendering.
func (r *CachedRepository) Paths() []string {
	paths := make([]string, 0, len(r.Files))
	for _, f := range r.Files {
		paths = append(paths, f.Path)
	}
	sort.Strings(paths)
	return paths
}
