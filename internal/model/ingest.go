// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "fmt"

// =============================================================================
// INGEST STATE
// =============================================================================

// IngestState is the server-side ingestion lifecycle state of a conversation.
// Exactly one value holds per conversation at any instant.
type IngestState string

const (
	// IngestNotStarted indicates ingestion has not been requested yet.
	IngestNotStarted IngestState = "not_started"

	// IngestInProgress indicates the server is cloning/indexing the repository.
	IngestInProgress IngestState = "in_progress"

	// IngestCompleted indicates the repository is indexed and chat is available.
	IngestCompleted IngestState = "completed"

	// IngestFailed indicates ingestion failed; recoverable via explicit retry.
	IngestFailed IngestState = "failed"
)

// String returns the string representation of the state.
func (s IngestState) String() string {
	return string(s)
}

// IsTerminal reports whether the state ends the ingestion lifecycle for the
// current session. A completed conversation may still report not_started on a
// later session if the server decides re-indexing is needed.
func (s IngestState) IsTerminal() bool {
	return s == IngestCompleted || s == IngestFailed
}

// CanTransition reports whether moving from s to next is a valid edge.
// States only move forward except failed -> in_progress (explicit retry).
// Same-state transitions are idempotent.
func (s IngestState) CanTransition(next IngestState) bool {
	if s == next {
		return true
	}

	switch s {
	case IngestNotStarted:
		// Begin may short-circuit straight to completed when the server
		// reports the repository was already indexed.
		return next == IngestInProgress || next == IngestCompleted || next == IngestFailed
	case IngestInProgress:
		return next == IngestCompleted || next == IngestFailed
	case IngestFailed:
		// The only backward edge: user-driven retry.
		return next == IngestInProgress || next == IngestNotStarted
	case IngestCompleted:
		return false
	default:
		return false
	}
}

// ParseIngestState converts a wire value into an IngestState.
// The server's "indexing_started" alias maps to in_progress.
func ParseIngestState(raw string) (IngestState, error) {
	switch raw {
	case "not_started":
		return IngestNotStarted, nil
	case "in_progress", "indexing_started":
		return IngestInProgress, nil
	case "completed":
		return IngestCompleted, nil
	case "failed":
		return IngestFailed, nil
	default:
		return IngestFailed, fmt.Errorf("unknown ingest state %q", raw)
	}
}

// ClampProgress bounds an ingestion progress value to [0,100].
func ClampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
