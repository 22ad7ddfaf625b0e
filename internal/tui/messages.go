// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"github.com/jeranaias/repochat-tui/internal/ingest"
	"github.com/jeranaias/repochat-tui/internal/model"
)

// =============================================================================
// MESSAGES
// =============================================================================

// IngestChangedMsg is delivered when the ingestion controller reports a
// state or progress change.
type IngestChangedMsg struct {
	Snapshot ingest.Snapshot
}

// TranscriptChangedMsg is delivered when the transcript changes, including
// once per streamed frame.
type TranscriptChangedMsg struct{}

// SendFinishedMsg is delivered when a send returns.
type SendFinishedMsg struct {
	Err error
}

// RepoLoadedMsg is delivered when the repository tree finishes loading for
// the file panel.
type RepoLoadedMsg struct {
	Repo *model.CachedRepository
	Err  error
}

// StreamTickMsg drives viewport refreshes while a reply is streaming, so
// rendering runs at a fixed cadence instead of once per frame.
type StreamTickMsg struct{}
