// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewUserMessage(t *testing.T) {
	msg := NewUserMessage("Hello")

	if msg.Role != RoleUser {
		t.Errorf("Role = %q, want %q", msg.Role, RoleUser)
	}
	if msg.Content != "Hello" {
		t.Errorf("Content = %q, want %q", msg.Content, "Hello")
	}
	if msg.ID != "" {
		t.Errorf("user messages should carry no ID, got %q", msg.ID)
	}
}

func TestNewAssistantPlaceholder(t *testing.T) {
	a := NewAssistantPlaceholder()
	b := NewAssistantPlaceholder()

	if a.Role != RoleAssistant {
		t.Errorf("Role = %q, want %q", a.Role, RoleAssistant)
	}
	if !a.IsEmpty() {
		t.Error("placeholder should start empty")
	}
	if !strings.HasPrefix(a.ID, "msg_") {
		t.Errorf("ID should start with 'msg_', got %q", a.ID)
	}
	if a.ID == b.ID {
		t.Error("placeholder IDs must be unique")
	}
}

func TestMessagePreview(t *testing.T) {
	tests := []struct {
		name    string
		content string
		maxLen  int
		want    string
	}{
		{"short", "hi", 10, "hi"},
		{"exact", "hello", 5, "hello"},
		{"truncated", "hello world", 8, "hello..."},
		{"newlines flattened", "a\nb", 10, "a b"},
		{"unicode safe", "héllo wörld", 8, "héllo..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Message{Content: tt.content}.Preview(tt.maxLen)
			if got != tt.want {
				t.Errorf("Preview(%d) = %q, want %q", tt.maxLen, got, tt.want)
			}
		})
	}
}

// =============================================================================
// INGEST STATE TESTS
// =============================================================================

func TestIngestStateTransitions(t *testing.T) {
	tests := []struct {
		from IngestState
		to   IngestState
		ok   bool
	}{
		{IngestNotStarted, IngestInProgress, true},
		{IngestNotStarted, IngestCompleted, true}, // already-indexed short circuit
		{IngestNotStarted, IngestFailed, true},
		{IngestInProgress, IngestCompleted, true},
		{IngestInProgress, IngestFailed, true},
		{IngestInProgress, IngestNotStarted, false},
		{IngestFailed, IngestInProgress, true}, // retry, the only backward edge
		{IngestCompleted, IngestInProgress, false},
		{IngestCompleted, IngestFailed, false},
		{IngestCompleted, IngestCompleted, true}, // idempotent
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestParseIngestState(t *testing.T) {
	tests := []struct {
		raw     string
		want    IngestState
		wantErr bool
	}{
		{"not_started", IngestNotStarted, false},
		{"in_progress", IngestInProgress, false},
		{"indexing_started", IngestInProgress, false},
		{"completed", IngestCompleted, false},
		{"failed", IngestFailed, false},
		{"bogus", IngestFailed, true},
	}

	for _, tt := range tests {
		got, err := ParseIngestState(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseIngestState(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseIngestState(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if IngestNotStarted.IsTerminal() || IngestInProgress.IsTerminal() {
		t.Error("not_started and in_progress are not terminal")
	}
	if !IngestCompleted.IsTerminal() || !IngestFailed.IsTerminal() {
		t.Error("completed and failed are terminal")
	}
}

func TestClampProgress(t *testing.T) {
	if got := ClampProgress(-5); got != 0 {
		t.Errorf("ClampProgress(-5) = %v, want 0", got)
	}
	if got := ClampProgress(150); got != 100 {
		t.Errorf("ClampProgress(150) = %v, want 100", got)
	}
	if got := ClampProgress(42.5); got != 42.5 {
		t.Errorf("ClampProgress(42.5) = %v, want 42.5", got)
	}
}

// =============================================================================
// CACHED REPOSITORY TESTS
// =============================================================================

func TestCachedRepositoryLookup(t *testing.T) {
	repo := &CachedRepository{
		Files: []RepoFile{
			{Path: "src/main.ts", Content: "export default ..."},
			{Path: "package.json", Content: "{}"},
		},
		SourceURL: "https://github.com/acme/widget",
	}

	if repo.FileCount() != 2 {
		t.Errorf("FileCount = %d, want 2", repo.FileCount())
	}

	content, ok := repo.Lookup("src/main.ts")
	if !ok || content != "export default ..." {
		t.Errorf("Lookup(src/main.ts) = (%q, %v)", content, ok)
	}

	if _, ok := repo.Lookup("missing.ts"); ok {
		t.Error("Lookup should miss for unknown path")
	}

	paths := repo.Paths()
	if len(paths) != 2 || paths[0] != "package.json" {
		t.Errorf("Paths() = %v, want sorted order", paths)
	}
}
