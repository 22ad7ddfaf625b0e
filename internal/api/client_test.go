// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/jeranaias/repochat-tui/internal/config"
	"github.com/jeranaias/repochat-tui/internal/model"
)

func testClient(serverURL string) *Client {
	cfg := config.DefaultConfig()
	cfg.Backend.Token = "tok_test"
	cfg.Backend.UserID = "u_test"
	return NewClient(cfg).WithBaseURL(serverURL)
}

func TestBeginIngest_AlreadyIndexed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ingest/conv1" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok_test" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{"status": "completed"}`))
	}))
	defer server.Close()

	state, err := testClient(server.URL).BeginIngest(context.Background(), "conv1")
	if err != nil {
		t.Fatalf("BeginIngest failed: %v", err)
	}
	if state != model.IngestCompleted {
		t.Errorf("state = %v, want completed", state)
	}
}

func TestBeginIngest_Started(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "indexing_started"}`))
	}))
	defer server.Close()

	state, err := testClient(server.URL).BeginIngest(context.Background(), "conv1")
	if err != nil {
		t.Fatalf("BeginIngest failed: %v", err)
	}
	if state != model.IngestInProgress {
		t.Errorf("state = %v, want in_progress", state)
	}
}

func TestGetIngestStatus_Progress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ingest/conv1/status" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"status": "in_progress", "progress": 42.5}`))
	}))
	defer server.Close()

	status, err := testClient(server.URL).GetIngestStatus(context.Background(), "conv1")
	if err != nil {
		t.Fatalf("GetIngestStatus failed: %v", err)
	}
	if status.State != model.IngestInProgress {
		t.Errorf("state = %v", status.State)
	}
	if status.Progress == nil || *status.Progress != 42.5 {
		t.Errorf("progress = %v, want 42.5", status.Progress)
	}
}

func TestGetIngestStatus_NoProgress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "completed"}`))
	}))
	defer server.Close()

	status, err := testClient(server.URL).GetIngestStatus(context.Background(), "conv1")
	if err != nil {
		t.Fatalf("GetIngestStatus failed: %v", err)
	}
	if status.Progress != nil {
		t.Errorf("progress = %v, want nil", status.Progress)
	}
}

func TestValidate_Sentinels(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"not found", http.StatusNotFound, `{"detail": "Chat not found"}`, ErrNotFound},
		{"forbidden", http.StatusForbidden, `{"detail": "Not your chat"}`, ErrForbidden},
		{"unauthorized", http.StatusUnauthorized, `{"detail": "Bad token"}`, ErrAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := testClient(server.URL).Validate(context.Background(), "conv1")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_OK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["user_id"] != "u_test" {
			t.Errorf("user_id = %q", body["user_id"])
		}
		w.Write([]byte(`{"is_bookmarked": true}`))
	}))
	defer server.Close()

	status, err := testClient(server.URL).Validate(context.Background(), "conv1")
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !status.IsBookmarked {
		t.Error("expected bookmarked")
	}
}

func TestFetchMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/conv1/fetch/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"messages": [
			{"role": "user", "content": "what does this repo do?"},
			{"role": "assistant", "content": "It serves cat pictures."}
		]}`))
	}))
	defer server.Close()

	msgs, err := testClient(server.URL).FetchMessages(context.Background(), "conv1")
	if err != nil {
		t.Fatalf("FetchMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[1].Role != model.RoleAssistant {
		t.Errorf("roles = %v, %v", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].Content != "It serves cat pictures." {
		t.Errorf("content = %q", msgs[1].Content)
	}
}

func TestFetchRepo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"files": [{"path": "main.go", "content": "package main"}],
			"github_url": "https://github.com/example/repo"
		}`))
	}))
	defer server.Close()

	repo, err := testClient(server.URL).FetchRepo(context.Background(), "conv1")
	if err != nil {
		t.Fatalf("FetchRepo failed: %v", err)
	}
	if repo.FileCount() != 1 {
		t.Errorf("file count = %d", repo.FileCount())
	}
	if repo.SourceURL != "https://github.com/example/repo" {
		t.Errorf("source url = %q", repo.SourceURL)
	}
}

func TestRetry_ServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"status": "completed"}`))
	}))
	defer server.Close()

	state, err := testClient(server.URL).BeginIngest(context.Background(), "conv1")
	if err != nil {
		t.Fatalf("BeginIngest should succeed after retries: %v", err)
	}
	if state != model.IngestCompleted {
		t.Errorf("state = %v", state)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestNoRetry_ClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail": "Chat not found"}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).FetchRepo(context.Background(), "conv1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if calls.Load() != 1 {
		t.Errorf("4xx should not be retried, got %d calls", calls.Load())
	}
}

func TestDelete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/chat/conv1" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"status": "deleted"}`))
	}))
	defer server.Close()

	if err := testClient(server.URL).Delete(context.Background(), "conv1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
}

func TestRecents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/recents" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"chats": [
			{"conversation_id": "c1", "repo_name": "example/repo", "is_bookmarked": false}
		]}`))
	}))
	defer server.Close()

	chats, err := testClient(server.URL).Recents(context.Background())
	if err != nil {
		t.Fatalf("Recents failed: %v", err)
	}
	if len(chats) != 1 || chats[0].ConversationID != "c1" {
		t.Errorf("chats = %+v", chats)
	}
}

func TestHandleErrorResponse_NotIndexed(t *testing.T) {
	err := handleErrorResponse(http.StatusBadRequest, []byte(`{"detail": "Repository not indexed yet"}`))
	if !errors.Is(err, ErrNotIndexed) {
		t.Errorf("err = %v, want ErrNotIndexed", err)
	}
}

func TestHandleErrorResponse_UnparseableBody(t *testing.T) {
	err := handleErrorResponse(http.StatusInternalServerError, []byte("<html>oops</html>"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusInternalServerError {
		t.Errorf("status = %d", apiErr.Status)
	}
}
