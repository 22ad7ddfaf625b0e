// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func sseHandler(t *testing.T, frames []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer does not support flushing")
		}
		for _, frame := range frames {
			io.WriteString(w, "data: "+frame+"\n\n")
			flusher.Flush()
		}
	}
}

func TestSendMessage_CumulativeFrames(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, []string{
		`{"content": "Th"}`,
		`{"content": "This f"}`,
		`{"content": "This file exports the auth middleware."}`,
	}))
	defer server.Close()

	var frames []Frame
	err := testClient(server.URL).SendMessage(context.Background(), "conv1",
		SendRequest{Message: "what does auth.ts do?", Model: "test-model"},
		func(f Frame) { frames = append(frames, f) })
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	// Each frame carries the full accumulated text; the last one wins.
	if frames[2].Content != "This file exports the auth middleware." {
		t.Errorf("final frame = %q", frames[2].Content)
	}
	if !strings.HasPrefix(frames[2].Content, frames[1].Content[:4]) {
		t.Errorf("frames should be cumulative")
	}
}

func TestSendMessage_SkipsMalformedFrames(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, []string{
		`{"content": "Hello"}`,
		`{not json at all`,
		`{"content": "Hello world"}`,
	}))
	defer server.Close()

	var frames []Frame
	err := testClient(server.URL).SendMessage(context.Background(), "conv1",
		SendRequest{Message: "hi", Model: "test-model"},
		func(f Frame) { frames = append(frames, f) })
	if err != nil {
		t.Fatalf("SendMessage should survive malformed frames: %v", err)
	}

	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2 (malformed skipped)", len(frames))
	}
	if frames[1].Content != "Hello world" {
		t.Errorf("final frame = %q", frames[1].Content)
	}
}

func TestSendMessage_RequestBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/conv1/message" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body sendBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.UserID != "u_test" {
			t.Errorf("user_id = %q", body.UserID)
		}
		if body.Message != "explain main.go" {
			t.Errorf("message = %q", body.Message)
		}
		if got := body.SelectedContext["a.ts"]; len(got) != 2 || got[0] != "foo" || got[1] != "bar" {
			t.Errorf("selected_context = %v", body.SelectedContext)
		}
		io.WriteString(w, "data: {\"content\": \"ok\"}\n\n")
	}))
	defer server.Close()

	err := testClient(server.URL).SendMessage(context.Background(), "conv1",
		SendRequest{
			Message:         "explain main.go",
			Model:           "test-model",
			SelectedContext: map[string][]string{"a.ts": {"foo", "bar"}},
		},
		func(Frame) {})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
}

func TestSendMessage_ErrorBeforeStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail": "Repository not indexed yet"}`))
	}))
	defer server.Close()

	var called bool
	err := testClient(server.URL).SendMessage(context.Background(), "conv1",
		SendRequest{Message: "hi", Model: "test-model"},
		func(Frame) { called = true })
	if !errors.Is(err, ErrNotIndexed) {
		t.Errorf("err = %v, want ErrNotIndexed", err)
	}
	if called {
		t.Error("callback must not run on error responses")
	}
}

func TestSendMessage_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		io.WriteString(w, "data: {\"content\": \"partial\"}\n\n")
		flusher.Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	err := testClient(server.URL).SendMessage(ctx, "conv1",
		SendRequest{Message: "hi", Model: "test-model"},
		func(f Frame) {
			if f.Content == "partial" {
				cancel()
			}
		})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
}

func TestSSEReader_MultiLineAndComments(t *testing.T) {
	input := ": keepalive comment\n" +
		"event: message\n" +
		"data: {\"content\":\n" +
		"data: \"x\"}\n" +
		"\n" +
		"data: [DONE]\n\n"

	reader := NewSSEReader(strings.NewReader(input))

	eventType, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}
	if eventType != "message" {
		t.Errorf("event type = %q", eventType)
	}
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("multi-line data should join into valid JSON: %v (data=%q)", err, data)
	}
	if frame.Content != "x" {
		t.Errorf("content = %q", frame.Content)
	}

	_, data, err = reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}
	if string(data) != "[DONE]" {
		t.Errorf("data = %q", data)
	}

	if _, _, err = reader.ReadEvent(); err != io.EOF {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestParseFrame(t *testing.T) {
	frame, err := ParseFrame([]byte(`{"content": "hello"}`))
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if frame.Content != "hello" {
		t.Errorf("content = %q", frame.Content)
	}

	if _, err := ParseFrame([]byte(`garbage`)); err == nil {
		t.Error("expected error for malformed frame")
	}
}
