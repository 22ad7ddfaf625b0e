// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/repochat-tui/internal/api"
	"github.com/jeranaias/repochat-tui/internal/model"
	"github.com/jeranaias/repochat-tui/internal/selection"
)

// fakeBackend scripts history and stream frames.
type fakeBackend struct {
	mu      sync.Mutex
	history []model.Message
	frames  []string
	sendErr error

	lastReq api.SendRequest
	// block, when set, holds the stream open until released.
	block chan struct{}
}

func (f *fakeBackend) FetchMessages(ctx context.Context, id string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history, nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, id string, req api.SendRequest, cb api.FrameCallback) error {
	f.mu.Lock()
	f.lastReq = req
	frames := f.frames
	block := f.block
	sendErr := f.sendErr
	f.mu.Unlock()

	for _, content := range frames {
		cb(api.Frame{Content: content})
	}
	if block != nil {
		<-block
	}
	return sendErr
}

func newTestEngine(backend *fakeBackend, sel *selection.Store) *Engine {
	return NewEngine(backend, "conv1", "test-model", sel, nil)
}

// waitStreaming blocks until a send has taken the streaming slot.
func waitStreaming(t *testing.T, e *Engine) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !e.IsStreaming() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for streaming to start")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSend_CumulativeFramesOneAssistantMessage(t *testing.T) {
	backend := &fakeBackend{
		frames: []string{"Th", "This f", "This file exports the auth middleware."},
	}
	e := newTestEngine(backend, nil)

	if err := e.Send(context.Background(), "what does auth.ts do?"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	msgs := e.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want user + assistant", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[0].Content != "what does auth.ts do?" {
		t.Errorf("user message = %+v", msgs[0])
	}
	if msgs[1].Role != model.RoleAssistant {
		t.Errorf("assistant role = %v", msgs[1].Role)
	}
	// Every frame replaces the placeholder; only the final text survives.
	if msgs[1].Content != "This file exports the auth middleware." {
		t.Errorf("assistant content = %q", msgs[1].Content)
	}
	if e.IsStreaming() {
		t.Error("streaming flag must clear after send")
	}
}

func TestSend_WhitespaceNoOp(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(backend, nil)

	if err := e.Send(context.Background(), "   \n\t "); err != nil {
		t.Fatalf("whitespace send should be a silent no-op, got %v", err)
	}
	if len(e.Messages()) != 0 {
		t.Errorf("no-op send must not touch the transcript: %v", e.Messages())
	}
}

func TestSend_SerializedSends(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{})}
	e := newTestEngine(backend, nil)

	done := make(chan error, 1)
	go func() { done <- e.Send(context.Background(), "first") }()

	// Wait for the first send to take the streaming slot.
	waitStreaming(t, e)

	if err := e.Send(context.Background(), "second"); !errors.Is(err, ErrSendInProgress) {
		t.Errorf("err = %v, want ErrSendInProgress", err)
	}

	close(backend.block)
	if err := <-done; err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	// Slot released; the next send works.
	backend.mu.Lock()
	backend.block = nil
	backend.mu.Unlock()
	if err := e.Send(context.Background(), "third"); err != nil {
		t.Fatalf("send after release failed: %v", err)
	}
}

func TestSend_ReadyGate(t *testing.T) {
	backend := &fakeBackend{}
	ready := false
	e := NewEngine(backend, "conv1", "test-model", nil, func() bool { return ready })

	if err := e.Send(context.Background(), "hello"); !errors.Is(err, ErrNotReady) {
		t.Errorf("err = %v, want ErrNotReady", err)
	}
	if len(e.Messages()) != 0 {
		t.Error("gated send must not touch the transcript")
	}

	ready = true
	if err := e.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send after ready failed: %v", err)
	}
}

func TestSend_ErrorKeepsPartialAndClearsStreaming(t *testing.T) {
	backend := &fakeBackend{
		frames:  []string{"partial answ"},
		sendErr: errors.New("connection reset"),
	}
	e := newTestEngine(backend, nil)

	err := e.Send(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected transport error")
	}
	if e.IsStreaming() {
		t.Error("streaming flag must clear on error")
	}

	msgs := e.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[1].Content != "partial answ" {
		t.Errorf("partial content should survive: %q", msgs[1].Content)
	}
}

func TestSend_AppendsBeforeNetwork(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{})}
	e := newTestEngine(backend, nil)

	done := make(chan error, 1)
	go func() { done <- e.Send(context.Background(), "hello") }()

	waitStreaming(t, e)

	// With the stream still open, both messages are already visible.
	msgs := e.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages mid-stream, want 2", len(msgs))
	}
	if msgs[1].Role != model.RoleAssistant || msgs[1].Content != "" {
		t.Errorf("placeholder = %+v", msgs[1])
	}

	close(backend.block)
	<-done
}

func TestSend_AttachesAndClearsSelections(t *testing.T) {
	backend := &fakeBackend{frames: []string{"ok"}}
	sel := selection.NewStore()
	sel.Add("a.ts", "foo")
	sel.Add("a.ts", "bar")
	e := newTestEngine(backend, sel)

	if err := e.Send(context.Background(), "explain"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	got := backend.lastReq.SelectedContext
	if len(got["a.ts"]) != 2 || got["a.ts"][0] != "foo" || got["a.ts"][1] != "bar" {
		t.Errorf("selected context = %v", got)
	}
	if !sel.IsEmpty() {
		t.Error("selections must clear once attached to a send")
	}
	if backend.lastReq.Model != "test-model" {
		t.Errorf("model = %q", backend.lastReq.Model)
	}
}

func TestRehydrate_ReplacesWholesale(t *testing.T) {
	backend := &fakeBackend{
		history: []model.Message{
			{Role: model.RoleUser, Content: "old question"},
			{Role: model.RoleAssistant, Content: "old answer"},
		},
		frames: []string{"fresh"},
	}
	e := newTestEngine(backend, nil)

	// Local state that rehydrate must discard.
	if err := e.Send(context.Background(), "local only"); err != nil {
		t.Fatal(err)
	}

	if err := e.Rehydrate(context.Background()); err != nil {
		t.Fatalf("Rehydrate failed: %v", err)
	}

	msgs := e.Messages()
	if len(msgs) != 2 || msgs[0].Content != "old question" {
		t.Errorf("transcript after rehydrate = %+v", msgs)
	}
}

func TestSetOnUpdate_FiresPerFrame(t *testing.T) {
	backend := &fakeBackend{frames: []string{"a", "ab", "abc"}}
	e := newTestEngine(backend, nil)

	var mu sync.Mutex
	updates := 0
	e.SetOnUpdate(func() {
		mu.Lock()
		updates++
		mu.Unlock()
	})

	if err := e.Send(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	// Append + three frames + stream end.
	if updates < 4 {
		t.Errorf("updates = %d, want at least 4", updates)
	}
}
