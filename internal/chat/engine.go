// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat owns the conversation transcript and the send lifecycle.
//
// The engine keeps an ordered message log. Sending appends the user message
// and an empty assistant placeholder in one step before any network activity,
// then folds streamed frames into the placeholder by id. Frames carry the
// full accumulated text, so reconciliation is a plain replacement: the latest
// frame wins. One send runs at a time.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jeranaias/repochat-tui/internal/api"
	"github.com/jeranaias/repochat-tui/internal/model"
	"github.com/jeranaias/repochat-tui/internal/selection"
)

var (
	// ErrSendInProgress indicates a previous send has not finished yet.
	ErrSendInProgress = errors.New("a message is already being sent")

	// ErrNotReady indicates the repository is not ingested yet.
	ErrNotReady = errors.New("repository is not ready for chat")
)

// Backend is the slice of the API client the engine needs.
type Backend interface {
	FetchMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	SendMessage(ctx context.Context, conversationID string, req api.SendRequest, callback api.FrameCallback) error
}

// Engine manages the transcript for one conversation.
type Engine struct {
	mu sync.Mutex

	backend        Backend
	conversationID string
	selections     *selection.Store

	// ready gates sending on ingestion; history loads regardless.
	ready func() bool

	modelName string
	messages  []model.Message
	streaming bool

	// onUpdate fires after every transcript change, including each frame.
	onUpdate func()
}

// NewEngine creates an engine for a conversation. The ready gate may be nil,
// in which case sends are always allowed.
func NewEngine(backend Backend, conversationID, modelName string, selections *selection.Store, ready func() bool) *Engine {
	return &Engine{
		backend:        backend,
		conversationID: conversationID,
		selections:     selections,
		ready:          ready,
		modelName:      modelName,
	}
}

// SetOnUpdate registers the transcript change notifier.
func (e *Engine) SetOnUpdate(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onUpdate = fn
}

// SetModel switches the model used for subsequent sends.
func (e *Engine) SetModel(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if name != "" {
		e.modelName = name
	}
}

// Model returns the model used for sends.
func (e *Engine) Model() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modelName
}

// Messages returns a copy of the transcript, oldest first.
func (e *Engine) Messages() []model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// IsStreaming reports whether a send is in flight.
func (e *Engine) IsStreaming() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streaming
}

// Rehydrate replaces the transcript with the backend's persisted history.
// Any local state is discarded wholesale; the backend copy is authoritative.
func (e *Engine) Rehydrate(ctx context.Context) error {
	history, err := e.backend.FetchMessages(ctx, e.conversationID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.messages = history
	notify := e.onUpdate
	e.mu.Unlock()

	if notify != nil {
		notify()
	}
	return nil
}

// Send posts a user message and streams the assistant reply into the
// transcript. It blocks until the stream ends; run it from a goroutine when
// the caller must stay responsive.
//
// Whitespace-only input is a no-op. The user message and an empty assistant
// placeholder appear in the transcript before the request goes out, and the
// current selections are snapshotted onto this message and cleared. On any
// outcome, including errors and cancellation, the streaming flag is cleared;
// partial assistant content stays in the transcript.
func (e *Engine) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	e.mu.Lock()
	if e.streaming {
		e.mu.Unlock()
		return ErrSendInProgress
	}
	if e.ready != nil && !e.ready() {
		e.mu.Unlock()
		return ErrNotReady
	}

	placeholder := model.NewAssistantPlaceholder()
	e.messages = append(e.messages, model.NewUserMessage(text), placeholder)
	e.streaming = true

	var selected map[string][]string
	if e.selections != nil {
		selected = e.selections.Snapshot()
	}
	modelName := e.modelName
	notify := e.onUpdate
	e.mu.Unlock()

	if e.selections != nil {
		e.selections.Clear()
	}
	if notify != nil {
		notify()
	}

	defer func() {
		e.mu.Lock()
		e.streaming = false
		notify := e.onUpdate
		e.mu.Unlock()
		if notify != nil {
			notify()
		}
	}()

	req := api.SendRequest{
		Message:         text,
		Model:           modelName,
		SelectedContext: selected,
	}
	return e.backend.SendMessage(ctx, e.conversationID, req, func(frame api.Frame) {
		e.applyFrame(placeholder.ID, frame)
	})
}

// applyFrame replaces the placeholder's content with the frame's accumulated
// text. Frames for unknown ids (e.g. after a rehydrate) are dropped.
func (e *Engine) applyFrame(placeholderID string, frame api.Frame) {
	e.mu.Lock()
	updated := false
	for i := range e.messages {
		if e.messages[i].ID == placeholderID {
			e.messages[i].Content = frame.Content
			updated = true
			break
		}
	}
	notify := e.onUpdate
	e.mu.Unlock()

	if updated && notify != nil {
		notify()
	}
}
