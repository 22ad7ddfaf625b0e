// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the chat engine,
// the ingestion controller, and the repository cache.
package model

import (
	"strings"

	"github.com/google/uuid"

	"github.com/jeranaias/repochat-tui/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single entry in a conversation log.
//
// ID is set only for assistant messages created client-side as streaming
// placeholders; it is the reconciliation key for incoming frames. Messages
// rehydrated from the server carry no ID and are never merged into.
type Message struct {
	ID      string `json:"id,omitempty"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a user message. User messages are always appended
// to the log, never reconciled.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantPlaceholder creates an empty assistant message with a fresh
// reconciliation ID. The engine inserts it before the network call starts so
// the UI can render a pending state immediately.
func NewAssistantPlaceholder() Message {
	return Message{
		ID:   "msg_" + uuid.NewString(),
		Role: RoleAssistant,
	}
}

// IsEmpty reports whether the message has no content.
func (m Message) IsEmpty() bool {
	return m.Content == ""
}

// Preview returns a truncated single-line preview of the message content.
func (m Message) Preview(maxLen int) string {
	return util.TruncateRunes(strings.ReplaceAll(m.Content, "\n", " "), maxLen)
}
