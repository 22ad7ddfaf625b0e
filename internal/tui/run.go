// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/repochat-tui/internal/config"
	"github.com/jeranaias/repochat-tui/internal/ingest"
	"github.com/jeranaias/repochat-tui/internal/session"
)

// Run starts the full-screen UI for an open session and blocks until the
// user quits. Session callbacks are bridged into the program's message loop.
func Run(ctx context.Context, cfg *config.Config, sess *session.Session) error {
	p := tea.NewProgram(
		New(cfg, sess),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	sess.Ingest.SetOnChange(func(snap ingest.Snapshot) {
		p.Send(IngestChangedMsg{Snapshot: snap})
	})
	sess.Engine.SetOnUpdate(func() {
		p.Send(TranscriptChangedMsg{})
	})
	defer func() {
		sess.Ingest.SetOnChange(nil)
		sess.Engine.SetOnUpdate(nil)
	}()

	// The controller may have advanced between session open and callback
	// registration; feed the current snapshot so nothing is missed.
	go p.Send(IngestChangedMsg{Snapshot: sess.Ingest.Snapshot()})

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("ui error: %w", err)
	}
	return nil
}
