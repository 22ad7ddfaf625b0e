// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/repochat-tui/internal/model"
)

// panelWidth is the file panel width when panels are shown.
const panelWidth = 32

// View renders the UI.
func (m Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.state {
	case StateIngesting:
		b.WriteString(m.renderIngesting())
	case StateFailed:
		b.WriteString(m.renderFailed())
	default:
		b.WriteString(m.renderMain())
	}

	b.WriteString("\n")
	b.WriteString(m.renderInput())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

// =============================================================================
// SECTIONS
// =============================================================================

func (m Model) renderHeader() string {
	title := "repochat · " + m.sess.ConversationID
	if m.repo != nil && m.repo.SourceURL != "" {
		title = "repochat · " + m.repo.SourceURL
	}
	if m.sess.IsBookmarked {
		title += " *"
	}
	return headerStyle.Render(runewidth.Truncate(title, m.width-2, "..."))
}

// renderIngesting shows the blocking progress screen.
func (m Model) renderIngesting() string {
	var lines []string
	lines = append(lines, "")
	lines = append(lines, progressLabelStyle.Render(
		fmt.Sprintf("%s Indexing codebase (%.0f%%)... Please wait.",
			m.spinner.View(), m.ingestSnap.Progress)))
	lines = append(lines, "")
	lines = append(lines, m.renderProgressBar())

	content := lipgloss.NewStyle().
		Width(m.width).
		Height(m.viewport.Height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(strings.Join(lines, "\n"))
	return content
}

func (m Model) renderProgressBar() string {
	barWidth := m.width / 2
	if barWidth < 10 {
		barWidth = 10
	}
	filled := int(m.ingestSnap.Progress / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	return progressBarFilled.Render(strings.Repeat("█", filled)) +
		progressBarEmpty.Render(strings.Repeat("░", barWidth-filled))
}

func (m Model) renderFailed() string {
	msg := "Indexing failed."
	if m.ingestSnap.Err != nil {
		msg = "Indexing failed: " + m.ingestSnap.Err.Error()
	}
	content := errorStyle.Render(msg) + "\n\n" +
		statusBarStyle.Render("press r to retry, ctrl+c to quit")
	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.viewport.Height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(content)
}

// renderMain shows the transcript, with the file panel alongside when open.
func (m Model) renderMain() string {
	transcript := m.viewport.View()
	if !m.showPanels || m.width < panelWidth*2 {
		return transcript
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, transcript, m.renderFilePanel())
}

func (m Model) renderFilePanel() string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render("Files"))
	b.WriteString("\n")

	if m.repo == nil {
		b.WriteString(statusBarStyle.Render("loading..."))
	} else {
		maxRows := m.viewport.Height - 3
		paths := m.repo.Paths()
		for i, p := range paths {
			if i >= maxRows {
				b.WriteString(statusBarStyle.Render(fmt.Sprintf("... %d more", len(paths)-i)))
				break
			}
			b.WriteString(runewidth.Truncate(p, panelWidth-4, "..."))
			b.WriteString("\n")
		}
	}

	return panelStyle.
		Width(panelWidth - 2).
		Height(m.viewport.Height - 2).
		Render(b.String())
}

func (m Model) renderInput() string {
	return lipgloss.NewStyle().Padding(0, 1).Render(m.input.View())
}

func (m Model) renderStatusBar() string {
	var parts []string

	switch m.state {
	case StateReady:
		parts = append(parts, readyStyle.Render("ready"))
	case StateStreaming:
		parts = append(parts, progressLabelStyle.Render(m.spinner.View()+" replying"))
	}

	if n := m.sess.Selections.Len(); n > 0 {
		parts = append(parts, selectionStyle.Render(fmt.Sprintf("%d excerpt(s) attached", n)))
	}

	parts = append(parts, m.sess.Engine.Model())

	if m.statusMsg != "" {
		parts = append(parts, errorStyle.Render(m.statusMsg))
	} else if m.state == StateReady {
		parts = append(parts, "ctrl+o panels · ctrl+x clear selections · ctrl+c quit")
	}

	return statusBarStyle.Render(strings.Join(parts, "  ·  "))
}

// =============================================================================
// TRANSCRIPT RENDERING
// =============================================================================

// transcriptWidth is the viewport width given the panel state.
func (m Model) transcriptWidth() int {
	w := m.width
	if m.showPanels && m.width >= panelWidth*2 {
		w -= panelWidth
	}
	if w < 20 {
		w = 20
	}
	return w
}

// refreshViewport re-renders the transcript into the viewport.
func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderMessages())
}

// renderMessages renders the transcript. Completed assistant messages go
// through the markdown renderer; the streaming tail stays raw so partial
// markdown doesn't flicker through half-parsed states.
func (m Model) renderMessages() string {
	msgs := m.sess.Engine.Messages()
	if len(msgs) == 0 {
		return statusBarStyle.Render("No messages yet. Ask something about this codebase.")
	}

	streamingTail := m.state == StateStreaming

	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}

		switch msg.Role {
		case model.RoleUser:
			b.WriteString(userLabelStyle.Render("You"))
			b.WriteString("\n")
			b.WriteString(msg.Content)
			b.WriteString("\n")
		case model.RoleAssistant:
			b.WriteString(assistantLabelStyle.Render("Assistant"))
			b.WriteString("\n")
			isTail := streamingTail && i == len(msgs)-1
			if msg.IsEmpty() && isTail {
				b.WriteString(statusBarStyle.Render("..."))
				b.WriteString("\n")
				continue
			}
			if isTail {
				b.WriteString(msg.Content)
			} else {
				b.WriteString(m.renderMarkdown(msg.Content))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// renderMarkdown renders assistant markdown, falling back to the raw text
// when rendering fails.
func (m Model) renderMarkdown(content string) string {
	wrap := m.cfg.Chat.WordWrap
	if w := m.transcriptWidth() - 4; w < wrap {
		wrap = w
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return content
	}
	out, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}
