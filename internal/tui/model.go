// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tui provides the terminal UI for a conversation.
//
// The model is a thin projection of the session: ingestion state and the
// transcript live in their own components, and the UI is re-fed through
// Bubble Tea messages whenever they change.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/repochat-tui/internal/chat"
	"github.com/jeranaias/repochat-tui/internal/config"
	"github.com/jeranaias/repochat-tui/internal/ingest"
	"github.com/jeranaias/repochat-tui/internal/model"
	"github.com/jeranaias/repochat-tui/internal/session"
)

// =============================================================================
// STATE
// =============================================================================

// State is the top-level UI state.
type State int

const (
	// StateIngesting blocks chat while the repository indexes.
	StateIngesting State = iota
	// StateReady accepts input.
	StateReady
	// StateStreaming shows a reply coming in.
	StateStreaming
	// StateFailed offers a retry after a failed ingestion.
	StateFailed
)

// streamFPS is the render cadence while a reply streams.
const streamFPS = time.Second / 30

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for a conversation.
type Model struct {
	state State

	cfg  *config.Config
	sess *session.Session

	width  int
	height int

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	ingestSnap ingest.Snapshot

	// repo backs the file panel once loaded.
	repo       *model.CachedRepository
	showPanels bool

	statusMsg string

	// cancelStream aborts the in-flight send when the user hits esc.
	cancelStream context.CancelFunc

	// transcriptDirty batches frame updates between stream ticks.
	transcriptDirty bool
}

// New creates the TUI model for an open session.
func New(cfg *config.Config, sess *session.Session) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about this codebase..."
	ti.CharLimit = 4096
	ti.Focus()

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    streamFPS,
	}

	snap := sess.Ingest.Snapshot()
	state := StateIngesting
	switch snap.State {
	case model.IngestCompleted:
		state = StateReady
	case model.IngestFailed:
		state = StateFailed
	}

	return Model{
		state:      state,
		cfg:        cfg,
		sess:       sess,
		viewport:   vp,
		input:      ti,
		spinner:    sp,
		ingestSnap: snap,
		showPanels: sess.ShowPanels(context.Background()),
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	if m.state == StateReady {
		cmds = append(cmds, m.loadRepoCmd())
	}
	return tea.Batch(cmds...)
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case IngestChangedMsg:
		return m.handleIngestChanged(msg)

	case TranscriptChangedMsg:
		if m.state == StateStreaming {
			// Batched; the stream tick picks it up.
			m.transcriptDirty = true
			return m, nil
		}
		m.refreshViewport()
		return m, nil

	case StreamTickMsg:
		if m.state != StateStreaming {
			return m, nil
		}
		if m.transcriptDirty {
			m.transcriptDirty = false
			m.refreshViewport()
			m.viewport.GotoBottom()
		}
		return m, streamTickCmd()

	case SendFinishedMsg:
		m.cancelStream = nil
		if m.state == StateStreaming {
			m.state = StateReady
		}
		if msg.Err != nil {
			m.statusMsg = sendErrorStatus(msg.Err)
		}
		m.refreshViewport()
		m.viewport.GotoBottom()
		m.input.Focus()
		return m, textinput.Blink

	case RepoLoadedMsg:
		if msg.Err != nil {
			m.statusMsg = "could not load repository: " + msg.Err.Error()
			return m, nil
		}
		m.repo = msg.Repo
		return m, nil

	case spinner.TickMsg:
		if m.state == StateIngesting || m.state == StateStreaming {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	// Unhandled messages go to the input and viewport.
	var cmds []tea.Cmd
	if m.state == StateReady {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	// header + input line + status bar
	const reservedHeight = 4

	vpHeight := m.height - reservedHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Height = vpHeight
	m.viewport.Width = m.transcriptWidth()

	inputWidth := m.width - 6
	if inputWidth < 10 {
		inputWidth = 10
	}
	m.input.Width = inputWidth

	m.refreshViewport()
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.statusMsg = ""

	switch msg.String() {
	case "ctrl+c", "ctrl+q":
		if m.cancelStream != nil {
			m.cancelStream()
		}
		return m, tea.Quit

	case "esc":
		if m.state == StateStreaming && m.cancelStream != nil {
			// Partial content stays in the transcript.
			m.cancelStream()
			m.statusMsg = "reply cancelled"
			return m, nil
		}
		return m, nil

	case "r":
		if m.state == StateFailed {
			m.state = StateIngesting
			m.sess.Ingest.Retry(context.Background())
			return m, m.spinner.Tick
		}

	case "ctrl+o":
		m.showPanels = !m.showPanels
		m.sess.SetShowPanels(context.Background(), m.showPanels)
		m.viewport.Width = m.transcriptWidth()
		m.refreshViewport()
		return m, nil

	case "ctrl+x":
		if !m.sess.Selections.IsEmpty() {
			m.sess.Selections.Clear()
			m.statusMsg = "selections cleared"
		}
		return m, nil

	case "pgup":
		m.viewport.HalfViewUp()
		return m, nil

	case "pgdown":
		m.viewport.HalfViewDown()
		return m, nil

	case "enter":
		if m.state == StateReady {
			return m.submitInput()
		}
		if m.state == StateStreaming {
			m.statusMsg = "still replying; esc to cancel"
		}
		return m, nil
	}

	if m.state == StateReady || m.state == StateStreaming {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleIngestChanged(msg IngestChangedMsg) (tea.Model, tea.Cmd) {
	m.ingestSnap = msg.Snapshot

	switch msg.Snapshot.State {
	case model.IngestCompleted:
		if m.state == StateIngesting || m.state == StateFailed {
			m.state = StateReady
			m.input.Focus()
			return m, tea.Batch(textinput.Blink, m.loadRepoCmd())
		}
	case model.IngestFailed:
		if m.state == StateIngesting {
			m.state = StateFailed
		}
	case model.IngestInProgress:
		if m.state == StateFailed {
			m.state = StateIngesting
		}
	}
	return m, nil
}

// submitInput sends the input field's content.
func (m Model) submitInput() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	m.input.Reset()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelStream = cancel
	m.state = StateStreaming
	m.transcriptDirty = true

	engine := m.sess.Engine
	return m, tea.Batch(
		m.spinner.Tick,
		streamTickCmd(),
		func() tea.Msg {
			err := engine.Send(ctx, text)
			cancel()
			return SendFinishedMsg{Err: err}
		},
	)
}

// loadRepoCmd fetches the repository tree for the file panel.
func (m Model) loadRepoCmd() tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		repo, err := sess.LoadRepo(ctx)
		return RepoLoadedMsg{Repo: repo, Err: err}
	}
}

// streamTickCmd schedules the next streaming render.
func streamTickCmd() tea.Cmd {
	return tea.Tick(streamFPS, func(time.Time) tea.Msg {
		return StreamTickMsg{}
	})
}

// sendErrorStatus maps send failures to one-line statuses.
func sendErrorStatus(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, chat.ErrSendInProgress):
		return "still replying; esc to cancel"
	case errors.Is(err, chat.ErrNotReady):
		return "repository is still indexing"
	case errors.Is(err, context.Canceled):
		return "reply cancelled"
	default:
		return "send failed: " + err.Error()
	}
}
