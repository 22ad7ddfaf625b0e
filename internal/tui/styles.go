// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// COLORS
// =============================================================================
// All colors use Lip Gloss AdaptiveColor for automatic light/dark detection.

var (
	// Cyan - brand color, user messages, prompts
	colorCyan = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

	// Purple - assistant messages
	colorPurple = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}

	// Emerald - success, ready state
	colorEmerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

	// Rose - errors, failed ingestion
	colorRose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

	// Amber - in-progress states
	colorAmber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

	// Muted text - hints, timestamps
	colorMuted = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}

	// Overlay - borders, separators
	colorOverlay = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}
)

// =============================================================================
// STYLES
// =============================================================================

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(0, 1)

	userLabelStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	assistantLabelStyle = lipgloss.NewStyle().
				Foreground(colorPurple).
				Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRose)

	progressLabelStyle = lipgloss.NewStyle().
				Foreground(colorAmber)

	readyStyle = lipgloss.NewStyle().
			Foreground(colorEmerald)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorOverlay).
			Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Bold(true)

	selectionStyle = lipgloss.NewStyle().
			Foreground(colorAmber)

	progressBarFilled = lipgloss.NewStyle().Foreground(colorEmerald)
	progressBarEmpty  = lipgloss.NewStyle().Foreground(colorOverlay)
)
