// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Plain line-based REPL for environments where the TUI is
// unwanted (narrow terminals, screen readers, ssh through weird hops).

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/jeranaias/repochat-tui/internal/api"
	"github.com/jeranaias/repochat-tui/internal/config"
	"github.com/jeranaias/repochat-tui/internal/ingest"
	"github.com/jeranaias/repochat-tui/internal/model"
	"github.com/jeranaias/repochat-tui/internal/session"
	"github.com/jeranaias/repochat-tui/internal/util"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// RunChat runs the plain REPL for a conversation.
func RunChat(ctx context.Context, cfg *config.Config, s *session.Session) error {
	defer s.Close()
	lipgloss.SetColorProfile(GetColorProfile())

	if name, err := s.Client.FetchRepoName(ctx, s.ConversationID); err == nil && name != "" {
		fmt.Println(infoStyle.Render("Conversation " + s.ConversationID + " · " + name))
	} else {
		fmt.Println(infoStyle.Render("Conversation " + s.ConversationID))
	}

	if err := waitForIngestion(ctx, s); err != nil {
		return err
	}
	fmt.Println(infoStyle.Render("Commands: /history /model <name> /bookmark /delete /quit"))

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := historyFile()
	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}
	defer saveHistory(line, historyPath)

	for {
		input, err := line.Prompt(promptStyle.Render("> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		switch input {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/history":
			printTranscript(s)
			continue
		case "/bookmark":
			if err := s.ToggleBookmark(ctx); err != nil {
				fmt.Println(errStyle.Render("error: " + err.Error()))
			} else if s.IsBookmarked {
				fmt.Println(infoStyle.Render("bookmarked"))
			} else {
				fmt.Println(infoStyle.Render("bookmark removed"))
			}
			continue
		case "/delete":
			answer, err := line.Prompt("delete this conversation? [y/N] ")
			if err != nil || strings.ToLower(strings.TrimSpace(answer)) != "y" {
				continue
			}
			if err := s.Delete(ctx); err != nil {
				fmt.Println(errStyle.Render("error: " + err.Error()))
				continue
			}
			fmt.Println(infoStyle.Render("conversation deleted"))
			return nil
		}
		if strings.HasPrefix(input, "/model ") {
			name := strings.TrimSpace(strings.TrimPrefix(input, "/model "))
			s.SetModel(ctx, name)
			fmt.Println(infoStyle.Render("model set to " + name))
			continue
		}

		line.AppendHistory(input)
		if err := streamReply(ctx, s, input); err != nil {
			fmt.Println(errStyle.Render("error: " + err.Error()))
		}
	}
}

// streamReply sends one message and prints the assistant's reply as it
// arrives. Frames carry the full accumulated text, so only the unseen suffix
// is printed.
func streamReply(ctx context.Context, s *session.Session, text string) error {
	printed := 0
	done := make(chan error, 1)

	s.Engine.SetOnUpdate(func() {
		msgs := s.Engine.Messages()
		if len(msgs) == 0 {
			return
		}
		last := msgs[len(msgs)-1]
		if last.Role != model.RoleAssistant {
			return
		}
		if len(last.Content) > printed {
			fmt.Print(last.Content[printed:])
			printed = len(last.Content)
		}
	})
	defer s.Engine.SetOnUpdate(nil)

	go func() { done <- s.Engine.Send(ctx, text) }()
	err := <-done
	fmt.Println()
	return err
}

// waitForIngestion blocks until the repository is ready, printing progress.
func waitForIngestion(ctx context.Context, s *session.Session) error {
	snap := s.Ingest.Snapshot()
	if snap.State == model.IngestCompleted {
		return nil
	}

	fmt.Println(infoStyle.Render("Indexing codebase... Please wait."))

	changes := make(chan struct{}, 1)
	s.Ingest.SetOnChange(func(ingest.Snapshot) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	defer s.Ingest.SetOnChange(nil)

	for {
		snap = s.Ingest.Snapshot()
		switch snap.State {
		case model.IngestCompleted:
			fmt.Println(infoStyle.Render("Repository ready."))
			return nil
		case model.IngestFailed:
			if snap.Err != nil {
				return fmt.Errorf("ingestion failed: %w", snap.Err)
			}
			return errors.New("ingestion failed")
		case model.IngestInProgress:
			if snap.Progress > 0 {
				fmt.Printf("\r%s", infoStyle.Render(fmt.Sprintf("Indexing codebase (%.0f%%)...", snap.Progress)))
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changes:
		}
	}
}

// printTranscript dumps the conversation so far.
func printTranscript(s *session.Session) {
	for _, m := range s.Engine.Messages() {
		fmt.Printf("%s: %s\n", promptStyle.Render(m.Role.DisplayName()), m.Content)
	}
}

func historyFile() string {
	dir, err := config.ConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "history")
}

func saveHistory(line *liner.State, path string) {
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return
	}
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()
	line.WriteHistory(f)
}

// RunRecents prints the user's recent conversations.
func RunRecents(ctx context.Context, client *api.Client) error {
	lipgloss.SetColorProfile(GetColorProfile())

	chats, err := client.Recents(ctx)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		fmt.Println(infoStyle.Render("No recent conversations."))
		return nil
	}

	nameWidth := GetTerminalWidth() - 40
	if nameWidth < 10 {
		nameWidth = 10
	}
	for _, c := range chats {
		marker := " "
		if c.IsBookmarked {
			marker = "*"
		}
		fmt.Printf("%s %-36s %s\n", marker, c.ConversationID, util.TruncateRunes(c.RepoName, nameWidth))
	}
	return nil
}
