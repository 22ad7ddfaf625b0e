// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// args.go - Argument parsing for the repochat CLI.
//
// The surface is deliberately small: the common case is
// "repochat <conversation-id>", which opens the TUI.

package cli

import (
	"fmt"
	"strings"
)

// Command identifies what the invocation asks for.
type Command int

const (
	// CmdOpen opens a conversation in the TUI.
	CmdOpen Command = iota
	// CmdChat opens a conversation in the plain line-based REPL.
	CmdChat
	// CmdRecents lists the user's recent conversations.
	CmdRecents
	// CmdVersion prints version information.
	CmdVersion
	// CmdHelp prints usage.
	CmdHelp
)

// Options is the parsed invocation.
type Options struct {
	Command        Command
	ConversationID string
	// Model overrides the configured default for this run.
	Model string
	// Plain forces the line-based REPL even for CmdOpen.
	Plain bool
}

// Usage is the help text.
const Usage = `repochat - chat with a codebase from your terminal

Usage:
  repochat <conversation-id>          open a conversation (TUI)
  repochat chat <conversation-id>     open a conversation (plain REPL)
  repochat recents                    list recent conversations
  repochat version                    print version
  repochat help                       print this help

Flags:
  --model <name>   override the chat model for this run
  --plain          use the plain REPL instead of the TUI
`

// Parse interprets command line arguments (without the program name).
func Parse(args []string) (*Options, error) {
	opts := &Options{Command: CmdOpen}

	var positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--plain":
			opts.Plain = true
		case arg == "--model":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--model requires a value")
			}
			i++
			opts.Model = args[i]
		case strings.HasPrefix(arg, "--model="):
			opts.Model = strings.TrimPrefix(arg, "--model=")
		case arg == "--help" || arg == "-h":
			opts.Command = CmdHelp
			return opts, nil
		case arg == "--version" || arg == "-v":
			opts.Command = CmdVersion
			return opts, nil
		case strings.HasPrefix(arg, "-"):
			return nil, fmt.Errorf("unknown flag %q", arg)
		default:
			positional = append(positional, arg)
		}
	}

	if len(positional) == 0 {
		opts.Command = CmdHelp
		return opts, nil
	}

	switch positional[0] {
	case "chat":
		opts.Command = CmdChat
		if len(positional) < 2 {
			return nil, fmt.Errorf("chat requires a conversation id")
		}
		opts.ConversationID = positional[1]
	case "recents":
		opts.Command = CmdRecents
	case "version":
		opts.Command = CmdVersion
	case "help":
		opts.Command = CmdHelp
	default:
		opts.Command = CmdOpen
		opts.ConversationID = positional[0]
		if opts.Plain {
			opts.Command = CmdChat
		}
	}

	if len(positional) > 2 || (len(positional) == 2 && opts.Command != CmdChat) {
		return nil, fmt.Errorf("unexpected argument %q", positional[len(positional)-1])
	}

	return opts, nil
}
