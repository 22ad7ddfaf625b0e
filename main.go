// repochat TUI - chat with a codebase from your terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/repochat-tui/internal/api"
	"github.com/jeranaias/repochat-tui/internal/cli"
	"github.com/jeranaias/repochat-tui/internal/config"
	"github.com/jeranaias/repochat-tui/internal/repocache"
	"github.com/jeranaias/repochat-tui/internal/session"
	"github.com/jeranaias/repochat-tui/internal/tui"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	opts, err := cli.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n%s", err, cli.Usage)
		os.Exit(2)
	}

	switch opts.Command {
	case cli.CmdHelp:
		fmt.Print(cli.Usage)
		return
	case cli.CmdVersion:
		fmt.Printf("repochat %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts *cli.Options) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(cfg)

	if opts.Command == cli.CmdRecents {
		return cli.RunRecents(ctx, client)
	}

	cachePath, err := cfg.CachePath()
	if err != nil {
		return err
	}
	cache, err := repocache.Open(cachePath)
	if err != nil {
		// The cache is an optimization; run without it rather than refuse.
		log.Printf("repocache unavailable at %s: %v", cachePath, err)
		cache = nil
	}
	if cache != nil {
		defer cache.Close()
	}

	sess, err := session.Open(ctx, cfg, client, cache, opts.ConversationID)
	if err != nil {
		switch {
		case errors.Is(err, api.ErrNotFound):
			return fmt.Errorf("conversation %q not found", opts.ConversationID)
		case errors.Is(err, api.ErrForbidden):
			return fmt.Errorf("conversation %q belongs to another user", opts.ConversationID)
		case errors.Is(err, api.ErrAuthFailed):
			return fmt.Errorf("authentication failed; check REPOCHAT_TOKEN")
		}
		return err
	}
	defer sess.Close()

	sess.SetModel(ctx, opts.Model)

	if opts.Command == cli.CmdChat || !cli.IsTTY() {
		return cli.RunChat(ctx, cfg, sess)
	}
	return tui.Run(ctx, cfg, sess)
}

// setupLogging sends the standard logger to the log file so background
// diagnostics never corrupt the terminal. Logging is best-effort.
func setupLogging() {
	if err := config.EnsureConfigDir(); err != nil {
		log.SetOutput(io.Discard)
		return
	}
	path, err := config.LogPath()
	if err != nil {
		log.SetOutput(io.Discard)
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		log.SetOutput(io.Discard)
		return
	}
	log.SetOutput(f)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}
