// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session composes the per-conversation machinery: validation,
// ingestion, the transcript engine, selections, and the repository cache.
package session

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jeranaias/repochat-tui/internal/api"
	"github.com/jeranaias/repochat-tui/internal/chat"
	"github.com/jeranaias/repochat-tui/internal/config"
	"github.com/jeranaias/repochat-tui/internal/ingest"
	"github.com/jeranaias/repochat-tui/internal/model"
	"github.com/jeranaias/repochat-tui/internal/repocache"
	"github.com/jeranaias/repochat-tui/internal/selection"
)

// Session is one open conversation.
type Session struct {
	ConversationID string
	IsBookmarked   bool

	Client     *api.Client
	Cache      *repocache.Cache
	Ingest     *ingest.Controller
	Engine     *chat.Engine
	Selections *selection.Store

	cfg *config.Config
}

// Open validates the conversation, loads its history, and kicks off
// ingestion. ErrNotFound and ErrForbidden from validation are terminal; the
// caller should surface them and exit.
func Open(ctx context.Context, cfg *config.Config, client *api.Client, cache *repocache.Cache, conversationID string) (*Session, error) {
	status, err := client.Validate(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	selections := selection.NewStore()
	controller := ingest.NewController(client, conversationID, cfg.Ingest.PollInterval(),
		ingest.WithMaxPolls(cfg.Ingest.MaxPolls))

	modelName := cfg.Chat.DefaultModel
	if cache != nil {
		if last, err := cache.LastModel(ctx, conversationID); err == nil && last != "" {
			modelName = last
		}
	}

	engine := chat.NewEngine(client, conversationID, modelName, selections, func() bool {
		return controller.State() == model.IngestCompleted
	})

	s := &Session{
		ConversationID: conversationID,
		IsBookmarked:   status.IsBookmarked,
		Client:         client,
		Cache:          cache,
		Ingest:         controller,
		Engine:         engine,
		Selections:     selections,
		cfg:            cfg,
	}

	// History is useful even while ingestion is still running.
	if err := engine.Rehydrate(ctx); err != nil {
		log.Printf("session: could not load history for %s: %v", conversationID, err)
	}

	// Warm the repository cache once ingestion first completes, so the file
	// panel and later visits are served locally.
	controller.SetOnComplete(func() {
		go func() {
			warmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := s.LoadRepo(warmCtx); err != nil {
				log.Printf("session: repo warm-up failed for %s: %v", conversationID, err)
			}
		}()
	})

	controller.Start(ctx)
	return s, nil
}

// Close stops background work. Safe to call more than once.
func (s *Session) Close() {
	s.Ingest.Stop()
}

// LoadRepo returns the conversation's file tree, read-through: a cache hit is
// served as-is, a miss fetches from the backend and stores the result. Cache
// faults other than a miss degrade to the network rather than failing.
func (s *Session) LoadRepo(ctx context.Context) (*model.CachedRepository, error) {
	if s.Cache != nil {
		repo, err := s.Cache.Get(ctx, s.ConversationID)
		if err == nil {
			return repo, nil
		}
		if !errors.Is(err, repocache.ErrNotCached) {
			log.Printf("session: cache read failed for %s: %v", s.ConversationID, err)
		}
	}

	repo, err := s.Client.FetchRepo(ctx, s.ConversationID)
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.Put(ctx, s.ConversationID, repo); err != nil {
			log.Printf("session: cache write failed for %s: %v", s.ConversationID, err)
		}
	}
	return repo, nil
}

// SetModel switches the chat model and remembers it for this conversation.
func (s *Session) SetModel(ctx context.Context, name string) {
	if name == "" {
		return
	}
	s.Engine.SetModel(name)
	if s.Cache != nil {
		if err := s.Cache.SetLastModel(ctx, s.ConversationID, name); err != nil {
			log.Printf("session: could not persist model preference: %v", err)
		}
	}
}

// ToggleBookmark flips the bookmark flag on the backend.
func (s *Session) ToggleBookmark(ctx context.Context) error {
	next := !s.IsBookmarked
	if err := s.Client.SetBookmark(ctx, s.ConversationID, next); err != nil {
		return err
	}
	s.IsBookmarked = next
	return nil
}

// Delete removes the conversation on the backend and drops the local cache
// entry so a stale tree cannot resurface under a reused id.
func (s *Session) Delete(ctx context.Context) error {
	if err := s.Client.Delete(ctx, s.ConversationID); err != nil {
		return err
	}
	if s.Cache != nil {
		if err := s.Cache.Invalidate(ctx, s.ConversationID); err != nil {
			log.Printf("session: cache invalidation failed for %s: %v", s.ConversationID, err)
		}
	}
	return nil
}

// ShowPanels returns the per-conversation side panel preference.
func (s *Session) ShowPanels(ctx context.Context) bool {
	def := true
	if s.cfg != nil {
		def = s.cfg.UI.ShowSidePanels
	}
	if s.Cache == nil {
		return def
	}
	show, err := s.Cache.ShowPanels(ctx, s.ConversationID, def)
	if err != nil {
		return def
	}
	return show
}

// SetShowPanels persists the side panel preference.
func (s *Session) SetShowPanels(ctx context.Context, show bool) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.SetShowPanels(ctx, s.ConversationID, show); err != nil {
		log.Printf("session: could not persist panel preference: %v", err)
	}
}
