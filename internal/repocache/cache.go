// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package repocache persists fetched repository file trees keyed by
// conversation, plus small per-conversation preferences.
//
// A cache hit is authoritative: once a conversation's tree is stored, the
// client serves it from here without revalidating against the backend. The
// entry only goes away through explicit invalidation (e.g. deleting the
// conversation).
package repocache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/repochat-tui/internal/model"
)

// ErrNotCached indicates no entry exists for the conversation.
var ErrNotCached = errors.New("repository not cached")

// Cache is a SQLite-backed repository cache.
type Cache struct {
	db *sql.DB
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// =============================================================================
// REPOSITORY TREES
// =============================================================================

// Get loads the cached file tree for a conversation. Returns ErrNotCached
// when the conversation has never been stored.
func (c *Cache) Get(ctx context.Context, conversationID string) (*model.CachedRepository, error) {
	var sourceURL string
	err := c.db.QueryRowContext(ctx,
		`SELECT source_url FROM repos WHERE conversation_id = ?`,
		conversationID).Scan(&sourceURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query repo: %w", err)
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT path, content FROM repo_files
		 WHERE conversation_id = ? ORDER BY seq`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query repo files: %w", err)
	}
	defer rows.Close()

	repo := &model.CachedRepository{SourceURL: sourceURL}
	for rows.Next() {
		var f model.RepoFile
		if err := rows.Scan(&f.Path, &f.Content); err != nil {
			return nil, fmt.Errorf("failed to scan repo file: %w", err)
		}
		repo.Files = append(repo.Files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read repo files: %w", err)
	}
	return repo, nil
}

// Put stores (or replaces) the file tree for a conversation. The write is
// transactional, so readers never see a half-replaced tree.
func (c *Cache) Put(ctx context.Context, conversationID string, repo *model.CachedRepository) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO repos (conversation_id, source_url, cached_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(conversation_id) DO UPDATE SET
		     source_url = excluded.source_url,
		     cached_at  = excluded.cached_at`,
		conversationID, repo.SourceURL, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to upsert repo: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM repo_files WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to clear repo files: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO repo_files (conversation_id, seq, path, content)
		 VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, f := range repo.Files {
		if _, err := stmt.ExecContext(ctx, conversationID, i, f.Path, f.Content); err != nil {
			return fmt.Errorf("failed to insert repo file %q: %w", f.Path, err)
		}
	}

	return tx.Commit()
}

// Invalidate removes a conversation's cached tree and preferences.
func (c *Cache) Invalidate(ctx context.Context, conversationID string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// repo_files rows go via the foreign key cascade.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM repos WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to delete repo: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM preferences WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to delete preferences: %w", err)
	}
	return tx.Commit()
}

// Has reports whether a conversation has a cached tree.
func (c *Cache) Has(ctx context.Context, conversationID string) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx,
		`SELECT 1 FROM repos WHERE conversation_id = ?`, conversationID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query repo: %w", err)
	}
	return true, nil
}

// =============================================================================
// PREFERENCES
// =============================================================================

const (
	prefLastModel  = "last_model"
	prefShowPanels = "show_panels"
)

// getPref reads a preference, returning ok=false when unset.
func (c *Cache) getPref(ctx context.Context, conversationID, key string) (string, bool, error) {
	var value string
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE conversation_id = ? AND key = ?`,
		conversationID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query preference: %w", err)
	}
	return value, true, nil
}

// setPref upserts a preference.
func (c *Cache) setPref(ctx context.Context, conversationID, key, value string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO preferences (conversation_id, key, value)
		 VALUES (?, ?, ?)
		 ON CONFLICT(conversation_id, key) DO UPDATE SET value = excluded.value`,
		conversationID, key, value)
	if err != nil {
		return fmt.Errorf("failed to set preference: %w", err)
	}
	return nil
}

// LastModel returns the model last used in a conversation, or "" when unset.
func (c *Cache) LastModel(ctx context.Context, conversationID string) (string, error) {
	value, _, err := c.getPref(ctx, conversationID, prefLastModel)
	return value, err
}

// SetLastModel remembers the model used in a conversation.
func (c *Cache) SetLastModel(ctx context.Context, conversationID, modelName string) error {
	return c.setPref(ctx, conversationID, prefLastModel, modelName)
}

// ShowPanels returns the stored side-panel preference, falling back to def
// when the conversation has none.
func (c *Cache) ShowPanels(ctx context.Context, conversationID string, def bool) (bool, error) {
	value, ok, err := c.getPref(ctx, conversationID, prefShowPanels)
	if err != nil || !ok {
		return def, err
	}
	show, err := strconv.ParseBool(value)
	if err != nil {
		return def, nil
	}
	return show, nil
}

// SetShowPanels stores the side-panel preference.
func (c *Cache) SetShowPanels(ctx context.Context, conversationID string, show bool) error {
	return c.setPref(ctx, conversationID, prefShowPanels, strconv.FormatBool(show))
}
