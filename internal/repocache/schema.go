// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package repocache

// schema creates the cache tables. The file tree is normalized into one row
// per file so invalidation and lookups stay cheap even for large repos.
const schema = `
CREATE TABLE IF NOT EXISTS repos (
    conversation_id TEXT PRIMARY KEY,
    source_url      TEXT NOT NULL DEFAULT '',
    cached_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS repo_files (
    conversation_id TEXT NOT NULL,
    seq             INTEGER NOT NULL,
    path            TEXT NOT NULL,
    content         TEXT NOT NULL,
    PRIMARY KEY (conversation_id, path),
    FOREIGN KEY (conversation_id) REFERENCES repos(conversation_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_repo_files_conv_seq
    ON repo_files(conversation_id, seq);

CREATE TABLE IF NOT EXISTS preferences (
    conversation_id TEXT NOT NULL,
    key             TEXT NOT NULL,
    value           TEXT NOT NULL,
    PRIMARY KEY (conversation_id, key)
);
`
