// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the local turn archive.
//
// Completed turns are appended to a SQLite database so conversations
// survive offline and stay searchable from the shell. The server remains
// the source of truth; the archive is a write-only local copy.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/notewell/notewell-cli/internal/model"
)

// SQLite schema for the turn archive.
const schema = `
CREATE TABLE IF NOT EXISTS turns (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    session_id INTEGER NOT NULL,
    user_content TEXT NOT NULL,
    assistant_content TEXT NOT NULL,
    metadata TEXT,              -- JSON, assistant-side attributions
    archived_at INTEGER NOT NULL -- Unix timestamp
);

CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(project_id, session_id);
CREATE INDEX IF NOT EXISTS idx_turns_archived_at ON turns(archived_at);
`

// ArchivedTurn is one persisted question/answer pair.
type ArchivedTurn struct {
	ID               int64
	ProjectID        int64
	SessionID        int64
	UserContent      string
	AssistantContent string
	Metadata         *model.Metadata
	ArchivedAt       time.Time
}

// =============================================================================
// TURN ARCHIVE
// =============================================================================

// Archive is an append-only local store of completed turns.
type Archive struct {
	db *sql.DB
}

// OpenArchive opens (or creates) the archive database at the given path.
func OpenArchive(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
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
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Archive{db: db}, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// ArchiveTurn appends one completed turn.
func (a *Archive) ArchiveTurn(ctx context.Context, projectID, sessionID int64, user, assistant *model.Message) error {
	if user == nil || assistant == nil {
		return errors.New("archive needs both sides of the turn")
	}

	var metaJSON any
	if !assistant.Metadata.IsZero() {
		raw, err := json.Marshal(assistant.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metaJSON = string(raw)
	}

	_, err := a.db.ExecContext(ctx,
		`INSERT INTO turns (project_id, session_id, user_content, assistant_content, metadata, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		projectID, sessionID, user.Content, assistant.Content, metaJSON, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to archive turn: %w", err)
	}
	return nil
}

// RecentTurns returns the latest archived turns of a session, newest first.
func (a *Archive) RecentTurns(ctx context.Context, projectID, sessionID int64, limit int) ([]ArchivedTurn, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT id, project_id, session_id, user_content, assistant_content, metadata, archived_at
		 FROM turns WHERE project_id = ? AND session_id = ?
		 ORDER BY archived_at DESC, id DESC LIMIT ?`,
		projectID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []ArchivedTurn
	for rows.Next() {
		var turn ArchivedTurn
		var metaJSON sql.NullString
		var archivedAt int64
		if err := rows.Scan(&turn.ID, &turn.ProjectID, &turn.SessionID,
			&turn.UserContent, &turn.AssistantContent, &metaJSON, &archivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.ArchivedAt = time.Unix(archivedAt, 0)
		if metaJSON.Valid && metaJSON.String != "" {
			var meta model.Metadata
			if err := json.Unmarshal([]byte(metaJSON.String), &meta); err == nil {
				turn.Metadata = &meta
			}
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// TurnCount returns the number of archived turns for a project.
func (a *Archive) TurnCount(ctx context.Context, projectID int64) (int, error) {
	var count int
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM turns WHERE project_id = ?`, projectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count turns: %w", err)
	}
	return count, nil
}
