// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session is a persisted, named conversation thread scoped to a project.
// The server is the source of truth for session contents; the client holds
// only this lightweight listing view and reloads history on selection.
type Session struct {
	ID           int64     `json:"id"`
	ProjectID    int64     `json:"project_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// DisplayTitle returns the session title or a default for untitled sessions.
func (s *Session) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return "New conversation"
}
