// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/notewell/notewell-cli/internal/model"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// sessionRead mirrors the backend's session representation. Timestamps come
// as ISO strings without a timezone, so they are kept as strings on the wire
// and parsed leniently.
type sessionRead struct {
	ID           int64  `json:"id"`
	ProjectID    int64  `json:"project_id"`
	Title        string `json:"title"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
	MessageCount int    `json:"message_count"`
}

func (s *sessionRead) toModel() model.Session {
	return model.Session{
		ID:           s.ID,
		ProjectID:    s.ProjectID,
		Title:        s.Title,
		CreatedAt:    parseTimestamp(s.CreatedAt),
		UpdatedAt:    parseTimestamp(s.UpdatedAt),
		MessageCount: s.MessageCount,
	}
}

// historyMessage mirrors one persisted message in the history response.
type historyMessage struct {
	ID        int64           `json:"id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	CreatedAt string          `json:"created_at"`
	Metadata  *model.Metadata `json:"message_metadata"`
}

// historyResponse is the envelope of the session history endpoint.
type historyResponse struct {
	ProjectID  int64            `json:"project_id"`
	Messages   []historyMessage `json:"messages"`
	TotalCount int              `json:"total_count"`
}

// timestampLayouts are tried in order when parsing backend timestamps.
// The backend emits naive ISO timestamps with fractional seconds.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// parseTimestamp parses a backend timestamp, returning the zero time when
// the value is empty or unparseable. Listings stay usable either way.
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// =============================================================================
// SESSION CRUD
// =============================================================================

// sessionListResponse is the envelope of the session list endpoint.
type sessionListResponse struct {
	Sessions   []sessionRead `json:"sessions"`
	TotalCount int           `json:"total_count"`
}

// ListSessions returns the sessions of a project, most recent first as
// ordered by the server.
func (c *Client) ListSessions(ctx context.Context, projectID int64) ([]model.Session, error) {
	var wire sessionListResponse
	path := fmt.Sprintf("/projects/%d/chat/sessions", projectID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return nil, err
	}

	sessions := make([]model.Session, 0, len(wire.Sessions))
	for i := range wire.Sessions {
		sessions = append(sessions, wire.Sessions[i].toModel())
	}
	return sessions, nil
}

// createSessionRequest is the POST body; the server titles untitled
// sessions itself once the first answer completes.
type createSessionRequest struct {
	Title string `json:"title,omitempty"`
}

// CreateSession creates a new session in the project. An empty title lets
// the server generate one from the first exchange.
func (c *Client) CreateSession(ctx context.Context, projectID int64, title string) (*model.Session, error) {
	var wire sessionRead
	path := fmt.Sprintf("/projects/%d/chat/sessions", projectID)
	if err := c.doJSON(ctx, http.MethodPost, path, createSessionRequest{Title: title}, &wire); err != nil {
		return nil, err
	}
	session := wire.toModel()
	return &session, nil
}

// DeleteSession deletes a session and all its messages.
func (c *Client) DeleteSession(ctx context.Context, projectID, sessionID int64) error {
	path := fmt.Sprintf("/projects/%d/chat/sessions/%d", projectID, sessionID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// SessionHistory returns the full ordered message list of a session.
// Server message ids are stringified to fit the local message type.
func (c *Client) SessionHistory(ctx context.Context, projectID, sessionID int64) ([]*model.Message, error) {
	var wire historyResponse
	path := fmt.Sprintf("/projects/%d/chat/sessions/%d/history", projectID, sessionID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return nil, err
	}

	messages := make([]*model.Message, 0, len(wire.Messages))
	for _, hm := range wire.Messages {
		msg := &model.Message{
			ID:        strconv.FormatInt(hm.ID, 10),
			Role:      model.Role(hm.Role),
			Content:   hm.Content,
			CreatedAt: parseTimestamp(hm.CreatedAt),
		}
		if !hm.Metadata.IsZero() {
			msg.Metadata = hm.Metadata
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
