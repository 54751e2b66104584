// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatRequest is the payload of the streaming chat endpoint.
type ChatRequest struct {
	Message      string  `json:"message"`
	Action       string  `json:"action,omitempty"`
	SelectedText string  `json:"selected_text,omitempty"`
	SourceIDs    []int64 `json:"source_ids,omitempty"`
	SessionID    int64   `json:"session_id"`
}

// StreamChat opens the streaming chat endpoint and returns the raw body.
//
// The caller owns the returned reader and must close it; decoding is left
// to the protocol package. Streaming requests are never retried, the
// request is cancelled through ctx.
func (c *Client) StreamChat(ctx context.Context, projectID int64, chatReq ChatRequest) (io.ReadCloser, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	bodyBytes, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/projects/%d/chat", c.baseURL, projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Connection", "keep-alive")

	c.logRequest(req)
	// PERFORMANCE: Shared streaming client with connection pooling
	// (timeout handled via context).
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		resp.Body.Close()
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	return resp.Body, nil
}
