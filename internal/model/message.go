// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/notewell/notewell-cli/internal/protocol"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE METADATA
// =============================================================================

// Metadata carries the side-channel information attached to a message:
// the quick action that produced it, the text selection it refers to, and
// the retrieval attributions gathered while the answer streamed.
type Metadata struct {
	Action       string           `json:"action,omitempty"`
	SelectedText string           `json:"selected_text,omitempty"`
	SourcesUsed  []string         `json:"sources_used,omitempty"`
	ChunksFound  []protocol.Chunk `json:"chunks_found,omitempty"`
}

// IsZero reports whether the metadata carries nothing.
func (m *Metadata) IsZero() bool {
	return m == nil ||
		(m.Action == "" && m.SelectedText == "" &&
			len(m.SourcesUsed) == 0 && len(m.ChunksFound) == 0)
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
//
// Locally created messages get a UUID; messages loaded from server history
// keep the server's id, stringified.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Metadata  *Metadata `json:"metadata,omitempty"`

	// Streaming state (not persisted).
	// strings.Builder avoids quadratic allocations during streaming.
	IsStreaming   bool            `json:"-"`
	streamContent strings.Builder `json:"-"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates an empty assistant message in streaming state.
func NewAssistantMessage() *Message {
	return &Message{
		ID:          uuid.New().String(),
		Role:        RoleAssistant,
		CreatedAt:   time.Now(),
		IsStreaming: true,
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// AppendChunk appends decoded stream text to a streaming message.
// Content only grows during a turn; it is never reset.
func (m *Message) AppendChunk(chunk string) {
	if m.IsStreaming {
		m.streamContent.WriteString(chunk)
	}
}

// FinalizeStream merges streamed content into Content and leaves the
// streaming state. Safe to call on a non-streaming message.
func (m *Message) FinalizeStream() {
	if !m.IsStreaming {
		return
	}
	m.Content = m.streamContent.String()
	m.streamContent.Reset()
	m.IsStreaming = false
}

// DisplayContent returns the content to show (streamed or final).
func (m *Message) DisplayContent() string {
	if m.IsStreaming {
		return m.streamContent.String()
	}
	return m.Content
}

// ContentLen returns the current content length, streamed or final.
func (m *Message) ContentLen() int {
	if m.IsStreaming {
		return m.streamContent.Len()
	}
	return len(m.Content)
}

// EnsureMetadata returns the message metadata, allocating it on first use.
func (m *Message) EnsureMetadata() *Metadata {
	if m.Metadata == nil {
		m.Metadata = &Metadata{}
	}
	return m.Metadata
}

// Preview returns a truncated preview of the message content.
// Rune-based truncation handles multi-byte text correctly.
func (m *Message) Preview(maxLen int) string {
	content := m.DisplayContent()
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0 && m.streamContent.Len() == 0
}
