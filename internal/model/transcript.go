// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"

	"github.com/notewell/notewell-cli/internal/protocol"
)

// ErrTurnInProgress is returned when a new turn is started while another
// turn's assistant message is still streaming.
var ErrTurnInProgress = errors.New("a turn is already in progress")

// =============================================================================
// TRANSCRIPT TYPE
// =============================================================================

// Transcript holds the ordered message list for the selected session.
//
// It is append-only during a turn: BeginTurn pushes the optimistic user
// message and the streaming assistant placeholder, then the placeholder's
// content grows monotonically until the turn reaches a terminal state. At
// most one message is in-flight at any time.
type Transcript struct {
	messages []*Message
	inflight *Message
	// userMsg is the optimistic user message of the current turn. It stays
	// in the transcript on failure so the input can be resubmitted.
	userMsg *Message
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Messages returns the ordered message list.
func (t *Transcript) Messages() []*Message {
	return t.messages
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// InFlight returns the streaming assistant message of the current turn, or
// nil when no turn is active.
func (t *Transcript) InFlight() *Message {
	return t.inflight
}

// =============================================================================
// TURN LIFECYCLE
// =============================================================================

// BeginTurn appends the optimistic user message and an empty streaming
// assistant placeholder, returning both. Fails if a turn is already active.
func (t *Transcript) BeginTurn(userContent string, meta *Metadata) (*Message, *Message, error) {
	if t.inflight != nil {
		return nil, nil, ErrTurnInProgress
	}

	user := NewUserMessage(userContent)
	if !meta.IsZero() {
		user.Metadata = meta
	}
	assistant := NewAssistantMessage()

	t.messages = append(t.messages, user, assistant)
	t.userMsg = user
	t.inflight = assistant
	return user, assistant, nil
}

// AppendToInflight grows the in-flight assistant message with decoded text.
// No-op outside a turn.
func (t *Transcript) AppendToInflight(chunk string) {
	if t.inflight != nil {
		t.inflight.AppendChunk(chunk)
	}
}

// AttachSources records retrieval attributions on the in-flight assistant
// message's metadata. Repeated calls within one turn accumulate.
func (t *Transcript) AttachSources(sources []string, chunks []protocol.Chunk) {
	if t.inflight == nil {
		return
	}
	meta := t.inflight.EnsureMetadata()
	meta.SourcesUsed = appendMissing(meta.SourcesUsed, sources)
	meta.ChunksFound = append(meta.ChunksFound, chunks...)
}

// CompleteTurn finalizes the in-flight assistant message and closes the turn.
func (t *Transcript) CompleteTurn() {
	if t.inflight != nil {
		t.inflight.FinalizeStream()
	}
	t.inflight = nil
	t.userMsg = nil
}

// AbortTurn closes the turn keeping whatever content streamed so far.
// The user interrupted viewing, not the answer's validity.
func (t *Transcript) AbortTurn() {
	t.CompleteTurn()
}

// FailTurn removes the assistant placeholder entirely — a half-filled answer
// is never kept on failure — and closes the turn. The user message stays so
// the input can be resubmitted.
func (t *Transcript) FailTurn() {
	if t.inflight != nil {
		t.remove(t.inflight.ID)
	}
	t.inflight = nil
	t.userMsg = nil
}

// =============================================================================
// BULK OPERATIONS
// =============================================================================

// ReplaceAll swaps in server history, dropping any local state. Must not be
// called while a turn is active; callers guard against that.
func (t *Transcript) ReplaceAll(messages []*Message) {
	t.messages = messages
	t.inflight = nil
	t.userMsg = nil
}

// Reset clears the transcript.
func (t *Transcript) Reset() {
	t.ReplaceAll(nil)
}

// remove deletes a message by ID.
func (t *Transcript) remove(id string) {
	for i, msg := range t.messages {
		if msg.ID == id {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			return
		}
	}
}

// appendMissing appends the values of add not already present in dst.
func appendMissing(dst, add []string) []string {
	for _, v := range add {
		seen := false
		for _, have := range dst {
			if have == v {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, v)
		}
	}
	return dst
}
