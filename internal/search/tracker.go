// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search tracks the retrieval state signalled by search events in
// the chat stream. The tracker is a read-only UI signal; it never persists
// anything and is reset unconditionally at the end of every turn.
package search

import (
	"sync"

	"github.com/notewell/notewell-cli/internal/protocol"
)

// =============================================================================
// SEARCH STATUS
// =============================================================================

// Status is a snapshot of the retrieval state. Overwritten on every relevant
// event.
type Status struct {
	Searching bool
	Query     string
	Chunks    []protocol.Chunk
}

// Tracker is the small state machine driven by search_start and
// search_complete events. Any other event leaves it untouched.
type Tracker struct {
	mu     sync.Mutex
	status Status

	// onChange, when set, observes every status change. Called outside
	// the lock with a snapshot.
	onChange func(Status)
}

// NewTracker creates an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// SetChangeCallback registers an observer for status changes.
func (t *Tracker) SetChangeCallback(fn func(Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// Status returns the current snapshot.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Start moves to searching, regardless of prior state.
func (t *Tracker) Start(query string) {
	t.set(Status{Searching: true, Query: query})
}

// Complete records the retrieved chunks and stops searching.
func (t *Tracker) Complete(chunks []protocol.Chunk) {
	t.set(Status{Chunks: chunks})
}

// Reset returns the tracker to idle. Called unconditionally on every
// terminal turn transition, whatever the last event was.
func (t *Tracker) Reset() {
	t.set(Status{})
}

func (t *Tracker) set(s Status) {
	t.mu.Lock()
	t.status = s
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}
