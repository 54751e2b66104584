// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/notewell/notewell-cli/internal/model"
)

// Error variables for session store operations.
var (
	// ErrUnknownSession indicates the session id is not in the local list.
	ErrUnknownSession = errors.New("unknown session")

	// ErrTurnActive indicates a session operation was attempted while an
	// answer is still streaming.
	ErrTurnActive = errors.New("a message is still streaming")
)

// SessionAPI is the slice of the backend client the store needs.
type SessionAPI interface {
	ListSessions(ctx context.Context, projectID int64) ([]model.Session, error)
	CreateSession(ctx context.Context, projectID int64, title string) (*model.Session, error)
	DeleteSession(ctx context.Context, projectID, sessionID int64) error
	SessionHistory(ctx context.Context, projectID, sessionID int64) ([]*model.Message, error)
}

// TitleSignal is the one-shot notification that the server generated a
// title for a session. Consumed exactly once by the UI.
type TitleSignal struct {
	SessionID int64
	Title     string
}

// =============================================================================
// SESSION STORE
// =============================================================================

// Store mirrors the project's session list and owns the current selection.
//
// Operational failures (listing, deletion, history loads) are reported to
// the error callback rather than returned, so the REPL surfaces them the
// same way as stream failures.
type Store struct {
	mu sync.Mutex

	api       SessionAPI
	projectID int64

	sessions []model.Session
	current  *model.Session

	pendingTitle *TitleSignal

	transcript *model.Transcript
	onError    func(error)
}

// NewStore creates a store for the given project. The transcript is shared
// with the stream controller; selection changes replace its contents.
func NewStore(api SessionAPI, projectID int64, transcript *model.Transcript) *Store {
	return &Store{
		api:        api,
		projectID:  projectID,
		transcript: transcript,
	}
}

// SetErrorCallback registers the sink for operational failures.
func (s *Store) SetErrorCallback(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// reportError forwards an error to the callback, if any.
func (s *Store) reportError(err error) {
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	if fn != nil && err != nil {
		fn(err)
	}
}

// Sessions returns a copy of the local session list.
func (s *Store) Sessions() []model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Session, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// Current returns the selected session, or nil when none is selected.
func (s *Store) Current() *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// CurrentID returns the selected session id, or 0 when none is selected.
func (s *Store) CurrentID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0
	}
	return s.current.ID
}

// =============================================================================
// CRUD OPERATIONS
// =============================================================================

// Load refreshes the session list from the server. On failure the existing
// local list is kept and the error goes to the callback.
func (s *Store) Load(ctx context.Context) error {
	sessions, err := s.api.ListSessions(ctx, s.projectID)
	if err != nil {
		s.reportError(fmt.Errorf("loading sessions: %w", err))
		return err
	}

	s.mu.Lock()
	s.sessions = sessions
	// Refresh the selected session's view (title, message count) from the
	// server copy. A selection deleted elsewhere is cleared.
	if s.current != nil {
		if found := s.findLocked(s.current.ID); found != nil {
			s.current = found
		} else {
			s.current = nil
		}
	}
	s.mu.Unlock()
	return nil
}

// Create makes a new session on the server, selects it, and clears the
// transcript. An empty title lets the server name the session later.
// Returns nil after reporting when creation fails.
func (s *Store) Create(ctx context.Context, title string) *model.Session {
	if s.transcript.InFlight() != nil {
		s.reportError(ErrTurnActive)
		return nil
	}

	created, err := s.api.CreateSession(ctx, s.projectID, title)
	if err != nil {
		s.reportError(fmt.Errorf("creating session: %w", err))
		return nil
	}

	s.mu.Lock()
	s.sessions = append([]model.Session{*created}, s.sessions...)
	s.current = &s.sessions[0]
	s.mu.Unlock()

	// A freshly created session has no history to load.
	s.transcript.Reset()
	return created
}

// Select switches to a session from the local list and replaces the
// transcript with its server history. Passing 0 deselects and clears the
// transcript without a server call.
func (s *Store) Select(ctx context.Context, sessionID int64) error {
	if s.transcript.InFlight() != nil {
		return ErrTurnActive
	}

	if sessionID == 0 {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		s.transcript.Reset()
		return nil
	}

	s.mu.Lock()
	found := s.findLocked(sessionID)
	if found == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownSession, sessionID)
	}
	s.current = found
	s.mu.Unlock()

	// Selection sticks even when the history load fails; the transcript
	// is left empty rather than showing the previous session's messages.
	history, err := s.api.SessionHistory(ctx, s.projectID, sessionID)
	if err != nil {
		s.transcript.Reset()
		s.reportError(fmt.Errorf("loading history for session %d: %w", sessionID, err))
		return nil
	}
	s.transcript.ReplaceAll(history)
	return nil
}

// Delete removes a session on the server and from the local list. Deleting
// the selected session clears the selection and the transcript.
func (s *Store) Delete(ctx context.Context, sessionID int64) error {
	if s.transcript.InFlight() != nil {
		return ErrTurnActive
	}

	if err := s.api.DeleteSession(ctx, s.projectID, sessionID); err != nil {
		s.reportError(fmt.Errorf("deleting session %d: %w", sessionID, err))
		return err
	}

	s.mu.Lock()
	currentID := int64(0)
	if s.current != nil {
		currentID = s.current.ID
	}
	for i := range s.sessions {
		if s.sessions[i].ID == sessionID {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			break
		}
	}
	// Removal shifts the backing array, so the selection pointer is
	// re-resolved by id.
	wasCurrent := currentID == sessionID
	if wasCurrent || s.current != nil {
		s.current = s.findLocked(currentID)
	}
	s.mu.Unlock()

	if wasCurrent {
		s.transcript.Reset()
	}
	return nil
}

// Resolve returns the session id to send a message to, creating a session
// server-side when none is selected. Resolution happens at send time so
// the first message of a fresh conversation lands in its own session.
func (s *Store) Resolve(ctx context.Context) (int64, error) {
	s.mu.Lock()
	if s.current != nil {
		id := s.current.ID
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	created, err := s.api.CreateSession(ctx, s.projectID, "")
	if err != nil {
		return 0, fmt.Errorf("creating session: %w", err)
	}

	s.mu.Lock()
	s.sessions = append([]model.Session{*created}, s.sessions...)
	s.current = &s.sessions[0]
	s.mu.Unlock()
	return created.ID, nil
}

// =============================================================================
// TITLE SIGNAL
// =============================================================================

// ApplyGeneratedTitle records a server-generated session title and arms the
// one-shot signal for the UI. The local listing is updated in place when
// the session is known.
func (s *Store) ApplyGeneratedTitle(sessionID int64, title string) {
	if title == "" {
		return
	}

	s.mu.Lock()
	if found := s.findLocked(sessionID); found != nil {
		found.Title = title
	}
	s.pendingTitle = &TitleSignal{SessionID: sessionID, Title: title}
	s.mu.Unlock()
}

// ConsumeTitleSignal returns the pending title notification and clears it.
// Returns nil when nothing is pending.
func (s *Store) ConsumeTitleSignal() *TitleSignal {
	s.mu.Lock()
	defer s.mu.Unlock()
	signal := s.pendingTitle
	s.pendingTitle = nil
	return signal
}

// findLocked returns a pointer into the session list. Caller holds s.mu.
func (s *Store) findLocked(sessionID int64) *model.Session {
	for i := range s.sessions {
		if s.sessions[i].ID == sessionID {
			return &s.sessions[i]
		}
	}
	return nil
}
