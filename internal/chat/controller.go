// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/notewell/notewell-cli/internal/api"
	"github.com/notewell/notewell-cli/internal/model"
	"github.com/notewell/notewell-cli/internal/protocol"
	"github.com/notewell/notewell-cli/internal/search"
	"github.com/notewell/notewell-cli/internal/session"
)

// =============================================================================
// TURN STATE
// =============================================================================

// State is the lifecycle state of the most recent turn.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateFailed
	StateAborted
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Streamer is the slice of the backend client the controller needs.
type Streamer interface {
	StreamChat(ctx context.Context, projectID int64, req api.ChatRequest) (io.ReadCloser, error)
}

// Archiver persists completed turns locally. Optional.
type Archiver interface {
	ArchiveTurn(ctx context.Context, projectID, sessionID int64, user, assistant *model.Message) error
}

// SendOptions carries the optional side-channel fields of a message.
type SendOptions struct {
	Action       string
	SelectedText string
	SourceIDs    []int64
}

// =============================================================================
// STREAM CONTROLLER
// =============================================================================

// Controller runs one streaming turn at a time against the chat endpoint.
//
// Send blocks until the turn settles. It returns an error only when the
// turn cannot start (another one is in flight); everything that goes wrong
// after the turn began is reported through the error callback so the REPL
// has a single place to show failures.
type Controller struct {
	streamer   Streamer
	store      *session.Store
	tracker    *search.Tracker
	transcript *model.Transcript
	projectID  int64
	archiver   Archiver

	cancelMgr *cancelManager

	mu    sync.Mutex
	state State

	onError func(error)
	onText  func(string)
}

// NewController wires a controller over the shared transcript, session
// store, and search tracker.
func NewController(streamer Streamer, store *session.Store, tracker *search.Tracker, transcript *model.Transcript, projectID int64) *Controller {
	return &Controller{
		streamer:   streamer,
		store:      store,
		tracker:    tracker,
		transcript: transcript,
		projectID:  projectID,
		cancelMgr:  newCancelManager(),
		state:      StateIdle,
	}
}

// SetArchiver registers the optional local turn archive.
func (c *Controller) SetArchiver(a Archiver) {
	c.archiver = a
}

// SetErrorCallback registers the sink for turn failures.
func (c *Controller) SetErrorCallback(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// SetTextCallback registers the hook called with each decoded text chunk.
func (c *Controller) SetTextCallback(fn func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onText = fn
}

// State returns the current turn state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool {
	s := c.State()
	return s == StateSending || s == StateStreaming
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) reportError(err error) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil && err != nil {
		fn(err)
	}
}

func (c *Controller) emitText(text string) {
	c.mu.Lock()
	fn := c.onText
	c.mu.Unlock()
	if fn != nil && text != "" {
		fn(text)
	}
}

// Abort cancels the in-flight stream, if any. Idempotent; calling it when
// no turn is active does nothing.
func (c *Controller) Abort() {
	c.cancelMgr.cancel()
}

// =============================================================================
// SEND
// =============================================================================

// Send runs a full turn: resolve the session, post the message, stream the
// answer into the transcript, and settle. Blocks until the turn reaches a
// terminal state.
func (c *Controller) Send(ctx context.Context, message string, opts SendOptions) error {
	if c.transcript.InFlight() != nil || c.Busy() {
		return model.ErrTurnInProgress
	}
	c.setState(StateSending)

	// Session resolution happens at send time so the first message of a
	// fresh conversation creates its own session.
	sessionID, err := c.store.Resolve(ctx)
	if err != nil {
		c.setState(StateFailed)
		c.reportError(err)
		return nil
	}

	meta := &model.Metadata{Action: opts.Action, SelectedText: opts.SelectedText}
	user, assistant, err := c.transcript.BeginTurn(message, meta)
	if err != nil {
		c.setState(StateIdle)
		return err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	c.cancelMgr.setCancelFunc(cancel)

	body, err := c.streamer.StreamChat(streamCtx, c.projectID, api.ChatRequest{
		Message:      message,
		Action:       opts.Action,
		SelectedText: opts.SelectedText,
		SourceIDs:    opts.SourceIDs,
		SessionID:    sessionID,
	})
	if err != nil {
		if wasCancelled(streamCtx, err) {
			c.settleAborted()
		} else {
			c.settleFailed(err)
		}
		return nil
	}
	defer body.Close()

	c.setState(StateStreaming)
	c.readStream(ctx, streamCtx, body, sessionID, user, assistant)
	return nil
}

// readStream drives the frame decoder until a terminal condition.
func (c *Controller) readStream(ctx, streamCtx context.Context, body io.Reader, sessionID int64, user, assistant *model.Message) {
	decoder := protocol.NewFrameDecoder(body)
	for {
		payload, err := decoder.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.settleCompleted(ctx, sessionID, user, assistant)
				return
			}
			var serverErr *protocol.ServerError
			if errors.As(err, &serverErr) {
				c.settleFailed(serverErr)
				return
			}
			if wasCancelled(streamCtx, err) {
				c.settleAborted()
				return
			}
			c.settleFailed(fmt.Errorf("reading stream: %w", err))
			return
		}

		events, clean := protocol.ParseInline(payload)
		for _, ev := range events {
			c.dispatchEvent(ev)
		}
		if clean != "" {
			c.transcript.AppendToInflight(clean)
			c.emitText(clean)
		}
	}
}

// dispatchEvent routes one inline event to its consumer. Unknown event
// types are dropped; an unrecognized event must never kill the stream.
func (c *Controller) dispatchEvent(ev protocol.ToolEvent) {
	switch ev.Type {
	case protocol.EventSearchStart:
		var p protocol.SearchStartPayload
		protocol.DecodePayload(ev, &p)
		c.tracker.Start(p.Query)

	case protocol.EventSearchComplete:
		var p protocol.SearchCompletePayload
		protocol.DecodePayload(ev, &p)
		c.tracker.Complete(p.Chunks)
		if len(p.Sources) > 0 {
			c.transcript.AttachSources(p.Sources, p.Chunks)
		}

	case protocol.EventTitleGenerated:
		var p protocol.TitleGeneratedPayload
		if protocol.DecodePayload(ev, &p) {
			c.store.ApplyGeneratedTitle(p.SessionID, p.Title)
		}
	}
}

// =============================================================================
// TERMINAL TRANSITIONS
// =============================================================================

func (c *Controller) settleCompleted(ctx context.Context, sessionID int64, user, assistant *model.Message) {
	c.transcript.CompleteTurn()
	c.tracker.Reset()
	c.cancelMgr.clear()
	c.setState(StateCompleted)

	if c.archiver != nil {
		if err := c.archiver.ArchiveTurn(ctx, c.projectID, sessionID, user, assistant); err != nil {
			c.reportError(fmt.Errorf("archiving turn: %w", err))
		}
	}

	// Refresh message counts and updated-at ordering. Listing failures
	// are reported through the store's own callback.
	c.store.Load(ctx)
}

func (c *Controller) settleFailed(err error) {
	// A half-filled answer is never kept; the user message stays so the
	// input can be resubmitted.
	c.transcript.FailTurn()
	c.tracker.Reset()
	c.cancelMgr.clear()
	c.setState(StateFailed)
	c.reportError(err)
}

func (c *Controller) settleAborted() {
	// Cancellation is not an error: partial content stays, nothing is
	// reported.
	c.transcript.AbortTurn()
	c.tracker.Reset()
	c.cancelMgr.clear()
	c.setState(StateAborted)
}

// wasCancelled reports whether a stream error was caused by a local abort
// rather than a genuine failure.
func wasCancelled(streamCtx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(streamCtx.Err(), context.Canceled)
}
