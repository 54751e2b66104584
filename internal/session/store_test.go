// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"testing"

	"github.com/notewell/notewell-cli/internal/model"
)

// fakeAPI is an in-memory SessionAPI for store tests.
type fakeAPI struct {
	sessions  []model.Session
	histories map[int64][]*model.Message
	nextID    int64

	listErr    error
	createErr  error
	deleteErr  error
	historyErr error

	createCalls     int
	lastCreateTitle string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		histories: make(map[int64][]*model.Message),
		nextID:    100,
	}
}

func (f *fakeAPI) ListSessions(ctx context.Context, projectID int64) ([]model.Session, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Session, len(f.sessions))
	copy(out, f.sessions)
	return out, nil
}

func (f *fakeAPI) CreateSession(ctx context.Context, projectID int64, title string) (*model.Session, error) {
	f.createCalls++
	f.lastCreateTitle = title
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	created := model.Session{ID: f.nextID, ProjectID: projectID}
	f.sessions = append([]model.Session{created}, f.sessions...)
	return &created, nil
}

func (f *fakeAPI) DeleteSession(ctx context.Context, projectID, sessionID int64) error {
	return f.deleteErr
}

func (f *fakeAPI) SessionHistory(ctx context.Context, projectID, sessionID int64) ([]*model.Message, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.histories[sessionID], nil
}

func newTestStore(api *fakeAPI) (*Store, *model.Transcript, *[]error) {
	transcript := model.NewTranscript()
	store := NewStore(api, 7, transcript)
	var reported []error
	store.SetErrorCallback(func(err error) { reported = append(reported, err) })
	return store, transcript, &reported
}

// =============================================================================
// LOAD AND SELECT TESTS
// =============================================================================

func TestLoadRefreshesList(t *testing.T) {
	api := newFakeAPI()
	api.sessions = []model.Session{{ID: 2, Title: "b"}, {ID: 1, Title: "a"}}
	store, _, _ := newTestStore(api)

	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := store.Sessions(); len(got) != 2 || got[0].ID != 2 {
		t.Errorf("Unexpected sessions: %+v", got)
	}
}

func TestLoadFailureKeepsLocalList(t *testing.T) {
	api := newFakeAPI()
	api.sessions = []model.Session{{ID: 1}}
	store, _, reported := newTestStore(api)
	store.Load(context.Background())

	api.listErr = errors.New("boom")
	if err := store.Load(context.Background()); err == nil {
		t.Fatal("Expected Load to fail")
	}
	if len(store.Sessions()) != 1 {
		t.Error("Failed reload must keep the previous list")
	}
	if len(*reported) != 1 {
		t.Errorf("Expected 1 reported error, got %d", len(*reported))
	}
}

func TestSelectLoadsHistory(t *testing.T) {
	api := newFakeAPI()
	api.sessions = []model.Session{{ID: 3, Title: "cours"}}
	api.histories[3] = []*model.Message{
		model.NewUserMessage("q"),
		model.NewMessage(model.RoleAssistant, "a"),
	}
	store, transcript, _ := newTestStore(api)
	store.Load(context.Background())

	if err := store.Select(context.Background(), 3); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if store.CurrentID() != 3 {
		t.Errorf("Expected session 3 selected, got %d", store.CurrentID())
	}
	if transcript.Len() != 2 {
		t.Errorf("Expected history in transcript, got %d messages", transcript.Len())
	}
}

func TestSelectUnknownSession(t *testing.T) {
	api := newFakeAPI()
	store, _, _ := newTestStore(api)
	if err := store.Select(context.Background(), 42); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Expected ErrUnknownSession, got %v", err)
	}
}

func TestSelectZeroDeselects(t *testing.T) {
	api := newFakeAPI()
	api.sessions = []model.Session{{ID: 3}}
	store, transcript, _ := newTestStore(api)
	store.Load(context.Background())
	store.Select(context.Background(), 3)

	if err := store.Select(context.Background(), 0); err != nil {
		t.Fatalf("Select(0) failed: %v", err)
	}
	if store.Current() != nil {
		t.Error("Expected no selection")
	}
	if transcript.Len() != 0 {
		t.Error("Expected empty transcript after deselect")
	}
}

func TestSelectHistoryFailureKeepsSelection(t *testing.T) {
	api := newFakeAPI()
	api.sessions = []model.Session{{ID: 3}}
	api.historyErr = errors.New("boom")
	store, transcript, reported := newTestStore(api)
	store.Load(context.Background())

	if err := store.Select(context.Background(), 3); err != nil {
		t.Fatalf("Select should not fail hard: %v", err)
	}
	if store.CurrentID() != 3 {
		t.Error("Selection must stick when the history load fails")
	}
	if transcript.Len() != 0 {
		t.Error("Transcript must not show the previous session's messages")
	}
	if len(*reported) != 1 {
		t.Errorf("Expected the history failure reported, got %d", len(*reported))
	}
}

// =============================================================================
// CREATE AND DELETE TESTS
// =============================================================================

func TestCreateSelectsNewSession(t *testing.T) {
	api := newFakeAPI()
	store, transcript, _ := newTestStore(api)
	transcript.ReplaceAll([]*model.Message{model.NewUserMessage("old")})

	created := store.Create(context.Background(), "Lecture notes")
	if created == nil {
		t.Fatal("Create returned nil")
	}
	if api.lastCreateTitle != "Lecture notes" {
		t.Errorf("Expected the title forwarded, got %q", api.lastCreateTitle)
	}
	if store.CurrentID() != created.ID {
		t.Errorf("Expected new session selected, got %d", store.CurrentID())
	}
	if transcript.Len() != 0 {
		t.Error("Expected transcript cleared for the new session")
	}
}

func TestCreateFailureReturnsNil(t *testing.T) {
	api := newFakeAPI()
	api.createErr = errors.New("boom")
	store, _, reported := newTestStore(api)

	if created := store.Create(context.Background(), ""); created != nil {
		t.Errorf("Expected nil on failure, got %+v", created)
	}
	if len(*reported) != 1 {
		t.Errorf("Expected the failure reported, got %d", len(*reported))
	}
}

func TestDeleteCurrentClearsSelection(t *testing.T) {
	api := newFakeAPI()
	api.sessions = []model.Session{{ID: 3}, {ID: 4}}
	store, transcript, _ := newTestStore(api)
	store.Load(context.Background())
	store.Select(context.Background(), 3)

	if err := store.Delete(context.Background(), 3); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if store.Current() != nil {
		t.Error("Deleting the selected session must clear the selection")
	}
	if transcript.Len() != 0 {
		t.Error("Transcript must clear with the deleted session")
	}
	if got := store.Sessions(); len(got) != 1 || got[0].ID != 4 {
		t.Errorf("Unexpected list after delete: %+v", got)
	}
}

func TestDeleteOtherKeepsSelection(t *testing.T) {
	api := newFakeAPI()
	api.sessions = []model.Session{{ID: 3}, {ID: 4}}
	store, _, _ := newTestStore(api)
	store.Load(context.Background())
	store.Select(context.Background(), 3)

	if err := store.Delete(context.Background(), 4); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if store.CurrentID() != 3 {
		t.Error("Deleting another session must keep the selection")
	}
}

func TestSessionOpsBlockedDuringTurn(t *testing.T) {
	api := newFakeAPI()
	api.sessions = []model.Session{{ID: 3}}
	store, transcript, _ := newTestStore(api)
	store.Load(context.Background())
	transcript.BeginTurn("streaming", nil)

	if err := store.Select(context.Background(), 3); !errors.Is(err, ErrTurnActive) {
		t.Errorf("Expected ErrTurnActive from Select, got %v", err)
	}
	if err := store.Delete(context.Background(), 3); !errors.Is(err, ErrTurnActive) {
		t.Errorf("Expected ErrTurnActive from Delete, got %v", err)
	}
	if created := store.Create(context.Background(), ""); created != nil {
		t.Error("Create must refuse during a turn")
	}
}

// =============================================================================
// RESOLVE AND TITLE TESTS
// =============================================================================

func TestResolveReturnsCurrent(t *testing.T) {
	api := newFakeAPI()
	api.sessions = []model.Session{{ID: 3}}
	store, _, _ := newTestStore(api)
	store.Load(context.Background())
	store.Select(context.Background(), 3)

	id, err := store.Resolve(context.Background())
	if err != nil || id != 3 {
		t.Errorf("Expected (3, nil), got (%d, %v)", id, err)
	}
	if api.createCalls != 0 {
		t.Error("Resolve must not create when a session is selected")
	}
}

func TestResolveAutoCreates(t *testing.T) {
	api := newFakeAPI()
	store, _, _ := newTestStore(api)

	id, err := store.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if id == 0 || store.CurrentID() != id {
		t.Errorf("Expected the created session selected, got current=%d id=%d", store.CurrentID(), id)
	}

	// A second resolve reuses the session created by the first.
	again, err := store.Resolve(context.Background())
	if err != nil || again != id {
		t.Errorf("Expected the same session, got (%d, %v)", again, err)
	}
	if api.createCalls != 1 {
		t.Errorf("Expected exactly one create call, got %d", api.createCalls)
	}
}

func TestResolveCreateFailure(t *testing.T) {
	api := newFakeAPI()
	api.createErr = errors.New("boom")
	store, _, _ := newTestStore(api)

	if _, err := store.Resolve(context.Background()); err == nil {
		t.Error("Expected Resolve to fail when creation fails")
	}
}

func TestTitleSignalIsOneShot(t *testing.T) {
	api := newFakeAPI()
	api.sessions = []model.Session{{ID: 3, Title: ""}}
	store, _, _ := newTestStore(api)
	store.Load(context.Background())

	store.ApplyGeneratedTitle(3, "Révision du chapitre")

	if got := store.Sessions()[0].Title; got != "Révision du chapitre" {
		t.Errorf("Expected list title updated, got %q", got)
	}

	signal := store.ConsumeTitleSignal()
	if signal == nil || signal.SessionID != 3 || signal.Title != "Révision du chapitre" {
		t.Fatalf("Unexpected signal: %+v", signal)
	}
	if store.ConsumeTitleSignal() != nil {
		t.Error("Title signal must be consumed exactly once")
	}
}

func TestApplyGeneratedTitleUnknownSession(t *testing.T) {
	api := newFakeAPI()
	store, _, _ := newTestStore(api)

	// The race where the title arrives before the listing knows the
	// session still surfaces the notification.
	store.ApplyGeneratedTitle(99, "Titre")
	signal := store.ConsumeTitleSignal()
	if signal == nil || signal.SessionID != 99 {
		t.Errorf("Expected signal despite unknown session, got %+v", signal)
	}
}

func TestApplyGeneratedTitleEmptyIgnored(t *testing.T) {
	api := newFakeAPI()
	store, _, _ := newTestStore(api)
	store.ApplyGeneratedTitle(3, "")
	if store.ConsumeTitleSignal() != nil {
		t.Error("Empty titles must not arm the signal")
	}
}
