// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"testing"

	"github.com/notewell/notewell-cli/internal/protocol"
)

// =============================================================================
// TRANSCRIPT TESTS
// =============================================================================

func TestBeginTurnAppendsOptimisticPair(t *testing.T) {
	tr := NewTranscript()

	user, assistant, err := tr.BeginTurn("hello", nil)
	if err != nil {
		t.Fatalf("BeginTurn failed: %v", err)
	}
	if tr.Len() != 2 {
		t.Fatalf("Expected 2 messages, got %d", tr.Len())
	}
	if user.Role != RoleUser || user.Content != "hello" {
		t.Errorf("Unexpected user message: %+v", user)
	}
	if assistant.Role != RoleAssistant || !assistant.IsStreaming {
		t.Errorf("Expected streaming assistant placeholder, got %+v", assistant)
	}
	if tr.InFlight() != assistant {
		t.Error("InFlight should be the assistant placeholder")
	}
}

func TestBeginTurnRejectsConcurrentTurn(t *testing.T) {
	tr := NewTranscript()
	if _, _, err := tr.BeginTurn("first", nil); err != nil {
		t.Fatalf("BeginTurn failed: %v", err)
	}
	if _, _, err := tr.BeginTurn("second", nil); err != ErrTurnInProgress {
		t.Errorf("Expected ErrTurnInProgress, got %v", err)
	}
}

func TestTranscriptContentMonotonicity(t *testing.T) {
	tr := NewTranscript()
	_, assistant, _ := tr.BeginTurn("q", nil)

	chunks := []string{"The ", "answer", "", " is 42."}
	prev := 0
	for _, c := range chunks {
		tr.AppendToInflight(c)
		if n := assistant.ContentLen(); n < prev {
			t.Fatalf("Content shrank from %d to %d", prev, n)
		} else {
			prev = n
		}
	}

	tr.CompleteTurn()
	if assistant.Content != "The answer is 42." {
		t.Errorf("Unexpected final content %q", assistant.Content)
	}
	if assistant.IsStreaming {
		t.Error("Assistant should leave streaming state on completion")
	}
	if tr.InFlight() != nil {
		t.Error("InFlight should clear on completion")
	}
}

func TestExactlyOneMessageMutatesPerTurn(t *testing.T) {
	tr := NewTranscript()
	tr.ReplaceAll([]*Message{
		NewUserMessage("old question"),
		NewMessage(RoleAssistant, "old answer"),
	})

	_, assistant, _ := tr.BeginTurn("new question", nil)
	tr.AppendToInflight("new answer")
	tr.CompleteTurn()

	msgs := tr.Messages()
	if msgs[0].Content != "old question" || msgs[1].Content != "old answer" {
		t.Error("Prior messages must not change during a turn")
	}
	if msgs[3] != assistant || assistant.Content != "new answer" {
		t.Errorf("Only the placeholder should have mutated: %+v", msgs[3])
	}
}

func TestFailTurnDropsPlaceholderKeepsUserMessage(t *testing.T) {
	tr := NewTranscript()
	user, _, _ := tr.BeginTurn("question", nil)
	tr.AppendToInflight("half an ans")

	tr.FailTurn()

	if tr.Len() != 1 {
		t.Fatalf("Expected only the user message to remain, got %d messages", tr.Len())
	}
	if tr.Messages()[0] != user {
		t.Error("The user message must survive a failed turn")
	}
	if tr.InFlight() != nil {
		t.Error("InFlight should clear on failure")
	}
}

func TestAbortTurnKeepsPartialContent(t *testing.T) {
	tr := NewTranscript()
	_, assistant, _ := tr.BeginTurn("question", nil)
	tr.AppendToInflight("partial answ")

	tr.AbortTurn()

	if tr.Len() != 2 {
		t.Fatalf("Expected both messages kept on abort, got %d", tr.Len())
	}
	if assistant.Content != "partial answ" {
		t.Errorf("Expected partial content kept, got %q", assistant.Content)
	}
	if assistant.IsStreaming {
		t.Error("Aborted message should not stay in streaming state")
	}
}

func TestAttachSourcesAccumulatesOnInflightMetadata(t *testing.T) {
	tr := NewTranscript()
	_, assistant, _ := tr.BeginTurn("question", nil)

	tr.AttachSources([]string{"a", "b"}, []protocol.Chunk{{Source: "a", Preview: "p1"}})
	tr.AttachSources([]string{"b", "c"}, []protocol.Chunk{{Source: "c", Preview: "p2"}})
	tr.CompleteTurn()

	meta := assistant.Metadata
	if meta == nil {
		t.Fatal("Expected metadata on the assistant message")
	}
	if len(meta.SourcesUsed) != 3 {
		t.Errorf("Expected deduplicated sources [a b c], got %v", meta.SourcesUsed)
	}
	if len(meta.ChunksFound) != 2 {
		t.Errorf("Expected 2 chunks, got %v", meta.ChunksFound)
	}
}

func TestAttachSourcesOutsideTurnIsNoop(t *testing.T) {
	tr := NewTranscript()
	tr.AttachSources([]string{"a"}, nil)
	if tr.Len() != 0 {
		t.Error("AttachSources outside a turn must not create messages")
	}
}

func TestReplaceAllClearsTurnState(t *testing.T) {
	tr := NewTranscript()
	tr.BeginTurn("q", nil)
	tr.CompleteTurn()

	history := []*Message{NewUserMessage("from server")}
	tr.ReplaceAll(history)

	if tr.Len() != 1 || tr.Messages()[0].Content != "from server" {
		t.Errorf("Expected server history only, got %d messages", tr.Len())
	}
	if tr.InFlight() != nil {
		t.Error("InFlight should be nil after ReplaceAll")
	}
}

func TestBeginTurnCarriesMetadata(t *testing.T) {
	tr := NewTranscript()
	meta := &Metadata{Action: "explain", SelectedText: "le passage"}
	user, _, _ := tr.BeginTurn("explique", meta)

	if user.Metadata == nil || user.Metadata.Action != "explain" {
		t.Errorf("Expected action metadata on user message, got %+v", user.Metadata)
	}
}
