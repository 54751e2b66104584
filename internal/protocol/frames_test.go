// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

// =============================================================================
// FRAME DECODER TESTS
// =============================================================================

func collectFrames(t *testing.T, d *FrameDecoder) ([]string, error) {
	t.Helper()
	var frames []string
	for {
		payload, err := d.Next()
		if err != nil {
			return frames, err
		}
		frames = append(frames, payload)
	}
}

func TestFrameDecoderBasicStream(t *testing.T) {
	stream := "data: Hello\n\ndata:  world\n\ndata: [DONE]\n\n"
	d := NewFrameDecoder(strings.NewReader(stream))

	frames, err := collectFrames(t, d)
	if err != io.EOF {
		t.Fatalf("Expected io.EOF, got %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d: %v", len(frames), frames)
	}
	if frames[0] != "Hello" {
		t.Errorf("Expected 'Hello', got %q", frames[0])
	}
	// Only the single framing space is stripped; payload whitespace stays.
	if frames[1] != " world" {
		t.Errorf("Expected ' world', got %q", frames[1])
	}
}

func TestFrameDecoderIgnoresNonDataLines(t *testing.T) {
	stream := ": keep-alive\nid: 3\ndata: A\nretry: 100\ndata: [DONE]\n"
	d := NewFrameDecoder(strings.NewReader(stream))

	frames, err := collectFrames(t, d)
	if err != io.EOF {
		t.Fatalf("Expected io.EOF, got %v", err)
	}
	if len(frames) != 1 || frames[0] != "A" {
		t.Errorf("Expected single frame 'A', got %v", frames)
	}
}

func TestFrameDecoderErrorSentinel(t *testing.T) {
	stream := "data: partial\ndata: [ERROR] API key not configured\n"
	d := NewFrameDecoder(strings.NewReader(stream))

	frames, err := collectFrames(t, d)
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("Expected *ServerError, got %v", err)
	}
	if serverErr.Message != "API key not configured" {
		t.Errorf("Expected sentinel message, got %q", serverErr.Message)
	}
	if len(frames) != 1 || frames[0] != "partial" {
		t.Errorf("Expected frames before the error to be delivered, got %v", frames)
	}

	// Terminal: further reads report clean EOF, not the error again.
	if _, err := d.Next(); err != io.EOF {
		t.Errorf("Expected io.EOF after terminal error, got %v", err)
	}
}

func TestFrameDecoderPartialLineBuffering(t *testing.T) {
	// One byte at a time forces every line across many read boundaries,
	// including inside the multi-byte "é".
	stream := "data: café crème\n\ndata: [DONE]\n"
	d := NewFrameDecoder(iotest.OneByteReader(strings.NewReader(stream)))

	frames, err := collectFrames(t, d)
	if err != io.EOF {
		t.Fatalf("Expected io.EOF, got %v", err)
	}
	if len(frames) != 1 || frames[0] != "café crème" {
		t.Errorf("Expected intact UTF-8 payload, got %v", frames)
	}
}

func TestFrameDecoderCRLF(t *testing.T) {
	stream := "data: A\r\ndata: [DONE]\r\n"
	d := NewFrameDecoder(strings.NewReader(stream))

	frames, err := collectFrames(t, d)
	if err != io.EOF {
		t.Fatalf("Expected io.EOF, got %v", err)
	}
	if len(frames) != 1 || frames[0] != "A" {
		t.Errorf("Expected 'A' without trailing CR, got %v", frames)
	}
}

func TestFrameDecoderUnterminatedFinalLine(t *testing.T) {
	// A stream cut before the trailing newline still yields its last frame.
	d := NewFrameDecoder(strings.NewReader("data: tail"))

	payload, err := d.Next()
	if err != nil {
		t.Fatalf("Expected final partial line to decode, got %v", err)
	}
	if payload != "tail" {
		t.Errorf("Expected 'tail', got %q", payload)
	}
	if _, err := d.Next(); err != io.EOF {
		t.Errorf("Expected io.EOF after final line, got %v", err)
	}
}

func TestFrameDecoderEmptyStream(t *testing.T) {
	d := NewFrameDecoder(strings.NewReader(""))
	if _, err := d.Next(); err != io.EOF {
		t.Errorf("Expected io.EOF on empty stream, got %v", err)
	}
}
