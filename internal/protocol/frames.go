// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// =============================================================================
// STREAM SENTINELS
// =============================================================================

const (
	// dataPrefix marks a protocol frame. Lines without it are ignored
	// (SSE comments, event ids, blank keep-alive lines).
	dataPrefix = "data:"

	// doneSentinel signals clean stream termination.
	doneSentinel = "[DONE]"

	// errorSentinel prefixes a server-reported stream failure. The rest of
	// the payload is the error message.
	errorSentinel = "[ERROR]"
)

// MaxFrameSize is the maximum allowed size for a single frame line (64KB).
const MaxFrameSize = 64 * 1024

// ServerError is a failure reported in-band by the server via the error
// sentinel. The message is user-visible as-is.
type ServerError struct {
	Message string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	if e.Message == "" {
		return "stream error"
	}
	return "stream error: " + e.Message
}

// =============================================================================
// FRAME DECODER
// =============================================================================

// FrameDecoder splits a raw response stream into protocol frames.
//
// The stream arrives in arbitrary-sized chunks; the only framing guarantee is
// newline delimiting, so partial lines are buffered until their newline is
// seen. The bufio layer operates on bytes, which keeps multi-byte UTF-8
// sequences intact across chunk boundaries.
type FrameDecoder struct {
	reader *bufio.Reader
	done   bool
}

// NewFrameDecoder creates a decoder reading from r.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{
		reader: bufio.NewReader(r),
	}
}

// Next returns the next frame payload.
//
// Returns io.EOF on clean termination (the [DONE] sentinel or end of stream),
// a *ServerError when the server reports a failure in-band, and any transport
// read error otherwise. After a terminal return, Next keeps returning io.EOF.
func (d *FrameDecoder) Next() (string, error) {
	if d.done {
		return "", io.EOF
	}

	for {
		line, err := d.reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				d.done = true
				return "", err
			}
			// Process a final unterminated line before surfacing EOF.
			if line == "" {
				d.done = true
				return "", io.EOF
			}
			d.done = true
		}

		if len(line) > MaxFrameSize {
			d.done = true
			return "", fmt.Errorf("frame too large: %d bytes", len(line))
		}

		payload, ok := framePayload(line)
		if !ok {
			if d.done {
				return "", io.EOF
			}
			continue
		}

		switch {
		case payload == doneSentinel:
			d.done = true
			return "", io.EOF
		case strings.HasPrefix(payload, errorSentinel):
			d.done = true
			msg := strings.TrimSpace(strings.TrimPrefix(payload, errorSentinel))
			return "", &ServerError{Message: msg}
		}

		return payload, nil
	}
}

// framePayload strips the data prefix from a raw line, returning the payload
// and whether the line was a frame at all.
func framePayload(line string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}

	payload := line[len(dataPrefix):]
	// The server emits "data: <payload>"; tolerate the bare "data:<payload>"
	// form as well. Only a single leading space is framing, the rest is
	// payload text.
	payload = strings.TrimPrefix(payload, " ")
	return payload, true
}
