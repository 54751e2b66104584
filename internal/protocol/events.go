// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// INLINE EVENT MARKERS
// =============================================================================

// Recognized event types emitted by the server inside assistant text.
const (
	EventSearchStart    = "search_start"
	EventSearchComplete = "search_complete"
	EventTitleGenerated = "title_generated"
)

// eventPrefix opens an inline marker: [EVENT:<type>] or [EVENT:<type>:<json>].
const eventPrefix = "[EVENT:"

// ToolEvent is a transient control signal decoded from the stream. The
// payload is untyped at this boundary; consumers narrow it by Type via
// DecodePayload.
type ToolEvent struct {
	Type    string
	Payload any
}

// SearchStartPayload accompanies a search_start event.
type SearchStartPayload struct {
	Query string `json:"query"`
}

// SearchCompletePayload accompanies a search_complete event.
type SearchCompletePayload struct {
	Sources []string `json:"sources"`
	Chunks  []Chunk  `json:"chunks"`
}

// TitleGeneratedPayload accompanies a title_generated event.
type TitleGeneratedPayload struct {
	SessionID int64  `json:"session_id"`
	Title     string `json:"title"`
}

// Chunk is a retrieved source excerpt attached to search results. The wire
// carries the excerpt text as "content" (current format) or "preview" (old
// format); decoding accepts both.
type Chunk struct {
	Source  string  `json:"source"`
	Preview string  `json:"preview,omitempty"`
	Query   string  `json:"query,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// UnmarshalJSON prefers the "content" field over "preview" for the excerpt.
func (c *Chunk) UnmarshalJSON(data []byte) error {
	var raw struct {
		Source  string  `json:"source"`
		Content string  `json:"content"`
		Preview string  `json:"preview"`
		Query   string  `json:"query"`
		Score   float64 `json:"score"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Source = raw.Source
	c.Preview = raw.Content
	if c.Preview == "" {
		c.Preview = raw.Preview
	}
	c.Query = raw.Query
	c.Score = raw.Score
	return nil
}

// DecodePayload narrows an event's untyped payload into dst by a JSON round
// trip. Returns false when the payload does not fit dst's shape.
func DecodePayload(ev ToolEvent, dst any) bool {
	if ev.Payload == nil {
		return false
	}
	raw, err := json.Marshal(ev.Payload)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// =============================================================================
// INLINE EVENT PARSER
// =============================================================================

// ParseInline scans a frame payload for inline markers, returning the decoded
// events in left-to-right order and the payload with all recognized markers
// removed.
//
// Marker payloads may contain nested JSON with literal brackets, so the
// closing bracket is found with a depth scan rather than a search for the
// next "]". A marker whose close is missing (truncated at a chunk boundary)
// yields no event and its text is preserved verbatim; scanning resumes one
// character past the opening bracket so progress is always made.
func ParseInline(payload string) ([]ToolEvent, string) {
	var events []ToolEvent
	var clean strings.Builder

	i := 0
	for i < len(payload) {
		start := strings.Index(payload[i:], eventPrefix)
		if start < 0 {
			clean.WriteString(payload[i:])
			break
		}
		start += i

		clean.WriteString(payload[i:start])

		end, ok := markerEnd(payload, start)
		if !ok {
			// Truncated marker: keep the text, skip only the opening
			// bracket so the scan terminates.
			clean.WriteByte(payload[start])
			i = start + 1
			continue
		}

		events = append(events, decodeMarker(payload[start:end+1]))
		i = end + 1
	}

	return events, clean.String()
}

// markerEnd finds the closing bracket of a marker opening at start, using a
// bracket-depth scan. Depth is 1 after the opening bracket; it returns the
// index where depth comes back to 0, or false if the string ends first.
func markerEnd(s string, start int) (int, bool) {
	depth := 1
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// decodeMarker parses the body of a well-formed marker. The body is
// "<type>" or "<type>:<json>"; malformed JSON falls back to the raw string
// payload rather than failing the frame.
func decodeMarker(marker string) ToolEvent {
	body := marker[len(eventPrefix) : len(marker)-1]

	typ, rest, hasPayload := strings.Cut(body, ":")
	ev := ToolEvent{Type: typ}
	if !hasPayload {
		return ev
	}

	var decoded any
	if err := json.Unmarshal([]byte(rest), &decoded); err != nil {
		ev.Payload = rest
		return ev
	}
	ev.Payload = decoded
	return ev
}
