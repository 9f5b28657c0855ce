// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

package session

import "strings"

// Role identifies which side of the conversation produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Segment is one ordered piece of a turn's content. The bridge only ever
// produces plain-text segments, but the shape leaves room for the provider
// to return structured parts.
type Segment struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TextSegment returns a plain-text segment.
func TextSegment(text string) Segment {
	return Segment{Type: "text", Text: text}
}

// Turn is one role-tagged contribution to a session. Turns are immutable
// once appended; history is append-only within a session's lifetime.
type Turn struct {
	Role    Role      `json:"role"`
	Content []Segment `json:"content"`
}

// TextTurn builds a single-segment plain-text turn.
func TextTurn(role Role, text string) Turn {
	return Turn{Role: role, Content: []Segment{TextSegment(text)}}
}

// Text returns the turn's text segments concatenated in order.
func (t Turn) Text() string {
	var b strings.Builder
	for _, seg := range t.Content {
		b.WriteString(seg.Text)
	}
	return b.String()
}
