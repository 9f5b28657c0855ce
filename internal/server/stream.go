// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Wire event types understood by the voice platform's SSE client.
const (
	eventTypeTTS  = "response.tts"
	eventTypeData = "response.data"
	eventTypeEnd  = "response.end"
)

// sseStream writes Layercode response events to an SSE response body. It
// implements the orchestrator's outbound Stream contract.
type sseStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher // nil when the writer cannot flush (httptest)
	turnID  string
}

func newSSEStream(w http.ResponseWriter, turnID string) *sseStream {
	flusher, _ := w.(http.Flusher)
	return &sseStream{w: w, flusher: flusher, turnID: turnID}
}

type wireEvent struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
	TurnID  string          `json:"turn_id"`
}

// TTS enqueues a text fragment to be spoken.
func (s *sseStream) TTS(text string) error {
	content, err := json.Marshal(text)
	if err != nil {
		return err
	}
	return s.write(wireEvent{Type: eventTypeTTS, Content: content, TurnID: s.turnID})
}

// Data forwards an arbitrary JSON payload verbatim for UI synchronization.
func (s *sseStream) Data(payload json.RawMessage) error {
	if !json.Valid(payload) {
		// Keep the event stream well-formed even for sloppy payloads.
		wrapped, err := json.Marshal(string(payload))
		if err != nil {
			return err
		}
		payload = wrapped
	}
	return s.write(wireEvent{Type: eventTypeData, Content: payload, TurnID: s.turnID})
}

// End signals that this turn's outbound content is complete.
func (s *sseStream) End() error {
	return s.write(wireEvent{Type: eventTypeEnd, TurnID: s.turnID})
}

func (s *sseStream) write(ev wireEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", raw); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
