// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

// Package orchestrator drives one conversational turn per inbound webhook
// event: it serializes access to the session's history, appends the
// caller's utterance, obtains a streamed reply from the configured LLM
// provider, and relays that reply to the outbound stream followed by a
// single end-of-turn marker.
package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/voicebridge-dev/voicebridge/internal/provider"
	"github.com/voicebridge-dev/voicebridge/internal/session"
	vberr "github.com/voicebridge-dev/voicebridge/pkg/errors"
)

// EventTypeSessionStart is the only event type with special handling; all
// other types take the generic LLM-turn path.
const EventTypeSessionStart = "session.start"

// Event is one validated inbound webhook payload.
type Event struct {
	Text      string `json:"text"`
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
}

// Stream is the outbound channel for one turn.
//
// TTS enqueues text to be synthesized and spoken; it may be called many
// times per turn. Data forwards an advisory structured payload to the
// client for UI synchronization. End signals that the turn's outbound
// content is complete; the orchestrator calls it exactly once per event,
// after all TTS and Data calls.
type Stream interface {
	TTS(text string) error
	Data(payload json.RawMessage) error
	End() error
}

// Config holds the named values the reference kept as literals: the model,
// the persona prompt, and the canned session greeting.
type Config struct {
	Model          string
	SystemPrompt   string
	WelcomeMessage string
	Temperature    *float32
	MaxTokens      int
}

// Orchestrator owns per-session turn handling.
type Orchestrator struct {
	sessions session.Store
	llm      provider.Provider
	cfg      Config
}

// New creates an Orchestrator.
func New(sessions session.Store, llm provider.Provider, cfg Config) *Orchestrator {
	return &Orchestrator{
		sessions: sessions,
		llm:      llm,
		cfg:      cfg,
	}
}

// HandleTurn processes one inbound event and writes the turn's outbound
// content to stream.
//
// End is emitted exactly once per event, even when the provider stream
// fails mid-turn: a silently truncated spoken response must not leave the
// client hanging without an end-of-turn marker. On provider failure the
// partial text already forwarded is not retracted and no assistant turn is
// committed to history.
func (o *Orchestrator) HandleTurn(ctx context.Context, ev Event, stream Stream) error {
	if err := validateEvent(ev); err != nil {
		return err
	}

	// One in-flight turn per session; concurrent deliveries for the same
	// session queue up here instead of interleaving history writes.
	release, err := o.sessions.Acquire(ctx, ev.SessionID)
	if err != nil {
		return vberr.Wrap(err, vberr.CodeOrchestratorTurnFailure,
			"acquiring session", vberr.FieldSessionID(ev.SessionID), vberr.FieldTurnID(ev.TurnID))
	}
	defer release()

	if err := o.sessions.Append(ctx, ev.SessionID, session.TextTurn(session.RoleUser, ev.Text)); err != nil {
		return vberr.Wrap(err, vberr.CodeOrchestratorTurnFailure,
			"appending user turn", vberr.FieldSessionID(ev.SessionID))
	}

	if ev.Type == EventTypeSessionStart {
		return o.greet(ctx, ev, stream)
	}
	return o.respond(ctx, ev, stream)
}

// greet emits the fixed welcome message without a provider call.
func (o *Orchestrator) greet(ctx context.Context, ev Event, stream Stream) error {
	if err := stream.TTS(o.cfg.WelcomeMessage); err != nil {
		return vberr.Wrap(err, vberr.CodeOrchestratorStreamWrite,
			"writing welcome message", vberr.FieldSessionID(ev.SessionID))
	}

	if err := o.sessions.Append(ctx, ev.SessionID, session.TextTurn(session.RoleAssistant, o.cfg.WelcomeMessage)); err != nil {
		return vberr.Wrap(err, vberr.CodeOrchestratorTurnFailure,
			"appending welcome turn", vberr.FieldSessionID(ev.SessionID))
	}

	o.logHistory(ctx, ev.SessionID)

	if err := stream.End(); err != nil {
		return vberr.Wrap(err, vberr.CodeOrchestratorStreamWrite,
			"signaling end of turn", vberr.FieldSessionID(ev.SessionID))
	}
	return nil
}

// respond drives a streaming provider call over the full session history
// and forwards each text delta. History is committed only on the terminal
// done event, never incrementally.
func (o *Orchestrator) respond(ctx context.Context, ev Event, stream Stream) error {
	history, err := o.sessions.History(ctx, ev.SessionID)
	if err != nil {
		return vberr.Wrap(err, vberr.CodeOrchestratorTurnFailure,
			"loading session history", vberr.FieldSessionID(ev.SessionID))
	}

	chatCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := o.llm.Chat(chatCtx, provider.ChatRequest{
		Model:        o.cfg.Model,
		Messages:     toMessages(history),
		SystemPrompt: o.cfg.SystemPrompt,
		Options: provider.ChatOptions{
			Temperature: o.cfg.Temperature,
			MaxTokens:   o.cfg.MaxTokens,
		},
	})
	if err != nil {
		// Nothing was spoken yet, but the turn is over for the client.
		_ = stream.End()
		return vberr.Wrap(err, vberr.CodeProviderUpstreamFailure,
			"starting provider stream", vberr.FieldSessionID(ev.SessionID), vberr.FieldProvider(o.llm.Name()))
	}
	defer drain(events)

	if payload, err := json.Marshal(map[string]string{
		"turn_id":     ev.TurnID,
		"response_id": uuid.NewString(),
	}); err == nil {
		if err := stream.Data(payload); err != nil {
			slog.Warn("forwarding advisory data payload failed",
				"session_id", ev.SessionID, "turn_id", ev.TurnID, "error", err)
		}
	}

	var reply strings.Builder
	var usage *provider.Usage
	var streamErr error
	done := false

	for e := range events {
		switch e.Type {
		case provider.EventTypeTextDelta:
			reply.WriteString(e.Text)
			if err := stream.TTS(e.Text); err != nil {
				cancel()
				_ = stream.End()
				return vberr.Wrap(err, vberr.CodeOrchestratorStreamWrite,
					"forwarding text delta", vberr.FieldSessionID(ev.SessionID))
			}
		case provider.EventTypeUsage:
			usage = e.Usage
		case provider.EventTypeError:
			streamErr = vberr.New(vberr.CodeProviderUpstreamFailure, e.Error,
				vberr.FieldSessionID(ev.SessionID), vberr.FieldProvider(o.llm.Name()))
		case provider.EventTypeDone:
			done = true
		}
	}

	if streamErr != nil || !done {
		// Partial output already spoken stays spoken; nothing is committed.
		_ = stream.End()
		if streamErr == nil {
			streamErr = vberr.New(vberr.CodeProviderUpstreamFailure,
				"provider stream ended without completion", vberr.FieldSessionID(ev.SessionID))
		}
		return streamErr
	}

	if ctx.Err() != nil {
		// The caller went away mid-stream; do not commit a partial turn.
		return vberr.Wrap(ctx.Err(), vberr.CodeOrchestratorTurnFailure,
			"turn cancelled before commit", vberr.FieldSessionID(ev.SessionID))
	}

	if err := o.sessions.Append(ctx, ev.SessionID, session.TextTurn(session.RoleAssistant, reply.String())); err != nil {
		return vberr.Wrap(err, vberr.CodeOrchestratorTurnFailure,
			"appending assistant turn", vberr.FieldSessionID(ev.SessionID))
	}

	if usage != nil {
		slog.Debug("turn token usage",
			"session_id", ev.SessionID,
			"turn_id", ev.TurnID,
			"input_tokens", usage.InputTokens,
			"output_tokens", usage.OutputTokens,
		)
	}
	o.logHistory(ctx, ev.SessionID)

	if err := stream.End(); err != nil {
		return vberr.Wrap(err, vberr.CodeOrchestratorStreamWrite,
			"signaling end of turn", vberr.FieldSessionID(ev.SessionID))
	}
	return nil
}

func (o *Orchestrator) logHistory(ctx context.Context, sessionID string) {
	if !slog.Default().Enabled(ctx, slog.LevelDebug) {
		return
	}
	history, err := o.sessions.History(ctx, sessionID)
	if err != nil {
		return
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return
	}
	slog.Debug("session history after turn",
		"session_id", sessionID,
		"turns", len(history),
		"history", string(raw),
	)
}

func validateEvent(ev Event) error {
	switch {
	case ev.SessionID == "":
		return vberr.New(vberr.CodeServerRequestInvalid, "session_id is required")
	case ev.TurnID == "":
		return vberr.New(vberr.CodeServerRequestInvalid, "turn_id is required")
	case ev.Type == "":
		return vberr.New(vberr.CodeServerRequestInvalid, "type is required")
	}
	return nil
}

func toMessages(turns []session.Turn) []provider.Message {
	msgs := make([]provider.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, provider.Message{
			Role:    provider.MessageRole(t.Role),
			Content: t.Text(),
		})
	}
	return msgs
}

// drain discards any events left after an early exit so the producing
// goroutine can finish and close the channel.
func drain(ch <-chan provider.ChatEvent) {
	go func() {
		for range ch {
		}
	}()
}
