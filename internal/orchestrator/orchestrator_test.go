// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/voicebridge-dev/voicebridge/internal/orchestrator"
	"github.com/voicebridge-dev/voicebridge/internal/provider"
	"github.com/voicebridge-dev/voicebridge/internal/session"
	vberr "github.com/voicebridge-dev/voicebridge/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWelcome = "Welcome to Layercode. How can I help you today?"

// fakeProvider replays a scripted token stream.
type fakeProvider struct {
	mu      sync.Mutex
	tokens  []string
	failMsg string // when set, an error event follows the tokens
	chatErr error  // when set, Chat fails before streaming
	calls   int
	lastReq provider.ChatRequest
}

func (f *fakeProvider) Name() string                   { return "fake" }
func (f *fakeProvider) Available(context.Context) bool { return true }
func (f *fakeProvider) Close() error                   { return nil }

func (f *fakeProvider) Status(context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: true, Provider: "fake"}, nil
}

func (f *fakeProvider) Chat(_ context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	f.mu.Unlock()

	if f.chatErr != nil {
		return nil, f.chatErr
	}

	ch := make(chan provider.ChatEvent, len(f.tokens)+2)
	go func() {
		defer close(ch)
		for _, tok := range f.tokens {
			ch <- provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: tok}
		}
		if f.failMsg != "" {
			ch <- provider.ChatEvent{Type: provider.EventTypeError, Error: f.failMsg}
			return
		}
		ch <- provider.ChatEvent{Type: provider.EventTypeUsage, Usage: &provider.Usage{InputTokens: 10, OutputTokens: 5}}
		ch <- provider.ChatEvent{Type: provider.EventTypeDone}
	}()
	return ch, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProvider) request() provider.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

// recordingStream captures outbound calls in order.
type recordingStream struct {
	calls  []string
	ttsErr error
}

func (r *recordingStream) TTS(text string) error {
	if r.ttsErr != nil {
		return r.ttsErr
	}
	r.calls = append(r.calls, "tts:"+text)
	return nil
}

func (r *recordingStream) Data(payload json.RawMessage) error {
	r.calls = append(r.calls, "data:"+string(payload))
	return nil
}

func (r *recordingStream) End() error {
	r.calls = append(r.calls, "end")
	return nil
}

func (r *recordingStream) endCount() int {
	n := 0
	for _, c := range r.calls {
		if c == "end" {
			n++
		}
	}
	return n
}

func newOrchestrator(llm provider.Provider) (*orchestrator.Orchestrator, *session.MemoryStore) {
	store := session.NewMemoryStore()
	o := orchestrator.New(store, llm, orchestrator.Config{
		Model:          "gemini-2.0-flash-001",
		SystemPrompt:   "You are a helpful conversation assistant.",
		WelcomeMessage: testWelcome,
	})
	return o, store
}

func TestSessionStartSpeaksWelcomeWithoutProviderCall(t *testing.T) {
	llm := &fakeProvider{tokens: []string{"never"}}
	o, store := newOrchestrator(llm)
	stream := &recordingStream{}

	err := o.HandleTurn(context.Background(), orchestrator.Event{
		Type: "session.start", Text: "", SessionID: "s1", TurnID: "t1",
	}, stream)
	require.NoError(t, err)

	require.Equal(t, []string{"tts:" + testWelcome, "end"}, stream.calls)
	assert.Zero(t, llm.callCount(), "session.start never triggers a provider call")

	history, err := store.History(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, session.RoleUser, history[0].Role)
	assert.Equal(t, "", history[0].Text())
	assert.Equal(t, session.RoleAssistant, history[1].Role)
	assert.Equal(t, testWelcome, history[1].Text())
}

func TestMessageStreamsTokensInOrderThenEnds(t *testing.T) {
	llm := &fakeProvider{tokens: []string{"It's", " sunny", " today."}}
	o, store := newOrchestrator(llm)
	stream := &recordingStream{}

	err := o.HandleTurn(context.Background(), orchestrator.Event{
		Type: "message", Text: "What's the weather?", SessionID: "s1", TurnID: "t2",
	}, stream)
	require.NoError(t, err)

	var tts []string
	for _, c := range stream.calls {
		if strings.HasPrefix(c, "tts:") {
			tts = append(tts, strings.TrimPrefix(c, "tts:"))
		}
	}
	assert.Equal(t, []string{"It's", " sunny", " today."}, tts)
	assert.Equal(t, "end", stream.calls[len(stream.calls)-1], "end must come after all content")
	assert.Equal(t, 1, stream.endCount())

	history, err := store.History(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "What's the weather?", history[0].Text())
	assert.Equal(t, "It's sunny today.", history[1].Text(), "assistant turn holds the concatenated reply")
}

func TestMessageForwardsAdvisoryDataPayload(t *testing.T) {
	llm := &fakeProvider{tokens: []string{"hi"}}
	o, _ := newOrchestrator(llm)
	stream := &recordingStream{}

	err := o.HandleTurn(context.Background(), orchestrator.Event{
		Type: "message", Text: "hello", SessionID: "s1", TurnID: "t9",
	}, stream)
	require.NoError(t, err)

	var data string
	for _, c := range stream.calls {
		if strings.HasPrefix(c, "data:") {
			data = strings.TrimPrefix(c, "data:")
		}
	}
	require.NotEmpty(t, data)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(data), &payload))
	assert.Equal(t, "t9", payload["turn_id"])
	assert.NotEmpty(t, payload["response_id"])
}

func TestProviderReceivesFullHistoryAndSystemPrompt(t *testing.T) {
	llm := &fakeProvider{tokens: []string{"ok"}}
	o, _ := newOrchestrator(llm)

	ctx := context.Background()
	require.NoError(t, o.HandleTurn(ctx, orchestrator.Event{
		Type: "session.start", SessionID: "s1", TurnID: "t1",
	}, &recordingStream{}))
	require.NoError(t, o.HandleTurn(ctx, orchestrator.Event{
		Type: "message", Text: "first", SessionID: "s1", TurnID: "t2",
	}, &recordingStream{}))

	req := llm.request()
	assert.Equal(t, "gemini-2.0-flash-001", req.Model)
	assert.Equal(t, "You are a helpful conversation assistant.", req.SystemPrompt)
	// Welcome exchange plus the new user turn.
	require.Len(t, req.Messages, 3)
	assert.Equal(t, provider.MessageRoleUser, req.Messages[0].Role)
	assert.Equal(t, provider.MessageRoleAssistant, req.Messages[1].Role)
	assert.Equal(t, "first", req.Messages[2].Content)
}

func TestSequentialTurnsAlternateRoles(t *testing.T) {
	llm := &fakeProvider{tokens: []string{"reply"}}
	o, store := newOrchestrator(llm)
	ctx := context.Background()

	const n = 4
	for i := 0; i < n; i++ {
		evType := "message"
		if i == 0 {
			evType = "session.start"
		}
		err := o.HandleTurn(ctx, orchestrator.Event{
			Type: evType, Text: fmt.Sprintf("utterance %d", i),
			SessionID: "s1", TurnID: fmt.Sprintf("t%d", i),
		}, &recordingStream{})
		require.NoError(t, err)
	}

	history, err := store.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 2*n, "N completed events yield 2N turns")
	for i, turn := range history {
		if i%2 == 0 {
			assert.Equal(t, session.RoleUser, turn.Role, "turn %d", i)
		} else {
			assert.Equal(t, session.RoleAssistant, turn.Role, "turn %d", i)
		}
	}
}

func TestProviderStreamErrorStillEndsAndCommitsNothing(t *testing.T) {
	llm := &fakeProvider{tokens: []string{"partial"}, failMsg: "upstream exploded"}
	o, store := newOrchestrator(llm)
	stream := &recordingStream{}

	err := o.HandleTurn(context.Background(), orchestrator.Event{
		Type: "message", Text: "hello", SessionID: "s1", TurnID: "t1",
	}, stream)
	require.Error(t, err)
	assert.True(t, vberr.HasCode(err, vberr.CodeProviderUpstreamFailure))

	assert.Equal(t, 1, stream.endCount(), "end fires exactly once even on provider failure")
	assert.Equal(t, "end", stream.calls[len(stream.calls)-1])

	history, err := store.History(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, history, 1, "only the user turn is committed")
	assert.Equal(t, session.RoleUser, history[0].Role)
}

func TestChatCallFailureEndsTurn(t *testing.T) {
	llm := &fakeProvider{chatErr: errors.New("dial refused")}
	o, _ := newOrchestrator(llm)
	stream := &recordingStream{}

	err := o.HandleTurn(context.Background(), orchestrator.Event{
		Type: "message", Text: "hello", SessionID: "s1", TurnID: "t1",
	}, stream)
	require.Error(t, err)
	assert.Equal(t, 1, stream.endCount())
}

func TestStreamWriteFailureAbortsWithoutCommit(t *testing.T) {
	llm := &fakeProvider{tokens: []string{"a", "b"}}
	o, store := newOrchestrator(llm)
	stream := &recordingStream{ttsErr: errors.New("client gone")}

	err := o.HandleTurn(context.Background(), orchestrator.Event{
		Type: "message", Text: "hello", SessionID: "s1", TurnID: "t1",
	}, stream)
	require.Error(t, err)
	assert.True(t, vberr.HasCode(err, vberr.CodeOrchestratorStreamWrite))

	history, err := store.History(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestValidateEvent(t *testing.T) {
	o, store := newOrchestrator(&fakeProvider{})
	ctx := context.Background()

	cases := []orchestrator.Event{
		{Type: "message", TurnID: "t1"},    // no session id
		{Type: "message", SessionID: "s1"}, // no turn id
		{SessionID: "s1", TurnID: "t1"},    // no type
	}
	for _, ev := range cases {
		err := o.HandleTurn(ctx, ev, &recordingStream{})
		require.Error(t, err)
		assert.True(t, vberr.IsInvalidInput(err))
	}

	assert.Equal(t, 0, store.Len(), "invalid events must not touch the store")
}
