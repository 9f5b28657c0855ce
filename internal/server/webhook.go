// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/voicebridge-dev/voicebridge/internal/orchestrator"
)

// DefaultSignatureHeader is the header the voice platform signs webhook
// deliveries with.
const DefaultSignatureHeader = "layercode-signature"

// maxWebhookBody caps the raw request body read for signature verification.
const maxWebhookBody = 1 << 20

// WebhookConfig holds the credentials the webhook endpoint checks on every
// delivery. The *Var names are reported verbatim in error bodies so an
// operator knows which environment variable to set.
type WebhookConfig struct {
	Secret    string // shared HMAC secret for signature verification
	SecretVar string // env var name reported when Secret is empty
	APIKey    string // provider API key; checked here, consumed by the provider
	APIKeyVar string // env var name reported when APIKey is empty

	// SignatureHeader overrides the header carrying the HMAC signature.
	// Defaults to DefaultSignatureHeader.
	SignatureHeader string
}

// TurnHandler processes one validated webhook event and writes the turn's
// outbound content to stream.
type TurnHandler interface {
	HandleTurn(ctx context.Context, ev orchestrator.Event, stream orchestrator.Stream) error
}

// WebhookHandler authenticates webhook deliveries and hands them to a
// TurnHandler over an SSE response.
type WebhookHandler struct {
	cfg   WebhookConfig
	turns TurnHandler
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(cfg WebhookConfig, turns TurnHandler) *WebhookHandler {
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = DefaultSignatureHeader
	}
	return &WebhookHandler{cfg: cfg, turns: turns}
}

// RegisterWebhookHandler sets the handler used by the webhook endpoint.
func (s *Server) RegisterWebhookHandler(h *WebhookHandler) {
	s.webhook = h
}

func (s *Server) registerWebhookRoute() {
	s.router.Post("/webhook", s.handleWebhook)

	// Register the operation in the OpenAPI spec manually. Signature
	// verification needs the raw request body and the SSE response needs raw
	// http.ResponseWriter access, so the handler cannot use Huma's standard
	// signature. The chi route above does the work; this is the spec entry.
	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "webhook",
		Method:      http.MethodPost,
		Path:        "/webhook",
		Summary:     "Handle a voice platform webhook event",
		Description: "Receives a signed turn event and streams the reply back as server-sent events.",
		Tags:        []string{"webhook"},
		RequestBody: &huma.RequestBody{
			Required: true,
			Content: map[string]*huma.MediaType{
				"application/json": {
					Schema: &huma.Schema{
						Type:     "object",
						Required: []string{"text", "type", "session_id", "turn_id"},
						Properties: map[string]*huma.Schema{
							"text": {
								Type:        "string",
								Description: "Transcribed user utterance (may be empty)",
							},
							"type": {
								Type:        "string",
								Description: "Event type, e.g. message or session.start",
							},
							"session_id": {
								Type:        "string",
								Description: "Conversation session identifier",
							},
							"turn_id": {
								Type:        "string",
								Description: "Identifier for this turn",
							},
						},
					},
				},
			},
		},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Turn response stream",
				Content: map[string]*huma.MediaType{
					"text/event-stream": {
						Schema: &huma.Schema{
							Type:        "string",
							Description: "Server-sent event stream of response.tts, response.data, and response.end events",
						},
					},
				},
			},
			"400": {Description: "Malformed event payload"},
			"401": {Description: "Invalid signature"},
			"500": {Description: "Required credential not configured"},
			"503": {Description: "Turn handler not configured"},
		},
	})
}

// webhookEvent mirrors the inbound payload with pointer fields so absent
// keys are distinguishable from empty strings. text may legitimately be
// empty (session.start), but the key itself must be present.
type webhookEvent struct {
	Text      *string `json:"text"`
	Type      *string `json:"type"`
	SessionID *string `json:"session_id"`
	TurnID    *string `json:"turn_id"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhook == nil {
		http.Error(w, `{"error":"webhook handler not configured"}`, http.StatusServiceUnavailable)
		return
	}
	s.webhook.ServeHTTP(w, r)
}

// ServeHTTP authenticates one delivery and streams the turn response.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Credentials are checked per request, not at startup, so a fixed
	// deployment starts serving without a restart.
	if h.cfg.APIKey == "" {
		writeError(w, http.StatusInternalServerError, h.cfg.APIKeyVar+" is not set")
		return
	}
	if h.cfg.Secret == "" {
		writeError(w, http.StatusInternalServerError, h.cfg.SecretVar+" is not set")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body failed")
		return
	}

	if !VerifySignature(body, r.Header.Get(h.cfg.SignatureHeader), h.cfg.Secret) {
		writeError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if ev.Text == nil || ev.Type == nil || ev.SessionID == nil || ev.TurnID == nil {
		writeError(w, http.StatusBadRequest, "text, type, session_id, and turn_id are required")
		return
	}
	// Empty values must fail here too: once the 200 and SSE headers go out
	// there is no way to report a malformed event.
	if *ev.Type == "" || *ev.SessionID == "" || *ev.TurnID == "" {
		writeError(w, http.StatusBadRequest, "type, session_id, and turn_id must not be empty")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	event := orchestrator.Event{
		Text:      *ev.Text,
		Type:      *ev.Type,
		SessionID: *ev.SessionID,
		TurnID:    *ev.TurnID,
	}
	stream := newSSEStream(w, event.TurnID)

	if err := h.turns.HandleTurn(r.Context(), event, stream); err != nil {
		// Headers are already out; the stream carried its own end marker.
		slog.Error("webhook turn failed",
			"session_id", event.SessionID,
			"turn_id", event.TurnID,
			"error", err,
		)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
