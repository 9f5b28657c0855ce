// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Voicebridge Contributors

package anthropic

import (
	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/voicebridge-dev/voicebridge/internal/provider"
)

// ConvertMessages exposes convertMessages for white-box testing.
var ConvertMessages = func(msgs []provider.Message) ([]anthropicsdk.MessageParam, error) {
	return convertMessages(msgs)
}

// BuildParams exposes buildParams for white-box testing.
var BuildParams = func(req provider.ChatRequest) (anthropicsdk.MessageNewParams, error) {
	return buildParams(req)
}
