// Copyright 2025 cactus-go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package generate

import (
	"encoding/json"
	"strings"
)

// ToolCall is one parsed entry of a response's leading `tool_calls` JSON
// array (SPEC_FULL.md §4.E: a typed form of the FFI boundary's bare
// `function_calls?: object[]`).
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

type toolCallEnvelope struct {
	ToolCalls []rawToolCall `json:"tool_calls"`
}

type rawToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// extractToolCalls implements spec.md §4.E step 7: attempt to parse a
// leading JSON object containing a tool_calls array out of the decoded
// response. The chat template's tool-schema prefix (tokenizer.go's
// formatWithTools) instructs the model to respond with either plain text
// or, exclusively, that JSON object, so text is whatever doesn't parse as
// part of it.
func extractToolCalls(text string) (string, []ToolCall) {
	trimmed := strings.TrimLeft(text, " \t\n\r")
	if !strings.HasPrefix(trimmed, "{") {
		return text, nil
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	var env toolCallEnvelope
	if err := dec.Decode(&env); err != nil || len(env.ToolCalls) == 0 {
		return text, nil
	}

	rest := strings.TrimLeft(trimmed[dec.InputOffset():], " \t\n\r")
	calls := make([]ToolCall, len(env.ToolCalls))
	for i, c := range env.ToolCalls {
		calls[i] = ToolCall{Name: c.Name, Arguments: c.Arguments}
	}
	return rest, calls
}
