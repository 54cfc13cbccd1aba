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

package tokenizer

import "strings"

// ChatMessage is one turn of a chat conversation.
type ChatMessage struct {
	Role    string
	Content string
}

const (
	forMarker    = "{% for message in messages %}"
	endForMarker = "{% endfor %}"

	toolCallExample = "{\n" +
		"  \"tool_calls\": [\n" +
		"    {\n" +
		"      \"name\": \"tool_name\",\n" +
		"      \"arguments\": {\n" +
		"        \"arg1\": \"some_value\"\n" +
		"      },\n" +
		"      \"id\": \"call_1___\"\n" +
		"    }\n" +
		"  ]\n" +
		"}"
)

func defaultRoleBlock(role, content string) string {
	switch role {
	case "system", "user", "assistant":
		return "<|im_start|>" + role + "\n" + content + "<|im_end|>\n"
	default:
		return ""
	}
}

// FormatChatPrompt renders messages to a single prompt string. When
// toolsJSON is non-empty, a system message carrying the tool schema and a
// literal tool-call example is prepended regardless of a loaded template
// (ported from apply_template_substitutions's tools branch, which runs
// before the template-vs-default fork). Otherwise it applies the loaded
// chat_template.jinja2's `{% for message in messages %}...{% endfor %}`
// block if present, or the default `<|im_start|>{role}\n{content}<|im_end|>\n`
// format. Ported from BPETokenizer::format_chat_prompt /
// apply_template_substitutions.
func (t *Tokenizer) FormatChatPrompt(messages []ChatMessage, addGenerationPrompt bool, toolsJSON string) string {
	if toolsJSON != "" {
		return t.formatWithTools(messages, addGenerationPrompt, toolsJSON)
	}
	if t.hasChatTemplate {
		return t.applyLoadedTemplate(messages, addGenerationPrompt)
	}
	return t.formatDefault(messages, addGenerationPrompt)
}

func (t *Tokenizer) formatDefault(messages []ChatMessage, addGenerationPrompt bool) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(defaultRoleBlock(m.Role, m.Content))
	}
	if addGenerationPrompt {
		sb.WriteString("<|im_start|>assistant\n")
	}
	return sb.String()
}

func (t *Tokenizer) applyLoadedTemplate(messages []ChatMessage, addGenerationPrompt bool) string {
	start := strings.Index(t.chatTemplate, forMarker)
	end := strings.Index(t.chatTemplate, endForMarker)
	if start == -1 || end == -1 {
		return t.formatDefault(messages, addGenerationPrompt)
	}

	var body strings.Builder
	for _, m := range messages {
		body.WriteString(defaultRoleBlock(m.Role, m.Content))
	}
	if addGenerationPrompt {
		body.WriteString("<|im_start|>assistant\n")
	}

	return t.chatTemplate[:start] + body.String() + t.chatTemplate[end+len(endForMarker):]
}

func (t *Tokenizer) formatWithTools(messages []ChatMessage, addGenerationPrompt bool, toolsJSON string) string {
	var sb strings.Builder
	sb.WriteString("<|im_start|>system\n")

	hasSystemMsg := false
	for _, m := range messages {
		if m.Role == "system" {
			sb.WriteString(m.Content)
			sb.WriteString("\n\n")
			hasSystemMsg = true
			break
		}
	}

	sb.WriteString("You can respond normally to the user's request. If you need to call tools, respond with a JSON object containing `tool_calls`.\n")
	sb.WriteString("Only call tools when they are necessary to fulfill the user's request.\n")
	sb.WriteString("You can call any of the following tools to satisfy the user's requests: [\n")
	sb.WriteString(toolsJSON)
	sb.WriteString("\n]\n")
	sb.WriteString("Example tool call syntax:\n")
	sb.WriteString(toolCallExample)
	sb.WriteString("<|im_end|>\n")

	for _, m := range messages {
		if m.Role == "system" && hasSystemMsg {
			continue
		}
		sb.WriteString(defaultRoleBlock(m.Role, m.Content))
	}

	if addGenerationPrompt {
		sb.WriteString("<|im_start|>assistant\n")
	}
	return sb.String()
}

// ApplyChatTemplate renders messages and encodes the result without an
// auto-prepended BOS, since the rendered template already carries its own
// control tokens. Ported from BPETokenizer::apply_chat_template.
func (t *Tokenizer) ApplyChatTemplate(messages []ChatMessage, addGenerationPrompt bool, toolsJSON string) ([]uint32, error) {
	prompt := t.FormatChatPrompt(messages, addGenerationPrompt, toolsJSON)
	return t.Encode(prompt, false)
}
