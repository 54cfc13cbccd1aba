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
	"fmt"
	"time"

	"github.com/cactus-engine/cactus-go/internal/cactuserr"
	"github.com/cactus-engine/cactus-go/internal/graph"
	"github.com/cactus-engine/cactus-go/internal/tokenizer"
)

// Generate runs spec.md §4.E's single-step contract: render and encode
// the prompt, reuse or reset the KV cache against processed_tokens,
// decode until a stop condition fires, and return the decoded text (split
// from any leading tool-call JSON), timing, and token counts.
//
// toolSchemaJSON is passed straight through to the tokenizer's chat
// template as the tool-schema system-message prefix (empty to disable
// tool-call rendering entirely). stream, if non-nil, is invoked once per
// newly generated token with its decoded text and id, except for the token
// that completes a stop sequence, which is never streamed.
func (s *Session) Generate(messages []tokenizer.ChatMessage, opts Options, toolSchemaJSON string, stream StreamFunc) (GenerateResult, error) {
	start := time.Now()
	s.shouldStop.Store(false)

	if len(messages) == 0 {
		return GenerateResult{}, cactuserr.Wrap(cactuserr.ErrTokenization, "no messages provided")
	}

	currentPromptTokens, err := s.tok.ApplyChatTemplate(messages, true, toolSchemaJSON)
	if err != nil {
		return GenerateResult{}, err
	}

	delta := s.resolveDelta(currentPromptTokens)
	promptTokens := len(delta)
	stopSeqs := s.compileStopSequences(opts.StopSequences)

	if opts.MaxTokens == 0 {
		s.processedTokens = currentPromptTokens
		return GenerateResult{PromptTokens: promptTokens}, nil
	}

	sampleParams := graph.SampleParams{
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		TopK:        opts.TopK,
		Seed:        opts.Seed,
	}

	var firstInput []uint32
	switch {
	case len(delta) > 0:
		firstInput = delta
	case len(s.processedTokens) > 0:
		// Re-send of the exact prior prompt: submit just the last
		// processed token (spec.md §4.E step 4).
		firstInput = []uint32{s.processedTokens[len(s.processedTokens)-1]}
	default:
		return GenerateResult{}, cactuserr.Wrap(cactuserr.ErrTokenization, "cannot generate from empty prompt")
	}

	nextToken, err := s.step(firstInput, sampleParams)
	if err != nil {
		return GenerateResult{}, err
	}
	ttft := millisSince(start)

	s.processedTokens = currentPromptTokens
	generated := []uint32{nextToken}
	s.processedTokens = append(s.processedTokens, nextToken)

	externalStop := false
	if !matchesStopSequence(generated, stopSeqs) {
		if stream != nil {
			stream(s.tok.Decode([]uint32{nextToken}), nextToken)
		}

		for i := 1; i < opts.MaxTokens; i++ {
			if s.shouldStop.Load() {
				externalStop = true
				break
			}

			nextToken, err = s.step([]uint32{nextToken}, sampleParams)
			if err != nil {
				return GenerateResult{}, err
			}
			generated = append(generated, nextToken)
			s.processedTokens = append(s.processedTokens, nextToken)

			if matchesStopSequence(generated, stopSeqs) {
				break
			}
			if stream != nil {
				stream(s.tok.Decode([]uint32{nextToken}), nextToken)
			}
		}
	}

	totalMillis := millisSince(start)
	completionTokens := len(generated)
	decodeMillis := totalMillis - ttft
	var tps float64
	if completionTokens > 1 && decodeMillis > 0 {
		tps = float64(completionTokens-1) * 1000.0 / decodeMillis
	}

	responseText := s.tok.Decode(generated)
	text, toolCalls := extractToolCalls(responseText)

	result := GenerateResult{
		Text:             text,
		ToolCalls:        toolCalls,
		TTFTMillis:       ttft,
		TotalMillis:      totalMillis,
		TokensPerSecond:  tps,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}
	s.lastStats = Stats{
		TTFTMillis:       ttft,
		TotalMillis:      totalMillis,
		TokensPerSecond:  tps,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}

	if externalStop {
		return result, cactuserr.ErrStopped
	}
	return result, nil
}

// step submits tokenIDs to the block builder, executes the resulting
// graph, absorbs the newly produced key/value tensors into the KV cache,
// and soft-resets the graph so the next step starts from a clean node
// arena (spec.md §4.B: soft-reset between decoding calls is mandatory,
// not an optimization — the arena would otherwise grow unbounded).
func (s *Session) step(tokenIDs []uint32, sample graph.SampleParams) (uint32, error) {
	positionOffset := s.kv.TotalLen()
	build, err := s.blockBuilder.Build(s.g, tokenIDs, positionOffset, s.kv, sample)
	if err != nil {
		return 0, err
	}

	if err := s.g.Execute(nil); err != nil {
		return 0, err
	}

	sampled := s.g.Node(build.SampleNodeID)
	if sampled == nil || sampled.Output == nil {
		return 0, fmt.Errorf("generate: block builder returned unknown sample node %d", build.SampleNodeID)
	}
	tokenID := sampled.Output.U32()[0]

	if err := s.kv.UpdateFromGraph(s.g, build.KeyNodeIDs, build.ValueNodeIDs, len(tokenIDs)); err != nil {
		return 0, err
	}

	s.g.SoftReset()
	return tokenID, nil
}

// resolveDelta implements spec.md §4.E step 2: if processed_tokens is a
// prefix of current, the new input is the suffix past it; otherwise the
// KV cache resets and the delta is the whole prompt.
func (s *Session) resolveDelta(current []uint32) []uint32 {
	if len(s.processedTokens) == 0 || !isPrefix(s.processedTokens, current) {
		s.kv.Reset()
		out := make([]uint32, len(current))
		copy(out, current)
		return out
	}
	out := make([]uint32, len(current)-len(s.processedTokens))
	copy(out, current[len(s.processedTokens):])
	return out
}

func isPrefix(prefix, full []uint32) bool {
	if len(prefix) > len(full) {
		return false
	}
	for i, v := range prefix {
		if full[i] != v {
			return false
		}
	}
	return true
}

func millisSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
