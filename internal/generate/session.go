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
	"sync/atomic"

	"github.com/cactus-engine/cactus-go/internal/graph"
	"github.com/cactus-engine/cactus-go/internal/kvcache"
	"github.com/cactus-engine/cactus-go/internal/tokenizer"
)

// Options parametrizes one Generate call's sampling and stopping rules.
type Options struct {
	Temperature float32
	TopP        float32
	TopK        int
	Seed        uint64

	MaxTokens     int
	StopSequences []string
}

// Stats is the subset of a GenerateResult callers can fetch without the
// full text/tool-call payload, via Session.Stats after a Generate call.
type Stats struct {
	TTFTMillis       float64
	TotalMillis      float64
	TokensPerSecond  float64
	PromptTokens     int
	CompletionTokens int
}

// GenerateResult is one Generate call's full return value (spec.md §4.E).
type GenerateResult struct {
	Text      string
	ToolCalls []ToolCall

	TTFTMillis      float64
	TotalMillis     float64
	TokensPerSecond float64

	PromptTokens     int
	CompletionTokens int
}

// StreamFunc receives one newly-sampled token's decoded text as it is
// generated. It runs on the generating goroutine; per spec.md §9 the only
// permitted reentry into Session from inside it is Stop.
type StreamFunc func(text string, id uint32)

// Session is spec.md §4.E's per-session state: {model, tokenizer,
// processed_tokens, should_stop}. "model" here is the graph plus the
// BlockBuilder that knows how to extend it each step.
type Session struct {
	g            *graph.Graph
	kv           *kvcache.KVCache
	tok          *tokenizer.Tokenizer
	blockBuilder BlockBuilder

	processedTokens []uint32
	shouldStop      atomic.Bool

	lastStats Stats
}

// NewSession builds a session over an already-constructed graph, KV
// cache, tokenizer, and block builder. The graph and KV cache must share
// the same layer count and the block builder's per-step wiring.
func NewSession(g *graph.Graph, kv *kvcache.KVCache, tok *tokenizer.Tokenizer, blockBuilder BlockBuilder) *Session {
	return &Session{g: g, kv: kv, tok: tok, blockBuilder: blockBuilder}
}

// Reset clears processed_tokens and returns the KV cache to Empty for
// every layer (spec.md §4.E "cache reset between calls").
func (s *Session) Reset() {
	s.processedTokens = nil
	s.kv.Reset()
}

// Stop sets should_stop atomically; a concurrent decoding loop observes
// it between tokens and ends the call early with a partial result.
func (s *Session) Stop() {
	s.shouldStop.Store(true)
}

// Stats returns the last completed Generate call's timing and token
// counts.
func (s *Session) Stats() Stats { return s.lastStats }
