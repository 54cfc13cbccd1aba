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

// Package generate implements spec.md §4.E: the single-step generation
// orchestrator that drives a graph and a sliding-window KV cache through
// prefix-reuse, stop-sequence detection, and tool-call extraction.
//
// Per-architecture model wiring is explicitly out of scope (spec.md §1
// treats it as a BlockBuilder interface over the graph): this package
// never builds a LLaMA/Gemma/Qwen transformer block itself. Session
// depends only on BlockBuilder, and a caller supplies the concrete
// builder a model directory's config.txt names.
package generate

import (
	"github.com/cactus-engine/cactus-go/internal/graph"
	"github.com/cactus-engine/cactus-go/internal/kvcache"
)

// Build is what one BlockBuilder.Build call contributes to the graph for
// a single decoding step: the node whose U32[1] output holds the sampled
// next token id, and the per-layer key/value node ids produced for the
// tokens just submitted, so KVCache.UpdateFromGraph can absorb them.
type Build struct {
	SampleNodeID             int64
	KeyNodeIDs, ValueNodeIDs []int64
}

// BlockBuilder appends one decoding step's ops to g: embedding lookup,
// attention/FFN blocks reading kv's retained window for context, RoPE at
// positionOffset (the absolute position of tokenIDs[0], from
// KVCache.TotalLen — not the windowed CurrentLen, so positions stay
// correct once the window has slid), and a final sample node built with
// sample. Implementations own the architecture-specific wiring; this
// package only ever calls Build and reads back the Build it returns.
type BlockBuilder interface {
	Build(g *graph.Graph, tokenIDs []uint32, positionOffset int, kv *kvcache.KVCache, sample graph.SampleParams) (Build, error)
}
