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

// Package kvcache implements spec.md §4.C: a per-layer circular key/value
// ring buffer that preserves the first sink tokens permanently while a
// window of the most recent tokens slides underneath them. Bookkeeping
// (copy_to_circular_buffer / slide_window / materialize_continuous_buffer)
// is ported line-for-line in spirit from
// original_source/cactus/engine/engine_cache.cpp, with the NEON
// simd_memcpy collapsed to the ordinary copy builtin — this package has no
// SIMD surface of its own, matching spec.md §1's scope line.
package kvcache

import (
	"fmt"

	"github.com/cactus-engine/cactus-go/internal/graph"
	"github.com/cactus-engine/cactus-go/internal/tensor"
)

// State is a per-layer lifecycle stage (spec.md §4.C).
type State int

const (
	StateEmpty State = iota
	StateFilling
	StateSaturated
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "Empty"
	case StateFilling:
		return "Filling"
	case StateSaturated:
		return "Saturated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// LayerCache holds one transformer layer's key/value ring buffers.
type LayerCache struct {
	keys, values []byte
	start, end   int
	totalSeen    int

	scratchKeys, scratchValues     []byte
	materializedKeys, materializedValues []byte
}

// State reports this layer's lifecycle stage given the cache's capacity.
func (l *LayerCache) State(capacity int) State {
	switch {
	case l.totalSeen == 0:
		return StateEmpty
	case l.totalSeen < capacity:
		return StateFilling
	default:
		return StateSaturated
	}
}

// KVCache is the full multi-layer sliding-window cache.
type KVCache struct {
	layers []LayerCache

	numLayers, kvHeads, headDim int
	window, sink                int
	precision                   tensor.Precision
	elemSize                    int

	useFastIndexing bool
	bufferMask      int

	currentSeqLen int
	totalSeqLen   int
}

// Capacity returns window+sink, the number of token slots per layer.
func (c *KVCache) Capacity() int { return c.window + c.sink }

// New allocates a KVCache per spec.md §4.C's init(): layers,max_seq,
// kv_heads,head_dim,precision, plus window/sink (spec.md's window-slide
// parameters, fixed for this engine's lifetime once set).
func New(layers, maxSeq, kvHeads, headDim int, window, sink int, precision tensor.Precision) *KVCache {
	if window > maxSeq {
		window = maxSeq
	}
	capacity := window + sink
	c := &KVCache{
		numLayers: layers,
		kvHeads:   kvHeads,
		headDim:   headDim,
		window:    window,
		sink:      sink,
		precision: precision,
		elemSize:  tensor.ElementSize(precision),
		layers:    make([]LayerCache, layers),
	}
	if capacity&(capacity-1) == 0 {
		c.useFastIndexing = true
		c.bufferMask = capacity - 1
	}
	bytesPerToken := kvHeads * headDim * c.elemSize
	bufSize := capacity * bytesPerToken
	for i := range c.layers {
		c.layers[i] = LayerCache{
			keys:   make([]byte, bufSize),
			values: make([]byte, bufSize),
		}
	}
	return c
}

// Reset returns every layer to Empty, zeroing storage (spec.md §4.C).
func (c *KVCache) Reset() {
	for i := range c.layers {
		l := &c.layers[i]
		for j := range l.keys {
			l.keys[j] = 0
		}
		for j := range l.values {
			l.values[j] = 0
		}
		l.start, l.end, l.totalSeen = 0, 0, 0
	}
	c.currentSeqLen = 0
	c.totalSeqLen = 0
}

// State reports the given layer's lifecycle stage.
func (c *KVCache) State(layer int) State { return c.layers[layer].State(c.Capacity()) }

// CurrentLen returns min(total_seen, window+sink): the logical length of
// the materialized view any layer currently holds (spec.md §8 invariant 2).
func (c *KVCache) CurrentLen() int { return c.currentSeqLen }

// TotalLen returns the global count of tokens ever written to the cache,
// unaffected by window sliding. RoPE needs this absolute position
// (position_offset in the C++) to rotate a new token correctly once the
// ring has slid past its early positions; attention's own causal-window
// cutoff, by contrast, is relative to whatever K/V array a block builder
// hands it (typically CurrentLen-before-this-call, the array-relative
// position of the first newly appended token), not this absolute count.
func (c *KVCache) TotalLen() int { return c.totalSeqLen }

func (c *KVCache) bytesPerToken() int { return c.kvHeads * c.headDim * c.elemSize }

// UpdateFromGraph reads the last addedLen tokens out of each layer's K/V
// output node, appends them to the ring, and slides the window if the
// append pushed the layer past capacity (spec.md §4.C's update protocol,
// ported from KVCache::update_from_graph).
func (c *KVCache) UpdateFromGraph(g *graph.Graph, keyNodeIDs, valueNodeIDs []int64, addedLen int) error {
	if len(keyNodeIDs) != c.numLayers || len(valueNodeIDs) != c.numLayers {
		return fmt.Errorf("kvcache: expected %d key/value node ids, got %d/%d", c.numLayers, len(keyNodeIDs), len(valueNodeIDs))
	}
	capacity := c.Capacity()
	bytesPerToken := c.bytesPerToken()

	oldSeqLen := c.currentSeqLen
	c.currentSeqLen = oldSeqLen + addedLen
	c.totalSeqLen += addedLen

	for i := 0; i < c.numLayers; i++ {
		kNode := g.Node(keyNodeIDs[i])
		vNode := g.Node(valueNodeIDs[i])
		if kNode == nil || vNode == nil {
			return fmt.Errorf("kvcache: layer %d key/value node missing", i)
		}
		nTokens := kNode.OutputDesc.Shape[0]
		if nTokens < addedLen {
			return fmt.Errorf("kvcache: layer %d key node has %d tokens, fewer than addedLen %d", i, nTokens, addedLen)
		}
		srcOffset := (nTokens - addedLen) * bytesPerToken
		kSrc := kNode.Output.Bytes()[srcOffset : srcOffset+addedLen*bytesPerToken]
		vSrc := vNode.Output.Bytes()[srcOffset : srcOffset+addedLen*bytesPerToken]

		layer := &c.layers[i]

		// Slide before writing: the new write's slot can land exactly on
		// the still-current sink region once end wraps back to start (the
		// first time the ring fills to capacity). Sliding first reads the
		// sink while it's still valid, then the write lands past the
		// relocated start, evicting the oldest window token instead of
		// clobbering the sink.
		if c.currentSeqLen > capacity {
			c.slideWindow(i)
		}

		copyToRing(layer.keys, kSrc, addedLen, bytesPerToken, layer.end, capacity)
		copyToRing(layer.values, vSrc, addedLen, bytesPerToken, layer.end, capacity)
		layer.end = c.ringIndex(layer.end, addedLen, capacity)
		layer.totalSeen += addedLen
	}

	if c.currentSeqLen > capacity {
		c.currentSeqLen = capacity
	}
	return nil
}

// ringIndex computes (base+delta) mod capacity, using the power-of-two
// mask fast path when available.
func (c *KVCache) ringIndex(base, delta, capacity int) int {
	if c.useFastIndexing {
		return (base + delta) & c.bufferMask
	}
	return (base + delta) % capacity
}

// slideWindow preserves the sink region across a window overflow: it
// copies the sink bytes out, advances start past the evicted tokens, then
// rewrites the sink at the new start (ported from KVCache::slide_window).
func (c *KVCache) slideWindow(layerIdx int) {
	capacity := c.Capacity()
	if c.currentSeqLen <= capacity {
		return
	}
	tokensToRemove := c.currentSeqLen - capacity
	bytesPerToken := c.bytesPerToken()
	layer := &c.layers[layerIdx]

	if layer.scratchKeys == nil {
		layer.scratchKeys = make([]byte, c.sink*bytesPerToken)
		layer.scratchValues = make([]byte, c.sink*bytesPerToken)
	}
	readFromRing(layer.scratchKeys, layer.keys, layer.start, c.sink, bytesPerToken, capacity)
	readFromRing(layer.scratchValues, layer.values, layer.start, c.sink, bytesPerToken, capacity)

	layer.start = c.ringIndex(layer.start, tokensToRemove, capacity)

	writeToRing(layer.keys, layer.scratchKeys, layer.start, c.sink, bytesPerToken, capacity)
	writeToRing(layer.values, layer.scratchValues, layer.start, c.sink, bytesPerToken, capacity)
}
