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

package kvcache

// View is a (possibly wrap-around) read-only view into a layer's ring
// buffer: Part2 is empty unless the retained region crosses the end of the
// buffer. Ported from KVCache::CircularView / get_circular_view.
type View struct {
	Part1, Part2 []byte
	TotalLen     int // in tokens
}

func (c *KVCache) circularView(layer *LayerCache, buffer []byte) View {
	if c.currentSeqLen == 0 {
		return View{}
	}
	capacity := c.Capacity()
	bytesPerToken := c.bytesPerToken()

	if layer.start+c.currentSeqLen <= capacity {
		off := layer.start * bytesPerToken
		return View{
			Part1:    buffer[off : off+c.currentSeqLen*bytesPerToken],
			TotalLen: c.currentSeqLen,
		}
	}
	firstPartLen := capacity - layer.start
	secondPartLen := c.currentSeqLen - firstPartLen
	off := layer.start * bytesPerToken
	return View{
		Part1:    buffer[off : off+firstPartLen*bytesPerToken],
		Part2:    buffer[:secondPartLen*bytesPerToken],
		TotalLen: c.currentSeqLen,
	}
}

// GetKeyView returns a (possibly two-part) wrap-aware view of layer's
// retained key tokens, in logical order Part1 then Part2.
func (c *KVCache) GetKeyView(layer int) View {
	return c.circularView(&c.layers[layer], c.layers[layer].keys)
}

// GetValueView is GetKeyView's value-buffer counterpart.
func (c *KVCache) GetValueView(layer int) View {
	return c.circularView(&c.layers[layer], c.layers[layer].values)
}

// materializeContiguous lazily copies a (possibly wrapped) ring region
// into scratch storage so callers that need one contiguous slice (e.g. the
// attention kernel's K/V operands) never have to special-case the wrap.
// Ported from KVCache::materialize_continuous_buffer.
func (c *KVCache) materializeContiguous(layer *LayerCache, buffer []byte, scratch *[]byte) []byte {
	bytesPerToken := c.bytesPerToken()
	required := c.currentSeqLen * bytesPerToken
	if len(*scratch) < required {
		*scratch = make([]byte, required)
	}
	capacity := c.Capacity()
	wrapPoint := capacity - layer.start

	if c.currentSeqLen <= wrapPoint {
		off := layer.start * bytesPerToken
		copy(*scratch, buffer[off:off+required])
		return (*scratch)[:required]
	}
	firstBytes := wrapPoint * bytesPerToken
	secondBytes := required - firstBytes
	off := layer.start * bytesPerToken
	copy(*scratch, buffer[off:off+firstBytes])
	copy((*scratch)[firstBytes:], buffer[:secondBytes])
	return (*scratch)[:required]
}

// GetKeyPtr returns the layer's retained keys as one contiguous slice,
// materializing into scratch storage only when the ring has wrapped
// (spec.md §4.C: "materialization to contiguous memory only when the
// consumer cannot accept wrap-around"). Returns nil if the cache is empty.
func (c *KVCache) GetKeyPtr(layer int) []byte {
	if c.currentSeqLen == 0 {
		return nil
	}
	l := &c.layers[layer]
	capacity := c.Capacity()
	if l.start == 0 || l.start+c.currentSeqLen <= capacity {
		bytesPerToken := c.bytesPerToken()
		off := l.start * bytesPerToken
		return l.keys[off : off+c.currentSeqLen*bytesPerToken]
	}
	return c.materializeContiguous(l, l.keys, &l.materializedKeys)
}

// GetValuePtr is GetKeyPtr's value-buffer counterpart.
func (c *KVCache) GetValuePtr(layer int) []byte {
	if c.currentSeqLen == 0 {
		return nil
	}
	l := &c.layers[layer]
	capacity := c.Capacity()
	if l.start == 0 || l.start+c.currentSeqLen <= capacity {
		bytesPerToken := c.bytesPerToken()
		off := l.start * bytesPerToken
		return l.values[off : off+c.currentSeqLen*bytesPerToken]
	}
	return c.materializeContiguous(l, l.values, &l.materializedValues)
}
