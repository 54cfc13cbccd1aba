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

// copyToRing writes numTokens tokens from src into buffer starting at
// writePos (a token-slot index, not a byte offset), wrapping once it hits
// capacity. Ported from KVCache::copy_to_circular_buffer.
func copyToRing(buffer, src []byte, numTokens, bytesPerToken, writePos, capacity int) {
	firstChunkTokens := numTokens
	if capacity-writePos < firstChunkTokens {
		firstChunkTokens = capacity - writePos
	}
	firstChunkBytes := firstChunkTokens * bytesPerToken
	copy(buffer[writePos*bytesPerToken:], src[:firstChunkBytes])

	if firstChunkTokens < numTokens {
		remaining := numTokens*bytesPerToken - firstChunkBytes
		copy(buffer, src[firstChunkBytes:firstChunkBytes+remaining])
	}
}

// readFromRing is copyToRing's inverse: it reads numTokens tokens starting
// at readPos out of buffer into dst, wrapping at capacity. Ported from the
// sink-saving half of KVCache::slide_window.
func readFromRing(dst, buffer []byte, readPos, numTokens, bytesPerToken, capacity int) {
	firstChunkTokens := numTokens
	if capacity-readPos < firstChunkTokens {
		firstChunkTokens = capacity - readPos
	}
	firstChunkBytes := firstChunkTokens * bytesPerToken
	copy(dst, buffer[readPos*bytesPerToken:readPos*bytesPerToken+firstChunkBytes])

	if firstChunkTokens < numTokens {
		remaining := numTokens*bytesPerToken - firstChunkBytes
		copy(dst[firstChunkBytes:], buffer[:remaining])
	}
}

// writeToRing writes src (numTokens tokens) into buffer starting at
// writePos, wrapping at capacity. Used to rewrite the sink region after
// slide_window advances start.
func writeToRing(buffer, src []byte, writePos, numTokens, bytesPerToken, capacity int) {
	firstChunkTokens := numTokens
	if capacity-writePos < firstChunkTokens {
		firstChunkTokens = capacity - writePos
	}
	firstChunkBytes := firstChunkTokens * bytesPerToken
	copy(buffer[writePos*bytesPerToken:], src[:firstChunkBytes])

	if firstChunkTokens < numTokens {
		remaining := numTokens*bytesPerToken - firstChunkBytes
		copy(buffer, src[firstChunkBytes:firstChunkBytes+remaining])
	}
}
