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

package graph

import (
	"encoding/binary"
	"fmt"

	"github.com/cactus-engine/cactus-go/internal/tensor"
)

// Weight file layout (spec.md §6), little-endian, naturally aligned so the
// payload can be handed straight to callers as a typed slice after mmap:
//
//	magic      [4]byte  "CGW1"
//	precision  uint32   tensor.Precision tag
//	rank       uint32
//	dims       [rank]uint32
//	pad        to an 8-byte boundary
//	payload    row-major, ByteSize(shape, precision) bytes
//
// A ".scale" sibling file, when present, holds a single little-endian
// float64: the I8 dequantization scale for the weight (spec.md §6).

const weightFileMagic = "CGW1"
const weightHeaderAlign = 8

// weightFileHeaderSize returns the total header size (magic + precision +
// rank + dims), padded up to weightHeaderAlign.
func weightFileHeaderSize(rank int) int {
	raw := 4 + 4 + 4 + rank*4
	if rem := raw % weightHeaderAlign; rem != 0 {
		raw += weightHeaderAlign - rem
	}
	return raw
}

// parseWeightHeader reads a weight file's header from buf and returns the
// inferred descriptor plus the header's total byte length (the payload
// begins there).
func parseWeightHeader(buf []byte) (tensor.BufferDesc, int, error) {
	if len(buf) < 12 || string(buf[:4]) != weightFileMagic {
		return tensor.BufferDesc{}, 0, fmt.Errorf("graph: bad weight file magic")
	}
	precision := tensor.Precision(binary.LittleEndian.Uint32(buf[4:8]))
	rank := int(binary.LittleEndian.Uint32(buf[8:12]))
	headerSize := weightFileHeaderSize(rank)
	if len(buf) < headerSize {
		return tensor.BufferDesc{}, 0, fmt.Errorf("graph: weight file truncated in header")
	}
	shape := make(tensor.Shape, rank)
	for i := 0; i < rank; i++ {
		off := 12 + i*4
		shape[i] = int(binary.LittleEndian.Uint32(buf[off : off+4]))
	}
	desc := tensor.BufferDesc{Shape: shape, Precision: precision}
	if len(buf) < headerSize+desc.ByteSize() {
		return tensor.BufferDesc{}, 0, fmt.Errorf("graph: weight file truncated in payload")
	}
	return desc, headerSize, nil
}

// encodeWeightHeader is the inverse of parseWeightHeader, used by tests to
// build fixture weight files without depending on an external tool.
func encodeWeightHeader(desc tensor.BufferDesc) []byte {
	rank := len(desc.Shape)
	headerSize := weightFileHeaderSize(rank)
	buf := make([]byte, headerSize)
	copy(buf[:4], weightFileMagic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(desc.Precision))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(rank))
	for i, d := range desc.Shape {
		off := 12 + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(d))
	}
	return buf
}
