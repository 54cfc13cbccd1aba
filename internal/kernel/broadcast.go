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

// Package kernel implements the precision-specialized dense operators of
// spec.md §4.A: element-wise/scalar ops, activations, GEMM, transpose,
// reductions, RMSNorm, RoPE, softmax, attention, and sampling. Every
// function follows the same contract: the caller provides the output
// buffer (no allocation inside the kernel), there are no error returns,
// results are deterministic modulo floating-point rounding, and two calls
// writing disjoint outputs may run concurrently.
//
// spec.md §1 places SIMD micro-kernels out of scope, treating them as
// "opaque dense-linear-algebra primitives with stated contracts" — so
// unlike the teacher (which dispatches each op to hand-written AVX2/NEON
// assembly behind a portable hwy.Vec abstraction), these are plain Go
// loops: the teacher's own scalar/tail-path code
// (hwy/contrib/{activation,nn,matmul}/*_base.go) is the grounding for the
// arithmetic; there is no architecture dispatch layer here at all.
package kernel

// BroadcastInfo describes an element-wise binary op's output shape plus the
// per-operand strides needed to map a logical output index to each
// operand's physical offset, with a 0 stride over axes the operand
// broadcasts across (spec.md §3, "Broadcast info").
type BroadcastInfo struct {
	OutShape  []int
	AStrides  []int
	BStrides  []int
	OutStride []int
}

// NewBroadcastInfo computes strides for broadcasting aShape and bShape to
// their common output shape. Shapes must already be rank-aligned (pad with
// leading 1s before calling) and each dimension pair must be equal or one
// of them must be 1.
func NewBroadcastInfo(aShape, bShape []int) BroadcastInfo {
	rank := len(aShape)
	out := make([]int, rank)
	for i := range rank {
		out[i] = max(aShape[i], bShape[i])
	}

	aStrides := computeBroadcastStrides(aShape, out)
	bStrides := computeBroadcastStrides(bShape, out)
	outStride := contiguousStrides(out)

	return BroadcastInfo{OutShape: out, AStrides: aStrides, BStrides: bStrides, OutStride: outStride}
}

func contiguousStrides(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

// computeBroadcastStrides returns, for each axis of shape (which broadcasts
// to outShape), the stride to use when walking outShape: the operand's own
// contiguous stride where its extent matches, or 0 where it broadcasts
// (extent 1 against a larger output extent).
func computeBroadcastStrides(shape, outShape []int) []int {
	own := contiguousStrides(shape)
	strides := make([]int, len(shape))
	for i := range shape {
		if shape[i] == outShape[i] {
			strides[i] = own[i]
		} else {
			strides[i] = 0
		}
	}
	return strides
}

// ForEachBroadcast walks every logical index of info.OutShape in row-major
// order, calling fn with the flat output offset and each operand's flat
// offset under its broadcast strides.
func ForEachBroadcast(info BroadcastInfo, fn func(outOff, aOff, bOff int)) {
	rank := len(info.OutShape)
	if rank == 0 {
		fn(0, 0, 0)
		return
	}
	idx := make([]int, rank)
	total := 1
	for _, d := range info.OutShape {
		total *= d
	}

	for range total {
		outOff, aOff, bOff := 0, 0, 0
		for d := range rank {
			outOff += idx[d] * info.OutStride[d]
			aOff += idx[d] * info.AStrides[d]
			bOff += idx[d] * info.BStrides[d]
		}
		fn(outOff, aOff, bOff)

		for d := rank - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < info.OutShape[d] {
				break
			}
			idx[d] = 0
		}
	}
}
