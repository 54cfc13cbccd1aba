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

package kernel

// TransposeBytes permutes an n-dim tensor of elemSize-byte elements: for
// every logical index of shape, out[perm(index)] = src[index]. Because
// transpose only moves data (no arithmetic), one implementation serves
// every precision uniformly — the element size is the only precision-
// dependent parameter.
func TransposeBytes(src, dst []byte, shape []int, perm []int, elemSize int) {
	rank := len(shape)
	if rank == 0 {
		copy(dst[:elemSize], src[:elemSize])
		return
	}

	srcStrides := contiguousStrides(shape)

	outShape := make([]int, rank)
	for i, p := range perm {
		outShape[i] = shape[p]
	}
	dstStrides := contiguousStrides(outShape)

	idx := make([]int, rank)
	total := 1
	for _, d := range shape {
		total *= d
	}

	for range total {
		srcOff := 0
		for d := range rank {
			srcOff += idx[d] * srcStrides[d]
		}
		dstOff := 0
		for d := range rank {
			dstOff += idx[perm[d]] * dstStrides[d]
		}
		copy(dst[dstOff*elemSize:(dstOff+1)*elemSize], src[srcOff*elemSize:(srcOff+1)*elemSize])

		for d := rank - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
}
