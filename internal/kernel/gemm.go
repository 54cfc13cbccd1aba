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

import (
	"github.com/cactus-engine/cactus-go/internal/kernel/workerpool"
	"github.com/cactus-engine/cactus-go/internal/tensor"
)

// GEMMF32 computes C[M,N] = A[M,K] . B^T[N,K] (B supplied pre-transposed,
// spec.md §4.A). pool may be nil to force single-threaded execution; when
// non-nil, rows of A tile across the pool's workers (spec.md §5: "GEMMs
// tile by (M, N) across workers"). Grounded on
// hwy/contrib/matmul/matmul_base.go's matmulScalar triple loop.
func GEMMF32(pool *workerpool.Pool, a, bT, c []float32, m, n, k int) {
	rows := func(start, end int) {
		for i := start; i < end; i++ {
			aRow := a[i*k : i*k+k]
			cRow := c[i*n : i*n+n]
			for j := 0; j < n; j++ {
				bRow := bT[j*k : j*k+k]
				var sum float64
				for p := 0; p < k; p++ {
					sum += float64(aRow[p]) * float64(bRow[p])
				}
				cRow[j] = float32(sum)
			}
		}
	}
	runRows(pool, m, rows)
}

// GEMMF16 is the Float16 counterpart of GEMMF32, accumulating in float64.
func GEMMF16(pool *workerpool.Pool, a, bT, c []tensor.Float16, m, n, k int) {
	rows := func(start, end int) {
		for i := start; i < end; i++ {
			aRow := a[i*k : i*k+k]
			cRow := c[i*n : i*n+n]
			for j := 0; j < n; j++ {
				bRow := bT[j*k : j*k+k]
				var sum float64
				for p := 0; p < k; p++ {
					sum += aRow[p].Float64() * bRow[p].Float64()
				}
				cRow[j] = tensor.NewFloat16(float32(sum))
			}
		}
	}
	runRows(pool, m, rows)
}

// GEMMI8 computes an int8 matmul with per-operand quantization scales,
// quantizing the accumulator as round(sum*aScale*bScale/cScale) saturating
// to [-128,127] (spec.md §4.A). Grounded in
// original_source/cactus/kernel/kernel_gemm.cpp's int8 scale/saturate
// contract.
func GEMMI8(pool *workerpool.Pool, a, bT, c []int8, m, n, k int, aScale, bScale, cScale float64) {
	factor := aScale * bScale / cScale
	rows := func(start, end int) {
		for i := start; i < end; i++ {
			aRow := a[i*k : i*k+k]
			cRow := c[i*n : i*n+n]
			for j := 0; j < n; j++ {
				bRow := bT[j*k : j*k+k]
				var sum int64
				for p := 0; p < k; p++ {
					sum += int64(aRow[p]) * int64(bRow[p])
				}
				cRow[j] = saturateI8(float64(sum) * factor)
			}
		}
	}
	runRows(pool, m, rows)
}

// GEMMI8ToI32 is the hybrid variant: it produces an unscaled int32
// accumulator, for use with an F16-weight x I8-activation (or vice versa)
// pairing whose caller applies scale and precision conversion itself
// (spec.md §4.A, "an I8->I32 variant produces unscaled integer accumulator
// output, for hybrid F16xI8").
func GEMMI8ToI32(pool *workerpool.Pool, a, bT []int8, c []int32, m, n, k int) {
	rows := func(start, end int) {
		for i := start; i < end; i++ {
			aRow := a[i*k : i*k+k]
			cRow := c[i*n : i*n+n]
			for j := 0; j < n; j++ {
				bRow := bT[j*k : j*k+k]
				var sum int32
				for p := 0; p < k; p++ {
					sum += int32(aRow[p]) * int32(bRow[p])
				}
				cRow[j] = sum
			}
		}
	}
	runRows(pool, m, rows)
}

func runRows(pool *workerpool.Pool, m int, rows func(start, end int)) {
	if pool == nil {
		rows(0, m)
		return
	}
	pool.ParallelFor(m, rows)
}
