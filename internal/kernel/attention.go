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
	stdmath "math"

	"github.com/cactus-engine/cactus-go/internal/kernel/workerpool"
)

// AttentionParams configures AttentionF32 (spec.md §4.A).
type AttentionParams struct {
	Scale          float32
	Causal         bool
	WindowSize     int // 0 = full attention
	PositionOffset int // query i's absolute position is PositionOffset+i
}

// AttentionF32 computes scaled dot-product attention with grouped-query
// support: qHeads must be an integer multiple of kvHeads, and each q-head
// attends to kv-head (qHead / (qHeads/kvHeads)).
//
//   - q:      [seqLen, qHeads, headDim] row-major
//   - k, v:   [kvLen, kvHeads, headDim] row-major
//   - output: [seqLen, qHeads, headDim] row-major
//   - scores: scratch, [qHeads, seqLen, kvLen], caller-provided (no
//     allocation inside the kernel)
//
// Grounded on hwy/contrib/nn/sdpa_base.go's BaseSDPA (single-head
// Q@K^T -> softmax -> @V pipeline), extended with GQA head-grouping and the
// causal/window masking spec.md §4.A requires.
func AttentionF32(pool *workerpool.Pool, q, k, v, output, scores []float32, seqLen, kvLen, qHeads, kvHeads, headDim int, p AttentionParams) {
	if seqLen == 0 || kvLen == 0 || headDim == 0 || qHeads == 0 {
		return
	}
	groupSize := qHeads / kvHeads

	perHead := func(qh int) {
		kvh := qh / groupSize
		sOff := qh * seqLen * kvLen

		for i := 0; i < seqLen; i++ {
			qPos := p.PositionOffset + i
			qOff := (i*qHeads + qh) * headDim
			rowOff := sOff + i*kvLen

			lo, hi := attentionKeyRange(qPos, kvLen, p)
			for j := 0; j < kvLen; j++ {
				if j < lo || j > hi {
					scores[rowOff+j] = float32(stdmath.Inf(-1))
					continue
				}
				kOff := (j*kvHeads + kvh) * headDim
				var sum float64
				for d := 0; d < headDim; d++ {
					sum += float64(q[qOff+d]) * float64(k[kOff+d])
				}
				scores[rowOff+j] = float32(sum * float64(p.Scale))
			}

			softmaxMaskedRow(scores[rowOff:rowOff+kvLen], lo, hi)

			outOff := (i*qHeads + qh) * headDim
			for d := 0; d < headDim; d++ {
				output[outOff+d] = 0
			}
			for j := lo; j <= hi; j++ {
				w := float64(scores[rowOff+j])
				if w == 0 {
					continue
				}
				vOff := (j*kvHeads + kvh) * headDim
				for d := 0; d < headDim; d++ {
					output[outOff+d] += float32(w * float64(v[vOff+d]))
				}
			}
		}
	}

	if pool == nil || qHeads < workerpool.MinParallelWork {
		for qh := 0; qh < qHeads; qh++ {
			perHead(qh)
		}
		return
	}
	pool.ParallelForAtomic(qHeads, perHead)
}

// attentionKeyRange returns the inclusive [lo, hi] key-position range query
// position qPos may attend to, per spec.md §4.A's window/causal contract.
func attentionKeyRange(qPos, kvLen int, p AttentionParams) (lo, hi int) {
	hi = kvLen - 1
	if p.Causal && qPos < hi {
		hi = qPos
	}
	lo = 0
	if p.WindowSize > 0 {
		w := qPos - p.WindowSize + 1
		if w > lo {
			lo = w
		}
	}
	if lo > hi {
		lo, hi = 0, -1 // empty range
	}
	return lo, hi
}

// softmaxMaskedRow applies a stable softmax to row[lo:hi+1], zeroing every
// other position (already -Inf, so exp() naturally yields 0).
func softmaxMaskedRow(row []float32, lo, hi int) {
	if lo > hi {
		for i := range row {
			row[i] = 0
		}
		return
	}
	maxVal := float64(row[lo])
	for i := lo + 1; i <= hi; i++ {
		if float64(row[i]) > maxVal {
			maxVal = float64(row[i])
		}
	}
	var sum float64
	for i := lo; i <= hi; i++ {
		e := stdmath.Exp(float64(row[i]) - maxVal)
		row[i] = float32(e)
		sum += e
	}
	inv := 1.0 / sum
	for i := lo; i <= hi; i++ {
		row[i] = float32(float64(row[i]) * inv)
	}
	for i := 0; i < lo; i++ {
		row[i] = 0
	}
	for i := hi + 1; i < len(row); i++ {
		row[i] = 0
	}
}
