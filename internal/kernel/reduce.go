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

import stdmath "math"

// ReduceKind selects which whole-tensor/along-axis reduction to perform.
type ReduceKind int

const (
	ReduceSum ReduceKind = iota
	ReduceMean
	ReduceVariance
	ReduceMin
	ReduceMax
)

// ReduceF32 reduces x (logically shaped shape) along axis, writing to out.
// axis == -1 reduces the whole tensor to a single value (out must have
// length 1); otherwise the named axis is removed from shape and out must
// have length shape.NumElements()/shape[axis] (spec.md §4.B's "Reductions"
// shape-inference rule: axis -1 -> [1], else the axis dimension is
// removed).
func ReduceF32(x, out []float32, shape []int, axis int, kind ReduceKind) {
	get := func(i int) float64 { return float64(x[i]) }
	set := func(i int, v float64) { out[i] = float32(v) }
	reduceAxis(shape, axis, len(x), get, set, kind)
}

// reduceAxis is the shape-walking core shared by every precision: it never
// touches the concrete element type, only the get/set accessor closures.
func reduceAxis(shape []int, axis int, totalLen int, get func(int) float64, set func(int, float64), kind ReduceKind) {
	if axis < 0 {
		reduceRange(0, totalLen, 1, get, set, 0, kind)
		return
	}

	outer, axisSize, inner := 1, shape[axis], 1
	for i := 0; i < axis; i++ {
		outer *= shape[i]
	}
	for i := axis + 1; i < len(shape); i++ {
		inner *= shape[i]
	}

	outIdx := 0
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			start := o*axisSize*inner + in
			reduceRange(start, axisSize, inner, get, set, outIdx, kind)
			outIdx++
		}
	}
}

// reduceRange reduces axisSize elements starting at start with the given
// stride, writing the single scalar result to set(outIdx, ...).
func reduceRange(start, axisSize, stride int, get func(int) float64, set func(int, float64), outIdx int, kind ReduceKind) {
	switch kind {
	case ReduceSum, ReduceMean:
		var sum float64
		for i := 0; i < axisSize; i++ {
			sum += get(start + i*stride)
		}
		if kind == ReduceMean {
			set(outIdx, sum/float64(axisSize))
		} else {
			set(outIdx, sum)
		}
	case ReduceVariance:
		var sum float64
		for i := 0; i < axisSize; i++ {
			sum += get(start + i*stride)
		}
		mean := sum / float64(axisSize)
		var sq float64
		for i := 0; i < axisSize; i++ {
			d := get(start+i*stride) - mean
			sq += d * d
		}
		set(outIdx, sq/float64(axisSize))
	case ReduceMin:
		m := get(start)
		for i := 1; i < axisSize; i++ {
			v := get(start + i*stride)
			if v < m {
				m = v
			}
		}
		set(outIdx, m)
	case ReduceMax:
		m := get(start)
		for i := 1; i < axisSize; i++ {
			v := get(start + i*stride)
			if v > m {
				m = v
			}
		}
		set(outIdx, m)
	}
}

// rms computes sqrt(mean(x^2) + eps) over n elements via get(i).
func rms(get func(int) float64, n int, eps float64) float64 {
	var sumSq float64
	for i := 0; i < n; i++ {
		v := get(i)
		sumSq += v * v
	}
	return stdmath.Sqrt(sumSq/float64(n) + eps)
}
