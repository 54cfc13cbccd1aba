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

import "github.com/cactus-engine/cactus-go/internal/tensor"

// rmsNormQuantScale is the fixed requantization scale spec.md §4.A mandates
// for I8 RMSNorm output: "requantize with a fixed scale 2/127".
const rmsNormQuantScale = 2.0 / 127.0

// RMSNormF32 computes y_i = x_i * w_i / rms(x) per contiguous group of
// normSize elements (the hidden-dim vector of one token), grounded on
// hwy/contrib/nn/layernorm_base.go's two-pass group loop but without the
// mean-recentering LayerNorm performs.
func RMSNormF32(x, out []float32, normSize int, w []float32, eps float32) {
	numGroups := len(x) / normSize
	for g := 0; g < numGroups; g++ {
		off := g * normSize
		group := x[off : off+normSize]
		r := rms(func(i int) float64 { return float64(group[i]) }, normSize, float64(eps))
		for i := 0; i < normSize; i++ {
			out[off+i] = float32(float64(group[i]) * float64(w[i]) / r)
		}
	}
}

// RMSNormF16 is the Float16 counterpart of RMSNormF32.
func RMSNormF16(x, out []tensor.Float16, normSize int, w []tensor.Float16, eps float32) {
	numGroups := len(x) / normSize
	for g := 0; g < numGroups; g++ {
		off := g * normSize
		group := x[off : off+normSize]
		r := rms(func(i int) float64 { return group[i].Float64() }, normSize, float64(eps))
		for i := 0; i < normSize; i++ {
			out[off+i] = tensor.NewFloat16(float32(group[i].Float64() * w[i].Float64() / r))
		}
	}
}

// RMSNormI8 dequantizes an I8 input (xScale reconstructs the real value),
// normalizes in float64, and requantizes the output with the fixed
// rmsNormQuantScale (spec.md §4.A).
func RMSNormI8(x []int8, xScale float64, out []int8, normSize int, w []float32, eps float32) {
	numGroups := len(x) / normSize
	for g := 0; g < numGroups; g++ {
		off := g * normSize
		group := x[off : off+normSize]
		r := rms(func(i int) float64 { return float64(group[i]) * xScale }, normSize, float64(eps))
		for i := 0; i < normSize; i++ {
			real := float64(group[i]) * xScale * float64(w[i]) / r
			out[off+i] = saturateI8(real / rmsNormQuantScale)
		}
	}
}
