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

// binOpF64 is one of the four element-wise arithmetic operators, applied in
// float64 to avoid duplicating four loops per precision.
type binOpF64 func(a, b float64) float64

func addF64(a, b float64) float64 { return a + b }
func subF64(a, b float64) float64 { return a - b }
func mulF64(a, b float64) float64 { return a * b }
func divF64(a, b float64) float64 { return a / b }

// AddF32, SubF32, MulF32, DivF32 compute element-wise c[i] = op(a[i], b[i])
// over equal-length same-shape slices. c may alias a or b.
func AddF32(a, b, c []float32) { ewF32(a, b, c, addF64) }
func SubF32(a, b, c []float32) { ewF32(a, b, c, subF64) }
func MulF32(a, b, c []float32) { ewF32(a, b, c, mulF64) }
func DivF32(a, b, c []float32) { ewF32(a, b, c, divF64) }

func ewF32(a, b, c []float32, op binOpF64) {
	n := min(len(a), len(b), len(c))
	for i := range n {
		c[i] = float32(op(float64(a[i]), float64(b[i])))
	}
}

// AddF16, SubF16, MulF16, DivF16 compute element-wise ops over Float16
// slices, widening to float64 for the arithmetic and rounding back.
func AddF16(a, b, c []tensor.Float16) { ewF16(a, b, c, addF64) }
func SubF16(a, b, c []tensor.Float16) { ewF16(a, b, c, subF64) }
func MulF16(a, b, c []tensor.Float16) { ewF16(a, b, c, mulF64) }
func DivF16(a, b, c []tensor.Float16) { ewF16(a, b, c, divF64) }

func ewF16(a, b, c []tensor.Float16, op binOpF64) {
	n := min(len(a), len(b), len(c))
	for i := range n {
		c[i] = tensor.NewFloat16(float32(op(a[i].Float64(), b[i].Float64())))
	}
}

// AddI8, SubI8, MulI8, DivI8 compute element-wise ops over raw int8 codes,
// saturating the result to [-128, 127]. Unlike GEMM, plain element-wise I8
// ops carry no per-buffer scale in spec.md §4.A — they operate on the
// integer codes directly, matching low-precision ALU semantics.
func AddI8(a, b, c []int8) { ewI8(a, b, c, addF64) }
func SubI8(a, b, c []int8) { ewI8(a, b, c, subF64) }
func MulI8(a, b, c []int8) { ewI8(a, b, c, mulF64) }
func DivI8(a, b, c []int8) { ewI8(a, b, c, divF64) }

func ewI8(a, b, c []int8, op binOpF64) {
	n := min(len(a), len(b), len(c))
	for i := range n {
		c[i] = saturateI8(op(float64(a[i]), float64(b[i])))
	}
}

func saturateI8(v float64) int8 {
	r := int64(v + sign(v)*0.5) // round half away from zero
	if r > 127 {
		return 127
	}
	if r < -128 {
		return -128
	}
	return int8(r)
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// AddBroadcastF32 computes c[out] = a[aOff] + b[bOff] for every logical
// index of info.OutShape, reading a and b through their broadcast strides.
// The broadcast variants named in spec.md §4.A ("a broadcast variant taking
// per-operand stride arrays and the output shape").
func AddBroadcastF32(a, b, c []float32, info BroadcastInfo) { ewBroadcastF32(a, b, c, info, addF64) }
func SubBroadcastF32(a, b, c []float32, info BroadcastInfo) { ewBroadcastF32(a, b, c, info, subF64) }
func MulBroadcastF32(a, b, c []float32, info BroadcastInfo) { ewBroadcastF32(a, b, c, info, mulF64) }
func DivBroadcastF32(a, b, c []float32, info BroadcastInfo) { ewBroadcastF32(a, b, c, info, divF64) }

func ewBroadcastF32(a, b, c []float32, info BroadcastInfo, op binOpF64) {
	ForEachBroadcast(info, func(outOff, aOff, bOff int) {
		c[outOff] = float32(op(float64(a[aOff]), float64(b[bOff])))
	})
}
