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

	"github.com/cactus-engine/cactus-go/internal/tensor"
)

type scalarOpF64 func(x float64) float64

// ScalarAddF32, ScalarSubF32, ScalarMulF32, ScalarDivF32 apply a constant to
// every element of x, writing to out (which may alias x).
func ScalarAddF32(x, out []float32, s float32) { scalarF32(x, out, func(v float64) float64 { return v + float64(s) }) }
func ScalarSubF32(x, out []float32, s float32) { scalarF32(x, out, func(v float64) float64 { return v - float64(s) }) }
func ScalarMulF32(x, out []float32, s float32) { scalarF32(x, out, func(v float64) float64 { return v * float64(s) }) }
func ScalarDivF32(x, out []float32, s float32) { scalarF32(x, out, func(v float64) float64 { return v / float64(s) }) }

// ExpF32, SqrtF32, CosF32, SinF32 apply the named transcendental function
// element-wise.
func ExpF32(x, out []float32)  { scalarF32(x, out, stdmath.Exp) }
func SqrtF32(x, out []float32) { scalarF32(x, out, stdmath.Sqrt) }
func CosF32(x, out []float32)  { scalarF32(x, out, stdmath.Cos) }
func SinF32(x, out []float32)  { scalarF32(x, out, stdmath.Sin) }

func scalarF32(x, out []float32, op scalarOpF64) {
	n := min(len(x), len(out))
	for i := range n {
		out[i] = float32(op(float64(x[i])))
	}
}

// F16 counterparts: widen to float64, apply op, round back to Float16.
func ScalarAddF16(x, out []tensor.Float16, s tensor.Float16) {
	scalarF16(x, out, func(v float64) float64 { return v + s.Float64() })
}
func ScalarSubF16(x, out []tensor.Float16, s tensor.Float16) {
	scalarF16(x, out, func(v float64) float64 { return v - s.Float64() })
}
func ScalarMulF16(x, out []tensor.Float16, s tensor.Float16) {
	scalarF16(x, out, func(v float64) float64 { return v * s.Float64() })
}
func ScalarDivF16(x, out []tensor.Float16, s tensor.Float16) {
	scalarF16(x, out, func(v float64) float64 { return v / s.Float64() })
}

func ExpF16(x, out []tensor.Float16)  { scalarF16(x, out, stdmath.Exp) }
func SqrtF16(x, out []tensor.Float16) { scalarF16(x, out, stdmath.Sqrt) }
func CosF16(x, out []tensor.Float16)  { scalarF16(x, out, stdmath.Cos) }
func SinF16(x, out []tensor.Float16)  { scalarF16(x, out, stdmath.Sin) }

func scalarF16(x, out []tensor.Float16, op scalarOpF64) {
	n := min(len(x), len(out))
	for i := range n {
		out[i] = tensor.NewFloat16(float32(op(x[i].Float64())))
	}
}

// ScalarAddI8, ScalarSubI8, ScalarMulI8, ScalarDivI8 apply a constant integer
// code to every element, saturating to [-128, 127].
func ScalarAddI8(x, out []int8, s int8) { scalarI8(x, out, func(v float64) float64 { return v + float64(s) }) }
func ScalarSubI8(x, out []int8, s int8) { scalarI8(x, out, func(v float64) float64 { return v - float64(s) }) }
func ScalarMulI8(x, out []int8, s int8) { scalarI8(x, out, func(v float64) float64 { return v * float64(s) }) }
func ScalarDivI8(x, out []int8, s int8) { scalarI8(x, out, func(v float64) float64 { return v / float64(s) }) }

func scalarI8(x, out []int8, op scalarOpF64) {
	n := min(len(x), len(out))
	for i := range n {
		out[i] = saturateI8(op(float64(x[i])))
	}
}
