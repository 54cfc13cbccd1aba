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

// RoPEF32 applies rotary positional embedding in place (out may alias x) to
// a [batch, seq, heads, headDim] tensor. For each adjacent feature pair
// (x_2i, x_2i+1), with angle theta_i = pos * base^(-2i/headDim) and
// pos = positionOffset + seqIndex:
//
//	x_2i'   = x_2i*cos  - x_2i+1*sin
//	x_2i+1' = x_2i*sin  + x_2i+1*cos
//
// (spec.md §4.A).
func RoPEF32(x, out []float32, batch, seq, heads, headDim int, base float64, positionOffset int) {
	half := headDim / 2
	for b := 0; b < batch; b++ {
		for s := 0; s < seq; s++ {
			pos := float64(positionOffset + s)
			for h := 0; h < heads; h++ {
				base0 := ((b*seq+s)*heads+h)*headDim
				for i := 0; i < half; i++ {
					theta := pos * stdmath.Pow(base, -float64(2*i)/float64(headDim))
					c, sn := stdmath.Cos(theta), stdmath.Sin(theta)
					x0 := float64(x[base0+2*i])
					x1 := float64(x[base0+2*i+1])
					out[base0+2*i] = float32(x0*c - x1*sn)
					out[base0+2*i+1] = float32(x0*sn + x1*c)
				}
			}
		}
	}
}
