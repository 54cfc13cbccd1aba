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

// SoftmaxF32 computes a numerically-stable row-wise softmax over the last
// dimension: rows of length rowLen, len(x)/rowLen rows. out may alias x.
// Grounded on the per-row softmax pass inside
// hwy/contrib/nn/sdpa_base.go's BaseSDPA.
func SoftmaxF32(x, out []float32, rowLen int) {
	rows := len(x) / rowLen
	for r := 0; r < rows; r++ {
		off := r * rowLen
		row := x[off : off+rowLen]
		maxVal := float64(row[0])
		for i := 1; i < rowLen; i++ {
			if float64(row[i]) > maxVal {
				maxVal = float64(row[i])
			}
		}
		var sum float64
		outRow := out[off : off+rowLen]
		for i := 0; i < rowLen; i++ {
			e := stdmath.Exp(float64(row[i]) - maxVal)
			outRow[i] = float32(e)
			sum += e
		}
		inv := 1.0 / sum
		for i := 0; i < rowLen; i++ {
			outRow[i] = float32(float64(outRow[i]) * inv)
		}
	}
}
