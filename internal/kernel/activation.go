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

// SiLUF32 computes SiLU(x) = x * sigmoid(x) element-wise. Grounded on
// hwy/contrib/activation/activation_base.go's BaseSiLU tail-path loop.
func SiLUF32(input, output []float32) {
	n := min(len(input), len(output))
	for i := range n {
		x := float64(input[i])
		sigmoid := 1.0 / (1.0 + stdmath.Exp(-x))
		output[i] = float32(x * sigmoid)
	}
}

// SiLUF16 is the Float16 counterpart of SiLUF32.
func SiLUF16(input, output []tensor.Float16) {
	n := min(len(input), len(output))
	for i := range n {
		x := input[i].Float64()
		sigmoid := 1.0 / (1.0 + stdmath.Exp(-x))
		output[i] = tensor.NewFloat16(float32(x * sigmoid))
	}
}

// GELUF32 computes the tanh-approximation GELU, as spec.md §4.A permits:
// GELU(x) ~= 0.5*x*(1 + tanh(sqrt(2/pi)*(x + 0.044715*x^3))).
func GELUF32(input, output []float32) {
	n := min(len(input), len(output))
	for i := range n {
		output[i] = float32(geluApprox(float64(input[i])))
	}
}

// GELUF16 is the Float16 counterpart of GELUF32.
func GELUF16(input, output []tensor.Float16) {
	n := min(len(input), len(output))
	for i := range n {
		output[i] = tensor.NewFloat16(float32(geluApprox(input[i].Float64())))
	}
}

const sqrt2OverPi = 0.7978845608028654

func geluApprox(x float64) float64 {
	inner := sqrt2OverPi * (x + 0.044715*x*x*x)
	return 0.5 * x * (1.0 + stdmath.Tanh(inner))
}
