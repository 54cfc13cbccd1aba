// Copyright 2025 cactus-go Authors. SPDX-License-Identifier: Apache-2.0

package kernel

import (
	"math"
	"testing"
)

func TestRoPEPreservesPairNorm(t *testing.T) {
	// Rotation preserves the L2 norm of each (x_2i, x_2i+1) pair.
	x := []float32{1, 2, 3, 4}
	out := make([]float32, 4)
	RoPEF32(x, out, 1, 1, 1, 4, 10000, 5)

	normBefore := math.Hypot(float64(x[0]), float64(x[1]))
	normAfter := math.Hypot(float64(out[0]), float64(out[1]))
	if math.Abs(normBefore-normAfter) > 1e-4 {
		t.Errorf("RoPE changed pair norm: before=%v after=%v", normBefore, normAfter)
	}
}

func TestRoPEZeroPositionIsIdentity(t *testing.T) {
	x := []float32{1, 2, 3, 4}
	out := make([]float32, 4)
	RoPEF32(x, out, 1, 1, 1, 4, 10000, 0)
	for i := range x {
		if math.Abs(float64(out[i]-x[i])) > 1e-5 {
			t.Errorf("out[%d] = %v, want %v (pos=0 is identity rotation)", i, out[i], x[i])
		}
	}
}
