// Copyright 2025 cactus-go Authors. SPDX-License-Identifier: Apache-2.0

package kernel

import (
	"math"
	"testing"
)

func TestRMSNormUnitWeight(t *testing.T) {
	x := []float32{1, 2, 3, 4}
	w := []float32{1, 1, 1, 1}
	out := make([]float32, 4)
	RMSNormF32(x, out, 4, w, 1e-6)

	meanSq := 0.0
	for _, v := range x {
		meanSq += float64(v) * float64(v)
	}
	meanSq /= 4
	r := math.Sqrt(meanSq + 1e-6)

	for i := range x {
		want := float32(float64(x[i]) / r)
		if math.Abs(float64(out[i]-want)) > 1e-5 {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want)
		}
	}
}

func TestRMSNormI8RoundTrip(t *testing.T) {
	x := []int8{10, -10, 20, -20}
	w := []float32{1, 1, 1, 1}
	out := make([]int8, 4)
	RMSNormI8(x, 0.1, out, 4, w, 1e-6)
	// Output must be within the int8 range and non-degenerate.
	allZero := true
	for _, v := range out {
		if v != 0 {
			allZero = false
		}
	}
	if allZero {
		t.Errorf("RMSNormI8 produced all-zero output for non-zero input")
	}
}

func TestReduceAxisWhole(t *testing.T) {
	x := []float32{1, 2, 3, 4}
	out := make([]float32, 1)
	ReduceF32(x, out, []int{4}, -1, ReduceSum)
	if out[0] != 10 {
		t.Errorf("sum = %v, want 10", out[0])
	}

	ReduceF32(x, out, []int{4}, -1, ReduceMax)
	if out[0] != 4 {
		t.Errorf("max = %v, want 4", out[0])
	}
}

func TestReduceAlongAxis(t *testing.T) {
	// shape [2,3]: rows [1,2,3],[4,5,6]; sum along axis 1 -> [6, 15]
	x := []float32{1, 2, 3, 4, 5, 6}
	out := make([]float32, 2)
	ReduceF32(x, out, []int{2, 3}, 1, ReduceSum)
	if out[0] != 6 || out[1] != 15 {
		t.Errorf("sum along axis 1 = %v, want [6 15]", out)
	}
}
