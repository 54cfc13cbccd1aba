// Copyright 2025 cactus-go Authors. SPDX-License-Identifier: Apache-2.0

package kernel

import "testing"

func TestAddF32(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{10, 20, 30}
	c := make([]float32, 3)
	AddF32(a, b, c)
	want := []float32{11, 22, 33}
	for i := range want {
		if c[i] != want[i] {
			t.Errorf("c[%d] = %v, want %v", i, c[i], want[i])
		}
	}
}

func TestBroadcastAdd(t *testing.T) {
	// spec.md §8 S5: [4,1] + [1,3] -> 4x3 sum table.
	a := []float32{1, 2, 3, 4}
	b := []float32{1, 2, 3}
	info := NewBroadcastInfo([]int{4, 1}, []int{1, 3})
	c := make([]float32, 12)
	AddBroadcastF32(a, b, c, info)

	want := [][]float32{
		{2, 3, 4},
		{3, 4, 5},
		{4, 5, 6},
		{5, 6, 7},
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 3; j++ {
			got := c[i*3+j]
			if got != want[i][j] {
				t.Errorf("c[%d][%d] = %v, want %v", i, j, got, want[i][j])
			}
		}
	}
}

func TestAddI8Saturates(t *testing.T) {
	a := []int8{120, -120}
	b := []int8{120, -120}
	c := make([]int8, 2)
	AddI8(a, b, c)
	if c[0] != 127 {
		t.Errorf("c[0] = %d, want saturated 127", c[0])
	}
	if c[1] != -128 {
		t.Errorf("c[1] = %d, want saturated -128", c[1])
	}
}
