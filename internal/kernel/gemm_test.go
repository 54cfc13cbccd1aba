// Copyright 2025 cactus-go Authors. SPDX-License-Identifier: Apache-2.0

package kernel

import (
	"testing"

	"github.com/cactus-engine/cactus-go/internal/kernel/workerpool"
)

func TestGEMMF32(t *testing.T) {
	// A [2,3], B^T [2,3] (i.e. B is [3,2] pre-transposed), C [2,2].
	a := []float32{1, 2, 3, 4, 5, 6}
	bT := []float32{1, 0, 0, 1, 1, 1}
	c := make([]float32, 4)
	GEMMF32(nil, a, bT, c, 2, 2, 3)

	want := []float32{1, 6, 4, 15}
	for i := range want {
		if c[i] != want[i] {
			t.Errorf("c[%d] = %v, want %v", i, c[i], want[i])
		}
	}
}

func TestGEMMF32Pooled(t *testing.T) {
	pool := workerpool.New(4)
	defer pool.Close()

	m, n, k := 64, 8, 4
	a := make([]float32, m*k)
	bT := make([]float32, n*k)
	for i := range a {
		a[i] = float32(i % 7)
	}
	for i := range bT {
		bT[i] = float32(i % 5)
	}

	cSeq := make([]float32, m*n)
	GEMMF32(nil, a, bT, cSeq, m, n, k)

	cPar := make([]float32, m*n)
	GEMMF32(pool, a, bT, cPar, m, n, k)

	for i := range cSeq {
		if cSeq[i] != cPar[i] {
			t.Fatalf("pooled GEMM mismatch at %d: seq=%v par=%v", i, cSeq[i], cPar[i])
		}
	}
}

func TestGEMMI8Saturate(t *testing.T) {
	a := []int8{127, 127}
	bT := []int8{127, 127}
	c := make([]int8, 1)
	GEMMI8(nil, a, bT, c, 1, 1, 2, 1.0, 1.0, 0.01)
	if c[0] != 127 {
		t.Errorf("c[0] = %d, want saturated 127", c[0])
	}
}

func TestGEMMI8ToI32(t *testing.T) {
	a := []int8{1, 2, 3}
	bT := []int8{1, 1, 1}
	c := make([]int32, 1)
	GEMMI8ToI32(nil, a, bT, c, 1, 1, 3)
	if c[0] != 6 {
		t.Errorf("c[0] = %d, want 6", c[0])
	}
}
