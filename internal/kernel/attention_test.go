// Copyright 2025 cactus-go Authors. SPDX-License-Identifier: Apache-2.0

package kernel

import (
	"math"
	"testing"
)

func TestSoftmaxRowSumsToOne(t *testing.T) {
	x := []float32{1, 2, 3, 4}
	out := make([]float32, 4)
	SoftmaxF32(x, out, 4)

	var sum float64
	for _, v := range out {
		sum += float64(v)
	}
	if math.Abs(sum-1.0) > 1e-5 {
		t.Errorf("softmax row sum = %v, want 1", sum)
	}
}

func TestAttentionCausalMasksFuture(t *testing.T) {
	seqLen, kvLen, headDim := 2, 2, 2
	q := []float32{1, 0, 1, 0}
	k := []float32{1, 0, 1, 0}
	v := []float32{1, 1, 2, 2}
	output := make([]float32, seqLen*headDim)
	scores := make([]float32, 1*seqLen*kvLen)

	AttentionF32(nil, q, k, v, output, scores, seqLen, kvLen, 1, 1, headDim, AttentionParams{
		Scale:  1,
		Causal: true,
	})

	// First query (position 0) can only see key 0 -> output == v[0].
	if output[0] != 1 || output[1] != 1 {
		t.Errorf("causal query 0 output = %v, want [1 1]", output[:2])
	}
}

func TestAttentionGQAHeadGrouping(t *testing.T) {
	seqLen, kvLen, headDim := 1, 1, 2
	qHeads, kvHeads := 4, 2
	q := make([]float32, seqLen*qHeads*headDim)
	for i := range q {
		q[i] = 1
	}
	k := make([]float32, kvLen*kvHeads*headDim)
	v := make([]float32, kvLen*kvHeads*headDim)
	for i := range k {
		k[i] = 1
		v[i] = float32(i)
	}
	output := make([]float32, seqLen*qHeads*headDim)
	scores := make([]float32, qHeads*seqLen*kvLen)

	AttentionF32(nil, q, k, v, output, scores, seqLen, kvLen, qHeads, kvHeads, headDim, AttentionParams{Scale: 1})

	// q-heads 0,1 share kv-head 0; q-heads 2,3 share kv-head 1.
	if output[0*headDim] != output[1*headDim] {
		t.Errorf("q-heads 0,1 should share kv-head 0's output")
	}
	if output[2*headDim] != output[3*headDim] {
		t.Errorf("q-heads 2,3 should share kv-head 1's output")
	}
	if output[0*headDim] == output[2*headDim] {
		t.Errorf("q-head groups 0-1 and 2-3 should attend to different kv-heads")
	}
}

func TestSampleArgmaxAtZeroTemperature(t *testing.T) {
	// spec.md §8 S6.
	logits := []float32{0.1, 0.2, 0.9, 0.05}
	got := SampleF32(logits, SampleParams{Temperature: 0})
	if got != 2 {
		t.Errorf("SampleF32 argmax = %d, want 2", got)
	}
}

func TestSampleDeterministicWithSeed(t *testing.T) {
	logits := []float32{1, 2, 3, 0.5}
	p := SampleParams{Temperature: 0.8, TopP: 1, TopK: 0, Seed: 42}
	a := SampleF32(logits, p)
	b := SampleF32(logits, p)
	if a != b {
		t.Errorf("same seed produced different samples: %d vs %d", a, b)
	}
}
