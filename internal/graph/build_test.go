// Copyright 2025 cactus-go Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"errors"
	"testing"

	"github.com/cactus-engine/cactus-go/internal/cactuserr"
	"github.com/cactus-engine/cactus-go/internal/tensor"
)

func float32Desc(shape ...int) tensor.BufferDesc {
	return tensor.BufferDesc{Shape: tensor.Shape(shape), Precision: tensor.F32}
}

func newExternalF32(t *testing.T, g *Graph, data []float32, shape ...int) int64 {
	t.Helper()
	desc := float32Desc(shape...)
	id, err := g.AddExternalInput(desc)
	if err != nil {
		t.Fatalf("AddExternalInput: %v", err)
	}
	bytes := make([]byte, desc.ByteSize())
	// Build the byte representation through a throwaway owned buffer so
	// the test doesn't need unsafe of its own.
	owned := tensor.NewOwned(desc)
	copy(owned.F32(), data)
	copy(bytes, owned.Bytes())
	if err := g.SetExternalInput(id, bytes); err != nil {
		t.Fatalf("SetExternalInput: %v", err)
	}
	return id
}

func TestAddBinaryShapeMismatch(t *testing.T) {
	g := New(nil)
	a := newExternalF32(t, g, []float32{1, 2, 3}, 3)
	b := newExternalF32(t, g, []float32{1, 2}, 2)
	if _, err := g.AddBinary(a, b, BinaryAdd, false); !errors.Is(err, cactuserr.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestAddBinaryBroadcastOK(t *testing.T) {
	g := New(nil)
	a := newExternalF32(t, g, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := newExternalF32(t, g, []float32{10, 20, 30}, 3)
	out, err := g.AddBinary(a, b, BinaryAdd, true)
	if err != nil {
		t.Fatalf("AddBinary: %v", err)
	}
	if err := g.Execute(nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := g.Node(out).Output.F32()
	want := []float32{11, 22, 33, 14, 25, 36}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAddMatMulInnerDimMismatch(t *testing.T) {
	g := New(nil)
	a := newExternalF32(t, g, []float32{1, 2, 3, 4}, 2, 2)
	b := newExternalF32(t, g, []float32{1, 2, 3}, 1, 3)
	if _, err := g.AddMatMul(a, b, MatMulParams{}); !errors.Is(err, cactuserr.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestMatMulExecutes(t *testing.T) {
	g := New(nil)
	// A [2,2] identity, B^T [2,2] identity -> C == A.
	a := newExternalF32(t, g, []float32{1, 2, 3, 4}, 2, 2)
	bT := newExternalF32(t, g, []float32{1, 0, 0, 1}, 2, 2)
	out, err := g.AddMatMul(a, bT, MatMulParams{})
	if err != nil {
		t.Fatalf("AddMatMul: %v", err)
	}
	if err := g.Execute(nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := g.Node(out).Output.F32()
	want := []float32{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAddReshapeElementCountMismatch(t *testing.T) {
	g := New(nil)
	a := newExternalF32(t, g, []float32{1, 2, 3, 4}, 4)
	if _, err := g.AddReshape(a, tensor.Shape{3}); !errors.Is(err, cactuserr.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestAddReduceAxisOutOfRange(t *testing.T) {
	g := New(nil)
	a := newExternalF32(t, g, []float32{1, 2, 3, 4}, 2, 2)
	if _, err := g.AddReduce(a, 5, ReduceSum); !errors.Is(err, cactuserr.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestAddAttentionQHeadsNotMultiple(t *testing.T) {
	g := New(nil)
	q := newExternalF32(t, g, make([]float32, 1*3*2), 1, 3, 2)
	k := newExternalF32(t, g, make([]float32, 1*2*2), 1, 2, 2)
	v := newExternalF32(t, g, make([]float32, 1*2*2), 1, 2, 2)
	_, err := g.AddAttention(q, k, v, AttentionParams{QHeads: 3, KVHeads: 2, HeadDim: 2})
	if !errors.Is(err, cactuserr.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestSoftResetPreservesExternalInputs(t *testing.T) {
	g := New(nil)
	extID := newExternalF32(t, g, []float32{1, 2}, 2)
	b := newExternalF32(t, g, []float32{3, 4}, 2)
	computedID, err := g.AddBinary(extID, b, BinaryAdd, false)
	if err != nil {
		t.Fatalf("AddBinary: %v", err)
	}
	if g.Len() != 3 {
		t.Fatalf("expected 3 nodes before reset, got %d", g.Len())
	}

	g.SoftReset()

	if g.Node(extID) == nil {
		t.Errorf("external input node should survive soft reset")
	}
	if g.Node(b) == nil {
		t.Errorf("other external input node should survive soft reset")
	}
	if g.Node(computedID) != nil {
		t.Errorf("computed node should not survive soft reset")
	}

	// A fresh computed node should reuse small ids again.
	nextID, err := g.AddBinary(extID, b, BinaryAdd, false)
	if err != nil {
		t.Fatalf("AddBinary after soft reset: %v", err)
	}
	if nextID <= b {
		t.Errorf("next id %d should be greater than every preserved id (max preserved %d)", nextID, b)
	}
}

func TestHardResetClearsEverything(t *testing.T) {
	g := New(nil)
	newExternalF32(t, g, []float32{1, 2}, 2)
	g.HardReset()
	if g.Len() != 0 {
		t.Errorf("expected empty graph after hard reset, got %d nodes", g.Len())
	}
}

func TestAddNodeRejectsForwardReference(t *testing.T) {
	g := New(nil)
	if _, err := g.addNode(&GraphNode{Kind: NodeComputed, Inputs: []int64{42}}); !errors.Is(err, cactuserr.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange for unknown input, got %v", err)
	}
}

func TestAddSampleRequiresF32Logits(t *testing.T) {
	g := New(nil)
	desc := tensor.BufferDesc{Shape: tensor.Shape{4}, Precision: tensor.I8}
	id, err := g.AddExternalInput(desc)
	if err != nil {
		t.Fatalf("AddExternalInput: %v", err)
	}
	if _, err := g.AddSample(id, SampleParams{}); !errors.Is(err, cactuserr.ErrUnsupportedPrecisionCombo) {
		t.Fatalf("expected ErrUnsupportedPrecisionCombo, got %v", err)
	}
}
