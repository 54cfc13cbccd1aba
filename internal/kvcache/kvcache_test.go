// Copyright 2025 cactus-go Authors. SPDX-License-Identifier: Apache-2.0

package kvcache_test

import (
	"testing"

	"github.com/cactus-engine/cactus-go/internal/graph"
	"github.com/cactus-engine/cactus-go/internal/kvcache"
	"github.com/cactus-engine/cactus-go/internal/tensor"
)

// tokenNode builds a fresh external [1,kvHeads,headDim] F32 input holding
// a single token's key (or value) vector, one element per head*dim slot.
func tokenNode(t *testing.T, g *graph.Graph, kvHeads, headDim int, fill float32) int64 {
	t.Helper()
	desc := tensor.BufferDesc{Shape: tensor.Shape{1, kvHeads, headDim}, Precision: tensor.F32}
	id, err := g.AddExternalInput(desc)
	if err != nil {
		t.Fatalf("AddExternalInput: %v", err)
	}
	owned := tensor.NewOwned(desc)
	for i := range owned.F32() {
		owned.F32()[i] = fill
	}
	if err := g.SetExternalInput(id, owned.Bytes()); err != nil {
		t.Fatalf("SetExternalInput: %v", err)
	}
	return id
}

// TestSinkPreservationS4 implements spec.md §8 scenario S4: window=4,
// sink=2, feed ids 1..10 one at a time; the final contiguous key view of
// layer 0 must hold {1,2,7,8,9,10} in that order.
func TestSinkPreservationS4(t *testing.T) {
	c := kvcache.New(1, 100, 1, 1, 4, 2, tensor.F32)
	g := graph.New(nil)

	for v := 1; v <= 10; v++ {
		id := tokenNode(t, g, 1, 1, float32(v))
		if err := c.UpdateFromGraph(g, []int64{id}, []int64{id}, 1); err != nil {
			t.Fatalf("UpdateFromGraph(%d): %v", v, err)
		}
	}

	got := c.GetKeyPtr(0)
	gotF32 := make([]float32, 0, 6)
	for i := 0; i < len(got); i += 4 {
		b := tensor.BufferDesc{Shape: tensor.Shape{1}, Precision: tensor.F32}
		buf, err := tensor.NewExternal(b, got[i:i+4])
		if err != nil {
			t.Fatalf("NewExternal: %v", err)
		}
		gotF32 = append(gotF32, buf.F32()[0])
	}

	want := []float32{1, 2, 7, 8, 9, 10}
	if len(gotF32) != len(want) {
		t.Fatalf("got %v tokens, want %v", gotF32, want)
	}
	for i := range want {
		if gotF32[i] != want[i] {
			t.Errorf("token[%d] = %v, want %v", i, gotF32[i], want[i])
		}
	}
}

func TestCurrentLenMatchesMinTotalSeenCapacity(t *testing.T) {
	c := kvcache.New(1, 100, 2, 4, 4, 2, tensor.F32)
	g := graph.New(nil)

	for v := 1; v <= 3; v++ {
		id := tokenNode(t, g, 2, 4, float32(v))
		if err := c.UpdateFromGraph(g, []int64{id}, []int64{id}, 1); err != nil {
			t.Fatalf("UpdateFromGraph: %v", err)
		}
	}
	if c.CurrentLen() != 3 {
		t.Errorf("CurrentLen() = %d, want 3 (Filling)", c.CurrentLen())
	}
	if c.State(0) != kvcache.StateFilling {
		t.Errorf("State = %v, want Filling", c.State(0))
	}

	for v := 4; v <= 8; v++ {
		id := tokenNode(t, g, 2, 4, float32(v))
		if err := c.UpdateFromGraph(g, []int64{id}, []int64{id}, 1); err != nil {
			t.Fatalf("UpdateFromGraph: %v", err)
		}
	}
	if c.CurrentLen() != 6 {
		t.Errorf("CurrentLen() = %d, want 6 (capacity)", c.CurrentLen())
	}
	if c.State(0) != kvcache.StateSaturated {
		t.Errorf("State = %v, want Saturated", c.State(0))
	}
}

func TestResetReturnsToEmpty(t *testing.T) {
	c := kvcache.New(1, 100, 1, 1, 4, 2, tensor.F32)
	g := graph.New(nil)
	id := tokenNode(t, g, 1, 1, 1)
	if err := c.UpdateFromGraph(g, []int64{id}, []int64{id}, 1); err != nil {
		t.Fatalf("UpdateFromGraph: %v", err)
	}
	c.Reset()
	if c.State(0) != kvcache.StateEmpty {
		t.Errorf("State after Reset = %v, want Empty", c.State(0))
	}
	if c.CurrentLen() != 0 {
		t.Errorf("CurrentLen after Reset = %d, want 0", c.CurrentLen())
	}
}

func TestMultiTokenUpdateWrapsAcrossCapacity(t *testing.T) {
	// Prefill with 7 tokens in one call against a capacity-6 cache:
	// bytes_per_token writes must wrap mid-call, exercising copyToRing's
	// two-chunk path directly (not just one-token-at-a-time updates).
	c := kvcache.New(1, 100, 1, 1, 4, 2, tensor.F32)
	g := graph.New(nil)

	desc := tensor.BufferDesc{Shape: tensor.Shape{7, 1, 1}, Precision: tensor.F32}
	id, err := g.AddExternalInput(desc)
	if err != nil {
		t.Fatalf("AddExternalInput: %v", err)
	}
	owned := tensor.NewOwned(desc)
	for i := 0; i < 7; i++ {
		owned.F32()[i] = float32(i + 1)
	}
	if err := g.SetExternalInput(id, owned.Bytes()); err != nil {
		t.Fatalf("SetExternalInput: %v", err)
	}

	if err := c.UpdateFromGraph(g, []int64{id}, []int64{id}, 7); err != nil {
		t.Fatalf("UpdateFromGraph: %v", err)
	}
	if c.CurrentLen() != 6 {
		t.Fatalf("CurrentLen() = %d, want 6", c.CurrentLen())
	}
}
