// Copyright 2025 cactus-go Authors. SPDX-License-Identifier: Apache-2.0

package refmodel

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/cactus-engine/cactus-go/internal/graph"
	"github.com/cactus-engine/cactus-go/internal/kvcache"
	"github.com/cactus-engine/cactus-go/internal/modeldir"
	"github.com/cactus-engine/cactus-go/internal/tensor"
)

// writeWeightFile replicates internal/graph's CGW1
// fixture encoding (unexported there) so tests here can build a throwaway
// model directory without depending on another package's test helpers.
func writeWeightFile(t *testing.T, path string, shape tensor.Shape, data []float32) {
	t.Helper()
	rank := len(shape)
	raw := 4 + 4 + 4 + rank*4
	if rem := raw % 8; rem != 0 {
		raw += 8 - rem
	}
	header := make([]byte, raw)
	copy(header[:4], "CGW1")
	binary.LittleEndian.PutUint32(header[4:8], uint32(tensor.F32))
	binary.LittleEndian.PutUint32(header[8:12], uint32(rank))
	for i, d := range shape {
		off := 12 + i*4
		binary.LittleEndian.PutUint32(header[off:off+4], uint32(d))
	}
	payload := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(payload[i*4:], float32Bits(v))
	}
	if err := os.WriteFile(path, append(header, payload...), 0o644); err != nil {
		t.Fatalf("write weight file %s: %v", path, err)
	}
}

func float32Bits(v float32) uint32 {
	desc := tensor.BufferDesc{Shape: tensor.Shape{1}, Precision: tensor.F32}
	buf := tensor.NewOwned(desc)
	buf.F32()[0] = v
	return binary.LittleEndian.Uint32(buf.Bytes())
}

// fill returns a slice of n values counting up from a small fractional
// base, distinct enough that a transposition or stride bug in reshape/matmul
// wiring would very likely trip one of the shape/precision checks during
// Execute rather than silently produce a same-shaped wrong answer.
func fill(n int, base float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = base + float32(i)*0.01
	}
	return out
}

// writeTestModel builds a minimal one-layer model directory: hidden=4,
// 2 query heads / 1 kv head / headDim=2, vocab=3, tied embeddings, no
// per-head Q/K norm (exercising the "architecture has none" path).
func writeTestModel(t *testing.T) *modeldir.Dir {
	t.Helper()
	dir := t.TempDir()
	config := "model_type = generic\n" +
		"precision = FP32\n" +
		"num_layers = 1\n" +
		"attention_head_dim = 2\n" +
		"attention_heads = 2\n" +
		"attention_kv_heads = 1\n" +
		"hidden_dim = 4\n" +
		"ffn_intermediate_dim = 3\n" +
		"vocab_size = 3\n" +
		"tie_word_embeddings = true\n"
	if err := os.WriteFile(filepath.Join(dir, "config.txt"), []byte(config), 0o644); err != nil {
		t.Fatalf("write config.txt: %v", err)
	}
	for _, f := range []string{"vocab.txt", "merges.txt"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", f, err)
		}
	}
	writeWeightFile(t, filepath.Join(dir, "token_embeddings.weights"), tensor.Shape{3, 4}, fill(12, 0.1))
	writeWeightFile(t, filepath.Join(dir, "output_norm.weights"), tensor.Shape{4}, fill(4, 1))
	writeWeightFile(t, filepath.Join(dir, "blk.0.input_norm.weights"), tensor.Shape{4}, fill(4, 1))
	writeWeightFile(t, filepath.Join(dir, "blk.0.post_attn_norm.weights"), tensor.Shape{4}, fill(4, 1))
	writeWeightFile(t, filepath.Join(dir, "blk.0.attn_q.weights"), tensor.Shape{4, 4}, fill(16, 0.05))
	writeWeightFile(t, filepath.Join(dir, "blk.0.attn_k.weights"), tensor.Shape{2, 4}, fill(8, 0.05))
	writeWeightFile(t, filepath.Join(dir, "blk.0.attn_v.weights"), tensor.Shape{2, 4}, fill(8, 0.05))
	writeWeightFile(t, filepath.Join(dir, "blk.0.attn_output.weights"), tensor.Shape{4, 4}, fill(16, 0.05))
	writeWeightFile(t, filepath.Join(dir, "blk.0.ffn_gate.weights"), tensor.Shape{3, 4}, fill(12, 0.05))
	writeWeightFile(t, filepath.Join(dir, "blk.0.ffn_up.weights"), tensor.Shape{3, 4}, fill(12, 0.05))
	writeWeightFile(t, filepath.Join(dir, "blk.0.ffn_down.weights"), tensor.Shape{4, 3}, fill(12, 0.05))

	d, err := modeldir.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return d
}

func TestBuildPrefillAndDecodeStep(t *testing.T) {
	dir := writeTestModel(t)
	m := New(dir)
	g := graph.New(nil)
	kv := kvcache.New(1, 16, 1, 2, 8, 2, tensor.F32)

	prefill := []uint32{0, 1}
	build, err := m.Build(g, prefill, kv.TotalLen(), kv, graph.SampleParams{Temperature: 0})
	if err != nil {
		t.Fatalf("Build (prefill): %v", err)
	}
	if err := g.Execute(nil); err != nil {
		t.Fatalf("Execute (prefill): %v", err)
	}
	if len(build.KeyNodeIDs) != 1 || len(build.ValueNodeIDs) != 1 {
		t.Fatalf("expected 1 layer's worth of key/value node ids, got %d/%d", len(build.KeyNodeIDs), len(build.ValueNodeIDs))
	}
	if got := g.Node(build.KeyNodeIDs[0]).OutputDesc.Shape[0]; got != len(prefill) {
		t.Errorf("key node rows = %d, want %d", got, len(prefill))
	}
	sampled := g.Node(build.SampleNodeID)
	if sampled == nil || sampled.Output == nil {
		t.Fatal("sample node missing output")
	}
	id := sampled.Output.U32()[0]
	if id >= 3 {
		t.Errorf("sampled id %d out of vocab range [0,3)", id)
	}

	if err := kv.UpdateFromGraph(g, build.KeyNodeIDs, build.ValueNodeIDs, len(prefill)); err != nil {
		t.Fatalf("UpdateFromGraph: %v", err)
	}
	g.SoftReset()

	if kv.TotalLen() != 2 || kv.CurrentLen() != 2 {
		t.Fatalf("after prefill: TotalLen/CurrentLen = %d/%d, want 2/2", kv.TotalLen(), kv.CurrentLen())
	}

	// Decode step: single new token, attends over the cached prefill.
	decodeInput := []uint32{id}
	build2, err := m.Build(g, decodeInput, kv.TotalLen(), kv, graph.SampleParams{Temperature: 0})
	if err != nil {
		t.Fatalf("Build (decode): %v", err)
	}
	if err := g.Execute(nil); err != nil {
		t.Fatalf("Execute (decode): %v", err)
	}
	sampled2 := g.Node(build2.SampleNodeID)
	if sampled2 == nil || sampled2.Output == nil {
		t.Fatal("second sample node missing output")
	}
	if id2 := sampled2.Output.U32()[0]; id2 >= 3 {
		t.Errorf("second sampled id %d out of vocab range [0,3)", id2)
	}
	if err := kv.UpdateFromGraph(g, build2.KeyNodeIDs, build2.ValueNodeIDs, len(decodeInput)); err != nil {
		t.Fatalf("UpdateFromGraph (decode): %v", err)
	}
	if kv.TotalLen() != 3 {
		t.Errorf("TotalLen after decode = %d, want 3", kv.TotalLen())
	}
}

func TestBuildReusesMmapedWeightsAcrossSteps(t *testing.T) {
	dir := writeTestModel(t)
	m := New(dir)
	g := graph.New(nil)
	kv := kvcache.New(1, 16, 1, 2, 8, 2, tensor.F32)

	if _, err := m.Build(g, []uint32{0}, kv.TotalLen(), kv, graph.SampleParams{Temperature: 0}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	firstEmbeddingID := m.embeddingID
	if !m.loaded {
		t.Fatal("expected weights loaded after first Build")
	}

	g.SoftReset()
	if _, err := m.Build(g, []uint32{1}, kv.TotalLen(), kv, graph.SampleParams{Temperature: 0}); err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if m.embeddingID != firstEmbeddingID {
		t.Errorf("expected the same cached embedding weight node id across steps, got %d then %d", firstEmbeddingID, m.embeddingID)
	}
}
