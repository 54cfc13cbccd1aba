// Copyright 2025 cactus-go Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cactus-engine/cactus-go/internal/tensor"
)

func writeWeightFixture(t *testing.T, dir, name string, desc tensor.BufferDesc, payload []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	buf := append(encodeWeightHeader(desc), payload...)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestParseWeightHeaderRoundTrip(t *testing.T) {
	desc := tensor.BufferDesc{Shape: tensor.Shape{2, 3}, Precision: tensor.F32}
	encoded := encodeWeightHeader(desc)
	payload := make([]byte, desc.ByteSize())
	got, headerSize, err := parseWeightHeader(append(encoded, payload...))
	if err != nil {
		t.Fatalf("parseWeightHeader: %v", err)
	}
	if !got.Shape.Equal(desc.Shape) || got.Precision != desc.Precision {
		t.Errorf("parsed desc = %+v, want %+v", got, desc)
	}
	if headerSize != len(encoded) {
		t.Errorf("headerSize = %d, want %d", headerSize, len(encoded))
	}
}

func TestMmapWeightLoadsFixtureAndScale(t *testing.T) {
	dir := t.TempDir()
	desc := tensor.BufferDesc{Shape: tensor.Shape{2, 2}, Precision: tensor.I8}
	payload := []byte{1, 2, 3, 4}
	path := writeWeightFixture(t, dir, "w0.bin", desc, payload)

	scaleBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(scaleBytes, math.Float64bits(0.5))
	if err := os.WriteFile(path+".scale", scaleBytes, 0o644); err != nil {
		t.Fatalf("write scale fixture: %v", err)
	}

	g := New(nil)
	id, err := g.MmapWeight(path)
	if err != nil {
		t.Fatalf("MmapWeight: %v", err)
	}
	n := g.Node(id)
	if n.OutputDesc.Scale != 0.5 {
		t.Errorf("scale = %v, want 0.5", n.OutputDesc.Scale)
	}
	got := n.Output.I8()
	for i, want := range []int8{1, 2, 3, 4} {
		if got[i] != want {
			t.Errorf("payload[%d] = %v, want %v", i, got[i], want)
		}
	}

	// Loading the same path again must reuse the cached mapping.
	id2, err := g.MmapWeight(path)
	if err != nil {
		t.Fatalf("second MmapWeight: %v", err)
	}
	if g.weights[path] == nil {
		t.Fatalf("expected cached mmap region")
	}
	if id2 == id {
		t.Errorf("each MmapWeight call should still register a distinct node")
	}

	g.HardReset()
	if len(g.weights) != 0 {
		t.Errorf("HardReset should clear the weight cache")
	}
}
