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

// Package refmodel implements generate.BlockBuilder for one generic
// transformer block: RMSNorm -> QKV projection -> optional per-head Q/K
// RMSNorm -> RoPE -> grouped-query attention over the KV cache's retained
// window -> output projection -> RMSNorm -> SwiGLU MLP, repeated per
// layer, with a final norm and tied-or-untied output projection.
//
// This is deliberately the one architecture the per-model zoo
// (model_q3.cpp, model_gemma.cpp, model_lfm2.cpp's conv1d hybrid branch,
// ...) all specialize from — not a reimplementation of any one of them.
// A model directory whose config.txt implies a different block shape
// (grouped convolution, MoE routing, alternating local/global attention)
// needs its own BlockBuilder; this one covers the common attention path
// every one of those architectures shares, grounded on
// original_source/cactus/models/model_lfm2.cpp's build_attention /
// build_mlp / build_transformer_block (its non-conv branch only).
package refmodel

import (
	stdmath "math"

	"github.com/cactus-engine/cactus-go/internal/cactuserr"
	"github.com/cactus-engine/cactus-go/internal/generate"
	"github.com/cactus-engine/cactus-go/internal/graph"
	"github.com/cactus-engine/cactus-go/internal/kvcache"
	"github.com/cactus-engine/cactus-go/internal/modeldir"
	"github.com/cactus-engine/cactus-go/internal/tensor"
)

// Model is a generate.BlockBuilder backed by one model directory. Weight
// tensors are memory-mapped once, lazily, on the first Build call; the
// resulting NodeWeight ids survive every subsequent Graph.SoftReset
// (spec.md §4.B), so later steps reuse them instead of re-mapping.
//
// Only F32 weights are supported: a config.txt advertising a quantized
// precision needs a builder that also threads PrecisionCast/I8 matmul
// through the block, which this generic reference does not attempt.
type Model struct {
	dir *modeldir.Dir
	cfg modeldir.Config

	loaded       bool
	embeddingID  int64
	outputNormID int64
	outputID     int64
	layers       []layerWeights

	// idxInput and cachedKV cache external-input node ids keyed by the
	// axis-0 length they were created for, so a steady-state decode loop
	// (one token per step, once the sliding window has filled) re-uses
	// the same few node ids forever via SetExternalInput instead of
	// registering a fresh NodeInputExternal every step — external-input
	// nodes survive Graph.SoftReset the same as weights do, so never
	// reusing one would grow the arena by one node per step, forever.
	idxInput cachedInput
	cachedKV []layerCachedInput
}

type layerWeights struct {
	inputNorm, postAttnNorm int64
	wq, wk, wv, wo          int64
	qNorm, kNorm            int64 // -1 when the architecture has no per-head norm
	wGate, wUp, wDown       int64
}

type cachedInput struct {
	id  int64
	len int // axis-0 extent id was created for; 0 means "never created"
}

type layerCachedInput struct {
	key, value cachedInput
}

const noWeight = -1

// New returns a Model reading weights from dir. dir.Config must name an
// F32 model; New does not itself validate this (Build's first MmapWeight
// call surfaces a precision mismatch as a matmul error instead).
func New(dir *modeldir.Dir) *Model {
	return &Model{dir: dir, cfg: dir.Config}
}

func (m *Model) ensureWeights(g *graph.Graph) error {
	if m.loaded {
		return nil
	}
	var err error
	if m.embeddingID, err = g.MmapWeight(m.dir.EmbeddingsPath()); err != nil {
		return err
	}
	if m.outputNormID, err = g.MmapWeight(m.dir.OutputNormPath()); err != nil {
		return err
	}
	if m.cfg.TieWordEmbeddings {
		m.outputID = m.embeddingID
	} else if m.outputID, err = g.MmapWeight(m.dir.OutputWeightPath()); err != nil {
		return err
	}

	m.layers = make([]layerWeights, m.cfg.NumLayers)
	m.cachedKV = make([]layerCachedInput, m.cfg.NumLayers)
	for i := range m.layers {
		l := &m.layers[i]
		if l.inputNorm, err = g.MmapWeight(m.dir.LayerWeightPath(i, "input_norm")); err != nil {
			return err
		}
		if l.postAttnNorm, err = g.MmapWeight(m.dir.LayerWeightPath(i, "post_attn_norm")); err != nil {
			return err
		}
		if l.wq, err = g.MmapWeight(m.dir.LayerWeightPath(i, "attn_q")); err != nil {
			return err
		}
		if l.wk, err = g.MmapWeight(m.dir.LayerWeightPath(i, "attn_k")); err != nil {
			return err
		}
		if l.wv, err = g.MmapWeight(m.dir.LayerWeightPath(i, "attn_v")); err != nil {
			return err
		}
		if l.wo, err = g.MmapWeight(m.dir.LayerWeightPath(i, "attn_output")); err != nil {
			return err
		}
		l.qNorm = m.optionalWeight(g, m.dir.LayerWeightPath(i, "attn_q_norm"))
		l.kNorm = m.optionalWeight(g, m.dir.LayerWeightPath(i, "attn_k_norm"))
		if l.wGate, err = g.MmapWeight(m.dir.LayerWeightPath(i, "ffn_gate")); err != nil {
			return err
		}
		if l.wUp, err = g.MmapWeight(m.dir.LayerWeightPath(i, "ffn_up")); err != nil {
			return err
		}
		if l.wDown, err = g.MmapWeight(m.dir.LayerWeightPath(i, "ffn_down")); err != nil {
			return err
		}
	}
	m.loaded = true
	return nil
}

// optionalWeight maps path if present, returning noWeight (not an error)
// when it is absent: per-head Q/K RMSNorm is an architecture-optional
// feature (present on Qwen- and LFM2-shaped configs, absent on others per
// original_source/cactus/models/model.h's per-model LayerWeights structs).
func (m *Model) optionalWeight(g *graph.Graph, path string) int64 {
	id, err := g.MmapWeight(path)
	if err != nil {
		return noWeight
	}
	return id
}

// Build appends one step's ops to g. See the BlockBuilder doc comment in
// internal/generate for the positionOffset/kv contract this follows.
func (m *Model) Build(g *graph.Graph, tokenIDs []uint32, positionOffset int, kv *kvcache.KVCache, sample graph.SampleParams) (generate.Build, error) {
	if err := m.ensureWeights(g); err != nil {
		return generate.Build{}, err
	}
	if len(tokenIDs) == 0 {
		return generate.Build{}, cactuserr.Wrap(cactuserr.ErrShapeMismatch, "refmodel: Build called with no tokens")
	}

	seqLen := len(tokenIDs)
	qHeads, kvHeads, headDim := m.cfg.AttentionQHeads, m.cfg.AttentionKVHeads, m.cfg.AttentionHeadDim
	eps := m.cfg.RMSNormEps
	theta := m.cfg.RopeTheta

	idxID, err := m.idxInput.ensureVector(g, seqLen, tensor.U32)
	if err != nil {
		return generate.Build{}, err
	}
	idxBuf := tensor.NewOwned(tensor.BufferDesc{Shape: tensor.Shape{seqLen}, Precision: tensor.U32})
	copy(idxBuf.U32(), tokenIDs)
	if err := g.SetExternalInput(idxID, idxBuf.Bytes()); err != nil {
		return generate.Build{}, err
	}

	hidden, err := g.AddEmbedding(m.embeddingID, idxID)
	if err != nil {
		return generate.Build{}, err
	}

	// Read before any UpdateFromGraph call this step: the array-relative
	// start position of tokenIDs[0] within whatever cached+new K/V context
	// attention below concatenates. RoPE uses the absolute positionOffset
	// instead (kv.TotalLen, captured by the caller) — the two diverge once
	// the sliding window has discarded any tokens.
	cachedLen := kv.CurrentLen()

	keyNodeIDs := make([]int64, m.cfg.NumLayers)
	valueNodeIDs := make([]int64, m.cfg.NumLayers)

	for i := range m.layers {
		l := m.layers[i]

		normed, err := g.AddRMSNorm(hidden, l.inputNorm, eps)
		if err != nil {
			return generate.Build{}, err
		}
		q, err := g.AddMatMul(normed, l.wq, graph.MatMulParams{})
		if err != nil {
			return generate.Build{}, err
		}
		k, err := g.AddMatMul(normed, l.wk, graph.MatMulParams{})
		if err != nil {
			return generate.Build{}, err
		}
		v, err := g.AddMatMul(normed, l.wv, graph.MatMulParams{})
		if err != nil {
			return generate.Build{}, err
		}

		if l.qNorm != noWeight {
			if q, err = m.perHeadNorm(g, q, seqLen, qHeads, headDim, l.qNorm, eps); err != nil {
				return generate.Build{}, err
			}
		}
		if l.kNorm != noWeight {
			if k, err = m.perHeadNorm(g, k, seqLen, kvHeads, headDim, l.kNorm, eps); err != nil {
				return generate.Build{}, err
			}
		}

		q4, err := g.AddReshape(q, tensor.Shape{1, seqLen, qHeads, headDim})
		if err != nil {
			return generate.Build{}, err
		}
		k4, err := g.AddReshape(k, tensor.Shape{1, seqLen, kvHeads, headDim})
		if err != nil {
			return generate.Build{}, err
		}
		if q4, err = g.AddRoPE(q4, theta, positionOffset); err != nil {
			return generate.Build{}, err
		}
		if k4, err = g.AddRoPE(k4, theta, positionOffset); err != nil {
			return generate.Build{}, err
		}
		q3, err := g.AddReshape(q4, tensor.Shape{seqLen, qHeads, headDim})
		if err != nil {
			return generate.Build{}, err
		}
		newK, err := g.AddReshape(k4, tensor.Shape{seqLen, kvHeads, headDim})
		if err != nil {
			return generate.Build{}, err
		}
		newV, err := g.AddReshape(v, tensor.Shape{seqLen, kvHeads, headDim})
		if err != nil {
			return generate.Build{}, err
		}
		keyNodeIDs[i], valueNodeIDs[i] = newK, newV

		fullK, fullV := newK, newV
		if cachedLen > 0 {
			cachedK, err := m.cachedKV[i].key.ensureRows(g, cachedLen, kvHeads, headDim)
			if err != nil {
				return generate.Build{}, err
			}
			if err := g.SetExternalInput(cachedK, kv.GetKeyPtr(i)); err != nil {
				return generate.Build{}, err
			}
			cachedV, err := m.cachedKV[i].value.ensureRows(g, cachedLen, kvHeads, headDim)
			if err != nil {
				return generate.Build{}, err
			}
			if err := g.SetExternalInput(cachedV, kv.GetValuePtr(i)); err != nil {
				return generate.Build{}, err
			}
			if fullK, err = g.AddConcat(0, cachedK, newK); err != nil {
				return generate.Build{}, err
			}
			if fullV, err = g.AddConcat(0, cachedV, newV); err != nil {
				return generate.Build{}, err
			}
		}

		attnOut, err := g.AddAttention(q3, fullK, fullV, graph.AttentionParams{
			Scale:      inverseSqrt(headDim),
			Causal:     true,
			WindowSize: 0,
			QHeads:     qHeads,
			KVHeads:    kvHeads,
			HeadDim:    headDim,
			// PositionOffset addresses rows of fullK/fullV, not absolute
			// token positions: the new tokens start at array index
			// cachedLen, exactly where the cached window left off.
			PositionOffset: cachedLen,
		})
		if err != nil {
			return generate.Build{}, err
		}
		attnFlat, err := g.AddReshape(attnOut, tensor.Shape{seqLen, qHeads * headDim})
		if err != nil {
			return generate.Build{}, err
		}
		proj, err := g.AddMatMul(attnFlat, l.wo, graph.MatMulParams{})
		if err != nil {
			return generate.Build{}, err
		}
		resid1, err := g.AddBinary(hidden, proj, graph.BinaryAdd, false)
		if err != nil {
			return generate.Build{}, err
		}

		postNormed, err := g.AddRMSNorm(resid1, l.postAttnNorm, eps)
		if err != nil {
			return generate.Build{}, err
		}
		gate, err := g.AddMatMul(postNormed, l.wGate, graph.MatMulParams{})
		if err != nil {
			return generate.Build{}, err
		}
		up, err := g.AddMatMul(postNormed, l.wUp, graph.MatMulParams{})
		if err != nil {
			return generate.Build{}, err
		}
		act, err := g.AddActivation(gate, graph.ActivationSiLU)
		if err != nil {
			return generate.Build{}, err
		}
		gated, err := g.AddBinary(act, up, graph.BinaryMul, false)
		if err != nil {
			return generate.Build{}, err
		}
		down, err := g.AddMatMul(gated, l.wDown, graph.MatMulParams{})
		if err != nil {
			return generate.Build{}, err
		}
		if hidden, err = g.AddBinary(resid1, down, graph.BinaryAdd, false); err != nil {
			return generate.Build{}, err
		}
	}

	finalNormed, err := g.AddRMSNorm(hidden, m.outputNormID, eps)
	if err != nil {
		return generate.Build{}, err
	}
	lastHidden := finalNormed
	if seqLen > 1 {
		// Only the last position is ever sampled (spec.md §4.E only submits
		// a multi-token slice on a prefill, never asks for its interior
		// logits).
		if lastHidden, err = g.AddSliceRows(finalNormed, seqLen-1, 1); err != nil {
			return generate.Build{}, err
		}
	}
	logits, err := g.AddMatMul(lastHidden, m.outputID, graph.MatMulParams{})
	if err != nil {
		return generate.Build{}, err
	}
	sampled, err := g.AddSample(logits, sample)
	if err != nil {
		return generate.Build{}, err
	}

	return generate.Build{SampleNodeID: sampled, KeyNodeIDs: keyNodeIDs, ValueNodeIDs: valueNodeIDs}, nil
}

// perHeadNorm applies w across each head's headDim slice independently
// (QK-norm, present on Qwen3- and LFM2-shaped configs): flatten to
// [seqLen*heads, headDim], RMSNorm per row, reshape back.
func (m *Model) perHeadNorm(g *graph.Graph, x int64, seqLen, heads, headDim int, w int64, eps float32) (int64, error) {
	flat, err := g.AddReshape(x, tensor.Shape{seqLen * heads, headDim})
	if err != nil {
		return 0, err
	}
	normed, err := g.AddRMSNorm(flat, w, eps)
	if err != nil {
		return 0, err
	}
	return g.AddReshape(normed, tensor.Shape{seqLen, heads * headDim})
}

// ensureVector returns a cached rank-1 [length] external-input node,
// registering a new one only the first time length is seen.
func (c *cachedInput) ensureVector(g *graph.Graph, length int, precision tensor.Precision) (int64, error) {
	if c.len == length {
		return c.id, nil
	}
	id, err := g.AddExternalInput(tensor.BufferDesc{Shape: tensor.Shape{length}, Precision: precision})
	if err != nil {
		return 0, err
	}
	c.id, c.len = id, length
	return id, nil
}

// ensureRows returns a cached rank-3 [length,kvHeads,headDim] F32
// external-input node, registering a new one only the first time length
// is seen for this slot (e.g. the cached-K side of one layer).
func (c *cachedInput) ensureRows(g *graph.Graph, length, kvHeads, headDim int) (int64, error) {
	if c.len == length {
		return c.id, nil
	}
	id, err := g.AddExternalInput(tensor.BufferDesc{Shape: tensor.Shape{length, kvHeads, headDim}, Precision: tensor.F32})
	if err != nil {
		return 0, err
	}
	c.id, c.len = id, length
	return id, nil
}

func inverseSqrt(headDim int) float32 {
	return float32(1.0 / stdmath.Sqrt(float64(headDim)))
}
