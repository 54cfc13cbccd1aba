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

package graph

import (
	"github.com/cactus-engine/cactus-go/internal/cactuserr"
	"github.com/cactus-engine/cactus-go/internal/tensor"
)

func (g *Graph) desc(id int64) (tensor.BufferDesc, error) {
	n := g.Node(id)
	if n == nil {
		return tensor.BufferDesc{}, cactuserr.Wrap(cactuserr.ErrIndexOutOfRange, "node %d does not exist", id)
	}
	return n.OutputDesc, nil
}

func (g *Graph) add(kind NodeKind, op OpKind, params OpParams, desc tensor.BufferDesc, inputs ...int64) (int64, error) {
	n := &GraphNode{
		Kind:       kind,
		Op:         op,
		Params:     params,
		Inputs:     inputs,
		OutputDesc: desc,
		Output:     tensor.NewUnallocated(desc),
	}
	return g.addNode(n)
}

// AddExternalInput registers a caller-fed node (spec.md §4.B): its Output
// buffer is supplied via SetExternalInput between calls to Execute.
func (g *Graph) AddExternalInput(desc tensor.BufferDesc) (int64, error) {
	return g.add(NodeInputExternal, OpInput, nil, desc)
}

// SetExternalInput installs the caller-owned bytes for an external input
// node created by AddExternalInput.
func (g *Graph) SetExternalInput(id int64, data []byte) error {
	n := g.Node(id)
	if n == nil || n.Kind != NodeInputExternal {
		return cactuserr.Wrap(cactuserr.ErrIndexOutOfRange, "node %d is not an external input", id)
	}
	buf, err := tensor.NewExternal(n.OutputDesc, data)
	if err != nil {
		return err
	}
	n.Output = buf
	return nil
}

// AddBinary adds an element-wise (or, with broadcast, NumPy-style
// broadcast) binary op node. Both operands must share precision; with
// broadcast == false they must also share shape (spec.md §4.A/§4.B).
func (g *Graph) AddBinary(a, b int64, op BinaryOp, broadcast bool) (int64, error) {
	da, err := g.desc(a)
	if err != nil {
		return 0, err
	}
	db, err := g.desc(b)
	if err != nil {
		return 0, err
	}
	if da.Precision != db.Precision {
		return 0, cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "binary op: %s vs %s", da.Precision, db.Precision)
	}
	outShape := da.Shape
	if broadcast {
		bc := kernelBroadcastShape(da.Shape, db.Shape)
		outShape = bc
	} else if !da.Shape.Equal(db.Shape) {
		return 0, cactuserr.Wrap(cactuserr.ErrShapeMismatch, "binary op: %s vs %s", da.Shape, db.Shape)
	}
	out := tensor.BufferDesc{Shape: outShape, Precision: da.Precision}
	return g.add(NodeComputed, OpBinary, BinaryParams{Op: op, Broadcast: broadcast}, out, a, b)
}

// kernelBroadcastShape mirrors kernel.NewBroadcastInfo's output-shape rule
// without importing the kernel package from the builder surface: trailing
// dimensions align, and each must match or be 1 in one of the operands.
func kernelBroadcastShape(a, b tensor.Shape) tensor.Shape {
	rank := len(a)
	if len(b) > rank {
		rank = len(b)
	}
	out := make(tensor.Shape, rank)
	for i := 0; i < rank; i++ {
		ai, bi := 1, 1
		if idx := len(a) - rank + i; idx >= 0 {
			ai = a[idx]
		}
		if idx := len(b) - rank + i; idx >= 0 {
			bi = b[idx]
		}
		if ai == bi {
			out[i] = ai
		} else if ai == 1 {
			out[i] = bi
		} else {
			out[i] = ai
		}
	}
	return out
}

// AddScalar adds a scalar-in-tensor op node (spec.md §4.A): output shares
// the input's shape and precision exactly.
func (g *Graph) AddScalar(a int64, op ScalarOp, value float64) (int64, error) {
	da, err := g.desc(a)
	if err != nil {
		return 0, err
	}
	return g.add(NodeComputed, OpScalar, ScalarParams{Op: op, Value: value}, da, a)
}

// AddActivation adds a SiLU or GELU node; identity shape and precision.
func (g *Graph) AddActivation(a int64, kind ActivationKind) (int64, error) {
	da, err := g.desc(a)
	if err != nil {
		return 0, err
	}
	if da.Precision != tensor.F32 && da.Precision != tensor.F16 {
		return 0, cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "activation requires float precision, got %s", da.Precision)
	}
	return g.add(NodeComputed, OpActivation, ActivationParams{Activation: kind}, da, a)
}

// AddMatMul adds C[MxN] = A[MxK] . B^T[NxK] (b is supplied pre-transposed,
// spec.md §4.B). A and B must share precision for the non-hybrid path;
// HybridI32Output requires both operands be I8 and produces an I32 output.
func (g *Graph) AddMatMul(a, bT int64, params MatMulParams) (int64, error) {
	da, err := g.desc(a)
	if err != nil {
		return 0, err
	}
	db, err := g.desc(bT)
	if err != nil {
		return 0, err
	}
	if len(da.Shape) != 2 || len(db.Shape) != 2 {
		return 0, cactuserr.Wrap(cactuserr.ErrRankMismatch, "matmul requires rank-2 operands, got %dD and %dD", len(da.Shape), len(db.Shape))
	}
	m, k := da.Shape[0], da.Shape[1]
	n, k2 := db.Shape[0], db.Shape[1]
	if k != k2 {
		return 0, cactuserr.Wrap(cactuserr.ErrShapeMismatch, "matmul inner dim mismatch: %d vs %d", k, k2)
	}
	outPrecision := da.Precision
	if params.HybridI32Output {
		if da.Precision != tensor.I8 || db.Precision != tensor.I8 {
			return 0, cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "hybrid I32 matmul requires I8 operands")
		}
		// I32 is not a tensor.Precision of its own; the hybrid
		// accumulator is stored as four raw bytes per element using
		// F32's element size and reinterpreted by the kernel caller.
		outPrecision = tensor.F32
	} else if da.Precision != db.Precision {
		return 0, cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "matmul: %s vs %s", da.Precision, db.Precision)
	}
	out := tensor.BufferDesc{Shape: tensor.Shape{m, n}, Precision: outPrecision}
	return g.add(NodeComputed, OpMatMul, params, out, a, bT)
}

// AddTranspose adds a permutation node. len(perm) must equal the input's
// rank and be a permutation of 0..rank-1.
func (g *Graph) AddTranspose(a int64, perm []int) (int64, error) {
	da, err := g.desc(a)
	if err != nil {
		return 0, err
	}
	if len(perm) != len(da.Shape) {
		return 0, cactuserr.Wrap(cactuserr.ErrRankMismatch, "transpose perm length %d != rank %d", len(perm), len(da.Shape))
	}
	seen := make([]bool, len(perm))
	outShape := make(tensor.Shape, len(perm))
	for i, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			return 0, cactuserr.Wrap(cactuserr.ErrShapeMismatch, "transpose perm %v is not a permutation", perm)
		}
		seen[p] = true
		outShape[i] = da.Shape[p]
	}
	out := tensor.BufferDesc{Shape: outShape, Precision: da.Precision}
	return g.add(NodeComputed, OpTranspose, TransposeParams{Perm: perm}, out, a)
}

// AddReduce adds a reduction node. axis == -1 reduces to shape [1]; any
// other axis removes that dimension (spec.md §4.B).
func (g *Graph) AddReduce(a int64, axis int, kind ReduceKind) (int64, error) {
	da, err := g.desc(a)
	if err != nil {
		return 0, err
	}
	var outShape tensor.Shape
	if axis == -1 {
		outShape = tensor.Shape{1}
	} else {
		if axis < 0 || axis >= len(da.Shape) {
			return 0, cactuserr.Wrap(cactuserr.ErrIndexOutOfRange, "reduce axis %d out of range for rank %d", axis, len(da.Shape))
		}
		outShape = make(tensor.Shape, 0, len(da.Shape)-1)
		for i, d := range da.Shape {
			if i != axis {
				outShape = append(outShape, d)
			}
		}
		if len(outShape) == 0 {
			outShape = tensor.Shape{1}
		}
	}
	out := tensor.BufferDesc{Shape: outShape, Precision: da.Precision}
	return g.add(NodeComputed, OpReduce, ReduceParams{Axis: axis, Reduce: kind}, out, a)
}

// AddRMSNorm adds an RMSNorm node; identity shape and precision. w is the
// per-feature scale vector, a separate input so it can be shared or
// memory-mapped independently of x.
func (g *Graph) AddRMSNorm(a, w int64, eps float32) (int64, error) {
	da, err := g.desc(a)
	if err != nil {
		return 0, err
	}
	dw, err := g.desc(w)
	if err != nil {
		return 0, err
	}
	// RMSNormI8 dequantizes x itself but keeps the scale vector in float,
	// so the weight input is F32 regardless of x's precision; F32/F16 x
	// require a same-precision weight (internal/kernel's RMSNorm* family).
	switch da.Precision {
	case tensor.I8:
		if dw.Precision != tensor.F32 {
			return 0, cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "RMSNorm I8 input requires an F32 weight, got %s", dw.Precision)
		}
	case tensor.F32, tensor.F16:
		if dw.Precision != da.Precision {
			return 0, cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "RMSNorm weight precision %s does not match input %s", dw.Precision, da.Precision)
		}
	default:
		return 0, cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "RMSNorm on %s", da.Precision)
	}
	return g.add(NodeComputed, OpRMSNorm, RMSNormParams{Epsilon: eps, WeightNodeID: w}, da, a, w)
}

// AddRoPE adds a rotary-position-embedding node over a
// [batch,seq,heads,headDim] input; identity shape and precision.
func (g *Graph) AddRoPE(a int64, theta float64, positionOffset int) (int64, error) {
	da, err := g.desc(a)
	if err != nil {
		return 0, err
	}
	if len(da.Shape) != 4 {
		return 0, cactuserr.Wrap(cactuserr.ErrRankMismatch, "RoPE requires a rank-4 [batch,seq,heads,headDim] input, got %dD", len(da.Shape))
	}
	return g.add(NodeComputed, OpRoPE, RoPEParams{Theta: theta, PositionOffset: positionOffset}, da, a)
}

// AddSoftmax adds a row-wise softmax node over the last dimension;
// identity shape and precision.
func (g *Graph) AddSoftmax(a int64) (int64, error) {
	da, err := g.desc(a)
	if err != nil {
		return 0, err
	}
	return g.add(NodeComputed, OpSoftmax, SoftmaxParams{}, da, a)
}

// AddAttention adds a grouped-query-attention node. q is
// [seqLen,qHeads,headDim]; k, v are [kvLen,kvHeads,headDim]. qHeads must be
// an integer multiple of kvHeads.
func (g *Graph) AddAttention(q, k, v int64, params AttentionParams) (int64, error) {
	dq, err := g.desc(q)
	if err != nil {
		return 0, err
	}
	dk, err := g.desc(k)
	if err != nil {
		return 0, err
	}
	dv, err := g.desc(v)
	if err != nil {
		return 0, err
	}
	if len(dq.Shape) != 3 || len(dk.Shape) != 3 || len(dv.Shape) != 3 {
		return 0, cactuserr.Wrap(cactuserr.ErrRankMismatch, "attention requires rank-3 [seq,heads,headDim] operands")
	}
	if params.QHeads%params.KVHeads != 0 {
		return 0, cactuserr.Wrap(cactuserr.ErrShapeMismatch, "qHeads %d not a multiple of kvHeads %d", params.QHeads, params.KVHeads)
	}
	if dq.Precision != dk.Precision || dk.Precision != dv.Precision {
		return 0, cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "attention operands must share precision")
	}
	params.KeyNodeID, params.ValueNodeID = k, v
	out := tensor.BufferDesc{Shape: tensor.Shape{dq.Shape[0], params.QHeads, params.HeadDim}, Precision: dq.Precision}
	return g.add(NodeComputed, OpAttention, params, out, q, k, v)
}

// AddSample adds a sampling node that draws one token id from a logits
// vector. Output is always U32 shape [1] (spec.md §9's redesign: a real
// precision tag, not a float32 bit-reinterpretation of the id).
func (g *Graph) AddSample(logits int64, params SampleParams) (int64, error) {
	dl, err := g.desc(logits)
	if err != nil {
		return 0, err
	}
	if dl.Precision != tensor.F32 {
		return 0, cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "sample requires F32 logits, got %s", dl.Precision)
	}
	out := tensor.BufferDesc{Shape: tensor.Shape{1}, Precision: tensor.U32}
	return g.add(NodeComputed, OpSample, params, out, logits)
}

// AddReshape adds a reshape node. The target shape's element count must
// equal the input's.
func (g *Graph) AddReshape(a int64, target tensor.Shape) (int64, error) {
	da, err := g.desc(a)
	if err != nil {
		return 0, err
	}
	if da.Shape.NumElements() != target.NumElements() {
		return 0, cactuserr.Wrap(cactuserr.ErrShapeMismatch, "reshape %s -> %s changes element count", da.Shape, target)
	}
	out := tensor.BufferDesc{Shape: target.Clone(), Precision: da.Precision}
	return g.add(NodeComputed, OpReshape, ReshapeParams{TargetShape: target}, out, a)
}

// AddSliceRows adds a node selecting rows [start, start+length) along axis
// 0 of a, keeping every other dimension. Used to read back a single
// position's hidden state out of a multi-token prefill before the output
// projection, where only the last position's logits are ever sampled.
func (g *Graph) AddSliceRows(a int64, start, length int) (int64, error) {
	da, err := g.desc(a)
	if err != nil {
		return 0, err
	}
	if len(da.Shape) == 0 {
		return 0, cactuserr.Wrap(cactuserr.ErrRankMismatch, "slice requires a ranked tensor")
	}
	if start < 0 || length < 0 || start+length > da.Shape[0] {
		return 0, cactuserr.Wrap(cactuserr.ErrIndexOutOfRange, "slice rows [%d,%d) out of range for axis-0 extent %d", start, start+length, da.Shape[0])
	}
	outShape := da.Shape.Clone()
	outShape[0] = length
	out := tensor.BufferDesc{Shape: outShape, Precision: da.Precision}
	return g.add(NodeComputed, OpSliceRows, SliceRowsParams{Start: start, Length: length}, out, a)
}

// AddConcat adds a concatenation node along axis. Every input must agree
// with the first on rank, precision, and every axis but axis.
func (g *Graph) AddConcat(axis int, inputs ...int64) (int64, error) {
	if len(inputs) < 2 {
		return 0, cactuserr.Wrap(cactuserr.ErrShapeMismatch, "concat requires at least two inputs")
	}
	first, err := g.desc(inputs[0])
	if err != nil {
		return 0, err
	}
	if axis < 0 || axis >= len(first.Shape) {
		return 0, cactuserr.Wrap(cactuserr.ErrIndexOutOfRange, "concat axis %d out of range for rank %d", axis, len(first.Shape))
	}
	outShape := first.Shape.Clone()
	for _, id := range inputs[1:] {
		d, err := g.desc(id)
		if err != nil {
			return 0, err
		}
		if d.Precision != first.Precision || len(d.Shape) != len(first.Shape) {
			return 0, cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "concat operand precision/rank mismatch")
		}
		for i, dim := range d.Shape {
			if i == axis {
				continue
			}
			if dim != first.Shape[i] {
				return 0, cactuserr.Wrap(cactuserr.ErrShapeMismatch, "concat operand shape mismatch on axis %d", i)
			}
		}
		outShape[axis] += d.Shape[axis]
	}
	out := tensor.BufferDesc{Shape: outShape, Precision: first.Precision}
	return g.add(NodeComputed, OpConcat, ConcatParams{Axis: axis}, out, inputs...)
}

// AddEmbedding adds a table lookup node: table is [vocab,hidden], index is
// any shape of token ids. Output is index-shape ⊕ [hidden]. An I8 table is
// promoted to F16 output (spec.md §4.B) since dequantizing on every lookup
// to I8 would compound rounding error across a whole sequence.
func (g *Graph) AddEmbedding(table, index int64) (int64, error) {
	dt, err := g.desc(table)
	if err != nil {
		return 0, err
	}
	di, err := g.desc(index)
	if err != nil {
		return 0, err
	}
	if len(dt.Shape) != 2 {
		return 0, cactuserr.Wrap(cactuserr.ErrRankMismatch, "embedding table must be rank-2 [vocab,hidden], got %dD", len(dt.Shape))
	}
	if di.Precision != tensor.U32 {
		return 0, cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "embedding index must be U32, got %s", di.Precision)
	}
	outPrecision := dt.Precision
	if outPrecision == tensor.I8 {
		outPrecision = tensor.F16
	}
	hidden := dt.Shape[1]
	outShape := append(di.Shape.Clone(), hidden)
	out := tensor.BufferDesc{Shape: outShape, Precision: outPrecision}
	return g.add(NodeComputed, OpEmbedding, EmbeddingParams{IndexNodeID: index}, out, table, index)
}

// AddPrecisionCast adds a precision-conversion node; identity shape.
func (g *Graph) AddPrecisionCast(a int64, target tensor.Precision) (int64, error) {
	da, err := g.desc(a)
	if err != nil {
		return 0, err
	}
	out := tensor.BufferDesc{Shape: da.Shape, Precision: target}
	return g.add(NodeComputed, OpPrecisionCast, PrecisionCastParams{Target: target}, out, a)
}

// AddConv1D adds a causal depthwise 1-D convolution node over a
// [batch,seq,channels] input (supplemented from original_source; see
// SPEC_FULL.md §4.A). w is [channels,kernelSize].
func (g *Graph) AddConv1D(a, w int64, kernelSize, dilation int) (int64, error) {
	da, err := g.desc(a)
	if err != nil {
		return 0, err
	}
	if len(da.Shape) != 3 {
		return 0, cactuserr.Wrap(cactuserr.ErrRankMismatch, "conv1d requires rank-3 [batch,seq,channels] input, got %dD", len(da.Shape))
	}
	return g.add(NodeComputed, OpConv1D, Conv1DParams{KernelSize: kernelSize, Dilation: dilation, WeightNodeID: w}, da, a, w)
}
