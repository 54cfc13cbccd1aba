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

// Package graph implements spec.md §4.B: a lazy, typed DAG of tensor
// operations with shape/precision inference, memory-mapped weight inputs,
// and topological (insertion-order) execution. Nodes hold numeric ids into
// a single arena slice, never pointers (spec.md §9, "Graph as arena, edges
// as indices") — this is what makes soft-reset O(1) to describe and cheap
// to apply.
package graph

import "github.com/cactus-engine/cactus-go/internal/tensor"

// OpKind tags a GraphNode's operator.
type OpKind int

const (
	OpInput OpKind = iota
	OpBinary
	OpScalar
	OpActivation
	OpMatMul
	OpTranspose
	OpReduce
	OpRMSNorm
	OpRoPE
	OpSoftmax
	OpAttention
	OpSample
	OpReshape
	OpConcat
	OpEmbedding
	OpPrecisionCast
	OpConv1D
	OpSliceRows
)

// OpParams is the per-op parameter variant (spec.md §9: "prefer a per-op
// variant (tagged union) because many fields are irrelevant per op and a
// single struct makes invariants hard to state"). Each concrete type below
// implements it; Kind() reports the operator the variant parametrizes.
type OpParams interface {
	Kind() OpKind
}

// BinaryOp selects which element-wise operator a Binary node applies.
type BinaryOp int

const (
	BinaryAdd BinaryOp = iota
	BinarySub
	BinaryMul
	BinaryDiv
)

// BinaryParams parametrizes OpBinary: element-wise binary ops, optionally
// broadcasting (spec.md §4.A).
type BinaryParams struct {
	Op        BinaryOp
	Broadcast bool
}

func (BinaryParams) Kind() OpKind { return OpBinary }

// ScalarOp selects which scalar-in-tensor operator a Scalar node applies.
type ScalarOp int

const (
	ScalarAdd ScalarOp = iota
	ScalarSub
	ScalarMul
	ScalarDiv
	ScalarExp
	ScalarSqrt
	ScalarCos
	ScalarSin
)

// ScalarParams parametrizes OpScalar (spec.md §4.A "Scalar-in-tensor").
type ScalarParams struct {
	Op    ScalarOp
	Value float64
}

func (ScalarParams) Kind() OpKind { return OpScalar }

// ActivationKind selects SiLU or GELU.
type ActivationKind int

const (
	ActivationSiLU ActivationKind = iota
	ActivationGELU
)

// ActivationParams parametrizes OpActivation.
type ActivationParams struct {
	Activation ActivationKind
}

func (ActivationParams) Kind() OpKind { return OpActivation }

// MatMulParams parametrizes OpMatMul. B is always supplied pre-transposed
// per spec.md §4.B ("with
// pretransposed_rhs, C[MxN] = A[MxK] . B^T[NxK]").
type MatMulParams struct {
	// AScale, BScale, CScale are used only for I8 x I8 -> I8 matmul.
	AScale, BScale, CScale float64
	// HybridI32Output requests the unscaled I8->I32 accumulator variant
	// (spec.md §4.A) instead of a scaled I8 or same-precision result.
	HybridI32Output bool
}

func (MatMulParams) Kind() OpKind { return OpMatMul }

// TransposeParams parametrizes OpTranspose: an arbitrary n-dim permutation.
type TransposeParams struct {
	Perm []int
}

func (TransposeParams) Kind() OpKind { return OpTranspose }

// ReduceParams parametrizes OpReduce. Axis == -1 reduces the whole tensor
// (spec.md §4.B: "with axis = -1 output shape is [1]; otherwise the axis
// dimension is removed").
type ReduceParams struct {
	Axis   int
	Reduce ReduceKind
}

func (ReduceParams) Kind() OpKind { return OpReduce }

// ReduceKind mirrors kernel.ReduceKind without importing the kernel
// package from graph's public op surface.
type ReduceKind int

const (
	ReduceSum ReduceKind = iota
	ReduceMean
	ReduceVariance
	ReduceMin
	ReduceMax
)

// RMSNormParams parametrizes OpRMSNorm.
type RMSNormParams struct {
	Epsilon float32
	// WeightNodeID is a second input: the per-feature scale vector w.
	WeightNodeID int64
}

func (RMSNormParams) Kind() OpKind { return OpRMSNorm }

// RoPEParams parametrizes OpRoPE over a [batch,seq,heads,headDim] tensor.
type RoPEParams struct {
	Theta          float64
	PositionOffset int
}

func (RoPEParams) Kind() OpKind { return OpRoPE }

// SoftmaxParams parametrizes OpSoftmax: row-wise over the last dimension.
type SoftmaxParams struct{}

func (SoftmaxParams) Kind() OpKind { return OpSoftmax }

// AttentionParams parametrizes OpAttention (spec.md §4.A).
type AttentionParams struct {
	Scale          float32
	Causal         bool
	WindowSize     int
	PositionOffset int
	QHeads, KVHeads, HeadDim int
	// KeyNodeID, ValueNodeID are the second and third inputs (the first
	// input id is the query tensor).
	KeyNodeID, ValueNodeID int64
}

func (AttentionParams) Kind() OpKind { return OpAttention }

// SampleParams parametrizes OpSample (spec.md §4.A).
type SampleParams struct {
	Temperature float32
	TopP        float32
	TopK        int
	Seed        uint64
}

func (SampleParams) Kind() OpKind { return OpSample }

// ReshapeParams parametrizes OpReshape. Output total must equal input total
// (spec.md §4.B).
type ReshapeParams struct {
	TargetShape tensor.Shape
}

func (ReshapeParams) Kind() OpKind { return OpReshape }

// SliceRowsParams parametrizes OpSliceRows: select [Start, Start+Length)
// along axis 0 of an otherwise arbitrary-rank tensor. Grounded on
// CactusGraph::slice, narrowed to the one axis this engine's block
// builders actually need it for — reading back the last prefilled
// position's hidden state before the output projection.
type SliceRowsParams struct {
	Start, Length int
}

func (SliceRowsParams) Kind() OpKind { return OpSliceRows }

// ConcatParams parametrizes OpConcat: shapes must agree on every axis but
// Axis, which sums (spec.md §4.B). Inputs beyond the first are the other
// operands to concatenate, listed in GraphNode.Inputs.
type ConcatParams struct {
	Axis int
}

func (ConcatParams) Kind() OpKind { return OpConcat }

// EmbeddingParams parametrizes OpEmbedding: [vocab,hidden] x index-shape ->
// index-shape ⊕ [hidden]. I8-embedding output is promoted to F16 (spec.md
// §4.B). IndexNodeID is the second input (token ids); the first input id
// is the embedding table.
type EmbeddingParams struct {
	IndexNodeID int64
}

func (EmbeddingParams) Kind() OpKind { return OpEmbedding }

// PrecisionCastParams parametrizes OpPrecisionCast.
type PrecisionCastParams struct {
	Target tensor.Precision
}

func (PrecisionCastParams) Kind() OpKind { return OpPrecisionCast }

// Conv1DParams parametrizes OpConv1D: a causal depthwise 1-D convolution
// (supplemented from original_source, see SPEC_FULL.md §4.A). WeightNodeID
// is the second input: [channels, kernelSize] depthwise weights.
type Conv1DParams struct {
	KernelSize   int
	Dilation     int
	WeightNodeID int64
}

func (Conv1DParams) Kind() OpKind { return OpConv1D }
