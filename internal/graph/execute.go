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
	"time"
	"unsafe"

	"github.com/cactus-engine/cactus-go/internal/cactuserr"
	"github.com/cactus-engine/cactus-go/internal/kernel"
	"github.com/cactus-engine/cactus-go/internal/tensor"
)

// ProfileSink, if non-nil, receives the wall-clock nanoseconds spent in
// each node's operator during Execute. Optional: nil disables profiling
// with zero overhead (spec.md §4.B, "execute(optional_profile_sink)").
type ProfileSink func(nodeID int64, op OpKind, nanos int64)

// Execute runs every NodeComputed node in insertion order, in-place over
// whatever external inputs and weights are currently installed. It is safe
// to call repeatedly (e.g. once per generated token) as long as external
// inputs are refreshed between calls via SetExternalInput.
func (g *Graph) Execute(sink ProfileSink) error {
	for _, n := range g.nodes {
		if n.Kind != NodeComputed {
			continue
		}
		n.Output.Allocate()
		var start time.Time
		if sink != nil {
			start = time.Now()
		}
		if err := g.executeNode(n); err != nil {
			return cactuserr.Wrap(err, "node %d (op %d)", n.ID, n.Op)
		}
		if sink != nil {
			sink(n.ID, n.Op, time.Since(start).Nanoseconds())
		}
	}
	return nil
}

func (g *Graph) executeNode(n *GraphNode) error {
	switch n.Op {
	case OpBinary:
		return g.execBinary(n)
	case OpScalar:
		return g.execScalar(n)
	case OpActivation:
		return g.execActivation(n)
	case OpMatMul:
		return g.execMatMul(n)
	case OpTranspose:
		return g.execTranspose(n)
	case OpReduce:
		return g.execReduce(n)
	case OpRMSNorm:
		return g.execRMSNorm(n)
	case OpRoPE:
		return g.execRoPE(n)
	case OpSoftmax:
		return g.execSoftmax(n)
	case OpAttention:
		return g.execAttention(n)
	case OpSample:
		return g.execSample(n)
	case OpReshape:
		return g.execReshape(n)
	case OpSliceRows:
		return g.execSliceRows(n)
	case OpConcat:
		return g.execConcat(n)
	case OpEmbedding:
		return g.execEmbedding(n)
	case OpPrecisionCast:
		return g.execPrecisionCast(n)
	case OpConv1D:
		return g.execConv1D(n)
	default:
		return cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "unknown op %d", n.Op)
	}
}

func (g *Graph) in(n *GraphNode, i int) *GraphNode { return g.Node(n.Inputs[i]) }

func (g *Graph) execBinary(n *GraphNode) error {
	p := n.Params.(BinaryParams)
	a, b, c := g.in(n, 0), g.in(n, 1), n
	prec := a.OutputDesc.Precision

	if p.Broadcast {
		if prec != tensor.F32 {
			return cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "broadcast binary only supports F32, got %s", prec)
		}
		// NewBroadcastInfo wants rank-aligned shapes: pad the lower-rank
		// operand with leading 1s up to the output rank.
		rank := len(c.OutputDesc.Shape)
		pad := func(s tensor.Shape) []int {
			out := make([]int, rank-len(s), rank)
			for i := range out {
				out[i] = 1
			}
			return append(out, s...)
		}
		info := kernel.NewBroadcastInfo(pad(a.OutputDesc.Shape), pad(b.OutputDesc.Shape))
		fn := broadcastFns[p.Op]
		fn(a.Output.F32(), b.Output.F32(), c.Output.F32(), info)
		return nil
	}

	switch prec {
	case tensor.F32:
		binaryF32Fns[p.Op](a.Output.F32(), b.Output.F32(), c.Output.F32())
	case tensor.F16:
		binaryF16Fns[p.Op](a.Output.F16(), b.Output.F16(), c.Output.F16())
	case tensor.I8:
		binaryI8Fns[p.Op](a.Output.I8(), b.Output.I8(), c.Output.I8())
	default:
		return cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "binary op on %s", prec)
	}
	return nil
}

var binaryF32Fns = map[BinaryOp]func(a, b, c []float32){
	BinaryAdd: kernel.AddF32, BinarySub: kernel.SubF32, BinaryMul: kernel.MulF32, BinaryDiv: kernel.DivF32,
}
var binaryF16Fns = map[BinaryOp]func(a, b, c []tensor.Float16){
	BinaryAdd: kernel.AddF16, BinarySub: kernel.SubF16, BinaryMul: kernel.MulF16, BinaryDiv: kernel.DivF16,
}
var binaryI8Fns = map[BinaryOp]func(a, b, c []int8){
	BinaryAdd: kernel.AddI8, BinarySub: kernel.SubI8, BinaryMul: kernel.MulI8, BinaryDiv: kernel.DivI8,
}
var broadcastFns = map[BinaryOp]func(a, b, c []float32, info kernel.BroadcastInfo){
	BinaryAdd: kernel.AddBroadcastF32, BinarySub: kernel.SubBroadcastF32,
	BinaryMul: kernel.MulBroadcastF32, BinaryDiv: kernel.DivBroadcastF32,
}

func (g *Graph) execScalar(n *GraphNode) error {
	p := n.Params.(ScalarParams)
	x := g.in(n, 0)
	switch x.OutputDesc.Precision {
	case tensor.F32:
		out := n.Output.F32()
		xs := x.Output.F32()
		switch p.Op {
		case ScalarAdd:
			kernel.ScalarAddF32(xs, out, float32(p.Value))
		case ScalarSub:
			kernel.ScalarSubF32(xs, out, float32(p.Value))
		case ScalarMul:
			kernel.ScalarMulF32(xs, out, float32(p.Value))
		case ScalarDiv:
			kernel.ScalarDivF32(xs, out, float32(p.Value))
		case ScalarExp:
			kernel.ExpF32(xs, out)
		case ScalarSqrt:
			kernel.SqrtF32(xs, out)
		case ScalarCos:
			kernel.CosF32(xs, out)
		case ScalarSin:
			kernel.SinF32(xs, out)
		}
		return nil
	case tensor.I8:
		out := n.Output.I8()
		xs := x.Output.I8()
		s := int8(p.Value)
		switch p.Op {
		case ScalarAdd:
			kernel.ScalarAddI8(xs, out, s)
		case ScalarSub:
			kernel.ScalarSubI8(xs, out, s)
		case ScalarMul:
			kernel.ScalarMulI8(xs, out, s)
		case ScalarDiv:
			kernel.ScalarDivI8(xs, out, s)
		default:
			return cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "transcendental scalar op on I8")
		}
		return nil
	default:
		return cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "scalar op on %s", x.OutputDesc.Precision)
	}
}

func (g *Graph) execActivation(n *GraphNode) error {
	p := n.Params.(ActivationParams)
	x := g.in(n, 0)
	switch x.OutputDesc.Precision {
	case tensor.F32:
		if p.Activation == ActivationSiLU {
			kernel.SiLUF32(x.Output.F32(), n.Output.F32())
		} else {
			kernel.GELUF32(x.Output.F32(), n.Output.F32())
		}
		return nil
	case tensor.F16:
		if p.Activation == ActivationSiLU {
			kernel.SiLUF16(x.Output.F16(), n.Output.F16())
		} else {
			kernel.GELUF16(x.Output.F16(), n.Output.F16())
		}
		return nil
	default:
		return cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "activation on %s", x.OutputDesc.Precision)
	}
}

func (g *Graph) execMatMul(n *GraphNode) error {
	p := n.Params.(MatMulParams)
	a, b := g.in(n, 0), g.in(n, 1)
	m, k := a.OutputDesc.Shape[0], a.OutputDesc.Shape[1]
	nn := b.OutputDesc.Shape[0]

	if p.HybridI32Output {
		out := bytesAsInt32(n.Output.Bytes())
		kernel.GEMMI8ToI32(g.pool, a.Output.I8(), b.Output.I8(), out, m, nn, k)
		return nil
	}

	switch a.OutputDesc.Precision {
	case tensor.F32:
		kernel.GEMMF32(g.pool, a.Output.F32(), b.Output.F32(), n.Output.F32(), m, nn, k)
	case tensor.F16:
		kernel.GEMMF16(g.pool, a.Output.F16(), b.Output.F16(), n.Output.F16(), m, nn, k)
	case tensor.I8:
		kernel.GEMMI8(g.pool, a.Output.I8(), b.Output.I8(), n.Output.I8(), m, nn, k, p.AScale, p.BScale, p.CScale)
	default:
		return cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "matmul on %s", a.OutputDesc.Precision)
	}
	return nil
}

func (g *Graph) execTranspose(n *GraphNode) error {
	p := n.Params.(TransposeParams)
	x := g.in(n, 0)
	elemSize := tensor.ElementSize(x.OutputDesc.Precision)
	kernel.TransposeBytes(x.Output.Bytes(), n.Output.Bytes(), x.OutputDesc.Shape, p.Perm, elemSize)
	return nil
}

func (g *Graph) execReduce(n *GraphNode) error {
	p := n.Params.(ReduceParams)
	x := g.in(n, 0)
	if x.OutputDesc.Precision != tensor.F32 {
		return cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "reduce on %s", x.OutputDesc.Precision)
	}
	kernel.ReduceF32(x.Output.F32(), n.Output.F32(), x.OutputDesc.Shape, p.Axis, kernel.ReduceKind(p.Reduce))
	return nil
}

func (g *Graph) execRMSNorm(n *GraphNode) error {
	p := n.Params.(RMSNormParams)
	x := g.in(n, 0)
	w := g.Node(p.WeightNodeID)
	normSize := x.OutputDesc.Shape[len(x.OutputDesc.Shape)-1]

	switch x.OutputDesc.Precision {
	case tensor.F32:
		kernel.RMSNormF32(x.Output.F32(), n.Output.F32(), normSize, w.Output.F32(), p.Epsilon)
	case tensor.F16:
		kernel.RMSNormF16(x.Output.F16(), n.Output.F16(), normSize, w.Output.F16(), p.Epsilon)
	case tensor.I8:
		kernel.RMSNormI8(x.Output.I8(), x.OutputDesc.Scale, n.Output.I8(), normSize, w.Output.F32(), p.Epsilon)
	default:
		return cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "rmsnorm on %s", x.OutputDesc.Precision)
	}
	return nil
}

func (g *Graph) execRoPE(n *GraphNode) error {
	p := n.Params.(RoPEParams)
	x := g.in(n, 0)
	if x.OutputDesc.Precision != tensor.F32 {
		return cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "rope on %s", x.OutputDesc.Precision)
	}
	s := x.OutputDesc.Shape
	kernel.RoPEF32(x.Output.F32(), n.Output.F32(), s[0], s[1], s[2], s[3], p.Theta, p.PositionOffset)
	return nil
}

func (g *Graph) execSoftmax(n *GraphNode) error {
	x := g.in(n, 0)
	if x.OutputDesc.Precision != tensor.F32 {
		return cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "softmax on %s", x.OutputDesc.Precision)
	}
	shape := x.OutputDesc.Shape
	rowLen := shape[len(shape)-1]
	kernel.SoftmaxF32(x.Output.F32(), n.Output.F32(), rowLen)
	return nil
}

func (g *Graph) execAttention(n *GraphNode) error {
	p := n.Params.(AttentionParams)
	q := g.in(n, 0)
	k := g.Node(p.KeyNodeID)
	v := g.Node(p.ValueNodeID)
	if q.OutputDesc.Precision != tensor.F32 {
		return cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "attention on %s", q.OutputDesc.Precision)
	}
	seqLen := q.OutputDesc.Shape[0]
	kvLen := k.OutputDesc.Shape[0]
	scores := make([]float32, p.QHeads*seqLen*kvLen)
	kernel.AttentionF32(g.pool, q.Output.F32(), k.Output.F32(), v.Output.F32(), n.Output.F32(), scores,
		seqLen, kvLen, p.QHeads, p.KVHeads, p.HeadDim, kernel.AttentionParams{
			Scale:          p.Scale,
			Causal:         p.Causal,
			WindowSize:     p.WindowSize,
			PositionOffset: p.PositionOffset,
		})
	return nil
}

func (g *Graph) execSample(n *GraphNode) error {
	p := n.Params.(SampleParams)
	logits := g.in(n, 0)
	id := kernel.SampleF32(logits.Output.F32(), kernel.SampleParams{
		Temperature: p.Temperature, TopP: p.TopP, TopK: p.TopK, Seed: p.Seed,
	})
	n.Output.U32()[0] = id
	return nil
}

func (g *Graph) execReshape(n *GraphNode) error {
	x := g.in(n, 0)
	copy(n.Output.Bytes(), x.Output.Bytes())
	return nil
}

func (g *Graph) execSliceRows(n *GraphNode) error {
	p := n.Params.(SliceRowsParams)
	x := g.in(n, 0)
	rowBytes := tensor.ElementSize(x.OutputDesc.Precision)
	for _, d := range x.OutputDesc.Shape[1:] {
		rowBytes *= d
	}
	off := p.Start * rowBytes
	copy(n.Output.Bytes(), x.Output.Bytes()[off:off+p.Length*rowBytes])
	return nil
}

func (g *Graph) execConcat(n *GraphNode) error {
	p := n.Params.(ConcatParams)
	elemSize := tensor.ElementSize(n.OutputDesc.Precision)
	outShape := n.OutputDesc.Shape

	// outer = product of dims before axis, inner = product of dims after.
	outer := 1
	for i := 0; i < p.Axis; i++ {
		outer *= outShape[i]
	}
	inner := 1
	for i := p.Axis + 1; i < len(outShape); i++ {
		inner *= outShape[i]
	}
	outAxisSize := outShape[p.Axis]
	dstBytes := n.Output.Bytes()

	axisOffset := 0
	for _, id := range n.Inputs {
		src := g.Node(id)
		axisSize := src.OutputDesc.Shape[p.Axis]
		sBytes := src.Output.Bytes()
		sliceLen := axisSize * inner * elemSize
		for o := 0; o < outer; o++ {
			srcOff := o * axisSize * inner * elemSize
			dstBase := o*outAxisSize*inner*elemSize + axisOffset*inner*elemSize
			copy(dstBytes[dstBase:dstBase+sliceLen], sBytes[srcOff:srcOff+sliceLen])
		}
		axisOffset += axisSize
	}
	return nil
}

func (g *Graph) execEmbedding(n *GraphNode) error {
	p := n.Params.(EmbeddingParams)
	table := g.in(n, 0)
	index := g.Node(p.IndexNodeID)
	hidden := table.OutputDesc.Shape[1]
	ids := index.Output.U32()

	switch table.OutputDesc.Precision {
	case tensor.F32:
		src := table.Output.F32()
		dst := n.Output.F32()
		for i, id := range ids {
			copy(dst[i*hidden:(i+1)*hidden], src[int(id)*hidden:int(id)*hidden+hidden])
		}
	case tensor.F16:
		src := table.Output.F16()
		dst := n.Output.F16()
		for i, id := range ids {
			copy(dst[i*hidden:(i+1)*hidden], src[int(id)*hidden:int(id)*hidden+hidden])
		}
	case tensor.I8:
		// Promoted to F16 output (build.go's AddEmbedding).
		src := table.Output.I8()
		dst := n.Output.F16()
		scale := table.OutputDesc.Scale
		for i, id := range ids {
			row := src[int(id)*hidden : int(id)*hidden+hidden]
			out := dst[i*hidden : (i+1)*hidden]
			for j, code := range row {
				out[j] = tensor.NewFloat16(float32(float64(code) * scale))
			}
		}
	default:
		return cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "embedding table precision %s", table.OutputDesc.Precision)
	}
	return nil
}

func (g *Graph) execPrecisionCast(n *GraphNode) error {
	p := n.Params.(PrecisionCastParams)
	x := g.in(n, 0)
	from := x.OutputDesc.Precision

	toF64 := func(i int) float64 {
		switch from {
		case tensor.F32:
			return float64(x.Output.F32()[i])
		case tensor.F16:
			return x.Output.F16()[i].Float64()
		case tensor.I8:
			return float64(x.Output.I8()[i]) * x.OutputDesc.Scale
		default:
			return 0
		}
	}
	n.OutputDesc.Scale = x.OutputDesc.Scale

	count := n.OutputDesc.NumElements()
	switch p.Target {
	case tensor.F32:
		out := n.Output.F32()
		for i := 0; i < count; i++ {
			out[i] = float32(toF64(i))
		}
	case tensor.F16:
		out := n.Output.F16()
		for i := 0; i < count; i++ {
			out[i] = tensor.NewFloat16(float32(toF64(i)))
		}
	case tensor.I8:
		out := n.Output.I8()
		scale := n.OutputDesc.Scale
		if scale == 0 {
			scale = 1
		}
		for i := 0; i < count; i++ {
			out[i] = saturateToI8(toF64(i) / scale)
		}
	default:
		return cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "precision cast to %s", p.Target)
	}
	return nil
}

func saturateToI8(v float64) int8 {
	if v > 127 {
		return 127
	}
	if v < -128 {
		return -128
	}
	return int8(v)
}

func (g *Graph) execConv1D(n *GraphNode) error {
	p := n.Params.(Conv1DParams)
	x := g.in(n, 0)
	w := g.Node(p.WeightNodeID)
	if x.OutputDesc.Precision != tensor.F32 {
		return cactuserr.Wrap(cactuserr.ErrUnsupportedPrecisionCombo, "conv1d on %s", x.OutputDesc.Precision)
	}
	s := x.OutputDesc.Shape
	kernel.ConvCausal1DF32(x.Output.F32(), w.Output.F32(), n.Output.F32(), s[0], s[1], s[2], p.KernelSize, p.Dilation)
	return nil
}

// bytesAsInt32 reinterprets b as a []int32, used only for the hybrid
// GEMMI8ToI32 accumulator, which borrows F32's 4-byte element size without
// being floating point (see MatMulParams.HybridI32Output in op.go).
func bytesAsInt32(b []byte) []int32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/4)
}
