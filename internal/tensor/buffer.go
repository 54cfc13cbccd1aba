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

package tensor

import "fmt"

// Ownership classifies where a Buffer's bytes live. Mutating a Borrowed
// buffer is forbidden — it may point into a read-only mmap (spec.md §9,
// "Owned vs. borrowed buffers").
type Ownership int

const (
	// Unallocated buffers have no storage yet (a node's output before execute).
	Unallocated Ownership = iota
	// Owned buffers are heap-allocated and freed with their node.
	Owned
	// External buffers are borrowed — usually memory-mapped weights, or a
	// caller-supplied input — and outlive the graph that references them.
	External
)

// Buffer is a raw byte-addressable tensor storage plus its descriptor.
// Ownership determines whether Bytes() may be written through.
type Buffer struct {
	desc      BufferDesc
	data      []byte
	ownership Ownership
}

// BufferDesc is a tensor header: shape, precision, and optional
// quantization scale. byte_size = total_elements * element_size(precision).
type BufferDesc struct {
	Shape     Shape
	Precision Precision
	// Scale is the per-buffer quantization multiplier that reconstructs the
	// real value of an I8 code: real = code * Scale. Zero means "not
	// quantized" (only meaningful for I8 buffers).
	Scale float64
}

// NumElements returns the product of Shape's extents.
func (d BufferDesc) NumElements() int { return d.Shape.NumElements() }

// ByteSize returns NumElements * ElementSize(Precision).
func (d BufferDesc) ByteSize() int { return d.NumElements() * ElementSize(d.Precision) }

// NewOwned allocates a zero-filled owned buffer for desc.
func NewOwned(desc BufferDesc) *Buffer {
	return &Buffer{desc: desc, data: make([]byte, desc.ByteSize()), ownership: Owned}
}

// NewExternal wraps borrowed bytes (e.g. an mmap region) as a Buffer. data
// must be at least desc.ByteSize() long.
func NewExternal(desc BufferDesc, data []byte) (*Buffer, error) {
	if len(data) < desc.ByteSize() {
		return nil, fmt.Errorf("tensor: external buffer too small: have %d bytes, need %d", len(data), desc.ByteSize())
	}
	return &Buffer{desc: desc, data: data[:desc.ByteSize()], ownership: External}, nil
}

// NewUnallocated returns a placeholder buffer with no storage, used for a
// graph node's output before execute() allocates it.
func NewUnallocated(desc BufferDesc) *Buffer {
	return &Buffer{desc: desc, ownership: Unallocated}
}

// Desc returns the buffer's descriptor.
func (b *Buffer) Desc() BufferDesc { return b.desc }

// Ownership returns the buffer's ownership class.
func (b *Buffer) Ownership() Ownership { return b.ownership }

// Bytes returns the raw backing storage. Callers must not write through a
// Borrowed (External) buffer.
func (b *Buffer) Bytes() []byte { return b.data }

// Allocate gives an Unallocated buffer owned storage sized for its
// descriptor. No-op if already allocated.
func (b *Buffer) Allocate() {
	if b.ownership == Unallocated {
		b.data = make([]byte, b.desc.ByteSize())
		b.ownership = Owned
	}
}

// F32 views the buffer's bytes as a []float32. Panics if Precision != F32.
func (b *Buffer) F32() []float32 {
	if b.desc.Precision != F32 {
		panic(fmt.Sprintf("tensor: F32() on %s buffer", b.desc.Precision))
	}
	return bytesAsFloat32(b.data)
}

// F16 views the buffer's bytes as a []Float16. Panics if Precision != F16.
func (b *Buffer) F16() []Float16 {
	if b.desc.Precision != F16 {
		panic(fmt.Sprintf("tensor: F16() on %s buffer", b.desc.Precision))
	}
	return bytesAsFloat16(b.data)
}

// I8 views the buffer's bytes as a []int8. Panics if Precision != I8.
func (b *Buffer) I8() []int8 {
	if b.desc.Precision != I8 {
		panic(fmt.Sprintf("tensor: I8() on %s buffer", b.desc.Precision))
	}
	return bytesAsInt8(b.data)
}

// U32 views the buffer's bytes as a []uint32. Panics if Precision != U32.
func (b *Buffer) U32() []uint32 {
	if b.desc.Precision != U32 {
		panic(fmt.Sprintf("tensor: U32() on %s buffer", b.desc.Precision))
	}
	return bytesAsUint32(b.data)
}
