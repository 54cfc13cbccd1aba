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

// Package tensor holds the data model shared by the graph, kernel, and KV
// cache packages: precisions, buffer descriptors, ownership, and shapes.
// It has no dependency on graph or kernel so all three can import it.
package tensor

import "fmt"

// Precision enumerates the element types the engine computes in.
type Precision int

const (
	I8 Precision = iota
	F16
	F32
	// U32 stores a token id produced by a Sample node. Distinct from F32 so
	// sampled ids are never bit-reinterpreted floats (spec.md §9, "Sampling
	// output precision": the source's F32 bit-reinterpretation trick is
	// explicitly not part of this contract).
	U32
)

// String implements fmt.Stringer.
func (p Precision) String() string {
	switch p {
	case I8:
		return "I8"
	case F16:
		return "F16"
	case F32:
		return "F32"
	case U32:
		return "U32"
	default:
		return fmt.Sprintf("Precision(%d)", int(p))
	}
}

// ElementSize returns the byte size of a single element of p.
func ElementSize(p Precision) int {
	switch p {
	case I8:
		return 1
	case F16:
		return 2
	case F32, U32:
		return 4
	default:
		panic(fmt.Sprintf("tensor: unknown precision %d", int(p)))
	}
}

// ParsePrecision maps the config.txt precision tag to a Precision.
func ParsePrecision(s string) (Precision, error) {
	switch s {
	case "INT8":
		return I8, nil
	case "FP16":
		return F16, nil
	case "FP32":
		return F32, nil
	default:
		return 0, fmt.Errorf("tensor: unknown precision tag %q", s)
	}
}

// Shape is an ordered list of positive extents.
type Shape []int

// NumElements returns the product of all extents, or 1 for an empty shape.
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether s and o have the same rank and extents.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the shape.
func (s Shape) Clone() Shape {
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

func (s Shape) String() string {
	return fmt.Sprint([]int(s))
}
