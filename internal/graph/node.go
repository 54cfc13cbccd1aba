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

import "github.com/cactus-engine/cactus-go/internal/tensor"

// NodeKind distinguishes how a node's buffer is sourced, independent of
// its operator.
type NodeKind int

const (
	// NodeComputed is produced by executing Op against Inputs.
	NodeComputed NodeKind = iota
	// NodeInputExternal is fed by the caller between calls to Execute
	// (e.g. the current token id, or an attention mask).
	NodeInputExternal
	// NodeWeight is backed by a memory-mapped weight file and never
	// recomputed; see Graph.MmapWeight.
	NodeWeight
)

// GraphNode is one entry in the arena. Inputs are node ids, never pointers,
// so that soft-reset can filter the arena by id without walking a pointer
// graph.
type GraphNode struct {
	ID     int64
	Kind   NodeKind
	Op     OpKind
	Params OpParams
	Inputs []int64

	OutputDesc tensor.BufferDesc
	Output     *tensor.Buffer

	// WeightPath is set for NodeWeight nodes; used both as the mmap
	// cache key and to locate the .scale sibling for I8 weights.
	WeightPath string
}
