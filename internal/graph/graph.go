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
	"fmt"

	"github.com/cactus-engine/cactus-go/internal/cactuserr"
	"github.com/cactus-engine/cactus-go/internal/kernel/workerpool"
	"github.com/cactus-engine/cactus-go/internal/tensor"
)

// Graph is an ordered arena of nodes plus the memory-mapped weight cache
// that backs NodeWeight nodes. Node execution order is insertion order
// (spec.md §4.B: "topological order is simply insertion order, because
// builder methods refuse to reference an input id that has not yet been
// added").
type Graph struct {
	nodes  []*GraphNode
	byID   map[int64]int
	nextID int64

	pool *workerpool.Pool

	// weights caches memory-mapped weight regions by file path so that
	// repeated loads of the same path reuse one mapping until HardReset
	// unmaps and clears it.
	weights map[string]*mmapRegion

	// preservedOnSoftReset is the set of node ids that survive
	// soft_reset: external inputs and weight nodes (DESIGN.md Open
	// Question #1).
	preservedOnSoftReset map[int64]struct{}
}

// New creates an empty graph. pool may be nil, in which case operators
// that can parallelize run inline.
func New(pool *workerpool.Pool) *Graph {
	return &Graph{
		byID:                 make(map[int64]int),
		weights:              make(map[string]*mmapRegion),
		preservedOnSoftReset: make(map[int64]struct{}),
		pool:                 pool,
	}
}

// Node returns the node with the given id, or nil if not present.
func (g *Graph) Node(id int64) *GraphNode {
	idx, ok := g.byID[id]
	if !ok {
		return nil
	}
	return g.nodes[idx]
}

// Len returns the number of nodes currently in the arena.
func (g *Graph) Len() int { return len(g.nodes) }

func (g *Graph) allocID() int64 {
	id := g.nextID
	g.nextID++
	return id
}

// addNode appends n to the arena, assigning it a fresh id, and returns
// that id. Every input id referenced by n must already be present,
// enforcing that insertion order is topological order.
func (g *Graph) addNode(n *GraphNode) (int64, error) {
	for _, in := range n.Inputs {
		if _, ok := g.byID[in]; !ok {
			return 0, cactuserr.Wrap(cactuserr.ErrIndexOutOfRange, "input node %d does not exist", in)
		}
	}
	n.ID = g.allocID()
	g.byID[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	if n.Kind == NodeInputExternal {
		g.preservedOnSoftReset[n.ID] = struct{}{}
	}
	return n.ID, nil
}

// HardReset discards the entire arena and the weight-mmap cache, as if the
// graph had just been constructed with New. Used when switching models.
func (g *Graph) HardReset() {
	for _, w := range g.weights {
		_ = w.unmap()
	}
	g.nodes = nil
	g.byID = make(map[int64]int)
	g.weights = make(map[string]*mmapRegion)
	g.preservedOnSoftReset = make(map[int64]struct{})
	g.nextID = 0
}

// SoftReset discards every computed node, keeping external-input nodes and
// weight nodes alive (DESIGN.md Open Question #1): the preserved set is
// exactly {external inputs} ∪ {weights}, identified by id membership, not
// by a numeric id threshold. next_id is then reset to one past the
// largest surviving id so that new nodes get small, stable ids again.
func (g *Graph) SoftReset() {
	kept := g.nodes[:0]
	newByID := make(map[int64]int, len(g.preservedOnSoftReset))
	var maxID int64 = -1

	for _, n := range g.nodes {
		isWeight := n.Kind == NodeWeight
		_, isExternalInput := g.preservedOnSoftReset[n.ID]
		if isExternalInput || isWeight {
			newByID[n.ID] = len(kept)
			kept = append(kept, n)
			if n.ID > maxID {
				maxID = n.ID
			}
		}
	}

	g.nodes = kept
	g.byID = newByID
	if maxID >= 0 {
		g.nextID = maxID + 1
	} else {
		g.nextID = 0
	}
}

// MmapWeight loads (or returns the cached mapping for) the weight file at
// path and registers a NodeWeight node exposing it. See mmap_linux.go for
// the platform mapping and weightfile.go for the on-disk header format.
func (g *Graph) MmapWeight(path string) (int64, error) {
	region, err := g.mmapFile(path)
	if err != nil {
		return 0, err
	}
	buf, err := tensor.NewExternal(region.desc, region.data)
	if err != nil {
		return 0, err
	}
	node := &GraphNode{
		Kind:       NodeWeight,
		Op:         OpInput,
		OutputDesc: region.desc,
		Output:     buf,
		WeightPath: path,
	}
	id, err := g.addNode(node)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (g *Graph) mmapFile(path string) (*mmapRegion, error) {
	if r, ok := g.weights[path]; ok {
		return r, nil
	}
	r, err := mapWeightFile(path)
	if err != nil {
		return nil, fmt.Errorf("mmap weight %q: %w", path, err)
	}
	g.weights[path] = r
	return r, nil
}
