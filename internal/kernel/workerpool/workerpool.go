// Copyright 2025 cactus-go Authors. SPDX-License-Identifier: Apache-2.0

// Package workerpool provides a persistent, reusable worker pool for kernel
// parallelism. A Pool is created once per process and reused across every
// generation step, eliminating per-call goroutine spawn overhead — critical
// for transformer inference where dozens of GEMMs run per forward pass.
package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// MinParallelWork is the smallest problem size (row count, typically M for a
// GEMM or seqLen for attention) worth handing to the pool. Below it, spec.md
// §5's "small problems stay single-threaded" applies and ParallelFor runs fn
// inline on the calling goroutine.
const MinParallelWork = 32

// Pool is a persistent worker pool reused across many parallel operations.
type Pool struct {
	numWorkers int
	workC      chan workItem
	closeOnce  sync.Once
	closed     atomic.Bool
}

type workItem struct {
	fn      func()
	barrier *sync.WaitGroup
}

// New creates a pool with numWorkers persistent goroutines. If numWorkers
// <= 0, uses runtime.GOMAXPROCS(0).
func New(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		numWorkers: numWorkers,
		workC:      make(chan workItem, numWorkers*2),
	}
	for range numWorkers {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for item := range p.workC {
		item.fn()
		item.barrier.Done()
	}
}

// NumWorkers returns the number of persistent workers.
func (p *Pool) NumWorkers() int { return p.numWorkers }

// Close shuts the pool down. Safe to call more than once.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.workC)
	})
}

// dispatchWidth returns how many workers a problem of size n should use: 1
// (meaning "run inline, don't touch the channel at all") when n is below
// MinParallelWork, the pool has been closed, or n itself leaves only one
// worker with anything to do. spec.md §5's "small problems stay
// single-threaded" rule lives here, as a single gate both ParallelFor and
// ParallelForAtomic consult, rather than as a threshold check copy-pasted
// into each.
func (p *Pool) dispatchWidth(n int) int {
	if n < MinParallelWork || p.closed.Load() {
		return 1
	}
	return min(p.numWorkers, n)
}

// ParallelFor executes fn(start, end) over contiguous row ranges that tile
// [0, n). Blocks until all tiles complete.
func (p *Pool) ParallelFor(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	workers := p.dispatchWidth(n)
	if workers <= 1 {
		fn(0, n)
		return
	}

	chunkSize := (n + workers - 1) / workers
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := range workers {
		start := i * chunkSize
		end := min(start+chunkSize, n)
		if start >= n {
			wg.Done()
			continue
		}
		p.workC <- workItem{
			fn:      func() { fn(start, end) },
			barrier: &wg,
		}
	}
	wg.Wait()
}

// ParallelForAtomic executes fn(i) for each index in [0, n) using atomic
// work stealing, for better load balance when per-item cost varies (e.g.
// per-query-head attention with ragged KV lengths).
func (p *Pool) ParallelForAtomic(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	workers := p.dispatchWidth(n)
	if workers <= 1 {
		for i := range n {
			fn(i)
		}
		return
	}

	var nextIdx atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)

	for range workers {
		p.workC <- workItem{
			fn: func() {
				for {
					idx := int(nextIdx.Add(1)) - 1
					if idx >= n {
						return
					}
					fn(idx)
				}
			},
			barrier: &wg,
		}
	}
	wg.Wait()
}
