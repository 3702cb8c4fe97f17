// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ir implements the peephole/data-flow optimizer pipeline
// that runs over a bytecode.Program between the loader and the JIT.
// Every pass is grounded on the correspondingly named method of
// ItermediateOptimizer in original_source/src/compiler/optimization.cpp.
package ir

import "objeckvm/internal/bytecode"

// deferred models the LIFO "working stack" every peephole pass in
// optimization.cpp builds with a deque: instructions are held back
// (pushed) for possible rewriting, and when the hold cannot be
// resolved into a rewrite they are flushed to the output block in
// their original source order -- this is load-bearing for stack
// machine semantics even when the opcodes can't be combined.
//
// The C++ source uses push_front to add and pop_back/back() to
// flush, which is equivalent to: append() to add, and read the last
// element for "top of stack" access, while a flush walks the buffer
// front-to-back (oldest to newest, i.e. original insertion order).
type deferred struct {
	buf []int // arena indices, oldest first
}

func (d *deferred) push(idx int)  { d.buf = append(d.buf, idx) }
func (d *deferred) empty() bool   { return len(d.buf) == 0 }
func (d *deferred) size() int     { return len(d.buf) }
func (d *deferred) top() int      { return d.buf[len(d.buf)-1] }
func (d *deferred) popTop() int {
	idx := d.buf[len(d.buf)-1]
	d.buf = d.buf[:len(d.buf)-1]
	return idx
}

// nth returns the arena index fromTop entries below the top (0 is the
// top itself) without removing anything, for passes that need to
// inspect more than one held instruction before deciding to fold.
func (d *deferred) nth(fromTop int) int {
	return d.buf[len(d.buf)-1-fromTop]
}

// flush appends every held instruction to out in original source
// order and clears the buffer.
func (d *deferred) flush(out *[]int) {
	*out = append(*out, d.buf...)
	d.buf = d.buf[:0]
}

// blockPass is the shape every per-block peephole stage implements:
// a pure function from one block's instruction sequence to a new one.
type blockPass func(m *bytecode.Method, in *bytecode.Block) *bytecode.Block

// runOverProgram applies pass to every block of every method of every
// class in p, replacing each method's block list with the pass's
// output. Methods are processed in source order; passes are pure so
// no cross-method ordering guarantee is required (spec.md §4.1).
func runOverProgram(p *bytecode.Program, pass blockPass) {
	for _, cls := range p.Classes {
		for _, m := range cls.Methods {
			next := make([]*bytecode.Block, len(m.Blocks))
			for i, blk := range m.Blocks {
				next[i] = pass(m, blk)
			}
			m.Blocks = next
		}
	}
}

func newBlock(id int) *bytecode.Block {
	return &bytecode.Block{ID: id}
}
