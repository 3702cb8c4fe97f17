// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package jit lowers an optimized bytecode.Program into native
// x86-64 machine code using github.com/twitchyliquid64/golang-asm as
// the instruction encoder. Grounded throughout on the teacher's
// exec/internal/compile package (AMD64Backend and its reserved-
// register convention) and on
// original_source/src/vm/jit/amd64/jit_amd_lp64.cpp.
package jit

import (
	"github.com/pkg/errors"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

// ErrRegPoolExhausted is returned when the free-list has no register
// to hand out, or when a caller that needs a spill slot (the callback
// bridge, float-literal materialization) finds the frame's spill area
// full. Working-stack entries are not spilled to make room for a new
// register. Per spec.md §7 this is a CompileAbort:
// the caller flags the method compile_success=false and the VM falls
// back to the interpreter rather than propagating a hard error.
var ErrRegPoolExhausted = errors.New("jit: register pool and spill area exhausted")

// gprCandidates lists the general-purpose registers available to the
// allocator; AcquireGPR hands them out from the end of the list
// backward. RSP/RBP are reserved for the frame;
// RAX/RDX are excluded because the translator reserves them for the
// cdq/idiv sequence around DIV_INT/MOD_INT (spec.md §4.5).
var gprCandidates = []int16{
	x86.REG_BX, x86.REG_CX, x86.REG_DI, x86.REG_SI,
	x86.REG_R8, x86.REG_R9, x86.REG_R10, x86.REG_R11,
	x86.REG_R12, x86.REG_R13, x86.REG_R14, x86.REG_R15,
}

// byteAddressable is the subset of gprCandidates (plus RAX/RDX, which
// the pool otherwise reserves) that can address an 8-bit sub-register
// for a byte store, per spec.md §4.4.
var byteAddressable = []int16{x86.REG_AX, x86.REG_BX, x86.REG_CX, x86.REG_DX}

var xmmCandidates = []int16{
	x86.REG_X0, x86.REG_X1, x86.REG_X2, x86.REG_X3,
	x86.REG_X4, x86.REG_X5, x86.REG_X6, x86.REG_X7,
	x86.REG_X8, x86.REG_X9, x86.REG_X10, x86.REG_X11,
	x86.REG_X12, x86.REG_X13, x86.REG_X14, x86.REG_X15,
}

// spillSlotCount mirrors the TMP_REG_0..TMP_REG_5 / TMP_XMM_0..
// TMP_XMM_2 frame layout named in spec.md §4.4 and §4.6.
const (
	gprSpillSlots = 6
	xmmSpillSlots = 3
)

// RegPool is per-method, compile-time-only state (spec.md §5):
// never shared across goroutines, never reused after a method's code
// is emitted.
type RegPool struct {
	freeGPR []int16
	freeXMM []int16

	gprSpillUsed [gprSpillSlots]bool
	xmmSpillUsed [xmmSpillSlots]bool
}

// NewRegPool returns a pool with every candidate register free.
func NewRegPool() *RegPool {
	p := &RegPool{}
	p.freeGPR = append(p.freeGPR, gprCandidates...)
	p.freeXMM = append(p.freeXMM, xmmCandidates...)
	return p
}

// AcquireGPR returns a free general-purpose register, restricted to
// RAX/RBX/RCX/RDX when byteAddr is true (spec.md §4.4). Returns
// ErrRegPoolExhausted when none remain; the translator then aborts
// the compile with that error, it does not spill a working-stack
// entry to free a register.
func (p *RegPool) AcquireGPR(byteAddr bool) (int16, error) {
	if byteAddr {
		for i, reg := range p.freeGPR {
			if contains(byteAddressable, reg) {
				p.freeGPR = append(p.freeGPR[:i], p.freeGPR[i+1:]...)
				return reg, nil
			}
		}
		return 0, ErrRegPoolExhausted
	}
	if len(p.freeGPR) == 0 {
		return 0, ErrRegPoolExhausted
	}
	reg := p.freeGPR[len(p.freeGPR)-1]
	p.freeGPR = p.freeGPR[:len(p.freeGPR)-1]
	return reg, nil
}

// AcquireXMM returns a free XMM register.
func (p *RegPool) AcquireXMM() (int16, error) {
	if len(p.freeXMM) == 0 {
		return 0, ErrRegPoolExhausted
	}
	reg := p.freeXMM[len(p.freeXMM)-1]
	p.freeXMM = p.freeXMM[:len(p.freeXMM)-1]
	return reg, nil
}

// Release returns reg to whichever free-list it belongs to. Safe to
// call exactly once per successful Acquire* -- the translator's
// emit helpers are written to release on every exit path (including
// compile-abort) so the pool never leaks within one method (spec.md
// §9 "Register handles as RAII").
func (p *RegPool) Release(reg int16) {
	if contains(xmmCandidates, reg) {
		p.freeXMM = append(p.freeXMM, reg)
		return
	}
	p.freeGPR = append(p.freeGPR, reg)
}

// SpillSlot reserves the next free GPR spill slot in the frame's temp
// area, returning its index, or -1 if all gprSpillSlots are in use.
func (p *RegPool) SpillSlot() int {
	for i := range p.gprSpillUsed {
		if !p.gprSpillUsed[i] {
			p.gprSpillUsed[i] = true
			return i
		}
	}
	return -1
}

// FreeSpillSlot releases a GPR spill slot acquired via SpillSlot.
func (p *RegPool) FreeSpillSlot(i int) { p.gprSpillUsed[i] = false }

// XMMSpillSlot and FreeXMMSpillSlot mirror SpillSlot/FreeSpillSlot for
// the smaller XMM temp area.
func (p *RegPool) XMMSpillSlot() int {
	for i := range p.xmmSpillUsed {
		if !p.xmmSpillUsed[i] {
			p.xmmSpillUsed[i] = true
			return i
		}
	}
	return -1
}

func (p *RegPool) FreeXMMSpillSlot(i int) { p.xmmSpillUsed[i] = false }

func contains(regs []int16, reg int16) bool {
	for _, r := range regs {
		if r == reg {
			return true
		}
	}
	return false
}
