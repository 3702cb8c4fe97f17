// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import (
	"github.com/pkg/errors"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

// bridgeSavedRegs are the callee-saved registers the bridge itself
// pushes/pops around the call, per spec.md §4.6 step 3 ("push
// callee-saved registers not preserved by the ABI").
var bridgeSavedRegs = []int16{x86.REG_R8, x86.REG_R13, x86.REG_R14, x86.REG_R15}

// spillBase is the rbp-relative offset of the first of the frame's
// TMP_REG_0.. spill slots (spec.md §4.4/§4.6); each slot is one word
// below the last.
const spillBase = -256

func spillOffset(slot int) int64 { return int64(spillBase) - int64(slot)*8 }

// CallbackArgs carries the fixed SysV argument shape every runtime
// service entry point expects (spec.md §4.6 step 4 / §6 "Runtime
// callback ABI"). InstrAddr stands in for `&instr`: the real VM keeps
// instructions in a flat array it can take the address of, which this
// package's in-memory bytecode.Arena has no equivalent pointer for,
// so the caller supplies whatever representation its runtime package
// expects (e.g. an index) and this emitter loads it as an immediate.
type CallbackArgs struct {
	InstrID        int64
	InstrAddr      int64
	ClassID        int64
	MethodID       int64
	InstanceBase   int16 // -1 if the method has no instance base loaded
	OpStackBase    int16
	ReturnInstrIdx int64
	StackPosPtr    int16
}

// EmitCallbackBridge emits the uniform calling-convention bracket
// spec.md §4.6 describes for every operation the translator can't
// lower to a handful of machine instructions: allocation, dispatch,
// traps, and thread ops. nonParamRegs are the working-stack entries
// live in registers that the call must not clobber; param flushing
// (step 2) is the caller's responsibility before this is invoked,
// since which entries count as "params" is opcode-specific.
func (e *Encoder) EmitCallbackBridge(pool *RegPool, nonParamRegs []int16, args CallbackArgs, serviceAddr int64) error {
	slots := make([]int, len(nonParamRegs))
	for i, reg := range nonParamRegs {
		slot := pool.SpillSlot()
		if slot < 0 {
			return errors.Wrap(ErrRegPoolExhausted, "jit: callback bridge spilling non-param registers")
		}
		slots[i] = slot
		e.MovMemReg(x86.REG_BP, spillOffset(slot), reg)
	}

	for _, r := range bridgeSavedRegs {
		e.Push(r)
	}

	e.MovRegImm(x86.REG_DI, args.InstrID)
	e.MovRegImm(x86.REG_SI, args.InstrAddr)
	e.MovRegImm(x86.REG_DX, args.ClassID)
	e.MovRegImm(x86.REG_CX, args.MethodID)
	if args.InstanceBase >= 0 {
		e.MovRegReg(x86.REG_R8, args.InstanceBase)
	}
	e.MovRegReg(x86.REG_R9, args.OpStackBase)

	e.pushImm(args.ReturnInstrIdx)
	e.Push(args.StackPosPtr)

	e.MovRegImm(x86.REG_AX, serviceAddr)
	e.CallReg(x86.REG_AX)

	e.binRI(x86.AADDQ, x86.REG_SP, 16)

	for i := len(bridgeSavedRegs) - 1; i >= 0; i-- {
		e.Pop(bridgeSavedRegs[i])
	}

	for i := len(nonParamRegs) - 1; i >= 0; i-- {
		e.MovRegMem(nonParamRegs[i], x86.REG_BP, spillOffset(slots[i]))
		pool.FreeSpillSlot(slots[i])
	}

	return nil
}

// pushImm emits `push imm64` via a scratch move through RAX, since
// golang-asm's APUSHQ only accepts a register operand in this
// package's usage. RAX is safe here: it is never a live working-stack
// register at a callback-bridge boundary (spec.md §4.5 reserves it for
// the cdq/idiv sequence only, which never overlaps a bridge call).
func (e *Encoder) pushImm(v int64) {
	e.MovRegImm(x86.REG_AX, v)
	e.Push(x86.REG_AX)
}
