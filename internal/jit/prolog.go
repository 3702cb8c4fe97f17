// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import "github.com/twitchyliquid64/golang-asm/obj/x86"

// prologRegs is the exact callee-saved push order used by Prolog,
// grounded line-for-line on JitCompilerIA64::Prolog in
// jit_amd_lp64.cpp. Epilog pops in the reverse of this order.
var prologRegs = []int16{
	x86.REG_BX, x86.REG_CX, x86.REG_DX, x86.REG_DI, x86.REG_SI,
	x86.REG_R8, x86.REG_R9, x86.REG_R10, x86.REG_R11,
	x86.REG_R12, x86.REG_R13, x86.REG_R14, x86.REG_R15,
}

// Prolog reserves frameSize bytes of local-frame space directly below
// rbp, then pushes every callee-saved register this package's
// emitters may clobber. frameSize is supplied by the caller; the
// translator always passes its fixed 512-byte frameSize constant,
// whatever the method's LocalFrameSize. The frame must be reserved
// before the saves are pushed --
// reserving it after would place the locals/ABI slots on top of the
// register-save area instead of below it.
func (e *Encoder) Prolog(frameSize int64) {
	e.Push(x86.REG_BP)
	e.MovRegReg(x86.REG_BP, x86.REG_SP)
	if frameSize > 0 {
		e.binRI(x86.ASUBQ, x86.REG_SP, frameSize)
	}
	for _, r := range prologRegs {
		e.Push(r)
	}
}

// Epilog pops every register Prolog pushed (in reverse order), then
// restores rsp to rbp (discarding the frame), pops rbp, and returns
// to the caller.
func (e *Encoder) Epilog(frameSize int64) {
	for i := len(prologRegs) - 1; i >= 0; i-- {
		e.Pop(prologRegs[i])
	}
	e.MovRegReg(x86.REG_SP, x86.REG_BP)
	e.Pop(x86.REG_BP)
	e.Ret()
}
