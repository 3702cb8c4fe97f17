// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "objeckvm/internal/bytecode"

// MethodInline splices an eligible callee's body directly into a
// caller's block in place of MTHD_CALL, avoiding the call/return
// overhead entirely. Runs once per method at optimization level >= 3,
// after the per-block peephole stages. Grounded on
// ItermediateOptimizer::InlineMethod in optimization.cpp.
//
// Eligibility (CanInlineMethod) is deliberately narrow: a single
// block, no internal control flow, not native, not self-recursive,
// and exactly one RTRN as the final instruction. The original source
// has a TODO acknowledging it never extended this to callees with
// more than one return; this port keeps that restriction rather than
// inventing multi-return support (see DESIGN.md).
func MethodInline(p *bytecode.Program) {
	for _, cls := range p.Classes {
		for _, m := range cls.Methods {
			inlineIntoMethod(p, m)
		}
	}
}

func inlineIntoMethod(p *bytecode.Program, m *bytecode.Method) {
	for bi, blk := range m.Blocks {
		out := newBlock(blk.ID)
		for _, idx := range blk.Instrs {
			instr := m.Instr(idx)
			if instr.Op != bytecode.MTHD_CALL {
				out.Instrs = append(out.Instrs, idx)
				continue
			}
			callee := calleeOf(p, instr)
			if callee == nil || !CanInlineMethod(m, callee) {
				out.Instrs = append(out.Instrs, idx)
				continue
			}
			out.Instrs = append(out.Instrs, inlineBody(m, callee, instr.Line)...)
		}
		m.Blocks[bi] = out
	}
	m.RebuildLabels()
}

// CanInlineMethod reports whether callee is a splicable leaf: a
// single straight-line block, not native, not self-recursive, with
// exactly one RTRN as its final instruction and no internal control
// flow or label references (which a single un-split block could still
// contain, since the loader only splits blocks at RTRN).
func CanInlineMethod(caller, callee *bytecode.Method) bool {
	if callee.Native || callee.ID == caller.ID || len(callee.Blocks) != 1 {
		return false
	}
	instrs := callee.Blocks[0].Instrs
	if len(instrs) == 0 {
		return false
	}
	for i, idx := range instrs {
		instr := callee.Instr(idx)
		switch instr.Op {
		case bytecode.JMP, bytecode.LBL:
			return false
		case bytecode.RTRN:
			if i != len(instrs)-1 {
				return false
			}
		}
	}
	return callee.Instr(instrs[len(instrs)-1]).Op == bytecode.RTRN
}

// inlineBody returns the caller-arena instruction indices that replace
// a single MTHD_CALL to callee, with self saved into a freshly
// allocated local slot and every LOCAL/LOAD_INST_MEM reference in the
// callee's body remapped onto the caller's frame.
func inlineBody(caller, callee *bytecode.Method, callLine int32) []int {
	offset := int64(caller.LocalFrameSize) + 2
	body := callee.Blocks[0].Instrs[:len(callee.Blocks[0].Instrs)-1] // drop the callee's own RTRN

	var out []int
	if usesSelf(callee, body) {
		out = append(out, caller.NewInstruction(bytecode.Instruction{
			Op:       bytecode.STOR_INT_VAR,
			Operand:  offset,
			Operand2: int64(bytecode.LOCAL),
			Line:     callLine,
		}))
	}

	for _, idx := range body {
		instr := callee.Instr(idx)
		out = append(out, caller.NewInstruction(remapInlined(instr, offset)))
	}

	if needed := int(offset) + 1 + callee.LocalFrameSize; needed > caller.LocalFrameSize {
		caller.LocalFrameSize = needed
	}

	return out
}

func remapInlined(instr bytecode.Instruction, offset int64) bytecode.Instruction {
	if instr.Op == bytecode.LOAD_INST_MEM {
		return bytecode.Instruction{
			Op:       bytecode.LOAD_INT_VAR,
			Operand:  offset,
			Operand2: int64(bytecode.LOCAL),
			Line:     instr.Line,
		}
	}
	if isVarOp(instr.Op) && instr.Context() == bytecode.LOCAL {
		remapped := instr
		remapped.Operand = instr.Operand + offset + 1
		return remapped
	}
	return instr
}

// usesSelf reports whether the callee's body (excluding its terminal
// RTRN) references LOAD_INST_MEM. When it doesn't, the callee never
// touched the object reference that would have been pushed for a
// virtual dispatch, so the call site pushed no such value either and
// there is nothing to save.
func usesSelf(callee *bytecode.Method, body []int) bool {
	for _, idx := range body {
		if callee.Instr(idx).Op == bytecode.LOAD_INST_MEM {
			return true
		}
	}
	return false
}

func isVarOp(op bytecode.Opcode) bool {
	switch op {
	case bytecode.LOAD_INT_VAR, bytecode.STOR_INT_VAR, bytecode.COPY_INT_VAR,
		bytecode.LOAD_FLOAT_VAR, bytecode.STOR_FLOAT_VAR, bytecode.COPY_FLOAT_VAR,
		bytecode.LOAD_FUNC_VAR, bytecode.STOR_FUNC_VAR:
		return true
	default:
		return false
	}
}
