// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "objeckvm/internal/bytecode"

// CopyPropagation rewrites `STOR_INT_VAR x; LOAD_INT_VAR x` (same
// slot, same context) into a single `COPY_INT_VAR x`, which stores
// the top-of-stack value into the slot without popping it -- same
// effect, one fewer stack-machine round trip. Same for the float
// variants. Runs at optimization level >= 3. Grounded on
// ItermediateOptimizer::InstructionReplacement/ReplacementInstruction
// in optimization.cpp.
//
// Only a single held STOR is ever a replacement candidate: a second
// STOR displaces the first before the first gets a chance to pair
// with a load, matching the original's behavior of flushing a leading
// store once it's clear a later store, not a load, follows it.
func CopyPropagation(m *bytecode.Method, in *bytecode.Block) *bytecode.Block {
	out := newBlock(in.ID)
	var q deferred

	for _, idx := range in.Instrs {
		instr := m.Instr(idx)
		switch instr.Op {
		case bytecode.STOR_INT_VAR, bytecode.STOR_FLOAT_VAR:
			q.flush(&out.Instrs)
			q.push(idx)

		case bytecode.LOAD_INT_VAR, bytecode.LOAD_FLOAT_VAR:
			if !q.empty() {
				stor := m.Instr(q.top())
				if copyOpFor(stor.Op, instr.Op) != bytecode.NOP &&
					stor.Operand == instr.Operand && stor.Context() == instr.Context() {
					q.popTop()
					copyIdx := m.NewInstruction(bytecode.Instruction{
						Op:       copyOpFor(stor.Op, instr.Op),
						Operand:  stor.Operand,
						Operand2: stor.Operand2,
						Line:     instr.Line,
					})
					out.Instrs = append(out.Instrs, copyIdx)
					continue
				}
			}
			q.flush(&out.Instrs)
			out.Instrs = append(out.Instrs, idx)

		default:
			q.flush(&out.Instrs)
			out.Instrs = append(out.Instrs, idx)
		}
	}
	q.flush(&out.Instrs)

	return out
}

func copyOpFor(stor, load bytecode.Opcode) bytecode.Opcode {
	switch {
	case stor == bytecode.STOR_INT_VAR && load == bytecode.LOAD_INT_VAR:
		return bytecode.COPY_INT_VAR
	case stor == bytecode.STOR_FLOAT_VAR && load == bytecode.LOAD_FLOAT_VAR:
		return bytecode.COPY_FLOAT_VAR
	default:
		return bytecode.NOP
	}
}
