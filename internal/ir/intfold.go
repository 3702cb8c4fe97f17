// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "objeckvm/internal/bytecode"

// IntFold collapses `LOAD_INT_LIT a; LOAD_INT_LIT b; <op>` into a
// single `LOAD_INT_LIT (a op b)` for the opcodes in
// bytecode.IntBinaryOps. Runs at optimization level >= 1. Grounded on
// ItermediateOptimizer::FoldIntConstants/CalculateIntFold in
// optimization.cpp.
//
// DIV_INT and MOD_INT by a literal zero are left unfolded rather than
// reproduced with Go's divide-by-zero panic -- the original VM traps
// at runtime on this case, and folding it away at compile time would
// silently turn a reachable runtime trap into a build-time crash of
// the optimizer itself.
func IntFold(m *bytecode.Method, in *bytecode.Block) *bytecode.Block {
	out := newBlock(in.ID)
	var q deferred

	for _, idx := range in.Instrs {
		instr := m.Instr(idx)
		switch {
		case instr.Op == bytecode.LOAD_INT_LIT:
			q.push(idx)

		case bytecode.IntBinaryOps[instr.Op] && q.size() >= 2:
			rhs := m.Instr(q.nth(0))
			lhs := m.Instr(q.nth(1))
			if rhs.Op != bytecode.LOAD_INT_LIT || lhs.Op != bytecode.LOAD_INT_LIT {
				q.flush(&out.Instrs)
				out.Instrs = append(out.Instrs, idx)
				continue
			}
			if (instr.Op == bytecode.DIV_INT || instr.Op == bytecode.MOD_INT) && rhs.Operand == 0 {
				q.flush(&out.Instrs)
				out.Instrs = append(out.Instrs, idx)
				continue
			}
			result, ok := foldInt(instr.Op, lhs.Operand, rhs.Operand)
			if !ok {
				q.flush(&out.Instrs)
				out.Instrs = append(out.Instrs, idx)
				continue
			}
			q.popTop()
			q.popTop()
			folded := m.NewInstruction(bytecode.Instruction{
				Op:      bytecode.LOAD_INT_LIT,
				Operand: result,
				Line:    instr.Line,
			})
			q.push(folded)

		default:
			q.flush(&out.Instrs)
			out.Instrs = append(out.Instrs, idx)
		}
	}
	q.flush(&out.Instrs)

	return out
}

func foldInt(op bytecode.Opcode, a, b int64) (int64, bool) {
	switch op {
	case bytecode.ADD_INT:
		return a + b, true
	case bytecode.SUB_INT:
		return a - b, true
	case bytecode.MUL_INT:
		return a * b, true
	case bytecode.DIV_INT:
		return a / b, true
	case bytecode.MOD_INT:
		return a % b, true
	case bytecode.BIT_AND_INT:
		return a & b, true
	case bytecode.BIT_OR_INT:
		return a | b, true
	case bytecode.BIT_XOR_INT:
		return a ^ b, true
	default:
		return 0, false
	}
}
