// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "objeckvm/internal/bytecode"

// FloatFold is IntFold's float counterpart: collapses
// `LOAD_FLOAT_LIT a; LOAD_FLOAT_LIT b; <op>` for the opcodes in
// bytecode.FloatBinaryOps. Runs at optimization level >= 1. Grounded
// on ItermediateOptimizer::FoldFloatConstants/CalculateFloatFold in
// optimization.cpp.
//
// Unlike IntFold, float division by zero is not a special case: IEEE
// 754 division defines +Inf/-Inf/NaN results, matching what the
// unfolded DIV_FLOAT would compute at runtime, so folding it is safe.
func FloatFold(m *bytecode.Method, in *bytecode.Block) *bytecode.Block {
	out := newBlock(in.ID)
	var q deferred

	for _, idx := range in.Instrs {
		instr := m.Instr(idx)
		switch {
		case instr.Op == bytecode.LOAD_FLOAT_LIT:
			q.push(idx)

		case bytecode.FloatBinaryOps[instr.Op] && q.size() >= 2:
			rhs := m.Instr(q.nth(0))
			lhs := m.Instr(q.nth(1))
			if rhs.Op != bytecode.LOAD_FLOAT_LIT || lhs.Op != bytecode.LOAD_FLOAT_LIT {
				q.flush(&out.Instrs)
				out.Instrs = append(out.Instrs, idx)
				continue
			}
			result := foldFloat(instr.Op, lhs.Operand4, rhs.Operand4)
			q.popTop()
			q.popTop()
			folded := m.NewInstruction(bytecode.Instruction{
				Op:       bytecode.LOAD_FLOAT_LIT,
				Operand4: result,
				Line:     instr.Line,
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

func foldFloat(op bytecode.Opcode, a, b float64) float64 {
	switch op {
	case bytecode.ADD_FLOAT:
		return a + b
	case bytecode.SUB_FLOAT:
		return a - b
	case bytecode.MUL_FLOAT:
		return a * b
	case bytecode.DIV_FLOAT:
		return a / b
	default:
		return 0
	}
}
