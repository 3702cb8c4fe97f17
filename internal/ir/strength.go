// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "objeckvm/internal/bytecode"

// StrengthReduction rewrites multiplication or division by a
// power-of-two literal in [2,256] into a shift: `LIT k; X; MUL_INT` or
// `X; LIT k; MUL_INT` both become `X; SHL_INT s` where 2^s == k, since
// multiplication is commutative. DIV_INT only reduces in the
// `X; LIT k; DIV_INT` order -- the literal must be the divisor (the
// top-of-stack operand, popped first by lowerDivMod) -- since
// `LIT k; X; DIV_INT` computes k/X, not reducible to a shift of X.
// Runs at optimization level >= 2. Grounded on
// ItermediateOptimizer::StrengthReduction/CalculateReduction/
// ApplyReduction/AddBackReduction in optimization.cpp (MUL_INT and
// DIV_INT share CalculateReduction there too).
func StrengthReduction(m *bytecode.Method, in *bytecode.Block) *bytecode.Block {
	out := newBlock(in.ID)
	var q deferred

	for _, idx := range in.Instrs {
		instr := m.Instr(idx)
		switch {
		case instr.Op == bytecode.LOAD_INT_LIT, instr.Op == bytecode.LOAD_INT_VAR:
			q.push(idx)

		case (instr.Op == bytecode.MUL_INT || instr.Op == bytecode.DIV_INT) && q.size() >= 2:
			a := m.Instr(q.nth(1))
			b := m.Instr(q.nth(0))

			var litShift, other int
			switch {
			case instr.Op == bytecode.MUL_INT && a.Op == bytecode.LOAD_INT_LIT:
				litShift, other = shiftFor(a.Operand), q.nth(0)
			case b.Op == bytecode.LOAD_INT_LIT:
				litShift, other = shiftFor(b.Operand), q.nth(1)
			default:
				litShift = -1
			}

			if litShift < 0 {
				q.flush(&out.Instrs)
				out.Instrs = append(out.Instrs, idx)
				continue
			}

			q.popTop()
			q.popTop()
			q.flush(&out.Instrs)
			shiftOp := bytecode.SHL_INT
			if instr.Op == bytecode.DIV_INT {
				shiftOp = bytecode.SHR_INT
			}
			shift := m.NewInstruction(bytecode.Instruction{
				Op:      shiftOp,
				Operand: int64(litShift),
				Line:    instr.Line,
			})
			out.Instrs = append(out.Instrs, other, shift)

		default:
			q.flush(&out.Instrs)
			out.Instrs = append(out.Instrs, idx)
		}
	}
	q.flush(&out.Instrs)

	return out
}

// shiftFor returns s such that 1<<s == k, for k a power of two in
// [2,256], or -1 if k is out of that range.
func shiftFor(k int64) int {
	for s := 1; s <= 8; s++ {
		if int64(1)<<uint(s) == k {
			return s
		}
	}
	return -1
}
