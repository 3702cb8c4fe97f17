// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "objeckvm/internal/bytecode"

// JumpCleanup fuses `JMP L; LBL L` into `LBL L`. An unconditional jump
// to the label immediately following it is always dead. Grounded on
// ItermediateOptimizer::CleanJumps in optimization.cpp. Always runs,
// regardless of optimization level (spec.md §4.1).
func JumpCleanup(m *bytecode.Method, in *bytecode.Block) *bytecode.Block {
	out := newBlock(in.ID)
	var q deferred

	for _, idx := range in.Instrs {
		instr := m.Instr(idx)
		switch instr.Op {
		case bytecode.JMP:
			q.push(idx)

		case bytecode.LBL:
			if !q.empty() {
				jmp := m.Instr(q.top())
				if jmp.Op == bytecode.JMP && jmp.Operand == instr.Operand && jmp.Operand2 < 0 {
					q.popTop()
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
