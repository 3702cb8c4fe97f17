// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "objeckvm/internal/bytecode"

// DeadStoreRemoval removes an immediate
// `LOAD_INT_VAR(s,LOCAL); STOR_INT_VAR(s,LOCAL)` pair: a value pushed
// and written straight back to the slot it came from, with no
// interleaving instruction, has no effect. Stores to INSTANCE/CLASS
// scope, and stores preceded by a load of a different slot, are left
// untouched. Grounded on
// ItermediateOptimizer::RemoveUselessInstructions in optimization.cpp.
// Always runs, regardless of optimization level (spec.md §4.1).
func DeadStoreRemoval(m *bytecode.Method, in *bytecode.Block) *bytecode.Block {
	out := newBlock(in.ID)
	var q deferred

	for _, idx := range in.Instrs {
		instr := m.Instr(idx)
		switch instr.Op {
		case bytecode.LOAD_INT_VAR:
			if instr.Context() == bytecode.LOCAL {
				q.push(idx)
			} else {
				q.flush(&out.Instrs)
				out.Instrs = append(out.Instrs, idx)
			}

		case bytecode.STOR_INT_VAR:
			if instr.Context() == bytecode.LOCAL && !q.empty() &&
				m.Instr(q.top()).Op == bytecode.LOAD_INT_VAR {
				load := m.Instr(q.top())
				if instr.Operand == load.Operand {
					q.popTop()
				} else {
					q.flush(&out.Instrs)
					out.Instrs = append(out.Instrs, idx)
				}
			} else {
				q.flush(&out.Instrs)
				out.Instrs = append(out.Instrs, idx)
			}

		default:
			q.flush(&out.Instrs)
			out.Instrs = append(out.Instrs, idx)
		}
	}
	q.flush(&out.Instrs)

	return out
}
