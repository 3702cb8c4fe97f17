// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"objeckvm/internal/bytecode"
)

// singleBlockMethod builds a one-block method from a literal
// instruction list, the shape every loaded method starts as before a
// RTRN triggers the loader's block split.
func singleBlockMethod(id int, instrs ...bytecode.Instruction) *bytecode.Method {
	m := &bytecode.Method{ID: id}
	blk := &bytecode.Block{ID: 0}
	for _, instr := range instrs {
		blk.Instrs = append(blk.Instrs, m.NewInstruction(instr))
	}
	m.Blocks = []*bytecode.Block{blk}
	m.RebuildLabels()
	return m
}

func TestJumpCleanupRemovesDeadUnconditionalJump(t *testing.T) {
	m := singleBlockMethod(1,
		bytecode.Instruction{Op: bytecode.JMP, Operand: 0, Operand2: -1},
		bytecode.Instruction{Op: bytecode.LBL, Operand: 0},
		bytecode.Instruction{Op: bytecode.RTRN},
	)
	out := JumpCleanup(m, m.Blocks[0])
	require.Equal(t, []bytecode.Opcode{bytecode.LBL, bytecode.RTRN}, opsOf(m, out))
}

func TestJumpCleanupKeepsConditionalJump(t *testing.T) {
	m := singleBlockMethod(1,
		bytecode.Instruction{Op: bytecode.JMP, Operand: 0, Operand2: int64(bytecode.EQL_INT)},
		bytecode.Instruction{Op: bytecode.LBL, Operand: 0},
		bytecode.Instruction{Op: bytecode.RTRN},
	)
	out := JumpCleanup(m, m.Blocks[0])
	require.Equal(t, []bytecode.Opcode{bytecode.JMP, bytecode.LBL, bytecode.RTRN}, opsOf(m, out))
}

func TestDeadStoreRemovalDropsRoundTrip(t *testing.T) {
	m := singleBlockMethod(1,
		bytecode.Instruction{Op: bytecode.LOAD_INT_VAR, Operand: 3, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.STOR_INT_VAR, Operand: 3, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.RTRN},
	)
	out := DeadStoreRemoval(m, m.Blocks[0])
	require.Equal(t, []bytecode.Opcode{bytecode.RTRN}, opsOf(m, out))
}

func TestDeadStoreRemovalKeepsDifferentSlot(t *testing.T) {
	m := singleBlockMethod(1,
		bytecode.Instruction{Op: bytecode.LOAD_INT_VAR, Operand: 3, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.STOR_INT_VAR, Operand: 4, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.RTRN},
	)
	out := DeadStoreRemoval(m, m.Blocks[0])
	require.Equal(t, []bytecode.Opcode{bytecode.LOAD_INT_VAR, bytecode.STOR_INT_VAR, bytecode.RTRN}, opsOf(m, out))
}

func TestIntFoldCollapsesConstants(t *testing.T) {
	m := singleBlockMethod(1,
		bytecode.Instruction{Op: bytecode.LOAD_INT_LIT, Operand: 2},
		bytecode.Instruction{Op: bytecode.LOAD_INT_LIT, Operand: 3},
		bytecode.Instruction{Op: bytecode.ADD_INT},
		bytecode.Instruction{Op: bytecode.RTRN},
	)
	out := IntFold(m, m.Blocks[0])
	require.Equal(t, []bytecode.Opcode{bytecode.LOAD_INT_LIT, bytecode.RTRN}, opsOf(m, out))
	require.EqualValues(t, 5, m.Instr(out.Instrs[0]).Operand)
}

func TestIntFoldRefusesDivideByZero(t *testing.T) {
	m := singleBlockMethod(1,
		bytecode.Instruction{Op: bytecode.LOAD_INT_LIT, Operand: 5},
		bytecode.Instruction{Op: bytecode.LOAD_INT_LIT, Operand: 0},
		bytecode.Instruction{Op: bytecode.DIV_INT},
		bytecode.Instruction{Op: bytecode.RTRN},
	)
	out := IntFold(m, m.Blocks[0])
	require.Equal(t,
		[]bytecode.Opcode{bytecode.LOAD_INT_LIT, bytecode.LOAD_INT_LIT, bytecode.DIV_INT, bytecode.RTRN},
		opsOf(m, out))
}

func TestFloatFoldCollapsesConstants(t *testing.T) {
	m := singleBlockMethod(1,
		bytecode.Instruction{Op: bytecode.LOAD_FLOAT_LIT, Operand4: 2.5},
		bytecode.Instruction{Op: bytecode.LOAD_FLOAT_LIT, Operand4: 1.5},
		bytecode.Instruction{Op: bytecode.ADD_FLOAT},
		bytecode.Instruction{Op: bytecode.RTRN},
	)
	out := FloatFold(m, m.Blocks[0])
	require.Equal(t, []bytecode.Opcode{bytecode.LOAD_FLOAT_LIT, bytecode.RTRN}, opsOf(m, out))
	require.InDelta(t, 4.0, m.Instr(out.Instrs[0]).Operand4, 1e-9)
}

func TestStrengthReductionLiteralFirst(t *testing.T) {
	m := singleBlockMethod(1,
		bytecode.Instruction{Op: bytecode.LOAD_INT_LIT, Operand: 8},
		bytecode.Instruction{Op: bytecode.LOAD_INT_VAR, Operand: 0, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.MUL_INT},
		bytecode.Instruction{Op: bytecode.RTRN},
	)
	out := StrengthReduction(m, m.Blocks[0])
	require.Equal(t, []bytecode.Opcode{bytecode.LOAD_INT_VAR, bytecode.SHL_INT, bytecode.RTRN}, opsOf(m, out))
	require.EqualValues(t, 3, m.Instr(out.Instrs[1]).Operand)
}

func TestStrengthReductionVariableFirst(t *testing.T) {
	m := singleBlockMethod(1,
		bytecode.Instruction{Op: bytecode.LOAD_INT_VAR, Operand: 0, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.LOAD_INT_LIT, Operand: 256},
		bytecode.Instruction{Op: bytecode.MUL_INT},
		bytecode.Instruction{Op: bytecode.RTRN},
	)
	out := StrengthReduction(m, m.Blocks[0])
	require.Equal(t, []bytecode.Opcode{bytecode.LOAD_INT_VAR, bytecode.SHL_INT, bytecode.RTRN}, opsOf(m, out))
	require.EqualValues(t, 8, m.Instr(out.Instrs[1]).Operand)
}

func TestStrengthReductionIgnoresNonPowerOfTwo(t *testing.T) {
	m := singleBlockMethod(1,
		bytecode.Instruction{Op: bytecode.LOAD_INT_VAR, Operand: 0, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.LOAD_INT_LIT, Operand: 7},
		bytecode.Instruction{Op: bytecode.MUL_INT},
		bytecode.Instruction{Op: bytecode.RTRN},
	)
	out := StrengthReduction(m, m.Blocks[0])
	require.Equal(t,
		[]bytecode.Opcode{bytecode.LOAD_INT_VAR, bytecode.LOAD_INT_LIT, bytecode.MUL_INT, bytecode.RTRN},
		opsOf(m, out))
}

func TestStrengthReductionDivisorLiteral(t *testing.T) {
	m := singleBlockMethod(1,
		bytecode.Instruction{Op: bytecode.LOAD_INT_VAR, Operand: 0, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.LOAD_INT_LIT, Operand: 8},
		bytecode.Instruction{Op: bytecode.DIV_INT},
		bytecode.Instruction{Op: bytecode.RTRN},
	)
	out := StrengthReduction(m, m.Blocks[0])
	require.Equal(t, []bytecode.Opcode{bytecode.LOAD_INT_VAR, bytecode.SHR_INT, bytecode.RTRN}, opsOf(m, out))
	require.EqualValues(t, 3, m.Instr(out.Instrs[1]).Operand)
}

func TestStrengthReductionIgnoresLiteralDividend(t *testing.T) {
	m := singleBlockMethod(1,
		bytecode.Instruction{Op: bytecode.LOAD_INT_LIT, Operand: 8},
		bytecode.Instruction{Op: bytecode.LOAD_INT_VAR, Operand: 0, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.DIV_INT},
		bytecode.Instruction{Op: bytecode.RTRN},
	)
	out := StrengthReduction(m, m.Blocks[0])
	require.Equal(t,
		[]bytecode.Opcode{bytecode.LOAD_INT_LIT, bytecode.LOAD_INT_VAR, bytecode.DIV_INT, bytecode.RTRN},
		opsOf(m, out))
}

func TestCopyPropagationFusesStoreAndReload(t *testing.T) {
	m := singleBlockMethod(1,
		bytecode.Instruction{Op: bytecode.STOR_INT_VAR, Operand: 2, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.LOAD_INT_VAR, Operand: 2, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.RTRN},
	)
	out := CopyPropagation(m, m.Blocks[0])
	require.Equal(t, []bytecode.Opcode{bytecode.COPY_INT_VAR, bytecode.RTRN}, opsOf(m, out))
}

func TestCopyPropagationLeavesUnrelatedStoreAlone(t *testing.T) {
	m := singleBlockMethod(1,
		bytecode.Instruction{Op: bytecode.STOR_INT_VAR, Operand: 2, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.STOR_INT_VAR, Operand: 3, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.LOAD_INT_VAR, Operand: 3, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.RTRN},
	)
	out := CopyPropagation(m, m.Blocks[0])
	require.Equal(t,
		[]bytecode.Opcode{bytecode.STOR_INT_VAR, bytecode.COPY_INT_VAR, bytecode.RTRN},
		opsOf(m, out))
}

// buildGetterProgram constructs a two-class-free program with one
// class containing a caller method and a trivial instance getter, the
// S6 scenario from spec.md §8: `int get() { return this.x; }`, called
// from another method as `obj.get(); return;`.
func buildGetterProgram() (*bytecode.Program, *bytecode.Method) {
	getter := singleBlockMethod(2,
		bytecode.Instruction{Op: bytecode.LOAD_INST_MEM},
		bytecode.Instruction{Op: bytecode.LOAD_INT_VAR, Operand: 0, Operand2: int64(bytecode.INSTANCE)},
		bytecode.Instruction{Op: bytecode.RTRN},
	)

	caller := singleBlockMethod(1,
		bytecode.Instruction{Op: bytecode.MTHD_CALL, Operand: 5, Operand2: 2},
		bytecode.Instruction{Op: bytecode.RTRN},
	)

	cls := &bytecode.Class{ID: 5, Name: "Widget", Methods: []*bytecode.Method{caller, getter}}
	p := &bytecode.Program{Classes: []*bytecode.Class{cls}}
	return p, caller
}

func TestSetterGetterInlineSplicesGetterBody(t *testing.T) {
	p, caller := buildGetterProgram()
	out := SetterGetterInline(p)(caller, caller.Blocks[0])
	require.Equal(t, []bytecode.Opcode{bytecode.LOAD_INT_VAR, bytecode.RTRN}, opsOf(caller, out))
	spliced := caller.Instr(out.Instrs[0])
	require.Equal(t, bytecode.INSTANCE, spliced.Context())
	require.EqualValues(t, 0, spliced.Operand)
}

func TestCanInlineSetterGetterRejectsMultiBlockCallee(t *testing.T) {
	callee := singleBlockMethod(3,
		bytecode.Instruction{Op: bytecode.LOAD_INST_MEM},
		bytecode.Instruction{Op: bytecode.LOAD_INT_VAR, Operand: 0, Operand2: int64(bytecode.INSTANCE)},
		bytecode.Instruction{Op: bytecode.RTRN},
	)
	callee.Blocks = append(callee.Blocks, &bytecode.Block{ID: 1})
	require.Equal(t, statusNotInlinable, CanInlineSetterGetter(callee))
}

func TestMethodInlineSplicesAddBody(t *testing.T) {
	// int add(int a, int b) { return a+b; } as a single straight-line
	// block, called as `x.add(); return;`.
	callee := singleBlockMethod(2,
		bytecode.Instruction{Op: bytecode.LOAD_INT_VAR, Operand: 0, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.LOAD_INT_VAR, Operand: 1, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.ADD_INT},
		bytecode.Instruction{Op: bytecode.RTRN},
	)
	callee.LocalFrameSize = 2

	caller := singleBlockMethod(1,
		bytecode.Instruction{Op: bytecode.MTHD_CALL, Operand: 5, Operand2: 2},
		bytecode.Instruction{Op: bytecode.RTRN},
	)
	caller.LocalFrameSize = 1

	cls := &bytecode.Class{ID: 5, Name: "Widget", Methods: []*bytecode.Method{caller, callee}}
	p := &bytecode.Program{Classes: []*bytecode.Class{cls}}

	require.True(t, CanInlineMethod(caller, callee))
	inlineIntoMethod(p, caller)

	require.Equal(t,
		[]bytecode.Opcode{bytecode.LOAD_INT_VAR, bytecode.LOAD_INT_VAR, bytecode.ADD_INT, bytecode.RTRN},
		opsOf(caller, caller.Blocks[0]))
	require.Greater(t, caller.LocalFrameSize, 1)
}

func TestMethodInlineRejectsMultiReturnCallee(t *testing.T) {
	callee := singleBlockMethod(2,
		bytecode.Instruction{Op: bytecode.LOAD_INT_LIT, Operand: 1},
		bytecode.Instruction{Op: bytecode.RTRN},
	)
	callee.Blocks = append(callee.Blocks, &bytecode.Block{ID: 1,
		Instrs: []int{
			callee.NewInstruction(bytecode.Instruction{Op: bytecode.LOAD_INT_LIT, Operand: 2}),
			callee.NewInstruction(bytecode.Instruction{Op: bytecode.RTRN}),
		},
	})
	caller := singleBlockMethod(1, bytecode.Instruction{Op: bytecode.RTRN})
	require.False(t, CanInlineMethod(caller, callee))
}

func opsOf(m *bytecode.Method, blk *bytecode.Block) []bytecode.Opcode {
	var out []bytecode.Opcode
	for _, idx := range blk.Instrs {
		out = append(out, m.Instr(idx).Op)
	}
	return out
}
