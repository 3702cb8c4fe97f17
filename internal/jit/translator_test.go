// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import (
	"testing"
	"unsafe"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"objeckvm/internal/bytecode"
	"objeckvm/internal/runtime"
)

// singleBlockMethod mirrors internal/ir's test helper of the same
// name: a one-block method built from a literal instruction list.
func singleBlockMethod(id, paramCount int, ret bytecode.ReturnType, instrs ...bytecode.Instruction) *bytecode.Method {
	m := &bytecode.Method{ID: id, ParamCount: paramCount, ReturnType: ret, LocalFrameSize: paramCount}
	blk := &bytecode.Block{ID: 0}
	for _, instr := range instrs {
		blk.Instrs = append(blk.Instrs, m.NewInstruction(instr))
	}
	m.Blocks = []*bytecode.Block{blk}
	m.RebuildLabels()
	return m
}

// callCompiled invokes a compiled method's entry point. Implemented in
// trampoline_amd64.s: loads the four arguments into rdi/rsi/rdx/rcx
// (translator.go's entry convention) and calls code.
func callCompiled(code uintptr, instanceBase, paramsPtr, opStackBase, retSlot int64) int64

func compileAndRun(t *testing.T, m *bytecode.Method, params []int64) int64 {
	t.Helper()
	services := runtime.NewServices(logrus.NewEntry(logrus.New()))
	code, err := Compile(m, &bytecode.Class{ID: 0, Methods: []*bytecode.Method{m}}, &bytecode.Program{Classes: []*bytecode.Class{{ID: 0, Methods: []*bytecode.Method{m}}}}, services)
	require.NoError(t, err)
	require.NotEmpty(t, code)

	alloc := &Allocator{}
	unit, err := alloc.Allocate(code)
	require.NoError(t, err)
	defer unit.Release()

	var opStack [8]int64
	var retSlot int64
	paramsPtr := int64(0)
	if len(params) > 0 {
		paramsPtr = int64(uintptr(unsafe.Pointer(&params[0])))
	}
	result := callCompiled(unit.Addr(), 0, paramsPtr, int64(uintptr(unsafe.Pointer(&opStack[0]))), int64(uintptr(unsafe.Pointer(&retSlot))))
	require.Equal(t, retSlot, result, "rax/xmm0 result must match the value written through the return slot")
	return result
}

// TestCompileAddMethodEndToEnd is the JIT end-to-end scenario spec.md
// §8 calls for: compile `int add(int a,int b){return a+b;}` and
// invoke it with (2,3), expecting 5.
func TestCompileAddMethodEndToEnd(t *testing.T) {
	m := singleBlockMethod(1, 2, bytecode.ReturnInt,
		bytecode.Instruction{Op: bytecode.LOAD_INT_VAR, Operand: 0, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.LOAD_INT_VAR, Operand: 1, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.ADD_INT},
		bytecode.Instruction{Op: bytecode.RTRN},
	)

	got := compileAndRun(t, m, []int64{2, 3})
	require.Equal(t, int64(5), got)
}

func TestCompileSubMethodEndToEnd(t *testing.T) {
	m := singleBlockMethod(2, 2, bytecode.ReturnInt,
		bytecode.Instruction{Op: bytecode.LOAD_INT_VAR, Operand: 0, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.LOAD_INT_VAR, Operand: 1, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.SUB_INT},
		bytecode.Instruction{Op: bytecode.RTRN},
	)

	got := compileAndRun(t, m, []int64{10, 4})
	require.Equal(t, int64(6), got)
}

func TestCompileBranchlessComparisonMaterializesBoolean(t *testing.T) {
	m := singleBlockMethod(3, 2, bytecode.ReturnInt,
		bytecode.Instruction{Op: bytecode.LOAD_INT_VAR, Operand: 0, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.LOAD_INT_VAR, Operand: 1, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.LES_INT},
		bytecode.Instruction{Op: bytecode.RTRN},
	)

	got := compileAndRun(t, m, []int64{2, 3})
	require.Equal(t, int64(1), got)
}

func TestCompileFusedComparisonBranch(t *testing.T) {
	m := singleBlockMethod(4, 1, bytecode.ReturnInt,
		bytecode.Instruction{Op: bytecode.LOAD_INT_VAR, Operand: 0, Operand2: int64(bytecode.LOCAL)},
		bytecode.Instruction{Op: bytecode.LOAD_INT_LIT, Operand: 0},
		bytecode.Instruction{Op: bytecode.GTR_INT},
		bytecode.Instruction{Op: bytecode.JMP, Operand: 0, Operand2: int64(bytecode.GTR_INT)},
		bytecode.Instruction{Op: bytecode.LOAD_INT_LIT, Operand: -1},
		bytecode.Instruction{Op: bytecode.RTRN},
		bytecode.Instruction{Op: bytecode.LBL, Operand: 0},
		bytecode.Instruction{Op: bytecode.LOAD_INT_LIT, Operand: 1},
		bytecode.Instruction{Op: bytecode.RTRN},
	)

	require.Equal(t, int64(1), compileAndRun(t, m, []int64{5}))
	require.Equal(t, int64(-1), compileAndRun(t, m, []int64{-5}))
}

func TestCompileRejectsUnsupportedOpcode(t *testing.T) {
	m := singleBlockMethod(5, 0, bytecode.ReturnNone,
		bytecode.Instruction{Op: bytecode.Opcode(-99)},
	)
	services := runtime.NewServices(nil)
	_, err := Compile(m, &bytecode.Class{}, &bytecode.Program{}, services)
	require.Error(t, err)
}
