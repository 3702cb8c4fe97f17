// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import (
	"math"

	"github.com/pkg/errors"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"objeckvm/internal/bytecode"
)

// valueKind tags a symbolic working-stack entry (spec.md §4.5).
type valueKind int

const (
	valImm valueKind = iota
	valReg
	valMem
)

// value is the translator's working-stack entry: an unevaluated
// literal, a register-resident value, or a frame-memory location.
type value struct {
	kind    valueKind
	i       int64   // valImm (int) / valMem offset from rbp
	f       float64 // valImm (float)
	isFloat bool
	reg     int16 // valReg
	isXMM   bool  // valReg
}

// ServiceTable resolves a runtime callback's entry point address for
// an IR opcode the translator can't lower directly (spec.md §4.6).
// internal/runtime.Services implements it; jit depends only on the
// interface to avoid an import cycle.
type ServiceTable interface {
	ServiceAddr(op bytecode.Opcode) (int64, bool)
}

// Frame layout (offsets from rbp, all this package's own convention --
// spec.md §4.5 only names the symbolic Mem(offset_from_rbp) contract,
// not the concrete layout, so this is a translator-internal decision
// recorded in DESIGN.md):
//
//	-8..-32    four ABI-pinned slots: instance base, params ptr,
//	           op-stack base, return-value slot (ptrs/values the
//	           caller passed in rdi/rsi/rdx/rcx, spilled here so the
//	           register pool is free to use those regs)
//	-40..      one 8-byte slot per local/param variable
//	-256..     TMP_REG_0..5 / TMP_XMM_0..2 spill area (bridge.go)
//
// All of the above lie strictly within the first frameSize bytes
// below rbp, which Prolog reserves before it pushes the callee-saved
// registers (prolog.go); the save area therefore starts at
// rbp-frameSize-8 and below, never overlapping this layout. A method
// whose LocalFrameSize would reach past the spill area fails to
// compile; see frameSize below.
const (
	abiInstanceOff = -8
	abiParamsOff   = -16
	abiOpStackOff  = -24
	abiRetSlotOff  = -32

	localsBase = -32
	frameSize  = 512 // generous fixed frame; see DESIGN.md
)

func localOffset(slot int64) int64 { return localsBase - 8*(slot+1) }
func fieldOffset(slot int64) int64 { return 8 * slot }

// Translator lowers one method's IR into a sequence of Encoder calls.
// Grounded throughout on JitCompilerIA64::ProcessInstructions in
// original_source/src/vm/jit/amd64/jit_amd_lp64.cpp, generalized from
// its linked-list working_stack to a Go slice of value.
type Translator struct {
	enc      *Encoder
	pool     *RegPool
	method   *bytecode.Method
	class    *bytecode.Class
	program  *bytecode.Program
	services ServiceTable

	stack []value
	flat  []int // flattened arena indices, method's blocks concatenated in order
}

// Compile lowers method into position-independent machine code, ready
// for Allocator.Allocate. Returns an error (CompileAbort, spec.md §7)
// if the register pool and spill area are exhausted or a label is
// never resolved; the caller is expected to fall back to the
// interpreter in either case.
func Compile(method *bytecode.Method, class *bytecode.Class, program *bytecode.Program, services ServiceTable) ([]byte, error) {
	if n := int64(method.LocalFrameSize); n > 0 && localOffset(n-1) <= spillBase {
		return nil, errors.Errorf("jit: local frame of %d slots reaches the spill area", n)
	}
	enc, err := NewEncoder()
	if err != nil {
		return nil, err
	}
	t := &Translator{
		enc: enc, pool: NewRegPool(),
		method: method, class: class, program: program, services: services,
	}
	for _, blk := range method.Blocks {
		t.flat = append(t.flat, blk.Instrs...)
	}

	enc.Prolog(frameSize)
	t.spillEntryArgs()
	if err := t.unpackParams(); err != nil {
		return nil, err
	}

	for i := 0; i < len(t.flat); i++ {
		instr := method.Instr(t.flat[i])
		consumed, err := t.lower(instr, i)
		if err != nil {
			return nil, err
		}
		i += consumed
	}

	if err := t.emitTrapStub(); err != nil {
		return nil, err
	}
	return enc.Assemble()
}

// emitTrapStub appends a shared null-dereference/bounds trampoline at
// the tail of the method's code, the target of every Jz(trapStubLabel)
// the translator emitted. It calls the runtime's TRAP service with a
// reserved negative instruction id the runtime recognizes as "no
// matching bytecode TRAP instruction, raise generically". No registers
// are preserved across that call; when it returns, the stub runs the
// epilog and returns to the compiled method's caller.
func (t *Translator) emitTrapStub() error {
	addr, ok := t.services.ServiceAddr(bytecode.TRAP)
	if !ok {
		return errors.New("jit: no TRAP runtime service registered for null-check stub")
	}
	t.enc.Mark(trapStubLabel)
	t.enc.MovRegImm(x86.REG_DI, -1)
	t.enc.MovRegImm(x86.REG_AX, addr)
	t.enc.CallReg(x86.REG_AX)
	t.enc.Epilog(frameSize)
	return nil
}

// spillEntryArgs copies the four SysV argument registers a compiled
// method is entered with (instance base, params ptr, op-stack base,
// return-value slot -- rdi/rsi/rdx/rcx) into their ABI-pinned frame
// slots. Prolog's pushes don't clobber their sources, so the incoming
// values are still live in those registers at this point; spilling
// them here frees the register pool to hand rdi/rsi/rdx/rcx out like
// any other GPR for the rest of the method.
func (t *Translator) spillEntryArgs() {
	t.enc.MovMemReg(x86.REG_BP, abiInstanceOff, x86.REG_DI)
	t.enc.MovMemReg(x86.REG_BP, abiParamsOff, x86.REG_SI)
	t.enc.MovMemReg(x86.REG_BP, abiOpStackOff, x86.REG_DX)
	t.enc.MovMemReg(x86.REG_BP, abiRetSlotOff, x86.REG_CX)
}

// unpackParams copies the caller-supplied parameter words (reached
// indirectly through the ABI-pinned params-pointer slot) into the
// method's local variable slots 0..ParamCount-1, the inverse of
// lowerService's "flush params" step.
func (t *Translator) unpackParams() error {
	if t.method.ParamCount == 0 {
		return nil
	}
	ptr, err := t.pool.AcquireGPR(false)
	if err != nil {
		return errors.Wrap(err, "jit: unpacking params")
	}
	t.enc.MovRegMem(ptr, x86.REG_BP, abiParamsOff)

	for i := 0; i < t.method.ParamCount; i++ {
		v, err := t.pool.AcquireGPR(false)
		if err != nil {
			t.pool.Release(ptr)
			return errors.Wrap(err, "jit: unpacking params")
		}
		t.enc.MovRegMem(v, ptr, int64(i)*8)
		t.enc.MovMemReg(x86.REG_BP, localOffset(int64(i)), v)
		t.pool.Release(v)
	}
	t.pool.Release(ptr)
	return nil
}

func (t *Translator) push(v value)  { t.stack = append(t.stack, v) }
func (t *Translator) pop() value {
	v := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	return v
}

// releaseValue returns a value's register to the pool, if it holds
// one. AX/DX are never pool-managed (reserved for cdq/idiv) so they
// are silently dropped here rather than handed back.
func (t *Translator) releaseValue(v value) {
	if v.kind != valReg || v.reg == x86.REG_AX || v.reg == x86.REG_DX {
		return
	}
	t.pool.Release(v.reg)
}

// materialize loads v into a fresh GPR (or, for valReg, returns its
// existing register unchanged) and returns the register handle. The
// caller owns releasing it once done, except when the returned
// register IS v's own (valReg case), which the caller already owns.
func (t *Translator) materialize(v value) (int16, error) {
	switch v.kind {
	case valReg:
		return v.reg, nil
	case valImm:
		r, err := t.pool.AcquireGPR(false)
		if err != nil {
			return 0, errors.Wrap(err, "jit: materializing immediate")
		}
		t.enc.MovRegImm(r, v.i)
		return r, nil
	default: // valMem
		r, err := t.pool.AcquireGPR(false)
		if err != nil {
			return 0, errors.Wrap(err, "jit: materializing memory operand")
		}
		t.enc.MovRegMem(r, x86.REG_BP, v.i)
		return r, nil
	}
}

func (t *Translator) materializeXMM(v value) (int16, error) {
	if v.kind == valReg && v.isXMM {
		return v.reg, nil
	}
	r, err := t.pool.AcquireXMM()
	if err != nil {
		return 0, errors.Wrap(err, "jit: materializing float operand")
	}
	switch v.kind {
	case valImm:
		tmp, err := t.pool.AcquireGPR(false)
		if err != nil {
			return 0, errors.Wrap(err, "jit: materializing float literal")
		}
		slot := t.pool.SpillSlot()
		if slot < 0 {
			t.pool.Release(tmp)
			return 0, errors.Wrap(ErrRegPoolExhausted, "jit: materializing float literal")
		}
		t.enc.MovRegImm(tmp, int64(math.Float64bits(v.f)))
		t.enc.MovMemReg(x86.REG_BP, spillOffset(slot), tmp)
		t.enc.MovsdRegMem(r, x86.REG_BP, spillOffset(slot))
		t.pool.Release(tmp)
		t.pool.FreeSpillSlot(slot)
	case valMem:
		t.enc.MovsdRegMem(r, x86.REG_BP, v.i)
	case valReg:
		t.enc.MovsdRegReg(r, v.reg)
	}
	return r, nil
}

var intCompareCond = map[bytecode.Opcode]Cond{
	bytecode.LES_INT: CondLT, bytecode.GTR_INT: CondGT,
	bytecode.LES_EQL_INT: CondLE, bytecode.GTR_EQL_INT: CondGE,
	bytecode.EQL_INT: CondEQ, bytecode.NEQL_INT: CondNE,
}

var floatCompareCond = map[bytecode.Opcode]Cond{
	bytecode.LES_FLOAT: CondLT, bytecode.GTR_FLOAT: CondGT,
	bytecode.LES_EQL_FLOAT: CondLE, bytecode.GTR_EQL_FLOAT: CondGE,
	bytecode.EQL_FLOAT: CondEQ, bytecode.NEQL_FLOAT: CondNE,
}

// lower emits one IR instruction (or, for a fused comparison+branch
// pair, two) and returns how many extra flat-list entries it consumed
// beyond the current one (0 normally, 1 when a JMP was fused).
func (t *Translator) lower(instr bytecode.Instruction, i int) (int, error) {
	switch instr.Op {
	case bytecode.LOAD_INT_LIT:
		t.push(value{kind: valImm, i: instr.Operand})
		return 0, nil

	case bytecode.LOAD_FLOAT_LIT:
		t.push(value{kind: valImm, f: instr.Operand4, isFloat: true})
		return 0, nil

	case bytecode.LOAD_INT_VAR, bytecode.LOAD_FLOAT_VAR, bytecode.LOAD_FUNC_VAR:
		return 0, t.lowerLoadVar(instr)

	case bytecode.STOR_INT_VAR, bytecode.STOR_FLOAT_VAR, bytecode.STOR_FUNC_VAR:
		return 0, t.lowerStoreVar(instr)

	case bytecode.COPY_INT_VAR, bytecode.COPY_FLOAT_VAR:
		return 0, t.lowerCopyVar(instr)

	case bytecode.LOAD_INST_MEM:
		r, err := t.pool.AcquireGPR(false)
		if err != nil {
			return 0, errors.Wrap(err, "jit: LOAD_INST_MEM")
		}
		t.enc.MovRegMem(r, x86.REG_BP, abiInstanceOff)
		t.push(value{kind: valReg, reg: r})
		return 0, nil

	case bytecode.ADD_INT, bytecode.SUB_INT, bytecode.MUL_INT,
		bytecode.BIT_AND_INT, bytecode.BIT_OR_INT, bytecode.BIT_XOR_INT,
		bytecode.AND_INT, bytecode.OR_INT:
		return 0, t.lowerIntBinOp(instr.Op)

	case bytecode.DIV_INT, bytecode.MOD_INT:
		return 0, t.lowerDivMod(instr.Op)

	case bytecode.SHL_INT, bytecode.SHR_INT:
		return 0, t.lowerShift(instr)

	case bytecode.LES_INT, bytecode.GTR_INT, bytecode.LES_EQL_INT,
		bytecode.GTR_EQL_INT, bytecode.EQL_INT, bytecode.NEQL_INT:
		return t.lowerIntCompare(instr.Op, i)

	case bytecode.ADD_FLOAT, bytecode.SUB_FLOAT, bytecode.MUL_FLOAT, bytecode.DIV_FLOAT:
		return 0, t.lowerFloatBinOp(instr.Op)

	case bytecode.LES_FLOAT, bytecode.GTR_FLOAT, bytecode.LES_EQL_FLOAT,
		bytecode.GTR_EQL_FLOAT, bytecode.EQL_FLOAT, bytecode.NEQL_FLOAT:
		return t.lowerFloatCompare(instr.Op, i)

	case bytecode.F2I:
		return 0, t.lowerF2I()
	case bytecode.I2F:
		return 0, t.lowerI2F()
	case bytecode.FLOR_FLOAT:
		return 0, t.lowerRound(1)
	case bytecode.CEIL_FLOAT:
		return 0, t.lowerRound(2)

	case bytecode.JMP:
		if instr.Operand2 < 0 {
			t.enc.Jmp(instr.Operand)
			return 0, nil
		}
		// A conditional JMP reached directly (not fused at its
		// preceding comparison) falls back to testing the boolean
		// left on the working stack.
		v := t.pop()
		r, err := t.materialize(v)
		if err != nil {
			return 0, err
		}
		t.enc.TestRegReg(r, r)
		t.releaseValue(v)
		t.enc.Jcc(CondNE, instr.Operand)
		return 0, nil

	case bytecode.LBL:
		t.enc.Mark(instr.Operand)
		return 0, nil

	case bytecode.POP_INT, bytecode.POP_FLOAT:
		t.releaseValue(t.pop())
		return 0, nil

	case bytecode.SWAP_INT:
		a := t.pop()
		b := t.pop()
		t.push(a)
		t.push(b)
		return 0, nil

	case bytecode.RTRN:
		return 0, t.lowerReturn()

	case bytecode.MTHD_CALL, bytecode.DYN_MTHD_CALL:
		return 0, t.lowerMethodCall(instr)

	case bytecode.NEW_BYTE_ARY, bytecode.NEW_CHAR_ARY, bytecode.NEW_INT_ARY, bytecode.NEW_FLOAT_ARY:
		return 0, t.lowerService(instr.Op, instr, 1, true)
	case bytecode.NEW_OBJ_INST:
		return 0, t.lowerService(instr.Op, instr, 0, true)
	case bytecode.THREAD_JOIN, bytecode.THREAD_SLEEP:
		return 0, t.lowerService(instr.Op, instr, 1, false)
	case bytecode.CRITICAL_START, bytecode.CRITICAL_END:
		return 0, t.lowerService(instr.Op, instr, 0, false)
	case bytecode.CPY_BYTE_ARY, bytecode.CPY_CHAR_ARY, bytecode.CPY_INT_ARY, bytecode.CPY_FLOAT_ARY:
		return 0, t.lowerService(instr.Op, instr, 3, false)
	case bytecode.TRAP:
		return 0, t.lowerService(instr.Op, instr, 1, false)
	case bytecode.TRAP_RTRN:
		return 0, t.lowerService(instr.Op, instr, 1, true)
	case bytecode.OBJ_TYPE_OF:
		return 0, t.lowerService(instr.Op, instr, 1, true)
	case bytecode.OBJ_INST_CAST:
		return 0, t.lowerService(instr.Op, instr, 2, true)

	case bytecode.LOAD_BYTE_ARY_ELM, bytecode.LOAD_CHAR_ARY_ELM,
		bytecode.LOAD_INT_ARY_ELM, bytecode.LOAD_FLOAT_ARY_ELM:
		return 0, t.lowerArrayLoad(instr.Op)
	case bytecode.STOR_BYTE_ARY_ELM, bytecode.STOR_CHAR_ARY_ELM,
		bytecode.STOR_INT_ARY_ELM, bytecode.STOR_FLOAT_ARY_ELM:
		return 0, t.lowerArrayStore(instr.Op)

	case bytecode.NOP:
		return 0, nil

	default:
		return 0, errors.Errorf("jit: unsupported opcode %s", instr.Op)
	}
}

func (t *Translator) lowerLoadVar(instr bytecode.Instruction) error {
	if instr.Context() == bytecode.LOCAL {
		t.push(value{kind: valMem, i: localOffset(instr.Operand)})
		return nil
	}
	base := t.pop()
	baseReg, err := t.materialize(base)
	if err != nil {
		return err
	}
	t.enc.TestRegReg(baseReg, baseReg)
	t.enc.Jz(trapStubLabel)

	if instr.Op == bytecode.LOAD_FLOAT_VAR {
		r, err := t.pool.AcquireXMM()
		if err != nil {
			t.releaseValue(base)
			return errors.Wrap(err, "jit: LOAD_FLOAT_VAR")
		}
		t.enc.MovsdRegMem(r, baseReg, fieldOffset(instr.Operand))
		t.releaseValue(base)
		t.push(value{kind: valReg, reg: r, isXMM: true})
		return nil
	}
	t.enc.MovRegMem(baseReg, baseReg, fieldOffset(instr.Operand))
	t.push(value{kind: valReg, reg: baseReg})
	return nil
}

func (t *Translator) lowerStoreVar(instr bytecode.Instruction) error {
	v := t.pop()
	if instr.Context() == bytecode.LOCAL {
		if instr.Op == bytecode.STOR_FLOAT_VAR {
			r, err := t.materializeXMM(v)
			if err != nil {
				return err
			}
			t.enc.MovsdMemReg(x86.REG_BP, localOffset(instr.Operand), r)
			t.pool.Release(r)
			return nil
		}
		r, err := t.materialize(v)
		if err != nil {
			return err
		}
		t.enc.MovMemReg(x86.REG_BP, localOffset(instr.Operand), r)
		t.releaseValue(v)
		return nil
	}

	base := t.pop()
	baseReg, err := t.materialize(base)
	if err != nil {
		return err
	}
	t.enc.TestRegReg(baseReg, baseReg)
	t.enc.Jz(trapStubLabel)

	if instr.Op == bytecode.STOR_FLOAT_VAR {
		r, err := t.materializeXMM(v)
		if err != nil {
			t.releaseValue(base)
			return err
		}
		t.enc.MovsdMemReg(baseReg, fieldOffset(instr.Operand), r)
		t.pool.Release(r)
		t.releaseValue(base)
		return nil
	}
	r, err := t.materialize(v)
	if err != nil {
		t.releaseValue(base)
		return err
	}
	t.enc.MovMemReg(baseReg, fieldOffset(instr.Operand), r)
	t.releaseValue(v)
	t.releaseValue(base)
	return nil
}

// lowerCopyVar stores like STOR but leaves the value on the stack
// (the VM's non-destructive assignment form).
func (t *Translator) lowerCopyVar(instr bytecode.Instruction) error {
	v := t.pop()
	r, err := t.materialize(v)
	if err != nil {
		return err
	}
	t.enc.MovMemReg(x86.REG_BP, localOffset(instr.Operand), r)
	t.push(value{kind: valReg, reg: r})
	return nil
}

// trapStubLabel is a fixed, program-wide label id reserved for the
// null-dereference trap stub every compiled method shares; id chosen
// out of range of any user-visible LBL/JMP id space (negative ids
// never appear in loaded bytecode, per loadStatement's i64 decode of
// only non-negative label operands in practice).
const trapStubLabel = -1

func (t *Translator) lowerIntBinOp(op bytecode.Opcode) error {
	right := t.pop()
	left := t.pop()
	lr, err := t.materialize(left)
	if err != nil {
		return err
	}
	rr, err := t.materialize(right)
	if err != nil {
		t.pool.Release(lr)
		return err
	}
	switch op {
	case bytecode.ADD_INT:
		t.enc.AddRegReg(lr, rr)
	case bytecode.SUB_INT:
		t.enc.SubRegReg(lr, rr)
	case bytecode.MUL_INT:
		t.enc.MovRegReg(x86.REG_AX, lr)
		t.enc.MulReg(rr)
		t.enc.MovRegReg(lr, x86.REG_AX)
	case bytecode.BIT_AND_INT, bytecode.AND_INT:
		t.enc.AndRegReg(lr, rr)
	case bytecode.BIT_OR_INT, bytecode.OR_INT:
		t.enc.OrRegReg(lr, rr)
	case bytecode.BIT_XOR_INT:
		t.enc.XorRegReg(lr, rr)
	}
	t.pool.Release(rr)
	t.push(value{kind: valReg, reg: lr})
	return nil
}

// lowerDivMod implements the cdq;idiv sequence directly against
// RAX/RDX. No save/restore is needed around it (unlike spec.md §4.5's
// general note): this package's RegPool never hands out RAX or RDX to
// begin with, so nothing else can be holding a live value there.
func (t *Translator) lowerDivMod(op bytecode.Opcode) error {
	right := t.pop()
	left := t.pop()
	rr, err := t.materialize(right)
	if err != nil {
		return err
	}
	lr, err := t.materialize(left)
	if err != nil {
		t.pool.Release(rr)
		return err
	}
	t.enc.MovRegReg(x86.REG_AX, lr)
	t.releaseValue(left)
	t.enc.Cdq()
	t.enc.IDiv(rr)
	t.pool.Release(rr)

	result := x86.REG_AX
	if op == bytecode.MOD_INT {
		result = x86.REG_DX
	}
	out, err := t.pool.AcquireGPR(false)
	if err != nil {
		return errors.Wrap(err, "jit: DIV_INT/MOD_INT result")
	}
	t.enc.MovRegReg(out, result)
	t.push(value{kind: valReg, reg: out})
	return nil
}

func (t *Translator) lowerShift(instr bytecode.Instruction) error {
	v := t.pop()
	r, err := t.materialize(v)
	if err != nil {
		return err
	}
	if instr.Op == bytecode.SHL_INT {
		t.enc.ShlRegImm(r, instr.Operand)
	} else {
		t.enc.ShrRegImm(r, instr.Operand)
	}
	t.push(value{kind: valReg, reg: r})
	return nil
}

// lowerIntCompare implements spec.md §4.5's fused compare+jump: if the
// very next flat instruction is JMP(label,cond>=0), it consumes that
// JMP too (returning 1) and branches directly instead of materializing
// a boolean.
func (t *Translator) lowerIntCompare(op bytecode.Opcode, i int) (int, error) {
	right := t.pop()
	left := t.pop()
	lr, err := t.materialize(left)
	if err != nil {
		return 0, err
	}
	rr, err := t.materialize(right)
	if err != nil {
		t.pool.Release(lr)
		return 0, err
	}
	t.enc.CmpRegReg(lr, rr)
	t.pool.Release(rr)
	cond := intCompareCond[op]

	if i+1 < len(t.flat) {
		next := t.method.Instr(t.flat[i+1])
		if next.Op == bytecode.JMP && next.Operand2 >= 0 {
			t.enc.Jcc(cond, next.Operand)
			t.pool.Release(lr)
			return 1, nil
		}
	}

	tmp, err := t.pool.AcquireGPR(false)
	if err != nil {
		return 0, errors.Wrap(err, "jit: materializing comparison result")
	}
	t.enc.MovRegImm(lr, 0)
	t.enc.MovRegImm(tmp, 1)
	t.enc.CmovRegReg(cond, lr, tmp)
	t.pool.Release(tmp)
	t.push(value{kind: valReg, reg: lr})
	return 0, nil
}

func (t *Translator) lowerFloatBinOp(op bytecode.Opcode) error {
	right := t.pop()
	left := t.pop()
	lr, err := t.materializeXMM(left)
	if err != nil {
		return err
	}
	rr, err := t.materializeXMM(right)
	if err != nil {
		t.pool.Release(lr)
		return err
	}
	switch op {
	case bytecode.ADD_FLOAT:
		t.enc.AddsdRegReg(lr, rr)
	case bytecode.SUB_FLOAT:
		t.enc.SubsdRegReg(lr, rr)
	case bytecode.MUL_FLOAT:
		t.enc.MulsdRegReg(lr, rr)
	case bytecode.DIV_FLOAT:
		t.enc.DivsdRegReg(lr, rr)
	}
	t.pool.Release(rr)
	t.push(value{kind: valReg, reg: lr, isXMM: true})
	return nil
}

func (t *Translator) lowerFloatCompare(op bytecode.Opcode, i int) (int, error) {
	right := t.pop()
	left := t.pop()
	lr, err := t.materializeXMM(left)
	if err != nil {
		return 0, err
	}
	rr, err := t.materializeXMM(right)
	if err != nil {
		t.pool.Release(lr)
		return 0, err
	}
	t.enc.UcomisdRegReg(lr, rr)
	t.pool.Release(lr)
	t.pool.Release(rr)
	cond := floatCompareCond[op]

	if i+1 < len(t.flat) {
		next := t.method.Instr(t.flat[i+1])
		if next.Op == bytecode.JMP && next.Operand2 >= 0 {
			t.enc.Jcc(cond, next.Operand)
			return 1, nil
		}
	}

	out, err := t.pool.AcquireGPR(false)
	if err != nil {
		return 0, errors.Wrap(err, "jit: materializing float comparison result")
	}
	tmp, err := t.pool.AcquireGPR(false)
	if err != nil {
		t.pool.Release(out)
		return 0, errors.Wrap(err, "jit: materializing float comparison result")
	}
	t.enc.MovRegImm(out, 0)
	t.enc.MovRegImm(tmp, 1)
	t.enc.CmovRegReg(cond, out, tmp)
	t.pool.Release(tmp)
	t.push(value{kind: valReg, reg: out})
	return 0, nil
}

func (t *Translator) lowerF2I() error {
	v := t.pop()
	src, err := t.materializeXMM(v)
	if err != nil {
		return err
	}
	dst, err := t.pool.AcquireGPR(false)
	if err != nil {
		t.pool.Release(src)
		return errors.Wrap(err, "jit: F2I")
	}
	t.enc.Cvtsd2siRegReg(dst, src)
	t.pool.Release(src)
	t.push(value{kind: valReg, reg: dst})
	return nil
}

func (t *Translator) lowerI2F() error {
	v := t.pop()
	src, err := t.materialize(v)
	if err != nil {
		return err
	}
	dst, err := t.pool.AcquireXMM()
	if err != nil {
		t.releaseValue(v)
		return errors.Wrap(err, "jit: I2F")
	}
	t.enc.Cvtsi2sdRegReg(dst, src)
	t.releaseValue(v)
	t.push(value{kind: valReg, reg: dst, isXMM: true})
	return nil
}

func (t *Translator) lowerRound(mode int64) error {
	v := t.pop()
	src, err := t.materializeXMM(v)
	if err != nil {
		return err
	}
	dst, err := t.pool.AcquireXMM()
	if err != nil {
		t.pool.Release(src)
		return errors.Wrap(err, "jit: FLOR_FLOAT/CEIL_FLOAT")
	}
	t.enc.RoundsdImm(dst, src, mode)
	t.pool.Release(src)
	t.push(value{kind: valReg, reg: dst, isXMM: true})
	return nil
}

func (t *Translator) lowerArrayLoad(op bytecode.Opcode) error {
	idx := t.pop()
	arr := t.pop()
	idxReg, err := t.materialize(idx)
	if err != nil {
		return err
	}
	arrReg, err := t.materialize(arr)
	if err != nil {
		t.pool.Release(idxReg)
		return err
	}
	t.enc.TestRegReg(arrReg, arrReg)
	t.enc.Jz(trapStubLabel)

	elemSize := int64(8)
	if op == bytecode.LOAD_BYTE_ARY_ELM {
		elemSize = 1
	} else if op == bytecode.LOAD_CHAR_ARY_ELM {
		elemSize = 4
	}
	t.enc.ShlRegImm(idxReg, log2(elemSize))
	t.enc.AddRegReg(arrReg, idxReg)
	t.pool.Release(idxReg)

	if op == bytecode.LOAD_FLOAT_ARY_ELM {
		xr, err := t.pool.AcquireXMM()
		if err != nil {
			t.pool.Release(arrReg)
			return errors.Wrap(err, "jit: array element load")
		}
		t.enc.MovsdRegMem(xr, arrReg, 0)
		t.pool.Release(arrReg)
		t.push(value{kind: valReg, reg: xr, isXMM: true})
		return nil
	}
	t.enc.MovRegMem(arrReg, arrReg, 0)
	t.push(value{kind: valReg, reg: arrReg})
	return nil
}

func (t *Translator) lowerArrayStore(op bytecode.Opcode) error {
	val := t.pop()
	idx := t.pop()
	arr := t.pop()
	idxReg, err := t.materialize(idx)
	if err != nil {
		return err
	}
	arrReg, err := t.materialize(arr)
	if err != nil {
		t.pool.Release(idxReg)
		return err
	}
	t.enc.TestRegReg(arrReg, arrReg)
	t.enc.Jz(trapStubLabel)

	elemSize := int64(8)
	if op == bytecode.STOR_BYTE_ARY_ELM {
		elemSize = 1
	} else if op == bytecode.STOR_CHAR_ARY_ELM {
		elemSize = 4
	}
	t.enc.ShlRegImm(idxReg, log2(elemSize))
	t.enc.AddRegReg(arrReg, idxReg)
	t.pool.Release(idxReg)

	if op == bytecode.STOR_FLOAT_ARY_ELM {
		xr, err := t.materializeXMM(val)
		if err != nil {
			t.pool.Release(arrReg)
			return err
		}
		t.enc.MovsdMemReg(arrReg, 0, xr)
		t.pool.Release(xr)
		t.pool.Release(arrReg)
		return nil
	}
	vr, err := t.materialize(val)
	if err != nil {
		t.pool.Release(arrReg)
		return err
	}
	t.enc.MovMemReg(arrReg, 0, vr)
	t.releaseValue(val)
	t.pool.Release(arrReg)
	return nil
}

func log2(n int64) int64 {
	r := int64(0)
	for n > 1 {
		n >>= 1
		r++
	}
	return r
}

// lowerReturn materializes the top-of-stack value (if the method
// returns one), writes it through the ABI-pinned return-value slot,
// and copies it into RAX/XMM0 so a direct Go caller (e.g. the
// end-to-end JIT test) can also read it straight off the return
// register without going through the slot pointer.
func (t *Translator) lowerReturn() error {
	if t.method.ReturnType == bytecode.ReturnNone {
		t.enc.Epilog(frameSize)
		return nil
	}
	v := t.pop()
	slot, err := t.pool.AcquireGPR(false)
	if err != nil {
		return errors.Wrap(err, "jit: RTRN")
	}
	t.enc.MovRegMem(slot, x86.REG_BP, abiRetSlotOff)

	if t.method.ReturnType == bytecode.ReturnFloat {
		r, err := t.materializeXMM(v)
		if err != nil {
			t.pool.Release(slot)
			return err
		}
		t.enc.MovsdMemReg(slot, 0, r)
		t.enc.MovsdRegReg(x86.REG_X0, r)
	} else {
		r, err := t.materialize(v)
		if err != nil {
			t.pool.Release(slot)
			return err
		}
		t.enc.MovMemReg(slot, 0, r)
		t.enc.MovRegReg(x86.REG_AX, r)
	}
	t.pool.Release(slot)
	t.enc.Epilog(frameSize)
	return nil
}

// lowerMethodCall resolves the callee's shape from the program so the
// flush/reload counts are exact, then routes through the callback
// bridge. The callee's "self" reference (if any) travels as an
// ordinary leading parameter rather than a distinguished ABI slot,
// matching how the bytecode format already represents instance calls
// (see DESIGN.md).
func (t *Translator) lowerMethodCall(instr bytecode.Instruction) error {
	classID, methodID := instr.Operand, instr.Operand2
	paramCount := 0
	returns := false
	if cls := t.program.Class(int(classID)); cls != nil {
		if mthd := cls.Method(int(methodID)); mthd != nil {
			paramCount = mthd.ParamCount
			returns = mthd.ReturnType != bytecode.ReturnNone
		}
	}
	return t.lowerService(instr.Op, instr, paramCount, returns)
}

// lowerService implements the common shape of every opcode the
// translator routes through EmitCallbackBridge (spec.md §4.6):
// flush paramCount working-stack entries into the VM operand stack,
// spill whatever else is still register-resident, make the call, and
// (if returns) reload one value back from the same base slot the
// flush started at. CallbackArgs.ClassID/MethodID carry instr.Operand/
// Operand2 verbatim regardless of what those operands actually mean
// for op (a trap code for TRAP, an array-type tag for NEW_*_ARY,
// etc.) -- the runtime service registered for op is the only thing
// that needs to know how to interpret them.
func (t *Translator) lowerService(op bytecode.Opcode, instr bytecode.Instruction, paramCount int, returns bool) error {
	addr, ok := t.services.ServiceAddr(op)
	if !ok {
		return errors.Errorf("jit: no runtime service registered for %s", op)
	}

	params := make([]value, paramCount)
	for i := paramCount - 1; i >= 0; i-- {
		params[i] = t.pop()
	}

	opStackReg, err := t.pool.AcquireGPR(false)
	if err != nil {
		return errors.Wrap(err, "jit: flushing service call params")
	}
	t.enc.MovRegMem(opStackReg, x86.REG_BP, abiOpStackOff)
	for i, p := range params {
		r, err := t.materialize(p)
		if err != nil {
			t.pool.Release(opStackReg)
			return err
		}
		t.enc.MovMemReg(opStackReg, int64(i)*8, r)
		t.releaseValue(p)
	}

	var nonParamRegs []int16
	for _, v := range t.stack {
		if v.kind == valReg {
			nonParamRegs = append(nonParamRegs, v.reg)
		}
	}

	instanceBase := int16(-1)
	args := CallbackArgs{
		InstrID:        int64(op),
		InstrAddr:      instr.Operand3,
		ClassID:        instr.Operand,
		MethodID:       instr.Operand2,
		InstanceBase:   instanceBase,
		OpStackBase:    opStackReg,
		ReturnInstrIdx: 0,
		StackPosPtr:    opStackReg,
	}
	if err := t.enc.EmitCallbackBridge(t.pool, nonParamRegs, args, addr); err != nil {
		t.pool.Release(opStackReg)
		return err
	}
	t.pool.Release(opStackReg)

	if !returns {
		return nil
	}
	base, err := t.pool.AcquireGPR(false)
	if err != nil {
		return errors.Wrap(err, "jit: reloading service result")
	}
	t.enc.MovRegMem(base, x86.REG_BP, abiOpStackOff)
	out, err := t.pool.AcquireGPR(false)
	if err != nil {
		t.pool.Release(base)
		return errors.Wrap(err, "jit: reloading service result")
	}
	t.enc.MovRegMem(out, base, 0)
	t.pool.Release(base)
	t.push(value{kind: valReg, reg: out})
	return nil
}
