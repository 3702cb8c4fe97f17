// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytecode

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// VerNum is the bytecode format version this loader understands.
const VerNum int32 = 1

// Magic identifies the kind of executable the stream encodes.
type Magic int32

const (
	MagicEXE Magic = iota
	MagicLIB
	MagicWEB
)

// ErrBadVersion and ErrBadMagic are returned by Load when the header
// fails validation -- this is the LoadError path of spec.md's error
// table; the caller (cmd/objeckvm) turns these into exit code 1.
var (
	ErrBadVersion   = errors.New("bytecode: version mismatch")
	ErrBadMagic     = errors.New("bytecode: unrecognized magic")
	ErrUnknownOpcode = errors.New("bytecode: unknown opcode in statement stream")
)

// endStmts terminates a method's statement list in the wire format.
// It is not a member of Opcode because it never appears in an
// in-memory Instruction -- it is purely a framing byte.
const endStmts byte = 0xff

var endianness = binary.LittleEndian

// reader wraps an io.Reader with the little-endian primitive readers
// the wire format needs, mirroring Loader::ReadInt/ReadString/
// ReadDouble in original_source/src/vm/loader.h.
type reader struct {
	r   io.Reader
	err error
}

func (rd *reader) i32() int32 {
	if rd.err != nil {
		return 0
	}
	var v int32
	rd.err = binary.Read(rd.r, endianness, &v)
	return v
}

func (rd *reader) i64() int64 {
	if rd.err != nil {
		return 0
	}
	var v int64
	rd.err = binary.Read(rd.r, endianness, &v)
	return v
}

func (rd *reader) f64() float64 {
	if rd.err != nil {
		return 0
	}
	var v float64
	rd.err = binary.Read(rd.r, endianness, &v)
	return v
}

func (rd *reader) byte() byte {
	if rd.err != nil {
		return 0
	}
	buf := make([]byte, 1)
	_, rd.err = io.ReadFull(rd.r, buf)
	return buf[0]
}

func (rd *reader) str() string {
	n := rd.i32()
	if rd.err != nil || n < 0 {
		return ""
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rd.r, buf); err != nil {
		rd.err = err
		return ""
	}
	return string(buf)
}

// Load reads a Program from the wire format described in spec.md §6:
// version, magic, string class id, float/int/char string pools, the
// start class/method ids, and a class block. The enum block is
// present in the real format but unused by the optimizer and JIT, so
// it is read and discarded per spec.md's "out of scope" framing.
func Load(r io.Reader) (*Program, error) {
	rd := &reader{r: r}

	version := rd.i32()
	if rd.err != nil {
		return nil, errors.Wrap(rd.err, "bytecode: reading header")
	}
	if version != VerNum {
		return nil, ErrBadVersion
	}

	magic := Magic(rd.i32())
	if magic != MagicEXE && magic != MagicLIB && magic != MagicWEB {
		return nil, ErrBadMagic
	}

	p := &Program{}
	p.StringClassID = int(rd.i32())

	floatCount := rd.i32()
	for i := int32(0); i < floatCount; i++ {
		n := rd.i32()
		vals := make([]float64, n)
		for j := int32(0); j < n; j++ {
			vals[j] = rd.f64()
		}
		p.FloatStrings = append(p.FloatStrings, vals)
	}

	intCount := rd.i32()
	for i := int32(0); i < intCount; i++ {
		n := rd.i32()
		vals := make([]int64, n)
		for j := int32(0); j < n; j++ {
			vals[j] = rd.i64()
		}
		p.IntStrings = append(p.IntStrings, vals)
	}

	charCount := rd.i32()
	for i := int32(0); i < charCount; i++ {
		p.CharStrings = append(p.CharStrings, rd.str())
	}

	p.StartClassID = int(rd.i32())
	p.StartMethodID = int(rd.i32())

	// Enum block: count followed by that many skipped entries. Not
	// modeled -- the optimizer and JIT never reference enum metadata.
	enumCount := rd.i32()
	for i := int32(0); i < enumCount; i++ {
		_ = rd.str()
		n := rd.i32()
		for j := int32(0); j < n; j++ {
			_ = rd.str()
			_ = rd.i64()
		}
	}

	classCount := rd.i32()
	for i := int32(0); i < classCount; i++ {
		cls, err := loadClass(rd)
		if err != nil {
			return nil, err
		}
		p.Classes = append(p.Classes, cls)
	}

	if rd.err != nil {
		return nil, errors.Wrap(rd.err, "bytecode: truncated stream")
	}
	return p, nil
}

func loadClass(rd *reader) (*Class, error) {
	c := &Class{}
	c.ID = int(rd.i32())
	c.Name = rd.str()
	c.ParentID = int(rd.i32())
	ifaceCount := rd.i32()
	for i := int32(0); i < ifaceCount; i++ {
		c.InterfaceIDs = append(c.InterfaceIDs, int(rd.i32()))
	}
	c.IsVirtual = rd.byte() != 0
	c.ClassFrameSize = int(rd.i32())
	c.InstanceFrameSize = int(rd.i32())

	classDeclCount := rd.i32()
	for i := int32(0); i < classDeclCount; i++ {
		c.ClassDeclarations = append(c.ClassDeclarations, loadDecl(rd))
	}
	instDeclCount := rd.i32()
	for i := int32(0); i < instDeclCount; i++ {
		c.InstanceDecls = append(c.InstanceDecls, loadDecl(rd))
	}

	methodCount := rd.i32()
	for i := int32(0); i < methodCount; i++ {
		m, err := loadMethod(rd)
		if err != nil {
			return nil, err
		}
		m.OwningClass = c.ID
		c.Methods = append(c.Methods, m)
	}

	if rd.err != nil {
		return nil, errors.Wrapf(rd.err, "bytecode: class %q", c.Name)
	}
	return c, nil
}

func loadDecl(rd *reader) Declaration {
	name := rd.str()
	typ := ReturnType(rd.byte())
	return Declaration{Name: name, Type: typ}
}

func loadMethod(rd *reader) (*Method, error) {
	m := &Method{}
	m.ID = int(rd.i32())
	m.Name = rd.str()
	m.IsVirtual = rd.byte() != 0
	m.Native = rd.byte() != 0
	m.ReturnType = ReturnType(rd.byte())
	m.ParamCount = int(rd.i32())
	m.LocalFrameSize = int(rd.i32())

	declCount := rd.i32()
	for i := int32(0); i < declCount; i++ {
		m.Declarations = append(m.Declarations, loadDecl(rd))
	}

	blk := &Block{ID: 0}
	for {
		op := rd.byte()
		if rd.err != nil {
			return nil, errors.Wrapf(rd.err, "bytecode: method %q statements", m.Name)
		}
		if op == endStmts {
			break
		}
		instr, err := loadStatement(rd, op)
		if err != nil {
			return nil, err
		}
		idx := m.NewInstruction(instr)
		blk.Instrs = append(blk.Instrs, idx)
		if instr.Op == RTRN {
			m.Blocks = append(m.Blocks, blk)
			blk = &Block{ID: len(m.Blocks)}
		}
	}
	if len(blk.Instrs) > 0 {
		m.Blocks = append(m.Blocks, blk)
	}
	m.RebuildLabels()
	return m, nil
}

// loadStatement decodes a single (opcode_byte, operands...) statement.
// The operand shape is opcode-specific, matching spec.md §3's "up to
// four operands" contract.
func loadStatement(rd *reader, opByte byte) (Instruction, error) {
	op := Opcode(int32(opByte))
	instr := Instruction{Op: op}
	instr.Line = rd.i32()

	switch op {
	case LOAD_INT_LIT:
		instr.Operand = rd.i64()
	case LOAD_FLOAT_LIT:
		instr.Operand4 = math.Float64frombits(uint64(rd.i64()))
	case LOAD_INT_VAR, STOR_INT_VAR, COPY_INT_VAR, LOAD_FLOAT_VAR, STOR_FLOAT_VAR,
		COPY_FLOAT_VAR, LOAD_FUNC_VAR, STOR_FUNC_VAR:
		instr.Operand = rd.i64()
		instr.Operand2 = rd.i64()
	case MTHD_CALL, DYN_MTHD_CALL:
		instr.Operand = rd.i64()
		instr.Operand2 = rd.i64()
		instr.Operand3 = rd.i64()
	case JMP:
		instr.Operand = rd.i64()
		instr.Operand2 = rd.i64() // condition opcode, -1 = unconditional
	case LBL:
		instr.Operand = rd.i64()
	case TRAP, TRAP_RTRN:
		instr.Operand = rd.i64()
	case SHL_INT, SHR_INT:
		instr.Operand = rd.i64()
	default:
		// Zero-operand opcodes (arithmetic, RTRN, POP_*, SWAP_INT, ...)
		// need nothing further.
	}

	if _, known := names[op]; !known {
		return Instruction{}, ErrUnknownOpcode
	}

	return instr, rd.err
}
