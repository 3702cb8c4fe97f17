// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytecode

import (
	"bytes"
	"encoding/binary"
	"math"
)

// TestBuilder assembles a minimal wire-format byte stream for the
// loader tests. It is not a general-purpose
// encoder -- the loader is a peer component and this is just enough
// to drive Load with realistic input.
type TestBuilder struct {
	buf bytes.Buffer
}

func NewTestBuilder() *TestBuilder { return &TestBuilder{} }

func (b *TestBuilder) i32(v int32)     { binary.Write(&b.buf, endianness, v) }
func (b *TestBuilder) i64(v int64)     { binary.Write(&b.buf, endianness, v) }
func (b *TestBuilder) f64(v float64)   { binary.Write(&b.buf, endianness, v) }
func (b *TestBuilder) byt(v byte)      { b.buf.WriteByte(v) }
func (b *TestBuilder) str(s string) {
	b.i32(int32(len(s)))
	b.buf.WriteString(s)
}

// Header writes version/magic/string-class-id and empty string pools.
func (b *TestBuilder) Header(magic Magic, stringClassID int32) {
	b.i32(VerNum)
	b.i32(int32(magic))
	b.i32(stringClassID)
	b.i32(0) // float pool count
	b.i32(0) // int pool count
	b.i32(0) // char pool count
}

// StartAndEnums writes the start class/method ids and an empty enum block.
func (b *TestBuilder) StartAndEnums(startClass, startMethod int32) {
	b.i32(startClass)
	b.i32(startMethod)
	b.i32(0) // enum count
}

// BeginClass writes a class header with no parent/interfaces.
func (b *TestBuilder) BeginClass(id int32, name string, frameSize int32) {
	b.i32(id)
	b.str(name)
	b.i32(-1) // parent id
	b.i32(0)  // interface count
	b.byt(0)  // is_virtual
	b.i32(0)  // class frame size
	b.i32(frameSize)
	b.i32(0) // class decl count
	b.i32(0) // instance decl count
}

// MethodHeader writes a method's fixed-size header fields.
func (b *TestBuilder) MethodHeader(id int32, name string, paramCount, localFrameSize int32, retType ReturnType) {
	b.i32(id)
	b.str(name)
	b.byt(0) // is_virtual
	b.byt(0) // is_native
	b.byt(byte(retType))
	b.i32(paramCount)
	b.i32(localFrameSize)
	b.i32(0) // decl count
}

// Stmt writes one (opcode, line, operands...) statement.
func (b *TestBuilder) Stmt(op Opcode, line int32, operands ...int64) {
	b.byt(byte(op))
	b.i32(line)
	for _, v := range operands {
		b.i64(v)
	}
}

// StmtFloat writes a LOAD_FLOAT_LIT statement.
func (b *TestBuilder) StmtFloat(line int32, v float64) {
	b.byt(byte(LOAD_FLOAT_LIT))
	b.i32(line)
	b.i64(int64(math.Float64bits(v)))
}

// EndStmts terminates the current method's statement stream.
func (b *TestBuilder) EndStmts() { b.byt(endStmts) }

// Count writes a count prefix (class or method count) -- exposed so callers
// can build the nested count-then-items shape at the call site.
func (b *TestBuilder) Count(n int32) { b.i32(n) }

func (b *TestBuilder) Bytes() []byte { return b.buf.Bytes() }
