// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytecode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildAddMethod builds the wire form of:
//
//	int add(int a, int b) { return a + b; }
func buildAddMethod(t *testing.T) []byte {
	t.Helper()
	b := NewTestBuilder()
	b.Header(MagicEXE, -1)
	b.StartAndEnums(0, 0)
	b.Count(1) // one class

	b.BeginClass(0, "Program", 0)
	b.Count(1) // one method
	b.MethodHeader(0, "add", 2, 16, ReturnInt)
	b.Stmt(LOAD_INT_VAR, 1, 0, int64(LOCAL))
	b.Stmt(LOAD_INT_VAR, 1, 1, int64(LOCAL))
	b.Stmt(ADD_INT, 1)
	b.Stmt(RTRN, 1)
	b.EndStmts()

	return b.Bytes()
}

func TestLoadRoundTrip(t *testing.T) {
	data := buildAddMethod(t)
	prog, err := Load(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, prog.Classes, 1)

	cls := prog.Class(0)
	require.NotNil(t, cls)
	require.Equal(t, "Program", cls.Name)

	m := cls.Method(0)
	require.NotNil(t, m)
	require.Equal(t, "add", m.Name)
	require.Equal(t, ReturnInt, m.ReturnType)
	require.Len(t, m.Blocks, 1)
	require.Len(t, m.Blocks[0].Instrs, 4)

	first := m.Instr(m.Blocks[0].Instrs[0])
	require.Equal(t, LOAD_INT_VAR, first.Op)
	require.Equal(t, int64(0), first.Operand)
	require.Equal(t, LOCAL, first.Context())
}

func TestLoadBadVersion(t *testing.T) {
	b := NewTestBuilder()
	b.Header(MagicEXE, -1)
	data := b.Bytes()
	data[0] = 0x7f // corrupt version

	_, err := Load(bytes.NewReader(data))
	require.ErrorIs(t, err, ErrBadVersion)
}

func TestLoadBadMagic(t *testing.T) {
	b := NewTestBuilder()
	b.i32(VerNum)
	b.i32(99) // invalid magic
	_, err := Load(bytes.NewReader(b.Bytes()))
	require.ErrorIs(t, err, ErrBadMagic)
}
