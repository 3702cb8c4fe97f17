// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"objeckvm/internal/bytecode"
)

func TestServicesServiceAddrResolvesKnownOpcodes(t *testing.T) {
	s := NewServices(nil)

	for _, op := range []bytecode.Opcode{
		bytecode.TRAP, bytecode.TRAP_RTRN,
		bytecode.NEW_BYTE_ARY, bytecode.NEW_CHAR_ARY, bytecode.NEW_INT_ARY, bytecode.NEW_FLOAT_ARY,
		bytecode.NEW_OBJ_INST, bytecode.MTHD_CALL, bytecode.DYN_MTHD_CALL,
		bytecode.THREAD_JOIN, bytecode.THREAD_SLEEP,
		bytecode.CRITICAL_START, bytecode.CRITICAL_END,
		bytecode.CPY_BYTE_ARY, bytecode.CPY_CHAR_ARY, bytecode.CPY_INT_ARY, bytecode.CPY_FLOAT_ARY,
		bytecode.OBJ_TYPE_OF, bytecode.OBJ_INST_CAST,
	} {
		addr, ok := s.ServiceAddr(op)
		require.True(t, ok, "opcode %v should resolve", op)
		require.NotZero(t, addr)
	}
}

func TestServicesServiceAddrRejectsUnknownOpcode(t *testing.T) {
	s := NewServices(nil)
	_, ok := s.ServiceAddr(bytecode.ADD_INT)
	require.False(t, ok)
}

func TestServicesTrapRecordsEvent(t *testing.T) {
	s := NewServices(nil)
	s.Trap(42, 7)
	require.Len(t, s.Traps, 1)
	require.Equal(t, TrapEvent{InstrID: 42, Code: 7}, s.Traps[0])

	require.Equal(t, int64(0), s.TrapReturn(43, 8))
	require.Len(t, s.Traps, 2)
}

func TestServicesArrayAllocatorsReturnDistinctNonZeroPointers(t *testing.T) {
	s := NewServices(nil)
	a := s.NewIntArray(4)
	b := s.NewIntArray(4)
	require.NotZero(t, a)
	require.NotZero(t, b)
	require.NotEqual(t, a, b)

	require.Zero(t, s.NewByteArray(0))
}

func TestServicesJitMethodRootBookkeeping(t *testing.T) {
	s := NewServices(nil)
	require.Equal(t, 0, s.RootCount())

	s.AddJitMethodRoot(1, 2)
	s.AddJitMethodRoot(1, 3)
	require.Equal(t, 2, s.RootCount())

	s.RemoveJitMethodRoot(1, 2)
	require.Equal(t, 1, s.RootCount())
}
