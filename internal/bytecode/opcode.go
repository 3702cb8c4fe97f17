// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bytecode

// Opcode identifies a stack-machine instruction. The family groupings
// mirror the Objeck VM's instruction set: integer and float arithmetic,
// loads/stores across the three memory contexts, array and object
// allocation, calls, control flow, and runtime trap dispatch.
type Opcode int32

const (
	NOP Opcode = iota

	// Literal loads.
	LOAD_INT_LIT
	LOAD_FLOAT_LIT

	// Variable access. The context (LOCAL/INSTANCE/CLASS) is carried in
	// Operand2 of the instruction, not the opcode.
	LOAD_INT_VAR
	STOR_INT_VAR
	COPY_INT_VAR
	LOAD_FLOAT_VAR
	STOR_FLOAT_VAR
	COPY_FLOAT_VAR
	LOAD_FUNC_VAR
	STOR_FUNC_VAR
	LOAD_INST_MEM
	LOAD_CLS_MEM

	// Integer arithmetic / bitwise / compare / shift.
	ADD_INT
	SUB_INT
	MUL_INT
	DIV_INT
	MOD_INT
	BIT_AND_INT
	BIT_OR_INT
	BIT_XOR_INT
	AND_INT
	OR_INT
	LES_INT
	GTR_INT
	LES_EQL_INT
	GTR_EQL_INT
	EQL_INT
	NEQL_INT
	SHL_INT
	SHR_INT

	// Float arithmetic / compare / rounding / conversion.
	ADD_FLOAT
	SUB_FLOAT
	MUL_FLOAT
	DIV_FLOAT
	LES_FLOAT
	GTR_FLOAT
	LES_EQL_FLOAT
	GTR_EQL_FLOAT
	EQL_FLOAT
	NEQL_FLOAT
	FLOR_FLOAT
	CEIL_FLOAT
	F2I
	I2F

	// Control flow.
	RTRN
	JMP
	LBL

	// Calls.
	MTHD_CALL
	DYN_MTHD_CALL

	// Allocation.
	NEW_BYTE_ARY
	NEW_CHAR_ARY
	NEW_INT_ARY
	NEW_FLOAT_ARY
	NEW_OBJ_INST

	// Threading.
	THREAD_JOIN
	THREAD_SLEEP
	CRITICAL_START
	CRITICAL_END

	// Array copy.
	CPY_BYTE_ARY
	CPY_CHAR_ARY
	CPY_INT_ARY
	CPY_FLOAT_ARY

	// Runtime traps.
	TRAP
	TRAP_RTRN

	// Array element access.
	LOAD_BYTE_ARY_ELM
	LOAD_CHAR_ARY_ELM
	LOAD_INT_ARY_ELM
	LOAD_FLOAT_ARY_ELM
	STOR_BYTE_ARY_ELM
	STOR_CHAR_ARY_ELM
	STOR_INT_ARY_ELM
	STOR_FLOAT_ARY_ELM

	// Misc.
	SWAP_INT
	POP_INT
	POP_FLOAT
	OBJ_TYPE_OF
	OBJ_INST_CAST
)

// names mirrors the opcode table for diagnostics and disassembly.
var names = map[Opcode]string{
	NOP:                "NOP",
	LOAD_INT_LIT:       "LOAD_INT_LIT",
	LOAD_FLOAT_LIT:     "LOAD_FLOAT_LIT",
	LOAD_INT_VAR:       "LOAD_INT_VAR",
	STOR_INT_VAR:       "STOR_INT_VAR",
	COPY_INT_VAR:       "COPY_INT_VAR",
	LOAD_FLOAT_VAR:     "LOAD_FLOAT_VAR",
	STOR_FLOAT_VAR:     "STOR_FLOAT_VAR",
	COPY_FLOAT_VAR:     "COPY_FLOAT_VAR",
	LOAD_FUNC_VAR:      "LOAD_FUNC_VAR",
	STOR_FUNC_VAR:      "STOR_FUNC_VAR",
	LOAD_INST_MEM:      "LOAD_INST_MEM",
	LOAD_CLS_MEM:       "LOAD_CLS_MEM",
	ADD_INT:            "ADD_INT",
	SUB_INT:            "SUB_INT",
	MUL_INT:            "MUL_INT",
	DIV_INT:            "DIV_INT",
	MOD_INT:            "MOD_INT",
	BIT_AND_INT:        "BIT_AND_INT",
	BIT_OR_INT:         "BIT_OR_INT",
	BIT_XOR_INT:        "BIT_XOR_INT",
	AND_INT:            "AND_INT",
	OR_INT:             "OR_INT",
	LES_INT:            "LES_INT",
	GTR_INT:            "GTR_INT",
	LES_EQL_INT:        "LES_EQL_INT",
	GTR_EQL_INT:        "GTR_EQL_INT",
	EQL_INT:            "EQL_INT",
	NEQL_INT:           "NEQL_INT",
	SHL_INT:            "SHL_INT",
	SHR_INT:            "SHR_INT",
	ADD_FLOAT:          "ADD_FLOAT",
	SUB_FLOAT:          "SUB_FLOAT",
	MUL_FLOAT:          "MUL_FLOAT",
	DIV_FLOAT:          "DIV_FLOAT",
	LES_FLOAT:          "LES_FLOAT",
	GTR_FLOAT:          "GTR_FLOAT",
	LES_EQL_FLOAT:      "LES_EQL_FLOAT",
	GTR_EQL_FLOAT:      "GTR_EQL_FLOAT",
	EQL_FLOAT:          "EQL_FLOAT",
	NEQL_FLOAT:         "NEQL_FLOAT",
	FLOR_FLOAT:         "FLOR_FLOAT",
	CEIL_FLOAT:         "CEIL_FLOAT",
	F2I:                "F2I",
	I2F:                "I2F",
	RTRN:               "RTRN",
	JMP:                "JMP",
	LBL:                "LBL",
	MTHD_CALL:          "MTHD_CALL",
	DYN_MTHD_CALL:      "DYN_MTHD_CALL",
	NEW_BYTE_ARY:       "NEW_BYTE_ARY",
	NEW_CHAR_ARY:       "NEW_CHAR_ARY",
	NEW_INT_ARY:        "NEW_INT_ARY",
	NEW_FLOAT_ARY:      "NEW_FLOAT_ARY",
	NEW_OBJ_INST:       "NEW_OBJ_INST",
	THREAD_JOIN:        "THREAD_JOIN",
	THREAD_SLEEP:       "THREAD_SLEEP",
	CRITICAL_START:     "CRITICAL_START",
	CRITICAL_END:       "CRITICAL_END",
	CPY_BYTE_ARY:       "CPY_BYTE_ARY",
	CPY_CHAR_ARY:       "CPY_CHAR_ARY",
	CPY_INT_ARY:        "CPY_INT_ARY",
	CPY_FLOAT_ARY:      "CPY_FLOAT_ARY",
	TRAP:               "TRAP",
	TRAP_RTRN:          "TRAP_RTRN",
	LOAD_BYTE_ARY_ELM:  "LOAD_BYTE_ARY_ELM",
	LOAD_CHAR_ARY_ELM:  "LOAD_CHAR_ARY_ELM",
	LOAD_INT_ARY_ELM:   "LOAD_INT_ARY_ELM",
	LOAD_FLOAT_ARY_ELM: "LOAD_FLOAT_ARY_ELM",
	STOR_BYTE_ARY_ELM:  "STOR_BYTE_ARY_ELM",
	STOR_CHAR_ARY_ELM:  "STOR_CHAR_ARY_ELM",
	STOR_INT_ARY_ELM:   "STOR_INT_ARY_ELM",
	STOR_FLOAT_ARY_ELM: "STOR_FLOAT_ARY_ELM",
	SWAP_INT:           "SWAP_INT",
	POP_INT:            "POP_INT",
	POP_FLOAT:          "POP_FLOAT",
	OBJ_TYPE_OF:        "OBJ_TYPE_OF",
	OBJ_INST_CAST:      "OBJ_INST_CAST",
}

func (op Opcode) String() string {
	if s, ok := names[op]; ok {
		return s
	}
	return "UNKNOWN"
}

// IntBinaryOps are the opcodes IntFold is allowed to collapse.
var IntBinaryOps = map[Opcode]bool{
	ADD_INT:     true,
	SUB_INT:     true,
	MUL_INT:     true,
	DIV_INT:     true,
	MOD_INT:     true,
	BIT_AND_INT: true,
	BIT_OR_INT:  true,
	BIT_XOR_INT: true,
}

// FloatBinaryOps are the opcodes FloatFold is allowed to collapse.
var FloatBinaryOps = map[Opcode]bool{
	ADD_FLOAT: true,
	SUB_FLOAT: true,
	MUL_FLOAT: true,
	DIV_FLOAT: true,
}

// MemoryContext distinguishes the three addressable variable scopes.
type MemoryContext int32

const (
	LOCAL MemoryContext = iota
	INSTANCE
	CLASS
)

func (c MemoryContext) String() string {
	switch c {
	case LOCAL:
		return "LOCAL"
	case INSTANCE:
		return "INSTANCE"
	case CLASS:
		return "CLASS"
	default:
		return "UNKNOWN"
	}
}
