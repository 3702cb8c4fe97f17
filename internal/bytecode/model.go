// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bytecode defines the Program/Class/Method/Block/Instruction
// model shared by the IR optimizer and the JIT. It is the Go
// equivalent of the Objeck VM's StackProgram/StackClass/StackMethod
// hierarchy (see original_source/src/vm/vm.h, loader.h).
package bytecode

// ReturnType enumerates the value a method hands back to its caller.
type ReturnType int8

const (
	ReturnNone ReturnType = iota
	ReturnInt
	ReturnFloat
	ReturnFuncRef
)

// Instruction is immutable once constructed. Optimizer passes never
// mutate an Instruction in place; they build a new one and append it
// to the owning method's arena.
type Instruction struct {
	Op       Opcode
	Operand  int64
	Operand2 int64
	Operand3 int64
	Operand4 float64
	Line     int32
}

// Context returns Operand2 reinterpreted as a MemoryContext, the
// convention used by every variable-access opcode.
func (i Instruction) Context() MemoryContext {
	return MemoryContext(i.Operand2)
}

// Arena owns every Instruction ever constructed for a method. Blocks
// address instructions by index into the arena rather than by
// pointer, so replacing a block's instruction sequence never mutates
// or frees a live Instruction — old index sequences are simply
// dropped and collected by the Go runtime. This is option (b) from
// the raw-pointer-sharing design note.
type Arena struct {
	instrs []Instruction
}

// Add appends instr to the arena and returns its index.
func (a *Arena) Add(instr Instruction) int {
	a.instrs = append(a.instrs, instr)
	return len(a.instrs) - 1
}

// Get returns the instruction stored at idx.
func (a *Arena) Get(idx int) Instruction {
	return a.instrs[idx]
}

// Len reports how many instructions the arena has ever held.
func (a *Arena) Len() int {
	return len(a.instrs)
}

// Block is an ordered sequence of instruction indices with no
// internal joins or exits except through JMP/LBL/RTRN. A method's
// block list is replaced, never mutated, by each optimizer pass.
type Block struct {
	ID     int
	Instrs []int // indices into the owning Method's Arena
}

// Len returns the number of instructions in the block.
func (b *Block) Len() int { return len(b.Instrs) }

// LabelEntry locates a label's target within a method.
type LabelEntry struct {
	BlockIndex int
	InstrIndex int // index within Block.Instrs, not into the arena
}

// Declaration describes one local/instance/class variable slot as
// produced by the loader. Only the type and slot width matter to the
// optimizer and JIT; names are kept for diagnostics.
type Declaration struct {
	Name string
	Type ReturnType
}

// Method mirrors the Objeck VM's StackMethod.
type Method struct {
	ID             int
	Name           string
	IsVirtual      bool
	Native         bool
	Declarations   []Declaration
	ParamCount     int
	LocalFrameSize int // in words (8 bytes each)
	ReturnType     ReturnType
	Blocks         []*Block
	Arena          Arena
	OwningClass    int

	// Labels maps label-id to its resolved location. Invalidated by
	// every optimizer pass; rebuilt by RebuildLabels before the JIT or
	// interpreter consumes the method.
	Labels map[int64]LabelEntry
}

// NewInstruction appends instr to the method's arena and returns its
// index, for use by optimizer passes synthesizing replacement code.
func (m *Method) NewInstruction(instr Instruction) int {
	return m.Arena.Add(instr)
}

// Instr resolves an arena index to its Instruction value.
func (m *Method) Instr(idx int) Instruction {
	return m.Arena.Get(idx)
}

// RebuildLabels walks every block and records where each LBL
// instruction resolves to. Must be called after optimization and
// before the label table is consulted by a JMP resolver.
func (m *Method) RebuildLabels() {
	m.Labels = make(map[int64]LabelEntry)
	for bi, blk := range m.Blocks {
		for ii, idx := range blk.Instrs {
			instr := m.Arena.Get(idx)
			if instr.Op == LBL {
				m.Labels[instr.Operand] = LabelEntry{BlockIndex: bi, InstrIndex: ii}
			}
		}
	}
}

// MaxLabel returns the highest label id referenced by LBL or JMP
// instructions in the method, or -1 if none exist. Nothing in this
// tree calls it: the method inliner only accepts callees without
// JMP/LBL, so it never allocates fresh labels.
func (m *Method) MaxLabel() int64 {
	max := int64(-1)
	for _, blk := range m.Blocks {
		for _, idx := range blk.Instrs {
			instr := m.Arena.Get(idx)
			if instr.Op == LBL || instr.Op == JMP {
				if instr.Operand > max {
					max = instr.Operand
				}
			}
		}
	}
	return max
}

// Class mirrors the Objeck VM's StackClass.
type Class struct {
	ID                 int
	Name               string
	ParentID           int // -1 if none
	InterfaceIDs       []int
	IsVirtual          bool
	ClassFrameSize     int
	InstanceFrameSize  int
	ClassDeclarations  []Declaration
	InstanceDecls      []Declaration
	Methods            []*Method
}

// Method looks up a method by id within the class.
func (c *Class) Method(id int) *Method {
	for _, m := range c.Methods {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Program is the root container produced by the loader and consumed
// by the optimizer and JIT.
type Program struct {
	Classes       []*Class
	FloatStrings  [][]float64
	IntStrings    [][]int64
	CharStrings   []string
	StringClassID int
	StartClassID  int
	StartMethodID int
}

// Class looks up a class by id within the program.
func (p *Program) Class(id int) *Class {
	for _, c := range p.Classes {
		if c.ID == id {
			return c
		}
	}
	return nil
}
