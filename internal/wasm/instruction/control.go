// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package instruction

import (
	"github.com/cdetrio/wasm-gc/internal/wasm/opcode"
	"github.com/cdetrio/wasm-gc/internal/wasm/types"
)

// Unreachable represents a WASM unreachable instruction.
type Unreachable struct {
	NoImmediateArgs
}

// Op returns the opcode of the instruction.
func (Unreachable) Op() opcode.Opcode {
	return opcode.Unreachable
}

// Nop represents a WASM no-op instruction.
type Nop struct {
	NoImmediateArgs
}

// Op returns the opcode of the instruction.
func (Nop) Op() opcode.Opcode {
	return opcode.Nop
}

// Block represents a WASM block instruction.
type Block struct {
	Type   *types.ValueType
	Instrs []Instruction
}

// Op returns the opcode of the instruction.
func (Block) Op() opcode.Opcode {
	return opcode.Block
}

// BlockType returns the type of the block's return value, if any.
func (i Block) BlockType() *types.ValueType {
	return i.Type
}

// Instructions returns the instructions contained inside the block.
func (i Block) Instructions() []Instruction {
	return i.Instrs
}

// ImmediateArgs returns the immediate arguments of the instruction.
func (Block) ImmediateArgs() []interface{} {
	return nil
}

// Loop represents a WASM loop instruction.
type Loop struct {
	Type   *types.ValueType
	Instrs []Instruction
}

// Op returns the opcode of the instruction.
func (Loop) Op() opcode.Opcode {
	return opcode.Loop
}

// BlockType returns the type of the loop's return value, if any.
func (i Loop) BlockType() *types.ValueType {
	return i.Type
}

// Instructions returns the instructions contained inside the loop.
func (i Loop) Instructions() []Instruction {
	return i.Instrs
}

// ImmediateArgs returns the immediate arguments of the instruction.
func (Loop) ImmediateArgs() []interface{} {
	return nil
}

// If represents a WASM if instruction. The else branch may be empty.
type If struct {
	Type       *types.ValueType
	Instrs     []Instruction
	ElseInstrs []Instruction
}

// Op returns the opcode of the instruction.
func (If) Op() opcode.Opcode {
	return opcode.If
}

// BlockType returns the type of the conditional's return value, if any.
func (i If) BlockType() *types.ValueType {
	return i.Type
}

// Instructions returns the instructions of both branches, then branch
// first.
func (i If) Instructions() []Instruction {
	instrs := make([]Instruction, 0, len(i.Instrs)+len(i.ElseInstrs))
	instrs = append(instrs, i.Instrs...)
	return append(instrs, i.ElseInstrs...)
}

// ImmediateArgs returns the immediate arguments of the instruction.
func (If) ImmediateArgs() []interface{} {
	return nil
}

// Br represents a WASM br instruction.
type Br struct {
	Index uint32
}

// Op returns the opcode of the instruction.
func (Br) Op() opcode.Opcode {
	return opcode.Br
}

// ImmediateArgs returns the block index to break to.
func (i Br) ImmediateArgs() []interface{} {
	return []interface{}{i.Index}
}

// BrIf represents a WASM br_if instruction.
type BrIf struct {
	Index uint32
}

// Op returns the opcode of the instruction.
func (BrIf) Op() opcode.Opcode {
	return opcode.BrIf
}

// ImmediateArgs returns the block index to break to.
func (i BrIf) ImmediateArgs() []interface{} {
	return []interface{}{i.Index}
}

// BrTable represents a WASM br_table instruction.
type BrTable struct {
	Targets []uint32
	Default uint32
}

// Op returns the opcode of the instruction.
func (BrTable) Op() opcode.Opcode {
	return opcode.BrTable
}

// ImmediateArgs returns the branch target vector followed by the default
// target.
func (i BrTable) ImmediateArgs() []interface{} {
	args := make([]interface{}, 0, len(i.Targets)+2)
	args = append(args, uint32(len(i.Targets)))
	for _, t := range i.Targets {
		args = append(args, t)
	}
	return append(args, i.Default)
}

// Return represents a WASM return instruction.
type Return struct {
	NoImmediateArgs
}

// Op returns the opcode of the instruction.
func (Return) Op() opcode.Opcode {
	return opcode.Return
}

// Call represents a WASM call instruction.
type Call struct {
	Index uint32
}

// Op returns the opcode of the instruction.
func (Call) Op() opcode.Opcode {
	return opcode.Call
}

// ImmediateArgs returns the function index of the callee.
func (i Call) ImmediateArgs() []interface{} {
	return []interface{}{i.Index}
}

// CallIndirect represents a WASM call_indirect instruction.
type CallIndirect struct {
	Index    uint32 // type index of the callee signature
	Reserved byte
}

// Op returns the opcode of the instruction.
func (CallIndirect) Op() opcode.Opcode {
	return opcode.CallIndirect
}

// ImmediateArgs returns the type index of the callee signature and the
// reserved table byte.
func (i CallIndirect) ImmediateArgs() []interface{} {
	return []interface{}{i.Index, i.Reserved}
}
