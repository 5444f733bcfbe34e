// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package instruction

import (
	"github.com/cdetrio/wasm-gc/internal/wasm/opcode"
)

// Load represents any of the WASM memory load instructions, identified
// by its opcode.
type Load struct {
	Code   opcode.Opcode
	Align  uint32
	Offset uint32
}

// Op returns the opcode of the instruction.
func (i Load) Op() opcode.Opcode {
	return i.Code
}

// ImmediateArgs returns the alignment exponent and the address offset.
func (i Load) ImmediateArgs() []interface{} {
	return []interface{}{i.Align, i.Offset}
}

// Store represents any of the WASM memory store instructions, identified
// by its opcode.
type Store struct {
	Code   opcode.Opcode
	Align  uint32
	Offset uint32
}

// Op returns the opcode of the instruction.
func (i Store) Op() opcode.Opcode {
	return i.Code
}

// ImmediateArgs returns the alignment exponent and the address offset.
func (i Store) ImmediateArgs() []interface{} {
	return []interface{}{i.Align, i.Offset}
}

// CurrentMemory represents a WASM current_memory instruction.
type CurrentMemory struct {
	Reserved byte
}

// Op returns the opcode of the instruction.
func (CurrentMemory) Op() opcode.Opcode {
	return opcode.CurrentMemory
}

// ImmediateArgs returns the reserved memory index byte.
func (i CurrentMemory) ImmediateArgs() []interface{} {
	return []interface{}{i.Reserved}
}

// GrowMemory represents a WASM grow_memory instruction.
type GrowMemory struct {
	Reserved byte
}

// Op returns the opcode of the instruction.
func (GrowMemory) Op() opcode.Opcode {
	return opcode.GrowMemory
}

// ImmediateArgs returns the reserved memory index byte.
func (i GrowMemory) ImmediateArgs() []interface{} {
	return []interface{}{i.Reserved}
}
