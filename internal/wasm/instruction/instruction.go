// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package instruction defines WASM instruction types.
package instruction

import (
	"github.com/cdetrio/wasm-gc/internal/wasm/opcode"
	"github.com/cdetrio/wasm-gc/internal/wasm/types"
)

// Instruction represents a single WASM instruction.
type Instruction interface {
	Op() opcode.Opcode
	ImmediateArgs() []interface{}
}

// StructuredInstruction represents a structured control instruction that
// encloses a nested instruction sequence.
type StructuredInstruction interface {
	Instruction
	BlockType() *types.ValueType
	Instructions() []Instruction
}

// NoImmediateArgs provides the ImmediateArgs function for instructions
// without immediate arguments.
type NoImmediateArgs struct{}

// ImmediateArgs returns the immediate arguments of the instruction.
func (NoImmediateArgs) ImmediateArgs() []interface{} {
	return nil
}
