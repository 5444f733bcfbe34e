// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package instruction

import (
	"github.com/cdetrio/wasm-gc/internal/wasm/opcode"
)

// Drop represents a WASM drop instruction.
type Drop struct {
	NoImmediateArgs
}

// Op returns the opcode of the instruction.
func (Drop) Op() opcode.Opcode {
	return opcode.Drop
}

// Select represents a WASM select instruction.
type Select struct {
	NoImmediateArgs
}

// Op returns the opcode of the instruction.
func (Select) Op() opcode.Opcode {
	return opcode.Select
}
