// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package instruction

import (
	"github.com/cdetrio/wasm-gc/internal/wasm/opcode"
)

// I32Const represents the WASM i32.const instruction.
type I32Const struct {
	Value int32
}

// Op returns the opcode of the instruction.
func (I32Const) Op() opcode.Opcode {
	return opcode.I32Const
}

// ImmediateArgs returns the i32 value to push onto the stack.
func (i I32Const) ImmediateArgs() []interface{} {
	return []interface{}{i.Value}
}

// I64Const represents the WASM i64.const instruction.
type I64Const struct {
	Value int64
}

// Op returns the opcode of the instruction.
func (I64Const) Op() opcode.Opcode {
	return opcode.I64Const
}

// ImmediateArgs returns the i64 value to push onto the stack.
func (i I64Const) ImmediateArgs() []interface{} {
	return []interface{}{i.Value}
}

// F32Const represents the WASM f32.const instruction.
type F32Const struct {
	Value float32
}

// Op returns the opcode of the instruction.
func (F32Const) Op() opcode.Opcode {
	return opcode.F32Const
}

// ImmediateArgs returns the f32 value to push onto the stack.
func (i F32Const) ImmediateArgs() []interface{} {
	return []interface{}{i.Value}
}

// F64Const represents the WASM f64.const instruction.
type F64Const struct {
	Value float64
}

// Op returns the opcode of the instruction.
func (F64Const) Op() opcode.Opcode {
	return opcode.F64Const
}

// ImmediateArgs returns the f64 value to push onto the stack.
func (i F64Const) ImmediateArgs() []interface{} {
	return []interface{}{i.Value}
}

// Numeric represents any numeric WASM instruction without immediate
// arguments, identified by its opcode alone.
type Numeric struct {
	NoImmediateArgs
	Code opcode.Opcode
}

// Op returns the opcode of the instruction.
func (i Numeric) Op() opcode.Opcode {
	return i.Code
}
