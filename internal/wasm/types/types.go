// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package types contains the WASM value type constants.
package types

import "fmt"

// ValueType represents a WASM value type, encoded with its binary
// representation.
type ValueType byte

const (
	// I32 represents a 32-bit integer.
	I32 ValueType = 0x7F

	// I64 represents a 64-bit integer.
	I64 ValueType = 0x7E

	// F32 represents a 32-bit float.
	F32 ValueType = 0x7D

	// F64 represents a 64-bit float.
	F64 ValueType = 0x7C
)

// Valid returns true if t is one of the four MVP value types.
func (t ValueType) Valid() bool {
	switch t {
	case I32, I64, F32, F64:
		return true
	}
	return false
}

func (t ValueType) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	}
	return fmt.Sprintf("valuetype(0x%x)", byte(t))
}
