// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package opcode contains constants for the WASM MVP instruction set.
package opcode

// Opcode represents a WASM instruction opcode.
type Opcode byte

// Control instructions.
const (
	Unreachable  Opcode = 0x00
	Nop          Opcode = 0x01
	Block        Opcode = 0x02
	Loop         Opcode = 0x03
	If           Opcode = 0x04
	Else         Opcode = 0x05
	End          Opcode = 0x0B
	Br           Opcode = 0x0C
	BrIf         Opcode = 0x0D
	BrTable      Opcode = 0x0E
	Return       Opcode = 0x0F
	Call         Opcode = 0x10
	CallIndirect Opcode = 0x11
)

// Parametric instructions.
const (
	Drop   Opcode = 0x1A
	Select Opcode = 0x1B
)

// Variable instructions.
const (
	GetLocal  Opcode = 0x20
	SetLocal  Opcode = 0x21
	TeeLocal  Opcode = 0x22
	GetGlobal Opcode = 0x23
	SetGlobal Opcode = 0x24
)

// Memory instructions.
const (
	I32Load       Opcode = 0x28
	I64Load       Opcode = 0x29
	F32Load       Opcode = 0x2A
	F64Load       Opcode = 0x2B
	I32Load8S     Opcode = 0x2C
	I32Load8U     Opcode = 0x2D
	I32Load16S    Opcode = 0x2E
	I32Load16U    Opcode = 0x2F
	I64Load8S     Opcode = 0x30
	I64Load8U     Opcode = 0x31
	I64Load16S    Opcode = 0x32
	I64Load16U    Opcode = 0x33
	I64Load32S    Opcode = 0x34
	I64Load32U    Opcode = 0x35
	I32Store      Opcode = 0x36
	I64Store      Opcode = 0x37
	F32Store      Opcode = 0x38
	F64Store      Opcode = 0x39
	I32Store8     Opcode = 0x3A
	I32Store16    Opcode = 0x3B
	I64Store8     Opcode = 0x3C
	I64Store16    Opcode = 0x3D
	I64Store32    Opcode = 0x3E
	CurrentMemory Opcode = 0x3F
	GrowMemory    Opcode = 0x40
)

// Numeric instructions.
const (
	I32Const Opcode = 0x41
	I64Const Opcode = 0x42
	F32Const Opcode = 0x43
	F64Const Opcode = 0x44

	I32Eqz Opcode = 0x45
	I32Eq  Opcode = 0x46
	I32Ne  Opcode = 0x47
	I32LtS Opcode = 0x48
	I32LtU Opcode = 0x49
	I32GtS Opcode = 0x4A
	I32GtU Opcode = 0x4B
	I32LeS Opcode = 0x4C
	I32LeU Opcode = 0x4D
	I32GeS Opcode = 0x4E
	I32GeU Opcode = 0x4F

	I64Eqz Opcode = 0x50
	I64Eq  Opcode = 0x51
	I64Ne  Opcode = 0x52
	I64LtS Opcode = 0x53
	I64LtU Opcode = 0x54
	I64GtS Opcode = 0x55
	I64GtU Opcode = 0x56
	I64LeS Opcode = 0x57
	I64LeU Opcode = 0x58
	I64GeS Opcode = 0x59
	I64GeU Opcode = 0x5A

	F32Eq Opcode = 0x5B
	F32Ne Opcode = 0x5C
	F32Lt Opcode = 0x5D
	F32Gt Opcode = 0x5E
	F32Le Opcode = 0x5F
	F32Ge Opcode = 0x60

	F64Eq Opcode = 0x61
	F64Ne Opcode = 0x62
	F64Lt Opcode = 0x63
	F64Gt Opcode = 0x64
	F64Le Opcode = 0x65
	F64Ge Opcode = 0x66

	I32Clz    Opcode = 0x67
	I32Ctz    Opcode = 0x68
	I32Popcnt Opcode = 0x69
	I32Add    Opcode = 0x6A
	I32Sub    Opcode = 0x6B
	I32Mul    Opcode = 0x6C
	I32DivS   Opcode = 0x6D
	I32DivU   Opcode = 0x6E
	I32RemS   Opcode = 0x6F
	I32RemU   Opcode = 0x70
	I32And    Opcode = 0x71
	I32Or     Opcode = 0x72
	I32Xor    Opcode = 0x73
	I32Shl    Opcode = 0x74
	I32ShrS   Opcode = 0x75
	I32ShrU   Opcode = 0x76
	I32Rotl   Opcode = 0x77
	I32Rotr   Opcode = 0x78

	I64Clz    Opcode = 0x79
	I64Ctz    Opcode = 0x7A
	I64Popcnt Opcode = 0x7B
	I64Add    Opcode = 0x7C
	I64Sub    Opcode = 0x7D
	I64Mul    Opcode = 0x7E
	I64DivS   Opcode = 0x7F
	I64DivU   Opcode = 0x80
	I64RemS   Opcode = 0x81
	I64RemU   Opcode = 0x82
	I64And    Opcode = 0x83
	I64Or     Opcode = 0x84
	I64Xor    Opcode = 0x85
	I64Shl    Opcode = 0x86
	I64ShrS   Opcode = 0x87
	I64ShrU   Opcode = 0x88
	I64Rotl   Opcode = 0x89
	I64Rotr   Opcode = 0x8A

	F32Abs      Opcode = 0x8B
	F32Neg      Opcode = 0x8C
	F32Ceil     Opcode = 0x8D
	F32Floor    Opcode = 0x8E
	F32Trunc    Opcode = 0x8F
	F32Nearest  Opcode = 0x90
	F32Sqrt     Opcode = 0x91
	F32Add      Opcode = 0x92
	F32Sub      Opcode = 0x93
	F32Mul      Opcode = 0x94
	F32Div      Opcode = 0x95
	F32Min      Opcode = 0x96
	F32Max      Opcode = 0x97
	F32Copysign Opcode = 0x98

	F64Abs      Opcode = 0x99
	F64Neg      Opcode = 0x9A
	F64Ceil     Opcode = 0x9B
	F64Floor    Opcode = 0x9C
	F64Trunc    Opcode = 0x9D
	F64Nearest  Opcode = 0x9E
	F64Sqrt     Opcode = 0x9F
	F64Add      Opcode = 0xA0
	F64Sub      Opcode = 0xA1
	F64Mul      Opcode = 0xA2
	F64Div      Opcode = 0xA3
	F64Min      Opcode = 0xA4
	F64Max      Opcode = 0xA5
	F64Copysign Opcode = 0xA6

	I32WrapI64        Opcode = 0xA7
	I32TruncSF32      Opcode = 0xA8
	I32TruncUF32      Opcode = 0xA9
	I32TruncSF64      Opcode = 0xAA
	I32TruncUF64      Opcode = 0xAB
	I64ExtendSI32     Opcode = 0xAC
	I64ExtendUI32     Opcode = 0xAD
	I64TruncSF32      Opcode = 0xAE
	I64TruncUF32      Opcode = 0xAF
	I64TruncSF64      Opcode = 0xB0
	I64TruncUF64      Opcode = 0xB1
	F32ConvertSI32    Opcode = 0xB2
	F32ConvertUI32    Opcode = 0xB3
	F32ConvertSI64    Opcode = 0xB4
	F32ConvertUI64    Opcode = 0xB5
	F32DemoteF64      Opcode = 0xB6
	F64ConvertSI32    Opcode = 0xB7
	F64ConvertUI32    Opcode = 0xB8
	F64ConvertSI64    Opcode = 0xB9
	F64ConvertUI64    Opcode = 0xBA
	F64PromoteF32     Opcode = 0xBB
	I32ReinterpretF32 Opcode = 0xBC
	I64ReinterpretF64 Opcode = 0xBD
	F32ReinterpretI32 Opcode = 0xBE
	F64ReinterpretI64 Opcode = 0xBF
)
