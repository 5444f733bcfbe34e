// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package encoding

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/cdetrio/wasm-gc/internal/leb128"
	"github.com/cdetrio/wasm-gc/internal/wasm/constant"
	"github.com/cdetrio/wasm-gc/internal/wasm/instruction"
	"github.com/cdetrio/wasm-gc/internal/wasm/module"
	"github.com/cdetrio/wasm-gc/internal/wasm/opcode"
	"github.com/cdetrio/wasm-gc/internal/wasm/types"
)

func codeBytes(t *testing.T, fn module.Function) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteCodeEntry(&buf, &module.CodeEntry{Func: fn}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func constExpr(instrs ...instruction.Instruction) module.Expr {
	return module.Expr{Instrs: instrs}
}

func u32(v uint32) *uint32 {
	return &v
}

func testModule(t *testing.T) *module.Module {
	t.Helper()
	i32 := types.I32
	return &module.Module{
		Version: 1,
		Type: module.TypeSection{
			Functions: []module.FunctionType{
				{},
				{Params: []types.ValueType{types.I32, types.I64}, Results: []types.ValueType{types.I32}},
			},
		},
		Import: module.ImportSection{
			Imports: []module.Import{
				{Module: "env", Name: "f", Descriptor: module.FunctionImport{Func: 1}},
				{Module: "env", Name: "t", Descriptor: module.TableImport{Type: module.TableType{ElementType: constant.ElementTypeAnyFunc, Lim: module.Limit{Min: 1}}}},
				{Module: "env", Name: "m", Descriptor: module.MemoryImport{Mem: module.MemType{Lim: module.Limit{Min: 1, Max: u32(4)}}}},
				{Module: "env", Name: "g", Descriptor: module.GlobalImport{Type: module.GlobalType{Type: types.I64}}},
			},
		},
		Function: module.FunctionSection{TypeIndices: []uint32{0, 1}},
		Table: module.TableSection{
			Tables: []module.TableType{{ElementType: constant.ElementTypeAnyFunc, Lim: module.Limit{Min: 2, Max: u32(2)}}},
		},
		Global: module.GlobalSection{
			Globals: []module.Global{
				{Type: module.GlobalType{Type: types.I32, Mutable: true}, Init: constExpr(instruction.I32Const{Value: -3})},
				{Type: module.GlobalType{Type: types.F64}, Init: constExpr(instruction.F64Const{Value: 0.5})},
			},
		},
		Export: module.ExportSection{
			Exports: []module.Export{
				{Name: "run", Descriptor: module.ExportDescriptor{Type: module.FunctionExportType, Index: 2}},
				{Name: "mem", Descriptor: module.ExportDescriptor{Type: module.MemoryExportType, Index: 0}},
			},
		},
		Start: module.StartSection{FuncIndex: u32(1)},
		Element: module.ElementSection{
			Segments: []module.ElementSegment{
				{Index: 0, Offset: constExpr(instruction.I32Const{Value: 0}), Indices: []uint32{1, 2}},
			},
		},
		Code: module.CodeSection{
			Segments: []module.CodeSegment{
				{Code: codeBytes(t, module.Function{
					Locals: []module.LocalDeclaration{{Count: 2, Type: types.I32}},
					Expr: module.Expr{Instrs: []instruction.Instruction{
						instruction.Block{Type: &i32, Instrs: []instruction.Instruction{
							instruction.I32Const{Value: 7},
							instruction.BrIf{Index: 0},
							instruction.I32Const{Value: 8},
						}},
						instruction.Drop{},
					}},
				})},
				{Code: codeBytes(t, module.Function{
					Expr: module.Expr{Instrs: []instruction.Instruction{
						instruction.If{
							Instrs:     []instruction.Instruction{instruction.Call{Index: 0}},
							ElseInstrs: []instruction.Instruction{instruction.Nop{}},
						},
						instruction.GetGlobal{Index: 1},
						instruction.Load{Code: opcode.I32Load, Align: 2, Offset: 16},
						instruction.Store{Code: opcode.I32Store, Align: 2, Offset: 16},
						instruction.Numeric{Code: opcode.I32Add},
					}},
				})},
			},
		},
		Data: module.DataSection{
			Segments: []module.DataSegment{
				{Index: 0, Offset: constExpr(instruction.I32Const{Value: 1024}), Init: []byte("hello")},
			},
		},
		Customs: []module.CustomSection{
			{Name: "producers", Data: []byte{0x00}},
		},
		Names: module.NameSection{
			Module:    "test",
			Functions: []module.NameMap{{Index: 1, Name: "one"}, {Index: 2, Name: "two"}},
			Locals: []module.LocalNameMap{
				{FuncIndex: 1, NameMap: module.NameMap{Index: 0, Name: "a"}},
				{FuncIndex: 1, NameMap: module.NameMap{Index: 1, Name: "b"}},
				{FuncIndex: 2, NameMap: module.NameMap{Index: 0, Name: "c"}},
			},
		},
	}
}

func TestRoundtrip(t *testing.T) {

	exp := testModule(t)

	var buf bytes.Buffer
	if err := WriteModule(&buf, exp); err != nil {
		t.Fatal(err)
	}

	result, err := ReadModule(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(exp, result, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("modules are not equal (-want +got):\n%s", diff)
	}

	var buf2 bytes.Buffer
	if err := WriteModule(&buf2, result); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), buf2.Bytes()) {
		t.Fatal("write-read-write is not stable")
	}
}

func TestRoundtripCodeEntries(t *testing.T) {

	m := testModule(t)

	entries, err := CodeEntries(m)
	if err != nil {
		t.Fatal(err)
	}

	for i, e := range entries {
		var buf bytes.Buffer
		if err := WriteCodeEntry(&buf, e); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(m.Code.Segments[i].Code, buf.Bytes()) {
			t.Fatalf("code segment %d did not round-trip", i)
		}
	}
}

func TestReadModuleIllegalMagic(t *testing.T) {

	if _, err := ReadModule(bytes.NewReader([]byte("\x00asn\x01\x00\x00\x00"))); err == nil {
		t.Fatal("expected error on illegal magic")
	}
}

func TestReadModuleSectionLengthMismatch(t *testing.T) {

	// A function section declaring one function without a code section is
	// structurally broken.
	var buf bytes.Buffer
	buf.Write(constant.Magic)
	buf.Write(constant.Version)
	buf.WriteByte(sectionFunction)
	if err := leb128.WriteVarUint32(&buf, 2); err != nil {
		t.Fatal(err)
	}
	if err := leb128.WriteVarUint32(&buf, 1); err != nil { // vector length
		t.Fatal(err)
	}
	if err := leb128.WriteVarUint32(&buf, 0); err != nil { // type index
		t.Fatal(err)
	}

	if _, err := ReadModule(bytes.NewReader(buf.Bytes())); err == nil {
		t.Fatal("expected error on function section without code section")
	}
}

func TestReadModuleUnknownNameSubsection(t *testing.T) {

	var payload bytes.Buffer
	if err := leb128.WriteVarUint32(&payload, 4); err != nil {
		t.Fatal(err)
	}
	payload.WriteString("name")
	payload.WriteByte(7) // unknown subsection tag
	if err := leb128.WriteVarUint32(&payload, 0); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	buf.Write(constant.Magic)
	buf.Write(constant.Version)
	buf.WriteByte(sectionCustom)
	if err := leb128.WriteVarUint32(&buf, uint32(payload.Len())); err != nil {
		t.Fatal(err)
	}
	buf.Write(payload.Bytes())

	if _, err := ReadModule(bytes.NewReader(buf.Bytes())); err == nil {
		t.Fatal("expected error on unknown name subsection type")
	}
}

func TestReadModuleIllFormedName(t *testing.T) {

	var payload bytes.Buffer
	if err := leb128.WriteVarUint32(&payload, 2); err != nil {
		t.Fatal(err)
	}
	payload.Write([]byte{0xFF, 0xFE}) // not utf-8

	var buf bytes.Buffer
	buf.Write(constant.Magic)
	buf.Write(constant.Version)
	buf.WriteByte(sectionCustom)
	if err := leb128.WriteVarUint32(&buf, uint32(payload.Len())); err != nil {
		t.Fatal(err)
	}
	buf.Write(payload.Bytes())

	if _, err := ReadModule(bytes.NewReader(buf.Bytes())); err == nil {
		t.Fatal("expected error on ill-formed section name")
	}
}

func TestEmptySectionPresence(t *testing.T) {

	// A present, empty element or data section survives a round-trip; an
	// absent one stays absent.
	present := &module.Module{
		Version: 1,
		Element: module.ElementSection{Segments: []module.ElementSegment{}},
		Data:    module.DataSection{Segments: []module.DataSegment{}},
	}

	var buf bytes.Buffer
	if err := WriteModule(&buf, present); err != nil {
		t.Fatal(err)
	}
	result, err := ReadModule(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if result.Element.Segments == nil || result.Data.Segments == nil {
		t.Fatal("present empty sections were dropped")
	}

	absent := &module.Module{Version: 1}
	buf.Reset()
	if err := WriteModule(&buf, absent); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 8 {
		t.Fatalf("expected bare module header, got %d bytes", buf.Len())
	}
}
