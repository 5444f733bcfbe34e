// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package gc

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/cdetrio/wasm-gc/internal/wasm/constant"
	"github.com/cdetrio/wasm-gc/internal/wasm/encoding"
	"github.com/cdetrio/wasm-gc/internal/wasm/instruction"
	"github.com/cdetrio/wasm-gc/internal/wasm/module"
	"github.com/cdetrio/wasm-gc/internal/wasm/types"
)

func codeBytes(t *testing.T, instrs ...instruction.Instruction) []byte {
	t.Helper()
	var buf bytes.Buffer
	entry := module.CodeEntry{Func: module.Function{Expr: module.Expr{Instrs: instrs}}}
	if err := encoding.WriteCodeEntry(&buf, &entry); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func liveInstrs(t *testing.T, m *module.Module, idx int) []instruction.Instruction {
	t.Helper()
	entries, err := encoding.CodeEntries(m)
	if err != nil {
		t.Fatal(err)
	}
	return entries[idx].Func.Expr.Instrs
}

func funcExport(name string, idx uint32) module.Export {
	return module.Export{Name: name, Descriptor: module.ExportDescriptor{Type: module.FunctionExportType, Index: idx}}
}

func voidType() module.FunctionType {
	return module.FunctionType{}
}

func anyTable(min uint32) module.TableType {
	return module.TableType{ElementType: constant.ElementTypeAnyFunc, Lim: module.Limit{Min: min}}
}

// revalidate ensures the collected module still round-trips through the
// binary decoder.
func revalidate(t *testing.T, m *module.Module) {
	t.Helper()
	var buf bytes.Buffer
	if err := encoding.WriteModule(&buf, m); err != nil {
		t.Fatal(err)
	}
	if _, err := encoding.ReadModule(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("collected module no longer decodes: %v", err)
	}
}

func TestDeadFunctionRemoved(t *testing.T) {

	m := &module.Module{
		Version: 1,
		Type:    module.TypeSection{Functions: []module.FunctionType{voidType()}},
		Function: module.FunctionSection{
			TypeIndices: []uint32{0, 0},
		},
		Export: module.ExportSection{Exports: []module.Export{funcExport("live", 1)}},
		Code: module.CodeSection{Segments: []module.CodeSegment{
			{Code: codeBytes(t)},
			{Code: codeBytes(t, instruction.Call{Index: 1})}, // self-recursive
		}},
	}

	if err := Run(Config{}, m); err != nil {
		t.Fatal(err)
	}

	if len(m.Function.TypeIndices) != 1 || len(m.Code.Segments) != 1 {
		t.Fatalf("expected a single surviving function, got %d", len(m.Function.TypeIndices))
	}
	if len(m.Type.Functions) != 1 {
		t.Fatalf("expected type section unchanged, got %d types", len(m.Type.Functions))
	}
	if exp := m.Export.Exports[0]; exp.Name != "live" || exp.Descriptor.Index != 0 {
		t.Fatalf("expected export \"live\" -> 0, got %v", exp)
	}
	instrs := liveInstrs(t, m, 0)
	if call, ok := instrs[0].(instruction.Call); !ok || call.Index != 0 {
		t.Fatalf("expected rewritten self-call to 0, got %v", instrs[0])
	}
	revalidate(t, m)
}

func TestBlacklistedExportRemoved(t *testing.T) {

	m := &module.Module{
		Version:  1,
		Type:     module.TypeSection{Functions: []module.FunctionType{voidType()}},
		Function: module.FunctionSection{TypeIndices: []uint32{0}},
		Export:   module.ExportSection{Exports: []module.Export{funcExport("__udivsi3", 0)}},
		Code:     module.CodeSection{Segments: []module.CodeSegment{{Code: codeBytes(t)}}},
	}

	if err := Run(Config{}, m); err != nil {
		t.Fatal(err)
	}

	if len(m.Type.Functions) != 0 || len(m.Function.TypeIndices) != 0 ||
		len(m.Code.Segments) != 0 || len(m.Export.Exports) != 0 {
		t.Fatal("expected an empty module")
	}

	var buf bytes.Buffer
	if err := encoding.WriteModule(&buf, m); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 8 {
		t.Fatalf("expected bare module header, got %d bytes", buf.Len())
	}
}

func TestBlacklistedTargetKeptWhenReachable(t *testing.T) {

	m := &module.Module{
		Version:  1,
		Type:     module.TypeSection{Functions: []module.FunctionType{voidType()}},
		Function: module.FunctionSection{TypeIndices: []uint32{0, 0}},
		Export: module.ExportSection{Exports: []module.Export{
			funcExport("entry", 0),
			funcExport("memcpy", 1),
		}},
		Code: module.CodeSection{Segments: []module.CodeSegment{
			{Code: codeBytes(t, instruction.Call{Index: 1})},
			{Code: codeBytes(t)},
		}},
	}

	if err := Run(Config{}, m); err != nil {
		t.Fatal(err)
	}

	// The memcpy function survives through the call edge, but its export
	// does not root it and is dropped.
	if len(m.Function.TypeIndices) != 2 {
		t.Fatalf("expected both functions kept, got %d", len(m.Function.TypeIndices))
	}
	if len(m.Export.Exports) != 1 || m.Export.Exports[0].Name != "entry" {
		t.Fatalf("expected only the entry export, got %v", m.Export.Exports)
	}
	revalidate(t, m)
}

func TestImportPrefixPreserved(t *testing.T) {

	m := &module.Module{
		Version: 1,
		Type:    module.TypeSection{Functions: []module.FunctionType{voidType()}},
		Import: module.ImportSection{Imports: []module.Import{
			{Module: "env", Name: "a", Descriptor: module.FunctionImport{Func: 0}},
			{Module: "env", Name: "b", Descriptor: module.FunctionImport{Func: 0}},
			{Module: "env", Name: "g", Descriptor: module.GlobalImport{Type: module.GlobalType{Type: types.I32}}},
		}},
		Function: module.FunctionSection{TypeIndices: []uint32{0}},
		Export:   module.ExportSection{Exports: []module.Export{funcExport("x", 2)}},
		Code: module.CodeSection{Segments: []module.CodeSegment{
			{Code: codeBytes(t, instruction.Call{Index: 1})},
		}},
	}

	if err := Run(Config{}, m); err != nil {
		t.Fatal(err)
	}

	if len(m.Import.Imports) != 1 {
		t.Fatalf("expected a single surviving import, got %v", m.Import.Imports)
	}
	if imp := m.Import.Imports[0]; imp.Name != "b" {
		t.Fatalf("expected import env.b to survive, got %v", imp)
	}
	if exp := m.Export.Exports[0]; exp.Descriptor.Index != 1 {
		t.Fatalf("expected export to reference function 1, got %d", exp.Descriptor.Index)
	}
	instrs := liveInstrs(t, m, 0)
	if call, ok := instrs[0].(instruction.Call); !ok || call.Index != 0 {
		t.Fatalf("expected call target 0, got %v", instrs[0])
	}
	revalidate(t, m)
}

func TestElementSegmentFiltered(t *testing.T) {

	m := &module.Module{
		Version:  1,
		Type:     module.TypeSection{Functions: []module.FunctionType{voidType()}},
		Function: module.FunctionSection{TypeIndices: []uint32{0, 0, 0}},
		Table:    module.TableSection{Tables: []module.TableType{anyTable(3)}},
		Export:   module.ExportSection{Exports: []module.Export{funcExport("keep", 1)}},
		Element: module.ElementSection{Segments: []module.ElementSegment{
			{Index: 0, Offset: module.Expr{Instrs: []instruction.Instruction{instruction.I32Const{Value: 0}}}, Indices: []uint32{0, 1, 2}},
		}},
		Code: module.CodeSection{Segments: []module.CodeSegment{
			{Code: codeBytes(t)},
			{Code: codeBytes(t)},
			{Code: codeBytes(t)},
		}},
	}

	if err := Run(Config{}, m); err != nil {
		t.Fatal(err)
	}

	if len(m.Table.Tables) != 1 {
		t.Fatal("expected table to be retained")
	}
	seg := m.Element.Segments[0]
	if len(seg.Indices) != 1 || seg.Indices[0] != 0 {
		t.Fatalf("expected element members [0], got %v", seg.Indices)
	}
	if len(m.Function.TypeIndices) != 1 {
		t.Fatalf("expected a single surviving function, got %d", len(m.Function.TypeIndices))
	}
	revalidate(t, m)
}

func TestDataSegmentKeepsMemoryLive(t *testing.T) {

	m := &module.Module{
		Version: 1,
		Memory:  module.MemorySection{Memories: []module.MemType{{Lim: module.Limit{Min: 1}}}},
		Data: module.DataSection{Segments: []module.DataSegment{
			{Index: 0, Offset: module.Expr{Instrs: []instruction.Instruction{instruction.I32Const{Value: 0}}}, Init: []byte("x")},
		}},
	}

	if err := Run(Config{}, m); err != nil {
		t.Fatal(err)
	}

	if len(m.Memory.Memories) != 1 {
		t.Fatal("expected memory kept alive by its data segment")
	}
	if len(m.Data.Segments) != 1 || m.Data.Segments[0].Index != 0 {
		t.Fatalf("expected data segment retained, got %v", m.Data.Segments)
	}
	revalidate(t, m)
}

func TestUnreferencedMemoryRemoved(t *testing.T) {

	m := &module.Module{
		Version: 1,
		Memory:  module.MemorySection{Memories: []module.MemType{{Lim: module.Limit{Min: 1}}}},
	}

	if err := Run(Config{}, m); err != nil {
		t.Fatal(err)
	}

	if len(m.Memory.Memories) != 0 {
		t.Fatal("expected unreferenced memory to be removed")
	}
}

func TestGlobalInitializerReferences(t *testing.T) {

	m := &module.Module{
		Version: 1,
		Import: module.ImportSection{Imports: []module.Import{
			{Module: "env", Name: "base", Descriptor: module.GlobalImport{Type: module.GlobalType{Type: types.I32}}},
		}},
		Global: module.GlobalSection{Globals: []module.Global{
			{Type: module.GlobalType{Type: types.I32}, Init: module.Expr{Instrs: []instruction.Instruction{instruction.I32Const{Value: 1}}}},
			{Type: module.GlobalType{Type: types.I32}, Init: module.Expr{Instrs: []instruction.Instruction{instruction.GetGlobal{Index: 0}}}},
		}},
		Export: module.ExportSection{Exports: []module.Export{
			{Name: "ptr", Descriptor: module.ExportDescriptor{Type: module.GlobalExportType, Index: 2}},
		}},
	}

	if err := Run(Config{}, m); err != nil {
		t.Fatal(err)
	}

	// The exported global's initializer references the imported global, so
	// both survive; the unreferenced module global does not.
	if len(m.Import.Imports) != 1 {
		t.Fatal("expected imported global kept alive by initializer")
	}
	if len(m.Global.Globals) != 1 {
		t.Fatalf("expected a single surviving global, got %d", len(m.Global.Globals))
	}
	if exp := m.Export.Exports[0]; exp.Descriptor.Index != 1 {
		t.Fatalf("expected export to reference global 1, got %d", exp.Descriptor.Index)
	}
	init := m.Global.Globals[0].Init.Instrs
	if g, ok := init[0].(instruction.GetGlobal); !ok || g.Index != 0 {
		t.Fatalf("expected initializer get_global 0, got %v", init[0])
	}
	revalidate(t, m)
}

func TestStartFunctionRooted(t *testing.T) {

	start := uint32(1)
	m := &module.Module{
		Version:  1,
		Type:     module.TypeSection{Functions: []module.FunctionType{voidType()}},
		Function: module.FunctionSection{TypeIndices: []uint32{0, 0}},
		Start:    module.StartSection{FuncIndex: &start},
		Code: module.CodeSection{Segments: []module.CodeSegment{
			{Code: codeBytes(t)},
			{Code: codeBytes(t)},
		}},
	}

	if err := Run(Config{}, m); err != nil {
		t.Fatal(err)
	}

	if len(m.Function.TypeIndices) != 1 {
		t.Fatalf("expected only the start function to survive, got %d", len(m.Function.TypeIndices))
	}
	if m.Start.FuncIndex == nil || *m.Start.FuncIndex != 0 {
		t.Fatalf("expected start function renumbered to 0, got %v", m.Start.FuncIndex)
	}
	revalidate(t, m)
}

func TestCallIndirectKeepsType(t *testing.T) {

	m := &module.Module{
		Version: 1,
		Type: module.TypeSection{Functions: []module.FunctionType{
			{Params: []types.ValueType{types.F32}}, // dead
			voidType(),
			{Results: []types.ValueType{types.I32}}, // call_indirect signature
		}},
		Function: module.FunctionSection{TypeIndices: []uint32{1}},
		Table:    module.TableSection{Tables: []module.TableType{anyTable(1)}},
		Export:   module.ExportSection{Exports: []module.Export{funcExport("f", 0)}},
		Code: module.CodeSection{Segments: []module.CodeSegment{
			{Code: codeBytes(t,
				instruction.I32Const{Value: 0},
				instruction.CallIndirect{Index: 2},
				instruction.Drop{},
			)},
		}},
	}

	if err := Run(Config{}, m); err != nil {
		t.Fatal(err)
	}

	if len(m.Type.Functions) != 2 {
		t.Fatalf("expected two surviving types, got %d", len(m.Type.Functions))
	}
	if m.Function.TypeIndices[0] != 0 {
		t.Fatalf("expected function type renumbered to 0, got %d", m.Function.TypeIndices[0])
	}
	instrs := liveInstrs(t, m, 0)
	ci, ok := instrs[1].(instruction.CallIndirect)
	if !ok || ci.Index != 1 {
		t.Fatalf("expected call_indirect type renumbered to 1, got %v", instrs[1])
	}
	revalidate(t, m)
}

func TestIdempotence(t *testing.T) {

	build := func() *module.Module {
		return &module.Module{
			Version:  1,
			Type:     module.TypeSection{Functions: []module.FunctionType{voidType(), {Params: []types.ValueType{types.I64}}}},
			Function: module.FunctionSection{TypeIndices: []uint32{0, 0, 0}},
			Table:    module.TableSection{Tables: []module.TableType{anyTable(2)}},
			Export:   module.ExportSection{Exports: []module.Export{funcExport("main_loop", 1)}},
			Element: module.ElementSection{Segments: []module.ElementSegment{
				{Index: 0, Offset: module.Expr{Instrs: []instruction.Instruction{instruction.I32Const{Value: 0}}}, Indices: []uint32{1}},
			}},
			Code: module.CodeSection{Segments: []module.CodeSegment{
				{Code: codeBytes(t)},
				{Code: codeBytes(t, instruction.Call{Index: 2})},
				{Code: codeBytes(t)},
			}},
			Names: module.NameSection{Functions: []module.NameMap{
				{Index: 0, Name: "dead"},
				{Index: 1, Name: "main_loop"},
				{Index: 2, Name: "helper"},
			}},
		}
	}

	once := build()
	if err := Run(Config{}, once); err != nil {
		t.Fatal(err)
	}

	twice := build()
	if err := Run(Config{}, twice); err != nil {
		t.Fatal(err)
	}
	if err := Run(Config{}, twice); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(once, twice, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("running the pass twice changed the output (-once +twice):\n%s", diff)
	}
}

func TestNameSectionRenumbered(t *testing.T) {

	build := func() *module.Module {
		return &module.Module{
			Version:  1,
			Type:     module.TypeSection{Functions: []module.FunctionType{voidType()}},
			Function: module.FunctionSection{TypeIndices: []uint32{0, 0}},
			Export:   module.ExportSection{Exports: []module.Export{funcExport("live", 1)}},
			Code: module.CodeSection{Segments: []module.CodeSegment{
				{Code: codeBytes(t)},
				{Code: codeBytes(t)},
			}},
			Names: module.NameSection{
				Module:    "m",
				Functions: []module.NameMap{{Index: 0, Name: "_ZN4deadE"}, {Index: 1, Name: "_ZN4liveE"}},
				Locals: []module.LocalNameMap{
					{FuncIndex: 0, NameMap: module.NameMap{Index: 0, Name: "a"}},
					{FuncIndex: 1, NameMap: module.NameMap{Index: 0, Name: "x"}},
				},
			},
		}
	}

	m := build()
	if err := Run(Config{}, m); err != nil {
		t.Fatal(err)
	}

	exp := module.NameSection{
		Module:    "m",
		Functions: []module.NameMap{{Index: 0, Name: "_ZN4liveE"}},
		Locals:    []module.LocalNameMap{{FuncIndex: 0, NameMap: module.NameMap{Index: 0, Name: "x"}}},
	}
	if diff := cmp.Diff(exp, m.Names, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("unexpected name section (-want +got):\n%s", diff)
	}

	// With demangling enabled, only function names change.
	m = build()
	err := Run(Config{
		Demangle:  true,
		Demangler: func(name string) string { return "demangled:" + name },
	}, m)
	if err != nil {
		t.Fatal(err)
	}
	if name := m.Names.Functions[0].Name; name != "demangled:_ZN4liveE" {
		t.Fatalf("expected demangled function name, got %q", name)
	}
	if name := m.Names.Locals[0].NameMap.Name; name != "x" {
		t.Fatalf("expected local names untouched, got %q", name)
	}
}

func TestEmptySegmentSectionsRetained(t *testing.T) {

	m := &module.Module{
		Version: 1,
		Table:   module.TableSection{Tables: []module.TableType{anyTable(1)}},
		Element: module.ElementSection{Segments: []module.ElementSegment{}},
		Data:    module.DataSection{Segments: []module.DataSegment{}},
	}

	if err := Run(Config{}, m); err != nil {
		t.Fatal(err)
	}

	if m.Element.Segments == nil || m.Data.Segments == nil {
		t.Fatal("expected empty element and data sections to be retained")
	}
	revalidate(t, m)
}

func TestCustomBlacklist(t *testing.T) {

	m := &module.Module{
		Version:  1,
		Type:     module.TypeSection{Functions: []module.FunctionType{voidType()}},
		Function: module.FunctionSection{TypeIndices: []uint32{0}},
		Export:   module.ExportSection{Exports: []module.Export{funcExport("helper", 0)}},
		Code:     module.CodeSection{Segments: []module.CodeSegment{{Code: codeBytes(t)}}},
	}

	if err := Run(Config{Blacklist: newBlacklist("helper")}, m); err != nil {
		t.Fatal(err)
	}

	if len(m.Function.TypeIndices) != 0 || len(m.Export.Exports) != 0 {
		t.Fatal("expected export in custom blacklist to be dropped")
	}
}

func TestExportOutOfRange(t *testing.T) {

	m := &module.Module{
		Version: 1,
		Export:  module.ExportSection{Exports: []module.Export{funcExport("broken", 3)}},
	}

	if err := Run(Config{}, m); err == nil {
		t.Fatal("expected error for export referencing a function out of range")
	}
}
