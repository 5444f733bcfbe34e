// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package module contains an editable representation of a WASM module.
package module

import (
	"fmt"
	"strings"

	"github.com/cdetrio/wasm-gc/internal/wasm/instruction"
	"github.com/cdetrio/wasm-gc/internal/wasm/types"
)

// Module represents a parsed WASM module. Section presence is significant
// for the element and data sections: a nil segment slice means the section
// was absent from the binary, while an empty non-nil slice round-trips as a
// present, empty section.
type Module struct {
	Version  uint32
	Start    StartSection
	Type     TypeSection
	Import   ImportSection
	Function FunctionSection
	Table    TableSection
	Memory   MemorySection
	Global   GlobalSection
	Export   ExportSection
	Element  ElementSection
	Code     CodeSection
	Data     DataSection
	Customs  []CustomSection
	Names    NameSection
}

// TypeSection represents a WASM type section.
type TypeSection struct {
	Functions []FunctionType
}

// FunctionType represents a WASM function type definition.
type FunctionType struct {
	Params  []types.ValueType
	Results []types.ValueType
}

func (f FunctionType) String() string {
	params := make([]string, len(f.Params))
	for i := range f.Params {
		params[i] = f.Params[i].String()
	}
	results := make([]string, len(f.Results))
	for i := range f.Results {
		results[i] = f.Results[i].String()
	}
	return "(" + strings.Join(params, ", ") + ") -> (" + strings.Join(results, ", ") + ")"
}

// ImportSection represents a WASM import section.
type ImportSection struct {
	Imports []Import
}

// Import represents a WASM import statement.
type Import struct {
	Module     string
	Name       string
	Descriptor ImportDescriptor
}

func (imp Import) String() string {
	return fmt.Sprintf("%v %v.%v", imp.Descriptor, imp.Module, imp.Name)
}

// ImportDescriptor represents a WASM import descriptor.
type ImportDescriptor interface {
	Kind() ImportDescriptorType
}

// ImportDescriptorType defines allowed kinds of import descriptors.
type ImportDescriptorType byte

// Defines the allowed kinds of imports.
const (
	FunctionImportType ImportDescriptorType = 0x00
	TableImportType    ImportDescriptorType = 0x01
	MemoryImportType   ImportDescriptorType = 0x02
	GlobalImportType   ImportDescriptorType = 0x03
)

func (t ImportDescriptorType) String() string {
	switch t {
	case FunctionImportType:
		return "func"
	case TableImportType:
		return "table"
	case MemoryImportType:
		return "memory"
	case GlobalImportType:
		return "global"
	}
	return fmt.Sprintf("import(0x%x)", byte(t))
}

// FunctionImport represents a WASM function import statement.
type FunctionImport struct {
	Func uint32 // type index of the imported function's signature
}

// Kind returns the function import type kind.
func (FunctionImport) Kind() ImportDescriptorType {
	return FunctionImportType
}

func (i FunctionImport) String() string {
	return fmt.Sprintf("func[type=%d]", i.Func)
}

// TableImport represents a WASM table import statement.
type TableImport struct {
	Type TableType
}

// Kind returns the table import type kind.
func (TableImport) Kind() ImportDescriptorType {
	return TableImportType
}

func (i TableImport) String() string {
	return "table"
}

// MemoryImport represents a WASM memory import statement.
type MemoryImport struct {
	Mem MemType
}

// Kind returns the memory import type kind.
func (MemoryImport) Kind() ImportDescriptorType {
	return MemoryImportType
}

func (i MemoryImport) String() string {
	return "memory"
}

// GlobalImport represents a WASM global import statement.
type GlobalImport struct {
	Type GlobalType
}

// Kind returns the global import type kind.
func (GlobalImport) Kind() ImportDescriptorType {
	return GlobalImportType
}

func (i GlobalImport) String() string {
	return "global"
}

// FunctionSection represents a WASM function section.
type FunctionSection struct {
	TypeIndices []uint32
}

// TableSection represents a WASM table section.
type TableSection struct {
	Tables []TableType
}

// TableType represents a WASM table descriptor.
type TableType struct {
	ElementType byte
	Lim         Limit
}

// MemorySection represents a WASM memory section.
type MemorySection struct {
	Memories []MemType
}

// MemType represents a WASM memory descriptor.
type MemType struct {
	Lim Limit
}

// Limit represents a WASM limit. Max is nil when the limit is unbounded.
type Limit struct {
	Min uint32
	Max *uint32
}

// GlobalSection represents a WASM global section.
type GlobalSection struct {
	Globals []Global
}

// Global represents a WASM global definition.
type Global struct {
	Type GlobalType
	Init Expr
}

// GlobalType represents a WASM global descriptor.
type GlobalType struct {
	Type    types.ValueType
	Mutable bool
}

// ExportSection represents a WASM export section.
type ExportSection struct {
	Exports []Export
}

// Export represents a WASM export statement.
type Export struct {
	Name       string
	Descriptor ExportDescriptor
}

func (exp Export) String() string {
	return fmt.Sprintf("%v %q (%v)", exp.Descriptor.Type, exp.Name, exp.Descriptor.Index)
}

// ExportDescriptor represents a WASM export descriptor.
type ExportDescriptor struct {
	Type  ExportDescriptorType
	Index uint32
}

// ExportDescriptorType defines the allowed kinds of export descriptors.
type ExportDescriptorType byte

// Defines the allowed kinds of exports.
const (
	FunctionExportType ExportDescriptorType = 0x00
	TableExportType    ExportDescriptorType = 0x01
	MemoryExportType   ExportDescriptorType = 0x02
	GlobalExportType   ExportDescriptorType = 0x03
)

func (t ExportDescriptorType) String() string {
	switch t {
	case FunctionExportType:
		return "func"
	case TableExportType:
		return "table"
	case MemoryExportType:
		return "memory"
	case GlobalExportType:
		return "global"
	}
	return fmt.Sprintf("export(0x%x)", byte(t))
}

// StartSection represents a WASM start section. FuncIndex is nil when the
// module has no start function.
type StartSection struct {
	FuncIndex *uint32
}

// ElementSection represents a WASM element section.
type ElementSection struct {
	Segments []ElementSegment
}

// ElementSegment represents a WASM element segment.
type ElementSegment struct {
	Index   uint32 // table index
	Offset  Expr
	Indices []uint32 // function indices
}

// CodeSection represents a WASM code section.
type CodeSection struct {
	Segments []CodeSegment
}

// CodeSegment represents a WASM code segment, holding the undecoded bytes
// of one function body.
type CodeSegment struct {
	Code []byte
}

func (seg CodeSegment) String() string {
	return fmt.Sprintf("code segment (%d bytes)", len(seg.Code))
}

// CodeEntry represents a decoded code segment.
type CodeEntry struct {
	Func Function
}

// Function represents a function body: its local declarations and its
// instruction sequence.
type Function struct {
	Locals []LocalDeclaration
	Expr   Expr
}

// LocalDeclaration represents a run of Count locals of the same type.
type LocalDeclaration struct {
	Count uint32
	Type  types.ValueType
}

// Expr represents a sequence of instructions: a function body or a
// constant initializer expression.
type Expr struct {
	Instrs []instruction.Instruction
}

// DataSection represents a WASM data section.
type DataSection struct {
	Segments []DataSegment
}

// DataSegment represents a WASM data segment.
type DataSegment struct {
	Index  uint32 // memory index
	Offset Expr
	Init   []byte
}

func (seg DataSegment) String() string {
	return fmt.Sprintf("data segment (memory %d, %d bytes)", seg.Index, len(seg.Init))
}

// CustomSection represents a WASM custom section other than the name
// section.
type CustomSection struct {
	Name string
	Data []byte
}

// NameSection represents the decoded contents of the WASM name custom
// section.
type NameSection struct {
	Module    string
	Functions []NameMap
	Locals    []LocalNameMap
}

// Empty returns true if the name section carries no content at all.
func (s NameSection) Empty() bool {
	return s.Module == "" && len(s.Functions) == 0 && len(s.Locals) == 0
}

// NameMap maps an index to a human-readable name.
type NameMap struct {
	Index uint32
	Name  string
}

// LocalNameMap names a single local of the function at FuncIndex.
type LocalNameMap struct {
	FuncIndex uint32
	NameMap   NameMap
}

// NumFunctionImports returns the number of function imports, which prefix
// the module's function index space.
func (m *Module) NumFunctionImports() int {
	return m.numImports(FunctionImportType)
}

// NumTableImports returns the number of table imports, which prefix the
// module's table index space.
func (m *Module) NumTableImports() int {
	return m.numImports(TableImportType)
}

// NumMemoryImports returns the number of memory imports, which prefix the
// module's memory index space.
func (m *Module) NumMemoryImports() int {
	return m.numImports(MemoryImportType)
}

// NumGlobalImports returns the number of global imports, which prefix the
// module's global index space.
func (m *Module) NumGlobalImports() int {
	return m.numImports(GlobalImportType)
}

func (m *Module) numImports(kind ImportDescriptorType) int {
	n := 0
	for _, imp := range m.Import.Imports {
		if imp.Descriptor.Kind() == kind {
			n++
		}
	}
	return n
}
