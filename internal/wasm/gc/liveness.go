// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package gc

import (
	"fmt"

	"github.com/cdetrio/wasm-gc/internal/wasm/instruction"
	"github.com/cdetrio/wasm-gc/internal/wasm/module"
	"github.com/cdetrio/wasm-gc/logging"
)

// analysis holds the reachable entities of a module. The function, table,
// memory and global sets hold module-relative indices: entities reached
// through the import prefix of an index space land in the imports set
// instead, keyed by flat import-section position. Exports are keyed by
// export-section position.
type analysis struct {
	functions map[uint32]struct{}
	tables    map[uint32]struct{}
	memories  map[uint32]struct{}
	globals   map[uint32]struct{}
	types     map[uint32]struct{}
	imports   map[uint32]struct{}
	exports   map[uint32]struct{}
}

func newAnalysis() *analysis {
	return &analysis{
		functions: map[uint32]struct{}{},
		tables:    map[uint32]struct{}{},
		memories:  map[uint32]struct{}{},
		globals:   map[uint32]struct{}{},
		types:     map[uint32]struct{}{},
		imports:   map[uint32]struct{}{},
		exports:   map[uint32]struct{}{},
	}
}

type liveContext struct {
	module    *module.Module
	entries   []*module.CodeEntry
	blacklist map[string]struct{}
	logger    logging.Logger
	analysis  *analysis

	importedFuncs    int
	importedTables   int
	importedMemories int
	importedGlobals  int

	// pending holds module-relative indices of live functions whose bodies
	// have not been walked yet. Draining a worklist instead of recursing
	// across call edges keeps the stack flat on deep call graphs.
	pending []uint32
}

// analyze computes the least fixed point of reachability from the module's
// root set: non-blacklisted exports, imported memories, data segments,
// module-defined tables, element segment targets and the start function.
func analyze(m *module.Module, entries []*module.CodeEntry, blacklist map[string]struct{}, logger logging.Logger) (*analysis, error) {
	if len(m.Function.TypeIndices) != len(entries) {
		return nil, fmt.Errorf("function and code sections have inconsistent lengths (%d vs. %d)",
			len(m.Function.TypeIndices), len(entries))
	}

	cx := &liveContext{
		module:           m,
		entries:          entries,
		blacklist:        blacklist,
		logger:           logger,
		analysis:         newAnalysis(),
		importedFuncs:    m.NumFunctionImports(),
		importedTables:   m.NumTableImports(),
		importedMemories: m.NumMemoryImports(),
		importedGlobals:  m.NumGlobalImports(),
	}

	for i, exp := range m.Export.Exports {
		if err := cx.markExport(exp, uint32(i)); err != nil {
			return nil, err
		}
	}
	for i, imp := range m.Import.Imports {
		if imp.Descriptor.Kind() == module.MemoryImportType {
			if err := cx.markImport(uint32(i)); err != nil {
				return nil, err
			}
		}
	}
	for i := range m.Data.Segments {
		seg := &m.Data.Segments[i]
		if err := cx.markMemory(seg.Index); err != nil {
			return nil, err
		}
		if err := cx.markInstrs(seg.Offset.Instrs); err != nil {
			return nil, err
		}
	}
	for i := range m.Table.Tables {
		if err := cx.markTable(uint32(cx.importedTables + i)); err != nil {
			return nil, err
		}
	}
	for i := range m.Element.Segments {
		// Segment members are not roots: members reachable through no
		// other path are filtered out of the segment by the remapper.
		seg := &m.Element.Segments[i]
		if err := cx.markTable(seg.Index); err != nil {
			return nil, err
		}
		if err := cx.markInstrs(seg.Offset.Instrs); err != nil {
			return nil, err
		}
	}
	if m.Start.FuncIndex != nil {
		if err := cx.markFunction(*m.Start.FuncIndex); err != nil {
			return nil, err
		}
	}

	for len(cx.pending) > 0 {
		idx := cx.pending[len(cx.pending)-1]
		cx.pending = cx.pending[:len(cx.pending)-1]
		if err := cx.markInstrs(cx.entries[idx].Func.Expr.Instrs); err != nil {
			return nil, err
		}
	}

	return cx.analysis, nil
}

func (cx *liveContext) markExport(exp module.Export, idx uint32) error {
	if _, ok := cx.blacklist[exp.Name]; ok {
		cx.logger.WithFields(map[string]interface{}{"name": exp.Name}).Debug("skipping blacklisted export")
		return nil
	}
	cx.analysis.exports[idx] = struct{}{}
	switch exp.Descriptor.Type {
	case module.FunctionExportType:
		return cx.markFunction(exp.Descriptor.Index)
	case module.TableExportType:
		return cx.markTable(exp.Descriptor.Index)
	case module.MemoryExportType:
		return cx.markMemory(exp.Descriptor.Index)
	case module.GlobalExportType:
		return cx.markGlobal(exp.Descriptor.Index)
	}
	return fmt.Errorf("illegal export descriptor kind %v", exp.Descriptor.Type)
}

func (cx *liveContext) markImport(idx uint32) error {
	if int(idx) >= len(cx.module.Import.Imports) {
		return fmt.Errorf("import index %d out of range", idx)
	}
	if _, ok := cx.analysis.imports[idx]; ok {
		return nil
	}
	cx.analysis.imports[idx] = struct{}{}
	imp := cx.module.Import.Imports[idx]
	cx.logger.WithFields(map[string]interface{}{"index": idx, "name": imp.Name}).Debug("marking import")
	switch desc := imp.Descriptor.(type) {
	case module.FunctionImport:
		return cx.markType(desc.Func)
	case module.MemoryImport:
		return cx.markMemory(0)
	}
	return nil
}

// markImportOfKind resolves the idx-th import of the given kind to its flat
// import-section position and marks it.
func (cx *liveContext) markImportOfKind(kind module.ImportDescriptorType, idx uint32) error {
	seen := uint32(0)
	for i, imp := range cx.module.Import.Imports {
		if imp.Descriptor.Kind() != kind {
			continue
		}
		if seen == idx {
			return cx.markImport(uint32(i))
		}
		seen++
	}
	return fmt.Errorf("no imported %v with index %d", kind, idx)
}

func (cx *liveContext) markFunction(idx uint32) error {
	if int(idx) < cx.importedFuncs {
		return cx.markImportOfKind(module.FunctionImportType, idx)
	}
	idx -= uint32(cx.importedFuncs)
	if int(idx) >= len(cx.module.Function.TypeIndices) {
		return fmt.Errorf("function index %d out of range", idx+uint32(cx.importedFuncs))
	}
	if _, ok := cx.analysis.functions[idx]; ok {
		return nil
	}
	cx.analysis.functions[idx] = struct{}{}
	cx.logger.WithFields(map[string]interface{}{"index": idx}).Debug("marking function")
	if err := cx.markType(cx.module.Function.TypeIndices[idx]); err != nil {
		return err
	}
	cx.pending = append(cx.pending, idx)
	return nil
}

func (cx *liveContext) markTable(idx uint32) error {
	if int(idx) < cx.importedTables {
		return cx.markImportOfKind(module.TableImportType, idx)
	}
	idx -= uint32(cx.importedTables)
	if int(idx) >= len(cx.module.Table.Tables) {
		return fmt.Errorf("table index %d out of range", idx+uint32(cx.importedTables))
	}
	cx.analysis.tables[idx] = struct{}{}
	return nil
}

func (cx *liveContext) markMemory(idx uint32) error {
	if int(idx) < cx.importedMemories {
		return cx.markImportOfKind(module.MemoryImportType, idx)
	}
	idx -= uint32(cx.importedMemories)
	if int(idx) >= len(cx.module.Memory.Memories) {
		return fmt.Errorf("memory index %d out of range", idx+uint32(cx.importedMemories))
	}
	cx.analysis.memories[idx] = struct{}{}
	return nil
}

func (cx *liveContext) markGlobal(idx uint32) error {
	if int(idx) < cx.importedGlobals {
		return cx.markImportOfKind(module.GlobalImportType, idx)
	}
	idx -= uint32(cx.importedGlobals)
	if int(idx) >= len(cx.module.Global.Globals) {
		return fmt.Errorf("global index %d out of range", idx+uint32(cx.importedGlobals))
	}
	if _, ok := cx.analysis.globals[idx]; ok {
		return nil
	}
	cx.analysis.globals[idx] = struct{}{}
	cx.logger.WithFields(map[string]interface{}{"index": idx}).Debug("marking global")
	return cx.markInstrs(cx.module.Global.Globals[idx].Init.Instrs)
}

func (cx *liveContext) markType(idx uint32) error {
	if int(idx) >= len(cx.module.Type.Functions) {
		return fmt.Errorf("type index %d out of range", idx)
	}
	cx.analysis.types[idx] = struct{}{}
	return nil
}

// markInstrs walks an instruction sequence, marking the entities its index
// references point at. Only calls, indirect calls, global accesses and
// structured instructions contribute references.
func (cx *liveContext) markInstrs(instrs []instruction.Instruction) error {
	for _, instr := range instrs {
		var err error
		switch i := instr.(type) {
		case instruction.Call:
			err = cx.markFunction(i.Index)
		case instruction.CallIndirect:
			err = cx.markType(i.Index)
		case instruction.GetGlobal:
			err = cx.markGlobal(i.Index)
		case instruction.SetGlobal:
			err = cx.markGlobal(i.Index)
		case instruction.StructuredInstruction:
			err = cx.markInstrs(i.Instructions())
		}
		if err != nil {
			return err
		}
	}
	return nil
}
