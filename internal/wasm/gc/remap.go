// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package gc

import (
	"bytes"
	"fmt"

	"github.com/cdetrio/wasm-gc/internal/wasm/encoding"
	"github.com/cdetrio/wasm-gc/internal/wasm/instruction"
	"github.com/cdetrio/wasm-gc/internal/wasm/module"
	"github.com/cdetrio/wasm-gc/logging"
)

// dead marks an entity with no index in the output. It must never appear
// in an index written back into the module.
const dead = ^uint32(0)

// remapContext holds one old-to-new index table per index space. Each
// table is indexed by space-wide old index: the import-origin entries of a
// space occupy the low slots, followed by the module-defined entries, so
// surviving imports always renumber below surviving module definitions.
type remapContext struct {
	analysis  *analysis
	logger    logging.Logger
	demangle  bool
	demangler func(string) string

	types     []uint32
	functions []uint32
	tables    []uint32
	memories  []uint32
	globals   []uint32
}

func newRemapContext(m *module.Module, a *analysis, logger logging.Logger, demangle bool, demangler func(string) string) *remapContext {
	r := &remapContext{
		analysis:  a,
		logger:    logger,
		demangle:  demangle,
		demangler: demangler,
	}

	removed := uint32(0)
	for i := range m.Type.Functions {
		if _, ok := a.types[uint32(i)]; ok {
			r.types = append(r.types, uint32(i)-removed)
		} else {
			r.dropped("type", uint32(i))
			r.types = append(r.types, dead)
			removed++
		}
	}

	var nfunctions, ntables, nmemories, nglobals uint32
	for i, imp := range m.Import.Imports {
		var dst *[]uint32
		var n *uint32
		switch imp.Descriptor.Kind() {
		case module.FunctionImportType:
			dst, n = &r.functions, &nfunctions
		case module.TableImportType:
			dst, n = &r.tables, &ntables
		case module.MemoryImportType:
			dst, n = &r.memories, &nmemories
		case module.GlobalImportType:
			dst, n = &r.globals, &nglobals
		}
		if _, ok := a.imports[uint32(i)]; ok {
			*dst = append(*dst, *n)
			*n++
		} else {
			r.dropped("import", uint32(i))
			*dst = append(*dst, dead)
		}
	}
	for i := range m.Function.TypeIndices {
		if _, ok := a.functions[uint32(i)]; ok {
			r.functions = append(r.functions, nfunctions)
			nfunctions++
		} else {
			r.dropped("function", uint32(i))
			r.functions = append(r.functions, dead)
		}
	}
	for i := range m.Table.Tables {
		if _, ok := a.tables[uint32(i)]; ok {
			r.tables = append(r.tables, ntables)
			ntables++
		} else {
			r.dropped("table", uint32(i))
			r.tables = append(r.tables, dead)
		}
	}
	for i := range m.Memory.Memories {
		if _, ok := a.memories[uint32(i)]; ok {
			r.memories = append(r.memories, nmemories)
			nmemories++
		} else {
			r.dropped("memory", uint32(i))
			r.memories = append(r.memories, dead)
		}
	}
	for i := range m.Global.Globals {
		if _, ok := a.globals[uint32(i)]; ok {
			r.globals = append(r.globals, nglobals)
			nglobals++
		} else {
			r.dropped("global", uint32(i))
			r.globals = append(r.globals, dead)
		}
	}

	return r
}

func (r *remapContext) dropped(kind string, idx uint32) {
	r.logger.WithFields(map[string]interface{}{"kind": kind, "index": idx}).Debug("removing dead entity")
}

// remapModule removes dead entries from every section of m and rewrites
// all index references to the surviving-entity numbering.
func (r *remapContext) remapModule(m *module.Module, entries []*module.CodeEntry) error {
	r.remapTypeSection(m)
	r.remapImportSection(m)
	r.remapFunctionSection(m)
	r.remapTableSection(m)
	r.remapMemorySection(m)
	r.remapGlobalSection(m)
	r.remapExportSection(m)
	r.remapStartSection(m)
	if err := r.remapElementSection(m); err != nil {
		return err
	}
	if err := r.remapCodeSection(m, entries); err != nil {
		return err
	}
	r.remapDataSection(m)
	return r.remapNameSection(m)
}

func (r *remapContext) remapTypeSection(m *module.Module) {
	m.Type.Functions = retain(r.analysis.types, m.Type.Functions)
}

func (r *remapContext) remapImportSection(m *module.Module) {
	m.Import.Imports = retain(r.analysis.imports, m.Import.Imports)
	for i, imp := range m.Import.Imports {
		if desc, ok := imp.Descriptor.(module.FunctionImport); ok {
			desc.Func = r.typeIdx(desc.Func)
			m.Import.Imports[i].Descriptor = desc
		}
	}
}

func (r *remapContext) remapFunctionSection(m *module.Module) {
	m.Function.TypeIndices = retain(r.analysis.functions, m.Function.TypeIndices)
	for i, idx := range m.Function.TypeIndices {
		m.Function.TypeIndices[i] = r.typeIdx(idx)
	}
}

func (r *remapContext) remapTableSection(m *module.Module) {
	m.Table.Tables = retain(r.analysis.tables, m.Table.Tables)
}

func (r *remapContext) remapMemorySection(m *module.Module) {
	m.Memory.Memories = retain(r.analysis.memories, m.Memory.Memories)
}

func (r *remapContext) remapGlobalSection(m *module.Module) {
	m.Global.Globals = retain(r.analysis.globals, m.Global.Globals)
	for i := range m.Global.Globals {
		r.remapInstrs(m.Global.Globals[i].Init.Instrs)
	}
}

func (r *remapContext) remapExportSection(m *module.Module) {
	m.Export.Exports = retain(r.analysis.exports, m.Export.Exports)
	for i, exp := range m.Export.Exports {
		switch exp.Descriptor.Type {
		case module.FunctionExportType:
			exp.Descriptor.Index = r.functionIdx(exp.Descriptor.Index)
		case module.TableExportType:
			exp.Descriptor.Index = r.tableIdx(exp.Descriptor.Index)
		case module.MemoryExportType:
			exp.Descriptor.Index = r.memoryIdx(exp.Descriptor.Index)
		case module.GlobalExportType:
			exp.Descriptor.Index = r.globalIdx(exp.Descriptor.Index)
		}
		m.Export.Exports[i] = exp
	}
}

func (r *remapContext) remapStartSection(m *module.Module) {
	if m.Start.FuncIndex != nil {
		*m.Start.FuncIndex = r.functionIdx(*m.Start.FuncIndex)
	}
}

// remapElementSection rewrites each segment's table index and offset and
// filters dead functions out of its member list. The section itself is
// kept even when every member of every segment has been dropped.
func (r *remapContext) remapElementSection(m *module.Module) error {
	for i := range m.Element.Segments {
		seg := &m.Element.Segments[i]
		seg.Index = r.tableIdx(seg.Index)
		kept := seg.Indices[:0]
		for _, fidx := range seg.Indices {
			if int(fidx) >= len(r.functions) {
				return fmt.Errorf("element segment %d references function %d out of range", i, fidx)
			}
			n := r.functions[fidx]
			if n == dead {
				r.logger.WithFields(map[string]interface{}{"segment": i, "index": fidx}).Debug("removing dead element member")
				continue
			}
			kept = append(kept, n)
		}
		seg.Indices = kept
		r.remapInstrs(seg.Offset.Instrs)
	}
	return nil
}

func (r *remapContext) remapCodeSection(m *module.Module, entries []*module.CodeEntry) error {
	keptEntries := make([]*module.CodeEntry, 0, len(entries))
	keptSegments := m.Code.Segments[:0]
	for i := range entries {
		if _, ok := r.analysis.functions[uint32(i)]; !ok {
			r.dropped("code", uint32(i))
			continue
		}
		keptEntries = append(keptEntries, entries[i])
		keptSegments = append(keptSegments, m.Code.Segments[i])
	}
	for i, e := range keptEntries {
		r.remapInstrs(e.Func.Expr.Instrs)
		var buf bytes.Buffer
		if err := encoding.WriteCodeEntry(&buf, e); err != nil {
			return err
		}
		keptSegments[i] = module.CodeSegment{Code: buf.Bytes()}
	}
	m.Code.Segments = keptSegments
	return nil
}

// remapDataSection rewrites each segment's memory index and offset. Data
// segments are never dropped; the section is kept even when empty.
func (r *remapContext) remapDataSection(m *module.Module) {
	for i := range m.Data.Segments {
		seg := &m.Data.Segments[i]
		seg.Index = r.memoryIdx(seg.Index)
		r.remapInstrs(seg.Offset.Instrs)
	}
}

// remapInstrs rewrites index references in place. The instruction
// classification mirrors the analyzer's: anything the analyzer treats as
// inert is left untouched.
func (r *remapContext) remapInstrs(instrs []instruction.Instruction) {
	for k, instr := range instrs {
		switch i := instr.(type) {
		case instruction.Block:
			r.remapInstrs(i.Instrs)
		case instruction.Loop:
			r.remapInstrs(i.Instrs)
		case instruction.If:
			r.remapInstrs(i.Instrs)
			r.remapInstrs(i.ElseInstrs)
		case instruction.Call:
			i.Index = r.functionIdx(i.Index)
			instrs[k] = i
		case instruction.CallIndirect:
			i.Index = r.typeIdx(i.Index)
			instrs[k] = i
		case instruction.GetGlobal:
			i.Index = r.globalIdx(i.Index)
			instrs[k] = i
		case instruction.SetGlobal:
			i.Index = r.globalIdx(i.Index)
			instrs[k] = i
		}
	}
}

func (r *remapContext) typeIdx(idx uint32) uint32     { return r.remap(r.types, idx, "type") }
func (r *remapContext) functionIdx(idx uint32) uint32 { return r.remap(r.functions, idx, "function") }
func (r *remapContext) tableIdx(idx uint32) uint32    { return r.remap(r.tables, idx, "table") }
func (r *remapContext) memoryIdx(idx uint32) uint32   { return r.remap(r.memories, idx, "memory") }
func (r *remapContext) globalIdx(idx uint32) uint32   { return r.remap(r.globals, idx, "global") }

// remap translates an old index to its new value. A live entity can never
// reference a dead one; if it does, the analyzer and remapper disagree
// and continuing would corrupt the output.
func (r *remapContext) remap(table []uint32, idx uint32, kind string) uint32 {
	if int(idx) >= len(table) {
		panic(fmt.Sprintf("%s index %d out of range", kind, idx))
	}
	n := table[idx]
	if n == dead {
		panic(fmt.Sprintf("dead %s index %d escaped collection", kind, idx))
	}
	if n != idx {
		r.logger.WithFields(map[string]interface{}{"kind": kind, "old": idx, "new": n}).Debug("remapping index")
	}
	return n
}

// retain filters list down to the entries whose index is in set,
// preserving order.
func retain[T any](set map[uint32]struct{}, list []T) []T {
	kept := list[:0]
	for i := range list {
		if _, ok := set[uint32(i)]; ok {
			kept = append(kept, list[i])
		}
	}
	return kept
}
