// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package encoding

import (
	"bytes"
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/cdetrio/wasm-gc/internal/leb128"
	"github.com/cdetrio/wasm-gc/internal/wasm/constant"
	"github.com/cdetrio/wasm-gc/internal/wasm/instruction"
	"github.com/cdetrio/wasm-gc/internal/wasm/module"
	"github.com/cdetrio/wasm-gc/internal/wasm/opcode"
	"github.com/cdetrio/wasm-gc/internal/wasm/types"
)

// WriteModule writes a binary-encoded representation of m to w. Sections
// without content are omitted, except that a present element or data
// section (non-nil segment slice) is written even when empty.
func WriteModule(w io.Writer, m *module.Module) error {
	if _, err := w.Write(constant.Magic); err != nil {
		return err
	}
	if _, err := w.Write(constant.Version); err != nil {
		return err
	}
	if err := writeTypeSection(w, m.Type); err != nil {
		return err
	}
	if err := writeImportSection(w, m.Import); err != nil {
		return err
	}
	if err := writeFunctionSection(w, m.Function); err != nil {
		return err
	}
	if err := writeTableSection(w, m.Table); err != nil {
		return err
	}
	if err := writeMemorySection(w, m.Memory); err != nil {
		return err
	}
	if err := writeGlobalSection(w, m.Global); err != nil {
		return err
	}
	if err := writeExportSection(w, m.Export); err != nil {
		return err
	}
	if err := writeStartSection(w, m.Start); err != nil {
		return err
	}
	if err := writeElementSection(w, m.Element); err != nil {
		return err
	}
	if err := writeRawCodeSection(w, m.Code); err != nil {
		return err
	}
	if err := writeDataSection(w, m.Data); err != nil {
		return err
	}
	if err := writeNameSection(w, m.Names); err != nil {
		return err
	}
	for _, custom := range m.Customs {
		if err := writeCustomSection(w, custom); err != nil {
			return err
		}
	}
	return nil
}

// WriteCodeEntry writes a binary-encoded representation of entry to w: the
// local declarations followed by the body and the terminating end opcode.
// The output carries no size prefix; it is the payload of one code segment.
func WriteCodeEntry(w io.Writer, entry *module.CodeEntry) error {
	if err := leb128.WriteVarUint32(w, uint32(len(entry.Func.Locals))); err != nil {
		return err
	}
	for _, local := range entry.Func.Locals {
		if err := leb128.WriteVarUint32(w, local.Count); err != nil {
			return err
		}
		if err := writeValueType(w, local.Type); err != nil {
			return err
		}
	}
	return writeExpr(w, entry.Func.Expr)
}

func writeTypeSection(w io.Writer, s module.TypeSection) error {
	if len(s.Functions) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := leb128.WriteVarUint32(&buf, uint32(len(s.Functions))); err != nil {
		return err
	}
	for _, fn := range s.Functions {
		if err := buf.WriteByte(0x60); err != nil {
			return err
		}
		if err := writeValueTypeVec(&buf, fn.Params); err != nil {
			return err
		}
		if err := writeValueTypeVec(&buf, fn.Results); err != nil {
			return err
		}
	}
	return writeRawSection(w, sectionType, buf.Bytes())
}

func writeImportSection(w io.Writer, s module.ImportSection) error {
	if len(s.Imports) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := leb128.WriteVarUint32(&buf, uint32(len(s.Imports))); err != nil {
		return err
	}
	for _, imp := range s.Imports {
		if err := writeName(&buf, imp.Module); err != nil {
			return err
		}
		if err := writeName(&buf, imp.Name); err != nil {
			return err
		}
		if err := buf.WriteByte(byte(imp.Descriptor.Kind())); err != nil {
			return err
		}
		switch desc := imp.Descriptor.(type) {
		case module.FunctionImport:
			if err := leb128.WriteVarUint32(&buf, desc.Func); err != nil {
				return err
			}
		case module.TableImport:
			if err := writeTableType(&buf, desc.Type); err != nil {
				return err
			}
		case module.MemoryImport:
			if err := writeLimit(&buf, desc.Mem.Lim); err != nil {
				return err
			}
		case module.GlobalImport:
			if err := writeGlobalType(&buf, desc.Type); err != nil {
				return err
			}
		default:
			return errors.Errorf("illegal import descriptor type %T", imp.Descriptor)
		}
	}
	return writeRawSection(w, sectionImport, buf.Bytes())
}

func writeFunctionSection(w io.Writer, s module.FunctionSection) error {
	if len(s.TypeIndices) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := leb128.WriteVarUint32(&buf, uint32(len(s.TypeIndices))); err != nil {
		return err
	}
	for _, idx := range s.TypeIndices {
		if err := leb128.WriteVarUint32(&buf, idx); err != nil {
			return err
		}
	}
	return writeRawSection(w, sectionFunction, buf.Bytes())
}

func writeTableSection(w io.Writer, s module.TableSection) error {
	if len(s.Tables) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := leb128.WriteVarUint32(&buf, uint32(len(s.Tables))); err != nil {
		return err
	}
	for _, t := range s.Tables {
		if err := writeTableType(&buf, t); err != nil {
			return err
		}
	}
	return writeRawSection(w, sectionTable, buf.Bytes())
}

func writeMemorySection(w io.Writer, s module.MemorySection) error {
	if len(s.Memories) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := leb128.WriteVarUint32(&buf, uint32(len(s.Memories))); err != nil {
		return err
	}
	for _, mem := range s.Memories {
		if err := writeLimit(&buf, mem.Lim); err != nil {
			return err
		}
	}
	return writeRawSection(w, sectionMemory, buf.Bytes())
}

func writeGlobalSection(w io.Writer, s module.GlobalSection) error {
	if len(s.Globals) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := leb128.WriteVarUint32(&buf, uint32(len(s.Globals))); err != nil {
		return err
	}
	for _, g := range s.Globals {
		if err := writeGlobalType(&buf, g.Type); err != nil {
			return err
		}
		if err := writeExpr(&buf, g.Init); err != nil {
			return err
		}
	}
	return writeRawSection(w, sectionGlobal, buf.Bytes())
}

func writeExportSection(w io.Writer, s module.ExportSection) error {
	if len(s.Exports) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := leb128.WriteVarUint32(&buf, uint32(len(s.Exports))); err != nil {
		return err
	}
	for _, exp := range s.Exports {
		if err := writeName(&buf, exp.Name); err != nil {
			return err
		}
		if err := buf.WriteByte(byte(exp.Descriptor.Type)); err != nil {
			return err
		}
		if err := leb128.WriteVarUint32(&buf, exp.Descriptor.Index); err != nil {
			return err
		}
	}
	return writeRawSection(w, sectionExport, buf.Bytes())
}

func writeStartSection(w io.Writer, s module.StartSection) error {
	if s.FuncIndex == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := leb128.WriteVarUint32(&buf, *s.FuncIndex); err != nil {
		return err
	}
	return writeRawSection(w, sectionStart, buf.Bytes())
}

func writeElementSection(w io.Writer, s module.ElementSection) error {
	if s.Segments == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := leb128.WriteVarUint32(&buf, uint32(len(s.Segments))); err != nil {
		return err
	}
	for _, seg := range s.Segments {
		if err := leb128.WriteVarUint32(&buf, seg.Index); err != nil {
			return err
		}
		if err := writeExpr(&buf, seg.Offset); err != nil {
			return err
		}
		if err := leb128.WriteVarUint32(&buf, uint32(len(seg.Indices))); err != nil {
			return err
		}
		for _, idx := range seg.Indices {
			if err := leb128.WriteVarUint32(&buf, idx); err != nil {
				return err
			}
		}
	}
	return writeRawSection(w, sectionElement, buf.Bytes())
}

func writeRawCodeSection(w io.Writer, s module.CodeSection) error {
	if len(s.Segments) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := leb128.WriteVarUint32(&buf, uint32(len(s.Segments))); err != nil {
		return err
	}
	for _, seg := range s.Segments {
		if err := leb128.WriteVarUint32(&buf, uint32(len(seg.Code))); err != nil {
			return err
		}
		if _, err := buf.Write(seg.Code); err != nil {
			return err
		}
	}
	return writeRawSection(w, sectionCode, buf.Bytes())
}

func writeDataSection(w io.Writer, s module.DataSection) error {
	if s.Segments == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := leb128.WriteVarUint32(&buf, uint32(len(s.Segments))); err != nil {
		return err
	}
	for _, seg := range s.Segments {
		if err := leb128.WriteVarUint32(&buf, seg.Index); err != nil {
			return err
		}
		if err := writeExpr(&buf, seg.Offset); err != nil {
			return err
		}
		if err := leb128.WriteVarUint32(&buf, uint32(len(seg.Init))); err != nil {
			return err
		}
		if _, err := buf.Write(seg.Init); err != nil {
			return err
		}
	}
	return writeRawSection(w, sectionData, buf.Bytes())
}

func writeNameSection(w io.Writer, s module.NameSection) error {
	if s.Empty() {
		return nil
	}
	var buf bytes.Buffer
	if err := writeName(&buf, "name"); err != nil {
		return err
	}
	if s.Module != "" {
		var sub bytes.Buffer
		if err := writeName(&sub, s.Module); err != nil {
			return err
		}
		if err := writeNameSubsection(&buf, 0, sub.Bytes()); err != nil {
			return err
		}
	}
	if len(s.Functions) > 0 {
		var sub bytes.Buffer
		if err := writeNameMap(&sub, s.Functions); err != nil {
			return err
		}
		if err := writeNameSubsection(&buf, 1, sub.Bytes()); err != nil {
			return err
		}
	}
	if len(s.Locals) > 0 {
		var sub bytes.Buffer
		if err := writeLocalNameMap(&sub, s.Locals); err != nil {
			return err
		}
		if err := writeNameSubsection(&buf, 2, sub.Bytes()); err != nil {
			return err
		}
	}
	return writeRawSection(w, sectionCustom, buf.Bytes())
}

func writeNameSubsection(w io.Writer, tag byte, payload []byte) error {
	if _, err := w.Write([]byte{tag}); err != nil {
		return err
	}
	if err := leb128.WriteVarUint32(w, uint32(len(payload))); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func writeNameMap(w io.Writer, names []module.NameMap) error {
	if err := leb128.WriteVarUint32(w, uint32(len(names))); err != nil {
		return err
	}
	for _, nm := range names {
		if err := leb128.WriteVarUint32(w, nm.Index); err != nil {
			return err
		}
		if err := writeName(w, nm.Name); err != nil {
			return err
		}
	}
	return nil
}

// writeLocalNameMap encodes the flat local name list, grouping consecutive
// entries that share a function index into one inner name map.
func writeLocalNameMap(w io.Writer, locals []module.LocalNameMap) error {
	type group struct {
		fidx  uint32
		names []module.NameMap
	}
	var groups []group
	for _, l := range locals {
		if n := len(groups); n > 0 && groups[n-1].fidx == l.FuncIndex {
			groups[n-1].names = append(groups[n-1].names, l.NameMap)
			continue
		}
		groups = append(groups, group{fidx: l.FuncIndex, names: []module.NameMap{l.NameMap}})
	}
	if err := leb128.WriteVarUint32(w, uint32(len(groups))); err != nil {
		return err
	}
	for _, g := range groups {
		if err := leb128.WriteVarUint32(w, g.fidx); err != nil {
			return err
		}
		if err := writeNameMap(w, g.names); err != nil {
			return err
		}
	}
	return nil
}

func writeCustomSection(w io.Writer, custom module.CustomSection) error {
	var buf bytes.Buffer
	if err := writeName(&buf, custom.Name); err != nil {
		return err
	}
	if _, err := buf.Write(custom.Data); err != nil {
		return err
	}
	return writeRawSection(w, sectionCustom, buf.Bytes())
}

func writeRawSection(w io.Writer, id byte, payload []byte) error {
	if _, err := w.Write([]byte{id}); err != nil {
		return err
	}
	if err := leb128.WriteVarUint32(w, uint32(len(payload))); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func writeExpr(w io.Writer, e module.Expr) error {
	for _, instr := range e.Instrs {
		if err := writeInstruction(w, instr); err != nil {
			return err
		}
	}
	_, err := w.Write([]byte{byte(opcode.End)})
	return err
}

func writeInstruction(w io.Writer, instr instruction.Instruction) error {
	switch i := instr.(type) {
	case instruction.Block:
		return writeStructured(w, opcode.Block, i.Type, i.Instrs, nil)
	case instruction.Loop:
		return writeStructured(w, opcode.Loop, i.Type, i.Instrs, nil)
	case instruction.If:
		return writeStructured(w, opcode.If, i.Type, i.Instrs, i.ElseInstrs)
	}
	if _, err := w.Write([]byte{byte(instr.Op())}); err != nil {
		return err
	}
	for _, arg := range instr.ImmediateArgs() {
		var err error
		switch a := arg.(type) {
		case uint32:
			err = leb128.WriteVarUint32(w, a)
		case int32:
			err = leb128.WriteVarInt32(w, a)
		case int64:
			err = leb128.WriteVarInt64(w, a)
		case byte:
			_, err = w.Write([]byte{a})
		case float32:
			err = writeFloat32(w, a)
		case float64:
			err = writeFloat64(w, a)
		default:
			err = errors.Errorf("illegal immediate argument type %T", arg)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func writeStructured(w io.Writer, op opcode.Opcode, bt *types.ValueType, instrs, elseInstrs []instruction.Instruction) error {
	if _, err := w.Write([]byte{byte(op)}); err != nil {
		return err
	}
	if err := writeBlockType(w, bt); err != nil {
		return err
	}
	for _, instr := range instrs {
		if err := writeInstruction(w, instr); err != nil {
			return err
		}
	}
	if len(elseInstrs) > 0 {
		if _, err := w.Write([]byte{byte(opcode.Else)}); err != nil {
			return err
		}
		for _, instr := range elseInstrs {
			if err := writeInstruction(w, instr); err != nil {
				return err
			}
		}
	}
	_, err := w.Write([]byte{byte(opcode.End)})
	return err
}

func writeBlockType(w io.Writer, t *types.ValueType) error {
	b := byte(0x40)
	if t != nil {
		b = byte(*t)
	}
	_, err := w.Write([]byte{b})
	return err
}

func writeValueType(w io.Writer, t types.ValueType) error {
	_, err := w.Write([]byte{byte(t)})
	return err
}

func writeValueTypeVec(w io.Writer, vec []types.ValueType) error {
	if err := leb128.WriteVarUint32(w, uint32(len(vec))); err != nil {
		return err
	}
	for _, t := range vec {
		if err := writeValueType(w, t); err != nil {
			return err
		}
	}
	return nil
}

func writeTableType(w io.Writer, t module.TableType) error {
	if _, err := w.Write([]byte{t.ElementType}); err != nil {
		return err
	}
	return writeLimit(w, t.Lim)
}

func writeGlobalType(w io.Writer, t module.GlobalType) error {
	if err := writeValueType(w, t.Type); err != nil {
		return err
	}
	mut := byte(0)
	if t.Mutable {
		mut = 1
	}
	_, err := w.Write([]byte{mut})
	return err
}

func writeLimit(w io.Writer, lim module.Limit) error {
	flags := byte(0)
	if lim.Max != nil {
		flags = 1
	}
	if _, err := w.Write([]byte{flags}); err != nil {
		return err
	}
	if err := leb128.WriteVarUint32(w, lim.Min); err != nil {
		return err
	}
	if lim.Max != nil {
		return leb128.WriteVarUint32(w, *lim.Max)
	}
	return nil
}

func writeName(w io.Writer, name string) error {
	if err := leb128.WriteVarUint32(w, uint32(len(name))); err != nil {
		return err
	}
	_, err := io.WriteString(w, name)
	return err
}

func writeFloat32(w io.Writer, v float32) error {
	bits := math.Float32bits(v)
	buf := [4]byte{byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)}
	_, err := w.Write(buf[:])
	return err
}

func writeFloat64(w io.Writer, v float64) error {
	bits := math.Float64bits(v)
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(bits >> (8 * i))
	}
	_, err := w.Write(buf[:])
	return err
}
