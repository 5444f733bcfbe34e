// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package encoding implements a decoder and encoder for the WASM MVP
// binary format.
package encoding

import (
	"bytes"
	"io"
	"math"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/cdetrio/wasm-gc/internal/leb128"
	"github.com/cdetrio/wasm-gc/internal/wasm/constant"
	"github.com/cdetrio/wasm-gc/internal/wasm/instruction"
	"github.com/cdetrio/wasm-gc/internal/wasm/module"
	"github.com/cdetrio/wasm-gc/internal/wasm/opcode"
	"github.com/cdetrio/wasm-gc/internal/wasm/types"
)

const (
	sectionCustom byte = iota
	sectionType
	sectionImport
	sectionFunction
	sectionTable
	sectionMemory
	sectionGlobal
	sectionExport
	sectionStart
	sectionElement
	sectionCode
	sectionData
)

// ReadModule reads a binary-encoded WASM module from r.
func ReadModule(r io.Reader) (*module.Module, error) {
	bs, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(bs) < 8 || !bytes.Equal(bs[:4], constant.Magic) {
		return nil, errors.New("illegal magic value")
	}
	if !bytes.Equal(bs[4:8], constant.Version) {
		return nil, errors.New("unsupported binary format version")
	}

	m := &module.Module{Version: 1}
	buf := bytes.NewReader(bs[8:])

	for buf.Len() > 0 {
		id, err := buf.ReadByte()
		if err != nil {
			return nil, err
		}
		size, err := leb128.ReadVarUint32(buf)
		if err != nil {
			return nil, errors.Wrapf(err, "section %d: read size", id)
		}
		if uint32(buf.Len()) < size {
			return nil, errors.Errorf("section %d: truncated payload", id)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(buf, payload); err != nil {
			return nil, err
		}
		p := bytes.NewReader(payload)

		switch id {
		case sectionCustom:
			err = readCustomSection(p, m)
		case sectionType:
			err = readTypeSection(p, m)
		case sectionImport:
			err = readImportSection(p, m)
		case sectionFunction:
			err = readFunctionSection(p, m)
		case sectionTable:
			err = readTableSection(p, m)
		case sectionMemory:
			err = readMemorySection(p, m)
		case sectionGlobal:
			err = readGlobalSection(p, m)
		case sectionExport:
			err = readExportSection(p, m)
		case sectionStart:
			err = readStartSection(p, m)
		case sectionElement:
			err = readElementSection(p, m)
		case sectionCode:
			err = readCodeSection(p, m)
		case sectionData:
			err = readDataSection(p, m)
		default:
			return nil, errors.Errorf("illegal section id %d", id)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "section %d", id)
		}
		if p.Len() > 0 {
			return nil, errors.Errorf("section %d: trailing bytes", id)
		}
	}

	if len(m.Function.TypeIndices) != len(m.Code.Segments) {
		return nil, errors.Errorf("function section has %d entries but code section has %d",
			len(m.Function.TypeIndices), len(m.Code.Segments))
	}

	return m, nil
}

// CodeEntries decodes the code section of m into entries aligned with its
// code segments.
func CodeEntries(m *module.Module) ([]*module.CodeEntry, error) {
	entries := make([]*module.CodeEntry, len(m.Code.Segments))
	for i, seg := range m.Code.Segments {
		e, err := ReadCodeEntry(bytes.NewReader(seg.Code))
		if err != nil {
			return nil, errors.Wrapf(err, "code segment %d", i)
		}
		entries[i] = e
	}
	return entries, nil
}

// ReadCodeEntry reads a single code entry (local declarations followed by
// the function body) from r.
func ReadCodeEntry(r *bytes.Reader) (*module.CodeEntry, error) {
	var e module.CodeEntry
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return nil, err
	}
	e.Func.Locals = make([]module.LocalDeclaration, 0, n)
	for i := uint32(0); i < n; i++ {
		count, err := leb128.ReadVarUint32(r)
		if err != nil {
			return nil, err
		}
		t, err := readValueType(r)
		if err != nil {
			return nil, err
		}
		e.Func.Locals = append(e.Func.Locals, module.LocalDeclaration{Count: count, Type: t})
	}
	instrs, term, err := readInstrs(r)
	if err != nil {
		return nil, err
	}
	if term != opcode.End {
		return nil, errors.New("function body not terminated with end")
	}
	if r.Len() > 0 {
		return nil, errors.New("trailing bytes after function body")
	}
	e.Func.Expr.Instrs = instrs
	return &e, nil
}

func readCustomSection(r *bytes.Reader, m *module.Module) error {
	name, err := readName(r)
	if err != nil {
		return err
	}
	data := make([]byte, r.Len())
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}
	if name == "name" {
		return readNameSection(bytes.NewReader(data), m)
	}
	m.Customs = append(m.Customs, module.CustomSection{Name: name, Data: data})
	return nil
}

func readNameSection(r *bytes.Reader, m *module.Module) error {
	for r.Len() > 0 {
		tag, err := r.ReadByte()
		if err != nil {
			return err
		}
		size, err := leb128.ReadVarUint32(r)
		if err != nil {
			return err
		}
		if uint32(r.Len()) < size {
			return errors.Errorf("name subsection %d: truncated payload", tag)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return err
		}
		p := bytes.NewReader(payload)

		switch tag {
		case 0:
			if m.Names.Module, err = readName(p); err != nil {
				return err
			}
		case 1:
			n, err := leb128.ReadVarUint32(p)
			if err != nil {
				return err
			}
			for i := uint32(0); i < n; i++ {
				idx, err := leb128.ReadVarUint32(p)
				if err != nil {
					return err
				}
				name, err := readName(p)
				if err != nil {
					return err
				}
				m.Names.Functions = append(m.Names.Functions, module.NameMap{Index: idx, Name: name})
			}
		case 2:
			n, err := leb128.ReadVarUint32(p)
			if err != nil {
				return err
			}
			for i := uint32(0); i < n; i++ {
				fidx, err := leb128.ReadVarUint32(p)
				if err != nil {
					return err
				}
				count, err := leb128.ReadVarUint32(p)
				if err != nil {
					return err
				}
				for j := uint32(0); j < count; j++ {
					idx, err := leb128.ReadVarUint32(p)
					if err != nil {
						return err
					}
					name, err := readName(p)
					if err != nil {
						return err
					}
					m.Names.Locals = append(m.Names.Locals, module.LocalNameMap{
						FuncIndex: fidx,
						NameMap:   module.NameMap{Index: idx, Name: name},
					})
				}
			}
		default:
			return errors.Errorf("unknown name subsection type %d", tag)
		}
		if p.Len() > 0 {
			return errors.Errorf("name subsection %d: trailing bytes", tag)
		}
	}
	return nil
}

func readTypeSection(r *bytes.Reader, m *module.Module) error {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		marker, err := r.ReadByte()
		if err != nil {
			return err
		}
		if marker != 0x60 {
			return errors.Errorf("illegal function type marker 0x%x", marker)
		}
		var ftype module.FunctionType
		if ftype.Params, err = readValueTypeVec(r); err != nil {
			return err
		}
		if ftype.Results, err = readValueTypeVec(r); err != nil {
			return err
		}
		m.Type.Functions = append(m.Type.Functions, ftype)
	}
	return nil
}

func readImportSection(r *bytes.Reader, m *module.Module) error {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		var imp module.Import
		if imp.Module, err = readName(r); err != nil {
			return err
		}
		if imp.Name, err = readName(r); err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		switch module.ImportDescriptorType(kind) {
		case module.FunctionImportType:
			idx, err := leb128.ReadVarUint32(r)
			if err != nil {
				return err
			}
			imp.Descriptor = module.FunctionImport{Func: idx}
		case module.TableImportType:
			t, err := readTableType(r)
			if err != nil {
				return err
			}
			imp.Descriptor = module.TableImport{Type: t}
		case module.MemoryImportType:
			lim, err := readLimit(r)
			if err != nil {
				return err
			}
			imp.Descriptor = module.MemoryImport{Mem: module.MemType{Lim: lim}}
		case module.GlobalImportType:
			t, err := readGlobalType(r)
			if err != nil {
				return err
			}
			imp.Descriptor = module.GlobalImport{Type: t}
		default:
			return errors.Errorf("illegal import descriptor kind 0x%x", kind)
		}
		m.Import.Imports = append(m.Import.Imports, imp)
	}
	return nil
}

func readFunctionSection(r *bytes.Reader, m *module.Module) error {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		idx, err := leb128.ReadVarUint32(r)
		if err != nil {
			return err
		}
		m.Function.TypeIndices = append(m.Function.TypeIndices, idx)
	}
	return nil
}

func readTableSection(r *bytes.Reader, m *module.Module) error {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		t, err := readTableType(r)
		if err != nil {
			return err
		}
		m.Table.Tables = append(m.Table.Tables, t)
	}
	return nil
}

func readMemorySection(r *bytes.Reader, m *module.Module) error {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		lim, err := readLimit(r)
		if err != nil {
			return err
		}
		m.Memory.Memories = append(m.Memory.Memories, module.MemType{Lim: lim})
	}
	return nil
}

func readGlobalSection(r *bytes.Reader, m *module.Module) error {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		var g module.Global
		if g.Type, err = readGlobalType(r); err != nil {
			return err
		}
		if g.Init, err = readExpr(r); err != nil {
			return err
		}
		m.Global.Globals = append(m.Global.Globals, g)
	}
	return nil
}

func readExportSection(r *bytes.Reader, m *module.Module) error {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		var exp module.Export
		if exp.Name, err = readName(r); err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		switch module.ExportDescriptorType(kind) {
		case module.FunctionExportType, module.TableExportType,
			module.MemoryExportType, module.GlobalExportType:
			exp.Descriptor.Type = module.ExportDescriptorType(kind)
		default:
			return errors.Errorf("illegal export descriptor kind 0x%x", kind)
		}
		if exp.Descriptor.Index, err = leb128.ReadVarUint32(r); err != nil {
			return err
		}
		m.Export.Exports = append(m.Export.Exports, exp)
	}
	return nil
}

func readStartSection(r *bytes.Reader, m *module.Module) error {
	idx, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	m.Start.FuncIndex = &idx
	return nil
}

func readElementSection(r *bytes.Reader, m *module.Module) error {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	m.Element.Segments = make([]module.ElementSegment, 0, n)
	for i := uint32(0); i < n; i++ {
		var seg module.ElementSegment
		if seg.Index, err = leb128.ReadVarUint32(r); err != nil {
			return err
		}
		if seg.Offset, err = readExpr(r); err != nil {
			return err
		}
		count, err := leb128.ReadVarUint32(r)
		if err != nil {
			return err
		}
		seg.Indices = make([]uint32, 0, count)
		for j := uint32(0); j < count; j++ {
			idx, err := leb128.ReadVarUint32(r)
			if err != nil {
				return err
			}
			seg.Indices = append(seg.Indices, idx)
		}
		m.Element.Segments = append(m.Element.Segments, seg)
	}
	return nil
}

func readCodeSection(r *bytes.Reader, m *module.Module) error {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		size, err := leb128.ReadVarUint32(r)
		if err != nil {
			return err
		}
		if uint32(r.Len()) < size {
			return errors.Errorf("code segment %d: truncated body", i)
		}
		code := make([]byte, size)
		if _, err := io.ReadFull(r, code); err != nil {
			return err
		}
		m.Code.Segments = append(m.Code.Segments, module.CodeSegment{Code: code})
	}
	return nil
}

func readDataSection(r *bytes.Reader, m *module.Module) error {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	m.Data.Segments = make([]module.DataSegment, 0, n)
	for i := uint32(0); i < n; i++ {
		var seg module.DataSegment
		if seg.Index, err = leb128.ReadVarUint32(r); err != nil {
			return err
		}
		if seg.Offset, err = readExpr(r); err != nil {
			return err
		}
		size, err := leb128.ReadVarUint32(r)
		if err != nil {
			return err
		}
		if uint32(r.Len()) < size {
			return errors.Errorf("data segment %d: truncated contents", i)
		}
		seg.Init = make([]byte, size)
		if _, err := io.ReadFull(r, seg.Init); err != nil {
			return err
		}
		m.Data.Segments = append(m.Data.Segments, seg)
	}
	return nil
}

// readExpr reads a constant initializer expression, consuming the
// terminating end opcode.
func readExpr(r *bytes.Reader) (module.Expr, error) {
	instrs, term, err := readInstrs(r)
	if err != nil {
		return module.Expr{}, err
	}
	if term != opcode.End {
		return module.Expr{}, errors.New("initializer expression not terminated with end")
	}
	return module.Expr{Instrs: instrs}, nil
}

// readInstrs reads instructions until an end or else opcode at the current
// nesting depth, returning the terminator.
func readInstrs(r *bytes.Reader) ([]instruction.Instruction, opcode.Opcode, error) {
	var instrs []instruction.Instruction
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, 0, err
		}
		op := opcode.Opcode(b)
		switch op {
		case opcode.End, opcode.Else:
			return instrs, op, nil
		}
		instr, err := readInstruction(r, op)
		if err != nil {
			return nil, 0, err
		}
		instrs = append(instrs, instr)
	}
}

func readInstruction(r *bytes.Reader, op opcode.Opcode) (instruction.Instruction, error) {
	switch op {
	case opcode.Unreachable:
		return instruction.Unreachable{}, nil
	case opcode.Nop:
		return instruction.Nop{}, nil
	case opcode.Block, opcode.Loop:
		bt, err := readBlockType(r)
		if err != nil {
			return nil, err
		}
		instrs, term, err := readInstrs(r)
		if err != nil {
			return nil, err
		}
		if term != opcode.End {
			return nil, errors.New("block not terminated with end")
		}
		if op == opcode.Block {
			return instruction.Block{Type: bt, Instrs: instrs}, nil
		}
		return instruction.Loop{Type: bt, Instrs: instrs}, nil
	case opcode.If:
		bt, err := readBlockType(r)
		if err != nil {
			return nil, err
		}
		instrs, term, err := readInstrs(r)
		if err != nil {
			return nil, err
		}
		var elseInstrs []instruction.Instruction
		if term == opcode.Else {
			if elseInstrs, term, err = readInstrs(r); err != nil {
				return nil, err
			}
		}
		if term != opcode.End {
			return nil, errors.New("conditional not terminated with end")
		}
		return instruction.If{Type: bt, Instrs: instrs, ElseInstrs: elseInstrs}, nil
	case opcode.Br, opcode.BrIf:
		idx, err := leb128.ReadVarUint32(r)
		if err != nil {
			return nil, err
		}
		if op == opcode.Br {
			return instruction.Br{Index: idx}, nil
		}
		return instruction.BrIf{Index: idx}, nil
	case opcode.BrTable:
		n, err := leb128.ReadVarUint32(r)
		if err != nil {
			return nil, err
		}
		targets := make([]uint32, 0, n)
		for i := uint32(0); i < n; i++ {
			t, err := leb128.ReadVarUint32(r)
			if err != nil {
				return nil, err
			}
			targets = append(targets, t)
		}
		def, err := leb128.ReadVarUint32(r)
		if err != nil {
			return nil, err
		}
		return instruction.BrTable{Targets: targets, Default: def}, nil
	case opcode.Return:
		return instruction.Return{}, nil
	case opcode.Call:
		idx, err := leb128.ReadVarUint32(r)
		if err != nil {
			return nil, err
		}
		return instruction.Call{Index: idx}, nil
	case opcode.CallIndirect:
		idx, err := leb128.ReadVarUint32(r)
		if err != nil {
			return nil, err
		}
		reserved, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		return instruction.CallIndirect{Index: idx, Reserved: reserved}, nil
	case opcode.Drop:
		return instruction.Drop{}, nil
	case opcode.Select:
		return instruction.Select{}, nil
	case opcode.GetLocal, opcode.SetLocal, opcode.TeeLocal, opcode.GetGlobal, opcode.SetGlobal:
		idx, err := leb128.ReadVarUint32(r)
		if err != nil {
			return nil, err
		}
		switch op {
		case opcode.GetLocal:
			return instruction.GetLocal{Index: idx}, nil
		case opcode.SetLocal:
			return instruction.SetLocal{Index: idx}, nil
		case opcode.TeeLocal:
			return instruction.TeeLocal{Index: idx}, nil
		case opcode.GetGlobal:
			return instruction.GetGlobal{Index: idx}, nil
		default:
			return instruction.SetGlobal{Index: idx}, nil
		}
	case opcode.CurrentMemory, opcode.GrowMemory:
		reserved, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if op == opcode.CurrentMemory {
			return instruction.CurrentMemory{Reserved: reserved}, nil
		}
		return instruction.GrowMemory{Reserved: reserved}, nil
	case opcode.I32Const:
		v, err := leb128.ReadVarInt32(r)
		if err != nil {
			return nil, err
		}
		return instruction.I32Const{Value: v}, nil
	case opcode.I64Const:
		v, err := leb128.ReadVarInt64(r)
		if err != nil {
			return nil, err
		}
		return instruction.I64Const{Value: v}, nil
	case opcode.F32Const:
		v, err := readFloat32(r)
		if err != nil {
			return nil, err
		}
		return instruction.F32Const{Value: v}, nil
	case opcode.F64Const:
		v, err := readFloat64(r)
		if err != nil {
			return nil, err
		}
		return instruction.F64Const{Value: v}, nil
	}

	switch {
	case op >= opcode.I32Load && op <= opcode.I64Load32U,
		op >= opcode.I32Store && op <= opcode.I64Store32:
		align, err := leb128.ReadVarUint32(r)
		if err != nil {
			return nil, err
		}
		offset, err := leb128.ReadVarUint32(r)
		if err != nil {
			return nil, err
		}
		if op <= opcode.I64Load32U {
			return instruction.Load{Code: op, Align: align, Offset: offset}, nil
		}
		return instruction.Store{Code: op, Align: align, Offset: offset}, nil
	case op >= opcode.I32Eqz && op <= opcode.F64ReinterpretI64:
		return instruction.Numeric{Code: op}, nil
	}

	return nil, errors.Errorf("illegal opcode 0x%x", byte(op))
}

func readBlockType(r *bytes.Reader) (*types.ValueType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if b == 0x40 {
		return nil, nil
	}
	t := types.ValueType(b)
	if !t.Valid() {
		return nil, errors.Errorf("illegal block type 0x%x", b)
	}
	return &t, nil
}

func readValueType(r *bytes.Reader) (types.ValueType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	t := types.ValueType(b)
	if !t.Valid() {
		return 0, errors.Errorf("illegal value type 0x%x", b)
	}
	return t, nil
}

func readValueTypeVec(r *bytes.Reader) ([]types.ValueType, error) {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return nil, err
	}
	vec := make([]types.ValueType, 0, n)
	for i := uint32(0); i < n; i++ {
		t, err := readValueType(r)
		if err != nil {
			return nil, err
		}
		vec = append(vec, t)
	}
	return vec, nil
}

func readTableType(r *bytes.Reader) (module.TableType, error) {
	var t module.TableType
	b, err := r.ReadByte()
	if err != nil {
		return t, err
	}
	if b != constant.ElementTypeAnyFunc {
		return t, errors.Errorf("illegal table element type 0x%x", b)
	}
	t.ElementType = b
	t.Lim, err = readLimit(r)
	return t, err
}

func readGlobalType(r *bytes.Reader) (module.GlobalType, error) {
	var t module.GlobalType
	var err error
	if t.Type, err = readValueType(r); err != nil {
		return t, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return t, err
	}
	if mut > 1 {
		return t, errors.Errorf("illegal mutability flag 0x%x", mut)
	}
	t.Mutable = mut == 1
	return t, nil
}

func readLimit(r *bytes.Reader) (module.Limit, error) {
	var lim module.Limit
	flags, err := r.ReadByte()
	if err != nil {
		return lim, err
	}
	if flags > 1 {
		return lim, errors.Errorf("illegal limit flags 0x%x", flags)
	}
	if lim.Min, err = leb128.ReadVarUint32(r); err != nil {
		return lim, err
	}
	if flags == 1 {
		max, err := leb128.ReadVarUint32(r)
		if err != nil {
			return lim, err
		}
		lim.Max = &max
	}
	return lim, nil
}

func readName(r *bytes.Reader) (string, error) {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return "", err
	}
	if uint32(r.Len()) < n {
		return "", errors.New("truncated name")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", errors.New("ill-formed utf-8 in name")
	}
	return string(buf), nil
}

func readFloat32(r *bytes.Reader) (float32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	bits := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	return math.Float32frombits(bits), nil
}

func readFloat64(r *bytes.Reader) (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	var bits uint64
	for i := 7; i >= 0; i-- {
		bits = bits<<8 | uint64(buf[i])
	}
	return math.Float64frombits(bits), nil
}
