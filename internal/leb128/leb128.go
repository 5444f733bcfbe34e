// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package leb128 implements LEB128 integer encoding as used by the WASM
// binary format and DWARF.
package leb128

import (
	"errors"
	"io"
)

var errOverflow = errors.New("leb128: varint overflows integer")

// ReadVarUint32 reads an unsigned 32-bit LEB128-encoded integer from r.
func ReadVarUint32(r io.Reader) (uint32, error) {
	v, err := readVarUint(r, 32)
	return uint32(v), err
}

// ReadVarUint64 reads an unsigned 64-bit LEB128-encoded integer from r.
func ReadVarUint64(r io.Reader) (uint64, error) {
	return readVarUint(r, 64)
}

// ReadVarInt32 reads a signed 32-bit LEB128-encoded integer from r.
func ReadVarInt32(r io.Reader) (int32, error) {
	v, err := readVarInt(r, 32)
	return int32(v), err
}

// ReadVarInt64 reads a signed 64-bit LEB128-encoded integer from r.
func ReadVarInt64(r io.Reader) (int64, error) {
	return readVarInt(r, 64)
}

// WriteVarUint32 writes v to w as an unsigned LEB128-encoded integer.
func WriteVarUint32(w io.Writer, v uint32) error {
	return writeVarUint(w, uint64(v))
}

// WriteVarUint64 writes v to w as an unsigned LEB128-encoded integer.
func WriteVarUint64(w io.Writer, v uint64) error {
	return writeVarUint(w, v)
}

// WriteVarInt32 writes v to w as a signed LEB128-encoded integer.
func WriteVarInt32(w io.Writer, v int32) error {
	return writeVarInt(w, int64(v))
}

// WriteVarInt64 writes v to w as a signed LEB128-encoded integer.
func WriteVarInt64(w io.Writer, v int64) error {
	return writeVarInt(w, v)
}

func readByte(r io.Reader) (byte, error) {
	if br, ok := r.(io.ByteReader); ok {
		return br.ReadByte()
	}
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func readVarUint(r io.Reader, bits uint) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := readByte(r)
		if err != nil {
			return 0, err
		}
		if shift >= bits {
			return 0, errOverflow
		}
		result |= uint64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			return result, nil
		}
	}
}

func readVarInt(r io.Reader, bits uint) (int64, error) {
	var result int64
	var shift uint
	for {
		b, err := readByte(r)
		if err != nil {
			return 0, err
		}
		if shift >= bits {
			return 0, errOverflow
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
	}
}

func writeVarUint(w io.Writer, v uint64) error {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		if _, err := w.Write([]byte{b}); err != nil {
			return err
		}
		if v == 0 {
			return nil
		}
	}
}

func writeVarInt(w io.Writer, v int64) error {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		last := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !last {
			b |= 0x80
		}
		if _, err := w.Write([]byte{b}); err != nil {
			return err
		}
		if last {
			return nil
		}
	}
}
