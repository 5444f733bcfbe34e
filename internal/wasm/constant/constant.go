// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package constant contains WASM boilerplate constants.
package constant

// Magic is the magic number at the start of every WASM binary.
var Magic = []byte{0x00, 0x61, 0x73, 0x6D}

// Version is the encoding of the MVP binary format version.
var Version = []byte{0x01, 0x00, 0x00, 0x00}

// ElementTypeAnyFunc is the only table element type in the MVP.
const ElementTypeAnyFunc byte = 0x70
