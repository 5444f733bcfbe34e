// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package cmd contains the CLI commands of wasm-gc.
package cmd

import (
	"github.com/spf13/cobra"
)

// RootCommand is the base CLI command that all subcommands are added to.
var RootCommand = &cobra.Command{
	Use:   "wasm-gc <input.wasm> [output.wasm]",
	Short: "Remove unreachable entities from a WASM module",
	Long: `Remove unreachable entities from a WASM module.

wasm-gc parses a binary WASM module, computes the entities reachable from
its exports, module-defined tables, element and data segments, imported
memories and start function, and writes the module
back with everything else removed and all indices renumbered. The name
custom section is rewritten to match the new function numbering; other
custom sections are preserved untouched.

If no output path is given, the input file is rewritten in place.`,
}
