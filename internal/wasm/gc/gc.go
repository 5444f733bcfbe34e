// Copyright 2018 The Wasm-GC Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package gc removes unreachable entities from WASM modules.
//
// The pass runs in two phases. The analyzer computes the set of types,
// functions, tables, memories, globals, imports and exports reachable
// from the module's roots. The remapper then drops everything outside
// that set and rewrites every index reference in every section to the
// new, contiguous numbering, keeping imported entries ahead of
// module-defined entries in each index space.
package gc

import (
	"fmt"

	"github.com/ianlancetaylor/demangle"

	"github.com/cdetrio/wasm-gc/internal/wasm/encoding"
	"github.com/cdetrio/wasm-gc/internal/wasm/module"
	"github.com/cdetrio/wasm-gc/logging"
)

// Config carries the recognized collection options.
type Config struct {
	// Demangle replaces each function symbol name in the name section
	// with its demangled form.
	Demangle bool

	// Demangler overrides the demangler applied when Demangle is set.
	// Defaults to demangle.Filter.
	Demangler func(string) string

	// Blacklist overrides the set of export names that never serve as
	// roots. Defaults to DefaultBlacklist.
	Blacklist map[string]struct{}

	// Logger receives a trace event for every dropped entity and every
	// index remap. Defaults to a no-op logger.
	Logger logging.Logger
}

// Run garbage-collects m in place: only entities reachable from the root
// set survive, renumbered contiguously with all cross-section references
// rewritten. Custom sections other than the name section are left
// untouched.
func Run(cfg Config, m *module.Module) error {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	blacklist := cfg.Blacklist
	if blacklist == nil {
		blacklist = DefaultBlacklist
	}
	demangler := cfg.Demangler
	if demangler == nil {
		demangler = func(name string) string {
			return demangle.Filter(name)
		}
	}

	entries, err := encoding.CodeEntries(m)
	if err != nil {
		return fmt.Errorf("decode code section: %w", err)
	}

	a, err := analyze(m, entries, blacklist, logger)
	if err != nil {
		return err
	}

	for _, custom := range m.Customs {
		logger.WithFields(map[string]interface{}{"name": custom.Name}).Info("skipping custom section")
	}

	r := newRemapContext(m, a, logger, cfg.Demangle, demangler)
	return r.remapModule(m, entries)
}
